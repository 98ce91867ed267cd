package rollout

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"fleet-rollout/internal/dto"
	"fleet-rollout/internal/model"
	"fleet-rollout/internal/pkg/testutil"
	"fleet-rollout/internal/repository"
	"fleet-rollout/pkg/constants"
	pkgErrors "fleet-rollout/pkg/errors"
)

type mockAgents struct {
	mock.Mock
}

func (m *mockAgents) IsOnline(ctx context.Context, deviceID int64) bool {
	return m.Called(ctx, deviceID).Bool(0)
}

func (m *mockAgents) SendCommand(ctx context.Context, deviceID int64, cmd Command, opts SendOptions) (*CommandHandle, error) {
	args := m.Called(ctx, deviceID, cmd, opts)
	handle, _ := args.Get(0).(*CommandHandle)
	return handle, args.Error(1)
}

// sent 某设备收到的指令
func (m *mockAgents) sent(deviceID int64, commandType string) []mock.Call {
	return lo.Filter(m.Calls, func(c mock.Call, _ int) bool {
		return c.Method == "SendCommand" && c.Arguments.Get(1).(int64) == deviceID &&
			c.Arguments.Get(2).(Command).Type == commandType
	})
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	manager *Manager
	monitor *Monitor
	repo    *repository.RolloutRepository
	groups  *repository.UpdateGroupRepository
	devices *repository.DeviceRepository
	agents  *mockAgents
	clock   *fakeClock
	ctx     context.Context
	t       *testing.T
}

func newFixture(t *testing.T) *fixture {
	db := testutil.NewDB(t)
	clock := &fakeClock{now: time.Date(2026, 3, 1, 10, 0, 0, 0, time.Local)}
	agents := &mockAgents{}
	repo := repository.NewRolloutRepository(db)
	manager := NewManager(repo, agents, nil, nil, zap.NewNop(), Options{DispatchConcurrency: 4, Now: clock.Now})
	return &fixture{
		manager: manager,
		monitor: NewMonitor(manager, zap.NewNop()),
		repo:    repo,
		groups:  repository.NewUpdateGroupRepository(db),
		devices: repository.NewDeviceRepository(db),
		agents:  agents,
		clock:   clock,
		ctx:     context.Background(),
		t:       t,
	}
}

// group 创建更新组及 n 台设备, 返回设备ID
func (f *fixture) group(g model.UpdateGroup, n int) (*model.UpdateGroup, []int64) {
	f.t.Helper()
	require.NoError(f.t, f.groups.Create(f.ctx, &g))
	ids := make([]int64, 0, n)
	for i := 0; i < n; i++ {
		d := &model.Device{
			AgentID:       fmt.Sprintf("%s-%d", g.Name, i),
			AgentVersion:  "1.0.0",
			UpdateGroupID: &g.ID,
		}
		require.NoError(f.t, f.devices.Create(f.ctx, d))
		ids = append(ids, d.ID)
	}
	return &g, ids
}

func (f *fixture) sendOK() {
	f.agents.On("SendCommand", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(&CommandHandle{CommandID: "cmd", RequestID: "req"}, nil)
}

func (f *fixture) create() *model.Rollout {
	f.t.Helper()
	r, err := f.manager.CreateRollout(f.ctx, &dto.CreateRolloutRequest{
		Name:           "release 2.0.0",
		ReleaseVersion: "2.0.0",
		DownloadURL:    "https://dl.example.com/agent-2.0.0.tar.gz",
		Checksum:       "abcdef",
		CreatedBy:      "alice",
	})
	require.NoError(f.t, err)
	return r
}

func (f *fixture) stages(rolloutID int64) []model.RolloutStage {
	f.t.Helper()
	stages, err := f.repo.ListStages(f.ctx, rolloutID)
	require.NoError(f.t, err)
	return stages
}

func (f *fixture) rollout(id int64) *model.Rollout {
	f.t.Helper()
	r, err := f.repo.GetRollout(f.ctx, id)
	require.NoError(f.t, err)
	return r
}

func (f *fixture) device(rolloutID, deviceID int64) *model.RolloutDevice {
	f.t.Helper()
	rd, err := f.repo.GetRolloutDevice(f.ctx, rolloutID, deviceID)
	require.NoError(f.t, err)
	return rd
}

func (f *fixture) report(rolloutID, deviceID int64, success bool) {
	f.t.Helper()
	errMsg := ""
	if !success {
		errMsg = "install failed"
	}
	require.NoError(f.t, f.manager.HandleDeviceUpdateResult(f.ctx, deviceID, rolloutID, success, errMsg))
}

func statuses(stages []model.RolloutStage) []string {
	return lo.Map(stages, func(s model.RolloutStage, _ int) string { return s.Status })
}

type scenario struct {
	*fixture
	testDevices, pilotDevices, prodDevices []int64
}

func newScenario(t *testing.T) *scenario {
	f := newFixture(t)
	f.sendOK()
	// 有意乱序创建, 阶段顺序只取决于优先级
	_, prod := f.group(model.UpdateGroup{Name: "production", Priority: 100, AutoPromote: false,
		SuccessThresholdPercent: 95, FailureThresholdPercent: 5, MinDevicesForDecision: 1}, 2)
	_, test := f.group(model.UpdateGroup{Name: "test", Priority: 0, AutoPromote: true,
		SuccessThresholdPercent: 100, FailureThresholdPercent: 5, MinDevicesForDecision: 1}, 1)
	_, pilot := f.group(model.UpdateGroup{Name: "pilot", Priority: 10, AutoPromote: true,
		SuccessThresholdPercent: 90, FailureThresholdPercent: 10, MinDevicesForDecision: 3}, 10)
	return &scenario{fixture: f, testDevices: test, pilotDevices: pilot, prodDevices: prod}
}

func TestManager_CreateAndStart(t *testing.T) {
	s := newScenario(t)

	r := s.create()
	assert.Equal(t, constants.RolloutStatusPending, r.Status)
	stages := s.stages(r.ID)
	require.Len(t, stages, 3)
	assert.Equal(t, []string{"test", "pilot", "production"},
		lo.Map(stages, func(st model.RolloutStage, _ int) string { return st.GroupName }))
	assert.Equal(t, []int{1, 10, 2},
		lo.Map(stages, func(st model.RolloutStage, _ int) int { return st.TotalDevices }))

	started, err := s.manager.StartRollout(s.ctx, r.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, constants.RolloutStatusInProgress, started.Status)
	assert.Equal(t, []string{"in_progress", "pending", "pending"}, statuses(s.stages(r.ID)))

	calls := s.agents.sent(s.testDevices[0], constants.CommandTypeUpdateAgent)
	require.Len(t, calls, 1)
	cmd := calls[0].Arguments.Get(2).(Command)
	payload := cmd.Payload.(UpdatePayload)
	rd := s.device(r.ID, s.testDevices[0])
	assert.Equal(t, r.ID, payload.RolloutID)
	assert.Equal(t, stages[0].ID, payload.StageID)
	assert.Equal(t, rd.ID, payload.RolloutDeviceID)
	assert.Equal(t, "2.0.0", payload.Version)
	assert.Equal(t, "https://dl.example.com/agent-2.0.0.tar.gz", payload.DownloadURL)

	opts := calls[0].Arguments.Get(3).(SendOptions)
	assert.True(t, opts.QueueIfOffline)
	assert.Equal(t, constants.PriorityNormal, opts.Priority)
	assert.Equal(t, 24*60, opts.ExpiresInMinutes)

	assert.Equal(t, "1.0.0", rd.FromVersion)
	assert.Equal(t, "2.0.0", rd.ToVersion)
	assert.NotNil(t, rd.DispatchedAt)

	// 重复启动
	_, err = s.manager.StartRollout(s.ctx, r.ID, "alice")
	assert.ErrorIs(t, err, pkgErrors.ErrInvalidStateTransition)
}

func TestManager_AutoPromoteThenAutoRollback(t *testing.T) {
	s := newScenario(t)
	r := s.create()
	_, err := s.manager.StartRollout(s.ctx, r.ID, "alice")
	require.NoError(t, err)

	// test 组唯一设备成功, 下一次扫描自动晋级
	s.report(r.ID, s.testDevices[0], true)
	stages := s.stages(r.ID)
	assert.Equal(t, 1, stages[0].CompletedDevices)

	s.monitor.Scan(s.ctx)
	assert.Equal(t, []string{"completed", "in_progress", "pending"}, statuses(s.stages(r.ID)))
	for _, id := range s.pilotDevices {
		assert.Len(t, s.agents.sent(id, constants.CommandTypeUpdateAgent), 1)
	}

	// pilot: 1 成功 2 失败, 失败率 20% >= 10%, 样本 3 台
	s.report(r.ID, s.pilotDevices[0], true)
	s.report(r.ID, s.pilotDevices[1], false)
	s.report(r.ID, s.pilotDevices[2], false)
	s.monitor.Scan(s.ctx)

	got := s.rollout(r.ID)
	assert.Equal(t, constants.RolloutStatusRolledBack, got.Status)
	require.NotNil(t, got.Reason)
	assert.Contains(t, *got.Reason, "pilot")
	assert.Equal(t, []string{"completed", "failed", "skipped"}, statuses(s.stages(r.ID)))

	// 已完成设备收到回滚到原版本的高优先级指令
	for _, id := range []int64{s.testDevices[0], s.pilotDevices[0]} {
		calls := s.agents.sent(id, constants.CommandTypeRollbackAgent)
		require.Len(t, calls, 1)
		payload := calls[0].Arguments.Get(2).(Command).Payload.(RollbackPayload)
		assert.Equal(t, "1.0.0", payload.TargetVersion)
		opts := calls[0].Arguments.Get(3).(SendOptions)
		assert.Equal(t, constants.PriorityHigh, opts.Priority)
		assert.True(t, opts.QueueIfOffline)
		assert.Equal(t, 60, opts.ExpiresInMinutes)
		assert.Equal(t, constants.DeviceStatusRolledBack, s.device(r.ID, id).Status)
	}
	assert.Empty(t, s.agents.sent(s.pilotDevices[1], constants.CommandTypeRollbackAgent))
	for _, id := range s.prodDevices {
		assert.Empty(t, s.agents.sent(id, constants.CommandTypeUpdateAgent))
	}

	// 终态不可逆
	_, err = s.manager.ResumeRollout(s.ctx, r.ID, "alice")
	assert.ErrorIs(t, err, pkgErrors.ErrInvalidStateTransition)
	_, err = s.manager.RollbackRollout(s.ctx, r.ID, "again", "alice")
	assert.ErrorIs(t, err, pkgErrors.ErrInvalidStateTransition)

	events, err := s.manager.ListEvents(s.ctx, r.ID, 0)
	require.NoError(t, err)
	types := lo.Map(events, func(e model.RolloutEvent, _ int) string { return e.EventType })
	assert.Contains(t, types, constants.EventAutoPromote)
	assert.Contains(t, types, constants.EventAutoRollback)
	assert.Contains(t, types, constants.EventRolloutRolledBack)
}

func TestManager_LateCompletionAfterRollback(t *testing.T) {
	s := newScenario(t)
	r := s.create()
	_, err := s.manager.StartRollout(s.ctx, r.ID, "alice")
	require.NoError(t, err)

	_, err = s.manager.RollbackRollout(s.ctx, r.ID, "bad build", "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{"skipped", "skipped", "skipped"}, statuses(s.stages(r.ID)))

	// 已下发的指令在回滚后才完成
	s.report(r.ID, s.testDevices[0], true)
	assert.Equal(t, constants.DeviceStatusRolledBack, s.device(r.ID, s.testDevices[0]).Status)
	assert.Len(t, s.agents.sent(s.testDevices[0], constants.CommandTypeRollbackAgent), 1)

	// 重复上报不再处理
	s.report(r.ID, s.testDevices[0], true)
	assert.Len(t, s.agents.sent(s.testDevices[0], constants.CommandTypeRollbackAgent), 1)
	assert.Equal(t, 1, s.stages(r.ID)[0].CompletedDevices)
}

func TestManager_ManualPromotion(t *testing.T) {
	f := newFixture(t)
	f.sendOK()
	_, canary := f.group(model.UpdateGroup{Name: "canary", Priority: 0, AutoPromote: true,
		SuccessThresholdPercent: 100, FailureThresholdPercent: 50, MinDevicesForDecision: 1}, 1)
	_, prod := f.group(model.UpdateGroup{Name: "production", Priority: 100, AutoPromote: false,
		SuccessThresholdPercent: 95, FailureThresholdPercent: 50, MinDevicesForDecision: 1}, 1)

	r := f.create()
	_, err := f.manager.StartRollout(f.ctx, r.ID, "alice")
	require.NoError(t, err)
	f.report(r.ID, canary[0], true)
	f.monitor.Scan(f.ctx)

	f.report(r.ID, prod[0], true)
	f.monitor.Scan(f.ctx)
	f.monitor.Scan(f.ctx)

	stages := f.stages(r.ID)
	assert.Equal(t, []string{"completed", "in_progress"}, statuses(stages))
	assert.Equal(t, "等待人工晋级", stages[1].StatusReason)
	assert.NotNil(t, stages[1].LastEvaluatedAt)

	detail, err := f.manager.EvaluateRollout(f.ctx, r.ID)
	require.NoError(t, err)
	require.Len(t, detail.Stages, 2)
	assert.Nil(t, detail.Stages[0].Evaluation)
	require.NotNil(t, detail.Stages[1].Evaluation)
	assert.False(t, detail.Stages[1].Evaluation.CanAutoPromote)
	assert.Equal(t, 100.0, detail.Stages[1].Evaluation.SuccessRate)

	// 其它发布的阶段
	_, err = f.manager.PromoteStage(f.ctx, r.ID+1, stages[1].ID, "alice")
	assert.ErrorIs(t, err, pkgErrors.ErrNotFound)

	got, err := f.manager.PromoteStage(f.ctx, r.ID, stages[1].ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, constants.RolloutStatusCompleted, got.Status)
	assert.Equal(t, []string{"completed", "completed"}, statuses(f.stages(r.ID)))
	assert.NotNil(t, f.rollout(r.ID).CompletedAt)
}

func TestManager_PauseBlocksPromotion(t *testing.T) {
	f := newFixture(t)
	f.sendOK()
	_, canary := f.group(model.UpdateGroup{Name: "canary", Priority: 0, AutoPromote: true,
		SuccessThresholdPercent: 100, FailureThresholdPercent: 50, MinDevicesForDecision: 1}, 1)
	f.group(model.UpdateGroup{Name: "fleet", Priority: 1, AutoPromote: true,
		SuccessThresholdPercent: 100, FailureThresholdPercent: 50, MinDevicesForDecision: 1}, 1)

	r := f.create()
	_, err := f.manager.StartRollout(f.ctx, r.ID, "alice")
	require.NoError(t, err)

	_, err = f.manager.PauseRollout(f.ctx, r.ID, "alice")
	require.NoError(t, err)
	_, err = f.manager.PauseRollout(f.ctx, r.ID, "alice")
	assert.ErrorIs(t, err, pkgErrors.ErrInvalidStateTransition)

	// 暂停期间结果照常计入, 但不晋级
	f.report(r.ID, canary[0], true)
	f.monitor.Scan(f.ctx)
	assert.Equal(t, []string{"in_progress", "pending"}, statuses(f.stages(r.ID)))

	stage := f.stages(r.ID)[0]
	_, err = f.manager.PromoteStage(f.ctx, r.ID, stage.ID, "alice")
	assert.ErrorIs(t, err, pkgErrors.ErrInvalidStateTransition)

	_, err = f.manager.ResumeRollout(f.ctx, r.ID, "alice")
	require.NoError(t, err)
	f.monitor.Scan(f.ctx)
	assert.Equal(t, []string{"completed", "in_progress"}, statuses(f.stages(r.ID)))
}

func TestManager_WaitTimeGatesPromotion(t *testing.T) {
	f := newFixture(t)
	f.sendOK()
	_, canary := f.group(model.UpdateGroup{Name: "canary", Priority: 0, AutoPromote: true,
		SuccessThresholdPercent: 100, FailureThresholdPercent: 50, MinDevicesForDecision: 1, WaitTimeMinutes: 30}, 1)

	r := f.create()
	_, err := f.manager.StartRollout(f.ctx, r.ID, "alice")
	require.NoError(t, err)
	f.report(r.ID, canary[0], true)

	f.clock.Advance(10 * time.Minute)
	f.monitor.Scan(f.ctx)
	stage := f.stages(r.ID)[0]
	assert.Equal(t, constants.StageStatusInProgress, stage.Status)
	assert.Equal(t, "驻留时间未满: 还需等待 20 分钟", stage.StatusReason)

	f.clock.Advance(21 * time.Minute)
	f.monitor.Scan(f.ctx)
	assert.Equal(t, constants.RolloutStatusCompleted, f.rollout(r.ID).Status)
}

func TestManager_DispatchFailureCountsAsFailed(t *testing.T) {
	f := newFixture(t)
	_, ids := f.group(model.UpdateGroup{Name: "canary", Priority: 0, AutoPromote: true,
		SuccessThresholdPercent: 100, FailureThresholdPercent: 50, MinDevicesForDecision: 1}, 3)
	f.agents.On("SendCommand", mock.Anything, ids[1], mock.Anything, mock.Anything).
		Return(nil, errors.New("redis unavailable"))
	f.sendOK()

	r := f.create()
	_, err := f.manager.StartRollout(f.ctx, r.ID, "alice")
	require.NoError(t, err)

	stage := f.stages(r.ID)[0]
	assert.Equal(t, 1, stage.FailedDevices)
	failed := f.device(r.ID, ids[1])
	assert.Equal(t, constants.DeviceStatusFailed, failed.Status)
	require.NotNil(t, failed.Error)
	assert.Contains(t, *failed.Error, "redis unavailable")
	assert.Equal(t, constants.DeviceStatusPending, f.device(r.ID, ids[0]).Status)
}

func TestManager_StageOrderingAndCounterInvariant(t *testing.T) {
	f := newFixture(t)
	f.sendOK()
	_, ids := f.group(model.UpdateGroup{Name: "canary", Priority: 0, AutoPromote: false,
		SuccessThresholdPercent: 100, FailureThresholdPercent: 100, MinDevicesForDecision: 1}, 5)
	f.group(model.UpdateGroup{Name: "fleet", Priority: 1}, 1)

	r := f.create()
	_, err := f.manager.StartRollout(f.ctx, r.ID, "alice")
	require.NoError(t, err)

	// 并发重复上报
	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		for j, id := range ids {
			wg.Add(1)
			go func(id int64, success bool) {
				defer wg.Done()
				_ = f.manager.HandleDeviceUpdateResult(f.ctx, id, r.ID, success, "")
			}(id, j%2 == 0)
		}
	}
	wg.Wait()

	stages := f.stages(r.ID)
	assert.Equal(t, 5, stages[0].CompletedDevices+stages[0].FailedDevices)
	assert.LessOrEqual(t, stages[0].CompletedDevices+stages[0].FailedDevices, stages[0].TotalDevices)
	assert.Equal(t, 1, lo.CountBy(stages, func(s model.RolloutStage) bool { return s.Status == constants.StageStatusInProgress }))

	// 前一阶段仍在进行, 不能直接启动后续阶段
	err = f.manager.advance(f.ctx, f.rollout(r.ID), stages, SourceInside)
	assert.ErrorIs(t, err, pkgErrors.ErrInvalidStateTransition)
}

func TestManager_Progress(t *testing.T) {
	f := newFixture(t)
	f.sendOK()
	_, ids := f.group(model.UpdateGroup{Name: "canary", Priority: 0, MinDevicesForDecision: 1}, 1)

	r := f.create()
	_, err := f.manager.StartRollout(f.ctx, r.ID, "alice")
	require.NoError(t, err)

	require.NoError(t, f.manager.HandleDeviceProgress(f.ctx, ids[0], r.ID, constants.DeviceStatusInstalling))
	require.NoError(t, f.manager.HandleDeviceProgress(f.ctx, ids[0], r.ID, constants.DeviceStatusDownloading))
	assert.Equal(t, constants.DeviceStatusInstalling, f.device(r.ID, ids[0]).Status)

	err = f.manager.HandleDeviceProgress(f.ctx, ids[0], r.ID, constants.DeviceStatusCompleted)
	assert.ErrorIs(t, err, pkgErrors.ErrBadRequest)

	f.report(r.ID, ids[0], true)
	require.NoError(t, f.manager.HandleDeviceProgress(f.ctx, ids[0], r.ID, constants.DeviceStatusInstalling))
	assert.Equal(t, constants.DeviceStatusCompleted, f.device(r.ID, ids[0]).Status)

	stage := f.stages(r.ID)[0]
	assert.Equal(t, 1, stage.CompletedDevices)

	err = f.manager.HandleDeviceUpdateResult(f.ctx, 999, r.ID, true, "")
	assert.ErrorIs(t, err, pkgErrors.ErrNotFound)
}

func TestManager_CreateWithoutGroups(t *testing.T) {
	f := newFixture(t)
	_, err := f.manager.CreateRollout(f.ctx, &dto.CreateRolloutRequest{Name: "x", ReleaseVersion: "1.0.0"})
	assert.ErrorIs(t, err, pkgErrors.ErrConfiguration)
}

func TestManager_EmptyStagesCompleteRollout(t *testing.T) {
	f := newFixture(t)
	f.group(model.UpdateGroup{Name: "empty", Priority: 0, AutoPromote: true,
		SuccessThresholdPercent: 100, FailureThresholdPercent: 5, MinDevicesForDecision: 3}, 0)

	r := f.create()
	_, err := f.manager.StartRollout(f.ctx, r.ID, "alice")
	require.NoError(t, err)
	f.monitor.Scan(f.ctx)

	assert.Equal(t, constants.RolloutStatusCompleted, f.rollout(r.ID).Status)
	f.agents.AssertNotCalled(t, "SendCommand", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestMonitor_ReconcileAfterInterruptedPromotion(t *testing.T) {
	f := newFixture(t)
	f.sendOK()
	f.group(model.UpdateGroup{Name: "canary", Priority: 0, MinDevicesForDecision: 1}, 1)
	_, fleet := f.group(model.UpdateGroup{Name: "fleet", Priority: 1, MinDevicesForDecision: 1}, 1)

	r := f.create()
	_, err := f.manager.StartRollout(f.ctx, r.ID, "alice")
	require.NoError(t, err)

	// 阶段已标记完成, 下一阶段尚未启动时进程退出
	stages := f.stages(r.ID)
	ok, err := f.repo.UpdateStageStatus(f.ctx, stages[0].ID,
		[]string{constants.StageStatusInProgress}, constants.StageStatusCompleted, nil)
	require.NoError(t, err)
	require.True(t, ok)

	f.monitor.Scan(f.ctx)
	assert.Equal(t, []string{"completed", "in_progress"}, statuses(f.stages(r.ID)))
	assert.Len(t, f.agents.sent(fleet[0], constants.CommandTypeUpdateAgent), 1)
}

// racingStore 在记录设备结果前后插入操作, 模拟回滚与上报并发
type racingStore struct {
	Store
	before, after func()
}

func (s *racingStore) RecordDeviceResult(ctx context.Context, rd *model.RolloutDevice, status string, errMsg *string, now time.Time) (bool, error) {
	if s.before != nil {
		s.before()
	}
	applied, err := s.Store.RecordDeviceResult(ctx, rd, status, errMsg, now)
	if s.after != nil {
		s.after()
	}
	return applied, err
}

func TestManager_RollbackRacingSuccessReport(t *testing.T) {
	canary := model.UpdateGroup{Name: "canary", Priority: 0,
		SuccessThresholdPercent: 100, FailureThresholdPercent: 50, MinDevicesForDecision: 1}

	for _, tc := range []struct {
		name         string
		beforeRecord bool
	}{
		{name: "回滚先列出设备", beforeRecord: true},
		{name: "结果先提交", beforeRecord: false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			f.sendOK()
			_, ids := f.group(canary, 1)
			r := f.create()
			_, err := f.manager.StartRollout(f.ctx, r.ID, "alice")
			require.NoError(t, err)

			rollback := func() {
				_, err := f.manager.RollbackRollout(f.ctx, r.ID, "bad build", "alice")
				require.NoError(t, err)
			}
			store := &racingStore{Store: f.repo}
			if tc.beforeRecord {
				store.before = rollback
			} else {
				store.after = rollback
			}
			f.manager.store = store

			f.report(r.ID, ids[0], true)

			assert.Equal(t, constants.RolloutStatusRolledBack, f.rollout(r.ID).Status)
			assert.Equal(t, constants.DeviceStatusRolledBack, f.device(r.ID, ids[0]).Status)
			assert.Len(t, f.agents.sent(ids[0], constants.CommandTypeRollbackAgent), 1)
		})
	}
}

func TestManager_RollbackSendFailureKeepsCompleted(t *testing.T) {
	f := newFixture(t)
	_, ids := f.group(model.UpdateGroup{Name: "canary", Priority: 0,
		SuccessThresholdPercent: 100, FailureThresholdPercent: 50, MinDevicesForDecision: 1}, 1)
	isRollback := mock.MatchedBy(func(c Command) bool { return c.Type == constants.CommandTypeRollbackAgent })
	f.agents.On("SendCommand", mock.Anything, ids[0], isRollback, mock.Anything).
		Return(nil, errors.New("redis unavailable")).Once()
	f.sendOK()

	r := f.create()
	_, err := f.manager.StartRollout(f.ctx, r.ID, "alice")
	require.NoError(t, err)
	f.report(r.ID, ids[0], true)

	_, err = f.manager.RollbackRollout(f.ctx, r.ID, "bad build", "alice")
	require.NoError(t, err)

	rd := f.device(r.ID, ids[0])
	assert.Equal(t, constants.DeviceStatusCompleted, rd.Status)
	assert.NotNil(t, rd.FinishedAt)

	events, err := f.manager.ListEvents(f.ctx, r.ID, 0)
	require.NoError(t, err)
	assert.Contains(t, lo.Map(events, func(e model.RolloutEvent, _ int) string { return e.EventType }),
		constants.EventDeviceDispatchFailed)
}

func TestManager_DispatchIgnoresCallerCancellation(t *testing.T) {
	f := newFixture(t)
	f.sendOK()
	_, ids := f.group(model.UpdateGroup{Name: "canary", Priority: 0,
		SuccessThresholdPercent: 100, FailureThresholdPercent: 50, MinDevicesForDecision: 1}, 3)
	r := f.create()

	// 调用方在下发过程中断开
	ctx, cancel := context.WithCancel(f.ctx)
	cancel()

	_, err := f.manager.StartRollout(ctx, r.ID, "alice")
	require.NoError(t, err)
	stage := f.stages(r.ID)[0]
	assert.Equal(t, constants.StageStatusInProgress, stage.Status)
	assert.Zero(t, stage.FailedDevices)
	for _, id := range ids {
		assert.Len(t, f.agents.sent(id, constants.CommandTypeUpdateAgent), 1)
		assert.NotNil(t, f.device(r.ID, id).DispatchedAt)
	}

	f.report(r.ID, ids[0], true)
	_, err = f.manager.RollbackRollout(ctx, r.ID, "bad build", "alice")
	require.NoError(t, err)
	assert.Equal(t, constants.DeviceStatusRolledBack, f.device(r.ID, ids[0]).Status)
	assert.Len(t, f.agents.sent(ids[0], constants.CommandTypeRollbackAgent), 1)

	for _, call := range f.agents.Calls {
		assert.NoError(t, call.Arguments.Get(0).(context.Context).Err())
	}
}
