package repository

import (
	"context"
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleet-rollout/internal/dto"
	"fleet-rollout/internal/model"
	"fleet-rollout/internal/pkg/testutil"
	"fleet-rollout/pkg/constants"
	pkgErrors "fleet-rollout/pkg/errors"
)

func seedRollout(t *testing.T, repo *RolloutRepository, totals ...int) *model.Rollout {
	t.Helper()
	r := &model.Rollout{
		Name:           "rollout",
		ReleaseVersion: "2.0.0",
		Status:         constants.RolloutStatusInProgress,
	}
	// 故意倒序写入, 读取时应按优先级升序
	for i := len(totals) - 1; i >= 0; i-- {
		r.Stages = append(r.Stages, model.RolloutStage{
			GroupID:      int64(i + 1),
			GroupName:    "group",
			Priority:     i * 10,
			Status:       constants.StageStatusPending,
			TotalDevices: totals[i],
		})
	}
	require.NoError(t, repo.CreateRollout(context.Background(), r))
	return r
}

func TestRolloutRepository_GetRolloutOrdersStages(t *testing.T) {
	db := testutil.NewDB(t)
	repo := NewRolloutRepository(db)
	ctx := context.Background()

	created := seedRollout(t, repo, 1, 2, 3)

	got, err := repo.GetRollout(ctx, created.ID)
	require.NoError(t, err)
	require.Len(t, got.Stages, 3)
	priorities := lo.Map(got.Stages, func(s model.RolloutStage, _ int) int { return s.Priority })
	assert.Equal(t, []int{0, 10, 20}, priorities)

	stages, err := repo.ListStages(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, stages[0].Priority)

	_, err = repo.GetRollout(ctx, 999)
	assert.ErrorIs(t, err, pkgErrors.ErrNotFound)
}

func TestRolloutRepository_UpdateRolloutStatusCAS(t *testing.T) {
	db := testutil.NewDB(t)
	repo := NewRolloutRepository(db)
	ctx := context.Background()
	r := seedRollout(t, repo, 1)

	ok, err := repo.UpdateRolloutStatus(ctx, r.ID, []string{constants.RolloutStatusPending}, constants.RolloutStatusPaused, nil)
	require.NoError(t, err)
	assert.False(t, ok, "当前状态不匹配时不应命中")

	reason := "manual"
	ok, err = repo.UpdateRolloutStatus(ctx, r.ID, []string{constants.RolloutStatusInProgress},
		constants.RolloutStatusRolledBack, map[string]interface{}{"reason": reason})
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := repo.GetRollout(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.RolloutStatusRolledBack, got.Status)
	require.NotNil(t, got.Reason)
	assert.Equal(t, reason, *got.Reason)
}

func TestRolloutRepository_ActivateStageHonoursOrder(t *testing.T) {
	db := testutil.NewDB(t)
	repo := NewRolloutRepository(db)
	ctx := context.Background()
	r := seedRollout(t, repo, 1, 1)

	stages, err := repo.ListStages(ctx, r.ID)
	require.NoError(t, err)
	first, second := stages[0], stages[1]
	now := time.Now()

	// 更靠前的阶段仍为 pending
	ok, err := repo.ActivateStage(ctx, r.ID, second.ID, now)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = repo.ActivateStage(ctx, r.ID, first.ID, now)
	require.NoError(t, err)
	assert.True(t, ok)

	// 已有进行中阶段
	ok, err = repo.ActivateStage(ctx, r.ID, second.ID, now)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = repo.UpdateStageStatus(ctx, first.ID, []string{constants.StageStatusInProgress}, constants.StageStatusCompleted, nil)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = repo.ActivateStage(ctx, r.ID, second.ID, now)
	require.NoError(t, err)
	assert.True(t, ok)

	// 重复激活不命中
	ok, err = repo.ActivateStage(ctx, r.ID, second.ID, now)
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := repo.GetStage(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.StageStatusInProgress, got.Status)
	assert.NotNil(t, got.StartedAt)
}

func TestRolloutRepository_UpdateStagesStatus(t *testing.T) {
	db := testutil.NewDB(t)
	repo := NewRolloutRepository(db)
	ctx := context.Background()
	r := seedRollout(t, repo, 1, 1, 1)

	stages, err := repo.ListStages(ctx, r.ID)
	require.NoError(t, err)
	_, err = repo.UpdateStageStatus(ctx, stages[0].ID, []string{constants.StageStatusPending}, constants.StageStatusCompleted, nil)
	require.NoError(t, err)

	n, err := repo.UpdateStagesStatus(ctx, r.ID,
		[]string{constants.StageStatusPending, constants.StageStatusInProgress}, constants.StageStatusSkipped,
		map[string]interface{}{"status_reason": "rolled back"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	stages, err = repo.ListStages(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.StageStatusCompleted, stages[0].Status)
	assert.Equal(t, constants.StageStatusSkipped, stages[1].Status)
	assert.Equal(t, "rolled back", stages[2].StatusReason)
}

func TestRolloutRepository_CreateRolloutDeviceUnique(t *testing.T) {
	db := testutil.NewDB(t)
	repo := NewRolloutRepository(db)
	ctx := context.Background()
	r := seedRollout(t, repo, 1)

	rd := &model.RolloutDevice{RolloutID: r.ID, StageID: r.Stages[0].ID, DeviceID: 7, Status: constants.DeviceStatusPending}
	created, err := repo.CreateRolloutDevice(ctx, rd)
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotZero(t, rd.ID)

	dup := &model.RolloutDevice{RolloutID: r.ID, StageID: r.Stages[0].ID, DeviceID: 7, Status: constants.DeviceStatusPending}
	created, err = repo.CreateRolloutDevice(ctx, dup)
	require.NoError(t, err)
	assert.False(t, created)

	got, err := repo.GetRolloutDevice(ctx, r.ID, 7)
	require.NoError(t, err)
	assert.Equal(t, rd.ID, got.ID)

	_, err = repo.GetRolloutDevice(ctx, r.ID, 8)
	assert.ErrorIs(t, err, pkgErrors.ErrNotFound)
}

func TestRolloutRepository_RecordDeviceResultIdempotent(t *testing.T) {
	db := testutil.NewDB(t)
	repo := NewRolloutRepository(db)
	ctx := context.Background()
	r := seedRollout(t, repo, 2)
	stageID := r.Stages[0].ID

	rd := &model.RolloutDevice{RolloutID: r.ID, StageID: stageID, DeviceID: 1, Status: constants.DeviceStatusInstalling}
	_, err := repo.CreateRolloutDevice(ctx, rd)
	require.NoError(t, err)

	now := time.Now()
	applied, err := repo.RecordDeviceResult(ctx, rd, constants.DeviceStatusCompleted, nil, now)
	require.NoError(t, err)
	assert.True(t, applied)

	// 重复上报
	applied, err = repo.RecordDeviceResult(ctx, rd, constants.DeviceStatusFailed, lo.ToPtr("late"), now)
	require.NoError(t, err)
	assert.False(t, applied)

	stage, err := repo.GetStage(ctx, stageID)
	require.NoError(t, err)
	assert.Equal(t, 1, stage.CompletedDevices)
	assert.Equal(t, 0, stage.FailedDevices)

	got, err := repo.GetRolloutDevice(ctx, r.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, constants.DeviceStatusCompleted, got.Status)
	assert.Nil(t, got.Error)
	assert.NotNil(t, got.FinishedAt)

	_, err = repo.RecordDeviceResult(ctx, rd, constants.DeviceStatusPending, nil, now)
	assert.Error(t, err)
}

func TestRolloutRepository_RecordDeviceResultBoundedByTotal(t *testing.T) {
	db := testutil.NewDB(t)
	repo := NewRolloutRepository(db)
	ctx := context.Background()
	// 快照为 1 台, 之后组内又加入了设备
	r := seedRollout(t, repo, 1)
	stageID := r.Stages[0].ID

	for i := int64(1); i <= 3; i++ {
		rd := &model.RolloutDevice{RolloutID: r.ID, StageID: stageID, DeviceID: i, Status: constants.DeviceStatusPending}
		_, err := repo.CreateRolloutDevice(ctx, rd)
		require.NoError(t, err)
		_, err = repo.RecordDeviceResult(ctx, rd, constants.DeviceStatusFailed, lo.ToPtr("boom"), time.Now())
		require.NoError(t, err)
	}

	stage, err := repo.GetStage(ctx, stageID)
	require.NoError(t, err)
	assert.LessOrEqual(t, stage.CompletedDevices+stage.FailedDevices, stage.TotalDevices)
	assert.Equal(t, 1, stage.FailedDevices)
}

func TestRolloutRepository_ListRollouts(t *testing.T) {
	db := testutil.NewDB(t)
	repo := NewRolloutRepository(db)
	ctx := context.Background()

	for i, status := range []string{constants.RolloutStatusPending, constants.RolloutStatusInProgress, constants.RolloutStatusCompleted} {
		require.NoError(t, repo.CreateRollout(ctx, &model.Rollout{
			Name:           "release " + status,
			ReleaseVersion: []string{"1.0.0", "1.1.0", "1.1.0"}[i],
			Status:         status,
		}))
	}

	all, total, err := repo.ListRollouts(ctx, dto.RolloutListParam{Page: 1, PageSize: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	require.Len(t, all, 2)
	assert.Greater(t, all[0].ID, all[1].ID)

	filtered, total, err := repo.ListRollouts(ctx, dto.RolloutListParam{
		Page: 1, PageSize: 20,
		Statuses:       []string{constants.RolloutStatusInProgress, constants.RolloutStatusCompleted},
		ReleaseVersion: lo.ToPtr("1.1.0"),
		Keyword:        lo.ToPtr("progress"),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, filtered, 1)
	assert.Equal(t, constants.RolloutStatusInProgress, filtered[0].Status)

	active, err := repo.ListRolloutsByStatus(ctx, constants.RolloutStatusInProgress)
	require.NoError(t, err)
	assert.Len(t, active, 1)
}

func TestRolloutRepository_Events(t *testing.T) {
	db := testutil.NewDB(t)
	repo := NewRolloutRepository(db)
	ctx := context.Background()
	r := seedRollout(t, repo, 1)

	for _, eventType := range []string{constants.EventRolloutCreated, constants.EventRolloutStarted, constants.EventStageStarted} {
		require.NoError(t, repo.AppendEvent(ctx, &model.RolloutEvent{
			RolloutID: r.ID,
			EventType: eventType,
			Metadata:  map[string]interface{}{"operator": "alice"},
		}))
	}

	events, err := repo.ListEvents(ctx, r.ID, 2)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, constants.EventStageStarted, events[0].EventType)
	assert.Equal(t, "alice", events[0].Metadata["operator"])
}
