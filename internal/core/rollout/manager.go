package rollout

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"fleet-rollout/internal/adapter/notification"
	"fleet-rollout/internal/dto"
	"fleet-rollout/internal/metrics"
	"fleet-rollout/internal/model"
	"fleet-rollout/pkg/constants"
	pkgErrors "fleet-rollout/pkg/errors"
)

// OperatorSystem 监控循环触发的操作人
const OperatorSystem = "system"

// Options Manager 调优参数
type Options struct {
	DispatchConcurrency int // 阶段启动/回滚时并发下发数
	Now                 func() time.Time
}

// Manager 发布活动管理, 负责发布/阶段/设备的全部状态流转
type Manager struct {
	store       Store
	agents      AgentConnection
	notifier    notification.Notifier
	metrics     *metrics.Metrics
	logger      *zap.Logger
	transitions transitionTable
	opts        Options
}

// NewManager 创建发布管理器
func NewManager(store Store, agents AgentConnection, notifier notification.Notifier, m *metrics.Metrics, logger *zap.Logger, opts Options) *Manager {
	if opts.DispatchConcurrency <= 0 {
		opts.DispatchConcurrency = 50
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if notifier == nil {
		notifier = notification.NewLogNotifier(logger)
	}
	return &Manager{
		store:       store,
		agents:      agents,
		notifier:    notifier,
		metrics:     m,
		logger:      logger,
		transitions: newTransitionTable(allTransitions),
		opts:        opts,
	}
}

// CreateRollout 按更新组优先级创建阶段, 每个阶段的设备总数为当前组成员数快照
func (m *Manager) CreateRollout(ctx context.Context, req *dto.CreateRolloutRequest) (*model.Rollout, error) {
	groups, err := m.store.ListUpdateGroups(ctx)
	if err != nil {
		return nil, fmt.Errorf("查询更新组失败: %w", err)
	}
	if len(groups) == 0 {
		return nil, pkgErrors.Wrap(pkgErrors.CodeConfigurationError, "未配置任何更新组",
			fmt.Errorf("rollout %s requires at least one update group", req.ReleaseVersion))
	}

	sort.SliceStable(groups, func(i, j int) bool {
		if groups[i].Priority != groups[j].Priority {
			return groups[i].Priority < groups[j].Priority
		}
		return groups[i].ID < groups[j].ID
	})

	rollout := &model.Rollout{
		Name:           req.Name,
		ReleaseVersion: req.ReleaseVersion,
		Status:         constants.RolloutStatusPending,
		DownloadURL:    req.DownloadURL,
		Checksum:       req.Checksum,
		CreatedBy:      req.CreatedBy,
	}
	for _, group := range groups {
		total, err := m.store.CountDevicesInGroup(ctx, group.ID)
		if err != nil {
			return nil, fmt.Errorf("统计更新组设备失败 %s: %w", group.Name, err)
		}
		rollout.Stages = append(rollout.Stages, model.RolloutStage{
			GroupID:      group.ID,
			GroupName:    group.Name,
			Priority:     group.Priority,
			Status:       constants.StageStatusPending,
			TotalDevices: int(total),
		})
	}

	if err := m.store.CreateRollout(ctx, rollout); err != nil {
		return nil, fmt.Errorf("创建发布失败: %w", err)
	}

	m.logger.Info("发布已创建",
		zap.Int64("rollout_id", rollout.ID),
		zap.String("version", rollout.ReleaseVersion),
		zap.Int("stages", len(rollout.Stages)))
	m.event(ctx, rollout.ID, nil, nil, constants.EventRolloutCreated,
		fmt.Sprintf("创建发布 %s, 共 %d 个阶段", rollout.ReleaseVersion, len(rollout.Stages)),
		map[string]interface{}{
			"created_by": rollout.CreatedBy,
			"groups":     lo.Map(groups, func(g model.UpdateGroup, _ int) string { return g.Name }),
		})
	return rollout, nil
}

// StartRollout pending/paused -> in_progress, 无进行中阶段时启动优先级最高的 pending 阶段
func (m *Manager) StartRollout(ctx context.Context, rolloutID int64, operator string) (*model.Rollout, error) {
	ctx = detach(ctx)
	r, err := m.store.GetRollout(ctx, rolloutID)
	if err != nil {
		return nil, err
	}

	from := r.Status
	fields := map[string]interface{}{}
	if r.StartedAt == nil {
		now := m.opts.Now()
		fields["started_at"] = now
		r.StartedAt = &now
	}
	if err := m.changeStatus(ctx, r, constants.RolloutStatusInProgress, SourceOutside, fields); err != nil {
		return nil, err
	}

	m.event(ctx, r.ID, nil, nil, constants.EventRolloutStarted, "发布开始",
		map[string]interface{}{"operator": operator, "from": from})
	m.notify(ctx, r, notification.NotifyRolloutStart, fmt.Sprintf("操作人: %s", operator))

	stages, err := m.store.ListStages(ctx, r.ID)
	if err != nil {
		return r, fmt.Errorf("查询阶段失败: %w", err)
	}
	if _, active := findStage(stages, constants.StageStatusInProgress); active {
		return r, nil
	}
	if err := m.advance(ctx, r, stages, SourceOutside); err != nil {
		return r, err
	}
	return r, nil
}

// PauseRollout in_progress -> paused, 已下发的指令不撤回
func (m *Manager) PauseRollout(ctx context.Context, rolloutID int64, operator string) (*model.Rollout, error) {
	r, err := m.store.GetRollout(ctx, rolloutID)
	if err != nil {
		return nil, err
	}
	if r.Status != constants.RolloutStatusInProgress {
		return nil, pkgErrors.InvalidTransition("发布 %d 当前状态 %s, 仅发布中可暂停", r.ID, r.Status)
	}
	if err := m.changeStatus(ctx, r, constants.RolloutStatusPaused, SourceOutside, nil); err != nil {
		return nil, err
	}
	m.event(ctx, r.ID, nil, nil, constants.EventRolloutPaused, "发布已暂停",
		map[string]interface{}{"operator": operator})
	return r, nil
}

// ResumeRollout paused -> in_progress
func (m *Manager) ResumeRollout(ctx context.Context, rolloutID int64, operator string) (*model.Rollout, error) {
	r, err := m.store.GetRollout(ctx, rolloutID)
	if err != nil {
		return nil, err
	}
	if r.Status != constants.RolloutStatusPaused {
		return nil, pkgErrors.InvalidTransition("发布 %d 当前状态 %s, 仅暂停中可恢复", r.ID, r.Status)
	}
	if err := m.changeStatus(ctx, r, constants.RolloutStatusInProgress, SourceOutside, nil); err != nil {
		return nil, err
	}
	m.event(ctx, r.ID, nil, nil, constants.EventRolloutResumed, "发布已恢复",
		map[string]interface{}{"operator": operator})
	return r, nil
}

// PromoteStage 将 in_progress/completed 阶段标记完成, 启动下一阶段或完成发布
func (m *Manager) PromoteStage(ctx context.Context, rolloutID, stageID int64, operator string) (*model.Rollout, error) {
	ctx = detach(ctx)
	r, err := m.store.GetRollout(ctx, rolloutID)
	if err != nil {
		return nil, err
	}
	stage, err := m.store.GetStage(ctx, stageID)
	if err != nil {
		return nil, err
	}
	if stage.RolloutID != r.ID {
		return nil, pkgErrors.NotFound("发布 %d 不存在阶段 %d", r.ID, stageID)
	}
	if err := m.promote(ctx, r, stage, operator, SourceOutside); err != nil {
		return r, err
	}
	return r, nil
}

func (m *Manager) promote(ctx context.Context, r *model.Rollout, stage *model.RolloutStage, operator string, source int8) error {
	if r.Status != constants.RolloutStatusInProgress {
		return pkgErrors.InvalidTransition("发布 %d 当前状态 %s, 不允许晋级", r.ID, r.Status)
	}

	switch stage.Status {
	case constants.StageStatusInProgress:
		now := m.opts.Now()
		ok, err := m.store.UpdateStageStatus(ctx, stage.ID,
			[]string{constants.StageStatusInProgress}, constants.StageStatusCompleted,
			map[string]interface{}{"completed_at": now, "status_reason": "已晋级"})
		if err != nil {
			return fmt.Errorf("更新阶段状态失败: %w", err)
		}
		if !ok {
			return pkgErrors.InvalidTransition("阶段 %d 状态已变更, 请刷新后重试", stage.ID)
		}
		stage.Status = constants.StageStatusCompleted
		stage.CompletedAt = &now
	case constants.StageStatusCompleted:
	default:
		return pkgErrors.InvalidTransition("阶段 %d 当前状态 %s, 不允许晋级", stage.ID, stage.Status)
	}

	m.logger.Info("阶段已晋级",
		zap.Int64("rollout_id", r.ID),
		zap.Int64("stage_id", stage.ID),
		zap.String("group", stage.GroupName),
		zap.String("operator", operator))
	m.event(ctx, r.ID, &stage.ID, nil, constants.EventStagePromoted,
		fmt.Sprintf("阶段 %s 已晋级", stage.GroupName),
		map[string]interface{}{
			"operator":          operator,
			"completed_devices": stage.CompletedDevices,
			"failed_devices":    stage.FailedDevices,
			"total_devices":     stage.TotalDevices,
		})
	m.notify(ctx, r, notification.NotifyStagePromoted, fmt.Sprintf("阶段 %s 已晋级, 操作人: %s", stage.GroupName, operator))

	stages, err := m.store.ListStages(ctx, r.ID)
	if err != nil {
		return fmt.Errorf("查询阶段失败: %w", err)
	}
	return m.advance(ctx, r, stages, source)
}

// advance 启动下一个 pending 阶段, 无剩余阶段时完成发布; 下一阶段无法启动时发布进入 failed
func (m *Manager) advance(ctx context.Context, r *model.Rollout, stages []model.RolloutStage, source int8) error {
	if active, ok := findStage(stages, constants.StageStatusInProgress); ok {
		return pkgErrors.InvalidTransition("阶段 %s 仍在进行中", active.GroupName)
	}

	next, ok := findStage(stages, constants.StageStatusPending)
	if !ok {
		return m.completeRollout(ctx, r, source)
	}

	if err := m.startStage(ctx, r, next); err != nil {
		reason := fmt.Sprintf("阶段 %s 启动失败: %v", next.GroupName, err)
		if ferr := m.failRollout(ctx, r, reason); ferr != nil {
			m.logger.Error("标记发布失败出错", zap.Int64("rollout_id", r.ID), zap.Error(ferr))
		}
		return err
	}
	return nil
}

// RollbackRollout 回滚发布: 跳过未结束阶段, 对已完成设备下发高优先级回滚指令
func (m *Manager) RollbackRollout(ctx context.Context, rolloutID int64, reason, operator string) (*model.Rollout, error) {
	ctx = detach(ctx)
	r, err := m.store.GetRollout(ctx, rolloutID)
	if err != nil {
		return nil, err
	}
	if err := m.rollback(ctx, r, reason, operator, SourceOutside); err != nil {
		return nil, err
	}
	return r, nil
}

func (m *Manager) rollback(ctx context.Context, r *model.Rollout, reason, operator string, source int8) error {
	now := m.opts.Now()
	if err := m.changeStatus(ctx, r, constants.RolloutStatusRolledBack, source,
		map[string]interface{}{"reason": reason, "completed_at": now}); err != nil {
		return err
	}
	r.Reason = &reason
	r.CompletedAt = &now

	skipped, err := m.store.UpdateStagesStatus(ctx, r.ID,
		[]string{constants.StageStatusPending, constants.StageStatusInProgress}, constants.StageStatusSkipped,
		map[string]interface{}{"completed_at": now, "status_reason": "发布已回滚"})
	if err != nil {
		m.logger.Error("跳过剩余阶段失败", zap.Int64("rollout_id", r.ID), zap.Error(err))
	}

	devices, err := m.store.ListRolloutDevices(ctx, r.ID, []string{constants.DeviceStatusCompleted})
	if err != nil {
		m.logger.Error("查询已完成设备失败", zap.Int64("rollout_id", r.ID), zap.Error(err))
	}
	rolledBack, failed := m.dispatchRollbacks(ctx, r, devices)

	m.logger.Warn("发布已回滚",
		zap.Int64("rollout_id", r.ID),
		zap.String("reason", reason),
		zap.String("operator", operator),
		zap.Int64("skipped_stages", skipped),
		zap.Int("rolled_back_devices", rolledBack),
		zap.Int("failed_devices", failed))
	m.event(ctx, r.ID, nil, nil, constants.EventRolloutRolledBack, reason,
		map[string]interface{}{
			"operator":            operator,
			"skipped_stages":      skipped,
			"rolled_back_devices": rolledBack,
			"dispatch_failures":   failed,
		})
	m.notify(ctx, r, notification.NotifyRolloutRolledBack, reason)
	return nil
}

func (m *Manager) completeRollout(ctx context.Context, r *model.Rollout, source int8) error {
	now := m.opts.Now()
	if err := m.changeStatus(ctx, r, constants.RolloutStatusCompleted, source,
		map[string]interface{}{"completed_at": now}); err != nil {
		return err
	}
	r.CompletedAt = &now

	m.logger.Info("发布已完成", zap.Int64("rollout_id", r.ID), zap.String("version", r.ReleaseVersion))
	m.event(ctx, r.ID, nil, nil, constants.EventRolloutCompleted, "全部阶段已完成", nil)
	m.notify(ctx, r, notification.NotifyRolloutComplete, "全部阶段已完成")
	return nil
}

func (m *Manager) failRollout(ctx context.Context, r *model.Rollout, reason string) error {
	if err := m.changeStatus(ctx, r, constants.RolloutStatusFailed, SourceInside,
		map[string]interface{}{"reason": reason}); err != nil {
		return err
	}
	r.Reason = &reason

	m.logger.Error("发布失败", zap.Int64("rollout_id", r.ID), zap.String("reason", reason))
	m.event(ctx, r.ID, nil, nil, constants.EventRolloutFailed, reason, nil)
	m.notify(ctx, r, notification.NotifyRolloutFailed, reason)
	return nil
}

// detach 状态变更与设备下发一旦开始就不随调用方取消而中断
func detach(ctx context.Context) context.Context {
	return context.WithoutCancel(ctx)
}

// changeStatus 校验流转表后做乐观锁更新
func (m *Manager) changeStatus(ctx context.Context, r *model.Rollout, to string, source int8, fields map[string]interface{}) error {
	from := r.Status
	if !m.transitions.canTransition(from, to, source) {
		return pkgErrors.InvalidTransition("发布 %d 当前状态 %s 不允许转换到 %s", r.ID, from, to)
	}

	ok, err := m.store.UpdateRolloutStatus(ctx, r.ID, []string{from}, to, fields)
	if err != nil {
		return fmt.Errorf("更新发布状态失败: %w", err)
	}
	if !ok {
		return pkgErrors.InvalidTransition("发布 %d 状态已变更, 请刷新后重试", r.ID)
	}

	r.Status = to
	m.metrics.IncRolloutTransition(from, to)
	m.logger.Info(fmt.Sprintf("[Rollout: %d] 状态变更成功: %s -> %s", r.ID, from, to))
	return nil
}

// event 追加审计事件, 写入失败只记录日志
func (m *Manager) event(ctx context.Context, rolloutID int64, stageID, deviceID *int64, eventType, message string, metadata map[string]interface{}) {
	evt := &model.RolloutEvent{
		RolloutID: rolloutID,
		StageID:   stageID,
		DeviceID:  deviceID,
		EventType: eventType,
		Message:   message,
		Metadata:  metadata,
		CreatedAt: m.opts.Now(),
	}
	if err := m.store.AppendEvent(ctx, evt); err != nil {
		m.logger.Error("写入发布事件失败",
			zap.Int64("rollout_id", rolloutID),
			zap.String("event_type", eventType),
			zap.Error(err))
	}
}

func (m *Manager) notify(ctx context.Context, r *model.Rollout, notifyType notification.NotificationType, message string) {
	if err := m.notifier.SendRolloutNotification(ctx, r, notifyType, message); err != nil {
		m.logger.Warn("发送发布通知失败", zap.Int64("rollout_id", r.ID), zap.Error(err))
	}
}

// findStage 按优先级顺序返回第一个指定状态的阶段, stages 需已排序
func findStage(stages []model.RolloutStage, status string) (*model.RolloutStage, bool) {
	for i := range stages {
		if stages[i].Status == status {
			return &stages[i], true
		}
	}
	return nil, false
}
