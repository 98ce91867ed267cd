package rollout

import (
	"context"
	"fmt"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"fleet-rollout/internal/model"
	"fleet-rollout/pkg/constants"
)

// Monitor 周期性评估全部进行中发布的当前阶段, 按结论回滚或晋级
type Monitor struct {
	manager *Manager
	logger  *zap.Logger
}

// NewMonitor 创建监控
func NewMonitor(manager *Manager, logger *zap.Logger) *Monitor {
	return &Monitor{manager: manager, logger: logger}
}

// Scan 单次扫描, 单个发布的错误(含 panic)不影响其它发布
func (mon *Monitor) Scan(ctx context.Context) {
	rollouts, err := mon.manager.store.ListRolloutsByStatus(ctx, constants.RolloutStatusInProgress)
	if err != nil {
		mon.logger.Error(fmt.Sprintf("[RolloutMonitor] 查询发布失败: %v", err))
		return
	}

	ids := lo.Map(rollouts, func(r model.Rollout, _ int) int64 { return r.ID })
	mon.logger.Debug(fmt.Sprintf("[RolloutMonitor] 待评估的发布 %v个: %v", len(rollouts), ids))

	for i := range rollouts {
		if ctx.Err() != nil {
			return
		}
		mon.safeCheck(ctx, &rollouts[i])
	}
}

func (mon *Monitor) safeCheck(ctx context.Context, r *model.Rollout) {
	defer func() {
		if rec := recover(); rec != nil {
			mon.logger.Error("[RolloutMonitor] 评估发布 panic",
				zap.Int64("rollout_id", r.ID),
				zap.Any("panic", rec),
				zap.Stack("stack"))
		}
	}()

	if err := mon.Check(ctx, r); err != nil {
		mon.logger.Error("[RolloutMonitor] 评估发布失败",
			zap.Int64("rollout_id", r.ID),
			zap.Error(err))
		mon.manager.event(ctx, r.ID, nil, nil, constants.EventEvaluateFailed, err.Error(), nil)
	}
}

// Check 评估单个发布
func (mon *Monitor) Check(ctx context.Context, r *model.Rollout) error {
	m := mon.manager
	stages, err := m.store.ListStages(ctx, r.ID)
	if err != nil {
		return fmt.Errorf("查询阶段失败: %w", err)
	}

	current, ok := findStage(stages, constants.StageStatusInProgress)
	if !ok {
		return mon.reconcile(ctx, r, stages)
	}

	group, err := m.store.GetUpdateGroup(ctx, current.GroupID)
	if err != nil {
		return fmt.Errorf("查询更新组失败: %w", err)
	}

	eval := Evaluate(CountersOf(current), PolicyFromGroup(group), m.elapsed(current))
	decision := eval.Decision()
	m.metrics.IncStageDecision(string(decision))

	log := mon.logger.With(
		zap.Int64("rollout_id", r.ID),
		zap.Int64("stage_id", current.ID),
		zap.String("group", current.GroupName))

	switch decision {
	case DecisionRollback:
		log.Warn("阶段失败率超限, 自动回滚", zap.String("reason", eval.Reason))
		now := m.opts.Now()
		if _, err := m.store.UpdateStageStatus(ctx, current.ID,
			[]string{constants.StageStatusInProgress}, constants.StageStatusFailed,
			map[string]interface{}{"completed_at": now, "status_reason": eval.Reason, "last_evaluated_at": now}); err != nil {
			return fmt.Errorf("标记阶段失败出错: %w", err)
		}
		m.event(ctx, r.ID, &current.ID, nil, constants.EventStageFailed, eval.Reason, evaluationMetadata(eval))
		m.event(ctx, r.ID, &current.ID, nil, constants.EventAutoRollback, eval.Reason, nil)
		return m.rollback(ctx, r, fmt.Sprintf("阶段 %s 自动回滚: %s", current.GroupName, eval.Reason), OperatorSystem, SourceInside)

	case DecisionPromote:
		log.Info("阶段满足条件, 自动晋级", zap.String("reason", eval.Reason))
		m.event(ctx, r.ID, &current.ID, nil, constants.EventAutoPromote, eval.Reason, evaluationMetadata(eval))
		return m.promote(ctx, r, current, OperatorSystem, SourceInside)

	default:
		log.Debug("阶段等待中", zap.String("reason", eval.Reason))
		return m.store.UpdateStageFields(ctx, current.ID, map[string]interface{}{
			"status_reason":     eval.Reason,
			"last_evaluated_at": m.opts.Now(),
		})
	}
}

// reconcile 无进行中阶段时收敛发布状态
func (mon *Monitor) reconcile(ctx context.Context, r *model.Rollout, stages []model.RolloutStage) error {
	m := mon.manager

	allDone := lo.EveryBy(stages, func(s model.RolloutStage) bool {
		return s.Status == constants.StageStatusCompleted || s.Status == constants.StageStatusSkipped
	})
	if allDone {
		return m.completeRollout(ctx, r, SourceInside)
	}

	// 阶段已标记失败但回滚未完成(进程中断)
	if failed, ok := findStage(stages, constants.StageStatusFailed); ok {
		reason := failed.StatusReason
		if reason == "" {
			reason = fmt.Sprintf("阶段 %s 已失败", failed.GroupName)
		}
		return m.rollback(ctx, r, reason, OperatorSystem, SourceInside)
	}

	// 晋级后下一阶段未能启动(进程中断)
	return m.advance(ctx, r, stages, SourceInside)
}

func evaluationMetadata(e Evaluation) map[string]interface{} {
	return map[string]interface{}{
		"completion_rate": e.CompletionRate,
		"success_rate":    e.SuccessRate,
		"failure_rate":    e.FailureRate,
		"responded":       e.Responded,
	}
}
