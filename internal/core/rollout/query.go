package rollout

import (
	"context"
	"time"

	"fleet-rollout/internal/dto"
	"fleet-rollout/internal/model"
	"fleet-rollout/pkg/constants"
)

func (m *Manager) GetRollout(ctx context.Context, rolloutID int64) (*model.Rollout, error) {
	return m.store.GetRollout(ctx, rolloutID)
}

func (m *Manager) ListRollouts(ctx context.Context, param dto.RolloutListParam) ([]model.Rollout, int64, error) {
	return m.store.ListRollouts(ctx, param)
}

// ListEvents 按时间倒序返回审计事件
func (m *Manager) ListEvents(ctx context.Context, rolloutID int64, limit int) ([]model.RolloutEvent, error) {
	if _, err := m.store.GetRollout(ctx, rolloutID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 100
	}
	return m.store.ListEvents(ctx, rolloutID, limit)
}

func (m *Manager) ListRolloutDevices(ctx context.Context, rolloutID int64, statuses []string) ([]model.RolloutDevice, error) {
	if _, err := m.store.GetRollout(ctx, rolloutID); err != nil {
		return nil, err
	}
	return m.store.ListRolloutDevices(ctx, rolloutID, statuses)
}

// EvaluateRollout 发布详情, 进行中阶段附带当前评估结果
func (m *Manager) EvaluateRollout(ctx context.Context, rolloutID int64) (*dto.RolloutDetailDTO, error) {
	r, err := m.store.GetRollout(ctx, rolloutID)
	if err != nil {
		return nil, err
	}
	stages, err := m.store.ListStages(ctx, rolloutID)
	if err != nil {
		return nil, err
	}

	detail := &dto.RolloutDetailDTO{Rollout: *r, Stages: make([]dto.StageDTO, 0, len(stages))}
	detail.Rollout.Stages = nil
	for _, stage := range stages {
		item := dto.StageDTO{RolloutStage: stage}
		if stage.Status == constants.StageStatusInProgress {
			group, err := m.store.GetUpdateGroup(ctx, stage.GroupID)
			if err != nil {
				return nil, err
			}
			eval := Evaluate(CountersOf(&stage), PolicyFromGroup(group), m.elapsed(&stage))
			item.Evaluation = toEvaluationDTO(eval)
		}
		detail.Stages = append(detail.Stages, item)
	}
	return detail, nil
}

func (m *Manager) elapsed(stage *model.RolloutStage) time.Duration {
	if stage.StartedAt == nil {
		return 0
	}
	return m.opts.Now().Sub(*stage.StartedAt)
}

func toEvaluationDTO(e Evaluation) *dto.StageEvaluationDTO {
	return &dto.StageEvaluationDTO{
		CompletionRate:       e.CompletionRate,
		SuccessRate:          e.SuccessRate,
		FailureRate:          e.FailureRate,
		WaitRemainingSeconds: int64(e.WaitRemaining.Seconds()),
		ShouldRollback:       e.ShouldRollback,
		CanAutoPromote:       e.CanAutoPromote,
		Reason:               e.Reason,
	}
}
