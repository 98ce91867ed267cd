package rollout

import (
	"context"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"fleet-rollout/internal/model"
	"fleet-rollout/pkg/constants"
	pkgErrors "fleet-rollout/pkg/errors"
)

// startStage 激活阶段并向组内当前全部设备下发升级指令, 不等待设备确认
func (m *Manager) startStage(ctx context.Context, r *model.Rollout, stage *model.RolloutStage) error {
	now := m.opts.Now()
	ok, err := m.store.ActivateStage(ctx, r.ID, stage.ID, now)
	if err != nil {
		return fmt.Errorf("激活阶段失败: %w", err)
	}
	if !ok {
		return pkgErrors.InvalidTransition("阶段 %s 当前不可启动", stage.GroupName)
	}
	stage.Status = constants.StageStatusInProgress
	stage.StartedAt = &now

	devices, err := m.store.DevicesInGroup(ctx, stage.GroupID)
	if err != nil {
		return fmt.Errorf("查询更新组设备失败: %w", err)
	}

	dispatched, failed, skipped := m.dispatchUpdates(ctx, r, stage, devices)

	m.logger.Info("阶段已启动",
		zap.Int64("rollout_id", r.ID),
		zap.Int64("stage_id", stage.ID),
		zap.String("group", stage.GroupName),
		zap.Int("devices", len(devices)),
		zap.Int64("dispatched", dispatched),
		zap.Int64("failed", failed))
	m.event(ctx, r.ID, &stage.ID, nil, constants.EventStageStarted,
		fmt.Sprintf("阶段 %s 已启动, 下发 %d 台设备", stage.GroupName, dispatched),
		map[string]interface{}{
			"devices":    len(devices),
			"dispatched": dispatched,
			"failed":     failed,
			"skipped":    skipped,
		})
	return nil
}

// dispatchUpdates 有界并发下发; 单台下发失败按设备失败结果计入阶段
func (m *Manager) dispatchUpdates(ctx context.Context, r *model.Rollout, stage *model.RolloutStage, devices []model.Device) (dispatched, failed, skipped int64) {
	var g errgroup.Group
	g.SetLimit(m.opts.DispatchConcurrency)

	for i := range devices {
		device := devices[i]
		g.Go(func() error {
			rd := &model.RolloutDevice{
				RolloutID:   r.ID,
				StageID:     stage.ID,
				DeviceID:    device.ID,
				AgentID:     device.AgentID,
				Status:      constants.DeviceStatusPending,
				FromVersion: device.AgentVersion,
				ToVersion:   r.ReleaseVersion,
			}
			created, err := m.store.CreateRolloutDevice(ctx, rd)
			if err != nil {
				atomic.AddInt64(&failed, 1)
				m.logger.Error("创建发布设备记录失败",
					zap.Int64("rollout_id", r.ID),
					zap.Int64("device_id", device.ID),
					zap.Error(err))
				return nil
			}
			if !created {
				// 设备在本次发布中已有记录(中途换组)
				atomic.AddInt64(&skipped, 1)
				return nil
			}

			cmd := Command{
				Type: constants.CommandTypeUpdateAgent,
				Payload: UpdatePayload{
					Type:            constants.CommandTypeUpdateAgent,
					RolloutID:       r.ID,
					StageID:         stage.ID,
					RolloutDeviceID: rd.ID,
					Version:         r.ReleaseVersion,
					DownloadURL:     r.DownloadURL,
					Checksum:        r.Checksum,
				},
			}
			handle, err := m.agents.SendCommand(ctx, device.ID, cmd, SendOptions{
				QueueIfOffline:   true,
				Priority:         constants.PriorityNormal,
				ExpiresInMinutes: constants.UpdateCommandExpireMinutes,
			})
			if err != nil {
				atomic.AddInt64(&failed, 1)
				m.metrics.IncDispatch(constants.CommandTypeUpdateAgent, "failed")
				derr := pkgErrors.Wrap(pkgErrors.CodeDeliveryFailure, "升级指令下发失败", err)
				m.event(ctx, r.ID, &stage.ID, &device.ID, constants.EventDeviceDispatchFailed, derr.Error(), nil)
				if _, rerr := m.recordResult(ctx, rd, false, derr.Error()); rerr != nil {
					m.logger.Error("记录下发失败结果出错", zap.Int64("device_id", device.ID), zap.Error(rerr))
				}
				return nil
			}

			atomic.AddInt64(&dispatched, 1)
			m.metrics.IncDispatch(constants.CommandTypeUpdateAgent, dispatchResult(handle))
			if err := m.store.UpdateRolloutDeviceFields(ctx, rd.ID,
				map[string]interface{}{"dispatched_at": m.opts.Now()}); err != nil {
				m.logger.Warn("记录下发时间失败", zap.Int64("rollout_device_id", rd.ID), zap.Error(err))
			}
			return nil
		})
	}
	_ = g.Wait()
	return dispatched, failed, skipped
}

// dispatchRollbacks 对已完成设备下发回滚指令并标记 rolled_back, 返回成功与失败数
func (m *Manager) dispatchRollbacks(ctx context.Context, r *model.Rollout, devices []model.RolloutDevice) (int, int) {
	var rolledBack, failed int64
	var g errgroup.Group
	g.SetLimit(m.opts.DispatchConcurrency)

	for i := range devices {
		rd := devices[i]
		g.Go(func() error {
			if err := m.rollbackDevice(ctx, r, &rd); err != nil {
				atomic.AddInt64(&failed, 1)
				return nil
			}
			atomic.AddInt64(&rolledBack, 1)
			return nil
		})
	}
	_ = g.Wait()
	return int(rolledBack), int(failed)
}

// rollbackDevice 先以 CAS 认领 completed -> rolled_back, 认领成功才下发回滚到 fromVersion 的指令(离线暂存, 短过期)
// 回滚流程与迟到上报并发时同一设备只下发一次; 下发失败则退回 completed
func (m *Manager) rollbackDevice(ctx context.Context, r *model.Rollout, rd *model.RolloutDevice) error {
	claimed, err := m.store.UpdateRolloutDeviceStatus(ctx, rd.ID,
		[]string{constants.DeviceStatusCompleted}, constants.DeviceStatusRolledBack,
		map[string]interface{}{"finished_at": m.opts.Now()})
	if err != nil {
		return fmt.Errorf("更新设备回滚状态失败: %w", err)
	}
	if !claimed {
		return nil
	}

	cmd := Command{
		Type: constants.CommandTypeRollbackAgent,
		Payload: RollbackPayload{
			Type:            constants.CommandTypeRollbackAgent,
			RolloutID:       r.ID,
			RolloutDeviceID: rd.ID,
			TargetVersion:   rd.FromVersion,
		},
	}
	handle, err := m.agents.SendCommand(ctx, rd.DeviceID, cmd, SendOptions{
		QueueIfOffline:   true,
		Priority:         constants.PriorityHigh,
		ExpiresInMinutes: constants.RollbackCommandExpireMinutes,
	})
	if err != nil {
		m.metrics.IncDispatch(constants.CommandTypeRollbackAgent, "failed")
		derr := pkgErrors.Wrap(pkgErrors.CodeDeliveryFailure, "回滚指令下发失败", err)
		m.logger.Error("回滚指令下发失败",
			zap.Int64("rollout_id", r.ID),
			zap.Int64("device_id", rd.DeviceID),
			zap.Error(err))
		if _, rerr := m.store.UpdateRolloutDeviceStatus(ctx, rd.ID,
			[]string{constants.DeviceStatusRolledBack}, constants.DeviceStatusCompleted,
			map[string]interface{}{"finished_at": rd.FinishedAt}); rerr != nil {
			m.logger.Error("退回设备状态失败", zap.Int64("rollout_device_id", rd.ID), zap.Error(rerr))
		}
		m.event(ctx, r.ID, &rd.StageID, &rd.DeviceID, constants.EventDeviceDispatchFailed, derr.Error(), nil)
		return derr
	}
	m.metrics.IncDispatch(constants.CommandTypeRollbackAgent, dispatchResult(handle))

	rd.Status = constants.DeviceStatusRolledBack
	m.metrics.IncDeviceResult(constants.DeviceStatusRolledBack)
	m.event(ctx, r.ID, &rd.StageID, &rd.DeviceID, constants.EventDeviceRolledBack,
		fmt.Sprintf("回滚到 %s", rd.FromVersion), map[string]interface{}{"queued": handle != nil && handle.Queued})
	return nil
}

func dispatchResult(handle *CommandHandle) string {
	if handle != nil && handle.Queued {
		return "queued"
	}
	return "sent"
}
