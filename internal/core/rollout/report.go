package rollout

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"fleet-rollout/internal/model"
	"fleet-rollout/pkg/constants"
	pkgErrors "fleet-rollout/pkg/errors"
)

// HandleDeviceUpdateResult 处理 Agent 上报的最终结果, 是设备终态与阶段计数器的唯一写入方
// 重复上报(至少一次投递)为幂等空操作
func (m *Manager) HandleDeviceUpdateResult(ctx context.Context, deviceID, rolloutID int64, success bool, errMsg string) error {
	ctx = detach(ctx)
	if _, err := m.store.GetRollout(ctx, rolloutID); err != nil {
		return err
	}
	rd, err := m.store.GetRolloutDevice(ctx, rolloutID, deviceID)
	if err != nil {
		return err
	}

	if constants.IsDeviceTerminal(rd.Status) {
		m.logger.Debug("忽略重复上报",
			zap.Int64("rollout_id", rolloutID),
			zap.Int64("device_id", deviceID),
			zap.String("status", rd.Status))
		return nil
	}

	applied, err := m.recordResult(ctx, rd, success, errMsg)
	if err != nil || !applied || !success {
		return err
	}

	// 结果提交后再读状态: 回滚流程若在此之前列出已完成设备, 本设备不在其中, 由这里补发
	r, err := m.store.GetRollout(ctx, rolloutID)
	if err != nil {
		return err
	}
	if r.Status == constants.RolloutStatusRolledBack {
		m.logger.Warn("回滚后收到成功上报, 补发回滚指令",
			zap.Int64("rollout_id", rolloutID),
			zap.Int64("device_id", deviceID))
		m.event(ctx, r.ID, &rd.StageID, &rd.DeviceID, constants.EventDeviceLateCompletion,
			"发布已回滚, 设备完成升级后补发回滚指令",
			map[string]interface{}{"from_version": rd.FromVersion, "to_version": rd.ToVersion})
		if err := m.rollbackDevice(ctx, r, rd); err != nil {
			return err
		}
	}
	return nil
}

// recordResult 记录设备终态并更新阶段计数器, 返回是否实际生效
func (m *Manager) recordResult(ctx context.Context, rd *model.RolloutDevice, success bool, errMsg string) (bool, error) {
	status := constants.DeviceStatusFailed
	var errPtr *string
	if success {
		status = constants.DeviceStatusCompleted
	} else if errMsg != "" {
		errPtr = &errMsg
	}

	now := m.opts.Now()
	applied, err := m.store.RecordDeviceResult(ctx, rd, status, errPtr, now)
	if err != nil {
		return false, fmt.Errorf("记录设备结果失败: %w", err)
	}
	if !applied {
		return false, nil
	}
	rd.Status = status
	rd.Error = errPtr
	rd.FinishedAt = &now
	m.metrics.IncDeviceResult(status)

	eventType, message := constants.EventDeviceCompleted, fmt.Sprintf("升级到 %s 成功", rd.ToVersion)
	if !success {
		eventType, message = constants.EventDeviceFailed, fmt.Sprintf("升级到 %s 失败: %s", rd.ToVersion, errMsg)
	}
	m.event(ctx, rd.RolloutID, &rd.StageID, &rd.DeviceID, eventType, message, nil)
	return true, nil
}

// HandleDeviceProgress 处理中间进度(downloading/installing), 只前进不后退, 不影响计数器
func (m *Manager) HandleDeviceProgress(ctx context.Context, deviceID, rolloutID int64, status string) error {
	rank := constants.DeviceProgressRank(status)
	if rank <= 0 {
		return pkgErrors.Newf(pkgErrors.CodeBadRequest, "无效的进度状态: %s", status)
	}

	rd, err := m.store.GetRolloutDevice(ctx, rolloutID, deviceID)
	if err != nil {
		return err
	}
	if constants.IsDeviceTerminal(rd.Status) || rank <= constants.DeviceProgressRank(rd.Status) {
		return nil
	}

	ok, err := m.store.UpdateRolloutDeviceStatus(ctx, rd.ID, []string{rd.Status}, status, nil)
	if err != nil {
		return fmt.Errorf("更新设备进度失败: %w", err)
	}
	if ok {
		m.logger.Debug("设备进度更新",
			zap.Int64("rollout_id", rolloutID),
			zap.Int64("device_id", deviceID),
			zap.String("from", rd.Status),
			zap.String("to", status))
	}
	return nil
}
