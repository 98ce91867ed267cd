package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"fleet-rollout/internal/model"
)

// QueuedCommandRepository 离线指令数据访问层
type QueuedCommandRepository struct {
	db *gorm.DB
}

// NewQueuedCommandRepository 创建离线指令Repository
func NewQueuedCommandRepository(db *gorm.DB) *QueuedCommandRepository {
	return &QueuedCommandRepository{
		db: db,
	}
}

// Create 暂存指令
func (r *QueuedCommandRepository) Create(ctx context.Context, cmd *model.QueuedCommand) error {
	return r.db.WithContext(ctx).Create(cmd).Error
}

// ListDeliverable 设备待补发且未过期的指令, 高优先级在前
func (r *QueuedCommandRepository) ListDeliverable(ctx context.Context, deviceID int64, now time.Time) ([]model.QueuedCommand, error) {
	var cmds []model.QueuedCommand
	err := r.db.WithContext(ctx).
		Where("device_id = ? AND delivered_at IS NULL AND expires_at > ?", deviceID, now).
		Order("CASE priority WHEN 'high' THEN 0 ELSE 1 END, id ASC").
		Find(&cmds).Error
	return cmds, err
}

// MarkDelivered 标记已补发, 并发补发时仅一方命中
func (r *QueuedCommandRepository) MarkDelivered(ctx context.Context, id int64, now time.Time) (bool, error) {
	result := r.db.WithContext(ctx).Model(&model.QueuedCommand{}).
		Where("id = ? AND delivered_at IS NULL", id).
		Update("delivered_at", now)
	return result.RowsAffected > 0, result.Error
}

// GetByID 根据ID获取暂存指令
func (r *QueuedCommandRepository) GetByID(ctx context.Context, id int64) (*model.QueuedCommand, error) {
	var cmd model.QueuedCommand
	if err := r.db.WithContext(ctx).First(&cmd, id).Error; err != nil {
		return nil, notFound(err, "暂存指令 %d 不存在", id)
	}
	return &cmd, nil
}

// Requeue 补发后 Agent 又离线, 恢复为待补发; 过期时间保持不变
func (r *QueuedCommandRepository) Requeue(ctx context.Context, id int64) (bool, error) {
	result := r.db.WithContext(ctx).Model(&model.QueuedCommand{}).
		Where("id = ? AND delivered_at IS NOT NULL", id).
		Update("delivered_at", nil)
	return result.RowsAffected > 0, result.Error
}

// PurgeExpired 删除已过期的指令
func (r *QueuedCommandRepository) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Where("expires_at <= ?", now).Delete(&model.QueuedCommand{})
	return result.RowsAffected, result.Error
}
