package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"fleet-rollout/internal/model"
)

// DeviceRepository 设备数据访问层
type DeviceRepository struct {
	db *gorm.DB
}

// NewDeviceRepository 创建设备Repository
func NewDeviceRepository(db *gorm.DB) *DeviceRepository {
	return &DeviceRepository{
		db: db,
	}
}

// Create 创建设备
func (r *DeviceRepository) Create(ctx context.Context, device *model.Device) error {
	return r.db.WithContext(ctx).Create(device).Error
}

// GetByID 根据ID获取设备
func (r *DeviceRepository) GetByID(ctx context.Context, id int64) (*model.Device, error) {
	var device model.Device
	if err := r.db.WithContext(ctx).First(&device, id).Error; err != nil {
		return nil, notFound(err, "设备 %d 不存在", id)
	}
	return &device, nil
}

// GetByUUID 根据指令通道中的设备标识获取设备
func (r *DeviceRepository) GetByUUID(ctx context.Context, id uuid.UUID) (*model.Device, error) {
	var device model.Device
	if err := r.db.WithContext(ctx).Where("uuid = ?", id).First(&device).Error; err != nil {
		return nil, notFound(err, "设备 %s 不存在", id)
	}
	return &device, nil
}

// GetByAgentID 根据 AgentID 获取设备
func (r *DeviceRepository) GetByAgentID(ctx context.Context, agentID string) (*model.Device, error) {
	var device model.Device
	if err := r.db.WithContext(ctx).Where("agent_id = ?", agentID).First(&device).Error; err != nil {
		return nil, notFound(err, "Agent %s 不存在", agentID)
	}
	return &device, nil
}

// ListByGroup 组内当前成员
func (r *DeviceRepository) ListByGroup(ctx context.Context, groupID int64) ([]model.Device, error) {
	var devices []model.Device
	err := r.db.WithContext(ctx).Where("update_group_id = ?", groupID).Order("id ASC").Find(&devices).Error
	return devices, err
}

// CountByGroup 组内当前成员数
func (r *DeviceRepository) CountByGroup(ctx context.Context, groupID int64) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.Device{}).Where("update_group_id = ?", groupID).Count(&count).Error
	return count, err
}

// AssignGroup 调整设备所属更新组, groupID 为 nil 时移出分组
func (r *DeviceRepository) AssignGroup(ctx context.Context, deviceID int64, groupID *int64) error {
	if _, err := r.GetByID(ctx, deviceID); err != nil {
		return err
	}
	return r.db.WithContext(ctx).Model(&model.Device{}).Where("id = ?", deviceID).
		Update("update_group_id", groupID).Error
}

// TouchLastSeen 记录 Agent 最近在线时间
func (r *DeviceRepository) TouchLastSeen(ctx context.Context, deviceID int64, now time.Time) error {
	return r.db.WithContext(ctx).Model(&model.Device{}).Where("id = ?", deviceID).
		Update("last_seen", now).Error
}
