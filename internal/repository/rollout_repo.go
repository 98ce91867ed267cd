package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"fleet-rollout/internal/dto"
	"fleet-rollout/internal/model"
	"fleet-rollout/pkg/constants"
)

// RolloutRepository 发布数据访问层, 实现 core/rollout.Store
type RolloutRepository struct {
	db      *gorm.DB
	groups  *UpdateGroupRepository
	devices *DeviceRepository
}

// NewRolloutRepository 创建发布Repository
func NewRolloutRepository(db *gorm.DB) *RolloutRepository {
	return &RolloutRepository{
		db:      db,
		groups:  NewUpdateGroupRepository(db),
		devices: NewDeviceRepository(db),
	}
}

// ================== 更新组/设备 ==================

func (r *RolloutRepository) ListUpdateGroups(ctx context.Context) ([]model.UpdateGroup, error) {
	return r.groups.List(ctx)
}

func (r *RolloutRepository) GetUpdateGroup(ctx context.Context, id int64) (*model.UpdateGroup, error) {
	return r.groups.GetByID(ctx, id)
}

func (r *RolloutRepository) CountDevicesInGroup(ctx context.Context, groupID int64) (int64, error) {
	return r.devices.CountByGroup(ctx, groupID)
}

func (r *RolloutRepository) DevicesInGroup(ctx context.Context, groupID int64) ([]model.Device, error) {
	return r.devices.ListByGroup(ctx, groupID)
}

// ================== Rollout ==================

// CreateRollout 创建发布及其阶段
func (r *RolloutRepository) CreateRollout(ctx context.Context, rollout *model.Rollout) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(rollout).Error
	})
}

// GetRollout 获取发布, 阶段按优先级排序
func (r *RolloutRepository) GetRollout(ctx context.Context, id int64) (*model.Rollout, error) {
	var rollout model.Rollout
	err := r.db.WithContext(ctx).
		Preload("Stages", func(db *gorm.DB) *gorm.DB { return db.Order("priority ASC, id ASC") }).
		First(&rollout, id).Error
	if err != nil {
		return nil, notFound(err, "发布 %d 不存在", id)
	}
	return &rollout, nil
}

// ListRollouts 分页查询发布列表
func (r *RolloutRepository) ListRollouts(ctx context.Context, param dto.RolloutListParam) ([]model.Rollout, int64, error) {
	var rollouts []model.Rollout
	var total int64

	applyFilters := func(query *gorm.DB) *gorm.DB {
		if len(param.Statuses) > 0 {
			query = query.Where("status IN ?", param.Statuses)
		}
		if param.ReleaseVersion != nil && *param.ReleaseVersion != "" {
			query = query.Where("release_version = ?", *param.ReleaseVersion)
		}
		if param.Keyword != nil && *param.Keyword != "" {
			query = query.Where("name LIKE ?", "%"+*param.Keyword+"%")
		}
		return query
	}

	db := r.db.WithContext(ctx)
	if err := applyFilters(db.Model(&model.Rollout{})).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (param.Page - 1) * param.PageSize
	err := applyFilters(db.Model(&model.Rollout{})).
		Order("id DESC").Limit(param.PageSize).Offset(offset).
		Find(&rollouts).Error
	return rollouts, total, err
}

// ListRolloutsByStatus 指定状态的全部发布
func (r *RolloutRepository) ListRolloutsByStatus(ctx context.Context, status string) ([]model.Rollout, error) {
	var rollouts []model.Rollout
	err := r.db.WithContext(ctx).Where("status = ?", status).Order("id ASC").Find(&rollouts).Error
	return rollouts, err
}

// UpdateRolloutStatus 乐观锁更新发布状态
func (r *RolloutRepository) UpdateRolloutStatus(ctx context.Context, id int64, from []string, to string, fields map[string]interface{}) (bool, error) {
	result := r.db.WithContext(ctx).Model(&model.Rollout{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(mergeStatus(to, fields))
	return result.RowsAffected > 0, result.Error
}

// ================== Stage ==================

func (r *RolloutRepository) GetStage(ctx context.Context, id int64) (*model.RolloutStage, error) {
	var stage model.RolloutStage
	if err := r.db.WithContext(ctx).First(&stage, id).Error; err != nil {
		return nil, notFound(err, "阶段 %d 不存在", id)
	}
	return &stage, nil
}

// ListStages 按优先级升序返回发布的全部阶段
func (r *RolloutRepository) ListStages(ctx context.Context, rolloutID int64) ([]model.RolloutStage, error) {
	var stages []model.RolloutStage
	err := r.db.WithContext(ctx).Where("rollout_id = ?", rolloutID).
		Order("priority ASC, id ASC").Find(&stages).Error
	return stages, err
}

// ActivateStage 锁定发布行后检查阶段顺序, 同一发布的阶段激活串行执行
func (r *RolloutRepository) ActivateStage(ctx context.Context, rolloutID, stageID int64, now time.Time) (bool, error) {
	activated := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rollout model.Rollout
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Select("id").First(&rollout, rolloutID).Error; err != nil {
			return notFound(err, "发布 %d 不存在", rolloutID)
		}

		var stage model.RolloutStage
		if err := tx.Where("id = ? AND rollout_id = ?", stageID, rolloutID).First(&stage).Error; err != nil {
			return notFound(err, "阶段 %d 不存在", stageID)
		}

		// 已有进行中阶段, 或存在更靠前的 pending 阶段
		var blocking int64
		err := tx.Model(&model.RolloutStage{}).
			Where("rollout_id = ? AND id <> ?", rolloutID, stageID).
			Where("status = ? OR (status = ? AND (priority < ? OR (priority = ? AND id < ?)))",
				constants.StageStatusInProgress,
				constants.StageStatusPending, stage.Priority, stage.Priority, stage.ID).
			Count(&blocking).Error
		if err != nil {
			return err
		}
		if blocking > 0 {
			return nil
		}

		result := tx.Model(&model.RolloutStage{}).
			Where("id = ? AND status = ?", stageID, constants.StageStatusPending).
			Updates(map[string]interface{}{"status": constants.StageStatusInProgress, "started_at": now})
		if result.Error != nil {
			return result.Error
		}
		activated = result.RowsAffected > 0
		return nil
	})
	return activated, err
}

// UpdateStageStatus 乐观锁更新阶段状态
func (r *RolloutRepository) UpdateStageStatus(ctx context.Context, id int64, from []string, to string, fields map[string]interface{}) (bool, error) {
	result := r.db.WithContext(ctx).Model(&model.RolloutStage{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(mergeStatus(to, fields))
	return result.RowsAffected > 0, result.Error
}

// UpdateStagesStatus 批量更新发布下指定状态的阶段
func (r *RolloutRepository) UpdateStagesStatus(ctx context.Context, rolloutID int64, from []string, to string, fields map[string]interface{}) (int64, error) {
	result := r.db.WithContext(ctx).Model(&model.RolloutStage{}).
		Where("rollout_id = ? AND status IN ?", rolloutID, from).
		Updates(mergeStatus(to, fields))
	return result.RowsAffected, result.Error
}

func (r *RolloutRepository) UpdateStageFields(ctx context.Context, id int64, fields map[string]interface{}) error {
	return r.db.WithContext(ctx).Model(&model.RolloutStage{}).Where("id = ?", id).Updates(fields).Error
}

// ================== RolloutDevice ==================

// CreateRolloutDevice (rollout_id, device_id) 唯一, 冲突时不写入
func (r *RolloutRepository) CreateRolloutDevice(ctx context.Context, rd *model.RolloutDevice) (bool, error) {
	result := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(rd)
	return result.RowsAffected > 0, result.Error
}

func (r *RolloutRepository) GetRolloutDevice(ctx context.Context, rolloutID, deviceID int64) (*model.RolloutDevice, error) {
	var rd model.RolloutDevice
	err := r.db.WithContext(ctx).Where("rollout_id = ? AND device_id = ?", rolloutID, deviceID).First(&rd).Error
	if err != nil {
		return nil, notFound(err, "设备 %d 不属于发布 %d", deviceID, rolloutID)
	}
	return &rd, nil
}

func (r *RolloutRepository) ListRolloutDevices(ctx context.Context, rolloutID int64, statuses []string) ([]model.RolloutDevice, error) {
	var devices []model.RolloutDevice
	query := r.db.WithContext(ctx).Where("rollout_id = ?", rolloutID)
	if len(statuses) > 0 {
		query = query.Where("status IN ?", statuses)
	}
	err := query.Order("id ASC").Find(&devices).Error
	return devices, err
}

// UpdateRolloutDeviceStatus 乐观锁更新设备状态
func (r *RolloutRepository) UpdateRolloutDeviceStatus(ctx context.Context, id int64, from []string, to string, fields map[string]interface{}) (bool, error) {
	result := r.db.WithContext(ctx).Model(&model.RolloutDevice{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(mergeStatus(to, fields))
	return result.RowsAffected > 0, result.Error
}

func (r *RolloutRepository) UpdateRolloutDeviceFields(ctx context.Context, id int64, fields map[string]interface{}) error {
	return r.db.WithContext(ctx).Model(&model.RolloutDevice{}).Where("id = ?", id).Updates(fields).Error
}

// RecordDeviceResult 设备 CAS 与阶段计数器自增在同一事务内, 计数器满额后不再增加
func (r *RolloutRepository) RecordDeviceResult(ctx context.Context, rd *model.RolloutDevice, status string, errMsg *string, now time.Time) (bool, error) {
	var column string
	switch status {
	case constants.DeviceStatusCompleted:
		column = "completed_devices"
	case constants.DeviceStatusFailed:
		column = "failed_devices"
	default:
		return false, fmt.Errorf("不支持的设备结果状态: %s", status)
	}

	applied := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&model.RolloutDevice{}).
			Where("id = ? AND status IN ?", rd.ID, constants.DeviceActiveStatuses).
			Updates(map[string]interface{}{"status": status, "error": errMsg, "finished_at": now})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return nil
		}

		if err := tx.Model(&model.RolloutStage{}).
			Where("id = ? AND completed_devices + failed_devices < total_devices", rd.StageID).
			Update(column, gorm.Expr(column+" + 1")).Error; err != nil {
			return err
		}
		applied = true
		return nil
	})
	return applied, err
}

// ================== RolloutEvent ==================

func (r *RolloutRepository) AppendEvent(ctx context.Context, event *model.RolloutEvent) error {
	return r.db.WithContext(ctx).Create(event).Error
}

// ListEvents 按时间倒序返回最近 limit 条事件
func (r *RolloutRepository) ListEvents(ctx context.Context, rolloutID int64, limit int) ([]model.RolloutEvent, error) {
	var events []model.RolloutEvent
	err := r.db.WithContext(ctx).Where("rollout_id = ?", rolloutID).
		Order("id DESC").Limit(limit).Find(&events).Error
	return events, err
}
