package repository

import (
	"context"

	"gorm.io/gorm"

	"fleet-rollout/internal/model"
)

// UpdateGroupRepository 更新组数据访问层
type UpdateGroupRepository struct {
	db *gorm.DB
}

// NewUpdateGroupRepository 创建更新组Repository
func NewUpdateGroupRepository(db *gorm.DB) *UpdateGroupRepository {
	return &UpdateGroupRepository{
		db: db,
	}
}

// Create 创建更新组
func (r *UpdateGroupRepository) Create(ctx context.Context, group *model.UpdateGroup) error {
	return r.db.WithContext(ctx).Create(group).Error
}

// Update 更新更新组
func (r *UpdateGroupRepository) Update(ctx context.Context, group *model.UpdateGroup) error {
	return r.db.WithContext(ctx).Save(group).Error
}

// GetByID 根据ID获取更新组
func (r *UpdateGroupRepository) GetByID(ctx context.Context, id int64) (*model.UpdateGroup, error) {
	var group model.UpdateGroup
	if err := r.db.WithContext(ctx).First(&group, id).Error; err != nil {
		return nil, notFound(err, "更新组 %d 不存在", id)
	}
	return &group, nil
}

// GetByName 根据名称获取更新组
func (r *UpdateGroupRepository) GetByName(ctx context.Context, name string) (*model.UpdateGroup, error) {
	var group model.UpdateGroup
	if err := r.db.WithContext(ctx).Where("name = ?", name).First(&group).Error; err != nil {
		return nil, notFound(err, "更新组 %s 不存在", name)
	}
	return &group, nil
}

// List 按优先级升序返回全部更新组
func (r *UpdateGroupRepository) List(ctx context.Context) ([]model.UpdateGroup, error) {
	var groups []model.UpdateGroup
	err := r.db.WithContext(ctx).Order("priority ASC, id ASC").Find(&groups).Error
	return groups, err
}

// CountDevicesByGroup 各组当前成员数
func (r *UpdateGroupRepository) CountDevicesByGroup(ctx context.Context) (map[int64]int64, error) {
	var rows []struct {
		UpdateGroupID int64
		Count         int64
	}
	err := r.db.WithContext(ctx).Model(&model.Device{}).
		Select("update_group_id, COUNT(*) AS count").
		Where("update_group_id IS NOT NULL").
		Group("update_group_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[int64]int64, len(rows))
	for _, row := range rows {
		counts[row.UpdateGroupID] = row.Count
	}
	return counts, nil
}
