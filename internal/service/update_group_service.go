package service

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
	"gorm.io/gorm"

	"fleet-rollout/internal/dto"
	"fleet-rollout/internal/repository"
	pkgErrors "fleet-rollout/pkg/errors"
	"fleet-rollout/pkg/utils"
)

type UpdateGroupService struct {
	groups   *repository.UpdateGroupRepository
	devices  *repository.DeviceRepository
	validate *validator.Validate
	logger   *zap.Logger
}

func NewUpdateGroupService(db *gorm.DB, logger *zap.Logger) *UpdateGroupService {
	return &UpdateGroupService{
		groups:   repository.NewUpdateGroupRepository(db),
		devices:  repository.NewDeviceRepository(db),
		validate: utils.NewValidator(),
		logger:   logger,
	}
}

// Create 创建更新组
func (s *UpdateGroupService) Create(ctx context.Context, req *dto.CreateUpdateGroupRequest) (*dto.UpdateGroupDTO, error) {
	// 1. 检查名称是否已存在
	if err := s.checkNameFree(ctx, req.Name, 0); err != nil {
		return nil, err
	}

	// 2. 创建
	group := req.ToModel()
	if err := s.groups.Create(ctx, group); err != nil {
		return nil, pkgErrors.Wrap(pkgErrors.CodeDatabaseError, "创建更新组失败", err)
	}

	s.logger.Info("更新组已创建", zap.Int64("group_id", group.ID), zap.String("name", group.Name))
	return &dto.UpdateGroupDTO{UpdateGroup: *group}, nil
}

// Update 更新更新组, 未传字段保持原值
func (s *UpdateGroupService) Update(ctx context.Context, id int64, req *dto.UpdateUpdateGroupRequest) (*dto.UpdateGroupDTO, error) {
	// 1. 查询更新组
	group, err := s.groups.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	// 2. 检查名称是否重复
	if req.Name != nil && *req.Name != group.Name {
		if err := s.checkNameFree(ctx, *req.Name, id); err != nil {
			return nil, err
		}
		group.Name = *req.Name
	}

	// 3. 更新字段
	if req.Priority != nil {
		group.Priority = *req.Priority
	}
	req.UpdateGroupPolicy.Apply(group)

	if err := s.groups.Update(ctx, group); err != nil {
		return nil, pkgErrors.Wrap(pkgErrors.CodeDatabaseError, "更新更新组失败", err)
	}

	count, err := s.devices.CountByGroup(ctx, group.ID)
	if err != nil {
		return nil, pkgErrors.Wrap(pkgErrors.CodeDatabaseError, "统计组成员失败", err)
	}
	return &dto.UpdateGroupDTO{UpdateGroup: *group, DeviceCount: count}, nil
}

// Get 获取更新组详情
func (s *UpdateGroupService) Get(ctx context.Context, id int64) (*dto.UpdateGroupDTO, error) {
	group, err := s.groups.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	count, err := s.devices.CountByGroup(ctx, group.ID)
	if err != nil {
		return nil, pkgErrors.Wrap(pkgErrors.CodeDatabaseError, "统计组成员失败", err)
	}
	return &dto.UpdateGroupDTO{UpdateGroup: *group, DeviceCount: count}, nil
}

// List 按优先级返回全部更新组
func (s *UpdateGroupService) List(ctx context.Context) ([]dto.UpdateGroupDTO, error) {
	groups, err := s.groups.List(ctx)
	if err != nil {
		return nil, pkgErrors.Wrap(pkgErrors.CodeDatabaseError, "查询更新组失败", err)
	}
	counts, err := s.groups.CountDevicesByGroup(ctx)
	if err != nil {
		return nil, pkgErrors.Wrap(pkgErrors.CodeDatabaseError, "统计组成员失败", err)
	}

	result := make([]dto.UpdateGroupDTO, 0, len(groups))
	for _, group := range groups {
		result = append(result, dto.UpdateGroupDTO{UpdateGroup: group, DeviceCount: counts[group.ID]})
	}
	return result, nil
}

// AssignDevice 调整设备所属更新组, groupID 为 nil 时移出分组
func (s *UpdateGroupService) AssignDevice(ctx context.Context, deviceID int64, groupID *int64) error {
	if groupID != nil {
		if _, err := s.groups.GetByID(ctx, *groupID); err != nil {
			return err
		}
	}
	if err := s.devices.AssignGroup(ctx, deviceID, groupID); err != nil {
		return err
	}

	fields := []zap.Field{zap.Int64("device_id", deviceID)}
	if groupID != nil {
		fields = append(fields, zap.Int64("group_id", *groupID))
	}
	s.logger.Info("设备分组已调整", fields...)
	return nil
}

// LoadSeedFile 导入 YAML 更新组定义, 按名称存在则更新, 不存在则创建
func (s *UpdateGroupService) LoadSeedFile(ctx context.Context, path string) (int, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, pkgErrors.Wrap(pkgErrors.CodeConfigurationError, "读取更新组文件失败", err)
	}
	var seed dto.UpdateGroupSeedFile
	if err := yaml.Unmarshal(raw, &seed); err != nil {
		return 0, pkgErrors.Wrap(pkgErrors.CodeConfigurationError, "解析更新组文件失败", err)
	}

	applied := 0
	for i, entry := range seed.Groups {
		req, err := s.decodeSeed(entry)
		if err != nil {
			return applied, pkgErrors.Wrap(pkgErrors.CodeConfigurationError, fmt.Sprintf("第 %d 个更新组定义无效", i+1), err)
		}
		if err := s.upsert(ctx, req); err != nil {
			return applied, err
		}
		applied++
	}

	s.logger.Info("更新组定义已导入", zap.String("path", path), zap.Int("count", applied))
	return applied, nil
}

func (s *UpdateGroupService) decodeSeed(entry map[string]interface{}) (*dto.CreateUpdateGroupRequest, error) {
	data, err := json.Marshal(dto.NormalizeKeys(entry))
	if err != nil {
		return nil, err
	}
	var req dto.CreateUpdateGroupRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, err
	}
	if err := s.validate.Struct(&req); err != nil {
		return nil, fmt.Errorf("%s", utils.FormatValidationError(err))
	}
	return &req, nil
}

func (s *UpdateGroupService) upsert(ctx context.Context, req *dto.CreateUpdateGroupRequest) error {
	existing, err := s.groups.GetByName(ctx, req.Name)
	if pkgErrors.CodeOf(err) == pkgErrors.CodeNotFound {
		_, err = s.Create(ctx, req)
		return err
	}
	if err != nil {
		return err
	}

	existing.Priority = *req.Priority
	req.UpdateGroupPolicy.Apply(existing)
	if err := s.groups.Update(ctx, existing); err != nil {
		return pkgErrors.Wrap(pkgErrors.CodeDatabaseError, "更新更新组失败", err)
	}
	return nil
}

func (s *UpdateGroupService) checkNameFree(ctx context.Context, name string, selfID int64) error {
	existing, err := s.groups.GetByName(ctx, name)
	if pkgErrors.CodeOf(err) == pkgErrors.CodeNotFound {
		return nil
	}
	if err != nil {
		return err
	}
	if existing.ID == selfID {
		return nil
	}
	return pkgErrors.Newf(pkgErrors.CodeConflict, "更新组名称 '%s' 已存在", name)
}
