package dto

import "fleet-rollout/internal/model"

// UpdateGroupPolicy 更新组发布策略, 未传字段保持原值或使用默认值
type UpdateGroupPolicy struct {
	Description             *string  `json:"description" binding:"omitempty,max=255"`
	AutoPromote             *bool    `json:"auto_promote"`
	SuccessThresholdPercent *float64 `json:"success_threshold_percent" binding:"omitempty,gte=0,lte=100"`
	FailureThresholdPercent *float64 `json:"failure_threshold_percent" binding:"omitempty,gte=0,lte=100"`
	MinDevicesForDecision   *int     `json:"min_devices_for_decision" binding:"omitempty,min=0"`
	WaitTimeMinutes         *int     `json:"wait_time_minutes" binding:"omitempty,min=0"`
}

// Apply 将策略写入模型
func (p *UpdateGroupPolicy) Apply(group *model.UpdateGroup) {
	if p.Description != nil {
		group.Description = *p.Description
	}
	if p.AutoPromote != nil {
		group.AutoPromote = *p.AutoPromote
	}
	if p.SuccessThresholdPercent != nil {
		group.SuccessThresholdPercent = *p.SuccessThresholdPercent
	}
	if p.FailureThresholdPercent != nil {
		group.FailureThresholdPercent = *p.FailureThresholdPercent
	}
	if p.MinDevicesForDecision != nil {
		group.MinDevicesForDecision = *p.MinDevicesForDecision
	}
	if p.WaitTimeMinutes != nil {
		group.WaitTimeMinutes = *p.WaitTimeMinutes
	}
}

// CreateUpdateGroupRequest 创建更新组请求, 同时接受 camelCase 与 snake_case 字段
type CreateUpdateGroupRequest struct {
	Name     string `json:"name" binding:"required,max=100"`
	Priority *int   `json:"priority" binding:"required,min=0"`
	UpdateGroupPolicy
}

func (r *CreateUpdateGroupRequest) UnmarshalJSON(data []byte) error {
	type alias CreateUpdateGroupRequest
	return unmarshalNormalized(data, (*alias)(r))
}

// ToModel 转换为模型, 未设置的阈值使用默认值
func (r *CreateUpdateGroupRequest) ToModel() *model.UpdateGroup {
	group := &model.UpdateGroup{
		Name:                    r.Name,
		SuccessThresholdPercent: 95,
		FailureThresholdPercent: 5,
		MinDevicesForDecision:   1,
	}
	if r.Priority != nil {
		group.Priority = *r.Priority
	}
	r.UpdateGroupPolicy.Apply(group)
	return group
}

// UpdateUpdateGroupRequest 更新更新组请求
type UpdateUpdateGroupRequest struct {
	Name     *string `json:"name" binding:"omitempty,max=100"`
	Priority *int    `json:"priority" binding:"omitempty,min=0"`
	UpdateGroupPolicy
}

func (r *UpdateUpdateGroupRequest) UnmarshalJSON(data []byte) error {
	type alias UpdateUpdateGroupRequest
	return unmarshalNormalized(data, (*alias)(r))
}

// AssignDeviceGroupRequest 设备分组请求, group_id 为空表示移出分组
type AssignDeviceGroupRequest struct {
	GroupID *int64 `json:"group_id" binding:"omitempty,min=1"`
}

func (r *AssignDeviceGroupRequest) UnmarshalJSON(data []byte) error {
	type alias AssignDeviceGroupRequest
	return unmarshalNormalized(data, (*alias)(r))
}

// UpdateGroupDTO 更新组详情, 附带当前成员数
type UpdateGroupDTO struct {
	model.UpdateGroup
	DeviceCount int64 `json:"device_count"`
}

// UpdateGroupSeedFile 启动时导入的更新组定义
type UpdateGroupSeedFile struct {
	Groups []map[string]interface{} `yaml:"groups"`
}
