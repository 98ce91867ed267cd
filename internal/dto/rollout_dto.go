package dto

import "fleet-rollout/internal/model"

// CreateRolloutRequest 创建发布请求
type CreateRolloutRequest struct {
	Name           string `json:"name" binding:"required,max=200"`
	ReleaseVersion string `json:"release_version" binding:"required,version"`
	DownloadURL    string `json:"download_url" binding:"required,url,max=1024"`
	Checksum       string `json:"checksum" binding:"omitempty,hexadecimal,max=128"`
	CreatedBy      string `json:"created_by" binding:"omitempty,max=50"`
}

func (r *CreateRolloutRequest) UnmarshalJSON(data []byte) error {
	type alias CreateRolloutRequest
	return unmarshalNormalized(data, (*alias)(r))
}

// RolloutListQuery 发布列表查询参数
type RolloutListQuery struct {
	Page           int      `form:"page"`
	PageSize       int      `form:"page_size"`
	Statuses       []string `form:"status"` // 支持多状态查询
	ReleaseVersion *string  `form:"release_version"`
	Keyword        *string  `form:"keyword"` // 模糊搜索名称
}

type RolloutListParam struct {
	Page           int
	PageSize       int
	Statuses       []string
	ReleaseVersion *string
	Keyword        *string
}

func (q *RolloutListQuery) ToParam() RolloutListParam {
	return RolloutListParam{
		Page:           PageLimit(q.Page),
		PageSize:       PageSizeLimit(q.PageSize),
		Statuses:       q.Statuses,
		ReleaseVersion: q.ReleaseVersion,
		Keyword:        q.Keyword,
	}
}

// OperatorRequest 启动/暂停/恢复/晋级请求
type OperatorRequest struct {
	Operator string `json:"operator" binding:"omitempty,max=50"`
}

// RollbackRequest 回滚请求
type RollbackRequest struct {
	Operator string `json:"operator" binding:"omitempty,max=50"`
	Reason   string `json:"reason" binding:"required,max=500"`
}

// StageParam 阶段路径参数
type StageParam struct {
	ID      int64 `uri:"id" binding:"required,min=1"`
	StageID int64 `uri:"stage_id" binding:"required,min=1"`
}

// DeviceResultReport Agent 上报的最终结果
type DeviceResultReport struct {
	DeviceID  int64  `json:"device_id" binding:"required,min=1"`
	RolloutID int64  `json:"rollout_id" binding:"required,min=1"`
	Success   *bool  `json:"success" binding:"required"`
	Error     string `json:"error" binding:"omitempty,max=2000"`
}

func (r *DeviceResultReport) UnmarshalJSON(data []byte) error {
	type alias DeviceResultReport
	return unmarshalNormalized(data, (*alias)(r))
}

// DeviceProgressReport Agent 上报的中间进度
type DeviceProgressReport struct {
	DeviceID  int64  `json:"device_id" binding:"required,min=1"`
	RolloutID int64  `json:"rollout_id" binding:"required,min=1"`
	Status    string `json:"status" binding:"required,oneof=downloading installing"`
}

func (r *DeviceProgressReport) UnmarshalJSON(data []byte) error {
	type alias DeviceProgressReport
	return unmarshalNormalized(data, (*alias)(r))
}

// EventListQuery 事件查询参数
type EventListQuery struct {
	Limit int `form:"limit" binding:"omitempty,min=1,max=1000"`
}

// RolloutDeviceQuery 发布设备查询参数
type RolloutDeviceQuery struct {
	Statuses []string `form:"status"`
}

// StageDTO 阶段详情与当前评估结果
type StageDTO struct {
	model.RolloutStage
	Evaluation *StageEvaluationDTO `json:"evaluation,omitempty"`
}

// StageEvaluationDTO 评估结果
type StageEvaluationDTO struct {
	CompletionRate       float64 `json:"completion_rate"`
	SuccessRate          float64 `json:"success_rate"`
	FailureRate          float64 `json:"failure_rate"`
	WaitRemainingSeconds int64   `json:"wait_remaining_seconds"`
	ShouldRollback       bool    `json:"should_rollback"`
	CanAutoPromote       bool    `json:"can_auto_promote"`
	Reason               string  `json:"reason"`
}

// RolloutDetailDTO 发布详情
type RolloutDetailDTO struct {
	model.Rollout
	Stages []StageDTO `json:"stages"`
}
