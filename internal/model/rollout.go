package model

import (
	"time"

	"gorm.io/datatypes"
)

// Rollout 一次版本发布活动, 按更新组优先级分阶段推进
type Rollout struct {
	BaseModel
	Name           string     `gorm:"size:200;not null" json:"name"`
	ReleaseVersion string     `gorm:"size:50;index;not null" json:"release_version"`
	Status         string     `gorm:"size:20;index;not null;default:pending" json:"status"` // pkg/constants:RolloutStatus
	DownloadURL    string     `gorm:"size:1024" json:"download_url"`
	Checksum       string     `gorm:"size:128" json:"checksum"`
	CreatedBy      string     `gorm:"size:50" json:"created_by"`
	Reason         *string    `gorm:"type:text" json:"reason"` // 回滚/失败原因
	StartedAt      *time.Time `json:"started_at"`
	CompletedAt    *time.Time `json:"completed_at"`

	Stages []RolloutStage `gorm:"foreignKey:RolloutID" json:"stages,omitempty"`
}

// TableName 指定表名
func (Rollout) TableName() string {
	return "rollouts"
}

// RolloutStage 发布阶段, 每个更新组一个
type RolloutStage struct {
	BaseModel
	RolloutID int64  `gorm:"index;not null" json:"rollout_id"`
	GroupID   int64  `gorm:"index;not null" json:"group_id"`
	GroupName string `gorm:"size:100" json:"group_name"`
	Priority  int    `gorm:"not null" json:"priority"` // 创建时的组优先级快照
	Status    string `gorm:"size:20;index;not null;default:pending" json:"status"`

	// 计数器, TotalDevices 为创建时快照
	TotalDevices     int `gorm:"not null;default:0" json:"total_devices"`
	CompletedDevices int `gorm:"not null;default:0" json:"completed_devices"`
	FailedDevices    int `gorm:"not null;default:0" json:"failed_devices"`

	StatusReason    string     `gorm:"size:255" json:"status_reason"` // 最近一次评估的阻塞原因
	LastEvaluatedAt *time.Time `json:"last_evaluated_at"`
	StartedAt       *time.Time `json:"started_at"`
	CompletedAt     *time.Time `json:"completed_at"`
}

// TableName 指定表名
func (RolloutStage) TableName() string {
	return "rollout_stages"
}

// RolloutDevice 单设备在一次发布中的状态
type RolloutDevice struct {
	BaseModel
	RolloutID    int64      `gorm:"uniqueIndex:idx_rollout_device;not null" json:"rollout_id"`
	StageID      int64      `gorm:"index;not null" json:"stage_id"`
	DeviceID     int64      `gorm:"uniqueIndex:idx_rollout_device;not null" json:"device_id"`
	AgentID      string     `gorm:"size:64" json:"agent_id"`
	Status       string     `gorm:"size:20;index;not null;default:pending" json:"status"`
	FromVersion  string     `gorm:"size:50" json:"from_version"`
	ToVersion    string     `gorm:"size:50" json:"to_version"`
	Error        *string    `gorm:"type:text" json:"error"`
	DispatchedAt *time.Time `json:"dispatched_at"`
	FinishedAt   *time.Time `json:"finished_at"`
}

// TableName 指定表名
func (RolloutDevice) TableName() string {
	return "rollout_devices"
}

// RolloutEvent 只追加的审计日志
type RolloutEvent struct {
	ID        int64             `gorm:"primaryKey;autoIncrement" json:"id"`
	RolloutID int64             `gorm:"index;not null" json:"rollout_id"`
	StageID   *int64            `gorm:"index" json:"stage_id"`
	DeviceID  *int64            `json:"device_id"`
	EventType string            `gorm:"size:50;not null" json:"event_type"`
	Message   string            `gorm:"type:text" json:"message"`
	Metadata  datatypes.JSONMap `gorm:"type:json" json:"metadata"`
	CreatedAt time.Time         `gorm:"not null;autoCreateTime" json:"created_at"`
}

// TableName 指定表名
func (RolloutEvent) TableName() string {
	return "rollout_events"
}
