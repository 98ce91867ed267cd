package model

import (
	"time"

	"gorm.io/datatypes"
)

// QueuedCommand Agent 离线时暂存的指令, 上线后补发
type QueuedCommand struct {
	BaseModel
	DeviceID    int64          `gorm:"index;not null" json:"device_id"`
	AgentID     string         `gorm:"size:64;index" json:"agent_id"`
	CommandType string         `gorm:"size:50;not null" json:"command_type"`
	Payload     datatypes.JSON `gorm:"type:json" json:"payload"`
	Priority    string         `gorm:"size:20;not null;default:normal" json:"priority"`
	ExpiresAt   time.Time      `gorm:"index;not null" json:"expires_at"`
	DeliveredAt *time.Time     `json:"delivered_at"`
}

// TableName 指定表名
func (QueuedCommand) TableName() string {
	return "queued_commands"
}
