package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Device 受管终端(由 Agent 注册维护), 组成员关系存放在设备上
type Device struct {
	BaseModel
	UUID          uuid.UUID  `gorm:"type:char(36);uniqueIndex;not null" json:"uuid"` // 指令通道与 hub 使用的设备标识
	AgentID       string     `gorm:"size:64;uniqueIndex;not null" json:"agent_id"`
	Hostname      string     `gorm:"size:255" json:"hostname"`
	AgentVersion  string     `gorm:"size:50" json:"agent_version"` // Agent 上报的当前版本
	UpdateGroupID *int64     `gorm:"index" json:"update_group_id"`
	LastSeen      *time.Time `json:"last_seen"`

	UpdateGroup *UpdateGroup `gorm:"foreignKey:UpdateGroupID" json:"update_group,omitempty"`
}

// TableName 指定表名
func (Device) TableName() string {
	return "devices"
}

// BeforeCreate 未指定 UUID 时自动生成
func (d *Device) BeforeCreate(*gorm.DB) error {
	if d.UUID == uuid.Nil {
		d.UUID = uuid.New()
	}
	return nil
}
