package model

import (
	"time"
)

type BaseModel struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	CreatedAt time.Time `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime" json:"updated_at"`
}

// AllModels 需要自动迁移的表
func AllModels() []interface{} {
	return []interface{}{
		&UpdateGroup{},
		&Device{},
		&Rollout{},
		&RolloutStage{},
		&RolloutDevice{},
		&RolloutEvent{},
		&QueuedCommand{},
	}
}
