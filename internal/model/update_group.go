package model

// UpdateGroup 更新组(设备队列), 每组一份发布策略
type UpdateGroup struct {
	BaseModel
	Name        string `gorm:"size:100;uniqueIndex;not null" json:"name"`
	Description string `gorm:"size:255" json:"description"`
	Priority    int    `gorm:"index;not null;default:0" json:"priority"` // 升序, 越小越先发布

	// 晋级/回滚策略
	AutoPromote             bool    `gorm:"not null;default:false" json:"auto_promote"`
	SuccessThresholdPercent float64 `gorm:"not null" json:"success_threshold_percent"`
	FailureThresholdPercent float64 `gorm:"not null" json:"failure_threshold_percent"`
	MinDevicesForDecision   int     `gorm:"not null" json:"min_devices_for_decision"`
	WaitTimeMinutes         int     `gorm:"not null;default:0" json:"wait_time_minutes"` // 阶段最少驻留时间
}

// TableName 指定表名
func (UpdateGroup) TableName() string {
	return "update_groups"
}
