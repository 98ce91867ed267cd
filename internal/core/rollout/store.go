package rollout

import (
	"context"
	"time"

	"fleet-rollout/internal/dto"
	"fleet-rollout/internal/model"
)

// Store 发布编排依赖的持久化能力, 未找到记录时返回 NotFound 错误码
// 状态更新均为 CAS: 仅当当前状态属于 from 时才写入, 返回是否命中
type Store interface {
	ListUpdateGroups(ctx context.Context) ([]model.UpdateGroup, error)
	GetUpdateGroup(ctx context.Context, id int64) (*model.UpdateGroup, error)
	CountDevicesInGroup(ctx context.Context, groupID int64) (int64, error)
	DevicesInGroup(ctx context.Context, groupID int64) ([]model.Device, error)

	CreateRollout(ctx context.Context, rollout *model.Rollout) error
	GetRollout(ctx context.Context, id int64) (*model.Rollout, error)
	ListRollouts(ctx context.Context, param dto.RolloutListParam) ([]model.Rollout, int64, error)
	ListRolloutsByStatus(ctx context.Context, status string) ([]model.Rollout, error)
	UpdateRolloutStatus(ctx context.Context, id int64, from []string, to string, fields map[string]interface{}) (bool, error)

	GetStage(ctx context.Context, id int64) (*model.RolloutStage, error)
	ListStages(ctx context.Context, rolloutID int64) ([]model.RolloutStage, error)
	// ActivateStage pending -> in_progress, 同一发布已有进行中阶段或存在更靠前的 pending 阶段时不命中
	ActivateStage(ctx context.Context, rolloutID, stageID int64, now time.Time) (bool, error)
	UpdateStageStatus(ctx context.Context, id int64, from []string, to string, fields map[string]interface{}) (bool, error)
	UpdateStagesStatus(ctx context.Context, rolloutID int64, from []string, to string, fields map[string]interface{}) (int64, error)
	UpdateStageFields(ctx context.Context, id int64, fields map[string]interface{}) error

	// CreateRolloutDevice 已存在 (rollout, device) 记录时返回 false
	CreateRolloutDevice(ctx context.Context, rd *model.RolloutDevice) (bool, error)
	GetRolloutDevice(ctx context.Context, rolloutID, deviceID int64) (*model.RolloutDevice, error)
	ListRolloutDevices(ctx context.Context, rolloutID int64, statuses []string) ([]model.RolloutDevice, error)
	UpdateRolloutDeviceStatus(ctx context.Context, id int64, from []string, to string, fields map[string]interface{}) (bool, error)
	UpdateRolloutDeviceFields(ctx context.Context, id int64, fields map[string]interface{}) error
	// RecordDeviceResult 单事务: 设备非终态 -> status, 并对阶段计数器做有上限的原子自增
	RecordDeviceResult(ctx context.Context, rd *model.RolloutDevice, status string, errMsg *string, now time.Time) (bool, error)

	AppendEvent(ctx context.Context, event *model.RolloutEvent) error
	ListEvents(ctx context.Context, rolloutID int64, limit int) ([]model.RolloutEvent, error)
}

// SendOptions 指令下发选项
type SendOptions struct {
	QueueIfOffline   bool
	Priority         string
	ExpiresInMinutes int
}

// Command 下发给 Agent 的指令, Payload 需可 JSON 序列化
type Command struct {
	Type    string
	Payload interface{}
}

// CommandHandle 下发结果
type CommandHandle struct {
	CommandID string `json:"command_id,omitempty"`
	RequestID string `json:"request_id,omitempty"`
	Queued    bool   `json:"queued"` // 离线暂存, 待上线补发
}

// AgentConnection 设备连接能力
type AgentConnection interface {
	IsOnline(ctx context.Context, deviceID int64) bool
	SendCommand(ctx context.Context, deviceID int64, cmd Command, opts SendOptions) (*CommandHandle, error)
}

// UpdatePayload update_agent 指令内容, Agent 上报结果时据此定位记录
type UpdatePayload struct {
	Type            string `json:"type"`
	RolloutID       int64  `json:"rolloutId"`
	StageID         int64  `json:"stageId"`
	RolloutDeviceID int64  `json:"rolloutDeviceId"`
	Version         string `json:"version"`
	DownloadURL     string `json:"downloadUrl"`
	Checksum        string `json:"checksum"`
}

// RollbackPayload rollback_agent 指令内容
type RollbackPayload struct {
	Type            string `json:"type"`
	RolloutID       int64  `json:"rolloutId"`
	RolloutDeviceID int64  `json:"rolloutDeviceId"`
	TargetVersion   string `json:"targetVersion"`
}
