package constants

// RolloutStatus 发布活动状态
const (
	RolloutStatusPending    = "pending"     // 已创建, 未开始
	RolloutStatusInProgress = "in_progress" // 发布中
	RolloutStatusPaused     = "paused"      // 已暂停(不再晋级, 已下发指令不撤回)
	RolloutStatusCompleted  = "completed"   // 全部阶段完成
	RolloutStatusFailed     = "failed"      // 阶段无法启动, 需人工回滚
	RolloutStatusRolledBack = "rolled_back" // 已回滚
)

// IsRolloutTerminal 终态不可逆
func IsRolloutTerminal(status string) bool {
	return status == RolloutStatusCompleted || status == RolloutStatusRolledBack
}

// StageStatus 阶段状态
const (
	StageStatusPending    = "pending"
	StageStatusInProgress = "in_progress"
	StageStatusCompleted  = "completed"
	StageStatusFailed     = "failed"
	StageStatusSkipped    = "skipped"
)

// IsStageFinished 阶段是否已结束
func IsStageFinished(status string) bool {
	return status == StageStatusCompleted || status == StageStatusSkipped || status == StageStatusFailed
}

// DeviceStatus 设备发布状态
const (
	DeviceStatusPending     = "pending"
	DeviceStatusDownloading = "downloading"
	DeviceStatusInstalling  = "installing"
	DeviceStatusCompleted   = "completed"
	DeviceStatusFailed      = "failed"
	DeviceStatusRolledBack  = "rolled_back"
)

// DeviceActiveStatuses 尚未上报结果的设备状态
var DeviceActiveStatuses = []string{DeviceStatusPending, DeviceStatusDownloading, DeviceStatusInstalling}

// IsDeviceTerminal 设备是否已有最终结果
func IsDeviceTerminal(status string) bool {
	return status == DeviceStatusCompleted || status == DeviceStatusFailed || status == DeviceStatusRolledBack
}

// deviceStatusOrder 进度上报只允许前进
var deviceStatusOrder = map[string]int{
	DeviceStatusPending:     0,
	DeviceStatusDownloading: 1,
	DeviceStatusInstalling:  2,
}

// DeviceProgressRank 返回非终态设备状态的先后顺序, 未知状态返回 -1
func DeviceProgressRank(status string) int {
	if rank, ok := deviceStatusOrder[status]; ok {
		return rank
	}
	return -1
}

// RolloutEventType 发布审计事件类型
const (
	EventRolloutCreated    = "rollout_created"
	EventRolloutStarted    = "rollout_started"
	EventRolloutPaused     = "rollout_paused"
	EventRolloutResumed    = "rollout_resumed"
	EventRolloutCompleted  = "rollout_completed"
	EventRolloutFailed     = "rollout_failed"
	EventRolloutRolledBack = "rollout_rolled_back"

	EventStageStarted   = "stage_started"
	EventStagePromoted  = "stage_promoted"
	EventStageFailed    = "stage_failed"
	EventAutoPromote    = "auto_promote"
	EventAutoRollback   = "auto_rollback"
	EventEvaluateFailed = "evaluate_failed"

	EventDeviceDispatchFailed = "device_dispatch_failed"
	EventDeviceCompleted      = "device_completed"
	EventDeviceFailed         = "device_failed"
	EventDeviceRolledBack     = "device_rolled_back"
	EventDeviceLateCompletion = "device_late_completion"
)

// 下发给 Agent 的指令类型
const (
	CommandTypeUpdateAgent   = "update_agent"
	CommandTypeRollbackAgent = "rollback_agent"
)

// 指令优先级
const (
	PriorityNormal = "normal"
	PriorityHigh   = "high"
)

// 指令过期时间(分钟)
const (
	UpdateCommandExpireMinutes   = 24 * 60
	RollbackCommandExpireMinutes = 60
)
