package dto

// PublishCommandRequest 直接下发指令请求, wait_seconds > 0 时同步等待响应
type PublishCommandRequest struct {
	DeviceID    string `json:"device_id" binding:"omitempty,uuid"` // 设备 UUID
	AgentID     string `json:"agent_id" binding:"required,max=64"`
	CommandType string `json:"command_type" binding:"required,max=50"`
	Payload     string `json:"payload"`
	CreatedBy   string `json:"created_by" binding:"omitempty,max=50"` // UUID 或操作人名称
	Timeout     int    `json:"timeout" binding:"omitempty,min=0"`
	WaitSeconds int    `json:"wait_seconds" binding:"omitempty,min=0,max=300"`
}

func (r *PublishCommandRequest) UnmarshalJSON(data []byte) error {
	type alias PublishCommandRequest
	return unmarshalNormalized(data, (*alias)(r))
}

// PublishResponseRequest Agent 回写执行结果
type PublishResponseRequest struct {
	CommandID string `json:"command_id" binding:"required"`
	RequestID string `json:"request_id" binding:"required"`
	AgentID   string `json:"agent_id" binding:"required,max=64"`
	Success   bool   `json:"success"`
	Output    string `json:"output"`
	Error     string `json:"error"`
	ExitCode  int    `json:"exit_code"`
}

func (r *PublishResponseRequest) UnmarshalJSON(data []byte) error {
	type alias PublishResponseRequest
	return unmarshalNormalized(data, (*alias)(r))
}

// DeviceParam 设备路径参数
type DeviceParam struct {
	DeviceID int64 `uri:"device_id" binding:"required,min=1"`
}

// AgentConnectedRequest Agent 上线回调
type AgentConnectedRequest struct {
	ServerID string `json:"server_id" binding:"omitempty,max=100"`
}

func (r *AgentConnectedRequest) UnmarshalJSON(data []byte) error {
	type alias AgentConnectedRequest
	return unmarshalNormalized(data, (*alias)(r))
}
