package queue

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// 流/消费组/频道名称为线上协议, 与已部署的其它副本保持一致
const (
	CommandStreamKey  = "sentinel:commands:stream"
	ResponseStreamKey = "sentinel:responses:stream"
	ResponseTopic     = "sentinel:responses:pubsub"
	ConsumerGroup     = "sentinel-servers"
	StreamMaxLen      = 10000
)

// stream entry 字段
const (
	fieldCommand   = "command"
	fieldResponse  = "response"
	fieldAgentID   = "agentId"
	fieldType      = "type"
	fieldRequestID = "requestId"
	fieldCommandID = "commandId"
)

// CommandMessage 下发给 Agent 的指令
type CommandMessage struct {
	ID          string    `json:"id"`
	DeviceID    uuid.UUID `json:"deviceId"`
	AgentID     string    `json:"agentId"`
	CommandType string    `json:"commandType"`
	Payload     string    `json:"command"` // JSON 字段名沿用 command
	RequestID   string    `json:"requestId"`
	CreatedBy   uuid.UUID `json:"createdBy"`
	CreatedAt   time.Time `json:"createdAt"`
	Timeout     int       `json:"timeout,omitempty"` // 秒
}

// ResponseMessage Agent 返回的执行结果, 通过 RequestID 关联到 CommandMessage
type ResponseMessage struct {
	CommandID string    `json:"commandId"`
	RequestID string    `json:"requestId"`
	AgentID   string    `json:"agentId"`
	Success   bool      `json:"success"`
	Output    string    `json:"output"`
	Error     string    `json:"error,omitempty"`
	ExitCode  int       `json:"exitCode"`
	Timestamp time.Time `json:"timestamp"`
}

// operatorNamespace 非 UUID 形式的操作人按名称派生稳定的 UUID
var operatorNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("fleet-rollout/operator"))

// OperatorID 操作人对应的 createdBy: 本身是 UUID 则原样使用, 否则按名称派生
func OperatorID(operator string) uuid.UUID {
	if id, err := uuid.Parse(operator); err == nil {
		return id
	}
	return uuid.NewSHA1(operatorNamespace, []byte(operator))
}

// Expired 指令创建后超过 ttl 即视为过期, 不再执行
func (c *CommandMessage) Expired(now time.Time, ttl time.Duration) bool {
	return now.Sub(c.CreatedAt) > ttl
}

func decodeCommand(values map[string]interface{}) (*CommandMessage, error) {
	raw, ok := values[fieldCommand].(string)
	if !ok {
		return nil, errMissingField(fieldCommand)
	}
	var cmd CommandMessage
	if err := json.Unmarshal([]byte(raw), &cmd); err != nil {
		return nil, err
	}
	return &cmd, nil
}
