package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"fleet-rollout/internal/model"
	"fleet-rollout/internal/queue"
	"fleet-rollout/pkg/constants"
	pkgErrors "fleet-rollout/pkg/errors"
)

// Deliverer 将消费到的指令交给持有 Agent 连接的网关
type Deliverer interface {
	Deliver(ctx context.Context, location *Location, cmd queue.CommandMessage) error
}

// RelayMessage 跨副本投递消息, 与 hub 的 agent 频道格式一致
type RelayMessage struct {
	TargetAgentID string          `json:"targetAgentId"`
	SourceServer  string          `json:"sourceServer,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

// HubRelay 通过 Agent 专属频道转交给其所在副本的 hub
type HubRelay struct {
	rdb      redis.UniversalClient
	serverID string
}

func NewHubRelay(rdb redis.UniversalClient, serverID string) *HubRelay {
	return &HubRelay{rdb: rdb, serverID: serverID}
}

func (h *HubRelay) Deliver(ctx context.Context, _ *Location, cmd queue.CommandMessage) error {
	payload, err := json.Marshal(cmd)
	if err != nil {
		return err
	}
	msg, err := json.Marshal(RelayMessage{
		TargetAgentID: cmd.AgentID,
		SourceServer:  h.serverID,
		Payload:       payload,
	})
	if err != nil {
		return err
	}
	if err := h.rdb.Publish(ctx, AgentChannelPrefix+cmd.AgentID, msg).Err(); err != nil {
		return fmt.Errorf("发布到 Agent 频道失败: %w", err)
	}
	return nil
}

// LogDeliverer 只记录日志, 用于未部署 hub 的环境
type LogDeliverer struct {
	logger *zap.Logger
}

func NewLogDeliverer(logger *zap.Logger) *LogDeliverer {
	return &LogDeliverer{logger: logger}
}

func (d *LogDeliverer) Deliver(_ context.Context, location *Location, cmd queue.CommandMessage) error {
	d.logger.Info("📨 指令投递",
		zap.String("command_id", cmd.ID),
		zap.String("agent_id", cmd.AgentID),
		zap.String("type", cmd.CommandType),
		zap.String("server_id", location.ServerID))
	return nil
}

// NewDeliverer 按配置选择投递方式: relay/log
func NewDeliverer(kind string, rdb redis.UniversalClient, serverID string, logger *zap.Logger) Deliverer {
	if kind == "log" {
		return NewLogDeliverer(logger)
	}
	return NewHubRelay(rdb, serverID)
}

// CommandHandler 指令通道消费回调: Agent 仍在线则投递, 已离线则转入暂存等待补发
func (c *Connection) CommandHandler(deliverer Deliverer) queue.CommandHandler {
	return func(ctx context.Context, cmd queue.CommandMessage) error {
		location, err := c.LocationOf(ctx, cmd.AgentID)
		if err != nil {
			return err
		}
		if location != nil {
			return deliverer.Deliver(ctx, location, cmd)
		}
		return c.requeue(ctx, cmd)
	}
}

// requeue Agent 已离线: 补发的指令恢复原暂存记录, 其余按创建时间计算过期, 不会因反复离线而延长
func (c *Connection) requeue(ctx context.Context, cmd queue.CommandMessage) error {
	if id, ok := parseQueuedCommandID(cmd.ID); ok {
		return c.restore(ctx, id, cmd)
	}

	if cmd.DeviceID == uuid.Nil {
		return pkgErrors.Newf(pkgErrors.CodeDeliveryFailure, "Agent %s 不在线且指令未关联设备", cmd.AgentID)
	}
	device, err := c.devices.GetByUUID(ctx, cmd.DeviceID)
	if err != nil {
		return err
	}

	priority, expires := constants.PriorityNormal, constants.UpdateCommandExpireMinutes
	if cmd.CommandType == constants.CommandTypeRollbackAgent {
		priority, expires = constants.PriorityHigh, constants.RollbackCommandExpireMinutes
	}
	createdAt := cmd.CreatedAt
	if createdAt.IsZero() {
		createdAt = c.now()
	}
	return c.store(ctx, &model.QueuedCommand{
		DeviceID:    device.ID,
		AgentID:     cmd.AgentID,
		CommandType: cmd.CommandType,
		Payload:     datatypes.JSON(cmd.Payload),
		Priority:    priority,
		ExpiresAt:   createdAt.Add(time.Duration(expires) * time.Minute),
	}, cmd)
}

// restore 恢复补发前的暂存记录; 补发标记尚未写入时另存一份, 过期时间沿用原记录
func (c *Connection) restore(ctx context.Context, id int64, cmd queue.CommandMessage) error {
	original, err := c.queued.GetByID(ctx, id)
	if errors.Is(err, pkgErrors.ErrNotFound) {
		c.logger.Info("暂存记录已清理, 丢弃指令", zap.String("command_id", cmd.ID))
		return nil
	}
	if err != nil {
		return err
	}

	restored, err := c.queued.Requeue(ctx, id)
	if err != nil {
		return fmt.Errorf("恢复暂存指令失败: %w", err)
	}
	if restored {
		c.logger.Info("Agent 已离线, 指令恢复为待补发",
			zap.String("command_id", cmd.ID),
			zap.String("agent_id", cmd.AgentID),
			zap.Time("expires_at", original.ExpiresAt))
		return nil
	}
	return c.store(ctx, &model.QueuedCommand{
		DeviceID:    original.DeviceID,
		AgentID:     original.AgentID,
		CommandType: original.CommandType,
		Payload:     original.Payload,
		Priority:    original.Priority,
		ExpiresAt:   original.ExpiresAt,
	}, cmd)
}

func (c *Connection) store(ctx context.Context, queued *model.QueuedCommand, cmd queue.CommandMessage) error {
	if !queued.ExpiresAt.After(c.now()) {
		c.logger.Info("Agent 已离线且指令已过期, 丢弃",
			zap.String("command_id", cmd.ID),
			zap.String("agent_id", cmd.AgentID),
			zap.Time("expires_at", queued.ExpiresAt))
		return nil
	}
	if err := c.queued.Create(ctx, queued); err != nil {
		return fmt.Errorf("暂存指令失败: %w", err)
	}
	c.logger.Info("Agent 已离线, 指令转入暂存",
		zap.String("command_id", cmd.ID),
		zap.String("agent_id", cmd.AgentID),
		zap.String("type", cmd.CommandType),
		zap.Time("expires_at", queued.ExpiresAt))
	return nil
}
