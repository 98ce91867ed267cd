package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"fleet-rollout/internal/core/rollout"
	"fleet-rollout/internal/model"
	"fleet-rollout/internal/queue"
	"fleet-rollout/pkg/constants"
	pkgErrors "fleet-rollout/pkg/errors"
)

// Redis 中由 WebSocket hub 维护的在线信息
const (
	LocationKeyPrefix  = "sentinel:agent:location:" // agentID -> Location
	AgentChannelPrefix = "sentinel:agent:channel:"  // 跨副本投递频道
	DefaultLocationTTL = 2 * time.Minute
)

// CreatedByRollout 发布编排下发指令的 createdBy
var CreatedByRollout = queue.OperatorID("rollout-manager")

// queuedIDPrefix 补发指令的 ID 前缀, 后接暂存记录 ID
const queuedIDPrefix = "queued-"

// Location Agent 当前连接的副本, 与 hub 写入的格式一致
type Location struct {
	ServerID    string    `json:"serverId"`
	DeviceID    uuid.UUID `json:"deviceId"`
	ConnectedAt time.Time `json:"connectedAt"`
}

// Publisher 指令通道写入能力
type Publisher interface {
	PublishCommand(ctx context.Context, cmd *queue.CommandMessage) error
}

// DeviceStore 设备查询
type DeviceStore interface {
	GetByID(ctx context.Context, id int64) (*model.Device, error)
	GetByUUID(ctx context.Context, id uuid.UUID) (*model.Device, error)
	TouchLastSeen(ctx context.Context, deviceID int64, now time.Time) error
}

// QueueStore 离线指令暂存
type QueueStore interface {
	Create(ctx context.Context, cmd *model.QueuedCommand) error
	ListDeliverable(ctx context.Context, deviceID int64, now time.Time) ([]model.QueuedCommand, error)
	MarkDelivered(ctx context.Context, id int64, now time.Time) (bool, error)
	GetByID(ctx context.Context, id int64) (*model.QueuedCommand, error)
	Requeue(ctx context.Context, id int64) (bool, error)
}

// Connection 实现 rollout.AgentConnection: 在线时写入指令通道, 离线时落库待补发
type Connection struct {
	rdb         redis.UniversalClient
	channel     Publisher
	devices     DeviceStore
	queued      QueueStore
	logger      *zap.Logger
	locationTTL time.Duration
	now         func() time.Time
}

var _ rollout.AgentConnection = (*Connection)(nil)

// NewConnection 创建 Agent 连接适配器
func NewConnection(rdb redis.UniversalClient, channel Publisher, devices DeviceStore, queued QueueStore, logger *zap.Logger) *Connection {
	return &Connection{
		rdb:         rdb,
		channel:     channel,
		devices:     devices,
		queued:      queued,
		logger:      logger,
		locationTTL: DefaultLocationTTL,
		now:         time.Now,
	}
}

// IsOnline 查询失败按离线处理
func (c *Connection) IsOnline(ctx context.Context, deviceID int64) bool {
	device, err := c.devices.GetByID(ctx, deviceID)
	if err != nil {
		c.logger.Warn("查询设备失败", zap.Int64("device_id", deviceID), zap.Error(err))
		return false
	}
	return c.online(ctx, device.AgentID)
}

func (c *Connection) online(ctx context.Context, agentID string) bool {
	exists, err := c.rdb.Exists(ctx, LocationKeyPrefix+agentID).Result()
	if err != nil {
		c.logger.Warn("查询 Agent 在线状态失败", zap.String("agent_id", agentID), zap.Error(err))
		return false
	}
	return exists > 0
}

// SendCommand 在线直接写入指令通道; 离线且允许暂存时落库, 否则返回 DeliveryFailure
func (c *Connection) SendCommand(ctx context.Context, deviceID int64, cmd rollout.Command, opts rollout.SendOptions) (*rollout.CommandHandle, error) {
	device, err := c.devices.GetByID(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	payload, err := json.Marshal(cmd.Payload)
	if err != nil {
		return nil, pkgErrors.Wrap(pkgErrors.CodeSerializationError, "指令内容序列化失败", err)
	}

	if c.online(ctx, device.AgentID) {
		msg := &queue.CommandMessage{
			DeviceID:    device.UUID,
			AgentID:     device.AgentID,
			CommandType: cmd.Type,
			Payload:     string(payload),
			CreatedBy:   CreatedByRollout,
		}
		if err := c.channel.PublishCommand(ctx, msg); err != nil {
			return nil, pkgErrors.Wrap(pkgErrors.CodeDeliveryFailure, "写入指令通道失败", err)
		}
		return &rollout.CommandHandle{CommandID: msg.ID, RequestID: msg.RequestID}, nil
	}

	if !opts.QueueIfOffline {
		return nil, pkgErrors.Newf(pkgErrors.CodeDeliveryFailure, "Agent %s 不在线", device.AgentID)
	}

	priority := opts.Priority
	if priority == "" {
		priority = constants.PriorityNormal
	}
	expires := opts.ExpiresInMinutes
	if expires <= 0 {
		expires = constants.UpdateCommandExpireMinutes
	}
	queued := &model.QueuedCommand{
		DeviceID:    device.ID,
		AgentID:     device.AgentID,
		CommandType: cmd.Type,
		Payload:     datatypes.JSON(payload),
		Priority:    priority,
		ExpiresAt:   c.now().Add(time.Duration(expires) * time.Minute),
	}
	if err := c.queued.Create(ctx, queued); err != nil {
		return nil, pkgErrors.Wrap(pkgErrors.CodeDeliveryFailure, "暂存离线指令失败", err)
	}

	c.logger.Info("Agent 离线, 指令已暂存",
		zap.Int64("device_id", device.ID),
		zap.String("agent_id", device.AgentID),
		zap.String("type", cmd.Type),
		zap.Time("expires_at", queued.ExpiresAt))
	return &rollout.CommandHandle{CommandID: queuedCommandID(queued.ID), Queued: true}, nil
}

// Connected Agent 上线: 记录在线位置并补发暂存指令
func (c *Connection) Connected(ctx context.Context, deviceID int64, serverID string) (int, error) {
	device, err := c.devices.GetByID(ctx, deviceID)
	if err != nil {
		return 0, err
	}

	now := c.now()
	location, err := json.Marshal(Location{ServerID: serverID, DeviceID: device.UUID, ConnectedAt: now})
	if err != nil {
		return 0, err
	}
	if err := c.rdb.Set(ctx, LocationKeyPrefix+device.AgentID, location, c.locationTTL).Err(); err != nil {
		return 0, fmt.Errorf("写入在线位置失败: %w", err)
	}
	if err := c.devices.TouchLastSeen(ctx, device.ID, now); err != nil {
		c.logger.Warn("更新设备在线时间失败", zap.Int64("device_id", device.ID), zap.Error(err))
	}
	return c.drain(ctx, device)
}

// DrainQueued 补发设备未过期的暂存指令, 高优先级在前
func (c *Connection) DrainQueued(ctx context.Context, deviceID int64) (int, error) {
	device, err := c.devices.GetByID(ctx, deviceID)
	if err != nil {
		return 0, err
	}
	return c.drain(ctx, device)
}

// drain 先写通道再标记, 并发补发时可能重复投递
func (c *Connection) drain(ctx context.Context, device *model.Device) (int, error) {
	cmds, err := c.queued.ListDeliverable(ctx, device.ID, c.now())
	if err != nil {
		return 0, fmt.Errorf("查询暂存指令失败: %w", err)
	}

	delivered := 0
	var errs []error
	for _, queued := range cmds {
		msg := &queue.CommandMessage{
			ID:          queuedCommandID(queued.ID),
			DeviceID:    device.UUID,
			AgentID:     device.AgentID,
			CommandType: queued.CommandType,
			Payload:     string(queued.Payload),
			CreatedBy:   CreatedByRollout,
		}
		if err := c.channel.PublishCommand(ctx, msg); err != nil {
			errs = append(errs, fmt.Errorf("补发指令 %d 失败: %w", queued.ID, err))
			continue
		}
		if _, err := c.queued.MarkDelivered(ctx, queued.ID, c.now()); err != nil {
			errs = append(errs, fmt.Errorf("标记指令 %d 已补发失败: %w", queued.ID, err))
			continue
		}
		delivered++
	}

	if delivered > 0 {
		c.logger.Info("暂存指令已补发",
			zap.Int64("device_id", device.ID),
			zap.String("agent_id", device.AgentID),
			zap.Int("count", delivered))
	}
	return delivered, errors.Join(errs...)
}

// LocationOf Agent 当前所在副本, 不在线时返回 nil
func (c *Connection) LocationOf(ctx context.Context, agentID string) (*Location, error) {
	raw, err := c.rdb.Get(ctx, LocationKeyPrefix+agentID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("查询在线位置失败: %w", err)
	}
	var location Location
	if err := json.Unmarshal(raw, &location); err != nil {
		return nil, pkgErrors.Wrap(pkgErrors.CodeSerializationError, "在线位置数据无法解析", err)
	}
	return &location, nil
}

func queuedCommandID(id int64) string {
	return fmt.Sprintf("%s%d", queuedIDPrefix, id)
}

// parseQueuedCommandID 补发指令对应的暂存记录 ID
func parseQueuedCommandID(commandID string) (int64, bool) {
	raw, ok := strings.CutPrefix(commandID, queuedIDPrefix)
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	return id, err == nil && id > 0
}
