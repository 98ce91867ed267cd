package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"fleet-rollout/internal/metrics"
	pkgErrors "fleet-rollout/pkg/errors"
)

// CommandHandler 处理从通道消费到的指令, 返回错误仅记录, 消息照常 ack
type CommandHandler func(ctx context.Context, cmd CommandMessage) error

// Options 通道调优参数
type Options struct {
	ServerID      string        // consumer 名称, 每个副本唯一
	BatchSize     int64         // 单次 XREADGROUP 读取条数
	BlockDuration time.Duration // 阻塞读超时
	CommandTTL    time.Duration // 指令有效期, 超过即丢弃
	ReclaimIdle   time.Duration // pending 超过该时长视为原 consumer 已崩溃
	MaxDeliveries int64         // 超过投递次数的消息按毒消息丢弃
	Now           func() time.Time
}

func (o *Options) withDefaults() {
	if o.ServerID == "" {
		o.ServerID = "server-" + uuid.NewString()[:8]
	}
	if o.BatchSize <= 0 {
		o.BatchSize = 10
	}
	if o.BlockDuration <= 0 {
		o.BlockDuration = 5 * time.Second
	}
	if o.CommandTTL <= 0 {
		o.CommandTTL = 5 * time.Minute
	}
	if o.ReclaimIdle <= 0 {
		o.ReclaimIdle = 5 * time.Minute
	}
	if o.MaxDeliveries <= 0 {
		o.MaxDeliveries = 5
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

// Stats 通道统计
type Stats struct {
	CommandStreamLength  int64  `json:"command_stream_length"`
	ResponseStreamLength int64  `json:"response_stream_length"`
	PendingCommands      int64  `json:"pending_commands"`
	Waiters              int    `json:"waiters"`
	ServerID             string `json:"server_id"`
}

// CommandChannel 基于 Redis Streams 的指令通道
// 指令流由消费组内多个副本分摊, 响应同时写入响应流(回放/审计)与 pub/sub 频道(低延迟关联)
type CommandChannel struct {
	rdb     redis.UniversalClient
	opts    Options
	logger  *zap.Logger
	metrics *metrics.Metrics

	waiters *responseRegistry
	pubsub  *redis.PubSub

	consumerStarted bool
	mu              sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewCommandChannel 创建通道: 确保消费组存在并建立响应订阅
func NewCommandChannel(ctx context.Context, rdb redis.UniversalClient, logger *zap.Logger, m *metrics.Metrics, opts Options) (*CommandChannel, error) {
	opts.withDefaults()

	runCtx, cancel := context.WithCancel(context.Background())
	c := &CommandChannel{
		rdb:     rdb,
		opts:    opts,
		logger:  logger.With(zap.String("server_id", opts.ServerID)),
		metrics: m,
		waiters: newResponseRegistry(),
		ctx:     runCtx,
		cancel:  cancel,
	}

	if err := c.createConsumerGroups(ctx); err != nil {
		cancel()
		return nil, err
	}

	// 每个进程只保持一个订阅, 按 requestId 分发给等待者
	c.pubsub = rdb.Subscribe(ctx, ResponseTopic)
	if _, err := c.pubsub.Receive(ctx); err != nil {
		_ = c.pubsub.Close()
		cancel()
		return nil, fmt.Errorf("订阅响应频道失败: %w", err)
	}

	c.wg.Add(1)
	go c.fanoutLoop()

	return c, nil
}

// createConsumerGroups 确保指令流与响应流的消费组存在
func (c *CommandChannel) createConsumerGroups(ctx context.Context) error {
	for _, stream := range []string{CommandStreamKey, ResponseStreamKey} {
		err := c.rdb.XGroupCreateMkStream(ctx, stream, ConsumerGroup, "0").Err()
		if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
			return fmt.Errorf("创建消费组失败 %s: %w", stream, err)
		}
	}
	return nil
}

// PublishCommand 写入指令流, 缺省的 ID/RequestID/CreatedAt 会被补齐并回写到 cmd
func (c *CommandChannel) PublishCommand(ctx context.Context, cmd *CommandMessage) error {
	if cmd.ID == "" {
		cmd.ID = uuid.NewString()
	}
	if cmd.RequestID == "" {
		cmd.RequestID = uuid.NewString()
	}
	if cmd.CreatedAt.IsZero() {
		cmd.CreatedAt = c.opts.Now()
	}

	cmdJSON, err := json.Marshal(cmd)
	if err != nil {
		return pkgErrors.Wrap(pkgErrors.CodeSerializationError, "序列化指令失败", err)
	}

	// 路由字段单独存放, 消费者无需反序列化即可过滤
	err = c.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: CommandStreamKey,
		MaxLen: StreamMaxLen,
		Approx: true,
		Values: map[string]interface{}{
			fieldCommand:   string(cmdJSON),
			fieldAgentID:   cmd.AgentID,
			fieldType:      cmd.CommandType,
			fieldRequestID: cmd.RequestID,
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("发布指令失败: %w", err)
	}

	c.metrics.IncCommand("published")
	c.logger.Debug("指令已发布",
		zap.String("command_id", cmd.ID),
		zap.String("agent_id", cmd.AgentID),
		zap.String("type", cmd.CommandType),
		zap.String("request_id", cmd.RequestID))
	return nil
}

// PublishResponse 写入响应流并广播到响应频道
func (c *CommandChannel) PublishResponse(ctx context.Context, resp *ResponseMessage) error {
	if resp.Timestamp.IsZero() {
		resp.Timestamp = c.opts.Now()
	}

	respJSON, err := json.Marshal(resp)
	if err != nil {
		return pkgErrors.Wrap(pkgErrors.CodeSerializationError, "序列化响应失败", err)
	}

	err = c.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: ResponseStreamKey,
		MaxLen: StreamMaxLen,
		Approx: true,
		Values: map[string]interface{}{
			fieldResponse:  string(respJSON),
			fieldCommandID: resp.CommandID,
			fieldRequestID: resp.RequestID,
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("发布响应失败: %w", err)
	}
	c.metrics.IncResponse()

	// 流已持久化, 广播失败不影响回放
	if err := c.rdb.Publish(ctx, ResponseTopic, respJSON).Err(); err != nil {
		c.logger.Warn("广播响应失败", zap.String("request_id", resp.RequestID), zap.Error(err))
	}
	return nil
}

// StartConsumer 启动本进程唯一的消费循环
func (c *CommandChannel) StartConsumer(handler CommandHandler) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.consumerStarted {
		return pkgErrors.InvalidTransition("消费者已启动")
	}
	c.consumerStarted = true

	c.wg.Add(1)
	go c.consumeLoop(handler)
	return nil
}

func (c *CommandChannel) consumeLoop(handler CommandHandler) {
	defer c.wg.Done()
	c.logger.Info("指令消费者启动", zap.String("group", ConsumerGroup))

	for {
		if c.ctx.Err() != nil {
			return
		}

		streams, err := c.rdb.XReadGroup(c.ctx, &redis.XReadGroupArgs{
			Group:    ConsumerGroup,
			Consumer: c.opts.ServerID,
			Streams:  []string{CommandStreamKey, ">"},
			Count:    c.opts.BatchSize,
			Block:    c.opts.BlockDuration,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if c.ctx.Err() != nil {
				return
			}
			// 流被删除后消费组随之消失, 重建后继续
			if strings.HasPrefix(err.Error(), "NOGROUP") {
				if cerr := c.createConsumerGroups(c.ctx); cerr != nil {
					c.logger.Error("重建消费组失败", zap.Error(cerr))
				}
				continue
			}
			c.logger.Error("读取指令流失败", zap.Error(err))
			select {
			case <-time.After(time.Second):
			case <-c.ctx.Done():
				return
			}
			continue
		}

		for _, stream := range streams {
			for _, message := range stream.Messages {
				c.processMessage(message, handler, "handled")
			}
		}
	}
}

// processMessage 处理单条消息, 无论结果如何都 ack(不自动重试, 依赖 reclaim 恢复)
func (c *CommandChannel) processMessage(message redis.XMessage, handler CommandHandler, outcome string) {
	defer c.ackMessage(message.ID)

	cmd, err := decodeCommand(message.Values)
	if err != nil {
		c.metrics.IncCommand("malformed")
		c.logger.Warn("丢弃无法解析的指令",
			zap.String("message_id", message.ID),
			zap.Error(pkgErrors.Wrap(pkgErrors.CodeSerializationError, "指令解析失败", err)))
		return
	}

	// 过期指令绝不延迟执行
	if cmd.Expired(c.opts.Now(), c.opts.CommandTTL) {
		c.metrics.IncCommand("expired")
		c.logger.Info("跳过过期指令",
			zap.String("command_id", cmd.ID),
			zap.Time("created_at", cmd.CreatedAt))
		return
	}

	if err := c.invoke(handler, *cmd); err != nil {
		c.metrics.IncCommand("failed")
		c.logger.Error("指令处理失败",
			zap.String("command_id", cmd.ID),
			zap.String("agent_id", cmd.AgentID),
			zap.Error(err))
		return
	}
	c.metrics.IncCommand(outcome)
}

func (c *CommandChannel) invoke(handler CommandHandler, cmd CommandMessage) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return handler(c.ctx, cmd)
}

func (c *CommandChannel) ackMessage(messageID string) {
	// 关闭过程中也要 ack 已处理的消息
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.rdb.XAck(ctx, CommandStreamKey, ConsumerGroup, messageID).Err(); err != nil {
		c.logger.Warn("ack 失败", zap.String("message_id", messageID), zap.Error(err))
	}
}

// claimPending 认领空闲超过 ReclaimIdle 的 pending 消息, 返回消息及其投递次数
func (c *CommandChannel) claimPending(ctx context.Context) ([]redis.XMessage, map[string]int64, error) {
	pending, err := c.rdb.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: CommandStreamKey,
		Group:  ConsumerGroup,
		Start:  "-",
		End:    "+",
		Count:  100,
	}).Result()
	if err != nil {
		return nil, nil, fmt.Errorf("查询 pending 指令失败: %w", err)
	}

	deliveries := make(map[string]int64)
	var ids []string
	for _, p := range pending {
		if p.Idle < c.opts.ReclaimIdle {
			continue
		}
		ids = append(ids, p.ID)
		deliveries[p.ID] = p.RetryCount
	}
	if len(ids) == 0 {
		return nil, deliveries, nil
	}

	// MinIdle 保证多个副本同时认领时只有一个成功
	messages, err := c.rdb.XClaim(ctx, &redis.XClaimArgs{
		Stream:   CommandStreamKey,
		Group:    ConsumerGroup,
		Consumer: c.opts.ServerID,
		MinIdle:  c.opts.ReclaimIdle,
		Messages: ids,
	}).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, nil, fmt.Errorf("认领 pending 指令失败: %w", err)
	}
	return messages, deliveries, nil
}

// GetPendingCommands 认领崩溃副本遗留的指令并返回, 由调用方决定如何重新处理
func (c *CommandChannel) GetPendingCommands(ctx context.Context) ([]CommandMessage, error) {
	messages, _, err := c.claimPending(ctx)
	if err != nil {
		return nil, err
	}

	commands := make([]CommandMessage, 0, len(messages))
	for _, msg := range messages {
		cmd, err := decodeCommand(msg.Values)
		if err != nil {
			// 已归属本副本, 不 ack 会被反复认领
			c.metrics.IncCommand("malformed")
			c.logger.Warn("丢弃无法解析的遗留指令",
				zap.String("message_id", msg.ID),
				zap.Error(pkgErrors.Wrap(pkgErrors.CodeSerializationError, "指令解析失败", err)))
			c.ackMessage(msg.ID)
			continue
		}
		commands = append(commands, *cmd)
	}
	return commands, nil
}

// ReprocessPending 认领并重新处理遗留指令, 返回处理条数
func (c *CommandChannel) ReprocessPending(ctx context.Context, handler CommandHandler) (int, error) {
	messages, deliveries, err := c.claimPending(ctx)
	if err != nil {
		return 0, err
	}

	for _, msg := range messages {
		if deliveries[msg.ID] > c.opts.MaxDeliveries {
			c.metrics.IncCommand("poison")
			c.logger.Warn("投递次数超限, 丢弃指令",
				zap.String("message_id", msg.ID),
				zap.Int64("deliveries", deliveries[msg.ID]))
			c.ackMessage(msg.ID)
			continue
		}
		c.processMessage(msg, handler, "reclaimed")
	}
	return len(messages), nil
}

// WaitForResponse 等待 requestId 对应的响应; 超时不会撤销已下发的指令
func (c *CommandChannel) WaitForResponse(ctx context.Context, requestID string, timeout time.Duration) (*ResponseMessage, error) {
	ch, release := c.waiters.register(requestID)
	defer release()
	return c.await(ctx, ch, requestID, timeout)
}

// PublishAndWait 先登记等待再发布, 响应早于等待开始也不会丢失
func (c *CommandChannel) PublishAndWait(ctx context.Context, cmd *CommandMessage, timeout time.Duration) (*ResponseMessage, error) {
	if cmd.RequestID == "" {
		cmd.RequestID = uuid.NewString()
	}
	ch, release := c.waiters.register(cmd.RequestID)
	defer release()

	if err := c.PublishCommand(ctx, cmd); err != nil {
		return nil, err
	}
	return c.await(ctx, ch, cmd.RequestID, timeout)
}

func (c *CommandChannel) await(ctx context.Context, ch <-chan ResponseMessage, requestID string, timeout time.Duration) (*ResponseMessage, error) {
	start := time.Now()
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	select {
	case resp := <-ch:
		c.metrics.ObserveResponseWait("ok", time.Since(start).Seconds())
		return &resp, nil
	case <-c.ctx.Done():
		return nil, fmt.Errorf("指令通道已关闭")
	case <-waitCtx.Done():
		if ctx.Err() != nil && !errors.Is(ctx.Err(), context.DeadlineExceeded) {
			c.metrics.ObserveResponseWait("cancelled", time.Since(start).Seconds())
			return nil, ctx.Err()
		}
		c.metrics.ObserveResponseWait("timeout", time.Since(start).Seconds())
		return nil, pkgErrors.Wrap(pkgErrors.CodeTimeout, "等待响应超时",
			fmt.Errorf("request %s after %s", requestID, timeout))
	}
}

// fanoutLoop 将广播的响应分发给本进程内的等待者
func (c *CommandChannel) fanoutLoop() {
	defer c.wg.Done()

	ch := c.pubsub.Channel()
	for {
		select {
		case <-c.ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var resp ResponseMessage
			if err := json.Unmarshal([]byte(msg.Payload), &resp); err != nil {
				c.logger.Warn("丢弃无法解析的响应", zap.Error(err))
				continue
			}
			c.waiters.deliver(resp)
		}
	}
}

// Stats 返回通道统计
func (c *CommandChannel) Stats(ctx context.Context) (*Stats, error) {
	cmdLen, err := c.rdb.XLen(ctx, CommandStreamKey).Result()
	if err != nil {
		return nil, fmt.Errorf("查询指令流长度失败: %w", err)
	}
	respLen, err := c.rdb.XLen(ctx, ResponseStreamKey).Result()
	if err != nil {
		return nil, fmt.Errorf("查询响应流长度失败: %w", err)
	}
	pending, err := c.rdb.XPending(ctx, CommandStreamKey, ConsumerGroup).Result()
	if err != nil {
		return nil, fmt.Errorf("查询 pending 失败: %w", err)
	}

	return &Stats{
		CommandStreamLength:  cmdLen,
		ResponseStreamLength: respLen,
		PendingCommands:      pending.Count,
		Waiters:              c.waiters.pending(),
		ServerID:             c.opts.ServerID,
	}, nil
}

// Close 停止消费与订阅, 等待后台协程退出
func (c *CommandChannel) Close() {
	c.logger.Info("关闭指令通道")
	c.cancel()
	if c.pubsub != nil {
		_ = c.pubsub.Close()
	}
	c.wg.Wait()
}

func errMissingField(name string) error {
	return fmt.Errorf("missing field %q", name)
}
