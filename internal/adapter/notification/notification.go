package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"fleet-rollout/internal/model"
)

// NotificationType 通知类型
type NotificationType string

const (
	NotifyRolloutStart      NotificationType = "rollout_start"       // 发布开始
	NotifyRolloutComplete   NotificationType = "rollout_complete"    // 发布完成
	NotifyRolloutFailed     NotificationType = "rollout_failed"      // 阶段无法启动
	NotifyRolloutRolledBack NotificationType = "rollout_rolled_back" // 已回滚
	NotifyStagePromoted     NotificationType = "stage_promoted"      // 阶段晋级
)

// NotificationMessage 通知消息
type NotificationMessage struct {
	Type      NotificationType       `json:"type"`
	Title     string                 `json:"title"`
	Content   string                 `json:"content"`
	Timestamp time.Time              `json:"timestamp"`
	Extra     map[string]interface{} `json:"extra,omitempty"` // 额外信息
}

// Notifier 通知器接口
type Notifier interface {
	// Send 发送通知
	Send(ctx context.Context, msg *NotificationMessage) error

	// SendRolloutNotification 发送发布活动通知
	SendRolloutNotification(ctx context.Context, rollout *model.Rollout, notifyType NotificationType, message string) error
}

// New 按配置选择通知器
func New(provider, webhook string, enabled bool, logger *zap.Logger) Notifier {
	logNotifier := NewLogNotifier(logger)
	if provider == "lark" {
		return NewMultiNotifier(logger, logNotifier, NewLarkNotifier(webhook, enabled, logger))
	}
	return logNotifier
}

func buildRolloutMessage(rollout *model.Rollout, notifyType NotificationType, message string) *NotificationMessage {
	var title, color string

	switch notifyType {
	case NotifyRolloutStart:
		title = "🚀 版本发布开始"
		color = "blue"
	case NotifyRolloutComplete:
		title = "✅ 版本发布完成"
		color = "green"
	case NotifyRolloutFailed:
		title = "❌ 版本发布失败"
		color = "red"
	case NotifyRolloutRolledBack:
		title = "⏪ 版本发布已回滚"
		color = "orange"
	case NotifyStagePromoted:
		title = "🔄 发布阶段晋级"
		color = "blue"
	default:
		title = "📢 发布通知"
		color = "grey"
	}

	content := fmt.Sprintf("**发布**: %s\n**版本**: %s\n**发起人**: %s\n**消息**: %s",
		rollout.Name, rollout.ReleaseVersion, rollout.CreatedBy, message)

	return &NotificationMessage{
		Type:      notifyType,
		Title:     title,
		Content:   content,
		Timestamp: time.Now(),
		Extra: map[string]interface{}{
			"rollout_id":      rollout.ID,
			"release_version": rollout.ReleaseVersion,
			"color":           color,
		},
	}
}

// ============= Lark 通知适配器 =============

// LarkNotifier Lark通知器
type LarkNotifier struct {
	webhookURL string
	enabled    bool
	logger     *zap.Logger
	client     *http.Client
}

// NewLarkNotifier 创建Lark通知器
func NewLarkNotifier(webhookURL string, enabled bool, logger *zap.Logger) *LarkNotifier {
	return &LarkNotifier{
		webhookURL: webhookURL,
		enabled:    enabled,
		logger:     logger,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Send 发送通知
func (n *LarkNotifier) Send(ctx context.Context, msg *NotificationMessage) error {
	if !n.enabled {
		n.logger.Debug("通知已禁用,跳过发送")
		return nil
	}

	if n.webhookURL == "" {
		n.logger.Warn("Lark Webhook URL未配置")
		return nil
	}

	jsonData, err := json.Marshal(n.buildLarkMessage(msg))
	if err != nil {
		return fmt.Errorf("序列化消息失败: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("创建请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("发送请求失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("Lark API返回错误状态码: %d", resp.StatusCode)
	}

	n.logger.Info("Lark通知发送成功",
		zap.String("type", string(msg.Type)),
		zap.String("title", msg.Title))

	return nil
}

// SendRolloutNotification 发送发布活动通知
func (n *LarkNotifier) SendRolloutNotification(ctx context.Context, rollout *model.Rollout, notifyType NotificationType, message string) error {
	return n.Send(ctx, buildRolloutMessage(rollout, notifyType, message))
}

// buildLarkMessage 构建Lark消息格式
func (n *LarkNotifier) buildLarkMessage(msg *NotificationMessage) map[string]interface{} {
	color := "grey"
	if c, ok := msg.Extra["color"].(string); ok {
		color = c
	}

	// Lark富文本消息格式
	return map[string]interface{}{
		"msg_type": "interactive",
		"card": map[string]interface{}{
			"header": map[string]interface{}{
				"title": map[string]interface{}{
					"tag":     "plain_text",
					"content": msg.Title,
				},
				"template": color,
			},
			"elements": []interface{}{
				map[string]interface{}{
					"tag": "div",
					"text": map[string]interface{}{
						"tag":     "lark_md",
						"content": msg.Content,
					},
				},
				map[string]interface{}{
					"tag": "div",
					"text": map[string]interface{}{
						"tag":     "plain_text",
						"content": fmt.Sprintf("时间: %s", msg.Timestamp.Format("2006-01-02 15:04:05")),
					},
				},
			},
		},
	}
}

// ============= 多通知器 =============

// MultiNotifier 多通知器(支持同时发送到多个渠道)
type MultiNotifier struct {
	notifiers []Notifier
	logger    *zap.Logger
}

// NewMultiNotifier 创建多通知器
func NewMultiNotifier(logger *zap.Logger, notifiers ...Notifier) *MultiNotifier {
	return &MultiNotifier{
		notifiers: notifiers,
		logger:    logger,
	}
}

// Send 发送到所有通知器
func (m *MultiNotifier) Send(ctx context.Context, msg *NotificationMessage) error {
	var lastErr error
	for _, notifier := range m.notifiers {
		if err := notifier.Send(ctx, msg); err != nil {
			m.logger.Error("发送通知失败", zap.Error(err))
			lastErr = err
			// 继续发送其他通知器
		}
	}
	return lastErr
}

// SendRolloutNotification 发送发布活动通知到所有通知器
func (m *MultiNotifier) SendRolloutNotification(ctx context.Context, rollout *model.Rollout, notifyType NotificationType, message string) error {
	var lastErr error
	for _, notifier := range m.notifiers {
		if err := notifier.SendRolloutNotification(ctx, rollout, notifyType, message); err != nil {
			m.logger.Error("发送发布通知失败", zap.Error(err))
			lastErr = err
		}
	}
	return lastErr
}

// ============= 日志通知器(仅记录日志,不发送实际通知) =============

// LogNotifier 日志通知器
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier 创建日志通知器
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{
		logger: logger,
	}
}

// Send 记录通知到日志
func (n *LogNotifier) Send(ctx context.Context, msg *NotificationMessage) error {
	n.logger.Info("📢 通知",
		zap.String("type", string(msg.Type)),
		zap.String("title", msg.Title),
		zap.String("content", msg.Content),
		zap.Any("extra", msg.Extra))
	return nil
}

// SendRolloutNotification 记录发布通知到日志
func (n *LogNotifier) SendRolloutNotification(ctx context.Context, rollout *model.Rollout, notifyType NotificationType, message string) error {
	n.logger.Info("📢 发布通知",
		zap.String("type", string(notifyType)),
		zap.Int64("rollout_id", rollout.ID),
		zap.String("release_version", rollout.ReleaseVersion),
		zap.String("message", message))
	return nil
}
