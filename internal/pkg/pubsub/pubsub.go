package pubsub

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"
)

const (
	ChannelVipEvents = "vip_events"
)

// 事件类型
const (
	EventVipActivated = "vip_activated"
	EventVipExpired   = "vip_expired"
)

// VipEventMessage 会员状态变更消息
type VipEventMessage struct {
	Type           string `json:"type"`
	UserID         int64  `json:"user_id"`
	HistoryID      int64  `json:"history_id"`
	DurationMonths int    `json:"duration_months"`
	StartDate      string `json:"start_date"`
	EndDate        string `json:"end_date"`
	TransactionID  string `json:"transaction_id,omitempty"`
	Message        string `json:"message,omitempty"`
}

// 事件对应的默认提示
var EventMessages = map[string]string{
	EventVipActivated: "VIP 已开通",
	EventVipExpired:   "VIP 已过期",
}

// Publisher Redis 发布者
type Publisher struct {
	client *redis.Client
}

// NewPublisher 创建发布者
func NewPublisher(client *redis.Client) *Publisher {
	return &Publisher{client: client}
}

// PublishActivated 发布开通消息
func (p *Publisher) PublishActivated(ctx context.Context, msg *VipEventMessage) error {
	msg.Type = EventVipActivated
	return p.publish(ctx, msg)
}

// PublishExpired 发布过期消息
func (p *Publisher) PublishExpired(ctx context.Context, msg *VipEventMessage) error {
	msg.Type = EventVipExpired
	return p.publish(ctx, msg)
}

func (p *Publisher) publish(ctx context.Context, msg *VipEventMessage) error {
	if msg.Message == "" {
		msg.Message = EventMessages[msg.Type]
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal vip event: %w", err)
	}

	return p.client.Publish(ctx, ChannelVipEvents, data).Err()
}

// Subscriber Redis 订阅者
type Subscriber struct {
	client *redis.Client
}

// NewSubscriber 创建订阅者
func NewSubscriber(client *redis.Client) *Subscriber {
	return &Subscriber{client: client}
}

// Subscribe 订阅会员事件，ctx 结束时返回
func (s *Subscriber) Subscribe(ctx context.Context, handler func(*VipEventMessage)) error {
	pubsub := s.client.Subscribe(ctx, ChannelVipEvents)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe %s: %w", ChannelVipEvents, err)
	}

	ch := pubsub.Channel()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}

			var event VipEventMessage
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				continue // 忽略解析错误
			}

			handler(&event)
		}
	}
}
