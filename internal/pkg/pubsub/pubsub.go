package pubsub

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"
)

const (
	ChannelEntitlement = "entitlement_events"
)

// EntitlementMessage announces a subscription-status change so connected
// clients can refresh without polling.
type EntitlementMessage struct {
	Type               string `json:"type"`
	UserID             int64  `json:"user_id"`
	SubscriptionStatus string `json:"subscription_status"`
	CurrentPeriodEnd   string `json:"current_period_end,omitempty"`
}

// Publisher publishes entitlement changes to Redis.
type Publisher struct {
	client *redis.Client
}

func NewPublisher(client *redis.Client) *Publisher {
	return &Publisher{client: client}
}

// PublishEntitlement publishes one status change.
func (p *Publisher) PublishEntitlement(ctx context.Context, msg *EntitlementMessage) error {
	msg.Type = "entitlement.updated"

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal entitlement message: %w", err)
	}

	return p.client.Publish(ctx, ChannelEntitlement, data).Err()
}

// Subscriber consumes entitlement changes from Redis.
type Subscriber struct {
	client *redis.Client
}

func NewSubscriber(client *redis.Client) *Subscriber {
	return &Subscriber{client: client}
}

// Subscribe invokes handler for each message until ctx is cancelled.
func (s *Subscriber) Subscribe(ctx context.Context, handler func(*EntitlementMessage)) error {
	pubsub := s.client.Subscribe(ctx, ChannelEntitlement)
	defer pubsub.Close()

	ch := pubsub.Channel()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}

			var entMsg EntitlementMessage
			if err := json.Unmarshal([]byte(msg.Payload), &entMsg); err != nil {
				continue
			}

			handler(&entMsg)
		}
	}
}
