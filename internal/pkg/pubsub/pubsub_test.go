package pubsub

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*redis.Client, func()) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	cleanup := func() {
		client.Close()
		mr.Close()
	}

	return client, cleanup
}

func TestEntitlementMessage_JSON(t *testing.T) {
	msg := &EntitlementMessage{
		Type:               "entitlement.updated",
		UserID:             1,
		SubscriptionStatus: "premium",
		CurrentPeriodEnd:   "2026-09-01T00:00:00Z",
	}

	// Marshal to JSON
	data, err := json.Marshal(msg)
	require.NoError(t, err)

	// Verify snake_case keys
	var raw map[string]interface{}
	err = json.Unmarshal(data, &raw)
	require.NoError(t, err)

	assert.Contains(t, raw, "user_id")
	assert.Contains(t, raw, "subscription_status")
	assert.Contains(t, raw, "current_period_end")

	// Unmarshal back
	var decoded EntitlementMessage
	err = json.Unmarshal(data, &decoded)
	require.NoError(t, err)

	assert.Equal(t, msg.UserID, decoded.UserID)
	assert.Equal(t, msg.SubscriptionStatus, decoded.SubscriptionStatus)
	assert.Equal(t, msg.CurrentPeriodEnd, decoded.CurrentPeriodEnd)
}

func TestEntitlementMessage_OmitEmpty(t *testing.T) {
	msg := &EntitlementMessage{
		UserID:             1,
		SubscriptionStatus: "free",
	}

	data, err := json.Marshal(msg)
	require.NoError(t, err)

	// CurrentPeriodEnd should be omitted when empty
	var raw map[string]interface{}
	err = json.Unmarshal(data, &raw)
	require.NoError(t, err)

	_, hasPeriodEnd := raw["current_period_end"]
	assert.False(t, hasPeriodEnd, "empty current_period_end should be omitted")
}

func TestPublisherSubscriber_RoundTrip(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	defer cleanup()

	publisher := NewPublisher(client)
	subscriber := NewSubscriber(client)

	testCtx, testCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer testCancel()

	received := make(chan *EntitlementMessage, 1)

	// Start subscriber in goroutine
	go func() {
		subscriber.Subscribe(testCtx, func(msg *EntitlementMessage) {
			received <- msg
		})
	}()

	// Give subscriber time to connect
	time.Sleep(100 * time.Millisecond)

	// Publish a message
	msg := &EntitlementMessage{
		UserID:             123,
		SubscriptionStatus: "premium",
		CurrentPeriodEnd:   "2026-09-01T00:00:00Z",
	}

	err := publisher.PublishEntitlement(testCtx, msg)
	require.NoError(t, err)

	// Wait for message
	select {
	case receivedMsg := <-received:
		assert.Equal(t, msg.UserID, receivedMsg.UserID)
		assert.Equal(t, "premium", receivedMsg.SubscriptionStatus)
		assert.Equal(t, "entitlement.updated", receivedMsg.Type) // Auto-filled on publish
	case <-testCtx.Done():
		t.Fatal("Timeout waiting for message")
	}
}

func TestPublisher_FillsType(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	defer cleanup()

	ctx := context.Background()
	publisher := NewPublisher(client)

	msg := &EntitlementMessage{
		UserID:             1,
		SubscriptionStatus: "cancelled",
	}

	err := publisher.PublishEntitlement(ctx, msg)
	require.NoError(t, err)
	assert.Equal(t, "entitlement.updated", msg.Type)
}

func TestSubscriber_StopsOnCancel(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	defer cleanup()

	subscriber := NewSubscriber(client)

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- subscriber.Subscribe(ctx, func(msg *EntitlementMessage) {})
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Subscribe did not return after cancel")
	}
}

func TestNewPublisher(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	defer cleanup()

	publisher := NewPublisher(client)
	assert.NotNil(t, publisher)
}

func TestNewSubscriber(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	defer cleanup()

	subscriber := NewSubscriber(client)
	assert.NotNil(t, subscriber)
}
