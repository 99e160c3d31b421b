package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"modelmine/internal/model"
	"modelmine/pkg/interfaces"
	"modelmine/pkg/logger"

	"github.com/go-redis/redis/v8"
)

const (
	channelPrefix  = "job:"
	channelSuffix  = ":progress"
	channelPattern = channelPrefix + "*" + channelSuffix
)

// Channel returns the Redis channel carrying a job's progress events.
func Channel(jobID string) string {
	return channelPrefix + jobID + channelSuffix
}

// RedisBroadcaster publishes progress events on Redis so every replica sees
// them. A relay goroutine pattern-subscribes to all job channels and feeds the
// local Hub, which serves this replica's subscribers.
type RedisBroadcaster struct {
	client *redis.Client
	hub    *Hub

	mu     sync.Mutex
	pubsub *redis.PubSub
	done   chan struct{}
}

// NewRedisBroadcaster creates a broadcaster relaying into hub
func NewRedisBroadcaster(client *redis.Client, hub *Hub) *RedisBroadcaster {
	return &RedisBroadcaster{client: client, hub: hub}
}

// Start subscribes to the job channel pattern and begins relaying. It returns
// once the subscription is confirmed by the server.
func (b *RedisBroadcaster) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pubsub != nil {
		return nil
	}

	pubsub := b.client.PSubscribe(ctx, channelPattern)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return fmt.Errorf("failed to subscribe to %s: %w", channelPattern, err)
	}

	b.pubsub = pubsub
	b.done = make(chan struct{})
	go b.relay(pubsub.Channel(), b.done)

	logger.InfoCtx(ctx, "progress relay subscribed to %s", channelPattern)
	return nil
}

func (b *RedisBroadcaster) relay(messages <-chan *redis.Message, done chan struct{}) {
	defer close(done)
	for msg := range messages {
		var event model.ProgressEvent
		if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
			logger.WarnCtx(context.Background(), "dropping malformed progress message on %s: %v", msg.Channel, err)
			continue
		}
		if event.JobID == "" {
			event.JobID = strings.TrimSuffix(strings.TrimPrefix(msg.Channel, channelPrefix), channelSuffix)
		}
		b.hub.Publish(event)
	}
}

// Publish sends event to Redis. When Redis is unreachable the event is
// delivered to local subscribers only.
func (b *RedisBroadcaster) Publish(event model.ProgressEvent) {
	ctx := context.Background()
	data, err := json.Marshal(event)
	if err != nil {
		logger.ErrorCtx(ctx, "failed to encode progress event for job %s: %v", event.JobID, err)
		return
	}

	if err := b.client.Publish(ctx, Channel(event.JobID), data).Err(); err != nil {
		logger.WarnCtx(ctx, "redis publish failed for job %s, delivering locally: %v", event.JobID, err)
		b.hub.Publish(event)
	}
}

// Subscribe registers a local subscriber
func (b *RedisBroadcaster) Subscribe(topic string) interfaces.ProgressSubscription {
	return b.hub.Subscribe(topic)
}

// Close stops the relay
func (b *RedisBroadcaster) Close() error {
	b.mu.Lock()
	pubsub, done := b.pubsub, b.done
	b.pubsub = nil
	b.mu.Unlock()

	if pubsub == nil {
		return nil
	}
	err := pubsub.Close()
	<-done
	return err
}
