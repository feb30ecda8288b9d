package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	channelPrefix  = "session:"
	publishTimeout = 5 * time.Second
)

// bridgePayload is the message published to Redis. Origin lets instances
// skip their own messages, since Publish already delivered locally.
type bridgePayload struct {
	Origin string          `json:"origin"`
	Event  string          `json:"event"`
	Data   json.RawMessage `json:"data"`
	At     int64           `json:"at"`
}

// RedisBridge fans session events out through Redis pub/sub so clients
// connected to another instance still receive them.
type RedisBridge struct {
	client   *redis.Client
	instance string
	logger   *zap.Logger
}

// NewRedisBridge creates a bridge with a unique instance identity.
func NewRedisBridge(client *redis.Client, logger *zap.Logger) *RedisBridge {
	return &RedisBridge{client: client, instance: uuid.New().String(), logger: logger}
}

// Publish sends an event to the session's Redis channel.
func (b *RedisBridge) Publish(code, event string, payload []byte) error {
	body, err := json.Marshal(bridgePayload{
		Origin: b.instance,
		Event:  event,
		Data:   payload,
		At:     time.Now().Unix(),
	})
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	return b.client.Publish(ctx, channelPrefix+code, body).Err()
}

// Subscribe listens on a session's channel, invoking handler for every event
// published by another instance. Returns a cancel function.
func (b *RedisBridge) Subscribe(code string, handler func(event string, payload []byte)) (cancel func(), err error) {
	ctx, cancelCtx := context.WithCancel(context.Background())
	pubsub := b.client.Subscribe(ctx, channelPrefix+code)
	if _, err := pubsub.Receive(ctx); err != nil {
		cancelCtx()
		return nil, fmt.Errorf("subscribe %s: %w", code, err)
	}

	ch := pubsub.Channel()
	go func() {
		defer pubsub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var p bridgePayload
				if err := json.Unmarshal([]byte(msg.Payload), &p); err != nil {
					b.logger.Warn("bridge payload unmarshal", zap.Error(err))
					continue
				}
				if p.Origin == b.instance {
					continue
				}
				handler(p.Event, p.Data)
			}
		}
	}()
	return func() { cancelCtx() }, nil
}
