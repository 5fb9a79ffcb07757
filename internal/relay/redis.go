// Package relay fans room emissions out across server instances over a
// Redis pub/sub channel.
package relay

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/devaloi/courier/internal/observability"
)

// Deliverer hands a received emission to the local connections of room.
type Deliverer interface {
	EmitLocal(room string, data []byte)
}

type frame struct {
	Room    string          `json:"room"`
	Payload json.RawMessage `json:"payload"`
}

// Redis publishes and receives room emissions on one channel.
type Redis struct {
	client  *redis.Client
	channel string
	log     *zap.Logger
}

// New creates a relay on channel.
func New(client *redis.Client, channel string, log *zap.Logger) *Redis {
	return &Redis{client: client, channel: channel, log: log.With(zap.String("channel", channel))}
}

// Publish sends data for room to every subscribed instance.
func (r *Redis) Publish(ctx context.Context, room string, data []byte) error {
	msg, err := json.Marshal(frame{Room: room, Payload: data})
	if err != nil {
		return fmt.Errorf("relay: encode: %w", err)
	}
	if err := r.client.Publish(ctx, r.channel, msg).Err(); err != nil {
		return fmt.Errorf("relay: publish: %w", err)
	}
	return nil
}

// Subscribe confirms the subscription and then delivers every received
// emission to d until ctx is done.
func (r *Redis) Subscribe(ctx context.Context, d Deliverer) error {
	pubsub := r.client.Subscribe(ctx, r.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return fmt.Errorf("relay: subscribe: %w", err)
	}

	go func() {
		defer pubsub.Close()
		r.log.Info("relay subscribed")

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				r.log.Info("relay stopping")
				return
			case msg, ok := <-ch:
				if !ok {
					r.log.Warn("relay channel closed")
					return
				}
				var f frame
				if err := json.Unmarshal([]byte(msg.Payload), &f); err != nil || f.Room == "" {
					r.log.Warn("relay dropped malformed frame", zap.Error(err))
					continue
				}
				observability.RelayReceived.Inc()
				d.EmitLocal(f.Room, f.Payload)
			}
		}
	}()
	return nil
}

// Ping checks the connection to Redis.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
