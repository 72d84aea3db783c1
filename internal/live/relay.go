package live

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// DefaultChannel carries live messages between instances.
const DefaultChannel = "attendance:checkins"

// RedisRelay publishes hub messages on a Redis channel and feeds messages
// from the channel back into a local handler.
type RedisRelay struct {
	client  *redis.Client
	channel string
	log     zerolog.Logger
}

// NewRedisRelay creates a relay on channel (DefaultChannel when empty).
func NewRedisRelay(client *redis.Client, channel string, log zerolog.Logger) *RedisRelay {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisRelay{client: client, channel: channel, log: log.With().Str("component", "live_relay").Logger()}
}

// Publish sends msg to every subscribed instance.
func (r *RedisRelay) Publish(ctx context.Context, msg Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return r.client.Publish(ctx, r.channel, body).Err()
}

// Run subscribes and calls handle for every message until ctx ends.
func (r *RedisRelay) Run(ctx context.Context, handle func(Message)) error {
	pubsub := r.client.Subscribe(ctx, r.channel)
	defer pubsub.Close()
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", r.channel, err)
	}
	r.log.Info().Str("channel", r.channel).Msg("live relay subscribed")

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case m, ok := <-ch:
			if !ok {
				return nil
			}
			var msg Message
			if err := json.Unmarshal([]byte(m.Payload), &msg); err != nil {
				r.log.Warn().Err(err).Msg("dropping undecodable live message")
				continue
			}
			handle(msg)
		}
	}
}
