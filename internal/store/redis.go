package store

import (
	"context"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Redis implements Store on a Redis backend: lists for history, sets
// for presence, Redis pub/sub for fan-out between relay processes.
type Redis struct {
	client *redis.Client
	log    zerolog.Logger
}

// NewRedis wraps an already-connected Redis client. Connection
// establishment and ping checks are the caller's concern.
func NewRedis(client *redis.Client, log zerolog.Logger) *Redis {
	return &Redis{
		client: client,
		log:    log.With().Str("component", "store").Logger(),
	}
}

func (r *Redis) ListAppend(ctx context.Context, key, value string) (int64, error) {
	return r.client.RPush(ctx, key, value).Result()
}

func (r *Redis) ListRange(ctx context.Context, key string) ([]string, error) {
	return r.client.LRange(ctx, key, 0, -1).Result()
}

func (r *Redis) SetAdd(ctx context.Context, key, member string) (int64, error) {
	return r.client.SAdd(ctx, key, member).Result()
}

func (r *Redis) SetRemove(ctx context.Context, key, member string) (int64, error) {
	return r.client.SRem(ctx, key, member).Result()
}

func (r *Redis) SetMembers(ctx context.Context, key string) ([]string, error) {
	return r.client.SMembers(ctx, key).Result()
}

func (r *Redis) Publish(ctx context.Context, channel, payload string) error {
	return r.client.Publish(ctx, channel, payload).Err()
}

// Subscribe blocks until Redis confirms the subscription, then pumps
// received messages to onMessage from a dedicated goroutine. The pump
// exits when the subscription is closed.
func (r *Redis) Subscribe(ctx context.Context, channel string, onMessage func(channel, payload string)) (Subscription, error) {
	pubsub := r.client.Subscribe(ctx, channel)

	// Wait for the subscription confirmation so callers can rely on
	// observing everything published after Subscribe returns.
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, err
	}

	go func() {
		for msg := range pubsub.Channel() {
			onMessage(msg.Channel, msg.Payload)
		}
		r.log.Debug().Str("channel", channel).Msg("subscription pump stopped")
	}()

	return pubsub, nil
}
