package bus

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"hzbot/internal/pkg/logx"
)

// Redis is a Broker backed by Redis pub/sub and sets, shared by every connector process.
type Redis struct {
	client *redis.Client
	logger zerolog.Logger
}

// NewRedis connects to the Redis server at url ("redis://host:port/db") and pings it.
func NewRedis(ctx context.Context, url string) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse REDIS_URL: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return NewRedisFromClient(client), nil
}

// NewRedisFromClient wraps an existing client.
func NewRedisFromClient(client *redis.Client) *Redis {
	return &Redis{
		client: client,
		logger: logx.Component("bus.redis"),
	}
}

// Publish sends payload to topic.
func (r *Redis) Publish(ctx context.Context, topic string, payload []byte) error {
	if err := r.client.Publish(ctx, topic, payload).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// Subscribe opens a pattern subscription. It returns once Redis has confirmed it.
func (r *Redis) Subscribe(ctx context.Context, pattern string) (<-chan Message, func(), error) {
	ps := r.client.PSubscribe(ctx, pattern)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, nil, fmt.Errorf("psubscribe %s: %w", pattern, err)
	}

	out := make(chan Message, DefaultBufferSize)
	done := make(chan struct{})

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			close(done)
			if err := ps.Close(); err != nil {
				r.logger.Warn().Err(err).Str("pattern", pattern).Msg("Failed to close subscription.")
			}
		})
	}

	go func() {
		defer close(out)

		in := ps.Channel(redis.WithChannelSize(DefaultBufferSize))
		for {
			select {
			case <-ctx.Done():
				cancel()
				return
			case <-done:
				return
			case msg, ok := <-in:
				if !ok {
					return
				}
				select {
				case out <- Message{Topic: msg.Channel, Payload: []byte(msg.Payload)}:
				case <-done:
					return
				case <-ctx.Done():
					cancel()
					return
				}
			}
		}
	}()

	return out, cancel, nil
}

// AddChannel adds the channel to the platform set and announces the change atomically.
func (r *Redis) AddChannel(ctx context.Context, platform, channel string) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SAdd(ctx, ChannelSetKey(platform), channel)
		pipe.Publish(ctx, ChannelUpdateTopic(platform), ChannelListUpdated)
		return nil
	})
	if err != nil {
		return fmt.Errorf("add channel %s to %s: %w", channel, platform, err)
	}
	return nil
}

// SyncChannels replaces the platform set and announces the change atomically.
func (r *Redis) SyncChannels(ctx context.Context, platform string, channels []string) error {
	members := make([]any, 0, len(channels))
	for _, c := range channels {
		members = append(members, c)
	}

	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, ChannelSetKey(platform))
		if len(members) > 0 {
			pipe.SAdd(ctx, ChannelSetKey(platform), members...)
		}
		pipe.Publish(ctx, ChannelUpdateTopic(platform), ChannelListUpdated)
		return nil
	})
	if err != nil {
		return fmt.Errorf("sync channels of %s: %w", platform, err)
	}
	return nil
}

// Channels returns the platform set, sorted.
func (r *Redis) Channels(ctx context.Context, platform string) ([]string, error) {
	members, err := r.client.SMembers(ctx, ChannelSetKey(platform)).Result()
	if err != nil {
		return nil, fmt.Errorf("read channels of %s: %w", platform, err)
	}
	slices.Sort(members)
	return members, nil
}

// Close closes the client and every subscription opened through it.
func (r *Redis) Close() error {
	return r.client.Close()
}
