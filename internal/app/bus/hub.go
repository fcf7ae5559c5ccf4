package bus

import (
	"context"
	"path"
	"slices"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"hzbot/internal/pkg/logx"
)

type subscription struct {
	pattern string
	ch      chan Message
}

// Hub is an in-process Broker. Slow subscribers miss messages instead of blocking publishers.
type Hub struct {
	mu       sync.RWMutex
	streams  map[string]subscription
	channels map[string]map[string]struct{}
	closed   bool
	logger   zerolog.Logger
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		streams:  make(map[string]subscription),
		channels: make(map[string]map[string]struct{}),
		logger:   logx.Component("bus.hub"),
	}
}

// Publish delivers payload to every subscription whose pattern matches topic.
func (h *Hub) Publish(_ context.Context, topic string, payload []byte) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.closed {
		return ErrClosed
	}

	for id, sub := range h.streams {
		if ok, _ := path.Match(sub.pattern, topic); !ok {
			continue
		}
		select {
		case sub.ch <- Message{Topic: topic, Payload: slices.Clone(payload)}:
		default:
			h.logger.Warn().Str("stream_id", id).Str("topic", topic).Msg("Subscriber buffer full, dropping message.")
		}
	}
	return nil
}

// Subscribe registers a pattern subscription.
func (h *Hub) Subscribe(ctx context.Context, pattern string) (<-chan Message, func(), error) {
	if _, err := path.Match(pattern, ""); err != nil {
		return nil, nil, err
	}

	streamID := uuid.NewString()
	ch := make(chan Message, DefaultBufferSize)

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, nil, ErrClosed
	}
	h.streams[streamID] = subscription{pattern: pattern, ch: ch}
	h.mu.Unlock()

	done := make(chan struct{})
	var once sync.Once
	cancel := func() {
		once.Do(func() {
			close(done)
			h.mu.Lock()
			if sub, ok := h.streams[streamID]; ok {
				delete(h.streams, streamID)
				close(sub.ch)
			}
			h.mu.Unlock()
		})
	}

	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-done:
		}
	}()

	return ch, cancel, nil
}

// AddChannel adds the channel to the platform set and announces the change.
func (h *Hub) AddChannel(ctx context.Context, platform, channel string) error {
	h.mu.Lock()
	set, ok := h.channels[platform]
	if !ok {
		set = make(map[string]struct{})
		h.channels[platform] = set
	}
	set[channel] = struct{}{}
	h.mu.Unlock()

	return h.Publish(ctx, ChannelUpdateTopic(platform), []byte(ChannelListUpdated))
}

// SyncChannels replaces the platform set and announces the change.
func (h *Hub) SyncChannels(ctx context.Context, platform string, channels []string) error {
	set := make(map[string]struct{}, len(channels))
	for _, c := range channels {
		set[c] = struct{}{}
	}

	h.mu.Lock()
	h.channels[platform] = set
	h.mu.Unlock()

	return h.Publish(ctx, ChannelUpdateTopic(platform), []byte(ChannelListUpdated))
}

// Channels returns the platform set, sorted.
func (h *Hub) Channels(_ context.Context, platform string) ([]string, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]string, 0, len(h.channels[platform]))
	for c := range h.channels[platform] {
		out = append(out, c)
	}
	slices.Sort(out)
	return out, nil
}

// Close ends every subscription.
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil
	}
	h.closed = true
	for id, sub := range h.streams {
		delete(h.streams, id)
		close(sub.ch)
	}
	return nil
}
