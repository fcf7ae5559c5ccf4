/*
Package delivery sends reply text to a channel: it runs the channel's message filters
and publishes what is left on the platform's outgoing topic.
*/
package delivery

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"hzbot/internal/app/bus"
	"hzbot/internal/app/filter"
	"hzbot/internal/app/platform"
	"hzbot/internal/app/store"
	"hzbot/internal/pkg/errs"
	"hzbot/internal/pkg/logx"
	"hzbot/internal/pkg/telemetry"
)

// FilterSource looks up a channel's message filters.
type FilterSource interface {
	GetChannel(ctx context.Context, ident platform.ChannelIdentifier) (*store.Channel, error)
	GetFilters(ctx context.Context, channelID int64) ([]store.Filter, error)
}

// Sender delivers replies through the bus.
type Sender struct {
	filters FilterSource
	bus     bus.Bus
	prefix  string
	logger  zerolog.Logger
}

// NewSender creates a Sender publishing on "<prefix><platform>".
func NewSender(filters FilterSource, b bus.Bus, prefix string) *Sender {
	if prefix == "" {
		prefix = bus.DefaultOutgoingPrefix
	}
	return &Sender{
		filters: filters,
		bus:     b,
		prefix:  prefix,
		logger:  logx.Component("delivery"),
	}
}

// Prefix returns the outgoing topic prefix.
func (s *Sender) Prefix() string {
	return s.prefix
}

// Filter applies the channel's filters to text. Channels the store does not know have none.
func (s *Sender) Filter(ctx context.Context, channel platform.ChannelIdentifier, text string) (string, error) {
	ch, err := s.filters.GetChannel(ctx, channel)
	if err != nil {
		return "", errs.Wrap(errs.ErrStore, err)
	}
	if ch == nil {
		return text, nil
	}

	filters, err := s.filters.GetFilters(ctx, ch.ID)
	if err != nil {
		return "", errs.Wrap(errs.ErrStore, err)
	}
	return filter.Apply(text, filters), nil
}

// SendToChannel filters text and publishes it to the channel's platform. It reports
// false when the filters left nothing to send.
func (s *Sender) SendToChannel(ctx context.Context, channel platform.ChannelIdentifier, text string) (bool, error) {
	platformName, ok := channel.PlatformName()
	if !ok {
		return false, fmt.Errorf("channel %s has no outgoing platform", channel)
	}

	text, err := s.Filter(ctx, channel, text)
	if err != nil {
		return false, err
	}
	if text == "" {
		s.logger.Debug().Str("channel", channel.String()).Msg("Message removed by filters.")
		return false, nil
	}

	payload, err := bus.OutgoingMessage{ChannelID: channel.Channel, Contents: text}.Encode()
	if err != nil {
		return false, err
	}

	topic := bus.OutgoingTopic(s.prefix, platformName)
	if err := s.bus.Publish(ctx, topic, payload); err != nil {
		telemetry.BusPublishFailed("outgoing")
		s.logger.Error().Err(err).Str("topic", topic).Msg("Failed to publish outgoing message.")
		return false, fmt.Errorf("publish to %s: %w", topic, err)
	}
	return true, nil
}
