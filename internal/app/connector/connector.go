/*
Package connector holds what the platform connectors share: forwarding inbound chat
messages to the dispatcher and draining the platform's outgoing bus topic.
*/
package connector

import (
	"context"

	"hzbot/internal/app/bus"
	"hzbot/internal/app/platform"
	"hzbot/internal/pkg/logx"
)

// Dispatcher is the part of the command dispatcher a connector talks to.
type Dispatcher interface {
	StripPrefix(ctx context.Context, channel platform.ChannelIdentifier, text string) (string, bool)
	Dispatch(ctx context.Context, in platform.Inbound)
}

// Forward dispatches in when its text starts with the channel's command prefix.
// It reports whether the message was meant for the bot.
func Forward(ctx context.Context, d Dispatcher, in platform.Inbound) bool {
	text, ok := d.StripPrefix(ctx, in.Context.Channel, in.Text)
	if !ok {
		return false
	}

	in.Text = text
	d.Dispatch(ctx, in)
	return true
}

// Deliver subscribes to the platform's outgoing topic and hands every message to send
// until ctx is done. Malformed payloads and send failures are logged and skipped.
func Deliver(ctx context.Context, b bus.Bus, prefix, platformName string, send func(bus.OutgoingMessage) error) error {
	topic := bus.OutgoingTopic(prefix, platformName)
	msgs, cancel, err := b.Subscribe(ctx, topic)
	if err != nil {
		return err
	}
	defer cancel()

	logger := logx.Component("connector." + platformName)
	logger.Info().Str("topic", topic).Msg("Delivering outgoing messages.")

	for {
		select {
		case <-ctx.Done():
			return nil

		case m, ok := <-msgs:
			if !ok {
				return nil
			}

			out, err := bus.DecodeOutgoing(m.Payload)
			if err != nil {
				logger.Warn().Err(err).Str("topic", m.Topic).Msg("Dropping malformed outgoing message.")
				continue
			}

			if err := send(out); err != nil {
				logger.Error().Err(err).Str("channel", out.ChannelID).Msg("Failed to deliver outgoing message.")
			}
		}
	}
}

// WatchChannels calls join with the platform's channel set once at start and again after
// every channel list notification, until ctx is done.
func WatchChannels(ctx context.Context, b bus.Bus, registry bus.ChannelRegistry, platformName string, join func([]string)) error {
	msgs, cancel, err := b.Subscribe(ctx, bus.ChannelUpdateTopic(platformName))
	if err != nil {
		return err
	}
	defer cancel()

	logger := logx.Component("connector." + platformName)

	refresh := func() {
		channels, err := registry.Channels(ctx, platformName)
		if err != nil {
			logger.Error().Err(err).Msg("Failed to read channel set.")
			return
		}
		join(channels)
	}

	refresh()
	for {
		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-msgs:
			if !ok {
				return nil
			}
			refresh()
		}
	}
}
