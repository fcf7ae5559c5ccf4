package cache

import (
	"context"

	"hzbot/internal/app/platform"
	"hzbot/internal/app/store"
	"hzbot/internal/pkg/telemetry"
)

// GetChannel returns the channel, or nil when it has never been seen.
// Misses are not cached, so a channel created by another process shows up on the next call.
func (c *Cache) GetChannel(ctx context.Context, ident platform.ChannelIdentifier) (*store.Channel, error) {
	if ch, ok := c.channels.Get(ident); ok {
		telemetry.CacheLookup(CollectionChannels, true)
		return &ch, nil
	}
	telemetry.CacheLookup(CollectionChannels, false)

	ch, err := c.store.GetChannel(ctx, ident)
	if err != nil || ch == nil {
		return ch, err
	}
	c.channels.Set(ident, *ch)
	return ch, nil
}

// GetOrCreateChannel returns the channel, creating it on first reference. A newly created
// channel is added to its platform's channel set and the change is announced. Announcement
// failures are logged and do not fail the call.
func (c *Cache) GetOrCreateChannel(ctx context.Context, ident platform.ChannelIdentifier) (*store.Channel, error) {
	if ch, err := c.GetChannel(ctx, ident); err != nil || ch != nil {
		return ch, err
	}

	ch, created, err := c.store.GetOrCreateChannel(ctx, ident)
	if err != nil {
		return nil, err
	}
	c.channels.Set(ident, *ch)

	if created {
		c.announce(ctx, ident)
	}
	return ch, nil
}

func (c *Cache) announce(ctx context.Context, ident platform.ChannelIdentifier) {
	name, ok := ident.PlatformName()
	if !ok || c.registry == nil {
		return
	}

	if err := c.registry.AddChannel(ctx, name, ident.Channel); err != nil {
		telemetry.BusPublishFailed("channels")
		c.logger.Error().Err(err).Str("channel", ident.String()).Msg("Failed to announce new channel.")
		return
	}
	c.logger.Info().Str("channel", ident.String()).Msg("New channel registered.")
}

// SyncChannels loads every stored channel into the per-platform channel sets.
func (c *Cache) SyncChannels(ctx context.Context) error {
	if c.registry == nil {
		return nil
	}

	channels, err := c.store.ListChannels(ctx)
	if err != nil {
		return err
	}

	byPlatform := make(map[string][]string)
	for _, ch := range channels {
		c.channels.Set(ch.Identifier, ch)

		name, ok := ch.Identifier.PlatformName()
		if !ok {
			continue
		}
		byPlatform[name] = append(byPlatform[name], ch.Identifier.Channel)
	}

	for name, list := range byPlatform {
		if err := c.registry.SyncChannels(ctx, name, list); err != nil {
			return err
		}
	}

	c.logger.Info().Int("channels", len(channels)).Int("platforms", len(byPlatform)).Msg("Channel sets synchronized.")
	return nil
}

// GetPrefix returns the channel's command prefix, if one is configured.
func (c *Cache) GetPrefix(ctx context.Context, channelID int64) (string, bool, error) {
	if e, ok := c.prefixes.Get(channelID); ok {
		telemetry.CacheLookup(CollectionPrefixes, true)
		return e.prefix, e.ok, nil
	}
	telemetry.CacheLookup(CollectionPrefixes, false)

	prefix, ok, err := c.store.GetPrefix(ctx, channelID)
	if err != nil {
		return "", false, err
	}
	c.prefixes.Set(channelID, prefixEntry{prefix: prefix, ok: ok})
	return prefix, ok, nil
}

// SetPrefix stores the channel's command prefix.
func (c *Cache) SetPrefix(ctx context.Context, channelID int64, prefix string) error {
	if err := c.store.SetPrefix(ctx, channelID, prefix); err != nil {
		return err
	}
	c.prefixes.Set(channelID, prefixEntry{prefix: prefix, ok: true})
	return nil
}

// GetFilters returns the channel's filters in insertion order.
func (c *Cache) GetFilters(ctx context.Context, channelID int64) ([]store.Filter, error) {
	if f, ok := c.filters.Get(channelID); ok {
		telemetry.CacheLookup(CollectionFilters, true)
		return f, nil
	}
	telemetry.CacheLookup(CollectionFilters, false)

	f, err := c.store.GetFilters(ctx, channelID)
	if err != nil {
		return nil, err
	}
	c.filters.Set(channelID, f)
	return f, nil
}

// AddFilter stores a filter and drops the channel's cached list.
func (c *Cache) AddFilter(ctx context.Context, f store.Filter) (*store.Filter, error) {
	added, err := c.store.AddFilter(ctx, f)
	if err != nil {
		return nil, err
	}
	c.filters.Remove(f.ChannelID)
	return added, nil
}

// GetCommand reads a stored command. Commands are not cached so edits apply immediately.
func (c *Cache) GetCommand(ctx context.Context, channelID int64, name string) (*store.Command, error) {
	return c.store.GetCommand(ctx, channelID, name)
}

// ListCommands lists a channel's stored commands.
func (c *Cache) ListCommands(ctx context.Context, channelID int64) ([]store.Command, error) {
	return c.store.ListCommands(ctx, channelID)
}

// AddCommand stores a command.
func (c *Cache) AddCommand(ctx context.Context, cmd store.Command) (*store.Command, error) {
	return c.store.AddCommand(ctx, cmd)
}

// UpdateCommand replaces a command's action.
func (c *Cache) UpdateCommand(ctx context.Context, channelID int64, name, action string) error {
	return c.store.UpdateCommand(ctx, channelID, name, action)
}

// DeleteCommand deletes a command.
func (c *Cache) DeleteCommand(ctx context.Context, channelID int64, name string) error {
	return c.store.DeleteCommand(ctx, channelID, name)
}
