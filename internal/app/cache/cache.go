/*
Package cache layers sharded in-memory maps over the entity store.

Reads go to the map first and fall back to the store on a miss; writes go to the store
synchronously and then to the map. Entries never expire one by one: a cron schedule
clears whole collections at fixed intervals instead. The Cache is owned by the composition
root, which calls Start and Stop.
*/
package cache

import (
	"fmt"
	"sync"
	"time"

	cmap "github.com/orcaman/concurrent-map/v2"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"hzbot/internal/app/bus"
	"hzbot/internal/app/platform"
	"hzbot/internal/app/store"
	"hzbot/internal/pkg/logx"
	"hzbot/internal/pkg/telemetry"
)

// Collection names, used in metrics and logs.
const (
	CollectionUsers       = "users"
	CollectionIdentifiers = "identifiers"
	CollectionChannels    = "channels"
	CollectionSessions    = "sessions"
	CollectionPrefixes    = "prefixes"
	CollectionFilters     = "filters"
)

// Intervals configures how often each collection is cleared. Zero disables the sweep.
type Intervals struct {
	Users    time.Duration
	Channels time.Duration
	Sessions time.Duration
	Prefixes time.Duration
	Filters  time.Duration
}

// DefaultIntervals clears everything hourly except filters, which operators edit more often.
func DefaultIntervals() Intervals {
	return Intervals{
		Users:    time.Hour,
		Channels: time.Hour,
		Sessions: time.Hour,
		Prefixes: time.Hour,
		Filters:  10 * time.Minute,
	}
}

type prefixEntry struct {
	prefix string
	ok     bool
}

// Cache is the cache layer over a store.Store.
type Cache struct {
	// store is the source of truth.
	store store.Store

	// registry receives channel list changes. May be nil.
	registry bus.ChannelRegistry

	// users maps a user id to the user record.
	users cmap.ConcurrentMap[int64, store.User]

	// identifiers maps a platform identity to its user id.
	identifiers cmap.ConcurrentMap[platform.UserIdentifier, int64]

	// channels maps a channel identifier to the channel record.
	channels cmap.ConcurrentMap[platform.ChannelIdentifier, store.Channel]

	// sessions maps a web session id to the session.
	sessions cmap.ConcurrentMap[string, store.WebSession]

	// prefixes maps a channel id to its prefix, remembering channels without one.
	prefixes cmap.ConcurrentMap[int64, prefixEntry]

	// filters maps a channel id to its ordered filters.
	filters cmap.ConcurrentMap[int64, []store.Filter]

	// mergeMu orders user and session fills against merges. Fills hold the read lock and
	// are discarded when mergeGen moved since their store read started.
	mergeMu  sync.RWMutex
	mergeGen uint64

	intervals Intervals
	cron      *cron.Cron
	logger    zerolog.Logger
}

func shardInt64(key int64) uint32 {
	return uint32(key) ^ uint32(key>>32)
}

// New creates a cache over s. Channel creations are announced through registry when it is not nil.
func New(s store.Store, registry bus.ChannelRegistry, intervals Intervals) *Cache {
	return &Cache{
		store:       s,
		registry:    registry,
		users:       cmap.NewWithCustomShardingFunction[int64, store.User](shardInt64),
		identifiers: cmap.NewStringer[platform.UserIdentifier, int64](),
		channels:    cmap.NewStringer[platform.ChannelIdentifier, store.Channel](),
		sessions:    cmap.New[store.WebSession](),
		prefixes:    cmap.NewWithCustomShardingFunction[int64, prefixEntry](shardInt64),
		filters:     cmap.NewWithCustomShardingFunction[int64, []store.Filter](shardInt64),
		intervals:   intervals,
		logger:      logx.Component("cache"),
	}
}

// Start schedules the sweeps. A panicking sweep is recovered and logged.
func (c *Cache) Start() error {
	cronLogger := logx.CronLogger("cache")
	c.cron = cron.New(cron.WithLogger(cronLogger), cron.WithChain(cron.Recover(cronLogger)))

	sweeps := []struct {
		every time.Duration
		run   func()
	}{
		{c.intervals.Users, c.ClearUsers},
		{c.intervals.Channels, c.ClearChannels},
		{c.intervals.Sessions, c.ClearSessions},
		{c.intervals.Prefixes, c.ClearPrefixes},
		{c.intervals.Filters, c.ClearFilters},
	}

	for _, s := range sweeps {
		if s.every <= 0 {
			continue
		}
		if _, err := c.cron.AddFunc(fmt.Sprintf("@every %s", s.every), s.run); err != nil {
			return fmt.Errorf("schedule cache sweep: %w", err)
		}
	}

	c.cron.Start()
	c.logger.Info().
		Dur("users", c.intervals.Users).
		Dur("channels", c.intervals.Channels).
		Dur("sessions", c.intervals.Sessions).
		Dur("prefixes", c.intervals.Prefixes).
		Dur("filters", c.intervals.Filters).
		Msg("Cache sweeps scheduled.")
	return nil
}

// Stop cancels the sweeps and waits for a running one to finish.
func (c *Cache) Stop() {
	if c.cron == nil {
		return
	}
	<-c.cron.Stop().Done()
	c.logger.Info().Msg("Cache sweeps stopped.")
}

// ClearUsers drops both user collections.
func (c *Cache) ClearUsers() {
	c.users.Clear()
	c.identifiers.Clear()
	telemetry.CacheSweep(CollectionUsers)
	telemetry.CacheSweep(CollectionIdentifiers)
}

// ClearChannels drops the channel collection.
func (c *Cache) ClearChannels() {
	c.channels.Clear()
	telemetry.CacheSweep(CollectionChannels)
}

// ClearSessions drops the session collection.
func (c *Cache) ClearSessions() {
	c.sessions.Clear()
	telemetry.CacheSweep(CollectionSessions)
}

// ClearPrefixes drops the prefix collection.
func (c *Cache) ClearPrefixes() {
	c.prefixes.Clear()
	telemetry.CacheSweep(CollectionPrefixes)
}

// ClearFilters drops the filter collection.
func (c *Cache) ClearFilters() {
	c.filters.Clear()
	telemetry.CacheSweep(CollectionFilters)
}
