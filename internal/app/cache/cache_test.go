package cache

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hzbot/internal/app/bus"
	"hzbot/internal/app/platform"
	"hzbot/internal/app/store"
)

func newCache(t *testing.T) (*Cache, *store.Memory, *bus.Hub) {
	t.Helper()
	mem := store.NewMemory()
	hub := bus.NewHub()
	t.Cleanup(func() { _ = hub.Close() })
	return New(mem, hub, DefaultIntervals()), mem, hub
}

func TestMergeKeepsIdentifierCacheConsistent(t *testing.T) {
	c, mem, _ := newCache(t)
	ctx := context.Background()

	i1 := platform.TwitchUser("1")
	i2 := platform.DiscordUser("2")

	a, err := c.GetOrCreateUser(ctx, i1)
	require.NoError(t, err)
	b, err := c.GetOrCreateUser(ctx, i2)
	require.NoError(t, err)
	require.NoError(t, c.SetUserData(ctx, store.UserData{UserID: b.ID, Name: "lastfm", Value: "bee"}, false))

	// Warm both collections so stale entries would be visible.
	_, err = c.GetUser(ctx, i2)
	require.NoError(t, err)
	_, err = c.GetUserByID(ctx, b.ID)
	require.NoError(t, err)

	merged, err := c.MergeUsers(ctx, a.ID, b.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []platform.UserIdentifier{i1, i2}, merged.Identifiers)

	viaCache, err := c.GetUser(ctx, i2)
	require.NoError(t, err)
	viaStore, err := mem.GetUser(ctx, i2)
	require.NoError(t, err)
	require.NotNil(t, viaCache)
	require.NotNil(t, viaStore)
	assert.Equal(t, viaStore.ID, viaCache.ID)
	assert.Equal(t, a.ID, viaCache.ID)

	dropped, err := c.GetUserByID(ctx, b.ID)
	require.NoError(t, err)
	assert.Nil(t, dropped)

	data, err := c.GetUserData(ctx, a.ID, "lastfm")
	require.NoError(t, err)
	require.NotNil(t, data)
	assert.Equal(t, "bee", data.Value)

	keep, err := c.GetUserByID(ctx, a.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []platform.UserIdentifier{i1, i2}, keep.Identifiers)
}

type failingMerge struct {
	*store.Memory
}

func (failingMerge) MergeUsers(context.Context, int64, int64) (*store.User, error) {
	return nil, errors.New("connection reset")
}

func TestMergeFailureStillInvalidates(t *testing.T) {
	mem := store.NewMemory()
	c := New(failingMerge{mem}, nil, DefaultIntervals())
	ctx := context.Background()

	u, err := c.GetOrCreateUser(ctx, platform.IrcUser("bob"))
	require.NoError(t, err)
	assert.Equal(t, 1, c.identifiers.Count())

	_, err = c.MergeUsers(ctx, u.ID, u.ID+1)
	assert.Error(t, err)
	assert.Zero(t, c.identifiers.Count())
	assert.False(t, c.users.Has(u.ID))
}

// pausingStore holds one GetUser call for ident after it has read the store, until resume
// is closed.
type pausingStore struct {
	*store.Memory
	ident  platform.UserIdentifier
	armed  atomic.Bool
	read   chan struct{}
	resume chan struct{}
}

func (p *pausingStore) GetUser(ctx context.Context, ident platform.UserIdentifier) (*store.User, error) {
	u, err := p.Memory.GetUser(ctx, ident)
	if ident == p.ident && p.armed.CompareAndSwap(true, false) {
		close(p.read)
		<-p.resume
	}
	return u, err
}

func TestLookupRacingMergeDoesNotCacheStaleUser(t *testing.T) {
	i1 := platform.TwitchUser("1")
	i2 := platform.DiscordUser("2")

	mem := store.NewMemory()
	ps := &pausingStore{Memory: mem, ident: i2, read: make(chan struct{}), resume: make(chan struct{})}
	c := New(ps, nil, Intervals{})
	ctx := context.Background()

	a, err := c.GetOrCreateUser(ctx, i1)
	require.NoError(t, err)
	b, err := c.GetOrCreateUser(ctx, i2)
	require.NoError(t, err)
	c.ClearUsers()

	ps.armed.Store(true)
	done := make(chan *store.User, 1)
	go func() {
		u, _ := c.GetUser(ctx, i2)
		done <- u
	}()

	<-ps.read
	_, err = c.MergeUsers(ctx, a.ID, b.ID)
	require.NoError(t, err)
	close(ps.resume)

	stale := <-done
	require.NotNil(t, stale)
	assert.Equal(t, b.ID, stale.ID, "the racing lookup itself saw the pre-merge record")

	viaCache, err := c.GetUser(ctx, i2)
	require.NoError(t, err)
	viaStore, err := mem.GetUser(ctx, i2)
	require.NoError(t, err)
	require.NotNil(t, viaCache)
	require.NotNil(t, viaStore)
	assert.Equal(t, viaStore.ID, viaCache.ID)
	assert.Equal(t, a.ID, viaCache.ID)

	dropped, err := c.GetUserByID(ctx, b.ID)
	require.NoError(t, err)
	assert.Nil(t, dropped)
}

func TestMergeMovesCachedSessions(t *testing.T) {
	c, mem, _ := newCache(t)
	ctx := context.Background()

	a, err := c.GetOrCreateUser(ctx, platform.TwitchUser("1"))
	require.NoError(t, err)
	b, err := c.GetOrCreateUser(ctx, platform.IPUser("192.0.2.7"))
	require.NoError(t, err)

	s, err := c.CreateWebSession(ctx, b.ID, "bee")
	require.NoError(t, err)
	cached, err := c.GetWebSession(ctx, s.SessionID)
	require.NoError(t, err)
	require.Equal(t, b.ID, cached.UserID)

	_, err = c.MergeUsers(ctx, a.ID, b.ID)
	require.NoError(t, err)

	viaStore, err := mem.GetWebSession(ctx, s.SessionID)
	require.NoError(t, err)
	got, err := c.GetWebSession(ctx, s.SessionID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, viaStore.UserID, got.UserID)
	assert.Equal(t, a.ID, got.UserID)

	owner, err := c.GetUserByID(ctx, got.UserID)
	require.NoError(t, err)
	require.NotNil(t, owner)
	assert.ElementsMatch(t, []platform.UserIdentifier{platform.TwitchUser("1"), platform.IPUser("192.0.2.7")}, owner.Identifiers)
}

func TestUserLookupsAreCached(t *testing.T) {
	c, mem, _ := newCache(t)
	ctx := context.Background()

	ident := platform.TwitchUser("42")
	u, err := c.GetOrCreateUser(ctx, ident)
	require.NoError(t, err)

	// Merge behind the cache's back: the cached mapping survives until a sweep.
	other, err := mem.GetOrCreateUser(ctx, platform.TwitchUser("43"))
	require.NoError(t, err)
	_, err = mem.MergeUsers(ctx, other.ID, u.ID)
	require.NoError(t, err)

	cached, err := c.GetUser(ctx, ident)
	require.NoError(t, err)
	assert.Equal(t, u.ID, cached.ID)

	c.ClearUsers()

	fresh, err := c.GetUser(ctx, ident)
	require.NoError(t, err)
	assert.Equal(t, other.ID, fresh.ID)
}

func TestGetOrCreateChannelAnnouncesOnce(t *testing.T) {
	c, _, hub := newCache(t)
	ctx := context.Background()

	updates, cancel, err := hub.Subscribe(ctx, bus.ChannelUpdateTopic(platform.Twitch))
	require.NoError(t, err)
	defer cancel()

	ch, err := c.GetOrCreateChannel(ctx, platform.TwitchChannel("forsen"))
	require.NoError(t, err)

	select {
	case msg := <-updates:
		assert.Equal(t, bus.ChannelListUpdated, string(msg.Payload))
	case <-time.After(time.Second):
		t.Fatal("no channel list notification")
	}

	c.ClearChannels()
	again, err := c.GetOrCreateChannel(ctx, platform.TwitchChannel("forsen"))
	require.NoError(t, err)
	assert.Equal(t, ch.ID, again.ID)

	select {
	case <-updates:
		t.Fatal("existing channel announced again")
	case <-time.After(50 * time.Millisecond):
	}

	channels, err := hub.Channels(ctx, platform.Twitch)
	require.NoError(t, err)
	assert.Equal(t, []string{"forsen"}, channels)
}

func TestSyncChannels(t *testing.T) {
	c, mem, hub := newCache(t)
	ctx := context.Background()

	for _, ident := range []platform.ChannelIdentifier{
		platform.TwitchChannel("a"),
		platform.TwitchChannel("b"),
		platform.DiscordChannel("1"),
	} {
		_, _, err := mem.GetOrCreateChannel(ctx, ident)
		require.NoError(t, err)
	}

	require.NoError(t, c.SyncChannels(ctx))

	twitch, err := hub.Channels(ctx, platform.Twitch)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, twitch)

	discord, err := hub.Channels(ctx, platform.Discord)
	require.NoError(t, err)
	assert.Equal(t, []string{"1"}, discord)
}

func TestPrefixAbsenceIsCached(t *testing.T) {
	c, mem, _ := newCache(t)
	ctx := context.Background()

	ch, err := c.GetOrCreateChannel(ctx, platform.LocalChannel("room"))
	require.NoError(t, err)

	_, ok, err := c.GetPrefix(ctx, ch.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, mem.SetPrefix(ctx, ch.ID, "?"))
	_, ok, err = c.GetPrefix(ctx, ch.ID)
	require.NoError(t, err)
	assert.False(t, ok, "absence stays cached until the sweep")

	c.ClearPrefixes()
	prefix, ok, err := c.GetPrefix(ctx, ch.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "?", prefix)

	require.NoError(t, c.SetPrefix(ctx, ch.ID, "$"))
	prefix, _, err = c.GetPrefix(ctx, ch.ID)
	require.NoError(t, err)
	assert.Equal(t, "$", prefix)
}

func TestAddFilterInvalidatesChannel(t *testing.T) {
	c, _, _ := newCache(t)
	ctx := context.Background()

	ch, err := c.GetOrCreateChannel(ctx, platform.LocalChannel("room"))
	require.NoError(t, err)

	filters, err := c.GetFilters(ctx, ch.ID)
	require.NoError(t, err)
	assert.Empty(t, filters)

	_, err = c.AddFilter(ctx, store.Filter{ChannelID: ch.ID, Regex: "x", BlockMessage: true})
	require.NoError(t, err)

	filters, err = c.GetFilters(ctx, ch.ID)
	require.NoError(t, err)
	assert.Len(t, filters, 1)
}

func TestSessions(t *testing.T) {
	c, _, _ := newCache(t)
	ctx := context.Background()

	u, err := c.GetOrCreateUser(ctx, platform.TwitchUser("7"))
	require.NoError(t, err)

	s, err := c.CreateWebSession(ctx, u.ID, "seven")
	require.NoError(t, err)

	got, err := c.GetWebSession(ctx, s.SessionID)
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.UserID)

	c.ClearSessions()
	got, err = c.GetWebSession(ctx, s.SessionID)
	require.NoError(t, err)
	assert.Equal(t, "seven", got.Username)
}

func TestStartStop(t *testing.T) {
	c, _, _ := newCache(t)

	require.NoError(t, c.Start())
	assert.Len(t, c.cron.Entries(), 5)
	c.Stop()

	disabled := New(store.NewMemory(), nil, Intervals{Users: time.Hour})
	require.NoError(t, disabled.Start())
	assert.Len(t, disabled.cron.Entries(), 1)
	disabled.Stop()
}
