package store

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hzbot/internal/app/db"
	"hzbot/internal/app/platform"
	"hzbot/internal/pkg/randx"
)

func commandNames(commands []Command) []string {
	names := make([]string, 0, len(commands))
	for _, c := range commands {
		names = append(names, c.Name)
	}
	return names
}

func TestCommandScope(t *testing.T) {
	assert.Equal(t, "channel_id IS NULL AND $1::BIGINT = 0", commandScope(GlobalChannelID))
	assert.Equal(t, "channel_id = $1", commandScope(42))
}

func TestUserHasIdentifier(t *testing.T) {
	u := User{ID: 1, Identifiers: []platform.UserIdentifier{platform.TwitchUser("1"), platform.DiscordUser("2")}}
	assert.True(t, u.HasIdentifier("discord_id:2"))
	assert.False(t, u.HasIdentifier("twitch_id:2"))
	assert.False(t, u.HasIdentifier(""))
}

func TestMemoryContract(t *testing.T) {
	runContract(t, NewMemory())
}

// TestPostgresContract runs against a real database when TEST_DATABASE_URL is set.
func TestPostgresContract(t *testing.T) {
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	pool, err := db.NewPool(context.Background(), dsn)
	require.NoError(t, err)

	s := NewPostgres(pool)
	t.Cleanup(s.Close)

	runContract(t, s)
}

func unique(t *testing.T) string {
	t.Helper()
	s, err := randx.Base62(10)
	require.NoError(t, err)
	return s
}

func runContract(t *testing.T, s Store) {
	ctx := context.Background()

	t.Run("users are created once per identifier", func(t *testing.T) {
		ident := platform.TwitchUser(unique(t))

		missing, err := s.GetUser(ctx, ident)
		require.NoError(t, err)
		assert.Nil(t, missing)

		first, err := s.GetOrCreateUser(ctx, ident)
		require.NoError(t, err)
		second, err := s.GetOrCreateUser(ctx, ident)
		require.NoError(t, err)

		assert.Equal(t, first.ID, second.ID)
		assert.Equal(t, []platform.UserIdentifier{ident}, first.Identifiers)
	})

	t.Run("channels report creation", func(t *testing.T) {
		ident := platform.TwitchChannel(unique(t))

		ch, created, err := s.GetOrCreateChannel(ctx, ident)
		require.NoError(t, err)
		assert.True(t, created)

		again, created, err := s.GetOrCreateChannel(ctx, ident)
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, ch.ID, again.ID)

		byID, err := s.GetChannelByID(ctx, ch.ID)
		require.NoError(t, err)
		assert.Equal(t, ident, byID.Identifier)

		all, err := s.ListChannels(ctx)
		require.NoError(t, err)
		assert.Contains(t, all, *ch)
	})

	t.Run("builtin names are rejected", func(t *testing.T) {
		ch, _, err := s.GetOrCreateChannel(ctx, platform.TwitchChannel(unique(t)))
		require.NoError(t, err)

		for _, name := range BuiltinCommands {
			_, err := s.AddCommand(ctx, Command{ChannelID: ch.ID, Name: name, Action: "hi", Cooldown: DefaultCooldown})
			assert.ErrorIs(t, err, ErrInvalidValue, name)
		}

		commands, err := s.ListCommands(ctx, ch.ID)
		require.NoError(t, err)
		assert.Empty(t, commands)
	})

	t.Run("command lifecycle", func(t *testing.T) {
		ch, _, err := s.GetOrCreateChannel(ctx, platform.DiscordChannel(unique(t)))
		require.NoError(t, err)

		mod := platform.ChannelMod
		added, err := s.AddCommand(ctx, Command{ChannelID: ch.ID, Name: "hello", Action: "hi there", Permissions: &mod, Cooldown: 3 * time.Second})
		require.NoError(t, err)
		assert.NotZero(t, added.ID)

		_, err = s.AddCommand(ctx, Command{ChannelID: ch.ID, Name: "hello", Action: "dup"})
		assert.ErrorIs(t, err, ErrAlreadyExists)

		got, err := s.GetCommand(ctx, ch.ID, "hello")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "hi there", got.Action)
		assert.Equal(t, platform.ChannelMod, got.RequiredPermissions())
		assert.Equal(t, 3*time.Second, got.Cooldown)

		require.NoError(t, s.UpdateCommand(ctx, ch.ID, "hello", "bye"))
		got, err = s.GetCommand(ctx, ch.ID, "hello")
		require.NoError(t, err)
		assert.Equal(t, "bye", got.Action)

		require.NoError(t, s.DeleteCommand(ctx, ch.ID, "hello"))
		assert.ErrorIs(t, s.DeleteCommand(ctx, ch.ID, "hello"), ErrInvalidValue)
		assert.ErrorIs(t, s.UpdateCommand(ctx, ch.ID, "hello", "x"), ErrInvalidValue)

		gone, err := s.GetCommand(ctx, ch.ID, "hello")
		require.NoError(t, err)
		assert.Nil(t, gone)
	})

	t.Run("global commands", func(t *testing.T) {
		name := "g" + unique(t)
		_, err := s.AddCommand(ctx, Command{ChannelID: GlobalChannelID, Name: name, Action: "everywhere"})
		require.NoError(t, err)

		got, err := s.GetCommand(ctx, GlobalChannelID, name)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, GlobalChannelID, got.ChannelID)

		require.NoError(t, s.UpdateCommand(ctx, GlobalChannelID, name, "still everywhere"))
		global, err := s.ListCommands(ctx, GlobalChannelID)
		require.NoError(t, err)
		assert.Contains(t, commandNames(global), name)

		ch, _, err := s.GetOrCreateChannel(ctx, platform.TwitchChannel(unique(t)))
		require.NoError(t, err)
		own, err := s.ListCommands(ctx, ch.ID)
		require.NoError(t, err)
		assert.NotContains(t, commandNames(own), name)
		assert.ErrorIs(t, s.DeleteCommand(ctx, ch.ID, name), ErrInvalidValue)

		require.NoError(t, s.DeleteCommand(ctx, GlobalChannelID, name))
	})

	t.Run("filters keep insertion order", func(t *testing.T) {
		ch, _, err := s.GetOrCreateChannel(ctx, platform.LocalChannel(unique(t)))
		require.NoError(t, err)

		stars := "***"
		_, err = s.AddFilter(ctx, Filter{ChannelID: ch.ID, Regex: "b", Replacement: &stars})
		require.NoError(t, err)
		_, err = s.AddFilter(ctx, Filter{ChannelID: ch.ID, Regex: "a", BlockMessage: true})
		require.NoError(t, err)

		filters, err := s.GetFilters(ctx, ch.ID)
		require.NoError(t, err)
		require.Len(t, filters, 2)
		assert.Equal(t, "b", filters[0].Regex)
		assert.Equal(t, "a", filters[1].Regex)
	})

	t.Run("prefixes", func(t *testing.T) {
		ch, _, err := s.GetOrCreateChannel(ctx, platform.IRCChannel("#"+unique(t)))
		require.NoError(t, err)

		_, ok, err := s.GetPrefix(ctx, ch.ID)
		require.NoError(t, err)
		assert.False(t, ok)

		require.NoError(t, s.SetPrefix(ctx, ch.ID, "?"))
		prefix, ok, err := s.GetPrefix(ctx, ch.ID)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "?", prefix)
	})

	t.Run("user data", func(t *testing.T) {
		u, err := s.GetOrCreateUser(ctx, platform.IrcUser(unique(t)))
		require.NoError(t, err)

		require.NoError(t, s.SetUserData(ctx, UserData{UserID: u.ID, Name: "lang", Value: "en"}, false))
		assert.ErrorIs(t, s.SetUserData(ctx, UserData{UserID: u.ID, Name: "lang", Value: "de"}, false), ErrAlreadyExists)
		require.NoError(t, s.SetUserData(ctx, UserData{UserID: u.ID, Name: "lang", Value: "de"}, true))

		data, err := s.GetUserData(ctx, u.ID, "lang")
		require.NoError(t, err)
		require.NotNil(t, data)
		assert.Equal(t, "de", data.Value)

		require.NoError(t, s.RemoveUserData(ctx, u.ID, "lang"))
		data, err = s.GetUserData(ctx, u.ID, "lang")
		require.NoError(t, err)
		assert.Nil(t, data)
	})

	t.Run("merge reparents identifiers and data", func(t *testing.T) {
		i1 := platform.TwitchUser(unique(t))
		i2 := platform.DiscordUser(unique(t))

		a, err := s.GetOrCreateUser(ctx, i1)
		require.NoError(t, err)
		b, err := s.GetOrCreateUser(ctx, i2)
		require.NoError(t, err)

		require.NoError(t, s.SetUserData(ctx, UserData{UserID: b.ID, Name: "color", Value: "blue"}, false))
		session, err := s.CreateWebSession(ctx, b.ID, "bee")
		require.NoError(t, err)

		merged, err := s.MergeUsers(ctx, a.ID, b.ID)
		require.NoError(t, err)
		assert.Equal(t, a.ID, merged.ID)
		assert.ElementsMatch(t, []platform.UserIdentifier{i1, i2}, merged.Identifiers)

		byI2, err := s.GetUser(ctx, i2)
		require.NoError(t, err)
		assert.Equal(t, a.ID, byI2.ID)

		gone, err := s.GetUserByID(ctx, b.ID)
		require.NoError(t, err)
		assert.Nil(t, gone)

		data, err := s.GetUserData(ctx, a.ID, "color")
		require.NoError(t, err)
		require.NotNil(t, data)
		assert.Equal(t, "blue", data.Value)

		ws, err := s.GetWebSession(ctx, session.SessionID)
		require.NoError(t, err)
		assert.Equal(t, a.ID, ws.UserID)

		_, err = s.MergeUsers(ctx, a.ID, b.ID)
		assert.ErrorIs(t, err, ErrUserNotFound)
	})

	t.Run("web sessions", func(t *testing.T) {
		u, err := s.GetOrCreateUser(ctx, platform.IPUser("10.0.0."+unique(t)))
		require.NoError(t, err)

		session, err := s.CreateWebSession(ctx, u.ID, "someone")
		require.NoError(t, err)
		assert.True(t, randx.IsValidSessionID(session.SessionID))

		got, err := s.GetWebSession(ctx, session.SessionID)
		require.NoError(t, err)
		assert.Equal(t, *session, *got)

		missing, err := s.GetWebSession(ctx, "nope")
		require.NoError(t, err)
		assert.Nil(t, missing)

		_, err = s.CreateWebSession(ctx, -1, "ghost")
		assert.ErrorIs(t, err, ErrUserNotFound)
	})
}
