package platform

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserIdentifierEqualityIncludesKind(t *testing.T) {
	ids := map[UserIdentifier]int{
		TwitchUser("42"):  1,
		DiscordUser("42"): 2,
	}

	assert.Len(t, ids, 2)
	assert.Equal(t, 1, ids[TwitchUser("42")])
	assert.NotEqual(t, TwitchUser("42"), DiscordUser("42"))
}

func TestParseUserIdentifier(t *testing.T) {
	id, err := ParseUserIdentifier("twitch:123")
	require.NoError(t, err)
	assert.Equal(t, TwitchUser("123"), id)

	id, err = ParseUserIdentifier("irc_name:bob")
	require.NoError(t, err)
	assert.Equal(t, IrcUser("bob"), id)

	_, err = ParseUserIdentifier("myspace:1")
	assert.Error(t, err)

	_, err = ParseUserIdentifier("twitch")
	assert.Error(t, err)
}

func TestChannelPlatformName(t *testing.T) {
	name, ok := TwitchChannel("forsen").PlatformName()
	assert.True(t, ok)
	assert.Equal(t, Twitch, name)

	_, ok = AnonymousChannel().PlatformName()
	assert.False(t, ok)
}

func TestParseChannelIdentifier(t *testing.T) {
	id, err := ParseChannelIdentifier("discord:1234")
	require.NoError(t, err)
	assert.Equal(t, DiscordChannel("1234"), id)
	assert.Equal(t, "discord:1234", id.String())

	_, err = ParseChannelIdentifier("anonymous:x")
	assert.Error(t, err)
}

func TestPermissions(t *testing.T) {
	assert.True(t, ChannelMod.Satisfies(Default))
	assert.True(t, ChannelMod.Satisfies(ChannelMod))
	assert.False(t, Default.Satisfies(ChannelMod))

	p, err := ParsePermissions(ChannelMod.String())
	require.NoError(t, err)
	assert.Equal(t, ChannelMod, p)

	_, err = ParsePermissions("owner")
	assert.Error(t, err)
}
