package twitch

import (
	"testing"

	twitchirc "github.com/gempir/go-twitch-irc/v4"
	"github.com/stretchr/testify/assert"

	"hzbot/internal/app/platform"
)

func TestPermissions(t *testing.T) {
	assert.Equal(t, platform.ChannelMod, Permissions(map[string]int{"broadcaster": 1}))
	assert.Equal(t, platform.ChannelMod, Permissions(map[string]int{"moderator": 1, "subscriber": 12}))
	assert.Equal(t, platform.Default, Permissions(map[string]int{"subscriber": 12}))
	assert.Equal(t, platform.Default, Permissions(nil))
}

func TestInbound(t *testing.T) {
	msg := twitchirc.PrivateMessage{
		User:    twitchirc.User{ID: "22484632", Name: "forsen", Badges: map[string]int{"broadcaster": 1}},
		Channel: "forsen",
		Message: "!ping",
	}

	in := Inbound(msg)

	assert.Equal(t, "!ping", in.Text)
	assert.Equal(t, platform.TwitchUser("22484632"), in.Sender)
	assert.Equal(t, platform.TwitchChannel("forsen"), in.Context.Channel)
	assert.Equal(t, platform.ChannelMod, in.Context.Permissions)
}

func TestMarkJoined(t *testing.T) {
	c := New(Config{}, nil, nil, nil)

	assert.Equal(t, []string{"forsen", "xqc"}, c.markJoined([]string{"forsen", "#XQC", ""}))
	assert.Equal(t, []string{"pajlada"}, c.markJoined([]string{"forsen", "pajlada"}))
	assert.Empty(t, c.markJoined([]string{"xqc"}))
}
