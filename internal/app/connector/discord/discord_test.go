package discord

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hzbot/internal/app/platform"
)

type recordingDispatcher struct {
	mu  sync.Mutex
	got []platform.Inbound
}

func (d *recordingDispatcher) StripPrefix(_ context.Context, _ platform.ChannelIdentifier, text string) (string, bool) {
	return strings.CutPrefix(text, "!")
}

func (d *recordingDispatcher) Dispatch(_ context.Context, in platform.Inbound) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.got = append(d.got, in)
}

func (d *recordingDispatcher) received() []platform.Inbound {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]platform.Inbound(nil), d.got...)
}

func TestPermissions(t *testing.T) {
	assert.Equal(t, platform.ChannelMod, Permissions(discordgo.PermissionManageMessages))
	assert.Equal(t, platform.ChannelMod, Permissions(discordgo.PermissionAdministrator|discordgo.PermissionSendMessages))
	assert.Equal(t, platform.Default, Permissions(discordgo.PermissionSendMessages|discordgo.PermissionViewChannel))
	assert.Equal(t, platform.Default, Permissions(0))
}

func TestChunk(t *testing.T) {
	assert.Nil(t, Chunk("", 10))
	assert.Equal(t, []string{"short"}, Chunk("short", 10))
	assert.Equal(t, []string{"aaaaaaaaaa", "bbb"}, Chunk("aaaaaaaaaabbb", 10))
	assert.Equal(t, []string{"line one\n", "line two"}, Chunk("line one\nline two", 10))

	long := strings.Repeat("x", 4500)
	chunks := Chunk(long, MaxMessageLength)
	assert.Len(t, chunks, 3)
	assert.Equal(t, long, strings.Join(chunks, ""))
}

func TestChunkCountsCharacters(t *testing.T) {
	assert.Equal(t, []string{"éé", "é"}, Chunk("ééé", 2))

	fits := strings.Repeat("❗", 1000)
	assert.Equal(t, []string{fits}, Chunk(fits, MaxMessageLength))

	long := strings.Repeat("❗", 2500)
	chunks := Chunk(long, MaxMessageLength)
	require.Len(t, chunks, 2)
	for _, chunk := range chunks {
		assert.True(t, utf8.ValidString(chunk))
	}
	assert.Equal(t, MaxMessageLength, utf8.RuneCountInString(chunks[0]))
	assert.Equal(t, 500, utf8.RuneCountInString(chunks[1]))
	assert.Equal(t, long, strings.Join(chunks, ""))
}

func TestHandleMessageIgnoresOwnMessages(t *testing.T) {
	d := &recordingDispatcher{}
	c := &Connector{dispatcher: d, logger: zerolog.Nop()}

	s := &discordgo.Session{State: discordgo.NewState()}
	s.State.User = &discordgo.User{ID: "bot"}

	message := func(authorID string, bot bool) *discordgo.MessageCreate {
		return &discordgo.MessageCreate{Message: &discordgo.Message{
			ChannelID: "dm",
			Content:   "!ping",
			Author:    &discordgo.User{ID: authorID, Bot: bot},
		}}
	}

	ctx := context.Background()
	c.handleMessage(ctx, s, message("bot", false))
	c.handleMessage(ctx, s, message("other-bot", true))
	c.handleMessage(ctx, s, message("42", false))

	require.Eventually(t, func() bool { return len(d.received()) == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)

	got := d.received()
	require.Len(t, got, 1)
	assert.Equal(t, platform.DiscordUser("42"), got[0].Sender)
	assert.Equal(t, "ping", got[0].Text)
	assert.Equal(t, platform.DiscordChannel("dm"), got[0].Context.Channel)
}

func TestBotUserIDBeforeReady(t *testing.T) {
	assert.Empty(t, botUserID(&discordgo.Session{}))
	assert.Empty(t, botUserID(&discordgo.Session{State: discordgo.NewState()}))
}
