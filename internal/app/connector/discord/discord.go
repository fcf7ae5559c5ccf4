/*
Package discord connects the bot to Discord through the gateway.
*/
package discord

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"

	"hzbot/internal/app/bus"
	"hzbot/internal/app/connector"
	"hzbot/internal/app/platform"
	"hzbot/internal/pkg/logx"
)

// MaxMessageLength is Discord's limit on one message.
const MaxMessageLength = 2000

// Config holds the bot token and the outgoing topic prefix.
type Config struct {
	Token          string
	OutgoingPrefix string
}

// Connector is the Discord connector.
type Connector struct {
	session    *discordgo.Session
	dispatcher connector.Dispatcher
	bus        bus.Bus
	prefix     string
	logger     zerolog.Logger
}

// New creates a Connector. Run opens the gateway connection.
func New(cfg Config, d connector.Dispatcher, b bus.Bus) (*Connector, error) {
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}

	session.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsMessageContent

	prefix := cfg.OutgoingPrefix
	if prefix == "" {
		prefix = bus.DefaultOutgoingPrefix
	}

	return &Connector{
		session:    session,
		dispatcher: d,
		bus:        b,
		prefix:     prefix,
		logger:     logx.Component("connector.discord"),
	}, nil
}

// Run opens the gateway, delivers outgoing messages and blocks until ctx is done.
func (c *Connector) Run(ctx context.Context) error {
	c.session.AddHandler(func(s *discordgo.Session, m *discordgo.MessageCreate) {
		c.handleMessage(ctx, s, m)
	})

	if err := c.session.Open(); err != nil {
		return fmt.Errorf("open discord session: %w", err)
	}
	defer func() {
		if err := c.session.Close(); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to close discord session.")
		}
	}()

	self, err := c.session.User("@me")
	if err != nil {
		return fmt.Errorf("fetch discord bot identity: %w", err)
	}
	c.logger.Info().Str("username", self.Username).Str("id", self.ID).Msg("Discord bot connected.")

	return connector.Deliver(ctx, c.bus, c.prefix, platform.Discord, c.send)
}

func (c *Connector) handleMessage(ctx context.Context, s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot || m.Author.ID == botUserID(s) {
		return
	}

	perms := platform.Default
	if m.GuildID != "" {
		bits, err := s.UserChannelPermissions(m.Author.ID, m.ChannelID)
		if err != nil {
			c.logger.Debug().Err(err).Str("channel", m.ChannelID).Msg("Could not resolve member permissions.")
		} else {
			perms = Permissions(bits)
		}
	}

	go connector.Forward(ctx, c.dispatcher, platform.Inbound{
		Text:   m.Content,
		Sender: platform.DiscordUser(m.Author.ID),
		Context: platform.ExecutionContext{
			Channel:     platform.DiscordChannel(m.ChannelID),
			Permissions: perms,
		},
	})
}

// botUserID reads the bot's own id from the gateway state filled by the Ready event.
func botUserID(s *discordgo.Session) string {
	if s.State == nil {
		return ""
	}
	s.State.RLock()
	defer s.State.RUnlock()

	if s.State.User == nil {
		return ""
	}
	return s.State.User.ID
}

func (c *Connector) send(out bus.OutgoingMessage) error {
	for _, chunk := range Chunk(out.Contents, MaxMessageLength) {
		if _, err := c.session.ChannelMessageSend(out.ChannelID, chunk); err != nil {
			return fmt.Errorf("send discord message: %w", err)
		}
	}
	return nil
}

// Permissions maps a member's channel permission bits to a level. Members who can
// manage messages are channel moderators.
func Permissions(bits int64) platform.Permissions {
	if bits&discordgo.PermissionAdministrator != 0 || bits&discordgo.PermissionManageMessages != 0 {
		return platform.ChannelMod
	}
	return platform.Default
}

// Chunk splits content into pieces of at most limit characters, preferring line breaks in
// the second half of a piece. Pieces never split a UTF-8 sequence.
func Chunk(content string, limit int) []string {
	if limit <= 0 {
		limit = MaxMessageLength
	}

	var chunks []string
	for utf8.RuneCountInString(content) > limit {
		end := 0
		for range limit {
			_, size := utf8.DecodeRuneInString(content[end:])
			end += size
		}

		cutAt := end
		if idx := strings.LastIndexByte(content[:end], '\n'); idx > end/2 {
			cutAt = idx + 1
		}
		chunks = append(chunks, content[:cutAt])
		content = content[cutAt:]
	}
	if content != "" {
		chunks = append(chunks, content)
	}
	return chunks
}
