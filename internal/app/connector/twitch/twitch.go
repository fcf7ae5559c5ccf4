/*
Package twitch connects the bot to Twitch chat over IRC.

It joins every channel in the "twitch" channel set, follows channel list notifications,
forwards prefixed chat messages to the dispatcher and says the replies published on the
"twitch" outgoing topic.
*/
package twitch

import (
	"context"
	"errors"
	"strings"
	"sync"

	twitchirc "github.com/gempir/go-twitch-irc/v4"
	"github.com/rs/zerolog"

	"hzbot/internal/app/bus"
	"hzbot/internal/app/connector"
	"hzbot/internal/app/platform"
	"hzbot/internal/pkg/logx"
)

// Config holds the Twitch credentials. Without a token the connector reads chat
// anonymously and cannot reply.
type Config struct {
	Username   string
	OAuthToken string
	// OutgoingPrefix is the bus topic prefix of replies.
	OutgoingPrefix string
}

// Connector is the Twitch chat connector.
type Connector struct {
	client     *twitchirc.Client
	dispatcher connector.Dispatcher
	bus        bus.Bus
	registry   bus.ChannelRegistry
	prefix     string

	mu     sync.Mutex
	joined map[string]struct{}

	logger zerolog.Logger
}

// New creates a Connector. Run connects it.
func New(cfg Config, d connector.Dispatcher, b bus.Bus, registry bus.ChannelRegistry) *Connector {
	var client *twitchirc.Client
	if cfg.Username == "" || cfg.OAuthToken == "" {
		client = twitchirc.NewAnonymousClient()
	} else {
		token := cfg.OAuthToken
		if !strings.HasPrefix(token, "oauth:") {
			token = "oauth:" + token
		}
		client = twitchirc.NewClient(cfg.Username, token)
	}

	prefix := cfg.OutgoingPrefix
	if prefix == "" {
		prefix = bus.DefaultOutgoingPrefix
	}

	return &Connector{
		client:     client,
		dispatcher: d,
		bus:        b,
		registry:   registry,
		prefix:     prefix,
		joined:     make(map[string]struct{}),
		logger:     logx.Component("connector.twitch"),
	}
}

// Run connects to Twitch chat and blocks until ctx is done or the connection fails.
func (c *Connector) Run(ctx context.Context) error {
	c.client.OnConnect(func() {
		c.logger.Info().Msg("Connected to Twitch chat.")
	})
	c.client.OnPrivateMessage(func(msg twitchirc.PrivateMessage) {
		go connector.Forward(ctx, c.dispatcher, Inbound(msg))
	})

	go func() {
		if err := connector.Deliver(ctx, c.bus, c.prefix, platform.Twitch, c.say); err != nil {
			c.logger.Error().Err(err).Msg("Outgoing delivery stopped.")
		}
	}()
	go func() {
		if err := connector.WatchChannels(ctx, c.bus, c.registry, platform.Twitch, c.join); err != nil {
			c.logger.Error().Err(err).Msg("Channel watch stopped.")
		}
	}()
	go func() {
		<-ctx.Done()
		_ = c.client.Disconnect()
	}()

	err := c.client.Connect()
	if errors.Is(err, twitchirc.ErrClientDisconnected) || ctx.Err() != nil {
		return nil
	}
	return err
}

func (c *Connector) say(out bus.OutgoingMessage) error {
	c.client.Say(out.ChannelID, out.Contents)
	return nil
}

// join joins the channels not joined yet.
func (c *Connector) join(channels []string) {
	fresh := c.markJoined(channels)
	if len(fresh) == 0 {
		return
	}

	c.logger.Info().Strs("channels", fresh).Msg("Joining channels.")
	c.client.Join(fresh...)
}

func (c *Connector) markJoined(channels []string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	var fresh []string
	for _, ch := range channels {
		ch = strings.ToLower(strings.TrimPrefix(ch, "#"))
		if ch == "" {
			continue
		}
		if _, ok := c.joined[ch]; ok {
			continue
		}
		c.joined[ch] = struct{}{}
		fresh = append(fresh, ch)
	}
	return fresh
}

// Permissions maps chat badges to a permission level. Broadcasters and moderators are
// channel moderators.
func Permissions(badges map[string]int) platform.Permissions {
	if badges["broadcaster"] > 0 || badges["moderator"] > 0 {
		return platform.ChannelMod
	}
	return platform.Default
}

// Inbound converts a chat message. The channel is the broadcaster's login and the sender
// is identified by user id.
func Inbound(msg twitchirc.PrivateMessage) platform.Inbound {
	return platform.Inbound{
		Text:   msg.Message,
		Sender: platform.TwitchUser(msg.User.ID),
		Context: platform.ExecutionContext{
			Channel:     platform.TwitchChannel(msg.Channel),
			Permissions: Permissions(msg.User.Badges),
		},
	}
}
