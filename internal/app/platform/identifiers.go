/*
Package platform defines the identity types shared by connectors, the store and the dispatcher.

UserIdentifier and ChannelIdentifier are closed tagged unions: a kind discriminant plus a
string payload. Both are comparable values, so they can be used directly as map keys, and two
identifiers are equal only when both the kind and the payload match.
*/
package platform

import (
	"fmt"
	"strings"
)

// UserKind is the discriminant of a UserIdentifier.
type UserKind string

const (
	UserTwitchID   UserKind = "twitch_id"
	UserDiscordID  UserKind = "discord_id"
	UserTelegramID UserKind = "telegram_id"
	UserIrcName    UserKind = "irc_name"
	UserIPAddr     UserKind = "ip_addr"
)

var userKinds = map[UserKind]struct{}{
	UserTwitchID:   {},
	UserDiscordID:  {},
	UserTelegramID: {},
	UserIrcName:    {},
	UserIPAddr:     {},
}

// UserIdentifier names a user on exactly one platform.
type UserIdentifier struct {
	Kind  UserKind `json:"kind"`
	Value string   `json:"value"`
}

func TwitchUser(id string) UserIdentifier   { return UserIdentifier{Kind: UserTwitchID, Value: id} }
func DiscordUser(id string) UserIdentifier  { return UserIdentifier{Kind: UserDiscordID, Value: id} }
func TelegramUser(id string) UserIdentifier { return UserIdentifier{Kind: UserTelegramID, Value: id} }
func IrcUser(name string) UserIdentifier    { return UserIdentifier{Kind: UserIrcName, Value: name} }
func IPUser(addr string) UserIdentifier     { return UserIdentifier{Kind: UserIPAddr, Value: addr} }

// String renders the identifier as "kind:value".
func (u UserIdentifier) String() string {
	return string(u.Kind) + ":" + u.Value
}

// Valid reports whether the kind is known and the payload is non-empty.
func (u UserIdentifier) Valid() bool {
	_, ok := userKinds[u.Kind]
	return ok && u.Value != ""
}

// ParseUserIdentifier parses "platform:value". The platform may be given either as
// the kind ("twitch_id") or as the platform name ("twitch", "discord", "telegram", "irc", "local").
func ParseUserIdentifier(s string) (UserIdentifier, error) {
	kind, value, ok := strings.Cut(s, ":")
	if !ok || value == "" {
		return UserIdentifier{}, fmt.Errorf("invalid user identifier %q: expected platform:value", s)
	}

	switch kind {
	case "twitch":
		kind = string(UserTwitchID)
	case "discord":
		kind = string(UserDiscordID)
	case "telegram":
		kind = string(UserTelegramID)
	case "irc":
		kind = string(UserIrcName)
	case "local":
		kind = string(UserIPAddr)
	}

	id := UserIdentifier{Kind: UserKind(kind), Value: value}
	if !id.Valid() {
		return UserIdentifier{}, fmt.Errorf("invalid user identifier %q: unknown platform %q", s, kind)
	}
	return id, nil
}

// Platform names used in bus topics and channel sets.
const (
	Twitch   = "twitch"
	Discord  = "discord"
	Telegram = "telegram"
	IRC      = "irc"
	Local    = "local"
)

// ChannelKind is the discriminant of a ChannelIdentifier.
type ChannelKind string

const (
	ChannelTwitch    ChannelKind = Twitch
	ChannelDiscord   ChannelKind = Discord
	ChannelTelegram  ChannelKind = Telegram
	ChannelIRC       ChannelKind = IRC
	ChannelLocal     ChannelKind = Local
	ChannelAnonymous ChannelKind = "anonymous"
)

// ChannelIdentifier names a channel on exactly one platform.
type ChannelIdentifier struct {
	Kind    ChannelKind `json:"platform"`
	Channel string      `json:"channel"`
}

func TwitchChannel(name string) ChannelIdentifier {
	return ChannelIdentifier{Kind: ChannelTwitch, Channel: name}
}
func DiscordChannel(id string) ChannelIdentifier {
	return ChannelIdentifier{Kind: ChannelDiscord, Channel: id}
}
func TelegramChannel(id string) ChannelIdentifier {
	return ChannelIdentifier{Kind: ChannelTelegram, Channel: id}
}
func IRCChannel(name string) ChannelIdentifier {
	return ChannelIdentifier{Kind: ChannelIRC, Channel: name}
}
func LocalChannel(room string) ChannelIdentifier {
	return ChannelIdentifier{Kind: ChannelLocal, Channel: room}
}
func AnonymousChannel() ChannelIdentifier { return ChannelIdentifier{Kind: ChannelAnonymous} }

// PlatformName returns the platform that owns the channel. Anonymous channels have none.
func (c ChannelIdentifier) PlatformName() (string, bool) {
	switch c.Kind {
	case ChannelTwitch, ChannelDiscord, ChannelTelegram, ChannelIRC, ChannelLocal:
		return string(c.Kind), true
	default:
		return "", false
	}
}

// String renders the identifier as "platform:channel".
func (c ChannelIdentifier) String() string {
	return string(c.Kind) + ":" + c.Channel
}

// ParseChannelIdentifier parses "platform:channel".
func ParseChannelIdentifier(s string) (ChannelIdentifier, error) {
	kind, channel, ok := strings.Cut(s, ":")
	if !ok || channel == "" {
		return ChannelIdentifier{}, fmt.Errorf("invalid channel identifier %q: expected platform:channel", s)
	}

	id := ChannelIdentifier{Kind: ChannelKind(kind), Channel: channel}
	if _, ok := id.PlatformName(); !ok {
		return ChannelIdentifier{}, fmt.Errorf("invalid channel identifier %q: unknown platform %q", s, kind)
	}
	return id, nil
}
