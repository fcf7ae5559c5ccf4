/*
Package store is the entity store: the durable source of truth for users, channels,
commands, filters, prefixes, user data and web sessions.

Lookups return a nil record and a nil error when nothing matches; errors are reserved
for genuine I/O failures and for the write-time rule violations listed below.
*/
package store

import (
	"context"
	"errors"
	"slices"
	"time"

	"hzbot/internal/app/platform"
)

var (
	// ErrInvalidValue rejects writes that break a rule: a reserved command name, or an
	// update/delete that matched no row.
	ErrInvalidValue = errors.New("invalid value")

	// ErrAlreadyExists reports a unique constraint violation.
	ErrAlreadyExists = errors.New("already exists")

	// ErrUserNotFound is returned by MergeUsers and CreateWebSession for unknown user ids.
	ErrUserNotFound = errors.New("user not found")
)

// GlobalChannelID is the channel id of commands that apply to every channel.
const GlobalChannelID int64 = 0

// DefaultCooldown is applied to commands created without an explicit cooldown.
const DefaultCooldown = 5 * time.Second

// BuiltinCommands are the names handled by the bot itself. Stored commands can never use them.
var BuiltinCommands = []string{
	"ping",
	"whoami",
	"id",
	"commands",
	"cmd",
	"command",
	"addcmd",
	"cmdadd",
	"delcmd",
	"cmddel",
	"debug",
	"merge",
	"showcmd",
	"checkcmd",
}

// IsBuiltin reports whether name is reserved for a builtin command.
func IsBuiltin(name string) bool {
	return slices.Contains(BuiltinCommands, name)
}

// User unites one or more platform identities.
type User struct {
	ID          int64                     `json:"id"`
	Identifiers []platform.UserIdentifier `json:"identifiers"`
}

// HasIdentifier reports whether one of the user's identities renders as ident ("kind:value").
func (u User) HasIdentifier(ident string) bool {
	for _, id := range u.Identifiers {
		if id.String() == ident {
			return true
		}
	}
	return false
}

// Channel is a platform channel known to the bot.
type Channel struct {
	ID         int64                      `json:"id"`
	Identifier platform.ChannelIdentifier `json:"identifier"`
}

// Command is a stored custom command. ChannelID is GlobalChannelID for global commands.
type Command struct {
	ID          int64                 `json:"id"`
	ChannelID   int64                 `json:"channelId"`
	Name        string                `json:"name"`
	Action      string                `json:"action"`
	Permissions *platform.Permissions `json:"permissions,omitempty"`
	Cooldown    time.Duration         `json:"cooldown"`
}

// RequiredPermissions returns the override if set and Default otherwise.
func (c Command) RequiredPermissions() platform.Permissions {
	if c.Permissions != nil {
		return *c.Permissions
	}
	return platform.Default
}

// Filter is one regex rule applied to outgoing messages of a channel.
type Filter struct {
	ID           int64   `json:"id"`
	ChannelID    int64   `json:"channelId"`
	Regex        string  `json:"regex"`
	BlockMessage bool    `json:"blockMessage"`
	Replacement  *string `json:"replacement,omitempty"`
}

// UserData is one key/value pair attached to a user.
type UserData struct {
	UserID int64  `json:"userId"`
	Name   string `json:"name"`
	Value  string `json:"value"`
	Public bool   `json:"public"`
}

// WebSession maps a dashboard session id to a user.
type WebSession struct {
	SessionID string `json:"sessionId"`
	UserID    int64  `json:"userId"`
	Username  string `json:"username"`
}

// Store is implemented by Memory and Postgres.
type Store interface {
	GetUser(ctx context.Context, id platform.UserIdentifier) (*User, error)
	GetUserByID(ctx context.Context, id int64) (*User, error)
	GetOrCreateUser(ctx context.Context, id platform.UserIdentifier) (*User, error)
	// MergeUsers moves every identifier and data entry of drop onto keep and deletes drop.
	// On a data key present on both users, drop's value wins.
	MergeUsers(ctx context.Context, keepID, dropID int64) (*User, error)

	GetChannel(ctx context.Context, id platform.ChannelIdentifier) (*Channel, error)
	GetChannelByID(ctx context.Context, id int64) (*Channel, error)
	// GetOrCreateChannel reports created=true when the channel did not exist before the call.
	GetOrCreateChannel(ctx context.Context, id platform.ChannelIdentifier) (ch *Channel, created bool, err error)
	ListChannels(ctx context.Context) ([]Channel, error)

	GetCommand(ctx context.Context, channelID int64, name string) (*Command, error)
	ListCommands(ctx context.Context, channelID int64) ([]Command, error)
	AddCommand(ctx context.Context, cmd Command) (*Command, error)
	UpdateCommand(ctx context.Context, channelID int64, name, action string) error
	DeleteCommand(ctx context.Context, channelID int64, name string) error

	// GetFilters returns the channel's filters in insertion order.
	GetFilters(ctx context.Context, channelID int64) ([]Filter, error)
	AddFilter(ctx context.Context, f Filter) (*Filter, error)

	GetPrefix(ctx context.Context, channelID int64) (string, bool, error)
	SetPrefix(ctx context.Context, channelID int64, prefix string) error

	GetUserData(ctx context.Context, userID int64, name string) (*UserData, error)
	// SetUserData fails with ErrAlreadyExists when the key exists and overwrite is false.
	SetUserData(ctx context.Context, data UserData, overwrite bool) error
	RemoveUserData(ctx context.Context, userID int64, name string) error

	GetWebSession(ctx context.Context, sessionID string) (*WebSession, error)
	CreateWebSession(ctx context.Context, userID int64, username string) (*WebSession, error)

	Close()
}

func validateNewCommand(cmd Command) error {
	if cmd.Name == "" || cmd.Action == "" || IsBuiltin(cmd.Name) {
		return ErrInvalidValue
	}
	return nil
}
