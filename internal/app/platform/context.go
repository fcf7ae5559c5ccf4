package platform

import "fmt"

// Permissions is the caller's level within a channel. Levels are ordered.
type Permissions int

const (
	// Default is granted to every caller, anonymous or not.
	Default Permissions = iota
	// ChannelMod is granted to moderators and broadcasters of the channel.
	ChannelMod
)

// String returns the stored form of the level.
func (p Permissions) String() string {
	switch p {
	case Default:
		return "default"
	case ChannelMod:
		return "channel_mod"
	default:
		return fmt.Sprintf("permissions(%d)", int(p))
	}
}

// Satisfies reports whether p is at least required.
func (p Permissions) Satisfies(required Permissions) bool {
	return p >= required
}

// ParsePermissions parses the stored form of a level.
func ParsePermissions(s string) (Permissions, error) {
	switch s {
	case "default", "Default":
		return Default, nil
	case "channel_mod", "ChannelMod", "mod":
		return ChannelMod, nil
	default:
		return Default, fmt.Errorf("unknown permission level %q", s)
	}
}

// ExecutionContext is built by a connector for one inbound message and never persisted.
type ExecutionContext struct {
	Channel     ChannelIdentifier
	Permissions Permissions
}

// Inbound is one message handed from a connector to the dispatcher.
// Text has already had the command prefix removed.
type Inbound struct {
	Text    string
	Sender  UserIdentifier
	Context ExecutionContext
}
