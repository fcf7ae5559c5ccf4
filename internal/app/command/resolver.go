package command

import (
	"context"

	"hzbot/internal/app/store"
)

// Kind is the outcome of resolving a command token.
type Kind int

const (
	NotFound Kind = iota
	BuiltinCommand
	StoredCommand
)

// Resolution is what a token resolved to.
type Resolution struct {
	Kind    Kind
	Builtin *Builtin
	// Args are the arguments to run with, alias arguments included.
	Args    []string
	Command *store.Command
}

// CommandSource looks up stored commands.
type CommandSource interface {
	GetCommand(ctx context.Context, channelID int64, name string) (*store.Command, error)
}

// Resolver maps command tokens to builtins and stored commands.
type Resolver struct {
	registry *Registry
	commands CommandSource
}

// NewResolver creates a Resolver.
func NewResolver(registry *Registry, commands CommandSource) *Resolver {
	return &Resolver{registry: registry, commands: commands}
}

// Resolve matches name exactly. Builtins win over everything. Then the channel's own
// stored command is tried, then the global one. channel may be nil for channels the
// store has never seen, in which case only global commands can match.
func (r *Resolver) Resolve(ctx context.Context, channel *store.Channel, name string, args []string) (Resolution, error) {
	if b, args, ok := r.registry.Lookup(name, args); ok {
		return Resolution{Kind: BuiltinCommand, Builtin: b, Args: args}, nil
	}

	cmd, err := r.Stored(ctx, channel, name)
	if err != nil {
		return Resolution{}, err
	}
	if cmd == nil {
		return Resolution{Kind: NotFound}, nil
	}
	return Resolution{Kind: StoredCommand, Command: cmd, Args: args}, nil
}

// Stored finds a stored command by name, the channel's first and then the global one.
func (r *Resolver) Stored(ctx context.Context, channel *store.Channel, name string) (*store.Command, error) {
	if channel != nil {
		cmd, err := r.commands.GetCommand(ctx, channel.ID, name)
		if err != nil || cmd != nil {
			return cmd, err
		}
	}
	return r.commands.GetCommand(ctx, store.GlobalChannelID, name)
}
