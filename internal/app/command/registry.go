/*
Package command turns inbound chat text into replies.

The Resolver maps a command token to a builtin, a stored command or nothing. The
Dispatcher runs the whole pipeline for one message: tokenize, resolve, gate, execute,
and hand the reply to delivery.
*/
package command

import (
	"context"
	"slices"
	"time"

	"hzbot/internal/app/platform"
	"hzbot/internal/app/store"
)

// Invocation is one call of a builtin.
type Invocation struct {
	// Trigger is the token the caller typed, before alias rewriting.
	Trigger string
	// Args are the positional arguments, alias arguments included.
	Args []string
	// Caller is the identity the message came from.
	Caller platform.UserIdentifier
	// User is the caller's user record.
	User *store.User
	// Channel is the resolved channel record, nil if the channel was never stored.
	Channel *store.Channel
	Context platform.ExecutionContext
}

// Builtin is a command implemented by the bot itself.
type Builtin struct {
	// Names are the triggers of the builtin. The first one is its canonical name.
	Names []string
	// Cooldown between two invocations in the same gate scope. Zero means none.
	Cooldown time.Duration
	// Permissions required before Run is called.
	Permissions platform.Permissions
	// Run executes the builtin. It returns false when there is nothing to reply.
	Run func(ctx context.Context, inv Invocation) (string, bool, error)
}

// Name returns the canonical name.
func (b *Builtin) Name() string {
	return b.Names[0]
}

type alias struct {
	target string
	args   []string
}

// Registry holds builtins and the legacy aliases that rewrite into them.
type Registry struct {
	builtins map[string]*Builtin
	ordered  []*Builtin
	aliases  map[string]alias
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		builtins: make(map[string]*Builtin),
		aliases:  make(map[string]alias),
	}
}

// Register adds b under all of its names.
func (r *Registry) Register(b *Builtin) {
	for _, name := range b.Names {
		r.builtins[name] = b
	}
	r.ordered = append(r.ordered, b)
}

// Alias rewrites name into "target args...".
func (r *Registry) Alias(name, target string, args ...string) {
	r.aliases[name] = alias{target: target, args: args}
}

// Lookup finds the builtin for name, applying aliases. The returned arguments are the
// alias arguments followed by args.
func (r *Registry) Lookup(name string, args []string) (*Builtin, []string, bool) {
	if a, ok := r.aliases[name]; ok {
		name = a.target
		args = append(slices.Clone(a.args), args...)
	}

	b, ok := r.builtins[name]
	return b, args, ok
}

// Names lists every trigger the registry answers to, aliases included, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.builtins)+len(r.aliases))
	for name := range r.builtins {
		names = append(names, name)
	}
	for name := range r.aliases {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Canonical lists the canonical builtin names in registration order.
func (r *Registry) Canonical() []string {
	names := make([]string, len(r.ordered))
	for i, b := range r.ordered {
		names[i] = b.Name()
	}
	return names
}
