/*
Package gate authorizes command executions and enforces per-key cooldowns.

A cooldown is a token bucket with a burst of one that refills once per cooldown window.
A bucket is looked up and consumed while the gate's read lock is held, and Sweep removes
buckets under the write lock, so a bucket can never be dropped between its lookup and its
consumption. rate.Limiter performs its check-and-consume under its own mutex, so two
near-simultaneous invocations on the same key can never both pass. Invocations inside the
window are dropped silently; they are not errors.
*/
package gate

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"hzbot/internal/app/platform"
	"hzbot/internal/app/store"
	"hzbot/internal/pkg/errs"
	"hzbot/internal/pkg/logx"
)

// Scope selects what a cooldown is tracked per.
type Scope string

const (
	// ScopeChannel tracks cooldowns per (channel, command).
	ScopeChannel Scope = "channel"
	// ScopeUser tracks cooldowns per (user, command). Merged identities share one user.
	ScopeUser Scope = "user"
)

// ParseScope parses a configured scope name.
func ParseScope(s string) (Scope, error) {
	switch Scope(s) {
	case ScopeChannel, ScopeUser:
		return Scope(s), nil
	default:
		return "", fmt.Errorf("unknown cooldown scope %q", s)
	}
}

// sweepInterval is how often idle cooldown buckets are dropped.
const sweepInterval = 5 * time.Minute

// Gate holds the cooldown buckets of every (scope, command) key.
type Gate struct {
	// mu protects the limiters map. Readers hold it until their bucket is consumed.
	mu sync.RWMutex

	// limiters maps a cooldown key to its bucket.
	limiters map[string]*rate.Limiter

	scope Scope
	now   func() time.Time

	logger zerolog.Logger
}

// Option configures a Gate.
type Option func(*Gate)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(g *Gate) { g.now = now }
}

// New creates a Gate tracking cooldowns per scope.
func New(scope Scope, opts ...Option) *Gate {
	g := &Gate{
		limiters: make(map[string]*rate.Limiter),
		scope:    scope,
		now:      time.Now,
		logger:   logx.Component("gate"),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Authorize fails with ErrNoPermissions when the caller's level is below required.
func (g *Gate) Authorize(ec platform.ExecutionContext, required platform.Permissions) error {
	if !ec.Permissions.Satisfies(required) {
		return errs.NewError(errs.ErrNoPermissions)
	}
	return nil
}

// Key builds the cooldown key for one invocation according to the gate's scope.
// userID is the caller's resolved user, so every identity of one user shares a cooldown.
func (g *Gate) Key(ec platform.ExecutionContext, userID int64, command string) string {
	if g.scope == ScopeUser {
		return fmt.Sprintf("user:%d:%s", userID, command)
	}
	return "channel:" + ec.Channel.String() + ":" + command
}

func consume(l *rate.Limiter, now time.Time, every rate.Limit) bool {
	if l.Limit() != every {
		l.SetLimitAt(now, every)
	}
	return l.AllowN(now, 1)
}

// Allow consumes the key's cooldown. It returns false while the key is cooling down.
// A zero or negative cooldown always allows.
func (g *Gate) Allow(key string, cooldown time.Duration) bool {
	if cooldown <= 0 {
		return true
	}

	now := g.now()
	every := rate.Every(cooldown)

	g.mu.RLock()
	if l, ok := g.limiters[key]; ok {
		allowed := consume(l, now, every)
		g.mu.RUnlock()
		return allowed
	}
	g.mu.RUnlock()

	g.mu.Lock()
	defer g.mu.Unlock()

	l, ok := g.limiters[key]
	if !ok {
		l = rate.NewLimiter(every, 1)
		g.limiters[key] = l
	}
	return consume(l, now, every)
}

// Check authorizes a stored command and then consumes its cooldown.
// It returns false without an error when the invocation must be dropped.
func (g *Gate) Check(ec platform.ExecutionContext, userID int64, cmd store.Command) (bool, error) {
	if err := g.Authorize(ec, cmd.RequiredPermissions()); err != nil {
		return false, err
	}

	if !g.Allow(g.Key(ec, userID, cmd.Name), cmd.Cooldown) {
		g.logger.Debug().
			Str("channel", ec.Channel.String()).
			Str("command", cmd.Name).
			Msg("Command on cooldown, dropping invocation.")
		return false, nil
	}
	return true, nil
}

// Sweep drops buckets that are full again, i.e. keys whose cooldown has elapsed.
func (g *Gate) Sweep() int {
	now := g.now()

	g.mu.Lock()
	defer g.mu.Unlock()

	removed := 0
	for key, l := range g.limiters {
		if l.TokensAt(now) >= float64(l.Burst()) {
			delete(g.limiters, key)
			removed++
		}
	}
	return removed
}

// Run sweeps idle buckets until ctx is cancelled.
func (g *Gate) Run(ctx context.Context) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := g.Sweep(); removed > 0 {
				g.logger.Debug().Int("removed", removed).Msg("Cooldown buckets swept.")
			}
		}
	}
}
