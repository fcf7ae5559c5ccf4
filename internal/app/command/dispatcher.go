package command

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"hzbot/internal/app/cache"
	"hzbot/internal/app/delivery"
	"hzbot/internal/app/gate"
	"hzbot/internal/app/inquiry"
	"hzbot/internal/app/platform"
	"hzbot/internal/app/store"
	"hzbot/internal/pkg/errs"
	"hzbot/internal/pkg/logx"
	"hzbot/internal/pkg/telemetry"
)

// EmptyInputReply answers a message that has no command token.
const EmptyInputReply = "❗"

// Config holds the dispatcher settings.
type Config struct {
	// DefaultPrefix is used by channels without a prefix of their own.
	DefaultPrefix string
	// DefaultCooldown is given to commands created from chat.
	DefaultCooldown time.Duration
	// StoreTimeout bounds the store and bus calls of one dispatch. Zero disables it.
	StoreTimeout time.Duration
	// AdminUser is the "kind:value" identifier allowed to merge users.
	AdminUser string
	Version   string
}

// Dispatcher runs inbound messages through resolution, gating and execution.
type Dispatcher struct {
	cache    *cache.Cache
	gate     *gate.Gate
	interp   *inquiry.Interpreter
	sender   *delivery.Sender
	registry *Registry
	resolver *Resolver
	cfg      Config
	started  time.Time
	logger   zerolog.Logger
}

// NewDispatcher creates a Dispatcher with the builtin commands registered.
// sender may be nil when only Handle is used.
func NewDispatcher(c *cache.Cache, g *gate.Gate, interp *inquiry.Interpreter, sender *delivery.Sender, cfg Config) *Dispatcher {
	if cfg.DefaultPrefix == "" {
		cfg.DefaultPrefix = "!"
	}
	if cfg.DefaultCooldown == 0 {
		cfg.DefaultCooldown = store.DefaultCooldown
	}

	d := &Dispatcher{
		cache:    c,
		gate:     g,
		interp:   interp,
		sender:   sender,
		registry: NewRegistry(),
		cfg:      cfg,
		started:  time.Now(),
		logger:   logx.Component("dispatcher"),
	}
	d.registerBuiltins()
	d.resolver = NewResolver(d.registry, c)
	return d
}

// Registry exposes the builtin registry.
func (d *Dispatcher) Registry() *Registry {
	return d.registry
}

// StripPrefix removes the channel's command prefix from text. It returns false when text
// does not start with the prefix and therefore is not meant for the bot.
func (d *Dispatcher) StripPrefix(ctx context.Context, channel platform.ChannelIdentifier, text string) (string, bool) {
	prefix := d.Prefix(ctx, channel)
	if !strings.HasPrefix(text, prefix) {
		return "", false
	}
	return strings.TrimPrefix(text, prefix), true
}

// Prefix returns the channel's command prefix, falling back to the default on absence
// or on lookup failure.
func (d *Dispatcher) Prefix(ctx context.Context, channel platform.ChannelIdentifier) string {
	ctx, cancel := d.withTimeout(ctx)
	defer cancel()

	ch, err := d.cache.GetChannel(ctx, channel)
	if err != nil {
		d.logger.Warn().Err(err).Str("channel", channel.String()).Msg("Prefix lookup failed, using default.")
		return d.cfg.DefaultPrefix
	}
	if ch == nil {
		return d.cfg.DefaultPrefix
	}

	prefix, ok, err := d.cache.GetPrefix(ctx, ch.ID)
	if err != nil {
		d.logger.Warn().Err(err).Str("channel", channel.String()).Msg("Prefix lookup failed, using default.")
		return d.cfg.DefaultPrefix
	}
	if !ok || prefix == "" {
		return d.cfg.DefaultPrefix
	}
	return prefix
}

// Dispatch handles in and delivers the reply, if any, to the message's channel.
func (d *Dispatcher) Dispatch(ctx context.Context, in platform.Inbound) {
	reply, ok := d.Handle(ctx, in)
	if !ok || d.sender == nil {
		return
	}

	ctx, cancel := d.withTimeout(ctx)
	defer cancel()

	if _, err := d.sender.SendToChannel(ctx, in.Context.Channel, reply); err != nil {
		d.logger.Error().Err(err).Str("channel", in.Context.Channel.String()).Msg("Failed to deliver reply.")
	}
}

// Handle computes the reply to in without delivering it. It returns false when the
// message must be ignored: an unknown command, a command on cooldown or an empty expansion.
func (d *Dispatcher) Handle(ctx context.Context, in platform.Inbound) (string, bool) {
	start := time.Now()
	reply, outcome := d.handle(ctx, in)

	platformName, ok := in.Context.Channel.PlatformName()
	if !ok {
		platformName = string(in.Context.Channel.Kind)
	}
	telemetry.ObserveDispatch(platformName, outcome, time.Since(start).Seconds())

	return reply, outcome == telemetry.OutcomeReplied || outcome == telemetry.OutcomeEmpty || outcome == telemetry.OutcomeError
}

func (d *Dispatcher) handle(ctx context.Context, in platform.Inbound) (string, string) {
	fields := strings.Fields(in.Text)
	if len(fields) == 0 {
		return EmptyInputReply, telemetry.OutcomeEmpty
	}

	ctx, cancel := d.withTimeout(ctx)
	defer cancel()

	name, args := fields[0], fields[1:]
	reply, outcome, err := d.run(ctx, name, args, in)
	if err != nil {
		d.logFailure(err, name, in)
		return "Error: " + errs.UserMessage(err), telemetry.OutcomeError
	}
	return reply, outcome
}

func (d *Dispatcher) run(ctx context.Context, name string, args []string, in platform.Inbound) (string, string, error) {
	ec := in.Context

	user, err := d.cache.GetOrCreateUser(ctx, in.Sender)
	if err != nil {
		return "", "", storeError(err)
	}
	channel, err := d.cache.GetChannel(ctx, ec.Channel)
	if err != nil {
		return "", "", storeError(err)
	}

	res, err := d.resolver.Resolve(ctx, channel, name, args)
	if err != nil {
		return "", "", storeError(err)
	}

	var (
		reply string
		ok    bool
	)
	switch res.Kind {
	case NotFound:
		return "", telemetry.OutcomeIgnored, nil

	case BuiltinCommand:
		b := res.Builtin
		perms := b.Permissions
		pass, err := d.gate.Check(ec, user.ID, store.Command{Name: b.Name(), Permissions: &perms, Cooldown: b.Cooldown})
		if err != nil {
			return "", "", err
		}
		if !pass {
			return "", telemetry.OutcomeDropped, nil
		}

		d.logger.Info().Str("command", b.Name()).Strs("args", res.Args).Str("channel", ec.Channel.String()).Msg("Running builtin command.")
		reply, ok, err = b.Run(ctx, Invocation{
			Trigger: name,
			Args:    res.Args,
			Caller:  in.Sender,
			User:    user,
			Channel: channel,
			Context: ec,
		})
		if err != nil {
			return "", "", err
		}

	case StoredCommand:
		pass, err := d.gate.Check(ec, user.ID, *res.Command)
		if err != nil {
			return "", "", err
		}
		if !pass {
			return "", telemetry.OutcomeDropped, nil
		}

		d.logger.Info().Str("command", res.Command.Name).Str("channel", ec.Channel.String()).Msg("Running stored command.")
		reply, ok, err = d.interp.Interpret(res.Command.Action, ec)
		if err != nil {
			return "", "", err
		}
	}

	if !ok || reply == "" {
		return "", telemetry.OutcomeIgnored, nil
	}
	return reply, telemetry.OutcomeReplied, nil
}

func (d *Dispatcher) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if d.cfg.StoreTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, d.cfg.StoreTimeout)
}

// logFailure logs store failures as incidents. Everything else is an ordinary reply.
func (d *Dispatcher) logFailure(err error, name string, in platform.Inbound) {
	event := d.logger.Debug()
	if errs.IsCode(err, errs.ErrStore) || errs.As(err) == nil {
		event = d.logger.Error()
	}
	event.Err(err).
		Str("command", name).
		Str("channel", in.Context.Channel.String()).
		Str("caller", in.Sender.String()).
		Msg("Command failed.")
}

// storeError wraps a store failure. Errors that already carry a code pass through.
func storeError(err error) error {
	if errs.As(err) != nil {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return errs.Wrap(errs.ErrStore, err, "timed out")
	}
	return errs.Wrap(errs.ErrStore, err)
}
