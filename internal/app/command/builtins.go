package command

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"hzbot/internal/app/platform"
	"hzbot/internal/app/store"
	"hzbot/internal/pkg/errs"
)

// PingCooldown is the cooldown of the ping builtin.
const PingCooldown = 5 * time.Second

func (d *Dispatcher) registerBuiltins() {
	d.registry.Register(&Builtin{
		Names:    []string{"ping"},
		Cooldown: PingCooldown,
		Run:      d.ping,
	})
	d.registry.Register(&Builtin{
		Names: []string{"whoami", "id"},
		Run:   d.whoami,
	})
	d.registry.Register(&Builtin{
		Names: []string{"command", "cmd", "commands"},
		Run:   d.command,
	})
	d.registry.Register(&Builtin{
		Names: []string{"showcmd", "checkcmd"},
		Run:   d.showCommand,
	})
	d.registry.Register(&Builtin{
		Names:       []string{"debug"},
		Permissions: platform.ChannelMod,
		Run:         d.debug,
	})
	d.registry.Register(&Builtin{
		Names: []string{"merge"},
		Run:   d.merge,
	})

	d.registry.Alias("addcmd", "command", "add")
	d.registry.Alias("cmdadd", "command", "add")
	d.registry.Alias("delcmd", "command", "remove")
	d.registry.Alias("cmddel", "command", "remove")
}

func (d *Dispatcher) ping(_ context.Context, _ Invocation) (string, bool, error) {
	return fmt.Sprintf("Pong! Version: %s, Uptime %s", d.cfg.Version, FormatUptime(time.Since(d.started))), true, nil
}

// FormatUptime renders hours and minutes ("2h 5m "), or seconds ("42s") below one minute.
func FormatUptime(d time.Duration) string {
	secs := int64(d / time.Second)
	hours := secs / 3600
	minutes := (secs / 60) % 60

	var b strings.Builder
	if hours != 0 {
		fmt.Fprintf(&b, "%dh ", hours)
	}
	if minutes != 0 {
		fmt.Fprintf(&b, "%dm ", minutes)
	}
	if b.Len() == 0 {
		fmt.Fprintf(&b, "%ds", secs)
	}
	return b.String()
}

func (d *Dispatcher) whoami(_ context.Context, inv Invocation) (string, bool, error) {
	idents := make([]string, len(inv.User.Identifiers))
	for i, ident := range inv.User.Identifiers {
		idents[i] = ident.String()
	}

	return fmt.Sprintf("user %d [%s], identified as %s, channel: %s, permissions: %s",
		inv.User.ID,
		strings.Join(idents, ", "),
		inv.Caller,
		inv.Context.Channel,
		inv.Context.Permissions,
	), true, nil
}

func (d *Dispatcher) command(ctx context.Context, inv Invocation) (string, bool, error) {
	if len(inv.Args) == 0 {
		return d.listCommands(ctx, inv)
	}

	if err := d.gate.Authorize(inv.Context, platform.ChannelMod); err != nil {
		return "", false, err
	}

	sub, args := inv.Args[0], inv.Args[1:]
	switch sub {
	case "add", "create":
		return d.addCommand(ctx, inv, args)
	case "del", "delete", "remove":
		return d.removeCommand(ctx, inv, args)
	case "edit", "update":
		return d.editCommand(ctx, inv, args)
	default:
		return "", false, errs.NewError(errs.ErrInvalidArgument, sub)
	}
}

func (d *Dispatcher) listCommands(ctx context.Context, inv Invocation) (string, bool, error) {
	names := d.registry.Canonical()

	var stored []string
	global, err := d.cache.ListCommands(ctx, store.GlobalChannelID)
	if err != nil {
		return "", false, storeError(err)
	}
	for _, c := range global {
		stored = append(stored, c.Name)
	}
	if inv.Channel != nil {
		own, err := d.cache.ListCommands(ctx, inv.Channel.ID)
		if err != nil {
			return "", false, storeError(err)
		}
		for _, c := range own {
			stored = append(stored, c.Name)
		}
	}
	slices.Sort(stored)
	names = append(names, slices.Compact(stored)...)

	return "Commands: " + strings.Join(names, ", "), true, nil
}

// commandArgs splits "name action..." and requires both parts.
func commandArgs(args []string) (string, string, error) {
	if len(args) == 0 {
		return "", "", errs.NewError(errs.ErrMissingArgument, "command name")
	}
	action := strings.Join(args[1:], " ")
	if action == "" {
		return "", "", errs.NewError(errs.ErrMissingArgument, "command action")
	}
	return args[0], action, nil
}

func (d *Dispatcher) addCommand(ctx context.Context, inv Invocation, args []string) (string, bool, error) {
	name, action, err := commandArgs(args)
	if err != nil {
		return "", false, err
	}

	channel, err := d.cache.GetOrCreateChannel(ctx, inv.Context.Channel)
	if err != nil {
		return "", false, storeError(err)
	}

	_, err = d.cache.AddCommand(ctx, store.Command{
		ChannelID: channel.ID,
		Name:      name,
		Action:    action,
		Cooldown:  d.cfg.DefaultCooldown,
	})
	switch {
	case err == nil:
		return "Command successfully added", true, nil
	case errors.Is(err, store.ErrAlreadyExists):
		return "Command already exists", true, nil
	case errors.Is(err, store.ErrInvalidValue):
		return "", false, errs.NewError(errs.ErrInvalidArgument, name)
	default:
		return "", false, storeError(err)
	}
}

func (d *Dispatcher) removeCommand(ctx context.Context, inv Invocation, args []string) (string, bool, error) {
	if len(args) == 0 {
		return "", false, errs.NewError(errs.ErrMissingArgument, "command name")
	}
	name := args[0]
	if inv.Channel == nil {
		return "", false, errs.NewError(errs.ErrInvalidArgument, name)
	}

	err := d.cache.DeleteCommand(ctx, inv.Channel.ID, name)
	switch {
	case err == nil:
		return "Command successfully removed", true, nil
	case errors.Is(err, store.ErrInvalidValue):
		return "", false, errs.NewError(errs.ErrInvalidArgument, name)
	default:
		return "", false, storeError(err)
	}
}

func (d *Dispatcher) editCommand(ctx context.Context, inv Invocation, args []string) (string, bool, error) {
	name, action, err := commandArgs(args)
	if err != nil {
		return "", false, err
	}
	if inv.Channel == nil {
		return "", false, errs.NewError(errs.ErrInvalidArgument, name)
	}

	err = d.cache.UpdateCommand(ctx, inv.Channel.ID, name, action)
	switch {
	case err == nil:
		return "Command successfully updated", true, nil
	case errors.Is(err, store.ErrInvalidValue):
		return "", false, errs.NewError(errs.ErrInvalidArgument, name)
	default:
		return "", false, storeError(err)
	}
}

func (d *Dispatcher) showCommand(ctx context.Context, inv Invocation) (string, bool, error) {
	if len(inv.Args) == 0 {
		return "", false, errs.NewError(errs.ErrMissingArgument, "command name")
	}
	name := inv.Args[0]

	if _, _, ok := d.registry.Lookup(name, nil); ok {
		return fmt.Sprintf("%s is a builtin command", name), true, nil
	}

	cmd, err := d.resolver.Stored(ctx, inv.Channel, name)
	if err != nil {
		return "", false, storeError(err)
	}
	if cmd == nil {
		return "", false, errs.NewError(errs.ErrInvalidArgument, name)
	}

	scope := "channel"
	if cmd.ChannelID == store.GlobalChannelID {
		scope = "global"
	}
	return fmt.Sprintf("%s (%s): %s | permissions: %s, cooldown: %s",
		cmd.Name, scope, cmd.Action, cmd.RequiredPermissions(), cmd.Cooldown), true, nil
}

func (d *Dispatcher) debug(_ context.Context, inv Invocation) (string, bool, error) {
	if len(inv.Args) == 0 {
		return "", false, errs.NewError(errs.ErrMissingArgument, "action")
	}

	out, ok, err := d.interp.Interpret(strings.Join(inv.Args, " "), inv.Context)
	if err != nil {
		return "", false, err
	}
	if !ok {
		return "(empty)", true, nil
	}
	return out, true, nil
}

func (d *Dispatcher) merge(ctx context.Context, inv Invocation) (string, bool, error) {
	if d.cfg.AdminUser == "" || inv.User == nil || !inv.User.HasIdentifier(d.cfg.AdminUser) {
		return "", false, errs.NewError(errs.ErrNoPermissions)
	}
	if len(inv.Args) < 2 {
		return "", false, errs.NewError(errs.ErrMissingArgument, "user identifiers to keep and drop")
	}

	keep, err := d.lookupUser(ctx, inv.Args[0])
	if err != nil {
		return "", false, err
	}
	drop, err := d.lookupUser(ctx, inv.Args[1])
	if err != nil {
		return "", false, err
	}
	if keep.ID == drop.ID {
		return "", false, errs.NewError(errs.ErrInvalidArgument, "cannot merge a user into itself")
	}

	merged, err := d.cache.MergeUsers(ctx, keep.ID, drop.ID)
	if err != nil {
		return "", false, storeError(err)
	}
	return fmt.Sprintf("Merged user %d into user %d (%d identifiers)", drop.ID, merged.ID, len(merged.Identifiers)), true, nil
}

func (d *Dispatcher) lookupUser(ctx context.Context, raw string) (*store.User, error) {
	ident, err := platform.ParseUserIdentifier(raw)
	if err != nil {
		return nil, errs.NewError(errs.ErrInvalidArgument, raw)
	}

	user, err := d.cache.GetUser(ctx, ident)
	if err != nil {
		return nil, storeError(err)
	}
	if user == nil {
		return nil, errs.NewError(errs.ErrInvalidArgument, raw)
	}
	return user, nil
}
