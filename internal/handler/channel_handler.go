package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"hzbot/internal/app/platform"
	"hzbot/internal/app/store"
	"hzbot/internal/pkg/errs"
	"hzbot/internal/pkg/logx"
	"hzbot/internal/pkg/resp"
)

// HandleListCommands lists the stored commands usable in a channel: its own commands
// followed by the global ones it does not shadow.
func HandleListCommands(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ident, err := platform.ParseChannelIdentifier(chi.URLParam(r, "platform") + ":" + chi.URLParam(r, "channel"))
		if err != nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidParams))
			return
		}

		channel, err := deps.Cache.GetChannel(r.Context(), ident)
		if err != nil {
			logx.Error(err, "failed to load channel", "channel", ident.String())
			resp.RespondError(w, r, errs.NewError(errs.ErrUnknown, err))
			return
		}
		if channel == nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrChannelNotFound))
			return
		}

		own, err := deps.Cache.ListCommands(r.Context(), channel.ID)
		if err != nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrUnknown, err))
			return
		}
		global, err := deps.Cache.ListCommands(r.Context(), store.GlobalChannelID)
		if err != nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrUnknown, err))
			return
		}

		seen := make(map[string]struct{}, len(own))
		commands := make([]store.Command, 0, len(own)+len(global))
		for _, cmd := range own {
			seen[cmd.Name] = struct{}{}
			commands = append(commands, cmd)
		}
		for _, cmd := range global {
			if _, shadowed := seen[cmd.Name]; !shadowed {
				commands = append(commands, cmd)
			}
		}

		resp.RespondSuccess(w, r, map[string]any{
			"channel":  channel,
			"builtins": store.BuiltinCommands,
			"commands": commands,
		})
	}
}
