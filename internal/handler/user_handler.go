package handler

import (
	"errors"
	"net/http"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"

	"hzbot/internal/app/platform"
	"hzbot/internal/app/store"
	"hzbot/internal/pkg/errs"
	"hzbot/internal/pkg/logx"
	"hzbot/internal/pkg/req"
	"hzbot/internal/pkg/resp"
)

const (
	MaxUserDataNameLength  = 64
	MaxUserDataValueLength = 4096
)

// HandleGetMe returns the session and the user behind it.
func HandleGetMe(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session, user, customErr := sessionUser(deps, r)
		if customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		resp.RespondSuccess(w, r, map[string]any{
			"sessionId": session.SessionID,
			"username":  session.Username,
			"user":      user,
		})
	}
}

// HandleGetUserData returns one user data entry of the session user.
func HandleGetUserData(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, user, customErr := sessionUser(deps, r)
		if customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		name, ok := dataName(r)
		if !ok {
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidParams))
			return
		}

		data, err := deps.Cache.GetUserData(r.Context(), user.ID, name)
		if err != nil {
			logx.Error(err, "failed to load user data", "user_id", user.ID, "name", name)
			resp.RespondError(w, r, errs.NewError(errs.ErrUnknown, err))
			return
		}
		if data == nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrUserDataNotFound))
			return
		}

		resp.RespondSuccess(w, r, data)
	}
}

type SetUserDataInput struct {
	Value  string `json:"value"`
	Public bool   `json:"public"`

	// Overwrite defaults to true when omitted.
	Overwrite *bool `json:"overwrite"`
}

// HandleSetUserData stores one user data entry for the session user.
func HandleSetUserData(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, user, customErr := sessionUser(deps, r)
		if customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		name, ok := dataName(r)
		if !ok {
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidParams))
			return
		}

		var input SetUserDataInput
		if customErr := req.BindJSON(w, r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}
		if utf8.RuneCountInString(input.Value) > MaxUserDataValueLength {
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidParams))
			return
		}

		overwrite := input.Overwrite == nil || *input.Overwrite
		data := store.UserData{UserID: user.ID, Name: name, Value: input.Value, Public: input.Public}

		if err := deps.Cache.SetUserData(r.Context(), data, overwrite); err != nil {
			switch {
			case errors.Is(err, store.ErrAlreadyExists):
				resp.RespondError(w, r, errs.NewError(errs.ErrUserDataExists))
			case errors.Is(err, store.ErrUserNotFound):
				resp.RespondError(w, r, errs.NewError(errs.ErrUserNotFound))
			default:
				logx.Error(err, "failed to store user data", "user_id", user.ID, "name", name)
				resp.RespondError(w, r, errs.NewError(errs.ErrUnknown, err))
			}
			return
		}

		resp.RespondSuccess(w, r, data)
	}
}

// HandleRemoveUserData deletes one user data entry of the session user. Removing a
// missing entry succeeds.
func HandleRemoveUserData(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, user, customErr := sessionUser(deps, r)
		if customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		name, ok := dataName(r)
		if !ok {
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidParams))
			return
		}

		if err := deps.Cache.RemoveUserData(r.Context(), user.ID, name); err != nil {
			logx.Error(err, "failed to remove user data", "user_id", user.ID, "name", name)
			resp.RespondError(w, r, errs.NewError(errs.ErrUnknown, err))
			return
		}

		resp.RespondSuccess(w, r, nil)
	}
}

type MergeUsersInput struct {
	Keep string `json:"keep"`
	Drop string `json:"drop"`
}

// HandleMergeUsers folds the user owning Drop into the user owning Keep.
// Only a session whose user carries the configured admin identifier may call it.
func HandleMergeUsers(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, caller, customErr := sessionUser(deps, r)
		if customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}
		if !isAdmin(deps, caller) {
			logx.Warn("User merge rejected: caller is not the admin", "user_id", caller.ID)
			resp.RespondError(w, r, errs.NewError(errs.ErrForbidden))
			return
		}

		var input MergeUsersInput
		if customErr := req.BindJSON(w, r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		keepIdent, err := platform.ParseUserIdentifier(input.Keep)
		if err != nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidParams))
			return
		}
		dropIdent, err := platform.ParseUserIdentifier(input.Drop)
		if err != nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidParams))
			return
		}

		keep, err := deps.Cache.GetUser(r.Context(), keepIdent)
		if err != nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrUnknown, err))
			return
		}
		drop, err := deps.Cache.GetUser(r.Context(), dropIdent)
		if err != nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrUnknown, err))
			return
		}
		if keep == nil || drop == nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrUserNotFound))
			return
		}
		if keep.ID == drop.ID {
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidParams))
			return
		}

		merged, err := deps.Cache.MergeUsers(r.Context(), keep.ID, drop.ID)
		if err != nil {
			if errors.Is(err, store.ErrUserNotFound) {
				resp.RespondError(w, r, errs.NewError(errs.ErrUserNotFound))
				return
			}
			logx.Error(err, "failed to merge users", "keep_id", keep.ID, "drop_id", drop.ID)
			resp.RespondError(w, r, errs.NewError(errs.ErrUnknown, err))
			return
		}

		logx.Info("Users merged", "keep_id", keep.ID, "drop_id", drop.ID, "by", caller.ID)
		resp.RespondSuccess(w, r, merged)
	}
}

func dataName(r *http.Request) (string, bool) {
	name := chi.URLParam(r, "name")
	return name, name != "" && utf8.RuneCountInString(name) <= MaxUserDataNameLength
}

func isAdmin(deps *AppDeps, user *store.User) bool {
	return deps.Config.AdminUser != "" && user.HasIdentifier(deps.Config.AdminUser)
}
