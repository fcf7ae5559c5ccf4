/*
Package handler provides HTTP handler functions for web sessions and the session user's data.
*/
package handler

import (
	"net/http"
	"unicode/utf8"

	"hzbot/internal/app/platform"
	"hzbot/internal/app/store"
	"hzbot/internal/pkg/auth/jwt"
	"hzbot/internal/pkg/errs"
	"hzbot/internal/pkg/limiter"
	"hzbot/internal/pkg/logx"
	"hzbot/internal/pkg/req"
	"hzbot/internal/pkg/resp"
)

// MaxSessionUsernameLength bounds the display name stored with a web session.
const MaxSessionUsernameLength = 32

type CreateSessionInput struct {
	Username string `json:"username"`
}

// HandleCreateSession opens a web session for the local user behind the caller's IP address
// and issues a token carrying the session id. The JSON body is optional.
func HandleCreateSession(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ip := limiter.ClientIP(r.RemoteAddr)
		ident := platform.IPUser(ip)

		var input CreateSessionInput
		if r.ContentLength != 0 {
			if customErr := req.BindJSON(w, r, &input); customErr != nil {
				resp.RespondError(w, r, customErr)
				return
			}
		}
		if input.Username == "" {
			input.Username = ident.String()
		}
		if utf8.RuneCountInString(input.Username) > MaxSessionUsernameLength {
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidParams))
			return
		}

		user, err := deps.Cache.GetOrCreateUser(r.Context(), ident)
		if err != nil {
			logx.Error(err, "create session: failed to resolve user", "ip", logx.AnonymizeIP(ip))
			resp.RespondError(w, r, errs.NewError(errs.ErrUnknown, err))
			return
		}

		session, err := deps.Cache.CreateWebSession(r.Context(), user.ID, input.Username)
		if err != nil {
			logx.Error(err, "create session: failed to store session", "user_id", user.ID)
			resp.RespondError(w, r, errs.NewError(errs.ErrUnknown, err))
			return
		}

		token, err := jwt.GenerateToken(&jwt.Payload{SessionID: session.SessionID}, deps.Config.JWTSecret, jwt.SessionTokenExpiration)
		if err != nil {
			logx.Error(err, "failed to generate session token")
			resp.RespondError(w, r, errs.NewError(errs.ErrUnknown, err))
			return
		}

		logx.Info("Web session created", "user_id", user.ID, "ip", logx.AnonymizeIP(ip))

		resp.RespondSuccess(w, r, map[string]any{
			"token":     token,
			"sessionId": session.SessionID,
			"username":  session.Username,
			"user":      user,
		})
	}
}

// sessionUser resolves the token on the request to its web session and user.
func sessionUser(deps *AppDeps, r *http.Request) (*store.WebSession, *store.User, *errs.CustomError) {
	payload := jwt.GetPayloadFromContext(r)
	if payload == nil || payload.SessionID == "" {
		return nil, nil, errs.NewError(errs.ErrUnauthorized)
	}

	session, err := deps.Cache.GetWebSession(r.Context(), payload.SessionID)
	if err != nil {
		logx.Error(err, "failed to load web session")
		return nil, nil, errs.NewError(errs.ErrUnknown, err)
	}
	if session == nil {
		return nil, nil, errs.NewError(errs.ErrUnauthorized)
	}

	user, err := deps.Cache.GetUserByID(r.Context(), session.UserID)
	if err != nil {
		logx.Error(err, "failed to load session user", "user_id", session.UserID)
		return nil, nil, errs.NewError(errs.ErrUnknown, err)
	}
	if user == nil {
		return nil, nil, errs.NewError(errs.ErrUserNotFound)
	}

	return session, user, nil
}
