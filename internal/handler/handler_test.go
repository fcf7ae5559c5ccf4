package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hzbot/internal/app/bus"
	"hzbot/internal/app/cache"
	"hzbot/internal/app/platform"
	"hzbot/internal/app/store"
	"hzbot/internal/configs"
	"hzbot/internal/pkg/errs"
)

const testIP = "192.0.2.1"

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type apiFixture struct {
	cache  *cache.Cache
	router http.Handler
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()

	hub := bus.NewHub()
	t.Cleanup(func() { _ = hub.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	c := cache.New(store.NewMemory(), hub, cache.Intervals{})
	deps := &AppDeps{
		Config: &configs.AppConfig{
			Environment: "development",
			JWTSecret:   "test-secret",
			AdminUser:   platform.IPUser(testIP).String(),
		},
		Cache: c,
	}
	return &apiFixture{cache: c, router: Router(ctx, deps)}
}

func (f *apiFixture) do(t *testing.T, method, path, token, body string) (int, envelope) {
	t.Helper()

	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	req.RemoteAddr = testIP + ":5555"
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return rec.Code, env
}

func (f *apiFixture) session(t *testing.T) string {
	t.Helper()

	status, env := f.do(t, http.MethodPost, "/api/auth/session", "", `{"username":"alice"}`)
	require.Equal(t, http.StatusOK, status)

	var out struct {
		Token     string     `json:"token"`
		SessionID string     `json:"sessionId"`
		User      store.User `json:"user"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &out))
	require.NotEmpty(t, out.Token)
	assert.Equal(t, []platform.UserIdentifier{platform.IPUser(testIP)}, out.User.Identifiers)
	return out.Token
}

func TestHealth(t *testing.T) {
	f := newAPIFixture(t)

	status, env := f.do(t, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, 0, env.Code)
}

func TestGetMe(t *testing.T) {
	f := newAPIFixture(t)
	token := f.session(t)

	status, env := f.do(t, http.MethodGet, "/api/me", token, "")
	require.Equal(t, http.StatusOK, status)

	var out struct {
		Username string     `json:"username"`
		User     store.User `json:"user"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &out))
	assert.Equal(t, "alice", out.Username)
	assert.Equal(t, []platform.UserIdentifier{platform.IPUser(testIP)}, out.User.Identifiers)
}

func TestAuthenticatedRoutesRequireToken(t *testing.T) {
	f := newAPIFixture(t)

	status, env := f.do(t, http.MethodGet, "/api/me", "", "")
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, errs.ErrUnauthorized, env.Code)

	status, env = f.do(t, http.MethodGet, "/api/me", "not-a-token", "")
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, errs.ErrUnauthorized, env.Code)
}

func TestUserDataLifecycle(t *testing.T) {
	f := newAPIFixture(t)
	token := f.session(t)

	status, env := f.do(t, http.MethodGet, "/api/me/data/color", token, "")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, errs.ErrUserDataNotFound, env.Code)

	status, _ = f.do(t, http.MethodPut, "/api/me/data/color", token, `{"value":"red","public":true}`)
	require.Equal(t, http.StatusOK, status)

	status, env = f.do(t, http.MethodPut, "/api/me/data/color", token, `{"value":"blue","overwrite":false}`)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, errs.ErrUserDataExists, env.Code)

	status, env = f.do(t, http.MethodGet, "/api/me/data/color", token, "")
	require.Equal(t, http.StatusOK, status)
	var data store.UserData
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, "red", data.Value)
	assert.True(t, data.Public)

	status, _ = f.do(t, http.MethodDelete, "/api/me/data/color", token, "")
	require.Equal(t, http.StatusOK, status)

	status, _ = f.do(t, http.MethodGet, "/api/me/data/color", token, "")
	assert.Equal(t, http.StatusNotFound, status)
}

func TestSetUserDataRejectsUnknownFields(t *testing.T) {
	f := newAPIFixture(t)
	token := f.session(t)

	status, env := f.do(t, http.MethodPut, "/api/me/data/color", token, `{"value":"red","colour":"x"}`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, errs.ErrInvalidJSONFormat, env.Code)
}

func TestMergeUsers(t *testing.T) {
	f := newAPIFixture(t)
	token := f.session(t)
	ctx := context.Background()

	keep, err := f.cache.GetOrCreateUser(ctx, platform.TwitchUser("5"))
	require.NoError(t, err)
	_, err = f.cache.GetOrCreateUser(ctx, platform.DiscordUser("6"))
	require.NoError(t, err)

	status, env := f.do(t, http.MethodPost, "/api/users/merge", token, `{"keep":"twitch:5","drop":"discord:6"}`)
	require.Equal(t, http.StatusOK, status, env.Message)

	var merged store.User
	require.NoError(t, json.Unmarshal(env.Data, &merged))
	assert.Equal(t, keep.ID, merged.ID)
	assert.ElementsMatch(t, []platform.UserIdentifier{platform.TwitchUser("5"), platform.DiscordUser("6")}, merged.Identifiers)

	status, env = f.do(t, http.MethodPost, "/api/users/merge", token, `{"keep":"twitch:5","drop":"discord:6"}`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, errs.ErrInvalidParams, env.Code)

	status, env = f.do(t, http.MethodPost, "/api/users/merge", token, `{"keep":"twitch:5","drop":"twitch:404"}`)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, errs.ErrUserNotFound, env.Code)
}

func TestMergeUsersRequiresAdmin(t *testing.T) {
	f := newAPIFixture(t)
	token := f.session(t)

	f.router = Router(t.Context(), &AppDeps{
		Config: &configs.AppConfig{Environment: "development", JWTSecret: "test-secret", AdminUser: "twitch_id:1"},
		Cache:  f.cache,
	})

	status, env := f.do(t, http.MethodPost, "/api/users/merge", token, `{"keep":"twitch:5","drop":"discord:6"}`)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, errs.ErrForbidden, env.Code)
}

func TestListCommands(t *testing.T) {
	f := newAPIFixture(t)
	ctx := context.Background()

	channel, err := f.cache.GetOrCreateChannel(ctx, platform.TwitchChannel("forsen"))
	require.NoError(t, err)

	for _, cmd := range []store.Command{
		{ChannelID: channel.ID, Name: "hello", Action: "hi"},
		{ChannelID: store.GlobalChannelID, Name: "hello", Action: "global hi"},
		{ChannelID: store.GlobalChannelID, Name: "rules", Action: "be nice"},
	} {
		_, err := f.cache.AddCommand(ctx, cmd)
		require.NoError(t, err)
	}

	status, env := f.do(t, http.MethodGet, "/api/channels/twitch/forsen/commands", "", "")
	require.Equal(t, http.StatusOK, status)

	var out struct {
		Commands []store.Command `json:"commands"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &out))
	require.Len(t, out.Commands, 2)
	assert.Equal(t, "hi", out.Commands[0].Action)
	assert.Equal(t, "rules", out.Commands[1].Name)

	status, env = f.do(t, http.MethodGet, "/api/channels/twitch/nobody/commands", "", "")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, errs.ErrChannelNotFound, env.Code)

	status, env = f.do(t, http.MethodGet, "/api/channels/myspace/forsen/commands", "", "")
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, errs.ErrInvalidParams, env.Code)
}
