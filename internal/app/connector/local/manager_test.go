package local

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hzbot/internal/app/bus"
	"hzbot/internal/app/platform"
	"hzbot/internal/pkg/errs"
)

type recordingDispatcher struct {
	got chan platform.Inbound
}

func (d *recordingDispatcher) StripPrefix(_ context.Context, _ platform.ChannelIdentifier, text string) (string, bool) {
	return strings.CutPrefix(text, "!")
}

func (d *recordingDispatcher) Dispatch(_ context.Context, in platform.Inbound) {
	d.got <- in
}

type frame struct {
	Type    MessageType     `json:"type"`
	Sender  Participant     `json:"sender"`
	Payload json.RawMessage `json:"payload"`
}

func readUntil(t *testing.T, conn *websocket.Conn, want MessageType) frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)
		var f frame
		require.NoError(t, json.Unmarshal(data, &f))
		if f.Type == want {
			return f
		}
	}
}

func newServer(t *testing.T, m *Manager) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		room, cerr := m.GetOrCreateRoom(strings.TrimPrefix(r.URL.Path, "/"))
		if cerr != nil {
			http.Error(w, cerr.Message, cerr.Status)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		client := m.NewClient(room, conn, Participant{ID: r.URL.Query().Get("id"), Nickname: "tester"}, "127.0.0.1")
		go client.WritePump()
		room.RegisterClient(client)
		client.ReadPump()
	}))
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server, path string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + path
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestRoomRoundTrip(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := bus.NewHub()
	defer hub.Close()
	d := &recordingDispatcher{got: make(chan platform.Inbound, 4)}
	m := NewManager(ctx, d, hub, Config{CommandPrefix: "!"})
	defer m.Shutdown()
	go func() { _ = m.Run(ctx) }()

	srv := newServer(t, m)
	alice := dial(t, srv, "/lobby?id=alice")
	initFrame := readUntil(t, alice, TypeInitData)
	var initData InitDataPayload
	require.NoError(t, json.Unmarshal(initFrame.Payload, &initData))
	assert.True(t, initData.ChannelMod)
	assert.Equal(t, "!", initData.CommandPrefix)

	bob := dial(t, srv, "/lobby?id=bob")
	readUntil(t, bob, TypeInitData)

	require.NoError(t, alice.WriteJSON(map[string]any{"type": "TEXT", "tempId": "t1", "payload": map[string]string{"content": "!ping"}}))
	readUntil(t, alice, TypeConfirm)

	text := readUntil(t, bob, TypeText)
	assert.Equal(t, "alice", text.Sender.ID)

	select {
	case in := <-d.got:
		assert.Equal(t, "ping", in.Text)
		assert.Equal(t, platform.IPUser("127.0.0.1"), in.Sender)
		assert.Equal(t, platform.LocalChannel("lobby"), in.Context.Channel)
		assert.Equal(t, platform.ChannelMod, in.Context.Permissions)
	case <-time.After(2 * time.Second):
		t.Fatal("command was not dispatched")
	}

	payload, err := bus.OutgoingMessage{ChannelID: "lobby", Contents: "Pong!"}.Encode()
	require.NoError(t, err)

	// Run subscribes asynchronously, so keep publishing until the reply shows up.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		ticker := time.NewTicker(50 * time.Millisecond)
		defer ticker.Stop()
		for {
			_ = hub.Publish(ctx, "messages.outgoing.local", payload)
			select {
			case <-stop:
				return
			case <-ticker.C:
			}
		}
	}()

	reply := readUntil(t, bob, TypeReply)
	assert.Equal(t, BotUser.ID, reply.Sender.ID)
	assert.JSONEq(t, `{"content":"Pong!"}`, string(reply.Payload))
}

func TestPlainChatIsNotDispatched(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := bus.NewHub()
	defer hub.Close()
	d := &recordingDispatcher{got: make(chan platform.Inbound, 1)}
	m := NewManager(ctx, d, hub, Config{})
	defer m.Shutdown()

	srv := newServer(t, m)
	conn := dial(t, srv, "/lobby?id=carol")
	readUntil(t, conn, TypeInitData)

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "TEXT", "tempId": "t1", "payload": map[string]string{"content": "hello"}}))
	readUntil(t, conn, TypeConfirm)

	select {
	case in := <-d.got:
		t.Fatalf("unexpected dispatch: %+v", in)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestOversizedTextIsRejected(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := bus.NewHub()
	defer hub.Close()
	m := NewManager(ctx, &recordingDispatcher{got: make(chan platform.Inbound, 1)}, hub, Config{})
	defer m.Shutdown()

	srv := newServer(t, m)
	conn := dial(t, srv, "/lobby?id=dave")
	readUntil(t, conn, TypeInitData)

	long := strings.Repeat("a", MaxContentBytes+1)
	require.NoError(t, conn.WriteJSON(map[string]any{"type": "TEXT", "payload": map[string]string{"content": long}}))

	f := readUntil(t, conn, TypeError)
	var payload ErrorPayload
	require.NoError(t, json.Unmarshal(f.Payload, &payload))
	assert.Equal(t, errs.ErrMessageContentTooLong, payload.Code)
}

func TestIsModerator(t *testing.T) {
	m := NewManager(context.Background(), &recordingDispatcher{}, bus.NewHub(), Config{ModAddrs: []string{"10.0.0.7", "not-an-ip"}})
	defer m.Shutdown()

	assert.True(t, m.IsModerator("127.0.0.1"))
	assert.True(t, m.IsModerator("::1"))
	assert.True(t, m.IsModerator("10.0.0.7"))
	assert.False(t, m.IsModerator("10.0.0.8"))
	assert.False(t, m.IsModerator("garbage"))
}

func TestGetOrCreateRoom(t *testing.T) {
	m := NewManager(context.Background(), &recordingDispatcher{}, bus.NewHub(), Config{})

	_, err := m.GetOrCreateRoom("")
	require.NotNil(t, err)
	assert.Equal(t, errs.ErrInvalidParams, err.Code)

	first, err := m.GetOrCreateRoom("lobby")
	require.Nil(t, err)
	again, err := m.GetOrCreateRoom("lobby")
	require.Nil(t, err)
	assert.Same(t, first, again)

	m.Shutdown()
	select {
	case <-first.Done():
	case <-time.After(time.Second):
		t.Fatal("room did not stop")
	}

	_, err = m.GetOrCreateRoom("lobby")
	assert.NotNil(t, err)
}
