package local

import (
	"context"
	"net"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"hzbot/internal/app/bus"
	"hzbot/internal/app/connector"
	"hzbot/internal/app/platform"
	"hzbot/internal/pkg/errs"
	"hzbot/internal/pkg/logx"
)

// MaxRoomCodeLength bounds room names.
const MaxRoomCodeLength = 64

// Config configures the local connector.
type Config struct {
	// OutgoingPrefix is the bus topic prefix replies are published under.
	OutgoingPrefix string
	// CommandPrefix is announced to clients in INIT_DATA.
	CommandPrefix string
	// MaxClients per room, 0 uses DefaultMaxClients.
	MaxClients int
	// ModAddrs are client IPs treated as channel moderators, besides loopback.
	ModAddrs []string
}

// Manager owns the rooms and connects them to the dispatcher and the bus.
type Manager struct {
	// rooms keyed by room code.
	rooms map[string]*Room

	cfg        Config
	modAddrs   map[string]struct{}
	dispatcher connector.Dispatcher
	bus        bus.Bus

	// ctx scopes dispatches started by clients.
	ctx context.Context

	// mu protects rooms.
	mu sync.RWMutex

	// cleanup receives rooms whose loop has ended.
	cleanup chan roomCleanupMsg

	wg sync.WaitGroup

	logger zerolog.Logger
}

// NewManager creates a Manager and starts its cleanup loop. Dispatches triggered by
// clients run under ctx.
func NewManager(ctx context.Context, d connector.Dispatcher, b bus.Bus, cfg Config) *Manager {
	if cfg.MaxClients == 0 {
		cfg.MaxClients = DefaultMaxClients
	}
	if cfg.OutgoingPrefix == "" {
		cfg.OutgoingPrefix = bus.DefaultOutgoingPrefix
	}

	mods := make(map[string]struct{}, len(cfg.ModAddrs))
	for _, addr := range cfg.ModAddrs {
		if ip := net.ParseIP(addr); ip != nil {
			mods[ip.String()] = struct{}{}
		}
	}

	m := &Manager{
		rooms:      make(map[string]*Room),
		cfg:        cfg,
		modAddrs:   mods,
		dispatcher: d,
		bus:        b,
		ctx:        ctx,
		cleanup:    make(chan roomCleanupMsg, 10),
		logger:     logx.Component("connector.local"),
	}

	m.wg.Add(1)
	go m.runCleanupLoop()

	return m
}

func (m *Manager) runCleanupLoop() {
	defer m.wg.Done()

	for msg := range m.cleanup {
		m.deleteRoom(msg)
	}
}

func (m *Manager) deleteRoom(msg roomCleanupMsg) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if room, ok := m.rooms[msg.roomCode]; ok && room == msg.room {
		delete(m.rooms, msg.roomCode)
		m.logger.Info().Str("room_code", msg.roomCode).Msg("Room successfully removed.")
	}
}

// GetOrCreateRoom returns the open room called code, creating and starting it if needed.
func (m *Manager) GetOrCreateRoom(code string) (*Room, *errs.CustomError) {
	if code == "" || len(code) > MaxRoomCodeLength {
		return nil, errs.NewError(errs.ErrInvalidParams)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.rooms == nil {
		return nil, errs.NewError(errs.ErrChannelNotFound)
	}

	if room, ok := m.rooms[code]; ok {
		select {
		case <-room.Done():
		default:
			return room, nil
		}
	}

	room := NewRoom(code, m.cfg.MaxClients, m.cleanup)
	m.rooms[code] = room
	go room.Run()

	m.logger.Info().Str("room_code", code).Int("max_clients", m.cfg.MaxClients).Msg("New Room created and started.")
	return room, nil
}

// GetRoom returns the room called code, or nil.
func (m *Manager) GetRoom(code string) *Room {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.rooms[code]
}

// IsModerator reports whether a client at ip gets ChannelMod permissions.
func (m *Manager) IsModerator(ip string) bool {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return false
	}
	if parsed.IsLoopback() {
		return true
	}
	_, ok := m.modAddrs[parsed.String()]
	return ok
}

// NewClient creates the client for an upgraded connection from ip. The caller starts
// WritePump, registers the client with the room, then runs ReadPump.
func (m *Manager) NewClient(room *Room, conn *websocket.Conn, p Participant, ip string) *Client {
	mod := m.IsModerator(ip)
	perms := platform.Default
	if mod {
		perms = platform.ChannelMod
	}

	sender := platform.IPUser(ip)
	channel := platform.LocalChannel(room.Code)

	return newClient(room, conn, p, mod, m.cfg.CommandPrefix, func(_ *Client, text string) {
		go connector.Forward(m.ctx, m.dispatcher, platform.Inbound{
			Text:    text,
			Sender:  sender,
			Context: platform.ExecutionContext{Channel: channel, Permissions: perms},
		})
	})
}

// Run delivers bot replies from the bus to the rooms until ctx is done.
func (m *Manager) Run(ctx context.Context) error {
	return connector.Deliver(ctx, m.bus, m.cfg.OutgoingPrefix, platform.Local, m.deliver)
}

func (m *Manager) deliver(out bus.OutgoingMessage) error {
	room := m.GetRoom(out.ChannelID)
	if room == nil {
		return errs.NewError(errs.ErrChannelNotFound)
	}

	room.Broadcast(NewMessage(TypeReply, room.Code, BotUser, TextPayload{Content: out.Contents}))
	return nil
}

// Shutdown stops every room and the cleanup loop.
func (m *Manager) Shutdown() {
	m.logger.Info().Msg("Shutting down local rooms...")

	m.mu.Lock()
	rooms := m.rooms
	m.rooms = nil
	m.mu.Unlock()

	for _, room := range rooms {
		room.Stop()
		<-room.Done()
	}

	close(m.cleanup)
	m.wg.Wait()

	m.logger.Info().Msg("Local rooms shutdown complete.")
}
