package local

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"hzbot/internal/pkg/logx"
)

const (
	broadcastChannelBuffer = 1024

	// DefaultMaxClients caps the participants of one room.
	DefaultMaxClients = 50

	// RoomInactivityTimeout is how long an empty room stays open.
	RoomInactivityTimeout = 5 * time.Minute
)

// roomCleanupMsg asks the Manager to forget a room whose loop has ended.
type roomCleanupMsg struct {
	roomCode string
	room     *Room
}

// Room is one local chat channel and its live connections.
type Room struct {
	// Code is the room name and the local channel name.
	Code string

	// MaxClients is the capacity, 0 means unlimited.
	MaxClients int

	// connected clients keyed by participant id.
	clients map[string]*Client

	broadcast  chan Message
	register   chan *Client
	unregister chan *Client

	cleanupChan chan<- roomCleanupMsg

	// stopChan asks Run to exit, done is closed once it has.
	stopChan chan struct{}
	stopOnce sync.Once
	done     chan struct{}

	shutdownTimer *time.Timer

	// mu protects clients.
	mu sync.RWMutex

	logger zerolog.Logger
}

// NewRoom creates a room. Run must be started by the caller.
func NewRoom(roomCode string, maxClients int, cleanupChan chan<- roomCleanupMsg) *Room {
	return &Room{
		Code:          roomCode,
		MaxClients:    maxClients,
		clients:       make(map[string]*Client),
		broadcast:     make(chan Message, broadcastChannelBuffer),
		register:      make(chan *Client, 16),
		unregister:    make(chan *Client, 16),
		cleanupChan:   cleanupChan,
		stopChan:      make(chan struct{}),
		done:          make(chan struct{}),
		shutdownTimer: time.NewTimer(RoomInactivityTimeout),
		logger:        logx.Logger().With().Str("component", "connector.local").Str("room_code", roomCode).Logger(),
	}
}

// Stop ends the Run loop.
func (r *Room) Stop() {
	r.stopOnce.Do(func() {
		r.logger.Info().Msg("Received stop signal. Stopping room immediately.")
		close(r.stopChan)
	})
}

// Done is closed when the room's loop has exited.
func (r *Room) Done() <-chan struct{} {
	return r.done
}

// Broadcast queues msg for every participant except its sender. It returns false when
// the room is closed or its queue is full.
func (r *Room) Broadcast(msg Message) bool {
	select {
	case <-r.done:
		return false
	default:
	}

	select {
	case r.broadcast <- msg:
		return true
	case <-r.done:
		return false
	default:
		r.logger.Warn().Str("msg_type", string(msg.Type)).Msg("Broadcast channel full, dropping message.")
		return false
	}
}

// RegisterClient queues a client to join the room.
func (r *Room) RegisterClient(client *Client) bool {
	select {
	case r.register <- client:
		return true
	case <-r.done:
	default:
		r.logger.Warn().Msg("Room register channel blocked.")
	}
	client.closeSend()
	return false
}

func (r *Room) unregisterClient(client *Client) {
	select {
	case r.unregister <- client:
	case <-r.done:
	default:
		r.logger.Warn().Msg("Room unregister channel blocked.")
	}
}

// Size returns the number of connected participants.
func (r *Room) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

// IsFull checks if the room has reached its maximum client capacity.
func (r *Room) IsFull() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.MaxClients > 0 && len(r.clients) >= r.MaxClients
}

func (r *Room) resetTimer(d time.Duration) {
	if !r.shutdownTimer.Stop() {
		select {
		case <-r.shutdownTimer.C:
		default:
		}
	}
	if d > 0 {
		r.shutdownTimer.Reset(d)
	}
}

// Run is the room's event loop: membership changes, broadcasts and the inactivity timeout.
func (r *Room) Run() {
	defer func() {
		r.shutdownTimer.Stop()

		r.mu.Lock()
		for _, client := range r.clients {
			client.closeSend()
		}
		r.clients = map[string]*Client{}
		r.mu.Unlock()

		select {
		case r.cleanupChan <- roomCleanupMsg{roomCode: r.Code, room: r}:
		default:
			r.logger.Warn().Msg("Manager cleanup channel full. Skipping cleanup notification.")
		}

		close(r.done)
		r.logger.Info().Msg("Room Run loop finished.")
	}()

	for {
		select {
		case client := <-r.register:
			r.addClient(client)

		case client := <-r.unregister:
			r.removeClient(client)

		case message := <-r.broadcast:
			r.fanOut(message)

		case <-r.shutdownTimer.C:
			r.logger.Info().Msgf("Room inactivity timeout (%s) reached.", RoomInactivityTimeout)
			return

		case <-r.stopChan:
			return
		}
	}
}

func (r *Room) addClient(client *Client) {
	r.mu.Lock()

	id := client.participant.ID
	existing, replacing := r.clients[id]
	if replacing {
		r.logger.Warn().Str("client_id", id).Msg("Client ID already connected. Closing old connection for replacement.")
		existing.Kick("Session replaced by new connection. Check other tabs.")
	}

	if !replacing && r.MaxClients > 0 && len(r.clients) >= r.MaxClients {
		r.mu.Unlock()
		r.logger.Warn().Int("max_clients", r.MaxClients).Str("client_id", id).Msg("Room is full. New client rejected.")
		client.SendError(errRoomFull)
		client.closeSend()
		return
	}

	r.resetTimer(0)
	r.clients[id] = client

	online := make([]Participant, 0, len(r.clients))
	for _, c := range r.clients {
		online = append(online, c.participant)
	}
	r.mu.Unlock()

	r.logger.Info().Str("client_id", id).Int("total_users", len(online)).Msg("Client joined room.")

	if err := client.SendInitData(InitDataPayload{
		CurrentUser:   client.participant,
		OnlineUsers:   online,
		MaxUsers:      r.MaxClients,
		ChannelMod:    client.channelMod(),
		CommandPrefix: client.prefix,
	}); err != nil {
		r.removeClient(client)
		return
	}

	r.fanOut(NewMessage(TypeUserJoined, r.Code, SystemUser, UserEventPayload{User: client.participant}))
}

func (r *Room) removeClient(client *Client) {
	r.mu.Lock()
	id := client.participant.ID
	current, ok := r.clients[id]
	if !ok || current != client {
		r.mu.Unlock()
		r.logger.Debug().Str("client_id", id).Msg("Ignoring unregister for unknown or stale connection.")
		return
	}

	delete(r.clients, id)
	client.closeSend()
	remaining := len(r.clients)
	if remaining == 0 {
		r.resetTimer(RoomInactivityTimeout)
	}
	r.mu.Unlock()

	r.logger.Info().Str("client_id", id).Int("total_users", remaining).Msg("Client left room.")
	r.fanOut(NewMessage(TypeUserLeft, r.Code, SystemUser, UserEventPayload{User: client.participant}))
}

func (r *Room) fanOut(message Message) {
	messageBytes, err := json.Marshal(message)
	if err != nil {
		r.logger.Error().Str("message_id", message.ID).Err(err).Msg("Error marshaling message for broadcast.")
		return
	}

	var stale []*Client

	r.mu.RLock()
	for _, client := range r.clients {
		if client.participant.ID == message.Sender.ID {
			continue
		}
		if !client.enqueue(messageBytes) {
			stale = append(stale, client)
		}
	}
	r.mu.RUnlock()

	for _, client := range stale {
		r.logger.Warn().Str("client_id", client.participant.ID).Msg("Client send channel full, removing client.")
		r.removeClient(client)
	}
}
