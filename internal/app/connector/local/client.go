package local

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"hzbot/internal/pkg/errs"
	"hzbot/internal/pkg/logx"
)

const (
	// timeout duration for writing to the WebSocket connection.
	writeWait = 10 * time.Second

	// maximum time allowed for the server to wait for a Pong message from the client.
	pongWait = 60 * time.Second

	// frequency at which the server sends a Ping message.
	pingPeriod = (pongWait * 9) / 10

	// maximum allowed size (in bytes) of a frame sent by the client.
	maxMessageSize = 8192

	// MaxContentBytes is the longest chat text accepted from a participant.
	MaxContentBytes = 2000

	// WsCloseCodeSessionKicked tells the client its session was replaced by a new connection.
	WsCloseCodeSessionKicked = 4001
)

var errRoomFull = errors.New("room is full")

// Client is one websocket connection in a room.
type Client struct {
	room *Room
	conn *websocket.Conn

	participant Participant

	// prefix is the command prefix announced to the client.
	prefix string

	// onText is called for every accepted chat text.
	onText func(c *Client, text string)

	// mod reports whether the connection may use moderator commands.
	mod bool

	send     chan []byte
	sendOnce sync.Once

	mu         sync.Mutex
	kickReason string

	logger zerolog.Logger
}

func newClient(room *Room, conn *websocket.Conn, p Participant, mod bool, prefix string, onText func(*Client, string)) *Client {
	return &Client{
		room:        room,
		conn:        conn,
		participant: p,
		prefix:      prefix,
		onText:      onText,
		mod:         mod,
		send:        make(chan []byte, 256),
		logger: logx.Logger().With().
			Str("component", "connector.local").
			Str("client_id", p.ID).
			Str("room_code", room.Code).
			Logger(),
	}
}

// Participant returns the client's identity in the room.
func (c *Client) Participant() Participant {
	return c.participant
}

func (c *Client) channelMod() bool {
	return c.mod
}

func (c *Client) closeSend() {
	c.sendOnce.Do(func() { close(c.send) })
}

// enqueue queues a frame without blocking. It returns false if the queue is full.
func (c *Client) enqueue(b []byte) (ok bool) {
	defer func() {
		// the queue may have been closed concurrently
		if recover() != nil {
			ok = false
		}
	}()

	select {
	case c.send <- b:
		return true
	default:
		return false
	}
}

// ReadPump reads frames until the connection fails, then unregisters the client.
func (c *Client) ReadPump() {
	defer c.cleanupOnDisconnect()

	c.conn.SetReadLimit(maxMessageSize)

	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set read deadline")
		return
	}

	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, messageBytes, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Info().Err(err).Msg("Error reading message (Client close/going away)")
			}
			break
		}

		c.processInboundMessage(messageBytes)
	}
}

func (c *Client) cleanupOnDisconnect() {
	c.room.unregisterClient(c)

	if err := c.conn.Close(); err != nil {
		c.logger.Debug().Err(err).Msg("Client connection close error")
	}
}

func (c *Client) processInboundMessage(messageBytes []byte) {
	var inboundMsg struct {
		Type    MessageType     `json:"type"`
		Payload json.RawMessage `json:"payload,omitempty"`
		TempID  string          `json:"tempId,omitempty"`
	}

	if err := json.Unmarshal(messageBytes, &inboundMsg); err != nil {
		c.logger.Warn().Err(err).Msg("Client sent invalid JSON")
		c.SendError(errs.NewError(errs.ErrInvalidJSONFormat))
		return
	}

	switch inboundMsg.Type {
	case TypeText:
		c.handleText(inboundMsg.Payload, inboundMsg.TempID)
	default:
		c.logger.Warn().Str("msg_type", string(inboundMsg.Type)).Msg("Client sent unsupported message type")
		c.SendError(errs.NewError(errs.ErrInvalidParams))
	}
}

func (c *Client) handleText(payloadBytes json.RawMessage, tempID string) {
	var textPayload TextPayload
	if err := json.Unmarshal(payloadBytes, &textPayload); err != nil {
		c.logger.Warn().Err(err).Msg("Client sent invalid TEXT payload")
		c.SendError(errs.NewError(errs.ErrInvalidJSONFormat))
		return
	}

	if len(textPayload.Content) > MaxContentBytes {
		c.SendError(errs.NewError(errs.ErrMessageContentTooLong))
		return
	}

	msg := NewMessage(TypeText, c.room.Code, c.participant, textPayload)
	c.sendConfirmation(tempID, msg)
	c.room.Broadcast(msg)

	if c.onText != nil {
		c.onText(c, textPayload.Content)
	}
}

// WritePump writes queued frames and heartbeats until the queue is closed.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		if err := c.conn.Close(); err != nil {
			c.logger.Debug().Err(err).Msg("Client connection close error in WritePump")
		}
	}()

	for {
		select {
		case message, ok := <-c.send:
			if !c.writeQueuedMessage(message, ok) {
				return
			}

		case <-ticker.C:
			if !c.writePingMessage() {
				return
			}
		}
	}
}

// writeQueuedMessage returns false when WritePump must stop.
func (c *Client) writeQueuedMessage(message []byte, ok bool) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set write deadline")
		return false
	}

	if !ok {
		closeMessage := []byte{}
		if reason := c.kicked(); reason != "" {
			closeMessage = websocket.FormatCloseMessage(WsCloseCodeSessionKicked, reason)
		}
		if err := c.conn.WriteMessage(websocket.CloseMessage, closeMessage); err != nil {
			c.logger.Debug().Err(err).Msg("Error writing close message")
		}
		return false
	}

	if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
		c.logger.Error().Err(err).Msg("Error writing message")
		return false
	}

	return true
}

func (c *Client) writePingMessage() bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set write deadline on ping")
		return false
	}

	if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		c.logger.Error().Err(err).Msg("Error writing ping")
		return false
	}

	return true
}

func (c *Client) sendMessage(msg Message) error {
	messageBytes, err := json.Marshal(msg)
	if err != nil {
		c.logger.Error().Err(err).Msg("Error marshaling data for client")
		return err
	}

	if !c.enqueue(messageBytes) {
		c.logger.Warn().Int("queue_len", len(c.send)).Msg("Client send channel full, dropping message")
		return fmt.Errorf("client send queue full")
	}
	return nil
}

// SendError sends an ERROR frame to this client only.
func (c *Client) SendError(err error) {
	payload := ErrorPayload{Code: errs.ErrUnknown, Message: err.Error()}
	if customErr := errs.As(err); customErr != nil {
		payload = ErrorPayload{Code: customErr.Code, Message: customErr.Message}
	}

	if err := c.sendMessage(NewMessage(TypeError, c.room.Code, SystemUser, payload)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to queue error message")
	}
}

// SendInitData sends the INIT_DATA frame.
func (c *Client) SendInitData(payload InitDataPayload) error {
	return c.sendMessage(NewMessage(TypeInitData, c.room.Code, SystemUser, payload))
}

func (c *Client) sendConfirmation(tempID string, msg Message) {
	if tempID == "" {
		return
	}

	ack := struct {
		TempID    string `json:"tempId"`
		MessageID string `json:"id"`
		Timestamp int64  `json:"timestamp"`
	}{tempID, msg.ID, msg.Timestamp}

	if err := c.sendMessage(NewMessage(TypeConfirm, c.room.Code, c.participant, ack)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to queue ACK message")
	}
}

// Kick closes the connection with WsCloseCodeSessionKicked once the queue is drained.
func (c *Client) Kick(reason string) {
	c.logger.Warn().Int("close_code", WsCloseCodeSessionKicked).Str("reason", reason).Msg("Kicking client.")

	c.mu.Lock()
	c.kickReason = reason
	c.mu.Unlock()

	c.closeSend()
}

func (c *Client) kicked() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.kickReason
}
