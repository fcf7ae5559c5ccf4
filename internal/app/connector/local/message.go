/*
Package local is the connector for the bot's own websocket chat rooms.

Every room is a local channel. Participants are identified by their IP address, chat
with each other through the room and talk to the bot with the command prefix. Replies
from the bot arrive on the "local" outgoing topic and are broadcast to the whole room.
*/
package local

import (
	"time"

	"hzbot/internal/pkg/randx"
)

// MessageType is the type tag of a websocket frame.
type MessageType string

const (
	// TypeText is a chat message from a participant.
	TypeText MessageType = "TEXT"
	// TypeReply is a message from the bot.
	TypeReply MessageType = "REPLY"
	// TypeConfirm acknowledges a participant's message to its sender.
	TypeConfirm MessageType = "CONFIRM"
	// TypeInitData is sent once after joining.
	TypeInitData MessageType = "INIT_DATA"
	// TypeUserJoined and TypeUserLeft announce membership changes.
	TypeUserJoined MessageType = "USER_JOINED"
	TypeUserLeft   MessageType = "USER_LEFT"
	// TypeError reports a rejected frame to its sender.
	TypeError MessageType = "ERROR"
)

// Participant is one connection in a room.
type Participant struct {
	ID       string `json:"id"`
	Nickname string `json:"nickname"`
}

// SystemUser sends membership notices and errors.
var SystemUser = Participant{ID: "system", Nickname: "System"}

// BotUser sends command replies.
var BotUser = Participant{ID: "bot", Nickname: "Bot"}

// Message is one websocket frame sent to clients.
type Message struct {
	ID        string      `json:"id"`
	Type      MessageType `json:"type"`
	RoomCode  string      `json:"roomCode"`
	Sender    Participant `json:"sender"`
	Payload   any         `json:"payload,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

// NewMessage stamps a frame with a fresh id and the current time.
func NewMessage(t MessageType, roomCode string, sender Participant, payload any) Message {
	return Message{
		ID:        randx.MessageID(),
		Type:      t,
		RoomCode:  roomCode,
		Sender:    sender,
		Payload:   payload,
		Timestamp: time.Now().UnixMilli(),
	}
}

// TextPayload carries chat text.
type TextPayload struct {
	Content string `json:"content"`
}

// ErrorPayload carries an error code and its message.
type ErrorPayload struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// UserEventPayload names the participant that joined or left.
type UserEventPayload struct {
	User Participant `json:"user"`
}

// InitDataPayload describes the room to a participant that just joined.
type InitDataPayload struct {
	CurrentUser   Participant   `json:"currentUser"`
	OnlineUsers   []Participant `json:"onlineUsers"`
	MaxUsers      int           `json:"maxUsers"`
	ChannelMod    bool          `json:"channelMod"`
	CommandPrefix string        `json:"commandPrefix"`
}
