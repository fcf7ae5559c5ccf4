/*
Package bus is the message bus between the core and the platform connectors.

Outgoing replies are published as JSON OutgoingMessage payloads on "<prefix><platform>".
The set of known channels per platform is kept under "channels:<platform>", and every
change is announced on "channels.update.<platform>" so running connectors can join new
channels without a restart. Two implementations exist: Redis for multi-process
deployments and Hub for a single process.
*/
package bus

import (
	"context"
	"encoding/json"
	"fmt"
)

const (
	// DefaultOutgoingPrefix is the default topic prefix for outgoing messages.
	DefaultOutgoingPrefix = "messages.outgoing."

	// ChannelListUpdated is the payload of channel list change notifications.
	ChannelListUpdated = "Channel list updated"

	// DefaultBufferSize is the per-subscription channel buffer.
	DefaultBufferSize = 64
)

// Message is one delivery received from a subscription.
type Message struct {
	Topic   string
	Payload []byte
}

// OutgoingMessage is the payload connectors receive on their outgoing topic.
type OutgoingMessage struct {
	ChannelID string `json:"channel_id"`
	Contents  string `json:"contents"`
}

// Encode marshals the message for publishing.
func (m OutgoingMessage) Encode() ([]byte, error) {
	return json.Marshal(m)
}

// DecodeOutgoing parses an outgoing payload.
func DecodeOutgoing(payload []byte) (OutgoingMessage, error) {
	var m OutgoingMessage
	if err := json.Unmarshal(payload, &m); err != nil {
		return OutgoingMessage{}, fmt.Errorf("decode outgoing message: %w", err)
	}
	return m, nil
}

// OutgoingTopic returns the topic a platform's connector subscribes to.
func OutgoingTopic(prefix, platform string) string {
	return prefix + platform
}

// ChannelSetKey returns the key of the set of known channels for a platform.
func ChannelSetKey(platform string) string {
	return "channels:" + platform
}

// ChannelUpdateTopic returns the topic announcing channel list changes for a platform.
func ChannelUpdateTopic(platform string) string {
	return "channels.update." + platform
}

// Bus publishes payloads and streams them to pattern subscribers.
type Bus interface {
	Publish(ctx context.Context, topic string, payload []byte) error
	// Subscribe streams messages whose topic matches the glob pattern until cancel is
	// called or ctx is done. The returned channel is closed afterwards.
	Subscribe(ctx context.Context, pattern string) (msgs <-chan Message, cancel func(), err error)
}

// ChannelRegistry keeps the per-platform sets of known channels.
type ChannelRegistry interface {
	// AddChannel adds a channel to the platform's set and announces the change.
	AddChannel(ctx context.Context, platform, channel string) error
	// SyncChannels replaces the platform's set and announces the change.
	SyncChannels(ctx context.Context, platform string, channels []string) error
	// Channels returns the platform's set.
	Channels(ctx context.Context, platform string) ([]string, error)
}

// Broker is a Bus that also owns the channel registry.
type Broker interface {
	Bus
	ChannelRegistry
	Close() error
}
