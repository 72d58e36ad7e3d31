// Package realtime carries new-message events from the chat service to
// connected websocket clients. Each conversation has its own channel on the
// bus, and events name both participants so delivery never reaches anyone
// else.
package realtime

import (
	"context"
	"encoding/json"
)

const (
	EventNewMessage = "message"

	channelPrefix = "chat:conversation:"
)

type Event struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversation_id"`
	MessageID      string `json:"message_id,omitempty"`
	SenderID       string `json:"sender_id"`
	RecipientID    string `json:"recipient_id"`
	Content        string `json:"content,omitempty"`
	AttachmentURL  string `json:"attachment_url,omitempty"`
	AttachmentType string `json:"attachment_type,omitempty"`
	Timestamp      string `json:"timestamp"`
}

// Publisher pushes an event toward subscribed clients. Implementations are
// best effort: a failed publish never invalidates the persisted message.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// Sink receives events on the consuming side of the bus.
type Sink interface {
	Deliver(event Event)
}

// ChannelFor names the bus channel of a conversation.
func ChannelFor(conversationID string) string {
	return channelPrefix + conversationID
}

// ChannelPattern matches every conversation channel.
func ChannelPattern() string {
	return channelPrefix + "*"
}

func encodeEvent(event Event) ([]byte, error) {
	return json.Marshal(event)
}

func decodeEvent(payload []byte) (Event, error) {
	var event Event
	err := json.Unmarshal(payload, &event)
	return event, err
}
