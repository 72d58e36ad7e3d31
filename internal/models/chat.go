package models

import "time"

type Conversation struct {
	ID         string    `json:"id"`
	User1ID    string    `json:"user1_id"`
	User2ID    string    `json:"user2_id"`
	PropertyID *string   `json:"property_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// OtherParticipant returns the participant that is not userID. It assumes
// userID is one of the two participants.
func (c *Conversation) OtherParticipant(userID string) string {
	if c.User1ID == userID {
		return c.User2ID
	}
	return c.User1ID
}

func (c *Conversation) HasParticipant(userID string) bool {
	return c.User1ID == userID || c.User2ID == userID
}

type ChatMessage struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	SenderID       string    `json:"sender_id"`
	Content        string    `json:"content"`
	AttachmentURL  *string   `json:"attachment_url,omitempty"`
	AttachmentType *string   `json:"attachment_type,omitempty"`
	ReadByReceiver bool      `json:"read_by_receiver"`
	CreatedAt      time.Time `json:"created_at"`
}

type ConversationSummary struct {
	Conversation
	OtherUser   Profile      `json:"other_user"`
	LastMessage *ChatMessage `json:"last_message,omitempty"`
	UnreadCount int          `json:"unread_count"`
}

// Contact is a read projection of Profile used by the start-new-chat search.
// ConversationID is set when a conversation with the requester already exists.
type Contact struct {
	Profile
	HasExistingConversation bool   `json:"has_existing_conversation"`
	ConversationID          string `json:"conversation_id,omitempty"`
}

type ContactPage struct {
	Contacts   []Contact `json:"contacts"`
	TotalCount int       `json:"total_count"`
	Page       int       `json:"page"`
	HasMore    bool      `json:"has_more"`
}

type PaginationMeta struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}
