package models

import "time"

// IncomingMessage is one raw message received from the chat transport.
// Immutable once ingested; owned by the buffer until flushed.
type IncomingMessage struct {
	ID             string    `json:"id"`
	UserID         int64     `json:"user_id"`
	ConversationID string    `json:"conversation_id"`
	SenderID       string    `json:"sender_id"`
	SenderName     string    `json:"sender_name"`
	IsGroup        bool      `json:"is_group"`
	Body           string    `json:"body"`
	SentAt         time.Time `json:"sent_at"`
	FromOwner      bool      `json:"from_owner"`
}

// CombinedMessage is a sender-homogeneous run of messages merged into a
// single body for one classification call. A run of length 1 passes the
// original message through unchanged.
type CombinedMessage struct {
	IncomingMessage

	IsGrouped    bool     `json:"is_grouped"`
	MessageCount int      `json:"message_count"`
	MessageIDs   []string `json:"message_ids"`
}

// ConversationKey returns the buffering/history key for the message: the
// conversation id for group chats, the sender id for 1:1 chats.
func (m IncomingMessage) ConversationKey() string {
	if m.IsGroup {
		return m.ConversationID
	}
	return m.SenderID
}

// MessageSnapshot is the redacted view of the originating message carried on
// a persisted action and on live events.
type MessageSnapshot struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	SenderName     string    `json:"sender_name"`
	Body           string    `json:"body"`
	SentAt         time.Time `json:"sent_at"`
	IsGroup        bool      `json:"is_group"`
	FromOwner      bool      `json:"from_owner"`
}

// Snapshot builds the redacted view of a combined message.
func (m CombinedMessage) Snapshot() MessageSnapshot {
	return MessageSnapshot{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		SenderName:     m.SenderName,
		Body:           m.Body,
		SentAt:         m.SentAt,
		IsGroup:        m.IsGroup,
		FromOwner:      m.FromOwner,
	}
}
