package models

import "time"

// ConversationEntry maps a Slack user onto the AI backend's conversation id
type ConversationEntry struct {
	UserID         string    `dynamodbav:"user_id"`
	ConversationID string    `dynamodbav:"conversation_id"`
	UpdatedAt      time.Time `dynamodbav:"updated_at"`
	TTL            int64     `dynamodbav:"ttl,omitempty"` // Unix timestamp, 0 when entries never expire
}

// NewConversationEntry creates an entry stamped with the current time. A
// positive ttl sets the expiry attribute.
func NewConversationEntry(userID, conversationID string, ttl time.Duration) *ConversationEntry {
	now := time.Now()
	entry := &ConversationEntry{
		UserID:         userID,
		ConversationID: conversationID,
		UpdatedAt:      now,
	}
	if ttl > 0 {
		entry.TTL = now.Add(ttl).Unix()
	}
	return entry
}

// AIReply is what the AI backend produced for one user turn
type AIReply struct {
	Answer         string
	ConversationID string
	MessageID      string
	RawMetadata    map[string]any
}
