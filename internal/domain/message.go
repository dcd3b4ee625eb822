package domain

import (
	"bytes"
	"encoding/json"
	"time"
)

type ConversationID string

// MessageID is opaque. Servers emit numbers, the client generates strings for
// frames that arrive without one.
type MessageID string

func (id *MessageID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = MessageID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*id = MessageID(n.String())
	return nil
}

// ChatMessage is one entry of a conversation. IsRead only changes through
// the mark-read flow.
type ChatMessage struct {
	ID         MessageID `json:"id"`
	Content    string    `json:"content"`
	SenderID   UserID    `json:"sender_id"`
	SenderName string    `json:"sender_name,omitempty"`
	Timestamp  time.Time `json:"created_at"`
	IsRead     bool      `json:"is_read"`
}

// IsFrom reports whether the message was authored by user.
func (m ChatMessage) IsFrom(user UserID) bool {
	return user != 0 && m.SenderID == user
}
