package chat

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/dkeye/Huddle/internal/domain"
)

var ErrMalformedFrame = errors.New("malformed chat frame")

type inboundFrame struct {
	ID         domain.MessageID `json:"id"`
	Content    *string          `json:"content"`
	Message    *string          `json:"message"`
	SenderID   domain.UserID    `json:"sender_id"`
	SenderName string           `json:"sender_name"`
	Timestamp  json.RawMessage  `json:"timestamp"`
	CreatedAt  json.RawMessage  `json:"created_at"`
	IsRead     bool             `json:"is_read"`
}

type outboundFrame struct {
	Content string `json:"content"`
}

// normalizeFrame turns one inbound frame into a ChatMessage. Missing ids are
// generated from now, missing timestamps default to now.
func normalizeFrame(data []byte, now time.Time) (domain.ChatMessage, error) {
	var f inboundFrame
	if err := json.Unmarshal(data, &f); err != nil {
		return domain.ChatMessage{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}

	var content string
	switch {
	case f.Content != nil:
		content = *f.Content
	case f.Message != nil:
		content = *f.Message
	default:
		return domain.ChatMessage{}, fmt.Errorf("%w: no content", ErrMalformedFrame)
	}

	id := f.ID
	if id == "" {
		id = domain.MessageID("local-" + strconv.FormatInt(now.UnixNano(), 10))
	}

	ts, ok := parseTimestamp(f.Timestamp)
	if !ok {
		ts, ok = parseTimestamp(f.CreatedAt)
	}
	if !ok {
		ts = now
	}

	return domain.ChatMessage{
		ID:         id,
		Content:    content,
		SenderID:   f.SenderID,
		SenderName: f.SenderName,
		Timestamp:  ts,
		IsRead:     f.IsRead,
	}, nil
}

// parseTimestamp accepts RFC 3339 strings and unix epochs in seconds or
// milliseconds.
func parseTimestamp(raw json.RawMessage) (time.Time, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return time.Time{}, false
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil || s == "" {
			return time.Time{}, false
		}
		ts, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return time.Time{}, false
		}
		return ts, true
	}
	n, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	if n > 1e12 {
		return time.UnixMilli(n).UTC(), true
	}
	return time.Unix(n, 0).UTC(), true
}

func encodeOutbound(content string) ([]byte, error) {
	return json.Marshal(outboundFrame{Content: content})
}
