package rtc

import (
	"encoding/json"

	"github.com/dkeye/Huddle/internal/domain"
)

const codeAlreadyLoggedIn = "already_logged_in"

type outMsg struct {
	Type     string            `json:"type"`
	RoomID   domain.RoomID     `json:"room_id,omitempty"`
	UserID   domain.UserID     `json:"user_id,omitempty"`
	Token    string            `json:"token,omitempty"`
	StreamID domain.StreamID   `json:"stream_id,omitempty"`
	Kind     domain.StreamKind `json:"kind,omitempty"`
	SDP      string            `json:"sdp,omitempty"`
}

type streamInfo struct {
	StreamID domain.StreamID   `json:"stream_id"`
	UserID   domain.UserID     `json:"user_id"`
	Kind     domain.StreamKind `json:"kind"`
}

// inMsg is the union of every server frame.
type inMsg struct {
	Type     string            `json:"type"`
	Code     string            `json:"code"`
	Request  string            `json:"request"`
	Message  string            `json:"message"`
	RoomID   domain.RoomID     `json:"room_id"`
	State    string            `json:"state"`
	StreamID domain.StreamID   `json:"stream_id"`
	UserID   domain.UserID     `json:"user_id"`
	Kind     domain.StreamKind `json:"kind"`
	SDP      string            `json:"sdp"`
	Streams  []streamInfo      `json:"streams"`
}

func decode(data []byte) (inMsg, error) {
	var m inMsg
	err := json.Unmarshal(data, &m)
	return m, err
}

type reply struct {
	msg inMsg
	err error
}

func answerKey(id domain.StreamID) string { return "answer:" + string(id) }
