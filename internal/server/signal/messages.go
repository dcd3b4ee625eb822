package signal

import "github.com/dkeye/Huddle/internal/domain"

// Error codes sent in {"type":"error"} frames.
const (
	CodeAlreadyLoggedIn = "already_logged_in"
	CodeNotLoggedIn     = "not_logged_in"
	CodeInvalidToken    = "invalid_token"
	CodeBadPayload      = "bad_payload"
	CodeStreamNotFound  = "stream_not_found"
	CodeStreamTaken     = "stream_taken"
	CodeMedia           = "media_error"
)

type loginPayload struct {
	RoomID domain.RoomID `json:"room_id"`
	UserID domain.UserID `json:"user_id"`
	Token  string        `json:"token"`
}

type streamPayload struct {
	StreamID domain.StreamID   `json:"stream_id"`
	Kind     domain.StreamKind `json:"kind,omitempty"`
	SDP      string            `json:"sdp,omitempty"`
}

type errorMsg struct {
	Type     string          `json:"type"`
	Code     string          `json:"code"`
	Request  string          `json:"request,omitempty"`
	StreamID domain.StreamID `json:"stream_id,omitempty"`
	Message  string          `json:"message,omitempty"`
}

type loginOK struct {
	Type    string        `json:"type"`
	RoomID  domain.RoomID `json:"room_id"`
	Streams []StreamInfo  `json:"streams"`
}

type answerMsg struct {
	Type     string          `json:"type"`
	StreamID domain.StreamID `json:"stream_id"`
	SDP      string          `json:"sdp"`
}

type streamEvent struct {
	Type string `json:"type"`
	StreamInfo
}

type roomStateMsg struct {
	Type    string        `json:"type"`
	RoomID  domain.RoomID `json:"room_id"`
	State   string        `json:"state"`
	Members int           `json:"members"`
}
