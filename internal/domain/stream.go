package domain

import (
	"strings"
	"time"
)

type StreamID string

type StreamKind string

const (
	StreamCamera StreamKind = "camera"
	StreamScreen StreamKind = "screen"
)

const screenSuffix = "_screen"

func (k StreamKind) Valid() bool { return k == StreamCamera || k == StreamScreen }

// KindFromStreamID recovers the kind of a stream published by a peer that
// does not report one, using the "_screen" suffix convention.
func KindFromStreamID(id StreamID) StreamKind {
	s := strings.ToLower(string(id))
	if strings.HasSuffix(s, screenSuffix) || strings.HasSuffix(s, "-screen") {
		return StreamScreen
	}
	return StreamCamera
}

// LocalStreamID names a stream published by user in room.
func LocalStreamID(room RoomID, user UserID, kind StreamKind) StreamID {
	suffix := "_main"
	if kind == StreamScreen {
		suffix = screenSuffix
	}
	return StreamID(string(room) + "_" + user.String() + suffix)
}

// CallCredentials is what the token endpoint hands out for one room.
type CallCredentials struct {
	AppID         string
	AccessToken   string
	RoomID        RoomID
	UserID        UserID
	ServerAddress string
	ExpiresAt     time.Time
}
