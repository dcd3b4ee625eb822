//go:generate mockgen -source=media_iface.go -destination=mocks/mock_media.go -package=mocks

package core

import (
	"context"

	"github.com/dkeye/Huddle/internal/domain"
)

// TokenSource exchanges an application room key for engine credentials.
type TokenSource interface {
	CallToken(ctx context.Context, room domain.RoomKey) (domain.CallCredentials, error)
}

// EngineFactory creates one media engine instance for the given credentials.
type EngineFactory func(ctx context.Context, creds domain.CallCredentials) (Engine, error)

// StreamUpdate is a remote stream appearing or disappearing in the room.
type StreamUpdate struct {
	Added    bool
	StreamID domain.StreamID
	UserID   domain.UserID
	// Kind is empty when the engine does not report it.
	Kind domain.StreamKind
}

type RoomState string

const (
	RoomDisconnected RoomState = "disconnected"
	RoomConnecting   RoomState = "connecting"
	RoomConnected    RoomState = "connected"
)

// Engine abstracts the signaling/media SDK. Implementations must be safe for
// concurrent use.
type Engine interface {
	// LoginRoom returns ErrAlreadyInRoom when this engine is already logged in.
	LoginRoom(ctx context.Context, room domain.RoomID, user domain.UserID, token string) error
	LogoutRoom(ctx context.Context, room domain.RoomID) error

	CreateStream(ctx context.Context, kind domain.StreamKind) (LocalStream, error)
	Publish(ctx context.Context, id domain.StreamID, s LocalStream) error
	Unpublish(ctx context.Context, id domain.StreamID) error

	Play(ctx context.Context, id domain.StreamID) (RemoteStream, error)
	StopPlay(id domain.StreamID) error

	// OnStreamUpdate and OnRoomState callbacks are invoked from one goroutine
	// in the order the engine received the events.
	OnStreamUpdate(func(StreamUpdate))
	OnRoomState(func(RoomState, error))

	Close() error
}

// LocalStream is a captured local source owned by exactly one call session.
type LocalStream interface {
	Kind() domain.StreamKind
	MuteAudio(muted bool) error
	MuteVideo(muted bool) error
	SetVirtualBackground(enabled bool) error
	// Ended closes when the underlying capture stops on its own, e.g. the OS
	// revoked a screen share.
	Ended() <-chan struct{}
	Destroy() error
}

// RemoteStream is a remote stream being played. The presentation layer binds
// it to whatever surface renders it.
type RemoteStream interface {
	ID() domain.StreamID
}
