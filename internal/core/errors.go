package core

import "errors"

var (
	ErrNoCredentials     = errors.New("no credentials available")
	ErrAlreadyInRoom     = errors.New("already logged in to room")
	ErrNotConnected      = errors.New("not connected")
	ErrEffectUnavailable = errors.New("video effect unavailable")
)
