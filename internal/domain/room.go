package domain

type (
	// RoomKey is the application-level meeting identifier the UI knows about.
	RoomKey string
	// RoomID is the signaling-layer room returned by the token exchange.
	RoomID string
)
