package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/dkeye/Huddle/internal/domain"
)

// WebSocket close codes the chat transport cares about.
const (
	CloseNormalClosure = 1000
	CloseGoingAway     = 1001
	CloseAbnormal      = 1006
)

// CloseError is returned by ChatConn.Read once the peer or the network ended
// the channel.
type CloseError struct {
	Code   int
	Reason string
}

func (e *CloseError) Error() string {
	return fmt.Sprintf("channel closed: code=%d reason=%q", e.Code, e.Reason)
}

// Clean reports whether the close was intentional (normal closure or going away).
func (e *CloseError) Clean() bool {
	return e.Code == CloseNormalClosure || e.Code == CloseGoingAway
}

// CloseCodeOf extracts the close code from err. Errors that are not a
// CloseError count as abnormal termination.
func CloseCodeOf(err error) int {
	var ce *CloseError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return CloseAbnormal
}

// HistorySource fetches the backlog of one conversation.
type HistorySource interface {
	History(ctx context.Context, id domain.ConversationID) ([]domain.ChatMessage, error)
}

// ReadReceipts marks a conversation as read for the current user.
type ReadReceipts interface {
	MarkRead(ctx context.Context, id domain.ConversationID) error
}

// CredentialSource yields the bearer credential for the current user.
// It returns ErrNoCredentials when the user is not signed in.
type CredentialSource interface {
	Token(ctx context.Context) (string, error)
}

// ChatDialer opens the live channel for one conversation.
type ChatDialer interface {
	Dial(ctx context.Context, id domain.ConversationID, token string) (ChatConn, error)
}

// ChatConn is one live chat socket. Read is called from a single goroutine;
// Write and Close may be called concurrently with it.
type ChatConn interface {
	Read() ([]byte, error)
	Write(data []byte) error
	Close(code int) error
}
