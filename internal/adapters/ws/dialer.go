// Package ws opens chat channels over gorilla/websocket.
package ws

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
)

var ErrBackpressure = errors.New("backpressure")

const (
	writeWait         = 5 * time.Second
	defaultPingPeriod = 54 * time.Second
	sendBuffer        = 32
)

type Dialer struct {
	// BaseURL is the ws:// or wss:// origin of the backend.
	BaseURL    string
	PingPeriod time.Duration
	ReadLimit  int64
	Handshake  time.Duration
}

// URL builds {base}/api/ws/chat/{id}?token=...
func (d *Dialer) URL(id domain.ConversationID, token string) (string, error) {
	u, err := url.Parse(strings.TrimRight(d.BaseURL, "/"))
	if err != nil {
		return "", fmt.Errorf("parse ws url: %w", err)
	}
	u.Path += "/api/ws/chat/" + url.PathEscape(string(id))
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (d *Dialer) Dial(ctx context.Context, id domain.ConversationID, token string) (core.ChatConn, error) {
	target, err := d.URL(id, token)
	if err != nil {
		return nil, err
	}
	dialer := *websocket.DefaultDialer
	if d.Handshake > 0 {
		dialer.HandshakeTimeout = d.Handshake
	}
	ws, resp, err := dialer.DialContext(ctx, target, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial chat %s: status %d: %w", id, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("dial chat %s: %w", id, err)
	}
	if d.ReadLimit > 0 {
		ws.SetReadLimit(d.ReadLimit)
	}
	period := d.PingPeriod
	if period <= 0 {
		period = defaultPingPeriod
	}

	c := &Conn{
		ws:     ws,
		send:   make(chan []byte, sendBuffer),
		done:   make(chan struct{}),
		logger: log.With().Str("module", "adapters.ws").Str("conversation", string(id)).Logger(),
	}
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(2 * period))
	})
	_ = ws.SetReadDeadline(time.Now().Add(2 * period))
	go c.writePump(period)
	return c, nil
}
