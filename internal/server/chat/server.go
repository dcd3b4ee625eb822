// Package chat serves the per-conversation chat sockets of the dev backend.
package chat

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Huddle/internal/domain"
	"github.com/dkeye/Huddle/internal/server/store"
)

const defaultPingPeriod = 54 * time.Second

type Server struct {
	Store   *store.Store
	Hubs    *HubManager
	Policy  Policy
	Limiter *RateLimiter

	ReadLimit  int64
	PingPeriod time.Duration
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type inbound struct {
	Content string `json:"content"`
}

// Handle upgrades an authenticated request and joins the socket to the hub of
// conversation id.
func (s *Server) Handle(ctx context.Context, c *gin.Context, id domain.ConversationID, user *domain.User) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "server.chat").Msg("ws upgrade")
		return
	}
	if s.ReadLimit > 0 {
		ws.SetReadLimit(s.ReadLimit)
	}

	client := newClient(ws, user)
	hub := s.Hubs.GetOrCreate(id)
	hub.AddMember(client)

	ctx, cancel := context.WithCancel(ctx)
	go s.writePump(ctx, client)
	go s.readPump(ctx, cancel, hub, client)
}

func (s *Server) pingPeriod() time.Duration {
	if s.PingPeriod > 0 {
		return s.PingPeriod
	}
	return defaultPingPeriod
}

func (s *Server) writePump(ctx context.Context, c *Client) {
	ticker := time.NewTicker(s.pingPeriod())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			c.Close(websocket.CloseGoingAway, "server shutting down")
			return
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				log.Warn().Err(err).Str("module", "server.chat").Str("client", c.ID).Msg("writePump ping")
				return
			}
		case data, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				log.Error().Err(err).Str("module", "server.chat").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "server.chat").Str("client", c.ID).Msg("writePump write error")
				return
			}
		}
	}
}

func (s *Server) readPump(ctx context.Context, cancel context.CancelFunc, hub *Hub, c *Client) {
	defer func() {
		hub.RemoveMember(c)
		c.Close(websocket.CloseNormalClosure, "")
		cancel()
	}()
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warn().Err(err).Str("module", "server.chat").Str("client", c.ID).Msg("readPump read error")
			}
			return
		}
		if ctx.Err() != nil {
			return
		}
		s.onFrame(hub, c, data)
	}
}

func (s *Server) onFrame(hub *Hub, c *Client, data []byte) {
	var in inbound
	if err := json.Unmarshal(data, &in); err != nil {
		log.Warn().Err(err).Str("module", "server.chat").Str("client", c.ID).Msg("bad json")
		return
	}
	content := strings.TrimSpace(in.Content)
	if content == "" {
		return
	}
	if s.Limiter != nil && !s.Limiter.Allow(c.User.ID) {
		log.Warn().Str("module", "server.chat").Str("user", c.User.ID.String()).Msg("rate limited")
		_ = c.TrySend([]byte(`{"type":"error","error":"rate_limited"}`))
		return
	}

	msg := s.Store.Append(hub.ID, c.User, content)
	out, err := json.Marshal(msg)
	if err != nil {
		log.Error().Err(err).Str("module", "server.chat").Msg("marshal message")
		return
	}
	res := hub.Broadcast(out)
	if s.Policy == nil {
		return
	}
	for _, slow := range res.Dropped {
		switch s.Policy.OnBackPressure(hub, slow) {
		case KickMember:
			hub.RemoveMember(slow)
			slow.Close(websocket.ClosePolicyViolation, "too slow")
		case MarkSlow, DropFrame, NoAction:
		}
	}
}
