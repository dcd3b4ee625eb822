// Package signal serves the call signaling socket of the dev backend: room
// login, per-stream publish and play negotiation, and stream notifications.
package signal

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Huddle/internal/server/auth"
	"github.com/dkeye/Huddle/internal/server/sfu"
)

const defaultAnswerTimeout = 10 * time.Second

type Controller struct {
	Registry *Registry
	Relays   *sfu.RelayManager
	Issuer   *auth.Issuer
	RTC      webrtc.Configuration

	AnswerTimeout time.Duration
	ReadLimit     int64
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func (ctl *Controller) HandleSignal(ctx context.Context, c *gin.Context) {
	sid := SessionID(uuid.NewString())
	log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("new WS connection")

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}
	if ctl.ReadLimit > 0 {
		ws.SetReadLimit(ctl.ReadLimit)
	}

	sess := newSession(sid, newConn(ws))
	ctl.Registry.Bind(sess)
	ctx, cancel := context.WithCancel(ctx)

	go ctl.writePump(ctx, sess.conn)
	go ctl.readPump(ctx, cancel, sess)
}

func (ctl *Controller) answerTimeout() time.Duration {
	if ctl.AnswerTimeout > 0 {
		return ctl.AnswerTimeout
	}
	return defaultAnswerTimeout
}

func (ctl *Controller) broadcastRoom(sess *Session, v any) {
	room, _, ok := ctl.Registry.RoomOf(sess.SID)
	if !ok {
		return
	}
	ctl.broadcastTo(room, sess.SID, v)
}
