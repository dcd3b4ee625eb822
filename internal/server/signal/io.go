package signal

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Huddle/internal/domain"
)

func (ctl *Controller) writePump(ctx context.Context, c *Conn) {
	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		}
	}
}

func (ctl *Controller) readPump(ctx context.Context, cancel context.CancelFunc, sess *Session) {
	defer func() {
		log.Info().Str("module", "signal").Str("sid", string(sess.SID)).Msg("readPump closing")
		ctl.logout(sess)
		ctl.Registry.Unbind(sess.SID)
		sess.conn.Close()
		cancel()
	}()

	for {
		_, data, err := sess.conn.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warn().Err(err).Str("module", "signal").Str("sid", string(sess.SID)).Msg("readPump read error")
			}
			return
		}
		if ctx.Err() != nil {
			return
		}
		ctl.handleSignal(ctx, sess, data)
	}
}

func (ctl *Controller) handleSignal(ctx context.Context, sess *Session, data []byte) {
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad json")
		return
	}

	switch env.Type {
	case "login":
		ctl.handleLogin(sess, data)
	case "logout":
		ctl.handleLogout(sess)
	case "publish":
		ctl.handlePublish(ctx, sess, data)
	case "unpublish":
		ctl.handleUnpublish(sess, data)
	case "play":
		ctl.handlePlay(ctx, sess, data)
	case "stop_play":
		ctl.handleStopPlay(sess, data)
	case "ping":
		ctl.handlePing(sess.conn)
	default:
		log.Warn().Str("module", "signal").Str("type", env.Type).Msg("unknown signal")
	}
}

func (ctl *Controller) sendJSON(c *Conn, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("sendJSON marshal")
		return
	}
	if err := c.TrySend(b); err != nil {
		log.Warn().Err(err).Str("module", "signal").Msg("sendJSON")
	}
}

func (ctl *Controller) sendError(c *Conn, request, code string, stream domain.StreamID, msg string) {
	ctl.sendJSON(c, errorMsg{Type: "error", Code: code, Request: request, StreamID: stream, Message: msg})
}

// broadcastTo sends v to every session logged into room except skip.
func (ctl *Controller) broadcastTo(room domain.RoomID, skip SessionID, v any) {
	for _, s := range ctl.Registry.MembersOfRoom(room) {
		if s.SID == skip {
			continue
		}
		ctl.sendJSON(s.conn, v)
	}
}
