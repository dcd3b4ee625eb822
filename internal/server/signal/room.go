package signal

import (
	"encoding/json"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Huddle/internal/domain"
	"github.com/dkeye/Huddle/internal/server/sfu"
)

func (ctl *Controller) handleLogin(sess *Session, data []byte) {
	var p loginPayload
	if err := json.Unmarshal(data, &p); err != nil || p.RoomID == "" {
		log.Error().Err(err).Str("module", "signal").Msg("bad login payload")
		ctl.sendError(sess.conn, "login", CodeBadPayload, "", "room_id required")
		return
	}

	claims, err := ctl.Issuer.Validate(p.Token)
	if err != nil || claims.RoomID != p.RoomID || claims.UserID != p.UserID {
		log.Warn().Err(err).Str("module", "signal").Str("sid", string(sess.SID)).Str("room_id", string(p.RoomID)).Msg("login rejected")
		ctl.sendError(sess.conn, "login", CodeInvalidToken, "", "token does not admit this user to this room")
		return
	}

	streams, err := ctl.Registry.Join(sess.SID, p.RoomID, p.UserID)
	if errors.Is(err, ErrAlreadyLoggedIn) {
		log.Warn().Str("module", "signal").Str("sid", string(sess.SID)).Msg("duplicate login")
		ctl.sendError(sess.conn, "login", CodeAlreadyLoggedIn, "", "")
		return
	}

	log.Info().Str("module", "signal").Str("sid", string(sess.SID)).Str("room_id", string(p.RoomID)).Str("user", p.UserID.String()).Msg("login")
	ctl.sendJSON(sess.conn, loginOK{Type: "login_ok", RoomID: p.RoomID, Streams: streams})
	ctl.sendRoomState(p.RoomID)
}

func (ctl *Controller) handleLogout(sess *Session) {
	log.Info().Str("module", "signal").Str("sid", string(sess.SID)).Msg("logout")
	ctl.logout(sess)
	ctl.sendJSON(sess.conn, struct {
		Type string `json:"type"`
	}{Type: "logout_ok"})
}

// logout releases every peer of sess and tells the room its streams are gone.
func (ctl *Controller) logout(sess *Session) {
	sess.mu.Lock()
	published := sess.published
	playing := sess.playing
	sess.published = make(map[domain.StreamID]*sfu.Peer)
	sess.playing = make(map[domain.StreamID]*sfu.Peer)
	sess.mu.Unlock()

	for id, peer := range playing {
		ctl.Relays.RemoveSubscriber(id, subscriberOf(sess.SID, id))
		peer.Close()
	}
	for _, peer := range published {
		peer.Close()
	}

	room, owned, ok := ctl.Registry.Leave(sess.SID)
	if !ok {
		return
	}
	for _, st := range owned {
		ctl.Relays.StopStream(st.StreamID)
		ctl.broadcastTo(room, sess.SID, streamEvent{Type: "stream_removed", StreamInfo: st})
	}
	ctl.sendRoomState(room)
}

func (ctl *Controller) sendRoomState(room domain.RoomID) {
	members := ctl.Registry.MembersOfRoom(room)
	msg := roomStateMsg{Type: "room_state", RoomID: room, State: "connected", Members: len(members)}
	for _, s := range members {
		ctl.sendJSON(s.conn, msg)
	}
}
