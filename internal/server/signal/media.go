package signal

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Huddle/internal/domain"
	"github.com/dkeye/Huddle/internal/server/sfu"
)

func subscriberOf(sid SessionID, stream domain.StreamID) sfu.SubscriberID {
	return sfu.SubscriberID(string(sid) + "/" + string(stream))
}

func (ctl *Controller) parseStream(sess *Session, request string, data []byte, needSDP bool) (streamPayload, bool) {
	var p streamPayload
	if err := json.Unmarshal(data, &p); err != nil || p.StreamID == "" || (needSDP && p.SDP == "") {
		log.Error().Err(err).Str("module", "signal").Str("request", request).Msg("bad stream payload")
		ctl.sendError(sess.conn, request, CodeBadPayload, p.StreamID, "")
		return p, false
	}
	if _, _, ok := ctl.Registry.RoomOf(sess.SID); !ok {
		ctl.sendError(sess.conn, request, CodeNotLoggedIn, p.StreamID, "")
		return p, false
	}
	return p, true
}

func (ctl *Controller) handlePublish(ctx context.Context, sess *Session, data []byte) {
	p, ok := ctl.parseStream(sess, "publish", data, true)
	if !ok {
		return
	}
	if !p.Kind.Valid() {
		p.Kind = domain.KindFromStreamID(p.StreamID)
	}

	st, err := ctl.Registry.AddStream(sess.SID, p.StreamID, p.Kind)
	if errors.Is(err, ErrStreamTaken) {
		ctl.sendError(sess.conn, "publish", CodeStreamTaken, p.StreamID, "")
		return
	}
	if err != nil {
		ctl.sendError(sess.conn, "publish", CodeNotLoggedIn, p.StreamID, "")
		return
	}

	peer, err := sfu.NewPeer(ctl.RTC, "pub:"+string(p.StreamID))
	if err != nil {
		ctl.failPublish(sess, p.StreamID, err)
		return
	}
	stream := p.StreamID
	peer.OnTrack(func(trackCtx context.Context, track *webrtc.TrackRemote) {
		ctl.Relays.StartRelay(trackCtx, stream, track)
	})
	peer.OnClosed(func() { ctl.dropPublished(sess, stream, peer) })
	peer.Start(ctx)

	if err := peer.AddRecvTransceivers(); err != nil {
		peer.Close()
		ctl.failPublish(sess, stream, err)
		return
	}
	actx, cancel := context.WithTimeout(ctx, ctl.answerTimeout())
	defer cancel()
	answer, err := peer.Answer(actx, p.SDP)
	if err != nil {
		peer.Close()
		ctl.failPublish(sess, stream, err)
		return
	}

	sess.mu.Lock()
	old := sess.published[stream]
	sess.published[stream] = peer
	sess.mu.Unlock()
	if old != nil {
		old.Close()
	}

	log.Info().Str("module", "signal").Str("sid", string(sess.SID)).Str("stream", string(stream)).Str("kind", string(st.Kind)).Msg("publish")
	ctl.sendJSON(sess.conn, answerMsg{Type: "answer", StreamID: stream, SDP: answer})
	ctl.broadcastRoom(sess, streamEvent{Type: "stream_added", StreamInfo: st})
}

func (ctl *Controller) failPublish(sess *Session, stream domain.StreamID, err error) {
	log.Error().Err(err).Str("module", "signal").Str("stream", string(stream)).Msg("publish failed")
	ctl.Registry.RemoveStream(sess.SID, stream)
	ctl.sendError(sess.conn, "publish", CodeMedia, stream, err.Error())
}

// dropPublished runs when a publisher connection dies on its own.
func (ctl *Controller) dropPublished(sess *Session, stream domain.StreamID, peer *sfu.Peer) {
	sess.mu.Lock()
	cur := sess.published[stream]
	if cur != peer {
		sess.mu.Unlock()
		return
	}
	delete(sess.published, stream)
	sess.mu.Unlock()
	ctl.unpublish(sess, stream)
}

func (ctl *Controller) handleUnpublish(sess *Session, data []byte) {
	p, ok := ctl.parseStream(sess, "unpublish", data, false)
	if !ok {
		return
	}
	sess.mu.Lock()
	peer := sess.published[p.StreamID]
	delete(sess.published, p.StreamID)
	sess.mu.Unlock()
	if peer != nil {
		peer.Close()
	}
	ctl.unpublish(sess, p.StreamID)
}

func (ctl *Controller) unpublish(sess *Session, stream domain.StreamID) {
	st, ok := ctl.Registry.RemoveStream(sess.SID, stream)
	if !ok {
		return
	}
	ctl.Relays.StopStream(stream)
	log.Info().Str("module", "signal").Str("sid", string(sess.SID)).Str("stream", string(stream)).Msg("unpublish")
	ctl.broadcastRoom(sess, streamEvent{Type: "stream_removed", StreamInfo: st})
}

func (ctl *Controller) handlePlay(ctx context.Context, sess *Session, data []byte) {
	p, ok := ctl.parseStream(sess, "play", data, true)
	if !ok {
		return
	}
	room, _, _ := ctl.Registry.RoomOf(sess.SID)
	if _, ok := ctl.Registry.Stream(room, p.StreamID); !ok {
		ctl.sendError(sess.conn, "play", CodeStreamNotFound, p.StreamID, "")
		return
	}

	stream := p.StreamID
	peer, err := sfu.NewPeer(ctl.RTC, "play:"+string(sess.SID)+":"+string(stream))
	if err != nil {
		ctl.sendError(sess.conn, "play", CodeMedia, stream, err.Error())
		return
	}
	peer.Start(ctx)

	var tracks []*webrtc.TrackLocalStaticRTP
	for _, mime := range []string{webrtc.MimeTypeOpus, webrtc.MimeTypeVP8} {
		track, err := webrtc.NewTrackLocalStaticRTP(webrtc.RTPCodecCapability{MimeType: mime}, uuid.NewString(), string(stream))
		if err == nil {
			err = peer.AddLocalTrack(track)
		}
		if err != nil {
			peer.Close()
			ctl.sendError(sess.conn, "play", CodeMedia, stream, err.Error())
			return
		}
		tracks = append(tracks, track)
	}

	actx, cancel := context.WithTimeout(ctx, ctl.answerTimeout())
	defer cancel()
	answer, err := peer.Answer(actx, p.SDP)
	if err != nil {
		peer.Close()
		log.Error().Err(err).Str("module", "signal").Str("stream", string(stream)).Msg("play failed")
		ctl.sendError(sess.conn, "play", CodeMedia, stream, err.Error())
		return
	}

	sub := subscriberOf(sess.SID, stream)
	sess.mu.Lock()
	old := sess.playing[stream]
	sess.playing[stream] = peer
	sess.mu.Unlock()
	if old != nil {
		ctl.Relays.RemoveSubscriber(stream, sub)
		old.Close()
	}
	for _, track := range tracks {
		ctl.Relays.AddSubscriber(stream, sub, track)
	}

	log.Info().Str("module", "signal").Str("sid", string(sess.SID)).Str("stream", string(stream)).Msg("play")
	ctl.sendJSON(sess.conn, answerMsg{Type: "answer", StreamID: stream, SDP: answer})
}

func (ctl *Controller) handleStopPlay(sess *Session, data []byte) {
	p, ok := ctl.parseStream(sess, "stop_play", data, false)
	if !ok {
		return
	}
	sess.mu.Lock()
	peer := sess.playing[p.StreamID]
	delete(sess.playing, p.StreamID)
	sess.mu.Unlock()
	if peer == nil {
		return
	}
	ctl.Relays.RemoveSubscriber(p.StreamID, subscriberOf(sess.SID, p.StreamID))
	peer.Close()
	log.Info().Str("module", "signal").Str("sid", string(sess.SID)).Str("stream", string(p.StreamID)).Msg("stop play")
}
