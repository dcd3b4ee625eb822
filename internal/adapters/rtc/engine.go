// Package rtc implements the media engine on pion/webrtc. It speaks the dev
// backend's JSON signaling over one WebSocket and negotiates one peer
// connection per published or played stream.
package rtc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"

	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
)

var (
	ErrEngineClosed  = errors.New("engine closed")
	ErrForeignStream = errors.New("stream was not created by this engine")
)

// SignalError is an error frame from the signaling server.
type SignalError struct {
	Code    string
	Request string
	Message string
}

func (e *SignalError) Error() string {
	return fmt.Sprintf("signal %s: %s %s", e.Request, e.Code, e.Message)
}

// PacketSink receives every RTP packet of played streams.
type PacketSink func(stream domain.StreamID, kind webrtc.RTPCodecType, pkt *rtp.Packet)

type Config struct {
	ICEServers []string
	Capture    CaptureConfig
	Blur       FrameFilter
	Sink       PacketSink
}

// NewFactory returns a core.EngineFactory dialing the signaling server named
// in the credentials.
func NewFactory(cfg Config) core.EngineFactory {
	return func(ctx context.Context, creds domain.CallCredentials) (core.Engine, error) {
		return Dial(ctx, creds, cfg)
	}
}

type publication struct {
	pc     *webrtc.PeerConnection
	stream *localStream
}

type Engine struct {
	cfg    Config
	creds  domain.CallCredentials
	rtc    webrtc.Configuration
	ws     *websocket.Conn
	send   chan []byte
	done   chan struct{}
	events chan func()
	logger zerolog.Logger

	mu         sync.Mutex
	closed     bool
	loggedIn   bool
	pending    map[string]chan reply
	publishers map[domain.StreamID]*publication
	players    map[domain.StreamID]*webrtc.PeerConnection
	onStream   func(core.StreamUpdate)
	onRoom     func(core.RoomState, error)

	wg        conc.WaitGroup
	closeOnce sync.Once
}

func Dial(ctx context.Context, creds domain.CallCredentials, cfg Config) (*Engine, error) {
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, creds.ServerAddress, nil)
	if err != nil {
		return nil, fmt.Errorf("dial signaling %s: %w", creds.ServerAddress, err)
	}
	e := &Engine{
		cfg:        cfg,
		creds:      creds,
		ws:         ws,
		send:       make(chan []byte, 32),
		done:       make(chan struct{}),
		events:     make(chan func(), 64),
		logger:     log.With().Str("module", "rtc").Str("room_id", string(creds.RoomID)).Logger(),
		pending:    make(map[string]chan reply),
		publishers: make(map[domain.StreamID]*publication),
		players:    make(map[domain.StreamID]*webrtc.PeerConnection),
	}
	if len(cfg.ICEServers) > 0 {
		e.rtc.ICEServers = []webrtc.ICEServer{{URLs: cfg.ICEServers}}
	}
	e.wg.Go(e.writePump)
	e.wg.Go(e.readLoop)
	e.wg.Go(e.dispatch)
	return e, nil
}

func (e *Engine) OnStreamUpdate(fn func(core.StreamUpdate)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onStream = fn
}

func (e *Engine) OnRoomState(fn func(core.RoomState, error)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onRoom = fn
}

// emit queues a callback on the dispatcher so callbacks run in receipt order.
func (e *Engine) emit(fn func()) {
	select {
	case e.events <- fn:
	case <-e.done:
	}
}

func (e *Engine) dispatch() {
	for {
		select {
		case fn := <-e.events:
			fn()
		case <-e.done:
			return
		}
	}
}

func (e *Engine) emitStream(u core.StreamUpdate) {
	e.emit(func() {
		e.mu.Lock()
		fn := e.onStream
		e.mu.Unlock()
		if fn != nil {
			fn(u)
		}
	})
}

func (e *Engine) emitRoom(state core.RoomState, err error) {
	e.emit(func() {
		e.mu.Lock()
		fn := e.onRoom
		e.mu.Unlock()
		if fn != nil {
			fn(state, err)
		}
	})
}

func (e *Engine) writePump() {
	for {
		select {
		case <-e.done:
			return
		case data := <-e.send:
			if err := e.ws.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
				e.logger.Error().Err(err).Msg("writePump set deadline")
				return
			}
			if err := e.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				e.logger.Error().Err(err).Msg("writePump write error")
				return
			}
		}
	}
}

func (e *Engine) readLoop() {
	for {
		_, data, err := e.ws.ReadMessage()
		if err != nil {
			e.mu.Lock()
			closing := e.closed
			e.mu.Unlock()
			e.failPending(core.ErrNotConnected)
			if !closing {
				e.logger.Warn().Err(err).Msg("signaling lost")
				e.emitRoom(core.RoomDisconnected, err)
			}
			return
		}
		m, err := decode(data)
		if err != nil {
			e.logger.Warn().Err(err).Msg("bad signaling frame")
			continue
		}
		e.handle(m)
	}
}

func (e *Engine) handle(m inMsg) {
	switch m.Type {
	case "login_ok":
		e.resolve("login", reply{msg: m})
		for _, st := range m.Streams {
			e.emitStream(core.StreamUpdate{Added: true, StreamID: st.StreamID, UserID: st.UserID, Kind: st.Kind})
		}
	case "logout_ok":
		e.resolve("logout", reply{msg: m})
	case "answer":
		e.resolve(answerKey(m.StreamID), reply{msg: m})
	case "error":
		err := &SignalError{Code: m.Code, Request: m.Request, Message: m.Message}
		switch m.Request {
		case "login":
			e.resolve("login", reply{err: err})
		case "publish", "play":
			e.resolve(answerKey(m.StreamID), reply{err: err})
		default:
			e.logger.Warn().Err(err).Msg("signaling error")
		}
	case "stream_added":
		e.emitStream(core.StreamUpdate{Added: true, StreamID: m.StreamID, UserID: m.UserID, Kind: m.Kind})
	case "stream_removed":
		e.emitStream(core.StreamUpdate{Added: false, StreamID: m.StreamID, UserID: m.UserID, Kind: m.Kind})
	case "room_state":
		e.emitRoom(core.RoomState(m.State), nil)
	case "pong":
	default:
		e.logger.Debug().Str("type", m.Type).Msg("unhandled signaling frame")
	}
}

func (e *Engine) resolve(key string, r reply) {
	e.mu.Lock()
	ch, ok := e.pending[key]
	delete(e.pending, key)
	e.mu.Unlock()
	if ok {
		ch <- r
	}
}

func (e *Engine) failPending(err error) {
	e.mu.Lock()
	pending := e.pending
	e.pending = make(map[string]chan reply)
	e.mu.Unlock()
	for _, ch := range pending {
		ch <- reply{err: err}
	}
}

func (e *Engine) post(m outMsg) error {
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	select {
	case e.send <- data:
		return nil
	case <-e.done:
		return ErrEngineClosed
	}
}

// request sends m and waits for the frame resolving key.
func (e *Engine) request(ctx context.Context, key string, m outMsg) (inMsg, error) {
	ch := make(chan reply, 1)
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return inMsg{}, ErrEngineClosed
	}
	e.pending[key] = ch
	e.mu.Unlock()

	if err := e.post(m); err != nil {
		e.drop(key, ch)
		return inMsg{}, err
	}
	select {
	case r := <-ch:
		return r.msg, r.err
	case <-ctx.Done():
		e.drop(key, ch)
		return inMsg{}, ctx.Err()
	case <-e.done:
		return inMsg{}, ErrEngineClosed
	}
}

func (e *Engine) drop(key string, ch chan reply) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.pending[key] == ch {
		delete(e.pending, key)
	}
}

func (e *Engine) LoginRoom(ctx context.Context, room domain.RoomID, user domain.UserID, token string) error {
	e.mu.Lock()
	already := e.loggedIn
	e.mu.Unlock()
	if already {
		return core.ErrAlreadyInRoom
	}
	e.emitRoom(core.RoomConnecting, nil)
	_, err := e.request(ctx, "login", outMsg{Type: "login", RoomID: room, UserID: user, Token: token})
	var se *SignalError
	if errors.As(err, &se) && se.Code == codeAlreadyLoggedIn {
		// The socket holds a login, so LogoutRoom must still release it.
		e.mu.Lock()
		e.loggedIn = true
		e.mu.Unlock()
		return fmt.Errorf("%w: %v", core.ErrAlreadyInRoom, err)
	}
	if err != nil {
		return err
	}
	e.mu.Lock()
	e.loggedIn = true
	e.mu.Unlock()
	e.logger.Info().Str("user", user.String()).Msg("logged in")
	return nil
}

func (e *Engine) LogoutRoom(ctx context.Context, room domain.RoomID) error {
	e.mu.Lock()
	if !e.loggedIn {
		e.mu.Unlock()
		return nil
	}
	e.loggedIn = false
	e.mu.Unlock()
	if _, err := e.request(ctx, "logout", outMsg{Type: "logout", RoomID: room}); err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	e.logger.Info().Msg("logged out")
	return nil
}

func (e *Engine) CreateStream(ctx context.Context, kind domain.StreamKind) (core.LocalStream, error) {
	s, err := newLocalStream(kind, e.cfg.Capture, e.cfg.Blur)
	if err != nil {
		return nil, fmt.Errorf("create %s stream: %w", kind, err)
	}
	return s, nil
}

// negotiate runs a non-trickle offer/answer for stream id over signaling.
func (e *Engine) negotiate(ctx context.Context, pc *webrtc.PeerConnection, req outMsg) error {
	offer, err := pc.CreateOffer(nil)
	if err != nil {
		return err
	}
	gatherComplete := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(offer); err != nil {
		return err
	}
	select {
	case <-gatherComplete:
	case <-ctx.Done():
		return ctx.Err()
	}
	req.SDP = pc.LocalDescription().SDP

	ans, err := e.request(ctx, answerKey(req.StreamID), req)
	if err != nil {
		return err
	}
	return pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: ans.SDP})
}

func (e *Engine) Publish(ctx context.Context, id domain.StreamID, s core.LocalStream) error {
	ls, ok := s.(*localStream)
	if !ok {
		return ErrForeignStream
	}
	pc, err := webrtc.NewPeerConnection(e.rtc)
	if err != nil {
		return err
	}
	for _, track := range ls.tracks() {
		sender, err := pc.AddTrack(track)
		if err != nil {
			_ = pc.Close()
			return err
		}
		e.wg.Go(func() { drainRTCP(sender) })
	}
	if err := e.negotiate(ctx, pc, outMsg{Type: "publish", StreamID: id, Kind: ls.kind}); err != nil {
		_ = pc.Close()
		return fmt.Errorf("publish %s: %w", id, err)
	}

	e.mu.Lock()
	old := e.publishers[id]
	e.publishers[id] = &publication{pc: pc, stream: ls}
	e.mu.Unlock()
	if old != nil {
		_ = old.pc.Close()
	}
	e.logger.Info().Str("stream", string(id)).Str("kind", string(ls.kind)).Msg("published")
	return nil
}

func (e *Engine) Unpublish(ctx context.Context, id domain.StreamID) error {
	e.mu.Lock()
	pub, ok := e.publishers[id]
	delete(e.publishers, id)
	e.mu.Unlock()
	if !ok {
		return nil
	}
	err := pub.pc.Close()
	if perr := e.post(outMsg{Type: "unpublish", StreamID: id}); perr != nil && !errors.Is(perr, ErrEngineClosed) {
		err = errors.Join(err, perr)
	}
	e.logger.Info().Str("stream", string(id)).Msg("unpublished")
	return err
}

func (e *Engine) Play(ctx context.Context, id domain.StreamID) (core.RemoteStream, error) {
	pc, err := webrtc.NewPeerConnection(e.rtc)
	if err != nil {
		return nil, err
	}
	for _, kind := range []webrtc.RTPCodecType{webrtc.RTPCodecTypeAudio, webrtc.RTPCodecTypeVideo} {
		if _, err := pc.AddTransceiverFromKind(kind, webrtc.RTPTransceiverInit{Direction: webrtc.RTPTransceiverDirectionRecvonly}); err != nil {
			_ = pc.Close()
			return nil, err
		}
	}

	remote := &remoteStream{id: id}
	sink := e.cfg.Sink
	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		e.logger.Debug().Str("stream", string(id)).Str("kind", track.Kind().String()).Msg("remote track")
		e.wg.Go(func() {
			for {
				pkt, _, err := track.ReadRTP()
				if err != nil {
					return
				}
				remote.packets.Add(1)
				if sink != nil {
					sink(id, track.Kind(), pkt)
				}
			}
		})
	})

	if err := e.negotiate(ctx, pc, outMsg{Type: "play", StreamID: id}); err != nil {
		_ = pc.Close()
		return nil, fmt.Errorf("play %s: %w", id, err)
	}

	e.mu.Lock()
	old := e.players[id]
	e.players[id] = pc
	e.mu.Unlock()
	if old != nil {
		_ = old.Close()
	}
	e.logger.Info().Str("stream", string(id)).Msg("playing")
	return remote, nil
}

func (e *Engine) StopPlay(id domain.StreamID) error {
	e.mu.Lock()
	pc, ok := e.players[id]
	delete(e.players, id)
	e.mu.Unlock()
	if !ok {
		return nil
	}
	err := pc.Close()
	if perr := e.post(outMsg{Type: "stop_play", StreamID: id}); perr != nil && !errors.Is(perr, ErrEngineClosed) {
		err = errors.Join(err, perr)
	}
	return err
}

// Close releases every peer connection and the signaling socket. Streams
// created by CreateStream stay owned by the caller.
func (e *Engine) Close() error {
	var err error
	e.closeOnce.Do(func() {
		e.mu.Lock()
		e.closed = true
		pcs := make([]*webrtc.PeerConnection, 0, len(e.publishers)+len(e.players))
		for _, p := range e.publishers {
			pcs = append(pcs, p.pc)
		}
		for _, pc := range e.players {
			pcs = append(pcs, pc)
		}
		e.publishers = make(map[domain.StreamID]*publication)
		e.players = make(map[domain.StreamID]*webrtc.PeerConnection)
		e.mu.Unlock()

		for _, pc := range pcs {
			_ = pc.Close()
		}
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = e.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		close(e.done)
		err = e.ws.Close()
		e.wg.Wait()
		e.logger.Info().Msg("engine closed")
	})
	return err
}

func drainRTCP(sender *webrtc.RTPSender) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := sender.Read(buf); err != nil {
			return
		}
	}
}
