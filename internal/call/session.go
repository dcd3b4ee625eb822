// Package call runs one audio/video room for the lifetime of a call view.
package call

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
)

var ErrSessionClosed = errors.New("call session closed")

const (
	defaultTokenTimeout    = 10 * time.Second
	defaultJoinTimeout     = 15 * time.Second
	defaultPlayTimeout     = 10 * time.Second
	defaultTeardownTimeout = 5 * time.Second
	eventBuffer            = 64
)

type Options struct {
	Tokens    core.TokenSource
	NewEngine core.EngineFactory

	TokenTimeout time.Duration
	JoinTimeout  time.Duration
	// PlayTimeout bounds each remote play request.
	PlayTimeout time.Duration

	// OnEnd is invoked exactly once when the session reaches Closed. reason
	// is nil when the caller asked to leave.
	OnEnd func(reason error)
	// OnUpdate receives a snapshot after every observable change. Calls are
	// serialized and arrive in the order the snapshots were taken. It must not
	// call Leave synchronously.
	OnUpdate func(Snapshot)
}

type Toggles struct {
	MicMuted       bool `json:"mic_muted"`
	CameraOff      bool `json:"camera_off"`
	ScreenSharing  bool `json:"screen_sharing"`
	BackgroundBlur bool `json:"background_blur"`
}

// Participant is one remote stream being played. A user publishing camera
// and screen appears twice, once per kind.
type Participant struct {
	StreamID domain.StreamID   `json:"stream_id"`
	UserID   domain.UserID     `json:"user_id"`
	Kind     domain.StreamKind `json:"kind"`
	Stream   core.RemoteStream `json:"-"`
}

type Snapshot struct {
	Room         domain.RoomKey  `json:"room"`
	State        State           `json:"state"`
	Toggles      Toggles         `json:"toggles"`
	MainStream   domain.StreamID `json:"main_stream,omitempty"`
	ScreenStream domain.StreamID `json:"screen_stream,omitempty"`
	Participants []Participant   `json:"participants"`
}

// Session owns one engine instance, its room login and the local streams.
// All methods are safe for concurrent use and never panic on misuse; they
// are no-ops in states where they do not apply.
type Session struct {
	room   domain.RoomKey
	opts   Options
	logger zerolog.Logger

	mu            sync.Mutex
	state         State
	tearingDown   bool
	creds         domain.CallCredentials
	engine        core.Engine
	loggedIn      bool
	main          core.LocalStream
	mainID        domain.StreamID
	mainPublished bool
	screen        core.LocalStream
	screenID      domain.StreamID
	screenPending bool
	screenStop    chan struct{}
	toggles       Toggles
	participants  map[domain.StreamID]*Participant
	order         []domain.StreamID
	startCancel   context.CancelFunc
	updates       []Snapshot
	flushing      bool

	events   chan core.StreamUpdate
	stop     chan struct{}
	endOnce  sync.Once
	workerWG sync.WaitGroup
}

func NewSession(room domain.RoomKey, opts Options) *Session {
	if opts.TokenTimeout <= 0 {
		opts.TokenTimeout = defaultTokenTimeout
	}
	if opts.JoinTimeout <= 0 {
		opts.JoinTimeout = defaultJoinTimeout
	}
	if opts.PlayTimeout <= 0 {
		opts.PlayTimeout = defaultPlayTimeout
	}
	return &Session{
		room:         room,
		opts:         opts,
		logger:       log.With().Str("module", "call").Str("room", string(room)).Logger(),
		participants: make(map[domain.StreamID]*Participant),
		events:       make(chan core.StreamUpdate, eventBuffer),
		stop:         make(chan struct{}),
	}
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) Participants() []Participant {
	return s.Snapshot().Participants
}

func (s *Session) snapshotLocked() Snapshot {
	snap := Snapshot{
		Room:         s.room,
		State:        s.state,
		Toggles:      s.toggles,
		Participants: make([]Participant, 0, len(s.order)),
	}
	if s.main != nil {
		snap.MainStream = s.mainID
	}
	if s.screen != nil {
		snap.ScreenStream = s.screenID
	}
	for _, id := range s.order {
		snap.Participants = append(snap.Participants, *s.participants[id])
	}
	return snap
}

// setStateLocked refuses transitions the state machine does not define.
func (s *Session) setStateLocked(to State) bool {
	if !canTransition(s.state, to) {
		s.logger.Error().Str("from", s.state.String()).Str("to", to.String()).Msg("illegal state transition")
		return false
	}
	s.logger.Debug().Str("from", s.state.String()).Str("to", to.String()).Msg("state")
	s.state = to
	return true
}

// advance moves from -> to only if no teardown raced the caller.
func (s *Session) advance(from, to State) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != from || s.tearingDown {
		return false
	}
	return s.setStateLocked(to)
}

// emit queues a snapshot and delivers pending snapshots unless another
// goroutine is already delivering them.
func (s *Session) emit() {
	if s.opts.OnUpdate == nil {
		return
	}
	s.mu.Lock()
	s.updates = append(s.updates, s.snapshotLocked())
	if s.flushing {
		s.mu.Unlock()
		return
	}
	s.flushing = true
	for len(s.updates) > 0 {
		snap := s.updates[0]
		s.updates = s.updates[1:]
		s.mu.Unlock()
		s.opts.OnUpdate(snap)
		s.mu.Lock()
	}
	s.flushing = false
	s.mu.Unlock()
}

// Start requests a token, logs into the room and publishes the main stream.
// A second call while the session is not idle does nothing. Setup failures
// close the session and are reported through OnEnd as well as returned.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state != Idle {
		state := s.state
		s.mu.Unlock()
		s.logger.Debug().Str("state", state.String()).Msg("start ignored")
		if state == Closed {
			return ErrSessionClosed
		}
		return nil
	}
	ctx, cancel := context.WithCancel(ctx)
	s.startCancel = cancel
	s.setStateLocked(TokenRequested)
	s.mu.Unlock()
	defer cancel()
	s.emit()

	creds, err := s.requestToken(ctx)
	if err != nil {
		return s.fail(ctx, fmt.Errorf("call token: %w", err))
	}
	s.mu.Lock()
	s.creds = creds
	s.mu.Unlock()
	if !s.advance(TokenRequested, RoomJoining) {
		return ErrSessionClosed
	}
	s.emit()

	if err := s.join(ctx, creds); err != nil {
		if errors.Is(err, ErrSessionClosed) {
			return err
		}
		return s.fail(ctx, err)
	}
	if !s.advance(RoomJoining, RoomJoined) {
		return ErrSessionClosed
	}
	s.emit()

	if err := s.publishMain(ctx, creds); err != nil {
		if errors.Is(err, ErrSessionClosed) {
			return err
		}
		return s.fail(ctx, err)
	}
	if !s.advance(Publishing, Active) {
		return ErrSessionClosed
	}
	s.logger.Info().Str("room_id", string(creds.RoomID)).Msg("call active")
	s.emit()
	return nil
}

func (s *Session) requestToken(ctx context.Context) (domain.CallCredentials, error) {
	if s.opts.Tokens == nil {
		return domain.CallCredentials{}, core.ErrNoCredentials
	}
	tctx, cancel := context.WithTimeout(ctx, s.opts.TokenTimeout)
	defer cancel()
	return s.opts.Tokens.CallToken(tctx, s.room)
}

func (s *Session) join(ctx context.Context, creds domain.CallCredentials) error {
	jctx, cancel := context.WithTimeout(ctx, s.opts.JoinTimeout)
	defer cancel()

	engine, err := s.opts.NewEngine(jctx, creds)
	if err != nil {
		return fmt.Errorf("create engine: %w", err)
	}

	s.mu.Lock()
	if s.state != RoomJoining || s.tearingDown {
		s.mu.Unlock()
		_ = engine.Close()
		return ErrSessionClosed
	}
	s.engine = engine
	s.workerWG.Add(1)
	s.mu.Unlock()

	engine.OnStreamUpdate(s.enqueue)
	engine.OnRoomState(s.onRoomState)
	go s.runWorker()

	err = engine.LoginRoom(jctx, creds.RoomID, creds.UserID, creds.AccessToken)
	if errors.Is(err, core.ErrAlreadyInRoom) {
		s.logger.Warn().Err(err).Msg("room login already active, continuing")
		err = nil
	}
	if err != nil {
		return fmt.Errorf("login room: %w", err)
	}

	s.mu.Lock()
	if s.state != RoomJoining || s.tearingDown {
		s.mu.Unlock()
		// Teardown ran while the login was in flight and did not log out.
		if err := engine.LogoutRoom(context.WithoutCancel(ctx), creds.RoomID); err != nil {
			s.logger.Warn().Err(err).Msg("logout after aborted login")
		}
		return ErrSessionClosed
	}
	s.loggedIn = true
	s.mu.Unlock()
	return nil
}

func (s *Session) publishMain(ctx context.Context, creds domain.CallCredentials) error {
	s.mu.Lock()
	engine := s.engine
	s.mu.Unlock()

	stream, err := engine.CreateStream(ctx, domain.StreamCamera)
	if err != nil {
		return fmt.Errorf("create main stream: %w", err)
	}
	id := domain.LocalStreamID(creds.RoomID, creds.UserID, domain.StreamCamera)

	s.mu.Lock()
	if s.state != RoomJoined || s.tearingDown {
		s.mu.Unlock()
		_ = stream.Destroy()
		return ErrSessionClosed
	}
	s.main = stream
	s.mainID = id
	s.setStateLocked(Publishing)
	s.mu.Unlock()
	s.emit()

	if err := engine.Publish(ctx, id, stream); err != nil {
		return fmt.Errorf("publish main stream: %w", err)
	}

	s.mu.Lock()
	if s.tearingDown {
		s.mu.Unlock()
		// Teardown saw the stream as unpublished and only destroyed it.
		_ = engine.Unpublish(context.WithoutCancel(ctx), id)
		return ErrSessionClosed
	}
	s.mainPublished = true
	s.mu.Unlock()
	return nil
}

// fail routes a setup error to teardown unless a leave already won.
func (s *Session) fail(ctx context.Context, err error) error {
	s.mu.Lock()
	closing := s.tearingDown
	s.mu.Unlock()
	if closing {
		return ErrSessionClosed
	}
	s.logger.Error().Err(err).Msg("call setup failed")
	s.teardown(context.WithoutCancel(ctx), err)
	return err
}

// Leave releases every stream and the room login. Safe to call any number
// of times and from any state.
func (s *Session) Leave(ctx context.Context) {
	s.mu.Lock()
	if s.state == Idle {
		s.setStateLocked(Closed)
		s.mu.Unlock()
		s.finish(nil)
		return
	}
	s.mu.Unlock()
	s.teardown(ctx, nil)
}

type releaseSet struct {
	engine        core.Engine
	roomID        domain.RoomID
	loggedIn      bool
	main          core.LocalStream
	mainID        domain.StreamID
	mainPublished bool
	screen        core.LocalStream
	screenID      domain.StreamID
	playing       []domain.StreamID
}

// teardown is the single cleanup path for leave, unmount and fatal errors.
// Only the first caller releases anything.
func (s *Session) teardown(ctx context.Context, reason error) {
	s.mu.Lock()
	if s.tearingDown || s.state == Closed {
		s.mu.Unlock()
		return
	}
	s.tearingDown = true
	s.setStateLocked(Leaving)
	if s.startCancel != nil {
		s.startCancel()
	}
	close(s.stop)

	rs := releaseSet{
		engine:        s.engine,
		roomID:        s.creds.RoomID,
		loggedIn:      s.loggedIn,
		main:          s.main,
		mainID:        s.mainID,
		mainPublished: s.mainPublished,
		screen:        s.screen,
		screenID:      s.screenID,
		playing:       append([]domain.StreamID(nil), s.order...),
	}
	s.loggedIn = false
	s.main, s.mainPublished = nil, false
	s.screen = nil
	s.screenStop = nil
	s.toggles.ScreenSharing = false
	s.participants = make(map[domain.StreamID]*Participant)
	s.order = nil
	s.mu.Unlock()
	s.emit()

	// Workers see s.stop and return before the engine is released.
	s.workerWG.Wait()

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), defaultTeardownTimeout)
	defer cancel()
	s.release(ctx, rs)

	s.mu.Lock()
	s.setStateLocked(Closed)
	s.mu.Unlock()
	s.logger.Info().Err(reason).Msg("call closed")
	s.emit()
	s.finish(reason)
}

func (s *Session) release(ctx context.Context, rs releaseSet) {
	if rs.engine == nil {
		for _, st := range []core.LocalStream{rs.screen, rs.main} {
			if st != nil {
				_ = st.Destroy()
			}
		}
		return
	}
	if rs.screen != nil {
		if err := rs.engine.Unpublish(ctx, rs.screenID); err != nil {
			s.logger.Warn().Err(err).Str("stream", string(rs.screenID)).Msg("unpublish screen")
		}
		if err := rs.screen.Destroy(); err != nil {
			s.logger.Warn().Err(err).Msg("destroy screen stream")
		}
	}
	if rs.main != nil {
		if rs.mainPublished {
			if err := rs.engine.Unpublish(ctx, rs.mainID); err != nil {
				s.logger.Warn().Err(err).Str("stream", string(rs.mainID)).Msg("unpublish main")
			}
		}
		if err := rs.main.Destroy(); err != nil {
			s.logger.Warn().Err(err).Msg("destroy main stream")
		}
	}
	for _, id := range rs.playing {
		if err := rs.engine.StopPlay(id); err != nil {
			s.logger.Warn().Err(err).Str("stream", string(id)).Msg("stop play")
		}
	}
	if rs.loggedIn {
		if err := rs.engine.LogoutRoom(ctx, rs.roomID); err != nil {
			s.logger.Warn().Err(err).Msg("logout room")
		}
	}
	if err := rs.engine.Close(); err != nil {
		s.logger.Warn().Err(err).Msg("close engine")
	}
}

func (s *Session) finish(reason error) {
	s.endOnce.Do(func() {
		if s.opts.OnEnd != nil {
			s.opts.OnEnd(reason)
		}
	})
}

func (s *Session) onRoomState(state core.RoomState, err error) {
	s.logger.Info().Err(err).Str("room_state", string(state)).Msg("room state")
	if state != core.RoomDisconnected || err == nil {
		return
	}
	go s.teardown(context.Background(), fmt.Errorf("room connection lost: %w", err))
}
