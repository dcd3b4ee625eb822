package call

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/mock/gomock"

	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/core/mocks"
	"github.com/dkeye/Huddle/internal/domain"
)

var testCreds = domain.CallCredentials{
	AppID:         "app",
	AccessToken:   "tok",
	RoomID:        "room-r1",
	UserID:        7,
	ServerAddress: "ws://media.test",
}

var (
	mainID   = domain.LocalStreamID(testCreds.RoomID, testCreds.UserID, domain.StreamCamera)
	screenID = domain.LocalStreamID(testCreds.RoomID, testCreds.UserID, domain.StreamScreen)
)

type remote domain.StreamID

func (r remote) ID() domain.StreamID { return domain.StreamID(r) }

// tokenSource counts requests and optionally blocks until released.
type tokenSource struct {
	calls   atomic.Int32
	gate    chan struct{}
	entered chan struct{}
	err     error
}

func (ts *tokenSource) CallToken(ctx context.Context, room domain.RoomKey) (domain.CallCredentials, error) {
	ts.calls.Add(1)
	if ts.entered != nil {
		close(ts.entered)
	}
	if ts.gate != nil {
		select {
		case <-ts.gate:
		case <-ctx.Done():
			return domain.CallCredentials{}, ctx.Err()
		}
	}
	if ts.err != nil {
		return domain.CallCredentials{}, ts.err
	}
	return testCreds, nil
}

type endRecorder struct {
	mu      sync.Mutex
	reasons []error
}

func (e *endRecorder) record(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.reasons = append(e.reasons, err)
}

func (e *endRecorder) calls() []error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]error(nil), e.reasons...)
}

type harness struct {
	ctrl    *gomock.Controller
	engine  *mocks.MockEngine
	main    *mocks.MockLocalStream
	tokens  *tokenSource
	ends    *endRecorder
	session *Session

	mu        sync.Mutex
	onStream  func(core.StreamUpdate)
	onRoom    func(core.RoomState, error)
	factories atomic.Int32
}

func newHarness(t *testing.T, opts Options) *harness {
	ctrl := gomock.NewController(t)
	h := &harness{
		ctrl:   ctrl,
		engine: mocks.NewMockEngine(ctrl),
		main:   mocks.NewMockLocalStream(ctrl),
		tokens: &tokenSource{},
		ends:   &endRecorder{},
	}
	if opts.Tokens == nil {
		opts.Tokens = h.tokens
	}
	opts.NewEngine = func(ctx context.Context, creds domain.CallCredentials) (core.Engine, error) {
		h.factories.Add(1)
		return h.engine, nil
	}
	opts.OnEnd = h.ends.record
	h.session = NewSession("r1", opts)
	return h
}

func (h *harness) expectEngineWiring() {
	h.engine.EXPECT().OnStreamUpdate(gomock.Any()).Do(func(fn func(core.StreamUpdate)) {
		h.mu.Lock()
		h.onStream = fn
		h.mu.Unlock()
	})
	h.engine.EXPECT().OnRoomState(gomock.Any()).Do(func(fn func(core.RoomState, error)) {
		h.mu.Lock()
		h.onRoom = fn
		h.mu.Unlock()
	})
}

func (h *harness) expectJoin() {
	h.expectEngineWiring()
	h.engine.EXPECT().LoginRoom(gomock.Any(), testCreds.RoomID, testCreds.UserID, testCreds.AccessToken).Return(nil)
	h.engine.EXPECT().CreateStream(gomock.Any(), domain.StreamCamera).Return(h.main, nil)
	h.engine.EXPECT().Publish(gomock.Any(), mainID, h.main).Return(nil)
}

func (h *harness) expectTeardown() {
	h.engine.EXPECT().Unpublish(gomock.Any(), mainID).Return(nil)
	h.main.EXPECT().Destroy().Return(nil)
	h.engine.EXPECT().LogoutRoom(gomock.Any(), testCreds.RoomID).Return(nil)
	h.engine.EXPECT().Close().Return(nil)
}

func (h *harness) start(t *testing.T) {
	t.Helper()
	h.expectJoin()
	if err := h.session.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if s := h.session.State(); s != Active {
		t.Fatalf("expected active, got %v", s)
	}
}

func (h *harness) streamUpdate(u core.StreamUpdate) {
	h.mu.Lock()
	fn := h.onStream
	h.mu.Unlock()
	fn(u)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestStartReachesActive(t *testing.T) {
	h := newHarness(t, Options{})
	var states []State
	var mu sync.Mutex
	h.session.opts.OnUpdate = func(s Snapshot) {
		mu.Lock()
		defer mu.Unlock()
		if len(states) == 0 || states[len(states)-1] != s.State {
			states = append(states, s.State)
		}
	}
	h.start(t)

	mu.Lock()
	got := append([]State(nil), states...)
	mu.Unlock()
	want := []State{TokenRequested, RoomJoining, RoomJoined, Publishing, Active}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Fatalf("states %v, want %v", got, want)
	}
	snap := h.session.Snapshot()
	if snap.MainStream != mainID || snap.ScreenStream != "" {
		t.Fatalf("unexpected local streams %+v", snap)
	}

	h.expectTeardown()
	h.session.Leave(context.Background())
}

func TestStartTwiceLogsInOnce(t *testing.T) {
	h := newHarness(t, Options{})
	h.tokens.gate = make(chan struct{})
	h.tokens.entered = make(chan struct{})
	h.expectJoin()

	done := make(chan error, 1)
	go func() { done <- h.session.Start(context.Background()) }()
	<-h.tokens.entered

	if err := h.session.Start(context.Background()); err != nil {
		t.Fatalf("second start should be a silent no-op, got %v", err)
	}
	close(h.tokens.gate)
	if err := <-done; err != nil {
		t.Fatalf("first start: %v", err)
	}
	if err := h.session.Start(context.Background()); err != nil {
		t.Fatalf("start while active should be a no-op, got %v", err)
	}

	if n := h.tokens.calls.Load(); n != 1 {
		t.Fatalf("expected one token request, got %d", n)
	}
	if n := h.factories.Load(); n != 1 {
		t.Fatalf("expected one engine, got %d", n)
	}

	h.expectTeardown()
	h.session.Leave(context.Background())
}

func TestTokenFailureClosesWithoutLogin(t *testing.T) {
	h := newHarness(t, Options{})
	netErr := errors.New("network unreachable")
	h.tokens.err = netErr

	err := h.session.Start(context.Background())
	if !errors.Is(err, netErr) {
		t.Fatalf("expected token error, got %v", err)
	}
	if s := h.session.State(); s != Closed {
		t.Fatalf("expected closed, got %v", s)
	}
	if h.factories.Load() != 0 {
		t.Fatal("no engine may be created when the token fails")
	}
	ends := h.ends.calls()
	if len(ends) != 1 || !errors.Is(ends[0], netErr) {
		t.Fatalf("expected one end callback with the token error, got %v", ends)
	}
}

func TestTokenTimeout(t *testing.T) {
	h := newHarness(t, Options{TokenTimeout: 20 * time.Millisecond})
	h.tokens.gate = make(chan struct{})

	err := h.session.Start(context.Background())
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if h.session.State() != Closed || len(h.ends.calls()) != 1 {
		t.Fatalf("expected closed with one end callback, got %v / %v", h.session.State(), h.ends.calls())
	}
}

func TestAlreadyInRoomIsNotFatal(t *testing.T) {
	h := newHarness(t, Options{})
	h.expectEngineWiring()
	h.engine.EXPECT().LoginRoom(gomock.Any(), testCreds.RoomID, testCreds.UserID, testCreds.AccessToken).
		Return(fmt.Errorf("engine code 1002001: %w", core.ErrAlreadyInRoom))
	h.engine.EXPECT().CreateStream(gomock.Any(), domain.StreamCamera).Return(h.main, nil)
	h.engine.EXPECT().Publish(gomock.Any(), mainID, h.main).Return(nil)

	if err := h.session.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if h.session.State() != Active {
		t.Fatalf("expected active, got %v", h.session.State())
	}
	h.expectTeardown()
	h.session.Leave(context.Background())
}

func TestLoginFailureTearsDown(t *testing.T) {
	h := newHarness(t, Options{})
	h.expectEngineWiring()
	h.engine.EXPECT().LoginRoom(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(errors.New("bad token"))
	h.engine.EXPECT().Close().Return(nil)

	if err := h.session.Start(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if h.session.State() != Closed {
		t.Fatalf("expected closed, got %v", h.session.State())
	}
	if len(h.ends.calls()) != 1 {
		t.Fatalf("expected one end callback, got %d", len(h.ends.calls()))
	}
	h.session.Leave(context.Background())
	if len(h.ends.calls()) != 1 {
		t.Fatal("leave after failure must not end twice")
	}
}

func TestStreamCreationFailureLogsOutOnce(t *testing.T) {
	h := newHarness(t, Options{})
	h.expectEngineWiring()
	h.engine.EXPECT().LoginRoom(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)
	h.engine.EXPECT().CreateStream(gomock.Any(), domain.StreamCamera).Return(nil, errors.New("permission denied"))
	h.engine.EXPECT().LogoutRoom(gomock.Any(), testCreds.RoomID).Return(nil)
	h.engine.EXPECT().Close().Return(nil)

	if err := h.session.Start(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if h.session.State() != Closed {
		t.Fatalf("expected closed, got %v", h.session.State())
	}
}

func TestLeaveIsIdempotent(t *testing.T) {
	h := newHarness(t, Options{})
	h.start(t)
	h.expectTeardown()

	h.session.Leave(context.Background())
	h.session.Leave(context.Background())

	if h.session.State() != Closed {
		t.Fatalf("expected closed, got %v", h.session.State())
	}
	ends := h.ends.calls()
	if len(ends) != 1 || ends[0] != nil {
		t.Fatalf("expected one nil end reason, got %v", ends)
	}
	if err := h.session.Start(context.Background()); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("start after close: %v", err)
	}
}

func TestRoomLossThenLeaveCleansOnce(t *testing.T) {
	h := newHarness(t, Options{})
	h.start(t)
	h.expectTeardown()

	h.mu.Lock()
	onRoom := h.onRoom
	h.mu.Unlock()
	onRoom(core.RoomDisconnected, errors.New("signaling dropped"))
	waitFor(t, "closed", func() bool { return h.session.State() == Closed })

	h.session.Leave(context.Background())
	if n := len(h.ends.calls()); n != 1 {
		t.Fatalf("expected one end callback, got %d", n)
	}
}

func TestLeaveBeforeStart(t *testing.T) {
	h := newHarness(t, Options{})
	h.session.Leave(context.Background())
	if h.session.State() != Closed {
		t.Fatalf("expected closed, got %v", h.session.State())
	}
	if err := h.session.Start(context.Background()); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("expected ErrSessionClosed, got %v", err)
	}
	if h.tokens.calls.Load() != 0 {
		t.Fatal("no token may be requested after leave")
	}
}

func TestLeaveDuringTokenRequest(t *testing.T) {
	h := newHarness(t, Options{})
	h.tokens.gate = make(chan struct{})
	h.tokens.entered = make(chan struct{})

	done := make(chan error, 1)
	go func() { done <- h.session.Start(context.Background()) }()
	<-h.tokens.entered

	h.session.Leave(context.Background())
	if err := <-done; !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("expected ErrSessionClosed, got %v", err)
	}
	if h.factories.Load() != 0 {
		t.Fatal("engine created after leave")
	}
	ends := h.ends.calls()
	if len(ends) != 1 || ends[0] != nil {
		t.Fatalf("expected a single nil end reason, got %v", ends)
	}
}

func TestTogglesAreNoopsBeforePublishing(t *testing.T) {
	h := newHarness(t, Options{})
	if h.session.ToggleMic() || h.session.ToggleCamera() || h.session.ToggleBackgroundBlur() {
		t.Fatal("toggles must not flip before publishing")
	}
	if h.session.ToggleScreenShare(context.Background()) {
		t.Fatal("screen share must not start before publishing")
	}
	if (h.session.Snapshot().Toggles != Toggles{}) {
		t.Fatalf("unexpected toggles %+v", h.session.Snapshot().Toggles)
	}
}

func TestMicAndCameraToggles(t *testing.T) {
	h := newHarness(t, Options{})
	h.start(t)

	gomock.InOrder(
		h.main.EXPECT().MuteAudio(true).Return(nil),
		h.main.EXPECT().MuteAudio(false).Return(nil),
	)
	h.main.EXPECT().MuteVideo(true).Return(nil)

	if !h.session.ToggleMic() {
		t.Fatal("mic should be muted")
	}
	if h.session.ToggleMic() {
		t.Fatal("mic should be unmuted")
	}
	if !h.session.ToggleCamera() {
		t.Fatal("camera should be off")
	}
	tg := h.session.Snapshot().Toggles
	if tg.MicMuted || !tg.CameraOff || tg.ScreenSharing || tg.BackgroundBlur {
		t.Fatalf("unexpected toggles %+v", tg)
	}

	h.expectTeardown()
	h.session.Leave(context.Background())
}

func TestBlurFailureReverts(t *testing.T) {
	h := newHarness(t, Options{})
	h.start(t)
	h.main.EXPECT().SetVirtualBackground(true).Return(core.ErrEffectUnavailable)

	if h.session.ToggleBackgroundBlur() {
		t.Fatal("blur must revert when the effect fails")
	}
	if h.session.State() != Active {
		t.Fatal("device errors must not end the call")
	}

	h.expectTeardown()
	h.session.Leave(context.Background())
}

func TestScreenShareStreamAccounting(t *testing.T) {
	h := newHarness(t, Options{})
	h.start(t)

	screen := mocks.NewMockLocalStream(h.ctrl)
	ended := make(chan struct{})
	h.engine.EXPECT().CreateStream(gomock.Any(), domain.StreamScreen).Return(screen, nil)
	h.engine.EXPECT().Publish(gomock.Any(), screenID, screen).Return(nil)
	screen.EXPECT().Ended().Return((<-chan struct{})(ended)).AnyTimes()

	if !h.session.ToggleScreenShare(context.Background()) {
		t.Fatal("screen share should be on")
	}
	snap := h.session.Snapshot()
	if snap.ScreenStream != screenID || snap.ScreenStream == snap.MainStream {
		t.Fatalf("expected a distinct screen stream, got %+v", snap)
	}

	h.engine.EXPECT().Unpublish(gomock.Any(), screenID).Return(nil)
	screen.EXPECT().Destroy().Return(nil)
	if h.session.ToggleScreenShare(context.Background()) {
		t.Fatal("screen share should be off")
	}
	snap = h.session.Snapshot()
	if snap.ScreenStream != "" || snap.MainStream != mainID {
		t.Fatalf("only the screen stream may be removed, got %+v", snap)
	}

	h.expectTeardown()
	h.session.Leave(context.Background())
}

func TestScreenShareRevokedExternally(t *testing.T) {
	h := newHarness(t, Options{})
	h.start(t)

	screen := mocks.NewMockLocalStream(h.ctrl)
	ended := make(chan struct{})
	h.engine.EXPECT().CreateStream(gomock.Any(), domain.StreamScreen).Return(screen, nil)
	h.engine.EXPECT().Publish(gomock.Any(), screenID, screen).Return(nil)
	screen.EXPECT().Ended().Return((<-chan struct{})(ended)).AnyTimes()
	h.engine.EXPECT().Unpublish(gomock.Any(), screenID).Return(nil)
	screen.EXPECT().Destroy().Return(nil)

	h.session.ToggleScreenShare(context.Background())
	close(ended)
	waitFor(t, "share stopped", func() bool { return !h.session.Snapshot().Toggles.ScreenSharing })

	h.expectTeardown()
	h.session.Leave(context.Background())
}

func TestScreenShareDeniedKeepsCall(t *testing.T) {
	h := newHarness(t, Options{})
	h.start(t)
	h.engine.EXPECT().CreateStream(gomock.Any(), domain.StreamScreen).Return(nil, errors.New("permission denied"))

	if h.session.ToggleScreenShare(context.Background()) {
		t.Fatal("screen share must stay off")
	}
	if h.session.State() != Active {
		t.Fatalf("call must survive, got %v", h.session.State())
	}

	h.expectTeardown()
	h.session.Leave(context.Background())
}

func TestLeaveReleasesScreenShare(t *testing.T) {
	h := newHarness(t, Options{})
	h.start(t)

	screen := mocks.NewMockLocalStream(h.ctrl)
	h.engine.EXPECT().CreateStream(gomock.Any(), domain.StreamScreen).Return(screen, nil)
	h.engine.EXPECT().Publish(gomock.Any(), screenID, screen).Return(nil)
	screen.EXPECT().Ended().Return((<-chan struct{})(make(chan struct{}))).AnyTimes()
	h.session.ToggleScreenShare(context.Background())

	h.engine.EXPECT().Unpublish(gomock.Any(), screenID).Return(nil)
	screen.EXPECT().Destroy().Return(nil)
	h.expectTeardown()
	h.session.Leave(context.Background())
	h.session.Leave(context.Background())
}

func TestRemoteParticipants(t *testing.T) {
	h := newHarness(t, Options{})
	h.start(t)

	camID := domain.StreamID("room-r1_9_main")
	shareID := domain.StreamID("room-r1_9_screen")
	h.engine.EXPECT().Play(gomock.Any(), camID).Return(remote(camID), nil)
	h.engine.EXPECT().Play(gomock.Any(), shareID).Return(remote(shareID), nil)
	h.engine.EXPECT().StopPlay(camID).Return(nil)

	h.streamUpdate(core.StreamUpdate{Added: true, StreamID: camID, UserID: 9, Kind: domain.StreamCamera})
	h.streamUpdate(core.StreamUpdate{Added: true, StreamID: shareID, UserID: 9})
	h.streamUpdate(core.StreamUpdate{Added: false, StreamID: "never-added"})
	h.streamUpdate(core.StreamUpdate{Added: false, StreamID: camID})

	waitFor(t, "participant removal", func() bool {
		ps := h.session.Participants()
		return len(ps) == 1 && ps[0].StreamID == shareID
	})
	p := h.session.Participants()[0]
	if p.Kind != domain.StreamScreen || p.UserID != 9 {
		t.Fatalf("unexpected participant %+v", p)
	}
	if p.Stream.ID() != shareID {
		t.Fatalf("unexpected stream handle %v", p.Stream.ID())
	}

	h.engine.EXPECT().StopPlay(shareID).Return(nil)
	h.expectTeardown()
	h.session.Leave(context.Background())
	if n := len(h.session.Participants()); n != 0 {
		t.Fatalf("participants must be cleared on leave, got %d", n)
	}
}

func TestJoinTimeout(t *testing.T) {
	h := newHarness(t, Options{JoinTimeout: 30 * time.Millisecond})
	h.expectEngineWiring()
	h.engine.EXPECT().LoginRoom(gomock.Any(), testCreds.RoomID, testCreds.UserID, testCreds.AccessToken).
		DoAndReturn(func(ctx context.Context, _ domain.RoomID, _ domain.UserID, _ string) error {
			<-ctx.Done()
			return ctx.Err()
		})
	h.engine.EXPECT().Close().Return(nil)

	err := h.session.Start(context.Background())
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if s := h.session.State(); s != Closed {
		t.Fatalf("expected closed, got %v", s)
	}
	ends := h.ends.calls()
	if len(ends) != 1 || !errors.Is(ends[0], context.DeadlineExceeded) {
		t.Fatalf("expected one end callback with the deadline error, got %v", ends)
	}
}

func TestStalledPlayDoesNotBlockLaterUpdates(t *testing.T) {
	h := newHarness(t, Options{PlayTimeout: 30 * time.Millisecond})
	h.start(t)

	stuckID := domain.StreamID("room-r1_8_main")
	camID := domain.StreamID("room-r1_9_main")
	h.engine.EXPECT().Play(gomock.Any(), stuckID).DoAndReturn(func(ctx context.Context, _ domain.StreamID) (core.RemoteStream, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	h.engine.EXPECT().Play(gomock.Any(), camID).Return(remote(camID), nil)

	h.streamUpdate(core.StreamUpdate{Added: true, StreamID: stuckID, UserID: 8, Kind: domain.StreamCamera})
	h.streamUpdate(core.StreamUpdate{Added: true, StreamID: camID, UserID: 9, Kind: domain.StreamCamera})

	waitFor(t, "second participant", func() bool {
		ps := h.session.Participants()
		return len(ps) == 1 && ps[0].StreamID == camID
	})

	h.engine.EXPECT().StopPlay(camID).Return(nil)
	h.expectTeardown()
	h.session.Leave(context.Background())
}

func TestTeardownWaitsForWorkers(t *testing.T) {
	h := newHarness(t, Options{})
	h.start(t)

	camID := domain.StreamID("room-r1_9_main")
	entered := make(chan struct{})
	var playReturned atomic.Bool
	h.engine.EXPECT().Play(gomock.Any(), camID).DoAndReturn(func(ctx context.Context, _ domain.StreamID) (core.RemoteStream, error) {
		close(entered)
		<-ctx.Done()
		time.Sleep(10 * time.Millisecond)
		playReturned.Store(true)
		return nil, ctx.Err()
	})
	h.streamUpdate(core.StreamUpdate{Added: true, StreamID: camID, UserID: 9})
	<-entered

	h.engine.EXPECT().Unpublish(gomock.Any(), mainID).Return(nil)
	h.main.EXPECT().Destroy().Return(nil)
	h.engine.EXPECT().LogoutRoom(gomock.Any(), testCreds.RoomID).Return(nil)
	h.engine.EXPECT().Close().DoAndReturn(func() error {
		if !playReturned.Load() {
			t.Error("engine closed while a play was still in flight")
		}
		return nil
	})
	h.session.Leave(context.Background())
}

func TestScreenShareStopEndsWatcher(t *testing.T) {
	h := newHarness(t, Options{})
	h.start(t)

	screen := mocks.NewMockLocalStream(h.ctrl)
	h.engine.EXPECT().CreateStream(gomock.Any(), domain.StreamScreen).Return(screen, nil)
	h.engine.EXPECT().Publish(gomock.Any(), screenID, screen).Return(nil)
	screen.EXPECT().Ended().Return((<-chan struct{})(make(chan struct{}))).AnyTimes()
	h.engine.EXPECT().Unpublish(gomock.Any(), screenID).Return(nil)
	screen.EXPECT().Destroy().Return(nil)

	h.session.ToggleScreenShare(context.Background())
	h.session.mu.Lock()
	stop := h.session.screenStop
	h.session.mu.Unlock()
	if stop == nil {
		t.Fatal("screen watcher has no stop channel")
	}

	h.session.ToggleScreenShare(context.Background())
	select {
	case <-stop:
	default:
		t.Fatal("stopping the share must release its watcher")
	}

	h.expectTeardown()
	h.session.Leave(context.Background())
}

func TestUpdatesAreDeliveredInOrder(t *testing.T) {
	var (
		mu       sync.Mutex
		last     Snapshot
		inFlight atomic.Int32
		overlap  atomic.Bool
	)
	h := newHarness(t, Options{OnUpdate: func(s Snapshot) {
		if inFlight.Add(1) > 1 {
			overlap.Store(true)
		}
		time.Sleep(time.Millisecond)
		mu.Lock()
		last = s
		mu.Unlock()
		inFlight.Add(-1)
	}})
	h.start(t)
	h.main.EXPECT().MuteAudio(gomock.Any()).Return(nil).AnyTimes()
	h.main.EXPECT().MuteVideo(gomock.Any()).Return(nil).AnyTimes()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() { defer wg.Done(); h.session.ToggleMic() }()
		go func() { defer wg.Done(); h.session.ToggleCamera() }()
	}
	wg.Wait()

	waitFor(t, "final snapshot delivered", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return inFlight.Load() == 0 && last.Toggles == h.session.Snapshot().Toggles
	})
	if overlap.Load() {
		t.Fatal("OnUpdate calls overlapped")
	}

	h.expectTeardown()
	h.session.Leave(context.Background())
}
