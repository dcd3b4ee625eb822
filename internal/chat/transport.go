// Package chat keeps one conversation's live channel open and exposes it as an
// append-only message sequence.
package chat

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/dkeye/Huddle/internal/retry"
)

type State int32

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "unknown"
	}
}

const defaultReceiptTimeout = 10 * time.Second

type Options struct {
	Dialer      core.ChatDialer
	History     core.HistorySource
	Receipts    core.ReadReceipts
	Credentials core.CredentialSource
	Retry       retry.Policy

	// OnMessage is called for every live message, in arrival order.
	OnMessage func(domain.ChatMessage)
	// OnState is called on every connection state change, one call at a time
	// and in the order the changes happened.
	OnState func(domain.ConversationID, State)

	ReceiptTimeout time.Duration
	Now            func() time.Time
}

type stateNotice struct {
	id    domain.ConversationID
	state State
}

// Transport is bound to at most one conversation at a time and owns at most
// one socket.
type Transport struct {
	opts   Options
	logger zerolog.Logger

	mu       sync.Mutex
	conv     domain.ConversationID
	state    State
	gen      uint64
	conn     core.ChatConn
	cancel   context.CancelFunc
	timer    *time.Timer
	schedule *retry.Schedule
	messages []domain.ChatMessage
	closed   bool

	// notices queues state changes in the order they happened; flushing
	// marks the goroutine currently delivering them.
	notices  []stateNotice
	flushing bool

	wg sync.WaitGroup
}

func NewTransport(opts Options) *Transport {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.ReceiptTimeout <= 0 {
		opts.ReceiptTimeout = defaultReceiptTimeout
	}
	return &Transport{
		opts:   opts,
		logger: log.With().Str("module", "chat").Logger(),
	}
}

func (t *Transport) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *Transport) Conversation() domain.ConversationID {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conv
}

// Messages returns a copy of the current sequence.
func (t *Transport) Messages() []domain.ChatMessage {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]domain.ChatMessage, len(t.messages))
	copy(out, t.messages)
	return out
}

// Bind is the mount sequence for a conversation view: drop the previous
// conversation's socket, replace the sequence with the backlog and go live.
func (t *Transport) Bind(ctx context.Context, id domain.ConversationID) []domain.ChatMessage {
	if t.Conversation() != id {
		t.Disconnect()
	}
	msgs := t.LoadHistory(ctx, id)
	t.Connect(ctx, id)
	return msgs
}

// LoadHistory replaces the in-memory sequence with the conversation backlog.
// Failures are logged and yield an empty sequence.
func (t *Transport) LoadHistory(ctx context.Context, id domain.ConversationID) []domain.ChatMessage {
	var msgs []domain.ChatMessage
	if t.opts.History != nil {
		var err error
		msgs, err = t.opts.History.History(ctx, id)
		if err != nil {
			t.logger.Warn().Err(err).Str("conversation", string(id)).Msg("history fetch failed")
			msgs = nil
		}
	}
	if msgs == nil {
		msgs = []domain.ChatMessage{}
	}

	t.mu.Lock()
	t.messages = append(make([]domain.ChatMessage, 0, len(msgs)), msgs...)
	t.mu.Unlock()

	t.logger.Debug().Str("conversation", string(id)).Int("count", len(msgs)).Msg("history loaded")
	out := make([]domain.ChatMessage, len(msgs))
	copy(out, msgs)
	return out
}

// Connect opens the live channel for id. A pending or live connection for
// another id is torn down first; connecting again to the id that is already
// connecting or connected is a no-op.
func (t *Transport) Connect(ctx context.Context, id domain.ConversationID) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	if id == t.conv && (t.state == Connected || t.state == Connecting) {
		t.mu.Unlock()
		return
	}
	old := t.detachLocked()
	t.conv = id
	t.schedule = t.opts.Retry.NewSchedule()
	gen := t.gen
	attemptCtx := t.beginAttemptLocked(context.WithoutCancel(ctx), id)
	t.wg.Add(1)
	t.mu.Unlock()

	if old != nil {
		_ = old.Close(core.CloseNormalClosure)
	}
	t.flush()

	go func() {
		defer t.wg.Done()
		t.attempt(attemptCtx, gen, id, "")
	}()
}

// Send hands content to the live channel. It returns false without writing
// anything when the channel is not connected.
func (t *Transport) Send(content string) bool {
	t.mu.Lock()
	conn := t.conn
	ok := t.state == Connected && conn != nil
	t.mu.Unlock()
	if !ok {
		return false
	}

	data, err := encodeOutbound(content)
	if err != nil {
		t.logger.Error().Err(err).Msg("encode outbound frame")
		return false
	}
	if err := conn.Write(data); err != nil {
		t.logger.Warn().Err(err).Msg("write to channel")
		return false
	}
	return true
}

// MarkAsRead notifies the read-receipt endpoint in the background. Failures
// are logged only.
func (t *Transport) MarkAsRead(ctx context.Context, id domain.ConversationID) {
	if t.opts.Receipts == nil {
		return
	}
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.wg.Add(1)
	t.mu.Unlock()
	go func() {
		defer t.wg.Done()
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), t.opts.ReceiptTimeout)
		defer cancel()
		if err := t.opts.Receipts.MarkRead(rctx, id); err != nil {
			t.logger.Warn().Err(err).Str("conversation", string(id)).Msg("mark read failed")
		}
	}()
}

// Disconnect closes the channel with a normal closure and cancels any
// pending reconnect.
func (t *Transport) Disconnect() {
	t.mu.Lock()
	id := t.conv
	wasDisconnected := t.state == Disconnected && t.conn == nil && t.timer == nil && t.cancel == nil
	old := t.detachLocked()
	if wasDisconnected {
		t.state = Disconnected
	} else {
		t.setStateLocked(id, Disconnected)
	}
	t.mu.Unlock()

	if old != nil {
		_ = old.Close(core.CloseNormalClosure)
	}
	if !wasDisconnected {
		t.logger.Info().Str("conversation", string(id)).Msg("disconnected")
		t.flush()
	}
}

// Close disconnects and waits for background work. The transport cannot be
// reused afterwards.
func (t *Transport) Close() {
	t.Disconnect()
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
	t.wg.Wait()
}

// detachLocked invalidates every in-flight attempt, timer and socket of the
// current generation and returns the socket for the caller to close.
func (t *Transport) detachLocked() core.ChatConn {
	t.gen++
	if t.cancel != nil {
		t.cancel()
		t.cancel = nil
	}
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	conn := t.conn
	t.conn = nil
	return conn
}

func (t *Transport) beginAttemptLocked(parent context.Context, id domain.ConversationID) context.Context {
	ctx, cancel := context.WithCancel(parent)
	t.cancel = cancel
	t.setStateLocked(id, Connecting)
	return ctx
}

// attempt dials once. token is empty on the first attempt and carries the
// captured credential on reconnects.
func (t *Transport) attempt(ctx context.Context, gen uint64, id domain.ConversationID, token string) {
	if token == "" {
		var err error
		token, err = t.credential(ctx)
		if err != nil {
			t.logger.Warn().Err(err).Str("conversation", string(id)).Msg("no credentials, not connecting")
			t.settle(gen, id, Disconnected)
			return
		}
	}

	conn, err := t.opts.Dialer.Dial(ctx, id, token)

	t.mu.Lock()
	if gen != t.gen || t.closed {
		t.mu.Unlock()
		if conn != nil {
			_ = conn.Close(core.CloseNormalClosure)
		}
		return
	}
	t.cancel = nil
	if err != nil {
		t.logger.Warn().Err(err).Str("conversation", string(id)).Msg("dial failed")
		t.scheduleLocked(gen, id, token)
		t.mu.Unlock()
		t.flush()
		return
	}
	t.conn = conn
	t.setStateLocked(id, Connected)
	t.schedule.Reset()
	t.mu.Unlock()

	t.logger.Info().Str("conversation", string(id)).Msg("connected")
	t.flush()
	t.readLoop(gen, id, token, conn)
}

func (t *Transport) credential(ctx context.Context) (string, error) {
	if t.opts.Credentials == nil {
		return "", core.ErrNoCredentials
	}
	token, err := t.opts.Credentials.Token(ctx)
	if err != nil {
		return "", err
	}
	if token == "" {
		return "", core.ErrNoCredentials
	}
	return token, nil
}

// settle moves to state if gen is still current.
func (t *Transport) settle(gen uint64, id domain.ConversationID, state State) {
	t.mu.Lock()
	if gen != t.gen {
		t.mu.Unlock()
		return
	}
	t.cancel = nil
	t.setStateLocked(id, state)
	t.mu.Unlock()
	t.flush()
}

func (t *Transport) readLoop(gen uint64, id domain.ConversationID, token string, conn core.ChatConn) {
	for {
		data, err := conn.Read()
		if err != nil {
			t.onClosed(gen, id, token, conn, err)
			return
		}
		t.onFrame(gen, id, data)
	}
}

func (t *Transport) onFrame(gen uint64, id domain.ConversationID, data []byte) {
	msg, err := normalizeFrame(data, t.opts.Now())
	if err != nil {
		t.logger.Warn().Err(err).Str("conversation", string(id)).Msg("dropping frame")
		return
	}

	t.mu.Lock()
	if gen != t.gen {
		t.mu.Unlock()
		return
	}
	t.messages = append(t.messages, msg)
	t.mu.Unlock()

	if t.opts.OnMessage != nil {
		t.opts.OnMessage(msg)
	}
}

func (t *Transport) onClosed(gen uint64, id domain.ConversationID, token string, conn core.ChatConn, err error) {
	code := core.CloseCodeOf(err)

	t.mu.Lock()
	if gen != t.gen || t.conn != conn {
		t.mu.Unlock()
		return
	}
	t.conn = nil
	var ce *core.CloseError
	if errors.As(err, &ce) && ce.Clean() {
		t.setStateLocked(id, Disconnected)
		t.mu.Unlock()
		t.logger.Info().Str("conversation", string(id)).Int("code", code).Msg("channel closed")
		t.flush()
		return
	}
	t.logger.Warn().Err(err).Str("conversation", string(id)).Int("code", code).Msg("channel dropped")
	t.scheduleLocked(gen, id, token)
	t.mu.Unlock()
	t.flush()
}

// scheduleLocked arms exactly one reconnect for gen using the captured id and
// token.
func (t *Transport) scheduleLocked(gen uint64, id domain.ConversationID, token string) {
	t.setStateLocked(id, Disconnected)
	delay, ok := t.schedule.Next()
	if !ok {
		t.logger.Warn().Str("conversation", string(id)).Int("attempts", t.schedule.Attempts()).Msg("reconnect attempts exhausted")
		return
	}
	t.logger.Info().Str("conversation", string(id)).Dur("delay", delay).Msg("reconnect scheduled")
	t.timer = time.AfterFunc(delay, func() { t.reconnect(gen, id, token) })
}

func (t *Transport) reconnect(gen uint64, id domain.ConversationID, token string) {
	t.mu.Lock()
	if gen != t.gen || t.closed {
		t.mu.Unlock()
		return
	}
	t.timer = nil
	ctx := t.beginAttemptLocked(context.Background(), id)
	t.wg.Add(1)
	t.mu.Unlock()

	t.flush()
	defer t.wg.Done()
	t.attempt(ctx, gen, id, token)
}

// setStateLocked changes the state and queues the notice for flush, so
// OnState sees changes in the order they were made.
func (t *Transport) setStateLocked(id domain.ConversationID, s State) {
	t.state = s
	if t.opts.OnState != nil {
		t.notices = append(t.notices, stateNotice{id: id, state: s})
	}
}

// flush delivers queued notices. Only one goroutine delivers at a time; a
// concurrent or reentrant caller leaves its notice to the active one.
func (t *Transport) flush() {
	t.mu.Lock()
	if t.flushing {
		t.mu.Unlock()
		return
	}
	t.flushing = true
	for len(t.notices) > 0 {
		n := t.notices[0]
		t.notices = t.notices[1:]
		t.mu.Unlock()
		t.opts.OnState(n.id, n.state)
		t.mu.Lock()
	}
	t.flushing = false
	t.mu.Unlock()
}
