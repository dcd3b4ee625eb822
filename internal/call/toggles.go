package call

import (
	"context"

	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
)

// flip toggles one flag on the main stream and mirrors it to the engine
// through apply. A failing apply reverts the flag.
func (s *Session) flip(name string, flag func(*Toggles) *bool, apply func(core.LocalStream, bool) error) bool {
	s.mu.Lock()
	p := flag(&s.toggles)
	if !s.state.mediaReady() || s.main == nil || s.tearingDown {
		cur := *p
		s.mu.Unlock()
		return cur
	}
	next := !*p
	*p = next
	stream := s.main
	s.mu.Unlock()

	if err := apply(stream, next); err != nil {
		s.logger.Warn().Err(err).Str("toggle", name).Bool("value", next).Msg("device toggle failed, reverting")
		s.mu.Lock()
		p = flag(&s.toggles)
		if *p == next {
			*p = !next
		}
		next = *p
		s.mu.Unlock()
	}
	s.emit()
	return next
}

// ToggleMic flips micMuted and returns the resulting value.
func (s *Session) ToggleMic() bool {
	return s.flip("mic",
		func(t *Toggles) *bool { return &t.MicMuted },
		func(ls core.LocalStream, v bool) error { return ls.MuteAudio(v) })
}

// ToggleCamera flips cameraOff and returns the resulting value.
func (s *Session) ToggleCamera() bool {
	return s.flip("camera",
		func(t *Toggles) *bool { return &t.CameraOff },
		func(ls core.LocalStream, v bool) error { return ls.MuteVideo(v) })
}

// ToggleBackgroundBlur flips the virtual background on the main stream.
func (s *Session) ToggleBackgroundBlur() bool {
	return s.flip("blur",
		func(t *Toggles) *bool { return &t.BackgroundBlur },
		func(ls core.LocalStream, v bool) error { return ls.SetVirtualBackground(v) })
}

// ToggleScreenShare publishes a second stream captured from the screen, or
// stops the current one. Capture or publish errors leave sharing off.
func (s *Session) ToggleScreenShare(ctx context.Context) bool {
	s.mu.Lock()
	if !s.state.mediaReady() || s.tearingDown || s.screenPending {
		on := s.toggles.ScreenSharing
		s.mu.Unlock()
		return on
	}
	if s.screen != nil {
		stream := s.screen
		s.mu.Unlock()
		s.stopScreenShare(ctx, stream)
		return false
	}
	s.screenPending = true
	engine := s.engine
	id := domain.LocalStreamID(s.creds.RoomID, s.creds.UserID, domain.StreamScreen)
	s.mu.Unlock()

	ok := s.startScreenShare(ctx, engine, id)

	s.mu.Lock()
	s.screenPending = false
	on := s.toggles.ScreenSharing
	s.mu.Unlock()
	if ok {
		s.emit()
	}
	return on
}

func (s *Session) startScreenShare(ctx context.Context, engine core.Engine, id domain.StreamID) bool {
	stream, err := engine.CreateStream(ctx, domain.StreamScreen)
	if err != nil {
		s.logger.Warn().Err(err).Msg("screen capture failed")
		return false
	}
	if err := engine.Publish(ctx, id, stream); err != nil {
		s.logger.Warn().Err(err).Str("stream", string(id)).Msg("publish screen failed")
		_ = stream.Destroy()
		return false
	}

	s.mu.Lock()
	if s.tearingDown {
		s.mu.Unlock()
		_ = engine.Unpublish(context.WithoutCancel(ctx), id)
		_ = stream.Destroy()
		return false
	}
	stop := make(chan struct{})
	s.screen = stream
	s.screenID = id
	s.screenStop = stop
	s.toggles.ScreenSharing = true
	s.workerWG.Add(1)
	s.mu.Unlock()

	s.logger.Info().Str("stream", string(id)).Msg("screen share started")
	go s.watchScreen(stream, stop)
	return true
}

// watchScreen stops the share when the capture ends outside our control. It
// returns once the share is stopped or the session is torn down.
func (s *Session) watchScreen(stream core.LocalStream, stop <-chan struct{}) {
	defer s.workerWG.Done()
	select {
	case <-stream.Ended():
		s.logger.Info().Msg("screen capture ended externally")
		s.stopScreenShare(context.Background(), stream)
	case <-stop:
	case <-s.stop:
	}
}

func (s *Session) stopScreenShare(ctx context.Context, stream core.LocalStream) {
	s.mu.Lock()
	if s.screen != stream || s.tearingDown {
		s.mu.Unlock()
		return
	}
	s.screen = nil
	s.toggles.ScreenSharing = false
	if s.screenStop != nil {
		close(s.screenStop)
		s.screenStop = nil
	}
	id := s.screenID
	engine := s.engine
	s.mu.Unlock()

	if err := engine.Unpublish(ctx, id); err != nil {
		s.logger.Warn().Err(err).Str("stream", string(id)).Msg("unpublish screen")
	}
	if err := stream.Destroy(); err != nil {
		s.logger.Warn().Err(err).Msg("destroy screen stream")
	}
	s.logger.Info().Str("stream", string(id)).Msg("screen share stopped")
	s.emit()
}
