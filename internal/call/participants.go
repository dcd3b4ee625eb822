package call

import (
	"context"

	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
)

// enqueue is the engine callback. Updates keep engine order; once the session
// is torn down they are discarded.
func (s *Session) enqueue(u core.StreamUpdate) {
	select {
	case s.events <- u:
	case <-s.stop:
	}
}

func (s *Session) runWorker() {
	defer s.workerWG.Done()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-s.stop:
			cancel()
		case <-ctx.Done():
		}
	}()

	for {
		select {
		case <-s.stop:
			return
		case u := <-s.events:
			if u.Added {
				s.addRemote(ctx, u)
			} else {
				s.removeRemote(u.StreamID)
			}
		}
	}
}

func (s *Session) addRemote(ctx context.Context, u core.StreamUpdate) {
	s.mu.Lock()
	engine := s.engine
	_, known := s.participants[u.StreamID]
	own := (s.main != nil && u.StreamID == s.mainID) || (s.screen != nil && u.StreamID == s.screenID)
	s.mu.Unlock()
	if engine == nil || known || own {
		return
	}

	pctx, cancel := context.WithTimeout(ctx, s.opts.PlayTimeout)
	stream, err := engine.Play(pctx, u.StreamID)
	cancel()
	if err != nil {
		s.logger.Warn().Err(err).Str("stream", string(u.StreamID)).Msg("play remote stream")
		return
	}

	kind := u.Kind
	if !kind.Valid() {
		kind = domain.KindFromStreamID(u.StreamID)
	}

	s.mu.Lock()
	if s.tearingDown {
		s.mu.Unlock()
		_ = engine.StopPlay(u.StreamID)
		return
	}
	s.participants[u.StreamID] = &Participant{
		StreamID: u.StreamID,
		UserID:   u.UserID,
		Kind:     kind,
		Stream:   stream,
	}
	s.order = append(s.order, u.StreamID)
	s.mu.Unlock()

	s.logger.Info().Str("stream", string(u.StreamID)).Str("kind", string(kind)).Str("user", u.UserID.String()).Msg("remote stream added")
	s.emit()
}

// removeRemote is a no-op for streams that were never added.
func (s *Session) removeRemote(id domain.StreamID) {
	s.mu.Lock()
	if _, ok := s.participants[id]; !ok || s.tearingDown {
		s.mu.Unlock()
		return
	}
	delete(s.participants, id)
	for i, sid := range s.order {
		if sid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	engine := s.engine
	s.mu.Unlock()

	if err := engine.StopPlay(id); err != nil {
		s.logger.Warn().Err(err).Str("stream", string(id)).Msg("stop play")
	}
	s.logger.Info().Str("stream", string(id)).Msg("remote stream removed")
	s.emit()
}
