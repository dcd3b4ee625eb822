package sfu

import (
	"context"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Huddle/internal/domain"
)

type relayKey struct {
	stream domain.StreamID
	kind   webrtc.RTPCodecType
}

// RelayManager holds one relay per published stream and media kind.
type RelayManager struct {
	mu     sync.RWMutex
	relays map[relayKey]*Relay
}

func NewRelayManager() *RelayManager {
	return &RelayManager{relays: make(map[relayKey]*Relay)}
}

func (m *RelayManager) getOrCreate(k relayKey) *Relay {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.relays[k]
	if !ok {
		r = NewRelay()
		m.relays[k] = r
	}
	return r
}

// StartRelay feeds track into the relay of stream and starts its loop. A
// previous source of the same kind is replaced.
func (m *RelayManager) StartRelay(ctx context.Context, stream domain.StreamID, track *webrtc.TrackRemote) {
	logger := log.With().
		Str("module", "relay").
		Str("stream", string(stream)).
		Str("kind", track.Kind().String()).
		Logger()

	relay := m.getOrCreate(relayKey{stream, track.Kind()})
	relayCtx, cancel := context.WithCancel(ctx)
	if old := relay.attach(track, cancel); old != nil {
		logger.Info().Msg("replacing relay source")
		old()
	}
	logger.Info().Msg("starting relay loop")
	go relay.loop(relayCtx, track, &logger)
}

// AddSubscriber attaches track to the relay of stream for dst.
func (m *RelayManager) AddSubscriber(stream domain.StreamID, dst SubscriberID, track *webrtc.TrackLocalStaticRTP) {
	relay := m.getOrCreate(relayKey{stream, track.Kind()})
	relay.AddOutTrack(dst, NewOutTrack(track))
}

// RemoveSubscriber detaches dst from every relay of stream.
func (m *RelayManager) RemoveSubscriber(stream domain.StreamID, dst SubscriberID) {
	for _, kind := range []webrtc.RTPCodecType{webrtc.RTPCodecTypeAudio, webrtc.RTPCodecTypeVideo} {
		m.mu.RLock()
		relay, ok := m.relays[relayKey{stream, kind}]
		m.mu.RUnlock()
		if ok {
			relay.markDelete(dst)
		}
	}
}

// StopStream stops the relays of stream and drops them.
func (m *RelayManager) StopStream(stream domain.StreamID) {
	var stopped []*Relay
	m.mu.Lock()
	for k, r := range m.relays {
		if k.stream == stream {
			stopped = append(stopped, r)
			delete(m.relays, k)
		}
	}
	m.mu.Unlock()
	for _, r := range stopped {
		r.stop()
	}
}

// HasSource reports whether a source track of kind is attached to stream.
func (m *RelayManager) HasSource(stream domain.StreamID, kind webrtc.RTPCodecType) bool {
	m.mu.RLock()
	relay, ok := m.relays[relayKey{stream, kind}]
	m.mu.RUnlock()
	return ok && relay.Src() != nil
}

// Subscribers counts the subscribers attached to stream's relay of kind.
func (m *RelayManager) Subscribers(stream domain.StreamID, kind webrtc.RTPCodecType) int {
	m.mu.RLock()
	relay, ok := m.relays[relayKey{stream, kind}]
	m.mu.RUnlock()
	if !ok {
		return 0
	}
	return relay.subscribers()
}
