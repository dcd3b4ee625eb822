package sfu

import (
	"context"
	"errors"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

var ErrNoLocalDescription = errors.New("no local description")

// Peer is the server side of one publish or play peer connection. ICE is not
// trickled: the answer carries every candidate.
type Peer struct {
	pc     *webrtc.PeerConnection
	id     string
	cancel context.CancelFunc

	onTrack  func(ctx context.Context, track *webrtc.TrackRemote)
	onClosed func()
	once     sync.Once
}

func NewPeer(cfg webrtc.Configuration, id string) (*Peer, error) {
	pc, err := webrtc.NewPeerConnection(cfg)
	if err != nil {
		return nil, err
	}
	return &Peer{pc: pc, id: id}, nil
}

// OnTrack sets the callback for remote tracks. Call before Start.
func (p *Peer) OnTrack(fn func(ctx context.Context, track *webrtc.TrackRemote)) { p.onTrack = fn }

// OnClosed sets the callback for a failed or closed connection. Call before Start.
func (p *Peer) OnClosed(fn func()) { p.onClosed = fn }

func (p *Peer) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	p.pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		log.Debug().Str("module", "sfu").Str("peer", p.id).Str("peer_connection_state", s.String()).Msg("peer state")
		if s == webrtc.PeerConnectionStateFailed || s == webrtc.PeerConnectionStateClosed {
			p.closed()
		}
	})

	p.pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		log.Info().
			Str("module", "sfu").
			Str("peer", p.id).
			Str("kind", track.Kind().String()).
			Str("track_id", track.ID()).
			Msg("OnTrack received")
		if p.onTrack != nil {
			p.onTrack(ctx, track)
		}
	})
}

// AddRecvTransceivers prepares the connection to receive one audio and one
// video track.
func (p *Peer) AddRecvTransceivers() error {
	for _, kind := range []webrtc.RTPCodecType{webrtc.RTPCodecTypeAudio, webrtc.RTPCodecTypeVideo} {
		if _, err := p.pc.AddTransceiverFromKind(kind, webrtc.RTPTransceiverInit{
			Direction: webrtc.RTPTransceiverDirectionRecvonly,
		}); err != nil {
			return err
		}
	}
	return nil
}

// AddLocalTrack attaches track and drains its RTCP so interceptors keep running.
func (p *Peer) AddLocalTrack(track *webrtc.TrackLocalStaticRTP) error {
	sender, err := p.pc.AddTrack(track)
	if err != nil {
		return err
	}
	go func() {
		buf := make([]byte, 1500)
		for {
			if _, _, err := sender.Read(buf); err != nil {
				return
			}
		}
	}()
	return nil
}

// Answer applies the remote offer and returns the complete local answer.
func (p *Peer) Answer(ctx context.Context, offerSDP string) (string, error) {
	offer := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: offerSDP}
	if err := p.pc.SetRemoteDescription(offer); err != nil {
		return "", err
	}
	answer, err := p.pc.CreateAnswer(nil)
	if err != nil {
		return "", err
	}
	gatherComplete := webrtc.GatheringCompletePromise(p.pc)
	if err := p.pc.SetLocalDescription(answer); err != nil {
		return "", err
	}
	select {
	case <-gatherComplete:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	desc := p.pc.LocalDescription()
	if desc == nil {
		return "", ErrNoLocalDescription
	}
	return desc.SDP, nil
}

func (p *Peer) closed() {
	p.once.Do(func() {
		if p.cancel != nil {
			p.cancel()
		}
		if p.onClosed != nil {
			p.onClosed()
		}
	})
}

func (p *Peer) Close() {
	if err := p.pc.Close(); err != nil {
		log.Error().Err(err).Str("module", "sfu").Str("peer", p.id).Msg("close error")
	}
	p.closed()
}
