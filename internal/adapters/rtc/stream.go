package rtc

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/sourcegraph/conc"

	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
)

var ErrCaptureUnavailable = errors.New("capture source unavailable")

// FrameFilter rewrites one encoded video frame, e.g. a background blur.
type FrameFilter func(frame []byte) []byte

type CaptureConfig struct {
	AudioFile  string // Ogg/Opus; empty means silence
	VideoFile  string // IVF/VP8; empty means no camera video
	ScreenFile string // IVF/VP8; required for screen streams
}

type localStream struct {
	kind   domain.StreamKind
	label  string
	audio  *webrtc.TrackLocalStaticSample
	video  *webrtc.TrackLocalStaticSample
	filter FrameFilter

	audioMuted atomic.Bool
	videoMuted atomic.Bool
	blur       atomic.Bool

	cancel  context.CancelFunc
	wg      conc.WaitGroup
	ended   chan struct{}
	endOnce sync.Once
	destroy sync.Once
}

func newLocalStream(kind domain.StreamKind, capture CaptureConfig, filter FrameFilter) (*localStream, error) {
	s := &localStream{
		kind:   kind,
		label:  uuid.NewString(),
		filter: filter,
		ended:  make(chan struct{}),
	}

	videoFile := capture.VideoFile
	loopVideo := true
	if kind == domain.StreamScreen {
		if capture.ScreenFile == "" {
			return nil, ErrCaptureUnavailable
		}
		if _, err := os.Stat(capture.ScreenFile); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCaptureUnavailable, err)
		}
		videoFile = capture.ScreenFile
		loopVideo = false
	}

	var err error
	if kind == domain.StreamCamera {
		s.audio, err = webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus}, uuid.NewString(), s.label)
		if err != nil {
			return nil, err
		}
	}
	if videoFile != "" {
		s.video, err = webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}, uuid.NewString(), s.label)
		if err != nil {
			return nil, err
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	if s.audio != nil {
		audioFile := capture.AudioFile
		s.wg.Go(func() {
			if audioFile == "" {
				s.pumpSilence(ctx)
				return
			}
			s.pumpOgg(ctx, audioFile)
		})
	}
	if s.video != nil {
		s.wg.Go(func() {
			s.pumpIVF(ctx, videoFile, loopVideo)
			if !loopVideo && ctx.Err() == nil {
				s.markEnded()
			}
		})
	}
	return s, nil
}

func (s *localStream) Kind() domain.StreamKind { return s.kind }

func (s *localStream) tracks() []webrtc.TrackLocal {
	var out []webrtc.TrackLocal
	if s.audio != nil {
		out = append(out, s.audio)
	}
	if s.video != nil {
		out = append(out, s.video)
	}
	return out
}

func (s *localStream) MuteAudio(muted bool) error {
	if s.audio == nil {
		return ErrCaptureUnavailable
	}
	s.audioMuted.Store(muted)
	return nil
}

func (s *localStream) MuteVideo(muted bool) error {
	s.videoMuted.Store(muted)
	return nil
}

func (s *localStream) SetVirtualBackground(enabled bool) error {
	if s.filter == nil || s.video == nil || s.kind != domain.StreamCamera {
		return core.ErrEffectUnavailable
	}
	s.blur.Store(enabled)
	return nil
}

func (s *localStream) Ended() <-chan struct{} { return s.ended }

func (s *localStream) markEnded() {
	s.endOnce.Do(func() { close(s.ended) })
}

// Destroy stops capture. It does not close Ended: that channel only reports
// sources that stopped on their own.
func (s *localStream) Destroy() error {
	s.destroy.Do(func() {
		s.cancel()
		s.wg.Wait()
	})
	return nil
}

// remoteStream is a played stream; packets counts RTP packets received.
type remoteStream struct {
	id      domain.StreamID
	packets atomic.Uint64
}

func (r *remoteStream) ID() domain.StreamID { return r.id }

// Packets reports how many RTP packets arrived so far.
func (r *remoteStream) Packets() uint64 { return r.packets.Load() }
