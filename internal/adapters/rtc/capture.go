package rtc

import (
	"context"
	"errors"
	"io"
	"os"
	"time"

	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/pion/webrtc/v4/pkg/media/ivfreader"
	"github.com/pion/webrtc/v4/pkg/media/oggreader"
	"github.com/rs/zerolog/log"
)

const opusFrame = 20 * time.Millisecond

// opusSilence is a single Opus TOC+payload encoding 20ms of silence.
var opusSilence = []byte{0xf8, 0xff, 0xfe}

func (s *localStream) pumpSilence(ctx context.Context) {
	ticker := time.NewTicker(opusFrame)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.audioMuted.Load() {
				continue
			}
			if err := s.audio.WriteSample(media.Sample{Data: opusSilence, Duration: opusFrame}); err != nil {
				log.Debug().Err(err).Str("module", "rtc.capture").Msg("write silence")
			}
		}
	}
}

// pumpOgg plays path in a loop, falling back to silence if it cannot be read.
func (s *localStream) pumpOgg(ctx context.Context, path string) {
	for ctx.Err() == nil {
		pages, err := s.playOgg(ctx, path)
		if errors.Is(err, io.EOF) && pages == 0 {
			err = errors.New("no audio pages")
		}
		if err != nil && !errors.Is(err, io.EOF) && ctx.Err() == nil {
			log.Warn().Err(err).Str("module", "rtc.capture").Str("file", path).Msg("audio source failed, sending silence")
			s.pumpSilence(ctx)
			return
		}
	}
}

func (s *localStream) playOgg(ctx context.Context, path string) (pages int, err error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	ogg, _, err := oggreader.NewWith(f)
	if err != nil {
		return 0, err
	}
	var lastGranule uint64
	ticker := time.NewTicker(opusFrame)
	defer ticker.Stop()
	for {
		page, header, err := ogg.ParseNextPage()
		if err != nil {
			return pages, err
		}
		pages++
		samples := float64(header.GranulePosition - lastGranule)
		lastGranule = header.GranulePosition
		duration := time.Duration((samples/48000)*1000) * time.Millisecond

		select {
		case <-ctx.Done():
			return pages, ctx.Err()
		case <-ticker.C:
		}
		if s.audioMuted.Load() {
			continue
		}
		if err := s.audio.WriteSample(media.Sample{Data: page, Duration: duration}); err != nil {
			log.Debug().Err(err).Str("module", "rtc.capture").Msg("write audio")
		}
	}
}

// pumpIVF plays path, looping when loop is set. It returns when the source is
// exhausted or fails. A file without frames is never looped.
func (s *localStream) pumpIVF(ctx context.Context, path string, loop bool) {
	for ctx.Err() == nil {
		frames, err := s.playIVF(ctx, path)
		if errors.Is(err, io.EOF) && loop && frames > 0 {
			continue
		}
		if err != nil && !errors.Is(err, io.EOF) && ctx.Err() == nil {
			log.Warn().Err(err).Str("module", "rtc.capture").Str("file", path).Msg("video source failed")
		}
		return
	}
}

func (s *localStream) playIVF(ctx context.Context, path string) (frames int, err error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	ivf, header, err := ivfreader.NewWith(f)
	if err != nil {
		return 0, err
	}
	interval := time.Second / 30
	if header.TimebaseDenominator > 0 && header.TimebaseNumerator > 0 {
		interval = time.Duration(float64(time.Second) * float64(header.TimebaseNumerator) / float64(header.TimebaseDenominator))
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		frame, _, err := ivf.ParseNextFrame()
		if err != nil {
			return frames, err
		}
		frames++
		select {
		case <-ctx.Done():
			return frames, ctx.Err()
		case <-ticker.C:
		}
		if s.videoMuted.Load() {
			continue
		}
		if s.blur.Load() && s.filter != nil {
			frame = s.filter(frame)
		}
		if err := s.video.WriteSample(media.Sample{Data: frame, Duration: interval}); err != nil {
			log.Debug().Err(err).Str("module", "rtc.capture").Msg("write video")
		}
	}
}
