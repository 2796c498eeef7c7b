package frame_source

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/gordonklaus/portaudio"
)

type micSource struct {
	stream       *portaudio.Stream
	in           []int16
	pollInterval time.Duration

	restart atomic.Bool
}

type MicConfig struct {
	SampleRate    int
	FrameDuration time.Duration
}

// NewMic captures frames from the default recording device. It follows
// the same contract as the file source: a restart request stops and
// restarts the stream instead of producing a frame.
func NewMic(cfg *MicConfig) (Interface, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	sampleRate := cfg.SampleRate
	if sampleRate == 0 {
		sampleRate = defaultSampleRate
	}

	frameDuration := cfg.FrameDuration
	if frameDuration == 0 {
		frameDuration = defaultFrameDuration
	}

	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("initializing audio: %w", err)
	}

	in := make([]int16, frameSamples(sampleRate, frameDuration))

	stream, err := portaudio.OpenDefaultStream(1, 0, float64(sampleRate), len(in), in)
	if err != nil {
		portaudio.Terminate()

		return nil, fmt.Errorf("opening recording stream: %w", err)
	}

	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()

		return nil, fmt.Errorf("starting recording stream: %w", err)
	}

	return &micSource{
		stream:       stream,
		in:           in,
		pollInterval: defaultPollInterval,
	}, nil
}

func (s *micSource) RequestRestart() {
	s.restart.Store(true)
}

func (s *micSource) Next(ctx context.Context) ([]int16, error) {
	for {
		if s.restart.Swap(false) {
			if err := s.stream.Stop(); err != nil {
				return nil, fmt.Errorf("stopping recording stream: %w", err)
			}

			if err := s.stream.Start(); err != nil {
				return nil, fmt.Errorf("restarting recording stream: %w", err)
			}

			return nil, ErrRestarted
		}

		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if err := s.stream.Read(); err != nil {
			slog.Debug("recording stream read failed, retrying", "err", err)

			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(s.pollInterval):
			}

			continue
		}

		frame := make([]int16, len(s.in))
		copy(frame, s.in)

		return frame, nil
	}
}

func (s *micSource) Close() error {
	if err := s.stream.Stop(); err != nil {
		slog.Warn("stopping recording stream failed", "err", err)
	}

	err := s.stream.Close()

	if termErr := portaudio.Terminate(); termErr != nil {
		slog.Warn("terminating audio failed", "err", termErr)
	}

	return err
}
