package frame_source

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/spf13/afero"
)

const (
	// wavHeaderSize is the fixed RIFF/WAVE header prefix the writer
	// emits before the raw PCM data.
	wavHeaderSize = 44

	defaultSampleRate    = 16000
	defaultFrameDuration = time.Millisecond * 80
	defaultPollInterval  = time.Millisecond * 30
)

type fileSource struct {
	fileSys      afero.Fs
	path         string
	frameBytes   int
	pollInterval time.Duration

	restart atomic.Bool

	file     afero.File
	leftover []byte
}

type Config struct {
	FileSys afero.Fs
	Path    string

	// SampleRate and FrameDuration size the frame; defaults are 16 kHz
	// and 80 ms (1280 samples, 2560 bytes).
	SampleRate    int
	FrameDuration time.Duration

	// PollInterval is how long Next backs off when the writer has not
	// caught up yet.
	PollInterval time.Duration
}

// NewFile tails a WAV file that an external writer keeps appending to.
// The file must already exist; a missing source is fatal.
func NewFile(cfg *Config) (Interface, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	if cfg.FileSys == nil {
		return nil, fmt.Errorf("fileSys is nil")
	}

	if cfg.Path == "" {
		return nil, fmt.Errorf("path is empty")
	}

	sampleRate := cfg.SampleRate
	if sampleRate == 0 {
		sampleRate = defaultSampleRate
	}

	frameDuration := cfg.FrameDuration
	if frameDuration == 0 {
		frameDuration = defaultFrameDuration
	}

	pollInterval := cfg.PollInterval
	if pollInterval == 0 {
		pollInterval = defaultPollInterval
	}

	exists, err := afero.Exists(cfg.FileSys, cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("checking audio source %q: %w", cfg.Path, err)
	}

	if !exists {
		return nil, fmt.Errorf("audio source %q does not exist yet", cfg.Path)
	}

	s := &fileSource{
		fileSys:      cfg.FileSys,
		path:         cfg.Path,
		frameBytes:   frameSamples(sampleRate, frameDuration) * 2,
		pollInterval: pollInterval,
	}

	if err := s.open(); err != nil {
		return nil, err
	}

	return s, nil
}

func frameSamples(sampleRate int, frameDuration time.Duration) int {
	return int(int64(sampleRate) * frameDuration.Nanoseconds() / int64(time.Second))
}

// open (re)positions the byte cursor immediately after the WAV header
// and discards any partially accumulated frame bytes.
func (s *fileSource) open() error {
	if s.file != nil {
		if err := s.file.Close(); err != nil {
			slog.Warn("closing audio source before reopen failed", "path", s.path, "err", err)
		}
	}

	file, err := s.fileSys.Open(s.path)
	if err != nil {
		return fmt.Errorf("opening audio source %q: %w", s.path, err)
	}

	if _, err := file.Seek(wavHeaderSize, io.SeekStart); err != nil {
		file.Close()

		return fmt.Errorf("seeking past header of %q: %w", s.path, err)
	}

	s.file = file
	s.leftover = s.leftover[:0]

	return nil
}

func (s *fileSource) RequestRestart() {
	s.restart.Store(true)
}

func (s *fileSource) Next(ctx context.Context) ([]int16, error) {
	for {
		if s.restart.Swap(false) {
			if err := s.open(); err != nil {
				return nil, err
			}

			return nil, ErrRestarted
		}

		if frame, ok := s.readFrame(); ok {
			return frame, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(s.pollInterval):
		}
	}
}

// readFrame attempts to assemble one frame. A short read means the
// writer has not caught up; the bytes read so far are retained for the
// next attempt. Read errors are treated the same way, since the writer
// may merely be paused.
func (s *fileSource) readFrame() ([]int16, bool) {
	need := s.frameBytes - len(s.leftover)

	chunk := make([]byte, need)

	n, err := s.file.Read(chunk)
	if err != nil && err != io.EOF {
		slog.Debug("audio source read failed, retrying", "path", s.path, "err", err)

		return nil, false
	}

	if n > 0 {
		s.leftover = append(s.leftover, chunk[:n]...)
	}

	if len(s.leftover) < s.frameBytes {
		return nil, false
	}

	frame := decodeSamples(s.leftover)
	s.leftover = s.leftover[:0]

	return frame, true
}

func decodeSamples(data []byte) []int16 {
	samples := make([]int16, len(data)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
	}

	return samples
}

func (s *fileSource) Close() error {
	if s.file == nil {
		return nil
	}

	return s.file.Close()
}
