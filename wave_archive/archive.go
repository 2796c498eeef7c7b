// Package wave_archive persists captured utterances as WAV files for
// later inspection.
package wave_archive

import (
	"fmt"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/afero"
	"github.com/zenwerk/go-wave"
)

type Archive struct {
	fileSys    afero.Fs
	dir        string
	sampleRate int
	now        func() time.Time
}

type Config struct {
	FileSys    afero.Fs
	Dir        string
	SampleRate int
}

func New(cfg *Config) (*Archive, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	if cfg.FileSys == nil {
		return nil, fmt.Errorf("fileSys is nil")
	}

	if cfg.Dir == "" {
		return nil, fmt.Errorf("dir is empty")
	}

	if cfg.SampleRate == 0 {
		return nil, fmt.Errorf("sampleRate is zero")
	}

	if err := cfg.FileSys.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating archive dir %q: %w", cfg.Dir, err)
	}

	return &Archive{
		fileSys:    cfg.FileSys,
		dir:        cfg.Dir,
		sampleRate: cfg.SampleRate,
		now:        time.Now,
	}, nil
}

// Save writes the samples as one 16-bit mono WAV file and returns its
// path.
func (a *Archive) Save(samples []int16) (string, error) {
	name := filepath.Join(a.dir, "utterance-"+strconv.FormatInt(a.now().UnixNano(), 10)+".wav")

	waveFile, err := a.fileSys.Create(name)
	if err != nil {
		return "", fmt.Errorf("creating archive file %q: %w", name, err)
	}

	waveWriter, err := wave.NewWriter(wave.WriterParam{
		Out:           waveFile,
		Channel:       1,
		SampleRate:    a.sampleRate,
		BitsPerSample: 16,
	})
	if err != nil {
		waveFile.Close()

		return "", fmt.Errorf("creating wave writer for %q: %w", name, err)
	}

	if _, err := waveWriter.WriteSample16(samples); err != nil {
		waveWriter.Close()

		return "", fmt.Errorf("writing samples to %q: %w", name, err)
	}

	if err := waveWriter.Close(); err != nil {
		return "", fmt.Errorf("closing archive file %q: %w", name, err)
	}

	return name, nil
}
