package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
	"github.com/spf13/afero"

	"assistant-wake-listener/clients/transcript_sink"
	"assistant-wake-listener/config"
	"assistant-wake-listener/control"
	"assistant-wake-listener/events"
	"assistant-wake-listener/feature_tracker"
	"assistant-wake-listener/frame_source"
	"assistant-wake-listener/listener"
	"assistant-wake-listener/metrics"
	"assistant-wake-listener/speech_to_text"
	"assistant-wake-listener/wake_word"
	"assistant-wake-listener/wave_archive"
)

func main() {
	configFlag := flag.String("c", "", "config file (YAML)")
	fileFlag := flag.String("f", "", "WAV file to tail for audio frames")
	modelFlag := flag.String("m", "", "model file for whisper")

	flag.Parse()

	cfg := config.Default()

	if *configFlag != "" {
		loaded, err := config.Load(*configFlag)
		if err != nil {
			fatalf("error loading config: %v", err)
		}

		cfg = loaded
	}

	if *fileFlag != "" {
		cfg.Audio.File = *fileFlag
	}

	if *modelFlag != "" {
		cfg.Whisper.Model = *modelFlag
	}

	if err := cfg.Validate(); err != nil {
		fatalf("error: invalid config: %v", err)
	}

	setupLogging(cfg.Logging.Level)

	if cfg.Whisper.Model == "" {
		fatalf("error: model file not specified")
	}

	model, err := whisper.New(cfg.Whisper.Model)
	if err != nil {
		fatalf("error loading model: %v", err)
	}

	defer model.Close()

	sttEngine, err := speech_to_text.New(&speech_to_text.Config{
		Model: model,
	})
	if err != nil {
		fatalf("error with speech_to_text.New: %v", err)
	}

	source, err := newSource(cfg)
	if err != nil {
		fatalf("error opening frame source: %v", err)
	}

	defer source.Close()

	detector, err := wake_word.NewPhrase(&wake_word.PhraseConfig{
		STTEngine:  sttEngine,
		Phrases:    cfg.WakeWord.Phrases,
		SampleRate: cfg.Audio.SampleRate,
		Language:   cfg.Whisper.Language,
	})
	if err != nil {
		fatalf("error with wake_word.NewPhrase: %v", err)
	}

	tracker, err := feature_tracker.NewTracker(&feature_tracker.TrackerConfig{
		Extractor: feature_tracker.NewExtractor(cfg.Audio.SampleRate),
	})
	if err != nil {
		fatalf("error with feature_tracker.NewTracker: %v", err)
	}

	listenerCfg := &listener.Config{
		Source:              source,
		Detector:            detector,
		Tracker:             tracker,
		STTEngine:           sttEngine,
		Emitter:             events.New(os.Stdout),
		ActivationThreshold: cfg.WakeWord.Threshold,
		SilenceTimeout:      cfg.Capture.SilenceTimeout(),
		MaxUtterance:        cfg.Capture.MaxUtterance(),
		Cooldown:            cfg.Capture.Cooldown(),
		FrameDuration:       cfg.Audio.FrameDuration(),
		SampleRate:          cfg.Audio.SampleRate,
		Language:            cfg.Whisper.Language,
	}

	if cfg.Metrics.Enabled {
		listenerCfg.Metrics = metrics.New()

		go func() {
			if err := http.ListenAndServe(cfg.Metrics.Address, metrics.Handler()); err != nil {
				slog.Error("metrics endpoint failed", "err", err)
			}
		}()
	}

	if cfg.Capture.ArchiveDir != "" {
		archive, err := wave_archive.New(&wave_archive.Config{
			FileSys:    afero.NewOsFs(),
			Dir:        cfg.Capture.ArchiveDir,
			SampleRate: cfg.Audio.SampleRate,
		})
		if err != nil {
			fatalf("error with wave_archive.New: %v", err)
		}

		listenerCfg.Archive = archive
	}

	if cfg.Sink.Endpoint != "" {
		sink, err := transcript_sink.New(&transcript_sink.Config{
			Endpoint: cfg.Sink.Endpoint,
		})
		if err != nil {
			fatalf("error with transcript_sink.New: %v", err)
		}

		listenerCfg.Sink = sink
	}

	detect, err := listener.New(listenerCfg)
	if err != nil {
		fatalf("error with listener.New: %v", err)
	}

	commands, err := control.New(&control.Config{
		In:     os.Stdin,
		Target: source,
	})
	if err != nil {
		fatalf("error with control.New: %v", err)
	}

	go commands.Run()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := detect.Run(ctx); err != nil {
		fatalf("error: %v", err)
	}
}

func newSource(cfg *config.Config) (frame_source.Interface, error) {
	if cfg.Audio.File != "" {
		return frame_source.NewFile(&frame_source.Config{
			FileSys:       afero.NewOsFs(),
			Path:          cfg.Audio.File,
			SampleRate:    cfg.Audio.SampleRate,
			FrameDuration: cfg.Audio.FrameDuration(),
		})
	}

	return frame_source.NewMic(&frame_source.MicConfig{
		SampleRate:    cfg.Audio.SampleRate,
		FrameDuration: cfg.Audio.FrameDuration(),
	})
}

// setupLogging routes diagnostics to stderr so stdout stays a clean
// event stream.
func setupLogging(level string) {
	var logLevel slog.Level

	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	})))
}

func fatalf(format string, args ...any) {
	slog.Error(fmt.Sprintf(format, args...))
	os.Exit(1)
}
