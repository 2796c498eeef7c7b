// Package listener drives the capture state machine: it decides, frame
// by frame, whether to score the wake-word model, buffer audio, declare
// end-of-speech, or hand the captured utterance to transcription.
package listener

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-audio/audio"

	"assistant-wake-listener/clients/transcript_sink"
	"assistant-wake-listener/events"
	"assistant-wake-listener/feature_tracker"
	"assistant-wake-listener/frame_source"
	"assistant-wake-listener/metrics"
	"assistant-wake-listener/speech_to_text"
	"assistant-wake-listener/wake_word"
	"assistant-wake-listener/wave_archive"
)

const (
	// bufferSafetyMargin forces end-of-utterance this many frames before
	// the capture buffer would overflow.
	bufferSafetyMargin = 10

	// debugCadence is how many listening frames pass between audio_debug
	// events (~1 s of 80 ms frames).
	debugCadence = 12

	defaultActivationThreshold = 0.5
	sinkTimeout                = time.Second * 10
)

type voiceImpl struct {
	source    frame_source.Interface
	detector  wake_word.Detector
	tracker   *feature_tracker.Tracker
	sttEngine speech_to_text.Interface
	emitter   *events.Emitter
	stats     *metrics.Metrics
	archive   *wave_archive.Archive
	sink      transcript_sink.Interface

	activationThreshold float64
	silenceTimeout      time.Duration
	maxUtterance        time.Duration
	cooldown            time.Duration
	sampleRate          int
	language            string
	bufferCap           int

	now func() time.Time

	state         State
	buffer        [][]int16
	silenceStart  time.Time
	lastSpeech    time.Time
	cooldownUntil time.Time
	frameCount    int
}

type Config struct {
	Source    frame_source.Interface
	Detector  wake_word.Detector
	Tracker   *feature_tracker.Tracker
	STTEngine speech_to_text.Interface
	Emitter   *events.Emitter

	// Metrics, Archive and Sink are optional.
	Metrics *metrics.Metrics
	Archive *wave_archive.Archive
	Sink    transcript_sink.Interface

	// ActivationThreshold defaults to 0.5; a wake-word score at or above
	// it triggers capture.
	ActivationThreshold float64
	SilenceTimeout      time.Duration
	MaxUtterance        time.Duration
	Cooldown            time.Duration
	FrameDuration       time.Duration
	SampleRate          int
	Language            string

	// Clock overrides the wall clock in tests.
	Clock func() time.Time
}

func New(cfg *Config) (Interface, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	if cfg.Source == nil {
		return nil, fmt.Errorf("source is nil")
	}

	if cfg.Detector == nil {
		return nil, fmt.Errorf("detector is nil")
	}

	if cfg.Tracker == nil {
		return nil, fmt.Errorf("tracker is nil")
	}

	if cfg.STTEngine == nil {
		return nil, fmt.Errorf("sttEngine is nil")
	}

	if cfg.Emitter == nil {
		return nil, fmt.Errorf("emitter is nil")
	}

	activationThreshold := cfg.ActivationThreshold
	if activationThreshold == 0 {
		activationThreshold = defaultActivationThreshold
	}

	silenceTimeout := cfg.SilenceTimeout
	if silenceTimeout == 0 {
		silenceTimeout = time.Second
	}

	maxUtterance := cfg.MaxUtterance
	if maxUtterance == 0 {
		maxUtterance = time.Second * 10
	}

	frameDuration := cfg.FrameDuration
	if frameDuration == 0 {
		frameDuration = time.Millisecond * 80
	}

	sampleRate := cfg.SampleRate
	if sampleRate == 0 {
		sampleRate = 16000
	}

	now := cfg.Clock
	if now == nil {
		now = time.Now
	}

	bufferCap := int(maxUtterance / frameDuration)
	if bufferCap <= bufferSafetyMargin {
		return nil, fmt.Errorf("max utterance %v holds only %d frames of %v; need more than %d",
			maxUtterance, bufferCap, frameDuration, bufferSafetyMargin)
	}

	return &voiceImpl{
		source:              cfg.Source,
		detector:            cfg.Detector,
		tracker:             cfg.Tracker,
		sttEngine:           cfg.STTEngine,
		emitter:             cfg.Emitter,
		stats:               cfg.Metrics,
		archive:             cfg.Archive,
		sink:                cfg.Sink,
		activationThreshold: activationThreshold,
		silenceTimeout:      silenceTimeout,
		maxUtterance:        maxUtterance,
		cooldown:            cfg.Cooldown,
		sampleRate:          sampleRate,
		language:            cfg.Language,
		bufferCap:           bufferCap,
		now:                 now,
		state:               StateWakeWordDetection,
		buffer:              make([][]int16, 0, bufferCap),
	}, nil
}

func (v *voiceImpl) State() State {
	return v.state
}

func (v *voiceImpl) Run(ctx context.Context) error {
	for {
		frame, err := v.source.Next(ctx)

		switch {
		case errors.Is(err, frame_source.ErrRestarted):
			v.stats.RecordSourceRestart()

			if err := v.emitter.Info("File reader restarted"); err != nil {
				return err
			}

			if err := v.emitter.ListeningStart("Resumed listening after file restart"); err != nil {
				return err
			}

			continue
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return nil
		case err != nil:
			return fmt.Errorf("reading frame: %w", err)
		}

		v.stats.RecordFrameProduced()

		if err := v.handleFrame(frame); err != nil {
			return err
		}
	}
}

func (v *voiceImpl) handleFrame(frame []int16) error {
	switch v.state {
	case StateWakeWordDetection:
		return v.detectWakeWord(frame)
	case StateListeningForSpeech:
		return v.captureFrame(frame)
	}

	return nil
}

func (v *voiceImpl) detectWakeWord(frame []int16) error {
	// The model sees every frame, even during cooldown, so its internal
	// temporal state tracks the stream.
	scores := v.detector.Predict(frame)

	label, score, triggered := v.topActivation(scores)

	if v.inCooldown() {
		if triggered {
			v.stats.RecordSuppressedDetection()
		}

		return nil
	}

	if !triggered {
		return nil
	}

	v.startListening()

	if err := v.emitter.ListeningStart(""); err != nil {
		return err
	}

	if err := v.emitter.WakeWord(label, score); err != nil {
		return err
	}

	v.stats.RecordWakeWordDetection()

	slog.Debug("wake word detected", "label", label, "score", score)

	return nil
}

// topActivation returns the highest-scoring label at or above the
// activation threshold. Ties break toward the smaller label so the
// reported trigger never depends on map iteration order.
func (v *voiceImpl) topActivation(scores map[string]float64) (string, float64, bool) {
	var (
		bestLabel string
		bestScore float64
		found     bool
	)

	for label, score := range scores {
		if score < v.activationThreshold {
			continue
		}

		if !found || score > bestScore || (score == bestScore && label < bestLabel) {
			bestLabel = label
			bestScore = score
			found = true
		}
	}

	return bestLabel, bestScore, found
}

func (v *voiceImpl) startListening() {
	v.state = StateListeningForSpeech
	v.buffer = v.buffer[:0]
	v.silenceStart = time.Time{}
	v.lastSpeech = v.now()
}

func (v *voiceImpl) inCooldown() bool {
	return v.now().Before(v.cooldownUntil)
}

func (v *voiceImpl) captureFrame(frame []int16) error {
	v.buffer = append(v.buffer, frame)
	v.stats.SetBufferFrames(len(v.buffer))

	features, verdict := v.tracker.Observe(frame)
	now := v.now()

	v.frameCount++
	if v.frameCount%debugCadence == 0 {
		message := fmt.Sprintf("RMS: %.3f (thresh: %.3f), ZCR: %.3f, SC: %.0fHz, Silent: %t",
			features.RMS, verdict.EnergyThreshold, features.ZCR, features.SpectralCentroid, verdict.Silent)

		if err := v.emitter.AudioDebug(message); err != nil {
			return err
		}
	}

	if verdict.Silent {
		if v.silenceStart.IsZero() {
			v.silenceStart = now
		} else if now.Sub(v.silenceStart) > v.silenceTimeout {
			message := fmt.Sprintf("Silence detected after %dms (RMS: %.3f < %.3f, ZCR: %.3f), starting transcription...",
				v.silenceTimeout.Milliseconds(), features.RMS, verdict.EnergyThreshold, features.ZCR)

			if err := v.emitter.SilenceDetected(message); err != nil {
				return err
			}

			return v.finishUtterance()
		}
	} else {
		v.silenceStart = time.Time{}
		v.lastSpeech = now
	}

	if len(v.buffer) >= v.bufferCap-bufferSafetyMargin {
		message := fmt.Sprintf("Max buffer size reached (%ds), starting transcription...",
			int(v.maxUtterance.Seconds()))

		if err := v.emitter.MaxBufferReached(message); err != nil {
			return err
		}

		return v.finishUtterance()
	}

	return nil
}

// finishUtterance transcribes the capture buffer and returns the state
// machine to wake-word detection. Transcription faults become error
// events, never pipeline failures.
func (v *voiceImpl) finishUtterance() error {
	if len(v.buffer) == 0 {
		v.state = StateWakeWordDetection

		return nil
	}

	v.state = StateProcessingSpeech

	samples := v.flattenBuffer()
	audioDuration := time.Duration(len(samples)) * time.Second / time.Duration(v.sampleRate)

	v.archiveCapture(samples)

	data := make([]int, len(samples))
	for i, s := range samples {
		data[i] = int(s)
	}

	buf := &audio.IntBuffer{
		Format: &audio.Format{
			NumChannels: 1,
			SampleRate:  v.sampleRate,
		},
		Data:           data,
		SourceBitDepth: 16,
	}

	v.stats.RecordUtterance()

	start := v.now()

	segments, err := v.sttEngine.Process(buf, speech_to_text.Options{
		Language:   v.language,
		VADFilter:  true,
		MinSilence: v.silenceTimeout,
	})

	processingTime := v.now().Sub(start)

	var emitErr error

	if err != nil {
		v.stats.RecordTranscriptionFailure(processingTime.Seconds())

		emitErr = v.emitter.Error(fmt.Sprintf("Transcription failed: %v", err), processingTime)
	} else {
		text := speech_to_text.JoinText(segments)

		v.stats.RecordTranscriptionSuccess(processingTime.Seconds())

		emitErr = v.emitter.Transcription(text, audioDuration, processingTime)

		v.forwardTranscript(text)
	}

	if emitErr != nil {
		return emitErr
	}

	v.buffer = v.buffer[:0]
	v.stats.SetBufferFrames(0)
	v.silenceStart = time.Time{}
	v.frameCount = 0
	v.tracker.Reset()
	v.cooldownUntil = v.now().Add(v.cooldown)
	v.state = StateWakeWordDetection

	return v.emitter.Info(fmt.Sprintf("Starting %.1fs cooldown to prevent false wake word triggers",
		v.cooldown.Seconds()))
}

func (v *voiceImpl) flattenBuffer() []int16 {
	total := 0
	for _, frame := range v.buffer {
		total += len(frame)
	}

	samples := make([]int16, 0, total)
	for _, frame := range v.buffer {
		samples = append(samples, frame...)
	}

	return samples
}

func (v *voiceImpl) archiveCapture(samples []int16) {
	if v.archive == nil {
		return
	}

	name, err := v.archive.Save(samples)
	if err != nil {
		slog.Warn("archiving capture failed", "err", err)

		return
	}

	slog.Debug("capture archived", "file", name)
}

func (v *voiceImpl) forwardTranscript(text string) {
	if v.sink == nil || text == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), sinkTimeout)
	defer cancel()

	if err := v.sink.Send(ctx, text); err != nil {
		slog.Warn("forwarding transcript failed", "err", err)
	}
}
