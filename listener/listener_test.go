package listener

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-audio/audio"
	"github.com/spf13/afero"

	"assistant-wake-listener/clients/transcript_sink"
	"assistant-wake-listener/events"
	"assistant-wake-listener/feature_tracker"
	"assistant-wake-listener/frame_source"
	"assistant-wake-listener/speech_to_text"
	"assistant-wake-listener/wake_word/mock"
	"assistant-wake-listener/wave_archive"
)

const (
	testFrameDuration = time.Millisecond * 80
	testSampleRate    = 16000
	frameSamples      = 1280
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time {
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.t = c.t.Add(d)
}

// levelExtractor derives canned features from the frame's first sample,
// so tests can script speech and silence by frame content.
type levelExtractor struct{}

func (levelExtractor) Extract(samples []float64) feature_tracker.Features {
	if samples[0] > 0.1 {
		return feature_tracker.Features{RMS: 0.5, SpectralCentroid: 1500, ZCR: 0.05}
	}

	return feature_tracker.Features{RMS: 0.001, SpectralCentroid: 100, ZCR: 0.01}
}

type fakeSTT struct {
	segments []speech_to_text.Segment
	err      error
	calls    int
	lastBuf  *audio.IntBuffer
	lastOpts speech_to_text.Options
}

func (f *fakeSTT) Process(buf *audio.IntBuffer, opts speech_to_text.Options) ([]speech_to_text.Segment, error) {
	f.calls++
	f.lastBuf = buf
	f.lastOpts = opts

	if f.err != nil {
		return nil, f.err
	}

	return f.segments, nil
}

type fixture struct {
	impl     *voiceImpl
	detector *mock.Detector
	stt      *fakeSTT
	out      *bytes.Buffer
	clock    *fakeClock
}

func newFixture(t *testing.T, mutate func(*Config)) *fixture {
	t.Helper()

	clock := &fakeClock{t: time.Unix(1700000000, 0)}
	out := &bytes.Buffer{}
	detector := &mock.Detector{}
	sttEngine := &fakeSTT{
		segments: []speech_to_text.Segment{{Text: " turn on the lights "}},
	}

	tracker, err := feature_tracker.NewTracker(&feature_tracker.TrackerConfig{
		Extractor: levelExtractor{},
	})
	if err != nil {
		t.Fatalf("NewTracker: %v", err)
	}

	cfg := &Config{
		Source:              &scriptedSource{},
		Detector:            detector,
		Tracker:             tracker,
		STTEngine:           sttEngine,
		Emitter:             events.NewWithClock(out, clock.Now),
		ActivationThreshold: 0.5,
		SilenceTimeout:      time.Second,
		MaxUtterance:        time.Second * 10,
		Cooldown:            time.Second,
		FrameDuration:       testFrameDuration,
		SampleRate:          testSampleRate,
		Language:            "en",
		Clock:               clock.Now,
	}

	if mutate != nil {
		mutate(cfg)
	}

	l, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	return &fixture{
		impl:     l.(*voiceImpl),
		detector: detector,
		stt:      sttEngine,
		out:      out,
		clock:    clock,
	}
}

func speechFrame() []int16 {
	frame := make([]int16, frameSamples)
	for i := range frame {
		frame[i] = 16000
	}

	return frame
}

func silentFrame() []int16 {
	return make([]int16, frameSamples)
}

// feed advances the clock by one frame duration and handles the frame,
// simulating real-time arrival.
func (f *fixture) feed(t *testing.T, frame []int16) {
	t.Helper()

	f.clock.advance(testFrameDuration)

	if err := f.impl.handleFrame(frame); err != nil {
		t.Fatalf("handleFrame: %v", err)
	}
}

func (f *fixture) trigger(t *testing.T) {
	t.Helper()

	f.detector.Scores = append(f.detector.Scores, map[string]float64{"hey sumika": 0.9})
	f.feed(t, speechFrame())

	if f.impl.State() != StateListeningForSpeech {
		t.Fatalf("expected listening state after trigger, got %v", f.impl.State())
	}
}

func (f *fixture) records(t *testing.T) []map[string]any {
	t.Helper()

	raw := strings.TrimSpace(f.out.String())
	if raw == "" {
		return nil
	}

	var decoded []map[string]any

	for _, line := range strings.Split(raw, "\n") {
		var record map[string]any
		if err := json.Unmarshal([]byte(line), &record); err != nil {
			t.Fatalf("invalid JSON line %q: %v", line, err)
		}

		decoded = append(decoded, record)
	}

	return decoded
}

func (f *fixture) recordsOfType(t *testing.T, eventType string) []map[string]any {
	t.Helper()

	var matched []map[string]any

	for _, record := range f.records(t) {
		if record["type"] == eventType {
			matched = append(matched, record)
		}
	}

	return matched
}

func TestWakeWordDetection(t *testing.T) {
	t.Run("activation emits listening_start then wakeword", func(t *testing.T) {
		f := newFixture(t, nil)

		f.detector.Scores = []map[string]float64{{"hey sumika": 0.67891}}
		f.feed(t, speechFrame())

		records := f.records(t)
		if len(records) != 2 {
			t.Fatalf("expected 2 events, got %d: %v", len(records), records)
		}

		if records[0]["type"] != events.TypeListeningStart {
			t.Errorf("expected listening_start first, got %v", records[0]["type"])
		}

		if records[1]["type"] != events.TypeWakeWord || records[1]["label"] != "hey sumika" {
			t.Errorf("unexpected wakeword event: %v", records[1])
		}

		if records[1]["score"] != 0.679 {
			t.Errorf("expected rounded score 0.679, got %v", records[1]["score"])
		}
	})

	t.Run("score exactly at the threshold triggers", func(t *testing.T) {
		f := newFixture(t, nil)

		f.detector.Scores = []map[string]float64{{"hey sumika": 0.5}}
		f.feed(t, speechFrame())

		if f.impl.State() != StateListeningForSpeech {
			t.Error("expected inclusive threshold boundary to trigger")
		}
	})

	t.Run("score below the threshold does not trigger", func(t *testing.T) {
		f := newFixture(t, nil)

		f.detector.Scores = []map[string]float64{{"hey sumika": 0.499}}
		f.feed(t, speechFrame())

		if f.impl.State() != StateWakeWordDetection {
			t.Error("expected no trigger below the threshold")
		}

		if len(f.records(t)) != 0 {
			t.Errorf("expected no events, got %v", f.records(t))
		}
	})

	t.Run("multiple activations report only the highest score", func(t *testing.T) {
		f := newFixture(t, nil)

		f.detector.Scores = []map[string]float64{{
			"hey sumika": 0.7,
			"ok sumika":  0.9,
			"aaa first":  0.7,
		}}
		f.feed(t, speechFrame())

		wakewords := f.recordsOfType(t, events.TypeWakeWord)
		if len(wakewords) != 1 {
			t.Fatalf("expected exactly one wakeword event, got %d", len(wakewords))
		}

		if wakewords[0]["label"] != "ok sumika" {
			t.Errorf("expected the highest-scoring label, got %v", wakewords[0]["label"])
		}
	})

	t.Run("equal scores break toward the smaller label", func(t *testing.T) {
		f := newFixture(t, nil)

		f.detector.Scores = []map[string]float64{{
			"zzz phrase": 0.8,
			"aaa phrase": 0.8,
		}}
		f.feed(t, speechFrame())

		wakewords := f.recordsOfType(t, events.TypeWakeWord)
		if len(wakewords) != 1 || wakewords[0]["label"] != "aaa phrase" {
			t.Errorf("expected deterministic tie-break, got %v", wakewords)
		}
	})
}

func TestSilenceEndOfSpeech(t *testing.T) {
	t.Run("utterance ends exactly when silence first exceeds the timeout", func(t *testing.T) {
		f := newFixture(t, nil)
		f.trigger(t)

		for i := 0; i < 5; i++ {
			f.feed(t, speechFrame())
		}

		// 13 silent frames accumulate 960 ms of silence after the first:
		// not yet past the 1000 ms timeout
		for i := 0; i < 13; i++ {
			f.feed(t, silentFrame())
		}

		if len(f.recordsOfType(t, events.TypeTranscription)) != 0 {
			t.Fatal("utterance ended before the silence timeout elapsed")
		}

		// the 14th silent frame is the first past the timeout
		f.feed(t, silentFrame())

		if len(f.recordsOfType(t, events.TypeTranscription)) != 1 {
			t.Fatal("expected the utterance to end one frame after the timeout elapsed")
		}

		if f.impl.State() != StateWakeWordDetection {
			t.Errorf("expected wake detection state after the utterance, got %v", f.impl.State())
		}
	})

	t.Run("speech resets the silence clock", func(t *testing.T) {
		f := newFixture(t, nil)
		f.trigger(t)

		for i := 0; i < 10; i++ {
			f.feed(t, silentFrame())
		}

		f.feed(t, speechFrame())

		for i := 0; i < 13; i++ {
			f.feed(t, silentFrame())
		}

		if len(f.recordsOfType(t, events.TypeTranscription)) != 0 {
			t.Error("expected the silence clock to restart after speech")
		}
	})

	t.Run("captured speech followed by silence transcribes once", func(t *testing.T) {
		archiveFs := afero.NewMemMapFs()

		archive, err := wave_archive.New(&wave_archive.Config{
			FileSys:    archiveFs,
			Dir:        "captures",
			SampleRate: testSampleRate,
		})
		if err != nil {
			t.Fatalf("wave_archive.New: %v", err)
		}

		var forwarded string
		server := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
			var body map[string]string
			if err := json.NewDecoder(r.Body).Decode(&body); err == nil {
				forwarded = body["text"]
			}
		}))
		defer server.Close()

		sink, err := transcript_sink.New(&transcript_sink.Config{Endpoint: server.URL})
		if err != nil {
			t.Fatalf("transcript_sink.New: %v", err)
		}

		f := newFixture(t, func(cfg *Config) {
			cfg.Archive = archive
			cfg.Sink = sink
		})
		f.trigger(t)

		// ~5 s of speech, then silence until end-of-utterance
		for i := 0; i < 63; i++ {
			f.feed(t, speechFrame())
		}

		for i := 0; i < 14; i++ {
			f.feed(t, silentFrame())
		}

		silences := f.recordsOfType(t, events.TypeSilenceDetected)
		if len(silences) != 1 {
			t.Fatalf("expected one silence_detected event, got %d", len(silences))
		}

		transcriptions := f.recordsOfType(t, events.TypeTranscription)
		if len(transcriptions) != 1 {
			t.Fatalf("expected exactly one transcription event, got %d", len(transcriptions))
		}

		// 63 speech + 14 silent frames of 80 ms: 77 x 1280 samples
		if transcriptions[0]["audio_duration"] != 6.16 {
			t.Errorf("expected audio_duration 6.16, got %v", transcriptions[0]["audio_duration"])
		}

		if transcriptions[0]["text"] != "turn on the lights" {
			t.Errorf("expected joined trimmed text, got %v", transcriptions[0]["text"])
		}

		if !f.stt.lastOpts.VADFilter || f.stt.lastOpts.MinSilence != time.Second || f.stt.lastOpts.Language != "en" {
			t.Errorf("unexpected transcription options: %+v", f.stt.lastOpts)
		}

		if len(f.stt.lastBuf.Data) != 77*frameSamples {
			t.Errorf("expected %d buffered samples, got %d", 77*frameSamples, len(f.stt.lastBuf.Data))
		}

		// cooldown info follows the transcription event
		records := f.records(t)
		last := records[len(records)-1]
		if last["type"] != events.TypeInfo || !strings.Contains(last["message"].(string), "cooldown") {
			t.Errorf("expected cooldown info event last, got %v", last)
		}

		if forwarded != "turn on the lights" {
			t.Errorf("expected transcript forwarded to the sink, got %q", forwarded)
		}

		archived, err := afero.ReadDir(archiveFs, "captures")
		if err != nil || len(archived) != 1 {
			t.Errorf("expected one archived capture, got %v (%v)", archived, err)
		}
	})
}

func TestMaxBufferReached(t *testing.T) {
	f := newFixture(t, nil)
	f.trigger(t)

	// 10.5 s of continuous speech; capacity is 125 frames with a
	// 10-frame safety margin
	maxLen := 0
	for i := 0; i < 131; i++ {
		f.feed(t, speechFrame())

		if len(f.impl.buffer) > maxLen {
			maxLen = len(f.impl.buffer)
		}
	}

	if maxLen > 125 {
		t.Errorf("capture buffer exceeded its capacity: %d frames", maxLen)
	}

	// the flush fires the moment the buffer reaches capacity minus the
	// safety margin, so exactly 115 frames reach the transcriber
	if len(f.stt.lastBuf.Data) != 115*frameSamples {
		t.Errorf("expected %d flushed samples, got %d", 115*frameSamples, len(f.stt.lastBuf.Data))
	}

	if len(f.recordsOfType(t, events.TypeMaxBufferReached)) != 1 {
		t.Fatal("expected exactly one max_buffer_reached event")
	}

	if len(f.recordsOfType(t, events.TypeTranscription)) != 1 {
		t.Fatal("expected exactly one transcription event")
	}

	// no second buffering cycle without a fresh trigger
	if f.impl.State() != StateWakeWordDetection {
		t.Errorf("expected wake detection state, got %v", f.impl.State())
	}

	if len(f.impl.buffer) != 0 {
		t.Errorf("expected empty buffer after the flush, got %d frames", len(f.impl.buffer))
	}
}

func TestCooldown(t *testing.T) {
	t.Run("detections are suppressed for the full cooldown window", func(t *testing.T) {
		f := newFixture(t, nil)
		f.trigger(t)

		f.feed(t, speechFrame())
		for i := 0; i < 14; i++ {
			f.feed(t, silentFrame())
		}

		if len(f.recordsOfType(t, events.TypeTranscription)) != 1 {
			t.Fatal("expected a completed utterance before testing cooldown")
		}

		if got := f.impl.cooldownUntil.Sub(f.clock.t); got != time.Second {
			t.Errorf("expected cooldown active for exactly 1s from the reset, got %v", got)
		}

		callsBefore := f.detector.Calls

		// 12 frames cover 960 ms: still inside the cooldown window
		for i := 0; i < 12; i++ {
			f.detector.Scores = append(f.detector.Scores, map[string]float64{"hey sumika": 0.99})
			f.feed(t, speechFrame())
		}

		if len(f.recordsOfType(t, events.TypeWakeWord)) != 1 {
			t.Error("expected no wakeword events during cooldown")
		}

		if f.detector.Calls != callsBefore+12 {
			t.Error("expected the model to keep receiving frames during cooldown")
		}

		// the next frame is past the window
		f.detector.Scores = append(f.detector.Scores, map[string]float64{"hey sumika": 0.99})
		f.feed(t, speechFrame())

		if len(f.recordsOfType(t, events.TypeWakeWord)) != 2 {
			t.Error("expected detection to resume once the cooldown expired")
		}
	})
}

func TestTranscriptionFailure(t *testing.T) {
	f := newFixture(t, nil)
	f.stt.err = errors.New("model exploded")

	f.trigger(t)

	f.feed(t, speechFrame())
	for i := 0; i < 14; i++ {
		f.feed(t, silentFrame())
	}

	errorEvents := f.recordsOfType(t, events.TypeError)
	if len(errorEvents) != 1 {
		t.Fatalf("expected exactly one error event, got %d", len(errorEvents))
	}

	if errorEvents[0]["message"] != "Transcription failed: model exploded" {
		t.Errorf("unexpected error message: %v", errorEvents[0]["message"])
	}

	if _, ok := errorEvents[0]["processing_time"]; !ok {
		t.Error("expected processing_time on the error event")
	}

	if len(f.recordsOfType(t, events.TypeTranscription)) != 0 {
		t.Error("expected no transcription event on failure")
	}

	if len(f.impl.buffer) != 0 {
		t.Error("expected the buffer cleared after a failed transcription")
	}

	if f.impl.State() != StateWakeWordDetection {
		t.Errorf("expected wake detection state, got %v", f.impl.State())
	}

	if !f.impl.inCooldown() {
		t.Error("expected the cooldown window to start after a failed transcription")
	}
}

func TestEmptyBufferFinish(t *testing.T) {
	f := newFixture(t, nil)

	f.impl.state = StateListeningForSpeech

	if err := f.impl.finishUtterance(); err != nil {
		t.Fatalf("finishUtterance: %v", err)
	}

	if f.impl.State() != StateWakeWordDetection {
		t.Errorf("expected wake detection state, got %v", f.impl.State())
	}

	if len(f.records(t)) != 0 {
		t.Errorf("expected no events for an empty capture, got %v", f.records(t))
	}

	if f.impl.inCooldown() {
		t.Error("expected no cooldown after an empty capture")
	}
}

func TestAudioDebugCadence(t *testing.T) {
	f := newFixture(t, nil)
	f.trigger(t)

	for i := 0; i < 24; i++ {
		f.feed(t, speechFrame())
	}

	if got := len(f.recordsOfType(t, events.TypeAudioDebug)); got != 2 {
		t.Errorf("expected 2 audio_debug events over 24 frames, got %d", got)
	}
}

type sourceResult struct {
	frame []int16
	err   error
}

type scriptedSource struct {
	results []sourceResult
}

func (s *scriptedSource) Next(_ context.Context) ([]int16, error) {
	if len(s.results) == 0 {
		return nil, context.Canceled
	}

	result := s.results[0]
	s.results = s.results[1:]

	return result.frame, result.err
}

func (s *scriptedSource) RequestRestart() {}

func (s *scriptedSource) Close() error {
	return nil
}

func TestRun(t *testing.T) {
	t.Run("restart surfaces as an info and listening_start pair", func(t *testing.T) {
		source := &scriptedSource{
			results: []sourceResult{
				{err: frame_source.ErrRestarted},
				{frame: silentFrame()},
			},
		}

		f := newFixture(t, func(cfg *Config) {
			cfg.Source = source
		})

		if err := f.impl.Run(context.Background()); err != nil {
			t.Fatalf("Run: %v", err)
		}

		records := f.records(t)
		if len(records) != 2 {
			t.Fatalf("expected 2 events, got %d: %v", len(records), records)
		}

		if records[0]["type"] != events.TypeInfo || records[0]["message"] != "File reader restarted" {
			t.Errorf("unexpected restart info event: %v", records[0])
		}

		if records[1]["type"] != events.TypeListeningStart ||
			records[1]["message"] != "Resumed listening after file restart" {
			t.Errorf("unexpected resync event: %v", records[1])
		}
	})

	t.Run("source faults other than cancellation are fatal", func(t *testing.T) {
		source := &scriptedSource{
			results: []sourceResult{{err: errors.New("device gone")}},
		}

		f := newFixture(t, func(cfg *Config) {
			cfg.Source = source
		})

		if err := f.impl.Run(context.Background()); err == nil {
			t.Error("expected a fatal error from the source fault")
		}
	})
}
