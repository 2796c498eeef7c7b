package wake_word

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-audio/audio"

	"assistant-wake-listener/ring_buffer"
	"assistant-wake-listener/speech_to_text"
)

const (
	// defaultWindowFrames is how many frames of recent audio the
	// detector keeps (~2 s of 80 ms frames).
	defaultWindowFrames = 25
	// defaultStride is how often the window is transcribed and scored
	// (~once per second of 80 ms frames).
	defaultStride = 12
)

// phraseDetector scores frames by transcribing a rolling window of
// recent audio and matching the configured phrases against the text.
// A matched phrase scores 1, everything else 0.
type phraseDetector struct {
	sttEngine    speech_to_text.Interface
	phrases      []string
	sampleRate   int
	windowFrames int
	stride       int
	language     string

	window     *ring_buffer.Window[[]int16]
	frameCount int
}

type PhraseConfig struct {
	STTEngine  speech_to_text.Interface
	Phrases    []string
	SampleRate int
	Language   string

	// WindowFrames and Stride default to ~2 s of context scored ~once
	// per second.
	WindowFrames int
	Stride       int
}

func NewPhrase(cfg *PhraseConfig) (Detector, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	if cfg.STTEngine == nil {
		return nil, fmt.Errorf("sttEngine is nil")
	}

	if len(cfg.Phrases) == 0 {
		return nil, fmt.Errorf("no wake phrases configured")
	}

	if cfg.SampleRate == 0 {
		return nil, fmt.Errorf("sampleRate is zero")
	}

	windowFrames := cfg.WindowFrames
	if windowFrames == 0 {
		windowFrames = defaultWindowFrames
	}

	stride := cfg.Stride
	if stride == 0 {
		stride = defaultStride
	}

	phrases := make([]string, len(cfg.Phrases))
	for i, p := range cfg.Phrases {
		phrases[i] = normalizeText(p)
	}

	return &phraseDetector{
		sttEngine:    cfg.STTEngine,
		phrases:      phrases,
		sampleRate:   cfg.SampleRate,
		windowFrames: windowFrames,
		stride:       stride,
		language:     cfg.Language,
		window:       ring_buffer.New[[]int16](windowFrames),
	}, nil
}

func (d *phraseDetector) Predict(frame []int16) map[string]float64 {
	d.window.Push(frame)
	d.frameCount++

	scores := make(map[string]float64, len(d.phrases))
	for _, p := range d.phrases {
		scores[p] = 0
	}

	if d.frameCount%d.stride != 0 || d.window.Len() < d.windowFrames {
		return scores
	}

	segments, err := d.sttEngine.Process(d.windowBuffer(), speech_to_text.Options{
		Language: d.language,
	})
	if err != nil {
		slog.Debug("wake phrase scoring failed", "err", err)

		return scores
	}

	text := normalizeText(speech_to_text.JoinText(segments))

	for _, p := range d.phrases {
		if strings.Contains(text, p) {
			scores[p] = 1
		}
	}

	return scores
}

func (d *phraseDetector) windowBuffer() *audio.IntBuffer {
	frames := d.window.Values()

	total := 0
	for _, frame := range frames {
		total += len(frame)
	}

	data := make([]int, 0, total)
	for _, frame := range frames {
		for _, s := range frame {
			data = append(data, int(s))
		}
	}

	return &audio.IntBuffer{
		Format: &audio.Format{
			NumChannels: 1,
			SampleRate:  d.sampleRate,
		},
		Data:           data,
		SourceBitDepth: 16,
	}
}

// normalizeText keeps only lowercase alphanumerics and spaces, to avoid
// false negatives from punctuation in the transcribed text.
func normalizeText(text string) string {
	return strings.Map(func(r rune) rune {
		if r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == ' ' {
			return r
		}

		if r >= 'A' && r <= 'Z' {
			return r + ('a' - 'A')
		}

		return -1
	}, text)
}
