package speech_to_text

import (
	"fmt"
	"io"

	"github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
	"github.com/go-audio/audio"
)

type sttImpl struct {
	model whisper.Model
}

type Config struct {
	Model whisper.Model
}

func New(cfg *Config) (Interface, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	if cfg.Model == nil {
		return nil, fmt.Errorf("model is nil")
	}

	return &sttImpl{
		model: cfg.Model,
	}, nil
}

func (stt *sttImpl) Process(buf *audio.IntBuffer, opts Options) ([]Segment, error) {
	// Create processing context
	context, err := stt.model.NewContext()
	if err != nil {
		return nil, err
	}

	if opts.Language != "" {
		if err := context.SetLanguage(opts.Language); err != nil {
			return nil, err
		}
	}

	// whisper.cpp performs no pre-decoding VAD, so opts.VADFilter and
	// opts.MinSilence have no effect here.

	data := normalize(buf)

	var cb whisper.SegmentCallback

	err = context.Process(data, cb)
	if err != nil {
		return nil, err
	}

	return collectSegments(context)
}

// normalize converts the integer PCM buffer to floating amplitude in
// [-1, 1) as the model expects.
func normalize(buf *audio.IntBuffer) []float32 {
	data := make([]float32, len(buf.Data))
	for i, s := range buf.Data {
		data[i] = float32(s) / 32768.0
	}

	return data
}

func collectSegments(context whisper.Context) ([]Segment, error) {
	seenText := make(map[string]bool)

	segments := make([]Segment, 0)

	for {
		segment, err := context.NextSegment()
		if err == io.EOF {
			return segments, nil
		} else if err != nil {
			return nil, err
		}

		if skipSegmentText(segment.Text, seenText) {
			continue
		}

		segments = append(segments, Segment{
			Start: segment.Start,
			End:   segment.End,
			Text:  segment.Text,
		})
	}
}

// skipSegmentText drops non-speech annotations (bracketed or
// parenthesized output) and repeated hallucinated lines.
func skipSegmentText(text string, seenText map[string]bool) bool {
	if len(text) > 0 && (text[0] == '(' || text[0] == '[' ||
		text[len(text)-1] == ')' || text[len(text)-1] == ']') {
		return true
	}

	if seenText[text] {
		return true
	}

	seenText[text] = true

	return false
}
