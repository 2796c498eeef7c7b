package speech_to_text

import (
	"strings"
	"time"

	"github.com/go-audio/audio"
)

// Segment is one span of transcribed text.
type Segment struct {
	Start time.Duration
	End   time.Duration
	Text  string
}

// Options control a single transcription call.
type Options struct {
	// Language is a hint such as "en"; empty leaves the engine default.
	Language string

	// VADFilter asks the engine to drop non-speech spans before
	// decoding. MinSilence is the smallest silence gap its voice
	// activity detection should split on. Engines without built-in VAD
	// ignore both.
	VADFilter  bool
	MinSilence time.Duration
}

type Interface interface {
	Process(buf *audio.IntBuffer, opts Options) ([]Segment, error)
}

// JoinText joins the trimmed segment texts with single spaces, in order.
func JoinText(segments []Segment) string {
	parts := make([]string, 0, len(segments))
	for _, segment := range segments {
		parts = append(parts, strings.TrimSpace(segment.Text))
	}

	return strings.Join(parts, " ")
}
