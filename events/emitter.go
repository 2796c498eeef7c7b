// Package events serializes every observable listener transition as one
// JSON object per line on the output channel.
package events

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"sync"
	"time"
)

const (
	TypeInfo             = "info"
	TypeListeningStart   = "listening_start"
	TypeWakeWord         = "wakeword"
	TypeAudioDebug       = "audio_debug"
	TypeSilenceDetected  = "silence_detected"
	TypeMaxBufferReached = "max_buffer_reached"
	TypeTranscription    = "transcription"
	TypeError            = "error"
)

// Event is one record of the output stream. Timestamp is seconds since
// epoch; which other fields are set depends on Type.
type Event struct {
	Type           string   `json:"type"`
	Timestamp      float64  `json:"timestamp"`
	Message        string   `json:"message,omitempty"`
	Label          string   `json:"label,omitempty"`
	Score          *float64 `json:"score,omitempty"`
	Text           *string  `json:"text,omitempty"`
	AudioDuration  *float64 `json:"audio_duration,omitempty"`
	ProcessingTime *float64 `json:"processing_time,omitempty"`
}

// Emitter writes events atomically, one line each. A write fault is
// returned to the caller; since the output channel is the process's
// sole external interface, callers treat it as fatal.
type Emitter struct {
	mu  sync.Mutex
	out io.Writer
	now func() time.Time
}

func New(out io.Writer) *Emitter {
	return &Emitter{
		out: out,
		now: time.Now,
	}
}

// NewWithClock is New with an injected time source.
func NewWithClock(out io.Writer, now func() time.Time) *Emitter {
	return &Emitter{
		out: out,
		now: now,
	}
}

func (e *Emitter) Info(message string) error {
	return e.emit(Event{Type: TypeInfo, Message: message})
}

func (e *Emitter) ListeningStart(message string) error {
	return e.emit(Event{Type: TypeListeningStart, Message: message})
}

func (e *Emitter) WakeWord(label string, score float64) error {
	rounded := round(score, 3)

	return e.emit(Event{Type: TypeWakeWord, Label: label, Score: &rounded})
}

func (e *Emitter) AudioDebug(message string) error {
	return e.emit(Event{Type: TypeAudioDebug, Message: message})
}

func (e *Emitter) SilenceDetected(message string) error {
	return e.emit(Event{Type: TypeSilenceDetected, Message: message})
}

func (e *Emitter) MaxBufferReached(message string) error {
	return e.emit(Event{Type: TypeMaxBufferReached, Message: message})
}

func (e *Emitter) Transcription(text string, audioDuration, processingTime time.Duration) error {
	duration := round(audioDuration.Seconds(), 2)
	processing := round(processingTime.Seconds(), 3)

	return e.emit(Event{
		Type:           TypeTranscription,
		Text:           &text,
		AudioDuration:  &duration,
		ProcessingTime: &processing,
	})
}

func (e *Emitter) Error(message string, processingTime time.Duration) error {
	processing := round(processingTime.Seconds(), 3)

	return e.emit(Event{
		Type:           TypeError,
		Message:        message,
		ProcessingTime: &processing,
	})
}

func (e *Emitter) emit(event Event) error {
	event.Timestamp = float64(e.now().UnixNano()) / float64(time.Second)

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encoding %s event: %w", event.Type, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, err := e.out.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("writing %s event: %w", event.Type, err)
	}

	return nil
}

func round(v float64, places int) float64 {
	scale := math.Pow(10, float64(places))

	return math.Round(v*scale) / scale
}
