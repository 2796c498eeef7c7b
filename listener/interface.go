package listener

import "context"

// State is the capture state machine's current phase.
type State string

const (
	// StateWakeWordDetection scores every frame against the wake-word
	// model; nothing is buffered.
	StateWakeWordDetection State = "wake_detection"
	// StateListeningForSpeech buffers frames until end-of-speech or the
	// maximum utterance duration.
	StateListeningForSpeech State = "listening"
	// StateProcessingSpeech is held only while a captured utterance is
	// being transcribed; frames are never routed through it.
	StateProcessingSpeech State = "processing"
)

type Interface interface {
	// Run pulls frames until ctx is cancelled or a fatal error occurs.
	Run(ctx context.Context) error

	State() State
}
