package frame_source

import (
	"context"
	"errors"
)

// ErrRestarted is returned by Next when the source resynchronized to the
// start of its audio data instead of producing a frame.
var ErrRestarted = errors.New("frame source restarted")

// Interface produces fixed-duration PCM frames from a continuously
// growing audio source.
type Interface interface {
	// Next blocks until a full frame is available, the source reports a
	// restart (ErrRestarted), or ctx is done. Frames are delivered in
	// stream order and are never reordered or dropped between calls.
	Next(ctx context.Context) ([]int16, error)

	// RequestRestart asks the source to resynchronize before producing
	// the next frame. Safe to call from another goroutine.
	RequestRestart()

	Close() error
}
