package wake_word

// Detector scores one PCM frame against each loaded wake-word label.
// It must be fed every frame, regardless of the caller's state, so any
// internal temporal model stays in sync with the audio stream.
type Detector interface {
	Predict(frame []int16) map[string]float64
}
