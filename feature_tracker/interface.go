package feature_tracker

// Features summarizes one frame of audio.
type Features struct {
	// RMS is root-mean-square amplitude, 0-1 normalized.
	RMS float64
	// SpectralCentroid is the amplitude-weighted mean frequency in Hz.
	SpectralCentroid float64
	// ZCR is the zero-crossing rate, 0-1 normalized.
	ZCR float64
}

// Extractor computes per-frame features from normalized amplitude
// samples in [-1, 1).
type Extractor interface {
	Extract(samples []float64) Features
}
