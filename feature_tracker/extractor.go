package feature_tracker

import (
	"math"
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
)

type dspExtractor struct {
	sampleRate int
}

// NewExtractor returns the default DSP-based feature extractor.
func NewExtractor(sampleRate int) Extractor {
	return &dspExtractor{
		sampleRate: sampleRate,
	}
}

func (e *dspExtractor) Extract(samples []float64) Features {
	return Features{
		RMS:              rms(samples),
		SpectralCentroid: e.spectralCentroid(samples),
		ZCR:              zeroCrossingRate(samples),
	}
}

func rms(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}

	var sum float64
	for _, s := range samples {
		sum += s * s
	}

	return math.Sqrt(sum / float64(len(samples)))
}

func zeroCrossingRate(samples []float64) float64 {
	if len(samples) < 2 {
		return 0
	}

	crossings := 0
	for i := 1; i < len(samples); i++ {
		if (samples[i-1] >= 0) != (samples[i] >= 0) {
			crossings++
		}
	}

	return float64(crossings) / float64(len(samples))
}

// spectralCentroid is the magnitude-weighted mean frequency over the
// non-negative half of the spectrum.
func (e *dspExtractor) spectralCentroid(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}

	spectrum := fft.FFTReal(samples)
	half := len(spectrum)/2 + 1

	var weighted, total float64

	for i := 0; i < half; i++ {
		magnitude := cmplx.Abs(spectrum[i])
		frequency := float64(i) * float64(e.sampleRate) / float64(len(samples))

		weighted += frequency * magnitude
		total += magnitude
	}

	if total == 0 {
		return 0
	}

	return weighted / total
}
