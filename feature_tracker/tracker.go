package feature_tracker

import (
	"fmt"

	"assistant-wake-listener/ring_buffer"
)

const (
	// historySize bounds the rolling feature history (~4 s of 80 ms frames).
	historySize = 50
	// warmUpCount is how many samples the history must hold before the
	// adaptive thresholds take over from the fixed defaults.
	warmUpCount = 10

	// Adaptive policy: energy threshold is a quarter of the recent mean
	// RMS with a hard floor, ZCR threshold is 1.5x the recent mean rate.
	energyScale = 0.25
	energyFloor = 0.01
	zcrScale    = 1.5

	// Fixed conservative defaults used before warm-up; silence is then
	// judged on energy alone.
	defaultEnergyThreshold = 0.02
	defaultZCRThreshold    = 0.1
)

// Verdict is the silence decision for one frame, alongside the
// thresholds it was judged against.
type Verdict struct {
	Silent          bool
	EnergyThreshold float64
	ZCRThreshold    float64
}

// Tracker derives adaptive silence thresholds from a rolling window of
// per-frame features. It carries no state beyond that history; Reset
// returns it to the warm-up defaults.
type Tracker struct {
	extractor Extractor
	history   *ring_buffer.Window[Features]
}

type TrackerConfig struct {
	Extractor Extractor
}

func NewTracker(cfg *TrackerConfig) (*Tracker, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	if cfg.Extractor == nil {
		return nil, fmt.Errorf("extractor is nil")
	}

	return &Tracker{
		extractor: cfg.Extractor,
		history:   ring_buffer.New[Features](historySize),
	}, nil
}

// Observe computes features for the frame, folds them into the rolling
// history, and judges whether the frame is silent.
func (t *Tracker) Observe(frame []int16) (Features, Verdict) {
	features := t.extractor.Extract(Normalize(frame))

	t.history.Push(features)

	return features, t.judge(features)
}

func (t *Tracker) judge(features Features) Verdict {
	if t.history.Len() <= warmUpCount {
		return Verdict{
			Silent:          features.RMS < defaultEnergyThreshold,
			EnergyThreshold: defaultEnergyThreshold,
			ZCRThreshold:    defaultZCRThreshold,
		}
	}

	var meanRMS, meanZCR float64

	values := t.history.Values()
	for _, v := range values {
		meanRMS += v.RMS
		meanZCR += v.ZCR
	}

	meanRMS /= float64(len(values))
	meanZCR /= float64(len(values))

	energyThreshold := meanRMS * energyScale
	if energyThreshold < energyFloor {
		energyThreshold = energyFloor
	}

	zcrThreshold := meanZCR * zcrScale

	// Low energy alone is not enough: broadband noise can be quiet but
	// busy, so a high crossing rate vetoes the silence verdict.
	return Verdict{
		Silent:          features.RMS < energyThreshold && features.ZCR < zcrThreshold,
		EnergyThreshold: energyThreshold,
		ZCRThreshold:    zcrThreshold,
	}
}

// Reset clears the rolling history, returning the tracker to its
// warm-up defaults.
func (t *Tracker) Reset() {
	t.history.Clear()
}

// Normalize converts 16-bit samples to floating amplitude in [-1, 1).
func Normalize(frame []int16) []float64 {
	samples := make([]float64, len(frame))
	for i, s := range frame {
		samples[i] = float64(s) / 32768.0
	}

	return samples
}
