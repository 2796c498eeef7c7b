// Package metrics exposes Prometheus instrumentation for the listener
// pipeline. All record helpers tolerate a nil receiver so the pipeline
// can run without metrics wired in.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics contains all Prometheus metrics for the wake listener.
type Metrics struct {
	FramesProduced         prometheus.Counter
	SourceRestarts         prometheus.Counter
	WakeWordDetections     prometheus.Counter
	SuppressedDetections   prometheus.Counter
	Utterances             prometheus.Counter
	TranscriptionSuccesses prometheus.Counter
	TranscriptionFailures  prometheus.Counter
	TranscriptionDuration  prometheus.Histogram
	BufferFrames           prometheus.Gauge
}

// New creates and registers all metrics on the default registry. Call
// at most once per process.
func New() *Metrics {
	return &Metrics{
		FramesProduced: promauto.NewCounter(prometheus.CounterOpts{
			Name: "wake_listener_frames_total",
			Help: "Total number of audio frames consumed from the source",
		}),
		SourceRestarts: promauto.NewCounter(prometheus.CounterOpts{
			Name: "wake_listener_source_restarts_total",
			Help: "Total number of frame source resynchronizations",
		}),
		WakeWordDetections: promauto.NewCounter(prometheus.CounterOpts{
			Name: "wake_listener_wakeword_detections_total",
			Help: "Total number of wake word activations reported",
		}),
		SuppressedDetections: promauto.NewCounter(prometheus.CounterOpts{
			Name: "wake_listener_suppressed_detections_total",
			Help: "Total number of wake word activations suppressed by cooldown",
		}),
		Utterances: promauto.NewCounter(prometheus.CounterOpts{
			Name: "wake_listener_utterances_total",
			Help: "Total number of captured utterances handed to transcription",
		}),
		TranscriptionSuccesses: promauto.NewCounter(prometheus.CounterOpts{
			Name: "wake_listener_transcription_successes_total",
			Help: "Total number of successful transcriptions",
		}),
		TranscriptionFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "wake_listener_transcription_failures_total",
			Help: "Total number of failed transcriptions",
		}),
		TranscriptionDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "wake_listener_transcription_duration_seconds",
			Help:    "Wall-clock duration of transcription calls",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~2 minutes
		}),
		BufferFrames: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "wake_listener_buffer_frames",
			Help: "Current number of frames in the capture buffer",
		}),
	}
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

func (m *Metrics) RecordFrameProduced() {
	if m == nil {
		return
	}

	m.FramesProduced.Inc()
}

func (m *Metrics) RecordSourceRestart() {
	if m == nil {
		return
	}

	m.SourceRestarts.Inc()
}

func (m *Metrics) RecordWakeWordDetection() {
	if m == nil {
		return
	}

	m.WakeWordDetections.Inc()
}

func (m *Metrics) RecordSuppressedDetection() {
	if m == nil {
		return
	}

	m.SuppressedDetections.Inc()
}

func (m *Metrics) RecordUtterance() {
	if m == nil {
		return
	}

	m.Utterances.Inc()
}

func (m *Metrics) RecordTranscriptionSuccess(durationSeconds float64) {
	if m == nil {
		return
	}

	m.TranscriptionSuccesses.Inc()
	m.TranscriptionDuration.Observe(durationSeconds)
}

func (m *Metrics) RecordTranscriptionFailure(durationSeconds float64) {
	if m == nil {
		return
	}

	m.TranscriptionFailures.Inc()
	m.TranscriptionDuration.Observe(durationSeconds)
}

func (m *Metrics) SetBufferFrames(count int) {
	if m == nil {
		return
	}

	m.BufferFrames.Set(float64(count))
}
