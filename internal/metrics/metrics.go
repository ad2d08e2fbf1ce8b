package metrics

import (
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all recorder metrics
type Metrics struct {
	// Sample counters
	VideoSamplesWritten atomic.Uint64
	AudioSamplesWritten atomic.Uint64
	SamplesDropped      atomic.Uint64
	BytesWritten        atomic.Uint64

	// Cadence
	VideoCadenceSpikes atomic.Uint64
	AudioCadenceSpikes atomic.Uint64
	SkewWarnings       atomic.Uint64

	// Segments
	SegmentsFinalized  atomic.Uint64
	SplitsIgnored      atomic.Uint64
	VerificationIssues atomic.Uint64

	// Errors
	FatalErrors  atomic.Uint64
	EncoderStall atomic.Uint64

	// Recording state
	RecordingActive atomic.Uint64 // 0 = inactive, 1 = active

	registry *prometheus.Registry
}

// New creates a new Metrics instance with Prometheus collectors
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
	}
	m.registerPrometheusMetrics()
	return m
}

func (m *Metrics) counter(name, help string, v *atomic.Uint64) {
	m.registry.MustRegister(prometheus.NewCounterFunc(
		prometheus.CounterOpts{Name: name, Help: help},
		func() float64 { return float64(v.Load()) },
	))
}

func (m *Metrics) registerPrometheusMetrics() {
	m.counter("screenrec_video_samples_written_total", "Video samples written to the container", &m.VideoSamplesWritten)
	m.counter("screenrec_audio_samples_written_total", "Audio samples written to the container", &m.AudioSamplesWritten)
	m.counter("screenrec_samples_dropped_total", "Samples dropped because the container was not started", &m.SamplesDropped)
	m.counter("screenrec_bytes_written_total", "Encoded payload bytes written to the container", &m.BytesWritten)

	m.counter("screenrec_video_cadence_spikes_total", "Video inter-sample gaps above the spike threshold", &m.VideoCadenceSpikes)
	m.counter("screenrec_audio_cadence_spikes_total", "Audio inter-sample gaps above the spike threshold", &m.AudioCadenceSpikes)
	m.counter("screenrec_av_skew_warnings_total", "Segments whose audio/video duration skew exceeded tolerance", &m.SkewWarnings)

	m.counter("screenrec_segments_finalized_total", "Container files finalized", &m.SegmentsFinalized)
	m.counter("screenrec_splits_ignored_total", "Split requests ignored because formats were not ready", &m.SplitsIgnored)
	m.counter("screenrec_verification_issues_total", "Issues reported by post-close verification", &m.VerificationIssues)

	m.counter("screenrec_fatal_errors_total", "Fatal capture errors", &m.FatalErrors)
	m.counter("screenrec_encoder_stalls_total", "Dequeue timeouts observed while draining after end of input", &m.EncoderStall)

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "screenrec_recording_active",
			Help: "Recording active (0=inactive, 1=active)",
		},
		func() float64 { return float64(m.RecordingActive.Load()) },
	))
}

// SetRecording updates the recording_active gauge
func (m *Metrics) SetRecording(active bool) {
	if active {
		m.RecordingActive.Store(1)
	} else {
		m.RecordingActive.Store(0)
	}
}

// Registry exposes the private registry, mainly for tests
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns the Prometheus HTTP handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// StartServer serves /metrics on addr. Blocks until the listener fails.
func (m *Metrics) StartServer(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	return http.ListenAndServe(addr, mux)
}
