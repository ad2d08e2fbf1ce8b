// Package telemetry is the observability collaborator handed to every
// recording component: leveled logs plus named counters.
package telemetry

import (
	"fmt"
	"sync"

	"github.com/dj-oyu/screen-recorder/internal/logger"
	"github.com/dj-oyu/screen-recorder/internal/metrics"
)

// Counter names a recorder counter
type Counter int

const (
	VideoSampleWritten Counter = iota
	AudioSampleWritten
	SampleDropped
	BytesWritten
	VideoCadenceSpike
	AudioCadenceSpike
	SkewWarning
	SegmentFinalized
	SplitIgnored
	VerificationIssue
	FatalError
	EncoderStall
)

var counterNames = [...]string{
	VideoSampleWritten: "video_sample_written",
	AudioSampleWritten: "audio_sample_written",
	SampleDropped:      "sample_dropped",
	BytesWritten:       "bytes_written",
	VideoCadenceSpike:  "video_cadence_spike",
	AudioCadenceSpike:  "audio_cadence_spike",
	SkewWarning:        "skew_warning",
	SegmentFinalized:   "segment_finalized",
	SplitIgnored:       "split_ignored",
	VerificationIssue:  "verification_issue",
	FatalError:         "fatal_error",
	EncoderStall:       "encoder_stall",
}

func (c Counter) String() string {
	if int(c) >= 0 && int(c) < len(counterNames) {
		return counterNames[c]
	}
	return fmt.Sprintf("counter(%d)", int(c))
}

// Observer receives diagnostics from the recording components
type Observer interface {
	Debug(module, format string, args ...interface{})
	Info(module, format string, args ...interface{})
	Warn(module, format string, args ...interface{})
	Error(module, format string, args ...interface{})
	Count(c Counter, delta uint64)
	// SetActive reports whether a recording is running
	SetActive(active bool)
}

// New returns an Observer writing to l and updating m. Either may be nil.
func New(l *logger.Logger, m *metrics.Metrics) Observer {
	if l == nil {
		l = logger.Discard()
	}
	return &observer{log: l, m: m}
}

type observer struct {
	log *logger.Logger
	m   *metrics.Metrics
}

func (o *observer) Debug(module, format string, args ...interface{}) {
	o.log.Debug(module, format, args...)
}

func (o *observer) Info(module, format string, args ...interface{}) {
	o.log.Info(module, format, args...)
}

func (o *observer) Warn(module, format string, args ...interface{}) {
	o.log.Warn(module, format, args...)
}

func (o *observer) Error(module, format string, args ...interface{}) {
	o.log.Error(module, format, args...)
}

func (o *observer) SetActive(active bool) {
	if o.m != nil {
		o.m.SetRecording(active)
	}
}

func (o *observer) Count(c Counter, delta uint64) {
	if o.m == nil {
		return
	}
	switch c {
	case VideoSampleWritten:
		o.m.VideoSamplesWritten.Add(delta)
	case AudioSampleWritten:
		o.m.AudioSamplesWritten.Add(delta)
	case SampleDropped:
		o.m.SamplesDropped.Add(delta)
	case BytesWritten:
		o.m.BytesWritten.Add(delta)
	case VideoCadenceSpike:
		o.m.VideoCadenceSpikes.Add(delta)
	case AudioCadenceSpike:
		o.m.AudioCadenceSpikes.Add(delta)
	case SkewWarning:
		o.m.SkewWarnings.Add(delta)
	case SegmentFinalized:
		o.m.SegmentsFinalized.Add(delta)
	case SplitIgnored:
		o.m.SplitsIgnored.Add(delta)
	case VerificationIssue:
		o.m.VerificationIssues.Add(delta)
	case FatalError:
		o.m.FatalErrors.Add(delta)
	case EncoderStall:
		o.m.EncoderStall.Add(delta)
	}
}

// Nop returns an Observer that discards everything
func Nop() Observer { return nopObserver{} }

type nopObserver struct{}

func (nopObserver) Debug(string, string, ...interface{}) {}
func (nopObserver) Info(string, string, ...interface{})  {}
func (nopObserver) Warn(string, string, ...interface{})  {}
func (nopObserver) Error(string, string, ...interface{}) {}
func (nopObserver) Count(Counter, uint64)                {}
func (nopObserver) SetActive(bool)                      {}

// Record is one captured log line
type Record struct {
	Level   logger.LogLevel
	Module  string
	Message string
}

// Memory keeps every log line and counter in memory. Used by tests.
type Memory struct {
	mu       sync.Mutex
	records  []Record
	counters map[Counter]uint64
	active   bool
}

// NewMemory returns an empty in-memory observer
func NewMemory() *Memory {
	return &Memory{counters: make(map[Counter]uint64)}
}

func (m *Memory) add(level logger.LogLevel, module, format string, args ...interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, Record{Level: level, Module: module, Message: fmt.Sprintf(format, args...)})
}

func (m *Memory) Debug(module, format string, args ...interface{}) {
	m.add(logger.DEBUG, module, format, args...)
}

func (m *Memory) Info(module, format string, args ...interface{}) {
	m.add(logger.INFO, module, format, args...)
}

func (m *Memory) Warn(module, format string, args ...interface{}) {
	m.add(logger.WARN, module, format, args...)
}

func (m *Memory) Error(module, format string, args ...interface{}) {
	m.add(logger.ERROR, module, format, args...)
}

func (m *Memory) Count(c Counter, delta uint64) {
	m.mu.Lock()
	m.counters[c] += delta
	m.mu.Unlock()
}

func (m *Memory) SetActive(active bool) {
	m.mu.Lock()
	m.active = active
	m.mu.Unlock()
}

// Active returns the last value passed to SetActive
func (m *Memory) Active() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

// Counter returns the accumulated value of c
func (m *Memory) Counter(c Counter) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counters[c]
}

// Records returns captured lines at or above level
func (m *Memory) Records(level logger.LogLevel) []Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Record
	for _, r := range m.records {
		if r.Level >= level {
			out = append(out, r)
		}
	}
	return out
}

// Warnings returns the messages of WARN and ERROR records
func (m *Memory) Warnings() []string {
	var out []string
	for _, r := range m.Records(logger.WARN) {
		out = append(out, r.Module+": "+r.Message)
	}
	return out
}
