// Package cadence watches inter-sample gaps of the encoded streams and
// normalizes video timestamps so a recording starts at zero.
package cadence

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dj-oyu/screen-recorder/internal/telemetry"
	"github.com/dj-oyu/screen-recorder/pkg/types"
)

const module = "Cadence"

// Default thresholds
const (
	DefaultVideoSpike    = 60 * time.Millisecond
	DefaultAudioSpike    = 120 * time.Millisecond
	DefaultSkewTolerance = 200 * time.Millisecond
)

// Thresholds configures when a gap or skew becomes a warning
type Thresholds struct {
	VideoSpike    time.Duration
	AudioSpike    time.Duration
	SkewTolerance time.Duration
}

// DefaultThresholds returns the standard thresholds
func DefaultThresholds() Thresholds {
	return Thresholds{
		VideoSpike:    DefaultVideoSpike,
		AudioSpike:    DefaultAudioSpike,
		SkewTolerance: DefaultSkewTolerance,
	}
}

type stream struct {
	count int
	first time.Duration
	last  time.Duration
	seen  bool
}

func (s *stream) observe(pts time.Duration) (index int, delta time.Duration) {
	if !s.seen {
		s.first = pts
		s.seen = true
	} else {
		delta = pts - s.last
	}
	s.last = pts
	s.count++
	return s.count, delta
}

// duration returns -1 when the stream has no usable span
func (s *stream) duration() time.Duration {
	if !s.seen || s.last < s.first {
		return -1
	}
	return s.last - s.first
}

func (s *stream) rate() float64 {
	d := s.duration()
	if s.count < 2 || d <= 0 {
		return 0
	}
	return float64(s.count-1) / d.Seconds()
}

// Tracker is safe for concurrent use by the video and audio loops
type Tracker struct {
	mu         sync.Mutex
	thresholds Thresholds
	obs        telemetry.Observer

	offset    time.Duration
	hasOffset bool

	video stream
	audio stream
}

// New creates a Tracker. A nil observer discards diagnostics.
func New(th Thresholds, obs telemetry.Observer) *Tracker {
	if obs == nil {
		obs = telemetry.Nop()
	}
	def := DefaultThresholds()
	if th.VideoSpike <= 0 {
		th.VideoSpike = def.VideoSpike
	}
	if th.AudioSpike <= 0 {
		th.AudioSpike = def.AudioSpike
	}
	if th.SkewTolerance <= 0 {
		th.SkewTolerance = def.SkewTolerance
	}
	return &Tracker{thresholds: th, obs: obs}
}

// NormalizeVideo latches the first raw timestamp it sees as the offset and
// returns raw minus that offset.
func (t *Tracker) NormalizeVideo(raw time.Duration) time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.hasOffset {
		t.offset = raw
		t.hasOffset = true
	}
	return raw - t.offset
}

// ObserveVideo records a written video sample
func (t *Tracker) ObserveVideo(raw, normalized time.Duration, size int, flags types.SampleFlags) {
	t.mu.Lock()
	index, delta := t.video.observe(normalized)
	t.mu.Unlock()

	if delta > t.thresholds.VideoSpike {
		t.obs.Warn(module, "Video cadence spike: frame#%d delta=%dus raw=%dus size=%d flags=%s",
			index, delta.Microseconds(), raw.Microseconds(), size, flags)
		t.obs.Count(telemetry.VideoCadenceSpike, 1)
	}
}

// ObserveAudio records a written audio sample
func (t *Tracker) ObserveAudio(pts time.Duration, size int, flags types.SampleFlags) {
	t.mu.Lock()
	index, delta := t.audio.observe(pts)
	t.mu.Unlock()

	if delta > t.thresholds.AudioSpike {
		t.obs.Warn(module, "Audio cadence spike: buffer#%d delta=%dus size=%d flags=%s",
			index, delta.Microseconds(), size, flags)
		t.obs.Count(telemetry.AudioCadenceSpike, 1)
	}
}

// Summary is the cadence report of one segment. Durations are -1 when unknown.
type Summary struct {
	VideoFrames   int
	VideoDuration time.Duration
	VideoFPS      float64
	AudioBuffers  int
	AudioDuration time.Duration
	AudioRate     float64
	Skew          time.Duration
	SkewKnown     bool
}

func (s Summary) String() string {
	var parts []string
	if s.VideoFrames > 0 {
		parts = append(parts, fmt.Sprintf("videoFrames=%d", s.VideoFrames))
		if s.VideoDuration >= 0 {
			parts = append(parts, fmt.Sprintf("videoMs=%d", s.VideoDuration.Milliseconds()))
		}
		if s.VideoFPS > 0 {
			parts = append(parts, fmt.Sprintf("videoFps=%.2f", s.VideoFPS))
		}
	}
	if s.AudioBuffers > 0 {
		parts = append(parts, fmt.Sprintf("audioBuffers=%d", s.AudioBuffers))
		if s.AudioDuration >= 0 {
			parts = append(parts, fmt.Sprintf("audioMs=%d", s.AudioDuration.Milliseconds()))
		}
		if s.AudioRate > 0 {
			parts = append(parts, fmt.Sprintf("audioRate=%.2f", s.AudioRate))
		}
	}
	return strings.Join(parts, " | ")
}

// Summarize logs the per-segment report and warns on A/V skew
func (t *Tracker) Summarize() (s Summary) {
	defer func() {
		if r := recover(); r != nil {
			t.obs.Error(module, "summary failed: %v", r)
		}
	}()

	t.mu.Lock()
	s = t.snapshot()
	t.mu.Unlock()

	if line := s.String(); line != "" {
		t.obs.Info(module, "Recording summary: %s", line)
	}
	if s.SkewKnown {
		skew := s.Skew
		if skew < 0 {
			skew = -skew
		}
		if skew > t.thresholds.SkewTolerance {
			t.obs.Warn(module, "A/V duration skew=%dms", s.Skew.Milliseconds())
			t.obs.Count(telemetry.SkewWarning, 1)
		}
	}
	return s
}

func (t *Tracker) snapshot() Summary {
	s := Summary{
		VideoFrames:   t.video.count,
		VideoDuration: t.video.duration(),
		VideoFPS:      t.video.rate(),
		AudioBuffers:  t.audio.count,
		AudioDuration: t.audio.duration(),
		AudioRate:     t.audio.rate(),
	}
	if s.VideoDuration >= 0 && s.AudioDuration >= 0 {
		s.Skew = s.VideoDuration - s.AudioDuration
		s.SkewKnown = true
	}
	return s
}

// Reset clears every counter and the latched video offset
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.video = stream{}
	t.audio = stream{}
	t.offset = 0
	t.hasOffset = false
}

// Rollover summarizes the finished segment and clears the counters for the
// next one. The video offset is kept so timestamps stay continuous.
func (t *Tracker) Rollover() Summary {
	s := t.Summarize()
	t.mu.Lock()
	t.video = stream{}
	t.audio = stream{}
	t.mu.Unlock()
	return s
}
