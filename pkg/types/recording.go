package types

import "time"

// ResultOK is the result code of an approved capture grant
const ResultOK = -1

// CaptureGrant is the opaque authorization produced by the consent flow.
// It can be used to acquire a projection exactly once.
type CaptureGrant struct {
	ResultCode int
	Payload    []byte
}

// Approved reports whether the consent flow approved the grant
func (g CaptureGrant) Approved() bool {
	return g.ResultCode == ResultOK && len(g.Payload) > 0
}

// ScreenMetrics is a snapshot of the physical display taken at recording start
type ScreenMetrics struct {
	WidthPx    int `json:"width_px"`
	HeightPx   int `json:"height_px"`
	DensityDpi int `json:"density_dpi"`
}

// RecordingDimensions is the encoded frame size. Both sides are even.
type RecordingDimensions struct {
	WidthPx  int `json:"width_px"`
	HeightPx int `json:"height_px"`
}

// Pixels returns the frame area
func (d RecordingDimensions) Pixels() int {
	return d.WidthPx * d.HeightPx
}

// SegmentInfo describes a finalized container file
type SegmentInfo struct {
	Index        int           `json:"index"`
	Path         string        `json:"path"`
	StartedAt    time.Time     `json:"started_at"`
	EndedAt      time.Time     `json:"ended_at"`
	Duration     time.Duration `json:"-"`
	VideoSamples int           `json:"video_samples"`
	AudioSamples int           `json:"audio_samples"`
	Bytes        int64         `json:"bytes"`
}

// DurationMs returns the media duration in milliseconds
func (s SegmentInfo) DurationMs() int64 {
	return s.Duration.Milliseconds()
}

// WallDuration returns the wall-clock time the segment was open
func (s SegmentInfo) WallDuration() time.Duration {
	if s.StartedAt.IsZero() || s.EndedAt.IsZero() {
		return 0
	}
	return s.EndedAt.Sub(s.StartedAt)
}
