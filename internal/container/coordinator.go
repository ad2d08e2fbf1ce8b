package container

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/dj-oyu/screen-recorder/internal/telemetry"
	"github.com/dj-oyu/screen-recorder/pkg/types"
)

const module = "Container"

type trackStats struct {
	count       int
	first, last time.Duration // segment-relative
	seen        bool
}

func (t *trackStats) add(pts time.Duration) {
	if !t.seen {
		t.first = pts
		t.seen = true
	}
	if pts > t.last {
		t.last = pts
	}
	t.count++
}

type segment struct {
	index     int
	path      string
	startedAt time.Time
	base      time.Duration
	video     trackStats
	audio     trackStats
	bytes     int64
}

func (s *segment) duration() time.Duration {
	var lo, hi time.Duration
	first := true
	for _, t := range []*trackStats{&s.video, &s.audio} {
		if !t.seen {
			continue
		}
		if first || t.first < lo {
			lo = t.first
		}
		if first || t.last > hi {
			hi = t.last
		}
		first = false
	}
	return hi - lo
}

// Coordinator owns the single active container writer.
// All methods are safe for concurrent use.
type Coordinator struct {
	mu      sync.Mutex
	factory MuxerFactory
	obs     telemetry.Observer
	now     func() time.Time

	muxer      Muxer
	videoTrack int
	audioTrack int
	videoDesc  types.TrackDescriptor
	audioDesc  types.TrackDescriptor
	started    bool
	released   bool

	seg segment

	// last raw PTS written per track, across segments
	lastVideo, lastAudio time.Duration
	hasVideo, hasAudio   bool

	final    types.SegmentInfo
	finalErr error
}

// Option configures a Coordinator
type Option func(*Coordinator)

// WithClock overrides the wall clock used for segment start/end times
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// NewCoordinator opens the first segment at path. A nil factory writes Matroska.
func NewCoordinator(path string, factory MuxerFactory, obs telemetry.Observer, opts ...Option) (*Coordinator, error) {
	if factory == nil {
		factory = NewMatroskaMuxer
	}
	if obs == nil {
		obs = telemetry.Nop()
	}
	c := &Coordinator{
		factory:    factory,
		obs:        obs,
		now:        time.Now,
		videoTrack: -1,
		audioTrack: -1,
	}
	for _, opt := range opts {
		opt(c)
	}
	m, err := factory(path)
	if err != nil {
		return nil, err
	}
	c.muxer = m
	c.seg = segment{path: path}
	return c, nil
}

// RegisterVideoTrack adds the video track; the writer starts once both tracks exist
func (c *Coordinator) RegisterVideoTrack(desc types.TrackDescriptor) (int, error) {
	return c.register(types.TrackVideo, desc)
}

// RegisterAudioTrack adds the audio track; the writer starts once both tracks exist
func (c *Coordinator) RegisterAudioTrack(desc types.TrackDescriptor) (int, error) {
	return c.register(types.TrackAudio, desc)
}

func (c *Coordinator) register(kind types.TrackKind, desc types.TrackDescriptor) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.released {
		return -1, ErrReleased
	}
	slot := &c.videoTrack
	stored := &c.videoDesc
	if kind == types.TrackAudio {
		slot = &c.audioTrack
		stored = &c.audioDesc
	}
	if *slot >= 0 {
		return -1, fmt.Errorf("%w: %s", ErrTrackRegistered, kind)
	}
	desc.Kind = kind
	idx, err := c.muxer.AddTrack(desc)
	if err != nil {
		return -1, fmt.Errorf("container: add %s track: %w", kind, err)
	}
	*slot = idx
	*stored = desc
	c.obs.Info(module, "%s track registered: %s", kind, desc)

	if c.videoTrack >= 0 && c.audioTrack >= 0 && !c.started {
		if err := c.muxer.Start(); err != nil {
			return idx, err
		}
		c.started = true
		c.seg.startedAt = c.now()
		c.obs.Info(module, "Muxer started: %s", c.seg.path)
	}
	return idx, nil
}

// WriteSample writes s to the active segment. Samples arriving before the
// writer started, or after release, are dropped and false is returned.
func (c *Coordinator) WriteSample(kind types.TrackKind, s types.EncodedSample) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.started || c.released {
		c.obs.Count(telemetry.SampleDropped, 1)
		return false
	}

	track := c.videoTrack
	stats := &c.seg.video
	if kind == types.TrackAudio {
		track = c.audioTrack
		stats = &c.seg.audio
	}

	raw := s.PTS
	rel := raw - c.seg.base
	if rel < 0 {
		rel = 0
	}
	if stats.seen && rel < stats.last {
		c.obs.Debug(module, "%s pts went backwards (%dus < %dus), clamped", kind, rel.Microseconds(), stats.last.Microseconds())
		rel = stats.last
	}
	s.Kind = kind
	s.PTS = rel

	if err := c.muxer.WriteSample(track, s); err != nil {
		c.obs.Error(module, "write %s sample (pts=%dus): %v", kind, raw.Microseconds(), err)
		c.obs.Count(telemetry.SampleDropped, 1)
		return false
	}

	stats.add(rel)
	c.seg.bytes += int64(len(s.Data))
	if kind == types.TrackVideo {
		c.lastVideo, c.hasVideo = raw, true
		c.obs.Count(telemetry.VideoSampleWritten, 1)
	} else {
		c.lastAudio, c.hasAudio = raw, true
		c.obs.Count(telemetry.AudioSampleWritten, 1)
	}
	c.obs.Count(telemetry.BytesWritten, uint64(len(s.Data)))
	return true
}

func (c *Coordinator) info(end time.Time) types.SegmentInfo {
	bytes := c.seg.bytes
	if st, err := os.Stat(c.seg.path); err == nil {
		bytes = st.Size()
	}
	return types.SegmentInfo{
		Index:        c.seg.index,
		Path:         c.seg.path,
		StartedAt:    c.seg.startedAt,
		EndedAt:      end,
		Duration:     c.seg.duration(),
		VideoSamples: c.seg.video.count,
		AudioSamples: c.seg.audio.count,
		Bytes:        bytes,
	}
}

// Rotate finalizes the current segment and continues on newPath with the
// same track descriptors. The new writer is prepared before the old one is
// closed so a failure leaves the current segment running.
func (c *Coordinator) Rotate(newPath string, video, audio types.TrackDescriptor) (types.SegmentInfo, error) {
	if !video.Valid() || !audio.Valid() {
		return types.SegmentInfo{}, ErrDescriptorsNotReady
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.released {
		return types.SegmentInfo{}, ErrReleased
	}

	next, err := c.factory(newPath)
	if err != nil {
		return types.SegmentInfo{}, fmt.Errorf("container: rotate: %w", err)
	}
	video.Kind, audio.Kind = types.TrackVideo, types.TrackAudio
	vIdx, err := next.AddTrack(video)
	var aIdx int
	if err == nil {
		aIdx, err = next.AddTrack(audio)
	}
	if err != nil {
		next.Release()
		return types.SegmentInfo{}, fmt.Errorf("container: rotate: add tracks: %w", err)
	}

	end := c.now()
	var closed types.SegmentInfo
	if c.started {
		if err := c.muxer.Stop(); err != nil {
			c.obs.Error(module, "stop %s: %v", c.seg.path, err)
		}
		closed = c.info(end)
	}
	if err := c.muxer.Release(); err != nil {
		c.obs.Warn(module, "release %s: %v", c.seg.path, err)
	}

	c.muxer = next
	c.videoTrack, c.audioTrack = vIdx, aIdx
	c.videoDesc, c.audioDesc = video, audio
	if err := next.Start(); err != nil {
		// nothing is writable until the next rotate or stop
		c.started = false
		c.seg = segment{index: c.seg.index + 1, path: newPath}
		return closed, fmt.Errorf("container: rotate: start: %w", err)
	}
	c.started = true

	var base time.Duration
	switch {
	case c.hasVideo && c.hasAudio:
		base = min(c.lastVideo, c.lastAudio)
	case c.hasVideo:
		base = c.lastVideo
	case c.hasAudio:
		base = c.lastAudio
	}
	c.seg = segment{
		index:     c.seg.index + 1,
		path:      newPath,
		startedAt: end,
		base:      base,
	}
	c.obs.Info(module, "Rotated to %s (base=%dms)", newPath, base.Milliseconds())
	return closed, nil
}

// StopAndRelease finalizes the active segment and frees the writer.
// Repeated calls return the first result. A writer that never started is
// released without producing a segment and ErrNotStarted is returned.
func (c *Coordinator) StopAndRelease() (types.SegmentInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.released {
		return c.final, c.finalErr
	}
	c.released = true

	if !c.started {
		if err := c.muxer.Release(); err != nil {
			c.obs.Warn(module, "release unstarted writer: %v", err)
		}
		c.finalErr = ErrNotStarted
		return c.final, c.finalErr
	}

	end := c.now()
	if err := c.muxer.Stop(); err != nil {
		c.obs.Error(module, "stop %s: %v", c.seg.path, err)
		c.finalErr = err
	}
	if err := c.muxer.Release(); err != nil {
		c.obs.Warn(module, "release %s: %v", c.seg.path, err)
	}
	c.started = false
	c.final = c.info(end)
	c.obs.Info(module, "Muxer stopped: %s (%dms, video=%d audio=%d)",
		c.final.Path, c.final.DurationMs(), c.final.VideoSamples, c.final.AudioSamples)
	return c.final, c.finalErr
}

// Started reports whether the active writer accepts samples
func (c *Coordinator) Started() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.started && !c.released
}

// Path returns the file of the active segment
func (c *Coordinator) Path() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seg.path
}

// Descriptors returns the registered track descriptors
func (c *Coordinator) Descriptors() (video, audio types.TrackDescriptor, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.videoDesc, c.audioDesc, c.videoTrack >= 0 && c.audioTrack >= 0
}
