package container

import (
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/dj-oyu/screen-recorder/internal/aac"
	"github.com/dj-oyu/screen-recorder/internal/h264"
	"github.com/dj-oyu/screen-recorder/internal/telemetry"
	"github.com/dj-oyu/screen-recorder/pkg/types"
)

type fakeMuxer struct {
	path     string
	tracks   []types.TrackDescriptor
	started  bool
	stopped  bool
	released bool
	samples  []types.EncodedSample
}

func (m *fakeMuxer) AddTrack(d types.TrackDescriptor) (int, error) {
	if m.started {
		return -1, ErrMuxerStarted
	}
	m.tracks = append(m.tracks, d)
	return len(m.tracks) - 1, nil
}
func (m *fakeMuxer) Start() error { m.started = true; return nil }
func (m *fakeMuxer) WriteSample(track int, s types.EncodedSample) error {
	if !m.started || m.stopped {
		return ErrNotStarted
	}
	m.samples = append(m.samples, s)
	return nil
}
func (m *fakeMuxer) Stop() error    { m.stopped = true; return nil }
func (m *fakeMuxer) Release() error { m.released = true; return nil }

type fakeFactory struct {
	mu     sync.Mutex
	muxers []*fakeMuxer
	fail   bool
}

func (f *fakeFactory) open(path string) (Muxer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return nil, errors.New("disk full")
	}
	m := &fakeMuxer{path: path}
	f.muxers = append(f.muxers, m)
	return m, nil
}

func videoDesc() types.TrackDescriptor {
	rec, _ := h264.DecoderConfigRecord(h264.BaselineSPS, h264.BaselinePPS)
	return types.TrackDescriptor{
		Kind: types.TrackVideo, Codec: types.CodecH264, MimeType: "video/avc",
		Width: 480, Height: 854, FrameRate: 30, Bitrate: 2_000_000, CodecPrivate: rec,
	}
}

func audioDesc() types.TrackDescriptor {
	asc, _ := aac.LC(44100, 2)
	return types.TrackDescriptor{
		Kind: types.TrackAudio, Codec: types.CodecAAC, MimeType: "audio/mp4a-latm",
		SampleRate: 44100, Channels: 2, Bitrate: 128_000, CodecPrivate: asc,
	}
}

func videoSample(pts time.Duration, key bool) types.EncodedSample {
	flags := types.SampleFlags(0)
	nal := []byte{0x41, 0x9A, 0x11}
	if key {
		flags = types.FlagKeyFrame
		nal = []byte{0x65, 0x88, 0x84}
	}
	return types.EncodedSample{Kind: types.TrackVideo, PTS: pts, Flags: flags, Data: h264.AppendAnnexB(nil, nal)}
}

func audioSample(pts time.Duration) types.EncodedSample {
	return types.EncodedSample{Kind: types.TrackAudio, PTS: pts, Data: []byte{0x21, 0x10, 0x04, 0x60}}
}

func TestWritesDroppedUntilBothTracksRegistered(t *testing.T) {
	f := &fakeFactory{}
	mem := telemetry.NewMemory()
	c, err := NewCoordinator("a.mkv", f.open, mem)
	if err != nil {
		t.Fatalf("NewCoordinator: %v", err)
	}

	if c.WriteSample(types.TrackVideo, videoSample(0, true)) {
		t.Fatalf("write before registration should be dropped")
	}
	if _, err := c.RegisterVideoTrack(videoDesc()); err != nil {
		t.Fatalf("register video: %v", err)
	}
	if c.WriteSample(types.TrackVideo, videoSample(0, true)) {
		t.Fatalf("write with one track should be dropped")
	}
	if c.Started() {
		t.Fatalf("should not start with one track")
	}
	if _, err := c.RegisterAudioTrack(audioDesc()); err != nil {
		t.Fatalf("register audio: %v", err)
	}
	if !c.WriteSample(types.TrackVideo, videoSample(0, true)) {
		t.Fatalf("write after start should succeed")
	}

	if got := mem.Counter(telemetry.SampleDropped); got != 2 {
		t.Fatalf("dropped = %d, want 2", got)
	}
	if n := len(f.muxers[0].samples); n != 1 {
		t.Fatalf("muxer got %d samples, want 1", n)
	}
}

func TestDoubleRegistrationRejected(t *testing.T) {
	f := &fakeFactory{}
	c, _ := NewCoordinator("a.mkv", f.open, nil)
	c.RegisterVideoTrack(videoDesc())
	if _, err := c.RegisterVideoTrack(videoDesc()); !errors.Is(err, ErrTrackRegistered) {
		t.Fatalf("expected ErrTrackRegistered, got %v", err)
	}
}

func TestRotateSplitsContentDisjointly(t *testing.T) {
	f := &fakeFactory{}
	c, _ := NewCoordinator("seg0.mkv", f.open, nil)
	c.RegisterVideoTrack(videoDesc())
	c.RegisterAudioTrack(audioDesc())

	for i := 0; i < 10; i++ {
		pts := time.Duration(i) * 100 * time.Millisecond
		c.WriteSample(types.TrackVideo, videoSample(pts, i == 0))
		c.WriteSample(types.TrackAudio, audioSample(pts))
	}

	closed, err := c.Rotate("seg1.mkv", videoDesc(), audioDesc())
	if err != nil {
		t.Fatalf("Rotate: %v", err)
	}
	if closed.Path != "seg0.mkv" || closed.Index != 0 {
		t.Fatalf("closed segment = %+v", closed)
	}
	if closed.VideoSamples != 10 || closed.AudioSamples != 10 {
		t.Fatalf("closed counts = %d/%d", closed.VideoSamples, closed.AudioSamples)
	}
	if closed.Duration != 900*time.Millisecond {
		t.Fatalf("closed duration = %v", closed.Duration)
	}

	for i := 10; i < 15; i++ {
		pts := time.Duration(i) * 100 * time.Millisecond
		c.WriteSample(types.TrackVideo, videoSample(pts, i == 10))
		c.WriteSample(types.TrackAudio, audioSample(pts))
	}
	final, err := c.StopAndRelease()
	if err != nil {
		t.Fatalf("StopAndRelease: %v", err)
	}

	first, second := f.muxers[0], f.muxers[1]
	if !first.stopped || !first.released {
		t.Fatalf("first muxer not finalized")
	}
	if len(first.samples) != 20 || len(second.samples) != 10 {
		t.Fatalf("samples split %d/%d, want 20/10", len(first.samples), len(second.samples))
	}
	if len(second.tracks) != 2 {
		t.Fatalf("second muxer tracks = %d", len(second.tracks))
	}
	// second segment is rebased to the last timestamp written before rotate
	if second.samples[0].PTS != 100*time.Millisecond {
		t.Fatalf("rebased pts = %v, want 100ms", second.samples[0].PTS)
	}
	if final.Index != 1 || final.Path != "seg1.mkv" || final.VideoSamples != 5 {
		t.Fatalf("final segment = %+v", final)
	}
}

func TestRotateFailureKeepsCurrentSegment(t *testing.T) {
	f := &fakeFactory{}
	c, _ := NewCoordinator("seg0.mkv", f.open, nil)
	c.RegisterVideoTrack(videoDesc())
	c.RegisterAudioTrack(audioDesc())

	f.fail = true
	if _, err := c.Rotate("seg1.mkv", videoDesc(), audioDesc()); err == nil {
		t.Fatalf("expected rotate error")
	}
	if !c.WriteSample(types.TrackVideo, videoSample(0, true)) {
		t.Fatalf("current segment should still accept samples")
	}
	if c.Path() != "seg0.mkv" {
		t.Fatalf("path changed to %s", c.Path())
	}
}

func TestRotateWithoutDescriptors(t *testing.T) {
	f := &fakeFactory{}
	c, _ := NewCoordinator("seg0.mkv", f.open, nil)
	if _, err := c.Rotate("seg1.mkv", types.TrackDescriptor{}, audioDesc()); !errors.Is(err, ErrDescriptorsNotReady) {
		t.Fatalf("expected ErrDescriptorsNotReady, got %v", err)
	}
	if len(f.muxers) != 1 {
		t.Fatalf("no new muxer should be opened")
	}
}

func TestStopAndReleaseIdempotent(t *testing.T) {
	f := &fakeFactory{}
	c, _ := NewCoordinator("seg0.mkv", f.open, nil)
	c.RegisterVideoTrack(videoDesc())
	c.RegisterAudioTrack(audioDesc())
	c.WriteSample(types.TrackVideo, videoSample(0, true))

	a, errA := c.StopAndRelease()
	b, errB := c.StopAndRelease()
	if errA != nil || errB != nil {
		t.Fatalf("errors: %v %v", errA, errB)
	}
	if a != b {
		t.Fatalf("second call returned a different result")
	}
	if c.WriteSample(types.TrackVideo, videoSample(time.Second, false)) {
		t.Fatalf("write after release should be dropped")
	}
}

func TestStopAndReleaseNeverStarted(t *testing.T) {
	f := &fakeFactory{}
	c, _ := NewCoordinator("seg0.mkv", f.open, nil)
	if _, err := c.StopAndRelease(); !errors.Is(err, ErrNotStarted) {
		t.Fatalf("expected ErrNotStarted, got %v", err)
	}
	if f.muxers[0].stopped || !f.muxers[0].released {
		t.Fatalf("unstarted muxer should be released without stop")
	}
}

func TestMatroskaRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rt.mkv")

	c, err := NewCoordinator(path, nil, nil)
	if err != nil {
		t.Fatalf("NewCoordinator: %v", err)
	}
	if _, err := c.RegisterVideoTrack(videoDesc()); err != nil {
		t.Fatalf("register video: %v", err)
	}
	if _, err := c.RegisterAudioTrack(audioDesc()); err != nil {
		t.Fatalf("register audio: %v", err)
	}

	for i := 0; i < 30; i++ {
		pts := time.Duration(i) * 33 * time.Millisecond
		if !c.WriteSample(types.TrackVideo, videoSample(pts, i%10 == 0)) {
			t.Fatalf("video write %d failed", i)
		}
	}
	for i := 0; i < 40; i++ {
		if !c.WriteSample(types.TrackAudio, audioSample(aac.FrameDuration(44100)*time.Duration(i))) {
			t.Fatalf("audio write %d failed", i)
		}
	}
	info, err := c.StopAndRelease()
	if err != nil {
		t.Fatalf("StopAndRelease: %v", err)
	}
	if info.Bytes == 0 {
		t.Fatalf("empty file")
	}

	md, err := Inspect(path)
	if err != nil {
		t.Fatalf("Inspect: %v", err)
	}
	if md.DocType != "matroska" {
		t.Fatalf("doc type = %q", md.DocType)
	}
	v, ok := md.Track(types.TrackVideo)
	if !ok || v.Samples != 30 || v.Keyframes != 3 || v.Width != 480 || v.CodecID != CodecIDH264 {
		t.Fatalf("video track = %+v ok=%v", v, ok)
	}
	a, ok := md.Track(types.TrackAudio)
	if !ok || a.Samples != 40 || a.Channels != 2 || a.SampleRate != 44100 {
		t.Fatalf("audio track = %+v ok=%v", a, ok)
	}
	// audio was written after the whole video run; none of it may be dropped
	lastAudio := (aac.FrameDuration(44100) * 39).Truncate(time.Millisecond)
	if a.First != 0 || a.Last != lastAudio {
		t.Fatalf("audio span = %v..%v, want 0..%v", a.First, a.Last, lastAudio)
	}
	if !md.HasDuration || md.Duration < 950*time.Millisecond {
		t.Fatalf("duration = %v", md.Duration)
	}
}

func TestMatroskaReleaseWithoutStartRemovesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "never.mkv")
	c, err := NewCoordinator(path, nil, nil)
	if err != nil {
		t.Fatalf("NewCoordinator: %v", err)
	}
	c.StopAndRelease()
	if _, err := Inspect(path); err == nil {
		t.Fatalf("file should have been removed")
	}
}
