package synthetic

import (
	"errors"
	"testing"
	"time"

	"github.com/dj-oyu/screen-recorder/internal/capture"
	"github.com/dj-oyu/screen-recorder/pkg/types"
)

func grant(payload string) types.CaptureGrant {
	return types.CaptureGrant{ResultCode: types.ResultOK, Payload: []byte(payload)}
}

func TestGrantSingleUse(t *testing.T) {
	b := New(Config{}, nil)
	if _, err := b.Acquire(types.CaptureGrant{ResultCode: 0, Payload: []byte("x")}); !errors.Is(err, capture.ErrGrantInvalid) {
		t.Fatalf("expected ErrGrantInvalid, got %v", err)
	}
	if _, err := b.Acquire(grant("a")); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if _, err := b.Acquire(grant("a")); !errors.Is(err, capture.ErrGrantConsumed) {
		t.Fatalf("expected ErrGrantConsumed, got %v", err)
	}
	if b.Acquisitions() != 1 {
		t.Fatalf("acquisitions = %d", b.Acquisitions())
	}
}

func nextNonRetry(t *testing.T, enc interface {
	Dequeue(time.Duration) (capture.Output, error)
}) capture.Output {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		out, err := enc.Dequeue(10 * time.Millisecond)
		if err != nil {
			t.Fatalf("Dequeue: %v", err)
		}
		if _, retry := out.(capture.NeedMoreTime); !retry {
			return out
		}
	}
	t.Fatalf("encoder produced nothing")
	return nil
}

func TestVideoEncoderOutputOrder(t *testing.T) {
	b := New(Config{}, nil)
	p, _ := b.Acquire(grant("v"))
	dims := types.RecordingDimensions{WidthPx: 480, HeightPx: 854}
	enc, err := b.NewVideoEncoder(capture.VideoConfig{Dimensions: dims, FrameRate: 30, KeyFrameInterval: time.Second})
	if err != nil {
		t.Fatalf("NewVideoEncoder: %v", err)
	}

	// nothing before a display is bound
	if out, _ := enc.Dequeue(time.Millisecond); out != (capture.NeedMoreTime{}) {
		t.Fatalf("expected NeedMoreTime before binding, got %T", out)
	}
	if _, err := p.CreateVirtualDisplay(capture.DisplayConfig{Dimensions: dims}, enc.Surface()); err != nil {
		t.Fatalf("CreateVirtualDisplay: %v", err)
	}

	f, ok := nextNonRetry(t, enc).(capture.FormatAvailable)
	if !ok || f.Descriptor.Width != 480 || len(f.Descriptor.CodecPrivate) == 0 {
		t.Fatalf("expected format first, got %+v", f)
	}
	cfg, ok := nextNonRetry(t, enc).(capture.SampleReady)
	if !ok || !cfg.Sample.IsCodecConfig() {
		t.Fatalf("expected codec config sample, got %+v", cfg)
	}
	s1 := nextNonRetry(t, enc).(capture.SampleReady).Sample
	s2 := nextNonRetry(t, enc).(capture.SampleReady).Sample
	if !s1.Flags.Has(types.FlagKeyFrame) || s2.Flags.Has(types.FlagKeyFrame) {
		t.Fatalf("unexpected key flags %v %v", s1.Flags, s2.Flags)
	}
	if d := s2.PTS - s1.PTS; d != time.Second/30 {
		t.Fatalf("frame interval = %v", d)
	}

	enc.RequestKeyFrame()
	if s := nextNonRetry(t, enc).(capture.SampleReady).Sample; !s.Flags.Has(types.FlagKeyFrame) {
		t.Fatalf("requested key frame not produced")
	}

	enc.SignalEndOfInput()
	if s := nextNonRetry(t, enc).(capture.SampleReady).Sample; !s.IsEndOfStream() {
		t.Fatalf("expected end of stream, got %+v", s)
	}
}

func TestFailureInjection(t *testing.T) {
	b := New(Config{FailVideoEncoder: true, FailDisplayBind: true}, nil)
	if _, err := b.NewVideoEncoder(capture.VideoConfig{}); !errors.Is(err, capture.ErrNoEncoder) {
		t.Fatalf("expected ErrNoEncoder, got %v", err)
	}
	p, _ := b.Acquire(grant("f"))
	if _, err := p.CreateVirtualDisplay(capture.DisplayConfig{}, &surface{}); !errors.Is(err, capture.ErrDisplayBind) {
		t.Fatalf("expected ErrDisplayBind, got %v", err)
	}
}

func TestTapDiesAfterLimit(t *testing.T) {
	cfg := capture.AudioConfig{SampleRate: 44100, Channels: 2, Bitrate: 128000}
	b := New(Config{AudioFailAfter: 50 * time.Millisecond}, nil)
	p, _ := b.Acquire(grant("t"))
	tp, _ := p.OpenAudioTap(cfg)
	tp.Start()

	buf := make([]byte, 1024*cfg.BytesPerFrame())
	var err error
	for i := 0; i < 10 && err == nil; i++ {
		_, err = tp.Read(buf)
	}
	if !errors.Is(err, capture.ErrSourceDead) {
		t.Fatalf("expected ErrSourceDead, got %v", err)
	}
}

func TestTapStop(t *testing.T) {
	cfg := capture.AudioConfig{SampleRate: 44100, Channels: 2}
	b := New(Config{}, nil)
	p, _ := b.Acquire(grant("s"))
	tp, _ := p.OpenAudioTap(cfg)
	tp.Start()
	tp.Stop()
	if _, err := tp.Read(make([]byte, 4096)); !errors.Is(err, capture.ErrTapStopped) {
		t.Fatalf("expected ErrTapStopped, got %v", err)
	}
}

func TestAudioEncoderPacketsAndEOS(t *testing.T) {
	cfg := capture.AudioConfig{SampleRate: 44100, Channels: 2, Bitrate: 128000}
	b := New(Config{}, nil)
	enc, err := b.NewAudioEncoder(cfg)
	if err != nil {
		t.Fatalf("NewAudioEncoder: %v", err)
	}

	pcm := make([]byte, 1500*cfg.BytesPerFrame())
	n, err := enc.QueueInput(pcm, 0, 0)
	if err != nil || n != len(pcm) {
		t.Fatalf("QueueInput = %d, %v", n, err)
	}

	if _, ok := nextNonRetry(t, enc).(capture.FormatAvailable); !ok {
		t.Fatalf("expected format first")
	}
	first := nextNonRetry(t, enc).(capture.SampleReady).Sample
	if first.PTS != 0 || len(first.Data) == 0 {
		t.Fatalf("first packet %+v", first)
	}

	enc.QueueEndOfStream(time.Second, 0)
	partial := nextNonRetry(t, enc).(capture.SampleReady).Sample
	if partial.IsEndOfStream() || partial.PTS != 23219*time.Microsecond {
		t.Fatalf("partial packet %+v", partial)
	}
	if eos := nextNonRetry(t, enc).(capture.SampleReady).Sample; !eos.IsEndOfStream() {
		t.Fatalf("expected EOS, got %+v", eos)
	}
}

func TestAudioEncoderInputBackpressure(t *testing.T) {
	cfg := capture.AudioConfig{SampleRate: 44100, Channels: 2}
	enc, _ := New(Config{}, nil).NewAudioEncoder(cfg)
	big := make([]byte, 2*inputFrames*cfg.BytesPerFrame())
	n, _ := enc.QueueInput(big, 0, 0)
	if n != inputFrames*cfg.BytesPerFrame() {
		t.Fatalf("accepted %d bytes", n)
	}
	if n, _ := enc.QueueInput(big, 0, 0); n != 0 {
		t.Fatalf("full queue accepted %d bytes", n)
	}
}

func TestRegisteredInCaptureRegistry(t *testing.T) {
	be, err := capture.Open(Name, capture.Options{Params: map[string]string{"format_delay": "10ms"}})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if be.Name() != Name {
		t.Fatalf("name = %s", be.Name())
	}
	if _, err := capture.Open(Name, capture.Options{Params: map[string]string{"format_delay": "soon"}}); err == nil {
		t.Fatalf("expected parse error")
	}
}
