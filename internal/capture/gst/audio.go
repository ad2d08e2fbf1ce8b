//go:build gstreamer

package gst

import (
	"fmt"
	"sync"
	"time"

	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"

	"github.com/dj-oyu/screen-recorder/internal/aac"
	"github.com/dj-oyu/screen-recorder/internal/capture"
	"github.com/dj-oyu/screen-recorder/pkg/types"
)

func pcmCaps(cfg capture.AudioConfig) string {
	return fmt.Sprintf("audio/x-raw,format=S16LE,layout=interleaved,rate=%d,channels=%d", cfg.SampleRate, cfg.Channels)
}

// tap reads the system mix from the PulseAudio monitor source
type tap struct {
	pl *pipeline

	mu       sync.Mutex
	leftover []byte
	stopped  bool
}

func newTap(b *Backend, cfg capture.AudioConfig) (*tap, error) {
	props := map[string]interface{}{}
	if b.cfg.AudioDevice != "" {
		props["device"] = b.cfg.AudioDevice
	}
	src, err := element(b.cfg.AudioSource, props)
	if err != nil {
		return nil, err
	}
	convert, err := element("audioconvert", nil)
	if err != nil {
		return nil, err
	}
	resample, err := element("audioresample", nil)
	if err != nil {
		return nil, err
	}
	caps, err := capsFilter(pcmCaps(cfg))
	if err != nil {
		return nil, err
	}
	pl, err := newPipeline("system-audio", b.obs, src, convert, resample, caps)
	if err != nil {
		return nil, err
	}
	return &tap{pl: pl}, nil
}

func (t *tap) Start() error { return t.pl.start() }

// Read implements capture.AudioTap
func (t *tap) Read(buf []byte) (int, error) {
	for {
		t.mu.Lock()
		if t.stopped {
			t.mu.Unlock()
			return 0, capture.ErrTapStopped
		}
		if len(t.leftover) > 0 {
			n := copy(buf, t.leftover)
			t.leftover = t.leftover[n:]
			t.mu.Unlock()
			return n, nil
		}
		t.mu.Unlock()

		if err := t.pl.failure(); err != nil {
			return 0, fmt.Errorf("%w: %v", capture.ErrSourceDead, err)
		}
		data, _, _, eos := t.pl.pull(50 * time.Millisecond)
		if eos {
			return 0, capture.ErrSourceDead
		}
		if data == nil {
			continue
		}
		t.mu.Lock()
		t.leftover = data
		t.mu.Unlock()
	}
}

func (t *tap) Stop() error {
	t.mu.Lock()
	t.stopped = true
	t.mu.Unlock()
	return nil
}

func (t *tap) Release() error {
	t.Stop()
	return t.pl.stop()
}

// audioEncoder is appsrc (PCM) → AAC encoder → appsink (raw AAC frames)
type audioEncoder struct {
	backend *Backend
	cfg     capture.AudioConfig
	src     *app.Source
	pl      *pipeline
	asc     []byte

	mu         sync.Mutex
	formatSent bool
	eosQueued  bool
	released   bool
}

func newAudioEncoder(b *Backend, cfg capture.AudioConfig) (*audioEncoder, error) {
	asc, err := aac.LC(cfg.SampleRate, cfg.Channels)
	if err != nil {
		return nil, err
	}
	src, err := app.NewAppSrc()
	if err != nil {
		return nil, fmt.Errorf("gst: create appsrc: %w", err)
	}
	src.SetCaps(gst.NewCapsFromString(pcmCaps(cfg)))
	src.SetProperty("format", gst.FormatTime)
	src.SetProperty("is-live", true)
	src.SetProperty("max-bytes", uint64(8*aac.SamplesPerFrame*cfg.BytesPerFrame()))

	convert, err := element("audioconvert", nil)
	if err != nil {
		return nil, err
	}
	enc, err := element(b.cfg.AudioEncoder, map[string]interface{}{"bitrate": cfg.Bitrate})
	if err != nil {
		return nil, err
	}
	parse, err := element("aacparse", nil)
	if err != nil {
		return nil, err
	}
	out, err := capsFilter("audio/mpeg,mpegversion=4,stream-format=raw")
	if err != nil {
		return nil, err
	}

	pl, err := newPipeline("aac", b.obs, src.Element, convert, enc, parse, out)
	if err != nil {
		return nil, err
	}
	if err := pl.start(); err != nil {
		return nil, err
	}
	return &audioEncoder{backend: b, cfg: cfg, src: src, pl: pl, asc: asc}, nil
}

func (e *audioEncoder) Name() string { return e.backend.cfg.AudioEncoder }

// QueueInput implements capture.AudioEncoder. appsrc queues internally, so
// input is accepted whole unless the encoder stopped.
func (e *audioEncoder) QueueInput(pcm []byte, pts time.Duration, timeout time.Duration) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.released {
		return 0, capture.ErrReleased
	}
	if e.eosQueued {
		return 0, nil
	}
	data := make([]byte, len(pcm))
	copy(data, pcm)
	buf := gst.NewBufferFromBytes(data)
	buf.SetPresentationTimestamp(pts)
	buf.SetDuration(aac.PCMDuration(int64(len(pcm)/e.cfg.BytesPerFrame()), e.cfg.SampleRate))
	if ret := e.src.PushBuffer(buf); ret != gst.FlowOK {
		return 0, fmt.Errorf("gst: push pcm: %s", ret)
	}
	return len(pcm), nil
}

func (e *audioEncoder) QueueEndOfStream(pts time.Duration, timeout time.Duration) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.released {
		return capture.ErrReleased
	}
	if e.eosQueued {
		return nil
	}
	e.eosQueued = true
	if ret := e.src.EndStream(); ret != gst.FlowOK {
		return fmt.Errorf("gst: end pcm stream: %s", ret)
	}
	return nil
}

// Dequeue implements capture.AudioEncoder. The format is known from the
// configuration, so it is reported before the first packet.
func (e *audioEncoder) Dequeue(timeout time.Duration) (capture.Output, error) {
	e.mu.Lock()
	if e.released {
		e.mu.Unlock()
		return nil, capture.ErrReleased
	}
	if !e.formatSent {
		e.formatSent = true
		e.mu.Unlock()
		return capture.FormatAvailable{Descriptor: types.TrackDescriptor{
			Kind:         types.TrackAudio,
			Codec:        types.CodecAAC,
			MimeType:     "audio/mp4a-latm",
			SampleRate:   e.cfg.SampleRate,
			Channels:     e.cfg.Channels,
			Bitrate:      e.cfg.Bitrate,
			CodecPrivate: e.asc,
		}}, nil
	}
	e.mu.Unlock()

	if err := e.pl.failure(); err != nil {
		return nil, err
	}
	data, pts, _, eos := e.pl.pull(timeout)
	if eos {
		return capture.SampleReady{Sample: types.EncodedSample{Kind: types.TrackAudio, PTS: pts, Flags: types.FlagEndOfStream}}, nil
	}
	if data == nil {
		return capture.NeedMoreTime{}, nil
	}
	return capture.SampleReady{Sample: types.EncodedSample{
		Kind: types.TrackAudio, Data: data, PTS: pts, Flags: types.FlagKeyFrame,
	}}, nil
}

func (e *audioEncoder) Release() error {
	e.mu.Lock()
	if e.released {
		e.mu.Unlock()
		return nil
	}
	e.released = true
	e.mu.Unlock()
	return e.pl.stop()
}
