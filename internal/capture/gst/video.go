//go:build gstreamer

package gst

import (
	"fmt"
	"sync"
	"time"

	"github.com/tinyzimmer/go-gst/gst"

	"github.com/dj-oyu/screen-recorder/internal/capture"
	"github.com/dj-oyu/screen-recorder/internal/h264"
	"github.com/dj-oyu/screen-recorder/pkg/types"
)

type surface struct {
	enc *videoEncoder
}

func (s *surface) Name() string { return "gst-" + s.enc.backend.cfg.VideoSource }

// videoEncoder is a screen source → scale → H.264 → appsink pipeline. The
// pipeline only runs while a virtual display is bound to its surface.
type videoEncoder struct {
	backend *Backend
	cfg     capture.VideoConfig
	pl      *pipeline
	encoder *gst.Element
	proc    *h264.Processor

	mu         sync.Mutex
	formatSent bool
	pending    *types.EncodedSample
	eos        bool
	released   bool
}

func newVideoEncoder(b *Backend, cfg capture.VideoConfig) (*videoEncoder, error) {
	fps := cfg.FrameRate
	if fps <= 0 {
		fps = 30
	}
	keyInt := int(cfg.KeyFrameInterval.Seconds() * float64(fps))
	if keyInt <= 0 {
		keyInt = fps
	}

	src, err := element(b.cfg.VideoSource, map[string]interface{}{"use-damage": false})
	if err != nil {
		return nil, err
	}
	convert, err := element("videoconvert", nil)
	if err != nil {
		return nil, err
	}
	scale, err := element("videoscale", nil)
	if err != nil {
		return nil, err
	}
	rate, err := element("videorate", nil)
	if err != nil {
		return nil, err
	}
	raw, err := capsFilter(fmt.Sprintf("video/x-raw,format=I420,width=%d,height=%d,framerate=%d/1",
		cfg.Dimensions.WidthPx, cfg.Dimensions.HeightPx, fps))
	if err != nil {
		return nil, err
	}
	enc, err := element(b.cfg.VideoEncoder, map[string]interface{}{
		"bitrate":     uint(cfg.Bitrate / 1000),
		"key-int-max": uint(keyInt),
		"bframes":     uint(0),
	})
	if err != nil {
		return nil, err
	}
	if b.cfg.VideoEncoder == "x264enc" {
		enc.SetProperty("tune", "zerolatency")
		enc.SetProperty("speed-preset", "veryfast")
	}
	parse, err := element("h264parse", map[string]interface{}{"config-interval": -1})
	if err != nil {
		return nil, err
	}
	out, err := capsFilter("video/x-h264,stream-format=byte-stream,alignment=au")
	if err != nil {
		return nil, err
	}

	pl, err := newPipeline("screen", b.obs, src, convert, scale, rate, raw, enc, parse, out)
	if err != nil {
		return nil, err
	}
	return &videoEncoder{backend: b, cfg: cfg, pl: pl, encoder: enc, proc: h264.NewProcessor()}, nil
}

func (e *videoEncoder) Name() string             { return e.backend.cfg.VideoEncoder }
func (e *videoEncoder) Surface() capture.Surface { return &surface{enc: e} }

func (e *videoEncoder) descriptor() (types.TrackDescriptor, error) {
	rec, err := e.proc.DecoderConfig()
	if err != nil {
		return types.TrackDescriptor{}, err
	}
	fps := e.cfg.FrameRate
	if fps <= 0 {
		fps = 30
	}
	return types.TrackDescriptor{
		Kind:         types.TrackVideo,
		Codec:        types.CodecH264,
		MimeType:     "video/avc",
		Width:        e.cfg.Dimensions.WidthPx,
		Height:       e.cfg.Dimensions.HeightPx,
		FrameRate:    fps,
		Bitrate:      e.cfg.Bitrate,
		CodecPrivate: rec,
	}, nil
}

// Dequeue implements capture.VideoEncoder. The first access unit carrying
// SPS and PPS produces FormatAvailable and is returned on the next call.
func (e *videoEncoder) Dequeue(timeout time.Duration) (capture.Output, error) {
	e.mu.Lock()
	if e.released {
		e.mu.Unlock()
		return nil, capture.ErrReleased
	}
	if e.pending != nil {
		s := *e.pending
		e.pending = nil
		e.mu.Unlock()
		return capture.SampleReady{Sample: s}, nil
	}
	e.mu.Unlock()

	if err := e.pl.failure(); err != nil {
		return nil, err
	}
	if !e.pl.isRunning() {
		e.mu.Lock()
		eos := e.eos
		e.mu.Unlock()
		if eos {
			return capture.SampleReady{Sample: types.EncodedSample{Kind: types.TrackVideo, Flags: types.FlagEndOfStream}}, nil
		}
		time.Sleep(timeout)
		return capture.NeedMoreTime{}, nil
	}

	data, pts, delta, eos := e.pl.pull(timeout)
	if eos {
		return capture.SampleReady{Sample: types.EncodedSample{Kind: types.TrackVideo, PTS: pts, Flags: types.FlagEndOfStream}}, nil
	}
	if data == nil {
		return capture.NeedMoreTime{}, nil
	}

	au, err := e.proc.Process(data)
	if err != nil {
		e.backend.obs.Debug(module, "skip unparsable access unit: %v", err)
		return capture.NeedMoreTime{}, nil
	}
	var flags types.SampleFlags
	if !delta || au.HasIDR {
		flags |= types.FlagKeyFrame
	}
	if au.ConfigOnly {
		flags |= types.FlagCodecConfig
	}
	sample := types.EncodedSample{Kind: types.TrackVideo, Data: data, PTS: pts, Flags: flags}

	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.formatSent {
		if !e.proc.HasHeaders() {
			return capture.NeedMoreTime{}, nil
		}
		desc, err := e.descriptor()
		if err != nil {
			return nil, fmt.Errorf("gst: video format: %w", err)
		}
		e.formatSent = true
		e.pending = &sample
		return capture.FormatAvailable{Descriptor: desc}, nil
	}
	return capture.SampleReady{Sample: sample}, nil
}

// SignalEndOfInput implements capture.VideoEncoder
func (e *videoEncoder) SignalEndOfInput() error {
	e.mu.Lock()
	e.eos = true
	e.mu.Unlock()
	if e.pl.isRunning() {
		e.pl.sendEOS()
	}
	return nil
}

// RequestKeyFrame sends an upstream force-key-unit event through the sink
func (e *videoEncoder) RequestKeyFrame() error {
	ev := gst.NewCustomEvent(gst.EventTypeCustomUpstream, gst.NewStructure("GstForceKeyUnit"))
	if !e.pl.sink.SendEvent(ev) {
		return fmt.Errorf("gst: force key unit rejected by %s", e.Name())
	}
	return nil
}

// Release implements capture.VideoEncoder
func (e *videoEncoder) Release() error {
	e.mu.Lock()
	if e.released {
		e.mu.Unlock()
		return nil
	}
	e.released = true
	e.mu.Unlock()
	return e.pl.stop()
}
