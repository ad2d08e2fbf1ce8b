package synthetic

import (
	"sync"
	"time"

	"github.com/dj-oyu/screen-recorder/internal/capture"
	"github.com/dj-oyu/screen-recorder/internal/h264"
	"github.com/dj-oyu/screen-recorder/pkg/types"
)

// surface is the encoder input. A bound display starts the frame clock.
type surface struct {
	name string

	mu    sync.Mutex
	bound bool
	dims  types.RecordingDimensions
}

func (s *surface) Name() string { return s.name }

func (s *surface) bind(dims types.RecordingDimensions) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bound = true
	s.dims = dims
}

func (s *surface) unbind() {
	s.mu.Lock()
	s.bound = false
	s.mu.Unlock()
}

func (s *surface) isBound() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bound
}

type videoEncoder struct {
	backend  *Backend
	cfg      capture.VideoConfig
	surface  *surface
	interval time.Duration
	gop      int
	formatAt time.Duration

	mu           sync.Mutex
	formatSent   bool
	configSent   bool
	frames       int
	nextDue      time.Duration
	forceKey     bool
	eosRequested bool
	eosSent      bool
	released     bool
}

func newVideoEncoder(b *Backend, cfg capture.VideoConfig) *videoEncoder {
	fps := cfg.FrameRate
	if fps <= 0 {
		fps = 30
	}
	gop := int(cfg.KeyFrameInterval.Seconds() * float64(fps))
	if gop <= 0 {
		gop = fps
	}
	return &videoEncoder{
		backend:  b,
		cfg:      cfg,
		surface:  &surface{name: "synthetic-surface"},
		interval: time.Second / time.Duration(fps),
		gop:      gop,
		formatAt: b.clock() + b.cfg.FormatDelay,
	}
}

func (e *videoEncoder) Name() string             { return "synthetic-h264" }
func (e *videoEncoder) Surface() capture.Surface { return e.surface }

func (e *videoEncoder) descriptor() types.TrackDescriptor {
	rec, _ := h264.DecoderConfigRecord(h264.BaselineSPS, h264.BaselinePPS)
	return types.TrackDescriptor{
		Kind:         types.TrackVideo,
		Codec:        types.CodecH264,
		MimeType:     "video/avc",
		Width:        e.cfg.Dimensions.WidthPx,
		Height:       e.cfg.Dimensions.HeightPx,
		FrameRate:    int(time.Second / e.interval),
		Bitrate:      e.cfg.Bitrate,
		CodecPrivate: rec,
	}
}

func (e *videoEncoder) frame(key bool) []byte {
	payload := make([]byte, e.backend.cfg.FramePayload)
	for i := range payload {
		payload[i] = byte(0x80 | (e.frames+i)&0x7F)
	}
	if key {
		return h264.AppendAnnexB(nil, h264.BaselineSPS, h264.BaselinePPS, append([]byte{0x65}, payload...))
	}
	return h264.AppendAnnexB(nil, append([]byte{0x41}, payload...))
}

// Dequeue implements capture.VideoEncoder
func (e *videoEncoder) Dequeue(timeout time.Duration) (capture.Output, error) {
	e.mu.Lock()
	if e.released {
		e.mu.Unlock()
		return nil, capture.ErrReleased
	}
	now := e.backend.clock()

	if e.eosRequested && !e.eosSent {
		e.eosSent = true
		pts := e.nextDue
		e.mu.Unlock()
		return capture.SampleReady{Sample: types.EncodedSample{
			Kind: types.TrackVideo, PTS: pts, Flags: types.FlagEndOfStream,
		}}, nil
	}
	if e.eosSent {
		e.mu.Unlock()
		time.Sleep(timeout)
		return capture.NeedMoreTime{}, nil
	}

	if !e.surface.isBound() {
		e.mu.Unlock()
		time.Sleep(timeout)
		return capture.NeedMoreTime{}, nil
	}

	if !e.formatSent {
		if now < e.formatAt {
			wait := min(timeout, e.formatAt-now)
			e.mu.Unlock()
			time.Sleep(wait)
			return capture.NeedMoreTime{}, nil
		}
		e.formatSent = true
		e.nextDue = now
		d := e.descriptor()
		e.mu.Unlock()
		return capture.FormatAvailable{Descriptor: d}, nil
	}

	if !e.configSent {
		e.configSent = true
		e.mu.Unlock()
		return capture.SampleReady{Sample: types.EncodedSample{
			Kind:  types.TrackVideo,
			PTS:   0,
			Flags: types.FlagCodecConfig,
			Data:  h264.AppendAnnexB(nil, h264.BaselineSPS, h264.BaselinePPS),
		}}, nil
	}

	due := e.nextDue
	if due > now {
		wait := due - now
		if wait > timeout {
			e.mu.Unlock()
			time.Sleep(timeout)
			return capture.NeedMoreTime{}, nil
		}
		e.mu.Unlock()
		time.Sleep(wait)
		e.mu.Lock()
		if e.eosRequested || e.released {
			e.mu.Unlock()
			return capture.NeedMoreTime{}, nil
		}
	}

	key := e.frames%e.gop == 0 || e.forceKey
	e.forceKey = false
	data := e.frame(key)
	e.frames++
	e.nextDue = due + e.interval
	e.mu.Unlock()

	flags := types.SampleFlags(0)
	if key {
		flags = types.FlagKeyFrame
	}
	return capture.SampleReady{Sample: types.EncodedSample{
		Kind: types.TrackVideo, PTS: due, Flags: flags, Data: data,
	}}, nil
}

// SignalEndOfInput implements capture.VideoEncoder
func (e *videoEncoder) SignalEndOfInput() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.released {
		return capture.ErrReleased
	}
	e.eosRequested = true
	return nil
}

// RequestKeyFrame implements capture.VideoEncoder
func (e *videoEncoder) RequestKeyFrame() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.forceKey = true
	return nil
}

// Release implements capture.VideoEncoder
func (e *videoEncoder) Release() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.released = true
	return nil
}
