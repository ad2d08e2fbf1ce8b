//go:build gstreamer

package gst

import (
	"fmt"
	"sync"

	"github.com/dj-oyu/screen-recorder/internal/capture"
	"github.com/dj-oyu/screen-recorder/internal/telemetry"
	"github.com/dj-oyu/screen-recorder/pkg/types"
)

const module = "GStreamer"

// Name is the registry name of this backend
const Name = "gstreamer"

// Config selects the GStreamer elements. Empty fields use the defaults.
type Config struct {
	VideoSource  string // ximagesrc
	VideoEncoder string // x264enc
	AudioSource  string // pulsesrc
	AudioDevice  string // PulseAudio monitor source, empty for the default sink monitor
	AudioEncoder string // avenc_aac
}

func (c Config) withDefaults() Config {
	if c.VideoSource == "" {
		c.VideoSource = "ximagesrc"
	}
	if c.VideoEncoder == "" {
		c.VideoEncoder = "x264enc"
	}
	if c.AudioSource == "" {
		c.AudioSource = "pulsesrc"
	}
	if c.AudioEncoder == "" {
		c.AudioEncoder = "avenc_aac"
	}
	return c
}

func init() {
	capture.Register(Name, func(opts capture.Options) (capture.Backend, error) {
		return New(Config{
			VideoSource:  opts.Param("video_source", ""),
			VideoEncoder: opts.Param("video_encoder", ""),
			AudioSource:  opts.Param("audio_source", ""),
			AudioDevice:  opts.Param("audio_device", ""),
			AudioEncoder: opts.Param("audio_encoder", ""),
		}, opts.Observer), nil
	})
}

// Backend implements capture.Backend on GStreamer
type Backend struct {
	cfg Config
	obs telemetry.Observer

	mu   sync.Mutex
	used map[string]bool
}

// New creates a GStreamer backend
func New(cfg Config, obs telemetry.Observer) *Backend {
	if obs == nil {
		obs = telemetry.Nop()
	}
	initGStreamer()
	return &Backend{cfg: cfg.withDefaults(), obs: obs, used: make(map[string]bool)}
}

// Name implements capture.Backend
func (b *Backend) Name() string { return Name }

// Acquire implements capture.Backend. Desktop capture needs no consent
// token beyond an approved grant, but each grant is still single use.
func (b *Backend) Acquire(grant types.CaptureGrant) (capture.Projection, error) {
	if !grant.Approved() {
		return nil, capture.ErrGrantInvalid
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	key := string(grant.Payload)
	if b.used[key] {
		return nil, capture.ErrGrantConsumed
	}
	b.used[key] = true
	return &projection{backend: b, stopped: make(chan struct{})}, nil
}

// NewVideoEncoder implements capture.Backend
func (b *Backend) NewVideoEncoder(cfg capture.VideoConfig) (capture.VideoEncoder, error) {
	enc, err := newVideoEncoder(b, cfg)
	if err != nil {
		b.obs.Error(module, "video encoder %s: %v", b.cfg.VideoEncoder, err)
		return nil, fmt.Errorf("%w: %v", capture.ErrNoEncoder, err)
	}
	return enc, nil
}

// NewAudioEncoder implements capture.Backend
func (b *Backend) NewAudioEncoder(cfg capture.AudioConfig) (capture.AudioEncoder, error) {
	enc, err := newAudioEncoder(b, cfg)
	if err != nil {
		b.obs.Error(module, "audio encoder %s: %v", b.cfg.AudioEncoder, err)
		return nil, fmt.Errorf("%w: %v", capture.ErrNoEncoder, err)
	}
	return enc, nil
}

type projection struct {
	backend *Backend
	once    sync.Once
	stopped chan struct{}
}

// CreateVirtualDisplay starts the screen pipeline of the encoder owning surface
func (p *projection) CreateVirtualDisplay(cfg capture.DisplayConfig, s capture.Surface) (capture.VirtualDisplay, error) {
	sf, ok := s.(*surface)
	if !ok {
		return nil, capture.ErrDisplayBind
	}
	select {
	case <-p.stopped:
		return nil, capture.ErrReleased
	default:
	}
	if err := sf.enc.pl.start(); err != nil {
		return nil, fmt.Errorf("%w: %v", capture.ErrDisplayBind, err)
	}
	p.backend.obs.Info(module, "Virtual display %q %dx%d bound to %s",
		cfg.Name, cfg.Dimensions.WidthPx, cfg.Dimensions.HeightPx, sf.Name())
	return &display{enc: sf.enc}, nil
}

func (p *projection) OpenAudioTap(cfg capture.AudioConfig) (capture.AudioTap, error) {
	return newTap(p.backend, cfg)
}

func (p *projection) Stopped() <-chan struct{} { return p.stopped }

func (p *projection) Stop() error {
	p.once.Do(func() { close(p.stopped) })
	return nil
}

type display struct {
	enc  *videoEncoder
	once sync.Once
}

// Release stops the screen source; the encoder keeps what it already flushed
func (d *display) Release() error {
	var err error
	d.once.Do(func() { err = d.enc.pl.stop() })
	return err
}
