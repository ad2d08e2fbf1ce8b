// Package synthetic is a capture backend that fabricates a paced H.264 and
// AAC stream in pure Go. It stands in for real devices in tests and demos
// and can inject the failures real devices produce.
package synthetic

import (
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dj-oyu/screen-recorder/internal/capture"
	"github.com/dj-oyu/screen-recorder/internal/telemetry"
	"github.com/dj-oyu/screen-recorder/pkg/types"
)

const module = "Synthetic"

// Name is the registry name of this backend
const Name = "synthetic"

// Config controls pacing and fault injection
type Config struct {
	// FormatDelay postpones the encoders' FormatAvailable output
	FormatDelay time.Duration
	// AudioFailAfter makes the tap report a dead source after this much audio
	AudioFailAfter time.Duration
	// FailVideoEncoder makes NewVideoEncoder return ErrNoEncoder
	FailVideoEncoder bool
	// FailDisplayBind makes CreateVirtualDisplay fail
	FailDisplayBind bool
	// FramePayload is the filler size of each coded slice
	FramePayload int
}

func init() {
	capture.Register(Name, func(opts capture.Options) (capture.Backend, error) {
		cfg := Config{}
		if v := opts.Param("format_delay", ""); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				return nil, err
			}
			cfg.FormatDelay = d
		}
		if v := opts.Param("audio_fail_after", ""); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				return nil, err
			}
			cfg.AudioFailAfter = d
		}
		if v := opts.Param("frame_payload", ""); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return nil, err
			}
			cfg.FramePayload = n
		}
		return New(cfg, opts.Observer), nil
	})
}

// Backend implements capture.Backend
type Backend struct {
	cfg   Config
	obs   telemetry.Observer
	epoch time.Time

	mu          sync.Mutex
	usedGrants  map[string]bool
	projections []*projection

	acquisitions  atomic.Int32
	videoEncoders atomic.Int32
	audioEncoders atomic.Int32
}

// New creates a synthetic backend
func New(cfg Config, obs telemetry.Observer) *Backend {
	if obs == nil {
		obs = telemetry.Nop()
	}
	if cfg.FramePayload <= 0 {
		cfg.FramePayload = 256
	}
	return &Backend{
		cfg:        cfg,
		obs:        obs,
		epoch:      time.Now().Add(-10 * time.Second),
		usedGrants: make(map[string]bool),
	}
}

// Name implements capture.Backend
func (b *Backend) Name() string { return Name }

// clock returns the backend's monotonic media clock; it does not start at zero
func (b *Backend) clock() time.Duration {
	return time.Since(b.epoch).Truncate(time.Microsecond)
}

// Acquire implements capture.Backend
func (b *Backend) Acquire(grant types.CaptureGrant) (capture.Projection, error) {
	if !grant.Approved() {
		return nil, capture.ErrGrantInvalid
	}
	key := string(grant.Payload)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.usedGrants[key] {
		return nil, capture.ErrGrantConsumed
	}
	b.usedGrants[key] = true
	b.acquisitions.Add(1)

	p := &projection{backend: b, stopped: make(chan struct{})}
	b.projections = append(b.projections, p)
	b.obs.Debug(module, "projection acquired (%d total)", b.acquisitions.Load())
	return p, nil
}

// NewVideoEncoder implements capture.Backend
func (b *Backend) NewVideoEncoder(cfg capture.VideoConfig) (capture.VideoEncoder, error) {
	if b.cfg.FailVideoEncoder {
		return nil, capture.ErrNoEncoder
	}
	b.videoEncoders.Add(1)
	return newVideoEncoder(b, cfg), nil
}

// NewAudioEncoder implements capture.Backend
func (b *Backend) NewAudioEncoder(cfg capture.AudioConfig) (capture.AudioEncoder, error) {
	b.audioEncoders.Add(1)
	return newAudioEncoder(b, cfg)
}

// Acquisitions returns how many projections were acquired
func (b *Backend) Acquisitions() int { return int(b.acquisitions.Load()) }

// EncodersCreated returns how many video and audio encoders were built
func (b *Backend) EncodersCreated() (video, audio int) {
	return int(b.videoEncoders.Load()), int(b.audioEncoders.Load())
}

// Revoke simulates the platform stopping every live projection
func (b *Backend) Revoke() {
	b.mu.Lock()
	ps := append([]*projection(nil), b.projections...)
	b.mu.Unlock()
	for _, p := range ps {
		p.Stop()
	}
}

type projection struct {
	backend *Backend
	once    sync.Once
	stopped chan struct{}
}

func (p *projection) CreateVirtualDisplay(cfg capture.DisplayConfig, s capture.Surface) (capture.VirtualDisplay, error) {
	if p.backend.cfg.FailDisplayBind {
		return nil, capture.ErrDisplayBind
	}
	sf, ok := s.(*surface)
	if !ok {
		return nil, capture.ErrDisplayBind
	}
	select {
	case <-p.stopped:
		return nil, capture.ErrReleased
	default:
	}
	sf.bind(cfg.Dimensions)
	return &display{surface: sf}, nil
}

func (p *projection) OpenAudioTap(cfg capture.AudioConfig) (capture.AudioTap, error) {
	return newTap(p.backend, cfg), nil
}

func (p *projection) Stopped() <-chan struct{} { return p.stopped }

func (p *projection) Stop() error {
	p.once.Do(func() { close(p.stopped) })
	return nil
}

type display struct {
	surface *surface
	once    sync.Once
}

func (d *display) Release() error {
	d.once.Do(d.surface.unbind)
	return nil
}
