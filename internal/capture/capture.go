// Package capture defines the screen, audio and encoder devices a recording
// drives, and a registry of backends that provide them.
package capture

import (
	"errors"
	"time"

	"github.com/dj-oyu/screen-recorder/pkg/types"
)

var (
	ErrGrantInvalid  = errors.New("capture: grant not approved")
	ErrGrantConsumed = errors.New("capture: grant already used")
	ErrNoEncoder     = errors.New("capture: no suitable encoder")
	ErrDisplayBind   = errors.New("capture: virtual display could not bind to encoder surface")
	ErrSourceDead    = errors.New("capture: audio source is gone")
	ErrTapStopped    = errors.New("capture: audio tap stopped")
	ErrReleased      = errors.New("capture: device released")
)

// Output is one result of an encoder dequeue: FormatAvailable, SampleReady
// or NeedMoreTime.
type Output interface {
	isOutput()
}

// FormatAvailable carries the encoder's output format. It precedes the
// first real sample.
type FormatAvailable struct {
	Descriptor types.TrackDescriptor
}

// SampleReady carries one encoded sample
type SampleReady struct {
	Sample types.EncodedSample
}

// NeedMoreTime means nothing was ready within the dequeue timeout
type NeedMoreTime struct{}

func (FormatAvailable) isOutput() {}
func (SampleReady) isOutput()     {}
func (NeedMoreTime) isOutput()    {}

// VideoConfig configures a surface-input video encoder
type VideoConfig struct {
	Dimensions       types.RecordingDimensions
	Bitrate          int
	FrameRate        int
	KeyFrameInterval time.Duration
}

// AudioConfig configures the system-audio tap and encoder.
// PCM is signed 16-bit little endian, interleaved.
type AudioConfig struct {
	SampleRate int
	Channels   int
	Bitrate    int
}

// BytesPerFrame returns the size of one interleaved PCM frame
func (c AudioConfig) BytesPerFrame() int {
	return 2 * c.Channels
}

// DisplayConfig configures the virtual display mirroring the screen
type DisplayConfig struct {
	Name       string
	Dimensions types.RecordingDimensions
	DensityDpi int
}

// Surface is an encoder input that a virtual display renders into
type Surface interface {
	Name() string
}

// VideoEncoder consumes frames from its Surface and produces encoded samples
type VideoEncoder interface {
	Name() string
	Surface() Surface
	// Dequeue waits at most timeout for the next output
	Dequeue(timeout time.Duration) (Output, error)
	// SignalEndOfInput makes the encoder flush and emit an end-of-stream sample
	SignalEndOfInput() error
	RequestKeyFrame() error
	Release() error
}

// AudioEncoder encodes PCM pushed through its input queue
type AudioEncoder interface {
	Name() string
	// QueueInput offers PCM stamped with pts and returns how many bytes were
	// accepted. Zero means no input slot was free within timeout.
	QueueInput(pcm []byte, pts time.Duration, timeout time.Duration) (int, error)
	// QueueEndOfStream queues an empty end-of-stream input
	QueueEndOfStream(pts time.Duration, timeout time.Duration) error
	Dequeue(timeout time.Duration) (Output, error)
	Release() error
}

// AudioTap reads the mixed system output as PCM
type AudioTap interface {
	Start() error
	// Read blocks until PCM is available. It returns ErrTapStopped after
	// Stop and ErrSourceDead when the source disappeared.
	Read(buf []byte) (int, error)
	Stop() error
	Release() error
}

// VirtualDisplay mirrors the screen into a Surface
type VirtualDisplay interface {
	Release() error
}

// Projection is the screen-capture session a grant authorizes
type Projection interface {
	CreateVirtualDisplay(cfg DisplayConfig, surface Surface) (VirtualDisplay, error)
	OpenAudioTap(cfg AudioConfig) (AudioTap, error)
	// Stopped is closed when the platform revokes the projection
	Stopped() <-chan struct{}
	Stop() error
}

// Backend provides projections and encoders
type Backend interface {
	Name() string
	Acquire(grant types.CaptureGrant) (Projection, error)
	NewVideoEncoder(cfg VideoConfig) (VideoEncoder, error)
	NewAudioEncoder(cfg AudioConfig) (AudioEncoder, error)
}
