// Package container owns the active container writer and rotates it
// between segment files without losing samples.
package container

import (
	"errors"

	"github.com/dj-oyu/screen-recorder/pkg/types"
)

var (
	ErrTrackRegistered     = errors.New("container: track already registered")
	ErrDescriptorsNotReady = errors.New("container: track descriptors not ready")
	ErrNotStarted          = errors.New("container: writer never started")
	ErrReleased            = errors.New("container: coordinator released")
	ErrMuxerStarted        = errors.New("container: muxer already started")
	ErrUnknownTrack        = errors.New("container: unknown track")
)

// Muxer writes one container file.
// Tracks are added before Start; samples after Start; Stop finalizes the
// file and Release frees whatever is left.
type Muxer interface {
	AddTrack(desc types.TrackDescriptor) (int, error)
	Start() error
	WriteSample(track int, sample types.EncodedSample) error
	Stop() error
	Release() error
}

// MuxerFactory opens a muxer writing to path
type MuxerFactory func(path string) (Muxer, error)
