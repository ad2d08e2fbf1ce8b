package types

import (
	"fmt"
	"strings"
	"time"
)

// TrackKind identifies the elementary stream a sample or descriptor belongs to
type TrackKind int

const (
	TrackVideo TrackKind = iota
	TrackAudio
)

func (k TrackKind) String() string {
	switch k {
	case TrackVideo:
		return "video"
	case TrackAudio:
		return "audio"
	default:
		return fmt.Sprintf("track(%d)", int(k))
	}
}

// SampleFlags is a bit set describing an encoded sample
type SampleFlags uint8

const (
	FlagKeyFrame SampleFlags = 1 << iota
	FlagCodecConfig
	FlagEndOfStream
)

// Has reports whether every bit of f2 is set in f
func (f SampleFlags) Has(f2 SampleFlags) bool {
	return f&f2 == f2
}

func (f SampleFlags) String() string {
	if f == 0 {
		return "none"
	}
	var parts []string
	if f.Has(FlagKeyFrame) {
		parts = append(parts, "key")
	}
	if f.Has(FlagCodecConfig) {
		parts = append(parts, "config")
	}
	if f.Has(FlagEndOfStream) {
		parts = append(parts, "eos")
	}
	return strings.Join(parts, "|")
}

// EncodedSample is one unit of encoder output.
// Data is owned by the sample once it leaves the encoder.
type EncodedSample struct {
	Kind  TrackKind
	Data  []byte
	PTS   time.Duration // presentation timestamp, microsecond resolution
	Flags SampleFlags
}

// IsEndOfStream reports whether the sample marks the end of its stream
func (s EncodedSample) IsEndOfStream() bool {
	return s.Flags.Has(FlagEndOfStream)
}

// IsCodecConfig reports whether the sample carries only codec configuration
func (s EncodedSample) IsCodecConfig() bool {
	return s.Flags.Has(FlagCodecConfig)
}

// Codec identifiers used in TrackDescriptor.Codec
const (
	CodecH264 = "h264"
	CodecAAC  = "aac"
)

// TrackDescriptor describes an encoder's output format.
// Emitted once per encoder before its first real sample.
type TrackDescriptor struct {
	Kind     TrackKind
	Codec    string
	MimeType string

	// Video
	Width     int
	Height    int
	FrameRate int

	// Audio
	SampleRate int
	Channels   int

	Bitrate int

	// CodecPrivate is the container-level decoder configuration
	// (avcC record for H.264, AudioSpecificConfig for AAC).
	CodecPrivate []byte
}

// Valid reports whether the descriptor carries enough information to create a track
func (d TrackDescriptor) Valid() bool {
	if d.Codec == "" {
		return false
	}
	switch d.Kind {
	case TrackVideo:
		return d.Width > 0 && d.Height > 0
	case TrackAudio:
		return d.SampleRate > 0 && d.Channels > 0
	}
	return false
}

func (d TrackDescriptor) String() string {
	if d.Kind == TrackVideo {
		return fmt.Sprintf("%s %dx%d@%dfps %dbps", d.Codec, d.Width, d.Height, d.FrameRate, d.Bitrate)
	}
	return fmt.Sprintf("%s %dHz ch=%d %dbps", d.Codec, d.SampleRate, d.Channels, d.Bitrate)
}
