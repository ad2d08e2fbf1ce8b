// Package aac builds and parses MPEG-4 AudioSpecificConfig records.
package aac

import (
	"errors"
	"fmt"
	"time"
)

// ObjectTypeLC is the AAC Low Complexity audio object type
const ObjectTypeLC = 2

// SamplesPerFrame is the number of PCM frames per AAC-LC access unit
const SamplesPerFrame = 1024

var sampleRates = [...]int{
	96000, 88200, 64000, 48000, 44100, 32000,
	24000, 22050, 16000, 12000, 11025, 8000, 7350,
}

// Config is the decoded form of an AudioSpecificConfig
type Config struct {
	ObjectType int
	SampleRate int
	Channels   int
}

func rateIndex(rate int) (int, bool) {
	for i, r := range sampleRates {
		if r == rate {
			return i, true
		}
	}
	return 0, false
}

// Marshal encodes the config as the two-byte AudioSpecificConfig
func (c Config) Marshal() ([]byte, error) {
	idx, ok := rateIndex(c.SampleRate)
	if !ok {
		return nil, fmt.Errorf("aac: unsupported sample rate %d", c.SampleRate)
	}
	if c.Channels < 1 || c.Channels > 7 {
		return nil, fmt.Errorf("aac: unsupported channel count %d", c.Channels)
	}
	ot := c.ObjectType
	if ot == 0 {
		ot = ObjectTypeLC
	}
	// 5 bits object type | 4 bits rate index | 4 bits channels | 3 bits GASpecificConfig
	v := uint16(ot)<<11 | uint16(idx)<<7 | uint16(c.Channels)<<3
	return []byte{byte(v >> 8), byte(v)}, nil
}

// Parse decodes a two-byte AudioSpecificConfig
func Parse(b []byte) (Config, error) {
	if len(b) < 2 {
		return Config{}, errors.New("aac: AudioSpecificConfig too short")
	}
	v := uint16(b[0])<<8 | uint16(b[1])
	idx := int(v>>7) & 0x0F
	if idx >= len(sampleRates) {
		return Config{}, fmt.Errorf("aac: explicit or reserved sample rate index %d", idx)
	}
	return Config{
		ObjectType: int(v >> 11),
		SampleRate: sampleRates[idx],
		Channels:   int(v>>3) & 0x0F,
	}, nil
}

// LC returns the AAC-LC AudioSpecificConfig for rate and channels
func LC(sampleRate, channels int) ([]byte, error) {
	return Config{ObjectType: ObjectTypeLC, SampleRate: sampleRate, Channels: channels}.Marshal()
}

// FrameDuration returns the playback duration of one AAC-LC access unit
func FrameDuration(sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	return time.Duration(SamplesPerFrame) * time.Second / time.Duration(sampleRate)
}

// PCMDuration returns the playback duration of frames PCM frames
func PCMDuration(frames int64, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	// microsecond resolution, matching encoder timestamps
	return time.Duration(frames*1_000_000/int64(sampleRate)) * time.Microsecond
}
