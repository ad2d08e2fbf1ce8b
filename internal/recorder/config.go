package recorder

import (
	"time"

	"github.com/dj-oyu/screen-recorder/internal/aac"
	"github.com/dj-oyu/screen-recorder/internal/cadence"
	"github.com/dj-oyu/screen-recorder/internal/capture"
)

// Config holds the recording parameters
type Config struct {
	FrameRate        int
	KeyFrameInterval time.Duration
	DensityDpi       int
	DisplayName      string

	Audio       capture.AudioConfig
	ChunkFrames int

	// MinDuration defers a stop until the recording is at least this long
	MinDuration time.Duration
	// DequeueTimeout bounds every encoder dequeue
	DequeueTimeout time.Duration
	// StopPollDelay is the pause between empty dequeues while waiting for end of stream
	StopPollDelay time.Duration
	// InputRetryDelay is the pause when the audio encoder has no free input slot
	InputRetryDelay time.Duration
	// StallWarning is how long a drain may wait for end of stream before warning
	StallWarning time.Duration

	MinFreeBytes uint64
	Cadence      cadence.Thresholds
}

// DefaultConfig returns 30 fps H.264 with 1 s key frames and 44.1 kHz stereo AAC
func DefaultConfig() Config {
	return Config{
		FrameRate:        30,
		KeyFrameInterval: time.Second,
		DensityDpi:       160,
		DisplayName:      "ScreenRecorder",
		Audio: capture.AudioConfig{
			SampleRate: 44100,
			Channels:   2,
			Bitrate:    128_000,
		},
		ChunkFrames:     aac.SamplesPerFrame,
		MinDuration:     2 * time.Second,
		DequeueTimeout:  10 * time.Millisecond,
		StopPollDelay:   5 * time.Millisecond,
		InputRetryDelay: 2 * time.Millisecond,
		StallWarning:    2 * time.Second,
		Cadence:         cadence.DefaultThresholds(),
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.FrameRate <= 0 {
		c.FrameRate = d.FrameRate
	}
	if c.KeyFrameInterval <= 0 {
		c.KeyFrameInterval = d.KeyFrameInterval
	}
	if c.DensityDpi <= 0 {
		c.DensityDpi = d.DensityDpi
	}
	if c.DisplayName == "" {
		c.DisplayName = d.DisplayName
	}
	if c.Audio.SampleRate <= 0 {
		c.Audio.SampleRate = d.Audio.SampleRate
	}
	if c.Audio.Channels <= 0 {
		c.Audio.Channels = d.Audio.Channels
	}
	if c.Audio.Bitrate <= 0 {
		c.Audio.Bitrate = d.Audio.Bitrate
	}
	if c.ChunkFrames <= 0 {
		c.ChunkFrames = d.ChunkFrames
	}
	if c.MinDuration < 0 {
		c.MinDuration = 0
	}
	if c.DequeueTimeout <= 0 {
		c.DequeueTimeout = d.DequeueTimeout
	}
	if c.StopPollDelay <= 0 {
		c.StopPollDelay = d.StopPollDelay
	}
	if c.InputRetryDelay <= 0 {
		c.InputRetryDelay = d.InputRetryDelay
	}
	if c.StallWarning <= 0 {
		c.StallWarning = d.StallWarning
	}
	return c
}
