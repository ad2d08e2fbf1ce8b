package config

import (
	"fmt"
	"strings"

	"github.com/dj-oyu/screen-recorder/internal/logger"
)

var validLogLevels = map[string]bool{
	"debug":   true,
	"info":    true,
	"warn":    true,
	"warning": true,
	"error":   true,
	"silent":  true,
	"off":     true,
}

var validSampleRates = map[int]bool{
	8000: true, 11025: true, 16000: true, 22050: true, 24000: true,
	32000: true, 44100: true, 48000: true, 88200: true, 96000: true,
}

// clampInt keeps *v within [lo, hi] and reports the adjustment
func clampInt(errs []error, name string, v *int, lo, hi int) []error {
	switch {
	case *v < lo:
		errs = append(errs, fmt.Errorf("%s %d is below minimum %d, clamping", name, *v, lo))
		*v = lo
	case *v > hi:
		errs = append(errs, fmt.Errorf("%s %d exceeds maximum %d, clamping", name, *v, hi))
		*v = hi
	}
	return errs
}

// Validate checks the config and returns every problem found. Values that
// would break the pipeline are clamped to a safe range; the rest are
// reported as warnings and do not prevent startup.
func (c *Config) Validate() []error {
	var errs []error

	if strings.TrimSpace(c.OutputDir) == "" {
		errs = append(errs, fmt.Errorf("output_dir is empty, using %q", Default().OutputDir))
		c.OutputDir = Default().OutputDir
	}
	if strings.ContainsAny(c.FilePrefix, `/\`) {
		errs = append(errs, fmt.Errorf("file_prefix %q contains a path separator, using default", c.FilePrefix))
		c.FilePrefix = Default().FilePrefix
	}

	if c.ScaleFactor <= 0 || c.ScaleFactor > 1 {
		errs = append(errs, fmt.Errorf("scale_factor %g outside (0, 1], using %g", c.ScaleFactor, Default().ScaleFactor))
		c.ScaleFactor = Default().ScaleFactor
	}
	errs = clampInt(errs, "min_width", &c.MinWidth, 2, 7680)
	errs = clampInt(errs, "min_height", &c.MinHeight, 2, 7680)

	errs = clampInt(errs, "video.frame_rate", &c.Video.FrameRate, 1, 120)
	errs = clampInt(errs, "video.keyframe_interval_seconds", &c.Video.KeyframeIntervalSeconds, 1, 60)

	if !validSampleRates[c.Audio.SampleRate] {
		errs = append(errs, fmt.Errorf("audio.sample_rate %d is not an AAC sampling rate, using 44100", c.Audio.SampleRate))
		c.Audio.SampleRate = 44100
	}
	errs = clampInt(errs, "audio.channels", &c.Audio.Channels, 1, 2)
	errs = clampInt(errs, "audio.bitrate", &c.Audio.Bitrate, 32_000, 320_000)
	errs = clampInt(errs, "audio.chunk_frames", &c.Audio.ChunkFrames, 256, 8192)

	errs = clampInt(errs, "min_recording_ms", &c.MinRecordingMs, 0, 60_000)
	errs = clampInt(errs, "dequeue_timeout_ms", &c.DequeueTimeoutMs, 1, 1000)
	if c.AutoSplitSeconds != 0 {
		errs = clampInt(errs, "auto_split_seconds", &c.AutoSplitSeconds, 5, 24*3600)
	}

	errs = clampInt(errs, "cadence.video_spike_ms", &c.Cadence.VideoSpikeMs, 1, 10_000)
	errs = clampInt(errs, "cadence.audio_spike_ms", &c.Cadence.AudioSpikeMs, 1, 10_000)
	errs = clampInt(errs, "cadence.skew_tolerance_ms", &c.Cadence.SkewToleranceMs, 1, 60_000)
	errs = clampInt(errs, "verify.duration_tolerance_ms", &c.Verify.DurationToleranceMs, 1, 60_000)

	if c.Screen.Width <= 0 || c.Screen.Height <= 0 {
		errs = append(errs, fmt.Errorf("screen %dx%d is not a valid size, using default", c.Screen.Width, c.Screen.Height))
		c.Screen.Width, c.Screen.Height = Default().Screen.Width, Default().Screen.Height
	}
	errs = clampInt(errs, "screen.density", &c.Screen.Density, 72, 1000)

	if c.LogLevel != "" && !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Errorf("log_level %q is not valid (use debug, info, warn, error)", c.LogLevel))
	}

	for _, err := range errs {
		logger.Warn("Config", "%v", err)
	}
	return errs
}
