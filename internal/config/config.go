// Package config loads recorder settings from a YAML file and SCREENREC_*
// environment variables.
package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/dj-oyu/screen-recorder/internal/cadence"
	"github.com/dj-oyu/screen-recorder/internal/capture"
	"github.com/dj-oyu/screen-recorder/internal/dimension"
	"github.com/dj-oyu/screen-recorder/internal/recorder"
	"github.com/dj-oyu/screen-recorder/pkg/types"
)

// EnvPrefix prefixes every environment override, e.g. SCREENREC_VIDEO_FRAME_RATE
const EnvPrefix = "SCREENREC"

type Config struct {
	OutputDir     string            `mapstructure:"output_dir"`
	FilePrefix    string            `mapstructure:"file_prefix"`
	Backend       string            `mapstructure:"backend"`
	BackendParams map[string]string `mapstructure:"backend_params"`

	ScaleFactor float64 `mapstructure:"scale_factor"`
	MinWidth    int     `mapstructure:"min_width"`
	MinHeight   int     `mapstructure:"min_height"`

	Screen  ScreenConfig  `mapstructure:"screen"`
	Video   VideoConfig   `mapstructure:"video"`
	Audio   AudioConfig   `mapstructure:"audio"`
	Cadence CadenceConfig `mapstructure:"cadence"`
	Verify  VerifyConfig  `mapstructure:"verify"`

	MinRecordingMs   int    `mapstructure:"min_recording_ms"`
	AutoSplitSeconds int    `mapstructure:"auto_split_seconds"`
	DequeueTimeoutMs int    `mapstructure:"dequeue_timeout_ms"`
	MinFreeBytes     uint64 `mapstructure:"min_free_bytes"`

	HTTPAddr    string `mapstructure:"http_addr"`
	MetricsAddr string `mapstructure:"metrics_addr"`
	LogLevel    string `mapstructure:"log_level"`
	LogColor    bool   `mapstructure:"log_color"`
}

// ScreenConfig describes the physical display when the backend cannot query it
type ScreenConfig struct {
	Width   int `mapstructure:"width"`
	Height  int `mapstructure:"height"`
	Density int `mapstructure:"density"`
}

type VideoConfig struct {
	FrameRate               int `mapstructure:"frame_rate"`
	KeyframeIntervalSeconds int `mapstructure:"keyframe_interval_seconds"`
}

type AudioConfig struct {
	SampleRate  int `mapstructure:"sample_rate"`
	Channels    int `mapstructure:"channels"`
	Bitrate     int `mapstructure:"bitrate"`
	ChunkFrames int `mapstructure:"chunk_frames"`
}

type CadenceConfig struct {
	VideoSpikeMs    int `mapstructure:"video_spike_ms"`
	AudioSpikeMs    int `mapstructure:"audio_spike_ms"`
	SkewToleranceMs int `mapstructure:"skew_tolerance_ms"`
}

type VerifyConfig struct {
	DurationToleranceMs int `mapstructure:"duration_tolerance_ms"`
}

func Default() *Config {
	return &Config{
		OutputDir:   "recordings",
		FilePrefix:  "ScreenRecording",
		Backend:     "synthetic",
		ScaleFactor: dimension.DefaultScaleFactor,
		MinWidth:    dimension.DefaultMinWidth,
		MinHeight:   dimension.DefaultMinHeight,
		Screen:      ScreenConfig{Width: 1080, Height: 2400, Density: 420},
		Video:       VideoConfig{FrameRate: 30, KeyframeIntervalSeconds: 1},
		Audio: AudioConfig{
			SampleRate:  44100,
			Channels:    2,
			Bitrate:     128_000,
			ChunkFrames: 1024,
		},
		Cadence: CadenceConfig{
			VideoSpikeMs:    int(cadence.DefaultVideoSpike / time.Millisecond),
			AudioSpikeMs:    int(cadence.DefaultAudioSpike / time.Millisecond),
			SkewToleranceMs: int(cadence.DefaultSkewTolerance / time.Millisecond),
		},
		Verify:           VerifyConfig{DurationToleranceMs: 1000},
		MinRecordingMs:   2000,
		DequeueTimeoutMs: 10,
		MinFreeBytes:     64 << 20,
		HTTPAddr:         ":8090",
		MetricsAddr:      "",
		LogLevel:         "info",
	}
}

// Load reads cfgFile, or ./screenrec.yaml when cfgFile is empty. A missing
// default file is not an error.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v, Default())

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("screenrec")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setDefaults registers every key so environment overrides apply to keys
// absent from the file
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("output_dir", d.OutputDir)
	v.SetDefault("file_prefix", d.FilePrefix)
	v.SetDefault("backend", d.Backend)
	v.SetDefault("scale_factor", d.ScaleFactor)
	v.SetDefault("min_width", d.MinWidth)
	v.SetDefault("min_height", d.MinHeight)
	v.SetDefault("screen.width", d.Screen.Width)
	v.SetDefault("screen.height", d.Screen.Height)
	v.SetDefault("screen.density", d.Screen.Density)
	v.SetDefault("video.frame_rate", d.Video.FrameRate)
	v.SetDefault("video.keyframe_interval_seconds", d.Video.KeyframeIntervalSeconds)
	v.SetDefault("audio.sample_rate", d.Audio.SampleRate)
	v.SetDefault("audio.channels", d.Audio.Channels)
	v.SetDefault("audio.bitrate", d.Audio.Bitrate)
	v.SetDefault("audio.chunk_frames", d.Audio.ChunkFrames)
	v.SetDefault("cadence.video_spike_ms", d.Cadence.VideoSpikeMs)
	v.SetDefault("cadence.audio_spike_ms", d.Cadence.AudioSpikeMs)
	v.SetDefault("cadence.skew_tolerance_ms", d.Cadence.SkewToleranceMs)
	v.SetDefault("verify.duration_tolerance_ms", d.Verify.DurationToleranceMs)
	v.SetDefault("min_recording_ms", d.MinRecordingMs)
	v.SetDefault("auto_split_seconds", d.AutoSplitSeconds)
	v.SetDefault("dequeue_timeout_ms", d.DequeueTimeoutMs)
	v.SetDefault("min_free_bytes", d.MinFreeBytes)
	v.SetDefault("http_addr", d.HTTPAddr)
	v.SetDefault("metrics_addr", d.MetricsAddr)
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("log_color", d.LogColor)
}

// Planner returns the dimension planner for these settings
func (c *Config) Planner() dimension.ScaledEven {
	return dimension.ScaledEven{ScaleFactor: c.ScaleFactor, MinWidth: c.MinWidth, MinHeight: c.MinHeight}
}

// ScreenMetrics returns the configured physical screen
func (c *Config) ScreenMetrics() types.ScreenMetrics {
	return types.ScreenMetrics{WidthPx: c.Screen.Width, HeightPx: c.Screen.Height, DensityDpi: c.Screen.Density}
}

// AutoSplit returns the auto split interval, zero when disabled
func (c *Config) AutoSplit() time.Duration {
	return time.Duration(c.AutoSplitSeconds) * time.Second
}

// DurationTolerance returns the verifier's allowed duration skew
func (c *Config) DurationTolerance() time.Duration {
	return time.Duration(c.Verify.DurationToleranceMs) * time.Millisecond
}

// Recorder converts the settings into the orchestrator's configuration
func (c *Config) Recorder() recorder.Config {
	rc := recorder.DefaultConfig()
	rc.FrameRate = c.Video.FrameRate
	rc.KeyFrameInterval = time.Duration(c.Video.KeyframeIntervalSeconds) * time.Second
	rc.DensityDpi = c.Screen.Density
	rc.Audio = capture.AudioConfig{
		SampleRate: c.Audio.SampleRate,
		Channels:   c.Audio.Channels,
		Bitrate:    c.Audio.Bitrate,
	}
	rc.ChunkFrames = c.Audio.ChunkFrames
	rc.MinDuration = time.Duration(c.MinRecordingMs) * time.Millisecond
	rc.DequeueTimeout = time.Duration(c.DequeueTimeoutMs) * time.Millisecond
	rc.MinFreeBytes = c.MinFreeBytes
	rc.Cadence = cadence.Thresholds{
		VideoSpike:    time.Duration(c.Cadence.VideoSpikeMs) * time.Millisecond,
		AudioSpike:    time.Duration(c.Cadence.AudioSpikeMs) * time.Millisecond,
		SkewTolerance: time.Duration(c.Cadence.SkewToleranceMs) * time.Millisecond,
	}
	return rc
}
