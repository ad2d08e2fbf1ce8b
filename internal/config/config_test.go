package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "screenrec.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaultsWithoutFile(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	d := Default()
	if cfg.OutputDir != d.OutputDir || cfg.Backend != d.Backend {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
	if cfg.Video.FrameRate != 30 || cfg.Audio.SampleRate != 44100 || cfg.MinRecordingMs != 2000 {
		t.Fatalf("media defaults not applied: %+v", cfg)
	}
	if errs := cfg.Validate(); len(errs) != 0 {
		t.Fatalf("default config should validate cleanly: %v", errs)
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	path := writeFile(t, `
output_dir: /data/rec
backend: gstreamer
backend_params:
  audio_device: monitor
video:
  frame_rate: 24
audio:
  channels: 1
auto_split_seconds: 600
`)
	t.Setenv("SCREENREC_HTTP_ADDR", "127.0.0.1:9999")
	t.Setenv("SCREENREC_VIDEO_KEYFRAME_INTERVAL_SECONDS", "2")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.OutputDir != "/data/rec" || cfg.Backend != "gstreamer" {
		t.Fatalf("file values not applied: %+v", cfg)
	}
	if cfg.BackendParams["audio_device"] != "monitor" {
		t.Fatalf("backend_params = %v", cfg.BackendParams)
	}
	if cfg.Video.FrameRate != 24 || cfg.Audio.Channels != 1 {
		t.Fatalf("nested values not applied: %+v", cfg)
	}
	if cfg.Audio.SampleRate != 44100 {
		t.Fatalf("unset nested key lost its default: %d", cfg.Audio.SampleRate)
	}
	if cfg.HTTPAddr != "127.0.0.1:9999" {
		t.Fatalf("env override http_addr = %q", cfg.HTTPAddr)
	}
	if cfg.Video.KeyframeIntervalSeconds != 2 {
		t.Fatalf("env override keyframe interval = %d", cfg.Video.KeyframeIntervalSeconds)
	}
	if cfg.AutoSplit() != 10*time.Minute {
		t.Fatalf("AutoSplit = %v", cfg.AutoSplit())
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatalf("expected error for missing explicit config file")
	}
}

func TestValidateClamps(t *testing.T) {
	cfg := Default()
	cfg.Video.FrameRate = 0
	cfg.Audio.SampleRate = 12345
	cfg.Audio.Channels = 6
	cfg.ScaleFactor = 3
	cfg.AutoSplitSeconds = 1
	cfg.FilePrefix = "../escape"
	cfg.LogLevel = "loud"

	errs := cfg.Validate()
	if len(errs) != 7 {
		t.Fatalf("expected 7 problems, got %d: %v", len(errs), errs)
	}
	if cfg.Video.FrameRate != 1 || cfg.Audio.SampleRate != 44100 || cfg.Audio.Channels != 2 {
		t.Fatalf("values not clamped: %+v", cfg)
	}
	if cfg.ScaleFactor != Default().ScaleFactor || cfg.AutoSplitSeconds != 5 {
		t.Fatalf("scale/auto split not clamped: %g %d", cfg.ScaleFactor, cfg.AutoSplitSeconds)
	}
	if cfg.FilePrefix != Default().FilePrefix {
		t.Fatalf("file prefix not reset: %q", cfg.FilePrefix)
	}
}

func TestRecorderConversion(t *testing.T) {
	cfg := Default()
	cfg.MinRecordingMs = 1500
	cfg.Cadence.VideoSpikeMs = 80

	rc := cfg.Recorder()
	if rc.MinDuration != 1500*time.Millisecond {
		t.Fatalf("MinDuration = %v", rc.MinDuration)
	}
	if rc.Cadence.VideoSpike != 80*time.Millisecond {
		t.Fatalf("VideoSpike = %v", rc.Cadence.VideoSpike)
	}
	if rc.KeyFrameInterval != time.Second || rc.Audio.SampleRate != 44100 || rc.ChunkFrames != 1024 {
		t.Fatalf("recorder config = %+v", rc)
	}

	dims := cfg.Planner().Plan(cfg.ScreenMetrics())
	if dims.WidthPx != 480 || dims.HeightPx != 854 {
		t.Fatalf("planned %dx%d, want 480x854", dims.WidthPx, dims.HeightPx)
	}
}
