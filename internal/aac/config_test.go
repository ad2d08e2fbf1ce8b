package aac

import (
	"bytes"
	"testing"
	"time"
)

func TestLCConfig(t *testing.T) {
	b, err := LC(44100, 2)
	if err != nil {
		t.Fatalf("LC: %v", err)
	}
	// AAC-LC, 44.1kHz (index 4), stereo
	if !bytes.Equal(b, []byte{0x12, 0x10}) {
		t.Fatalf("ASC = % x, want 12 10", b)
	}

	c, err := Parse(b)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if c.ObjectType != ObjectTypeLC || c.SampleRate != 44100 || c.Channels != 2 {
		t.Fatalf("parsed %+v", c)
	}
}

func TestLC48kMono(t *testing.T) {
	b, err := LC(48000, 1)
	if err != nil {
		t.Fatalf("LC: %v", err)
	}
	if !bytes.Equal(b, []byte{0x11, 0x88}) {
		t.Fatalf("ASC = % x, want 11 88", b)
	}
}

func TestUnsupportedRate(t *testing.T) {
	if _, err := LC(12345, 2); err == nil {
		t.Fatalf("expected error")
	}
}

func TestDurations(t *testing.T) {
	if got := PCMDuration(44100, 44100); got != time.Second {
		t.Fatalf("PCMDuration = %v", got)
	}
	if got := PCMDuration(1024, 44100); got != 23219*time.Microsecond {
		t.Fatalf("PCMDuration(1024) = %v", got)
	}
	if got := FrameDuration(48000); got != 21333333*time.Nanosecond {
		t.Fatalf("FrameDuration = %v", got)
	}
}
