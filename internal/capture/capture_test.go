package capture

import (
	"strings"
	"testing"

	"github.com/dj-oyu/screen-recorder/pkg/types"
)

func TestDescriptorSlot(t *testing.T) {
	var s DescriptorSlot
	if _, ok := s.Get(); ok {
		t.Fatalf("new slot should be uninitialized")
	}
	s.Set(types.TrackDescriptor{Kind: types.TrackAudio, Codec: types.CodecAAC})
	d, ok := s.Get()
	if !ok || d.Codec != types.CodecAAC {
		t.Fatalf("Get = %+v, %v", d, ok)
	}
	s.Clear()
	if s.Registered() {
		t.Fatalf("cleared slot should be uninitialized")
	}
}

type nopBackend struct{ Backend }

func TestRegistry(t *testing.T) {
	Register("test-nop", func(Options) (Backend, error) { return nopBackend{}, nil })

	if _, err := Open("test-nop", Options{}); err != nil {
		t.Fatalf("Open: %v", err)
	}
	_, err := Open("does-not-exist", Options{})
	if err == nil || !strings.Contains(err.Error(), "test-nop") {
		t.Fatalf("expected unknown backend error listing names, got %v", err)
	}

	defer func() {
		if recover() == nil {
			t.Fatalf("duplicate Register should panic")
		}
	}()
	Register("test-nop", func(Options) (Backend, error) { return nil, nil })
}

func TestOutputVariants(t *testing.T) {
	outs := []Output{FormatAvailable{}, SampleReady{}, NeedMoreTime{}}
	var kinds []string
	for _, o := range outs {
		switch o.(type) {
		case FormatAvailable:
			kinds = append(kinds, "format")
		case SampleReady:
			kinds = append(kinds, "sample")
		case NeedMoreTime:
			kinds = append(kinds, "retry")
		}
	}
	if strings.Join(kinds, ",") != "format,sample,retry" {
		t.Fatalf("unexpected dispatch %v", kinds)
	}
}

func TestAudioConfigBytesPerFrame(t *testing.T) {
	if got := (AudioConfig{Channels: 2}).BytesPerFrame(); got != 4 {
		t.Fatalf("BytesPerFrame = %d", got)
	}
}
