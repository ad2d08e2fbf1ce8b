package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHandlerExposesCounters(t *testing.T) {
	m := New()
	m.VideoSamplesWritten.Add(3)
	m.SetRecording(true)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	text := string(body)
	if !strings.Contains(text, "screenrec_video_samples_written_total 3") {
		t.Fatalf("missing video counter in:\n%s", text)
	}
	if !strings.Contains(text, "screenrec_recording_active 1") {
		t.Fatalf("missing recording gauge in:\n%s", text)
	}
}

func TestRegistryGatherCount(t *testing.T) {
	m := New()
	families, err := m.Registry().Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if len(families) != 13 {
		t.Fatalf("expected 13 metric families, got %d", len(families))
	}
}
