package control

import (
	"bufio"
	"bytes"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/dj-oyu/screen-recorder/internal/capture/synthetic"
	"github.com/dj-oyu/screen-recorder/internal/logger"
	"github.com/dj-oyu/screen-recorder/internal/metrics"
	"github.com/dj-oyu/screen-recorder/internal/output"
	"github.com/dj-oyu/screen-recorder/internal/recorder"
	"github.com/dj-oyu/screen-recorder/internal/telemetry"
	"github.com/dj-oyu/screen-recorder/pkg/types"
)

func newTestServer(t *testing.T, autoGrant bool) (*httptest.Server, *recorder.Recorder) {
	t.Helper()
	m := metrics.New()
	obs := telemetry.New(logger.Discard(), m)
	cfg := recorder.DefaultConfig()
	cfg.MinDuration = 0
	rec := recorder.New(cfg, synthetic.New(synthetic.Config{}, obs), output.NewNamer(t.TempDir()), recorder.WithObserver(obs))

	srv := NewServer(Config{
		Screen:    types.ScreenMetrics{WidthPx: 1080, HeightPx: 2400, DensityDpi: 420},
		AutoGrant: autoGrant,
		KeepAlive: time.Hour,
	}, rec, m, logger.Discard())
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		if rec.State() != recorder.StateIdle {
			rec.Stop()
		}
	})
	return ts, rec
}

func post(t *testing.T, url, body string) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	defer resp.Body.Close()
	var payload map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode %s response: %v", url, err)
	}
	return resp, payload
}

func TestRecordingLifecycleOverHTTP(t *testing.T) {
	ts, rec := newTestServer(t, true)

	resp, payload := post(t, ts.URL+"/api/recording/start", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("start status %d: %v", resp.StatusCode, payload)
	}
	dims, _ := payload["dimensions"].(map[string]any)
	if dims["width_px"] != float64(480) || dims["height_px"] != float64(854) {
		t.Fatalf("dimensions = %v", payload["dimensions"])
	}
	if rec.State() != recorder.StateRecording {
		t.Fatalf("recorder state = %s", rec.State())
	}

	resp, _ = post(t, ts.URL+"/api/recording/start", "")
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("second start status = %d, want 409", resp.StatusCode)
	}

	time.Sleep(1200 * time.Millisecond)
	resp, payload = post(t, ts.URL+"/api/recording/split", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("split status %d: %v", resp.StatusCode, payload)
	}

	time.Sleep(800 * time.Millisecond)
	resp, payload = post(t, ts.URL+"/api/recording/stop", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("stop status %d: %v", resp.StatusCode, payload)
	}
	if payload["file"] == "" {
		t.Fatalf("stop response without file: %v", payload)
	}

	statusResp, err := http.Get(ts.URL + "/api/recording/status")
	if err != nil {
		t.Fatalf("GET status: %v", err)
	}
	defer statusResp.Body.Close()
	var st recorder.Status
	if err := json.NewDecoder(statusResp.Body).Decode(&st); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if st.State != "idle" || len(st.Segments) != 2 {
		t.Fatalf("status after stop = %+v", st)
	}
}

func TestControlErrors(t *testing.T) {
	ts, _ := newTestServer(t, false)

	resp, _ := post(t, ts.URL+"/api/recording/stop", "")
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("stop while idle = %d, want 409", resp.StatusCode)
	}
	resp, _ = post(t, ts.URL+"/api/recording/split", "")
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("split while idle = %d, want 409", resp.StatusCode)
	}

	// no auto grant: an empty body carries no approved grant
	resp, payload := post(t, ts.URL+"/api/recording/start", "")
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("start without grant = %d (%v), want 403", resp.StatusCode, payload)
	}
	resp, _ = post(t, ts.URL+"/api/recording/start", `{"result_code": 0, "grant": "ZGVuaWVk"}`)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("denied grant = %d, want 403", resp.StatusCode)
	}
	resp, _ = post(t, ts.URL+"/api/recording/start", `{not json`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad body = %d, want 400", resp.StatusCode)
	}

	get, err := http.Get(ts.URL + "/api/recording/start")
	if err != nil {
		t.Fatalf("GET start: %v", err)
	}
	get.Body.Close()
	if get.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("GET start = %d, want 405", get.StatusCode)
	}
}

func TestStartWithExplicitGrant(t *testing.T) {
	ts, rec := newTestServer(t, false)
	body := `{"result_code": -1, "grant": "` + base64.StdEncoding.EncodeToString([]byte("consent")) +
		`", "screen": {"width_px": 2560, "height_px": 3200, "density_dpi": 480}}`

	resp, payload := post(t, ts.URL+"/api/recording/start", body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("start status %d: %v", resp.StatusCode, payload)
	}
	if st := rec.Status(); st.Dimensions != (types.RecordingDimensions{WidthPx: 864, HeightPx: 1080}) {
		t.Fatalf("dimensions = %+v", st.Dimensions)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	ts, _ := newTestServer(t, true)

	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("GET health: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("health = %d", resp.StatusCode)
	}

	resp, err = http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET metrics: %v", err)
	}
	defer resp.Body.Close()
	var buf bytes.Buffer
	buf.ReadFrom(resp.Body)
	if !strings.Contains(buf.String(), "screenrec_recording_active") {
		t.Fatalf("metrics output missing recording gauge")
	}
}

// readEvent returns the data line of the next SSE event
func readEvent(t *testing.T, r *bufio.Reader) string {
	t.Helper()
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			t.Fatalf("read event stream: %v", err)
		}
		if strings.HasPrefix(line, "data: ") {
			return strings.TrimSpace(strings.TrimPrefix(line, "data: "))
		}
	}
}

func subscribe(t *testing.T, url, accept string) (*http.Response, *bufio.Reader) {
	t.Helper()
	req, _ := http.NewRequest(http.MethodGet, url, nil)
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET events: %v", err)
	}
	br := bufio.NewReader(resp.Body)
	// wait for the subscription comment
	for {
		line, err := br.ReadString('\n')
		if err != nil {
			t.Fatalf("read subscription: %v", err)
		}
		if strings.HasPrefix(line, ": subscribed") {
			return resp, br
		}
	}
}

func TestEventStreamJSON(t *testing.T) {
	ts, rec := newTestServer(t, true)
	resp, br := subscribe(t, ts.URL+"/api/recording/events", "")
	defer resp.Body.Close()
	if resp.Header.Get("X-Content-Format") != "application/json" {
		t.Fatalf("format header = %q", resp.Header.Get("X-Content-Format"))
	}

	rec.Events().Publish(recorder.Event{
		Type:      recorder.EventSegmentFinalized,
		SessionID: "s1",
		Segment:   &types.SegmentInfo{Index: 2, Path: "/tmp/a.mkv", Duration: 1500 * time.Millisecond},
		At:        time.Now(),
	})

	var ev recorder.Event
	if err := json.Unmarshal([]byte(readEvent(t, br)), &ev); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if ev.Type != recorder.EventSegmentFinalized || ev.Segment == nil || ev.Segment.Path != "/tmp/a.mkv" {
		t.Fatalf("event = %+v", ev)
	}
}

func TestEventStreamProtobuf(t *testing.T) {
	ts, rec := newTestServer(t, true)
	resp, br := subscribe(t, ts.URL+"/api/recording/events", "application/x-protobuf")
	defer resp.Body.Close()

	rec.Events().Publish(recorder.Event{
		Type:      recorder.EventFatalError,
		SessionID: "s2",
		Cause:     "capture: audio source is gone",
		At:        time.Now(),
	})

	raw, err := base64.StdEncoding.DecodeString(readEvent(t, br))
	if err != nil {
		t.Fatalf("base64: %v", err)
	}
	var st structpb.Struct
	if err := proto.Unmarshal(raw, &st); err != nil {
		t.Fatalf("protobuf: %v", err)
	}
	fields := st.GetFields()
	if fields["type"].GetStringValue() != string(recorder.EventFatalError) {
		t.Fatalf("type = %v", fields["type"])
	}
	if fields["cause"].GetStringValue() != "capture: audio source is gone" {
		t.Fatalf("cause = %v", fields["cause"])
	}
}

func TestSerializeSegment(t *testing.T) {
	se, err := Serialize(recorder.Event{
		Type:    recorder.EventSegmentFinalized,
		Segment: &types.SegmentInfo{Index: 1, Path: "x.mkv", Duration: 2 * time.Second, VideoSamples: 60},
		At:      time.Unix(0, 0),
	})
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	raw, _ := base64.StdEncoding.DecodeString(string(se.ProtobufData))
	var st structpb.Struct
	if err := proto.Unmarshal(raw, &st); err != nil {
		t.Fatalf("protobuf: %v", err)
	}
	seg := st.GetFields()["segment"].GetStructValue().GetFields()
	if seg["duration_ms"].GetNumberValue() != 2000 || seg["video_samples"].GetNumberValue() != 60 {
		t.Fatalf("segment fields = %v", seg)
	}
}
