// Package control exposes the recorder over HTTP: start, stop, split,
// status and a server-sent event stream of recorder events.
package control

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/dj-oyu/screen-recorder/internal/capture"
	"github.com/dj-oyu/screen-recorder/internal/dimension"
	"github.com/dj-oyu/screen-recorder/internal/logger"
	"github.com/dj-oyu/screen-recorder/internal/metrics"
	"github.com/dj-oyu/screen-recorder/internal/output"
	"github.com/dj-oyu/screen-recorder/internal/recorder"
	"github.com/dj-oyu/screen-recorder/pkg/types"
)

const module = "Control"

// Config configures the control server
type Config struct {
	// Screen is used when a start request carries no screen metrics
	Screen  types.ScreenMetrics
	Planner dimension.Strategy
	// AutoGrant mints a grant for start requests without one. Only for
	// backends that need no user consent.
	AutoGrant bool
	// KeepAlive is the SSE comment interval
	KeepAlive time.Duration
}

// Server serves the recorder control endpoints
type Server struct {
	cfg     Config
	rec     *recorder.Recorder
	metrics *metrics.Metrics
	log     *logger.Logger
}

// NewServer returns a control server for rec. m may be nil.
func NewServer(cfg Config, rec *recorder.Recorder, m *metrics.Metrics, log *logger.Logger) *Server {
	if cfg.Planner == nil {
		cfg.Planner = dimension.NewScaledEven()
	}
	if cfg.KeepAlive <= 0 {
		cfg.KeepAlive = 30 * time.Second
	}
	if log == nil {
		log = logger.Default()
	}
	return &Server{cfg: cfg, rec: rec, metrics: m, log: log}
}

// Handler exposes the HTTP handler for the server
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/api/recording/start", s.handleStart)
	mux.HandleFunc("/api/recording/stop", s.handleStop)
	mux.HandleFunc("/api/recording/split", s.handleSplit)
	mux.HandleFunc("/api/recording/status", s.handleStatus)
	mux.HandleFunc("/api/recording/events", s.handleEvents)
	if s.metrics != nil {
		mux.Handle("/metrics", s.metrics.Handler())
	}
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{"status": "ok", "state": s.rec.State().String()})
}

// startRequest is the optional body of a start request
type startRequest struct {
	ResultCode *int                 `json:"result_code"`
	Grant      []byte               `json:"grant"`
	Screen     *types.ScreenMetrics `json:"screen"`
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req startRequest
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeJSONWithStatus(w, map[string]any{"error": "Invalid request body"}, http.StatusBadRequest)
		return
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			writeJSONWithStatus(w, map[string]any{"error": "Invalid request body"}, http.StatusBadRequest)
			return
		}
	}

	grant := types.CaptureGrant{Payload: req.Grant}
	if req.ResultCode != nil {
		grant.ResultCode = *req.ResultCode
	}
	if len(grant.Payload) == 0 && req.ResultCode == nil && s.cfg.AutoGrant {
		grant = types.CaptureGrant{ResultCode: types.ResultOK, Payload: []byte(uuid.NewString())}
	}

	screen := s.cfg.Screen
	if req.Screen != nil {
		screen = *req.Screen
	}
	if screen.WidthPx <= 0 || screen.HeightPx <= 0 {
		writeJSONWithStatus(w, map[string]any{"error": "screen metrics required"}, http.StatusBadRequest)
		return
	}
	dims := s.cfg.Planner.Plan(screen)

	if err := s.rec.Start(r.Context(), grant, dims); err != nil {
		writeError(w, err)
		return
	}

	st := s.rec.Status()
	writeJSON(w, map[string]any{
		"status":     "recording",
		"session_id": st.SessionID,
		"file":       st.Path,
		"dimensions": dims,
		"bitrate":    dimension.Bitrate(dims),
		"started_at": float64(st.StartedAt.Unix()),
	})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	info, err := s.rec.Stop()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]any{
		"status":      "stopped",
		"file":        info.Path,
		"segment":     info,
		"duration_ms": info.DurationMs(),
		"stopped_at":  float64(time.Now().Unix()),
	})
}

func (s *Server) handleSplit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	closed, err := s.rec.Split()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]any{
		"status":      "recording",
		"closed":      closed,
		"duration_ms": closed.DurationMs(),
		"file":        s.rec.Status().Path,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.rec.Status())
}

// statusFor maps recorder and capture errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, recorder.ErrAlreadyRecording),
		errors.Is(err, recorder.ErrNotRecording),
		errors.Is(err, recorder.ErrSplitNotReady):
		return http.StatusConflict
	case errors.Is(err, capture.ErrGrantInvalid),
		errors.Is(err, capture.ErrGrantConsumed):
		return http.StatusForbidden
	case errors.Is(err, output.ErrInsufficientStorage):
		return http.StatusInsufficientStorage
	case errors.Is(err, capture.ErrNoEncoder),
		errors.Is(err, capture.ErrDisplayBind):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, err error) {
	writeJSONWithStatus(w, map[string]any{"error": err.Error()}, statusFor(err))
}

func writeJSON(w http.ResponseWriter, payload any) {
	writeJSONWithStatus(w, payload, http.StatusOK)
}

func writeJSONWithStatus(w http.ResponseWriter, payload any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		_, _ = fmt.Fprintf(w, `{"error":"%s"}`, err.Error())
	}
}
