// Package recorder drives a screen + system audio capture session: it owns
// the capture devices and encoders, pumps their output into the container
// coordinator and splits or stops the recording on request.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dj-oyu/screen-recorder/internal/capture"
	"github.com/dj-oyu/screen-recorder/internal/container"
	"github.com/dj-oyu/screen-recorder/internal/output"
	"github.com/dj-oyu/screen-recorder/internal/telemetry"
	"github.com/dj-oyu/screen-recorder/pkg/types"
)

const module = "Recorder"

var (
	ErrAlreadyRecording  = errors.New("recorder: already recording")
	ErrNotRecording      = errors.New("recorder: not recording")
	ErrSplitNotReady     = errors.New("recorder: track formats not ready, split ignored")
	ErrProjectionRevoked = errors.New("recorder: screen capture revoked")
)

// State of the recorder
type State int

const (
	StateIdle State = iota
	StatePreparing
	StateRecording
	StateSplitting
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePreparing:
		return "preparing"
	case StateRecording:
		return "recording"
	case StateSplitting:
		return "splitting"
	case StateStopping:
		return "stopping"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Recorder is the capture/encode orchestrator. One recording at a time.
type Recorder struct {
	cfg      Config
	backend  capture.Backend
	namer    *output.Namer
	verifier *output.Verifier
	muxers   container.MuxerFactory
	obs      telemetry.Observer
	events   *Broadcaster
	now      func() time.Time

	mu       sync.Mutex
	state    State
	sess     *session
	segments []types.SegmentInfo
	lastID   string
}

// Option configures a Recorder
type Option func(*Recorder)

// WithObserver sets the observability collaborator
func WithObserver(obs telemetry.Observer) Option {
	return func(r *Recorder) { r.obs = obs }
}

// WithMuxerFactory replaces the Matroska writer
func WithMuxerFactory(f container.MuxerFactory) Option {
	return func(r *Recorder) { r.muxers = f }
}

// WithVerifier replaces the post-close verifier
func WithVerifier(v *output.Verifier) Option {
	return func(r *Recorder) { r.verifier = v }
}

// WithClock overrides the wall clock
func WithClock(now func() time.Time) Option {
	return func(r *Recorder) { r.now = now }
}

// New creates an idle Recorder
func New(cfg Config, backend capture.Backend, namer *output.Namer, opts ...Option) *Recorder {
	r := &Recorder{
		cfg:     cfg.withDefaults(),
		backend: backend,
		namer:   namer,
		obs:     telemetry.Nop(),
		events:  NewBroadcaster(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.verifier == nil {
		r.verifier = output.NewVerifier(r.obs)
	}
	return r
}

// Events returns the broadcaster carrying segment and fatal events
func (r *Recorder) Events() *Broadcaster { return r.events }

// State returns the current state
func (r *Recorder) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Start acquires the capture devices for grant and begins recording at dims.
// Any failure releases everything acquired so far and leaves the recorder idle.
func (r *Recorder) Start(ctx context.Context, grant types.CaptureGrant, dims types.RecordingDimensions) error {
	r.mu.Lock()
	if r.state != StateIdle {
		state := r.state
		r.mu.Unlock()
		r.obs.Warn(module, "Start ignored: recorder is %s", state)
		return ErrAlreadyRecording
	}
	r.state = StatePreparing
	r.mu.Unlock()

	s, err := r.prepare(ctx, grant, dims)
	if err != nil {
		r.mu.Lock()
		r.state = StateIdle
		r.mu.Unlock()
		r.obs.Error(module, "Failed to start recording: %v", err)
		r.fatal("", err)
		return err
	}

	r.mu.Lock()
	r.sess = s
	r.state = StateRecording
	r.segments = nil
	r.lastID = s.id
	r.mu.Unlock()
	r.obs.SetActive(true)

	s.wg.Add(2)
	go r.runVideo(s)
	go r.runAudio(s)
	go r.supervise(s)

	r.obs.Info(module, "Recording started: session=%s %dx%d -> %s", s.id, dims.WidthPx, dims.HeightPx, s.coord.Path())
	return nil
}

// Stop ends the recording and returns the last segment. A stop earlier than
// MinDuration after start is deferred until MinDuration has elapsed.
// Concurrent callers share one stop.
func (r *Recorder) Stop() (types.SegmentInfo, error) {
	r.mu.Lock()
	s := r.sess
	r.mu.Unlock()
	if s == nil {
		r.obs.Warn(module, "Stop ignored: not recording")
		return types.SegmentInfo{}, ErrNotRecording
	}

	if elapsed := r.now().Sub(s.startedAt); elapsed < r.cfg.MinDuration {
		wait := r.cfg.MinDuration - elapsed
		r.obs.Warn(module, "Recording too short (%dms), delaying stop by %dms", elapsed.Milliseconds(), wait.Milliseconds())
		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-s.done:
			timer.Stop()
		}
	}

	r.finish(s, nil)
	return s.final, s.finalErr
}

// Split closes the current segment and continues recording into a new file.
// It fails with ErrSplitNotReady until both encoders reported their format.
func (r *Recorder) Split() (types.SegmentInfo, error) {
	r.mu.Lock()
	s := r.sess
	if s == nil || r.state != StateRecording {
		state := r.state
		r.mu.Unlock()
		r.obs.Warn(module, "Split ignored: recorder is %s", state)
		return types.SegmentInfo{}, ErrNotRecording
	}
	r.mu.Unlock()

	s.splitMu.Lock()
	defer s.splitMu.Unlock()
	if s.stopping.Load() {
		return types.SegmentInfo{}, ErrNotRecording
	}

	video, okV := s.videoSlot.Get()
	audio, okA := s.audioSlot.Get()
	if !okV || !okA {
		r.obs.Warn(module, "Split ignored: formats not ready (video=%v audio=%v)", okV, okA)
		r.obs.Count(telemetry.SplitIgnored, 1)
		return types.SegmentInfo{}, ErrSplitNotReady
	}

	r.setState(StateRecording, StateSplitting)
	defer r.setState(StateSplitting, StateRecording)

	path, err := r.namer.Next()
	if err != nil {
		r.obs.Warn(module, "Split failed: %v", err)
		return types.SegmentInfo{}, err
	}
	closed, err := s.coord.Rotate(path, video, audio)
	if err != nil {
		r.obs.Warn(module, "Split failed: %v", err)
		return closed, err
	}
	if err := s.videoEnc.RequestKeyFrame(); err != nil {
		r.obs.Warn(module, "Key frame request failed: %v", err)
	}
	s.tracker.Rollover()
	r.finalized(s, closed)
	r.obs.Info(module, "Split: %s -> %s", closed.Path, path)
	return closed, nil
}

// setState moves from -> to only if the recorder is still in from
func (r *Recorder) setState(from, to State) {
	r.mu.Lock()
	if r.state == from {
		r.state = to
	}
	r.mu.Unlock()
}

// Status is a snapshot of the recorder
type Status struct {
	State      string                    `json:"state"`
	SessionID  string                    `json:"session_id,omitempty"`
	Recording  bool                      `json:"recording"`
	Path       string                    `json:"path,omitempty"`
	StartedAt  time.Time                 `json:"started_at,omitempty"`
	ElapsedMs  int64                     `json:"elapsed_ms"`
	Dimensions types.RecordingDimensions `json:"dimensions"`
	SplitReady bool                      `json:"split_ready"`
	Segments   []types.SegmentInfo       `json:"segments"`
}

// Status returns the current state and the segments of the current or last session
func (r *Recorder) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()

	st := Status{
		State:     r.state.String(),
		SessionID: r.lastID,
		Segments:  append([]types.SegmentInfo(nil), r.segments...),
	}
	if s := r.sess; s != nil {
		st.Recording = true
		st.Path = s.coord.Path()
		st.StartedAt = s.startedAt
		st.ElapsedMs = r.now().Sub(s.startedAt).Milliseconds()
		st.Dimensions = s.dims
		st.SplitReady = s.videoSlot.Registered() && s.audioSlot.Registered()
	}
	return st
}

// OnProjectionStopped stops the recording as if the platform revoked capture
func (r *Recorder) OnProjectionStopped() {
	r.mu.Lock()
	s := r.sess
	r.mu.Unlock()
	if s != nil {
		r.finish(s, ErrProjectionRevoked)
	}
}

func (r *Recorder) finalized(s *session, info types.SegmentInfo) {
	r.verifier.Verify(info.Path, info.WallDuration())

	r.mu.Lock()
	r.segments = append(r.segments, info)
	r.mu.Unlock()

	r.obs.Count(telemetry.SegmentFinalized, 1)
	r.obs.Info(module, "Segment finalized: %s (%dms)", info.Path, info.DurationMs())
	seg := info
	r.events.Publish(Event{Type: EventSegmentFinalized, SessionID: s.id, Segment: &seg, At: r.now()})
}

func (r *Recorder) fatal(sessionID string, cause error) {
	r.obs.Count(telemetry.FatalError, 1)
	r.events.Publish(Event{Type: EventFatalError, SessionID: sessionID, Cause: cause.Error(), At: r.now()})
}
