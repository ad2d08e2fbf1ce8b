package recorder

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/dj-oyu/screen-recorder/internal/cadence"
	"github.com/dj-oyu/screen-recorder/internal/capture"
	"github.com/dj-oyu/screen-recorder/internal/container"
	"github.com/dj-oyu/screen-recorder/internal/dimension"
	"github.com/dj-oyu/screen-recorder/internal/output"
	"github.com/dj-oyu/screen-recorder/pkg/types"
)

// session holds every resource of one recording. Only the Recorder touches
// it; the loops reach the container through coord.
type session struct {
	id        string
	startedAt time.Time
	dims      types.RecordingDimensions

	projection capture.Projection
	display    capture.VirtualDisplay
	tap        capture.AudioTap
	videoEnc   capture.VideoEncoder
	audioEnc   capture.AudioEncoder
	coord      *container.Coordinator
	tracker    *cadence.Tracker

	videoSlot capture.DescriptorSlot
	audioSlot capture.DescriptorSlot

	stopping atomic.Bool
	wg       sync.WaitGroup
	fault    chan error
	splitMu  sync.Mutex

	stopOnce sync.Once
	done     chan struct{}
	final    types.SegmentInfo
	finalErr error
}

// fail reports a loop failure to the supervisor. Only the first one counts.
func (s *session) fail(err error) {
	select {
	case s.fault <- err:
	default:
	}
}

// prepare acquires everything a recording needs, unwinding in reverse order on failure
func (r *Recorder) prepare(ctx context.Context, grant types.CaptureGrant, dims types.RecordingDimensions) (_ *session, err error) {
	var undo []func()
	defer func() {
		if err != nil {
			for i := len(undo) - 1; i >= 0; i-- {
				undo[i]()
			}
		}
	}()
	step := func(name string) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("%s: %w", name, ctxErr)
		}
		return nil
	}

	sess := &session{
		id:    uuid.NewString(),
		dims:  dims,
		fault: make(chan error, 1),
		done:  make(chan struct{}),
	}

	if err := step("naming"); err != nil {
		return nil, err
	}
	path, err := r.namer.Next()
	if err != nil {
		return nil, err
	}
	if err := output.CheckFreeSpace(filepath.Dir(path), r.cfg.MinFreeBytes); err != nil {
		return nil, err
	}

	sess.coord, err = container.NewCoordinator(path, r.muxers, r.obs, container.WithClock(r.now))
	if err != nil {
		return nil, err
	}
	undo = append(undo, func() { sess.coord.StopAndRelease() })

	if err := step("acquire"); err != nil {
		return nil, err
	}
	sess.projection, err = r.backend.Acquire(grant)
	if err != nil {
		return nil, fmt.Errorf("acquire projection: %w", err)
	}
	undo = append(undo, func() { sess.projection.Stop() })

	sess.videoEnc, err = r.backend.NewVideoEncoder(capture.VideoConfig{
		Dimensions:       dims,
		Bitrate:          dimension.Bitrate(dims),
		FrameRate:        r.cfg.FrameRate,
		KeyFrameInterval: r.cfg.KeyFrameInterval,
	})
	if err != nil {
		return nil, fmt.Errorf("video encoder: %w", err)
	}
	undo = append(undo, func() { sess.videoEnc.Release() })
	r.obs.Info(module, "Video encoder: %s %dx%d %dbps", sess.videoEnc.Name(), dims.WidthPx, dims.HeightPx, dimension.Bitrate(dims))

	sess.audioEnc, err = r.backend.NewAudioEncoder(r.cfg.Audio)
	if err != nil {
		return nil, fmt.Errorf("audio encoder: %w", err)
	}
	undo = append(undo, func() { sess.audioEnc.Release() })

	if err := step("audio tap"); err != nil {
		return nil, err
	}
	sess.tap, err = sess.projection.OpenAudioTap(r.cfg.Audio)
	if err != nil {
		return nil, fmt.Errorf("audio tap: %w", err)
	}
	undo = append(undo, func() { sess.tap.Release() })
	if err := sess.tap.Start(); err != nil {
		return nil, fmt.Errorf("audio tap start: %w", err)
	}

	sess.display, err = sess.projection.CreateVirtualDisplay(capture.DisplayConfig{
		Name:       r.cfg.DisplayName,
		Dimensions: dims,
		DensityDpi: r.cfg.DensityDpi,
	}, sess.videoEnc.Surface())
	if err != nil {
		return nil, fmt.Errorf("virtual display: %w", err)
	}
	undo = append(undo, func() { sess.display.Release() })

	sess.tracker = cadence.New(r.cfg.Cadence, r.obs)
	sess.tracker.Reset()
	sess.startedAt = r.now()
	return sess, nil
}

// supervise turns loop failures and capture revocation into an orderly stop
func (r *Recorder) supervise(s *session) {
	select {
	case err := <-s.fault:
		r.finish(s, err)
	case <-s.projection.Stopped():
		if s.stopping.Load() {
			return
		}
		r.obs.Warn(module, "Screen capture stopped by the system")
		r.finish(s, ErrProjectionRevoked)
	case <-s.done:
	}
}

// finish drains both loops, finalizes the container and releases every
// device. It runs once per session; later callers wait for the first.
func (r *Recorder) finish(s *session, cause error) {
	s.stopOnce.Do(func() {
		r.mu.Lock()
		r.state = StateStopping
		r.mu.Unlock()

		if cause != nil {
			r.obs.Error(module, "Stopping after failure: %v", cause)
		} else {
			r.obs.Info(module, "Stopping recording")
		}

		s.splitMu.Lock()
		s.stopping.Store(true)
		if err := s.videoEnc.SignalEndOfInput(); err != nil {
			r.obs.Warn(module, "signal end of video input: %v", err)
		}
		if err := s.tap.Stop(); err != nil {
			r.obs.Warn(module, "stop audio tap: %v", err)
		}
		s.wg.Wait()

		info, err := s.coord.StopAndRelease()
		s.splitMu.Unlock()

		r.release(s)
		s.tracker.Summarize()

		switch {
		case err == nil:
			r.finalized(s, info)
		case errors.Is(err, container.ErrNotStarted):
			r.obs.Warn(module, "No samples reached the container, nothing to finalize")
		default:
			r.obs.Error(module, "Finalize %s: %v", info.Path, err)
		}
		if cause != nil {
			r.fatal(s.id, cause)
		}

		s.final, s.finalErr = info, err
		r.mu.Lock()
		r.sess = nil
		r.state = StateIdle
		r.mu.Unlock()
		r.obs.SetActive(false)
		close(s.done)
		r.obs.Info(module, "Recording stopped: session=%s", s.id)
	})
	<-s.done
}

// release frees devices in reverse order of acquisition
func (r *Recorder) release(s *session) {
	steps := []struct {
		name string
		fn   func() error
	}{
		{"virtual display", s.display.Release},
		{"audio tap", s.tap.Release},
		{"video encoder", s.videoEnc.Release},
		{"audio encoder", s.audioEnc.Release},
		{"projection", s.projection.Stop},
	}
	for _, st := range steps {
		if err := st.fn(); err != nil {
			r.obs.Warn(module, "release %s: %v", st.name, err)
		}
	}
}
