package recorder

import (
	"errors"
	"fmt"
	"time"

	"github.com/dj-oyu/screen-recorder/internal/aac"
	"github.com/dj-oyu/screen-recorder/internal/capture"
	"github.com/dj-oyu/screen-recorder/internal/container"
	"github.com/dj-oyu/screen-recorder/internal/telemetry"
	"github.com/dj-oyu/screen-recorder/pkg/types"
)

// stallWatch bounds how long a drain waits for end of stream
type stallWatch struct {
	limit time.Duration
	since time.Time
}

func (w *stallWatch) expired() bool {
	if w.since.IsZero() {
		w.since = time.Now()
		return false
	}
	return time.Since(w.since) > w.limit
}

func (w *stallWatch) reset() { w.since = time.Time{} }

func (r *Recorder) recoverLoop(s *session, name string) {
	if p := recover(); p != nil {
		r.obs.Error(module, "%s loop panic: %v", name, p)
		s.fail(fmt.Errorf("%s loop panic: %v", name, p))
	}
}

// runVideo drains the video encoder until it reports end of stream
func (r *Recorder) runVideo(s *session) {
	defer s.wg.Done()
	defer r.recoverLoop(s, "video")

	stall := stallWatch{limit: r.cfg.StallWarning}
	for {
		out, err := s.videoEnc.Dequeue(r.cfg.DequeueTimeout)
		if err != nil {
			s.fail(fmt.Errorf("video dequeue: %w", err))
			return
		}

		switch o := out.(type) {
		case capture.NeedMoreTime:
			if !s.stopping.Load() {
				continue
			}
			if stall.expired() {
				r.obs.Warn(module, "Video encoder did not reach end of stream within %v", r.cfg.StallWarning)
				r.obs.Count(telemetry.EncoderStall, 1)
				return
			}
			time.Sleep(r.cfg.StopPollDelay)
		case capture.FormatAvailable:
			stall.reset()
			if err := r.onFormat(s, &s.videoSlot, o.Descriptor); err != nil {
				s.fail(err)
				return
			}
		case capture.SampleReady:
			stall.reset()
			if o.Sample.IsEndOfStream() {
				r.obs.Debug(module, "Video end of stream")
				return
			}
			r.writeVideo(s, o.Sample)
		}
	}
}

func (r *Recorder) writeVideo(s *session, sample types.EncodedSample) {
	if sample.IsCodecConfig() {
		r.obs.Debug(module, "Video codec config (%d bytes) carried by the track descriptor", len(sample.Data))
		return
	}
	if !s.coord.Started() {
		r.obs.Count(telemetry.SampleDropped, 1)
		return
	}
	raw := sample.PTS
	sample.PTS = s.tracker.NormalizeVideo(raw)
	if s.coord.WriteSample(types.TrackVideo, sample) {
		s.tracker.ObserveVideo(raw, sample.PTS, len(sample.Data), sample.Flags)
	}
}

// runAudio pumps PCM from the tap through the audio encoder into the
// container until the tap stops or fails.
func (r *Recorder) runAudio(s *session) {
	defer s.wg.Done()
	defer r.recoverLoop(s, "audio")

	rate := r.cfg.Audio.SampleRate
	bpf := r.cfg.Audio.BytesPerFrame()
	buf := make([]byte, r.cfg.ChunkFrames*bpf)

	var (
		frames int64
		cause  error
	)
	for !s.stopping.Load() {
		n, err := s.tap.Read(buf)
		if err != nil {
			if !errors.Is(err, capture.ErrTapStopped) {
				r.obs.Error(module, "Audio capture failed: %v", err)
				cause = fmt.Errorf("audio tap: %w", err)
			}
			break
		}
		n -= n % bpf
		if n == 0 {
			continue
		}

		queued, err := r.queueAudio(s, buf[:n], frames)
		frames += int64(queued / bpf)
		if err != nil {
			cause = err
			break
		}
		if err := r.drainAudio(s, false); err != nil {
			cause = err
			break
		}
	}

	if err := s.audioEnc.QueueEndOfStream(aac.PCMDuration(frames, rate), r.cfg.DequeueTimeout); err != nil {
		r.obs.Warn(module, "Queue audio end of stream: %v", err)
	} else if err := r.drainAudio(s, true); err != nil && cause == nil {
		cause = err
	}
	if cause != nil {
		s.fail(cause)
	}
}

// queueAudio offers pcm to the encoder, draining output while no input slot
// is free. It returns the number of bytes accepted.
func (r *Recorder) queueAudio(s *session, pcm []byte, frames int64) (int, error) {
	rate := r.cfg.Audio.SampleRate
	bpf := r.cfg.Audio.BytesPerFrame()

	off := 0
	for off < len(pcm) {
		pts := aac.PCMDuration(frames+int64(off/bpf), rate)
		n, err := s.audioEnc.QueueInput(pcm[off:], pts, r.cfg.DequeueTimeout)
		if err != nil {
			return off, fmt.Errorf("audio input: %w", err)
		}
		if n > 0 {
			off += n
			continue
		}
		if s.stopping.Load() {
			return off, nil
		}
		if err := r.drainAudio(s, false); err != nil {
			return off, err
		}
		time.Sleep(r.cfg.InputRetryDelay)
	}
	return off, nil
}

// drainAudio writes every ready audio output. With untilEOS it keeps polling
// until the end-of-stream sample arrives, otherwise it returns at the first
// empty dequeue.
func (r *Recorder) drainAudio(s *session, untilEOS bool) error {
	stall := stallWatch{limit: r.cfg.StallWarning}
	for {
		out, err := s.audioEnc.Dequeue(r.cfg.DequeueTimeout)
		if err != nil {
			return fmt.Errorf("audio dequeue: %w", err)
		}

		switch o := out.(type) {
		case capture.NeedMoreTime:
			if !untilEOS {
				return nil
			}
			if stall.expired() {
				r.obs.Warn(module, "Audio encoder did not reach end of stream within %v", r.cfg.StallWarning)
				r.obs.Count(telemetry.EncoderStall, 1)
				return nil
			}
			time.Sleep(r.cfg.StopPollDelay)
		case capture.FormatAvailable:
			stall.reset()
			if err := r.onFormat(s, &s.audioSlot, o.Descriptor); err != nil {
				return err
			}
		case capture.SampleReady:
			stall.reset()
			if o.Sample.IsEndOfStream() {
				r.obs.Debug(module, "Audio end of stream")
				return nil
			}
			r.writeAudio(s, o.Sample)
		}
	}
}

func (r *Recorder) writeAudio(s *session, sample types.EncodedSample) {
	if sample.IsCodecConfig() {
		return
	}
	if !s.coord.Started() {
		r.obs.Count(telemetry.SampleDropped, 1)
		return
	}
	if s.coord.WriteSample(types.TrackAudio, sample) {
		s.tracker.ObserveAudio(sample.PTS, len(sample.Data), sample.Flags)
	}
}

// onFormat records an encoder's output format and registers its track. The
// container starts once both tracks are in; the first video sample after
// that should be a key frame.
func (r *Recorder) onFormat(s *session, slot *capture.DescriptorSlot, desc types.TrackDescriptor) error {
	slot.Set(desc)
	r.obs.Info(module, "Format available: %s", desc)

	var err error
	if desc.Kind == types.TrackVideo {
		_, err = s.coord.RegisterVideoTrack(desc)
	} else {
		_, err = s.coord.RegisterAudioTrack(desc)
	}
	switch {
	case errors.Is(err, container.ErrTrackRegistered):
		r.obs.Warn(module, "%s format changed mid-recording, applies from the next segment", desc.Kind)
		return nil
	case err != nil:
		return fmt.Errorf("register %s track: %w", desc.Kind, err)
	}

	if s.coord.Started() {
		if err := s.videoEnc.RequestKeyFrame(); err != nil {
			r.obs.Warn(module, "Key frame request failed: %v", err)
		}
	}
	return nil
}
