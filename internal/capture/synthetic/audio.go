package synthetic

import (
	"encoding/binary"
	"math"
	"sync"
	"time"

	"github.com/dj-oyu/screen-recorder/internal/aac"
	"github.com/dj-oyu/screen-recorder/internal/capture"
	"github.com/dj-oyu/screen-recorder/pkg/types"
)

// tap produces a 440 Hz tone paced by the wall clock
type tap struct {
	backend *Backend
	cfg     capture.AudioConfig

	mu      sync.Mutex
	started bool
	start   time.Time
	frames  int64
	stop    chan struct{}
	once    sync.Once
}

func newTap(b *Backend, cfg capture.AudioConfig) *tap {
	return &tap{backend: b, cfg: cfg, stop: make(chan struct{})}
}

func (t *tap) Start() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.started {
		t.started = true
		t.start = time.Now()
	}
	return nil
}

func (t *tap) Read(buf []byte) (int, error) {
	select {
	case <-t.stop:
		return 0, capture.ErrTapStopped
	default:
	}

	bpf := t.cfg.BytesPerFrame()
	n := len(buf) / bpf
	if n == 0 {
		return 0, nil
	}

	t.mu.Lock()
	if !t.started {
		t.mu.Unlock()
		return 0, capture.ErrTapStopped
	}
	if limit := t.backend.cfg.AudioFailAfter; limit > 0 && aac.PCMDuration(t.frames, t.cfg.SampleRate) >= limit {
		t.mu.Unlock()
		return 0, capture.ErrSourceDead
	}
	first := t.frames
	due := t.start.Add(aac.PCMDuration(first+int64(n), t.cfg.SampleRate))
	t.mu.Unlock()

	if wait := time.Until(due); wait > 0 {
		timer := time.NewTimer(wait)
		select {
		case <-t.stop:
			timer.Stop()
			return 0, capture.ErrTapStopped
		case <-timer.C:
		}
	}

	for i := 0; i < n; i++ {
		v := int16(3000 * math.Sin(2*math.Pi*440*float64(first+int64(i))/float64(t.cfg.SampleRate)))
		for c := 0; c < t.cfg.Channels; c++ {
			binary.LittleEndian.PutUint16(buf[i*bpf+2*c:], uint16(v))
		}
	}

	t.mu.Lock()
	t.frames += int64(n)
	t.mu.Unlock()
	return n * bpf, nil
}

func (t *tap) Stop() error {
	t.once.Do(func() { close(t.stop) })
	return nil
}

func (t *tap) Release() error { return t.Stop() }

const (
	aacPacketSize = 64
	inputFrames   = 4 * aac.SamplesPerFrame
)

type audioEncoder struct {
	backend  *Backend
	cfg      capture.AudioConfig
	asc      []byte
	formatAt time.Duration

	mu         sync.Mutex
	pending    []byte
	headPTS    time.Duration
	formatSent bool
	eosQueued  bool
	eosPTS     time.Duration
	eosSent    bool
	released   bool
	packets    int
}

func newAudioEncoder(b *Backend, cfg capture.AudioConfig) (*audioEncoder, error) {
	asc, err := aac.LC(cfg.SampleRate, cfg.Channels)
	if err != nil {
		return nil, capture.ErrNoEncoder
	}
	return &audioEncoder{
		backend:  b,
		cfg:      cfg,
		asc:      asc,
		formatAt: b.clock() + b.cfg.FormatDelay,
	}, nil
}

func (e *audioEncoder) Name() string { return "synthetic-aac" }

func (e *audioEncoder) QueueInput(pcm []byte, pts time.Duration, timeout time.Duration) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.released {
		return 0, capture.ErrReleased
	}
	if e.eosQueued {
		return 0, nil
	}
	capacity := inputFrames * e.cfg.BytesPerFrame()
	free := capacity - len(e.pending)
	if free <= 0 {
		return 0, nil
	}
	n := min(free, len(pcm))
	if len(e.pending) == 0 {
		e.headPTS = pts
	}
	e.pending = append(e.pending, pcm[:n]...)
	return n, nil
}

func (e *audioEncoder) QueueEndOfStream(pts time.Duration, timeout time.Duration) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.released {
		return capture.ErrReleased
	}
	e.eosQueued = true
	e.eosPTS = pts
	return nil
}

func (e *audioEncoder) packet(pts time.Duration) capture.Output {
	data := make([]byte, aacPacketSize)
	data[0] = 0x21
	for i := 1; i < len(data); i++ {
		data[i] = byte(e.packets + i)
	}
	e.packets++
	return capture.SampleReady{Sample: types.EncodedSample{
		Kind: types.TrackAudio, PTS: pts, Flags: types.FlagKeyFrame, Data: data,
	}}
}

func (e *audioEncoder) Dequeue(timeout time.Duration) (capture.Output, error) {
	e.mu.Lock()
	if e.released {
		e.mu.Unlock()
		return nil, capture.ErrReleased
	}

	if !e.formatSent {
		now := e.backend.clock()
		if now < e.formatAt {
			wait := min(timeout, e.formatAt-now)
			e.mu.Unlock()
			time.Sleep(wait)
			return capture.NeedMoreTime{}, nil
		}
		e.formatSent = true
		e.mu.Unlock()
		return capture.FormatAvailable{Descriptor: types.TrackDescriptor{
			Kind:         types.TrackAudio,
			Codec:        types.CodecAAC,
			MimeType:     "audio/mp4a-latm",
			SampleRate:   e.cfg.SampleRate,
			Channels:     e.cfg.Channels,
			Bitrate:      e.cfg.Bitrate,
			CodecPrivate: e.asc,
		}}, nil
	}

	frameBytes := aac.SamplesPerFrame * e.cfg.BytesPerFrame()
	if len(e.pending) >= frameBytes || (e.eosQueued && len(e.pending) > 0) {
		take := min(frameBytes, len(e.pending))
		pts := e.headPTS
		e.pending = e.pending[take:]
		e.headPTS += aac.PCMDuration(int64(take/e.cfg.BytesPerFrame()), e.cfg.SampleRate)
		out := e.packet(pts)
		e.mu.Unlock()
		return out, nil
	}

	if e.eosQueued && !e.eosSent {
		e.eosSent = true
		pts := e.eosPTS
		e.mu.Unlock()
		return capture.SampleReady{Sample: types.EncodedSample{
			Kind: types.TrackAudio, PTS: pts, Flags: types.FlagEndOfStream,
		}}, nil
	}
	e.mu.Unlock()
	time.Sleep(timeout)
	return capture.NeedMoreTime{}, nil
}

func (e *audioEncoder) Release() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.released = true
	e.pending = nil
	return nil
}
