package container

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/at-wat/ebml-go/mkvcore"
	"github.com/at-wat/ebml-go/webm"
	"github.com/google/uuid"

	"github.com/dj-oyu/screen-recorder/internal/h264"
	"github.com/dj-oyu/screen-recorder/pkg/types"
)

// Matroska codec ids
const (
	CodecIDH264 = "V_MPEG4/ISO/AVC"
	CodecIDAAC  = "A_AAC"

	trackTypeVideo = 1
	trackTypeAudio = 2
)

const (
	flushTimeout = 2 * time.Second
	// sortWindow is how many blocks per track are held back to interleave tracks by timestamp
	sortWindow = 16
)

// blockSorter interleaves tracks by timestamp. A block that arrives after the
// other track has moved past it is still written, never dropped.
var blockSorter = mkvcore.MustBlockInterceptor(mkvcore.NewMultiTrackBlockSorter(
	mkvcore.WithMaxDelayedPackets(sortWindow),
	mkvcore.WithSortRule(mkvcore.BlockSorterWriteOutdated),
))

// fileSink closes the file once and lets the muxer wait for the block
// writer goroutine to hand the file back.
type fileSink struct {
	*os.File
	once   sync.Once
	closed chan struct{}
	err    error
}

func (s *fileSink) Close() error {
	s.once.Do(func() {
		s.err = s.File.Close()
		close(s.closed)
	})
	return s.err
}

// MatroskaMuxer writes H.264 and AAC tracks into a Matroska file
type MatroskaMuxer struct {
	path    string
	sink    *fileSink
	entries []webm.TrackEntry
	kinds   []types.TrackKind
	writers []webm.BlockWriteCloser
	started bool
	stopped bool
}

// NewMatroskaMuxer creates path and returns a muxer writing to it
func NewMatroskaMuxer(path string) (Muxer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("container: create %s: %w", path, err)
	}
	return &MatroskaMuxer{
		path: path,
		sink: &fileSink{File: f, closed: make(chan struct{})},
	}, nil
}

func trackUID() uint64 {
	id := uuid.New()
	return binary.BigEndian.Uint64(id[:8]) | 1
}

// AddTrack implements Muxer
func (m *MatroskaMuxer) AddTrack(desc types.TrackDescriptor) (int, error) {
	if m.started {
		return -1, ErrMuxerStarted
	}
	if !desc.Valid() {
		return -1, fmt.Errorf("container: invalid %s descriptor", desc.Kind)
	}

	entry := webm.TrackEntry{
		TrackNumber:  uint64(len(m.entries) + 1),
		TrackUID:     trackUID(),
		CodecPrivate: desc.CodecPrivate,
	}
	switch desc.Kind {
	case types.TrackVideo:
		if desc.Codec != types.CodecH264 {
			return -1, fmt.Errorf("container: unsupported video codec %q", desc.Codec)
		}
		entry.Name = "Video"
		entry.CodecID = CodecIDH264
		entry.TrackType = trackTypeVideo
		if desc.FrameRate > 0 {
			entry.DefaultDuration = uint64(time.Second / time.Duration(desc.FrameRate))
		}
		entry.Video = &webm.Video{
			PixelWidth:  uint64(desc.Width),
			PixelHeight: uint64(desc.Height),
		}
	case types.TrackAudio:
		if desc.Codec != types.CodecAAC {
			return -1, fmt.Errorf("container: unsupported audio codec %q", desc.Codec)
		}
		entry.Name = "Audio"
		entry.CodecID = CodecIDAAC
		entry.TrackType = trackTypeAudio
		entry.Audio = &webm.Audio{
			SamplingFrequency: float64(desc.SampleRate),
			Channels:          uint64(desc.Channels),
		}
	default:
		return -1, fmt.Errorf("container: unknown track kind %v", desc.Kind)
	}

	m.entries = append(m.entries, entry)
	m.kinds = append(m.kinds, desc.Kind)
	return len(m.entries) - 1, nil
}

// Start implements Muxer
func (m *MatroskaMuxer) Start() error {
	if m.started {
		return ErrMuxerStarted
	}
	ws, err := webm.NewSimpleBlockWriter(m.sink, m.entries,
		mkvcore.WithEBMLHeader(webm.EBMLHeader{
			EBMLVersion:        1,
			EBMLReadVersion:    1,
			EBMLMaxIDLength:    4,
			EBMLMaxSizeLength:  8,
			DocType:            "matroska",
			DocTypeVersion:     4,
			DocTypeReadVersion: 2,
		}),
		mkvcore.WithSegmentInfo(&webm.Info{
			TimecodeScale: uint64(time.Millisecond),
			MuxingApp:     "ebml-go",
			WritingApp:    "screenrec",
		}),
		mkvcore.WithBlockInterceptor(blockSorter),
	)
	if err != nil {
		return fmt.Errorf("container: start %s: %w", m.path, err)
	}
	m.writers = ws
	m.started = true
	return nil
}

// WriteSample implements Muxer
func (m *MatroskaMuxer) WriteSample(track int, s types.EncodedSample) error {
	if !m.started || m.stopped {
		return ErrNotStarted
	}
	if track < 0 || track >= len(m.writers) {
		return ErrUnknownTrack
	}

	payload := s.Data
	keyframe := s.Flags.Has(types.FlagKeyFrame)
	if m.kinds[track] == types.TrackVideo {
		avcc, err := h264.ToAVCC(s.Data)
		if err != nil {
			return fmt.Errorf("container: video payload: %w", err)
		}
		payload = avcc
	} else {
		keyframe = true
	}

	if _, err := m.writers[track].Write(keyframe, s.PTS.Milliseconds(), payload); err != nil {
		return fmt.Errorf("container: write track %d: %w", track, err)
	}
	return nil
}

// Stop implements Muxer
func (m *MatroskaMuxer) Stop() error {
	if !m.started {
		return ErrNotStarted
	}
	if m.stopped {
		return nil
	}
	m.stopped = true

	var firstErr error
	for _, w := range m.writers {
		if err := w.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	// the block writer closes the sink after the last track is closed
	select {
	case <-m.sink.closed:
	case <-time.After(flushTimeout):
		if err := m.sink.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if m.sink.err != nil && firstErr == nil {
		firstErr = m.sink.err
	}
	return firstErr
}

// Release implements Muxer. A muxer that never started leaves no file behind.
func (m *MatroskaMuxer) Release() error {
	if m.started {
		return m.Stop()
	}
	err := m.sink.Close()
	if rmErr := os.Remove(m.path); rmErr != nil && err == nil && !os.IsNotExist(rmErr) {
		err = rmErr
	}
	return err
}

var _ io.WriteCloser = (*fileSink)(nil)
