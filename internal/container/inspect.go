package container

import (
	"bufio"
	"fmt"
	"os"
	"time"

	"github.com/at-wat/ebml-go"

	"github.com/dj-oyu/screen-recorder/pkg/types"
)

// TrackInfo describes one track found in a finalized file
type TrackInfo struct {
	Number     uint64
	Kind       types.TrackKind
	CodecID    string
	Width      int
	Height     int
	SampleRate float64
	Channels   int

	Samples   int
	Keyframes int
	First     time.Duration
	Last      time.Duration
}

// Metadata is what Inspect reads back from a container file
type Metadata struct {
	DocType  string
	Tracks   []TrackInfo
	Duration time.Duration
	// HasDuration is false when the file carries no timed samples
	HasDuration bool
}

// Track returns the first track of kind
func (m Metadata) Track(kind types.TrackKind) (TrackInfo, bool) {
	for _, t := range m.Tracks {
		if t.Kind == kind {
			return t, true
		}
	}
	return TrackInfo{}, false
}

type mkvFile struct {
	Header  mkvHeader  `ebml:"EBML"`
	Segment mkvSegment `ebml:"Segment"`
}

type mkvHeader struct {
	DocType string `ebml:"EBMLDocType"`
}

type mkvSegment struct {
	Info    mkvInfo      `ebml:"Info"`
	Tracks  mkvTracks    `ebml:"Tracks"`
	Cluster []mkvCluster `ebml:"Cluster"`
}

type mkvInfo struct {
	TimecodeScale uint64 `ebml:"TimecodeScale"`
}

type mkvTracks struct {
	TrackEntry []mkvTrack `ebml:"TrackEntry"`
}

type mkvTrack struct {
	TrackNumber uint64   `ebml:"TrackNumber"`
	CodecID     string   `ebml:"CodecID"`
	TrackType   uint64   `ebml:"TrackType"`
	Video       mkvVideo `ebml:"Video"`
	Audio       mkvAudio `ebml:"Audio"`
}

type mkvVideo struct {
	PixelWidth  uint64 `ebml:"PixelWidth"`
	PixelHeight uint64 `ebml:"PixelHeight"`
}

type mkvAudio struct {
	SamplingFrequency float64 `ebml:"SamplingFrequency"`
	Channels          uint64  `ebml:"Channels"`
}

type mkvCluster struct {
	Timecode    uint64       `ebml:"Timecode"`
	SimpleBlock []ebml.Block `ebml:"SimpleBlock"`
}

// Inspect parses a Matroska file and reports its tracks and duration
func Inspect(path string) (Metadata, error) {
	f, err := os.Open(path)
	if err != nil {
		return Metadata{}, err
	}
	defer f.Close()

	var doc mkvFile
	if err := ebml.Unmarshal(bufio.NewReader(f), &doc); err != nil {
		return Metadata{}, fmt.Errorf("container: parse %s: %w", path, err)
	}

	scale := time.Duration(doc.Segment.Info.TimecodeScale)
	if scale == 0 {
		scale = time.Millisecond
	}

	md := Metadata{DocType: doc.Header.DocType}
	byNumber := make(map[uint64]int)
	for _, e := range doc.Segment.Tracks.TrackEntry {
		ti := TrackInfo{Number: e.TrackNumber, CodecID: e.CodecID}
		switch e.TrackType {
		case trackTypeVideo:
			ti.Kind = types.TrackVideo
			ti.Width = int(e.Video.PixelWidth)
			ti.Height = int(e.Video.PixelHeight)
		case trackTypeAudio:
			ti.Kind = types.TrackAudio
			ti.SampleRate = e.Audio.SamplingFrequency
			ti.Channels = int(e.Audio.Channels)
		default:
			continue
		}
		byNumber[e.TrackNumber] = len(md.Tracks)
		md.Tracks = append(md.Tracks, ti)
	}

	for _, cl := range doc.Segment.Cluster {
		for _, b := range cl.SimpleBlock {
			i, ok := byNumber[b.TrackNumber]
			if !ok {
				continue
			}
			ts := (time.Duration(cl.Timecode) + time.Duration(b.Timecode)) * scale
			t := &md.Tracks[i]
			if t.Samples == 0 || ts < t.First {
				t.First = ts
			}
			if ts > t.Last {
				t.Last = ts
			}
			t.Samples++
			if b.Keyframe {
				t.Keyframes++
			}
		}
	}

	var lo, hi time.Duration
	for _, t := range md.Tracks {
		if t.Samples == 0 {
			continue
		}
		if !md.HasDuration || t.First < lo {
			lo = t.First
		}
		if !md.HasDuration || t.Last > hi {
			hi = t.Last
		}
		md.HasDuration = true
	}
	md.Duration = hi - lo
	return md, nil
}
