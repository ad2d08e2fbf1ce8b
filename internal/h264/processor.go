package h264

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/pion/webrtc/v3/pkg/media/h264reader"
)

// NAL unit types used by the recorder
const (
	NALTypeSlice uint8 = 1
	NALTypeIDR   uint8 = 5
	NALTypeSEI   uint8 = 6
	NALTypeSPS   uint8 = 7
	NALTypePPS   uint8 = 8
	NALTypeAUD   uint8 = 9
)

// ErrNoNALUnits is returned for payloads without a single start code
var ErrNoNALUnits = errors.New("h264: no NAL units in payload")

// NALUnit is a NAL unit without its start code
type NALUnit struct {
	Type uint8  // lower 5 bits of the header
	Data []byte // header byte plus payload
}

// SplitNALs splits an Annex-B access unit into NAL units
func SplitNALs(data []byte) ([]NALUnit, error) {
	if len(data) == 0 {
		return nil, ErrNoNALUnits
	}
	r, err := h264reader.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("h264: reader: %w", err)
	}

	units := make([]NALUnit, 0, 4)
	for {
		nal, err := r.NextNAL()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("h264: parse: %w", err)
		}
		if nal == nil || len(nal.Data) == 0 {
			continue
		}
		units = append(units, NALUnit{
			Type: uint8(nal.UnitType) & 0x1F,
			Data: nal.Data,
		})
	}
	if len(units) == 0 {
		return nil, ErrNoNALUnits
	}
	return units, nil
}

// AccessUnit summarizes one encoded picture
type AccessUnit struct {
	HasIDR     bool
	ConfigOnly bool // only parameter sets / SEI / AUD, no picture data
}

// Processor tracks parameter sets seen in the stream
type Processor struct {
	spsCache []byte
	ppsCache []byte
}

// NewProcessor creates a new H.264 processor
func NewProcessor() *Processor {
	return &Processor{}
}

// Process inspects an Annex-B access unit and caches any SPS/PPS it carries
func (p *Processor) Process(data []byte) (AccessUnit, error) {
	units, err := SplitNALs(data)
	if err != nil {
		return AccessUnit{}, err
	}

	au := AccessUnit{ConfigOnly: true}
	for _, u := range units {
		switch u.Type {
		case NALTypeSPS:
			p.spsCache = append(p.spsCache[:0], u.Data...)
		case NALTypePPS:
			p.ppsCache = append(p.ppsCache[:0], u.Data...)
		case NALTypeSEI, NALTypeAUD:
		case NALTypeIDR:
			au.HasIDR = true
			au.ConfigOnly = false
		default:
			au.ConfigOnly = false
		}
	}
	return au, nil
}

// HasHeaders returns true if SPS and PPS are cached
func (p *Processor) HasHeaders() bool {
	return len(p.spsCache) > 0 && len(p.ppsCache) > 0
}

// SPS returns the cached SPS NAL unit
func (p *Processor) SPS() []byte {
	return p.spsCache
}

// PPS returns the cached PPS NAL unit
func (p *Processor) PPS() []byte {
	return p.ppsCache
}

// DecoderConfig returns the avcC record for the cached parameter sets
func (p *Processor) DecoderConfig() ([]byte, error) {
	if !p.HasHeaders() {
		return nil, errors.New("h264: parameter sets not seen yet")
	}
	return DecoderConfigRecord(p.spsCache, p.ppsCache)
}

// IsIDRFrame checks if an Annex-B payload contains an IDR slice
func IsIDRFrame(data []byte) bool {
	units, err := SplitNALs(data)
	if err != nil {
		return false
	}
	for _, u := range units {
		if u.Type == NALTypeIDR {
			return true
		}
	}
	return false
}
