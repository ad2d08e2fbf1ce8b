package h264

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ToAVCC rewrites an Annex-B access unit as 4-byte length-prefixed NAL units.
// Access unit delimiters are dropped.
func ToAVCC(annexB []byte) ([]byte, error) {
	units, err := SplitNALs(annexB)
	if err != nil {
		return nil, err
	}
	size := 0
	for _, u := range units {
		size += 4 + len(u.Data)
	}
	out := make([]byte, 0, size)
	var hdr [4]byte
	for _, u := range units {
		if u.Type == NALTypeAUD {
			continue
		}
		binary.BigEndian.PutUint32(hdr[:], uint32(len(u.Data)))
		out = append(out, hdr[:]...)
		out = append(out, u.Data...)
	}
	return out, nil
}

// SplitAVCC splits a length-prefixed payload back into NAL units
func SplitAVCC(data []byte) ([]NALUnit, error) {
	var units []NALUnit
	for len(data) > 0 {
		if len(data) < 4 {
			return nil, fmt.Errorf("h264: truncated length prefix (%d bytes)", len(data))
		}
		n := int(binary.BigEndian.Uint32(data))
		data = data[4:]
		if n == 0 || n > len(data) {
			return nil, fmt.Errorf("h264: bad NAL length %d (remaining %d)", n, len(data))
		}
		units = append(units, NALUnit{Type: data[0] & 0x1F, Data: data[:n]})
		data = data[n:]
	}
	return units, nil
}

func isHighProfile(profile byte) bool {
	switch profile {
	case 100, 110, 122, 144:
		return true
	}
	return false
}

// DecoderConfigRecord builds an AVCDecoderConfigurationRecord (ISO/IEC 14496-15)
// from one SPS and one PPS, both without start codes.
func DecoderConfigRecord(sps, pps []byte) ([]byte, error) {
	if len(sps) < 4 || sps[0]&0x1F != NALTypeSPS {
		return nil, errors.New("h264: invalid SPS")
	}
	if len(pps) < 1 || pps[0]&0x1F != NALTypePPS {
		return nil, errors.New("h264: invalid PPS")
	}

	rec := make([]byte, 0, 11+len(sps)+len(pps))
	rec = append(rec,
		1,      // configurationVersion
		sps[1], // AVCProfileIndication
		sps[2], // profile_compatibility
		sps[3], // AVCLevelIndication
		0xFF,   // lengthSizeMinusOne = 3
		0xE1,   // one SPS
	)
	rec = binary.BigEndian.AppendUint16(rec, uint16(len(sps)))
	rec = append(rec, sps...)
	rec = append(rec, 1)
	rec = binary.BigEndian.AppendUint16(rec, uint16(len(pps)))
	rec = append(rec, pps...)

	if isHighProfile(sps[1]) {
		// 4:2:0, 8-bit, no SPS extensions
		rec = append(rec, 0xFC|1, 0xF8, 0xF8, 0)
	}
	return rec, nil
}

// ParseDecoderConfigRecord extracts the first SPS and PPS from an avcC record
func ParseDecoderConfigRecord(rec []byte) (sps, pps []byte, err error) {
	if len(rec) < 7 || rec[0] != 1 {
		return nil, nil, errors.New("h264: invalid avcC record")
	}
	pos := 5
	if rec[pos]&0x1F == 0 {
		return nil, nil, errors.New("h264: avcC without SPS")
	}
	pos++
	if pos+2 > len(rec) {
		return nil, nil, errors.New("h264: truncated avcC")
	}
	n := int(binary.BigEndian.Uint16(rec[pos:]))
	pos += 2
	if pos+n > len(rec) {
		return nil, nil, errors.New("h264: truncated SPS in avcC")
	}
	sps = rec[pos : pos+n]
	pos += n
	if pos+3 > len(rec) || rec[pos] == 0 {
		return nil, nil, errors.New("h264: avcC without PPS")
	}
	pos++
	n = int(binary.BigEndian.Uint16(rec[pos:]))
	pos += 2
	if pos+n > len(rec) {
		return nil, nil, errors.New("h264: truncated PPS in avcC")
	}
	pps = rec[pos : pos+n]
	return sps, pps, nil
}
