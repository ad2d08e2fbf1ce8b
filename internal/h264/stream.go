package h264

// StartCode is the 4-byte Annex-B start code
var StartCode = []byte{0x00, 0x00, 0x00, 0x01}

// AppendAnnexB appends each NAL unit prefixed by a start code
func AppendAnnexB(dst []byte, nals ...[]byte) []byte {
	for _, n := range nals {
		dst = append(dst, StartCode...)
		dst = append(dst, n...)
	}
	return dst
}

// Baseline parameter sets used by encoders that do not report their own,
// 3.0 level, constrained baseline.
var (
	BaselineSPS = []byte{0x67, 0x42, 0xC0, 0x1E, 0xDA, 0x02, 0x80, 0xBF, 0xE5, 0x84, 0x00, 0x00, 0x03, 0x00, 0x04, 0x00, 0x00, 0x03, 0x00, 0xF0, 0x3C, 0x58, 0xBA, 0x80}
	BaselinePPS = []byte{0x68, 0xCE, 0x3C, 0x80}
)
