package h264

import (
	"bytes"
	"testing"
)

func idrSlice() []byte   { return []byte{0x65, 0x88, 0x84, 0x21, 0xA0} }
func deltaSlice() []byte { return []byte{0x41, 0x9A, 0x02, 0x11} }

func TestSplitNALs(t *testing.T) {
	au := AppendAnnexB(nil, BaselineSPS, BaselinePPS, idrSlice())
	units, err := SplitNALs(au)
	if err != nil {
		t.Fatalf("SplitNALs: %v", err)
	}
	if len(units) != 3 {
		t.Fatalf("expected 3 units, got %d", len(units))
	}
	wantTypes := []uint8{NALTypeSPS, NALTypePPS, NALTypeIDR}
	for i, u := range units {
		if u.Type != wantTypes[i] {
			t.Fatalf("unit %d type = %d, want %d", i, u.Type, wantTypes[i])
		}
	}
	if !bytes.Equal(units[0].Data, BaselineSPS) {
		t.Fatalf("SPS payload mismatch")
	}
}

func TestSplitNALsEmpty(t *testing.T) {
	if _, err := SplitNALs(nil); err != ErrNoNALUnits {
		t.Fatalf("expected ErrNoNALUnits, got %v", err)
	}
}

func TestProcessorCachesParameterSets(t *testing.T) {
	p := NewProcessor()

	au, err := p.Process(AppendAnnexB(nil, deltaSlice()))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if au.HasIDR || au.ConfigOnly || p.HasHeaders() {
		t.Fatalf("unexpected state for delta frame: %+v headers=%v", au, p.HasHeaders())
	}

	au, err = p.Process(AppendAnnexB(nil, BaselineSPS, BaselinePPS))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if !au.ConfigOnly {
		t.Fatalf("parameter sets alone should be config-only")
	}
	if !p.HasHeaders() {
		t.Fatalf("headers should be cached")
	}

	au, _ = p.Process(AppendAnnexB(nil, BaselineSPS, BaselinePPS, idrSlice()))
	if !au.HasIDR || au.ConfigOnly {
		t.Fatalf("IDR access unit misclassified: %+v", au)
	}
}

func TestAVCCRoundTrip(t *testing.T) {
	au := AppendAnnexB(nil, []byte{0x09, 0xF0}, BaselineSPS, BaselinePPS, idrSlice())
	avcc, err := ToAVCC(au)
	if err != nil {
		t.Fatalf("ToAVCC: %v", err)
	}
	units, err := SplitAVCC(avcc)
	if err != nil {
		t.Fatalf("SplitAVCC: %v", err)
	}
	if len(units) != 3 {
		t.Fatalf("AUD should be dropped, got %d units", len(units))
	}
	if units[2].Type != NALTypeIDR || !bytes.Equal(units[2].Data, idrSlice()) {
		t.Fatalf("IDR unit mismatch: %+v", units[2])
	}
}

func TestDecoderConfigRecord(t *testing.T) {
	rec, err := DecoderConfigRecord(BaselineSPS, BaselinePPS)
	if err != nil {
		t.Fatalf("DecoderConfigRecord: %v", err)
	}
	if rec[0] != 1 || rec[1] != 0x42 || rec[3] != 0x1E || rec[4] != 0xFF {
		t.Fatalf("bad header % x", rec[:6])
	}
	sps, pps, err := ParseDecoderConfigRecord(rec)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !bytes.Equal(sps, BaselineSPS) || !bytes.Equal(pps, BaselinePPS) {
		t.Fatalf("parameter sets did not survive the record")
	}
}

func TestDecoderConfigRecordRejectsGarbage(t *testing.T) {
	if _, err := DecoderConfigRecord([]byte{0x41, 1, 2, 3}, BaselinePPS); err == nil {
		t.Fatalf("expected error for non-SPS")
	}
}

func TestIsIDRFrame(t *testing.T) {
	if !IsIDRFrame(AppendAnnexB(nil, idrSlice())) {
		t.Fatalf("IDR not detected")
	}
	if IsIDRFrame(AppendAnnexB(nil, deltaSlice())) {
		t.Fatalf("delta misdetected as IDR")
	}
}
