package dimension

import (
	"testing"

	"github.com/dj-oyu/screen-recorder/pkg/types"
)

func TestPlanDefaults(t *testing.T) {
	p := NewScaledEven()

	cases := []struct {
		name   string
		screen types.ScreenMetrics
		want   types.RecordingDimensions
	}{
		{"phone", types.ScreenMetrics{WidthPx: 1080, HeightPx: 2400, DensityDpi: 420}, types.RecordingDimensions{WidthPx: 480, HeightPx: 854}},
		{"tablet", types.ScreenMetrics{WidthPx: 2560, HeightPx: 3200}, types.RecordingDimensions{WidthPx: 864, HeightPx: 1080}},
		{"odd scaled", types.ScreenMetrics{WidthPx: 1500, HeightPx: 3000}, types.RecordingDimensions{WidthPx: 506, HeightPx: 1012}},
		{"zero screen", types.ScreenMetrics{}, types.RecordingDimensions{WidthPx: 480, HeightPx: 854}},
	}
	for _, tc := range cases {
		got := p.Plan(tc.screen)
		if got != tc.want {
			t.Fatalf("%s: Plan(%+v) = %+v, want %+v", tc.name, tc.screen, got, tc.want)
		}
	}
}

func TestPlanAlwaysEvenAndAboveMinimum(t *testing.T) {
	p := ScaledEven{ScaleFactor: 0.5, MinWidth: 481, MinHeight: 855}
	for w := 0; w < 4000; w += 37 {
		for h := 0; h < 4000; h += 53 {
			d := p.Plan(types.ScreenMetrics{WidthPx: w, HeightPx: h})
			if d.WidthPx%2 != 0 || d.HeightPx%2 != 0 {
				t.Fatalf("odd dimensions %+v for %dx%d", d, w, h)
			}
			if d.WidthPx < p.MinWidth || d.HeightPx < p.MinHeight {
				t.Fatalf("dimensions %+v below minimum for %dx%d", d, w, h)
			}
		}
	}
}

func TestPlanIsDeterministic(t *testing.T) {
	p := NewScaledEven()
	m := types.ScreenMetrics{WidthPx: 1440, HeightPx: 3120}
	if p.Plan(m) != p.Plan(m) {
		t.Fatalf("planner not deterministic")
	}
}

func TestBitrate(t *testing.T) {
	if got := Bitrate(types.RecordingDimensions{WidthPx: 1920, HeightPx: 1080}); got != 4_500_000 {
		t.Fatalf("1080p bitrate = %d", got)
	}
	if got := Bitrate(types.RecordingDimensions{WidthPx: 480, HeightPx: 854}); got != 2_000_000 {
		t.Fatalf("small frame bitrate = %d, want floor", got)
	}
}
