// Package dimension derives the encoded frame size from the physical screen.
package dimension

import (
	"math"

	"github.com/dj-oyu/screen-recorder/pkg/types"
)

// Defaults match the phone-sized capture the recorder was tuned for.
const (
	DefaultScaleFactor = 0.3375
	DefaultMinWidth    = 480
	DefaultMinHeight   = 854

	// Bitrate scales linearly with area against a 1080p reference.
	referencePixels  = 1920 * 1080
	referenceBitrate = 4_500_000
	minBitrate       = 2_000_000
)

// Strategy maps screen metrics to recording dimensions
type Strategy interface {
	Plan(types.ScreenMetrics) types.RecordingDimensions
}

// ScaledEven scales the screen by ScaleFactor, clamps each side to its
// minimum and makes it even.
type ScaledEven struct {
	ScaleFactor float64
	MinWidth    int
	MinHeight   int
}

// NewScaledEven returns the planner with default parameters
func NewScaledEven() ScaledEven {
	return ScaledEven{
		ScaleFactor: DefaultScaleFactor,
		MinWidth:    DefaultMinWidth,
		MinHeight:   DefaultMinHeight,
	}
}

// Plan implements Strategy
func (p ScaledEven) Plan(m types.ScreenMetrics) types.RecordingDimensions {
	scale := p.ScaleFactor
	if scale <= 0 {
		scale = DefaultScaleFactor
	}
	return types.RecordingDimensions{
		WidthPx:  side(m.WidthPx, scale, p.MinWidth),
		HeightPx: side(m.HeightPx, scale, p.MinHeight),
	}
}

func side(px int, scale float64, minimum int) int {
	if minimum < 2 {
		minimum = 2
	}
	v := int(math.Round(float64(px) * scale))
	if v < minimum {
		v = minimum
	}
	if v%2 != 0 {
		// An odd minimum would be violated by rounding down.
		if v-1 >= minimum {
			v--
		} else {
			v++
		}
	}
	return v
}

// Bitrate returns the video bitrate for dims in bits per second
func Bitrate(dims types.RecordingDimensions) int {
	br := int(float64(referenceBitrate) * float64(dims.Pixels()) / float64(referencePixels))
	if br < minBitrate {
		return minBitrate
	}
	return br
}
