package visual

import "math"

// RGB is one color as 0-255 components.
type RGB struct {
	R int `json:"r"`
	G int `json:"g"`
	B int `json:"b"`
}

// Waveform bar gradient endpoints: quiet bars render green, loud bars
// shade toward blue.
var (
	StartColor = RGB{R: 19, G: 239, B: 147}
	EndColor   = RGB{R: 20, G: 154, B: 251}
)

// InterpolateColor linearly blends between start and end. factor is
// clamped to [0, 1]; components round to the nearest integer.
func InterpolateColor(start, end RGB, factor float64) RGB {
	if factor < 0 {
		factor = 0
	}
	if factor > 1 {
		factor = 1
	}
	lerp := func(a, b int) int {
		return int(math.Round(float64(a) + factor*float64(b-a)))
	}
	return RGB{
		R: lerp(start.R, end.R),
		G: lerp(start.G, end.G),
		B: lerp(start.B, end.B),
	}
}

// BarColor maps a frequency-bin amplitude (0-255) to its bar color.
func BarColor(amplitude uint8) RGB {
	return InterpolateColor(StartColor, EndColor, float64(amplitude)/255)
}

// Palette precomputes the bar color for every amplitude value, so clients
// can index instead of interpolating per frame.
func Palette() [256]RGB {
	var palette [256]RGB
	for i := range palette {
		palette[i] = BarColor(uint8(i))
	}
	return palette
}
