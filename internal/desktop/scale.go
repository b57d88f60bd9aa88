package desktop

import (
	"math"

	v1 "github.com/compeek/compeek/pkg/api/v1"
)

// Scaler maps the logical display the agent sees onto the real screen.
// A zero screen size means both are the same.
type Scaler struct {
	LogicalWidth  int
	LogicalHeight int
	ScreenWidth   int
	ScreenHeight  int
}

// Enabled reports whether coordinates and screenshots need rescaling.
func (s Scaler) Enabled() bool {
	if s.LogicalWidth <= 0 || s.LogicalHeight <= 0 || s.ScreenWidth <= 0 || s.ScreenHeight <= 0 {
		return false
	}
	return s.LogicalWidth != s.ScreenWidth || s.LogicalHeight != s.ScreenHeight
}

// ToScreen converts a logical point to screen pixels.
func (s Scaler) ToScreen(p v1.Point) v1.Point {
	if !s.Enabled() {
		return p
	}
	return v1.Point{
		X: scaleAxis(p.X, s.LogicalWidth, s.ScreenWidth),
		Y: scaleAxis(p.Y, s.LogicalHeight, s.ScreenHeight),
	}
}

// RegionToScreen converts a logical rectangle to screen pixels.
func (s Scaler) RegionToScreen(r v1.Region) v1.Region {
	if !s.Enabled() {
		return r
	}
	return v1.Region{
		X1: scaleAxis(r.X1, s.LogicalWidth, s.ScreenWidth),
		Y1: scaleAxis(r.Y1, s.LogicalHeight, s.ScreenHeight),
		X2: scaleAxis(r.X2, s.LogicalWidth, s.ScreenWidth),
		Y2: scaleAxis(r.Y2, s.LogicalHeight, s.ScreenHeight),
	}
}

func scaleAxis(v, from, to int) int {
	return int(math.Round(float64(v) * float64(to) / float64(from)))
}
