// Package geometry converts between the relative 0-999 coordinate system the
// vision model reports and absolute device pixels. Keeping the model output
// resolution independent is what lets one description drive phones, tablets
// and resized emulator windows alike.
package geometry

import (
	"fmt"
	"math"

	"github.com/xkilldash9x/droidpilot/api/schemas"
)

// RelativeMax is the inclusive upper bound of the relative coordinate space.
// (0,0) is the top-left corner, (999,999) the bottom-right.
const RelativeMax = 999

// ErrInvalidCoordinate reports a relative coordinate outside [0,999]. Inputs
// are rejected rather than clamped so a misbehaving vision model surfaces
// immediately instead of tapping a silently "corrected" location.
type ErrInvalidCoordinate struct {
	X, Y int
}

func (e *ErrInvalidCoordinate) Error() string {
	return fmt.Sprintf("relative coordinate (%d, %d) outside [0, %d]", e.X, e.Y, RelativeMax)
}

// Point is a position in the relative coordinate space.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Valid reports whether both components are inside the relative space.
func (p Point) Valid() bool {
	return p.X >= 0 && p.X <= RelativeMax && p.Y >= 0 && p.Y <= RelativeMax
}

// ToAbsolute maps a relative point onto a concrete screen. Pure function:
// identical inputs always yield identical pixels, and each axis is monotonic.
func ToAbsolute(p Point, screen schemas.ScreenInfo) (int, int, error) {
	if !p.Valid() {
		return 0, 0, &ErrInvalidCoordinate{X: p.X, Y: p.Y}
	}
	x := int(math.Round(float64(p.X) / RelativeMax * float64(screen.Width)))
	y := int(math.Round(float64(p.Y) / RelativeMax * float64(screen.Height)))
	return x, y, nil
}

// ToRelative maps absolute pixels back into the relative space. Pixel input is
// clamped to the screen bounds first; unlike ToAbsolute this path tolerates
// out-of-range values because it only runs on model output that reported
// absolute pixels, where the screen edge is the honest interpretation.
func ToRelative(absX, absY int, screen schemas.ScreenInfo) Point {
	absX = clamp(absX, 0, screen.Width-1)
	absY = clamp(absY, 0, screen.Height-1)
	return Point{
		X: int(math.Round(float64(absX) / float64(screen.Width) * RelativeMax)),
		Y: int(math.Round(float64(absY) / float64(screen.Height) * RelativeMax)),
	}
}

// ClampAbsolute bounds an absolute pixel pair to the screen and reports
// whether it was moved. Used for caller-supplied absolute coordinates, which
// get corrected with a warning rather than rejected.
func ClampAbsolute(x, y int, screen schemas.ScreenInfo) (int, int, bool) {
	cx := clamp(x, 0, screen.Width-1)
	cy := clamp(y, 0, screen.Height-1)
	return cx, cy, cx != x || cy != y
}

// EdgeWarnings flags absolute coordinates that sit in zones where taps tend to
// hit the status bar, the navigation bar, or a screen edge. Advisory only.
func EdgeWarnings(x, y int, screen schemas.ScreenInfo) []string {
	var warns []string
	marginX := float64(screen.Width) * 0.05
	marginTop := float64(screen.Height) * 0.10
	marginBottom := float64(screen.Height) * 0.10

	if float64(x) < marginX || float64(x) > float64(screen.Width)-marginX {
		warns = append(warns, fmt.Sprintf("x=%d is close to the screen edge", x))
	}
	if float64(y) < marginTop {
		warns = append(warns, fmt.Sprintf("y=%d is inside the status bar zone", y))
	}
	if float64(y) > float64(screen.Height)-marginBottom {
		warns = append(warns, fmt.Sprintf("y=%d is inside the navigation bar zone", y))
	}
	return warns
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
