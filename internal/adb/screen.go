package adb

import (
	"context"
	"regexp"
	"strconv"

	"go.uber.org/zap"

	"github.com/xkilldash9x/droidpilot/api/schemas"
)

// Fallback geometry for devices where every probe fails; a common 1080p phone
// panel. Density in dpi.
const (
	fallbackWidth   = 1080
	fallbackHeight  = 2400
	fallbackDensity = 420
)

var (
	physicalSizeRe   = regexp.MustCompile(`Physical size: (\d+)x(\d+)`)
	displayInitRe    = regexp.MustCompile(`init=(\d+)x(\d+)`)
	unrestrictedRe   = regexp.MustCompile(`mUnrestrictedScreen=\(\d+,\d+\) (\d+)x(\d+)`)
	physicalDensityRe = regexp.MustCompile(`Physical density: (\d+)`)
)

// ScreenInfo queries the current display geometry. Three probes are tried in
// order of reliability: wm size, dumpsys window displays, dumpsys window. The
// result is never cached; rotation or an emulator resize invalidates it.
func (c *Client) ScreenInfo(ctx context.Context) (schemas.ScreenInfo, error) {
	info := schemas.ScreenInfo{
		Width:   fallbackWidth,
		Height:  fallbackHeight,
		Density: fallbackDensity,
		Source:  "default",
	}

	if res := c.shell(ctx, "wm", "size"); res.OK {
		if w, h, ok := matchPair(physicalSizeRe, res.Stdout); ok {
			info.Width, info.Height, info.Source = w, h, "wm_size"
		}
	}
	if info.Source == "default" {
		if res := c.shell(ctx, "dumpsys", "window", "displays"); res.OK {
			if w, h, ok := matchPair(displayInitRe, res.Stdout); ok {
				info.Width, info.Height, info.Source = w, h, "dumpsys_displays"
			}
		}
	}
	if info.Source == "default" {
		if res := c.shell(ctx, "dumpsys", "window"); res.OK {
			if w, h, ok := matchPair(unrestrictedRe, res.Stdout); ok {
				info.Width, info.Height, info.Source = w, h, "dumpsys_window"
			}
		}
	}

	if res := c.shell(ctx, "wm", "density"); res.OK {
		if m := physicalDensityRe.FindStringSubmatch(res.Stdout); m != nil {
			if d, err := strconv.Atoi(m[1]); err == nil {
				info.Density = d
			}
		}
	}

	if info.Source == "default" {
		c.logger.Warn("screen geometry probes failed, using defaults",
			zap.Int("width", info.Width), zap.Int("height", info.Height))
	}
	return info, nil
}

func matchPair(re *regexp.Regexp, s string) (int, int, bool) {
	m := re.FindStringSubmatch(s)
	if m == nil {
		return 0, 0, false
	}
	a, err1 := strconv.Atoi(m[1])
	b, err2 := strconv.Atoi(m[2])
	if err1 != nil || err2 != nil || a <= 0 || b <= 0 {
		return 0, 0, false
	}
	return a, b, true
}
