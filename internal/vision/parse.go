package vision

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/xkilldash9x/droidpilot/api/schemas"
	"github.com/xkilldash9x/droidpilot/internal/geometry"
)

// Marker patterns the coordinate prompt asks the model to emit. The legacy
// absolute pattern is still accepted from models that ignore the relative
// instruction.
var (
	relCoordRe = regexp.MustCompile(`🎯 相对坐标：\((\d+),\s*(\d+)\)`)
	absCoordRe = regexp.MustCompile(`🎯 坐标：\((\d+),\s*(\d+)\)`)
	headerRe   = regexp.MustCompile(`^\d+\.`)
	labelRe    = regexp.MustCompile(`\*\*(.+?)\*\*`)
	priorityRe = regexp.MustCompile(`\((高|中|低)优先级\)`)
)

var priorityNames = map[string]string{
	"高": "high",
	"中": "medium",
	"低": "low",
}

// ExtractElements scans a completion for the structured element block and
// returns the clickable elements with both coordinate systems filled in.
// Malformed or absent blocks yield an empty list, never an error: the
// narration text is still useful without coordinates. Elements whose relative
// coordinates fall outside [0,999] are dropped.
func ExtractElements(description string, screen schemas.ScreenInfo) []schemas.Element {
	var elements []schemas.Element
	var current *schemas.Element
	located := false

	flush := func() {
		if current != nil && located {
			elements = append(elements, *current)
		}
		current, located = nil, false
	}

	for _, line := range strings.Split(description, "\n") {
		trimmed := strings.TrimSpace(line)

		if headerRe.MatchString(trimmed) && strings.Contains(trimmed, "**") {
			flush()
			current = &schemas.Element{Priority: "medium"}
			if m := labelRe.FindStringSubmatch(trimmed); m != nil {
				current.Label = m[1]
			} else {
				current.Label = trimmed
			}
			if m := priorityRe.FindStringSubmatch(trimmed); m != nil {
				current.Priority = priorityNames[m[1]]
			}
			continue
		}
		if current == nil {
			continue
		}

		if m := relCoordRe.FindStringSubmatch(line); m != nil {
			rel := geometry.Point{X: atoi(m[1]), Y: atoi(m[2])}
			absX, absY, err := geometry.ToAbsolute(rel, screen)
			if err != nil {
				// Out-of-range model output; drop the element.
				current = nil
				continue
			}
			current.RelativeX, current.RelativeY = rel.X, rel.Y
			current.AbsoluteX, current.AbsoluteY = absX, absY
			located = true
			continue
		}

		// Legacy absolute marker, only if no relative pair was seen.
		if !located {
			if m := absCoordRe.FindStringSubmatch(line); m != nil {
				absX, absY := atoi(m[1]), atoi(m[2])
				rel := geometry.ToRelative(absX, absY, screen)
				current.AbsoluteX, current.AbsoluteY = absX, absY
				current.RelativeX, current.RelativeY = rel.X, rel.Y
				located = true
			}
		}
	}
	flush()
	return elements
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
