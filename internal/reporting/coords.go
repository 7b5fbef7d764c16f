package reporting

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"

	"github.com/xkilldash9x/droidpilot/api/schemas"
)

// coordsFile is the persisted shape of a coordinate dump.
type coordsFile struct {
	Timestamp  int64              `json:"timestamp"`
	ScreenInfo schemas.ScreenInfo `json:"screen_info"`
	Elements   []schemas.Element  `json:"elements"`
}

// SaveCoords persists extracted elements next to the invocation. An empty
// path picks screen_coords_<unix>.<ext> in the working directory, with the
// extension matching the format; ~ is expanded. Returns the path actually
// written.
func SaveCoords(elements []schemas.Element, screen schemas.ScreenInfo, format, path string) (string, error) {
	if len(elements) == 0 {
		return "", fmt.Errorf("no elements to save")
	}
	if path == "" {
		ext := "json"
		if format == "text" {
			ext = "txt"
		}
		path = fmt.Sprintf("screen_coords_%d.%s", time.Now().Unix(), ext)
	}
	expanded, err := homedir.Expand(path)
	if err != nil {
		return "", fmt.Errorf("failed to expand coords path %s: %w", path, err)
	}

	var data []byte
	switch format {
	case "json", "":
		data, err = json.MarshalIndent(coordsFile{
			Timestamp:  time.Now().Unix(),
			ScreenInfo: screen,
			Elements:   elements,
		}, "", "  ")
		if err != nil {
			return "", fmt.Errorf("failed to marshal coords: %w", err)
		}
	case "text":
		var sb strings.Builder
		fmt.Fprintf(&sb, "# screen %dx%d (%s)\n", screen.Width, screen.Height, screen.Source)
		for _, el := range elements {
			fmt.Fprintf(&sb, "%s\t%d\t%d\n", el.Label, el.AbsoluteX, el.AbsoluteY)
		}
		data = []byte(sb.String())
	default:
		return "", fmt.Errorf("unsupported coords format: %q", format)
	}

	if err := os.WriteFile(expanded, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write coords file: %w", err)
	}
	return expanded, nil
}

// CoordsJSON renders elements as an indented JSON block for inline text
// output.
func CoordsJSON(elements []schemas.Element) (string, error) {
	out, err := json.MarshalIndent(elements, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal coords: %w", err)
	}
	return string(out), nil
}
