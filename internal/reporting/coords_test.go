package reporting

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/droidpilot/api/schemas"
)

// chdir stands in for t.Chdir, which needs Go 1.24+.
func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(old) })
}

var coordsScreen = schemas.ScreenInfo{Width: 1080, Height: 2400, Density: 420, Source: "wm_size"}

func coordsElements() []schemas.Element {
	return []schemas.Element{
		{Label: "搜索框", Priority: "high", RelativeX: 500, RelativeY: 150, AbsoluteX: 541, AbsoluteY: 360},
		{Label: "确认按钮", Priority: "medium", RelativeX: 500, RelativeY: 900, AbsoluteX: 541, AbsoluteY: 2162},
	}
}

func TestSaveCoords(t *testing.T) {
	t.Run("json format round-trips", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "coords.json")
		written, err := SaveCoords(coordsElements(), coordsScreen, "json", path)
		require.NoError(t, err)
		assert.Equal(t, path, written)

		data, err := os.ReadFile(written)
		require.NoError(t, err)

		var decoded coordsFile
		require.NoError(t, json.Unmarshal(data, &decoded))
		assert.Equal(t, coordsScreen, decoded.ScreenInfo)
		require.Len(t, decoded.Elements, 2)
		assert.Equal(t, "搜索框", decoded.Elements[0].Label)
		assert.NotZero(t, decoded.Timestamp)
	})

	t.Run("text format is tab separated", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "coords.txt")
		written, err := SaveCoords(coordsElements(), coordsScreen, "text", path)
		require.NoError(t, err)

		data, err := os.ReadFile(written)
		require.NoError(t, err)
		assert.Contains(t, string(data), "# screen 1080x2400 (wm_size)")
		assert.Contains(t, string(data), "搜索框\t541\t360")
	})

	t.Run("default path gets a timestamped name", func(t *testing.T) {
		chdir(t, t.TempDir())
		written, err := SaveCoords(coordsElements(), coordsScreen, "json", "")
		require.NoError(t, err)
		assert.Regexp(t, `^screen_coords_\d+\.json$`, written)
	})

	t.Run("text format default path gets a txt extension", func(t *testing.T) {
		chdir(t, t.TempDir())
		written, err := SaveCoords(coordsElements(), coordsScreen, "text", "")
		require.NoError(t, err)
		assert.Regexp(t, `^screen_coords_\d+\.txt$`, written)

		data, err := os.ReadFile(written)
		require.NoError(t, err)
		assert.Contains(t, string(data), "搜索框\t541\t360")
	})

	t.Run("empty element list is rejected", func(t *testing.T) {
		_, err := SaveCoords(nil, coordsScreen, "json", "")
		require.Error(t, err)
	})

	t.Run("unknown format is rejected", func(t *testing.T) {
		_, err := SaveCoords(coordsElements(), coordsScreen, "csv", filepath.Join(t.TempDir(), "x"))
		require.Error(t, err)
	})
}

func TestCoordsJSON(t *testing.T) {
	out, err := CoordsJSON(coordsElements())
	require.NoError(t, err)
	assert.Contains(t, out, `"description": "搜索框"`)
	assert.Contains(t, out, `"relative_x": 500`)
}
