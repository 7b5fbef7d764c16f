package reporting

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/droidpilot/api/schemas"
)

func sampleEnvelope() *schemas.ResultEnvelope {
	return &schemas.ResultEnvelope{
		InvocationID: "11111111-2222-3333-4444-555555555555",
		Timestamp:    time.Unix(1700000000, 0).UTC(),
		Action:       schemas.Action{Type: schemas.ActionTap},
		Result: schemas.CmdResult{
			OK:      true,
			Command: []string{"adb", "-s", "127.0.0.1:5555", "shell", "input", "tap", "540", "960"},
		},
	}
}

func readBack(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func TestNew(t *testing.T) {
	t.Run("stdout variants", func(t *testing.T) {
		for _, path := range []string{"", "stdout"} {
			r, err := New("text", path)
			require.NoError(t, err)
			assert.NoError(t, r.Close(), "closing the stdout reporter must be a no-op")
		}
	})

	t.Run("unsupported format", func(t *testing.T) {
		_, err := New("yaml", "")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unsupported output format")
	})

	t.Run("unwritable path", func(t *testing.T) {
		_, err := New("json", filepath.Join(t.TempDir(), "missing", "out.json"))
		require.Error(t, err)
	})
}

func TestTextReporter(t *testing.T) {
	t.Run("successful action with observation", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "out.txt")
		r, err := New("text", path)
		require.NoError(t, err)

		env := sampleEnvelope()
		env.Result.Stdout = "tap dispatched"
		env.Observation = &schemas.Observation{Description: "home screen with search bar"}
		require.NoError(t, r.WriteEnvelope(env))
		require.NoError(t, r.Close())

		out := readBack(t, path)
		assert.Contains(t, out, "[TAP] OK")
		assert.Contains(t, out, "tap dispatched")
		assert.Contains(t, out, "home screen with search bar")
	})

	t.Run("failed action shows stderr", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "out.txt")
		r, err := New("text", path)
		require.NoError(t, err)

		env := sampleEnvelope()
		env.Result.OK = false
		env.Result.ExitCode = 1
		env.Result.Stderr = "error: device offline"
		env.Skipped = true
		env.SkipReason = schemas.KindActionFailed
		require.NoError(t, r.WriteEnvelope(env))
		require.NoError(t, r.Close())

		out := readBack(t, path)
		assert.Contains(t, out, "FAILED (exit 1)")
		assert.Contains(t, out, "device offline")
	})

	t.Run("budget skip is called out", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "out.txt")
		r, err := New("text", path)
		require.NoError(t, err)

		env := sampleEnvelope()
		env.Skipped = true
		env.SkipReason = schemas.KindBudgetExhausted
		require.NoError(t, r.WriteEnvelope(env))
		require.NoError(t, r.Close())

		assert.Contains(t, readBack(t, path), "time budget exhausted")
	})

	t.Run("observation failure is called out", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "out.txt")
		r, err := New("text", path)
		require.NoError(t, err)

		env := sampleEnvelope()
		env.Skipped = true
		env.SkipReason = schemas.KindObservationFailed
		env.ObservationError = "endpoint unreachable"
		require.NoError(t, r.WriteEnvelope(env))
		require.NoError(t, r.Close())

		assert.Contains(t, readBack(t, path), "observation failed: endpoint unreachable")
	})

	t.Run("observation with elements", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "out.txt")
		r, err := New("text", path)
		require.NoError(t, err)

		obs := &schemas.Observation{
			Description: "login form",
			Elements: []schemas.Element{
				{Label: "登录按钮", Priority: "high", RelativeX: 500, RelativeY: 800, AbsoluteX: 541, AbsoluteY: 1922},
			},
		}
		require.NoError(t, r.WriteObservation(obs))
		require.NoError(t, r.Close())

		out := readBack(t, path)
		assert.Contains(t, out, "login form")
		assert.Contains(t, out, "登录按钮 [high] rel=(500,800) abs=(541,1922)")
	})
}

func TestJSONReporter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.json")
	r, err := New("json", path)
	require.NoError(t, err)

	env := sampleEnvelope()
	env.Observation = &schemas.Observation{Description: "a screen"}
	require.NoError(t, r.WriteEnvelope(env))
	require.NoError(t, r.Close())

	var decoded schemas.ResultEnvelope
	require.NoError(t, json.Unmarshal([]byte(readBack(t, path)), &decoded))
	assert.Equal(t, env.InvocationID, decoded.InvocationID)
	assert.Equal(t, schemas.ActionTap, decoded.Action.Type)
	require.NotNil(t, decoded.Observation)
	assert.Equal(t, "a screen", decoded.Observation.Description)
}
