package adb

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/droidpilot/api/schemas"
	"github.com/xkilldash9x/droidpilot/internal/config"
)

// fakeRunner records dispatched commands and replays scripted results.
type fakeRunner struct {
	calls   [][]string
	stdout  map[string]string
	stderr  map[string]string
	exit    map[string]int
	defExit int
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{
		stdout: map[string]string{},
		stderr: map[string]string{},
		exit:   map[string]int{},
	}
}

// script keys on a substring of the joined command line.
func (f *fakeRunner) script(match, stdout, stderr string, exit int) {
	f.stdout[match] = stdout
	f.stderr[match] = stderr
	f.exit[match] = exit
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) ([]byte, []byte, int, error) {
	full := append([]string{name}, args...)
	f.calls = append(f.calls, full)
	line := strings.Join(full, " ")
	for match := range f.stdout {
		if strings.Contains(line, match) {
			return []byte(f.stdout[match]), []byte(f.stderr[match]), f.exit[match], nil
		}
	}
	return nil, nil, f.defExit, nil
}

func (f *fakeRunner) lastCall() string {
	if len(f.calls) == 0 {
		return ""
	}
	return strings.Join(f.calls[len(f.calls)-1], " ")
}

func testClient(r Runner) *Client {
	cfg := config.DeviceConfig{
		ADBPath:        "adb",
		Address:        "127.0.0.1:5555",
		CommandTimeout: 5 * time.Second,
		RateLimit:      1000,
		Burst:          100,
	}
	return New(cfg, zap.NewNop()).WithRunner(r)
}

func TestCommandConstruction(t *testing.T) {
	runner := newFakeRunner()
	c := testClient(runner)
	ctx := context.Background()

	t.Run("tap", func(t *testing.T) {
		res := c.Tap(ctx, 540, 960)
		assert.True(t, res.OK)
		assert.Equal(t, "adb -s 127.0.0.1:5555 shell input tap 540 960", runner.lastCall())
	})

	t.Run("swipe with duration", func(t *testing.T) {
		c.Swipe(ctx, 100, 200, 300, 400, 250*time.Millisecond)
		assert.Equal(t, "adb -s 127.0.0.1:5555 shell input swipe 100 200 300 400 250", runner.lastCall())
	})

	t.Run("swipe without duration omits the argument", func(t *testing.T) {
		c.Swipe(ctx, 100, 200, 300, 400, 0)
		assert.Equal(t, "adb -s 127.0.0.1:5555 shell input swipe 100 200 300 400", runner.lastCall())
	})

	t.Run("key resolves friendly names", func(t *testing.T) {
		c.Key(ctx, "BACK")
		assert.Equal(t, "adb -s 127.0.0.1:5555 shell input keyevent 4", runner.lastCall())

		c.Key(ctx, "66")
		assert.Contains(t, runner.lastCall(), "keyevent 66")

		c.Key(ctx, "KEYCODE_A")
		assert.Contains(t, runner.lastCall(), "keyevent KEYCODE_A")
	})

	t.Run("connect targets the configured address", func(t *testing.T) {
		c.Connect(ctx)
		assert.Equal(t, "adb connect 127.0.0.1:5555", runner.lastCall())
	})

	t.Run("devices listing is global", func(t *testing.T) {
		c.Devices(ctx)
		assert.Equal(t, "adb devices", runner.lastCall())
	})

	t.Run("clipboard broadcast", func(t *testing.T) {
		c.ClipboardBroadcast(ctx, "你好")
		assert.Equal(t, "adb -s 127.0.0.1:5555 shell am broadcast -a ADB_CLIPBOARD_TEXT --es text 你好", runner.lastCall())
	})

	t.Run("paste key", func(t *testing.T) {
		c.PasteKey(ctx)
		assert.Contains(t, runner.lastCall(), "keyevent 279")
	})

	t.Run("select all", func(t *testing.T) {
		c.SelectAll(ctx)
		assert.Contains(t, runner.lastCall(), "input keycombination 113 29")
	})

	t.Run("unicode escape", func(t *testing.T) {
		c.InputUnicode(ctx, '世')
		assert.Contains(t, runner.lastCall(), "input unicode 0x4e16")
	})
}

func TestEscapeText(t *testing.T) {
	assert.Equal(t, "hello%sworld", EscapeText("hello world"))
	assert.Equal(t, "100%25", EscapeText("100%"))
	assert.Equal(t, `a\&b`, EscapeText("a&b"))
	assert.Equal(t, "line1%0Aline2", EscapeText("line1\nline2"))
	assert.Equal(t, `\"quoted\'`, EscapeText(`"quoted'`))
	// Simultaneous replacement: the escape output is never re-escaped.
	assert.Equal(t, "%25s", EscapeText("%s"))
}

func TestAppResolution(t *testing.T) {
	runner := newFakeRunner()
	c := testClient(runner)
	ctx := context.Background()

	t.Run("alias resolves to package", func(t *testing.T) {
		c.LaunchApp(ctx, "WeChat")
		assert.Contains(t, runner.lastCall(), "monkey -p com.tencent.mm")
	})

	t.Run("cjk alias resolves", func(t *testing.T) {
		c.LaunchApp(ctx, "微信")
		assert.Contains(t, runner.lastCall(), "com.tencent.mm")
	})

	t.Run("explicit package passes through", func(t *testing.T) {
		c.LaunchApp(ctx, "com.example.app")
		assert.Contains(t, runner.lastCall(), "monkey -p com.example.app")
	})

	t.Run("unknown bare name fails without touching the device", func(t *testing.T) {
		before := len(runner.calls)
		res := c.LaunchApp(ctx, "definitely-not-an-app")
		assert.False(t, res.OK)
		assert.Equal(t, 2, res.ExitCode)
		assert.Len(t, runner.calls, before, "no bridge command may be issued")
	})

	t.Run("stop uses force-stop", func(t *testing.T) {
		c.StopApp(ctx, "alipay")
		assert.Contains(t, runner.lastCall(), "am force-stop com.eg.android.AlipayGphone")
	})
}

func TestExecuteDispatch(t *testing.T) {
	runner := newFakeRunner()
	c := testClient(runner)
	ctx := context.Background()

	res, err := c.Execute(ctx, schemas.Action{Type: schemas.ActionTap, X1: 10, Y1: 20})
	require.NoError(t, err)
	assert.True(t, res.OK)
	assert.Contains(t, runner.lastCall(), "input tap 10 20")

	res, err = c.Execute(ctx, schemas.Action{Type: schemas.ActionText, Text: "hi there"})
	require.NoError(t, err)
	assert.Contains(t, runner.lastCall(), "input text hi%sthere")

	_, err = c.Execute(ctx, schemas.Action{Type: "BOGUS"})
	assert.Error(t, err)
}

func TestFailureReporting(t *testing.T) {
	runner := newFakeRunner()
	runner.script("input tap", "", "error: device offline", 1)
	c := testClient(runner)

	res := c.Tap(context.Background(), 1, 2)
	assert.False(t, res.OK)
	assert.Equal(t, 1, res.ExitCode)
	assert.Contains(t, res.Stderr, "device offline")
}

func TestScreencapDirect(t *testing.T) {
	runner := newFakeRunner()
	runner.script("exec-out screencap", "\x89PNG fake-bytes", "", 0)
	c := testClient(runner)

	data, err := c.Screencap(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "\x89PNG fake-bytes", string(data))
	assert.Contains(t, runner.lastCall(), "exec-out screencap -p")
}

func TestScreencapFallbackFailure(t *testing.T) {
	runner := newFakeRunner()
	// Direct path yields nothing, on-device capture fails outright.
	runner.script("exec-out screencap", "", "", 1)
	runner.script("shell screencap", "", "permission denied", 1)
	c := testClient(runner)

	_, err := c.Screencap(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "permission denied")
}
