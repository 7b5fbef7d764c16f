// Package adb wraps the external Android Debug Bridge binary. The bridge is an
// opaque collaborator: the only contract is exit status and stdout/stderr
// text, so every helper funnels through one dispatch path and reports a
// CmdResult instead of interpreting tool output.
package adb

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/droidpilot/api/schemas"
	"github.com/xkilldash9x/droidpilot/internal/config"
)

// timeoutExitCode mirrors the shell convention for a killed-by-timeout child.
const timeoutExitCode = 124

// keycodes maps friendly key names to Android keycodes. Unknown names pass
// through untouched so numeric codes and raw KEYCODE_* constants still work.
var keycodes = map[string]string{
	"back":        "4",
	"home":        "3",
	"menu":        "82",
	"power":       "26",
	"volume_up":   "24",
	"volume_down": "25",
	"enter":       "66",
	"delete":      "67",
	"paste":       "279",
}

// appAliases maps common app names (including their CJK spellings) to package
// names. Anything containing a dot is assumed to already be a package.
var appAliases = map[string]string{
	"settings": "com.android.settings",
	"设置":       "com.android.settings",
	"browser":  "com.android.browser",
	"浏览器":      "com.android.browser",
	"chrome":   "com.android.chrome",
	"wechat":   "com.tencent.mm",
	"微信":       "com.tencent.mm",
	"alipay":   "com.eg.android.AlipayGphone",
	"支付宝":      "com.eg.android.AlipayGphone",
	"x":        "com.twitter.android",
	"twitter":  "com.twitter.android",
}

// Runner executes one external command. The seam exists so tests can stub
// process execution; the production implementation shells out.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (stdout, stderr []byte, exitCode int, err error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, int, error) {
	var outBuf, errBuf bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf

	err := cmd.Run()
	code := 0
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code = exitErr.ExitCode()
			err = nil
		} else if ctx.Err() != nil {
			code = timeoutExitCode
		} else {
			code = -1
		}
	}
	return outBuf.Bytes(), errBuf.Bytes(), code, err
}

// Client issues device actions through the bridge binary. One command in
// flight at a time; the limiter keeps rapid-fire callers from flooding the
// local adb server.
type Client struct {
	adbPath string
	address string
	timeout time.Duration
	limiter *rate.Limiter
	runner  Runner
	logger  *zap.Logger
}

// New builds a Client from device configuration.
func New(cfg config.DeviceConfig, logger *zap.Logger) *Client {
	return &Client{
		adbPath: cfg.ADBPath,
		address: cfg.Address,
		timeout: cfg.CommandTimeout,
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.Burst),
		runner:  ExecRunner{},
		logger:  logger.Named("adb"),
	}
}

// WithRunner substitutes the process runner; intended for tests.
func (c *Client) WithRunner(r Runner) *Client {
	c.runner = r
	return c
}

// Address returns the configured host:port target.
func (c *Client) Address() string { return c.address }

func (c *Client) base() []string {
	return []string{c.adbPath, "-s", c.address}
}

// run is the single dispatch path for every bridge command.
func (c *Client) run(ctx context.Context, args ...string) schemas.CmdResult {
	if err := c.limiter.Wait(ctx); err != nil {
		return schemas.CmdResult{
			OK:       false,
			Command:  args,
			Stderr:   err.Error(),
			ExitCode: timeoutExitCode,
		}
	}

	runCtx := ctx
	var cancel context.CancelFunc
	if c.timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	start := time.Now()
	stdout, stderr, code, err := c.runner.Run(runCtx, args[0], args[1:]...)
	elapsed := time.Since(start)

	res := schemas.CmdResult{
		OK:       err == nil && code == 0,
		Command:  args,
		Stdout:   string(stdout),
		Stderr:   string(stderr),
		ExitCode: code,
	}
	if err != nil {
		res.Stderr = strings.TrimSpace(res.Stderr + "\n" + err.Error())
		if res.ExitCode == 0 {
			res.ExitCode = -1
		}
	}
	if code == timeoutExitCode && runCtx.Err() != nil {
		secs := int(c.timeout.Seconds())
		res.Stderr = strings.TrimSpace(res.Stderr + fmt.Sprintf(
			"\nTIMEOUT\nCommand timed out after %d seconds. Consider increasing timeout with --timeout %d.",
			secs, secs*2))
	}

	c.logger.Debug("bridge command finished",
		zap.Strings("command", args),
		zap.Bool("ok", res.OK),
		zap.Int("exit_code", res.ExitCode),
		zap.Duration("elapsed", elapsed),
	)
	return res
}

func (c *Client) shell(ctx context.Context, args ...string) schemas.CmdResult {
	full := append(c.base(), "shell")
	full = append(full, args...)
	return c.run(ctx, full...)
}

// Connect runs `adb connect host:port`.
func (c *Client) Connect(ctx context.Context) schemas.CmdResult {
	return c.run(ctx, c.adbPath, "connect", c.address)
}

// Devices lists all attached devices. No -s: the listing is global.
func (c *Client) Devices(ctx context.Context) schemas.CmdResult {
	return c.run(ctx, c.adbPath, "devices")
}

// Shell runs a raw shell command on the device.
func (c *Client) Shell(ctx context.Context, args ...string) schemas.CmdResult {
	return c.shell(ctx, args...)
}

// Tap taps at absolute pixel coordinates.
func (c *Client) Tap(ctx context.Context, x, y int) schemas.CmdResult {
	return c.shell(ctx, "input", "tap", strconv.Itoa(x), strconv.Itoa(y))
}

// Swipe drags from (x1,y1) to (x2,y2). A zero duration lets the device pick.
func (c *Client) Swipe(ctx context.Context, x1, y1, x2, y2 int, duration time.Duration) schemas.CmdResult {
	args := []string{"input", "swipe",
		strconv.Itoa(x1), strconv.Itoa(y1), strconv.Itoa(x2), strconv.Itoa(y2)}
	if duration > 0 {
		args = append(args, strconv.Itoa(int(duration.Milliseconds())))
	}
	return c.shell(ctx, args...)
}

// Key sends a keyevent by friendly name or raw keycode.
func (c *Client) Key(ctx context.Context, nameOrCode string) schemas.CmdResult {
	code := nameOrCode
	if mapped, ok := keycodes[strings.ToLower(nameOrCode)]; ok {
		code = mapped
	}
	return c.shell(ctx, "input", "keyevent", code)
}

// Text types ASCII-safe text through the native input command.
func (c *Client) Text(ctx context.Context, text string) schemas.CmdResult {
	return c.shell(ctx, "input", "text", EscapeText(text))
}

// InputUnicode injects one codepoint as a hex escape. Devices without an
// input method that understands `input unicode` drop the character silently.
func (c *Client) InputUnicode(ctx context.Context, r rune) schemas.CmdResult {
	return c.shell(ctx, "input", "unicode", fmt.Sprintf("0x%04x", r))
}

// ClipboardBroadcast pushes text onto the device clipboard through the
// clipboard-manager broadcast receiver. The clipboard channel bypasses the
// keyboard input method entirely, so any Unicode content survives.
func (c *Client) ClipboardBroadcast(ctx context.Context, text string) schemas.CmdResult {
	return c.shell(ctx, "am", "broadcast", "-a", "ADB_CLIPBOARD_TEXT", "--es", "text", text)
}

// PasteKey inserts the clipboard at the focused field via KEYCODE_PASTE.
func (c *Client) PasteKey(ctx context.Context) schemas.CmdResult {
	return c.Key(ctx, "paste")
}

// SelectAll sends Ctrl+A to the focused field. Requires an Android recent
// enough to support `input keycombination`; older devices report failure.
func (c *Client) SelectAll(ctx context.Context) schemas.CmdResult {
	return c.shell(ctx, "input", "keycombination", "113", "29")
}

// LaunchApp starts an app by package name or alias using the monkey launcher.
func (c *Client) LaunchApp(ctx context.Context, nameOrPackage string) schemas.CmdResult {
	pkg, err := resolvePackage(nameOrPackage)
	if err != nil {
		return schemas.CmdResult{
			OK:       false,
			Command:  []string{"app", nameOrPackage},
			Stderr:   err.Error(),
			ExitCode: 2,
		}
	}
	return c.shell(ctx, "monkey", "-p", pkg, "-c", "android.intent.category.LAUNCHER", "1")
}

// StopApp force-stops an app by package name or alias.
func (c *Client) StopApp(ctx context.Context, nameOrPackage string) schemas.CmdResult {
	pkg, err := resolvePackage(nameOrPackage)
	if err != nil {
		return schemas.CmdResult{
			OK:       false,
			Command:  []string{"stop", nameOrPackage},
			Stderr:   err.Error(),
			ExitCode: 2,
		}
	}
	return c.shell(ctx, "am", "force-stop", pkg)
}

// Execute implements schemas.DeviceBridge over the parsed Action variants.
func (c *Client) Execute(ctx context.Context, action schemas.Action) (schemas.CmdResult, error) {
	switch action.Type {
	case schemas.ActionConnect:
		return c.Connect(ctx), nil
	case schemas.ActionDevices:
		return c.Devices(ctx), nil
	case schemas.ActionTap:
		return c.Tap(ctx, action.X1, action.Y1), nil
	case schemas.ActionSwipe:
		return c.Swipe(ctx, action.X1, action.Y1, action.X2, action.Y2, action.Duration), nil
	case schemas.ActionKey:
		return c.Key(ctx, action.Key), nil
	case schemas.ActionText:
		return c.Text(ctx, action.Text), nil
	case schemas.ActionApp:
		return c.LaunchApp(ctx, action.App), nil
	case schemas.ActionStop:
		return c.StopApp(ctx, action.App), nil
	case schemas.ActionShell:
		return c.Shell(ctx, action.Shell...), nil
	default:
		return schemas.CmdResult{}, fmt.Errorf("unknown action type %q", action.Type)
	}
}

// Screencap captures the screen as PNG bytes. Preferred path streams the
// image over exec-out; if that yields nothing it falls back to writing on the
// device, pulling, and cleaning up.
func (c *Client) Screencap(ctx context.Context) ([]byte, error) {
	direct := append(c.base(), "exec-out", "screencap", "-p")
	res := c.run(ctx, direct...)
	if res.OK && len(res.Stdout) > 0 {
		return []byte(res.Stdout), nil
	}

	remote := fmt.Sprintf("/sdcard/droidpilot_screen_%d.png", time.Now().Unix())
	if r := c.shell(ctx, "screencap", "-p", remote); !r.OK {
		return nil, fmt.Errorf("failed to capture screenshot: %s", firstNonEmpty(r.Stderr, r.Stdout))
	}

	local := filepath.Join(os.TempDir(), filepath.Base(remote))
	pull := append(c.base(), "pull", remote, local)
	pullRes := c.run(ctx, pull...)
	c.shell(ctx, "rm", "-f", remote)
	if !pullRes.OK {
		return nil, fmt.Errorf("failed to pull screenshot: %s", firstNonEmpty(pullRes.Stderr, pullRes.Stdout))
	}
	defer os.Remove(local)

	data, err := os.ReadFile(local)
	if err != nil {
		return nil, fmt.Errorf("failed to read pulled screenshot: %w", err)
	}
	return data, nil
}

func resolvePackage(nameOrPackage string) (string, error) {
	pkg := nameOrPackage
	if alias, ok := appAliases[strings.ToLower(nameOrPackage)]; ok {
		pkg = alias
	} else if alias, ok := appAliases[nameOrPackage]; ok {
		pkg = alias
	}
	if !strings.Contains(pkg, ".") {
		return "", fmt.Errorf("unknown app %q: provide a package name like com.example.app or add an alias", nameOrPackage)
	}
	return pkg, nil
}

// EscapeText encodes text for `input text`. The input tool treats spaces and
// percent signs specially and chokes on unescaped shell metacharacters.
func EscapeText(text string) string {
	return strings.NewReplacer(
		"%", "%25",
		" ", "%s",
		"\n", "%0A",
		"\t", "%09",
		"&", `\&`,
		"<", `\<`,
		">", `\>`,
		`"`, `\"`,
		"'", `\'`,
	).Replace(text)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
