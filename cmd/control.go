// -- cmd/control.go --
// Device action commands: connect, devices, tap, swipe, key, text, app, stop,
// shell. Mutating commands run through the orchestrator so a successful action
// is followed by a settle wait and, budget permitting, a vision observation.
package cmd

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/droidpilot/api/schemas"
	"github.com/xkilldash9x/droidpilot/internal/adb"
	"github.com/xkilldash9x/droidpilot/internal/budget"
	"github.com/xkilldash9x/droidpilot/internal/config"
	"github.com/xkilldash9x/droidpilot/internal/geometry"
	"github.com/xkilldash9x/droidpilot/internal/observability"
	"github.com/xkilldash9x/droidpilot/internal/orchestrator"
	"github.com/xkilldash9x/droidpilot/internal/reporting"
	"github.com/xkilldash9x/droidpilot/internal/vision"
)

// actionComponents holds the services one invocation needs.
type actionComponents struct {
	Bridge       *adb.Client
	Observer     schemas.Observer
	Orchestrator *orchestrator.Orchestrator
	Reporter     reporting.Reporter
}

// initializeActionComponents handles dependency injection for an action
// invocation.
func initializeActionComponents(cfg *config.Config) (*actionComponents, error) {
	logger := observability.GetLogger()

	bridge := adb.New(cfg.Device, logger)
	observer := vision.New(cfg.Vision, logger)
	orch, err := orchestrator.New(bridge, observer, budget.New(cfg.Run.TotalTimeout, cfg.Run.AnalysisFloor), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create orchestrator: %w", err)
	}

	format := "text"
	if cfg.Run.JSON {
		format = "json"
	}
	reporter, err := reporting.New(format, "stdout")
	if err != nil {
		return nil, fmt.Errorf("failed to initialize reporter: %w", err)
	}

	return &actionComponents{
		Bridge:       bridge,
		Observer:     observer,
		Orchestrator: orch,
		Reporter:     reporter,
	}, nil
}

// addActionFlags attaches the flags shared by the mutating action commands.
func addActionFlags(cmd *cobra.Command) {
	cmd.Flags().Float64("wait", 1.5, "seconds to wait after the action before observing (0-60)")
	cmd.Flags().Bool("no-auto-view", false, "skip the automatic screen observation")
}

// runAction drives one mutating action through the orchestrator and renders
// the envelope. The process exit code mirrors the bridge exit code on failure.
func runAction(cmd *cobra.Command, components *actionComponents, action schemas.Action) error {
	defer components.Reporter.Close()

	opts := orchestrator.Options{Wait: appConfig.Run.Wait, AutoView: appConfig.Run.AutoView}
	if f := cmd.Flags().Lookup("wait"); f != nil && f.Changed {
		seconds, _ := cmd.Flags().GetFloat64("wait")
		if seconds < 0 {
			return fmt.Errorf("--wait time cannot be negative")
		}
		if seconds > config.MaxWait.Seconds() {
			return fmt.Errorf("--wait time cannot exceed %.0f seconds", config.MaxWait.Seconds())
		}
		opts.Wait = time.Duration(seconds * float64(time.Second))
	}
	if noView, _ := cmd.Flags().GetBool("no-auto-view"); noView {
		opts.AutoView = false
	}

	env, err := components.Orchestrator.Run(cmd.Context(), action, opts)
	if err != nil {
		return err
	}
	if err := components.Reporter.WriteEnvelope(&env); err != nil {
		return err
	}
	if !env.Result.OK {
		code := env.Result.ExitCode
		if code == 0 {
			code = 1
		}
		return &exitCodeError{code: code, msg: fmt.Sprintf("%s failed with exit code %d", action.Type, code)}
	}
	return nil
}

// runDirect executes a non-mutating command without wait or observation.
func runDirect(cmd *cobra.Command, action schemas.Action) error {
	components, err := initializeActionComponents(appConfig)
	if err != nil {
		return err
	}
	defer components.Reporter.Close()
	res, err := components.Bridge.Execute(cmd.Context(), action)
	if err != nil {
		return err
	}
	env := schemas.ResultEnvelope{Timestamp: time.Now(), Action: action, Result: res}
	if err := components.Reporter.WriteEnvelope(&env); err != nil {
		return err
	}
	if !res.OK {
		code := res.ExitCode
		if code == 0 {
			code = 1
		}
		return &exitCodeError{code: code, msg: fmt.Sprintf("%s failed with exit code %d", action.Type, code)}
	}
	return nil
}

// resolvePoint turns one CLI coordinate pair into device pixels. Relative
// input is strictly validated against [0,999] and rejected when out of range;
// absolute input is clamped to the screen with a warning.
func resolvePoint(ctx context.Context, bridge *adb.Client, x, y int, relative bool) (int, int, error) {
	logger := observability.GetLogger()
	screen, err := bridge.ScreenInfo(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("screen probe failed: %w", err)
	}

	if relative {
		absX, absY, err := geometry.ToAbsolute(geometry.Point{X: x, Y: y}, screen)
		if err != nil {
			return 0, 0, err
		}
		logger.Debug("converted relative coordinates",
			zap.Int("rel_x", x), zap.Int("rel_y", y),
			zap.Int("abs_x", absX), zap.Int("abs_y", absY))
		for _, w := range geometry.EdgeWarnings(absX, absY, screen) {
			logger.Warn(w)
		}
		return absX, absY, nil
	}

	cx, cy, corrected := geometry.ClampAbsolute(x, y, screen)
	if corrected {
		logger.Warn("absolute coordinates clamped to screen",
			zap.Int("x", x), zap.Int("y", y),
			zap.Int("clamped_x", cx), zap.Int("clamped_y", cy))
	}
	for _, w := range geometry.EdgeWarnings(cx, cy, screen) {
		logger.Warn(w)
	}
	return cx, cy, nil
}

func parseIntArg(name, value string) (int, error) {
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", name, value)
	}
	return n, nil
}

func newConnectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "connect",
		Short: "Connect to the configured device address",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDirect(cmd, schemas.Action{Type: schemas.ActionConnect})
		},
	}
}

func newDevicesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List devices known to the bridge",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDirect(cmd, schemas.Action{Type: schemas.ActionDevices})
		},
	}
}

func newTapCmd() *cobra.Command {
	tapCmd := &cobra.Command{
		Use:   "tap <x> <y>",
		Short: "Tap at coordinates (absolute pixels, or 0-999 relative with --relative)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			x, err := parseIntArg("x", args[0])
			if err != nil {
				return err
			}
			y, err := parseIntArg("y", args[1])
			if err != nil {
				return err
			}
			relative, _ := cmd.Flags().GetBool("relative")

			components, err := initializeActionComponents(appConfig)
			if err != nil {
				return err
			}
			absX, absY, err := resolvePoint(cmd.Context(), components.Bridge, x, y, relative)
			if err != nil {
				return err
			}
			return runAction(cmd, components, schemas.Action{Type: schemas.ActionTap, X1: absX, Y1: absY})
		},
	}
	addActionFlags(tapCmd)
	tapCmd.Flags().Bool("relative", false, "treat coordinates as relative (0-999) instead of absolute pixels")
	return tapCmd
}

func newSwipeCmd() *cobra.Command {
	swipeCmd := &cobra.Command{
		Use:   "swipe <x1> <y1> <x2> <y2>",
		Short: "Swipe from (x1,y1) to (x2,y2)",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			coords := make([]int, 4)
			names := []string{"x1", "y1", "x2", "y2"}
			for i, arg := range args {
				n, err := parseIntArg(names[i], arg)
				if err != nil {
					return err
				}
				coords[i] = n
			}
			relative, _ := cmd.Flags().GetBool("relative")
			durationMs, _ := cmd.Flags().GetInt("duration")

			components, err := initializeActionComponents(appConfig)
			if err != nil {
				return err
			}
			x1, y1, err := resolvePoint(cmd.Context(), components.Bridge, coords[0], coords[1], relative)
			if err != nil {
				return err
			}
			x2, y2, err := resolvePoint(cmd.Context(), components.Bridge, coords[2], coords[3], relative)
			if err != nil {
				return err
			}
			return runAction(cmd, components, schemas.Action{
				Type: schemas.ActionSwipe,
				X1:   x1, Y1: y1, X2: x2, Y2: y2,
				Duration: time.Duration(durationMs) * time.Millisecond,
			})
		},
	}
	addActionFlags(swipeCmd)
	swipeCmd.Flags().Bool("relative", false, "treat coordinates as relative (0-999) instead of absolute pixels")
	swipeCmd.Flags().Int("duration", 0, "swipe duration in milliseconds")
	return swipeCmd
}

func newKeyCmd() *cobra.Command {
	keyCmd := &cobra.Command{
		Use:   "key <name>",
		Short: "Send a keyevent by name (back/home/...) or numeric keycode",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			components, err := initializeActionComponents(appConfig)
			if err != nil {
				return err
			}
			return runAction(cmd, components, schemas.Action{Type: schemas.ActionKey, Key: args[0]})
		},
	}
	addActionFlags(keyCmd)
	return keyCmd
}

func newTextCmd() *cobra.Command {
	textCmd := &cobra.Command{
		Use:   "text <text>",
		Short: "Type ASCII text via the bridge input channel",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			components, err := initializeActionComponents(appConfig)
			if err != nil {
				return err
			}
			return runAction(cmd, components, schemas.Action{Type: schemas.ActionText, Text: args[0]})
		},
	}
	addActionFlags(textCmd)
	return textCmd
}

func newAppCmd() *cobra.Command {
	appCmd := &cobra.Command{
		Use:   "app <name>",
		Short: "Launch an app by package name (com.xxx) or alias (wechat/微信/settings/...)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			components, err := initializeActionComponents(appConfig)
			if err != nil {
				return err
			}
			return runAction(cmd, components, schemas.Action{Type: schemas.ActionApp, App: args[0]})
		},
	}
	addActionFlags(appCmd)
	return appCmd
}

func newStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop <name>",
		Short: "Force-stop an app by package name or alias",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDirect(cmd, schemas.Action{Type: schemas.ActionStop, App: args[0]})
		},
	}
}

func newShellCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "shell <args...>",
		Short: "Run a raw shell command on the device",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDirect(cmd, schemas.Action{Type: schemas.ActionShell, Shell: args})
		},
	}
}
