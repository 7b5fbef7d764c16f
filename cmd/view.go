// -- cmd/view.go --
// Screen observation commands: capture a screenshot, or capture and describe
// it through the local vision endpoint.
package cmd

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/droidpilot/api/schemas"
	"github.com/xkilldash9x/droidpilot/internal/adb"
	"github.com/xkilldash9x/droidpilot/internal/observability"
	"github.com/xkilldash9x/droidpilot/internal/reporting"
	"github.com/xkilldash9x/droidpilot/internal/vision"
)

func newViewCmd() *cobra.Command {
	viewCmd := &cobra.Command{
		Use:   "view",
		Short: "Capture and optionally describe the device screen",
	}
	viewCmd.PersistentFlags().StringP("output", "o", "", "screenshot output path (.png); a temp file is used if omitted")
	viewCmd.PersistentFlags().Bool("base64", false, "include the base64 image in JSON output")
	viewCmd.AddCommand(newCaptureCmd(), newDescribeCmd())
	return viewCmd
}

// captureScreen pulls a screenshot and writes it to the requested path,
// returning the path actually used.
func captureScreen(cmd *cobra.Command, bridge *adb.Client) ([]byte, string, error) {
	img, err := bridge.Screencap(cmd.Context())
	if err != nil {
		return nil, "", fmt.Errorf("screenshot failed: %w", err)
	}

	path, _ := cmd.Flags().GetString("output")
	if path == "" {
		path = filepath.Join(os.TempDir(), fmt.Sprintf("droidpilot_screen_%d.png", time.Now().Unix()))
	} else if path, err = homedir.Expand(path); err != nil {
		return nil, "", fmt.Errorf("failed to expand output path: %w", err)
	}
	if err := os.WriteFile(path, img, 0o644); err != nil {
		return nil, "", fmt.Errorf("failed to write screenshot: %w", err)
	}
	return img, path, nil
}

func newCaptureCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "capture",
		Short: "Capture a screenshot to a file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			bridge := adb.New(appConfig.Device, observability.GetLogger())
			img, path, err := captureScreen(cmd, bridge)
			if err != nil {
				return err
			}

			if appConfig.Run.JSON {
				obs := schemas.Observation{ImagePath: path}
				if withB64, _ := cmd.Flags().GetBool("base64"); withB64 {
					obs.ImageBase64 = base64.StdEncoding.EncodeToString(img)
				}
				reporter, err := reporting.New("json", "stdout")
				if err != nil {
					return err
				}
				defer reporter.Close()
				return reporter.WriteObservation(&obs)
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
}

func newDescribeCmd() *cobra.Command {
	describeCmd := &cobra.Command{
		Use:   "describe",
		Short: "Capture a screenshot and describe it via the local vision model",
		Args:  cobra.NoArgs,
		RunE:  runDescribe,
	}

	describeCmd.Flags().String("model-url", "", "OpenAI-compatible base URL (overrides config)")
	describeCmd.Flags().String("model-name", "", "vision model name (overrides config)")
	describeCmd.Flags().String("prompt", "", "base prompt for the vision model")
	describeCmd.Flags().String("focus", "", "focus hint appended to the prompt")
	describeCmd.Flags().Int("max-tokens", 0, "max tokens for the response (overrides config)")
	describeCmd.Flags().Float64("temperature", -1, "sampling temperature (overrides config)")
	describeCmd.Flags().Bool("with-coords", true, "include clickable coordinates in the output")
	describeCmd.Flags().Bool("no-coords", false, "disable clickable coordinates")
	describeCmd.Flags().String("coords-format", "text", "inline coordinate format: text or json")
	describeCmd.Flags().Bool("save-coords", false, "save extracted coordinates to a separate file")
	describeCmd.MarkFlagsMutuallyExclusive("with-coords", "no-coords")
	return describeCmd
}

func runDescribe(cmd *cobra.Command, args []string) error {
	logger := observability.GetLogger()
	bridge := adb.New(appConfig.Device, logger)

	visionCfg := appConfig.Vision
	if url, _ := cmd.Flags().GetString("model-url"); url != "" {
		visionCfg.BaseURL = url
	}
	if name, _ := cmd.Flags().GetString("model-name"); name != "" {
		visionCfg.Model = name
	}
	if tokens, _ := cmd.Flags().GetInt("max-tokens"); tokens > 0 {
		visionCfg.MaxTokens = tokens
	}
	if temp, _ := cmd.Flags().GetFloat64("temperature"); temp >= 0 {
		visionCfg.Temperature = temp
	}
	observer := vision.New(visionCfg, logger)

	withCoords, _ := cmd.Flags().GetBool("with-coords")
	if noCoords, _ := cmd.Flags().GetBool("no-coords"); noCoords {
		withCoords = false
	}

	img, path, err := captureScreen(cmd, bridge)
	if err != nil {
		return err
	}

	var screen schemas.ScreenInfo
	if withCoords {
		screen, err = bridge.ScreenInfo(cmd.Context())
		if err != nil {
			return fmt.Errorf("screen probe failed: %w", err)
		}
		logger.Info("screen geometry",
			zap.Int("width", screen.Width), zap.Int("height", screen.Height),
			zap.String("source", screen.Source))
	}

	prompt, _ := cmd.Flags().GetString("prompt")
	focus, _ := cmd.Flags().GetString("focus")
	obs, err := observer.Observe(cmd.Context(), schemas.ObserveRequest{
		Image:      img,
		Prompt:     prompt,
		Focus:      focus,
		WithCoords: withCoords,
		Screen:     screen,
		Timeout:    appConfig.Run.TotalTimeout,
	})
	if err != nil {
		return fmt.Errorf("observation failed: %w", err)
	}
	obs.ImagePath = path

	coordsFormat, _ := cmd.Flags().GetString("coords-format")
	if saveCoords, _ := cmd.Flags().GetBool("save-coords"); saveCoords && withCoords && len(obs.Elements) > 0 {
		saveCoordsDump(logger, obs.Elements, screen, coordsFormat)
	}

	if appConfig.Run.JSON {
		if withB64, _ := cmd.Flags().GetBool("base64"); withB64 {
			obs.ImageBase64 = base64.StdEncoding.EncodeToString(img)
		}
		reporter, err := reporting.New("json", "stdout")
		if err != nil {
			return err
		}
		defer reporter.Close()
		return reporter.WriteObservation(&obs)
	}

	fmt.Fprintln(cmd.OutOrStdout(), obs.Description)
	if withCoords && coordsFormat == "json" && len(obs.Elements) > 0 {
		block, err := reporting.CoordsJSON(obs.Elements)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "\n--- coordinates (json) ---\n%s\n", block)
	}
	return nil
}

// saveCoordsDump persists extracted elements in the requested format. A
// failed dump is logged and never fails the describe itself.
func saveCoordsDump(logger *zap.Logger, elements []schemas.Element, screen schemas.ScreenInfo, format string) {
	path, err := reporting.SaveCoords(elements, screen, format, "")
	if err != nil {
		logger.Warn("failed to save coordinates", zap.Error(err))
		return
	}
	logger.Info("coordinates saved", zap.String("path", path))
}
