// -- cmd/input.go --
// Non-ASCII text injection. The plain `text` action only survives printable
// ASCII, so this command routes text through the clipboard, per-codepoint
// Unicode escapes, or a smart mix of strategies.
package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/droidpilot/internal/adb"
	"github.com/xkilldash9x/droidpilot/internal/observability"
	"github.com/xkilldash9x/droidpilot/internal/textinput"
)

func newInputCmd() *cobra.Command {
	inputCmd := &cobra.Command{
		Use:   "input",
		Short: "Inject text (including CJK and emoji) into the focused field",
		Args:  cobra.NoArgs,
		RunE:  runInput,
	}
	inputCmd.Flags().String("text", "", "text to inject")
	inputCmd.Flags().String("method", "smart", "injection method: text|clipboard|unicode|smart|all")
	inputCmd.Flags().Bool("dry-run", false, "plan the injection without touching the device")
	inputCmd.Flags().BoolP("verbose", "v", false, "print each injection step")
	inputCmd.Flags().Bool("clear-between", false, "clear the focused field between strategies in all mode")
	inputCmd.MarkFlagRequired("text")
	return inputCmd
}

func runInput(cmd *cobra.Command, args []string) error {
	logger := observability.GetLogger()
	text, _ := cmd.Flags().GetString("text")
	methodName, _ := cmd.Flags().GetString("method")
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	verbose, _ := cmd.Flags().GetBool("verbose")
	clearBetween, _ := cmd.Flags().GetBool("clear-between")

	method, err := textinput.ParseMethod(methodName)
	if err != nil {
		return err
	}

	bridge := adb.New(appConfig.Device, logger)
	encoder := textinput.New(bridge, logger)
	encoder.DryRun = dryRun

	class := textinput.Classify(text)
	logger.Debug("classified input text",
		zap.String("class", string(class)),
		zap.String("method", string(method)),
		zap.Int("runes", len([]rune(text))))

	var steps []textinput.Step
	if method == textinput.MethodAll {
		var clear func(context.Context) error
		if clearBetween {
			clear = func(ctx context.Context) error { return clearField(ctx, bridge) }
		}
		steps = encoder.EncodeAll(cmd.Context(), text, clear)
	} else {
		steps, err = encoder.Encode(cmd.Context(), text, method)
	}

	if verbose || dryRun {
		for i, step := range steps {
			status := "ok"
			if !step.OK {
				status = "failed: " + step.Detail
			}
			fmt.Fprintf(cmd.OutOrStdout(), "step %d [%s] %q %s\n", i+1, step.Method, step.Text, status)
		}
	}
	if err != nil {
		return err
	}

	if method == textinput.MethodAll {
		failed := 0
		for _, step := range steps {
			if !step.OK {
				failed++
			}
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d/%d strategies succeeded\n", len(steps)-failed, len(steps))
		return nil
	}
	fmt.Fprintln(cmd.OutOrStdout(), "ok")
	return nil
}

// clearField selects everything in the focused field and deletes it. The
// key combination needs a reasonably recent Android; on older devices the
// combination is a no-op and strategies accumulate as before.
func clearField(ctx context.Context, bridge *adb.Client) error {
	if res := bridge.SelectAll(ctx); !res.OK {
		return fmt.Errorf("select-all failed: %s", res.Stderr)
	}
	if res := bridge.Key(ctx, "67"); !res.OK {
		return fmt.Errorf("delete failed: %s", res.Stderr)
	}
	return nil
}
