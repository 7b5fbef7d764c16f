// Package reporting renders invocation envelopes and observations for humans
// or pipelines. Diagnostics go to the logger; everything written here is
// payload and must stay parseable when redirected.
package reporting

import (
	"fmt"
	"io"
	"os"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/mitchellh/go-homedir"

	"github.com/xkilldash9x/droidpilot/api/schemas"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Reporter writes invocation output in one concrete format.
type Reporter interface {
	// WriteEnvelope renders a full action invocation record.
	WriteEnvelope(env *schemas.ResultEnvelope) error
	// WriteObservation renders a standalone view result.
	WriteObservation(obs *schemas.Observation) error
	Close() error
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }

// New builds a reporter for the given format. An empty or "stdout" path
// targets standard output; anything else is created as a file, with a leading
// ~ expanded.
func New(format, outputPath string) (Reporter, error) {
	var writer io.WriteCloser
	if outputPath == "" || outputPath == "stdout" {
		writer = nopWriteCloser{os.Stdout}
	} else {
		expanded, err := homedir.Expand(outputPath)
		if err != nil {
			return nil, fmt.Errorf("failed to expand output path %s: %w", outputPath, err)
		}
		f, err := os.Create(expanded)
		if err != nil {
			return nil, fmt.Errorf("failed to create output file %s: %w", outputPath, err)
		}
		writer = f
	}

	switch format {
	case "json":
		return &jsonReporter{w: writer}, nil
	case "text", "":
		return &textReporter{w: writer}, nil
	default:
		writer.Close()
		return nil, fmt.Errorf("unsupported output format: %q", format)
	}
}

// -- JSON --

type jsonReporter struct {
	w io.WriteCloser
}

func (r *jsonReporter) WriteEnvelope(env *schemas.ResultEnvelope) error {
	return r.write(env)
}

func (r *jsonReporter) WriteObservation(obs *schemas.Observation) error {
	return r.write(obs)
}

func (r *jsonReporter) write(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	_, err = fmt.Fprintln(r.w, string(out))
	return err
}

func (r *jsonReporter) Close() error { return r.w.Close() }

// -- Text --

type textReporter struct {
	w io.WriteCloser
}

func (r *textReporter) WriteEnvelope(env *schemas.ResultEnvelope) error {
	var sb strings.Builder

	status := "OK"
	if !env.Result.OK {
		status = fmt.Sprintf("FAILED (exit %d)", env.Result.ExitCode)
	}
	fmt.Fprintf(&sb, "[%s] %s\n", env.Action.Type, status)

	if out := strings.TrimSpace(env.Result.Stdout); out != "" {
		sb.WriteString(out)
		sb.WriteByte('\n')
	}
	if !env.Result.OK {
		if errOut := strings.TrimSpace(env.Result.Stderr); errOut != "" {
			sb.WriteString(errOut)
			sb.WriteByte('\n')
		}
	}

	switch {
	case env.Observation != nil:
		sb.WriteString("\n--- screen ---\n")
		sb.WriteString(strings.TrimSpace(env.Observation.Description))
		sb.WriteByte('\n')
	case env.SkipReason == schemas.KindBudgetExhausted:
		sb.WriteString("(observation skipped: time budget exhausted)\n")
	case env.SkipReason == schemas.KindObservationFailed:
		fmt.Fprintf(&sb, "(observation failed: %s)\n", env.ObservationError)
	}

	_, err := io.WriteString(r.w, sb.String())
	return err
}

func (r *textReporter) WriteObservation(obs *schemas.Observation) error {
	var sb strings.Builder
	sb.WriteString(strings.TrimSpace(obs.Description))
	sb.WriteByte('\n')

	if len(obs.Elements) > 0 {
		sb.WriteString("\n--- clickable elements ---\n")
		for i, el := range obs.Elements {
			fmt.Fprintf(&sb, "%d. %s [%s] rel=(%d,%d) abs=(%d,%d)\n",
				i+1, el.Label, el.Priority, el.RelativeX, el.RelativeY, el.AbsoluteX, el.AbsoluteY)
		}
	}
	_, err := io.WriteString(r.w, sb.String())
	return err
}

func (r *textReporter) Close() error { return r.w.Close() }
