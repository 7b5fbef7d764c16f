// Package textinput chooses how to get a string into a focused field on the
// device. The shell's native `input text` only survives printable ASCII;
// everything else needs the clipboard channel or per-codepoint Unicode
// escapes. Smart mode splits mixed strings so the clipboard broadcast, the
// expensive path, is only paid for the runs that need it.
package textinput

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/droidpilot/api/schemas"
)

// DefaultClipboardSettle is the pause between the clipboard broadcast and
// the paste key. The broadcast receiver on the device sets the clipboard
// asynchronously; pasting immediately races it and inserts stale content.
const DefaultClipboardSettle = 500 * time.Millisecond

// Class is the codepoint classification of a string.
type Class string

const (
	// ClassASCII: every codepoint is printable ASCII; safe for `input text`.
	ClassASCII Class = "ascii"
	// ClassMixed: printable-ASCII and non-ASCII runs interleaved.
	ClassMixed Class = "mixed"
	// ClassNonASCII: no printable-ASCII codepoints at all.
	ClassNonASCII Class = "non_ascii"
)

// Method selects an injection strategy.
type Method string

const (
	MethodText      Method = "text"
	MethodClipboard Method = "clipboard"
	MethodUnicode   Method = "unicode"
	MethodSmart     Method = "smart"
	MethodAll       Method = "all"
)

// ErrClipboardInjection reports a failed clipboard broadcast or paste step.
var ErrClipboardInjection = errors.New("clipboard injection failed")

// ErrUnknownMethod reports an unrecognized method name.
var ErrUnknownMethod = errors.New("unknown input method")

// ParseMethod validates a method name from the CLI.
func ParseMethod(s string) (Method, error) {
	switch Method(strings.ToLower(s)) {
	case MethodText, MethodClipboard, MethodUnicode, MethodSmart, MethodAll:
		return Method(strings.ToLower(s)), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownMethod, s)
}

// asciiSafe reports whether r can be fed to `input text` directly.
// Intentionally wider than printable ASCII: the device escape table maps
// \n and \t, so multi-line ASCII text stays on the direct path.
func asciiSafe(r rune) bool {
	return (r >= 0x20 && r <= 0x7e) || r == '\n' || r == '\t'
}

// Classify scans codepoints once. Any codepoint outside the printable-ASCII
// range flips the classification away from pure ASCII.
func Classify(text string) Class {
	hasASCII, hasOther := false, false
	for _, r := range text {
		if asciiSafe(r) {
			hasASCII = true
		} else {
			hasOther = true
		}
	}
	switch {
	case hasOther && hasASCII:
		return ClassMixed
	case hasOther:
		return ClassNonASCII
	default:
		return ClassASCII
	}
}

// Run is one maximal same-class substring.
type Run struct {
	Class Class
	Text  string
}

// Segment splits text into maximal ASCII / non-ASCII runs, preserving the
// original order and concatenation. Pure function; the execution step maps
// each run onto a strategy separately.
func Segment(text string) []Run {
	var runs []Run
	var sb strings.Builder
	var current Class

	flush := func() {
		if sb.Len() > 0 {
			runs = append(runs, Run{Class: current, Text: sb.String()})
			sb.Reset()
		}
	}

	for _, r := range text {
		cls := ClassNonASCII
		if asciiSafe(r) {
			cls = ClassASCII
		}
		if cls != current {
			flush()
			current = cls
		}
		sb.WriteRune(r)
	}
	flush()
	return runs
}

// Bridge is the slice of the device client the encoder drives.
type Bridge interface {
	Text(ctx context.Context, text string) schemas.CmdResult
	ClipboardBroadcast(ctx context.Context, text string) schemas.CmdResult
	PasteKey(ctx context.Context) schemas.CmdResult
	InputUnicode(ctx context.Context, r rune) schemas.CmdResult
}

// Encoder routes text through an injection strategy.
type Encoder struct {
	bridge Bridge
	logger *zap.Logger
	// DryRun plans without touching the device.
	DryRun bool
	// ClipboardSettle is how long to wait after the clipboard broadcast
	// before pasting.
	ClipboardSettle time.Duration

	sleep func(ctx context.Context, d time.Duration)
}

// New builds an Encoder over a device bridge.
func New(bridge Bridge, logger *zap.Logger) *Encoder {
	return &Encoder{
		bridge:          bridge,
		logger:          logger.Named("textinput"),
		ClipboardSettle: DefaultClipboardSettle,
		sleep:           sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// Step records one planned or executed injection step.
type Step struct {
	Method Method `json:"method"`
	Text   string `json:"text"`
	OK     bool   `json:"ok"`
	Detail string `json:"detail,omitempty"`
}

// Encode injects text with the chosen strategy and returns the executed
// steps. There is no automatic cross-strategy fallback: a clipboard failure
// is surfaced, not papered over, except that smart mode degrades only the
// affected run and keeps going.
func (e *Encoder) Encode(ctx context.Context, text string, method Method) ([]Step, error) {
	switch method {
	case MethodText:
		step := e.typeDirect(ctx, text)
		if !step.OK {
			return []Step{step}, fmt.Errorf("direct text input failed: %s", step.Detail)
		}
		return []Step{step}, nil

	case MethodClipboard:
		step := e.pasteViaClipboard(ctx, text)
		if !step.OK {
			return []Step{step}, fmt.Errorf("%w: %s", ErrClipboardInjection, step.Detail)
		}
		return []Step{step}, nil

	case MethodUnicode:
		step := e.typeUnicode(ctx, text)
		if !step.OK {
			return []Step{step}, fmt.Errorf("unicode escape input failed: %s", step.Detail)
		}
		return []Step{step}, nil

	case MethodSmart:
		return e.encodeSmart(ctx, text)

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMethod, method)
	}
}

// encodeSmart dispatches each run through the matching single-strategy path
// in order. A failed run is reported in its step and does not abort the rest;
// the first error is returned after all runs were attempted.
func (e *Encoder) encodeSmart(ctx context.Context, text string) ([]Step, error) {
	runs := Segment(text)
	steps := make([]Step, 0, len(runs))
	var firstErr error

	for _, run := range runs {
		var step Step
		if run.Class == ClassASCII {
			step = e.typeDirect(ctx, run.Text)
		} else {
			step = e.pasteViaClipboard(ctx, run.Text)
		}
		steps = append(steps, step)
		if !step.OK && firstErr == nil {
			if step.Method == MethodClipboard {
				firstErr = fmt.Errorf("%w: run %q: %s", ErrClipboardInjection, run.Text, step.Detail)
			} else {
				firstErr = fmt.Errorf("direct text input failed: run %q: %s", run.Text, step.Detail)
			}
		}
	}
	return steps, firstErr
}

// EncodeAll is the diagnostic mode: every strategy runs in turn against the
// same text and the per-strategy outcome is reported. clearBetween wipes the
// focused field between strategies so each one starts fresh; the default is
// cumulative, matching the historical tooling.
func (e *Encoder) EncodeAll(ctx context.Context, text string, clearBetween func(context.Context) error) []Step {
	var steps []Step
	for i, m := range []Method{MethodClipboard, MethodUnicode, MethodText} {
		if i > 0 && clearBetween != nil {
			if err := clearBetween(ctx); err != nil {
				e.logger.Warn("failed to clear field between strategies", zap.Error(err))
			}
		}
		sub, err := e.Encode(ctx, text, m)
		steps = append(steps, sub...)
		if err != nil {
			e.logger.Warn("strategy failed", zap.String("method", string(m)), zap.Error(err))
		}
	}
	return steps
}

func (e *Encoder) typeDirect(ctx context.Context, text string) Step {
	step := Step{Method: MethodText, Text: text}
	if e.DryRun {
		step.OK = true
		step.Detail = "dry-run"
		return step
	}
	res := e.bridge.Text(ctx, text)
	step.OK = res.OK
	if !res.OK {
		step.Detail = firstLine(res.Stderr, res.Stdout)
	}
	return step
}

func (e *Encoder) pasteViaClipboard(ctx context.Context, text string) Step {
	step := Step{Method: MethodClipboard, Text: text}
	if e.DryRun {
		step.OK = true
		step.Detail = "dry-run"
		return step
	}
	if res := e.bridge.ClipboardBroadcast(ctx, text); !res.OK {
		step.Detail = "broadcast: " + firstLine(res.Stderr, res.Stdout)
		return step
	}
	// Give the broadcast receiver time to set the clipboard before pasting.
	e.sleep(ctx, e.ClipboardSettle)
	if res := e.bridge.PasteKey(ctx); !res.OK {
		step.Detail = "paste: " + firstLine(res.Stderr, res.Stdout)
		return step
	}
	// A receiver-less broadcast and a paste ignored by a restricted app both
	// look identical to a success from out here; known limitation.
	step.OK = true
	return step
}

// typeUnicode injects each codepoint as a hex escape. Devices lacking
// `input unicode` support drop characters silently; the caller is warned,
// not blocked.
func (e *Encoder) typeUnicode(ctx context.Context, text string) Step {
	step := Step{Method: MethodUnicode, Text: text}
	if e.DryRun {
		step.OK = true
		step.Detail = "dry-run"
		return step
	}
	e.logger.Warn("unicode escape input degrades silently on devices without input-method support")
	for _, r := range text {
		if res := e.bridge.InputUnicode(ctx, r); !res.OK {
			step.Detail = fmt.Sprintf("codepoint U+%04X: %s", r, firstLine(res.Stderr, res.Stdout))
			return step
		}
	}
	step.OK = true
	return step
}

func firstLine(vals ...string) string {
	for _, v := range vals {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if i := strings.IndexByte(v, '\n'); i >= 0 {
			return v[:i]
		}
		return v
	}
	return "unknown error"
}
