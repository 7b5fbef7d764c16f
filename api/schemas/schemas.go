package schemas

import "time"

// ActionType identifies the device action carried by an Action value.
type ActionType string

const (
	ActionConnect ActionType = "CONNECT"
	ActionDevices ActionType = "DEVICES"
	ActionTap     ActionType = "TAP"
	ActionSwipe   ActionType = "SWIPE"
	ActionKey     ActionType = "KEY"
	ActionText    ActionType = "TEXT"
	ActionApp     ActionType = "APP"
	ActionStop    ActionType = "STOP"
	ActionShell   ActionType = "SHELL"
)

// Action is a single device operation. It is immutable once constructed and
// consumed exactly once by the device bridge.
type Action struct {
	Type ActionType `json:"type"`
	// Tap / Swipe coordinates, absolute pixels at dispatch time.
	X1, Y1, X2, Y2 int `json:"-"`
	// Swipe duration. Zero means the bridge default.
	Duration time.Duration `json:"-"`
	// Key name or numeric keycode, text payload, app package, or raw shell args.
	Key   string   `json:"key,omitempty"`
	Text  string   `json:"text,omitempty"`
	App   string   `json:"app,omitempty"`
	Shell []string `json:"shell,omitempty"`
}

// CmdResult captures one device bridge invocation. The bridge contract is exit
// status plus raw output text, nothing more.
type CmdResult struct {
	OK       bool     `json:"ok"`
	Command  []string `json:"command"`
	Stdout   string   `json:"stdout"`
	Stderr   string   `json:"stderr"`
	ExitCode int      `json:"returncode"`
}

// ScreenInfo describes the device display as reported at query time. It is
// never cached across actions; rotation or an emulator resize invalidates it.
type ScreenInfo struct {
	Width   int    `json:"width"`
	Height  int    `json:"height"`
	Density int    `json:"density"`
	Source  string `json:"source"`
}

// Element is one clickable UI element extracted from a vision description.
// Relative coordinates are in [0,999]; absolute ones are device pixels.
type Element struct {
	Label     string `json:"description"`
	Priority  string `json:"priority"`
	RelativeX int    `json:"relative_x"`
	RelativeY int    `json:"relative_y"`
	AbsoluteX int    `json:"x"`
	AbsoluteY int    `json:"y"`
}

// Observation is the outcome of one vision call over a screenshot.
type Observation struct {
	Description string      `json:"description"`
	Elements    []Element   `json:"clickable_elements,omitempty"`
	Screen      *ScreenInfo `json:"screen_info,omitempty"`
	ImagePath   string      `json:"image_path,omitempty"`
	ImageBase64 string      `json:"image_base64,omitempty"`
}

// ErrorKind is the failure taxonomy surfaced to callers. BudgetExhausted is
// informational, not an error: the observation was deliberately skipped.
type ErrorKind string

const (
	KindActionFailed       ErrorKind = "action_failed"
	KindInvalidCoordinate  ErrorKind = "invalid_coordinate"
	KindClipboardInjection ErrorKind = "clipboard_injection_failed"
	KindObservationFailed  ErrorKind = "observation_failed"
	KindBudgetExhausted    ErrorKind = "budget_exhausted"
)

// ResultEnvelope is the top level record for one orchestrated invocation.
// Action success and observation success are reported independently: a failed
// observation never invalidates a successful action.
type ResultEnvelope struct {
	InvocationID string       `json:"invocation_id"`
	Timestamp    time.Time    `json:"timestamp"`
	Action       Action       `json:"action"`
	Result       CmdResult    `json:"result"`
	Observation  *Observation `json:"auto_view,omitempty"`
	// Skipped is set together with SkipReason when the observation did not run.
	Skipped    bool      `json:"observation_skipped,omitempty"`
	SkipReason ErrorKind `json:"skip_reason,omitempty"`
	// ObservationError carries the message for KindObservationFailed skips.
	ObservationError string `json:"observation_error,omitempty"`
}
