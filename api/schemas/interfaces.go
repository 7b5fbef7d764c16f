package schemas

import (
	"context"
	"time"
)

// -- Device Bridge Interface --

// DeviceBridge abstracts the external debugging bridge. Implementations shell
// out to the adb binary; tests substitute a fake. Every method is synchronous
// and blocking, one command in flight per invocation.
type DeviceBridge interface {
	// Execute dispatches a single parsed Action and returns the raw bridge
	// result. A non-zero exit or run error is reported via CmdResult.OK.
	Execute(ctx context.Context, action Action) (CmdResult, error)
	// ScreenInfo queries the current display geometry. Callers must re-query
	// before every coordinate-dependent action.
	ScreenInfo(ctx context.Context) (ScreenInfo, error)
	// Screencap captures the screen as PNG bytes.
	Screencap(ctx context.Context) ([]byte, error)
}

// -- Vision Observer Interface --

// ObserveRequest carries everything a vision call needs besides the image.
type ObserveRequest struct {
	Image []byte
	// Prompt overrides the default describe prompt when non-empty.
	Prompt     string
	Focus      string
	WithCoords bool
	Screen     ScreenInfo
	// Timeout is the hard ceiling for the outbound call, computed from the
	// remaining budget. The observer must not exceed or retry past it.
	Timeout time.Duration
}

// Observer narrates a screenshot through the vision endpoint. A failure is an
// ObservationFailed condition for the caller, never a reason to retry the
// underlying device action.
type Observer interface {
	Observe(ctx context.Context, req ObserveRequest) (Observation, error)
}
