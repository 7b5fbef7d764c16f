// Package orchestrator sequences one device action through its full
// lifecycle: execute, settle, and, budget permitting, observe the resulting
// screen. It is injected with the device bridge and the observer via
// interfaces, making it decoupled and testable.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/droidpilot/api/schemas"
	"github.com/xkilldash9x/droidpilot/internal/budget"
	"github.com/xkilldash9x/droidpilot/internal/config"
)

// State names the phase an invocation is in. Transitions are linear; there is
// no retry edge anywhere in the machine.
type State string

const (
	StateIdle            State = "idle"
	StateExecuting       State = "executing"
	StateWaiting         State = "waiting"
	StateBudgetExhausted State = "budget_exhausted"
	StateObserving       State = "observing"
	StateDone            State = "done"
)

// Options tunes a single invocation.
type Options struct {
	// Wait is the settle delay between action and observation. Clamped to
	// [0, 60s] before use.
	Wait time.Duration
	// AutoView enables the post-action observation.
	AutoView bool
	// WithCoords asks the observer for clickable element coordinates.
	WithCoords bool
	// Focus narrows the observer's attention.
	Focus string
}

// Orchestrator drives the action lifecycle. One invocation at a time; the
// zero value is not usable, construct with New.
type Orchestrator struct {
	bridge   schemas.DeviceBridge
	observer schemas.Observer
	budget   budget.Budget
	logger   *zap.Logger

	// Seams for tests.
	sleep func(context.Context, time.Duration) error
	now   func() time.Time
}

// New wires an orchestrator. The observer may be nil only if every invocation
// disables AutoView.
func New(bridge schemas.DeviceBridge, observer schemas.Observer, b budget.Budget, logger *zap.Logger) (*Orchestrator, error) {
	if bridge == nil || logger == nil {
		return nil, fmt.Errorf("cannot initialize orchestrator with nil dependencies")
	}
	return &Orchestrator{
		bridge:   bridge,
		observer: observer,
		budget:   b,
		logger:   logger.Named("orchestrator"),
		sleep:    sleepCtx,
		now:      time.Now,
	}, nil
}

// Run executes one action end to end and reports the envelope. The envelope
// always carries the bridge result; observation outcome rides alongside it and
// never rewrites it. Run itself errors only on a broken dispatch (unknown
// action type), not on a failed device command.
func (o *Orchestrator) Run(ctx context.Context, action schemas.Action, opts Options) (schemas.ResultEnvelope, error) {
	start := o.now()
	env := schemas.ResultEnvelope{
		InvocationID: uuid.NewString(),
		Timestamp:    start,
		Action:       action,
	}
	wait := config.ClampWait(opts.Wait)

	o.transition(env.InvocationID, StateIdle, StateExecuting)
	res, err := o.bridge.Execute(ctx, action)
	env.Result = res
	if err != nil {
		return env, fmt.Errorf("action dispatch failed: %w", err)
	}

	if !res.OK {
		// A failed action settles nothing worth photographing.
		o.transition(env.InvocationID, StateExecuting, StateDone)
		env.Skipped = true
		env.SkipReason = schemas.KindActionFailed
		return env, nil
	}

	o.transition(env.InvocationID, StateExecuting, StateWaiting)
	if wait > 0 {
		if err := o.sleep(ctx, wait); err != nil {
			env.Skipped = true
			env.SkipReason = schemas.KindObservationFailed
			env.ObservationError = err.Error()
			return env, nil
		}
	}

	if !opts.AutoView || o.observer == nil {
		o.transition(env.InvocationID, StateWaiting, StateDone)
		return env, nil
	}

	// Budget is recomputed from real elapsed time after every phase; a cached
	// figure from before the wait would overstate what is left.
	remaining, ok := o.budget.Remaining(o.now().Sub(start))
	if !ok {
		o.transition(env.InvocationID, StateWaiting, StateBudgetExhausted)
		o.logger.Info("observation skipped, remaining budget below analysis floor",
			zap.String("invocation_id", env.InvocationID),
			zap.Duration("total", o.budget.Total),
			zap.Duration("floor", o.budget.Floor))
		env.Skipped = true
		env.SkipReason = schemas.KindBudgetExhausted
		return env, nil
	}

	o.transition(env.InvocationID, StateWaiting, StateObserving)
	obs, obsErr := o.observe(ctx, opts, remaining)
	o.transition(env.InvocationID, StateObserving, StateDone)
	if obsErr != nil {
		env.Skipped = true
		env.SkipReason = schemas.KindObservationFailed
		env.ObservationError = obsErr.Error()
		o.logger.Warn("observation failed, action result stands",
			zap.String("invocation_id", env.InvocationID), zap.Error(obsErr))
		return env, nil
	}
	env.Observation = &obs
	return env, nil
}

func (o *Orchestrator) observe(ctx context.Context, opts Options, remaining time.Duration) (schemas.Observation, error) {
	screen, err := o.bridge.ScreenInfo(ctx)
	if err != nil {
		return schemas.Observation{}, fmt.Errorf("screen probe failed: %w", err)
	}
	img, err := o.bridge.Screencap(ctx)
	if err != nil {
		return schemas.Observation{}, fmt.Errorf("screenshot failed: %w", err)
	}
	return o.observer.Observe(ctx, schemas.ObserveRequest{
		Image:      img,
		Focus:      opts.Focus,
		WithCoords: opts.WithCoords,
		Screen:     screen,
		Timeout:    remaining,
	})
}

func (o *Orchestrator) transition(id string, from, to State) {
	o.logger.Debug("state transition",
		zap.String("invocation_id", id),
		zap.String("from", string(from)),
		zap.String("to", string(to)))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
