// Package timer implements the focus/break countdown state machine.
//
// The engine is purely in-memory: Tick performs no I/O, and persistence is
// left to the host through the change hook.
package timer

import (
	"fmt"
	"log/slog"
	"sync"

	apperrors "focusgarden/backend/internal/errors"
	"focusgarden/backend/internal/model"
)

// Transition describes a completed phase.
type Transition struct {
	From model.Mode
	To   model.Mode
	// FocusSeconds is the focus time credited by this transition.
	FocusSeconds int
}

type Option func(*Engine)

// WithOnChange registers a hook invoked with a copy of the state after every
// mutation. It runs outside the engine lock and must not block.
func WithOnChange(fn func(model.TimerState)) Option {
	return func(e *Engine) {
		e.onChange = fn
	}
}

type Engine struct {
	mu       sync.Mutex
	cfg      model.TimerConfig
	state    model.TimerState
	onChange func(model.TimerState)
}

// ValidateConfig rejects degenerate configurations.
func ValidateConfig(cfg model.TimerConfig) error {
	switch {
	case cfg.FocusDurationSeconds <= 0:
		return &apperrors.ConfigError{Field: "focusDurationSeconds", Reason: "must be positive"}
	case cfg.ShortBreakDurationSeconds <= 0:
		return &apperrors.ConfigError{Field: "shortBreakDurationSeconds", Reason: "must be positive"}
	case cfg.LongBreakDurationSeconds <= 0:
		return &apperrors.ConfigError{Field: "longBreakDurationSeconds", Reason: "must be positive"}
	case cfg.CyclesBeforeLongBreak < 1:
		return &apperrors.ConfigError{Field: "cyclesBeforeLongBreak", Reason: "must be at least 1"}
	}
	return nil
}

func New(cfg model.TimerConfig, opts ...Option) (*Engine, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:   cfg,
		state: model.DefaultTimerState(cfg),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

func (e *Engine) Config() model.TimerConfig {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg
}

func (e *Engine) Snapshot() model.TimerState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Start is a no-op when already running or when the phase has run out and
// needs an explicit CompletePhase first.
func (e *Engine) Start() {
	e.mu.Lock()
	if e.state.IsRunning || e.state.RemainingSeconds == 0 {
		e.mu.Unlock()
		return
	}
	e.state.IsRunning = true
	snapshot := e.state
	e.mu.Unlock()

	e.notify(snapshot)
}

func (e *Engine) Pause() {
	e.mu.Lock()
	if !e.state.IsRunning {
		e.mu.Unlock()
		return
	}
	e.state.IsRunning = false
	snapshot := e.state
	e.mu.Unlock()

	e.notify(snapshot)
}

// Reset refills the current phase and stops. Mode, cycle and counters are kept.
func (e *Engine) Reset() {
	e.mu.Lock()
	e.state.RemainingSeconds = e.cfg.DurationFor(e.state.Mode)
	e.state.IsRunning = false
	snapshot := e.state
	e.mu.Unlock()

	e.notify(snapshot)
}

// Tick consumes one second. When the phase reaches zero the phase transition
// is applied before returning and reported through the second result.
func (e *Engine) Tick() (Transition, bool) {
	e.mu.Lock()
	if !e.state.IsRunning {
		e.mu.Unlock()
		return Transition{}, false
	}

	if e.state.RemainingSeconds > 0 {
		e.state.RemainingSeconds--
	}

	var transition Transition
	completed := false
	if e.state.RemainingSeconds == 0 {
		transition = e.completePhaseLocked()
		completed = true
	}
	snapshot := e.state
	e.mu.Unlock()

	e.notify(snapshot)
	return transition, completed
}

// CompletePhase force-advances to the next phase. The engine never auto-starts
// the next phase.
func (e *Engine) CompletePhase() Transition {
	e.mu.Lock()
	transition := e.completePhaseLocked()
	snapshot := e.state
	e.mu.Unlock()

	e.notify(snapshot)
	return transition
}

func (e *Engine) completePhaseLocked() Transition {
	from := e.state.Mode
	transition := Transition{From: from}

	if from == model.ModeFocus {
		elapsed := e.cfg.FocusDurationSeconds - e.state.RemainingSeconds
		if elapsed < 0 {
			elapsed = 0
		}
		e.state.CompletedFocusCount++
		e.state.AccumulatedFocusSeconds += elapsed
		transition.FocusSeconds = elapsed

		if e.state.CurrentCycle >= e.cfg.CyclesBeforeLongBreak {
			e.state.Mode = model.ModeLongBreak
			e.state.CurrentCycle = 1
		} else {
			e.state.Mode = model.ModeShortBreak
			e.state.CurrentCycle++
		}
	} else {
		e.state.Mode = model.ModeFocus
	}

	e.state.RemainingSeconds = e.cfg.DurationFor(e.state.Mode)
	e.state.IsRunning = false
	transition.To = e.state.Mode
	return transition
}

// Restore replaces the live state with a persisted snapshot. The restored
// engine is never running. A malformed snapshot is logged and replaced by the
// default state; the result reports whether the snapshot was accepted.
func (e *Engine) Restore(snapshot model.TimerState) bool {
	e.mu.Lock()
	accepted := true
	if err := validateSnapshot(e.cfg, snapshot); err != nil {
		slog.Warn("timer.Restore: discarding snapshot", "error", err, "snapshot", fmt.Sprintf("%+v", snapshot))
		snapshot = model.DefaultTimerState(e.cfg)
		accepted = false
	}
	snapshot.IsRunning = false
	e.state = snapshot
	restored := e.state
	e.mu.Unlock()

	e.notify(restored)
	return accepted
}

func validateSnapshot(cfg model.TimerConfig, s model.TimerState) error {
	switch {
	case !s.Mode.Valid():
		return fmt.Errorf("%w: unknown mode %q", apperrors.ErrCorruptSnapshot, s.Mode)
	case s.RemainingSeconds < 0 || s.RemainingSeconds > cfg.DurationFor(s.Mode):
		return fmt.Errorf("%w: remaining %d outside [0, %d]", apperrors.ErrCorruptSnapshot, s.RemainingSeconds, cfg.DurationFor(s.Mode))
	case s.CurrentCycle < 1 || s.CurrentCycle > cfg.CyclesBeforeLongBreak:
		return fmt.Errorf("%w: cycle %d outside [1, %d]", apperrors.ErrCorruptSnapshot, s.CurrentCycle, cfg.CyclesBeforeLongBreak)
	case s.CompletedFocusCount < 0 || s.AccumulatedFocusSeconds < 0:
		return fmt.Errorf("%w: negative counters", apperrors.ErrCorruptSnapshot)
	}
	return nil
}

func (e *Engine) notify(state model.TimerState) {
	if e.onChange != nil {
		e.onChange(state)
	}
}
