package timer

import (
	"errors"
	"testing"

	apperrors "focusgarden/backend/internal/errors"
	"focusgarden/backend/internal/model"
)

func pomodoroConfig() model.TimerConfig {
	return model.TimerConfig{
		FocusDurationSeconds:      1500,
		ShortBreakDurationSeconds: 300,
		LongBreakDurationSeconds:  900,
		CyclesBeforeLongBreak:     4,
	}
}

func smallConfig(cycles int) model.TimerConfig {
	return model.TimerConfig{
		FocusDurationSeconds:      3,
		ShortBreakDurationSeconds: 2,
		LongBreakDurationSeconds:  4,
		CyclesBeforeLongBreak:     cycles,
	}
}

func mustEngine(t *testing.T, cfg model.TimerConfig, opts ...Option) *Engine {
	t.Helper()
	e, err := New(cfg, opts...)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return e
}

func runPhase(e *Engine) (Transition, bool) {
	e.Start()
	for {
		transition, done := e.Tick()
		if done {
			return transition, true
		}
		if !e.Snapshot().IsRunning {
			return Transition{}, false
		}
	}
}

func TestNewRejectsDegenerateConfig(t *testing.T) {
	cases := []struct {
		name  string
		cfg   model.TimerConfig
		field string
	}{
		{"zero focus", model.TimerConfig{FocusDurationSeconds: 0, ShortBreakDurationSeconds: 1, LongBreakDurationSeconds: 1, CyclesBeforeLongBreak: 1}, "focusDurationSeconds"},
		{"negative short break", model.TimerConfig{FocusDurationSeconds: 1, ShortBreakDurationSeconds: -1, LongBreakDurationSeconds: 1, CyclesBeforeLongBreak: 1}, "shortBreakDurationSeconds"},
		{"zero long break", model.TimerConfig{FocusDurationSeconds: 1, ShortBreakDurationSeconds: 1, LongBreakDurationSeconds: 0, CyclesBeforeLongBreak: 1}, "longBreakDurationSeconds"},
		{"zero cycles", model.TimerConfig{FocusDurationSeconds: 1, ShortBreakDurationSeconds: 1, LongBreakDurationSeconds: 1, CyclesBeforeLongBreak: 0}, "cyclesBeforeLongBreak"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New(tc.cfg)
			var cfgErr *apperrors.ConfigError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("expected ConfigError, got %v", err)
			}
			if cfgErr.Field != tc.field {
				t.Fatalf("expected field %s, got %s", tc.field, cfgErr.Field)
			}
		})
	}
}

func TestFreshEngineState(t *testing.T) {
	for _, cfg := range []model.TimerConfig{pomodoroConfig(), smallConfig(1), smallConfig(7)} {
		state := mustEngine(t, cfg).Snapshot()
		if state.Mode != model.ModeFocus {
			t.Fatalf("expected focus mode, got %s", state.Mode)
		}
		if state.RemainingSeconds != cfg.FocusDurationSeconds {
			t.Fatalf("expected %d remaining, got %d", cfg.FocusDurationSeconds, state.RemainingSeconds)
		}
		if state.IsRunning {
			t.Fatal("fresh engine must not be running")
		}
		if state.CurrentCycle != 1 {
			t.Fatalf("expected cycle 1, got %d", state.CurrentCycle)
		}
	}
}

func TestStartAndPauseAreIdempotent(t *testing.T) {
	changes := 0
	e := mustEngine(t, smallConfig(4), WithOnChange(func(model.TimerState) { changes++ }))

	e.Start()
	once := e.Snapshot()
	e.Start()
	twice := e.Snapshot()
	if once != twice || !twice.IsRunning {
		t.Fatalf("second start changed state: %+v vs %+v", once, twice)
	}
	if changes != 1 {
		t.Fatalf("expected one change notification, got %d", changes)
	}

	e.Pause()
	e.Pause()
	if e.Snapshot().IsRunning {
		t.Fatal("expected paused engine")
	}
	if changes != 2 {
		t.Fatalf("expected two change notifications, got %d", changes)
	}
}

func TestTickIgnoredWhenPaused(t *testing.T) {
	e := mustEngine(t, smallConfig(4))
	before := e.Snapshot()
	if _, done := e.Tick(); done {
		t.Fatal("tick on paused engine must not complete a phase")
	}
	if e.Snapshot() != before {
		t.Fatal("tick on paused engine changed state")
	}
}

func TestResetKeepsModeAndCounters(t *testing.T) {
	e := mustEngine(t, smallConfig(4))
	runPhase(e)
	e.Start()
	e.Tick()

	e.Reset()
	state := e.Snapshot()
	if state.Mode != model.ModeShortBreak {
		t.Fatalf("reset changed mode to %s", state.Mode)
	}
	if state.RemainingSeconds != 2 || state.IsRunning {
		t.Fatalf("unexpected state after reset: %+v", state)
	}
	if state.CompletedFocusCount != 1 || state.CurrentCycle != 2 {
		t.Fatalf("reset touched counters: %+v", state)
	}
}

func TestFocusCompletionTransitions(t *testing.T) {
	cases := []struct {
		cycles int
		want   model.Mode
	}{
		{cycles: 1, want: model.ModeLongBreak},
		{cycles: 2, want: model.ModeShortBreak},
	}
	for _, tc := range cases {
		e := mustEngine(t, smallConfig(tc.cycles))
		e.Start()
		var transition Transition
		for i := 0; i < 3; i++ {
			var done bool
			transition, done = e.Tick()
			if done != (i == 2) {
				t.Fatalf("tick %d reported done=%v", i, done)
			}
		}

		state := e.Snapshot()
		if state.Mode != tc.want || transition.To != tc.want {
			t.Fatalf("cycles=%d: expected %s, got %s", tc.cycles, tc.want, state.Mode)
		}
		if state.CompletedFocusCount != 1 {
			t.Fatalf("expected one completed focus, got %d", state.CompletedFocusCount)
		}
		if state.IsRunning {
			t.Fatal("engine must stop after a phase transition")
		}
		if state.AccumulatedFocusSeconds != 3 || transition.FocusSeconds != 3 {
			t.Fatalf("expected 3 focus seconds, got %d", state.AccumulatedFocusSeconds)
		}
	}
}

func TestCycleCountingFourCycles(t *testing.T) {
	e := mustEngine(t, smallConfig(4))

	wantCycles := []int{2, 3, 4, 1}
	for i, wantCycle := range wantCycles {
		transition, ok := runPhase(e)
		if !ok || transition.From != model.ModeFocus {
			t.Fatalf("focus %d did not complete", i+1)
		}
		state := e.Snapshot()
		if state.CurrentCycle != wantCycle {
			t.Fatalf("after focus %d expected cycle %d, got %d", i+1, wantCycle, state.CurrentCycle)
		}
		wantMode := model.ModeShortBreak
		if i == 3 {
			wantMode = model.ModeLongBreak
		}
		if state.Mode != wantMode {
			t.Fatalf("after focus %d expected %s, got %s", i+1, wantMode, state.Mode)
		}

		transition, ok = runPhase(e)
		if !ok || transition.To != model.ModeFocus {
			t.Fatalf("break %d did not return to focus", i+1)
		}
		if e.Snapshot().RemainingSeconds != 3 {
			t.Fatalf("expected full focus duration after break")
		}
	}

	if got := e.Snapshot().CompletedFocusCount; got != 4 {
		t.Fatalf("expected 4 completed focus phases, got %d", got)
	}
}

func TestPomodoroScenario(t *testing.T) {
	e := mustEngine(t, pomodoroConfig())
	e.Start()
	for i := 0; i < 1500; i++ {
		e.Tick()
	}

	state := e.Snapshot()
	want := model.TimerState{
		Mode:                    model.ModeShortBreak,
		RemainingSeconds:        300,
		CurrentCycle:            2,
		IsRunning:               false,
		CompletedFocusCount:     1,
		AccumulatedFocusSeconds: 1500,
	}
	if state != want {
		t.Fatalf("unexpected state:\n got %+v\nwant %+v", state, want)
	}
}

func TestForcedCompletionCreditsElapsedFocus(t *testing.T) {
	e := mustEngine(t, pomodoroConfig())
	e.Start()
	for i := 0; i < 600; i++ {
		e.Tick()
	}

	transition := e.CompletePhase()
	if transition.From != model.ModeFocus || transition.To != model.ModeShortBreak {
		t.Fatalf("unexpected transition %+v", transition)
	}
	if got := e.Snapshot().AccumulatedFocusSeconds; got != 600 {
		t.Fatalf("expected 600 accumulated seconds, got %d", got)
	}
}

func TestStartIgnoredAtZeroRemaining(t *testing.T) {
	e := mustEngine(t, smallConfig(4))
	e.Restore(model.TimerState{Mode: model.ModeFocus, RemainingSeconds: 0, CurrentCycle: 1})
	e.Start()
	if e.Snapshot().IsRunning {
		t.Fatal("engine must not run with zero remaining seconds")
	}
}

func TestRestoreRoundTripForcesPaused(t *testing.T) {
	source := mustEngine(t, pomodoroConfig())
	source.Start()
	for i := 0; i < 1510; i++ {
		source.Tick()
	}
	source.Start()
	saved := source.Snapshot()
	if !saved.IsRunning {
		t.Fatal("expected running source state")
	}

	target := mustEngine(t, pomodoroConfig())
	if !target.Restore(saved) {
		t.Fatal("valid snapshot rejected")
	}

	restored := target.Snapshot()
	saved.IsRunning = false
	if restored != saved {
		t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", restored, saved)
	}
}

func TestRestoreFallsBackOnCorruptSnapshot(t *testing.T) {
	cfg := smallConfig(4)
	cases := []struct {
		name     string
		snapshot model.TimerState
	}{
		{"empty", model.TimerState{}},
		{"unknown mode", model.TimerState{Mode: "nap", RemainingSeconds: 1, CurrentCycle: 1}},
		{"negative remaining", model.TimerState{Mode: model.ModeFocus, RemainingSeconds: -1, CurrentCycle: 1}},
		{"remaining above duration", model.TimerState{Mode: model.ModeShortBreak, RemainingSeconds: 99, CurrentCycle: 1}},
		{"cycle too high", model.TimerState{Mode: model.ModeFocus, RemainingSeconds: 1, CurrentCycle: 5}},
		{"cycle zero", model.TimerState{Mode: model.ModeFocus, RemainingSeconds: 1, CurrentCycle: 0}},
		{"negative count", model.TimerState{Mode: model.ModeFocus, RemainingSeconds: 1, CurrentCycle: 1, CompletedFocusCount: -2}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e := mustEngine(t, cfg)
			if e.Restore(tc.snapshot) {
				t.Fatal("corrupt snapshot accepted")
			}
			if got := e.Snapshot(); got != model.DefaultTimerState(cfg) {
				t.Fatalf("expected default state, got %+v", got)
			}
		})
	}
}
