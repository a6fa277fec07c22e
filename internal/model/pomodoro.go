package model

import "time"

type Mode string

const (
	ModeFocus      Mode = "focus"
	ModeShortBreak Mode = "short_break"
	ModeLongBreak  Mode = "long_break"
)

const (
	DefaultFocusDurationSeconds      = 25 * 60
	DefaultShortBreakDurationSeconds = 5 * 60
	DefaultLongBreakDurationSeconds  = 15 * 60
	DefaultCyclesBeforeLongBreak     = 4
)

// Session status as reported to clients.
const (
	StatusIdle    = "idle"
	StatusRunning = "running"
	StatusPaused  = "paused"
)

func (m Mode) Valid() bool {
	return m == ModeFocus || m == ModeShortBreak || m == ModeLongBreak
}

// TimerConfig is fixed for the lifetime of a session. It is replaced wholesale
// between sessions and never mutated mid-session.
type TimerConfig struct {
	FocusDurationSeconds      int `json:"focusDurationSeconds" yaml:"focus_duration_seconds"`
	ShortBreakDurationSeconds int `json:"shortBreakDurationSeconds" yaml:"short_break_duration_seconds"`
	LongBreakDurationSeconds  int `json:"longBreakDurationSeconds" yaml:"long_break_duration_seconds"`
	CyclesBeforeLongBreak     int `json:"cyclesBeforeLongBreak" yaml:"cycles_before_long_break"`
}

func DefaultTimerConfig() TimerConfig {
	return TimerConfig{
		FocusDurationSeconds:      DefaultFocusDurationSeconds,
		ShortBreakDurationSeconds: DefaultShortBreakDurationSeconds,
		LongBreakDurationSeconds:  DefaultLongBreakDurationSeconds,
		CyclesBeforeLongBreak:     DefaultCyclesBeforeLongBreak,
	}
}

// DurationFor returns the configured length of a phase in seconds.
func (c TimerConfig) DurationFor(mode Mode) int {
	switch mode {
	case ModeShortBreak:
		return c.ShortBreakDurationSeconds
	case ModeLongBreak:
		return c.LongBreakDurationSeconds
	default:
		return c.FocusDurationSeconds
	}
}

type TimerState struct {
	Mode                    Mode `json:"mode"`
	RemainingSeconds        int  `json:"remainingSeconds"`
	CurrentCycle            int  `json:"currentCycle"`
	IsRunning               bool `json:"isRunning"`
	CompletedFocusCount     int  `json:"completedFocusCount"`
	AccumulatedFocusSeconds int  `json:"accumulatedFocusSeconds"`
}

// DefaultTimerState is the state of a freshly constructed engine.
func DefaultTimerState(cfg TimerConfig) TimerState {
	return TimerState{
		Mode:             ModeFocus,
		RemainingSeconds: cfg.FocusDurationSeconds,
		CurrentCycle:     1,
	}
}

type TimerSettings struct {
	UserID    string      `json:"userId"`
	Config    TimerConfig `json:"config"`
	UpdatedAt time.Time   `json:"updatedAt"`
}
