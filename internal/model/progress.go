package model

import "time"

// StepDefinition describes one step of a plan, e.g. an exercise with N sets.
type StepDefinition struct {
	StepID     string `json:"stepId"`
	Name       string `json:"name,omitempty"`
	TotalUnits int    `json:"totalUnits"`
}

type Plan struct {
	UserID    string           `json:"userId"`
	Steps     []StepDefinition `json:"steps"`
	UpdatedAt time.Time        `json:"updatedAt"`
}

type StepProgress struct {
	StepID         string `json:"stepId"`
	TotalUnits     int    `json:"totalUnits"`
	CompletedUnits []int  `json:"completedUnits"`
}

// Complete reports whether every unit of the step has been completed.
func (s StepProgress) Complete() bool {
	return s.TotalUnits > 0 && len(s.CompletedUnits) >= s.TotalUnits
}

func (s StepProgress) HasUnit(unit int) bool {
	for _, u := range s.CompletedUnits {
		if u == unit {
			return true
		}
	}
	return false
}

// SessionProgress is the resumable snapshot of an in-progress session.
type SessionProgress struct {
	SessionID     string         `json:"sessionId"`
	UserID        string         `json:"userId,omitempty"`
	StartedAt     *time.Time     `json:"startedAt,omitempty"`
	Steps         []StepProgress `json:"steps"`
	TimerSnapshot TimerState     `json:"timerSnapshot"`
	SavedAt       time.Time      `json:"savedAt"`
}

// ResumePosition points at the unit a resumed session should continue from.
type ResumePosition struct {
	StepIndex int    `json:"stepIndex"`
	StepID    string `json:"stepId"`
	Unit      int    `json:"unit"`
	AllDone   bool   `json:"allDone"`
}
