package model

import "time"

type StepSummary struct {
	StepID         string `json:"stepId"`
	CompletedUnits int    `json:"completedUnits"`
	TotalUnits     int    `json:"totalUnits"`
}

// SessionRecord is the immutable history entry of a completed session.
type SessionRecord struct {
	SessionID       string        `json:"sessionId"`
	UserID          string        `json:"userId,omitempty"`
	Mode            Mode          `json:"mode,omitempty"`
	StartedAt       time.Time     `json:"startedAt"`
	CompletedAt     time.Time     `json:"completedAt"`
	DurationSeconds int           `json:"durationSeconds"`
	FocusSeconds    int           `json:"focusSeconds"`
	StepsSummary    []StepSummary `json:"stepsSummary"`
}

// SummarizeSteps collapses per-unit progress into completed/total counts.
func SummarizeSteps(steps []StepProgress) []StepSummary {
	summary := make([]StepSummary, 0, len(steps))
	for _, step := range steps {
		summary = append(summary, StepSummary{
			StepID:         step.StepID,
			CompletedUnits: len(step.CompletedUnits),
			TotalUnits:     step.TotalUnits,
		})
	}
	return summary
}
