// Package coach produces short coaching notes for recorded sessions.
package coach

import (
	"context"
	"fmt"
	"strings"

	"focusgarden/backend/internal/model"
)

const (
	SourceStatic = "static"
	SourceOpenAI = "openai"
)

type Insight struct {
	SessionID string `json:"sessionId"`
	Text      string `json:"text"`
	Source    string `json:"source"`
}

// Coach writes an insight for record. recent holds the user's previous
// records, most recent first, and may be empty.
type Coach interface {
	Insight(ctx context.Context, record model.SessionRecord, recent []model.SessionRecord) (Insight, error)
}

// New returns the OpenAI coach when an API key is configured, otherwise the
// static one.
func New(apiKey, modelName string) Coach {
	if apiKey == "" {
		return StaticCoach{}
	}
	c, err := NewOpenAICoach(apiKey, modelName)
	if err != nil {
		return StaticCoach{}
	}
	return c
}

// StaticCoach builds a deterministic note from the record alone.
type StaticCoach struct{}

func (StaticCoach) Insight(_ context.Context, record model.SessionRecord, recent []model.SessionRecord) (Insight, error) {
	return Insight{SessionID: record.SessionID, Text: staticText(record, recent), Source: SourceStatic}, nil
}

func staticText(record model.SessionRecord, recent []model.SessionRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You focused for %s out of %s.", humanSeconds(record.FocusSeconds), humanSeconds(record.DurationSeconds))

	done, total := unitTotals(record.StepsSummary)
	if total > 0 {
		fmt.Fprintf(&b, " You completed %d of %d units across %d steps.", done, total, len(record.StepsSummary))
		if done == total {
			b.WriteString(" Every step is done, nice work.")
		}
	}

	if len(recent) > 0 {
		sum := 0
		for _, r := range recent {
			sum += r.FocusSeconds
		}
		avg := sum / len(recent)
		switch {
		case record.FocusSeconds > avg:
			fmt.Fprintf(&b, " That is above your recent average of %s.", humanSeconds(avg))
		case record.FocusSeconds < avg:
			fmt.Fprintf(&b, " Your recent average is %s, try a longer stretch next time.", humanSeconds(avg))
		default:
			b.WriteString(" That matches your recent average.")
		}
	}
	return b.String()
}

func unitTotals(steps []model.StepSummary) (done, total int) {
	for _, step := range steps {
		done += step.CompletedUnits
		total += step.TotalUnits
	}
	return done, total
}

func humanSeconds(seconds int) string {
	if seconds < 60 {
		return fmt.Sprintf("%ds", seconds)
	}
	minutes := seconds / 60
	if rest := seconds % 60; rest != 0 {
		return fmt.Sprintf("%dm%02ds", minutes, rest)
	}
	return fmt.Sprintf("%dm", minutes)
}
