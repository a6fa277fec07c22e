// Package export renders session history as markdown.
package export

import (
	"fmt"
	"strings"
	"time"

	"focusgarden/backend/internal/model"
)

const timestampLayout = "2006-01-02 15:04 MST"

type MarkdownOptions struct {
	Title string
	// Notes are appended verbatim as bullet points, e.g. coach insights.
	Notes []string
}

// Filename names an export generated at t.
func Filename(t time.Time) string {
	return fmt.Sprintf("focus-history-%s.md", t.UTC().Format("20060102-150405"))
}

func RenderMarkdown(records []model.SessionRecord) string {
	return RenderMarkdownWithOptions(records, MarkdownOptions{})
}

// RenderMarkdownWithOptions renders records in the order given.
func RenderMarkdownWithOptions(records []model.SessionRecord, opts MarkdownOptions) string {
	var b strings.Builder

	title := opts.Title
	if title == "" {
		title = "Focus history"
	}
	b.WriteString("# ")
	b.WriteString(title)
	b.WriteString("\n\n")

	totals := summarize(records)
	b.WriteString("## Summary\n")
	b.WriteString(fmt.Sprintf("Sessions: %d\n", len(records)))
	b.WriteString(fmt.Sprintf("Total focus: %s\n", formatSeconds(totals.focusSeconds)))
	b.WriteString(fmt.Sprintf("Total time: %s\n", formatSeconds(totals.durationSeconds)))
	if totals.totalUnits > 0 {
		b.WriteString(fmt.Sprintf("Units completed: %d of %d\n", totals.completedUnits, totals.totalUnits))
	}
	b.WriteString("\n")

	b.WriteString("## Sessions\n")
	if len(records) == 0 {
		b.WriteString("No sessions recorded yet.\n")
	}
	for i, record := range records {
		b.WriteString(fmt.Sprintf("%d. %s", i+1, record.CompletedAt.UTC().Format(timestampLayout)))
		if record.Mode != "" {
			b.WriteString(fmt.Sprintf(" (%s)", record.Mode))
		}
		b.WriteString("\n\n")
		b.WriteString(fmt.Sprintf("Focus: %s\n", formatSeconds(record.FocusSeconds)))
		b.WriteString(fmt.Sprintf("Duration: %s\n", formatSeconds(record.DurationSeconds)))
		for _, step := range record.StepsSummary {
			mark := " "
			if step.TotalUnits > 0 && step.CompletedUnits >= step.TotalUnits {
				mark = "x"
			}
			b.WriteString(fmt.Sprintf("- [%s] %s: %d/%d\n", mark, step.StepID, step.CompletedUnits, step.TotalUnits))
		}
		b.WriteString("\n")
	}

	if len(opts.Notes) > 0 {
		b.WriteString("## Notes\n")
		for _, note := range opts.Notes {
			b.WriteString("- ")
			b.WriteString(note)
			b.WriteString("\n")
		}
	}

	return b.String()
}

type historyTotals struct {
	focusSeconds    int
	durationSeconds int
	completedUnits  int
	totalUnits      int
}

func summarize(records []model.SessionRecord) historyTotals {
	t := historyTotals{}
	for _, record := range records {
		t.focusSeconds += record.FocusSeconds
		t.durationSeconds += record.DurationSeconds
		for _, step := range record.StepsSummary {
			t.completedUnits += step.CompletedUnits
			t.totalUnits += step.TotalUnits
		}
	}
	return t
}

func formatSeconds(seconds int) string {
	d := time.Duration(seconds) * time.Second
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	secs := seconds % 60
	switch {
	case hours > 0:
		return fmt.Sprintf("%dh %02dm", hours, minutes)
	case secs > 0:
		return fmt.Sprintf("%dm %02ds", minutes, secs)
	default:
		return fmt.Sprintf("%dm", minutes)
	}
}
