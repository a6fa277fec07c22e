package progress

import (
	"sort"

	"focusgarden/backend/internal/model"
)

// Reconcile aligns a snapshot with the current step definition. Steps that
// are no longer defined are dropped, new steps start empty, and unit indexes
// outside [0, totalUnits) are discarded. It accepts a nil snapshot.
func Reconcile(definition []model.StepDefinition, snapshot *model.SessionProgress) model.SessionProgress {
	var result model.SessionProgress
	saved := map[string]model.StepProgress{}
	if snapshot != nil {
		result = *snapshot
		for _, step := range snapshot.Steps {
			if _, seen := saved[step.StepID]; !seen {
				saved[step.StepID] = step
			}
		}
	}

	result.Steps = make([]model.StepProgress, 0, len(definition))
	defined := map[string]struct{}{}
	for _, def := range definition {
		if def.StepID == "" || def.TotalUnits < 1 {
			continue
		}
		if _, dup := defined[def.StepID]; dup {
			continue
		}
		defined[def.StepID] = struct{}{}

		result.Steps = append(result.Steps, model.StepProgress{
			StepID:         def.StepID,
			TotalUnits:     def.TotalUnits,
			CompletedUnits: normalizeUnits(saved[def.StepID].CompletedUnits, def.TotalUnits),
		})
	}
	return result
}

// FreshSteps builds an empty checklist from a definition.
func FreshSteps(definition []model.StepDefinition) []model.StepProgress {
	return Reconcile(definition, nil).Steps
}

func normalizeUnits(units []int, total int) []int {
	seen := make(map[int]struct{}, len(units))
	out := make([]int, 0, len(units))
	for _, unit := range units {
		if unit < 0 || unit >= total {
			continue
		}
		if _, dup := seen[unit]; dup {
			continue
		}
		seen[unit] = struct{}{}
		out = append(out, unit)
	}
	sort.Ints(out)
	return out
}

// ResumeAt returns the first incomplete unit of the first step that has one.
// When every step is complete it points at the last unit of the last step.
func ResumeAt(progress model.SessionProgress) model.ResumePosition {
	for i, step := range progress.Steps {
		if step.Complete() {
			continue
		}
		for unit := 0; unit < step.TotalUnits; unit++ {
			if !step.HasUnit(unit) {
				return model.ResumePosition{StepIndex: i, StepID: step.StepID, Unit: unit}
			}
		}
	}

	if len(progress.Steps) == 0 {
		return model.ResumePosition{StepIndex: -1, Unit: -1, AllDone: true}
	}
	last := len(progress.Steps) - 1
	return model.ResumePosition{
		StepIndex: last,
		StepID:    progress.Steps[last].StepID,
		Unit:      progress.Steps[last].TotalUnits - 1,
		AllDone:   true,
	}
}

// MarkUnit sets or clears one unit of a step. It reports whether the step
// exists and the unit index is in range.
func MarkUnit(steps []model.StepProgress, stepID string, unit int, completed bool) bool {
	for i := range steps {
		if steps[i].StepID != stepID {
			continue
		}
		if unit < 0 || unit >= steps[i].TotalUnits {
			return false
		}

		units := steps[i].CompletedUnits[:0:0]
		for _, u := range steps[i].CompletedUnits {
			if u != unit {
				units = append(units, u)
			}
		}
		if completed {
			units = append(units, unit)
			sort.Ints(units)
		}
		steps[i].CompletedUnits = units
		return true
	}
	return false
}
