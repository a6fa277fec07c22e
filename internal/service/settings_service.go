package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"focusgarden/backend/internal/docstore"
	apperrors "focusgarden/backend/internal/errors"
	"focusgarden/backend/internal/model"
	"focusgarden/backend/internal/timer"
)

const (
	CollectionSettings = "timer_settings"
	CollectionPlans    = "plans"
)

// SessionHooks lets settings changes reach the live session of a user.
type SessionHooks interface {
	// ReplaceConfig runs write unless the session is in progress, in which
	// case it returns ErrSessionInProgress.
	ReplaceConfig(ctx context.Context, userID string, cfg model.TimerConfig, write func() error) error
	PlanChanged(userID string, steps []model.StepDefinition)
}

type SettingsService struct {
	store    docstore.Store
	defaults model.TimerConfig
	hooks    SessionHooks
	now      func() time.Time
}

func NewSettingsService(store docstore.Store, defaults model.TimerConfig) *SettingsService {
	return &SettingsService{
		store:    store,
		defaults: defaults,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *SettingsService) SetHooks(hooks SessionHooks) {
	s.hooks = hooks
}

// Initialize creates the settings and plan documents of a new user. Existing
// documents are left untouched.
func (s *SettingsService) Initialize(ctx context.Context, userID string) error {
	now := s.now()
	settings := model.TimerSettings{UserID: userID, Config: s.defaults, UpdatedAt: now}
	if _, err := s.store.Create(ctx, CollectionSettings, userID, settings); err != nil && !errors.Is(err, docstore.ErrAlreadyExists) {
		return apperrors.NewStorageError("initialize settings", err)
	}

	plan := model.Plan{UserID: userID, Steps: []model.StepDefinition{}, UpdatedAt: now}
	if _, err := s.store.Create(ctx, CollectionPlans, userID, plan); err != nil && !errors.Is(err, docstore.ErrAlreadyExists) {
		return apperrors.NewStorageError("initialize plan", err)
	}
	return nil
}

// Settings reads the user's timer settings. A missing document means the
// user was never initialized and is reported as a storage failure.
func (s *SettingsService) Settings(ctx context.Context, userID string) (*model.TimerSettings, error) {
	doc, err := s.store.Get(ctx, CollectionSettings, userID)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return nil, apperrors.NewStorageError("read settings", fmt.Errorf("settings for user %s: %w", userID, err))
		}
		return nil, apperrors.NewStorageError("read settings", err)
	}

	var settings model.TimerSettings
	if err := doc.Decode(&settings); err != nil {
		return nil, apperrors.NewStorageError("read settings", err)
	}
	return &settings, nil
}

func (s *SettingsService) GetSettings(ctx context.Context, userID string) (*model.TimerSettings, *apperrors.APIError) {
	settings, err := s.Settings(ctx, userID)
	if err != nil {
		return nil, apperrors.FromError(err, "failed to get settings")
	}
	return settings, nil
}

func (s *SettingsService) UpdateSettings(ctx context.Context, userID string, cfg model.TimerConfig) (*model.TimerSettings, *apperrors.APIError) {
	if err := timer.ValidateConfig(cfg); err != nil {
		return nil, apperrors.FromError(err, "invalid settings")
	}
	settings := model.TimerSettings{UserID: userID, Config: cfg, UpdatedAt: s.now()}
	write := func() error {
		if _, err := docstore.Put(ctx, s.store, CollectionSettings, userID, settings); err != nil {
			return apperrors.NewStorageError("write settings", err)
		}
		return nil
	}

	var err error
	if s.hooks != nil {
		err = s.hooks.ReplaceConfig(ctx, userID, cfg, write)
	} else {
		err = write()
	}
	if errors.Is(err, ErrSessionInProgress) {
		return nil, apperrors.Conflict("session_in_progress", "settings cannot change while a session is in progress", nil)
	}
	if err != nil {
		return nil, apperrors.FromError(err, "failed to update settings")
	}
	slog.Info("SettingsService.UpdateSettings: settings replaced", "userID", userID)
	return &settings, nil
}

func (s *SettingsService) Plan(ctx context.Context, userID string) (*model.Plan, error) {
	doc, err := s.store.Get(ctx, CollectionPlans, userID)
	if err != nil {
		return nil, apperrors.NewStorageError("read plan", err)
	}

	var plan model.Plan
	if err := doc.Decode(&plan); err != nil {
		return nil, apperrors.NewStorageError("read plan", err)
	}
	if plan.Steps == nil {
		plan.Steps = []model.StepDefinition{}
	}
	return &plan, nil
}

func (s *SettingsService) GetPlan(ctx context.Context, userID string) (*model.Plan, *apperrors.APIError) {
	plan, err := s.Plan(ctx, userID)
	if err != nil {
		return nil, apperrors.FromError(err, "failed to get plan")
	}
	return plan, nil
}

func (s *SettingsService) UpdatePlan(ctx context.Context, userID string, steps []model.StepDefinition) (*model.Plan, *apperrors.APIError) {
	if apiErr := validatePlan(steps); apiErr != nil {
		return nil, apiErr
	}
	if steps == nil {
		steps = []model.StepDefinition{}
	}

	plan := model.Plan{UserID: userID, Steps: steps, UpdatedAt: s.now()}
	if _, err := docstore.Put(ctx, s.store, CollectionPlans, userID, plan); err != nil {
		return nil, apperrors.FromError(apperrors.NewStorageError("write plan", err), "failed to update plan")
	}
	slog.Info("SettingsService.UpdatePlan: plan replaced", "userID", userID, "steps", len(steps))

	if s.hooks != nil {
		s.hooks.PlanChanged(userID, steps)
	}
	return &plan, nil
}

func validatePlan(steps []model.StepDefinition) *apperrors.APIError {
	seen := make(map[string]struct{}, len(steps))
	for i, step := range steps {
		if step.StepID == "" {
			return apperrors.BadRequest("invalid_plan", fmt.Sprintf("step %d has no stepId", i))
		}
		if step.TotalUnits < 1 {
			return apperrors.BadRequest("invalid_plan", fmt.Sprintf("step %s must have at least one unit", step.StepID))
		}
		if _, dup := seen[step.StepID]; dup {
			return apperrors.BadRequest("invalid_plan", fmt.Sprintf("duplicate stepId %s", step.StepID))
		}
		seen[step.StepID] = struct{}{}
	}
	return nil
}
