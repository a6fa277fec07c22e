package service

import (
	"context"
	"errors"
	"time"

	"focusgarden/backend/internal/coach"
	apperrors "focusgarden/backend/internal/errors"
	"focusgarden/backend/internal/export"
	"focusgarden/backend/internal/model"
	"focusgarden/backend/internal/recorder"
)

const insightHistoryLimit = 5

type HistoryService struct {
	recorder *recorder.Recorder
	coach    coach.Coach
	now      func() time.Time
}

type ExportResult struct {
	Filename string
	Body     string
}

func NewHistoryService(rec *recorder.Recorder, c coach.Coach) *HistoryService {
	if c == nil {
		c = coach.StaticCoach{}
	}
	return &HistoryService{
		recorder: rec,
		coach:    c,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *HistoryService) List(ctx context.Context, userID string, limit int) ([]model.SessionRecord, *apperrors.APIError) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	records, err := s.recorder.List(ctx, userID, limit)
	if err != nil {
		return nil, apperrors.FromError(err, "failed to get history")
	}
	return records, nil
}

// Get returns a record owned by userID. Records of other users are reported
// as missing.
func (s *HistoryService) Get(ctx context.Context, userID, sessionID string) (*model.SessionRecord, *apperrors.APIError) {
	record, err := s.recorder.Get(ctx, sessionID)
	if errors.Is(err, recorder.ErrRecordNotFound) || (err == nil && record.UserID != userID) {
		return nil, apperrors.NotFound("record_not_found", "session record not found")
	}
	if err != nil {
		return nil, apperrors.FromError(err, "failed to get session record")
	}
	return record, nil
}

func (s *HistoryService) Delete(ctx context.Context, userID, sessionID string) *apperrors.APIError {
	if _, apiErr := s.Get(ctx, userID, sessionID); apiErr != nil {
		return apiErr
	}
	if err := s.recorder.Delete(ctx, sessionID); err != nil {
		return apperrors.FromError(err, "failed to delete session record")
	}
	return nil
}

func (s *HistoryService) Export(ctx context.Context, userID string) (*ExportResult, *apperrors.APIError) {
	records, err := s.recorder.List(ctx, userID, 0)
	if err != nil {
		return nil, apperrors.FromError(err, "failed to export history")
	}
	return &ExportResult{
		Filename: export.Filename(s.now()),
		Body:     export.RenderMarkdown(records),
	}, nil
}

func (s *HistoryService) Insight(ctx context.Context, userID, sessionID string) (*coach.Insight, *apperrors.APIError) {
	record, apiErr := s.Get(ctx, userID, sessionID)
	if apiErr != nil {
		return nil, apiErr
	}

	all, err := s.recorder.List(ctx, userID, insightHistoryLimit+1)
	if err != nil {
		return nil, apperrors.FromError(err, "failed to get history")
	}
	recent := make([]model.SessionRecord, 0, len(all))
	for _, r := range all {
		if r.SessionID != sessionID && len(recent) < insightHistoryLimit {
			recent = append(recent, r)
		}
	}

	insight, err := s.coach.Insight(ctx, *record, recent)
	if err != nil {
		return nil, apperrors.FromError(err, "failed to build insight")
	}
	return &insight, nil
}
