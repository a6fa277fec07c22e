// Package recorder turns finished sessions into immutable history records.
package recorder

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"time"

	"focusgarden/backend/internal/docstore"
	apperrors "focusgarden/backend/internal/errors"
	"focusgarden/backend/internal/model"
	"focusgarden/backend/internal/progress"
)

const CollectionHistory = "session_history"

var (
	ErrRecordNotFound = errors.New("session record not found")
	// ErrCorruptRecord marks a stored record whose body cannot be decoded.
	ErrCorruptRecord = errors.New("corrupt session record")
)

type Recorder struct {
	store    docstore.Store
	progress *progress.Persistence
	now      func() time.Time
}

func New(store docstore.Store, persistence *progress.Persistence) *Recorder {
	return &Recorder{
		store:    store,
		progress: persistence,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// DurationSeconds rounds the wall-clock span to the nearest whole second.
func DurationSeconds(startedAt, completedAt time.Time) int {
	seconds := math.Round(completedAt.Sub(startedAt).Seconds())
	if seconds < 0 {
		return 0
	}
	return int(seconds)
}

// RecordCompletion writes the history record for sessionID and then clears
// the resumable snapshot. Recording the same session twice returns the
// first record unchanged.
func (r *Recorder) RecordCompletion(ctx context.Context, sessionID string, record model.SessionRecord) (model.SessionRecord, error) {
	existing, err := r.Get(ctx, sessionID)
	if err == nil {
		slog.Debug("Recorder.RecordCompletion: already recorded", "sessionID", sessionID)
		r.clearProgress(ctx, sessionID)
		return *existing, nil
	}
	corrupt := errors.Is(err, ErrCorruptRecord)
	if !corrupt && !errors.Is(err, ErrRecordNotFound) {
		return model.SessionRecord{}, err
	}

	record.SessionID = sessionID
	if record.CompletedAt.IsZero() {
		record.CompletedAt = r.now()
	}
	if record.StartedAt.IsZero() {
		record.StartedAt = record.CompletedAt
	}
	record.DurationSeconds = DurationSeconds(record.StartedAt, record.CompletedAt)
	if record.StepsSummary == nil {
		record.StepsSummary = []model.StepSummary{}
	}

	if corrupt {
		// The unreadable body is replaced so the session can be recorded.
		if _, err := r.store.Replace(ctx, CollectionHistory, sessionID, record); err != nil {
			return model.SessionRecord{}, apperrors.NewStorageError("record session", err)
		}
		slog.Warn("Recorder.RecordCompletion: replaced unreadable record", "sessionID", sessionID)
		r.clearProgress(ctx, sessionID)
		return record, nil
	}

	if _, err := r.store.Create(ctx, CollectionHistory, sessionID, record); err != nil {
		if errors.Is(err, docstore.ErrAlreadyExists) {
			winner, getErr := r.Get(ctx, sessionID)
			if getErr != nil {
				return model.SessionRecord{}, getErr
			}
			r.clearProgress(ctx, sessionID)
			return *winner, nil
		}
		return model.SessionRecord{}, apperrors.NewStorageError("record session", err)
	}

	slog.Info("Recorder.RecordCompletion: session recorded",
		"sessionID", sessionID,
		"userID", record.UserID,
		"durationSeconds", record.DurationSeconds,
		"focusSeconds", record.FocusSeconds)
	r.clearProgress(ctx, sessionID)
	return record, nil
}

// clearProgress failures are logged only: the history write is already
// durable and a leftover snapshot is cleared again on the next attempt.
func (r *Recorder) clearProgress(ctx context.Context, sessionID string) {
	if r.progress == nil {
		return
	}
	if err := r.progress.Clear(ctx, sessionID); err != nil {
		slog.Warn("Recorder: failed to clear progress after recording", "sessionID", sessionID, "error", err)
	}
}

func (r *Recorder) Get(ctx context.Context, sessionID string) (*model.SessionRecord, error) {
	doc, err := r.store.Get(ctx, CollectionHistory, sessionID)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, apperrors.NewStorageError("get session record", err)
	}

	var record model.SessionRecord
	if err := doc.Decode(&record); err != nil {
		slog.Warn("Recorder.Get: unreadable record", "sessionID", sessionID, "error", err)
		return nil, errors.Join(ErrCorruptRecord, err)
	}
	return &record, nil
}

// List returns the user's records, most recent first.
func (r *Recorder) List(ctx context.Context, userID string, limit int) ([]model.SessionRecord, error) {
	docs, err := r.store.Query(ctx, CollectionHistory, docstore.Filter{"userId": userID}, limit)
	if err != nil {
		return nil, apperrors.NewStorageError("list session records", err)
	}

	records := make([]model.SessionRecord, 0, len(docs))
	for _, doc := range docs {
		var record model.SessionRecord
		if err := doc.Decode(&record); err != nil {
			slog.Warn("Recorder.List: skipping unreadable record", "sessionID", doc.ID, "error", err)
			continue
		}
		records = append(records, record)
	}
	return records, nil
}

// Delete removes a record. It is an administrative operation and idempotent.
func (r *Recorder) Delete(ctx context.Context, sessionID string) error {
	if err := r.store.Delete(ctx, CollectionHistory, sessionID); err != nil {
		return apperrors.NewStorageError("delete session record", err)
	}
	slog.Info("Recorder.Delete: session record removed", "sessionID", sessionID)
	return nil
}
