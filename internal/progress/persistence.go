// Package progress checkpoints in-progress sessions so they can be resumed
// after the process is restarted.
package progress

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"focusgarden/backend/internal/docstore"
	apperrors "focusgarden/backend/internal/errors"
	"focusgarden/backend/internal/model"
)

const CollectionProgress = "session_progress"

type Persistence struct {
	store docstore.Store
	now   func() time.Time
}

func NewPersistence(store docstore.Store) *Persistence {
	return &Persistence{
		store: store,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Save overwrites the snapshot stored for sessionID.
func (p *Persistence) Save(ctx context.Context, sessionID string, progress model.SessionProgress) error {
	progress.SessionID = sessionID
	progress.SavedAt = p.now()
	if progress.Steps == nil {
		progress.Steps = []model.StepProgress{}
	}

	if _, err := docstore.Put(ctx, p.store, CollectionProgress, sessionID, progress); err != nil {
		return apperrors.NewStorageError("save progress", err)
	}
	slog.Debug("progress.Save: snapshot written", "sessionID", sessionID, "steps", len(progress.Steps))
	return nil
}

// Load returns the latest snapshot for sessionID. The boolean is false when
// nothing usable is stored.
func (p *Persistence) Load(ctx context.Context, sessionID string) (*model.SessionProgress, bool, error) {
	doc, err := p.store.Get(ctx, CollectionProgress, sessionID)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return nil, false, nil
		}
		return nil, false, apperrors.NewStorageError("load progress", err)
	}
	return decodeProgress(*doc)
}

// Latest returns the most recently started snapshot owned by userID.
func (p *Persistence) Latest(ctx context.Context, userID string) (*model.SessionProgress, bool, error) {
	docs, err := p.store.Query(ctx, CollectionProgress, docstore.Filter{"userId": userID}, 1)
	if err != nil {
		return nil, false, apperrors.NewStorageError("query progress", err)
	}
	if len(docs) == 0 {
		return nil, false, nil
	}
	return decodeProgress(docs[0])
}

// LoadReconciled loads the snapshot and aligns it with the current step
// definition.
func (p *Persistence) LoadReconciled(ctx context.Context, sessionID string, definition []model.StepDefinition) (model.SessionProgress, bool, error) {
	snapshot, found, err := p.Load(ctx, sessionID)
	if err != nil {
		return model.SessionProgress{}, false, err
	}
	return Reconcile(definition, snapshot), found, nil
}

// Clear removes the snapshot. Clearing a missing snapshot is not an error.
func (p *Persistence) Clear(ctx context.Context, sessionID string) error {
	if err := p.store.Delete(ctx, CollectionProgress, sessionID); err != nil {
		return apperrors.NewStorageError("clear progress", err)
	}
	slog.Debug("progress.Clear: snapshot removed", "sessionID", sessionID)
	return nil
}

func decodeProgress(doc docstore.Document) (*model.SessionProgress, bool, error) {
	var progress model.SessionProgress
	if err := doc.Decode(&progress); err != nil {
		slog.Warn("progress: ignoring unreadable snapshot",
			"sessionID", doc.ID,
			"error", errors.Join(apperrors.ErrCorruptSnapshot, err))
		return nil, false, nil
	}
	if progress.SessionID == "" {
		progress.SessionID = doc.ID
	}
	return &progress, true, nil
}
