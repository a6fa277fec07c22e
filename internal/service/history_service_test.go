package service

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"focusgarden/backend/internal/coach"
	"focusgarden/backend/internal/docstore"
	"focusgarden/backend/internal/model"
	"focusgarden/backend/internal/recorder"
)

type recordingCoach struct {
	recent []model.SessionRecord
}

func (c *recordingCoach) Insight(_ context.Context, record model.SessionRecord, recent []model.SessionRecord) (coach.Insight, error) {
	c.recent = recent
	return coach.Insight{SessionID: record.SessionID, Text: "well done", Source: "test"}, nil
}

func seedHistory(t *testing.T, rec *recorder.Recorder, ids ...string) {
	t.Helper()
	start := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	for i, id := range ids {
		owner := "u1"
		if strings.HasPrefix(id, "other") {
			owner = "u2"
		}
		_, err := rec.RecordCompletion(context.Background(), id, model.SessionRecord{
			UserID:       owner,
			StartedAt:    start.Add(time.Duration(i) * time.Hour),
			CompletedAt:  start.Add(time.Duration(i)*time.Hour + 25*time.Minute),
			FocusSeconds: 1500,
		})
		if err != nil {
			t.Fatalf("seed %s: %v", id, err)
		}
	}
}

func TestHistoryHidesOtherUsersRecords(t *testing.T) {
	ctx := context.Background()
	rec := recorder.New(docstore.NewMemoryStore(), nil)
	seedHistory(t, rec, "a", "other-1")
	history := NewHistoryService(rec, nil)

	if _, apiErr := history.Get(ctx, "u1", "a"); apiErr != nil {
		t.Fatalf("get own record: %v", apiErr)
	}
	if _, apiErr := history.Get(ctx, "u1", "other-1"); apiErr == nil || apiErr.Status != http.StatusNotFound {
		t.Fatalf("expected 404 for another user's record, got %+v", apiErr)
	}
	if apiErr := history.Delete(ctx, "u1", "other-1"); apiErr == nil || apiErr.Status != http.StatusNotFound {
		t.Fatalf("expected 404 deleting another user's record, got %+v", apiErr)
	}
	if apiErr := history.Delete(ctx, "u1", "a"); apiErr != nil {
		t.Fatalf("delete own record: %v", apiErr)
	}
	records, _ := history.List(ctx, "u1", 0)
	if len(records) != 0 {
		t.Fatalf("expected empty history, got %d", len(records))
	}
}

func TestHistoryInsightUsesRecentRecords(t *testing.T) {
	ctx := context.Background()
	rec := recorder.New(docstore.NewMemoryStore(), nil)
	seedHistory(t, rec, "s1", "s2", "s3")
	c := &recordingCoach{}
	history := NewHistoryService(rec, c)

	insight, apiErr := history.Insight(ctx, "u1", "s3")
	if apiErr != nil {
		t.Fatalf("insight: %v", apiErr)
	}
	if insight.Text != "well done" || insight.SessionID != "s3" {
		t.Fatalf("unexpected insight: %+v", insight)
	}
	if len(c.recent) != 2 || c.recent[0].SessionID != "s2" {
		t.Fatalf("expected previous records newest first, got %+v", c.recent)
	}
}

func TestHistoryExport(t *testing.T) {
	ctx := context.Background()
	rec := recorder.New(docstore.NewMemoryStore(), nil)
	seedHistory(t, rec, "s1", "s2")
	history := NewHistoryService(rec, nil)
	history.now = func() time.Time { return time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC) }

	result, apiErr := history.Export(ctx, "u1")
	if apiErr != nil {
		t.Fatalf("export: %v", apiErr)
	}
	if result.Filename != "focus-history-20260304-120000.md" {
		t.Fatalf("unexpected filename %q", result.Filename)
	}
	if !strings.Contains(result.Body, "Sessions: 2") || !strings.Contains(result.Body, "Total focus: 50m") {
		t.Fatalf("unexpected export body:\n%s", result.Body)
	}
}
