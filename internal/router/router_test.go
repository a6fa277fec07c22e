package router_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"focusgarden/backend/internal/coach"
	"focusgarden/backend/internal/db"
	"focusgarden/backend/internal/handler"
	"focusgarden/backend/internal/model"
	"focusgarden/backend/internal/progress"
	"focusgarden/backend/internal/recorder"
	"focusgarden/backend/internal/repository"
	"focusgarden/backend/internal/router"
	"focusgarden/backend/internal/service"
)

type authResponse struct {
	Token string `json:"token"`
	User  struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	} `json:"user"`
}

type stateEnvelope struct {
	State struct {
		SessionID string `json:"sessionId"`
		Status    string `json:"status"`
		Version   int    `json:"version"`
		Resume    struct {
			StepID string `json:"stepId"`
			Unit   int    `json:"unit"`
		} `json:"resume"`
	} `json:"state"`
}

type historyEnvelope struct {
	Sessions []struct {
		SessionID    string `json:"sessionId"`
		StepsSummary []struct {
			StepID         string `json:"stepId"`
			CompletedUnits int    `json:"completedUnits"`
		} `json:"stepsSummary"`
	} `json:"sessions"`
}

type apiErrorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Details struct {
			State struct {
				Version int `json:"version"`
			} `json:"state"`
		} `json:"details"`
	} `json:"error"`
}

func TestSessionSyncAndConflict(t *testing.T) {
	engine := setupTestEngine(t)

	user1 := registerUser(t, engine, "user1@example.com", "123456")
	user2 := registerUser(t, engine, "user2@example.com", "123456")

	state1 := getState(t, engine, user1.Token)
	if state1.State.Version != 1 || state1.State.Status != model.StatusIdle {
		t.Fatalf("expected idle version 1, got %+v", state1.State)
	}

	status, _ := requestJSON(t, engine, http.MethodPost, "/api/session/start", user1.Token, map[string]int{"baseVersion": state1.State.Version})
	if status != http.StatusOK {
		t.Fatalf("expected 200 on start, got %d", status)
	}

	// A second device still holding the old version.
	status, rawConflict := requestJSON(t, engine, http.MethodPost, "/api/session/pause", user1.Token, map[string]int{"baseVersion": state1.State.Version})
	if status != http.StatusConflict {
		t.Fatalf("expected 409 for stale version, got %d", status)
	}

	var conflictResp apiErrorEnvelope
	if err := json.Unmarshal(rawConflict, &conflictResp); err != nil {
		t.Fatalf("unmarshal conflict response: %v", err)
	}
	if conflictResp.Error.Code != "state_conflict" {
		t.Fatalf("expected state_conflict, got %s", conflictResp.Error.Code)
	}

	latestVersion := conflictResp.Error.Details.State.Version
	status, _ = requestJSON(t, engine, http.MethodPost, "/api/session/reset", user1.Token, map[string]int{"baseVersion": latestVersion})
	if status != http.StatusOK {
		t.Fatalf("expected 200 on reset, got %d", status)
	}

	status, _ = requestJSON(t, engine, http.MethodPost, "/api/session/start", user1.Token, map[string]int{})
	if status != http.StatusBadRequest {
		t.Fatalf("expected 400 without baseVersion, got %d", status)
	}

	state2 := getState(t, engine, user2.Token)
	if state2.State.SessionID == state1.State.SessionID {
		t.Fatal("users must not share a session")
	}
	if state2.State.Status != model.StatusIdle {
		t.Fatalf("user2 session affected by user1: %+v", state2.State)
	}
}

func TestUnitsFinishAndHistory(t *testing.T) {
	engine := setupTestEngine(t)
	user := registerUser(t, engine, "sets@example.com", "123456")
	other := registerUser(t, engine, "other@example.com", "123456")

	status, body := requestJSON(t, engine, http.MethodPut, "/api/plan", user.Token, map[string]any{
		"steps": []map[string]any{
			{"stepId": "squats", "name": "Squats", "totalUnits": 3},
			{"stepId": "plank", "totalUnits": 1},
		},
	})
	if status != http.StatusOK {
		t.Fatalf("update plan failed with %d: %s", status, string(body))
	}

	state := getState(t, engine, user.Token)
	status, body = requestJSON(t, engine, http.MethodPost, "/api/session/units", user.Token, map[string]any{
		"baseVersion": state.State.Version,
		"stepId":      "squats",
		"unit":        0,
	})
	if status != http.StatusOK {
		t.Fatalf("mark unit failed with %d: %s", status, string(body))
	}
	var marked stateEnvelope
	if err := json.Unmarshal(body, &marked); err != nil {
		t.Fatalf("unmarshal mark response: %v", err)
	}
	if marked.State.Resume.StepID != "squats" || marked.State.Resume.Unit != 1 {
		t.Fatalf("unexpected resume position: %+v", marked.State.Resume)
	}

	status, body = requestJSON(t, engine, http.MethodPost, "/api/session/finish", user.Token, map[string]int{"baseVersion": marked.State.Version})
	if status != http.StatusOK {
		t.Fatalf("finish failed with %d: %s", status, string(body))
	}

	status, body = requestJSON(t, engine, http.MethodGet, "/api/history?limit=10", user.Token, nil)
	if status != http.StatusOK {
		t.Fatalf("history failed with %d", status)
	}
	var history historyEnvelope
	if err := json.Unmarshal(body, &history); err != nil {
		t.Fatalf("unmarshal history: %v", err)
	}
	if len(history.Sessions) != 1 || history.Sessions[0].SessionID != state.State.SessionID {
		t.Fatalf("unexpected history: %+v", history.Sessions)
	}
	if history.Sessions[0].StepsSummary[0].CompletedUnits != 1 {
		t.Fatalf("unexpected steps summary: %+v", history.Sessions[0].StepsSummary)
	}
	recordPath := "/api/history/" + state.State.SessionID

	status, _ = requestJSON(t, engine, http.MethodGet, recordPath, other.Token, nil)
	if status != http.StatusNotFound {
		t.Fatalf("expected 404 for another user's record, got %d", status)
	}

	status, body = requestJSON(t, engine, http.MethodGet, recordPath+"/insight", user.Token, nil)
	if status != http.StatusOK {
		t.Fatalf("insight failed with %d: %s", status, string(body))
	}
	if !strings.Contains(string(body), `"source":"static"`) {
		t.Fatalf("expected static insight, got %s", string(body))
	}

	req := httptest.NewRequest(http.MethodGet, "/api/history/export", nil)
	req.Header.Set("Authorization", "Bearer "+user.Token)
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("export failed with %d", rec.Code)
	}
	if !strings.HasPrefix(rec.Header().Get("Content-Type"), "text/markdown") {
		t.Fatalf("unexpected content type %q", rec.Header().Get("Content-Type"))
	}
	if !strings.Contains(rec.Body.String(), "- [ ] squats: 1/3") {
		t.Fatalf("unexpected export body:\n%s", rec.Body.String())
	}

	status, _ = requestJSON(t, engine, http.MethodDelete, recordPath, user.Token, nil)
	if status != http.StatusNoContent {
		t.Fatalf("expected 204 on delete, got %d", status)
	}
	status, _ = requestJSON(t, engine, http.MethodGet, recordPath, user.Token, nil)
	if status != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", status)
	}
}

func TestSettingsEndpoints(t *testing.T) {
	engine := setupTestEngine(t)
	user := registerUser(t, engine, "settings@example.com", "123456")

	status, body := requestJSON(t, engine, http.MethodGet, "/api/settings", user.Token, nil)
	if status != http.StatusOK || !strings.Contains(string(body), `"focusDurationSeconds":1500`) {
		t.Fatalf("unexpected settings response %d: %s", status, string(body))
	}

	status, body = requestJSON(t, engine, http.MethodPut, "/api/settings", user.Token, map[string]int{
		"focusDurationSeconds":      0,
		"shortBreakDurationSeconds": 300,
		"longBreakDurationSeconds":  900,
		"cyclesBeforeLongBreak":     4,
	})
	if status != http.StatusBadRequest || !strings.Contains(string(body), "invalid_config") {
		t.Fatalf("expected invalid_config, got %d: %s", status, string(body))
	}

	state := getState(t, engine, user.Token)
	requestJSON(t, engine, http.MethodPost, "/api/session/start", user.Token, map[string]int{"baseVersion": state.State.Version})

	status, body = requestJSON(t, engine, http.MethodPut, "/api/settings", user.Token, map[string]int{
		"focusDurationSeconds":      600,
		"shortBreakDurationSeconds": 120,
		"longBreakDurationSeconds":  600,
		"cyclesBeforeLongBreak":     3,
	})
	if status != http.StatusConflict || !strings.Contains(string(body), "session_in_progress") {
		t.Fatalf("expected session_in_progress, got %d: %s", status, string(body))
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	engine := setupTestEngine(t)
	for _, path := range []string{"/api/session", "/api/settings", "/api/plan", "/api/history"} {
		status, _ := requestJSON(t, engine, http.MethodGet, path, "", nil)
		if status != http.StatusUnauthorized {
			t.Fatalf("%s: expected 401, got %d", path, status)
		}
	}
	status, _ := requestJSON(t, engine, http.MethodGet, "/api/session", "not-a-token", nil)
	if status != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad token, got %d", status)
	}
}

func TestDuplicateRegistration(t *testing.T) {
	engine := setupTestEngine(t)
	registerUser(t, engine, "dup@example.com", "123456")

	status, body := requestJSON(t, engine, http.MethodPost, "/api/auth/register", "", map[string]string{
		"email":    " DUP@example.com ",
		"password": "abcdef",
	})
	if status != http.StatusConflict || !strings.Contains(string(body), "email_exists") {
		t.Fatalf("expected email_exists, got %d: %s", status, string(body))
	}

	status, _ = requestJSON(t, engine, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email":    "dup@example.com",
		"password": "wrong-password",
	})
	if status != http.StatusUnauthorized {
		t.Fatalf("expected 401 for wrong password, got %d", status)
	}
}

func TestCORSPreflight(t *testing.T) {
	engine := setupTestEngine(t)
	req := httptest.NewRequest(http.MethodOptions, "/api/history/abc", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", "DELETE")
	recorder := httptest.NewRecorder()

	engine.ServeHTTP(recorder, req)

	if recorder.Code != http.StatusNoContent {
		t.Fatalf("expected 204 for preflight, got %d", recorder.Code)
	}
	if recorder.Header().Get("Access-Control-Allow-Origin") != "http://localhost:5173" {
		t.Fatalf("unexpected allow-origin header: %s", recorder.Header().Get("Access-Control-Allow-Origin"))
	}
	if !strings.Contains(recorder.Header().Get("Access-Control-Allow-Methods"), "DELETE") {
		t.Fatalf("expected DELETE to be allowed: %s", recorder.Header().Get("Access-Control-Allow-Methods"))
	}
}

func setupTestEngine(t *testing.T) http.Handler {
	t.Helper()

	database, err := db.OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() {
		_ = database.Close()
	})

	_, currentFile, _, _ := runtime.Caller(0)
	migrationsDir := filepath.Join(filepath.Dir(currentFile), "..", "..", "migrations", "sqlite")
	if err := db.RunMigrations(database, migrationsDir); err != nil {
		t.Fatalf("run migrations: %v", err)
	}

	store := repository.NewSQLiteStore(database)
	persistence := progress.NewPersistence(store)
	rec := recorder.New(store, persistence)

	settingsService := service.NewSettingsService(store, model.DefaultTimerConfig())
	sessionService := service.NewSessionService(settingsService, persistence, rec, service.SessionOptions{})
	settingsService.SetHooks(sessionService)
	authService := service.NewAuthService(repository.NewUserRepository(store), settingsService, "test-secret", 24*time.Hour)
	historyService := service.NewHistoryService(rec, coach.StaticCoach{})

	return router.New(authService, router.Handlers{
		Auth:     handler.NewAuthHandler(authService),
		Session:  handler.NewSessionHandler(sessionService),
		Settings: handler.NewSettingsHandler(settingsService),
		History:  handler.NewHistoryHandler(historyService),
	}, []string{"http://localhost:5173"})
}

func registerUser(t *testing.T, server http.Handler, email, password string) authResponse {
	t.Helper()
	status, body := requestJSON(t, server, http.MethodPost, "/api/auth/register", "", map[string]string{
		"email":    email,
		"password": password,
	})
	if status != http.StatusCreated {
		t.Fatalf("register %s failed with status %d: %s", email, status, string(body))
	}
	var resp authResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		t.Fatalf("unmarshal register response: %v", err)
	}
	if resp.Token == "" {
		t.Fatalf("empty token for user %s", email)
	}
	return resp
}

func getState(t *testing.T, server http.Handler, token string) stateEnvelope {
	t.Helper()
	status, body := requestJSON(t, server, http.MethodGet, "/api/session", token, nil)
	if status != http.StatusOK {
		t.Fatalf("get state failed with status %d: %s", status, string(body))
	}
	var stateResp stateEnvelope
	if err := json.Unmarshal(body, &stateResp); err != nil {
		t.Fatalf("unmarshal state response: %v", err)
	}
	return stateResp
}

func requestJSON(
	t *testing.T,
	server http.Handler,
	method, path, token string,
	body interface{},
) (int, []byte) {
	t.Helper()

	var payload []byte
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request body: %v", err)
		}
		payload = raw
	}

	req := httptest.NewRequest(method, path, bytes.NewReader(payload))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	recorder := httptest.NewRecorder()
	server.ServeHTTP(recorder, req)
	return recorder.Code, recorder.Body.Bytes()
}
