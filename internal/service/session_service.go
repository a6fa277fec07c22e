package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	apperrors "focusgarden/backend/internal/errors"
	"focusgarden/backend/internal/model"
	"focusgarden/backend/internal/progress"
	"focusgarden/backend/internal/recorder"
	"focusgarden/backend/internal/timer"
)

type StateView struct {
	UserID                  string               `json:"userId"`
	SessionID               string               `json:"sessionId"`
	Mode                    model.Mode           `json:"mode"`
	Status                  string               `json:"status"`
	RemainingSeconds        int                  `json:"remainingSeconds"`
	CurrentCycle            int                  `json:"currentCycle"`
	CompletedFocusCount     int                  `json:"completedFocusCount"`
	AccumulatedFocusSeconds int                  `json:"accumulatedFocusSeconds"`
	Config                  model.TimerConfig    `json:"config"`
	Steps                   []model.StepProgress `json:"steps"`
	Resume                  model.ResumePosition `json:"resume"`
	StartedAt               *time.Time           `json:"startedAt,omitempty"`
	Version                 int                  `json:"version"`
	UpdatedAt               time.Time            `json:"updatedAt"`
	ServerTime              time.Time            `json:"serverTime"`
}

type FinishResult struct {
	Record model.SessionRecord `json:"record"`
	State  StateView           `json:"state"`
}

type MarkUnitInput struct {
	BaseVersion int
	StepID      string
	Unit        int
	Completed   bool
}

var ErrSessionInProgress = errors.New("session in progress")

type SessionOptions struct {
	TickInterval       time.Duration
	CheckpointInterval time.Duration
}

// liveSession is the in-memory session of one user. The engine and the step
// checklist are only touched with mu held; the checkpointer is flushed
// without it.
type liveSession struct {
	mu           sync.Mutex
	userID       string
	sessionID    string
	startedAt    *time.Time
	engine       *timer.Engine
	steps        []model.StepProgress
	version      int
	updatedAt    time.Time
	closed       bool
	checkpointer *progress.Checkpointer
}

func (ls *liveSession) snapshot() model.SessionProgress {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	return model.SessionProgress{
		SessionID:     ls.sessionID,
		UserID:        ls.userID,
		StartedAt:     ls.startedAt,
		Steps:         cloneSteps(ls.steps),
		TimerSnapshot: ls.engine.Snapshot(),
	}
}

// inProgress reports whether a phase is running or partially consumed.
func (ls *liveSession) inProgress() bool {
	state := ls.engine.Snapshot()
	return state.IsRunning || state.RemainingSeconds != ls.engine.Config().DurationFor(state.Mode)
}

func (ls *liveSession) touch(now time.Time) {
	ls.version++
	ls.updatedAt = now
}

// SessionService hosts one live session per user: it drives the timer,
// checkpoints progress and records finished sessions.
type SessionService struct {
	settings    *SettingsService
	persistence *progress.Persistence
	recorder    *recorder.Recorder
	opts        SessionOptions
	now         func() time.Time

	mu       sync.Mutex
	sessions map[string]*liveSession
}

func NewSessionService(
	settings *SettingsService,
	persistence *progress.Persistence,
	rec *recorder.Recorder,
	opts SessionOptions,
) *SessionService {
	if opts.TickInterval <= 0 {
		opts.TickInterval = time.Second
	}
	if opts.CheckpointInterval <= 0 {
		opts.CheckpointInterval = 30 * time.Second
	}
	return &SessionService{
		settings:    settings,
		persistence: persistence,
		recorder:    rec,
		opts:        opts,
		now:         func() time.Time { return time.Now().UTC() },
		sessions:    make(map[string]*liveSession),
	}
}

// Run drives the tick and checkpoint loops until ctx is cancelled, then
// flushes every dirty session once more.
func (s *SessionService) Run(ctx context.Context) {
	tick := time.NewTicker(s.opts.TickInterval)
	defer tick.Stop()
	checkpoint := time.NewTicker(s.opts.CheckpointInterval)
	defer checkpoint.Stop()

	slog.Info("SessionService.Run: started", "tickInterval", s.opts.TickInterval, "checkpointInterval", s.opts.CheckpointInterval)
	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			s.FlushDirty(flushCtx)
			cancel()
			slog.Info("SessionService.Run: stopped")
			return
		case <-tick.C:
			s.TickAll(ctx)
		case <-checkpoint.C:
			s.FlushDirty(ctx)
		}
	}
}

// TickAll advances every running session by one second.
func (s *SessionService) TickAll(ctx context.Context) {
	for _, ls := range s.liveSessions() {
		ls.mu.Lock()
		if ls.closed {
			ls.mu.Unlock()
			continue
		}
		transition, completed := ls.engine.Tick()
		autoRecord := false
		if completed {
			ls.touch(s.now())
			autoRecord = transition.From == model.ModeFocus && len(ls.steps) == 0
		}
		ls.mu.Unlock()

		if autoRecord {
			if _, apiErr := s.finish(ctx, ls, 0, true); apiErr != nil {
				slog.Warn("SessionService.TickAll: automatic recording failed", "sessionID", ls.sessionID, "error", apiErr.Message)
			}
		}
	}
}

// FlushDirty saves every session with unsaved changes.
func (s *SessionService) FlushDirty(ctx context.Context) {
	for _, ls := range s.liveSessions() {
		if err := ls.checkpointer.FlushIfDirty(ctx); err != nil {
			slog.Warn("SessionService.FlushDirty: checkpoint failed", "sessionID", ls.checkpointer.SessionID(), "error", err)
		}
	}
}

func (s *SessionService) liveSessions() []*liveSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*liveSession, 0, len(s.sessions))
	for _, ls := range s.sessions {
		out = append(out, ls)
	}
	return out
}

func (s *SessionService) GetState(ctx context.Context, userID string) (*StateView, *apperrors.APIError) {
	ls, apiErr := s.acquire(ctx, userID)
	if apiErr != nil {
		return nil, apiErr
	}
	defer ls.mu.Unlock()

	view := s.toStateView(ls)
	return &view, nil
}

func (s *SessionService) Start(ctx context.Context, userID string, baseVersion int) (*StateView, *apperrors.APIError) {
	return s.mutate(ctx, userID, baseVersion, func(ls *liveSession) bool {
		if ls.engine.Snapshot().IsRunning {
			return false
		}
		ls.engine.Start()
		if !ls.engine.Snapshot().IsRunning {
			return false
		}
		if ls.startedAt == nil {
			now := s.now()
			ls.startedAt = &now
		}
		return true
	})
}

func (s *SessionService) Pause(ctx context.Context, userID string, baseVersion int) (*StateView, *apperrors.APIError) {
	return s.mutate(ctx, userID, baseVersion, func(ls *liveSession) bool {
		if !ls.engine.Snapshot().IsRunning {
			return false
		}
		ls.engine.Pause()
		return true
	})
}

func (s *SessionService) Reset(ctx context.Context, userID string, baseVersion int) (*StateView, *apperrors.APIError) {
	return s.mutate(ctx, userID, baseVersion, func(ls *liveSession) bool {
		ls.engine.Reset()
		return true
	})
}

// Advance force-completes the current phase.
func (s *SessionService) Advance(ctx context.Context, userID string, baseVersion int) (*StateView, *apperrors.APIError) {
	return s.mutate(ctx, userID, baseVersion, func(ls *liveSession) bool {
		ls.engine.CompletePhase()
		return true
	})
}

// MarkUnit records a unit completion and checkpoints immediately.
func (s *SessionService) MarkUnit(ctx context.Context, userID string, input MarkUnitInput) (*StateView, *apperrors.APIError) {
	ls, apiErr := s.acquire(ctx, userID)
	if apiErr != nil {
		return nil, apiErr
	}
	if apiErr := s.ensureVersion(input.BaseVersion, ls); apiErr != nil {
		ls.mu.Unlock()
		return nil, apiErr
	}
	if !progress.MarkUnit(ls.steps, input.StepID, input.Unit, input.Completed) {
		ls.mu.Unlock()
		return nil, apperrors.BadRequest("invalid_unit", "unknown step or unit out of range")
	}
	if ls.startedAt == nil {
		now := s.now()
		ls.startedAt = &now
	}
	ls.touch(s.now())
	ls.checkpointer.MarkDirty()
	view := s.toStateView(ls)
	ls.mu.Unlock()

	if err := ls.checkpointer.Flush(ctx); err != nil {
		slog.Error("SessionService.MarkUnit: checkpoint failed", "sessionID", view.SessionID, "error", err)
		return nil, apperrors.FromError(err, "failed to save progress")
	}
	return &view, nil
}

// Finish records the session and rolls the user over to a fresh one.
func (s *SessionService) Finish(ctx context.Context, userID string, baseVersion int) (*FinishResult, *apperrors.APIError) {
	ls, apiErr := s.acquire(ctx, userID)
	if apiErr != nil {
		return nil, apiErr
	}
	ls.mu.Unlock()
	return s.finish(ctx, ls, baseVersion, false)
}

func (s *SessionService) finish(ctx context.Context, ls *liveSession, baseVersion int, carryTimer bool) (*FinishResult, *apperrors.APIError) {
	ls.mu.Lock()
	if ls.closed {
		ls.mu.Unlock()
		return nil, apperrors.Conflict("state_conflict", "session already finished", nil)
	}
	if apiErr := s.ensureVersion(baseVersion, ls); apiErr != nil {
		ls.mu.Unlock()
		return nil, apiErr
	}
	if ls.startedAt == nil && !hasCompletedUnits(ls.steps) {
		ls.mu.Unlock()
		return nil, apperrors.Conflict("session_empty", "nothing to record yet", nil)
	}

	ls.engine.Pause()
	ls.closed = true
	record := s.buildRecord(ls)
	if carryTimer {
		// Recorded right after a focus phase ran out.
		record.Mode = model.ModeFocus
	}
	carried := ls.engine.Snapshot()
	cfg := ls.engine.Config()
	ls.mu.Unlock()

	ls.checkpointer.Close()
	stored, err := s.recorder.RecordCompletion(ctx, ls.sessionID, record)
	if err != nil {
		ls.mu.Lock()
		ls.closed = false
		ls.mu.Unlock()
		ls.checkpointer.Reopen()
		slog.Error("SessionService.Finish: recording failed", "sessionID", ls.sessionID, "error", err)
		return nil, apperrors.FromError(err, "failed to record session")
	}

	var next *liveSession
	if carryTimer {
		carried.CompletedFocusCount = 0
		carried.AccumulatedFocusSeconds = 0
		next = s.newLiveSession(ls.userID, uuid.NewString(), cfg, progress.FreshSteps(planFromSteps(ls.steps)), &carried, nil)
	} else {
		next = s.newLiveSession(ls.userID, uuid.NewString(), cfg, progress.FreshSteps(planFromSteps(ls.steps)), nil, nil)
	}
	next.version = ls.version + 1
	s.replace(ls, next)

	next.mu.Lock()
	view := s.toStateView(next)
	next.mu.Unlock()
	return &FinishResult{Record: stored, State: view}, nil
}

// Abandon discards the session without recording it.
func (s *SessionService) Abandon(ctx context.Context, userID string, baseVersion int) (*StateView, *apperrors.APIError) {
	ls, apiErr := s.acquire(ctx, userID)
	if apiErr != nil {
		return nil, apiErr
	}
	if apiErr := s.ensureVersion(baseVersion, ls); apiErr != nil {
		ls.mu.Unlock()
		return nil, apiErr
	}
	ls.engine.Pause()
	ls.closed = true
	cfg := ls.engine.Config()
	steps := planFromSteps(ls.steps)
	ls.mu.Unlock()

	ls.checkpointer.Close()
	if err := s.persistence.Clear(ctx, ls.sessionID); err != nil {
		ls.mu.Lock()
		ls.closed = false
		ls.mu.Unlock()
		ls.checkpointer.Reopen()
		return nil, apperrors.FromError(err, "failed to abandon session")
	}
	slog.Info("SessionService.Abandon: session discarded", "sessionID", ls.sessionID, "userID", userID)

	next := s.newLiveSession(userID, uuid.NewString(), cfg, progress.FreshSteps(steps), nil, nil)
	next.version = ls.version + 1
	s.replace(ls, next)

	next.mu.Lock()
	defer next.mu.Unlock()
	view := s.toStateView(next)
	return &view, nil
}

// ReplaceConfig runs write with the user's session held, then rebuilds the
// idle engine from cfg and checkpoints it. The session is loaded from its
// latest snapshot first, so a phase started before a restart still counts as
// in progress.
func (s *SessionService) ReplaceConfig(ctx context.Context, userID string, cfg model.TimerConfig, write func() error) error {
	ls, apiErr := s.acquire(ctx, userID)
	if apiErr != nil {
		return apiErr
	}
	if err := s.replaceConfigLocked(ls, cfg, write); err != nil {
		ls.mu.Unlock()
		return err
	}
	ls.mu.Unlock()

	if err := ls.checkpointer.Flush(ctx); err != nil {
		slog.Warn("SessionService.ReplaceConfig: checkpoint failed", "sessionID", ls.checkpointer.SessionID(), "error", err)
	}
	return nil
}

func (s *SessionService) replaceConfigLocked(ls *liveSession, cfg model.TimerConfig, write func() error) error {
	if ls.inProgress() {
		return ErrSessionInProgress
	}
	engine, err := timer.New(cfg, timer.WithOnChange(func(model.TimerState) { ls.checkpointer.MarkDirty() }))
	if err != nil {
		return err
	}
	if err := write(); err != nil {
		return err
	}

	state := ls.engine.Snapshot()
	state.RemainingSeconds = cfg.DurationFor(state.Mode)
	if state.CurrentCycle > cfg.CyclesBeforeLongBreak {
		state.CurrentCycle = cfg.CyclesBeforeLongBreak
	}
	engine.Restore(state)
	ls.engine = engine
	ls.touch(s.now())
	ls.checkpointer.MarkDirty()
	return nil
}

// PlanChanged reconciles the live checklist with a new step definition.
func (s *SessionService) PlanChanged(userID string, steps []model.StepDefinition) {
	s.mu.Lock()
	ls, ok := s.sessions[userID]
	s.mu.Unlock()
	if !ok {
		return
	}

	ls.mu.Lock()
	defer ls.mu.Unlock()
	if ls.closed {
		return
	}
	ls.steps = progress.Reconcile(steps, &model.SessionProgress{Steps: ls.steps}).Steps
	ls.touch(s.now())
	ls.checkpointer.MarkDirty()
}

// mutate runs fn on the locked live session after the version check. fn
// reports whether it changed anything.
func (s *SessionService) mutate(ctx context.Context, userID string, baseVersion int, fn func(ls *liveSession) bool) (*StateView, *apperrors.APIError) {
	ls, apiErr := s.acquire(ctx, userID)
	if apiErr != nil {
		return nil, apiErr
	}
	defer ls.mu.Unlock()

	if apiErr := s.ensureVersion(baseVersion, ls); apiErr != nil {
		return nil, apiErr
	}
	if fn(ls) {
		ls.touch(s.now())
	}
	view := s.toStateView(ls)
	return &view, nil
}

// acquire returns the user's live session with its lock held, loading it
// from the latest snapshot on first use.
func (s *SessionService) acquire(ctx context.Context, userID string) (*liveSession, *apperrors.APIError) {
	for {
		s.mu.Lock()
		ls, ok := s.sessions[userID]
		s.mu.Unlock()

		if !ok {
			loaded, err := s.load(ctx, userID)
			if err != nil {
				slog.Error("SessionService: failed to load session", "userID", userID, "error", err)
				return nil, apperrors.FromError(err, "failed to load session")
			}

			s.mu.Lock()
			if existing, raced := s.sessions[userID]; raced {
				ls = existing
			} else {
				s.sessions[userID] = loaded
				ls = loaded
			}
			s.mu.Unlock()
		}

		ls.mu.Lock()
		if !ls.closed {
			return ls, nil
		}
		ls.mu.Unlock()

		// A finish is in flight; wait for the replacement session.
		select {
		case <-ctx.Done():
			return nil, apperrors.Conflict("state_conflict", "session is being finished", nil)
		case <-time.After(10 * time.Millisecond):
		}
	}
}

// load rebuilds the live session from the newest snapshot, or starts a fresh
// one. A resumed session is never running.
func (s *SessionService) load(ctx context.Context, userID string) (*liveSession, error) {
	settings, err := s.settings.Settings(ctx, userID)
	if err != nil {
		return nil, err
	}
	plan, err := s.settings.Plan(ctx, userID)
	if err != nil {
		return nil, err
	}

	snapshot, found, err := s.persistence.Latest(ctx, userID)
	if err != nil {
		return nil, err
	}
	if found {
		_, err := s.recorder.Get(ctx, snapshot.SessionID)
		switch {
		case err == nil:
			slog.Info("SessionService: clearing snapshot of an already recorded session", "sessionID", snapshot.SessionID)
			if err := s.persistence.Clear(ctx, snapshot.SessionID); err != nil {
				return nil, err
			}
			found = false
		case errors.Is(err, recorder.ErrCorruptRecord):
			slog.Warn("SessionService: history record unreadable, resuming snapshot", "sessionID", snapshot.SessionID, "error", err)
		case !errors.Is(err, recorder.ErrRecordNotFound):
			return nil, err
		}
	}

	if !found {
		return s.newLiveSession(userID, uuid.NewString(), settings.Config, progress.FreshSteps(plan.Steps), nil, nil), nil
	}

	reconciled := progress.Reconcile(plan.Steps, snapshot)
	ls := s.newLiveSession(userID, snapshot.SessionID, settings.Config, reconciled.Steps, &reconciled.TimerSnapshot, reconciled.StartedAt)
	slog.Info("SessionService: resumed session", "sessionID", ls.sessionID, "userID", userID, "resume", progress.ResumeAt(reconciled))
	return ls, nil
}

func (s *SessionService) newLiveSession(
	userID, sessionID string,
	cfg model.TimerConfig,
	steps []model.StepProgress,
	timerState *model.TimerState,
	startedAt *time.Time,
) *liveSession {
	ls := &liveSession{
		userID:    userID,
		sessionID: sessionID,
		startedAt: startedAt,
		steps:     steps,
		version:   1,
		updatedAt: s.now(),
	}
	ls.checkpointer = progress.NewCheckpointer(s.persistence, sessionID, ls.snapshot)

	engine, err := timer.New(cfg, timer.WithOnChange(func(model.TimerState) { ls.checkpointer.MarkDirty() }))
	if err != nil {
		slog.Warn("SessionService: stored settings rejected, using defaults", "userID", userID, "error", err)
		engine, _ = timer.New(model.DefaultTimerConfig(), timer.WithOnChange(func(model.TimerState) { ls.checkpointer.MarkDirty() }))
	}
	if timerState != nil {
		engine.Restore(*timerState)
	}
	ls.engine = engine
	return ls
}

func (s *SessionService) replace(old, next *liveSession) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if current, ok := s.sessions[old.userID]; !ok || current == old {
		s.sessions[old.userID] = next
	}
}

func (s *SessionService) ensureVersion(baseVersion int, ls *liveSession) *apperrors.APIError {
	if baseVersion <= 0 || baseVersion == ls.version {
		return nil
	}
	view := s.toStateView(ls)
	return apperrors.Conflict("state_conflict", "state changed on another device", map[string]interface{}{
		"state": view,
	})
}

func (s *SessionService) buildRecord(ls *liveSession) model.SessionRecord {
	state := ls.engine.Snapshot()
	cfg := ls.engine.Config()

	focus := state.AccumulatedFocusSeconds
	if state.Mode == model.ModeFocus {
		focus += cfg.FocusDurationSeconds - state.RemainingSeconds
	}

	completedAt := s.now()
	startedAt := completedAt
	if ls.startedAt != nil {
		startedAt = *ls.startedAt
	}
	return model.SessionRecord{
		SessionID:    ls.sessionID,
		UserID:       ls.userID,
		Mode:         state.Mode,
		StartedAt:    startedAt,
		CompletedAt:  completedAt,
		FocusSeconds: focus,
		StepsSummary: model.SummarizeSteps(ls.steps),
	}
}

func (s *SessionService) toStateView(ls *liveSession) StateView {
	state := ls.engine.Snapshot()
	cfg := ls.engine.Config()

	status := model.StatusPaused
	switch {
	case state.IsRunning:
		status = model.StatusRunning
	case state.RemainingSeconds == cfg.DurationFor(state.Mode):
		status = model.StatusIdle
	}

	steps := cloneSteps(ls.steps)
	return StateView{
		UserID:                  ls.userID,
		SessionID:               ls.sessionID,
		Mode:                    state.Mode,
		Status:                  status,
		RemainingSeconds:        state.RemainingSeconds,
		CurrentCycle:            state.CurrentCycle,
		CompletedFocusCount:     state.CompletedFocusCount,
		AccumulatedFocusSeconds: state.AccumulatedFocusSeconds,
		Config:                  cfg,
		Steps:                   steps,
		Resume:                  progress.ResumeAt(model.SessionProgress{Steps: steps}),
		StartedAt:               ls.startedAt,
		Version:                 ls.version,
		UpdatedAt:               ls.updatedAt,
		ServerTime:              s.now(),
	}
}

func cloneSteps(steps []model.StepProgress) []model.StepProgress {
	out := make([]model.StepProgress, len(steps))
	for i, step := range steps {
		out[i] = step
		out[i].CompletedUnits = append([]int{}, step.CompletedUnits...)
	}
	return out
}

func planFromSteps(steps []model.StepProgress) []model.StepDefinition {
	defs := make([]model.StepDefinition, 0, len(steps))
	for _, step := range steps {
		defs = append(defs, model.StepDefinition{StepID: step.StepID, TotalUnits: step.TotalUnits})
	}
	return defs
}

func hasCompletedUnits(steps []model.StepProgress) bool {
	for _, step := range steps {
		if len(step.CompletedUnits) > 0 {
			return true
		}
	}
	return false
}
