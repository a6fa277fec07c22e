package progress

import (
	"context"
	"sync"
	"sync/atomic"

	"focusgarden/backend/internal/model"
)

// SnapshotFunc captures the current progress of a session. It is called
// without any checkpointer lock held.
type SnapshotFunc func() model.SessionProgress

// Checkpointer debounces saves for a single session. Timer ticks only mark it
// dirty; unit completion flushes immediately.
type Checkpointer struct {
	persistence *Persistence
	sessionID   string
	snapshot    SnapshotFunc

	// mu serializes saves for this session.
	mu     sync.Mutex
	closed bool
	dirty  atomic.Bool
}

func NewCheckpointer(persistence *Persistence, sessionID string, snapshot SnapshotFunc) *Checkpointer {
	return &Checkpointer{
		persistence: persistence,
		sessionID:   sessionID,
		snapshot:    snapshot,
	}
}

func (c *Checkpointer) SessionID() string {
	return c.sessionID
}

func (c *Checkpointer) MarkDirty() {
	c.dirty.Store(true)
}

func (c *Checkpointer) Dirty() bool {
	return c.dirty.Load()
}

// Flush saves the current snapshot now. On failure the checkpointer stays
// dirty so the next interval retries.
func (c *Checkpointer) Flush(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}

	c.dirty.Store(false)
	if err := c.persistence.Save(ctx, c.sessionID, c.snapshot()); err != nil {
		c.dirty.Store(true)
		return err
	}
	return nil
}

func (c *Checkpointer) FlushIfDirty(ctx context.Context) error {
	if !c.dirty.Load() {
		return nil
	}
	return c.Flush(ctx)
}

// Close waits for an in-flight save and disables further saves, so a cleared
// snapshot is not written back.
func (c *Checkpointer) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

// Reopen re-enables saves after Close and marks the session dirty.
func (c *Checkpointer) Reopen() {
	c.mu.Lock()
	c.closed = false
	c.mu.Unlock()
	c.dirty.Store(true)
}
