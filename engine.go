package fieldsync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Queue is the storage contract the engine drains. *Store implements it
// over SQLite; pgstore.Store implements it over Postgres for
// server-side deployments.
type Queue interface {
	Enqueue(entityType EntityType, entityID string, op Operation, payload json.RawMessage) (*SyncQueueEntry, error)
	Get(id string) (*SyncQueueEntry, error)
	Pending(limit int) ([]SyncQueueEntry, error)
	Failed(maxAttempts, limit int) ([]SyncQueueEntry, error)
	Update(id string, upd EntryUpdate) (*SyncQueueEntry, error)
	Claim(id string) (bool, error)
	MarkCompleted(id string) (*SyncQueueEntry, error)
	MarkFailed(id, errMsg string) (*SyncQueueEntry, error)
	IncrementAttempt(id string) (*SyncQueueEntry, error)
	Delete(id string) error
	DeleteCompleted(before time.Time) (int, error)
	CountPending() (int, error)
	CountFailed() (int, error)
	EntriesByEntity(entityType EntityType, entityID string) ([]SyncQueueEntry, error)
	LastSyncedAt() (*time.Time, error)
	Close() error
}

// Committer applies one change to the authoritative records service.
// For create operations a provisional client-generated entityID may be
// replaced server-side; the queue never learns the final id.
type Committer interface {
	Commit(ctx context.Context, op Operation, entityID string, payload json.RawMessage) error
}

// CommitterFunc adapts a function to the Committer interface.
type CommitterFunc func(ctx context.Context, op Operation, entityID string, payload json.RawMessage) error

func (f CommitterFunc) Commit(ctx context.Context, op Operation, entityID string, payload json.RawMessage) error {
	return f(ctx, op, entityID, payload)
}

// AuditSink receives one audit event per commit attempt. Audit writes
// are fire-and-forget: a sink failure is logged and never rolls back
// the sync outcome.
type AuditSink interface {
	Record(ctx context.Context, event AuditEvent) error
}

// AuditSinkFunc adapts a function to the AuditSink interface.
type AuditSinkFunc func(ctx context.Context, event AuditEvent) error

func (f AuditSinkFunc) Record(ctx context.Context, event AuditEvent) error {
	return f(ctx, event)
}

// Engine orchestrates draining the queue: it claims entries, validates
// payloads, hands valid ones to the committer registered for their
// entity type, transitions entry state and emits an audit event per
// attempt.
//
// A batch is processed sequentially so that earlier-queued operations
// on the same entity commit before later ones. Concurrent drains are
// safe: each entry is claimed with an atomic pending→processing flip,
// so overlapping drains never double-process an entry.
type Engine struct {
	queue Queue
	audit AuditSink
	log   *DebugLogger

	mu            sync.RWMutex
	committers    map[EntityType]Committer
	commitTimeout time.Duration
}

// NewEngine creates an engine over the given queue. The audit sink may
// be nil, in which case no audit events are emitted.
func NewEngine(queue Queue, audit AuditSink) *Engine {
	return &Engine{
		queue:         queue,
		audit:         audit,
		committers:    map[EntityType]Committer{},
		commitTimeout: DefaultCommitTimeout,
	}
}

// SetDebugLogger installs a logger for drain diagnostics.
func (e *Engine) SetDebugLogger(log *DebugLogger) { e.log = log }

// SetCommitTimeout bounds each commit attempt. Zero disables the bound.
func (e *Engine) SetCommitTimeout(d time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.commitTimeout = d
}

// RegisterCommitter installs the commit collaborator for an entity
// type, replacing any previous registration.
func (e *Engine) RegisterCommitter(entityType EntityType, c Committer) {
	if entityType == "" || c == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.committers[entityType] = c
}

func (e *Engine) committerFor(entityType EntityType) Committer {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.committers[entityType]
}

// ProcessPending drains up to limit pending entries in FIFO order.
// A limit of zero or less drains the whole backlog. Individual entry
// failures are aggregated into the result; only store-level failures
// abort the drain and return an error.
func (e *Engine) ProcessPending(ctx context.Context, limit int) (*DrainResult, error) {
	entries, err := e.queue.Pending(limit)
	if err != nil {
		return nil, fmt.Errorf("engine: fetch pending: %w", err)
	}
	return e.drain(ctx, entries, false)
}

// RetryFailed re-offers failed entries still under their retry budget
// and drains them. Each touched entry's attempts counter rises by
// exactly one, whatever the outcome. Entries at or above maxAttempts
// are quarantined and left alone.
func (e *Engine) RetryFailed(ctx context.Context, maxAttempts, limit int) (*DrainResult, error) {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	entries, err := e.queue.Failed(maxAttempts, limit)
	if err != nil {
		return nil, fmt.Errorf("engine: fetch failed: %w", err)
	}
	return e.drain(ctx, entries, true)
}

func (e *Engine) drain(ctx context.Context, entries []SyncQueueEntry, retry bool) (*DrainResult, error) {
	result := &DrainResult{Errors: []EntryError{}}
	if len(entries) == 0 {
		result.Success = true
		return result, nil
	}

	drainID := uuid.NewString()
	e.log.Log("drain %s: %d entries (retry=%v)", drainID, len(entries), retry)

	for i := range entries {
		entry := &entries[i]

		// The only cancellation point is before an entry is claimed;
		// an in-flight commit is never abandoned mid-entry.
		if err := ctx.Err(); err != nil {
			return result, err
		}

		if retry {
			// Counts the new attempt up front and re-offers the entry as
			// pending. A concurrent drain may have moved it already.
			if _, err := e.queue.IncrementAttempt(entry.ID); err != nil {
				if errors.Is(err, ErrInvalidTransition) || errors.Is(err, ErrNotFound) {
					e.log.Log("drain %s: entry %s no longer failed, skipping", drainID, entry.ID)
					continue
				}
				return result, fmt.Errorf("engine: re-offer entry: %w", err)
			}
		}

		claimed, err := e.queue.Claim(entry.ID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return result, fmt.Errorf("engine: claim entry: %w", err)
		}
		if !claimed {
			e.log.Log("drain %s: entry %s claimed elsewhere, skipping", drainID, entry.ID)
			continue
		}

		commitErr := e.commitEntry(ctx, entry)
		if commitErr == nil {
			if _, err := e.queue.MarkCompleted(entry.ID); err != nil {
				return result, fmt.Errorf("engine: mark completed: %w", err)
			}
			result.Synced++
			e.recordAudit(ctx, drainID, entry, true, "")
			continue
		}

		msg := commitErr.Error()
		if retry {
			// The attempt was already counted by IncrementAttempt; record
			// the failure without counting it again.
			failed := StatusFailed
			if _, err := e.queue.Update(entry.ID, EntryUpdate{Status: &failed, Error: &msg}); err != nil {
				return result, fmt.Errorf("engine: record retry failure: %w", err)
			}
		} else {
			if _, err := e.queue.MarkFailed(entry.ID, msg); err != nil {
				return result, fmt.Errorf("engine: mark failed: %w", err)
			}
		}
		result.Failed++
		result.Errors = append(result.Errors, EntryError{EntryID: entry.ID, Error: msg})
		e.recordAudit(ctx, drainID, entry, false, msg)
	}

	result.Success = len(result.Errors) == 0
	e.log.Log("drain %s: done synced=%d failed=%d", drainID, result.Synced, result.Failed)
	return result, nil
}

// commitEntry validates and commits one claimed entry. Validation
// failures and commit failures are treated identically by the caller.
func (e *Engine) commitEntry(ctx context.Context, entry *SyncQueueEntry) error {
	if err := ValidatePayload(entry.EntityType, entry.Payload); err != nil {
		return err
	}

	committer := e.committerFor(entry.EntityType)
	if committer == nil {
		return fmt.Errorf("%w for %s", ErrOffline, entry.EntityType)
	}

	e.mu.RLock()
	timeout := e.commitTimeout
	e.mu.RUnlock()

	cctx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		cctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	if err := committer.Commit(cctx, entry.Operation, entry.EntityID, entry.Payload); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("timed out after %s: %w", timeout, err)
		}
		return &CommitError{
			EntityType: entry.EntityType,
			Operation:  entry.Operation,
			EntityID:   entry.EntityID,
			Err:        err,
		}
	}
	return nil
}

func (e *Engine) recordAudit(ctx context.Context, drainID string, entry *SyncQueueEntry, success bool, errMsg string) {
	if e.audit == nil {
		return
	}

	details := fmt.Sprintf("drain=%s entry=%s attempts=%d", drainID, entry.ID, entry.Attempts)
	if errMsg != "" {
		details += " error=" + errMsg
	}

	event := AuditEvent{
		EntityType: AuditEntityType,
		EntityID:   entry.EntityID,
		OfficerID:  SystemOfficerID,
		Action:     AuditActionSync,
		Success:    success,
		Details:    details,
	}
	if err := e.audit.Record(ctx, event); err != nil {
		// Audit failure is non-fatal; the sync outcome stands.
		e.log.Log("audit write failed for entry %s: %v", entry.ID, err)
	}
}

// Stats returns a queue health snapshot.
func (e *Engine) Stats() (*SyncStats, error) {
	pending, err := e.queue.CountPending()
	if err != nil {
		return nil, fmt.Errorf("engine: count pending: %w", err)
	}
	failed, err := e.queue.CountFailed()
	if err != nil {
		return nil, fmt.Errorf("engine: count failed: %w", err)
	}
	lastSync, err := e.queue.LastSyncedAt()
	if err != nil {
		return nil, fmt.Errorf("engine: last synced at: %w", err)
	}

	return &SyncStats{Pending: pending, Failed: failed, LastSyncAt: lastSync}, nil
}

// Cleanup purges completed entries older than the given number of days
// and returns how many were removed. Zero or negative days falls back
// to the default retention.
func (e *Engine) Cleanup(olderThanDays int) (int, error) {
	if olderThanDays <= 0 {
		olderThanDays = DefaultRetainDays
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -olderThanDays)
	return e.queue.DeleteCompleted(cutoff)
}
