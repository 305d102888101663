// Package pgstore provides a Postgres-backed sync queue for server-side
// deployments, where many field devices replay through one shared queue.
// It implements the same contract as the local SQLite store; guarded
// status transitions rely on conditional updates, so concurrent drains
// against the same database stay safe.
package pgstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fieldops/fieldsync"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/oklog/ulid/v2"
)

const opTimeout = 5 * time.Second

// Store is a Postgres-backed sync queue.
type Store struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
}

// New connects to Postgres and ensures the queue schema exists.
func New(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("pgstore: open database: %w", err)
	}

	s := &Store{db: db}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pgstore: ensure schema: %w", err)
	}
	return s, nil
}

func (s *Store) ensureSchema() error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS sync_queue (
			id TEXT PRIMARY KEY,
			entity_type TEXT NOT NULL,
			entity_id TEXT NOT NULL,
			operation TEXT NOT NULL,
			payload TEXT NOT NULL DEFAULT '{}',
			payload_version INTEGER NOT NULL DEFAULT 1,
			status TEXT NOT NULL DEFAULT 'pending',
			attempts INTEGER NOT NULL DEFAULT 0,
			last_error TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			synced_at TIMESTAMPTZ
		)`)
	if err != nil {
		return err
	}

	for _, q := range []string{
		"CREATE INDEX IF NOT EXISTS sync_queue_status_created_idx ON sync_queue (status, created_at)",
		"CREATE INDEX IF NOT EXISTS sync_queue_entity_idx ON sync_queue (entity_type, entity_id)",
	} {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

const entryColumns = "id, entity_type, entity_id, operation, payload, payload_version, status, attempts, last_error, created_at, synced_at"

// Enqueue appends a new entry in state pending with zero attempts.
func (s *Store) Enqueue(entityType fieldsync.EntityType, entityID string, op fieldsync.Operation, payload json.RawMessage) (*fieldsync.SyncQueueEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, fieldsync.ErrStoreClosed
	}
	if !op.IsValid() {
		return nil, fmt.Errorf("%w: %q", fieldsync.ErrInvalidOperation, op)
	}
	if len(payload) == 0 {
		payload = json.RawMessage("{}")
	}

	entry := fieldsync.SyncQueueEntry{
		ID:             ulid.Make().String(),
		EntityType:     entityType,
		EntityID:       entityID,
		Operation:      op,
		Payload:        payload,
		PayloadVersion: fieldsync.PayloadVersion,
		Status:         fieldsync.StatusPending,
		CreatedAt:      time.Now().UTC(),
	}

	_, err := s.db.Exec(`
		INSERT INTO sync_queue (id, entity_type, entity_id, operation, payload, payload_version, status, attempts, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 0, $8)
	`,
		entry.ID,
		string(entry.EntityType),
		entry.EntityID,
		string(entry.Operation),
		string(entry.Payload),
		entry.PayloadVersion,
		string(entry.Status),
		entry.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("pgstore: enqueue: %w", err)
	}

	return &entry, nil
}

// Get retrieves a queue entry by id.
func (s *Store) Get(id string) (*fieldsync.SyncQueueEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fieldsync.ErrStoreClosed
	}
	return s.getEntry(id)
}

func (s *Store) getEntry(id string) (*fieldsync.SyncQueueEntry, error) {
	row := s.db.QueryRow("SELECT "+entryColumns+" FROM sync_queue WHERE id = $1", id)
	return scanEntry(row)
}

// Pending returns pending entries oldest-first (FIFO). A limit of zero
// or less returns the whole backlog.
func (s *Store) Pending(limit int) ([]fieldsync.SyncQueueEntry, error) {
	return s.listByStatus(fieldsync.StatusPending, 0, limit)
}

// Failed returns failed entries with attempts below maxAttempts,
// oldest-first. Entries at or above maxAttempts are quarantined.
func (s *Store) Failed(maxAttempts, limit int) ([]fieldsync.SyncQueueEntry, error) {
	return s.listByStatus(fieldsync.StatusFailed, maxAttempts, limit)
}

func (s *Store) listByStatus(status fieldsync.Status, maxAttempts, limit int) ([]fieldsync.SyncQueueEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fieldsync.ErrStoreClosed
	}

	query := "SELECT " + entryColumns + " FROM sync_queue WHERE status = $1"
	args := []any{string(status)}

	if maxAttempts > 0 {
		args = append(args, maxAttempts)
		query += fmt.Sprintf(" AND attempts < $%d", len(args))
	}

	query += " ORDER BY created_at ASC, id ASC"

	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("pgstore: list %s entries: %w", status, err)
	}
	defer rows.Close()

	return collectEntries(rows)
}

// Update merges the provided fields into an entry atomically. It does
// not enforce state-machine guards.
func (s *Store) Update(id string, upd fieldsync.EntryUpdate) (*fieldsync.SyncQueueEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, fieldsync.ErrStoreClosed
	}

	sets := []string{}
	args := []any{}

	if upd.Status != nil {
		args = append(args, string(*upd.Status))
		sets = append(sets, fmt.Sprintf("status = $%d", len(args)))
	}
	if upd.Attempts != nil {
		args = append(args, *upd.Attempts)
		sets = append(sets, fmt.Sprintf("attempts = $%d", len(args)))
	}
	if upd.Error != nil {
		if *upd.Error == "" {
			sets = append(sets, "last_error = NULL")
		} else {
			args = append(args, *upd.Error)
			sets = append(sets, fmt.Sprintf("last_error = $%d", len(args)))
		}
	}
	if upd.SyncedAt != nil {
		args = append(args, upd.SyncedAt.UTC())
		sets = append(sets, fmt.Sprintf("synced_at = $%d", len(args)))
	}

	if len(sets) == 0 {
		return s.getEntry(id)
	}

	args = append(args, id)
	query := fmt.Sprintf("UPDATE sync_queue SET %s WHERE id = $%d", strings.Join(sets, ", "), len(args))

	res, err := s.db.Exec(query, args...)
	if err != nil {
		return nil, fmt.Errorf("pgstore: update entry: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, fieldsync.ErrNotFound
	}

	return s.getEntry(id)
}

// Claim atomically transitions an entry from pending to processing.
// Returns false without error when the entry exists but is no longer
// pending.
func (s *Store) Claim(id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false, fieldsync.ErrStoreClosed
	}

	res, err := s.db.Exec(`
		UPDATE sync_queue SET status = $1 WHERE id = $2 AND status = $3
	`, string(fieldsync.StatusProcessing), id, string(fieldsync.StatusPending))
	if err != nil {
		return false, fmt.Errorf("pgstore: claim entry: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return true, nil
	}

	if _, err := s.getEntry(id); err != nil {
		return false, err
	}
	return false, nil
}

// MarkCompleted transitions a processing entry to completed, stamps
// synced_at and clears the failure message.
func (s *Store) MarkCompleted(id string) (*fieldsync.SyncQueueEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, fieldsync.ErrStoreClosed
	}

	res, err := s.db.Exec(`
		UPDATE sync_queue SET status = $1, synced_at = $2, last_error = NULL
		WHERE id = $3 AND status = $4
	`, string(fieldsync.StatusCompleted), time.Now().UTC(), id, string(fieldsync.StatusProcessing))
	if err != nil {
		return nil, fmt.Errorf("pgstore: mark completed: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, s.transitionFailure(id, fieldsync.StatusCompleted)
	}

	return s.getEntry(id)
}

// MarkFailed transitions a processing entry to failed, records the
// failure message and counts the attempt.
func (s *Store) MarkFailed(id, errMsg string) (*fieldsync.SyncQueueEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, fieldsync.ErrStoreClosed
	}

	res, err := s.db.Exec(`
		UPDATE sync_queue SET status = $1, last_error = $2, attempts = attempts + 1
		WHERE id = $3 AND status = $4
	`, string(fieldsync.StatusFailed), errMsg, id, string(fieldsync.StatusProcessing))
	if err != nil {
		return nil, fmt.Errorf("pgstore: mark failed: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, s.transitionFailure(id, fieldsync.StatusFailed)
	}

	return s.getEntry(id)
}

// IncrementAttempt counts a retry attempt up front and re-offers a
// failed entry as pending.
func (s *Store) IncrementAttempt(id string) (*fieldsync.SyncQueueEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, fieldsync.ErrStoreClosed
	}

	res, err := s.db.Exec(`
		UPDATE sync_queue SET status = $1, attempts = attempts + 1
		WHERE id = $2 AND status = $3
	`, string(fieldsync.StatusPending), id, string(fieldsync.StatusFailed))
	if err != nil {
		return nil, fmt.Errorf("pgstore: increment attempt: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, s.transitionFailure(id, fieldsync.StatusPending)
	}

	return s.getEntry(id)
}

func (s *Store) transitionFailure(id string, to fieldsync.Status) error {
	entry, err := s.getEntry(id)
	if err != nil {
		return err
	}
	return &fieldsync.TransitionError{ID: id, From: entry.Status, To: to}
}

// Delete removes a single entry.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fieldsync.ErrStoreClosed
	}

	res, err := s.db.Exec("DELETE FROM sync_queue WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("pgstore: delete entry: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fieldsync.ErrNotFound
	}
	return nil
}

// DeleteCompleted removes completed entries synced before the cutoff.
func (s *Store) DeleteCompleted(before time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, fieldsync.ErrStoreClosed
	}

	res, err := s.db.Exec(`
		DELETE FROM sync_queue
		WHERE status = $1 AND synced_at IS NOT NULL AND synced_at < $2
	`, string(fieldsync.StatusCompleted), before.UTC())
	if err != nil {
		return 0, fmt.Errorf("pgstore: delete completed: %w", err)
	}

	n, _ := res.RowsAffected()
	return int(n), nil
}

// CountPending returns the number of pending entries.
func (s *Store) CountPending() (int, error) {
	return s.countByStatus(fieldsync.StatusPending)
}

// CountFailed returns the number of failed entries.
func (s *Store) CountFailed() (int, error) {
	return s.countByStatus(fieldsync.StatusFailed)
}

func (s *Store) countByStatus(status fieldsync.Status) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0, fieldsync.ErrStoreClosed
	}

	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM sync_queue WHERE status = $1", string(status)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("pgstore: count %s entries: %w", status, err)
	}
	return count, nil
}

// EntriesByEntity returns the queue history for one target record,
// newest-first.
func (s *Store) EntriesByEntity(entityType fieldsync.EntityType, entityID string) ([]fieldsync.SyncQueueEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fieldsync.ErrStoreClosed
	}

	rows, err := s.db.Query(`
		SELECT `+entryColumns+` FROM sync_queue
		WHERE entity_type = $1 AND entity_id = $2
		ORDER BY created_at DESC, id DESC
	`, string(entityType), entityID)
	if err != nil {
		return nil, fmt.Errorf("pgstore: entries by entity: %w", err)
	}
	defer rows.Close()

	return collectEntries(rows)
}

// LastSyncedAt returns the newest synced_at over completed entries, or
// nil if nothing has completed yet.
func (s *Store) LastSyncedAt() (*time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fieldsync.ErrStoreClosed
	}

	var last sql.NullTime
	err := s.db.QueryRow(`
		SELECT MAX(synced_at) FROM sync_queue WHERE status = $1
	`, string(fieldsync.StatusCompleted)).Scan(&last)
	if err != nil {
		return nil, fmt.Errorf("pgstore: last synced at: %w", err)
	}
	if !last.Valid {
		return nil, nil
	}

	t := last.Time.UTC()
	return &t, nil
}

// Close closes the store.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	s.closed = true
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(sc scanner) (*fieldsync.SyncQueueEntry, error) {
	var (
		entry      fieldsync.SyncQueueEntry
		entityType string
		operation  string
		payload    string
		status     string
		lastError  sql.NullString
		createdAt  time.Time
		syncedAt   sql.NullTime
	)

	err := sc.Scan(
		&entry.ID,
		&entityType,
		&entry.EntityID,
		&operation,
		&payload,
		&entry.PayloadVersion,
		&status,
		&entry.Attempts,
		&lastError,
		&createdAt,
		&syncedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fieldsync.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	entry.EntityType = fieldsync.EntityType(entityType)
	entry.Operation = fieldsync.Operation(operation)
	entry.Payload = json.RawMessage(payload)
	entry.Status = fieldsync.Status(status)
	if lastError.Valid {
		entry.Error = lastError.String
	}
	entry.CreatedAt = createdAt.UTC()
	if syncedAt.Valid {
		t := syncedAt.Time.UTC()
		entry.SyncedAt = &t
	}

	return &entry, nil
}

func collectEntries(rows *sql.Rows) ([]fieldsync.SyncQueueEntry, error) {
	var results []fieldsync.SyncQueueEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, *entry)
	}
	return results, rows.Err()
}
