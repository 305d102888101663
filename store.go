package fieldsync

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fieldops/fieldsync/internal/store/migrations"
	"github.com/oklog/ulid/v2"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

const schemaVersion = "1"

// timeFormat is RFC3339 with a fixed-width 9-digit fraction so that
// stored timestamps compare correctly as TEXT.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// Store manages the local SQLite sync queue database.
type Store struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
	path   string
}

// NewStore opens or creates a local queue store.
func NewStore(path string) (*Store, error) {
	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Enable WAL mode for better concurrent access
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	store := &Store{db: db, path: path}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate schema: %w", err)
	}

	return store, nil
}

func (s *Store) migrate() error {
	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("store: set goose dialect: %w", err)
	}
	if err := goose.Up(s.db, "."); err != nil {
		return fmt.Errorf("store: run migrations: %w", err)
	}

	// Set schema version if not set
	_, err := s.db.Exec(`
		INSERT OR IGNORE INTO metadata (key, value) VALUES ('schema_version', ?)
	`, schemaVersion)
	return err
}

// Enqueue appends a new entry in state pending with zero attempts.
// The entry id is a ULID, so ids sort in enqueue order.
func (s *Store) Enqueue(entityType EntityType, entityID string, op Operation, payload json.RawMessage) (*SyncQueueEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrStoreClosed
	}
	if !op.IsValid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidOperation, op)
	}
	if len(payload) == 0 {
		payload = json.RawMessage("{}")
	}

	entry := SyncQueueEntry{
		ID:             ulid.Make().String(),
		EntityType:     entityType,
		EntityID:       entityID,
		Operation:      op,
		Payload:        payload,
		PayloadVersion: PayloadVersion,
		Status:         StatusPending,
		CreatedAt:      time.Now().UTC(),
	}

	_, err := s.db.Exec(`
		INSERT INTO sync_queue (id, entity_type, entity_id, operation, payload, payload_version, status, attempts, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, 0, ?)
	`,
		entry.ID,
		string(entry.EntityType),
		entry.EntityID,
		string(entry.Operation),
		string(entry.Payload),
		entry.PayloadVersion,
		string(entry.Status),
		entry.CreatedAt.Format(timeFormat),
	)
	if err != nil {
		return nil, fmt.Errorf("store: enqueue: %w", err)
	}

	return &entry, nil
}

// Get retrieves a queue entry by id.
func (s *Store) Get(id string) (*SyncQueueEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	return s.getEntry(id)
}

func (s *Store) getEntry(id string) (*SyncQueueEntry, error) {
	row := s.db.QueryRow(`
		SELECT id, entity_type, entity_id, operation, payload, payload_version, status, attempts, last_error, created_at, synced_at
		FROM sync_queue WHERE id = ?
	`, id)

	return scanEntry(row)
}

// Pending returns pending entries oldest-first (FIFO). A limit of zero
// or less returns the whole backlog.
func (s *Store) Pending(limit int) ([]SyncQueueEntry, error) {
	return s.listByStatus(StatusPending, 0, limit)
}

// Failed returns failed entries with attempts below maxAttempts,
// oldest-first. Entries at or above maxAttempts are quarantined: still
// queryable via EntriesByEntity, but excluded from automatic retry.
func (s *Store) Failed(maxAttempts, limit int) ([]SyncQueueEntry, error) {
	return s.listByStatus(StatusFailed, maxAttempts, limit)
}

func (s *Store) listByStatus(status Status, maxAttempts, limit int) ([]SyncQueueEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	query := `
		SELECT id, entity_type, entity_id, operation, payload, payload_version, status, attempts, last_error, created_at, synced_at
		FROM sync_queue WHERE status = ?
	`
	args := []any{string(status)}

	if maxAttempts > 0 {
		query += " AND attempts < ?"
		args = append(args, maxAttempts)
	}

	// ULID ids tiebreak entries sharing a created_at timestamp
	query += " ORDER BY created_at ASC, id ASC"

	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list %s entries: %w", status, err)
	}
	defer rows.Close()

	return collectEntries(rows)
}

// Update merges the provided fields into an entry atomically. It does
// not enforce state-machine guards; the guarded transitions are
// Claim, MarkCompleted, MarkFailed and IncrementAttempt.
func (s *Store) Update(id string, upd EntryUpdate) (*SyncQueueEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	sets := []string{}
	args := []any{}

	if upd.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, string(*upd.Status))
	}
	if upd.Attempts != nil {
		sets = append(sets, "attempts = ?")
		args = append(args, *upd.Attempts)
	}
	if upd.Error != nil {
		if *upd.Error == "" {
			sets = append(sets, "last_error = NULL")
		} else {
			sets = append(sets, "last_error = ?")
			args = append(args, *upd.Error)
		}
	}
	if upd.SyncedAt != nil {
		sets = append(sets, "synced_at = ?")
		args = append(args, upd.SyncedAt.UTC().Format(timeFormat))
	}

	if len(sets) == 0 {
		return s.getEntry(id)
	}

	args = append(args, id)
	query := fmt.Sprintf("UPDATE sync_queue SET %s WHERE id = ?", strings.Join(sets, ", "))

	res, err := s.db.Exec(query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: update entry: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}

	return s.getEntry(id)
}

// Claim atomically transitions an entry from pending to processing.
// Returns false without error when the entry exists but is no longer
// pending (already claimed by a concurrent drain).
func (s *Store) Claim(id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false, ErrStoreClosed
	}

	res, err := s.db.Exec(`
		UPDATE sync_queue SET status = ? WHERE id = ? AND status = ?
	`, string(StatusProcessing), id, string(StatusPending))
	if err != nil {
		return false, fmt.Errorf("store: claim entry: %w", err)
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
// synced_at and clears the failure message. Completing an entry that is
// not processing returns a TransitionError; in particular, an already
// completed entry is rejected rather than having its synced_at moved.
func (s *Store) MarkCompleted(id string) (*SyncQueueEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	res, err := s.db.Exec(`
		UPDATE sync_queue SET status = ?, synced_at = ?, last_error = NULL
		WHERE id = ? AND status = ?
	`, string(StatusCompleted), time.Now().UTC().Format(timeFormat), id, string(StatusProcessing))
	if err != nil {
		return nil, fmt.Errorf("store: mark completed: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, s.transitionFailure(id, StatusCompleted)
	}

	return s.getEntry(id)
}

// MarkFailed transitions a processing entry to failed, records the
// failure message and counts the attempt.
func (s *Store) MarkFailed(id, errMsg string) (*SyncQueueEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	res, err := s.db.Exec(`
		UPDATE sync_queue SET status = ?, last_error = ?, attempts = attempts + 1
		WHERE id = ? AND status = ?
	`, string(StatusFailed), errMsg, id, string(StatusProcessing))
	if err != nil {
		return nil, fmt.Errorf("store: mark failed: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, s.transitionFailure(id, StatusFailed)
	}

	return s.getEntry(id)
}

// IncrementAttempt counts a retry attempt up front and re-offers a
// failed entry as pending. Only failed entries can be re-offered.
func (s *Store) IncrementAttempt(id string) (*SyncQueueEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	res, err := s.db.Exec(`
		UPDATE sync_queue SET status = ?, attempts = attempts + 1
		WHERE id = ? AND status = ?
	`, string(StatusPending), id, string(StatusFailed))
	if err != nil {
		return nil, fmt.Errorf("store: increment attempt: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, s.transitionFailure(id, StatusPending)
	}

	return s.getEntry(id)
}

// transitionFailure distinguishes an unknown id from a guarded update
// applied in the wrong state. Callers hold the write lock.
func (s *Store) transitionFailure(id string, to Status) error {
	entry, err := s.getEntry(id)
	if err != nil {
		return err
	}
	return &TransitionError{ID: id, From: entry.Status, To: to}
}

// Delete removes a single entry.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	res, err := s.db.Exec("DELETE FROM sync_queue WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("store: delete entry: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteCompleted removes completed entries synced before the cutoff
// and returns how many were removed. Pending and failed entries are
// never purged by age.
func (s *Store) DeleteCompleted(before time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, ErrStoreClosed
	}

	res, err := s.db.Exec(`
		DELETE FROM sync_queue
		WHERE status = ? AND synced_at IS NOT NULL AND synced_at < ?
	`, string(StatusCompleted), before.UTC().Format(timeFormat))
	if err != nil {
		return 0, fmt.Errorf("store: delete completed: %w", err)
	}

	n, _ := res.RowsAffected()
	return int(n), nil
}

// CountPending returns the number of pending entries.
func (s *Store) CountPending() (int, error) {
	return s.countByStatus(StatusPending)
}

// CountFailed returns the number of failed entries, quarantined ones
// included.
func (s *Store) CountFailed() (int, error) {
	return s.countByStatus(StatusFailed)
}

func (s *Store) countByStatus(status Status) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0, ErrStoreClosed
	}

	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM sync_queue WHERE status = ?", string(status)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("store: count %s entries: %w", status, err)
	}
	return count, nil
}

// EntriesByEntity returns the full queue history for one target record,
// newest-first, for debugging and audit trails.
func (s *Store) EntriesByEntity(entityType EntityType, entityID string) ([]SyncQueueEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	rows, err := s.db.Query(`
		SELECT id, entity_type, entity_id, operation, payload, payload_version, status, attempts, last_error, created_at, synced_at
		FROM sync_queue WHERE entity_type = ? AND entity_id = ?
		ORDER BY created_at DESC, id DESC
	`, string(entityType), entityID)
	if err != nil {
		return nil, fmt.Errorf("store: entries by entity: %w", err)
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
		return nil, ErrStoreClosed
	}

	var last sql.NullString
	err := s.db.QueryRow(`
		SELECT MAX(synced_at) FROM sync_queue WHERE status = ?
	`, string(StatusCompleted)).Scan(&last)
	if err != nil {
		return nil, fmt.Errorf("store: last synced at: %w", err)
	}
	if !last.Valid {
		return nil, nil
	}

	t, err := time.Parse(time.RFC3339Nano, last.String)
	if err != nil {
		return nil, fmt.Errorf("store: parse synced_at: %w", err)
	}
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

// scanner abstracts the Scan method shared by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(sc scanner) (*SyncQueueEntry, error) {
	var (
		entry      SyncQueueEntry
		entityType string
		operation  string
		payload    string
		status     string
		lastError  sql.NullString
		createdAt  string
		syncedAt   sql.NullString
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
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	entry.EntityType = EntityType(entityType)
	entry.Operation = Operation(operation)
	entry.Payload = json.RawMessage(payload)
	entry.Status = Status(status)
	if lastError.Valid {
		entry.Error = lastError.String
	}
	entry.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	if syncedAt.Valid {
		t, _ := time.Parse(time.RFC3339Nano, syncedAt.String)
		entry.SyncedAt = &t
	}

	return &entry, nil
}

func collectEntries(rows *sql.Rows) ([]SyncQueueEntry, error) {
	var results []SyncQueueEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, *entry)
	}
	return results, rows.Err()
}
