package fieldsync

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
)

// ImportResult summarizes an import operation.
type ImportResult struct {
	Total    int      `json:"total"`
	Imported int      `json:"imported"`
	Skipped  int      `json:"skipped"`
	Errors   []string `json:"errors,omitempty"`
}

// ImportJSONL reads a JSONL export and inserts its entries. Entries
// whose id already exists are skipped. When requeue is true, imported
// entries are reset to pending with zero attempts and no error — the
// path for repaired quarantined entries re-entering the drain.
//
// The store's write lock is held for the whole import; large imports
// block other queue operations until they finish.
func (s *Store) ImportJSONL(ctx context.Context, r io.Reader, requeue bool) (*ImportResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("read export header: %w", err)
		}
		return nil, fmt.Errorf("empty export file")
	}

	var header ExportHeader
	if err := json.Unmarshal(scanner.Bytes(), &header); err != nil {
		return nil, fmt.Errorf("decode export header: %w", err)
	}
	if header.Version != ExportVersion {
		return nil, fmt.Errorf("unsupported export version %q (expected %q)", header.Version, ExportVersion)
	}

	result := &ImportResult{}
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		default:
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var entry SyncQueueEntry
		if err := json.Unmarshal(line, &entry); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("decode entry: %v", err))
			continue
		}
		result.Total++

		if entry.ID == "" || !entry.Operation.IsValid() {
			result.Errors = append(result.Errors, fmt.Sprintf("entry %q: malformed", entry.ID))
			continue
		}

		var exists bool
		err := s.db.QueryRow("SELECT EXISTS(SELECT 1 FROM sync_queue WHERE id = ?)", entry.ID).Scan(&exists)
		if err != nil {
			return result, fmt.Errorf("check entry %s: %w", entry.ID, err)
		}
		if exists {
			result.Skipped++
			continue
		}

		if requeue {
			entry.Status = StatusPending
			entry.Attempts = 0
			entry.Error = ""
			entry.SyncedAt = nil
		}

		if err := s.insertImported(&entry); err != nil {
			return result, fmt.Errorf("insert entry %s: %w", entry.ID, err)
		}
		result.Imported++
	}

	if err := scanner.Err(); err != nil {
		return result, fmt.Errorf("read export: %w", err)
	}
	return result, nil
}

// insertImported writes an entry verbatim, preserving its id and
// timestamps. Callers hold the write lock.
func (s *Store) insertImported(entry *SyncQueueEntry) error {
	var syncedAt *string
	if entry.SyncedAt != nil {
		ts := entry.SyncedAt.UTC().Format(timeFormat)
		syncedAt = &ts
	}
	var lastError *string
	if entry.Error != "" {
		lastError = &entry.Error
	}
	if entry.PayloadVersion == 0 {
		entry.PayloadVersion = PayloadVersion
	}
	if len(entry.Payload) == 0 {
		entry.Payload = json.RawMessage("{}")
	}

	_, err := s.db.Exec(`
		INSERT INTO sync_queue (id, entity_type, entity_id, operation, payload, payload_version, status, attempts, last_error, created_at, synced_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		entry.ID,
		string(entry.EntityType),
		entry.EntityID,
		string(entry.Operation),
		string(entry.Payload),
		entry.PayloadVersion,
		string(entry.Status),
		entry.Attempts,
		lastError,
		entry.CreatedAt.UTC().Format(timeFormat),
		syncedAt,
	)
	return err
}
