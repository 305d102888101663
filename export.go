package fieldsync

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// ExportVersion is the current version of the export format.
const ExportVersion = "1.0"

// ExportHeader is the first line of a JSONL export.
type ExportHeader struct {
	Version    string    `json:"version"`
	ExportedAt time.Time `json:"exported_at"`
	Status     string    `json:"status,omitempty"`
}

// ExportJSONL streams queue entries as JSON Lines to the writer: a
// header line followed by one entry per line. An empty status exports
// everything; otherwise only entries in that status are written. The
// primary use is handing quarantined entries to an operator for
// out-of-band repair.
func (s *Store) ExportJSONL(ctx context.Context, status Status, w io.Writer) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0, ErrStoreClosed
	}

	enc := json.NewEncoder(w)
	header := ExportHeader{
		Version:    ExportVersion,
		ExportedAt: time.Now().UTC(),
		Status:     string(status),
	}
	if err := enc.Encode(header); err != nil {
		return 0, fmt.Errorf("write export header: %w", err)
	}

	query := `
		SELECT id, entity_type, entity_id, operation, payload, payload_version, status, attempts, last_error, created_at, synced_at
		FROM sync_queue
	`
	args := []any{}
	if status != "" {
		query += " WHERE status = ?"
		args = append(args, string(status))
	}
	query += " ORDER BY created_at ASC, id ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("query entries: %w", err)
	}
	defer rows.Close()

	count := 0
	for rows.Next() {
		select {
		case <-ctx.Done():
			return count, ctx.Err()
		default:
		}

		entry, err := scanEntry(rows)
		if err != nil {
			return count, fmt.Errorf("scan entry: %w", err)
		}
		if err := enc.Encode(entry); err != nil {
			return count, fmt.Errorf("write entry %s: %w", entry.ID, err)
		}
		count++
	}

	return count, rows.Err()
}
