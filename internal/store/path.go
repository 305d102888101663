// Package store resolves filesystem locations for the local queue
// database.
package store

import (
	"os"
	"path/filepath"
)

// DataRoot returns the directory holding fieldsync's local state.
// Resolution order: FIELDSYNC_DATA_DIR env var, then ~/.fieldsync,
// then ./data as a last resort when no home directory is available.
func DataRoot() string {
	if dir := os.Getenv("FIELDSYNC_DATA_DIR"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return "data"
	}
	return filepath.Join(home, ".fieldsync")
}

// QueueDBPath returns the default path of the SQLite queue database.
func QueueDBPath() string {
	return filepath.Join(DataRoot(), "queue.db")
}
