package fieldsync

import (
	"os"
	"strconv"
	"time"

	"github.com/fieldops/fieldsync/internal/store"
)

// Default tuning values used by WithDefaults.
const (
	DefaultMaxAttempts         = 3
	DefaultRetainDays          = 7
	DefaultCommitTimeout       = 15 * time.Second
	DefaultMaintenanceInterval = time.Hour
)

// Config configures the fieldsync client.
type Config struct {
	// LocalPath is the path to the local SQLite queue database.
	// Defaults to <data-root>/queue.db.
	LocalPath string

	// DatabaseURL selects a Postgres-backed queue store instead of the
	// local SQLite file. Used by server-side deployments; the CLI wires
	// it through pgstore. When set, LocalPath is ignored.
	DatabaseURL string

	// RecordsURL is the base URL of the authoritative records service.
	// If empty, the client operates in offline-only mode: changes queue
	// locally but drains return ErrOffline.
	RecordsURL string

	// APIKey authenticates with the records service.
	APIKey string

	// DeviceID identifies this field device in commit requests and
	// audit details. Defaults to hostname if not set.
	DeviceID string

	// CommitTimeout bounds each commit attempt against the records
	// service. Defaults to 15 seconds.
	CommitTimeout time.Duration

	// MaxAttempts is the retry budget before a failed entry is
	// quarantined. Defaults to 3.
	MaxAttempts int

	// RetainDays is how long completed entries are kept before the
	// maintenance task purges them. Defaults to 7.
	RetainDays int

	// MaintenanceInterval is how often the background maintenance task
	// runs. Defaults to 1 hour.
	MaintenanceInterval time.Duration

	// AutoMaintain enables the background maintenance task.
	// Defaults to true.
	AutoMaintain bool

	// Debug enables verbose logging of queue transitions and records
	// service communications.
	Debug bool

	// DebugLogPath is the path to write debug logs.
	// Defaults to stderr if empty.
	DebugLogPath string
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	hostname, _ := os.Hostname()
	return Config{
		LocalPath:           store.QueueDBPath(),
		DeviceID:            hostname,
		CommitTimeout:       DefaultCommitTimeout,
		MaxAttempts:         DefaultMaxAttempts,
		RetainDays:          DefaultRetainDays,
		MaintenanceInterval: DefaultMaintenanceInterval,
		AutoMaintain:        true,
	}
}

// ConfigFromEnv reads configuration from environment variables.
//
//	FIELDSYNC_DB_PATH      → LocalPath
//	FIELDSYNC_DATABASE_URL → DatabaseURL
//	RECORDS_API_URL        → RecordsURL
//	RECORDS_API_KEY        → APIKey
//	FIELDSYNC_DEVICE_ID    → DeviceID
//	FIELDSYNC_MAX_ATTEMPTS → MaxAttempts
//	FIELDSYNC_RETAIN_DAYS  → RetainDays
//	FIELDSYNC_DEBUG        → Debug (any non-empty value enables)
//	FIELDSYNC_DEBUG_LOG    → DebugLogPath
func ConfigFromEnv() Config {
	cfg := Config{
		LocalPath:    os.Getenv("FIELDSYNC_DB_PATH"),
		DatabaseURL:  os.Getenv("FIELDSYNC_DATABASE_URL"),
		RecordsURL:   os.Getenv("RECORDS_API_URL"),
		APIKey:       os.Getenv("RECORDS_API_KEY"),
		DeviceID:     os.Getenv("FIELDSYNC_DEVICE_ID"),
		Debug:        os.Getenv("FIELDSYNC_DEBUG") != "",
		DebugLogPath: os.Getenv("FIELDSYNC_DEBUG_LOG"),
	}
	if v := os.Getenv("FIELDSYNC_MAX_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxAttempts = n
		}
	}
	if v := os.Getenv("FIELDSYNC_RETAIN_DAYS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RetainDays = n
		}
	}
	return cfg
}

// Validate checks the configuration for errors.
// Returns *ValidationError for invalid fields.
func (c *Config) Validate() error {
	if c.LocalPath == "" && c.DatabaseURL == "" {
		return &ValidationError{Field: "LocalPath", Message: "required: path to SQLite queue database"}
	}
	if c.RecordsURL != "" && c.APIKey == "" {
		return &ValidationError{Field: "APIKey", Message: "required when RecordsURL is set"}
	}
	if c.CommitTimeout < 0 {
		return &ValidationError{Field: "CommitTimeout", Message: "must be non-negative"}
	}
	if c.MaxAttempts < 0 {
		return &ValidationError{Field: "MaxAttempts", Message: "must be non-negative"}
	}
	if c.RetainDays < 0 {
		return &ValidationError{Field: "RetainDays", Message: "must be non-negative"}
	}
	if c.MaintenanceInterval < 0 {
		return &ValidationError{Field: "MaintenanceInterval", Message: "must be non-negative"}
	}
	return nil
}

// IsOffline returns true if the client operates in offline-only mode.
// Offline mode is determined by RecordsURL being empty.
func (c *Config) IsOffline() bool {
	return c.RecordsURL == ""
}

// WithDefaults fills in default values for unset fields.
func (c Config) WithDefaults() Config {
	defaults := DefaultConfig()

	if c.LocalPath == "" {
		c.LocalPath = defaults.LocalPath
	}
	if c.DeviceID == "" {
		c.DeviceID = defaults.DeviceID
	}
	if c.CommitTimeout == 0 {
		c.CommitTimeout = defaults.CommitTimeout
	}
	if c.MaxAttempts == 0 {
		c.MaxAttempts = defaults.MaxAttempts
	}
	if c.RetainDays == 0 {
		c.RetainDays = defaults.RetainDays
	}
	if c.MaintenanceInterval == 0 {
		c.MaintenanceInterval = defaults.MaintenanceInterval
	}
	return c
}
