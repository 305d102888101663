package fieldsync

import (
	"encoding/json"
	"time"
)

// EntityType identifies which domain record a queue entry targets. It
// determines both the validation rules and the commit collaborator that
// apply to the entry's payload.
type EntityType string

const (
	EntityCase       EntityType = "case"
	EntityPerson     EntityType = "person"
	EntityEvidence   EntityType = "evidence"
	EntityCasePerson EntityType = "casePerson"
	EntityVehicle    EntityType = "vehicle"
	EntityAlert      EntityType = "alert"
)

// ValidEntityTypes returns all entity types the queue can carry.
func ValidEntityTypes() []EntityType {
	return []EntityType{
		EntityCase,
		EntityPerson,
		EntityEvidence,
		EntityCasePerson,
		EntityVehicle,
		EntityAlert,
	}
}

// IsValid checks if the entity type is part of the closed set.
func (e EntityType) IsValid() bool {
	for _, valid := range ValidEntityTypes() {
		if e == valid {
			return true
		}
	}
	return false
}

// Operation is the kind of change a queue entry replays.
type Operation string

const (
	OpCreate Operation = "create"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

// IsValid checks if the operation is one of create, update, delete.
func (o Operation) IsValid() bool {
	switch o {
	case OpCreate, OpUpdate, OpDelete:
		return true
	}
	return false
}

// Status is the lifecycle state of a queue entry.
//
// Transitions: pending → processing → {completed | failed};
// failed → pending (retry) → processing → {completed | failed}.
// No transition skips processing.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// PayloadVersion is the schema version written to new entries. Payload
// shapes are versioned per entity type so older queued entries remain
// readable as record schemas evolve.
const PayloadVersion = 1

// SystemOfficerID is the audit identity for sync-originated writes.
// Drains run on behalf of the system, not the officer who queued the
// change, so every audit event the engine emits carries this identity.
const SystemOfficerID = "system"

// Audit constants for sync-originated audit events.
const (
	AuditEntityType = "syncQueue"
	AuditActionSync = "sync"
)

// SyncQueueEntry is one queued change awaiting or having completed
// synchronization with the authoritative records service.
//
// EntityType, EntityID, Operation and Payload are immutable after
// enqueue; only Status, Attempts, Error and SyncedAt mutate.
type SyncQueueEntry struct {
	ID             string          `json:"id"`
	EntityType     EntityType      `json:"entity_type"`
	EntityID       string          `json:"entity_id"`
	Operation      Operation       `json:"operation"`
	Payload        json.RawMessage `json:"payload"`
	PayloadVersion int             `json:"payload_version"`
	Status         Status          `json:"status"`
	Attempts       int             `json:"attempts"`
	Error          string          `json:"error,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	SyncedAt       *time.Time      `json:"synced_at,omitempty"`
}

// EntryUpdate describes a partial update to a queue entry. Nil fields
// are left unchanged; Error set to an empty string clears the stored
// failure message.
type EntryUpdate struct {
	Status   *Status
	Attempts *int
	Error    *string
	SyncedAt *time.Time
}

// EntryError records one entry's failure within a drain.
type EntryError struct {
	EntryID string `json:"entry_id"`
	Error   string `json:"error"`
}

// DrainResult aggregates the outcome of one drain over a batch of
// entries. Success is true only when no entry failed.
type DrainResult struct {
	Success bool         `json:"success"`
	Synced  int          `json:"synced"`
	Failed  int          `json:"failed"`
	Errors  []EntryError `json:"errors"`
}

// SyncStats is a point-in-time health snapshot of the queue.
// LastSyncAt is nil when no entry has ever completed.
type SyncStats struct {
	Pending    int        `json:"pending"`
	Failed     int        `json:"failed"`
	LastSyncAt *time.Time `json:"last_sync_at,omitempty"`
}

// AuditEvent is one audit record emitted per commit attempt.
type AuditEvent struct {
	EntityType string `json:"entity_type"`
	EntityID   string `json:"entity_id"`
	OfficerID  string `json:"officer_id"`
	Action     string `json:"action"`
	Success    bool   `json:"success"`
	Details    string `json:"details,omitempty"`
}

// HealthStatus reports client health for operator dashboards.
type HealthStatus struct {
	Healthy          bool   `json:"healthy"`
	StoreOK          bool   `json:"store_ok"`
	RecordsReachable bool   `json:"records_reachable"`
	Error            string `json:"error,omitempty"`
}
