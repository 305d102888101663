package fieldsync

import (
	"errors"
	"fmt"
	"strings"
)

// Common errors returned by the fieldsync queue.
var (
	// ErrNotFound is returned when a queue entry id is unknown.
	ErrNotFound = errors.New("queue entry not found")

	// ErrStoreClosed is returned when operating on a closed store.
	ErrStoreClosed = errors.New("store is closed")

	// ErrUnsupportedEntityType is returned when an entity type outside
	// the closed set is validated or committed.
	ErrUnsupportedEntityType = errors.New("unsupported entity type")

	// ErrInvalidPayload is returned when a payload fails structural
	// validation. Extract details via errors.As with *InvalidPayloadError.
	ErrInvalidPayload = errors.New("invalid payload")

	// ErrInvalidTransition is returned when a status change violates the
	// entry state machine (for example completing an entry that was never
	// claimed for processing).
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrInvalidOperation is returned when an operation is not one of
	// create, update, delete.
	ErrInvalidOperation = errors.New("invalid operation")

	// ErrOffline is returned when a drain is attempted without any commit
	// collaborator configured.
	ErrOffline = errors.New("no commit collaborator configured")

	// ErrClientClosed is returned when operating on a closed client.
	ErrClientClosed = errors.New("client is closed")
)

// ValidationError is returned when configuration validation fails.
// Extractable via errors.As().
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

// InvalidPayloadError is returned when a queued payload lacks the
// minimum fields its entity type requires, or is not a JSON object at
// all. Extractable via errors.As(); unwraps to ErrInvalidPayload.
type InvalidPayloadError struct {
	EntityType    EntityType
	MissingFields []string
	Reason        string
}

func (e *InvalidPayloadError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("invalid %s payload: %s", e.EntityType, e.Reason)
	}
	return fmt.Sprintf("invalid %s payload: missing required fields: %s",
		e.EntityType, strings.Join(e.MissingFields, ", "))
}

func (e *InvalidPayloadError) Unwrap() error { return ErrInvalidPayload }

// TransitionError is returned when a guarded status update is applied
// to an entry that is not in the required state. Unwraps to
// ErrInvalidTransition.
type TransitionError struct {
	ID   string
	From Status
	To   Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("entry %s: %s → %s: %v", e.ID, e.From, e.To, ErrInvalidTransition)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

// CommitError is returned when the commit collaborator rejects or fails
// to apply a change. Supports Unwrap() so callers can detect timeouts
// via errors.Is(err, context.DeadlineExceeded).
type CommitError struct {
	EntityType EntityType
	Operation  Operation
	EntityID   string
	Err        error
}

func (e *CommitError) Error() string {
	return fmt.Sprintf("commit %s %s/%s: %v", e.Operation, e.EntityType, e.EntityID, e.Err)
}

func (e *CommitError) Unwrap() error { return e.Err }
