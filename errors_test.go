package fieldsync

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestInvalidPayloadError_Unwrap(t *testing.T) {
	err := error(&InvalidPayloadError{
		EntityType:    EntityCase,
		MissingFields: []string{"caseNumber", "title"},
	})

	if !errors.Is(err, ErrInvalidPayload) {
		t.Error("should unwrap to ErrInvalidPayload")
	}
	msg := err.Error()
	if !strings.Contains(msg, "case") || !strings.Contains(msg, "caseNumber, title") {
		t.Errorf("unexpected message: %q", msg)
	}
}

func TestInvalidPayloadError_ReasonTakesPrecedence(t *testing.T) {
	err := &InvalidPayloadError{EntityType: EntityPerson, Reason: "not a JSON object"}
	if !strings.Contains(err.Error(), "not a JSON object") {
		t.Errorf("unexpected message: %q", err.Error())
	}
}

func TestTransitionError_Unwrap(t *testing.T) {
	err := error(&TransitionError{ID: "abc", From: StatusPending, To: StatusCompleted})

	if !errors.Is(err, ErrInvalidTransition) {
		t.Error("should unwrap to ErrInvalidTransition")
	}
	var te *TransitionError
	if !errors.As(err, &te) {
		t.Fatal("should extract via errors.As")
	}
	if te.From != StatusPending || te.To != StatusCompleted {
		t.Errorf("unexpected transition: %s to %s", te.From, te.To)
	}
	if !strings.Contains(err.Error(), "abc") {
		t.Errorf("message should name the entry, got %q", err.Error())
	}
}

func TestCommitError_UnwrapsInnerError(t *testing.T) {
	inner := context.DeadlineExceeded
	err := error(&CommitError{
		EntityType: EntityCase,
		Operation:  OpUpdate,
		EntityID:   "case-1",
		Err:        inner,
	})

	if !errors.Is(err, context.DeadlineExceeded) {
		t.Error("should unwrap to the inner error")
	}
	msg := err.Error()
	if !strings.Contains(msg, "update") || !strings.Contains(msg, "case/case-1") {
		t.Errorf("unexpected message: %q", msg)
	}
}

func TestValidationError_Message(t *testing.T) {
	err := &ValidationError{Field: "APIKey", Message: "required when RecordsURL is set"}
	if !strings.Contains(err.Error(), "APIKey") {
		t.Errorf("message should name the field, got %q", err.Error())
	}
}
