package fieldsync

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestValidatePayload_RequiredFields(t *testing.T) {
	tests := []struct {
		name        string
		entityType  EntityType
		payload     string
		wantMissing []string
	}{
		{
			name:       "case valid",
			entityType: EntityCase,
			payload:    `{"caseNumber":"HQ-2025-000099","title":"Test","officerId":"officer-1"}`,
		},
		{
			name:        "case empty object",
			entityType:  EntityCase,
			payload:     `{}`,
			wantMissing: []string{"caseNumber", "title", "officerId"},
		},
		{
			name:        "case blank title",
			entityType:  EntityCase,
			payload:     `{"caseNumber":"HQ-2025-000099","title":"","officerId":"officer-1"}`,
			wantMissing: []string{"title"},
		},
		{
			name:       "person valid",
			entityType: EntityPerson,
			payload:    `{"nationalId":"19850101-1234","firstName":"Anna","lastName":"Berg"}`,
		},
		{
			name:        "person missing names",
			entityType:  EntityPerson,
			payload:     `{"nationalId":"19850101-1234"}`,
			wantMissing: []string{"firstName", "lastName"},
		},
		{
			name:       "evidence valid",
			entityType: EntityEvidence,
			payload:    `{"caseId":"case-1","type":"photo","description":"scene overview"}`,
		},
		{
			name:        "evidence null field",
			entityType:  EntityEvidence,
			payload:     `{"caseId":"case-1","type":null,"description":"x"}`,
			wantMissing: []string{"type"},
		},
		{
			name:       "casePerson valid",
			entityType: EntityCasePerson,
			payload:    `{"caseId":"case-1","personId":"person-2","role":"witness"}`,
		},
		{
			name:        "casePerson missing role",
			entityType:  EntityCasePerson,
			payload:     `{"caseId":"case-1","personId":"person-2"}`,
			wantMissing: []string{"role"},
		},
		{
			name:       "vehicle valid",
			entityType: EntityVehicle,
			payload:    `{"licensePlate":"ABC123","make":"Volvo"}`,
		},
		{
			name:        "vehicle missing make",
			entityType:  EntityVehicle,
			payload:     `{"licensePlate":"ABC123"}`,
			wantMissing: []string{"make"},
		},
		{
			name:       "alert valid",
			entityType: EntityAlert,
			payload:    `{"alertType":"wanted","personId":"person-3"}`,
		},
		{
			name:        "alert empty",
			entityType:  EntityAlert,
			payload:     `{}`,
			wantMissing: []string{"alertType", "personId"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePayload(tt.entityType, json.RawMessage(tt.payload))

			if len(tt.wantMissing) == 0 {
				if err != nil {
					t.Fatalf("expected valid payload, got %v", err)
				}
				return
			}

			var ipe *InvalidPayloadError
			if !errors.As(err, &ipe) {
				t.Fatalf("expected *InvalidPayloadError, got %v", err)
			}
			if !errors.Is(err, ErrInvalidPayload) {
				t.Error("should unwrap to ErrInvalidPayload")
			}
			if len(ipe.MissingFields) != len(tt.wantMissing) {
				t.Fatalf("expected missing %v, got %v", tt.wantMissing, ipe.MissingFields)
			}
			for i, field := range tt.wantMissing {
				if ipe.MissingFields[i] != field {
					t.Errorf("expected missing %v, got %v", tt.wantMissing, ipe.MissingFields)
					break
				}
			}
		})
	}
}

func TestValidatePayload_UnknownEntityType(t *testing.T) {
	err := ValidatePayload(EntityType("spaceship"), json.RawMessage(`{}`))
	if !errors.Is(err, ErrUnsupportedEntityType) {
		t.Errorf("expected ErrUnsupportedEntityType, got %v", err)
	}
}

func TestValidatePayload_NotAJSONObject(t *testing.T) {
	for _, payload := range []string{`[]`, `"text"`, `42`, `{broken`} {
		err := ValidatePayload(EntityCase, json.RawMessage(payload))
		var ipe *InvalidPayloadError
		if !errors.As(err, &ipe) {
			t.Errorf("payload %s: expected *InvalidPayloadError, got %v", payload, err)
			continue
		}
		if ipe.Reason == "" {
			t.Errorf("payload %s: expected a reason", payload)
		}
	}
}

func TestValidatePayload_ExtraFieldsAllowed(t *testing.T) {
	err := ValidatePayload(EntityVehicle, json.RawMessage(
		`{"licensePlate":"ABC123","make":"Volvo","model":"V70","color":"blue"}`))
	if err != nil {
		t.Errorf("extra fields should be accepted, got %v", err)
	}
}

func TestRegisterValidator_ReplacesBuiltin(t *testing.T) {
	// Restore the builtin afterwards so other tests see the default.
	defer RegisterValidator(EntityAlert, requireFields(EntityAlert, "alertType", "personId"))

	called := false
	RegisterValidator(EntityAlert, func(payload json.RawMessage) error {
		called = true
		return nil
	})

	if err := ValidatePayload(EntityAlert, json.RawMessage(`{}`)); err != nil {
		t.Fatalf("replacement validator should accept, got %v", err)
	}
	if !called {
		t.Error("replacement validator was not invoked")
	}
}
