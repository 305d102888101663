package fieldsync

import (
	"encoding/json"
	"fmt"
	"sync"
)

// ValidatorFunc checks that a payload carries the minimum fields its
// entity type requires to be committed. Validators are pure: no I/O,
// no store access.
type ValidatorFunc func(payload json.RawMessage) error

var validators = struct {
	mu    sync.RWMutex
	funcs map[EntityType]ValidatorFunc
}{
	funcs: map[EntityType]ValidatorFunc{},
}

// RegisterValidator installs the validator for an entity type,
// replacing any previous registration. Adding a new entity type to the
// queue means registering one validator, not editing a central switch.
func RegisterValidator(entityType EntityType, fn ValidatorFunc) {
	if entityType == "" || fn == nil {
		return
	}
	validators.mu.Lock()
	defer validators.mu.Unlock()
	validators.funcs[entityType] = fn
}

// ValidatePayload runs the registered validator for the entity type.
// Unknown types fail with ErrUnsupportedEntityType; structurally
// invalid payloads fail with *InvalidPayloadError.
func ValidatePayload(entityType EntityType, payload json.RawMessage) error {
	validators.mu.RLock()
	fn, ok := validators.funcs[entityType]
	validators.mu.RUnlock()

	if !ok {
		return fmt.Errorf("%w: %q", ErrUnsupportedEntityType, entityType)
	}
	return fn(payload)
}

func init() {
	RegisterValidator(EntityCase, requireFields(EntityCase, "caseNumber", "title", "officerId"))
	RegisterValidator(EntityPerson, requireFields(EntityPerson, "nationalId", "firstName", "lastName"))
	RegisterValidator(EntityEvidence, requireFields(EntityEvidence, "caseId", "type", "description"))
	RegisterValidator(EntityCasePerson, requireFields(EntityCasePerson, "caseId", "personId", "role"))
	RegisterValidator(EntityVehicle, requireFields(EntityVehicle, "licensePlate", "make"))
	RegisterValidator(EntityAlert, requireFields(EntityAlert, "alertType", "personId"))
}

// requireFields builds a validator that demands the named fields be
// present and non-empty in a JSON object payload.
func requireFields(entityType EntityType, fields ...string) ValidatorFunc {
	return func(payload json.RawMessage) error {
		doc := map[string]any{}
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &doc); err != nil {
				return &InvalidPayloadError{EntityType: entityType, Reason: "not a JSON object"}
			}
		}

		var missing []string
		for _, field := range fields {
			if emptyValue(doc[field]) {
				missing = append(missing, field)
			}
		}
		if len(missing) > 0 {
			return &InvalidPayloadError{EntityType: entityType, MissingFields: missing}
		}
		return nil
	}
}

// emptyValue treats absent fields, nulls and blank strings as missing.
// Zero numbers and false are present values; a numeric id of 0 is the
// caller's problem, not a structural gap.
func emptyValue(v any) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return val == ""
	}
	return false
}
