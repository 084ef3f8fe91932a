// Package records implements the record index: the registry of contributed
// encrypted records the query oracle and verification registry read. The
// engine reads only the clear predicate fields (age, category); payload
// fields stay opaque ciphertext handles.
package records

import (
	"time"

	"dataledger/internal/encryption"
	"dataledger/pkg/domain"
	dErrors "dataledger/pkg/domain-errors"
)

// Record is the aggregate root for one contributed record.
//
// Invariants:
//   - OwnerID is set at submission and immutable
//   - ConsentLevel is mutable only by the owner while the record is active
//   - Active flips to false on revoke and never back: a revoked record is
//     permanently excluded from every future query
type Record struct {
	ID           domain.RecordID         `json:"id"`
	OwnerID      domain.OwnerID          `json:"owner_id"`
	Category     string                  `json:"category"`
	Age          int                     `json:"age"`
	ConsentLevel domain.ConsentLevel     `json:"consent_level"`
	FieldHandles []encryption.Ciphertext `json:"field_handles"`
	Active       bool                    `json:"active"`
	CreatedAt    time.Time               `json:"created_at"`
}

// MetricHandle is the encrypted value aggregate queries accumulate.
func (r *Record) MetricHandle() encryption.Ciphertext {
	if len(r.FieldHandles) == 0 {
		return ""
	}
	return r.FieldHandles[0]
}

// Matches evaluates the clear-text query predicate. Category "" matches all
// categories.
func (r *Record) Matches(minAge, maxAge int, category string) bool {
	if !r.Active {
		return false
	}
	if r.Age < minAge || r.Age > maxAge {
		return false
	}
	return category == "" || r.Category == category
}

// ConsentsToIndividual reports whether the record may surface in an
// individual result list.
func (r *Record) ConsentsToIndividual() bool {
	return r.Active && r.ConsentLevel == domain.ConsentIndividualAllowed
}

// CanSetConsent checks the consent-update transition.
func (r *Record) CanSetConsent(level domain.ConsentLevel) error {
	if !level.Valid() {
		return dErrors.New(dErrors.CodeInvalidInput, "consent level must be aggregate_only or individual_allowed")
	}
	if !r.Active {
		return dErrors.New(dErrors.CodeConflict, "record is revoked")
	}
	return nil
}

// ApplySetConsent updates the consent level. Call CanSetConsent first.
func (r *Record) ApplySetConsent(level domain.ConsentLevel) {
	r.ConsentLevel = level
}

// CanRevoke checks the revoke transition.
func (r *Record) CanRevoke() error {
	if !r.Active {
		return dErrors.New(dErrors.CodeConflict, "record is already revoked")
	}
	return nil
}

// ApplyRevoke deactivates the record. Terminal.
func (r *Record) ApplyRevoke() {
	r.Active = false
}
