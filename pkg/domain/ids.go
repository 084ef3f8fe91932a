// Package domain defines the shared identifier and value types used across
// the record index, query oracle, settlement and verification modules.
// Typed UUIDs keep owner, requester and query identifiers from being
// accidentally interchanged at compile time.
package domain

import (
	"fmt"
	"strconv"

	"github.com/google/uuid"

	dErrors "dataledger/pkg/domain-errors"
)

// OwnerID identifies a record contributor. Earnings and reputation are keyed
// by owner, not by record.
type OwnerID uuid.UUID

// RequesterID identifies a query consumer.
type RequesterID uuid.UUID

// QueryID identifies a single executed query and its result.
type QueryID uuid.UUID

// RecordID is a record's position in the index. Scan windows are expressed as
// half-open ranges over these positions, so they are sequential rather than
// random.
type RecordID uint64

func (id OwnerID) String() string     { return uuid.UUID(id).String() }
func (id RequesterID) String() string { return uuid.UUID(id).String() }
func (id QueryID) String() string     { return uuid.UUID(id).String() }
func (id RecordID) String() string    { return strconv.FormatUint(uint64(id), 10) }

func (id OwnerID) IsNil() bool     { return uuid.UUID(id) == uuid.Nil }
func (id RequesterID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id QueryID) IsNil() bool     { return uuid.UUID(id) == uuid.Nil }

// Text marshaling keeps the UUID-backed ids readable in JSON payloads and
// log output instead of serializing as raw byte arrays.

func (id OwnerID) MarshalText() ([]byte, error)     { return []byte(id.String()), nil }
func (id RequesterID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }
func (id QueryID) MarshalText() ([]byte, error)     { return []byte(id.String()), nil }

func (id *OwnerID) UnmarshalText(b []byte) error {
	parsed, err := ParseOwnerID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func (id *RequesterID) UnmarshalText(b []byte) error {
	parsed, err := ParseRequesterID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func (id *QueryID) UnmarshalText(b []byte) error {
	parsed, err := ParseQueryID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// NewQueryID allocates a fresh query identifier.
func NewQueryID() QueryID { return QueryID(uuid.New()) }

func parseUUID(raw, kind string) (uuid.UUID, error) {
	if raw == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" is required")
	}
	parsed, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, fmt.Sprintf("invalid %s: %q", kind, raw))
	}
	if parsed == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" must not be the nil UUID")
	}
	return parsed, nil
}

// ParseOwnerID validates and parses an owner identifier. Empty strings, bad
// formats and the nil UUID are rejected at the trust boundary.
func ParseOwnerID(raw string) (OwnerID, error) {
	parsed, err := parseUUID(raw, "owner id")
	if err != nil {
		return OwnerID{}, err
	}
	return OwnerID(parsed), nil
}

// ParseRequesterID validates and parses a requester identifier.
func ParseRequesterID(raw string) (RequesterID, error) {
	parsed, err := parseUUID(raw, "requester id")
	if err != nil {
		return RequesterID{}, err
	}
	return RequesterID(parsed), nil
}

// ParseQueryID validates and parses a query identifier.
func ParseQueryID(raw string) (QueryID, error) {
	parsed, err := parseUUID(raw, "query id")
	if err != nil {
		return QueryID{}, err
	}
	return QueryID(parsed), nil
}

// ParseRecordID parses a decimal record position.
func ParseRecordID(raw string) (RecordID, error) {
	if raw == "" {
		return 0, dErrors.New(dErrors.CodeInvalidInput, "record id is required")
	}
	n, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, dErrors.New(dErrors.CodeInvalidInput, fmt.Sprintf("invalid record id: %q", raw))
	}
	return RecordID(n), nil
}
