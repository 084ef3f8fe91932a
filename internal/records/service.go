package records

import (
	"context"
	"errors"
	"log/slog"

	"dataledger/internal/encryption"
	"dataledger/pkg/domain"
	dErrors "dataledger/pkg/domain-errors"
	audit "dataledger/pkg/platform/audit"
	"dataledger/pkg/platform/sentinel"
	pstrings "dataledger/pkg/platform/strings"
	"dataledger/pkg/requestcontext"
)

// maxRecordAge bounds the clear age predicate field.
const maxRecordAge = 150

// Service orchestrates record lifecycle: submission, consent updates and
// terminal revocation. All mutations are owner-gated.
type Service struct {
	store   Store
	auditor audit.Publisher
	logger  *slog.Logger
}

func NewService(store Store, auditor audit.Publisher, logger *slog.Logger) *Service {
	if auditor == nil {
		auditor = audit.NopPublisher{}
	}
	return &Service{store: store, auditor: auditor, logger: logger}
}

// SubmitRequest carries a new record's fields. FieldHandles arrive already
// sealed by the external record store; the first handle is the metric that
// aggregate queries accumulate.
type SubmitRequest struct {
	Owner        domain.OwnerID
	Category     string
	Age          int
	ConsentLevel domain.ConsentLevel
	FieldHandles []encryption.Ciphertext
}

// Submit registers a new active record and returns its index position.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (domain.RecordID, error) {
	if req.Owner.IsNil() {
		return 0, dErrors.New(dErrors.CodeInvalidInput, "owner id is required")
	}
	category := pstrings.NormalizeCategory(req.Category)
	if category == "" {
		return 0, dErrors.New(dErrors.CodeInvalidInput, "category is required")
	}
	if req.Age < 0 || req.Age > maxRecordAge {
		return 0, dErrors.Newf(dErrors.CodeInvalidInput, "age must be within [0,%d]", maxRecordAge)
	}
	if !req.ConsentLevel.Valid() {
		return 0, dErrors.New(dErrors.CodeInvalidInput, "consent level must be aggregate_only or individual_allowed")
	}
	if len(req.FieldHandles) == 0 {
		return 0, dErrors.New(dErrors.CodeInvalidInput, "at least one encrypted field handle is required")
	}

	record := &Record{
		OwnerID:      req.Owner,
		Category:     category,
		Age:          req.Age,
		ConsentLevel: req.ConsentLevel,
		FieldHandles: req.FieldHandles,
		Active:       true,
		CreatedAt:    requestcontext.Now(ctx),
	}
	id, err := s.store.Append(ctx, record)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to store record")
	}

	if err := s.auditor.Emit(ctx, audit.Event{
		Action:    audit.ActionRecordSubmitted,
		ActorID:   req.Owner.String(),
		OwnerID:   req.Owner.String(),
		RecordID:  id.String(),
		RequestID: requestcontext.RequestID(ctx),
	}); err != nil {
		return 0, err
	}
	return id, nil
}

// SetConsent updates a record's consent level. Owner-only, active-only.
func (s *Service) SetConsent(ctx context.Context, id domain.RecordID, caller domain.OwnerID, level domain.ConsentLevel) error {
	_, err := s.store.Execute(ctx, id,
		func(r *Record) error {
			if r.OwnerID != caller {
				return dErrors.New(dErrors.CodeForbidden, "only the record owner may update consent")
			}
			return r.CanSetConsent(level)
		},
		func(r *Record) {
			r.ApplySetConsent(level)
		},
	)
	if err != nil {
		return wrapRecordErr(err)
	}

	return s.auditor.Emit(ctx, audit.Event{
		Action:    audit.ActionConsentUpdated,
		ActorID:   caller.String(),
		OwnerID:   caller.String(),
		RecordID:  id.String(),
		Decision:  string(level),
		RequestID: requestcontext.RequestID(ctx),
	})
}

// Revoke permanently deactivates a record. Owner-only, terminal: the record
// is excluded from every future query and cannot be reactivated.
func (s *Service) Revoke(ctx context.Context, id domain.RecordID, caller domain.OwnerID) error {
	_, err := s.store.Execute(ctx, id,
		func(r *Record) error {
			if r.OwnerID != caller {
				return dErrors.New(dErrors.CodeForbidden, "only the record owner may revoke")
			}
			return r.CanRevoke()
		},
		func(r *Record) {
			r.ApplyRevoke()
		},
	)
	if err != nil {
		return wrapRecordErr(err)
	}

	return s.auditor.Emit(ctx, audit.Event{
		Action:    audit.ActionRecordRevoked,
		ActorID:   caller.String(),
		OwnerID:   caller.String(),
		RecordID:  id.String(),
		RequestID: requestcontext.RequestID(ctx),
	})
}

// Get returns one record. The owner sees everything; other callers get the
// record with its opaque handles, which is safe because handles reveal
// nothing without the decryption capability.
func (s *Service) Get(ctx context.Context, id domain.RecordID) (*Record, error) {
	record, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, wrapRecordErr(err)
	}
	return record, nil
}

// Count reports the index size (revoked positions included).
func (s *Service) Count(ctx context.Context) (uint64, error) {
	count, err := s.store.Count(ctx)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to count records")
	}
	return count, nil
}

// Scan returns a clamped window of the index in position order. The oracle's
// read path.
func (s *Service) Scan(ctx context.Context, start domain.RecordID, limit int) ([]*Record, error) {
	out, err := s.store.Scan(ctx, start, limit)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to scan records")
	}
	return out, nil
}

func wrapRecordErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "record not found")
	default:
		return err
	}
}
