package records

import (
	"context"
	"sync"

	"dataledger/internal/encryption"
	"dataledger/pkg/domain"
	"dataledger/pkg/platform/sentinel"
)

// MemoryStore keeps the index as a position-ordered slice. Positions are
// 1-based so they line up with the PostgreSQL BIGSERIAL column.
type MemoryStore struct {
	mu      sync.RWMutex
	records []*Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Append(ctx context.Context, record *Record) (domain.RecordID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := domain.RecordID(len(s.records) + 1)
	stored := *record
	stored.ID = id
	stored.FieldHandles = append([]encryption.Ciphertext(nil), record.FieldHandles...)
	s.records = append(s.records, &stored)
	return id, nil
}

func (s *MemoryStore) Get(ctx context.Context, id domain.RecordID) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.at(id)
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *record
	return &cp, nil
}

func (s *MemoryStore) Count(ctx context.Context) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return uint64(len(s.records)), nil
}

func (s *MemoryStore) Scan(ctx context.Context, start domain.RecordID, limit int) ([]*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 || start > domain.RecordID(len(s.records)) {
		return nil, nil
	}
	if start < 1 {
		start = 1
	}
	end := uint64(start) + uint64(limit) - 1
	if end > uint64(len(s.records)) {
		end = uint64(len(s.records))
	}
	out := make([]*Record, 0, end-uint64(start)+1)
	for pos := uint64(start); pos <= end; pos++ {
		cp := *s.records[pos-1]
		out = append(out, &cp)
	}
	return out, nil
}

func (s *MemoryStore) Execute(ctx context.Context, id domain.RecordID, validate func(*Record) error, mutate func(*Record)) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.at(id)
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if err := validate(record); err != nil {
		return nil, err
	}
	mutate(record)
	cp := *record
	return &cp, nil
}

// at must be called holding the lock.
func (s *MemoryStore) at(id domain.RecordID) (*Record, bool) {
	if id < 1 || uint64(id) > uint64(len(s.records)) {
		return nil, false
	}
	return s.records[id-1], true
}
