package oracle

import (
	"context"
	"sync"

	"dataledger/pkg/domain"
	"dataledger/pkg/platform/sentinel"
)

// MemoryStore keeps query results in maps keyed by query id. Reads return
// copies so callers never alias stored state.
type MemoryStore struct {
	mu         sync.RWMutex
	aggregate  map[domain.QueryID]*QueryResult
	individual map[domain.QueryID]*IndividualQueryResult
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		aggregate:  make(map[domain.QueryID]*QueryResult),
		individual: make(map[domain.QueryID]*IndividualQueryResult),
	}
}

func (s *MemoryStore) SaveAggregate(ctx context.Context, result *QueryResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.aggregate[result.ID]; ok {
		return sentinel.ErrConflict
	}
	cp := *result
	s.aggregate[result.ID] = &cp
	return nil
}

func (s *MemoryStore) GetAggregate(ctx context.Context, id domain.QueryID) (*QueryResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result, ok := s.aggregate[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *result
	return &cp, nil
}

func (s *MemoryStore) ExecuteAggregate(
	ctx context.Context,
	id domain.QueryID,
	validate func(*QueryResult) error,
	mutate func(*QueryResult),
) (*QueryResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	result, ok := s.aggregate[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if err := validate(result); err != nil {
		return nil, err
	}
	mutate(result)
	cp := *result
	return &cp, nil
}

func (s *MemoryStore) SaveIndividual(ctx context.Context, result *IndividualQueryResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.individual[result.ID]; ok {
		return sentinel.ErrConflict
	}
	cp := *result
	cp.RecordIDs = append([]domain.RecordID(nil), result.RecordIDs...)
	s.individual[result.ID] = &cp
	return nil
}

func (s *MemoryStore) GetIndividual(ctx context.Context, id domain.QueryID) (*IndividualQueryResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result, ok := s.individual[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *result
	cp.RecordIDs = append([]domain.RecordID(nil), result.RecordIDs...)
	return &cp, nil
}
