package verification

import (
	"context"
	"sync"

	"dataledger/pkg/domain"
	"dataledger/pkg/platform/sentinel"
)

// MemoryStore keeps stakes and reputation behind one mutex.
type MemoryStore struct {
	mu         sync.RWMutex
	stakes     map[domain.RecordID]*Stake
	reputation map[domain.OwnerID]int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		stakes:     make(map[domain.RecordID]*Stake),
		reputation: make(map[domain.OwnerID]int),
	}
}

func (s *MemoryStore) Create(ctx context.Context, stake *Stake) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.stakes[stake.RecordID]; ok {
		return sentinel.ErrConflict
	}
	cp := cloneStake(stake)
	s.stakes[stake.RecordID] = cp
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, recordID domain.RecordID) (*Stake, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stake, ok := s.stakes[recordID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return cloneStake(stake), nil
}

func (s *MemoryStore) Execute(
	ctx context.Context,
	recordID domain.RecordID,
	validate func(*Stake) error,
	mutate func(*Stake),
) (*Stake, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stake, ok := s.stakes[recordID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if err := validate(stake); err != nil {
		return nil, err
	}
	mutate(stake)
	return cloneStake(stake), nil
}

func (s *MemoryStore) Reputation(ctx context.Context, owner domain.OwnerID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reputation[owner], nil
}

func (s *MemoryStore) AdjustReputation(ctx context.Context, owner domain.OwnerID, delta int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := ClampReputation(s.reputation[owner], delta)
	s.reputation[owner] = next
	return next, nil
}

func cloneStake(stake *Stake) *Stake {
	cp := *stake
	cp.Claims = append([]string(nil), stake.Claims...)
	if stake.DisputeOpenedAt != nil {
		t := *stake.DisputeOpenedAt
		cp.DisputeOpenedAt = &t
	}
	if stake.DisputeDeadline != nil {
		t := *stake.DisputeDeadline
		cp.DisputeDeadline = &t
	}
	return &cp
}
