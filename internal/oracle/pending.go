package oracle

import (
	"context"
	"sync"
	"time"

	platformredis "dataledger/internal/platform/redis"
	"dataledger/pkg/domain"
)

// PendingMarker tracks aggregate queries waiting on the external decryption
// relayer. Markers are best-effort visibility for relayers and operators;
// the decryption protocol itself is enforced by the query result state, not
// by the marker.
type PendingMarker interface {
	Mark(ctx context.Context, id domain.QueryID, ttl time.Duration) error
	Clear(ctx context.Context, id domain.QueryID) error
	Pending(ctx context.Context, id domain.QueryID) (bool, error)
}

const pendingKeyPrefix = "dataledger:pending_decrypt:"

// RedisPending marks pending decryptions in Redis with a TTL so abandoned
// requests age out on their own.
type RedisPending struct {
	client *platformredis.Client
}

func NewRedisPending(client *platformredis.Client) *RedisPending {
	return &RedisPending{client: client}
}

func (p *RedisPending) Mark(ctx context.Context, id domain.QueryID, ttl time.Duration) error {
	return p.client.Set(ctx, pendingKeyPrefix+id.String(), "1", ttl).Err()
}

func (p *RedisPending) Clear(ctx context.Context, id domain.QueryID) error {
	return p.client.Del(ctx, pendingKeyPrefix+id.String()).Err()
}

func (p *RedisPending) Pending(ctx context.Context, id domain.QueryID) (bool, error) {
	n, err := p.client.Exists(ctx, pendingKeyPrefix+id.String()).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// MemoryPending is the in-process fallback used when Redis is not
// configured, and in tests.
type MemoryPending struct {
	mu      sync.Mutex
	expires map[domain.QueryID]time.Time
}

func NewMemoryPending() *MemoryPending {
	return &MemoryPending{expires: make(map[domain.QueryID]time.Time)}
}

func (p *MemoryPending) Mark(ctx context.Context, id domain.QueryID, ttl time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.expires[id] = time.Now().Add(ttl)
	return nil
}

func (p *MemoryPending) Clear(ctx context.Context, id domain.QueryID) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.expires, id)
	return nil
}

func (p *MemoryPending) Pending(ctx context.Context, id domain.QueryID) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	deadline, ok := p.expires[id]
	if !ok {
		return false, nil
	}
	if time.Now().After(deadline) {
		delete(p.expires, id)
		return false, nil
	}
	return true, nil
}
