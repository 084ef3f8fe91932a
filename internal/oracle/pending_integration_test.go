//go:build integration

package oracle_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"dataledger/internal/oracle"
	platformredis "dataledger/internal/platform/redis"
	"dataledger/pkg/domain"
	"dataledger/pkg/testutil/containers"
)

type RedisPendingSuite struct {
	suite.Suite
	redis   *containers.RedisContainer
	pending *oracle.RedisPending
	ctx     context.Context
}

func TestRedisPendingSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisPendingSuite))
}

func (s *RedisPendingSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.redis = mgr.GetRedis(s.T())
	s.pending = oracle.NewRedisPending(&platformredis.Client{Client: s.redis.Client})
	s.ctx = context.Background()
}

func (s *RedisPendingSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(s.ctx))
}

func (s *RedisPendingSuite) TestMarkAndClear() {
	queryID := domain.NewQueryID()

	pending, err := s.pending.Pending(s.ctx, queryID)
	s.Require().NoError(err)
	s.False(pending)

	s.Require().NoError(s.pending.Mark(s.ctx, queryID, time.Minute))

	pending, err = s.pending.Pending(s.ctx, queryID)
	s.Require().NoError(err)
	s.True(pending)

	// An unrelated query stays unmarked.
	other, err := s.pending.Pending(s.ctx, domain.NewQueryID())
	s.Require().NoError(err)
	s.False(other)

	s.Require().NoError(s.pending.Clear(s.ctx, queryID))

	pending, err = s.pending.Pending(s.ctx, queryID)
	s.Require().NoError(err)
	s.False(pending)
}

func (s *RedisPendingSuite) TestMarkerExpires() {
	queryID := domain.NewQueryID()
	s.Require().NoError(s.pending.Mark(s.ctx, queryID, 100*time.Millisecond))

	s.Require().Eventually(func() bool {
		pending, err := s.pending.Pending(s.ctx, queryID)
		return err == nil && !pending
	}, 3*time.Second, 50*time.Millisecond)
}
