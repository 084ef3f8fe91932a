//go:build integration

package records_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"dataledger/internal/encryption"
	"dataledger/internal/records"
	"dataledger/pkg/domain"
	"dataledger/pkg/platform/sentinel"
	"dataledger/pkg/testutil/containers"
)

type PostgresRecordsSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *records.PostgresStore
	ctx      context.Context
}

func TestPostgresRecordsSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresRecordsSuite))
}

func (s *PostgresRecordsSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.postgres = mgr.GetPostgres(s.T())
	s.store = records.NewPostgres(s.postgres.DB)
	s.ctx = context.Background()
}

func (s *PostgresRecordsSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(s.ctx, "records"))
}

func (s *PostgresRecordsSuite) append(age int) domain.RecordID {
	id, err := s.store.Append(s.ctx, &records.Record{
		OwnerID:      domain.OwnerID(uuid.New()),
		Category:     "cardiology",
		Age:          age,
		ConsentLevel: domain.ConsentAggregateOnly,
		FieldHandles: []encryption.Ciphertext{"h1", "h2"},
		Active:       true,
		CreatedAt:    time.Now().UTC(),
	})
	s.Require().NoError(err)
	return id
}

func (s *PostgresRecordsSuite) TestAppendAssignsSequentialIDs() {
	s.Equal(domain.RecordID(1), s.append(30))
	s.Equal(domain.RecordID(2), s.append(40))

	count, err := s.store.Count(s.ctx)
	s.Require().NoError(err)
	s.Equal(uint64(2), count)
}

func (s *PostgresRecordsSuite) TestGetRoundTrip() {
	id := s.append(45)

	got, err := s.store.Get(s.ctx, id)
	s.Require().NoError(err)
	s.Equal("cardiology", got.Category)
	s.Equal(45, got.Age)
	s.Equal([]encryption.Ciphertext{"h1", "h2"}, got.FieldHandles)
	s.True(got.Active)

	_, err = s.store.Get(s.ctx, 99)
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresRecordsSuite) TestScanWindows() {
	for i := 0; i < 5; i++ {
		s.append(30 + i)
	}

	out, err := s.store.Scan(s.ctx, 2, 3)
	s.Require().NoError(err)
	s.Require().Len(out, 3)
	s.Equal(domain.RecordID(2), out[0].ID)
	s.Equal(domain.RecordID(4), out[2].ID)

	out, err = s.store.Scan(s.ctx, 4, 10)
	s.Require().NoError(err)
	s.Len(out, 2)

	out, err = s.store.Scan(s.ctx, 100, 10)
	s.Require().NoError(err)
	s.Empty(out)
}

func (s *PostgresRecordsSuite) TestExecutePersistsRevocation() {
	id := s.append(30)

	updated, err := s.store.Execute(s.ctx, id,
		func(r *records.Record) error { return r.CanRevoke() },
		func(r *records.Record) { r.ApplyRevoke() })
	s.Require().NoError(err)
	s.False(updated.Active)

	got, err := s.store.Get(s.ctx, id)
	s.Require().NoError(err)
	s.False(got.Active)
}
