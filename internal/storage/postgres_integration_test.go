//go:build integration

package storage_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"cdigit/internal/storage"
	"cdigit/pkg/platform/sentinel"
	"cdigit/pkg/requestcontext"
	"cdigit/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *storage.PostgresStore
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
	s.store = storage.NewPostgres(s.postgres.DB)
	s.Require().NoError(s.store.EnsureSchema(context.Background()))
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "kv_store"))
}

func (s *PostgresStoreSuite) TestUpsert() {
	ctx := context.Background()

	_, err := s.store.Get(ctx, storage.KeyWorkflows)
	s.ErrorIs(err, sentinel.ErrNotFound)

	s.Require().NoError(s.store.Put(ctx, storage.KeyWorkflows, []byte(`v1`)))
	s.Require().NoError(s.store.Put(ctx, storage.KeyWorkflows, []byte(`v2`)))

	got, err := s.store.Get(ctx, storage.KeyWorkflows)
	s.Require().NoError(err)
	s.Equal("v2", string(got))

	var count int
	s.Require().NoError(s.postgres.DB.QueryRow(`SELECT count(*) FROM kv_store`).Scan(&count))
	s.Equal(1, count)
}

func (s *PostgresStoreSuite) TestUpdatedAtFromRequestTime() {
	fixed := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	ctx := requestcontext.WithTime(context.Background(), fixed)
	s.Require().NoError(s.store.Put(ctx, "k", []byte("v")))

	var updatedAt time.Time
	s.Require().NoError(s.postgres.DB.QueryRow(`SELECT updated_at FROM kv_store WHERE key = 'k'`).Scan(&updatedAt))
	s.True(fixed.Equal(updatedAt))
}
