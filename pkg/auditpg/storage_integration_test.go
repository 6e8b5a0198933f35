//go:build integration

package auditpg_test

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/suite"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/dmitrymomot/auditkit/pkg/audit"
	"github.com/dmitrymomot/auditkit/pkg/auditctx"
	"github.com/dmitrymomot/auditkit/pkg/auditpg"
)

type PostgresStorageSuite struct {
	suite.Suite
	container *tcpostgres.PostgresContainer
	pool      *pgxpool.Pool
	storage   *auditpg.Storage
}

func TestPostgresStorageSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStorageSuite))
}

func (s *PostgresStorageSuite) SetupSuite() {
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("audit"),
		tcpostgres.WithUsername("audit"),
		tcpostgres.WithPassword("audit"),
		tcpostgres.BasicWaitStrategies(),
	)
	s.Require().NoError(err)
	s.container = container

	url, err := container.ConnectionString(ctx, "sslmode=disable")
	s.Require().NoError(err)

	cfg := auditpg.Config{
		URL:             url,
		MaxConns:        4,
		MinConns:        1,
		RetryAttempts:   3,
		RetryInterval:   time.Second,
		MigrationsTable: "audit_schema_migrations",
	}
	pool, err := auditpg.Connect(ctx, cfg)
	s.Require().NoError(err)
	s.Require().NoError(auditpg.Migrate(ctx, pool, cfg, nil))
	s.pool = pool
	s.storage = auditpg.NewStorage(pool)
}

func (s *PostgresStorageSuite) TearDownSuite() {
	if s.pool != nil {
		s.pool.Close()
	}
	if s.container != nil {
		_ = s.container.Terminate(context.Background())
	}
}

func (s *PostgresStorageSuite) SetupTest() {
	_, err := s.pool.Exec(context.Background(), "TRUNCATE audit_logs")
	s.Require().NoError(err)
}

func (s *PostgresStorageSuite) TestRoundTripAndPaging() {
	ctx := context.Background()
	at := time.Now().UTC().Truncate(time.Microsecond)

	records := []audit.Record{
		record("p1", at),
		record("p2", at.Add(time.Second)),
		record("p3", at.Add(time.Second)),
	}
	records[0].Event = audit.EventCreate
	records[0].ObjectChanges = nil
	s.Require().NoError(s.storage.StoreBatch(ctx, records))

	got, err := s.storage.Query(ctx, audit.Criteria{ItemType: "Widget", ItemID: "1"})
	s.Require().NoError(err)
	s.Require().Len(got, 3)
	s.Equal(records[0], got[0])
	s.Equal(records[1].ObjectChanges, got[1].ObjectChanges)

	page, err := s.storage.Query(ctx, audit.Criteria{Cursor: "p2"})
	s.Require().NoError(err)
	s.Require().Len(page, 1)
	s.Equal("p3", page[0].ID)

	n, err := s.storage.Count(ctx, audit.Criteria{Events: []audit.Event{audit.EventUpdate}})
	s.Require().NoError(err)
	s.Equal(int64(2), n)

	s.ErrorIs(s.storage.Store(ctx, records[0]), audit.ErrDuplicateRecord)
}

func (s *PostgresStorageSuite) TestUpdateRecordRollsBackWithTransaction() {
	ctx := auditctx.WithWhodunnit(context.Background(), "alice")

	registry := audit.NewRegistry()
	registry.MustAttach("Widget")
	engine := audit.NewEngine(registry, s.storage)

	tx, err := s.pool.Begin(ctx)
	s.Require().NoError(err)

	txCtx := audit.WithStorage(ctx, s.storage.WithTx(tx))
	rec, err := engine.RecordUpdate(txCtx,
		audit.Item{Type: "Widget", ID: "9"},
		audit.Changes{"name": {Before: "a", After: "b"}},
	)
	s.Require().NoError(err)
	s.Require().NotNil(rec)
	s.Require().NoError(tx.Rollback(ctx))

	n, err := s.storage.Count(ctx, audit.Criteria{ItemID: "9"})
	s.Require().NoError(err)
	s.Zero(n)
}
