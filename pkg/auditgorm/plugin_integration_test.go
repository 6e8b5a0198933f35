//go:build integration

package auditgorm_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/dmitrymomot/auditkit/pkg/audit"
	"github.com/dmitrymomot/auditkit/pkg/auditctx"
	"github.com/dmitrymomot/auditkit/pkg/auditgorm"
)

type PluginSuite struct {
	suite.Suite
	container *tcpostgres.PostgresContainer
	db        *gorm.DB
	storage   *auditgorm.Storage
}

func TestPluginSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PluginSuite))
}

func (s *PluginSuite) SetupSuite() {
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("audit"),
		tcpostgres.WithUsername("audit"),
		tcpostgres.WithPassword("audit"),
		tcpostgres.BasicWaitStrategies(),
	)
	s.Require().NoError(err)
	s.container = container

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	s.Require().NoError(err)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
	s.Require().NoError(err)
	s.Require().NoError(db.AutoMigrate(&Widget{}))

	s.storage = auditgorm.NewStorage(db)
	s.Require().NoError(s.storage.Migrate(ctx))

	registry := audit.NewRegistry()
	registry.MustAttach("Widget")
	engine := audit.NewEngine(registry, s.storage)
	s.Require().NoError(db.Use(auditgorm.NewPlugin(engine, auditgorm.WithTxStorage())))
	s.db = db
}

func (s *PluginSuite) TearDownSuite() {
	if s.container != nil {
		_ = s.container.Terminate(context.Background())
	}
}

func (s *PluginSuite) history(id uint) []audit.Record {
	got, err := s.storage.Query(context.Background(), audit.Criteria{ItemType: "Widget", ItemID: fmt.Sprint(id)})
	s.Require().NoError(err)
	return got
}

func (s *PluginSuite) TestLifecycle() {
	ctx := auditctx.WithWhodunnit(context.Background(), "alice")
	db := s.db.WithContext(ctx)

	w := Widget{Name: "bolt", Price: 10}
	s.Require().NoError(db.Create(&w).Error)
	s.Require().NoError(db.Model(&w).Update("price", 12).Error)
	s.Require().NoError(db.Delete(&w).Error)

	got := s.history(w.ID)
	s.Require().Len(got, 3)
	s.Equal(audit.EventCreate, got[0].Event)
	s.Equal(audit.EventUpdate, got[1].Event)
	s.Equal(audit.Changes{"price": {Before: float64(10), After: float64(12)}}, got[1].ObjectChanges)
	s.Equal(audit.EventDestroy, got[2].Event)
	for _, r := range got {
		s.Equal("alice", r.Whodunnit)
		s.WithinDuration(time.Now(), r.CreatedAt, time.Minute)
	}
}

func (s *PluginSuite) TestSaveComparesWithStoredRow() {
	db := s.db.WithContext(context.Background())

	w := Widget{Name: "nut", Price: 5}
	s.Require().NoError(db.Create(&w).Error)
	w.Name = "lock nut"
	s.Require().NoError(db.Save(&w).Error)

	got := s.history(w.ID)
	s.Require().Len(got, 2)
	s.Equal(audit.Changes{"name": {Before: "nut", After: "lock nut"}}, got[1].ObjectChanges)
}

func (s *PluginSuite) TestUpdateRecordRollsBackWithTransaction() {
	db := s.db.WithContext(context.Background())

	w := Widget{Name: "washer", Price: 1}
	s.Require().NoError(db.Create(&w).Error)

	errAbort := errors.New("abort")
	err := db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&w).Update("name", "spring washer").Error; err != nil {
			return err
		}
		return errAbort
	})
	s.Require().ErrorIs(err, errAbort)

	var stored Widget
	s.Require().NoError(db.First(&stored, w.ID).Error)
	s.Equal("washer", stored.Name)

	got := s.history(w.ID)
	s.Require().Len(got, 1)
	s.Equal(audit.EventCreate, got[0].Event)
}

func (s *PluginSuite) TestDuplicateRecord() {
	ctx := context.Background()
	r := audit.Record{
		ID:        "dup-1",
		Log:       audit.DefaultLogName,
		Event:     audit.EventCreate,
		ItemType:  "Widget",
		ItemID:    "1",
		CreatedAt: time.Now().UTC(),
	}
	s.Require().NoError(s.storage.Store(ctx, r))
	s.ErrorIs(s.storage.Store(ctx, r), audit.ErrDuplicateRecord)
}
