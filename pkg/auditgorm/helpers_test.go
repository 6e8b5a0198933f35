package auditgorm_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/utils/tests"

	"github.com/dmitrymomot/auditkit/pkg/audit"
	"github.com/dmitrymomot/auditkit/pkg/auditgorm"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type Widget struct {
	ID    uint
	Name  string
	Price int64
}

type Gadget struct {
	Code string `gorm:"primaryKey"`
	Name string
}

func (g *Gadget) AuditType() string { return "gadget" }
func (g *Gadget) AuditID() string   { return "g-" + g.Code }

type Tracked struct {
	ID      uint
	Name    string
	pending audit.Changes
}

func (t *Tracked) AuditChanges() audit.Changes { return t.pending }

// newDB opens a gorm instance that builds SQL without a database.
func newDB(t *testing.T, cfg *gorm.Config) *gorm.DB {
	t.Helper()
	if cfg == nil {
		cfg = &gorm.Config{}
	}
	cfg.DryRun = true
	cfg.SkipDefaultTransaction = true
	dialector := tests.DummyDialector{}
	if cfg.TranslateError {
		dialector.TranslatedErr = gorm.ErrDuplicatedKey
	}
	db, err := gorm.Open(dialector, cfg)
	require.NoError(t, err)
	return db
}

type setup struct {
	db       *gorm.DB
	registry *audit.Registry
	store    *audit.MemoryStorage
	engine   *audit.Engine
}

func newSetup(t *testing.T, storage audit.Storage, opts ...auditgorm.Option) *setup {
	t.Helper()
	s := &setup{db: newDB(t, nil), registry: audit.NewRegistry(), store: audit.NewMemoryStorage()}
	if storage == nil {
		storage = s.store
	}
	s.registry.MustAttach("Widget")
	s.registry.MustAttach("gadget")
	s.registry.MustAttach("Tracked")
	s.engine = audit.NewEngine(s.registry, storage, audit.WithClock(func() time.Time { return now }))
	require.NoError(t, s.db.Use(auditgorm.NewPlugin(s.engine, opts...)))
	return s
}

func (s *setup) records(t *testing.T) []audit.Record {
	t.Helper()
	got, err := s.store.Query(t.Context(), audit.Criteria{})
	require.NoError(t, err)
	return got
}

type statement struct {
	SQL  string
	Vars []any
}

// recorder collects the SQL gorm built for one kind of statement.
type recorder struct {
	mu   sync.Mutex
	stmt []statement
}

func (r *recorder) capture(tx *gorm.DB) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if tx.Statement.SQL.Len() == 0 {
		return
	}
	r.stmt = append(r.stmt, statement{SQL: tx.Statement.SQL.String(), Vars: append([]any(nil), tx.Statement.Vars...)})
}

func (r *recorder) all() []statement {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]statement(nil), r.stmt...)
}

func recordCreates(t *testing.T, db *gorm.DB) *recorder {
	t.Helper()
	r := &recorder{}
	require.NoError(t, db.Callback().Create().After("gorm:create").Register("test:capture", r.capture))
	return r
}

func recordUpdates(t *testing.T, db *gorm.DB) *recorder {
	t.Helper()
	r := &recorder{}
	require.NoError(t, db.Callback().Update().After("gorm:update").Register("test:capture", r.capture))
	return r
}

// recordQueries captures queries and lets fill act as the database.
func recordQueries(t *testing.T, db *gorm.DB, fill func(tx *gorm.DB)) *recorder {
	t.Helper()
	r := &recorder{}
	require.NoError(t, db.Callback().Query().After("gorm:query").Register("test:capture", func(tx *gorm.DB) {
		r.capture(tx)
		if fill != nil {
			fill(tx)
		}
	}))
	return r
}
