package auditgorm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"sync"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/schema"

	"github.com/dmitrymomot/auditkit/pkg/audit"
	"github.com/dmitrymomot/auditkit/pkg/logger"
)

const skipKey = "auditgorm:skip"

// Skip returns a session whose statements are not audited.
func Skip(db *gorm.DB) *gorm.DB {
	return db.Set(skipKey, true)
}

func skipped(db *gorm.DB) bool {
	v, ok := db.Get(skipKey)
	b, _ := v.(bool)
	return ok && b
}

// Plugin is a gorm.Plugin feeding model lifecycle events to an audit engine.
type Plugin struct {
	engine    *audit.Engine
	log       *slog.Logger
	txStorage bool
	storage   []StorageOption
	schemas   sync.Map
}

type Option func(*Plugin)

// WithLogger sets the logger for statements the plugin cannot audit.
func WithLogger(l *slog.Logger) Option {
	return func(p *Plugin) {
		if l != nil {
			p.log = l
		}
	}
}

// WithTxStorage writes update records through the statement being executed,
// so they commit or roll back together with the entity.
func WithTxStorage(opts ...StorageOption) Option {
	return func(p *Plugin) {
		p.txStorage = true
		p.storage = opts
	}
}

func NewPlugin(engine *audit.Engine, opts ...Option) *Plugin {
	if engine == nil {
		panic("auditgorm: engine cannot be nil")
	}
	p := &Plugin{engine: engine, log: slog.Default()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Plugin) Name() string { return "auditgorm" }

func (p *Plugin) Initialize(db *gorm.DB) error {
	cb := db.Callback()
	if err := cb.Create().After("gorm:commit_or_rollback_transaction").Register("auditgorm:after_create", p.afterCreate); err != nil {
		return err
	}
	if err := cb.Update().Before("gorm:update").Register("auditgorm:before_update", p.beforeUpdate); err != nil {
		return err
	}
	return cb.Delete().After("gorm:commit_or_rollback_transaction").Register("auditgorm:after_delete", p.afterDelete)
}

func (p *Plugin) afterCreate(db *gorm.DB) {
	if !p.applies(db) {
		return
	}
	ctx := db.Statement.Context
	p.each(db, func(rv reflect.Value) {
		item, _ := p.item(db, rv)
		// capture failures are logged by the engine and never fail the statement
		_, _ = p.engine.RecordCreate(ctx, item)
	})
}

func (p *Plugin) afterDelete(db *gorm.DB) {
	if !p.applies(db) {
		return
	}
	ctx := db.Statement.Context
	p.each(db, func(rv reflect.Value) {
		item, ok := p.item(db, rv)
		if !ok {
			p.bulk(ctx, db, audit.EventDestroy)
			return
		}
		var changes audit.Changes
		if t, ok := item.Value.(ChangeTracker); ok {
			changes = t.AuditChanges()
		}
		_, _ = p.engine.RecordDestroy(ctx, item, changes)
	})
}

func (p *Plugin) beforeUpdate(db *gorm.DB) {
	if !p.applies(db) {
		return
	}
	ctx := db.Statement.Context

	rv := reflect.Indirect(db.Statement.ReflectValue)
	if rv.Kind() != reflect.Struct {
		p.bulk(ctx, db, audit.EventUpdate)
		return
	}
	item, ok := p.item(db, rv)
	if !ok {
		p.bulk(ctx, db, audit.EventUpdate)
		return
	}
	if !p.engine.Registry().Tracks(item.Type, audit.EventUpdate) {
		return
	}

	changes, err := p.changes(db, rv, item.Value)
	if err != nil {
		db.AddError(err)
		return
	}

	if p.txStorage {
		ctx = audit.WithStorage(ctx, NewStorage(db.Session(&gorm.Session{NewDB: true}), p.storage...))
	}
	if _, err := p.engine.RecordUpdate(ctx, item, changes); err != nil {
		db.AddError(err)
	}
}

func (p *Plugin) applies(db *gorm.DB) bool {
	return db.Error == nil &&
		db.Statement.Schema != nil &&
		db.Statement.ReflectValue.IsValid() &&
		!skipped(db)
}

// each calls fn for every model instance the statement touched.
func (p *Plugin) each(db *gorm.DB, fn func(reflect.Value)) {
	rv := reflect.Indirect(db.Statement.ReflectValue)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		for i := range rv.Len() {
			if elem := reflect.Indirect(rv.Index(i)); elem.Kind() == reflect.Struct {
				fn(elem)
			}
		}
	case reflect.Struct:
		fn(rv)
	}
}

// item identifies a model instance. It reports false when the instance has
// no id, which is the case for statements addressing rows by condition.
func (p *Plugin) item(db *gorm.DB, rv reflect.Value) (audit.Item, bool) {
	s := db.Statement.Schema
	value := rv.Interface()
	if rv.CanAddr() {
		value = rv.Addr().Interface()
	}

	item := audit.Item{Type: s.Name, Value: value}
	if t, ok := value.(Typer); ok {
		if name := t.AuditType(); name != "" {
			item.Type = name
		}
	}

	if i, ok := value.(Identifier); ok {
		item.ID = i.AuditID()
		return item, item.ID != ""
	}
	if s.PrioritizedPrimaryField == nil {
		return item, false
	}
	id, zero := s.PrioritizedPrimaryField.ValueOf(db.Statement.Context, rv)
	if zero {
		return item, false
	}
	item.ID = fmt.Sprint(reflect.Indirect(reflect.ValueOf(id)).Interface())
	return item, true
}

func (p *Plugin) bulk(ctx context.Context, db *gorm.DB, event audit.Event) {
	p.log.DebugContext(ctx, "audit skipped for statement without primary key",
		logger.Event(event.String()),
		logger.ItemType(db.Statement.Schema.Name),
	)
}

// changes works out the update of rv the statement is about to write.
func (p *Plugin) changes(db *gorm.DB, rv reflect.Value, value any) (audit.Changes, error) {
	if t, ok := value.(ChangeTracker); ok {
		return t.AuditChanges(), nil
	}

	stmt := db.Statement
	if dest, ok := stmt.Dest.(map[string]any); ok {
		return mapChanges(stmt, rv, dest), nil
	}

	if stmt.Dest == stmt.Model {
		persisted, err := p.reload(db, rv)
		if err != nil || !persisted.IsValid() {
			return nil, err
		}
		return structChanges(stmt, stmt.Schema, persisted, rv, true), nil
	}

	dest := reflect.Indirect(reflect.ValueOf(stmt.Dest))
	if dest.Kind() != reflect.Struct {
		return nil, nil
	}
	ds := stmt.Schema
	if dest.Type() != stmt.Schema.ModelType {
		var err error
		if ds, err = schema.Parse(stmt.Dest, &p.schemas, db.NamingStrategy); err != nil {
			return nil, err
		}
	}
	return structChanges(stmt, ds, rv, dest, false), nil
}

// reload reads the row as currently persisted, for Save where the model
// already carries the new values.
func (p *Plugin) reload(db *gorm.DB, rv reflect.Value) (reflect.Value, error) {
	stmt := db.Statement
	pk := stmt.Schema.PrioritizedPrimaryField
	if pk == nil {
		return reflect.Value{}, nil
	}
	id, _ := pk.ValueOf(stmt.Context, rv)

	prev := reflect.New(stmt.Schema.ModelType)
	err := Skip(db.Session(&gorm.Session{NewDB: true})).
		Table(stmt.Table).
		Where(clause.Eq{Column: clause.Column{Name: pk.DBName}, Value: id}).
		Take(prev.Interface()).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return reflect.Value{}, nil
	case err != nil:
		return reflect.Value{}, errors.Join(ErrReload, err)
	}
	return prev.Elem(), nil
}

func columns(stmt *gorm.Statement) func(dbName string) (bool, bool) {
	selected, restricted := stmt.SelectAndOmitColumns(false, true)
	return func(dbName string) (bool, bool) {
		v, ok := selected[dbName]
		return (ok && v) || (!ok && !restricted), ok && v
	}
}

func mapChanges(stmt *gorm.Statement, rv reflect.Value, dest map[string]any) audit.Changes {
	allowed := columns(stmt)
	changes := audit.Changes{}
	for key, after := range dest {
		f := stmt.Schema.LookUpField(key)
		if f == nil || f.DBName == "" {
			continue
		}
		if ok, _ := allowed(f.DBName); !ok {
			continue
		}
		// SQL expressions have no value before the statement runs
		if _, ok := after.(clause.Expression); ok {
			continue
		}
		before, _ := f.ValueOf(stmt.Context, rv)
		if !same(before, after) {
			changes[f.DBName] = audit.Change{Before: before, After: after}
		}
	}
	return changes
}

// structChanges compares the fields of after, described by as, with the same
// columns of before. Zero values in after are skipped unless the column was
// selected explicitly or all is set.
func structChanges(stmt *gorm.Statement, as *schema.Schema, before, after reflect.Value, all bool) audit.Changes {
	allowed := columns(stmt)
	changes := audit.Changes{}
	for _, af := range as.Fields {
		if af.DBName == "" {
			continue
		}
		bf := stmt.Schema.LookUpField(af.DBName)
		if bf == nil {
			continue
		}
		ok, explicit := allowed(af.DBName)
		if !ok {
			continue
		}
		a, zero := af.ValueOf(stmt.Context, after)
		if zero && !explicit && !all {
			continue
		}
		b, _ := bf.ValueOf(stmt.Context, before)
		if !same(b, a) {
			changes[af.DBName] = audit.Change{Before: b, After: a}
		}
	}
	return changes
}
