package audit

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/auditkit/pkg/auditctx"
	"github.com/dmitrymomot/auditkit/pkg/logger"
)

// Reasons a mutation produced no record.
const (
	SkipSwitchedOff  = "switched_off"
	SkipRequest      = "request_disabled"
	SkipEntity       = "entity_disabled"
	SkipUnregistered = "unregistered"
	SkipEvent        = "event_not_tracked"
	SkipCondition    = "condition"
	SkipNoChanges    = "no_notable_changes"
)

// Engine decides whether a lifecycle notification becomes an audit record,
// builds the record and writes it to storage. It is safe for concurrent use.
type Engine struct {
	registry *Registry
	storage  Storage
	detached Storage

	sw             *Switch
	log            *slog.Logger
	now            func() time.Time
	newID          func() (string, error)
	metrics        *Metrics
	filter         *MetadataFilter
	onCaptureError func(ctx context.Context, record Record, err error)
}

// NewEngine creates an engine for the registered policies. Update records are
// written to storage unless a storage is scoped to the context with WithStorage.
func NewEngine(registry *Registry, storage Storage, opts ...EngineOption) *Engine {
	if registry == nil {
		panic("audit: registry cannot be nil")
	}
	if storage == nil {
		panic("audit: storage cannot be nil")
	}

	e := &Engine{
		registry: registry,
		storage:  storage,
		detached: storage,
		sw:       NewSwitch(true),
		log:      slog.Default(),
		now:      time.Now,
		newID:    newRecordID,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func newRecordID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

func (e *Engine) Registry() *Registry { return e.registry }

func (e *Engine) Switch() *Switch { return e.sw }

// WithoutAuditing runs fn with auditing of entityType switched off.
func (e *Engine) WithoutAuditing(entityType string, fn func() error) error {
	return e.registry.WithoutAuditing(entityType, fn)
}

// RecordCreate records that item was created. Call it after the entity has
// been committed. A nil record with a nil error means nothing was recorded.
func (e *Engine) RecordCreate(ctx context.Context, item Item) (*Record, error) {
	p, ok := e.admit(ctx, item, EventCreate)
	if !ok {
		return nil, nil
	}

	rec, err := e.build(ctx, p, item, EventCreate, nil)
	if err != nil {
		return nil, e.captureFailed(ctx, rec, err)
	}
	return e.storeDetached(ctx, rec)
}

// RecordUpdate records the notable part of changes before the entity is
// saved. Any error must abort the save so the entity and its history stay
// consistent.
func (e *Engine) RecordUpdate(ctx context.Context, item Item, changes Changes) (*Record, error) {
	p, ok := e.admit(ctx, item, EventUpdate)
	if !ok {
		return nil, nil
	}
	if !p.gate(item.Value) {
		e.skip(ctx, item, EventUpdate, SkipCondition)
		return nil, nil
	}

	notable := p.notable(changes)
	if len(notable) == 0 {
		e.skip(ctx, item, EventUpdate, SkipNoChanges)
		return nil, nil
	}

	event := EventUpdate
	if n, ok := item.Value.(EventNamer); ok {
		if name := n.AuditEvent(); name != "" {
			event = Event(name)
		}
	}

	store := e.storage
	if s, ok := StorageFromContext(ctx); ok {
		store = s
	}

	var diff Changes
	if supportsChanges(store) {
		diff = notable
	}

	rec, err := e.build(ctx, p, item, event, diff)
	if err != nil {
		return nil, err
	}
	if err := store.Store(ctx, *rec); err != nil {
		return nil, fmt.Errorf("store %s record for %s %s: %w", event, item.Type, item.ID, err)
	}

	e.metrics.recorded(event, item.Type)
	return rec, nil
}

// RecordDestroy records that item was deleted. Call it after the delete has
// been committed. A record is written even when changes is empty.
func (e *Engine) RecordDestroy(ctx context.Context, item Item, changes Changes) (*Record, error) {
	p, ok := e.admit(ctx, item, EventDestroy)
	if !ok {
		return nil, nil
	}

	var diff Changes
	if supportsChanges(e.detached) {
		diff = p.notable(changes)
	}

	rec, err := e.build(ctx, p, item, EventDestroy, diff)
	if err != nil {
		return nil, e.captureFailed(ctx, rec, err)
	}
	return e.storeDetached(ctx, rec)
}

// admit runs the gates shared by every event, cheapest first.
func (e *Engine) admit(ctx context.Context, item Item, event Event) (Policy, bool) {
	if !e.sw.IsEnabled() {
		e.skip(ctx, item, event, SkipSwitchedOff)
		return Policy{}, false
	}
	if !auditctx.FromContext(ctx).Enabled() {
		e.skip(ctx, item, event, SkipRequest)
		return Policy{}, false
	}
	p, ok := e.registry.Policy(item.Type)
	if !ok {
		e.skip(ctx, item, event, SkipUnregistered)
		return Policy{}, false
	}
	if !e.registry.IsEnabled(item.Type) {
		e.skip(ctx, item, event, SkipEntity)
		return Policy{}, false
	}
	if !p.Tracks(event) {
		e.skip(ctx, item, event, SkipEvent)
		return Policy{}, false
	}
	return p, true
}

func (e *Engine) build(ctx context.Context, p Policy, item Item, event Event, diff Changes) (*Record, error) {
	who, _ := auditctx.FromContext(ctx).Whodunnit()
	if e.filter != nil {
		diff = e.filter.FilterChanges(diff)
	}

	rec := &Record{
		Log:           p.LogName,
		Event:         event,
		ItemType:      item.Type,
		ItemID:        item.ID,
		Whodunnit:     who,
		ObjectChanges: maps.Clone(diff),
		CreatedAt:     e.now().UTC(),
	}

	id, err := e.newID()
	if err != nil {
		return rec, fmt.Errorf("generate record id: %w", err)
	}
	rec.ID = id

	meta, err := e.metadata(ctx, p, item)
	if err != nil {
		return rec, err
	}
	rec.Metadata = meta

	if err := rec.Validate(); err != nil {
		return rec, err
	}
	return rec, nil
}

// metadata resolves the policy providers, then lets request metadata
// override them key by key.
func (e *Engine) metadata(ctx context.Context, p Policy, item Item) (map[string]any, error) {
	meta := make(map[string]any, len(p.Meta))
	for key, provider := range p.Meta {
		v, err := provider.Resolve(item.Value)
		if err != nil {
			return nil, fmt.Errorf("resolve metadata %q for %s: %w", key, item.Type, err)
		}
		meta[key] = v
	}
	maps.Copy(meta, auditctx.FromContext(ctx).Metadata())

	if e.filter != nil {
		meta = e.filter.Filter(meta)
	}
	return meta, nil
}

func (e *Engine) storeDetached(ctx context.Context, rec *Record) (*Record, error) {
	if err := e.detached.Store(ctx, *rec); err != nil {
		return nil, e.captureFailed(ctx, rec, err)
	}
	e.metrics.recorded(rec.Event, rec.ItemType)
	return rec, nil
}

func (e *Engine) captureFailed(ctx context.Context, rec *Record, err error) error {
	err = fmt.Errorf("%w: %w", ErrCaptureFailed, err)

	e.log.ErrorContext(ctx, "audit record not captured",
		logger.Log(rec.Log),
		logger.Event(rec.Event.String()),
		logger.ItemType(rec.ItemType),
		logger.ItemID(rec.ItemID),
		logger.Error(err),
	)
	e.metrics.captureFailed(rec.Event)
	if e.onCaptureError != nil {
		e.onCaptureError(ctx, *rec, err)
	}
	return err
}

func (e *Engine) skip(ctx context.Context, item Item, event Event, reason string) {
	e.metrics.skipped(reason)
	e.log.DebugContext(ctx, "audit record skipped",
		logger.Event(event.String()),
		logger.ItemType(item.Type),
		logger.ItemID(item.ID),
		slog.String("reason", reason),
	)
}
