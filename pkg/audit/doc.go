// Package audit records an immutable history of changes made to application
// entities: who changed what, when, and in which request.
//
// A persistence adapter reports lifecycle events (create, update, destroy) to
// an Engine. The engine checks the global Switch, the request state carried by
// package auditctx and the per-type enable flag of the Registry, applies the
// entity's Policy and writes a Record to a Storage.
//
//	mutation ──► Engine ──► gates ──► Policy filters ──► Record ──► Storage
//	                 ▲
//	          auditctx.State (whodunnit, enabled, metadata)
//
// # Policies
//
//	reg := audit.NewRegistry()
//	reg.MustAttach("Article",
//		audit.Ignore("title", "abstract"),
//		audit.Skip("file_upload"),
//		audit.Meta("answer", audit.Constant(42)),
//		audit.Meta("title", audit.Accessor("Title")),
//	)
//	reg.MustAttach("Post", audit.On(audit.EventCreate), audit.LogName("post_logs"))
//
// Update records hold only notable fields: changed fields minus Ignore and
// Skip, restricted to Only when it is set. An update with no notable change
// produces no record. The If and Unless predicates gate update records.
//
// # Engine
//
//	engine := audit.NewEngine(reg, storage,
//		audit.WithLogger(log),
//		audit.WithMetrics(audit.NewMetrics(prometheus.DefaultRegisterer)),
//	)
//
//	rec, err := engine.RecordUpdate(ctx, audit.Item{Type: "Article", ID: "7", Value: article}, changes)
//
// RecordUpdate runs before the entity is saved and its errors must abort the
// save. Scope a transactional storage with WithStorage to write the record in
// the same transaction. RecordCreate and RecordDestroy run after the commit;
// their failures wrap ErrCaptureFailed and are also logged and counted.
//
// A nil record with a nil error means the mutation was not audited.
//
// # Suppression
//
//	err := reg.WithoutAuditing("Article", func() error {
//		return repo.Touch(ctx, id)
//	})
//
// The per-type flag is restored when fn returns or panics. Because the flag
// is process-wide, concurrent requests touching the same type are affected.
//
// # Reading
//
//	r := audit.NewReader(storage)
//	history, err := r.ForItem(ctx, "Article", "7")
//	for rec, err := range r.All(ctx, audit.Criteria{ItemType: "Article"}) { ... }
//
// Results are ordered by creation time, then record id. Record ids are
// UUIDv7, so the order matches insertion order.
package audit
