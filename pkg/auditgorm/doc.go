// Package auditgorm connects gorm models to an audit.Engine.
//
// The Plugin hooks into gorm's create, update and delete callbacks:
//
//	engine := audit.NewEngine(registry, auditgorm.NewStorage(db))
//	if err := db.Use(auditgorm.NewPlugin(engine, auditgorm.WithTxStorage())); err != nil {
//		return err
//	}
//
// Create and destroy records are captured once the statement has finished and
// never fail the statement. Update records are captured before the row is
// written; a failure aborts the update. With WithTxStorage the update record
// is written through the statement's own connection, so it commits or rolls
// back together with the entity.
//
// The item type is the schema name unless the model implements Typer, and the
// item id is the primary key unless it implements Identifier. Update changes
// come from ChangeTracker when the model implements it. Otherwise they are
// derived from the Updates argument, or for Save from the row as persisted.
//
// Storage keeps records in a gorm-managed table (LogRow) and can also serve as
// the engine's main storage. Enable gorm.Config.TranslateError so duplicate ids
// are reported as audit.ErrDuplicateRecord.
//
// Bulk updates and deletes without a primary key are not audited. Use Skip to
// run a single statement without auditing.
package auditgorm
