// Package auditpg stores audit records in PostgreSQL using pgx/v5.
//
// All logs share one table, audit_logs, distinguished by the log column. The
// schema ships as an embedded goose migration:
//
//	pool, err := auditpg.Connect(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	if err := auditpg.Migrate(ctx, pool, cfg, log); err != nil {
//		return err
//	}
//	storage := auditpg.NewStorage(pool)
//
// Queries are built with squirrel and ordered by (created_at, id). A cursor
// is the id of the last record of the previous page and turns into a keyset
// condition, so paging stays stable while new records are appended.
//
// To store an update record in the same transaction as the entity, scope the
// transactional storage to the context:
//
//	ctx = audit.WithStorage(ctx, storage.WithTx(tx))
//
// StoreBatch uses COPY and is used by audit.AsyncStorage.
package auditpg
