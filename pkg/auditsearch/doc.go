// Package auditsearch stores audit records in OpenSearch with opensearch-go/v2.
//
// Each log gets its own index, <prefix>-<log>, created on first write with a
// strict mapping: identifiers are keywords, created_at is date_nanos, and the
// diff and metadata are kept in _source without being indexed.
//
//	client, err := auditsearch.New(ctx, cfg, nil)
//	if err != nil {
//		return err
//	}
//	storage := auditsearch.NewStorage(client,
//		auditsearch.WithIndexPrefix(cfg.IndexPrefix),
//		auditsearch.WithRefresh(cfg.Refresh),
//	)
//
// Queries without a log search every index of the prefix. Pages are read
// with search_after on (created_at, id); a cursor is resolved to its sort
// values first, so an unknown cursor fails with audit.ErrInvalidCursor.
//
// Writes are near real time. Pass WithRefresh("wait_for") when a read must
// observe the write that preceded it.
package auditsearch
