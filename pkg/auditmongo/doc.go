// Package auditmongo stores audit records in a MongoDB collection using the
// official v2 driver.
//
//	client, err := auditmongo.Connect(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	storage := auditmongo.NewStorage(auditmongo.Collection(client, cfg))
//	if err := storage.EnsureIndexes(ctx); err != nil {
//		return err
//	}
//
// Records are sorted by created_at, then _id. MongoDB keeps timestamps at
// millisecond precision, so record ids break ties inside a millisecond.
// StoreBatch runs in a transaction and needs a replica set.
package auditmongo
