package audit

import "context"

type storageContextKey struct{}

// WithStorage scopes a storage to ctx. Update records are written to it so they
// join the transaction of the entity being saved.
func WithStorage(ctx context.Context, s Storage) context.Context {
	return context.WithValue(ctx, storageContextKey{}, s)
}

// StorageFromContext returns the storage scoped to ctx, if any.
func StorageFromContext(ctx context.Context) (Storage, bool) {
	s, ok := ctx.Value(storageContextKey{}).(Storage)
	return s, ok && s != nil
}
