package audit

import "context"

// Storage persists audit records. Implementations are append-only: there is
// no way to modify or delete a stored record.
type Storage interface {
	Store(ctx context.Context, record Record) error
	Query(ctx context.Context, criteria Criteria) ([]Record, error)
}

// BatchStorage stores several records in one round trip. Either all records
// are stored or none.
type BatchStorage interface {
	Storage
	StoreBatch(ctx context.Context, records []Record) error
}

// StorageCounter is implemented by storages with an efficient count.
type StorageCounter interface {
	Count(ctx context.Context, criteria Criteria) (int64, error)
}

// ChangesetSupporter is implemented by storages that may lack a column for
// object changes. Records written to such a storage carry no diff.
type ChangesetSupporter interface {
	SupportsObjectChanges() bool
}

func supportsChanges(s Storage) bool {
	if cs, ok := s.(ChangesetSupporter); ok {
		return cs.SupportsObjectChanges()
	}
	return true
}
