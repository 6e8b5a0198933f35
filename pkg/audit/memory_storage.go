package audit

import (
	"context"
	"maps"
	"sync"
)

// MemoryStorage keeps records in process memory. It is meant for tests,
// demos and single-process tools.
type MemoryStorage struct {
	mu        sync.RWMutex
	records   []Record
	ids       map[string]struct{}
	noChanges bool
}

// MemoryOption configures a MemoryStorage.
type MemoryOption func(*MemoryStorage)

// WithoutObjectChanges makes the storage report that it cannot hold object
// changes, like a table without the object_changes column.
func WithoutObjectChanges() MemoryOption {
	return func(s *MemoryStorage) {
		s.noChanges = true
	}
}

func NewMemoryStorage(opts ...MemoryOption) *MemoryStorage {
	s := &MemoryStorage{ids: make(map[string]struct{})}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStorage) SupportsObjectChanges() bool { return !s.noChanges }

// Store appends a record. Storing a record id twice is an error.
func (s *MemoryStorage) Store(ctx context.Context, record Record) error {
	return s.StoreBatch(ctx, []Record{record})
}

// StoreBatch appends all records or none.
func (s *MemoryStorage) StoreBatch(ctx context.Context, records []Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	for i := range records {
		if err := records[i].Validate(); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range records {
		if _, ok := s.ids[r.ID]; ok {
			return ErrDuplicateRecord
		}
	}
	for _, r := range records {
		s.ids[r.ID] = struct{}{}
		s.records = append(s.records, copyRecord(r))
	}
	return nil
}

// Query returns matching records in storage order.
func (s *MemoryStorage) Query(ctx context.Context, criteria Criteria) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	matched := s.matching(criteria)
	page, err := criteria.Page(matched)
	if err != nil {
		return nil, err
	}
	out := make([]Record, len(page))
	for i, r := range page {
		out[i] = copyRecord(r)
	}
	return out, nil
}

func (s *MemoryStorage) Count(ctx context.Context, criteria Criteria) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return int64(len(s.matching(criteria))), nil
}

// Len returns the number of stored records.
func (s *MemoryStorage) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

func (s *MemoryStorage) matching(criteria Criteria) []Record {
	s.mu.RLock()
	matched := make([]Record, 0, len(s.records))
	for _, r := range s.records {
		if criteria.Matches(r) {
			matched = append(matched, r)
		}
	}
	s.mu.RUnlock()

	SortRecords(matched)
	return matched
}

func copyRecord(r Record) Record {
	r.ObjectChanges = maps.Clone(r.ObjectChanges)
	r.Metadata = maps.Clone(r.Metadata)
	return r
}

var _ interface {
	BatchStorage
	StorageCounter
	ChangesetSupporter
} = (*MemoryStorage)(nil)
