package audit

import (
	"context"
	"iter"
)

const defaultPageSize = 100

// Reader is the query surface over stored records. Every result is ordered
// by creation time, then id.
type Reader struct {
	storage Storage
	log     string
}

// ReaderOption configures a Reader.
type ReaderOption func(*Reader)

// ForLog scopes every query of the reader to one log binding.
func ForLog(name string) ReaderOption {
	return func(r *Reader) {
		r.log = name
	}
}

func NewReader(storage Storage, opts ...ReaderOption) *Reader {
	if storage == nil {
		panic("audit: storage cannot be nil")
	}
	r := &Reader{storage: storage}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Find returns the records matching criteria.
func (r *Reader) Find(ctx context.Context, criteria Criteria) ([]Record, error) {
	return r.storage.Query(ctx, r.scope(criteria))
}

// ForItem returns the history of one entity instance.
func (r *Reader) ForItem(ctx context.Context, itemType, itemID string) ([]Record, error) {
	return r.Find(ctx, Criteria{ItemType: itemType, ItemID: itemID})
}

func (r *Reader) Creates(ctx context.Context, criteria Criteria) ([]Record, error) {
	return r.byEvent(ctx, criteria, EventCreate)
}

func (r *Reader) Updates(ctx context.Context, criteria Criteria) ([]Record, error) {
	return r.byEvent(ctx, criteria, EventUpdate)
}

func (r *Reader) Destroys(ctx context.Context, criteria Criteria) ([]Record, error) {
	return r.byEvent(ctx, criteria, EventDestroy)
}

// CustomEvent returns records labelled with a custom update event.
func (r *Reader) CustomEvent(ctx context.Context, event Event, criteria Criteria) ([]Record, error) {
	return r.byEvent(ctx, criteria, event)
}

// Filter returns the records matching criteria for which keep returns true.
// The limit of criteria applies to the filtered result.
func (r *Reader) Filter(ctx context.Context, criteria Criteria, keep func(Record) bool) ([]Record, error) {
	limit := criteria.Limit
	criteria.Limit = 0

	var out []Record
	for rec, err := range r.All(ctx, criteria) {
		if err != nil {
			return nil, err
		}
		if keep == nil || keep(rec) {
			out = append(out, rec)
			if limit > 0 && len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

// FindWithCursor returns one page and the cursor of the next one.
// The next cursor is empty on the last page.
func (r *Reader) FindWithCursor(ctx context.Context, criteria Criteria, cursor string) ([]Record, string, error) {
	criteria.Cursor = cursor
	records, err := r.Find(ctx, criteria)
	if err != nil {
		return nil, "", err
	}

	next := ""
	if criteria.Limit > 0 && len(records) == criteria.Limit {
		next = records[len(records)-1].ID
	}
	return records, next, nil
}

// Count uses the storage counter when there is one and falls back to a query.
func (r *Reader) Count(ctx context.Context, criteria Criteria) (int64, error) {
	criteria = r.scope(criteria)
	criteria.Cursor = ""
	criteria.Limit = 0

	if counter, ok := r.storage.(StorageCounter); ok {
		return counter.Count(ctx, criteria)
	}
	records, err := r.storage.Query(ctx, criteria)
	if err != nil {
		return 0, err
	}
	return int64(len(records)), nil
}

// All iterates over every matching record, fetching pages of criteria.Limit
// records (100 when unset). Iteration stops at the first error.
func (r *Reader) All(ctx context.Context, criteria Criteria) iter.Seq2[Record, error] {
	if criteria.Limit <= 0 {
		criteria.Limit = defaultPageSize
	}
	return func(yield func(Record, error) bool) {
		cursor := criteria.Cursor
		for {
			page, next, err := r.FindWithCursor(ctx, criteria, cursor)
			if err != nil {
				yield(Record{}, err)
				return
			}
			for _, rec := range page {
				if !yield(rec, nil) {
					return
				}
			}
			if next == "" {
				return
			}
			cursor = next
		}
	}
}

func (r *Reader) byEvent(ctx context.Context, criteria Criteria, event Event) ([]Record, error) {
	criteria.Events = []Event{event}
	return r.Find(ctx, criteria)
}

func (r *Reader) scope(c Criteria) Criteria {
	if r.log != "" {
		c.Log = r.log
	}
	return c
}
