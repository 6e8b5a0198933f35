package audit

import (
	"slices"
	"strings"
)

// Matches reports whether r satisfies every non-zero field of c.
// The cursor and limit are ignored.
func (c Criteria) Matches(r Record) bool {
	switch {
	case c.Log != "" && r.Log != c.Log:
		return false
	case c.ItemType != "" && r.ItemType != c.ItemType:
		return false
	case c.ItemID != "" && r.ItemID != c.ItemID:
		return false
	case c.Whodunnit != "" && r.Whodunnit != c.Whodunnit:
		return false
	case len(c.Events) > 0 && !slices.Contains(c.Events, r.Event):
		return false
	case !c.Since.IsZero() && r.CreatedAt.Before(c.Since):
		return false
	case !c.Until.IsZero() && !r.CreatedAt.Before(c.Until):
		return false
	}
	return true
}

// CompareRecords orders records by CreatedAt, then ID.
func CompareRecords(a, b Record) int {
	if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
		return c
	}
	return strings.Compare(a.ID, b.ID)
}

// SortRecords sorts records into storage order in place.
func SortRecords(records []Record) {
	slices.SortStableFunc(records, CompareRecords)
}

// Page applies the cursor and limit of c to records that already match c
// and are sorted. The cursor must name one of the records.
func (c Criteria) Page(records []Record) ([]Record, error) {
	if c.Cursor != "" {
		i := slices.IndexFunc(records, func(r Record) bool { return r.ID == c.Cursor })
		if i < 0 {
			return nil, ErrInvalidCursor
		}
		records = records[i+1:]
	}
	if c.Limit > 0 {
		records = records[:min(c.Limit, len(records))]
	}
	return records, nil
}
