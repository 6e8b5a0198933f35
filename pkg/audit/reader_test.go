package audit_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/auditkit/pkg/audit"
)

func seedStorage(t *testing.T) *audit.MemoryStorage {
	t.Helper()

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	mem := audit.NewMemoryStorage()
	records := []audit.Record{
		{ID: "r1", Log: "audit_logs", Event: audit.EventCreate, ItemType: "Widget", ItemID: "1", Whodunnit: "alice", CreatedAt: base},
		{ID: "r2", Log: "audit_logs", Event: audit.EventUpdate, ItemType: "Widget", ItemID: "1", Whodunnit: "bob", CreatedAt: base.Add(time.Minute)},
		{ID: "r3", Log: "audit_logs", Event: "a_decimal_change", ItemType: "Widget", ItemID: "1", CreatedAt: base.Add(2 * time.Minute)},
		{ID: "r4", Log: "audit_logs", Event: audit.EventCreate, ItemType: "Widget", ItemID: "2", CreatedAt: base.Add(2 * time.Minute)},
		{ID: "r5", Log: "audit_logs", Event: audit.EventDestroy, ItemType: "Widget", ItemID: "1", CreatedAt: base.Add(3 * time.Minute)},
		{ID: "r6", Log: "audit_me_logs", Event: audit.EventCreate, ItemType: "Article", ItemID: "1", CreatedAt: base},
	}
	// Stored out of order to exercise sorting.
	for _, i := range []int{4, 0, 3, 2, 1, 5} {
		require.NoError(t, mem.Store(context.Background(), records[i]))
	}
	return mem
}

func ids(records []audit.Record) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.ID
	}
	return out
}

func TestReader_Queries(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	r := audit.NewReader(seedStorage(t))

	got, err := r.ForItem(ctx, "Widget", "1")
	require.NoError(t, err)
	assert.Equal(t, []string{"r1", "r2", "r3", "r5"}, ids(got))

	got, err = r.Creates(ctx, audit.Criteria{})
	require.NoError(t, err)
	assert.Equal(t, []string{"r1", "r6", "r4"}, ids(got))

	got, err = r.Updates(ctx, audit.Criteria{ItemType: "Widget"})
	require.NoError(t, err)
	assert.Equal(t, []string{"r2"}, ids(got))

	got, err = r.Destroys(ctx, audit.Criteria{})
	require.NoError(t, err)
	assert.Equal(t, []string{"r5"}, ids(got))

	got, err = r.CustomEvent(ctx, "a_decimal_change", audit.Criteria{})
	require.NoError(t, err)
	assert.Equal(t, []string{"r3"}, ids(got))

	got, err = r.Find(ctx, audit.Criteria{Whodunnit: "bob"})
	require.NoError(t, err)
	assert.Equal(t, []string{"r2"}, ids(got))
}

func TestReader_TimeRange(t *testing.T) {
	t.Parallel()

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	r := audit.NewReader(seedStorage(t))

	got, err := r.Find(context.Background(), audit.Criteria{
		ItemType: "Widget",
		Since:    base.Add(time.Minute),
		Until:    base.Add(3 * time.Minute),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"r2", "r3", "r4"}, ids(got))
}

func TestReader_ForLog(t *testing.T) {
	t.Parallel()

	r := audit.NewReader(seedStorage(t), audit.ForLog("audit_me_logs"))
	got, err := r.Find(context.Background(), audit.Criteria{})
	require.NoError(t, err)
	assert.Equal(t, []string{"r6"}, ids(got))

	n, err := r.Count(context.Background(), audit.Criteria{})
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestReader_FindWithCursor(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	r := audit.NewReader(seedStorage(t))
	criteria := audit.Criteria{ItemType: "Widget", Limit: 2}

	page, next, err := r.FindWithCursor(ctx, criteria, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"r1", "r2"}, ids(page))
	assert.Equal(t, "r2", next)

	page, next, err = r.FindWithCursor(ctx, criteria, next)
	require.NoError(t, err)
	assert.Equal(t, []string{"r3", "r4"}, ids(page))

	page, next, err = r.FindWithCursor(ctx, criteria, next)
	require.NoError(t, err)
	assert.Equal(t, []string{"r5"}, ids(page))
	assert.Empty(t, next)

	_, _, err = r.FindWithCursor(ctx, criteria, "missing")
	require.ErrorIs(t, err, audit.ErrInvalidCursor)
}

func TestReader_All(t *testing.T) {
	t.Parallel()

	r := audit.NewReader(seedStorage(t))

	var got []string
	for rec, err := range r.All(context.Background(), audit.Criteria{Limit: 2}) {
		require.NoError(t, err)
		got = append(got, rec.ID)
	}
	assert.Equal(t, []string{"r1", "r6", "r2", "r3", "r4", "r5"}, got)

	var first []string
	for rec, err := range r.All(context.Background(), audit.Criteria{Limit: 2}) {
		require.NoError(t, err)
		first = append(first, rec.ID)
		if len(first) == 3 {
			break
		}
	}
	assert.Equal(t, []string{"r1", "r6", "r2"}, first)
}

func TestReader_Filter(t *testing.T) {
	t.Parallel()

	r := audit.NewReader(seedStorage(t))
	got, err := r.Filter(context.Background(), audit.Criteria{Limit: 2}, func(rec audit.Record) bool {
		return rec.Whodunnit == ""
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"r6", "r3"}, ids(got))
}

func TestReader_CountFallback(t *testing.T) {
	t.Parallel()

	bs := new(MockBatchStorage)
	bs.On("Query", mock.Anything, audit.Criteria{ItemType: "Widget"}).
		Return([]audit.Record{testRecord("1"), testRecord("2")}, nil)

	n, err := audit.NewReader(bs).Count(context.Background(), audit.Criteria{ItemType: "Widget", Limit: 1, Cursor: "x"})
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
	bs.AssertExpectations(t)
}

func TestMemoryStorage(t *testing.T) {
	t.Parallel()

	t.Run("rejects invalid and duplicate records", func(t *testing.T) {
		t.Parallel()
		mem := audit.NewMemoryStorage()
		require.ErrorIs(t, mem.Store(context.Background(), audit.Record{ID: "x"}), audit.ErrRecordValidation)

		require.NoError(t, mem.Store(context.Background(), testRecord("1")))
		require.ErrorIs(t, mem.Store(context.Background(), testRecord("1")), audit.ErrDuplicateRecord)
		assert.Equal(t, 1, mem.Len())
	})

	t.Run("batch is all or nothing", func(t *testing.T) {
		t.Parallel()
		mem := audit.NewMemoryStorage()
		err := mem.StoreBatch(context.Background(), []audit.Record{testRecord("1"), {ID: "2"}})
		require.Error(t, err)
		assert.Zero(t, mem.Len())
	})

	t.Run("returned records are copies", func(t *testing.T) {
		t.Parallel()
		mem := audit.NewMemoryStorage()
		rec := testRecord("1")
		rec.Metadata = map[string]any{"k": "v"}
		require.NoError(t, mem.Store(context.Background(), rec))
		rec.Metadata["k"] = "changed"

		got, err := mem.Query(context.Background(), audit.Criteria{})
		require.NoError(t, err)
		got[0].Metadata["k"] = "mutated"

		again, err := mem.Query(context.Background(), audit.Criteria{})
		require.NoError(t, err)
		assert.Equal(t, "v", again[0].Metadata["k"])
	})

	t.Run("cancelled context", func(t *testing.T) {
		t.Parallel()
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		mem := audit.NewMemoryStorage()
		require.ErrorIs(t, mem.Store(ctx, testRecord("1")), context.Canceled)
		_, err := mem.Query(ctx, audit.Criteria{})
		require.ErrorIs(t, err, context.Canceled)
	})

	t.Run("many records", func(t *testing.T) {
		t.Parallel()
		mem := audit.NewMemoryStorage()
		for i := range 25 {
			require.NoError(t, mem.Store(context.Background(), testRecord(fmt.Sprintf("%03d", i))))
		}
		n, err := mem.Count(context.Background(), audit.Criteria{ItemType: "Widget"})
		require.NoError(t, err)
		assert.EqualValues(t, 25, n)
	})
}

func TestRecord_Changeset(t *testing.T) {
	t.Parallel()

	var rec audit.Record
	assert.NotNil(t, rec.Changeset())
	assert.Empty(t, rec.Changeset())

	rec.ObjectChanges = audit.Changes{"name": {Before: "Henry", After: "Harry"}}
	cs := rec.Changeset()
	cs["other"] = audit.Change{}
	assert.Len(t, rec.ObjectChanges, 1)
}
