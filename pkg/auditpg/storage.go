package auditpg

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/dmitrymomot/auditkit/pkg/audit"
)

// Table is the name of the table created by the embedded migration.
const Table = "audit_logs"

var columns = []string{
	"id", "log", "event", "item_type", "item_id",
	"whodunnit", "object_changes", "metadata", "created_at",
}

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// DB is the subset of pgxpool.Pool and pgx.Tx the storage uses.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	CopyFrom(ctx context.Context, table pgx.Identifier, columns []string, src pgx.CopyFromSource) (int64, error)
}

// Storage keeps audit records in PostgreSQL.
type Storage struct {
	db        DB
	table     string
	noChanges bool
}

// Option configures a Storage.
type Option func(*Storage)

// WithTable uses a table other than audit_logs with the same layout.
func WithTable(name string) Option {
	return func(s *Storage) {
		if name != "" {
			s.table = name
		}
	}
}

// WithoutObjectChanges is for legacy tables that lack the object_changes
// column. Records are written without a diff.
func WithoutObjectChanges() Option {
	return func(s *Storage) {
		s.noChanges = true
	}
}

func NewStorage(db DB, opts ...Option) *Storage {
	if db == nil {
		panic("auditpg: db cannot be nil")
	}
	s := &Storage{db: db, table: Table}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// WithTx returns a storage writing through tx. Scope it to the context of an
// entity update with audit.WithStorage so the record commits or rolls back
// together with the entity.
func (s *Storage) WithTx(tx pgx.Tx) *Storage {
	clone := *s
	clone.db = tx
	return &clone
}

func (s *Storage) SupportsObjectChanges() bool { return !s.noChanges }

func (s *Storage) columns() []string {
	if s.noChanges {
		return []string{"id", "log", "event", "item_type", "item_id", "whodunnit", "metadata", "created_at"}
	}
	return columns
}

func (s *Storage) Store(ctx context.Context, record audit.Record) error {
	values, err := s.values(record)
	if err != nil {
		return err
	}

	query, args, err := psql.Insert(s.table).Columns(s.columns()...).Values(values...).ToSql()
	if err != nil {
		return errors.Join(ErrInsert, err)
	}
	if _, err := s.db.Exec(ctx, query, args...); err != nil {
		if IsDuplicateKeyError(err) {
			return errors.Join(audit.ErrDuplicateRecord, err)
		}
		return errors.Join(ErrInsert, err)
	}
	return nil
}

// StoreBatch writes records with COPY, which stores all rows or none.
func (s *Storage) StoreBatch(ctx context.Context, records []audit.Record) error {
	if len(records) == 0 {
		return nil
	}
	rows := make([][]any, 0, len(records))
	for _, r := range records {
		values, err := s.values(r)
		if err != nil {
			return err
		}
		rows = append(rows, values)
	}

	n, err := s.db.CopyFrom(ctx, pgx.Identifier{s.table}, s.columns(), pgx.CopyFromRows(rows))
	if err != nil {
		return errors.Join(ErrInsert, err)
	}
	if n != int64(len(records)) {
		return fmt.Errorf("%w: copied %d of %d records", ErrInsert, n, len(records))
	}
	return nil
}

func (s *Storage) Query(ctx context.Context, criteria audit.Criteria) ([]audit.Record, error) {
	qb, err := s.filter(ctx, psql.Select(s.columns()...).From(s.table), criteria)
	if err != nil {
		return nil, err
	}
	qb = qb.OrderBy("created_at ASC", "id ASC")
	if criteria.Limit > 0 {
		qb = qb.Limit(uint64(criteria.Limit))
	}

	query, args, err := qb.ToSql()
	if err != nil {
		return nil, errors.Join(ErrQuery, err)
	}
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Join(ErrQuery, err)
	}
	defer rows.Close()

	var records []audit.Record
	for rows.Next() {
		rec, err := s.scan(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Join(ErrQuery, err)
	}
	return records, nil
}

func (s *Storage) Count(ctx context.Context, criteria audit.Criteria) (int64, error) {
	criteria.Cursor = ""
	qb, err := s.filter(ctx, psql.Select("count(*)").From(s.table), criteria)
	if err != nil {
		return 0, err
	}
	query, args, err := qb.ToSql()
	if err != nil {
		return 0, errors.Join(ErrQuery, err)
	}

	var n int64
	if err := s.db.QueryRow(ctx, query, args...).Scan(&n); err != nil {
		return 0, errors.Join(ErrQuery, err)
	}
	return n, nil
}

// filter adds the criteria conditions. The cursor becomes a keyset
// condition on (created_at, id), looked up first so an unknown cursor fails.
func (s *Storage) filter(ctx context.Context, qb sq.SelectBuilder, c audit.Criteria) (sq.SelectBuilder, error) {
	eq := sq.Eq{}
	if c.Log != "" {
		eq["log"] = c.Log
	}
	if c.ItemType != "" {
		eq["item_type"] = c.ItemType
	}
	if c.ItemID != "" {
		eq["item_id"] = c.ItemID
	}
	if c.Whodunnit != "" {
		eq["whodunnit"] = c.Whodunnit
	}
	if len(c.Events) > 0 {
		events := make([]string, len(c.Events))
		for i, e := range c.Events {
			events[i] = e.String()
		}
		eq["event"] = events
	}
	if len(eq) > 0 {
		qb = qb.Where(eq)
	}
	if !c.Since.IsZero() {
		qb = qb.Where(sq.GtOrEq{"created_at": c.Since})
	}
	if !c.Until.IsZero() {
		qb = qb.Where(sq.Lt{"created_at": c.Until})
	}

	if c.Cursor != "" {
		query, args, err := psql.Select("created_at").From(s.table).Where(sq.Eq{"id": c.Cursor}).ToSql()
		if err != nil {
			return qb, errors.Join(ErrQuery, err)
		}
		var at time.Time
		if err := s.db.QueryRow(ctx, query, args...).Scan(&at); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return qb, audit.ErrInvalidCursor
			}
			return qb, errors.Join(ErrQuery, err)
		}
		qb = qb.Where(sq.Expr("(created_at, id) > (?, ?)", at, c.Cursor))
	}
	return qb, nil
}

func (s *Storage) values(r audit.Record) ([]any, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}

	var who any
	if r.Whodunnit != "" {
		who = r.Whodunnit
	}
	meta := r.Metadata
	if meta == nil {
		meta = map[string]any{}
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return nil, errors.Join(ErrInsert, err)
	}

	if s.noChanges {
		return []any{r.ID, r.Log, r.Event.String(), r.ItemType, r.ItemID, who, metaJSON, r.CreatedAt}, nil
	}

	var changes any
	if r.ObjectChanges != nil {
		b, err := json.Marshal(r.ObjectChanges)
		if err != nil {
			return nil, errors.Join(ErrInsert, err)
		}
		changes = b
	}
	return []any{r.ID, r.Log, r.Event.String(), r.ItemType, r.ItemID, who, changes, metaJSON, r.CreatedAt}, nil
}

func (s *Storage) scan(row pgx.Row) (audit.Record, error) {
	var (
		rec     audit.Record
		event   string
		who     pgtype.Text
		changes []byte
		meta    []byte
	)

	dest := []any{&rec.ID, &rec.Log, &event, &rec.ItemType, &rec.ItemID, &who}
	if !s.noChanges {
		dest = append(dest, &changes)
	}
	dest = append(dest, &meta, &rec.CreatedAt)

	if err := row.Scan(dest...); err != nil {
		return rec, errors.Join(ErrDecode, err)
	}

	rec.Event = audit.Event(event)
	rec.Whodunnit = who.String
	rec.CreatedAt = rec.CreatedAt.UTC()
	if len(changes) > 0 {
		if err := json.Unmarshal(changes, &rec.ObjectChanges); err != nil {
			return rec, errors.Join(ErrDecode, err)
		}
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &rec.Metadata); err != nil {
			return rec, errors.Join(ErrDecode, err)
		}
	}
	return rec, nil
}

var _ interface {
	audit.BatchStorage
	audit.StorageCounter
	audit.ChangesetSupporter
} = (*Storage)(nil)
