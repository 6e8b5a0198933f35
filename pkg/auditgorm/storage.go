package auditgorm

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/dmitrymomot/auditkit/pkg/audit"
)

const defaultBatchSize = 100

// LogRow is the table layout of an audit record. Migrate it with
// db.Table(name).AutoMigrate(&LogRow{}).
type LogRow struct {
	ID            string            `gorm:"primaryKey;size:64"`
	Log           string            `gorm:"size:255;not null;index:idx_audit_logs_log_created,priority:1"`
	Event         string            `gorm:"size:255;not null"`
	ItemType      string            `gorm:"size:255;not null;index:idx_audit_logs_item,priority:1"`
	ItemID        string            `gorm:"size:255;not null;index:idx_audit_logs_item,priority:2"`
	Whodunnit     *string           `gorm:"size:255;index"`
	ObjectChanges datatypes.JSON    `gorm:"type:jsonb"`
	Metadata      datatypes.JSONMap `gorm:"type:jsonb;not null"`
	CreatedAt     time.Time         `gorm:"not null;index:idx_audit_logs_log_created,priority:2;index:idx_audit_logs_item,priority:3"`
}

func (LogRow) TableName() string { return audit.DefaultLogName }

// Storage keeps audit records in a table managed by gorm.
type Storage struct {
	db        *gorm.DB
	table     string
	batchSize int
}

type StorageOption func(*Storage)

// WithTable sets the table name. Default is "audit_logs".
func WithTable(name string) StorageOption {
	return func(s *Storage) {
		if name != "" {
			s.table = name
		}
	}
}

// WithBatchSize sets how many rows one INSERT of StoreBatch carries.
func WithBatchSize(n int) StorageOption {
	return func(s *Storage) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

func NewStorage(db *gorm.DB, opts ...StorageOption) *Storage {
	if db == nil {
		panic("auditgorm: db cannot be nil")
	}
	s := &Storage{db: db, table: audit.DefaultLogName, batchSize: defaultBatchSize}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Migrate creates or updates the audit table.
func (s *Storage) Migrate(ctx context.Context) error {
	return s.session(ctx).AutoMigrate(&LogRow{})
}

func (s *Storage) Store(ctx context.Context, record audit.Record) error {
	if err := record.Validate(); err != nil {
		return err
	}
	row, err := toRow(record)
	if err != nil {
		return errors.Join(ErrInsert, err)
	}
	if err := s.session(ctx).Create(&row).Error; err != nil {
		return insertError(err)
	}
	return nil
}

// StoreBatch inserts records with multi-row INSERTs. Batches larger than the
// batch size run in a transaction.
func (s *Storage) StoreBatch(ctx context.Context, records []audit.Record) error {
	if len(records) == 0 {
		return nil
	}

	rows := make([]LogRow, 0, len(records))
	for _, r := range records {
		if err := r.Validate(); err != nil {
			return err
		}
		row, err := toRow(r)
		if err != nil {
			return errors.Join(ErrInsert, err)
		}
		rows = append(rows, row)
	}

	var err error
	if len(rows) <= s.batchSize {
		err = s.session(ctx).Create(&rows).Error
	} else {
		err = s.session(ctx).Transaction(func(tx *gorm.DB) error {
			return tx.CreateInBatches(&rows, s.batchSize).Error
		})
	}
	if err != nil {
		return insertError(err)
	}
	return nil
}

func (s *Storage) Query(ctx context.Context, criteria audit.Criteria) ([]audit.Record, error) {
	q, err := s.filter(ctx, criteria)
	if err != nil {
		return nil, err
	}
	q = q.Order("created_at ASC").Order("id ASC")
	if criteria.Limit > 0 {
		q = q.Limit(criteria.Limit)
	}

	var rows []LogRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, errors.Join(ErrQuery, err)
	}

	records := make([]audit.Record, 0, len(rows))
	for _, row := range rows {
		r, err := row.record()
		if err != nil {
			return nil, errors.Join(ErrDecode, err)
		}
		records = append(records, r)
	}
	return records, nil
}

// Count ignores Cursor and Limit.
func (s *Storage) Count(ctx context.Context, criteria audit.Criteria) (int64, error) {
	criteria.Cursor = ""
	q, err := s.filter(ctx, criteria)
	if err != nil {
		return 0, err
	}
	var n int64
	if err := q.Count(&n).Error; err != nil {
		return 0, errors.Join(ErrQuery, err)
	}
	return n, nil
}

func (s *Storage) session(ctx context.Context) *gorm.DB {
	return Skip(s.db.WithContext(ctx)).Table(s.table)
}

func (s *Storage) filter(ctx context.Context, c audit.Criteria) (*gorm.DB, error) {
	q := s.session(ctx)
	if c.Log != "" {
		q = q.Where("log = ?", c.Log)
	}
	if c.ItemType != "" {
		q = q.Where("item_type = ?", c.ItemType)
	}
	if c.ItemID != "" {
		q = q.Where("item_id = ?", c.ItemID)
	}
	if c.Whodunnit != "" {
		q = q.Where("whodunnit = ?", c.Whodunnit)
	}
	if len(c.Events) > 0 {
		events := make([]string, len(c.Events))
		for i, e := range c.Events {
			events[i] = e.String()
		}
		q = q.Where("event IN ?", events)
	}
	if !c.Since.IsZero() {
		q = q.Where("created_at >= ?", c.Since)
	}
	if !c.Until.IsZero() {
		q = q.Where("created_at < ?", c.Until)
	}

	if c.Cursor != "" {
		var cur LogRow
		err := s.session(ctx).Select("created_at").Where("id = ?", c.Cursor).Take(&cur).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			return nil, audit.ErrInvalidCursor
		case err != nil:
			return nil, errors.Join(ErrQuery, err)
		}
		q = q.Where("created_at > ? OR (created_at = ? AND id > ?)", cur.CreatedAt, cur.CreatedAt, c.Cursor)
	}
	return q, nil
}

func insertError(err error) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return errors.Join(audit.ErrDuplicateRecord, err)
	}
	return errors.Join(ErrInsert, err)
}

func toRow(r audit.Record) (LogRow, error) {
	row := LogRow{
		ID:        r.ID,
		Log:       r.Log,
		Event:     r.Event.String(),
		ItemType:  r.ItemType,
		ItemID:    r.ItemID,
		Metadata:  datatypes.JSONMap(r.Metadata),
		CreatedAt: r.CreatedAt,
	}
	if row.Metadata == nil {
		row.Metadata = datatypes.JSONMap{}
	}
	if r.Whodunnit != "" {
		row.Whodunnit = &r.Whodunnit
	}
	if r.ObjectChanges != nil {
		b, err := json.Marshal(r.ObjectChanges)
		if err != nil {
			return LogRow{}, err
		}
		row.ObjectChanges = datatypes.JSON(b)
	}
	return row, nil
}

func (row LogRow) record() (audit.Record, error) {
	r := audit.Record{
		ID:        row.ID,
		Log:       row.Log,
		Event:     audit.Event(row.Event),
		ItemType:  row.ItemType,
		ItemID:    row.ItemID,
		CreatedAt: row.CreatedAt.UTC(),
	}
	if row.Whodunnit != nil {
		r.Whodunnit = *row.Whodunnit
	}
	if len(row.ObjectChanges) > 0 && string(row.ObjectChanges) != "null" {
		if err := json.Unmarshal(row.ObjectChanges, &r.ObjectChanges); err != nil {
			return audit.Record{}, err
		}
	}
	if len(row.Metadata) > 0 {
		// JSONMap scans numbers as json.Number; decode again for plain values
		b, err := json.Marshal(row.Metadata)
		if err != nil {
			return audit.Record{}, err
		}
		if err := json.Unmarshal(b, &r.Metadata); err != nil {
			return audit.Record{}, err
		}
	}
	return r, nil
}

var _ interface {
	audit.BatchStorage
	audit.StorageCounter
} = (*Storage)(nil)
