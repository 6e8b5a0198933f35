package auditmongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/dmitrymomot/auditkit/pkg/audit"
)

// Storage keeps audit records in one collection. Every log shares the
// collection and is told apart by the log field.
type Storage struct {
	coll *mongo.Collection
}

func NewStorage(coll *mongo.Collection) *Storage {
	if coll == nil {
		panic("auditmongo: collection cannot be nil")
	}
	return &Storage{coll: coll}
}

// EnsureIndexes creates the indexes used by item and actor lookups.
// It is safe to call on every start.
func (s *Storage) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "log", Value: 1}, {Key: "item_type", Value: 1}, {Key: "item_id", Value: 1}, {Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}},
		{Keys: bson.D{{Key: "whodunnit", Value: 1}, {Key: "created_at", Value: 1}}},
		{Keys: bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}},
	})
	if err != nil {
		return errors.Join(ErrIndex, err)
	}
	return nil
}

func (s *Storage) Store(ctx context.Context, record audit.Record) error {
	if err := record.Validate(); err != nil {
		return err
	}
	if _, err := s.coll.InsertOne(ctx, toDocument(record)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return errors.Join(audit.ErrDuplicateRecord, err)
		}
		return errors.Join(ErrInsert, err)
	}
	return nil
}

// StoreBatch inserts the records in a transaction, which needs a replica set
// or a sharded cluster.
func (s *Storage) StoreBatch(ctx context.Context, records []audit.Record) error {
	if len(records) == 0 {
		return nil
	}
	docs := make([]any, 0, len(records))
	for _, r := range records {
		if err := r.Validate(); err != nil {
			return err
		}
		docs = append(docs, toDocument(r))
	}

	sess, err := s.coll.Database().Client().StartSession()
	if err != nil {
		return errors.Join(ErrInsert, err)
	}
	defer sess.EndSession(ctx)

	_, err = sess.WithTransaction(ctx, func(ctx context.Context) (any, error) {
		return s.coll.InsertMany(ctx, docs)
	})
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return errors.Join(audit.ErrDuplicateRecord, err)
		}
		return errors.Join(ErrInsert, err)
	}
	return nil
}

func (s *Storage) Query(ctx context.Context, criteria audit.Criteria) ([]audit.Record, error) {
	filter, err := s.filter(ctx, criteria)
	if err != nil {
		return nil, err
	}

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	if criteria.Limit > 0 {
		opts.SetLimit(int64(criteria.Limit))
	}

	cur, err := s.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, errors.Join(ErrQuery, err)
	}
	var docs []document
	if err := cur.All(ctx, &docs); err != nil {
		return nil, errors.Join(ErrQuery, err)
	}

	records := make([]audit.Record, 0, len(docs))
	for _, d := range docs {
		records = append(records, d.record())
	}
	return records, nil
}

func (s *Storage) Count(ctx context.Context, criteria audit.Criteria) (int64, error) {
	criteria.Cursor = ""
	n, err := s.coll.CountDocuments(ctx, buildFilter(criteria, time.Time{}))
	if err != nil {
		return 0, errors.Join(ErrQuery, err)
	}
	return n, nil
}

func (s *Storage) filter(ctx context.Context, c audit.Criteria) (bson.D, error) {
	if c.Cursor == "" {
		return buildFilter(c, time.Time{}), nil
	}

	var last struct {
		CreatedAt time.Time `bson:"created_at"`
	}
	err := s.coll.FindOne(ctx, bson.D{{Key: "_id", Value: c.Cursor}},
		options.FindOne().SetProjection(bson.D{{Key: "created_at", Value: 1}}),
	).Decode(&last)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, audit.ErrInvalidCursor
		}
		return nil, errors.Join(ErrQuery, err)
	}
	return buildFilter(c, last.CreatedAt), nil
}

// buildFilter translates criteria into a query document. A non-zero
// cursorAt adds the keyset condition for records after the cursor.
func buildFilter(c audit.Criteria, cursorAt time.Time) bson.D {
	filter := bson.D{}
	if c.Log != "" {
		filter = append(filter, bson.E{Key: "log", Value: c.Log})
	}
	if c.ItemType != "" {
		filter = append(filter, bson.E{Key: "item_type", Value: c.ItemType})
	}
	if c.ItemID != "" {
		filter = append(filter, bson.E{Key: "item_id", Value: c.ItemID})
	}
	if c.Whodunnit != "" {
		filter = append(filter, bson.E{Key: "whodunnit", Value: c.Whodunnit})
	}
	if len(c.Events) > 0 {
		events := make(bson.A, len(c.Events))
		for i, e := range c.Events {
			events[i] = e.String()
		}
		filter = append(filter, bson.E{Key: "event", Value: bson.D{{Key: "$in", Value: events}}})
	}

	var created bson.D
	if !c.Since.IsZero() {
		created = append(created, bson.E{Key: "$gte", Value: c.Since})
	}
	if !c.Until.IsZero() {
		created = append(created, bson.E{Key: "$lt", Value: c.Until})
	}
	if len(created) > 0 {
		filter = append(filter, bson.E{Key: "created_at", Value: created})
	}

	if c.Cursor != "" && !cursorAt.IsZero() {
		filter = append(filter, bson.E{Key: "$or", Value: bson.A{
			bson.D{{Key: "created_at", Value: bson.D{{Key: "$gt", Value: cursorAt}}}},
			bson.D{{Key: "created_at", Value: cursorAt}, {Key: "_id", Value: bson.D{{Key: "$gt", Value: c.Cursor}}}},
		}})
	}
	return filter
}

var _ interface {
	audit.BatchStorage
	audit.StorageCounter
} = (*Storage)(nil)
