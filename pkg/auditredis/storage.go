package auditredis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dmitrymomot/auditkit/pkg/audit"
)

const defaultScanSize = 200

// storeScript writes a batch of records atomically. KEYS[1] is the record
// hash, followed by the index keys of every record in order. ARGV[1] is the
// record count, followed by id, body, score and index key count per record.
// It returns the first id that already exists, or 0 when all were written.
var storeScript = redis.NewScript(`
local n = tonumber(ARGV[1])
for i = 0, n - 1 do
	local id = ARGV[2 + i * 4]
	if redis.call('HEXISTS', KEYS[1], id) == 1 then
		return id
	end
end
local k = 2
for i = 0, n - 1 do
	local base = 2 + i * 4
	local id = ARGV[base]
	local nkeys = tonumber(ARGV[base + 3])
	redis.call('HSET', KEYS[1], id, ARGV[base + 1])
	for j = 0, nkeys - 1 do
		redis.call('ZADD', KEYS[k + j], ARGV[base + 2], id)
	end
	k = k + nkeys
end
return 0
`)

// Storage keeps audit records in Redis. Bodies live in one hash keyed by
// record id; sorted sets scored by creation time index them by log, item,
// item type and actor. All keys share one hash tag, so the storage also works
// on a cluster.
//
// Scores have microsecond precision, and CreatedAt is truncated to match.
type Storage struct {
	client   redis.UniversalClient
	prefix   string
	scanSize int64
}

type Option func(*Storage)

// WithPrefix sets the hash tag every key starts with. Default is "audit".
func WithPrefix(prefix string) Option {
	return func(s *Storage) {
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

// WithScanSize sets how many index entries are read per round trip.
func WithScanSize(n int) Option {
	return func(s *Storage) {
		if n > 0 {
			s.scanSize = int64(n)
		}
	}
}

func NewStorage(client redis.UniversalClient, opts ...Option) *Storage {
	if client == nil {
		panic("auditredis: client cannot be nil")
	}
	s := &Storage{client: client, prefix: "audit", scanSize: defaultScanSize}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Storage) Store(ctx context.Context, record audit.Record) error {
	return s.StoreBatch(ctx, []audit.Record{record})
}

func (s *Storage) StoreBatch(ctx context.Context, records []audit.Record) error {
	if len(records) == 0 {
		return nil
	}

	keys := []string{s.key("records")}
	args := []any{len(records)}
	seen := make(map[string]struct{}, len(records))
	for _, r := range records {
		if err := r.Validate(); err != nil {
			return err
		}
		if _, ok := seen[r.ID]; ok {
			return fmt.Errorf("%w: %s", audit.ErrDuplicateRecord, r.ID)
		}
		seen[r.ID] = struct{}{}

		r.CreatedAt = r.CreatedAt.Truncate(time.Microsecond)
		body, err := json.Marshal(r)
		if err != nil {
			return errors.Join(ErrInsert, err)
		}
		idx := s.indexKeys(r)
		keys = append(keys, idx...)
		args = append(args, r.ID, body, score(r.CreatedAt), len(idx))
	}

	res, err := storeScript.Run(ctx, s.client, keys, args...).Result()
	if err != nil {
		return errors.Join(ErrInsert, err)
	}
	if id, ok := res.(string); ok {
		return fmt.Errorf("%w: %s", audit.ErrDuplicateRecord, id)
	}
	return nil
}

func (s *Storage) Query(ctx context.Context, criteria audit.Criteria) ([]audit.Record, error) {
	var records []audit.Record
	err := s.scan(ctx, criteria, func(r audit.Record) bool {
		records = append(records, r)
		return criteria.Limit <= 0 || len(records) < criteria.Limit
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// Count uses ZCOUNT when the chosen index covers the criteria, and scans
// otherwise.
func (s *Storage) Count(ctx context.Context, criteria audit.Criteria) (int64, error) {
	criteria.Cursor = ""
	criteria.Limit = 0

	key, covered := s.index(criteria)
	if covered && criteria.Since.Equal(criteria.Since.Truncate(time.Microsecond)) {
		minScore, maxScore := scoreRange(criteria)
		n, err := s.client.ZCount(ctx, key, minScore, maxScore).Result()
		if err != nil {
			return 0, errors.Join(ErrQuery, err)
		}
		return n, nil
	}

	var n int64
	err := s.scan(ctx, criteria, func(audit.Record) bool {
		n++
		return true
	})
	return n, err
}

// scan walks the best index in storage order and calls fn for every record
// matching c until fn returns false.
func (s *Storage) scan(ctx context.Context, c audit.Criteria, fn func(audit.Record) bool) error {
	key, _ := s.index(c)
	minScore, maxScore := scoreRange(c)

	var (
		cursorScore float64
		hasCursor   = c.Cursor != ""
	)
	if hasCursor {
		sc, err := s.client.ZScore(ctx, s.key("all"), c.Cursor).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return audit.ErrInvalidCursor
			}
			return errors.Join(ErrQuery, err)
		}
		cursorScore = sc
		if c.Since.IsZero() || sc > float64(c.Since.UnixMicro()) {
			minScore = formatScore(sc)
		}
	}

	for offset := int64(0); ; offset += s.scanSize {
		entries, err := s.client.ZRangeByScoreWithScores(ctx, key, &redis.ZRangeBy{
			Min:    minScore,
			Max:    maxScore,
			Offset: offset,
			Count:  s.scanSize,
		}).Result()
		if err != nil {
			return errors.Join(ErrQuery, err)
		}
		if len(entries) == 0 {
			return nil
		}

		ids := make([]string, 0, len(entries))
		for _, e := range entries {
			id, _ := e.Member.(string)
			if hasCursor && (e.Score < cursorScore || (e.Score == cursorScore && id <= c.Cursor)) {
				continue
			}
			ids = append(ids, id)
		}

		if len(ids) > 0 {
			bodies, err := s.client.HMGet(ctx, s.key("records"), ids...).Result()
			if err != nil {
				return errors.Join(ErrQuery, err)
			}
			for _, b := range bodies {
				body, ok := b.(string)
				if !ok {
					continue
				}
				var r audit.Record
				if err := json.Unmarshal([]byte(body), &r); err != nil {
					return errors.Join(ErrDecode, err)
				}
				if !c.Matches(r) {
					continue
				}
				if !fn(r) {
					return nil
				}
			}
		}

		if int64(len(entries)) < s.scanSize {
			return nil
		}
	}
}

// index picks the most selective sorted set for c and reports whether it
// alone answers every non-time condition.
func (s *Storage) index(c audit.Criteria) (string, bool) {
	switch {
	case c.ItemType != "" && c.ItemID != "":
		return s.key("item", c.ItemType, c.ItemID), c.Log == "" && c.Whodunnit == "" && len(c.Events) == 0
	case c.Whodunnit != "":
		return s.key("actor", c.Whodunnit), c.Log == "" && c.ItemType == "" && c.ItemID == "" && len(c.Events) == 0
	case c.ItemType != "":
		return s.key("type", c.ItemType), c.Log == "" && c.ItemID == "" && len(c.Events) == 0
	case c.Log != "":
		return s.key("log", c.Log), c.ItemID == "" && len(c.Events) == 0
	default:
		return s.key("all"), c.ItemID == "" && len(c.Events) == 0
	}
}

func (s *Storage) indexKeys(r audit.Record) []string {
	keys := []string{
		s.key("all"),
		s.key("log", r.Log),
		s.key("type", r.ItemType),
		s.key("item", r.ItemType, r.ItemID),
	}
	if r.Whodunnit != "" {
		keys = append(keys, s.key("actor", r.Whodunnit))
	}
	return keys
}

func (s *Storage) key(parts ...string) string {
	k := "{" + s.prefix + "}"
	for _, p := range parts {
		k += ":" + p
	}
	return k
}

func score(t time.Time) float64 {
	return float64(t.UnixMicro())
}

func formatScore(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// scoreRange maps Since (inclusive) and Until (exclusive) to ZRANGEBYSCORE bounds.
func scoreRange(c audit.Criteria) (string, string) {
	minScore, maxScore := "-inf", "+inf"
	if !c.Since.IsZero() {
		minScore = strconv.FormatInt(c.Since.Truncate(time.Microsecond).UnixMicro(), 10)
	}
	if !c.Until.IsZero() {
		until := c.Until.UnixMicro()
		if !c.Until.Equal(c.Until.Truncate(time.Microsecond)) {
			until++
		}
		maxScore = "(" + strconv.FormatInt(until, 10)
	}
	return minScore, maxScore
}

var _ interface {
	audit.BatchStorage
	audit.StorageCounter
} = (*Storage)(nil)
