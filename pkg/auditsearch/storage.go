package auditsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/opensearch-project/opensearch-go/v2"
	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"

	"github.com/dmitrymomot/auditkit/pkg/audit"
)

const defaultPageSize = 500

// mapping keeps the diff and metadata in _source without indexing them, so
// arbitrary entity fields never grow the index mapping.
const mapping = `{
	"mappings": {
		"dynamic": "strict",
		"properties": {
			"id":             {"type": "keyword"},
			"log":            {"type": "keyword"},
			"event":          {"type": "keyword"},
			"item_type":      {"type": "keyword"},
			"item_id":        {"type": "keyword"},
			"whodunnit":      {"type": "keyword"},
			"object_changes": {"type": "object", "enabled": false},
			"metadata":       {"type": "object", "enabled": false},
			"created_at":     {"type": "date_nanos"}
		}
	}
}`

// Storage keeps every log in its own index named <prefix>-<log>.
type Storage struct {
	client   *opensearch.Client
	prefix   string
	refresh  string
	pageSize int
	ready    sync.Map
}

type Option func(*Storage)

func WithIndexPrefix(prefix string) Option {
	return func(s *Storage) {
		if prefix != "" {
			s.prefix = strings.ToLower(prefix)
		}
	}
}

// WithRefresh sets the refresh parameter of write requests.
func WithRefresh(refresh string) Option {
	return func(s *Storage) {
		s.refresh = refresh
	}
}

// WithPageSize sets how many hits a search returns when the criteria have no limit.
func WithPageSize(n int) Option {
	return func(s *Storage) {
		if n > 0 {
			s.pageSize = n
		}
	}
}

func NewStorage(client *opensearch.Client, opts ...Option) *Storage {
	if client == nil {
		panic("auditsearch: client cannot be nil")
	}
	s := &Storage{client: client, prefix: "audit", pageSize: defaultPageSize}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// IndexName returns the index holding the given log.
func (s *Storage) IndexName(log string) string {
	return s.prefix + "-" + strings.ToLower(log)
}

// EnsureIndex creates the index of log with the audit mapping unless it exists.
func (s *Storage) EnsureIndex(ctx context.Context, log string) error {
	index := s.IndexName(log)
	if _, ok := s.ready.Load(index); ok {
		return nil
	}

	res, err := opensearchapi.IndicesExistsRequest{Index: []string{index}}.Do(ctx, s.client)
	if err != nil {
		return errors.Join(ErrIndex, err)
	}
	res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		res, err := opensearchapi.IndicesCreateRequest{
			Index: index,
			Body:  strings.NewReader(mapping),
		}.Do(ctx, s.client)
		if err != nil {
			return errors.Join(ErrIndex, err)
		}
		defer res.Body.Close()
		// 400 resource_already_exists_exception means another writer won the race.
		if res.IsError() && !strings.Contains(readAll(res.Body), "resource_already_exists_exception") {
			return fmt.Errorf("%w: %s: %s", ErrIndex, index, res.Status())
		}
	} else if res.IsError() {
		return fmt.Errorf("%w: %s: %s", ErrIndex, index, res.Status())
	}

	s.ready.Store(index, struct{}{})
	return nil
}

func (s *Storage) Store(ctx context.Context, record audit.Record) error {
	if err := record.Validate(); err != nil {
		return err
	}
	if err := s.EnsureIndex(ctx, record.Log); err != nil {
		return err
	}
	body, err := json.Marshal(record)
	if err != nil {
		return errors.Join(ErrInsert, err)
	}

	res, err := opensearchapi.CreateRequest{
		Index:      s.IndexName(record.Log),
		DocumentID: record.ID,
		Body:       bytes.NewReader(body),
		Refresh:    s.refresh,
	}.Do(ctx, s.client)
	if err != nil {
		return errors.Join(ErrInsert, err)
	}
	defer res.Body.Close()

	switch {
	case res.StatusCode == http.StatusConflict:
		return fmt.Errorf("%w: %s", audit.ErrDuplicateRecord, record.ID)
	case res.IsError():
		return fmt.Errorf("%w: %s: %s", ErrInsert, res.Status(), readAll(res.Body))
	}
	return nil
}

type bulkItem struct {
	ID     string          `json:"_id"`
	Index  string          `json:"_index"`
	Status int             `json:"status"`
	Error  json.RawMessage `json:"error,omitempty"`
}

type bulkResponse struct {
	Errors bool                  `json:"errors"`
	Items  []map[string]bulkItem `json:"items"`
}

// StoreBatch indexes the records with one bulk request. OpenSearch applies
// bulk actions one by one, so when any of them fails the documents created
// by this batch are deleted again.
func (s *Storage) StoreBatch(ctx context.Context, records []audit.Record) error {
	if len(records) == 0 {
		return nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, r := range records {
		if err := r.Validate(); err != nil {
			return err
		}
		if err := s.EnsureIndex(ctx, r.Log); err != nil {
			return err
		}
		action := map[string]any{"create": map[string]any{"_index": s.IndexName(r.Log), "_id": r.ID}}
		if err := enc.Encode(action); err != nil {
			return errors.Join(ErrInsert, err)
		}
		if err := enc.Encode(r); err != nil {
			return errors.Join(ErrInsert, err)
		}
	}

	result, err := s.bulk(ctx, &buf)
	if err != nil {
		return err
	}
	if !result.Errors {
		return nil
	}

	var (
		created   []bulkItem
		duplicate bool
		cause     error
	)
	for _, item := range result.Items {
		it := item["create"]
		switch {
		case it.Status >= 200 && it.Status < 300:
			created = append(created, it)
		case it.Status == http.StatusConflict:
			duplicate = true
		case cause == nil:
			cause = fmt.Errorf("%w: %s: %s", ErrInsert, it.ID, it.Error)
		}
	}

	if len(created) > 0 {
		var del bytes.Buffer
		enc := json.NewEncoder(&del)
		for _, it := range created {
			if err := enc.Encode(map[string]any{"delete": map[string]any{"_index": it.Index, "_id": it.ID}}); err != nil {
				return errors.Join(ErrInsert, err)
			}
		}
		if _, err := s.bulk(ctx, &del); err != nil {
			return errors.Join(ErrInsert, fmt.Errorf("rollback of %d records failed", len(created)), err)
		}
	}

	if duplicate {
		return audit.ErrDuplicateRecord
	}
	if cause == nil {
		cause = ErrInsert
	}
	return cause
}

func (s *Storage) bulk(ctx context.Context, body io.Reader) (bulkResponse, error) {
	var result bulkResponse
	res, err := opensearchapi.BulkRequest{Body: body, Refresh: s.refresh}.Do(ctx, s.client)
	if err != nil {
		return result, errors.Join(ErrInsert, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return result, fmt.Errorf("%w: %s: %s", ErrInsert, res.Status(), readAll(res.Body))
	}
	if err := json.NewDecoder(res.Body).Decode(&result); err != nil {
		return result, errors.Join(ErrInsert, err)
	}
	return result, nil
}

type searchResponse struct {
	Hits struct {
		Hits []struct {
			Source audit.Record      `json:"_source"`
			Sort   []json.RawMessage `json:"sort"`
		} `json:"hits"`
	} `json:"hits"`
}

func (s *Storage) Query(ctx context.Context, criteria audit.Criteria) ([]audit.Record, error) {
	var after []json.RawMessage
	if criteria.Cursor != "" {
		var err error
		if after, err = s.cursor(ctx, criteria); err != nil {
			return nil, err
		}
	}

	var records []audit.Record
	for {
		size := s.pageSize
		if criteria.Limit > 0 {
			size = min(size, criteria.Limit-len(records))
		}

		body := searchBody(criteria, size, after)
		result, err := s.search(ctx, criteria.Log, body)
		if err != nil {
			return nil, err
		}
		for _, hit := range result.Hits.Hits {
			records = append(records, hit.Source)
		}

		hits := result.Hits.Hits
		if len(hits) < size || (criteria.Limit > 0 && len(records) >= criteria.Limit) {
			return records, nil
		}
		after = hits[len(hits)-1].Sort
	}
}

// cursor returns the sort values of the cursor record, which become
// search_after of the next page. They stay raw: date_nanos sort values do
// not fit a float64.
func (s *Storage) cursor(ctx context.Context, c audit.Criteria) ([]json.RawMessage, error) {
	body := map[string]any{
		"size":  1,
		"query": map[string]any{"term": map[string]any{"id": c.Cursor}},
		"sort":  sortOrder,
	}
	result, err := s.search(ctx, "", body)
	if err != nil {
		return nil, err
	}
	if len(result.Hits.Hits) == 0 {
		return nil, audit.ErrInvalidCursor
	}
	return result.Hits.Hits[0].Sort, nil
}

func (s *Storage) search(ctx context.Context, log string, body map[string]any) (searchResponse, error) {
	var result searchResponse
	b, err := json.Marshal(body)
	if err != nil {
		return result, errors.Join(ErrQuery, err)
	}

	res, err := opensearchapi.SearchRequest{
		Index: []string{s.indexPattern(log)},
		Body:  bytes.NewReader(b),
	}.Do(ctx, s.client)
	if err != nil {
		return result, errors.Join(ErrQuery, err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return result, nil
	}
	if res.IsError() {
		return result, fmt.Errorf("%w: %s: %s", ErrQuery, res.Status(), readAll(res.Body))
	}
	if err := json.NewDecoder(res.Body).Decode(&result); err != nil {
		return result, errors.Join(ErrQuery, err)
	}
	return result, nil
}

func (s *Storage) Count(ctx context.Context, criteria audit.Criteria) (int64, error) {
	b, err := json.Marshal(map[string]any{"query": query(criteria)})
	if err != nil {
		return 0, errors.Join(ErrQuery, err)
	}

	res, err := opensearchapi.CountRequest{
		Index: []string{s.indexPattern(criteria.Log)},
		Body:  bytes.NewReader(b),
	}.Do(ctx, s.client)
	if err != nil {
		return 0, errors.Join(ErrQuery, err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return 0, nil
	}
	if res.IsError() {
		return 0, fmt.Errorf("%w: %s: %s", ErrQuery, res.Status(), readAll(res.Body))
	}
	var result struct {
		Count int64 `json:"count"`
	}
	if err := json.NewDecoder(res.Body).Decode(&result); err != nil {
		return 0, errors.Join(ErrQuery, err)
	}
	return result.Count, nil
}

func (s *Storage) indexPattern(log string) string {
	if log == "" {
		return s.prefix + "-*"
	}
	return s.IndexName(log)
}

var sortOrder = []any{
	map[string]any{"created_at": "asc"},
	map[string]any{"id": "asc"},
}

func searchBody(c audit.Criteria, size int, after []json.RawMessage) map[string]any {
	body := map[string]any{
		"size":  size,
		"query": query(c),
		"sort":  sortOrder,
	}
	if len(after) > 0 {
		body["search_after"] = after
	}
	return body
}

// query builds a bool filter from the criteria. Cursor and limit are
// handled by the caller.
func query(c audit.Criteria) map[string]any {
	var filter []any
	term := func(field, value string) {
		if value != "" {
			filter = append(filter, map[string]any{"term": map[string]any{field: value}})
		}
	}
	term("log", c.Log)
	term("item_type", c.ItemType)
	term("item_id", c.ItemID)
	term("whodunnit", c.Whodunnit)

	if len(c.Events) > 0 {
		events := make([]string, len(c.Events))
		for i, e := range c.Events {
			events[i] = e.String()
		}
		filter = append(filter, map[string]any{"terms": map[string]any{"event": events}})
	}

	if !c.Since.IsZero() || !c.Until.IsZero() {
		r := map[string]any{}
		if !c.Since.IsZero() {
			r["gte"] = c.Since
		}
		if !c.Until.IsZero() {
			r["lt"] = c.Until
		}
		filter = append(filter, map[string]any{"range": map[string]any{"created_at": r}})
	}

	if len(filter) == 0 {
		return map[string]any{"match_all": map[string]any{}}
	}
	return map[string]any{"bool": map[string]any{"filter": filter}}
}

func readAll(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, 4096))
	return string(b)
}

var _ interface {
	audit.BatchStorage
	audit.StorageCounter
} = (*Storage)(nil)
