package auditsearch_test

import (
	"bufio"
	"encoding/json"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/dmitrymomot/auditkit/pkg/audit"
)

// fakeCluster answers the handful of OpenSearch endpoints the storage uses
// and evaluates the bool filters it builds.
type fakeCluster struct {
	mu         sync.Mutex
	indices    map[string]map[string]audit.Record
	mappings   map[string]string
	failCreate map[string]bool
	unhealthy  bool
}

func newFakeCluster() *fakeCluster {
	return &fakeCluster{
		indices:    map[string]map[string]audit.Record{},
		mappings:   map[string]string{},
		failCreate: map[string]bool{},
	}
}

func (f *fakeCluster) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	path := r.URL.Path
	segments := strings.Split(strings.Trim(path, "/"), "/")

	switch {
	case path == "/":
		if f.unhealthy {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"error":"unavailable"}`))
			return
		}
		_, _ = w.Write([]byte(`{"version":{"number":"2.11.1","distribution":"opensearch"}}`))
	case r.Method == http.MethodHead:
		if _, ok := f.indices[segments[0]]; !ok {
			w.WriteHeader(http.StatusNotFound)
		}
	case strings.HasSuffix(path, "/_bulk"):
		f.bulk(w, r)
	case len(segments) == 3 && segments[1] == "_create":
		f.create(w, r, segments[0], segments[2])
	case strings.HasSuffix(path, "/_search"):
		f.search(w, r, segments[0])
	case strings.HasSuffix(path, "/_count"):
		f.count(w, r, segments[0])
	case r.Method == http.MethodPut && len(segments) == 1:
		var body strings.Builder
		_, _ = bufio.NewReader(r.Body).WriteTo(&body)
		f.indices[segments[0]] = map[string]audit.Record{}
		f.mappings[segments[0]] = body.String()
		_, _ = w.Write([]byte(`{"acknowledged":true}`))
	default:
		w.WriteHeader(http.StatusBadRequest)
	}
}

func (f *fakeCluster) create(w http.ResponseWriter, r *http.Request, index, id string) {
	var rec audit.Record
	if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	docs, ok := f.indices[index]
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if _, exists := docs[id]; exists {
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"error":{"type":"version_conflict_engine_exception"}}`))
		return
	}
	docs[id] = rec
	w.WriteHeader(http.StatusCreated)
	_, _ = w.Write([]byte(`{"result":"created"}`))
}

func (f *fakeCluster) bulk(w http.ResponseWriter, r *http.Request) {
	type meta struct {
		Index string `json:"_index"`
		ID    string `json:"_id"`
	}
	var (
		items  []map[string]any
		errors bool
	)
	sc := bufio.NewScanner(r.Body)
	sc.Buffer(make([]byte, 1<<20), 1<<20)
	for sc.Scan() {
		var action map[string]meta
		if err := json.Unmarshal(sc.Bytes(), &action); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if m, ok := action["delete"]; ok {
			delete(f.indices[m.Index], m.ID)
			items = append(items, map[string]any{"delete": map[string]any{"_index": m.Index, "_id": m.ID, "status": 200}})
			continue
		}
		m := action["create"]
		sc.Scan()
		var rec audit.Record
		_ = json.Unmarshal(sc.Bytes(), &rec)

		status := http.StatusCreated
		switch {
		case f.failCreate[m.ID]:
			status = http.StatusInternalServerError
		case hasDoc(f.indices[m.Index], m.ID):
			status = http.StatusConflict
		default:
			f.indices[m.Index][m.ID] = rec
		}
		item := map[string]any{"_index": m.Index, "_id": m.ID, "status": status}
		if status >= 300 {
			errors = true
			item["error"] = map[string]any{"type": "failure"}
		}
		items = append(items, map[string]any{"create": item})
	}
	_ = json.NewEncoder(w).Encode(map[string]any{"errors": errors, "items": items})
}

func hasDoc(docs map[string]audit.Record, id string) bool {
	_, ok := docs[id]
	return ok
}

type searchRequest struct {
	Size        int               `json:"size"`
	Query       map[string]any    `json:"query"`
	SearchAfter []json.RawMessage `json:"search_after"`
}

func (f *fakeCluster) matching(pattern string, query map[string]any) ([]audit.Record, bool) {
	var (
		out   []audit.Record
		found bool
	)
	for name, docs := range f.indices {
		if name != pattern && !(strings.HasSuffix(pattern, "*") && strings.HasPrefix(name, strings.TrimSuffix(pattern, "*"))) {
			continue
		}
		found = true
		for _, d := range docs {
			if matches(query, d) {
				out = append(out, d)
			}
		}
	}
	audit.SortRecords(out)
	return out, found || strings.HasSuffix(pattern, "*")
}

func (f *fakeCluster) search(w http.ResponseWriter, r *http.Request, pattern string) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	docs, ok := f.matching(pattern, req.Query)
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"type":"index_not_found_exception"}}`))
		return
	}

	if len(req.SearchAfter) == 2 {
		var (
			nanos int64
			id    string
		)
		_ = json.Unmarshal(req.SearchAfter[0], &nanos)
		_ = json.Unmarshal(req.SearchAfter[1], &id)
		docs = slices.DeleteFunc(docs, func(d audit.Record) bool {
			n := d.CreatedAt.UnixNano()
			return n < nanos || (n == nanos && d.ID <= id)
		})
	}
	if req.Size < len(docs) {
		docs = docs[:req.Size]
	}

	hits := make([]map[string]any, 0, len(docs))
	for _, d := range docs {
		hits = append(hits, map[string]any{"_source": d, "sort": []any{d.CreatedAt.UnixNano(), d.ID}})
	}
	_ = json.NewEncoder(w).Encode(map[string]any{"hits": map[string]any{"hits": hits}})
}

func (f *fakeCluster) count(w http.ResponseWriter, r *http.Request, pattern string) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	docs, ok := f.matching(pattern, req.Query)
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]any{"count": len(docs)})
}

func (f *fakeCluster) mapping(index string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.mappings[index]
	return m, ok
}

func (f *fakeCluster) indexCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.mappings)
}

func (f *fakeCluster) failOn(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failCreate[id] = true
}

func (f *fakeCluster) setUnhealthy() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unhealthy = true
}

func (f *fakeCluster) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, docs := range f.indices {
		n += len(docs)
	}
	return n
}

func matches(q map[string]any, d audit.Record) bool {
	fields := map[string]string{
		"id": d.ID, "log": d.Log, "event": d.Event.String(),
		"item_type": d.ItemType, "item_id": d.ItemID, "whodunnit": d.Whodunnit,
	}
	for kind, body := range q {
		args, _ := body.(map[string]any)
		switch kind {
		case "match_all":
		case "term":
			for field, v := range args {
				if fields[field] != v {
					return false
				}
			}
		case "terms":
			for field, v := range args {
				values, _ := v.([]any)
				if !slices.Contains(values, any(fields[field])) {
					return false
				}
			}
		case "range":
			bounds, _ := args["created_at"].(map[string]any)
			if s, ok := bounds["gte"].(string); ok {
				t, _ := time.Parse(time.RFC3339Nano, s)
				if d.CreatedAt.Before(t) {
					return false
				}
			}
			if s, ok := bounds["lt"].(string); ok {
				t, _ := time.Parse(time.RFC3339Nano, s)
				if !d.CreatedAt.Before(t) {
					return false
				}
			}
		case "bool":
			filters, _ := args["filter"].([]any)
			for _, f := range filters {
				fq, _ := f.(map[string]any)
				if !matches(fq, d) {
					return false
				}
			}
		default:
			return false
		}
	}
	return true
}
