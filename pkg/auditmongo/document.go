package auditmongo

import (
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/dmitrymomot/auditkit/pkg/audit"
)

type change struct {
	Before any `bson:"before"`
	After  any `bson:"after"`
}

type document struct {
	ID            string            `bson:"_id"`
	Log           string            `bson:"log"`
	Event         string            `bson:"event"`
	ItemType      string            `bson:"item_type"`
	ItemID        string            `bson:"item_id"`
	Whodunnit     string            `bson:"whodunnit,omitempty"`
	ObjectChanges map[string]change `bson:"object_changes,omitempty"`
	Metadata      map[string]any    `bson:"metadata"`
	CreatedAt     time.Time         `bson:"created_at"`
}

func toDocument(r audit.Record) document {
	d := document{
		ID:        r.ID,
		Log:       r.Log,
		Event:     r.Event.String(),
		ItemType:  r.ItemType,
		ItemID:    r.ItemID,
		Whodunnit: r.Whodunnit,
		Metadata:  r.Metadata,
		CreatedAt: r.CreatedAt,
	}
	if d.Metadata == nil {
		d.Metadata = map[string]any{}
	}
	if r.ObjectChanges != nil {
		d.ObjectChanges = make(map[string]change, len(r.ObjectChanges))
		for field, c := range r.ObjectChanges {
			d.ObjectChanges[field] = change{Before: c.Before, After: c.After}
		}
	}
	return d
}

func (d document) record() audit.Record {
	r := audit.Record{
		ID:        d.ID,
		Log:       d.Log,
		Event:     audit.Event(d.Event),
		ItemType:  d.ItemType,
		ItemID:    d.ItemID,
		Whodunnit: d.Whodunnit,
		CreatedAt: d.CreatedAt.UTC(),
	}
	if d.ObjectChanges != nil {
		r.ObjectChanges = make(audit.Changes, len(d.ObjectChanges))
		for field, c := range d.ObjectChanges {
			r.ObjectChanges[field] = audit.Change{Before: plain(c.Before), After: plain(c.After)}
		}
	}
	if d.Metadata != nil {
		r.Metadata = make(map[string]any, len(d.Metadata))
		for k, v := range d.Metadata {
			r.Metadata[k] = plain(v)
		}
	}
	return r
}

// plain turns decoded BSON containers into maps, slices and times.
func plain(v any) any {
	switch t := v.(type) {
	case bson.D:
		m := make(map[string]any, len(t))
		for _, e := range t {
			m[e.Key] = plain(e.Value)
		}
		return m
	case bson.M:
		m := make(map[string]any, len(t))
		for k, e := range t {
			m[k] = plain(e)
		}
		return m
	case bson.A:
		s := make([]any, len(t))
		for i, e := range t {
			s[i] = plain(e)
		}
		return s
	case bson.DateTime:
		return t.Time().UTC()
	default:
		return v
	}
}
