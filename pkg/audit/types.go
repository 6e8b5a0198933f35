package audit

import (
	"fmt"
	"maps"
	"time"
)

// Event is the kind of mutation an audit record describes.
// Besides the three lifecycle events any custom label is allowed.
type Event string

const (
	EventCreate  Event = "create"
	EventUpdate  Event = "update"
	EventDestroy Event = "destroy"
)

// DefaultLogName is the log binding used when a policy does not name one.
const DefaultLogName = "audit_logs"

// IsLifecycle reports whether the event is one of create, update or destroy.
func (e Event) IsLifecycle() bool {
	switch e {
	case EventCreate, EventUpdate, EventDestroy:
		return true
	}
	return false
}

func (e Event) String() string { return string(e) }

// Change is a single field delta.
type Change struct {
	Before any `json:"before" bson:"before"`
	After  any `json:"after" bson:"after"`
}

// Changes maps a field name to its delta.
type Changes map[string]Change

// Fields returns the changed field names.
func (c Changes) Fields() []string {
	fields := make([]string, 0, len(c))
	for name := range c {
		fields = append(fields, name)
	}
	return fields
}

// Item identifies the audited entity instance. Value is the instance itself;
// it is handed to predicates and metadata providers.
type Item struct {
	Type  string
	ID    string
	Value any
}

// Record is a single, immutable audit log entry.
type Record struct {
	ID            string         `json:"id"`
	Log           string         `json:"log"`
	Event         Event          `json:"event"`
	ItemType      string         `json:"item_type"`
	ItemID        string         `json:"item_id"`
	Whodunnit     string         `json:"whodunnit,omitempty"`
	ObjectChanges Changes        `json:"object_changes,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
}

// Validate checks the fields every storage requires.
func (r *Record) Validate() error {
	if r.Event == "" {
		return fmt.Errorf("%w: event is required", ErrRecordValidation)
	}
	if r.ItemType == "" {
		return fmt.Errorf("%w: item type is required", ErrRecordValidation)
	}
	if r.Log == "" {
		return fmt.Errorf("%w: log name is required", ErrRecordValidation)
	}
	return nil
}

// Changeset returns what changed in this record. It is never nil.
func (r Record) Changeset() Changes {
	if r.ObjectChanges == nil {
		return Changes{}
	}
	return maps.Clone(r.ObjectChanges)
}

// Criteria selects records from a storage. Zero fields do not filter.
// Results are always ordered by CreatedAt, then ID, ascending.
type Criteria struct {
	Log       string
	ItemType  string
	ItemID    string
	Events    []Event
	Whodunnit string
	Since     time.Time
	Until     time.Time
	// Cursor is the ID of the last record of the previous page.
	Cursor string
	Limit  int
}
