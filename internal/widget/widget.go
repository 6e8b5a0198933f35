// Package widget is a small catalogue service whose mutations are audited.
// It shows the engine hooks wired by hand, without an ORM.
package widget

import (
	"errors"
	"time"
)

// ItemType is the entity type widgets are registered under.
const ItemType = "Widget"

var (
	ErrNotFound = errors.New("widget: not found")
	ErrInvalid  = errors.New("widget: invalid input")
)

type Widget struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Price     int64     `json:"price"`
	Status    string    `json:"status"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AuditAttribute exposes attributes to metadata accessors.
func (w *Widget) AuditAttribute(name string) (any, bool) {
	switch name {
	case "status":
		return w.Status, true
	case "price_band":
		if w.Price >= 10000 {
			return "premium", true
		}
		return "standard", true
	}
	return nil, false
}

// Patch is a partial update. Nil fields are left unchanged.
type Patch struct {
	Name   *string `json:"name"`
	Price  *int64  `json:"price"`
	Status *string `json:"status"`
}

func (p Patch) validate() error {
	if p.Name != nil && *p.Name == "" {
		return errors.Join(ErrInvalid, errors.New("name cannot be empty"))
	}
	if p.Price != nil && *p.Price < 0 {
		return errors.Join(ErrInvalid, errors.New("price cannot be negative"))
	}
	return nil
}
