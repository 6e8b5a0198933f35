package auditgorm

import (
	"reflect"

	"gorm.io/gorm/utils"

	"github.com/dmitrymomot/auditkit/pkg/audit"
)

// Typer overrides the item type of a model. The default is the gorm schema
// name, e.g. "Widget".
type Typer interface {
	AuditType() string
}

// Identifier overrides the item id of a model. The default is the primary key.
type Identifier interface {
	AuditID() string
}

// ChangeTracker lets a model report its own pending changes. When implemented
// the plugin does not derive changes from the statement.
type ChangeTracker interface {
	AuditChanges() audit.Changes
}

// same reports whether a stored and an assigned value are equal. Numbers of
// different kinds compare by value, so Update("qty", 3) on an int64 column is
// no change when the column already holds 3.
func same(before, after any) bool {
	if utils.AssertEqual(before, after) {
		return true
	}
	if before == nil || after == nil {
		return false
	}

	bv, av := reflect.ValueOf(before), reflect.ValueOf(after)
	if isNumber(bv.Kind()) && isNumber(av.Kind()) {
		return toFloat(bv) == toFloat(av)
	}
	return false
}

func isNumber(k reflect.Kind) bool {
	return (k >= reflect.Int && k <= reflect.Uint64) || k == reflect.Float32 || k == reflect.Float64
}

func toFloat(v reflect.Value) float64 {
	switch {
	case v.CanInt():
		return float64(v.Int())
	case v.CanUint():
		return float64(v.Uint())
	default:
		return v.Float()
	}
}
