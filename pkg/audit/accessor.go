package audit

import (
	"fmt"
	"reflect"
)

// Attributer lets an entity expose named attributes to Accessor providers
// without reflection.
type Attributer interface {
	AuditAttribute(name string) (any, bool)
}

// EventNamer lets an entity replace the "update" label of its next update record,
// e.g. a_decimal_change. An empty name keeps the default.
type EventNamer interface {
	AuditEvent() string
}

var errorType = reflect.TypeFor[error]()

// resolveAccessor looks the name up as Attributer attribute, then as an exported
// zero-argument method, then as an exported field.
func resolveAccessor(entity any, name string) (any, error) {
	if a, ok := entity.(Attributer); ok {
		if v, ok := a.AuditAttribute(name); ok {
			return v, nil
		}
	}

	if entity == nil {
		return nil, fmt.Errorf("%w: %q on nil entity", ErrUnknownAccessor, name)
	}

	v := reflect.ValueOf(entity)
	if m := v.MethodByName(name); m.IsValid() {
		return callAccessor(m, name)
	}

	for v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return nil, fmt.Errorf("%w: %q on nil entity", ErrUnknownAccessor, name)
		}
		v = v.Elem()
	}
	if v.Kind() == reflect.Struct {
		if f, ok := v.Type().FieldByName(name); ok && f.IsExported() {
			return v.FieldByIndex(f.Index).Interface(), nil
		}
	}

	return nil, fmt.Errorf("%w: %q on %T", ErrUnknownAccessor, name, entity)
}

func callAccessor(m reflect.Value, name string) (any, error) {
	t := m.Type()
	if t.NumIn() != 0 {
		return nil, fmt.Errorf("%w: method %q takes arguments", ErrUnknownAccessor, name)
	}

	switch {
	case t.NumOut() == 1:
		return m.Call(nil)[0].Interface(), nil
	case t.NumOut() == 2 && t.Out(1) == errorType:
		out := m.Call(nil)
		if err, _ := out[1].Interface().(error); err != nil {
			return nil, err
		}
		return out[0].Interface(), nil
	default:
		return nil, fmt.Errorf("%w: method %q must return a value", ErrUnknownAccessor, name)
	}
}
