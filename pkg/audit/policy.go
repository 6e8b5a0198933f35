package audit

import (
	"errors"
	"fmt"
	"maps"
	"regexp"
	"slices"
)

var logNamePattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Policy is the declarative audit configuration of one entity type.
// It is copied on registration and never mutated afterwards.
type Policy struct {
	// Events lists the tracked lifecycle events. Empty means all three.
	Events []Event
	// Ignore lists fields whose change alone does not produce an update record.
	Ignore []string
	// Only restricts notable fields to this set when non-empty.
	Only []string
	// Skip lists fields that never count as changed and never appear in a diff.
	Skip []string
	// If and Unless gate update records on the entity instance.
	If     func(entity any) bool
	Unless func(entity any) bool
	// Meta declares extra values stored with every record of this type.
	Meta map[string]MetaProvider
	// LogName names the log the records are written to.
	LogName string
}

// PolicyOption configures a Policy during registration.
type PolicyOption func(*Policy)

// On limits tracking to the given lifecycle events.
func On(events ...Event) PolicyOption {
	return func(p *Policy) {
		p.Events = append(p.Events, events...)
	}
}

func Ignore(fields ...string) PolicyOption {
	return func(p *Policy) {
		p.Ignore = append(p.Ignore, fields...)
	}
}

func Only(fields ...string) PolicyOption {
	return func(p *Policy) {
		p.Only = append(p.Only, fields...)
	}
}

func Skip(fields ...string) PolicyOption {
	return func(p *Policy) {
		p.Skip = append(p.Skip, fields...)
	}
}

func If(fn func(entity any) bool) PolicyOption {
	return func(p *Policy) {
		p.If = fn
	}
}

func Unless(fn func(entity any) bool) PolicyOption {
	return func(p *Policy) {
		p.Unless = fn
	}
}

// Meta declares a metadata key resolved by the given provider.
func Meta(key string, provider MetaProvider) PolicyOption {
	return func(p *Policy) {
		if p.Meta == nil {
			p.Meta = make(map[string]MetaProvider)
		}
		p.Meta[key] = provider
	}
}

// LogName routes the records of this type to a named log.
func LogName(name string) PolicyOption {
	return func(p *Policy) {
		p.LogName = name
	}
}

// Tracks reports whether the policy records the given lifecycle event.
func (p Policy) Tracks(event Event) bool {
	if len(p.Events) == 0 {
		return true
	}
	return slices.Contains(p.Events, event)
}

func (p Policy) clone() Policy {
	p.Events = slices.Clone(p.Events)
	p.Ignore = slices.Clone(p.Ignore)
	p.Only = slices.Clone(p.Only)
	p.Skip = slices.Clone(p.Skip)
	p.Meta = maps.Clone(p.Meta)
	return p
}

func (p Policy) validate() error {
	var errs []error

	for _, e := range p.Events {
		if !e.IsLifecycle() {
			errs = append(errs, fmt.Errorf("event %q cannot be tracked", e))
		}
	}
	for _, set := range [][]string{p.Ignore, p.Only, p.Skip} {
		if slices.Contains(set, "") {
			errs = append(errs, errors.New("field names cannot be empty"))
			break
		}
	}
	for key, provider := range p.Meta {
		if key == "" {
			errs = append(errs, errors.New("metadata key cannot be empty"))
			continue
		}
		if err := provider.validate(); err != nil {
			errs = append(errs, fmt.Errorf("metadata %q: %w", key, err))
		}
	}
	if !logNamePattern.MatchString(p.LogName) {
		errs = append(errs, fmt.Errorf("log name %q is not a valid identifier", p.LogName))
	}

	if len(errs) > 0 {
		return errors.Join(append([]error{ErrInvalidPolicy}, errs...)...)
	}
	return nil
}

// notable applies the ignore, skip and only filters to a change set.
func (p Policy) notable(changes Changes) Changes {
	out := make(Changes, len(changes))
	for field, change := range changes {
		if slices.Contains(p.Ignore, field) || slices.Contains(p.Skip, field) {
			continue
		}
		if len(p.Only) > 0 && !slices.Contains(p.Only, field) {
			continue
		}
		out[field] = change
	}
	return out
}

// gate evaluates the If and Unless predicates.
func (p Policy) gate(entity any) bool {
	if p.If != nil && !p.If(entity) {
		return false
	}
	if p.Unless != nil && p.Unless(entity) {
		return false
	}
	return true
}

// MetaKind tells how a MetaProvider produces its value.
type MetaKind int

const (
	MetaConstant MetaKind = iota
	MetaAccessor
	MetaComputed
)

// MetaProvider yields one metadata value for an entity instance.
type MetaProvider struct {
	kind  MetaKind
	value any
	name  string
	fn    func(entity any) (any, error)
}

// Constant stores the same value on every record.
func Constant(value any) MetaProvider {
	return MetaProvider{kind: MetaConstant, value: value}
}

// Accessor reads a named attribute of the entity. See Attributer.
func Accessor(name string) MetaProvider {
	return MetaProvider{kind: MetaAccessor, name: name}
}

// Computed calls fn with the entity instance.
func Computed(fn func(entity any) (any, error)) MetaProvider {
	return MetaProvider{kind: MetaComputed, fn: fn}
}

func (m MetaProvider) Kind() MetaKind { return m.kind }

// Resolve produces the metadata value for the entity.
func (m MetaProvider) Resolve(entity any) (any, error) {
	switch m.kind {
	case MetaAccessor:
		return resolveAccessor(entity, m.name)
	case MetaComputed:
		return m.fn(entity)
	default:
		return m.value, nil
	}
}

func (m MetaProvider) validate() error {
	switch m.kind {
	case MetaAccessor:
		if m.name == "" {
			return errors.New("accessor name cannot be empty")
		}
	case MetaComputed:
		if m.fn == nil {
			return errors.New("computed provider needs a function")
		}
	}
	return nil
}
