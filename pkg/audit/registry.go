package audit

import (
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
)

// Registry holds the audit policy and the runtime enable flag of every
// tracked entity type. Attach policies during initialization, before traffic.
type Registry struct {
	mu       sync.RWMutex
	policies map[string]Policy
	flags    map[string]*atomic.Bool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		policies: make(map[string]Policy),
		flags:    make(map[string]*atomic.Bool),
	}
}

// Attach validates and stores the policy for an entity type.
// Attaching the same type again replaces its policy but keeps its enable flag.
func (r *Registry) Attach(entityType string, opts ...PolicyOption) error {
	if entityType == "" {
		return fmt.Errorf("%w: entity type is required", ErrInvalidPolicy)
	}

	var p Policy
	for _, opt := range opts {
		opt(&p)
	}
	if p.LogName == "" {
		p.LogName = DefaultLogName
	}
	if err := p.validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.policies[entityType] = p.clone()
	r.flagLocked(entityType)
	return nil
}

// MustAttach is Attach that panics on an invalid policy.
func (r *Registry) MustAttach(entityType string, opts ...PolicyOption) {
	if err := r.Attach(entityType, opts...); err != nil {
		panic(err)
	}
}

// Policy returns a copy of the policy registered for the entity type.
func (r *Registry) Policy(entityType string) (Policy, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.policies[entityType]
	if !ok {
		return Policy{}, false
	}
	return p.clone(), true
}

// Types lists the registered entity types in sorted order.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.policies))
	for t := range r.policies {
		types = append(types, t)
	}
	slices.Sort(types)
	return types
}

// Tracks reports whether records are produced for this type and event at all.
// Adapters use it to decide which lifecycle hooks to act on.
func (r *Registry) Tracks(entityType string, event Event) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.policies[entityType]
	return ok && p.Tracks(event)
}

// SetEnabled switches auditing of one entity type on or off at runtime.
// The flag is independent of the policy and of the global switch.
func (r *Registry) SetEnabled(entityType string, enabled bool) {
	r.flag(entityType).Store(enabled)
}

func (r *Registry) Enable(entityType string) { r.SetEnabled(entityType, true) }

func (r *Registry) Disable(entityType string) { r.SetEnabled(entityType, false) }

// IsEnabled reports the runtime flag of the entity type. Types default to enabled.
func (r *Registry) IsEnabled(entityType string) bool {
	return r.flag(entityType).Load()
}

// WithoutAuditing runs fn with auditing of the entity type switched off.
// The flag is restored on every exit path, including panics; a type that was
// already disabled stays disabled.
func (r *Registry) WithoutAuditing(entityType string, fn func() error) error {
	flag := r.flag(entityType)
	wasEnabled := flag.Load()
	flag.Store(false)
	defer func() {
		if wasEnabled {
			flag.Store(true)
		}
	}()
	return fn()
}

func (r *Registry) flag(entityType string) *atomic.Bool {
	r.mu.RLock()
	f, ok := r.flags[entityType]
	r.mu.RUnlock()
	if ok {
		return f
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.flagLocked(entityType)
}

func (r *Registry) flagLocked(entityType string) *atomic.Bool {
	if f, ok := r.flags[entityType]; ok {
		return f
	}
	f := &atomic.Bool{}
	f.Store(true)
	r.flags[entityType] = f
	return f
}
