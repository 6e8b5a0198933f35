package auditctx

import (
	"context"
	"log/slog"
	"maps"
)

// contextKey is a private type to prevent collisions with other context keys.
type contextKey struct{}

// State is the audit state of one in-flight request or task: who is acting,
// whether auditing is on for this request, and the metadata to store.
// A State belongs to a single request and is not synchronized.
type State struct {
	whodunnit string
	enabled   bool
	metadata  map[string]any
}

// NewState returns a state holding the defaults: no actor, enabled, no metadata.
func NewState() *State {
	return &State{enabled: true}
}

// SetWhodunnit sets who is responsible for changes made in this request.
func (s *State) SetWhodunnit(whodunnit string) { s.whodunnit = whodunnit }

// Whodunnit returns the acting identity. ok is false when there is no actor.
func (s *State) Whodunnit() (whodunnit string, ok bool) {
	return s.whodunnit, s.whodunnit != ""
}

func (s *State) SetEnabled(enabled bool) { s.enabled = enabled }

func (s *State) Enabled() bool { return s.enabled }

// SetMetadata replaces the request metadata with a copy of m.
func (s *State) SetMetadata(m map[string]any) { s.metadata = maps.Clone(m) }

// Metadata returns a copy of the request metadata, never nil.
func (s *State) Metadata() map[string]any {
	if s.metadata == nil {
		return map[string]any{}
	}
	return maps.Clone(s.metadata)
}

// New attaches a fresh default state to ctx. Call it once per request or task.
func New(ctx context.Context) context.Context {
	return withState(ctx, NewState())
}

func withState(ctx context.Context, s *State) context.Context {
	return context.WithValue(ctx, contextKey{}, s)
}

// Ensure returns the state attached to ctx, attaching a new one if there is none.
func Ensure(ctx context.Context) (context.Context, *State) {
	if s, ok := ctx.Value(contextKey{}).(*State); ok && s != nil {
		return ctx, s
	}
	s := NewState()
	return context.WithValue(ctx, contextKey{}, s), s
}

// FromContext returns the state attached to ctx. Without one it returns a
// detached state holding the defaults, so reads never fail.
func FromContext(ctx context.Context) *State {
	if ctx != nil {
		if s, ok := ctx.Value(contextKey{}).(*State); ok && s != nil {
			return s
		}
	}
	return NewState()
}

// WithWhodunnit sets the actor on the request state, attaching one if needed.
func WithWhodunnit(ctx context.Context, whodunnit string) context.Context {
	ctx, s := Ensure(ctx)
	s.SetWhodunnit(whodunnit)
	return ctx
}

func WithEnabled(ctx context.Context, enabled bool) context.Context {
	ctx, s := Ensure(ctx)
	s.SetEnabled(enabled)
	return ctx
}

func WithMetadata(ctx context.Context, m map[string]any) context.Context {
	ctx, s := Ensure(ctx)
	s.SetMetadata(m)
	return ctx
}

// LoggerExtractor returns a ContextExtractor for the logger that adds the acting identity.
func LoggerExtractor() func(ctx context.Context) (slog.Attr, bool) {
	return func(ctx context.Context) (slog.Attr, bool) {
		if who, ok := FromContext(ctx).Whodunnit(); ok {
			return slog.String("whodunnit", who), true
		}
		return slog.Attr{}, false
	}
}
