package auditctx

import "net/http"

// ActorResolver returns the identity responsible for changes made by the request.
type ActorResolver func(r *http.Request) (string, bool)

// MetadataResolver returns request information stored alongside every record.
type MetadataResolver func(r *http.Request) map[string]any

// EnabledResolver decides whether auditing is active for the request.
type EnabledResolver func(r *http.Request) bool

type config struct {
	actor    ActorResolver
	metadata MetadataResolver
	enabled  EnabledResolver
}

// Option configures the middleware.
type Option func(*config)

// WithActorResolver sets how the acting identity is found. Defaults to no actor.
func WithActorResolver(fn ActorResolver) Option {
	return func(c *config) {
		if fn != nil {
			c.actor = fn
		}
	}
}

// WithMetadataResolver sets how request metadata is collected. Defaults to none.
func WithMetadataResolver(fn MetadataResolver) Option {
	return func(c *config) {
		if fn != nil {
			c.metadata = fn
		}
	}
}

// WithEnabledResolver sets when auditing is active. Defaults to always.
func WithEnabledResolver(fn EnabledResolver) Option {
	return func(c *config) {
		if fn != nil {
			c.enabled = fn
		}
	}
}

// Middleware attaches a fresh audit state to every request and fills it
// before the next handler runs, so tracked mutations see the actor,
// the enabled flag and the metadata.
func Middleware(opts ...Option) func(http.Handler) http.Handler {
	cfg := &config{
		actor:    func(*http.Request) (string, bool) { return "", false },
		metadata: func(*http.Request) map[string]any { return nil },
		enabled:  func(*http.Request) bool { return true },
	}
	for _, opt := range opts {
		opt(cfg)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			state := NewState()
			if who, ok := cfg.actor(r); ok {
				state.SetWhodunnit(who)
			}
			state.SetMetadata(cfg.metadata(r))
			state.SetEnabled(cfg.enabled(r))

			ctx := r.Context()
			ctx = withState(ctx, state)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
