package auditctx_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/auditkit/pkg/auditctx"
)

func headerActor(r *http.Request) (string, bool) {
	id := r.Header.Get("X-User-ID")
	return id, id != ""
}

func TestMiddleware(t *testing.T) {
	t.Parallel()

	t.Run("defaults", func(t *testing.T) {
		t.Parallel()
		var state *auditctx.State
		handler := auditctx.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			state = auditctx.FromContext(r.Context())
			w.WriteHeader(http.StatusOK)
		}))

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		require.NotNil(t, state)
		_, ok := state.Whodunnit()
		assert.False(t, ok)
		assert.True(t, state.Enabled())
		assert.Empty(t, state.Metadata())
	})

	t.Run("resolvers populate state", func(t *testing.T) {
		t.Parallel()
		mw := auditctx.Middleware(
			auditctx.WithActorResolver(headerActor),
			auditctx.WithMetadataResolver(func(r *http.Request) map[string]any {
				return map[string]any{"path": r.URL.Path}
			}),
			auditctx.WithEnabledResolver(func(r *http.Request) bool {
				return r.Header.Get("X-Audit") != "off"
			}),
		)

		var who string
		var enabled bool
		var meta map[string]any
		handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			s := auditctx.FromContext(r.Context())
			who, _ = s.Whodunnit()
			enabled = s.Enabled()
			meta = s.Metadata()
		}))

		req := httptest.NewRequest(http.MethodPost, "/widgets", nil)
		req.Header.Set("X-User-ID", "42")
		req.Header.Set("X-Audit", "off")
		handler.ServeHTTP(httptest.NewRecorder(), req)

		assert.Equal(t, "42", who)
		assert.False(t, enabled)
		assert.Equal(t, map[string]any{"path": "/widgets"}, meta)
	})

	t.Run("each request gets its own state", func(t *testing.T) {
		t.Parallel()
		var states []*auditctx.State
		handler := auditctx.Middleware(auditctx.WithActorResolver(headerActor))(
			http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				states = append(states, auditctx.FromContext(r.Context()))
			}),
		)

		for _, id := range []string{"a", "b"} {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set("X-User-ID", id)
			handler.ServeHTTP(httptest.NewRecorder(), req)
		}

		require.Len(t, states, 2)
		assert.NotSame(t, states[0], states[1])
		a, _ := states[0].Whodunnit()
		b, _ := states[1].Whodunnit()
		assert.Equal(t, "a", a)
		assert.Equal(t, "b", b)
	})

	t.Run("nil options are ignored", func(t *testing.T) {
		t.Parallel()
		handler := auditctx.Middleware(
			auditctx.WithActorResolver(nil),
			auditctx.WithMetadataResolver(nil),
			auditctx.WithEnabledResolver(nil),
		)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.True(t, auditctx.FromContext(r.Context()).Enabled())
		}))
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	})
}

func TestRequestInfo(t *testing.T) {
	t.Parallel()

	t.Run("from headers", func(t *testing.T) {
		t.Parallel()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("User-Agent", "curl/8.0")
		req.Header.Set("X-Forwarded-For", "garbage, 203.0.113.7, 10.0.0.1")
		req.Header.Set(auditctx.RequestIDHeader, "req-1")

		info := auditctx.RequestInfo(req)
		assert.Equal(t, "203.0.113.7", info[auditctx.MetaIP])
		assert.Equal(t, "curl/8.0", info[auditctx.MetaUserAgent])
		assert.Equal(t, "req-1", info[auditctx.MetaRequestID])
	})

	t.Run("chi request id wins", func(t *testing.T) {
		t.Parallel()
		var info map[string]any
		r := chi.NewRouter()
		r.Use(middleware.RequestID)
		r.Use(auditctx.Middleware(auditctx.WithMetadataResolver(auditctx.RequestInfo)))
		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			info = auditctx.FromContext(r.Context()).Metadata()
		})

		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

		require.NotNil(t, info)
		assert.NotEmpty(t, info[auditctx.MetaRequestID])
	})

	t.Run("empty values are omitted", func(t *testing.T) {
		t.Parallel()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "not-an-ip"
		req.Header.Del("User-Agent")

		info := auditctx.RequestInfo(req)
		assert.Empty(t, info)
	})
}

func TestClientIP(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{name: "cloudflare", headers: map[string]string{"CF-Connecting-IP": "198.51.100.1", "X-Real-IP": "10.0.0.2"}, remote: "10.0.0.3:1234", want: "198.51.100.1"},
		{name: "forwarded first valid", headers: map[string]string{"X-Forwarded-For": "bad, 198.51.100.2"}, remote: "10.0.0.3:1234", want: "198.51.100.2"},
		{name: "real ip", headers: map[string]string{"X-Real-IP": "198.51.100.3"}, remote: "10.0.0.3:1234", want: "198.51.100.3"},
		{name: "remote addr", remote: "192.0.2.10:5555", want: "192.0.2.10"},
		{name: "remote addr without port", remote: "192.0.2.11", want: "192.0.2.11"},
		{name: "ipv6", remote: "[2001:db8::1]:443", want: "2001:db8::1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, auditctx.ClientIP(req))
		})
	}
}
