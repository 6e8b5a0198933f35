package auditctx

import (
	"net"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
)

// Metadata keys set by RequestInfo.
const (
	MetaIP        = "ip"
	MetaUserAgent = "user_agent"
	MetaRequestID = "request_id"
)

// RequestIDHeader is read when no request id was assigned by chi's RequestID middleware.
const RequestIDHeader = "X-Request-ID"

// RequestInfo is a MetadataResolver that records the client address, the
// user agent and the request id. Empty values are left out.
func RequestInfo(r *http.Request) map[string]any {
	m := make(map[string]any, 3)
	if ip := ClientIP(r); ip != "" {
		m[MetaIP] = ip
	}
	if ua := r.UserAgent(); ua != "" {
		m[MetaUserAgent] = ua
	}
	if id := requestID(r); id != "" {
		m[MetaRequestID] = id
	}
	return m
}

// ClientIP returns the originating client address. Proxy headers are checked
// first: CF-Connecting-IP, then the first valid X-Forwarded-For entry, then
// X-Real-IP. RemoteAddr is the fallback.
func ClientIP(r *http.Request) string {
	if ip := normalizeIP(r.Header.Get("CF-Connecting-IP")); ip != "" {
		return ip
	}
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		for part := range strings.SplitSeq(fwd, ",") {
			if ip := normalizeIP(part); ip != "" {
				return ip
			}
		}
	}
	if ip := normalizeIP(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return normalizeIP(r.RemoteAddr)
	}
	return normalizeIP(host)
}

func normalizeIP(s string) string {
	ip := net.ParseIP(strings.TrimSpace(s))
	if ip == nil {
		return ""
	}
	return ip.String()
}

func requestID(r *http.Request) string {
	if id := middleware.GetReqID(r.Context()); id != "" {
		return id
	}
	return strings.TrimSpace(r.Header.Get(RequestIDHeader))
}
