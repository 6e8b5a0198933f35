// Package auditctx carries the audit state of a request on its context.Context.
//
// Each request or background task owns one State holding the acting identity
// (whodunnit), a per-request enabled flag and the metadata that is stored with
// every audit record produced while handling it. Derived contexts share the
// State of their parent; sibling requests never share one.
//
// # Usage
//
//	r := chi.NewRouter()
//	r.Use(auditctx.Middleware(
//		auditctx.WithActorResolver(func(r *http.Request) (string, bool) {
//			id := r.Header.Get("X-User-ID")
//			return id, id != ""
//		}),
//		auditctx.WithMetadataResolver(auditctx.RequestInfo),
//	))
//
// Outside of HTTP handlers attach a state explicitly:
//
//	ctx = auditctx.New(ctx)
//	ctx = auditctx.WithWhodunnit(ctx, "billing-worker")
//
// Reading a context without a state returns the defaults: no actor, auditing
// enabled and no metadata.
//
// # Logger integration
//
//	log := logger.New(logger.WithContextExtractors(auditctx.LoggerExtractor()))
package auditctx
