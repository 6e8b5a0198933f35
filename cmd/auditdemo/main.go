// Command auditdemo serves a small widget catalogue whose changes are
// recorded by auditkit. The storage backend is chosen with AUDIT_STORAGE.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dmitrymomot/auditkit/internal/widget"
	"github.com/dmitrymomot/auditkit/pkg/audit"
	"github.com/dmitrymomot/auditkit/pkg/auditctx"
	"github.com/dmitrymomot/auditkit/pkg/config"
	"github.com/dmitrymomot/auditkit/pkg/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load[Config]()
	if err != nil {
		return err
	}
	logOpts, err := cfg.Log.Options()
	if err != nil {
		return err
	}
	log := logger.New(append(logOpts, logger.WithContextExtractors(auditctx.LoggerExtractor()))...)

	b, err := openStorage(ctx, cfg.Storage, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := b.close(context.Background()); err != nil {
			log.Error("close audit storage", logger.Error(err))
		}
	}()

	registry := audit.NewRegistry()
	registry.MustAttach(widget.ItemType,
		audit.Ignore("updated_at"),
		audit.Meta("status", audit.Accessor("status")),
		audit.Meta("price_band", audit.Accessor("price_band")),
	)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	engineOpts := []audit.EngineOption{
		audit.WithLogger(log),
		audit.WithMetrics(audit.NewMetrics(reg)),
		audit.WithMetadataFilter(audit.NewMetadataFilter()),
	}
	if cfg.Async {
		async := audit.NewAsyncStorage(b.storage, audit.AsyncOptions{})
		defer func() {
			if err := async.Close(context.Background()); err != nil {
				log.Error("flush audit records", logger.Error(err))
			}
		}()
		engineOpts = append(engineOpts, audit.WithDetachedStorage(async))
	}
	engine := audit.NewEngine(registry, b.storage, engineOpts...)

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer)
	r.Get("/healthz", healthz(b.check, log))
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	r.Group(func(r chi.Router) {
		r.Use(auditctx.Middleware(
			auditctx.WithActorResolver(func(r *http.Request) (string, bool) {
				who := r.Header.Get(cfg.ActorHeader)
				return who, who != ""
			}),
			auditctx.WithMetadataResolver(auditctx.RequestInfo),
		))
		widget.NewHandler(widget.NewService(engine), audit.NewReader(b.storage), log).Register(r)
	})

	srv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      r,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return serve(ctx, srv, cfg, log)
}

// serve runs srv until ctx is done and then shuts it down gracefully.
func serve(ctx context.Context, srv *http.Server, cfg Config, log *slog.Logger) error {
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	log.Info("auditdemo started", slog.String("addr", cfg.Addr), logger.Backend(cfg.Storage))

	var runErr error
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("graceful shutdown failed", logger.Error(err))
		}
		runErr = <-errCh
	case runErr = <-errCh:
	}

	if runErr != nil && !errors.Is(runErr, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", runErr)
	}
	log.Info("auditdemo stopped")
	return nil
}

func healthz(check func(context.Context) error, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := check(r.Context()); err != nil {
			log.WarnContext(r.Context(), "healthcheck failed", logger.Error(err))
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
