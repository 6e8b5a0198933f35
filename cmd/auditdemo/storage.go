package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dmitrymomot/auditkit/pkg/audit"
	"github.com/dmitrymomot/auditkit/pkg/auditmongo"
	"github.com/dmitrymomot/auditkit/pkg/auditpg"
	"github.com/dmitrymomot/auditkit/pkg/auditredis"
	"github.com/dmitrymomot/auditkit/pkg/auditsearch"
	"github.com/dmitrymomot/auditkit/pkg/config"
	"github.com/dmitrymomot/auditkit/pkg/logger"
)

// backend is an opened audit storage with its readiness probe.
type backend struct {
	storage audit.BatchStorage
	check   func(context.Context) error
	close   func(context.Context) error
}

func noop(context.Context) error { return nil }

// openStorage connects the backend named by kind. Its configuration is read
// only when it is selected.
func openStorage(ctx context.Context, kind string, log *slog.Logger) (backend, error) {
	log = log.With(logger.Backend(kind))

	switch kind {
	case storageMemory:
		return backend{storage: audit.NewMemoryStorage(), check: noop, close: noop}, nil

	case storagePostgres:
		cfg, err := config.Load[auditpg.Config]()
		if err != nil {
			return backend{}, err
		}
		pool, err := auditpg.Connect(ctx, cfg)
		if err != nil {
			return backend{}, err
		}
		if err := auditpg.Migrate(ctx, pool, cfg, log); err != nil {
			pool.Close()
			return backend{}, err
		}
		return backend{
			storage: auditpg.NewStorage(pool),
			check:   auditpg.Healthcheck(pool),
			close:   func(context.Context) error { pool.Close(); return nil },
		}, nil

	case storageMongo:
		cfg, err := config.Load[auditmongo.Config]()
		if err != nil {
			return backend{}, err
		}
		client, err := auditmongo.Connect(ctx, cfg)
		if err != nil {
			return backend{}, err
		}
		s := auditmongo.NewStorage(auditmongo.Collection(client, cfg))
		if err := s.EnsureIndexes(ctx); err != nil {
			_ = client.Disconnect(ctx)
			return backend{}, err
		}
		return backend{storage: s, check: auditmongo.Healthcheck(client), close: client.Disconnect}, nil

	case storageRedis:
		cfg, err := config.Load[auditredis.Config]()
		if err != nil {
			return backend{}, err
		}
		client, err := auditredis.Connect(ctx, cfg)
		if err != nil {
			return backend{}, err
		}
		return backend{
			storage: auditredis.NewStorage(client, auditredis.WithPrefix(cfg.Prefix)),
			check:   auditredis.Healthcheck(client),
			close:   func(context.Context) error { return client.Close() },
		}, nil

	case storageOpenSearch:
		cfg, err := config.Load[auditsearch.Config]()
		if err != nil {
			return backend{}, err
		}
		client, err := auditsearch.New(ctx, cfg, nil)
		if err != nil {
			return backend{}, err
		}
		s := auditsearch.NewStorage(client,
			auditsearch.WithIndexPrefix(cfg.IndexPrefix),
			auditsearch.WithRefresh(cfg.Refresh),
		)
		if err := s.EnsureIndex(ctx, audit.DefaultLogName); err != nil {
			return backend{}, err
		}
		return backend{storage: s, check: auditsearch.Healthcheck(client), close: noop}, nil
	}

	return backend{}, fmt.Errorf("unknown audit storage %q", kind)
}
