package main

import (
	"context"
	"errors"
	"log/slog"

	"github.com/tuannm99/sqlfan/internal"
	"github.com/tuannm99/sqlfan/internal/catalog"
	"github.com/tuannm99/sqlfan/internal/pgdriver"
	"github.com/tuannm99/sqlfan/internal/run"
	"github.com/tuannm99/sqlfan/sqlclient"
)

// backend is where submissions go: an in-process orchestrator or a server.
type backend interface {
	Submit(ctx context.Context, targets []string, query string, fn func(run.Event)) error
	Databases(ctx context.Context) ([]string, error)
	Close() error
}

var _ backend = (*sqlclient.Client)(nil)

type localBackend struct {
	orch    *run.Orchestrator
	catalog *catalog.Catalog
}

func newLocalBackend(cfg *internal.SqlFanConfig, logger *slog.Logger) (*localBackend, error) {
	provider, err := pgdriver.NewProvider(cfg.Server.DSN, cfg.Server.ConnectTimeout)
	if err != nil {
		return nil, err
	}
	orch := run.New(provider, run.Config{
		BatchSize:   cfg.Run.BatchSize,
		Parallelism: cfg.Run.Parallelism,
		EventBuffer: cfg.Run.EventBuffer,
		Logger:      logger,
	})

	// Listing databases is optional; runs only need the provider.
	cat, err := catalog.Open(cfg.Server.DSN, cfg.Server.ExcludeDatabases...)
	if err != nil {
		logger.Warn("database catalog unavailable", "err", err)
		cat = nil
	}
	return &localBackend{orch: orch, catalog: cat}, nil
}

func (b *localBackend) Submit(ctx context.Context, targets []string, query string, fn func(run.Event)) error {
	_, err := b.orch.Submit(ctx, targets, query, fn)
	return err
}

func (b *localBackend) Databases(ctx context.Context) ([]string, error) {
	if b.catalog == nil {
		return nil, errors.New("database listing is not available")
	}
	return b.catalog.Databases(ctx)
}

func (b *localBackend) Close() error {
	if b.catalog == nil {
		return nil
	}
	return b.catalog.Close()
}
