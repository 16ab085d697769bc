package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/tuannm99/sqlfan/internal"
	"github.com/tuannm99/sqlfan/internal/catalog"
	"github.com/tuannm99/sqlfan/internal/pgdriver"
	"github.com/tuannm99/sqlfan/internal/run"
	"github.com/tuannm99/sqlfan/server/fanwire"
)

func main() {
	cfgPath := flag.String("config", "", "config file (yaml)")
	addr := flag.String("addr", "", "listen address, overrides server.addr")
	flag.Parse()

	cfg, err := internal.LoadConfig(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	logger, err := internal.NewLogger(cfg.Log, os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	provider, err := pgdriver.NewProvider(cfg.Server.DSN, cfg.Server.ConnectTimeout)
	if err != nil {
		logger.Error("init provider", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sc := fanwire.ServerConfig{Addr: cfg.Server.Addr, Logger: logger}

	cat, err := catalog.Open(cfg.Server.DSN, cfg.Server.ExcludeDatabases...)
	if err != nil {
		logger.Warn("database catalog unavailable", "err", err)
	} else {
		defer func() { _ = cat.Close() }()
		if err := cat.Ping(ctx); err != nil {
			logger.Warn("database catalog unreachable", "err", err)
		}
		sc.Lister = cat
	}

	orch := run.New(provider, run.Config{
		BatchSize:   cfg.Run.BatchSize,
		Parallelism: cfg.Run.Parallelism,
		EventBuffer: cfg.Run.EventBuffer,
		Logger:      logger,
	})

	logger.Info("starting", "app", cfg.AppName, "parallelism", cfg.Run.Parallelism)
	if err := fanwire.Run(ctx, sc, orch); err != nil {
		logger.Error("server stopped", "err", err)
		os.Exit(1)
	}
	logger.Info("shutting down")
}
