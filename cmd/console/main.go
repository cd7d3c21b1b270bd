package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dmitrijs2005/freightdesk/internal/client/cli"
	"github.com/dmitrijs2005/freightdesk/internal/client/config"
	"github.com/dmitrijs2005/freightdesk/internal/client/httpapi"
	"github.com/dmitrijs2005/freightdesk/internal/client/metrics"
	"github.com/dmitrijs2005/freightdesk/internal/client/session"
	"github.com/dmitrijs2005/freightdesk/internal/client/storage"
	"github.com/dmitrijs2005/freightdesk/internal/logging"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	if err := run(cfg); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := logging.New(cfg.LogLevel, os.Stderr)

	db, err := storage.OpenSQLite(ctx, cfg.StoragePath)
	if err != nil {
		return err
	}
	defer db.Close()

	var repo storage.Repository = storage.NewSQLiteRepository(db)
	if cfg.StoragePassphrase != "" {
		sealed, err := storage.NewSealedRepository(ctx, repo, []byte(cfg.StoragePassphrase))
		if err != nil {
			return err
		}
		repo = sealed
	}

	creds := session.NewCredentials()
	api, err := httpapi.New(cfg.ServerBaseURL, creds, cfg.RequestTimeout)
	if err != nil {
		return err
	}

	registry, m := metrics.NewRegistry()
	if cfg.MetricsAddr != "" {
		srv := serveMetrics(ctx, cfg.MetricsAddr, registry, logger)
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = srv.Shutdown(sctx)
		}()
	}

	mgr := session.NewManager(repo, api, creds, session.Options{
		Logger:         logger,
		Metrics:        m,
		RequestTimeout: cfg.RequestTimeout,
	})
	defer mgr.Close()

	mgr.Initialize(ctx)

	cli.NewApp(mgr, api, logger, cfg.OnlineCheckInterval).Run(ctx)
	return nil
}

func serveMetrics(ctx context.Context, addr string, reg *prometheus.Registry, logger logging.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(reg))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info(ctx, "serving metrics", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(ctx, "metrics listener failed", "error", err)
		}
	}()

	return srv
}
