// Package main implements sweepd, the background daemon of the mining
// rewards engine. It runs the daily activity/claim sweep over every known
// user and serves Prometheus metrics while doing so.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/vikramsomai/elixir-Mining-Network-sub001/internal/config"
	"github.com/vikramsomai/elixir-Mining-Network-sub001/internal/docstore"
	"github.com/vikramsomai/elixir-Mining-Network-sub001/internal/logging"
	"github.com/vikramsomai/elixir-Mining-Network-sub001/internal/metrics"
	"github.com/vikramsomai/elixir-Mining-Network-sub001/internal/sweep"
	"github.com/vikramsomai/elixir-Mining-Network-sub001/services/base"
	"github.com/vikramsomai/elixir-Mining-Network-sub001/services/boost"
	"github.com/vikramsomai/elixir-Mining-Network-sub001/services/mining"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "sweepd: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "Path to YAML config file")
	once := flag.Bool("once", false, "Run a single sweep pass and exit")
	flag.Parse()

	// A local .env is optional; real deployments set the environment.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := logging.New("sweepd", cfg.Log.Level, cfg.Log.Format)
	logger.Info("starting",
		"backend", cfg.Store.Backend, "sweep_cron", cfg.Sweep.Cron, "once", *once)

	store, err := openStore(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := store.Initialize(ctx); err != nil {
		return fmt.Errorf("initialize store: %w", err)
	}
	defer func() {
		if err := store.Close(context.Background()); err != nil {
			logger.Warn("store close failed", "error", err)
		}
	}()

	m := metrics.New()
	promReg := prometheus.NewRegistry()
	m.Register(promReg)

	boosts := boost.New(store, nil, logger, m)
	miner := mining.New(store, boosts, nil, logger, m, mining.Options{
		BaseRate:      cfg.Mining.BaseRate,
		SessionLength: time.Duration(cfg.Mining.SessionHours) * time.Hour,
		ClaimsPerMin:  float64(cfg.Claim.PerMinute),
		ClaimBurst:    cfg.Claim.Burst,
	})

	registry := base.NewRegistry()
	for _, svc := range []base.Service{boosts, miner} {
		if err := registry.Register(svc); err != nil {
			return err
		}
	}
	if err := registry.StartAll(ctx); err != nil {
		return fmt.Errorf("start services: %w", err)
	}
	defer func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer stopCancel()
		if err := registry.StopAll(stopCtx); err != nil {
			logger.Warn("service stop failed", "error", err)
		}
	}()

	var phases *mining.PhaseSchedule
	if cfg.Mining.PhaseRates {
		phases = mining.NewPhaseSchedule()
	}
	sweeper := sweep.New(miner, sweep.NewDocUserSource(store), logger, sweep.Options{
		Spec:     cfg.Sweep.Cron,
		MinClaim: cfg.Sweep.MinClaim,
		Phases:   phases,
	})

	if *once {
		sweeper.RunOnce(ctx)
		return nil
	}

	if cfg.Sweep.Enabled {
		if err := sweeper.Start(); err != nil {
			return fmt.Errorf("schedule sweep: %w", err)
		}
		defer sweeper.Stop()
	} else {
		logger.Warn("sweep disabled, serving metrics only")
	}

	metricsSrv := &http.Server{
		Addr:         cfg.Metrics.Addr,
		Handler:      metricsMux(promReg, store),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	go func() {
		logger.Info("metrics listening", "addr", cfg.Metrics.Addr)
		if err := metricsSrv.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("metrics server failed", "error", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("metrics shutdown failed", "error", err)
	}
	return nil
}

func openStore(cfg *config.Config) (docstore.Store, error) {
	switch cfg.Store.Backend {
	case "memory":
		return docstore.NewMemoryStore(), nil
	case "redis":
		return docstore.NewRedisStore(cfg.Store.Redis), nil
	case "postgres":
		return docstore.NewPostgresStore(cfg.Store.Postgres), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}

func metricsMux(reg *prometheus.Registry, store docstore.Store) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := store.Health(r.Context()); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	return mux
}
