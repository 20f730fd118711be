// Package main provides the live watcher entry point: subscribes to
// MassUpdate logs over WebSocket, folds each merge into the ledger as
// it happens, and serves Prometheus metrics.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"merge-ledger/internal/domain"
	"merge-ledger/internal/ethereum"
	"merge-ledger/internal/ingestion"
	"merge-ledger/internal/observability"
	"merge-ledger/internal/orchestrator"
	"merge-ledger/internal/storage/file"
	"merge-ledger/internal/storage/migrations"
	"merge-ledger/internal/storage/postgres"
)

const alchemyWSBaseURL = "wss://eth-mainnet.g.alchemy.com/v2/"

func main() {
	dataDir := flag.String("data-dir", "data", "Directory for the JSON documents")
	metricsAddr := flag.String("metrics-addr", ":9090", "Listen address for the /metrics endpoint")
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "Postgres DSN for the event archive (optional)")
	flag.Parse()

	logger := log.New(os.Stdout, "[watch] ", log.LstdFlags|log.Lshortfile)

	alchemyKey := os.Getenv("ALCHEMY_API_KEY")
	if alchemyKey == "" {
		logger.Fatal("ALCHEMY_API_KEY is not set")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Printf("received signal %v, shutting down", sig)
		cancel()
	}()

	params := domain.DefaultCollectionParams()

	dir, err := file.NewDir(*dataDir)
	if err != nil {
		logger.Fatalf("open data dir: %v", err)
	}

	opts := orchestrator.Options{
		Params:       params,
		LedgerStore:  file.NewLedgerStore(dir),
		FeedStore:    file.NewFeedStore(dir),
		HistoryStore: file.NewHistoryStore(dir),
		FailedStore:  file.NewFailedIDStore(dir),
		StatsStore:   file.NewStatsStore(dir),
		Logger:       logger,
	}

	if *postgresDSN != "" {
		pool, err := postgres.NewPool(ctx, *postgresDSN)
		if err != nil {
			logger.Fatalf("connect postgres: %v", err)
		}
		defer pool.Close()
		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			logger.Fatalf("run postgres migrations: %v", err)
		}
		opts.EventStore = postgres.NewMergeEventStore(pool)
	}

	orch := orchestrator.New(opts)

	metrics := observability.DefaultMetrics
	if l, err := orch.Ledger(ctx); err == nil {
		observability.UpdateLedger(l.Block, l.AliveCount(), l.AliveMass())
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.Handler())
	srv := &http.Server{Addr: *metricsAddr, Handler: mux}
	go func() {
		logger.Printf("metrics listening on %s", *metricsAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Printf("metrics server: %v", err)
		}
	}()
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		srv.Shutdown(shutdownCtx)
	}()

	ws, err := ethereum.NewWSClient(ctx, alchemyWSBaseURL+alchemyKey, nil)
	if err != nil {
		logger.Fatalf("connect websocket: %v", err)
	}
	defer ws.Close()

	notifications, err := ws.SubscribeLogs(ctx, ethereum.LogFilter{
		Address: params.ContractAddress,
		Topics:  []string{ethereum.MassUpdateTopic},
	})
	if err != nil {
		logger.Fatalf("subscribe logs: %v", err)
	}
	logger.Printf("watching %s for merges", params.ContractAddress)

	lastReconnects := ws.Reconnects()
	for {
		select {
		case <-ctx.Done():
			logger.Printf("watcher stopped")
			return
		case n, ok := <-notifications:
			if !ok {
				logger.Printf("subscription closed")
				return
			}
			if r := ws.Reconnects(); r > lastReconnects {
				metrics.WSReconnects.Add(float64(r - lastReconnects))
				lastReconnects = r
			}
			if n.Removed {
				// Reorged out; the next full sync settles the ledger.
				logger.Printf("ignoring removed log at block %s", n.BlockNumber)
				continue
			}

			observedAt := time.Now().UTC()
			ev, err := ingestion.ParseLiveMergeLog(n, observedAt)
			if err != nil {
				logger.Printf("parse live log: %v", err)
				observability.RecordScanError("ws")
				continue
			}
			metrics.LiveMergesObserved.Inc()

			outcome, err := orch.ApplyLive(ctx, ev)
			if err != nil {
				logger.Printf("apply live merge: %v", err)
				continue
			}
			metrics.WSMessageLatency.Observe(time.Since(observedAt).Seconds())
			if outcome.Applied == 0 {
				continue
			}
			observability.RecordApply(outcome.Applied, outcome.Skipped)
			metrics.LastSuccessfulSync.Set(float64(time.Now().Unix()))
			if l, err := orch.Ledger(ctx); err == nil {
				observability.UpdateLedger(l.Block, l.AliveCount(), l.AliveMass())
			}
		}
	}
}
