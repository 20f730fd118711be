// Package main provides the reconcile entry point: full rebuilds,
// incremental updates, failed-ID retries, and time-series rebuilds
// against the live chain.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"merge-ledger/internal/domain"
	"merge-ledger/internal/ethereum"
	"merge-ledger/internal/ingestion"
	"merge-ledger/internal/orchestrator"
	"merge-ledger/internal/storage"
	"merge-ledger/internal/storage/clickhouse"
	"merge-ledger/internal/storage/file"
	"merge-ledger/internal/storage/migrations"
	"merge-ledger/internal/storage/postgres"
)

const (
	alchemyBaseURL   = "https://eth-mainnet.g.alchemy.com/v2/"
	etherscanBaseURL = "https://api.etherscan.io/api"
)

func main() {
	mode := flag.String("mode", "update", "One of: rebuild, update, retry, rebuild-timeseries")
	dataDir := flag.String("data-dir", "data", "Directory for the JSON documents")
	retryKind := flag.String("retry-kind", "alive", "Which failed-ID list to retry: alive or burned")
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "Postgres DSN for the event archive (optional)")
	clickhouseDSN := flag.String("clickhouse-dsn", os.Getenv("CLICKHOUSE_DSN"), "ClickHouse DSN for the supply snapshots (optional)")
	pageDelay := flag.Duration("page-delay", 250*time.Millisecond, "Pause between log provider page fetches")
	buildDelay := flag.Duration("build-delay", 150*time.Millisecond, "Pause between rebuild sweep batches")
	flag.Parse()

	logger := log.New(os.Stdout, "[reconcile] ", log.LstdFlags|log.Lshortfile)

	alchemyKey := os.Getenv("ALCHEMY_API_KEY")
	if alchemyKey == "" {
		logger.Fatal("ALCHEMY_API_KEY is not set")
	}
	etherscanKey := os.Getenv("ETHERSCAN_API_KEY")
	if etherscanKey == "" {
		logger.Fatal("ETHERSCAN_API_KEY is not set")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Printf("received signal %v, cancelling", sig)
		cancel()
	}()

	params := domain.DefaultCollectionParams()

	rpc := ethereum.NewHTTPClient(alchemyBaseURL + alchemyKey)
	contract := ethereum.NewContract(rpc, params.ContractAddress)
	logs := ethereum.NewLogClient(etherscanBaseURL, etherscanKey)
	scanner := ingestion.NewScanner(ingestion.ScannerOptions{
		Source:    logs,
		Params:    params,
		PageDelay: *pageDelay,
		Logger:    logger,
	})

	dir, err := file.NewDir(*dataDir)
	if err != nil {
		logger.Fatalf("open data dir: %v", err)
	}

	opts := orchestrator.Options{
		Scanner:         scanner,
		State:           contract,
		Params:          params,
		LedgerStore:     file.NewLedgerStore(dir),
		FeedStore:       file.NewFeedStore(dir),
		HistoryStore:    file.NewHistoryStore(dir),
		FailedStore:     file.NewFailedIDStore(dir),
		StatsStore:      file.NewStatsStore(dir),
		BuildBatchDelay: *buildDelay,
		Logger:          logger,
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

	if *clickhouseDSN != "" {
		conn, err := migrations.RunClickhouseMigrations(ctx, *clickhouseDSN)
		if err != nil {
			logger.Fatalf("run clickhouse migrations: %v", err)
		}
		defer conn.Close()
		opts.SnapshotStore = clickhouse.NewSupplySnapshotStore(conn)
	}

	orch := orchestrator.New(opts)

	if err := run(ctx, orch, *mode, *retryKind); err != nil {
		fmt.Fprintf(os.Stderr, "reconcile %s: %v\n", *mode, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, orch *orchestrator.Orchestrator, mode, retryKind string) error {
	switch mode {
	case "rebuild":
		return orch.Rebuild(ctx)
	case "update":
		_, err := orch.Update(ctx)
		return err
	case "retry":
		switch storage.FailedKind(retryKind) {
		case storage.FailedAlive:
			return orch.RetryAlive(ctx)
		case storage.FailedBurned:
			return orch.RetryBurned(ctx)
		default:
			return fmt.Errorf("unknown retry kind %q", retryKind)
		}
	case "rebuild-timeseries":
		return orch.RebuildTimeseries(ctx, time.Now().UTC())
	default:
		return fmt.Errorf("unknown mode %q", mode)
	}
}
