// Package orchestrator coordinates the sync flows end to end:
// event scan → ledger → derived views → persistence.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"merge-ledger/internal/domain"
	"merge-ledger/internal/ethereum"
	"merge-ledger/internal/history"
	"merge-ledger/internal/ledger"
	"merge-ledger/internal/stats"
	"merge-ledger/internal/storage"
)

// EventScanner fetches chain logs. Implemented by ingestion.Scanner.
type EventScanner interface {
	FetchMergeEvents(ctx context.Context, fromBlock int64) ([]domain.MergeEvent, error)
	FetchBurnEvent(ctx context.Context, tokenID int) (*domain.MergeEvent, error)
	FetchCustodialTransfers(ctx context.Context, fromBlock int64) ([]domain.CustodialTransfer, error)
}

// Orchestrator wires the scanner, the contract reader, and the stores
// behind the reconcile and watch commands.
type Orchestrator struct {
	scanner EventScanner
	state   ledger.StateSource
	params  domain.CollectionParams

	ledgerStore  storage.LedgerStore
	feedStore    storage.MergeFeedStore
	historyStore storage.SupplyHistoryStore
	failedStore  storage.FailedIDStore
	statsStore   storage.StatsStore

	// Optional: archive of raw events so update and time-series runs
	// replay without refetching the provider.
	eventStore storage.MergeEventStore
	// Optional: analytics copy of the daily series.
	snapshotStore storage.SupplySnapshotStore

	buildBatchDelay time.Duration

	logger *log.Logger
}

// Options for creating an Orchestrator.
type Options struct {
	Scanner EventScanner
	State   ledger.StateSource
	Params  domain.CollectionParams

	LedgerStore  storage.LedgerStore
	FeedStore    storage.MergeFeedStore
	HistoryStore storage.SupplyHistoryStore
	FailedStore  storage.FailedIDStore
	StatsStore   storage.StatsStore

	EventStore    storage.MergeEventStore     // optional
	SnapshotStore storage.SupplySnapshotStore // optional

	// BuildBatchDelay is the pause between rebuild sweep batches.
	BuildBatchDelay time.Duration

	Logger *log.Logger
}

// New creates a new Orchestrator.
func New(opts Options) *Orchestrator {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Orchestrator{
		scanner:         opts.Scanner,
		state:           opts.State,
		params:          opts.Params,
		ledgerStore:     opts.LedgerStore,
		feedStore:       opts.FeedStore,
		historyStore:    opts.HistoryStore,
		failedStore:     opts.FailedStore,
		statsStore:      opts.StatsStore,
		eventStore:      opts.EventStore,
		snapshotStore:   opts.SnapshotStore,
		buildBatchDelay: opts.BuildBatchDelay,
		logger:          logger,
	}
}

// Rebuild reconstructs the ledger from scratch and regenerates every
// derived document.
func (o *Orchestrator) Rebuild(ctx context.Context) error {
	o.logger.Printf("full rebuild: scanning events from block %d", o.params.DeployBlock)
	events, err := o.scanner.FetchMergeEvents(ctx, o.params.DeployBlock)
	if err != nil {
		return fmt.Errorf("scan merge events: %w", err)
	}
	o.logger.Printf("fetched %d merge events", len(events))

	o.archiveEvents(ctx, events)

	builder := ledger.NewBuilder(ledger.BuilderOptions{
		State:      o.state,
		Params:     o.params,
		BatchDelay: o.buildBatchDelay,
		Logger:     o.logger,
	})
	res, err := builder.Build(ctx, events)
	if err != nil {
		return fmt.Errorf("rebuild ledger: %w", err)
	}

	report := ledger.Verify(res.Ledger, events, o.params)
	if !report.Consistent() {
		// Non-fatal: the sweep can miss tokens when the provider flakes;
		// the retry flows close the gap.
		o.logger.Printf("mass check failed: delta %d, %d unknown values",
			report.MassDelta, len(report.UnknownValue))
	}

	if err := o.ledgerStore.Save(ctx, res.Ledger); err != nil {
		return fmt.Errorf("save ledger: %w", err)
	}
	if err := o.feedStore.Save(ctx, rebuildFeed(res.Ledger, events)); err != nil {
		return fmt.Errorf("save feed: %w", err)
	}
	if err := o.failedStore.Save(ctx, storage.FailedAlive, res.FailedIDs); err != nil {
		return fmt.Errorf("save failed ids: %w", err)
	}
	if err := o.failedStore.Save(ctx, storage.FailedBurned, res.FailedBurnedIDs); err != nil {
		return fmt.Errorf("save failed burned ids: %w", err)
	}

	if err := o.saveStats(ctx, res.Ledger, events); err != nil {
		return err
	}

	o.logger.Printf("rebuild complete: block %d, %d alive, %d failed",
		res.SnapshotBlock, res.AliveFound, len(res.FailedIDs)+len(res.FailedBurnedIDs))
	return nil
}

// UpdateResult reports what an incremental update changed.
type UpdateResult struct {
	FromBlock int64
	Fetched   int
	Applied   int
	Skipped   int
}

// Update applies events newer than the ledger checkpoint. No contract
// state queries run; the event payloads carry everything needed.
func (o *Orchestrator) Update(ctx context.Context) (*UpdateResult, error) {
	l, err := o.ledgerStore.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load ledger: %w", err)
	}

	fromBlock := l.Block + 1
	events, err := o.scanner.FetchMergeEvents(ctx, fromBlock)
	if err != nil {
		return nil, fmt.Errorf("scan merge events: %w", err)
	}

	result := &UpdateResult{FromBlock: fromBlock, Fetched: len(events)}
	if len(events) == 0 {
		o.logger.Printf("ledger is up to date at block %d", l.Block)
		return result, nil
	}

	o.archiveEvents(ctx, events)

	outcome, err := ledger.Apply(l, events)
	if err != nil {
		return nil, fmt.Errorf("apply events: %w", err)
	}
	result.Applied = outcome.Applied
	result.Skipped = outcome.Skipped

	feed, err := o.feedStore.Load(ctx)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("load feed: %w", err)
	}
	feed = domain.PrependFeed(feed, outcome.FeedEntries)

	if err := o.ledgerStore.Save(ctx, l); err != nil {
		return nil, fmt.Errorf("save ledger: %w", err)
	}
	if err := o.feedStore.Save(ctx, feed); err != nil {
		return nil, fmt.Errorf("save feed: %w", err)
	}

	if err := o.refreshStats(ctx, l); err != nil {
		return nil, err
	}

	o.logger.Printf("update complete: %d applied, %d skipped, block %d",
		outcome.Applied, outcome.Skipped, l.Block)
	return result, nil
}

// ApplyLive folds a single observed merge into the ledger and the
// derived documents. Used by the live watcher; a duplicate delivery is
// a clean no-op.
func (o *Orchestrator) ApplyLive(ctx context.Context, ev domain.MergeEvent) (*ledger.ApplyOutcome, error) {
	l, err := o.ledgerStore.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load ledger: %w", err)
	}

	outcome, err := ledger.Apply(l, []domain.MergeEvent{ev})
	if err != nil {
		return nil, fmt.Errorf("apply event: %w", err)
	}
	if outcome.Applied == 0 {
		return outcome, nil
	}

	o.archiveEvents(ctx, []domain.MergeEvent{ev})

	feed, err := o.feedStore.Load(ctx)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("load feed: %w", err)
	}
	feed = domain.PrependFeed(feed, outcome.FeedEntries)

	if err := o.ledgerStore.Save(ctx, l); err != nil {
		return nil, fmt.Errorf("save ledger: %w", err)
	}
	if err := o.feedStore.Save(ctx, feed); err != nil {
		return nil, fmt.Errorf("save feed: %w", err)
	}
	if err := o.refreshStats(ctx, l); err != nil {
		return nil, err
	}

	o.logger.Printf("live merge: token %d into %d, mass %d, block %d",
		ev.BurnedID, ev.PersistID, ev.Mass, ev.BlockNumber)
	return outcome, nil
}

// Ledger returns the persisted ledger, for callers that need gauges or
// snapshots without mutating anything.
func (o *Orchestrator) Ledger(ctx context.Context) (*domain.Ledger, error) {
	return o.ledgerStore.Load(ctx)
}

// RetryAlive re-queries the current value of alive tokens whose state
// read failed during a rebuild.
func (o *Orchestrator) RetryAlive(ctx context.Context) error {
	ids, err := o.failedStore.Load(ctx, storage.FailedAlive)
	if err != nil {
		return fmt.Errorf("load failed ids: %w", err)
	}
	if len(ids) == 0 {
		o.logger.Printf("no failed alive ids to retry")
		return nil
	}

	l, err := o.ledgerStore.Load(ctx)
	if err != nil {
		return fmt.Errorf("load ledger: %w", err)
	}

	var still []int
	recovered := 0
	for _, id := range ids {
		value, err := o.retryValue(ctx, id, 0)
		if err != nil {
			if ethereum.IsNonexistentToken(err) {
				// Burned since the scan; nothing to recover here.
				continue
			}
			still = append(still, id)
			continue
		}

		l.EnsureLen(id)
		t := l.Token(id)
		if t == nil {
			t = &domain.Token{}
			l.Tokens[id] = t
		}
		t.RawValue = value
		recovered++
	}

	if err := o.ledgerStore.Save(ctx, l); err != nil {
		return fmt.Errorf("save ledger: %w", err)
	}
	if err := o.failedStore.Save(ctx, storage.FailedAlive, still); err != nil {
		return fmt.Errorf("save failed ids: %w", err)
	}
	if err := o.refreshStats(ctx, l); err != nil {
		return err
	}

	o.logger.Printf("alive retry: %d recovered, %d still failing", recovered, len(still))
	return nil
}

// RetryBurned recovers the frozen pre-burn value of burned tokens whose
// archive lookup failed: locate the burn event, then read state at the
// block before it.
func (o *Orchestrator) RetryBurned(ctx context.Context) error {
	ids, err := o.failedStore.Load(ctx, storage.FailedBurned)
	if err != nil {
		return fmt.Errorf("load failed burned ids: %w", err)
	}
	if len(ids) == 0 {
		o.logger.Printf("no failed burned ids to retry")
		return nil
	}

	l, err := o.ledgerStore.Load(ctx)
	if err != nil {
		return fmt.Errorf("load ledger: %w", err)
	}

	var still []int
	recovered := 0
	for _, id := range ids {
		ev, err := o.scanner.FetchBurnEvent(ctx, id)
		if err != nil {
			still = append(still, id)
			continue
		}
		if ev == nil {
			o.logger.Printf("token %d: no burn event found", id)
			still = append(still, id)
			continue
		}

		value, err := o.retryValue(ctx, id, ev.BlockNumber-1)
		if err != nil || value <= 0 {
			still = append(still, id)
			continue
		}

		l.EnsureLen(id)
		t := l.Token(id)
		if t == nil {
			t = &domain.Token{}
			l.Tokens[id] = t
		}
		t.RawValue = value
		recovered++
	}

	if err := o.ledgerStore.Save(ctx, l); err != nil {
		return fmt.Errorf("save ledger: %w", err)
	}
	if err := o.failedStore.Save(ctx, storage.FailedBurned, still); err != nil {
		return fmt.Errorf("save failed burned ids: %w", err)
	}

	o.logger.Printf("burned retry: %d recovered, %d still failing", recovered, len(still))
	return nil
}

// RebuildTimeseries regenerates the daily supply series from the ledger
// and the full event and transfer history.
func (o *Orchestrator) RebuildTimeseries(ctx context.Context, now time.Time) error {
	l, err := o.ledgerStore.Load(ctx)
	if err != nil {
		return fmt.Errorf("load ledger: %w", err)
	}

	events, err := o.loadEvents(ctx)
	if err != nil {
		return err
	}

	transfers, err := o.scanner.FetchCustodialTransfers(ctx, o.params.DeployBlock)
	if err != nil {
		return fmt.Errorf("scan custodial transfers: %w", err)
	}
	o.logger.Printf("replaying %d events and %d transfers", len(events), len(transfers))

	res, err := history.Build(history.BuildOptions{
		Ledger:    l,
		Events:    events,
		Transfers: transfers,
		Params:    o.params,
		Now:       now,
		Logger:    o.logger,
	})
	if err != nil {
		return fmt.Errorf("build supply history: %w", err)
	}

	if err := o.historyStore.Save(ctx, res.History); err != nil {
		return fmt.Errorf("save supply history: %w", err)
	}
	if saver, ok := o.historyStore.(interface {
		SaveAlphaChanges(ctx context.Context, changes []domain.AlphaChange) error
	}); ok {
		if err := saver.SaveAlphaChanges(ctx, res.AlphaChanges); err != nil {
			return fmt.Errorf("save alpha changes: %w", err)
		}
	}

	if o.snapshotStore != nil {
		if err := o.snapshotStore.ReplaceAll(ctx, res.History); err != nil {
			return fmt.Errorf("replace supply snapshots: %w", err)
		}
	}

	o.logger.Printf("time series rebuilt: %d days, %d alpha changes, %d estimated initial masses",
		len(res.History.Data), len(res.AlphaChanges), res.InitialEstimated)
	return nil
}

// loadEvents prefers the archive; without one it refetches the full
// history from the provider.
func (o *Orchestrator) loadEvents(ctx context.Context) ([]domain.MergeEvent, error) {
	if o.eventStore != nil {
		events, err := o.eventStore.GetFromBlock(ctx, 0)
		if err != nil {
			return nil, fmt.Errorf("load archived events: %w", err)
		}
		if len(events) > 0 {
			return events, nil
		}
	}
	events, err := o.scanner.FetchMergeEvents(ctx, o.params.DeployBlock)
	if err != nil {
		return nil, fmt.Errorf("scan merge events: %w", err)
	}
	o.archiveEvents(ctx, events)
	return events, nil
}

// refreshStats recomputes the derived documents when the full event
// history is available from the archive. Without an archive the stat
// documents stay as the last rebuild left them.
func (o *Orchestrator) refreshStats(ctx context.Context, l *domain.Ledger) error {
	if o.eventStore == nil {
		return nil
	}
	events, err := o.eventStore.GetFromBlock(ctx, 0)
	if err != nil {
		return fmt.Errorf("load archived events: %w", err)
	}
	return o.saveStats(ctx, l, events)
}

func (o *Orchestrator) saveStats(ctx context.Context, l *domain.Ledger, events []domain.MergeEvent) error {
	docs := stats.Compute(l, events, o.params)

	if err := o.statsStore.SaveStats(ctx, &docs.Stats); err != nil {
		return fmt.Errorf("save stats: %w", err)
	}
	if err := o.statsStore.SaveLeaderboard(ctx, "mass_top", docs.MassTop); err != nil {
		return fmt.Errorf("save mass top: %w", err)
	}
	if err := o.statsStore.SaveLeaderboard(ctx, "blue_mass", docs.BlueMass); err != nil {
		return fmt.Errorf("save blue mass: %w", err)
	}
	if err := o.statsStore.SaveLeaderboard(ctx, "merges_top", docs.MergesTop); err != nil {
		return fmt.Errorf("save merges top: %w", err)
	}
	if err := o.statsStore.SaveRepartition(ctx, docs.Repartition); err != nil {
		return fmt.Errorf("save repartition: %w", err)
	}
	if err := o.statsStore.SaveMatter(ctx, &docs.Matter); err != nil {
		return fmt.Errorf("save matter: %w", err)
	}
	if err := o.statsStore.SaveHighIDCount(ctx, docs.HighIDCount); err != nil {
		return fmt.Errorf("save high id count: %w", err)
	}
	if err := o.statsStore.SaveMergedInto(ctx, docs.MergedInto); err != nil {
		return fmt.Errorf("save merged into: %w", err)
	}
	if err := o.statsStore.SaveMergeHistory(ctx, docs.MergeRecords); err != nil {
		return fmt.Errorf("save merge history: %w", err)
	}
	return nil
}

// archiveEvents is best-effort; a missing or failing archive never
// blocks a sync.
func (o *Orchestrator) archiveEvents(ctx context.Context, events []domain.MergeEvent) {
	if o.eventStore == nil || len(events) == 0 {
		return
	}
	if err := o.eventStore.InsertBulk(ctx, events); err != nil {
		o.logger.Printf("archive events: %v", err)
	}
}

// retryValue reads a token's value with bounded attempts and a growing
// pause between them.
func (o *Orchestrator) retryValue(ctx context.Context, id int, block int64) (int64, error) {
	var lastErr error
	for attempt := 1; attempt <= 3; attempt++ {
		value, err := o.state.GetValueOf(ctx, id, block)
		if err == nil {
			return value, nil
		}
		if ethereum.IsNonexistentToken(err) || errors.Is(err, context.Canceled) {
			return 0, err
		}
		lastErr = err

		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-time.After(time.Duration(attempt) * 2 * time.Second):
		}
	}
	return 0, lastErr
}

// rebuildFeed regenerates the activity feed from the newest events,
// using the rebuilt ledger's frozen values for the burned side.
func rebuildFeed(l *domain.Ledger, events []domain.MergeEvent) []domain.MergeFeedEntry {
	newest := make([]domain.MergeEvent, len(events))
	copy(newest, events)
	domain.SortEventsByBlock(newest)

	feed := make([]domain.MergeFeedEntry, 0, domain.FeedCapacity)
	for i := len(newest) - 1; i >= 0 && len(feed) < domain.FeedCapacity; i-- {
		ev := newest[i]

		entry := domain.MergeFeedEntry{ID: ev.BurnedID}
		if t := l.Token(ev.BurnedID); t != nil && t.RawValue > 0 {
			entry.Tier = t.Tier()
			entry.Mass = t.Mass()
		}
		if ev.Timestamp != 0 {
			when := time.Unix(ev.Timestamp, 0).UTC().Format("2006-01-02T15:04:05.000Z")
			entry.MergedOn = &when
		}

		target := domain.MergeFeedTarget{ID: ev.PersistID, Mass: ev.Mass}
		if t := l.Token(ev.PersistID); t != nil && t.RawValue > 0 {
			target.Tier = t.Tier()
		}
		entry.MergedTo = target

		feed = append(feed, entry)
	}
	return feed
}
