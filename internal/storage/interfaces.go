package storage

import (
	"context"

	"merge-ledger/internal/domain"
)

// FailedKind selects which failed-ID list a FailedIDStore operation
// addresses.
type FailedKind string

const (
	// FailedAlive lists alive tokens whose state query kept failing.
	FailedAlive FailedKind = "alive"
	// FailedBurned lists burned tokens whose burn event is missing.
	FailedBurned FailedKind = "burned"
)

// LedgerStore persists the token ledger snapshot.
type LedgerStore interface {
	// Load retrieves the ledger. Returns ErrNotFound if none was saved.
	Load(ctx context.Context) (*domain.Ledger, error)

	// Save persists the ledger atomically.
	Save(ctx context.Context, l *domain.Ledger) error
}

// MergeFeedStore persists the bounded most-recent-merges feed.
type MergeFeedStore interface {
	// Load retrieves the feed, newest first. Returns ErrNotFound if none
	// was saved.
	Load(ctx context.Context) ([]domain.MergeFeedEntry, error)

	// Save persists the feed; callers keep it within FeedCapacity.
	Save(ctx context.Context, feed []domain.MergeFeedEntry) error
}

// SupplyHistoryStore persists the daily supply time series.
type SupplyHistoryStore interface {
	// Load retrieves the series. Returns ErrNotFound if none was saved.
	Load(ctx context.Context) (*domain.SupplyHistory, error)

	// Save persists the full series atomically.
	Save(ctx context.Context, h *domain.SupplyHistory) error
}

// FailedIDStore persists token IDs pending a retry.
type FailedIDStore interface {
	// Load retrieves a list; an absent list is an empty one.
	Load(ctx context.Context, kind FailedKind) ([]int, error)

	// Save replaces a list.
	Save(ctx context.Context, kind FailedKind, ids []int) error
}

// StatsStore persists the derived stat documents.
type StatsStore interface {
	// SaveStats persists the headline aggregates.
	SaveStats(ctx context.Context, s *domain.Stats) error

	// SaveLeaderboard persists one named top list.
	SaveLeaderboard(ctx context.Context, name string, entries []domain.LeaderboardEntry) error

	// SaveRepartition persists the mass histogram.
	SaveRepartition(ctx context.Context, buckets []domain.MassBucket) error

	// SaveMatter persists the matter breakdown.
	SaveMatter(ctx context.Context, m *domain.Matter) error

	// SaveHighIDCount persists the late-mint alive count.
	SaveHighIDCount(ctx context.Context, count int) error

	// SaveMergedInto persists the survivor-to-absorbed index.
	SaveMergedInto(ctx context.Context, refs map[int][]domain.MergedRef) error

	// SaveMergeHistory persists the terminal record per burned token.
	SaveMergeHistory(ctx context.Context, records map[int]domain.MergeRecord) error
}

// MergeEventStore archives the raw merge event history so replays do
// not refetch the provider.
type MergeEventStore interface {
	// InsertBulk adds events, silently skipping ones already archived.
	InsertBulk(ctx context.Context, events []domain.MergeEvent) error

	// GetFromBlock retrieves events with block number >= fromBlock,
	// ordered by block then log index.
	GetFromBlock(ctx context.Context, fromBlock int64) ([]domain.MergeEvent, error)

	// LatestBlock returns the highest archived block number. Returns
	// ErrNotFound when the archive is empty.
	LatestBlock(ctx context.Context) (int64, error)
}

// SupplySnapshotStore keeps the daily series queryable for analytics.
type SupplySnapshotStore interface {
	// ReplaceAll atomically swaps the stored series for a new one.
	ReplaceAll(ctx context.Context, h *domain.SupplyHistory) error

	// GetAll retrieves the full series ordered by date. Returns
	// ErrNotFound when empty.
	GetAll(ctx context.Context) (*domain.SupplyHistory, error)
}
