package file

import (
	"context"
	"errors"

	"merge-ledger/internal/domain"
	"merge-ledger/internal/storage"
)

// LedgerStore persists the token ledger as db.json.
type LedgerStore struct {
	dir *Dir
}

func NewLedgerStore(dir *Dir) *LedgerStore {
	return &LedgerStore{dir: dir}
}

func (s *LedgerStore) Load(ctx context.Context) (*domain.Ledger, error) {
	var l domain.Ledger
	if err := s.dir.readJSON(ledgerFile, &l); err != nil {
		return nil, err
	}
	return &l, nil
}

func (s *LedgerStore) Save(ctx context.Context, l *domain.Ledger) error {
	return s.dir.writeJSON(ledgerFile, l)
}

// FeedStore persists the recent-merges feed as latest_merges.json.
type FeedStore struct {
	dir *Dir
}

func NewFeedStore(dir *Dir) *FeedStore {
	return &FeedStore{dir: dir}
}

func (s *FeedStore) Load(ctx context.Context) ([]domain.MergeFeedEntry, error) {
	var feed []domain.MergeFeedEntry
	if err := s.dir.readJSON(feedFile, &feed); err != nil {
		return nil, err
	}
	return feed, nil
}

func (s *FeedStore) Save(ctx context.Context, feed []domain.MergeFeedEntry) error {
	return s.dir.writeJSON(feedFile, feed)
}

// HistoryStore persists the daily supply series and the alpha change
// log as supply_history.json and alpha_changes.json.
type HistoryStore struct {
	dir *Dir
}

func NewHistoryStore(dir *Dir) *HistoryStore {
	return &HistoryStore{dir: dir}
}

func (s *HistoryStore) Load(ctx context.Context) (*domain.SupplyHistory, error) {
	var h domain.SupplyHistory
	if err := s.dir.readJSON(historyFile, &h); err != nil {
		return nil, err
	}
	return &h, nil
}

func (s *HistoryStore) Save(ctx context.Context, h *domain.SupplyHistory) error {
	return s.dir.writeJSON(historyFile, h)
}

func (s *HistoryStore) SaveAlphaChanges(ctx context.Context, changes []domain.AlphaChange) error {
	return s.dir.writeJSON(alphaFile, changes)
}

// FailedIDStore persists the retry lists as failed_ids.json and
// failed_burned_ids.json. An absent list reads back as empty.
type FailedIDStore struct {
	dir *Dir
}

func NewFailedIDStore(dir *Dir) *FailedIDStore {
	return &FailedIDStore{dir: dir}
}

func failedFile(kind storage.FailedKind) string {
	if kind == storage.FailedBurned {
		return failedBurnedFile
	}
	return failedAliveFile
}

func (s *FailedIDStore) Load(ctx context.Context, kind storage.FailedKind) ([]int, error) {
	var ids []int
	err := s.dir.readJSON(failedFile(kind), &ids)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (s *FailedIDStore) Save(ctx context.Context, kind storage.FailedKind, ids []int) error {
	if ids == nil {
		ids = []int{}
	}
	return s.dir.writeJSON(failedFile(kind), ids)
}

// StatsStore persists the derived stat documents, one file per
// document.
type StatsStore struct {
	dir *Dir
}

func NewStatsStore(dir *Dir) *StatsStore {
	return &StatsStore{dir: dir}
}

func (s *StatsStore) SaveStats(ctx context.Context, st *domain.Stats) error {
	return s.dir.writeJSON(statsFile, st)
}

func (s *StatsStore) SaveLeaderboard(ctx context.Context, name string, entries []domain.LeaderboardEntry) error {
	return s.dir.writeJSON(name+".json", entries)
}

func (s *StatsStore) SaveRepartition(ctx context.Context, buckets []domain.MassBucket) error {
	return s.dir.writeJSON(repartitionFile, buckets)
}

func (s *StatsStore) SaveMatter(ctx context.Context, m *domain.Matter) error {
	return s.dir.writeJSON(matterFile, m)
}

func (s *StatsStore) SaveHighIDCount(ctx context.Context, count int) error {
	return s.dir.writeJSON(highIDFile, map[string]int{"count": count})
}

func (s *StatsStore) SaveMergedInto(ctx context.Context, refs map[int][]domain.MergedRef) error {
	return s.dir.writeJSON(mergedIntoFile, refs)
}

func (s *StatsStore) SaveMergeHistory(ctx context.Context, records map[int]domain.MergeRecord) error {
	return s.dir.writeJSON(mergeHistoryFile, records)
}

var (
	_ storage.LedgerStore        = (*LedgerStore)(nil)
	_ storage.MergeFeedStore     = (*FeedStore)(nil)
	_ storage.SupplyHistoryStore = (*HistoryStore)(nil)
	_ storage.FailedIDStore      = (*FailedIDStore)(nil)
	_ storage.StatsStore         = (*StatsStore)(nil)
)
