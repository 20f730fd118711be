package memory

import (
	"context"
	"sync"

	"merge-ledger/internal/domain"
	"merge-ledger/internal/storage"
)

// MergeEventStore is an in-memory implementation of
// storage.MergeEventStore, used by tests and by runs without a
// Postgres archive configured.
type MergeEventStore struct {
	mu   sync.RWMutex
	data []domain.MergeEvent
	keys map[string]struct{}
}

// NewMergeEventStore creates a new in-memory merge event archive.
func NewMergeEventStore() *MergeEventStore {
	return &MergeEventStore{
		keys: make(map[string]struct{}),
	}
}

// InsertBulk adds events, skipping ones whose (burnedId, persistId,
// blockNumber) key is already archived.
func (s *MergeEventStore) InsertBulk(_ context.Context, events []domain.MergeEvent) error {
	if len(events) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range events {
		key := e.Key()
		if _, exists := s.keys[key]; exists {
			continue
		}
		s.keys[key] = struct{}{}
		s.data = append(s.data, e)
	}
	return nil
}

// GetFromBlock retrieves events with block number >= fromBlock, ordered
// by (blockNumber, logIndex).
func (s *MergeEventStore) GetFromBlock(_ context.Context, fromBlock int64) ([]domain.MergeEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []domain.MergeEvent
	for _, e := range s.data {
		if e.BlockNumber >= fromBlock {
			result = append(result, e)
		}
	}

	domain.SortEventsByBlock(result)
	return result, nil
}

// LatestBlock returns the highest archived block number.
func (s *MergeEventStore) LatestBlock(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.data) == 0 {
		return 0, storage.ErrNotFound
	}

	var latest int64
	for _, e := range s.data {
		if e.BlockNumber > latest {
			latest = e.BlockNumber
		}
	}
	return latest, nil
}

var _ storage.MergeEventStore = (*MergeEventStore)(nil)
