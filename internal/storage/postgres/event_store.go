package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"merge-ledger/internal/domain"
	"merge-ledger/internal/storage"
)

// MergeEventStore implements storage.MergeEventStore using PostgreSQL.
type MergeEventStore struct {
	pool *Pool
}

// NewMergeEventStore creates a new MergeEventStore.
func NewMergeEventStore(pool *Pool) *MergeEventStore {
	return &MergeEventStore{pool: pool}
}

// Compile-time interface check.
var _ storage.MergeEventStore = (*MergeEventStore)(nil)

// InsertBulk adds events atomically, silently skipping rows whose
// (burned_id, persist_id, block_number) key is already archived.
func (s *MergeEventStore) InsertBulk(ctx context.Context, events []domain.MergeEvent) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO merge_events (
			burned_id, persist_id, mass, block_number, log_index, timestamp
		) VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (burned_id, persist_id, block_number) DO NOTHING
	`

	for _, e := range events {
		_, err := tx.Exec(ctx, query,
			e.BurnedID,
			e.PersistID,
			e.Mass,
			e.BlockNumber,
			e.LogIndex,
			e.Timestamp,
		)
		if err != nil {
			return fmt.Errorf("insert merge event: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}

// GetFromBlock retrieves events with block_number >= fromBlock in
// application order.
func (s *MergeEventStore) GetFromBlock(ctx context.Context, fromBlock int64) ([]domain.MergeEvent, error) {
	query := `
		SELECT burned_id, persist_id, mass, block_number, log_index, timestamp
		FROM merge_events
		WHERE block_number >= $1
		ORDER BY block_number ASC, log_index ASC
	`

	rows, err := s.pool.Query(ctx, query, fromBlock)
	if err != nil {
		return nil, fmt.Errorf("get merge events from block: %w", err)
	}
	defer rows.Close()

	return scanMergeEvents(rows)
}

// LatestBlock returns the highest archived block number.
func (s *MergeEventStore) LatestBlock(ctx context.Context) (int64, error) {
	query := `SELECT MAX(block_number) FROM merge_events`

	var latest *int64
	if err := s.pool.QueryRow(ctx, query).Scan(&latest); err != nil {
		return 0, fmt.Errorf("get latest archived block: %w", err)
	}
	if latest == nil {
		return 0, storage.ErrNotFound
	}
	return *latest, nil
}

func scanMergeEvents(rows pgx.Rows) ([]domain.MergeEvent, error) {
	var events []domain.MergeEvent
	for rows.Next() {
		var e domain.MergeEvent
		if err := rows.Scan(
			&e.BurnedID,
			&e.PersistID,
			&e.Mass,
			&e.BlockNumber,
			&e.LogIndex,
			&e.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("scan merge event: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate merge events: %w", err)
	}
	return events, nil
}
