package clickhouse

import (
	"context"
	"fmt"
	"time"

	"merge-ledger/internal/domain"
	"merge-ledger/internal/storage"
)

// SupplySnapshotStore implements storage.SupplySnapshotStore using
// ClickHouse, keeping the daily series queryable for analytics.
type SupplySnapshotStore struct {
	conn *Conn
}

// NewSupplySnapshotStore creates a new SupplySnapshotStore.
func NewSupplySnapshotStore(conn *Conn) *SupplySnapshotStore {
	return &SupplySnapshotStore{conn: conn}
}

// Compile-time interface check.
var _ storage.SupplySnapshotStore = (*SupplySnapshotStore)(nil)

const dayLayout = "2006-01-02"

// ReplaceAll swaps the stored series for a new one. The series is
// always rebuilt from the start date, so a truncate-and-insert keeps
// the table exactly one rebuild behind at worst.
func (s *SupplySnapshotStore) ReplaceAll(ctx context.Context, h *domain.SupplyHistory) error {
	start, err := time.ParseInLocation(dayLayout, h.StartDate, time.UTC)
	if err != nil {
		return fmt.Errorf("start date %q: %w", h.StartDate, storage.ErrInvalidInput)
	}

	if err := s.conn.Exec(ctx, `TRUNCATE TABLE supply_history`); err != nil {
		return fmt.Errorf("truncate supply history: %w", err)
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO supply_history (
			date, alive, tier1, tier2, tier3, tier4,
			alpha_mass, merges, custodial_count, custodial_mass
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for i, d := range h.Data {
		err = batch.Append(
			start.AddDate(0, 0, i),
			uint32(d.Alive),
			uint32(d.TierCounts[1]), uint32(d.TierCounts[2]), uint32(d.TierCounts[3]), uint32(d.TierCounts[4]),
			d.AlphaMass,
			uint32(d.Merges),
			uint32(d.CustodialCount),
			d.CustodialMass,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// GetAll retrieves the full series ordered by date.
func (s *SupplySnapshotStore) GetAll(ctx context.Context) (*domain.SupplyHistory, error) {
	query := `
		SELECT date, alive, tier1, tier2, tier3, tier4,
		       alpha_mass, merges, custodial_count, custodial_mass
		FROM supply_history FINAL
		ORDER BY date ASC
	`

	rows, err := s.conn.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query supply history: %w", err)
	}
	defer rows.Close()

	h := &domain.SupplyHistory{}
	for rows.Next() {
		var (
			date                       time.Time
			alive, t1, t2, t3, t4      uint32
			alphaMass, custodialMass   int64
			merges, custodialCount     uint32
		)
		if err := rows.Scan(&date, &alive, &t1, &t2, &t3, &t4, &alphaMass, &merges, &custodialCount, &custodialMass); err != nil {
			return nil, fmt.Errorf("scan supply day: %w", err)
		}
		if h.StartDate == "" {
			h.StartDate = date.UTC().Format(dayLayout)
		}
		h.Data = append(h.Data, domain.SupplyDay{
			Alive:          int(alive),
			TierCounts:     [5]int{0, int(t1), int(t2), int(t3), int(t4)},
			AlphaMass:      alphaMass,
			Merges:         int(merges),
			CustodialCount: int(custodialCount),
			CustodialMass:  custodialMass,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate supply history: %w", err)
	}

	if len(h.Data) == 0 {
		return nil, storage.ErrNotFound
	}
	return h, nil
}
