package clickhouse

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"merge-ledger/internal/domain"
	"merge-ledger/internal/storage"
)

func TestSupplySnapshotStore_ReplaceAndGet(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewSupplySnapshotStore(conn)

	h := &domain.SupplyHistory{
		StartDate: "2021-12-15",
		Data: []domain.SupplyDay{
			{Alive: 4, TierCounts: [5]int{0, 3, 1, 0, 0}, AlphaMass: 7, Merges: 0, CustodialCount: 4, CustodialMass: 20},
			{Alive: 3, TierCounts: [5]int{0, 2, 1, 0, 0}, AlphaMass: 7, Merges: 1, CustodialCount: 2, CustodialMass: 7},
		},
	}

	require.NoError(t, store.ReplaceAll(ctx, h))

	got, err := store.GetAll(ctx)
	require.NoError(t, err)

	assert.Equal(t, "2021-12-15", got.StartDate)
	require.Len(t, got.Data, 2)
	assert.Equal(t, h.Data[0], got.Data[0])
	assert.Equal(t, h.Data[1], got.Data[1])
}

func TestSupplySnapshotStore_ReplaceDropsOldRows(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewSupplySnapshotStore(conn)

	first := &domain.SupplyHistory{
		StartDate: "2021-12-15",
		Data: []domain.SupplyDay{
			{Alive: 4, TierCounts: [5]int{0, 3, 1, 0, 0}, AlphaMass: 7, CustodialCount: 4, CustodialMass: 20},
			{Alive: 3, TierCounts: [5]int{0, 2, 1, 0, 0}, AlphaMass: 7, Merges: 1, CustodialCount: 2, CustodialMass: 7},
			{Alive: 2, TierCounts: [5]int{0, 1, 1, 0, 0}, AlphaMass: 8, Merges: 1, CustodialCount: 2, CustodialMass: 6},
		},
	}
	require.NoError(t, store.ReplaceAll(ctx, first))

	second := &domain.SupplyHistory{
		StartDate: "2021-12-16",
		Data: []domain.SupplyDay{
			{Alive: 3, TierCounts: [5]int{0, 2, 1, 0, 0}, AlphaMass: 9, Merges: 2, CustodialCount: 2, CustodialMass: 7},
		},
	}
	require.NoError(t, store.ReplaceAll(ctx, second))

	got, err := store.GetAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, "2021-12-16", got.StartDate)
	require.Len(t, got.Data, 1)
	assert.Equal(t, second.Data[0], got.Data[0])
}

func TestSupplySnapshotStore_GetAllEmpty(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewSupplySnapshotStore(conn)

	_, err := store.GetAll(context.Background())
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestSupplySnapshotStore_BadStartDate(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewSupplySnapshotStore(conn)

	err := store.ReplaceAll(context.Background(), &domain.SupplyHistory{StartDate: "not-a-date"})
	require.Error(t, err)
}
