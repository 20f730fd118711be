package ledger

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"
	"testing"

	"merge-ledger/internal/domain"
	"merge-ledger/internal/ethereum"
)

// stubState serves token values from a fixed map; missing tokens revert
// as nonexistent. Queries pinned to any block other than the snapshot
// are served from the archive map instead.
type stubState struct {
	mu       sync.Mutex
	block    int64
	values   map[int]int64
	archive  map[int]int64
	failOnce map[int]bool
	queries  int
}

func (s *stubState) SnapshotBlock(ctx context.Context) (int64, error) {
	return s.block, nil
}

func (s *stubState) TotalSupply(ctx context.Context, block int64) (int64, error) {
	return int64(len(s.values)), nil
}

func (s *stubState) GetValueOf(ctx context.Context, id int, block int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries++
	if s.failOnce[id] {
		s.failOnce[id] = false
		return 0, errors.New("provider overloaded")
	}
	if block != s.block {
		v, ok := s.archive[id]
		if !ok {
			return 0, ethereum.ErrNonexistentToken
		}
		return v, nil
	}
	v, ok := s.values[id]
	if !ok {
		return 0, ethereum.ErrNonexistentToken
	}
	return v, nil
}

func smallParams(maxID int) domain.CollectionParams {
	p := domain.DefaultCollectionParams()
	p.MaxTokenID = maxID
	return p
}

func TestBuilder_Build(t *testing.T) {
	state := &stubState{
		block: 14500000,
		values: map[int]int64{
			1: domain.EncodeValue(1, 12),
			3: domain.EncodeValue(4, 200),
			5: domain.EncodeValue(1, 1),
		},
		archive: map[int]int64{
			2: domain.EncodeValue(1, 4),
			4: domain.EncodeValue(2, 6),
		},
	}
	events := []domain.MergeEvent{
		{BurnedID: 2, PersistID: 1, Mass: 10, BlockNumber: 13800000, Timestamp: 1640000000},
		{BurnedID: 4, PersistID: 1, Mass: 12, BlockNumber: 13900000, Timestamp: 1641000000},
		{BurnedID: 6, PersistID: 0, Mass: 5, BlockNumber: 13950000, Timestamp: 1641500000},
	}

	b := NewBuilder(BuilderOptions{
		State:     state,
		Params:    smallParams(6),
		BatchSize: 2,
		Logger:    log.New(io.Discard, "", 0),
	})

	res, err := b.Build(context.Background(), events)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if res.SnapshotBlock != 14500000 {
		t.Errorf("snapshot block = %d", res.SnapshotBlock)
	}
	if res.AliveFound != 3 {
		t.Errorf("alive found = %d, want 3", res.AliveFound)
	}
	if len(res.FailedIDs) != 0 {
		t.Errorf("unexpected failures: %v", res.FailedIDs)
	}

	l := res.Ledger

	if got := l.Token(1); got.Mass() != 12 || got.MergeCount != 2 {
		t.Errorf("token 1 = mass %d count %d, want 12/2", got.Mass(), got.MergeCount)
	}
	if got := l.Token(2); got.MergedInto != 1 {
		t.Errorf("token 2 MergedInto = %d, want 1", got.MergedInto)
	}
	// Burned values come from the archive lookup just before the burn.
	if got := l.Token(2); got.Mass() != 4 || got.Tier() != 1 {
		t.Errorf("token 2 frozen value = tier %d mass %d, want 1/4", got.Tier(), got.Mass())
	}
	if got := l.Token(4); got.Mass() != 6 || got.Tier() != 2 {
		t.Errorf("token 4 frozen value = tier %d mass %d, want 2/6", got.Tier(), got.Mass())
	}
	// Token 6 has no archive value; it stays unknown and is recorded.
	if got := l.Token(6); got.RawValue != 0 {
		t.Errorf("token 6 value = %d, want unknown sentinel", got.RawValue)
	}
	if len(res.FailedBurnedIDs) != 1 || res.FailedBurnedIDs[0] != 6 {
		t.Errorf("failed burned IDs = %v, want [6]", res.FailedBurnedIDs)
	}
	if got := l.Token(3); got.Tier() != 4 {
		t.Errorf("token 3 tier = %d, want 4", got.Tier())
	}
	if got := l.Token(6); got.MergedInto != 6 {
		t.Errorf("self-burned token 6 MergedInto = %d, want 6", got.MergedInto)
	}
	if got := l.Token(6); got.MergeCount != 0 {
		t.Errorf("self-burn must not count as a merge")
	}

	if l.Block != 14500000 {
		t.Errorf("ledger block = %d, want snapshot block", l.Block)
	}
}

func TestBuilder_TransientFailureRetried(t *testing.T) {
	state := &stubState{
		block: 14500000,
		values: map[int]int64{
			1: domain.EncodeValue(1, 3),
			2: domain.EncodeValue(1, 4),
		},
		failOnce: map[int]bool{2: true},
	}

	b := NewBuilder(BuilderOptions{
		State:     state,
		Params:    smallParams(2),
		BatchSize: 2,
		Logger:    log.New(io.Discard, "", 0),
	})

	res, err := b.Build(context.Background(), nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if len(res.FailedIDs) != 0 {
		t.Errorf("transient failure must be retried, failed: %v", res.FailedIDs)
	}
	if got := res.Ledger.Token(2); got == nil || got.Mass() != 4 {
		t.Errorf("token 2 not resolved after retry")
	}
}

func TestBuilder_PersistentFailureRecorded(t *testing.T) {
	state := &stubState{
		block:  14500000,
		values: map[int]int64{1: domain.EncodeValue(1, 3)},
	}
	// Token 2 always errors: present in no map, but forced failure.
	always := &alwaysFailState{stubState: state, failID: 2}

	b := NewBuilder(BuilderOptions{
		State:     always,
		Params:    smallParams(2),
		BatchSize: 2,
		Logger:    log.New(io.Discard, "", 0),
	})

	res, err := b.Build(context.Background(), nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if len(res.FailedIDs) != 1 || res.FailedIDs[0] != 2 {
		t.Errorf("expected token 2 recorded as failed, got %v", res.FailedIDs)
	}
	// Failed tokens keep the unknown value sentinel.
	if got := res.Ledger.Token(2); got != nil && got.RawValue != 0 {
		t.Errorf("failed token must stay unknown, got %d", got.RawValue)
	}
}

type alwaysFailState struct {
	*stubState
	failID int
}

func (s *alwaysFailState) GetValueOf(ctx context.Context, id int, block int64) (int64, error) {
	if id == s.failID {
		return 0, errors.New("provider overloaded")
	}
	return s.stubState.GetValueOf(ctx, id, block)
}

func TestBuilder_SkipsBurnedTokens(t *testing.T) {
	state := &stubState{
		block:  14500000,
		values: map[int]int64{1: domain.EncodeValue(1, 9)},
	}
	events := []domain.MergeEvent{
		{BurnedID: 2, PersistID: 1, Mass: 9, BlockNumber: 13800000},
	}

	b := NewBuilder(BuilderOptions{
		State:     state,
		Params:    smallParams(2),
		BatchSize: 2,
		Logger:    log.New(io.Discard, "", 0),
	})

	if _, err := b.Build(context.Background(), events); err != nil {
		t.Fatalf("Build: %v", err)
	}

	// The alive sweep queries only token 1; token 2 is known burned and
	// gets a single archive lookup instead.
	if state.queries != 2 {
		t.Errorf("expected 2 state queries, got %d", state.queries)
	}
}
