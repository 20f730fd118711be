package ledger

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"merge-ledger/internal/domain"
	"merge-ledger/internal/ethereum"
)

// DefaultBatchSize is how many token state queries run concurrently
// during a full rebuild.
const DefaultBatchSize = 50

// archiveBatchSize bounds the concurrent archive lookups for burned
// token values. Archive calls are heavier than head calls, so the
// batches are smaller.
const archiveBatchSize = 20

// StateSource reads contract state at a pinned block. Implemented by
// ethereum.Contract.
type StateSource interface {
	SnapshotBlock(ctx context.Context) (int64, error)
	TotalSupply(ctx context.Context, block int64) (int64, error)
	GetValueOf(ctx context.Context, tokenID int, block int64) (int64, error)
}

// Builder reconstructs the full ledger from scratch: merge history from
// the event scanner plus a per-token state sweep against the contract.
type Builder struct {
	state      StateSource
	params     domain.CollectionParams
	batchSize  int
	batchDelay time.Duration
	logger     *log.Logger
}

// BuilderOptions contains configuration for creating a Builder.
type BuilderOptions struct {
	State     StateSource
	Params    domain.CollectionParams
	BatchSize int
	// BatchDelay is the pause between sweep batches, for providers that
	// rate limit sustained call bursts.
	BatchDelay time.Duration
	Logger     *log.Logger
}

// NewBuilder creates a ledger builder.
func NewBuilder(opts BuilderOptions) *Builder {
	batchSize := opts.BatchSize
	if batchSize == 0 {
		batchSize = DefaultBatchSize
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Builder{
		state:      opts.State,
		params:     opts.Params,
		batchSize:  batchSize,
		batchDelay: opts.BatchDelay,
		logger:     logger,
	}
}

// BuildResult contains the rebuilt ledger and scan statistics.
type BuildResult struct {
	Ledger *domain.Ledger
	// SnapshotBlock is the block every state read was pinned to.
	SnapshotBlock int64
	// TotalSupply is the contract's alive count at the snapshot.
	TotalSupply int64
	// AliveFound is how many alive tokens the sweep resolved.
	AliveFound int
	// FailedIDs are tokens whose state query kept failing; their ledger
	// entries carry the unknown value sentinel.
	FailedIDs []int
	// FailedBurnedIDs are burned tokens whose pre-burn archive lookup
	// failed; their frozen value stays at the unknown sentinel.
	FailedBurnedIDs []int
	Duration        time.Duration
}

// Build reconstructs the ledger at the current head. Events must be the
// complete merge history, sorted; they supply burn targets and merge
// counts while the contract sweep supplies alive token values.
func (b *Builder) Build(ctx context.Context, events []domain.MergeEvent) (*BuildResult, error) {
	start := time.Now()

	snapshot, err := b.state.SnapshotBlock(ctx)
	if err != nil {
		return nil, fmt.Errorf("snapshot block: %w", err)
	}

	supply, err := b.state.TotalSupply(ctx, snapshot)
	if err != nil {
		return nil, fmt.Errorf("total supply: %w", err)
	}

	b.logger.Printf("rebuild pinned to block %d, total supply %d", snapshot, supply)

	l := domain.NewLedger(b.params.MaxTokenID)

	// Burn targets and merge counts come from the event history alone.
	// A zero persist id is a self-burn: the token is gone but nothing
	// absorbed it, so no merge count increments.
	mergeCounts := make(map[int]int)
	for _, ev := range events {
		l.EnsureLen(ev.BurnedID)
		t := l.Token(ev.BurnedID)
		if t == nil {
			t = &domain.Token{}
			l.Tokens[ev.BurnedID] = t
		}
		if ev.PersistID == 0 {
			t.MergedInto = ev.BurnedID
		} else {
			t.MergedInto = ev.PersistID
			mergeCounts[ev.PersistID]++
		}
		if ev.BlockNumber > l.Block {
			l.Block = ev.BlockNumber
		}
	}
	if snapshot > l.Block {
		l.Block = snapshot
	}

	alive, failed, err := b.sweepAlive(ctx, l, snapshot, int(supply))
	if err != nil {
		return nil, err
	}

	failedBurned, err := b.sweepBurned(ctx, l, events)
	if err != nil {
		return nil, err
	}

	for id, count := range mergeCounts {
		t := l.Token(id)
		if t == nil {
			t = &domain.Token{}
			l.EnsureLen(id)
			l.Tokens[id] = t
		}
		t.MergeCount = count
	}

	sort.Ints(failed)
	sort.Ints(failedBurned)

	b.logger.Printf("rebuild done: %d alive, %d failed, %d failed burned, %s",
		alive, len(failed), len(failedBurned), time.Since(start).Round(time.Millisecond))

	return &BuildResult{
		Ledger:          l,
		SnapshotBlock:   snapshot,
		TotalSupply:     supply,
		AliveFound:      alive,
		FailedIDs:       failed,
		FailedBurnedIDs: failedBurned,
		Duration:        time.Since(start),
	}, nil
}

// sweepAlive queries the value of every token not known to be burned,
// in concurrent batches pinned to the snapshot block. The sweep stops
// early once the alive count matches total supply; every remaining
// unburned token must then be nonexistent.
func (b *Builder) sweepAlive(ctx context.Context, l *domain.Ledger, snapshot int64, supply int) (int, []int, error) {
	var (
		mu     sync.Mutex
		alive  int
		failed []int
	)

	var candidates []int
	for id := 1; id <= b.params.MaxTokenID; id++ {
		t := l.Token(id)
		if t != nil && t.MergedInto != 0 {
			continue
		}
		candidates = append(candidates, id)
	}

	for offset := 0; offset < len(candidates); offset += b.batchSize {
		mu.Lock()
		if supply > 0 && alive >= supply {
			mu.Unlock()
			b.logger.Printf("sweep stopped early at offset %d: supply reached", offset)
			break
		}
		mu.Unlock()

		end := offset + b.batchSize
		if end > len(candidates) {
			end = len(candidates)
		}
		batch := candidates[offset:end]

		g, gCtx := errgroup.WithContext(ctx)
		for _, id := range batch {
			id := id
			g.Go(func() error {
				value, err := b.queryValue(gCtx, id, snapshot)
				if err != nil {
					if ethereum.IsNonexistentToken(err) {
						return nil
					}
					mu.Lock()
					failed = append(failed, id)
					mu.Unlock()
					b.logger.Printf("token %d: state query failed: %v", id, err)
					return nil
				}

				mu.Lock()
				t := l.Token(id)
				if t == nil {
					t = &domain.Token{}
					l.Tokens[id] = t
				}
				t.RawValue = value
				alive++
				mu.Unlock()
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return 0, nil, fmt.Errorf("sweep batch at offset %d: %w", offset, err)
		}

		if offset%2000 == 0 && offset > 0 {
			b.logger.Printf("sweep progress: %d/%d candidates, %d alive", offset, len(candidates), alive)
		}

		if b.batchDelay > 0 && end < len(candidates) {
			select {
			case <-ctx.Done():
				return 0, nil, ctx.Err()
			case <-time.After(b.batchDelay):
			}
		}
	}

	return alive, failed, nil
}

// sweepBurned freezes each burned token's value by querying the block
// just before its burn. Lookup failures leave the unknown sentinel and
// record the ID for an out-of-band retry.
func (b *Builder) sweepBurned(ctx context.Context, l *domain.Ledger, events []domain.MergeEvent) ([]int, error) {
	// First burn event per token wins; a token burns at most once.
	burnBlock := make(map[int]int64, len(events))
	for _, ev := range events {
		if _, seen := burnBlock[ev.BurnedID]; !seen {
			burnBlock[ev.BurnedID] = ev.BlockNumber
		}
	}

	ids := make([]int, 0, len(burnBlock))
	for id := range burnBlock {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	var (
		mu     sync.Mutex
		failed []int
	)

	for offset := 0; offset < len(ids); offset += archiveBatchSize {
		end := offset + archiveBatchSize
		if end > len(ids) {
			end = len(ids)
		}
		batch := ids[offset:end]

		g, gCtx := errgroup.WithContext(ctx)
		for _, id := range batch {
			id := id
			g.Go(func() error {
				value, err := b.state.GetValueOf(gCtx, id, burnBlock[id]-1)
				if err != nil || value <= 0 {
					mu.Lock()
					failed = append(failed, id)
					mu.Unlock()
					return nil
				}

				mu.Lock()
				if t := l.Token(id); t != nil {
					t.RawValue = value
				}
				mu.Unlock()
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, fmt.Errorf("burned sweep batch at offset %d: %w", offset, err)
		}
	}

	return failed, nil
}

// queryValue reads a token's value with one slow retry. Providers shed
// load on big sweeps; a short pause clears most transient failures.
func (b *Builder) queryValue(ctx context.Context, id int, snapshot int64) (int64, error) {
	value, err := b.state.GetValueOf(ctx, id, snapshot)
	if err == nil || ethereum.IsNonexistentToken(err) {
		return value, err
	}
	if errors.Is(err, context.Canceled) {
		return 0, err
	}

	delay := 800*time.Millisecond + time.Duration(id%8)*150*time.Millisecond
	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case <-time.After(delay):
	}

	return b.state.GetValueOf(ctx, id, snapshot)
}
