package domain

import (
	"fmt"
	"sort"
)

// MergeEvent is one MassUpdate log extracted from the chain: BurnedID was
// consumed and PersistID now carries Mass (its post-merge mass).
// PersistID 0 is the degenerate "burned with no target" case.
//
// (BlockNumber, LogIndex) is the authoritative ordering key. Timestamp is
// informational; events sharing a block can carry equal or slightly
// misordered timestamps.
type MergeEvent struct {
	BurnedID    int
	PersistID   int
	Mass        int64
	BlockNumber int64
	LogIndex    int
	Timestamp   int64
}

// Key is the composite dedup key. Page-boundary overlap during log
// scanning produces exact duplicates, never partial ones.
func (e MergeEvent) Key() string {
	return fmt.Sprintf("%d-%d-%d", e.BurnedID, e.PersistID, e.BlockNumber)
}

// SortEventsByBlock orders events by (blockNumber, logIndex) ascending,
// the order required for ledger application.
func SortEventsByBlock(events []MergeEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		if events[i].BlockNumber != events[j].BlockNumber {
			return events[i].BlockNumber < events[j].BlockNumber
		}
		return events[i].LogIndex < events[j].LogIndex
	})
}

// SortEventsChronological orders events by (timestamp, blockNumber,
// logIndex) ascending, the order the time-series replay runs in.
func SortEventsChronological(events []MergeEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		if events[i].Timestamp != events[j].Timestamp {
			return events[i].Timestamp < events[j].Timestamp
		}
		if events[i].BlockNumber != events[j].BlockNumber {
			return events[i].BlockNumber < events[j].BlockNumber
		}
		return events[i].LogIndex < events[j].LogIndex
	})
}

// DedupeEvents removes duplicate events, keeping the first occurrence of
// each (burnedId, persistId, blockNumber) key and preserving order.
func DedupeEvents(events []MergeEvent) []MergeEvent {
	seen := make(map[string]struct{}, len(events))
	out := events[:0:0]
	for _, e := range events {
		k := e.Key()
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, e)
	}
	return out
}

// CustodialTransfer is a Transfer event moving a token into (Delta +1) or
// out of (Delta -1) the tracked custodial wallet.
type CustodialTransfer struct {
	TokenID     int
	BlockNumber int64
	Timestamp   int64
	Delta       int
	// FromZero marks a mint directly into the custodial wallet (the
	// contract-migration mints), which must not be double-counted when
	// the replay seeds the custodial set with the full collection.
	FromZero bool
}

// SortTransfersChronological orders custodial transfers by (timestamp,
// blockNumber) ascending.
func SortTransfersChronological(transfers []CustodialTransfer) {
	sort.SliceStable(transfers, func(i, j int) bool {
		if transfers[i].Timestamp != transfers[j].Timestamp {
			return transfers[i].Timestamp < transfers[j].Timestamp
		}
		return transfers[i].BlockNumber < transfers[j].BlockNumber
	})
}
