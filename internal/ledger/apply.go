package ledger

import (
	"fmt"
	"time"

	"merge-ledger/internal/domain"
)

// ApplyOutcome reports what an Apply pass changed.
type ApplyOutcome struct {
	// Applied is the number of events that mutated the ledger.
	Applied int
	// Skipped is the number of already-applied events ignored.
	Skipped int
	// FeedEntries are feed records for the applied events, newest first.
	FeedEntries []domain.MergeFeedEntry
}

// Apply replays merge events onto the ledger, in order, without any
// provider queries. Events whose burned token is already marked merged
// are skipped, so re-applying an overlapping batch converges to the
// same state. A fresh event older than the ledger checkpoint is a
// corruption signal and aborts the pass.
func Apply(l *domain.Ledger, events []domain.MergeEvent) (*ApplyOutcome, error) {
	if err := verifySorted(events); err != nil {
		return nil, err
	}

	outcome := &ApplyOutcome{}

	for _, ev := range events {
		if ev.BurnedID <= 0 {
			return nil, fmt.Errorf("event %s: invalid burned id", ev.Key())
		}
		l.EnsureLen(ev.BurnedID)
		if ev.PersistID > 0 {
			l.EnsureLen(ev.PersistID)
		}

		burned := l.Token(ev.BurnedID)
		if burned != nil && burned.MergedInto != 0 {
			// A token burns exactly once; this event is already in.
			outcome.Skipped++
			continue
		}

		if ev.BlockNumber < l.Block {
			return nil, fmt.Errorf("event %s: block %d behind ledger checkpoint %d",
				ev.Key(), ev.BlockNumber, l.Block)
		}

		entry := applyOne(l, ev)
		outcome.Applied++
		outcome.FeedEntries = append([]domain.MergeFeedEntry{entry}, outcome.FeedEntries...)

		if ev.BlockNumber > l.Block {
			l.Block = ev.BlockNumber
		}
	}

	return outcome, nil
}

// applyOne mutates the ledger for a single event and returns its feed
// entry, built from the state before the mutation.
func applyOne(l *domain.Ledger, ev domain.MergeEvent) domain.MergeFeedEntry {
	burned := l.Token(ev.BurnedID)
	if burned == nil {
		burned = &domain.Token{}
		l.Tokens[ev.BurnedID] = burned
	}

	burnedTier := burned.Tier()
	if burnedTier == 0 {
		burnedTier = 1
	}
	burnedMass := burned.Mass()

	entry := domain.MergeFeedEntry{
		ID:   ev.BurnedID,
		Mass: burnedMass,
		Tier: burnedTier,
	}
	if ev.Timestamp != 0 {
		mergedOn := formatEventTime(ev.Timestamp)
		entry.MergedOn = &mergedOn
	}

	if ev.PersistID == 0 {
		// Deflationary self-burn: the token leaves circulation and its
		// mass is absorbed by no survivor.
		burned.MergedInto = ev.BurnedID
		entry.MergedTo = domain.MergeFeedTarget{ID: ev.BurnedID, Mass: 0, Tier: burnedTier}
		return entry
	}

	burned.MergedInto = ev.PersistID

	survivor := l.Token(ev.PersistID)
	if survivor == nil {
		survivor = &domain.Token{}
		l.Tokens[ev.PersistID] = survivor
	}

	survivorTier := survivor.Tier()
	if survivorTier == 0 {
		survivorTier = 1
	}
	survivor.RawValue = domain.EncodeValue(survivorTier, ev.Mass)
	survivor.MergeCount++

	entry.MergedTo = domain.MergeFeedTarget{
		ID:   ev.PersistID,
		Mass: ev.Mass,
		Tier: survivorTier,
	}
	return entry
}

// verifySorted rejects batches that are not in (block, logIndex) order.
func verifySorted(events []domain.MergeEvent) error {
	for i := 1; i < len(events); i++ {
		prev, cur := events[i-1], events[i]
		if cur.BlockNumber < prev.BlockNumber ||
			(cur.BlockNumber == prev.BlockNumber && cur.LogIndex < prev.LogIndex) {
			return fmt.Errorf("events not sorted at index %d: %s before %s",
				i, prev.Key(), cur.Key())
		}
	}
	return nil
}

// formatEventTime matches the feed's ISO-8601 millisecond timestamps.
func formatEventTime(unixSeconds int64) string {
	return time.Unix(unixSeconds, 0).UTC().Format("2006-01-02T15:04:05.000Z")
}
