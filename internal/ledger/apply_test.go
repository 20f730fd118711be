package ledger

import (
	"testing"

	"merge-ledger/internal/domain"
)

func TestApply_MergeUpdatesSurvivor(t *testing.T) {
	l := domain.NewLedger(10)
	l.Block = 14000000
	l.Tokens[1] = &domain.Token{RawValue: domain.EncodeValue(1, 5)}
	l.Tokens[2] = &domain.Token{RawValue: domain.EncodeValue(1, 15)}

	events := []domain.MergeEvent{
		{BurnedID: 2, PersistID: 1, Mass: 20, BlockNumber: 14000100, Timestamp: 1647000000},
	}

	out, err := Apply(l, events)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}

	if out.Applied != 1 || out.Skipped != 0 {
		t.Errorf("expected 1 applied 0 skipped, got %d/%d", out.Applied, out.Skipped)
	}

	survivor := l.Token(1)
	if survivor.Tier() != 1 || survivor.Mass() != 20 {
		t.Errorf("survivor = tier %d mass %d, want tier 1 mass 20", survivor.Tier(), survivor.Mass())
	}
	if survivor.MergeCount != 1 {
		t.Errorf("survivor merge count = %d, want 1", survivor.MergeCount)
	}

	burned := l.Token(2)
	if burned.MergedInto != 1 {
		t.Errorf("burned MergedInto = %d, want 1", burned.MergedInto)
	}
	if burned.Alive() {
		t.Error("burned token must not be alive")
	}

	if l.Block != 14000100 {
		t.Errorf("ledger block = %d, want 14000100", l.Block)
	}
}

func TestApply_TierPreserved(t *testing.T) {
	l := domain.NewLedger(10)
	l.Tokens[3] = &domain.Token{RawValue: domain.EncodeValue(4, 100)}
	l.Tokens[7] = &domain.Token{RawValue: domain.EncodeValue(1, 9)}

	events := []domain.MergeEvent{
		{BurnedID: 7, PersistID: 3, Mass: 109, BlockNumber: 100, Timestamp: 1647000000},
	}

	if _, err := Apply(l, events); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	survivor := l.Token(3)
	if survivor.Tier() != 4 {
		t.Errorf("survivor tier = %d, tier must survive a merge", survivor.Tier())
	}
	if survivor.Mass() != 109 {
		t.Errorf("survivor mass = %d, want 109", survivor.Mass())
	}
}

func TestApply_UnknownSurvivorDefaultsTierOne(t *testing.T) {
	l := domain.NewLedger(10)
	l.Tokens[5] = &domain.Token{RawValue: domain.EncodeValue(1, 2)}
	// token 6 has no entry at all

	events := []domain.MergeEvent{
		{BurnedID: 5, PersistID: 6, Mass: 8, BlockNumber: 100, Timestamp: 1647000000},
	}

	if _, err := Apply(l, events); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	survivor := l.Token(6)
	if survivor == nil {
		t.Fatal("survivor entry must be created")
	}
	if survivor.Tier() != 1 || survivor.Mass() != 8 {
		t.Errorf("survivor = tier %d mass %d, want tier 1 mass 8", survivor.Tier(), survivor.Mass())
	}
}

func TestApply_SelfBurn(t *testing.T) {
	l := domain.NewLedger(10)
	l.Tokens[4] = &domain.Token{RawValue: domain.EncodeValue(2, 30)}

	events := []domain.MergeEvent{
		{BurnedID: 4, PersistID: 0, Mass: 30, BlockNumber: 100, Timestamp: 1647000000},
	}

	out, err := Apply(l, events)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}

	burned := l.Token(4)
	if burned.MergedInto != 4 {
		t.Errorf("self-burn MergedInto = %d, want 4", burned.MergedInto)
	}
	if burned.Alive() {
		t.Error("self-burned token must not be alive")
	}
	if burned.MergeCount != 0 {
		t.Errorf("self-burn must not increment merge count, got %d", burned.MergeCount)
	}

	if len(out.FeedEntries) != 1 {
		t.Fatalf("expected 1 feed entry, got %d", len(out.FeedEntries))
	}
	if out.FeedEntries[0].MergedTo.ID != 4 || out.FeedEntries[0].MergedTo.Mass != 0 {
		t.Errorf("unexpected self-burn feed target: %+v", out.FeedEntries[0].MergedTo)
	}
}

func TestApply_Idempotent(t *testing.T) {
	l := domain.NewLedger(10)
	l.Tokens[1] = &domain.Token{RawValue: domain.EncodeValue(1, 5)}
	l.Tokens[2] = &domain.Token{RawValue: domain.EncodeValue(1, 15)}

	events := []domain.MergeEvent{
		{BurnedID: 2, PersistID: 1, Mass: 20, BlockNumber: 14000100, Timestamp: 1647000000},
	}

	if _, err := Apply(l, events); err != nil {
		t.Fatalf("first Apply: %v", err)
	}
	out, err := Apply(l, events)
	if err != nil {
		t.Fatalf("second Apply: %v", err)
	}

	if out.Applied != 0 || out.Skipped != 1 {
		t.Errorf("expected 0 applied 1 skipped, got %d/%d", out.Applied, out.Skipped)
	}

	survivor := l.Token(1)
	if survivor.Mass() != 20 || survivor.MergeCount != 1 {
		t.Errorf("re-apply changed state: mass %d count %d", survivor.Mass(), survivor.MergeCount)
	}
}

func TestApply_FreshEventBehindCheckpointFails(t *testing.T) {
	l := domain.NewLedger(10)
	l.Block = 15000000
	l.Tokens[2] = &domain.Token{RawValue: domain.EncodeValue(1, 15)}

	events := []domain.MergeEvent{
		{BurnedID: 2, PersistID: 1, Mass: 20, BlockNumber: 14000100, Timestamp: 1647000000},
	}

	if _, err := Apply(l, events); err == nil {
		t.Fatal("expected error for unapplied event behind checkpoint")
	}
}

func TestApply_UnsortedBatchFails(t *testing.T) {
	l := domain.NewLedger(10)

	events := []domain.MergeEvent{
		{BurnedID: 2, PersistID: 1, Mass: 20, BlockNumber: 200},
		{BurnedID: 3, PersistID: 1, Mass: 25, BlockNumber: 100},
	}

	if _, err := Apply(l, events); err == nil {
		t.Fatal("expected error for unsorted batch")
	}
}

func TestApply_FeedNewestFirst(t *testing.T) {
	l := domain.NewLedger(10)
	l.Tokens[1] = &domain.Token{RawValue: domain.EncodeValue(1, 1)}
	l.Tokens[2] = &domain.Token{RawValue: domain.EncodeValue(1, 2)}
	l.Tokens[3] = &domain.Token{RawValue: domain.EncodeValue(1, 3)}

	events := []domain.MergeEvent{
		{BurnedID: 2, PersistID: 1, Mass: 3, BlockNumber: 100, Timestamp: 1647000000},
		{BurnedID: 3, PersistID: 1, Mass: 6, BlockNumber: 200, Timestamp: 1647100000},
	}

	out, err := Apply(l, events)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}

	if len(out.FeedEntries) != 2 {
		t.Fatalf("expected 2 feed entries, got %d", len(out.FeedEntries))
	}
	if out.FeedEntries[0].ID != 3 {
		t.Errorf("expected newest entry first, got id %d", out.FeedEntries[0].ID)
	}
	// Feed records the burned token's state before the merge.
	if out.FeedEntries[1].Mass != 2 {
		t.Errorf("expected pre-merge mass 2, got %d", out.FeedEntries[1].Mass)
	}
	if out.FeedEntries[0].MergedOn == nil || *out.FeedEntries[0].MergedOn != "2022-03-12T15:46:40.000Z" {
		t.Errorf("unexpected merge time: %v", out.FeedEntries[0].MergedOn)
	}
}
