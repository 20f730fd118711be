package ledger

import (
	"merge-ledger/internal/domain"
)

// Report is a consistency check of a ledger against the collection's
// conserved totals.
type Report struct {
	// AliveCount and AliveMass are the ledger's current totals.
	AliveCount int
	AliveMass  int64
	// BurnedCount counts tokens marked merged, self-burns included.
	BurnedCount int
	// SelfBurned counts deflationary burns with no surviving target.
	SelfBurned int
	// SelfBurnedMass is mass that left circulation with them.
	SelfBurnedMass int64
	// UnknownValue lists alive tokens whose value is the zero sentinel;
	// their mass cannot be counted.
	UnknownValue []int
	// MassDelta is expected total mass minus accounted mass. Zero when
	// the ledger fully conserves mass.
	MassDelta int64
}

// Consistent reports whether the ledger conserves mass exactly with no
// unknown values.
func (r *Report) Consistent() bool {
	return r.MassDelta == 0 && len(r.UnknownValue) == 0
}

// Verify checks mass conservation: every unit of the collection's total
// mass must be held by an alive token or retired by a self-burn.
// Self-burn masses come from the event history since the burned entry
// keeps only its last known value.
func Verify(l *domain.Ledger, events []domain.MergeEvent, params domain.CollectionParams) *Report {
	r := &Report{}

	selfBurnMass := make(map[int]int64)
	for _, ev := range events {
		if ev.PersistID == 0 {
			selfBurnMass[ev.BurnedID] = ev.Mass
		}
	}

	for id := 1; id < len(l.Tokens); id++ {
		t := l.Tokens[id]
		if t == nil {
			continue
		}
		if t.MergedInto != 0 {
			r.BurnedCount++
			if t.MergedInto == id {
				r.SelfBurned++
				r.SelfBurnedMass += selfBurnMass[id]
			}
			continue
		}
		r.AliveCount++
		if t.RawValue == 0 {
			r.UnknownValue = append(r.UnknownValue, id)
			continue
		}
		r.AliveMass += t.Mass()
	}

	accounted := r.AliveMass + r.SelfBurnedMass
	r.MassDelta = params.TotalMass - accounted

	return r
}
