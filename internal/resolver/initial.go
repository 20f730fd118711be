// Package resolver reconstructs the mass each token held at contract
// deployment. The chain only exposes current state and merge deltas, so
// initial masses must be derived by propagating known masses through
// the merge history until a fixed point.
package resolver

import (
	"math"

	"merge-ledger/internal/domain"
)

// Result holds resolved initial masses.
type Result struct {
	// Masses maps token ID to its mass at deployment, for every ID in
	// [1, MaxTokenID].
	Masses map[int]int64
	// Estimated marks IDs whose mass could not be derived exactly and
	// was filled from the conservation fallback.
	Estimated map[int]struct{}
	// Passes is how many propagation passes ran before the fixed point.
	Passes int
}

// ResolveInitialMasses derives every token's deployment-time mass from
// the merge history and the current masses of alive tokens.
//
// Alive tokens that never absorbed another token still hold their
// initial mass. Each event then pins an equation: survivor mass after a
// merge equals the event mass, so knowing either side's prior mass
// resolves the other. Passes repeat until no new token resolves; the
// remainder is estimated by spreading the unaccounted share of the
// collection's total mass evenly.
func ResolveInitialMasses(events []domain.MergeEvent, aliveMasses map[int]int64, params domain.CollectionParams) *Result {
	initial := make(map[int]int64)
	estimated := make(map[int]struct{})

	everPersist := make(map[int]struct{})
	for _, e := range events {
		if e.PersistID > 0 {
			everPersist[e.PersistID] = struct{}{}
		}
	}

	for id, mass := range aliveMasses {
		if _, ok := everPersist[id]; !ok {
			initial[id] = mass
		}
	}

	passes := 0
	changed := true
	for changed {
		changed = false
		passes++

		tracked := make(map[int]int64, len(initial))
		for id, mass := range initial {
			tracked[id] = mass
		}

		for _, e := range events {
			if e.PersistID == 0 {
				// Self-burn: no survivor, nothing to propagate.
				delete(tracked, e.BurnedID)
				continue
			}

			pBefore, pKnown := tracked[e.PersistID]
			bMass, bKnown := tracked[e.BurnedID]

			if pKnown {
				if _, done := initial[e.BurnedID]; !done {
					initial[e.BurnedID] = e.Mass - pBefore
					changed = true
				}
			}
			if bKnown {
				if _, done := initial[e.PersistID]; !done {
					initial[e.PersistID] = e.Mass - bMass
					changed = true
				}
			}

			// The survivor's post-merge mass is known from the event
			// regardless of what resolved.
			tracked[e.PersistID] = e.Mass
			delete(tracked, e.BurnedID)
		}
	}

	var resolvedSum int64
	for _, mass := range initial {
		resolvedSum += mass
	}

	unresolved := params.MaxTokenID - len(initial)
	if unresolved > 0 {
		avg := int64(math.Round(float64(params.TotalMass-resolvedSum) / float64(unresolved)))
		if avg < 1 {
			avg = 1
		}
		for id := 1; id <= params.MaxTokenID; id++ {
			if _, ok := initial[id]; !ok {
				initial[id] = avg
				estimated[id] = struct{}{}
			}
		}
	}

	return &Result{
		Masses:    initial,
		Estimated: estimated,
		Passes:    passes,
	}
}
