// Package history rebuilds the collection's daily supply time series by
// replaying the merge history day by day.
package history

import (
	"fmt"
	"log"
	"time"

	"merge-ledger/internal/domain"
	"merge-ledger/internal/resolver"
)

// BuildOptions contains the inputs for a time-series rebuild.
type BuildOptions struct {
	// Ledger supplies current tiers and masses; burned entries keep
	// their last known value.
	Ledger *domain.Ledger
	// Events is the complete merge history.
	Events []domain.MergeEvent
	// Transfers is the custodial wallet's transfer history.
	Transfers []domain.CustodialTransfer
	Params    domain.CollectionParams
	// Now anchors the trailing fill; the series always extends to the
	// current day even when no merges happened recently.
	Now    time.Time
	Logger *log.Logger
}

// BuildResult is the rebuilt series plus the alpha succession trace.
type BuildResult struct {
	History      *domain.SupplyHistory
	AlphaChanges []domain.AlphaChange
	// InitialEstimated is how many tokens' starting masses had to be
	// estimated rather than derived.
	InitialEstimated int
}

// Build replays the merge history into one row per calendar day (UTC).
// The first row is the pristine state the day before the first event;
// the second folds in the burns and claims that predate event logging.
func Build(opts BuildOptions) (*BuildResult, error) {
	if len(opts.Events) == 0 {
		return nil, fmt.Errorf("no events to build history from")
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	events := make([]domain.MergeEvent, len(opts.Events))
	copy(events, opts.Events)
	domain.SortEventsChronological(events)

	transfers := make([]domain.CustodialTransfer, len(opts.Transfers))
	copy(transfers, opts.Transfers)
	domain.SortTransfersChronological(transfers)

	params := opts.Params

	tierMap, massMap, unknownIDs := classify(opts.Ledger, params)
	fixUnknownTiers(events, tierMap, unknownIDs)

	initialAlphaMass := traceInitialAlphaMass(events)

	initial := resolver.ResolveInitialMasses(events, massMap, params)
	logger.Printf("initial masses: %d resolved, %d estimated (%d passes)",
		len(initial.Masses)-len(initial.Estimated), len(initial.Estimated), initial.Passes)

	st := &state{
		params:       params,
		tierMap:      tierMap,
		alive:        params.MaxTokenID,
		tiers:        params.TierInitial,
		alphaID:      1,
		alphaMass:    initialAlphaMass,
		tokenMass:    make(map[int]int64, params.MaxTokenID),
		custodialSet: make(map[int]struct{}, params.MaxTokenID),
		custodial:    params.TotalMass,
		transfers:    transfers,
	}

	for id := 1; id <= params.MaxTokenID; id++ {
		mass, ok := initial.Masses[id]
		if !ok || mass == 0 {
			mass = 1
		}
		st.tokenMass[id] = mass
		st.custodialSet[id] = struct{}{}
	}
	if _, ok := initial.Masses[1]; !ok {
		st.tokenMass[1] = initialAlphaMass
	}

	// Start one day before the first event to show the initial state.
	firstDay := dayOf(events[0].Timestamp)
	st.currentDay = firstDay.AddDate(0, 0, -1)
	startDate := st.currentDay.Format("2006-01-02")

	st.pushDay()
	st.advanceDay()

	// Fold in what happened before event logging began: tokens already
	// claimed out of the custodial wallet, and the burns carried over
	// from before the contract swap.
	migrated := migrationMints(transfers)
	for id := 1; id <= params.MaxTokenID; id++ {
		if _, ok := migrated[id]; !ok {
			st.custodial -= st.tokenMass[id]
			delete(st.custodialSet, id)
		}
	}
	st.alive -= params.PrehistoryBurns
	st.tiers[1] -= params.PrehistoryTier1Burns
	st.tiers[3] -= params.PrehistoryTier3Burns
	st.dayMerges = params.PrehistoryBurns
	st.pushDay()
	st.advanceDay()
	st.dayMerges = 0

	for _, ev := range events {
		eventDay := dayOf(ev.Timestamp)

		for st.currentDay.Before(eventDay) {
			st.pushDay()
			st.dayMerges = 0
			st.advanceDay()
		}

		st.applyMerge(ev)
	}

	st.pushDay()

	// Fill up to today.
	today := opts.Now.UTC().Truncate(24 * time.Hour)
	for st.currentDay.Before(today) {
		st.advanceDay()
		st.dayMerges = 0
		st.pushDay()
	}

	logger.Printf("supply history: %d days (%s -> %s), alpha changed %d times",
		len(st.data), startDate, st.currentDay.Format("2006-01-02"), len(st.alphaChanges))

	return &BuildResult{
		History: &domain.SupplyHistory{
			StartDate: startDate,
			Data:      st.data,
		},
		AlphaChanges:     st.alphaChanges,
		InitialEstimated: len(initial.Estimated),
	}, nil
}

// state is the running replay position.
type state struct {
	params  domain.CollectionParams
	tierMap map[int]int

	alive     int
	tiers     [5]int
	alphaID   int
	alphaMass int64
	dayMerges int

	tokenMass    map[int]int64
	custodialSet map[int]struct{}
	custodial    int64

	transfers   []domain.CustodialTransfer
	transferIdx int

	currentDay   time.Time
	data         []domain.SupplyDay
	alphaChanges []domain.AlphaChange
}

// pushDay folds in custodial transfers through the current day and
// appends the day's row.
func (s *state) pushDay() {
	s.applyTransfersThrough(s.currentDay)
	s.data = append(s.data, domain.SupplyDay{
		Alive:          s.alive,
		TierCounts:     s.tiers,
		AlphaMass:      s.alphaMass,
		Merges:         s.dayMerges,
		CustodialCount: len(s.custodialSet),
		CustodialMass:  s.custodial,
	})
}

func (s *state) advanceDay() {
	s.currentDay = s.currentDay.AddDate(0, 0, 1)
}

// applyTransfersThrough moves tokens across the custodial boundary for
// every transfer up to and including the given day. Migration mints of
// tokens already inside are skipped so their mass is not double
// counted.
func (s *state) applyTransfersThrough(day time.Time) {
	for s.transferIdx < len(s.transfers) {
		t := s.transfers[s.transferIdx]
		if dayOf(t.Timestamp).After(day) {
			break
		}
		if t.Delta > 0 {
			if _, in := s.custodialSet[t.TokenID]; !in {
				s.custodial += s.tokenMass[t.TokenID]
				s.custodialSet[t.TokenID] = struct{}{}
			}
		} else {
			if _, in := s.custodialSet[t.TokenID]; in {
				s.custodial -= s.tokenMass[t.TokenID]
				delete(s.custodialSet, t.TokenID)
			}
		}
		s.transferIdx++
	}
}

// applyMerge advances the running state for one merge event.
func (s *state) applyMerge(ev domain.MergeEvent) {
	s.alive--
	burnedTier := s.tierMap[ev.BurnedID]
	if burnedTier == 0 {
		burnedTier = 1
	}
	s.tiers[burnedTier]--

	_, persistIn := s.custodialSet[ev.PersistID]
	_, burnedIn := s.custodialSet[ev.BurnedID]

	if ev.PersistID == 0 {
		// Self-burn: the mass leaves circulation entirely.
		if burnedIn {
			s.custodial -= s.tokenMass[ev.BurnedID]
			delete(s.custodialSet, ev.BurnedID)
		}
		delete(s.tokenMass, ev.BurnedID)
		s.dayMerges++
		return
	}

	// A merge across the custodial boundary moves mass; fully inside or
	// fully outside it conserves.
	if persistIn && !burnedIn {
		s.custodial += ev.Mass - s.tokenMass[ev.PersistID]
	} else if burnedIn && !persistIn {
		s.custodial -= s.tokenMass[ev.BurnedID]
	}

	s.tokenMass[ev.PersistID] = ev.Mass
	delete(s.tokenMass, ev.BurnedID)

	if ev.Mass > s.alphaMass {
		prev := s.alphaID
		s.alphaMass = ev.Mass
		s.alphaID = ev.PersistID
		if s.alphaID != prev {
			s.alphaChanges = append(s.alphaChanges, domain.AlphaChange{
				Date:    dayOf(ev.Timestamp).Format("2006-01-02"),
				TokenID: s.alphaID,
				Mass:    s.alphaMass,
			})
		}
	}

	s.dayMerges++
}

// classify derives per-token tiers and alive masses from the ledger.
// Tokens with the unknown value sentinel default to tier 1 and are
// returned for tier correction.
func classify(l *domain.Ledger, params domain.CollectionParams) (map[int]int, map[int]int64, map[int]struct{}) {
	tierMap := make(map[int]int, params.MaxTokenID)
	massMap := make(map[int]int64)
	unknown := make(map[int]struct{})

	for id := 1; id <= params.MaxTokenID; id++ {
		var t *domain.Token
		if l != nil {
			t = l.Token(id)
		}
		if t == nil || t.RawValue == 0 {
			tierMap[id] = 1
			unknown[id] = struct{}{}
			continue
		}
		tierMap[id] = t.Tier()
		if t.Alive() {
			massMap[id] = t.Mass()
		}
	}

	return tierMap, massMap, unknown
}

// fixUnknownTiers corrects tier defaults for burned tokens: merges only
// happen within a tier, so an unknown burned token inherits its
// survivor's tier when that tier is above the default.
func fixUnknownTiers(events []domain.MergeEvent, tierMap map[int]int, unknown map[int]struct{}) {
	for _, ev := range events {
		if _, ok := unknown[ev.BurnedID]; !ok {
			continue
		}
		if tier := tierMap[ev.PersistID]; tier > 1 {
			tierMap[ev.BurnedID] = tier
		}
	}
}

// traceInitialAlphaMass derives token #1's starting mass. Token #1 held
// the alpha before event logging began; its first merge event pins its
// prior mass as the event mass minus the burned token's mass at that
// point.
func traceInitialAlphaMass(events []domain.MergeEvent) int64 {
	firstIdx := -1
	for i, ev := range events {
		if ev.PersistID == 1 {
			firstIdx = i
			break
		}
	}
	if firstIdx < 0 {
		return 1
	}

	tokenMass := make(map[int]int64)
	for _, ev := range events[:firstIdx] {
		delete(tokenMass, ev.BurnedID)
		if ev.PersistID > 0 {
			tokenMass[ev.PersistID] = ev.Mass
		}
	}

	burnedMass := tokenMass[events[firstIdx].BurnedID]
	if burnedMass == 0 {
		burnedMass = 1
	}
	return events[firstIdx].Mass - burnedMass
}

// migrationMints collects tokens minted straight into the custodial
// wallet; everything else had already been claimed when logging began.
func migrationMints(transfers []domain.CustodialTransfer) map[int]struct{} {
	out := make(map[int]struct{})
	for _, t := range transfers {
		if t.FromZero {
			out[t.TokenID] = struct{}{}
		}
	}
	return out
}

func dayOf(unixSeconds int64) time.Time {
	return time.Unix(unixSeconds, 0).UTC().Truncate(24 * time.Hour)
}
