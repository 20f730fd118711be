// Package stats derives the aggregate documents served to readers from
// a ledger snapshot: headline stats, leaderboards, the mass histogram,
// and the matter breakdown.
package stats

import (
	"fmt"
	"sort"
	"time"

	"merge-ledger/internal/domain"
)

// LeaderboardSize caps every top list.
const LeaderboardSize = 100

// HighIDThreshold marks the late-mint ID range tracked separately.
const HighIDThreshold = 28000

// massBuckets are the histogram boundaries; the last bucket is
// open-ended.
var massBuckets = []int64{1, 2, 3, 5, 10, 20, 50, 100, 200, 500, 1000, 2000, 5000, 15000}

// Documents bundles every derived stat in one recompute.
type Documents struct {
	Stats       domain.Stats
	MassTop     []domain.LeaderboardEntry
	BlueMass    []domain.LeaderboardEntry
	MergesTop   []domain.LeaderboardEntry
	Repartition []domain.MassBucket
	Matter      domain.Matter
	// HighIDCount counts alive tokens with IDs above HighIDThreshold.
	HighIDCount int
	// MergeRecords is the terminal record per burned token.
	MergeRecords map[int]domain.MergeRecord
	// MergedInto lists the tokens each survivor absorbed, in merge
	// order.
	MergedInto map[int][]domain.MergedRef
}

type aliveToken struct {
	id     int
	tier   int
	mass   int64
	merges int
}

// Compute derives every stat document from the ledger and the event
// history. Only alive tokens contribute to aggregates.
func Compute(l *domain.Ledger, events []domain.MergeEvent, params domain.CollectionParams) *Documents {
	var alive []aliveToken
	for id := 1; id <= params.MaxTokenID; id++ {
		t := l.Token(id)
		if t == nil || !t.Alive() {
			continue
		}
		alive = append(alive, aliveToken{
			id:     id,
			tier:   t.Tier(),
			mass:   t.Mass(),
			merges: t.MergeCount,
		})
	}

	docs := &Documents{
		Stats:        computeStats(alive, params),
		MassTop:      topByMass(alive, func(t aliveToken) bool { return true }),
		BlueMass:     topByMass(alive, func(t aliveToken) bool { return t.tier == 3 }),
		MergesTop:    topByMerges(alive),
		Repartition:  repartition(alive),
		Matter:       matter(alive),
		MergeRecords: make(map[int]domain.MergeRecord, len(events)),
		MergedInto:   make(map[int][]domain.MergedRef),
	}

	for _, t := range alive {
		if t.id > HighIDThreshold {
			docs.HighIDCount++
		}
	}

	tierOf := func(id int) int {
		if t := l.Token(id); t != nil && t.RawValue != 0 {
			return t.Tier()
		}
		return 0
	}
	massOf := func(id int) int64 {
		if t := l.Token(id); t != nil {
			return t.Mass()
		}
		return 0
	}
	for _, ev := range events {
		target := ev.PersistID
		if target == 0 {
			target = ev.BurnedID
		}
		rec := domain.MergeRecord{MergedTo: target}
		if ev.Timestamp != 0 {
			when := time.Unix(ev.Timestamp, 0).UTC().Format("2006-01-02T15:04:05.000Z")
			rec.MergedOn = &when
		}
		docs.MergeRecords[ev.BurnedID] = rec
		if ev.PersistID > 0 {
			// The burned side carries its frozen pre-burn value.
			docs.MergedInto[ev.PersistID] = append(docs.MergedInto[ev.PersistID], domain.MergedRef{
				ID:   ev.BurnedID,
				Tier: tierOf(ev.BurnedID),
				Mass: massOf(ev.BurnedID),
			})
		}
	}

	return docs
}

func computeStats(alive []aliveToken, params domain.CollectionParams) domain.Stats {
	s := domain.Stats{
		TokenCount:  len(alive),
		MergedCount: params.MaxTokenID - len(alive),
	}
	for _, t := range alive {
		s.TotalMass += t.mass
		if t.mass > s.AlphaMass {
			s.AlphaMass = t.mass
		}
	}
	return s
}

func topByMass(alive []aliveToken, keep func(aliveToken) bool) []domain.LeaderboardEntry {
	var filtered []aliveToken
	for _, t := range alive {
		if keep(t) {
			filtered = append(filtered, t)
		}
	}
	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].mass > filtered[j].mass
	})
	if len(filtered) > LeaderboardSize {
		filtered = filtered[:LeaderboardSize]
	}

	out := make([]domain.LeaderboardEntry, len(filtered))
	for i, t := range filtered {
		out[i] = domain.LeaderboardEntry{ID: t.id, Tier: t.tier, Mass: t.mass}
	}
	return out
}

func topByMerges(alive []aliveToken) []domain.LeaderboardEntry {
	var filtered []aliveToken
	for _, t := range alive {
		if t.merges > 0 {
			filtered = append(filtered, t)
		}
	}
	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].merges > filtered[j].merges
	})
	if len(filtered) > LeaderboardSize {
		filtered = filtered[:LeaderboardSize]
	}

	out := make([]domain.LeaderboardEntry, len(filtered))
	for i, t := range filtered {
		out[i] = domain.LeaderboardEntry{ID: t.id, Tier: t.tier, Mass: t.mass, Merges: t.merges}
	}
	return out
}

func repartition(alive []aliveToken) []domain.MassBucket {
	counts := make([]int, len(massBuckets))
	for _, t := range alive {
		placed := false
		for i := 0; i < len(massBuckets)-1; i++ {
			if t.mass < massBuckets[i+1] {
				counts[i]++
				placed = true
				break
			}
		}
		if !placed {
			counts[len(massBuckets)-1]++
		}
	}

	out := make([]domain.MassBucket, len(massBuckets))
	for i := range massBuckets {
		var label string
		if i < len(massBuckets)-1 {
			label = fmt.Sprintf("m(%d-%d)", massBuckets[i], massBuckets[i+1]-1)
		} else {
			label = fmt.Sprintf("m(%d+)", massBuckets[i])
		}
		out[i] = domain.MassBucket{Label: label, Min: massBuckets[i], Count: counts[i]}
	}
	return out
}

func matter(alive []aliveToken) domain.Matter {
	var m domain.Matter
	for _, t := range alive {
		switch t.tier {
		case 2:
			m.AntimatterCount++
			m.Masses.Negative += t.mass
		case 3:
			m.UnidentifiedCount++
			m.Masses.Unidentified += t.mass
		default:
			m.Masses.Positive += t.mass
		}
	}
	return m
}
