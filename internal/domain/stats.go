package domain

// Derived statistics documents computed from a ledger snapshot. Shapes
// mirror the persisted JSON consumed downstream.

// Stats is the headline aggregate document.
type Stats struct {
	TokenCount  int   `json:"token_count"`
	MergedCount int   `json:"merged_count"`
	TotalMass   int64 `json:"total_mass"`
	AlphaMass   int64 `json:"alpha_mass"`
}

// LeaderboardEntry is one row of a top-100 leaderboard. Merges is only
// populated for the merge-count board.
type LeaderboardEntry struct {
	ID     int   `json:"id"`
	Tier   int   `json:"tier"`
	Mass   int64 `json:"mass"`
	Merges int   `json:"merges,omitempty"`
}

// MassBucket is one row of the mass-repartition histogram.
type MassBucket struct {
	Label string `json:"label"`
	Min   int64  `json:"min"`
	Count int    `json:"count"`
}

// MatterMasses splits total alive mass by matter kind.
type MatterMasses struct {
	Positive     int64 `json:"positive"`
	Unidentified int64 `json:"unidentified"`
	Negative     int64 `json:"negative"`
}

// Matter is the matter-breakdown document. Class 3 tokens are
// "unidentified", class 2 "antimatter"; classes 1 and 4 count as
// positive matter.
type Matter struct {
	UnidentifiedCount int          `json:"unidentified_count"`
	AntimatterCount   int          `json:"antimatter_count"`
	Masses            MatterMasses `json:"masses"`
}

// MergedRef is one burned token listed under its survivor in the
// merged-into index.
type MergedRef struct {
	ID   int   `json:"id"`
	Tier int   `json:"tier"`
	Mass int64 `json:"mass"`
}

// MergeRecord is the terminal record of a burned token.
type MergeRecord struct {
	MergedTo int     `json:"merged_to"`
	MergedOn *string `json:"merged_on"`
}
