package domain

import (
	"encoding/json"
	"fmt"
)

// SupplyDay is one daily snapshot row of the aggregate supply series.
// On disk each row is the 9-int array
// [alive, t1, t2, t3, t4, alphaMass, merges, custodialCount, custodialMass].
type SupplyDay struct {
	Alive          int
	TierCounts     [5]int // indexed 1..4
	AlphaMass      int64
	Merges         int
	CustodialCount int
	CustodialMass  int64
}

// MarshalJSON encodes the row as its positional array form.
func (d SupplyDay) MarshalJSON() ([]byte, error) {
	return json.Marshal([9]int64{
		int64(d.Alive),
		int64(d.TierCounts[1]), int64(d.TierCounts[2]), int64(d.TierCounts[3]), int64(d.TierCounts[4]),
		d.AlphaMass,
		int64(d.Merges),
		int64(d.CustodialCount),
		d.CustodialMass,
	})
}

// UnmarshalJSON decodes the positional array form.
func (d *SupplyDay) UnmarshalJSON(data []byte) error {
	var row [9]int64
	if err := json.Unmarshal(data, &row); err != nil {
		return fmt.Errorf("supply day row: %w", err)
	}
	d.Alive = int(row[0])
	d.TierCounts = [5]int{0, int(row[1]), int(row[2]), int(row[3]), int(row[4])}
	d.AlphaMass = row[5]
	d.Merges = int(row[6])
	d.CustodialCount = int(row[7])
	d.CustodialMass = row[8]
	return nil
}

// SupplyHistory is the daily snapshot series. Data index = day offset
// from StartDate (an ISO-8601 date).
type SupplyHistory struct {
	StartDate string      `json:"startDate"`
	Data      []SupplyDay `json:"data"`
}

// AlphaChange records the alpha title changing hands: on Date, TokenID
// became the highest-mass token at Mass. Ties never change the holder.
type AlphaChange struct {
	Date    string `json:"date"`
	TokenID int    `json:"tokenId"`
	Mass    int64  `json:"mass"`
}
