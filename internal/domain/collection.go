package domain

// CollectionParams carries the dataset-specific constants of the tracked
// collection: addresses, supply invariants, and the one-time corrections
// for activity that predates on-chain event logging. They are named
// configuration, not values any algorithm re-derives.
type CollectionParams struct {
	// ContractAddress is the token contract emitting MassUpdate events.
	ContractAddress string
	// CustodialAddress is the custodial (omnibus) wallet tracked for
	// "still in custody" metrics.
	CustodialAddress string

	// MaxTokenID is the highest token ID ever minted; IDs are in
	// [1, MaxTokenID] and never reused.
	MaxTokenID int
	// DeployBlock is the contract deployment block, the genesis of the
	// event log.
	DeployBlock int64
	// TotalMass is the contract's conserved total mass across all alive
	// tokens. Used as a cross-check, never as an input.
	TotalMass int64
	// TierInitial is the count of tokens minted per tier, indexed 1..4.
	TierInitial [5]int

	// PrehistoryBurns tokens were burned before event logging began
	// (on the predecessor contract); they are applied as one synthetic
	// adjustment on the day after the series start. The per-tier split
	// is derived from current alive counts versus the initial counts.
	PrehistoryBurns      int
	PrehistoryTier1Burns int
	PrehistoryTier3Burns int
}

// DefaultCollectionParams returns the parameters of the mainnet
// collection this tooling was built for.
func DefaultCollectionParams() CollectionParams {
	return CollectionParams{
		ContractAddress:      "0xc3f8a0f5841abff777d3eefa5047e8d413a1c9ab",
		CustodialAddress:     "0xe052113bd7d7700d623414a0a4585bcae754e9d5",
		MaxTokenID:           28990,
		DeployBlock:          13_755_675,
		TotalMass:            312_712,
		TierInitial:          [5]int{0, 28841, 94, 50, 5},
		PrehistoryBurns:      278,
		PrehistoryTier1Burns: 277,
		PrehistoryTier3Burns: 1,
	}
}
