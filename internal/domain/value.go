package domain

// ClassDivisor is the fixed divisor the contract uses to pack a token's
// class (tier) and mass into a single uint256 value:
// value = tier*ClassDivisor + mass.
const ClassDivisor = 100_000_000

// DecodeValue splits a raw on-chain value into (tier, mass).
// A raw value of 0 decodes to (0, 0) and is the sentinel for "unknown"
// (the historical state query for a burned token failed).
func DecodeValue(raw int64) (tier int, mass int64) {
	return int(raw / ClassDivisor), raw % ClassDivisor
}

// EncodeValue packs (tier, mass) back into a raw value. It performs no
// range validation; tiers outside 1..4 are a data anomaly handled at
// display call sites, not here.
func EncodeValue(tier int, mass int64) int64 {
	return int64(tier)*ClassDivisor + mass
}
