package domain

import (
	"encoding/json"
	"fmt"
)

// Token is the materialized state of a single token ID.
//
// RawValue is the packed (tier, mass) value; 0 means the value is unknown
// (a data gap, never "mass zero"). MergedInto is 0 while the token is
// alive; once burned it holds the surviving token's ID, or the token's own
// ID for the degenerate "burned with no merge target" case. A burned
// token's RawValue is frozen at its last known pre-burn value.
type Token struct {
	RawValue   int64
	MergeCount int
	MergedInto int
}

// Tier returns the token's class (1-4 for known values, 0 for unknown).
func (t *Token) Tier() int {
	tier, _ := DecodeValue(t.RawValue)
	return tier
}

// Mass returns the token's mass (0 for unknown values).
func (t *Token) Mass() int64 {
	_, mass := DecodeValue(t.RawValue)
	return mass
}

// Alive reports whether the token has not been burned.
func (t *Token) Alive() bool {
	return t.MergedInto == 0
}

// MarshalJSON encodes the token as the compact [value, merges, mergedTo]
// triple used by the persisted ledger document.
func (t *Token) MarshalJSON() ([]byte, error) {
	return json.Marshal([3]int64{t.RawValue, int64(t.MergeCount), int64(t.MergedInto)})
}

// UnmarshalJSON decodes the [value, merges, mergedTo] triple.
func (t *Token) UnmarshalJSON(data []byte) error {
	var triple [3]int64
	if err := json.Unmarshal(data, &triple); err != nil {
		return fmt.Errorf("token triple: %w", err)
	}
	t.RawValue = triple[0]
	t.MergeCount = int(triple[1])
	t.MergedInto = int(triple[2])
	return nil
}

// Ledger is the persisted per-token state table. Tokens is indexed by
// token ID; index 0 is always nil, and the slice may be shorter than
// MaxTokenID+1 (absent tail entries are implicit nils in the on-disk
// document). Block is the last block whose events have been applied.
type Ledger struct {
	Block  int64    `json:"block"`
	Tokens []*Token `json:"tokens"`
}

// NewLedger returns an empty ledger sized for the given max token ID.
func NewLedger(maxTokenID int) *Ledger {
	return &Ledger{Tokens: make([]*Token, maxTokenID+1)}
}

// Token returns the entry for id, or nil when the id is out of range or
// the slot is unpopulated.
func (l *Ledger) Token(id int) *Token {
	if id < 0 || id >= len(l.Tokens) {
		return nil
	}
	return l.Tokens[id]
}

// EnsureLen grows the token slice so that index id is addressable.
func (l *Ledger) EnsureLen(id int) {
	for len(l.Tokens) <= id {
		l.Tokens = append(l.Tokens, nil)
	}
}

// AliveMass sums the mass of every alive token. Entries with unknown
// value contribute 0; callers cross-checking conservation must account
// for unknowns separately.
func (l *Ledger) AliveMass() int64 {
	var sum int64
	for _, t := range l.Tokens {
		if t != nil && t.Alive() {
			sum += t.Mass()
		}
	}
	return sum
}

// AliveCount counts tokens currently alive.
func (l *Ledger) AliveCount() int {
	n := 0
	for _, t := range l.Tokens {
		if t != nil && t.Alive() {
			n++
		}
	}
	return n
}

// Clone returns a deep copy. Derived-view builders operate on a clone so
// they never observe a partially-updated ledger.
func (l *Ledger) Clone() *Ledger {
	out := &Ledger{Block: l.Block, Tokens: make([]*Token, len(l.Tokens))}
	for i, t := range l.Tokens {
		if t != nil {
			cp := *t
			out.Tokens[i] = &cp
		}
	}
	return out
}
