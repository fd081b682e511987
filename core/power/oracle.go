// Package power implements the deterministic oracle the protocol exists to
// keep off-chain. The formula is intentionally cheap to state and expensive
// to run over a large participant set; any pure deterministic function could
// replace it without changing the surrounding protocol.
package power

import (
	"github.com/holiman/uint256"

	"powergrid/crypto"
)

// Compute sums participant * index over the snapshot with 256-bit wraparound
// arithmetic. Overflow is defined behaviour, not an error. The verdict is
// true iff the resulting power is even.
func Compute(snapshot []crypto.Address, index uint64) (*uint256.Int, bool) {
	total := uint256.NewInt(0)
	idx := uint256.NewInt(index)
	term := new(uint256.Int)
	for _, participant := range snapshot {
		term.SetBytes(participant.Bytes())
		term.Mul(term, idx)
		total.Add(total, term)
	}
	return total, isEven(total)
}

func isEven(v *uint256.Int) bool {
	return v[0]&1 == 0
}
