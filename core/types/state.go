package types

import "github.com/holiman/uint256"

// PowerState is the verified outcome of the most recently applied transition.
// It is a pure function of the snapshot and index that produced it, whichever
// code path (direct recomputation or diff application) materialised it.
type PowerState struct {
	Power  *uint256.Int
	Passed bool
}

// ZeroPowerState is the state before any transition has been applied.
func ZeroPowerState() PowerState {
	return PowerState{Power: uint256.NewInt(0), Passed: false}
}

// Clone returns a deep copy so callers cannot alias the ledger's value.
func (s PowerState) Clone() PowerState {
	power := uint256.NewInt(0)
	if s.Power != nil {
		power.Set(s.Power)
	}
	return PowerState{Power: power, Passed: s.Passed}
}

// Equal reports bit-for-bit agreement of two states.
func (s PowerState) Equal(other PowerState) bool {
	a, b := s.Power, other.Power
	if a == nil {
		a = uint256.NewInt(0)
	}
	if b == nil {
		b = uint256.NewInt(0)
	}
	return a.Eq(b) && s.Passed == other.Passed
}
