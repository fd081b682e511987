// Package diff encodes verified power outcomes as ordered location/value
// write records and applies such records to a state store. The wire layout is
// fixed: repeated 65-byte records of [opcode][32-byte location][32-byte value]
// with 0x00 the only defined opcode.
package diff

import (
	"errors"
	"fmt"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
)

// OpWrite is the only opcode the format defines.
const OpWrite byte = 0x00

// RecordSize is the fixed width of one encoded operation.
const RecordSize = 1 + 32 + 32

// Protocol storage locations. Keccak-derived constants rather than small
// integers so they cannot collide with other state by accident.
var (
	PowerLocation   = location("powergrid.state.power")
	VerdictLocation = location("powergrid.state.verdict")
)

var (
	// ErrTruncatedDiff is returned when the byte length is not a whole
	// number of records.
	ErrTruncatedDiff = errors.New("diff: truncated record")

	// ErrUnknownOpcode is returned for any opcode other than write.
	ErrUnknownOpcode = errors.New("diff: unsupported opcode")
)

// Op is one decoded write operation.
type Op struct {
	Opcode   byte
	Location [32]byte
	Value    [32]byte
}

// Writer receives decoded writes. Implementations must make the whole set of
// writes from one Apply visible atomically or not at all.
type Writer interface {
	WriteSlot(location, value [32]byte)
}

// Encode emits the canonical two-record diff for a verified outcome: the
// power value at PowerLocation followed by the verdict (1/0) at
// VerdictLocation.
func Encode(power *uint256.Int, passed bool) []byte {
	out := make([]byte, 0, 2*RecordSize)

	var powerVal [32]byte
	if power != nil {
		powerVal = power.Bytes32()
	}
	out = appendRecord(out, PowerLocation, powerVal)

	var verdictVal [32]byte
	if passed {
		verdictVal[31] = 1
	}
	out = appendRecord(out, VerdictLocation, verdictVal)
	return out
}

// Decode validates the entire buffer up front and returns the ordered
// operations. Nothing is decoded from a malformed buffer.
func Decode(raw []byte) ([]Op, error) {
	if len(raw)%RecordSize != 0 {
		return nil, fmt.Errorf("%w: %d bytes is not a multiple of %d", ErrTruncatedDiff, len(raw), RecordSize)
	}
	ops := make([]Op, 0, len(raw)/RecordSize)
	for off := 0; off < len(raw); off += RecordSize {
		op := Op{Opcode: raw[off]}
		if op.Opcode != OpWrite {
			return nil, fmt.Errorf("%w: 0x%02x at offset %d", ErrUnknownOpcode, op.Opcode, off)
		}
		copy(op.Location[:], raw[off+1:off+33])
		copy(op.Value[:], raw[off+33:off+65])
		ops = append(ops, op)
	}
	return ops, nil
}

// Apply decodes raw and hands every write to w in order. Validation happens
// before the first write, so a malformed diff never produces partial effects
// as long as w buffers atomically.
func Apply(raw []byte, w Writer) error {
	ops, err := Decode(raw)
	if err != nil {
		return err
	}
	for _, op := range ops {
		w.WriteSlot(op.Location, op.Value)
	}
	return nil
}

// DecodeState extracts the power value and verdict from a canonical diff.
// It is the inverse of Encode for well-formed input.
func DecodeState(raw []byte) (*uint256.Int, bool, error) {
	ops, err := Decode(raw)
	if err != nil {
		return nil, false, err
	}
	power := uint256.NewInt(0)
	passed := false
	for _, op := range ops {
		switch op.Location {
		case PowerLocation:
			power.SetBytes(op.Value[:])
		case VerdictLocation:
			passed = op.Value[31] == 1
		}
	}
	return power, passed, nil
}

func appendRecord(out []byte, loc, val [32]byte) []byte {
	out = append(out, OpWrite)
	out = append(out, loc[:]...)
	out = append(out, val[:]...)
	return out
}

func location(name string) [32]byte {
	var loc [32]byte
	copy(loc[:], ethcrypto.Keccak256([]byte(name)))
	return loc
}
