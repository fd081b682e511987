package core

import (
	"fmt"

	"github.com/holiman/uint256"

	"powergrid/core/diff"
	"powergrid/core/types"
	"powergrid/storage"
)

// slotWriter adapts a storage batch to the diff codec's Writer, mapping
// protocol locations onto namespaced database keys.
type slotWriter struct {
	batch storage.Batch
}

func (w slotWriter) WriteSlot(location, value [32]byte) {
	w.batch.Put(slotKey(location), value[:])
}

func slotKey(location [32]byte) []byte {
	key := make([]byte, 0, len(slotPrefix)+32)
	key = append(key, slotPrefix...)
	return append(key, location[:]...)
}

func readSlot(db storage.Database, location [32]byte) ([32]byte, error) {
	var out [32]byte
	ok, err := db.Has(slotKey(location))
	if err != nil {
		return out, fmt.Errorf("state: probe slot: %w", err)
	}
	if !ok {
		return out, nil
	}
	raw, err := db.Get(slotKey(location))
	if err != nil {
		return out, fmt.Errorf("state: read slot: %w", err)
	}
	if len(raw) != 32 {
		return out, fmt.Errorf("state: corrupt slot record (%d bytes)", len(raw))
	}
	copy(out[:], raw)
	return out, nil
}

// loadPowerState reads the persisted power state. Unwritten slots read as
// zero, so a fresh ledger reports {0, false}.
func loadPowerState(db storage.Database) (types.PowerState, error) {
	powerRaw, err := readSlot(db, diff.PowerLocation)
	if err != nil {
		return types.PowerState{}, err
	}
	verdictRaw, err := readSlot(db, diff.VerdictLocation)
	if err != nil {
		return types.PowerState{}, err
	}
	return types.PowerState{
		Power:  new(uint256.Int).SetBytes(powerRaw[:]),
		Passed: verdictRaw[31] == 1,
	}, nil
}
