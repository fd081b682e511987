package core

import (
	"encoding/binary"
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"

	"powergrid/crypto"
	"powergrid/storage"
)

var (
	counterKey     = []byte("pg-transition-counter")
	feePoolKey     = []byte("pg-fee-pool")
	snapshotPrefix = []byte("pg-snapshot-")
	slotPrefix     = []byte("pg-slot-")
)

// Ledger stores the append-only participant snapshots and the monotonic
// transition counter. Snapshot storage is sparse: transitions that mutate
// power without adding a participant do not record a snapshot, so lookups
// fall back to the nearest lower recorded index.
//
// Ledger is not safe for concurrent use; the Node serializes access.
type Ledger struct {
	db      storage.Database
	counter uint64
}

// NewLedger opens the ledger over the given store, recovering the persisted
// counter if one exists.
func NewLedger(db storage.Database) (*Ledger, error) {
	l := &Ledger{db: db}
	ok, err := db.Has(counterKey)
	if err != nil {
		return nil, fmt.Errorf("ledger: read counter: %w", err)
	}
	if ok {
		raw, err := db.Get(counterKey)
		if err != nil {
			return nil, fmt.Errorf("ledger: read counter: %w", err)
		}
		if len(raw) != 8 {
			return nil, fmt.Errorf("ledger: corrupt counter record (%d bytes)", len(raw))
		}
		l.counter = binary.BigEndian.Uint64(raw)
	}
	return l, nil
}

// CurrentIndex returns the transition counter value.
func (l *Ledger) CurrentIndex() uint64 {
	return l.counter
}

// AppendParticipant copies the current snapshot, appends the participant and
// stores the result under the advanced counter value. It returns the index
// the new snapshot was recorded at.
func (l *Ledger) AppendParticipant(p crypto.Address) (uint64, error) {
	current, err := l.SnapshotAt(l.counter)
	if err != nil {
		return 0, err
	}
	next := l.counter + 1
	updated := make([]crypto.Address, 0, len(current)+1)
	updated = append(updated, current...)
	updated = append(updated, p)

	encoded, err := encodeSnapshot(updated)
	if err != nil {
		return 0, err
	}
	batch := l.db.NewBatch()
	batch.Put(snapshotKey(next), encoded)
	stageCounter(batch, next)
	if err := batch.Write(); err != nil {
		return 0, fmt.Errorf("ledger: append participant: %w", err)
	}
	l.counter = next
	return next, nil
}

// SnapshotAt returns the snapshot recorded at index, falling back to the
// nearest smaller recorded index. With nothing recorded at or below index it
// returns the empty snapshot. Nothing is ever recorded above the counter, so
// the scan starts at the counter at the latest.
func (l *Ledger) SnapshotAt(index uint64) ([]crypto.Address, error) {
	if index > l.counter {
		index = l.counter
	}
	for i := index; ; i-- {
		ok, err := l.db.Has(snapshotKey(i))
		if err != nil {
			return nil, fmt.Errorf("ledger: probe snapshot %d: %w", i, err)
		}
		if ok {
			raw, err := l.db.Get(snapshotKey(i))
			if err != nil {
				return nil, fmt.Errorf("ledger: read snapshot %d: %w", i, err)
			}
			return decodeSnapshot(raw)
		}
		if i == 0 {
			return nil, nil
		}
	}
}

// advance stages the counter bump into an existing batch and records the new
// value in memory once the batch has landed. Callers must only invoke done
// after a successful batch write.
func (l *Ledger) advance(batch storage.Batch) (done func()) {
	next := l.counter + 1
	stageCounter(batch, next)
	return func() { l.counter = next }
}

func stageCounter(batch storage.Batch, value uint64) {
	var raw [8]byte
	binary.BigEndian.PutUint64(raw[:], value)
	batch.Put(counterKey, raw[:])
}

func snapshotKey(index uint64) []byte {
	key := make([]byte, 0, len(snapshotPrefix)+8)
	key = append(key, snapshotPrefix...)
	var raw [8]byte
	binary.BigEndian.PutUint64(raw[:], index)
	return append(key, raw[:]...)
}

func encodeSnapshot(snapshot []crypto.Address) ([]byte, error) {
	flat := make([][]byte, len(snapshot))
	for i, addr := range snapshot {
		flat[i] = addr.Bytes()
	}
	encoded, err := rlp.EncodeToBytes(flat)
	if err != nil {
		return nil, fmt.Errorf("ledger: encode snapshot: %w", err)
	}
	return encoded, nil
}

func decodeSnapshot(raw []byte) ([]crypto.Address, error) {
	var flat [][]byte
	if err := rlp.DecodeBytes(raw, &flat); err != nil {
		return nil, fmt.Errorf("ledger: decode snapshot: %w", err)
	}
	snapshot := make([]crypto.Address, 0, len(flat))
	for _, b := range flat {
		addr, err := crypto.NewAddress(b)
		if err != nil {
			return nil, fmt.Errorf("ledger: corrupt snapshot entry: %w", err)
		}
		snapshot = append(snapshot, addr)
	}
	return snapshot, nil
}
