// Package operator implements the off-chain side of the protocol: compute
// the power outcome for the ledger's current index, encode it as a diff,
// bind it to its context and sign the binding. The result is an envelope the
// transition gate will accept as long as the ledger has not moved underneath
// the computation.
package operator

import (
	"errors"

	"powergrid/core/commit"
	"powergrid/core/diff"
	"powergrid/core/power"
	"powergrid/core/types"
	"powergrid/crypto"
	"powergrid/crypto/bn254"
)

// ErrNilKey is returned when no signing key is supplied.
var ErrNilKey = errors.New("operator: nil signing key")

// LedgerView is the read surface the operator needs. core.Node satisfies it.
type LedgerView interface {
	CurrentTransitionIndex() uint64
	SnapshotAt(index uint64) ([]crypto.Address, error)
}

// BuildEnvelope computes and signs the canonical envelope for an explicit
// snapshot and index. Deterministic: the same inputs always produce the same
// diff bytes and digest.
func BuildEnvelope(snapshot []crypto.Address, index uint64, target crypto.Address, key *bn254.PrivateKey) (*types.SignedEnvelope, error) {
	if key == nil {
		return nil, ErrNilKey
	}
	total, passed := power.Compute(snapshot, index)
	diffBytes := diff.Encode(total, passed)
	digest := commit.Bind(index, target, commit.SubmitSelector, diffBytes)
	return &types.SignedEnvelope{
		Digest:          digest,
		ApkG1:           key.PublicKeyG1(),
		ApkG2:           key.PublicKeyG2(),
		Signature:       key.Sign(digest),
		DiffBytes:       diffBytes,
		TransitionIndex: index,
		TargetIdentity:  target,
		Selector:        commit.SubmitSelector,
	}, nil
}

// Prepare builds the envelope for the view's current counter value. If a
// concurrent mutation advances the counter between Prepare and submission,
// the gate rejects the envelope as stale and the caller simply prepares
// again.
func Prepare(view LedgerView, target crypto.Address, key *bn254.PrivateKey) (*types.SignedEnvelope, error) {
	index := view.CurrentTransitionIndex()
	snapshot, err := view.SnapshotAt(index)
	if err != nil {
		return nil, err
	}
	return BuildEnvelope(snapshot, index, target, key)
}
