package core

import (
	"errors"
	"fmt"
	"math/big"

	"powergrid/core/commit"
	"powergrid/core/diff"
	"powergrid/core/types"
	"powergrid/storage"
)

// Submission rejections. Every one of them aborts the call with no state
// change; ErrStaleTransition is the only one the caller is expected to see
// in normal operation (recompute against the new counter and retry).
var (
	ErrNilEnvelope         = errors.New("gate: nil envelope")
	ErrStaleTransition     = errors.New("gate: stale transition index")
	ErrInsufficientPayment = errors.New("gate: payment does not match the submission fee")
	ErrHashMismatch        = errors.New("gate: digest does not match recomputed binding")
	ErrInvalidSignature    = errors.New("gate: aggregate signature rejected")
)

// SignatureVerifier is the external aggregate-signature service. The first
// boolean reports whether the pairing computation succeeded at all, the
// second whether the signature is valid; the gate requires both.
type SignatureVerifier interface {
	Verify(digest [32]byte, apkG1, apkG2, sig []byte) (pairingOK bool, valid bool)
}

// Gate is the authority that turns signed envelopes into applied state. It
// checks freshness before anything costly so stale or duplicate submissions
// are rejected cheaply, then payment, binding, and signature, and finally
// applies the diff in one atomic batch that also advances the counter and
// credits the fee pool.
//
// Gate methods are not safe for concurrent use; the Node serializes them.
type Gate struct {
	db       storage.Database
	ledger   *Ledger
	verifier SignatureVerifier
	fee      *big.Int
}

// NewGate wires the gate over a ledger, its backing store, the signature
// service and the exact submission fee.
func NewGate(db storage.Database, ledger *Ledger, verifier SignatureVerifier, fee *big.Int) *Gate {
	if fee == nil {
		fee = big.NewInt(0)
	}
	return &Gate{db: db, ledger: ledger, verifier: verifier, fee: new(big.Int).Set(fee)}
}

// Fee returns the exact payment a submission must carry.
func (g *Gate) Fee() *big.Int {
	return new(big.Int).Set(g.fee)
}

// Submit verifies and applies one signed envelope. The envelope must target
// the ledger's current counter value; the transition itself advances the
// counter, so an envelope computed before any concurrent mutation no longer
// matches and is rejected as stale. On success the resulting power state is
// returned.
func (g *Gate) Submit(env *types.SignedEnvelope, payment *big.Int) (types.PowerState, error) {
	if env == nil {
		return types.PowerState{}, ErrNilEnvelope
	}

	// Freshness first: one integer comparison rejects a submission computed
	// against state that has since moved underneath it.
	if env.TransitionIndex != g.ledger.CurrentIndex() {
		return types.PowerState{}, fmt.Errorf("%w: envelope targets %d, counter is %d",
			ErrStaleTransition, env.TransitionIndex, g.ledger.CurrentIndex())
	}

	if payment == nil || payment.Cmp(g.fee) != 0 {
		return types.PowerState{}, ErrInsufficientPayment
	}

	if commit.BindEnvelope(env) != env.Digest {
		return types.PowerState{}, ErrHashMismatch
	}

	pairingOK, valid := g.verifier.Verify(env.Digest, env.ApkG1, env.ApkG2, env.Signature)
	if !pairingOK || !valid {
		return types.PowerState{}, ErrInvalidSignature
	}

	// Decode fully before staging anything so a malformed diff cannot leave
	// partial writes behind.
	batch := g.db.NewBatch()
	if err := diff.Apply(env.DiffBytes, slotWriter{batch: batch}); err != nil {
		return types.PowerState{}, err
	}
	done := g.ledger.advance(batch)
	if err := stageFeeCredit(g.db, batch, payment); err != nil {
		return types.PowerState{}, err
	}
	if err := batch.Write(); err != nil {
		return types.PowerState{}, fmt.Errorf("gate: apply transition: %w", err)
	}
	done()

	return loadPowerState(g.db)
}
