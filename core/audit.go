package core

import (
	"bytes"
	"fmt"

	"powergrid/core/commit"
	"powergrid/core/diff"
	"powergrid/core/power"
	"powergrid/core/types"
	"powergrid/storage"
)

// Audit misbehaviour reasons, recorded alongside the verdict.
const (
	ReasonClean            = ""
	ReasonDigestMismatch   = "digest-mismatch"
	ReasonSignatureInvalid = "signature-invalid"
	ReasonDiffMismatch     = "diff-mismatch"
)

// Verdict is the outcome of auditing one envelope.
type Verdict struct {
	Misbehaved bool
	Reason     string
}

// Auditor replays the canonical oracle/codec/binder path for a submitted
// envelope and reports whether the operator misbehaved. It converts every
// protocol violation into the verdict rather than an error: its job is
// evaluation, not state mutation. Punishment belongs to an external policy
// component.
//
// Auditor methods are not safe for concurrent use; the Node serializes them.
type Auditor struct {
	db       storage.Database
	ledger   *Ledger
	verifier SignatureVerifier
}

// NewAuditor wires an auditor over the same ledger and signature service the
// gate uses, so the replay path cannot drift from the acceptance path.
func NewAuditor(db storage.Database, ledger *Ledger, verifier SignatureVerifier) *Auditor {
	return &Auditor{db: db, ledger: ledger, verifier: verifier}
}

// Audit recomputes the binding, the signature check, and the canonical diff
// for the envelope's claimed index, short-circuiting on the first
// discrepancy. Power state is never touched; only the transition counter
// advances, which keeps audits inside the same replay bookkeeping as every
// other mutating operation.
//
// An honest envelope, byte-identical to the canonical recomputation, always
// returns a clean verdict.
func (a *Auditor) Audit(env *types.SignedEnvelope) (Verdict, error) {
	if env == nil {
		return Verdict{}, ErrNilEnvelope
	}
	verdict, err := a.evaluate(env)
	if err != nil {
		return Verdict{}, err
	}

	batch := a.db.NewBatch()
	done := a.ledger.advance(batch)
	if err := batch.Write(); err != nil {
		return Verdict{}, fmt.Errorf("audit: advance counter: %w", err)
	}
	done()
	return verdict, nil
}

func (a *Auditor) evaluate(env *types.SignedEnvelope) (Verdict, error) {
	if commit.BindEnvelope(env) != env.Digest {
		return Verdict{Misbehaved: true, Reason: ReasonDigestMismatch}, nil
	}

	pairingOK, valid := a.verifier.Verify(env.Digest, env.ApkG1, env.ApkG2, env.Signature)
	if !pairingOK || !valid {
		return Verdict{Misbehaved: true, Reason: ReasonSignatureInvalid}, nil
	}

	// An unreadable ledger is the auditor's problem, not the operator's,
	// so storage failures surface as errors rather than verdicts.
	canonical, err := a.canonicalDiff(env.TransitionIndex)
	if err != nil {
		return Verdict{}, err
	}
	if !bytes.Equal(canonical, env.DiffBytes) {
		return Verdict{Misbehaved: true, Reason: ReasonDiffMismatch}, nil
	}
	return Verdict{Misbehaved: false, Reason: ReasonClean}, nil
}

func (a *Auditor) canonicalDiff(index uint64) ([]byte, error) {
	snapshot, err := a.ledger.SnapshotAt(index)
	if err != nil {
		return nil, err
	}
	total, passed := power.Compute(snapshot, index)
	return diff.Encode(total, passed), nil
}
