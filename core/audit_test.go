package core

import (
	"testing"

	"powergrid/core/commit"
	"powergrid/crypto/bn254"
	"powergrid/storage"
)

func newTestAuditor(t *testing.T, verifier SignatureVerifier) (*Auditor, *Ledger, storage.Database) {
	t.Helper()
	db := storage.NewMemDB()
	ledger, err := NewLedger(db)
	if err != nil {
		t.Fatalf("NewLedger: %v", err)
	}
	return NewAuditor(db, ledger, verifier), ledger, db
}

func TestAuditHonestEnvelopeIsClean(t *testing.T) {
	auditor, ledger, _ := newTestAuditor(t, bn254.Verifier{})
	if _, err := ledger.AppendParticipant(testAddr(t, 0x222)); err != nil {
		t.Fatalf("append: %v", err)
	}

	env := honestEnvelope(t, ledger)
	verdict, err := auditor.Audit(env)
	if err != nil {
		t.Fatalf("Audit: %v", err)
	}
	if verdict.Misbehaved {
		t.Fatalf("honest envelope flagged: %q", verdict.Reason)
	}
}

func TestAuditFlagsTamperedDiffByte(t *testing.T) {
	auditor, ledger, _ := newTestAuditor(t, acceptAll)
	if _, err := ledger.AppendParticipant(testAddr(t, 0x222)); err != nil {
		t.Fatalf("append: %v", err)
	}

	env := honestEnvelope(t, ledger)
	env.DiffBytes[34] ^= 0x01

	verdict, err := auditor.Audit(env)
	if err != nil {
		t.Fatalf("Audit: %v", err)
	}
	if !verdict.Misbehaved || verdict.Reason != ReasonDigestMismatch {
		t.Fatalf("verdict = %+v, want digest mismatch", verdict)
	}
}

func TestAuditFlagsForgedCanonicalDiff(t *testing.T) {
	// The operator signs a diff that is internally consistent (digest and
	// signature check out) but disagrees with the canonical recomputation.
	auditor, ledger, _ := newTestAuditor(t, acceptAll)
	if _, err := ledger.AppendParticipant(testAddr(t, 0x222)); err != nil {
		t.Fatalf("append: %v", err)
	}

	env := honestEnvelope(t, ledger)
	env.DiffBytes[len(env.DiffBytes)-1] ^= 0x01 // flip the verdict value
	env.Digest = commit.BindEnvelope(env)

	verdict, err := auditor.Audit(env)
	if err != nil {
		t.Fatalf("Audit: %v", err)
	}
	if !verdict.Misbehaved || verdict.Reason != ReasonDiffMismatch {
		t.Fatalf("verdict = %+v, want diff mismatch", verdict)
	}
}

func TestAuditFlagsBadSignature(t *testing.T) {
	auditor, ledger, _ := newTestAuditor(t, stubVerifier{pairingOK: true, valid: false})
	if _, err := ledger.AppendParticipant(testAddr(t, 0x222)); err != nil {
		t.Fatalf("append: %v", err)
	}

	env := honestEnvelope(t, ledger)
	verdict, err := auditor.Audit(env)
	if err != nil {
		t.Fatalf("Audit: %v", err)
	}
	if !verdict.Misbehaved || verdict.Reason != ReasonSignatureInvalid {
		t.Fatalf("verdict = %+v, want signature invalid", verdict)
	}
}

func TestAuditAdvancesCounterOnly(t *testing.T) {
	auditor, ledger, db := newTestAuditor(t, bn254.Verifier{})
	if _, err := ledger.AppendParticipant(testAddr(t, 0x222)); err != nil {
		t.Fatalf("append: %v", err)
	}

	env := honestEnvelope(t, ledger)
	before := ledger.CurrentIndex()
	if _, err := auditor.Audit(env); err != nil {
		t.Fatalf("Audit: %v", err)
	}
	if ledger.CurrentIndex() != before+1 {
		t.Fatalf("counter = %d, want %d", ledger.CurrentIndex(), before+1)
	}
	state, err := loadPowerState(db)
	if err != nil {
		t.Fatalf("loadPowerState: %v", err)
	}
	if !state.Power.IsZero() || state.Passed {
		t.Fatal("audit mutated power state")
	}
}
