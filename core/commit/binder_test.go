package commit

import (
	"bytes"
	"testing"

	"powergrid/core/types"
	"powergrid/crypto"
)

func testTarget(t *testing.T) crypto.Address {
	t.Helper()
	raw := bytes.Repeat([]byte{0x42}, crypto.AddressLength)
	return crypto.MustAddress(raw)
}

func TestBindDeterministic(t *testing.T) {
	target := testTarget(t)
	diffBytes := []byte{0x00, 0x01, 0x02}
	a := Bind(7, target, SubmitSelector, diffBytes)
	b := Bind(7, target, SubmitSelector, diffBytes)
	if a != b {
		t.Fatal("same inputs produced different digests")
	}
}

func TestBindSensitivity(t *testing.T) {
	target := testTarget(t)
	diffBytes := bytes.Repeat([]byte{0xAA}, 65)
	base := Bind(7, target, SubmitSelector, diffBytes)

	if Bind(8, target, SubmitSelector, diffBytes) == base {
		t.Fatal("digest insensitive to transition index")
	}

	other := crypto.MustAddress(bytes.Repeat([]byte{0x43}, crypto.AddressLength))
	if Bind(7, other, SubmitSelector, diffBytes) == base {
		t.Fatal("digest insensitive to target identity")
	}

	if Bind(7, target, Selector("power.transition.audit"), diffBytes) == base {
		t.Fatal("digest insensitive to selector")
	}

	tampered := append([]byte(nil), diffBytes...)
	tampered[13] ^= 0x01
	if Bind(7, target, SubmitSelector, tampered) == base {
		t.Fatal("digest insensitive to diff bytes")
	}
}

func TestBindEnvelopeMatchesBind(t *testing.T) {
	target := testTarget(t)
	env := &types.SignedEnvelope{
		DiffBytes:       []byte{0x00},
		TransitionIndex: 3,
		TargetIdentity:  target,
		Selector:        SubmitSelector,
	}
	if BindEnvelope(env) != Bind(3, target, SubmitSelector, env.DiffBytes) {
		t.Fatal("BindEnvelope disagrees with Bind")
	}
}

func TestSelectorWidth(t *testing.T) {
	sel := Selector("anything")
	if len(sel) != types.SelectorLength {
		t.Fatalf("selector width = %d", len(sel))
	}
	var zero [types.SelectorLength]byte
	if sel == zero {
		t.Fatal("selector must not be all zero")
	}
}
