// Package commit derives the digest an aggregate signature authenticates.
// The digest binds a diff to its full context so a signature can never be
// replayed for another index, target, operation, or protocol.
//
// Packing rule: inputs are tightly packed in order, with no length prefixes
// or padding between fields (encodePacked semantics). The transition index is
// a 32-byte big-endian word. Signing and verifying sides share this one rule;
// there is deliberately no second encoding.
package commit

import (
	"encoding/binary"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"powergrid/core/types"
	"powergrid/crypto"
)

// Namespace is the fixed domain-separation constant prefixed into every
// digest. It must match byte-for-byte between signer and verifier.
const Namespace = "POWERGRID_TRANSITION_V1"

// SubmitSelector identifies the transition-submission operation inside the
// digest. Audit replays bind the same selector the envelope declared, so a
// forged selector surfaces as a digest mismatch rather than a silent pass.
var SubmitSelector = Selector("power.transition.submit")

// Selector derives a 4-byte operation selector from a human-readable name.
func Selector(name string) [types.SelectorLength]byte {
	var sel [types.SelectorLength]byte
	copy(sel[:], ethcrypto.Keccak256([]byte(name)))
	return sel
}

// Bind computes keccak256 over the packed concatenation of the namespace,
// the transition index, the target identity, the operation selector, and the
// raw diff bytes.
func Bind(transitionIndex uint64, target crypto.Address, selector [types.SelectorLength]byte, diffBytes []byte) [32]byte {
	var indexWord [32]byte
	binary.BigEndian.PutUint64(indexWord[24:], transitionIndex)

	buf := make([]byte, 0, len(Namespace)+32+crypto.AddressLength+types.SelectorLength+len(diffBytes))
	buf = append(buf, Namespace...)
	buf = append(buf, indexWord[:]...)
	buf = append(buf, target.Bytes()...)
	buf = append(buf, selector[:]...)
	buf = append(buf, diffBytes...)

	var digest [32]byte
	copy(digest[:], ethcrypto.Keccak256(buf))
	return digest
}

// BindEnvelope recomputes the digest for an envelope from its own fields.
func BindEnvelope(e *types.SignedEnvelope) [32]byte {
	return Bind(e.TransitionIndex, e.TargetIdentity, e.Selector, e.DiffBytes)
}
