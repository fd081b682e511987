package types

import (
	"encoding/binary"
	"encoding/hex"

	"lukechampine.com/blake3"

	"powergrid/crypto"
)

// SelectorLength is the width of the operation selector bound into every
// transition digest.
const SelectorLength = 4

// SignedEnvelope carries one claimed state transition: the diff an operator
// computed off-chain, the digest binding it to its context, and the aggregate
// signature over that digest. Envelopes are consumed exactly once; nothing in
// the ledger retains them after the call that processes them.
type SignedEnvelope struct {
	Digest          [32]byte
	ApkG1           []byte
	ApkG2           []byte
	Signature       []byte
	DiffBytes       []byte
	TransitionIndex uint64
	TargetIdentity  crypto.Address
	Selector        [SelectorLength]byte
}

// Hash returns a blake3 digest over the canonical serialization of the
// envelope. It identifies the envelope in audit records and logs; it plays
// no role in signature verification.
func (e *SignedEnvelope) Hash() [32]byte {
	h := blake3.New(32, nil)
	h.Write(e.Digest[:])
	writeLenPrefixed(h, e.ApkG1)
	writeLenPrefixed(h, e.ApkG2)
	writeLenPrefixed(h, e.Signature)
	writeLenPrefixed(h, e.DiffBytes)
	var idx [8]byte
	binary.BigEndian.PutUint64(idx[:], e.TransitionIndex)
	h.Write(idx[:])
	h.Write(e.TargetIdentity.Bytes())
	h.Write(e.Selector[:])
	var out [32]byte
	h.Sum(out[:0])
	return out
}

// HashHex is Hash rendered for log lines and archive keys.
func (e *SignedEnvelope) HashHex() string {
	sum := e.Hash()
	return hex.EncodeToString(sum[:])
}

func writeLenPrefixed(h *blake3.Hasher, b []byte) {
	var n [4]byte
	binary.BigEndian.PutUint32(n[:], uint32(len(b)))
	h.Write(n[:])
	h.Write(b)
}
