// Package bn254 provides aggregate signature primitives over the BN254
// pairing curve. The verifier reports two independent booleans: whether the
// pairing computation could be carried out at all (well-formed points), and
// whether the signature actually checks out. Callers that gate state changes
// must require both.
package bn254

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"math/big"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	bn256 "github.com/ethereum/go-ethereum/crypto/bn256/cloudflare"
)

// Marshalled point widths.
const (
	G1Size        = 64
	G2Size        = 128
	SignatureSize = G1Size
)

var (
	// ErrBadScalar is returned when a private scalar is out of range.
	ErrBadScalar = errors.New("bn254: private scalar out of range")

	three  = big.NewInt(3)
	curveB = big.NewInt(3)
)

// Verifier checks aggregate signatures. The aggregate public key is carried
// in both groups: the G1 copy enters the random-challenge combination that
// defends against rogue-key splits, the G2 copy carries the pairing.
type Verifier struct{}

// Verify checks sig over digest against the claimed aggregate public keys.
// The first return value reports whether the pairing check could be
// performed (all points well-formed); the second whether the signature is
// valid. A malformed input yields (false, false).
func (Verifier) Verify(digest [32]byte, apkG1, apkG2, sig []byte) (bool, bool) {
	pkG1 := new(bn256.G1)
	if _, err := pkG1.Unmarshal(apkG1); err != nil {
		return false, false
	}
	pkG2 := new(bn256.G2)
	if _, err := pkG2.Unmarshal(apkG2); err != nil {
		return false, false
	}
	sigma := new(bn256.G1)
	if _, err := sigma.Unmarshal(sig); err != nil {
		return false, false
	}

	// Random challenge binding sigma to the claimed keys, derived from the
	// transcript so signer and verifier agree without interaction.
	gamma := new(big.Int).SetBytes(ethcrypto.Keccak256(digest[:], apkG1, apkG2, sig))
	gamma.Mod(gamma, bn256.Order)

	// e(sigma + gamma*apkG1, -g2) * e(H(m) + gamma*g1, apkG2) == 1
	left := new(bn256.G1).Add(sigma, new(bn256.G1).ScalarMult(pkG1, gamma))
	right := new(bn256.G1).Add(HashToG1(digest), new(bn256.G1).ScalarBaseMult(gamma))
	// -g2 via Order-1: this implementation's G2.Neg leaves the point in a
	// form its PairingCheck mishandles, so derive the negation by scalar.
	negG2 := new(bn256.G2).ScalarBaseMult(new(big.Int).Sub(bn256.Order, big.NewInt(1)))

	ok := bn256.PairingCheck(
		[]*bn256.G1{left, right},
		[]*bn256.G2{negG2, pkG2},
	)
	return true, ok
}

// HashToG1 maps a digest onto the G1 curve by try-and-increment: keccak the
// digest with a counter until the resulting x coordinate has a square y.
func HashToG1(digest [32]byte) *bn256.G1 {
	var ctr [4]byte
	for i := uint32(0); ; i++ {
		binary.BigEndian.PutUint32(ctr[:], i)
		h := ethcrypto.Keccak256(digest[:], ctr[:])
		x := new(big.Int).SetBytes(h)
		x.Mod(x, bn256.P)

		// y^2 = x^3 + 3 over Fp.
		y2 := new(big.Int).Exp(x, three, bn256.P)
		y2.Add(y2, curveB)
		y2.Mod(y2, bn256.P)
		y := new(big.Int).ModSqrt(y2, bn256.P)
		if y == nil {
			continue
		}

		buf := make([]byte, G1Size)
		x.FillBytes(buf[:32])
		y.FillBytes(buf[32:])
		point := new(bn256.G1)
		if _, err := point.Unmarshal(buf); err == nil {
			return point
		}
	}
}

// PrivateKey is a scalar held by the off-chain signing side. In a deployment
// this is the aggregate of many operator shares; for the protocol's purposes
// a single scalar whose public keys match in both groups is indistinguishable.
type PrivateKey struct {
	scalar *big.Int
}

// GenerateKey draws a uniformly random private scalar.
func GenerateKey() (*PrivateKey, error) {
	k, err := rand.Int(rand.Reader, bn256.Order)
	if err != nil {
		return nil, err
	}
	if k.Sign() == 0 {
		k.SetInt64(1)
	}
	return &PrivateKey{scalar: k}, nil
}

// PrivateKeyFromScalar wraps an explicit scalar, rejecting zero and
// out-of-order values.
func PrivateKeyFromScalar(k *big.Int) (*PrivateKey, error) {
	if k == nil || k.Sign() <= 0 || k.Cmp(bn256.Order) >= 0 {
		return nil, ErrBadScalar
	}
	return &PrivateKey{scalar: new(big.Int).Set(k)}, nil
}

// PublicKeyG1 returns the marshalled G1 public key for the scalar.
func (k *PrivateKey) PublicKeyG1() []byte {
	return new(bn256.G1).ScalarBaseMult(k.scalar).Marshal()
}

// PublicKeyG2 returns the marshalled G2 public key for the scalar.
func (k *PrivateKey) PublicKeyG2() []byte {
	return new(bn256.G2).ScalarBaseMult(k.scalar).Marshal()
}

// Sign produces sigma = sk * H(digest) in marshalled form.
func (k *PrivateKey) Sign(digest [32]byte) []byte {
	return new(bn256.G1).ScalarMult(HashToG1(digest), k.scalar).Marshal()
}
