// Pedersen commitments over secp256k1.
//
// A commitment binds an amount and a secret blinding factor:
//
//	C = blind*G + value*H
//
// where H is a second generator with unknown discrete log w.r.t. G.
// Commitments are additively homomorphic, so transaction balance can be
// checked by summing commitments without revealing any amount.
package pedersen

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"golang.org/x/crypto/blake2b"
)

var (
	ErrInvalidCommitment = errors.New("invalid commitment encoding")
	ErrCommitToZero      = errors.New("commitment sums to the point at infinity")
)

// genH is the value generator. It is derived from a fixed tag by
// try-and-increment so that nobody knows its discrete log w.r.t. G.
var genH = func() *btcec.PublicKey {
	seed := blake2b.Sum256([]byte("mwwallet.pedersen.generator.H.v1"))
	cand := make([]byte, 33)
	cand[0] = 0x02
	copy(cand[1:], seed[:])
	for {
		if pk, err := btcec.ParsePubKey(cand); err == nil {
			return pk
		}
		next := blake2b.Sum256(cand[1:])
		copy(cand[1:], next[:])
	}
}()

// GeneratorH returns the value generator H.
func GeneratorH() *btcec.PublicKey {
	return genH
}

// Commitment is a compressed secp256k1 point (33 bytes).
type Commitment [33]byte

// NewCommitment wraps a public key as a commitment.
func NewCommitment(pk *btcec.PublicKey) Commitment {
	var c Commitment
	copy(c[:], pk.SerializeCompressed())
	return c
}

// FromHex parses a hex-encoded commitment.
func FromHex(s string) (Commitment, error) {
	var c Commitment
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != 33 {
		return c, ErrInvalidCommitment
	}
	copy(c[:], b)
	// must be a valid curve point
	if _, err := c.PubKey(); err != nil {
		return c, err
	}
	return c, nil
}

func (c Commitment) String() string {
	return hex.EncodeToString(c[:])
}

// PubKey parses the commitment back into a curve point.
func (c Commitment) PubKey() (*btcec.PublicKey, error) {
	pk, err := btcec.ParsePubKey(c[:])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCommitment, err)
	}
	return pk, nil
}

func (c Commitment) IsZero() bool {
	var zero Commitment
	return bytes.Equal(c[:], zero[:])
}

func (c Commitment) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

func (c *Commitment) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := FromHex(s)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// ScalarFromUint64 lifts a value into the scalar field.
func ScalarFromUint64(v uint64) *btcec.ModNScalar {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	s := new(btcec.ModNScalar)
	s.SetByteSlice(b[:])
	return s
}

// Commit computes blind*G + value*H.
// A zero value with a zero blind has no point representation and is
// rejected.
func Commit(value uint64, blind *btcec.ModNScalar) (Commitment, error) {
	var bG, vH, sum btcec.JacobianPoint

	btcec.ScalarBaseMultNonConst(blind, &bG)

	var hj btcec.JacobianPoint
	genH.AsJacobian(&hj)
	btcec.ScalarMultNonConst(ScalarFromUint64(value), &hj, &vH)

	btcec.AddNonConst(&bG, &vH, &sum)
	return affineCommit(&sum)
}

// Sum adds the positive commitments and subtracts the negative ones.
func Sum(positive, negative []Commitment) (Commitment, error) {
	var acc btcec.JacobianPoint
	for _, c := range positive {
		if err := accumulate(&acc, c, false); err != nil {
			return Commitment{}, err
		}
	}
	for _, c := range negative {
		if err := accumulate(&acc, c, true); err != nil {
			return Commitment{}, err
		}
	}
	return affineCommit(&acc)
}

// BlindSum adds the positive blinding factors and subtracts the
// negative ones, mod n.
func BlindSum(positive, negative []*btcec.ModNScalar) *btcec.ModNScalar {
	sum := new(btcec.ModNScalar)
	for _, s := range positive {
		sum.Add(s)
	}
	for _, s := range negative {
		neg := new(btcec.ModNScalar).Set(s)
		neg.Negate()
		sum.Add(neg)
	}
	return sum
}

func accumulate(acc *btcec.JacobianPoint, c Commitment, negate bool) error {
	pk, err := c.PubKey()
	if err != nil {
		return err
	}
	var p btcec.JacobianPoint
	pk.AsJacobian(&p)
	if negate {
		p.Y.Negate(1)
		p.Y.Normalize()
	}
	var out btcec.JacobianPoint
	btcec.AddNonConst(acc, &p, &out)
	*acc = out
	return nil
}

func affineCommit(p *btcec.JacobianPoint) (Commitment, error) {
	if (p.X.IsZero() && p.Y.IsZero()) || p.Z.IsZero() {
		return Commitment{}, ErrCommitToZero
	}
	p.ToAffine()
	return NewCommitment(btcec.NewPublicKey(&p.X, &p.Y)), nil
}
