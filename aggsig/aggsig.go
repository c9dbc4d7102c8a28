// Aggregated Schnorr signatures for the two-round slate protocol.
//
// Each participant holds a secret blinding excess x_i and a secret
// nonce k_i. Round 1 publishes X_i = x_i*G and R_i = k_i*G. Round 2
// produces the partial signature
//
//	s_i = k_i + e*x_i,  e = H(R_sum || X_sum || msg)
//
// Any party holding every partial signature aggregates them into
// (R_sum, sum(s_i)), a plain Schnorr signature under the combined key.
package aggsig

import (
	"encoding/hex"
	"errors"

	"github.com/btcsuite/btcd/btcec/v2"
	"golang.org/x/crypto/blake2b"
)

var (
	ErrInvalidSignature   = errors.New("signature verification failed")
	ErrInvalidSigEncoding = errors.New("invalid signature encoding")
	ErrZeroNonce          = errors.New("generated nonce is zero")
)

// Signature is a Schnorr signature (R, s).
type Signature struct {
	R *btcec.PublicKey
	S *btcec.ModNScalar
}

// Serialize encodes the signature as R compressed (33) || s (32).
func (sig *Signature) Serialize() []byte {
	out := make([]byte, 0, 65)
	out = append(out, sig.R.SerializeCompressed()...)
	sBytes := sig.S.Bytes()
	out = append(out, sBytes[:]...)
	return out
}

func (sig *Signature) String() string {
	return hex.EncodeToString(sig.Serialize())
}

// ParseSignature decodes a 65-byte R||s signature.
func ParseSignature(b []byte) (*Signature, error) {
	if len(b) != 65 {
		return nil, ErrInvalidSigEncoding
	}
	r, err := btcec.ParsePubKey(b[:33])
	if err != nil {
		return nil, ErrInvalidSigEncoding
	}
	s := new(btcec.ModNScalar)
	if overflow := s.SetByteSlice(b[33:]); overflow {
		return nil, ErrInvalidSigEncoding
	}
	return &Signature{R: r, S: s}, nil
}

// ParseSignatureHex decodes a hex-encoded R||s signature.
func ParseSignatureHex(s string) (*Signature, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, ErrInvalidSigEncoding
	}
	return ParseSignature(b)
}

// NewSecretNonce returns a fresh random nonce scalar.
func NewSecretNonce() (*btcec.ModNScalar, error) {
	priv, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, err
	}
	if priv.Key.IsZero() {
		return nil, ErrZeroNonce
	}
	k := new(btcec.ModNScalar).Set(&priv.Key)
	priv.Zero()
	return k, nil
}

// PubFromSecret returns s*G.
func PubFromSecret(s *btcec.ModNScalar) *btcec.PublicKey {
	var p btcec.JacobianPoint
	btcec.ScalarBaseMultNonConst(s, &p)
	p.ToAffine()
	return btcec.NewPublicKey(&p.X, &p.Y)
}

// SumPubKeys adds the given public keys.
func SumPubKeys(keys ...*btcec.PublicKey) (*btcec.PublicKey, error) {
	if len(keys) == 0 {
		return nil, errors.New("no keys to sum")
	}
	var acc btcec.JacobianPoint
	for _, k := range keys {
		var p, out btcec.JacobianPoint
		k.AsJacobian(&p)
		btcec.AddNonConst(&acc, &p, &out)
		acc = out
	}
	if (acc.X.IsZero() && acc.Y.IsZero()) || acc.Z.IsZero() {
		return nil, errors.New("public keys sum to infinity")
	}
	acc.ToAffine()
	return btcec.NewPublicKey(&acc.X, &acc.Y), nil
}

// challenge computes e = blake2b(R || P || msg) mod n.
func challenge(nonceSum, keySum *btcec.PublicKey, msg []byte) *btcec.ModNScalar {
	h, _ := blake2b.New256(nil)
	h.Write(nonceSum.SerializeCompressed())
	h.Write(keySum.SerializeCompressed())
	h.Write(msg)
	e := new(btcec.ModNScalar)
	e.SetByteSlice(h.Sum(nil))
	return e
}

// CalculatePartial computes this participant's partial signature
// s_i = k_i + e*x_i over the aggregate nonce and key.
func CalculatePartial(sec, secNonce *btcec.ModNScalar,
	nonceSum, keySum *btcec.PublicKey, msg []byte) *btcec.ModNScalar {

	e := challenge(nonceSum, keySum, msg)
	s := new(btcec.ModNScalar).Set(sec)
	s.Mul(e)
	s.Add(secNonce)
	return s
}

// VerifyPartial checks s_i*G == R_i + e*X_i where e is computed over
// the aggregate nonce and key. Failing this means participant i's
// contribution would corrupt the final signature.
func VerifyPartial(partial *btcec.ModNScalar, pubNonce, pub,
	nonceSum, keySum *btcec.PublicKey, msg []byte) error {

	e := challenge(nonceSum, keySum, msg)
	return verifyEquation(partial, pubNonce, pub, e)
}

// AddSignatures aggregates partial signatures into the final signature
// under the aggregate nonce.
func AddSignatures(partials []*btcec.ModNScalar, nonceSum *btcec.PublicKey) *Signature {
	s := new(btcec.ModNScalar)
	for _, p := range partials {
		s.Add(p)
	}
	return &Signature{R: nonceSum, S: s}
}

// Verify checks a full signature against the aggregate public key.
func Verify(sig *Signature, keySum *btcec.PublicKey, msg []byte) error {
	e := challenge(sig.R, keySum, msg)
	return verifyEquation(sig.S, sig.R, keySum, e)
}

// SignSingle produces a plain single-party signature with a fresh
// nonce. Used for participant messages and payment proofs.
func SignSingle(sec *btcec.ModNScalar, msg []byte) (*Signature, error) {
	k, err := NewSecretNonce()
	if err != nil {
		return nil, err
	}
	defer k.Zero()

	r := PubFromSecret(k)
	pub := PubFromSecret(sec)
	e := challenge(r, pub, msg)

	s := new(btcec.ModNScalar).Set(sec)
	s.Mul(e)
	s.Add(k)
	return &Signature{R: r, S: s}, nil
}

// VerifySingle checks a single-party signature.
func VerifySingle(sig *Signature, pub *btcec.PublicKey, msg []byte) error {
	return Verify(sig, pub, msg)
}

// verifyEquation checks s*G == R + e*P.
func verifyEquation(s *btcec.ModNScalar, r, p *btcec.PublicKey, e *btcec.ModNScalar) error {
	var sG btcec.JacobianPoint
	btcec.ScalarBaseMultNonConst(s, &sG)

	var pj, eP, rj, rhs btcec.JacobianPoint
	p.AsJacobian(&pj)
	btcec.ScalarMultNonConst(e, &pj, &eP)
	r.AsJacobian(&rj)
	btcec.AddNonConst(&rj, &eP, &rhs)

	sG.ToAffine()
	rhs.ToAffine()
	if !sG.X.Equals(&rhs.X) || !sG.Y.Equals(&rhs.Y) {
		return ErrInvalidSignature
	}
	return nil
}
