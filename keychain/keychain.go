// Deterministic key derivation for the wallet.
//
// The derivation arithmetic itself is intentionally simple: keys are
// blake2b hashes of a wallet seed and a path identifier, lifted into
// the secp256k1 scalar field. Everything above this package treats the
// keychain as an opaque capability.
package keychain

import (
	"encoding/binary"
	"encoding/hex"
	"errors"

	"github.com/btcsuite/btcd/btcec/v2"
	"golang.org/x/crypto/blake2b"

	"github.com/mimblenet/mwwallet/aggsig"
	"github.com/mimblenet/mwwallet/pedersen"
)

var ErrInvalidIdentifier = errors.New("invalid key identifier")

// Identifier is a 4-segment big-endian derivation path.
type Identifier [16]byte

func NewIdentifier(a, b, c, d uint32) Identifier {
	var id Identifier
	binary.BigEndian.PutUint32(id[0:4], a)
	binary.BigEndian.PutUint32(id[4:8], b)
	binary.BigEndian.PutUint32(id[8:12], c)
	binary.BigEndian.PutUint32(id[12:16], d)
	return id
}

// AccountID is the parent identifier for a wallet account.
func AccountID(account uint32) Identifier {
	return NewIdentifier(0, account, 0, 0)
}

// RelayID derives the identifier for a relay address key path.
func RelayID(path uint64) Identifier {
	return NewIdentifier(1, 0, uint32(path>>32), uint32(path))
}

// Child returns this identifier with the last path segment replaced.
func (id Identifier) Child(index uint32) Identifier {
	out := id
	binary.BigEndian.PutUint32(out[12:16], index)
	return out
}

func (id Identifier) String() string {
	return hex.EncodeToString(id[:])
}

func IdentifierFromHex(s string) (Identifier, error) {
	var id Identifier
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != len(id) {
		return id, ErrInvalidIdentifier
	}
	copy(id[:], b)
	return id, nil
}

// SecretKey wraps a scalar whose backing memory can be zeroed once the
// negotiation it belongs to ends.
type SecretKey struct {
	Key btcec.ModNScalar
}

func (k *SecretKey) Pub() *btcec.PublicKey {
	return aggsig.PubFromSecret(&k.Key)
}

// Zero wipes the scalar in place.
func (k *SecretKey) Zero() {
	k.Key.Zero()
}

// Keychain is the key-derivation capability handed to the signing
// protocol and the ledger.
type Keychain interface {
	// DeriveKey returns the secret key at the given path.
	DeriveKey(id Identifier) (*SecretKey, error)

	// Commit builds a pedersen commitment to value under the key at id.
	Commit(value uint64, id Identifier) (pedersen.Commitment, error)

	// Sign signs msg with the key at id.
	Sign(msg []byte, id Identifier) (*aggsig.Signature, error)
}

// ExtKeychain derives keys from a fixed 32-byte seed.
type ExtKeychain struct {
	seed [32]byte
}

func NewExtKeychain(seed [32]byte) *ExtKeychain {
	return &ExtKeychain{seed: seed}
}

// FromRandomSeed builds a keychain over a fresh random seed.
func FromRandomSeed() (*ExtKeychain, error) {
	priv, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, err
	}
	seed := priv.Key.Bytes()
	priv.Zero()
	return NewExtKeychain(seed), nil
}

func (kc *ExtKeychain) DeriveKey(id Identifier) (*SecretKey, error) {
	h, _ := blake2b.New256(nil)
	h.Write(kc.seed[:])
	h.Write(id[:])
	digest := h.Sum(nil)

	sk := &SecretKey{}
	// rehash on the (astronomically unlikely) overflow or zero scalar
	for {
		overflow := sk.Key.SetByteSlice(digest)
		if !overflow && !sk.Key.IsZero() {
			return sk, nil
		}
		next := blake2b.Sum256(digest)
		digest = next[:]
	}
}

func (kc *ExtKeychain) Commit(value uint64, id Identifier) (pedersen.Commitment, error) {
	sk, err := kc.DeriveKey(id)
	if err != nil {
		return pedersen.Commitment{}, err
	}
	defer sk.Zero()
	return pedersen.Commit(value, &sk.Key)
}

func (kc *ExtKeychain) Sign(msg []byte, id Identifier) (*aggsig.Signature, error) {
	sk, err := kc.DeriveKey(id)
	if err != nil {
		return nil, err
	}
	defer sk.Zero()
	return aggsig.SignSingle(&sk.Key, msg)
}
