package aggsig

import (
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type party struct {
	sec      *btcec.ModNScalar
	secNonce *btcec.ModNScalar
}

func newParty(t *testing.T) *party {
	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	k, err := NewSecretNonce()
	require.NoError(t, err)
	return &party{sec: &priv.Key, secNonce: k}
}

func runRounds(t *testing.T, n int, msg []byte) (*Signature, *btcec.PublicKey) {
	parties := make([]*party, n)
	pubs := make([]*btcec.PublicKey, n)
	nonces := make([]*btcec.PublicKey, n)
	for i := 0; i < n; i++ {
		parties[i] = newParty(t)
		pubs[i] = PubFromSecret(parties[i].sec)
		nonces[i] = PubFromSecret(parties[i].secNonce)
	}

	keySum, err := SumPubKeys(pubs...)
	require.NoError(t, err)
	nonceSum, err := SumPubKeys(nonces...)
	require.NoError(t, err)

	partials := make([]*btcec.ModNScalar, n)
	for i, p := range parties {
		partials[i] = CalculatePartial(p.sec, p.secNonce, nonceSum, keySum, msg)
		require.NoError(t,
			VerifyPartial(partials[i], nonces[i], pubs[i], nonceSum, keySum, msg))
	}

	return AddSignatures(partials, nonceSum), keySum
}

func TestTwoPartyAggregation(t *testing.T) {
	msg := []byte("kernel signature message")
	sig, keySum := runRounds(t, 2, msg)
	assert.NoError(t, Verify(sig, keySum, msg))
}

func TestManyPartyAggregation(t *testing.T) {
	msg := []byte("kernel signature message")
	for _, n := range []int{3, 5} {
		sig, keySum := runRounds(t, n, msg)
		assert.NoError(t, Verify(sig, keySum, msg))
	}
}

// Dropping any participant's partial signature must fail verification,
// never silently pass.
func TestMissingPartialFails(t *testing.T) {
	msg := []byte("kernel signature message")

	a, b := newParty(t), newParty(t)
	pubA, pubB := PubFromSecret(a.sec), PubFromSecret(b.sec)
	keySum, err := SumPubKeys(pubA, pubB)
	require.NoError(t, err)
	nonceSum, err := SumPubKeys(PubFromSecret(a.secNonce), PubFromSecret(b.secNonce))
	require.NoError(t, err)

	partialA := CalculatePartial(a.sec, a.secNonce, nonceSum, keySum, msg)
	sig := AddSignatures([]*btcec.ModNScalar{partialA}, nonceSum)
	assert.ErrorIs(t, Verify(sig, keySum, msg), ErrInvalidSignature)
}

func TestVerifyWrongMessageFails(t *testing.T) {
	sig, keySum := runRounds(t, 2, []byte("msg"))
	assert.ErrorIs(t, Verify(sig, keySum, []byte("other")), ErrInvalidSignature)
}

func TestSerializeRoundTrip(t *testing.T) {
	sig, keySum := runRounds(t, 2, []byte("msg"))

	chk, err := ParseSignature(sig.Serialize())
	require.NoError(t, err)
	assert.NoError(t, Verify(chk, keySum, []byte("msg")))

	chk2, err := ParseSignatureHex(sig.String())
	require.NoError(t, err)
	assert.Equal(t, sig.Serialize(), chk2.Serialize())

	_, err = ParseSignature([]byte{1, 2, 3})
	assert.ErrorIs(t, err, ErrInvalidSigEncoding)
}

func TestSignSingle(t *testing.T) {
	p := newParty(t)
	pub := PubFromSecret(p.sec)

	sig, err := SignSingle(p.sec, []byte("prover message"))
	require.NoError(t, err)
	assert.NoError(t, VerifySingle(sig, pub, []byte("prover message")))
	assert.ErrorIs(t, VerifySingle(sig, pub, []byte("tampered")), ErrInvalidSignature)
}
