package slate

import (
	"encoding/json"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mimblenet/mwwallet/aggsig"
	"github.com/mimblenet/mwwallet/core"
	"github.com/mimblenet/mwwallet/keychain"
	"github.com/mimblenet/mwwallet/pedersen"
)

func secretFromScalar(s *btcec.ModNScalar) *keychain.SecretKey {
	sk := &keychain.SecretKey{}
	sk.Key.Set(s)
	return sk
}

func randScalar(t *testing.T) *btcec.ModNScalar {
	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	return &priv.Key
}

func newNonce(t *testing.T) *keychain.SecretKey {
	k, err := aggsig.NewSecretNonce()
	require.NoError(t, err)
	return secretFromScalar(k)
}

// twoPartySlate builds a balanced send of 60 with fee, input 100 and
// change 40-fee, and returns the slate plus each side's signing keys.
func twoPartySlate(t *testing.T, fee uint64) (s *Slate, senderKey, senderNonce, recvKey, recvNonce *keychain.SecretKey) {
	rIn := randScalar(t)
	rChange := randScalar(t)
	rRecv := randScalar(t)

	input, err := pedersen.Commit(100, rIn)
	require.NoError(t, err)
	change, err := pedersen.Commit(40-fee, rChange)
	require.NoError(t, err)
	payment, err := pedersen.Commit(60, rRecv)
	require.NoError(t, err)

	s = Blank(2, NewSeqIDs())
	s.Amount = 60
	s.Fee = fee
	s.Height = 5
	s.Tx.AddInput(core.Input{Features: core.PlainOutput, Commit: input})
	s.Tx.AddOutput(core.Output{Features: core.PlainOutput, Commit: change})
	s.Tx.AddOutput(core.Output{Features: core.PlainOutput, Commit: payment})

	senderKey = secretFromScalar(pedersen.BlindSum(
		[]*btcec.ModNScalar{rChange}, []*btcec.ModNScalar{rIn}))
	recvKey = secretFromScalar(rRecv)
	senderNonce = newNonce(t)
	recvNonce = newNonce(t)
	return s, senderKey, senderNonce, recvKey, recvNonce
}

func TestSlateIDFixedAtCreation(t *testing.T) {
	gen := NewSeqIDs()
	s1 := Blank(2, gen)
	s2 := Blank(2, gen)
	assert.NotEqual(t, s1.ID, s2.ID)
	assert.Equal(t, StateCreated, s1.State)
	assert.Equal(t, uint(2), s1.NumParticipants)
}

func TestTwoPartyFullProtocol(t *testing.T) {
	s, senderKey, senderNonce, recvKey, recvNonce := twoPartySlate(t, 2)

	msg := "thanks for lunch"
	require.NoError(t, s.FillRound1(senderKey, senderNonce, 0, nil))
	require.NoError(t, s.FillRound1(recvKey, recvNonce, 1, &msg))
	require.NoError(t, s.VerifyMessages())

	// receiver signs first, order across participants is free
	require.NoError(t, s.FillRound2(recvKey, recvNonce, 1))
	require.NoError(t, s.FillRound2(senderKey, senderNonce, 0))

	require.NoError(t, s.Finalize())
	assert.Equal(t, StateFinalized, s.State)
	require.Len(t, s.Tx.Body.Kernels, 1)
	assert.NoError(t, s.Tx.Validate())

	// finalize again: no-op, same kernel
	kernel := s.Tx.Body.Kernels[0]
	require.NoError(t, s.Finalize())
	assert.Equal(t, kernel, s.Tx.Body.Kernels[0])
}

func TestFinalizeBeforeRound2Rejected(t *testing.T) {
	s, senderKey, senderNonce, recvKey, recvNonce := twoPartySlate(t, 2)
	require.NoError(t, s.FillRound1(senderKey, senderNonce, 0, nil))
	require.NoError(t, s.FillRound1(recvKey, recvNonce, 1, nil))

	assert.ErrorIs(t, s.Finalize(), ErrWrongState)
}

func TestFinalizeMissingPartialFails(t *testing.T) {
	s, senderKey, senderNonce, recvKey, recvNonce := twoPartySlate(t, 2)
	require.NoError(t, s.FillRound1(senderKey, senderNonce, 0, nil))
	require.NoError(t, s.FillRound1(recvKey, recvNonce, 1, nil))
	require.NoError(t, s.FillRound2(recvKey, recvNonce, 1))

	// only one of two partials present
	assert.ErrorIs(t, s.Finalize(), ErrSlateIncomplete)
	assert.NotEqual(t, StateFinalized, s.State)
	assert.Empty(t, s.Tx.Body.Kernels)
}

func TestRound2BeforeAllRound1Rejected(t *testing.T) {
	s, senderKey, senderNonce, _, _ := twoPartySlate(t, 2)
	require.NoError(t, s.FillRound1(senderKey, senderNonce, 0, nil))
	assert.ErrorIs(t, s.FillRound2(senderKey, senderNonce, 0), ErrRound1Incomplete)
}

func TestRound1IdempotentPerParticipant(t *testing.T) {
	s, senderKey, senderNonce, recvKey, recvNonce := twoPartySlate(t, 2)
	require.NoError(t, s.FillRound1(senderKey, senderNonce, 0, nil))

	// re-invoking round 1 overwrites only this participant's entry
	require.NoError(t, s.FillRound1(senderKey, senderNonce, 0, nil))
	require.Len(t, s.ParticipantData, 1)

	require.NoError(t, s.FillRound1(recvKey, recvNonce, 1, nil))
	require.Len(t, s.ParticipantData, 2)
}

func TestTamperedPartialDetected(t *testing.T) {
	s, senderKey, senderNonce, recvKey, recvNonce := twoPartySlate(t, 2)
	require.NoError(t, s.FillRound1(senderKey, senderNonce, 0, nil))
	require.NoError(t, s.FillRound1(recvKey, recvNonce, 1, nil))
	require.NoError(t, s.FillRound2(recvKey, recvNonce, 1))
	require.NoError(t, s.FillRound2(senderKey, senderNonce, 0))

	one := new(btcec.ModNScalar).SetInt(1)
	s.ParticipantWithID(1).PartSig.Add(one)
	assert.ErrorIs(t, s.Finalize(), ErrInvalidSignature)
}

func TestThreePartyProtocol(t *testing.T) {
	// one input funds two receivers; all three participants sign
	rIn := randScalar(t)
	rChange := randScalar(t)
	rA := randScalar(t)
	rB := randScalar(t)

	fee := uint64(3)
	input, err := pedersen.Commit(200, rIn)
	require.NoError(t, err)
	change, err := pedersen.Commit(100-fee, rChange)
	require.NoError(t, err)
	outA, err := pedersen.Commit(60, rA)
	require.NoError(t, err)
	outB, err := pedersen.Commit(40, rB)
	require.NoError(t, err)

	s := Blank(3, nil)
	s.Amount = 100
	s.Fee = fee
	s.Tx.AddInput(core.Input{Features: core.PlainOutput, Commit: input})
	for _, c := range []pedersen.Commitment{change, outA, outB} {
		s.Tx.AddOutput(core.Output{Features: core.PlainOutput, Commit: c})
	}

	keys := []*keychain.SecretKey{
		secretFromScalar(pedersen.BlindSum([]*btcec.ModNScalar{rChange}, []*btcec.ModNScalar{rIn})),
		secretFromScalar(rA),
		secretFromScalar(rB),
	}
	nonces := []*keychain.SecretKey{newNonce(t), newNonce(t), newNonce(t)}

	for i := range keys {
		require.NoError(t, s.FillRound1(keys[i], nonces[i], uint64(i), nil))
	}
	for i := range keys {
		require.NoError(t, s.FillRound2(keys[i], nonces[i], uint64(i)))
	}
	require.NoError(t, s.Finalize())
	assert.NoError(t, s.Tx.Validate())
}

func TestWireRoundTripExact(t *testing.T) {
	s, senderKey, senderNonce, recvKey, recvNonce := twoPartySlate(t, 2)
	msg := "invoice #42"
	require.NoError(t, s.FillRound1(senderKey, senderNonce, 0, &msg))
	require.NoError(t, s.FillRound1(recvKey, recvNonce, 1, nil))
	require.NoError(t, s.FillRound2(recvKey, recvNonce, 1))

	data, err := json.Marshal(s)
	require.NoError(t, err)

	var chk Slate
	require.NoError(t, json.Unmarshal(data, &chk))

	assert.Equal(t, s.ID, chk.ID)
	assert.Equal(t, s.Amount, chk.Amount)
	assert.Equal(t, s.Fee, chk.Fee)
	assert.Equal(t, s.Height, chk.Height)
	assert.Equal(t, s.LockHeight, chk.LockHeight)
	assert.Equal(t, s.State, chk.State)
	assert.Equal(t, s.VersionInfo, chk.VersionInfo)
	require.Len(t, chk.ParticipantData, 2)
	assert.NoError(t, chk.VerifyMessages())

	// byte-exact re-serialization
	data2, err := json.Marshal(&chk)
	require.NoError(t, err)
	assert.Equal(t, data, data2)

	// the deserialized slate can still complete the protocol
	require.NoError(t, chk.FillRound2(senderKey, senderNonce, 0))
	require.NoError(t, chk.Finalize())
}

func TestWireRejectsMalformed(t *testing.T) {
	var s Slate
	assert.Error(t, json.Unmarshal([]byte(`{"id":"not-a-uuid","amount":"1","fee":"0","height":"0","lock_height":"0"}`), &s))
	assert.Error(t, json.Unmarshal([]byte(`{`), &s))
}

func TestSeqIDsDeterministic(t *testing.T) {
	g1 := NewSeqIDs()
	g2 := NewSeqIDs()
	assert.Equal(t, g1.NewSlateID(), g2.NewSlateID())
	assert.NotEqual(t, g1.NewSlateID(), g1.NewSlateID())
}
