package proof

import (
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mimblenet/mwwallet/aggsig"
	"github.com/mimblenet/mwwallet/core"
	"github.com/mimblenet/mwwallet/keychain"
	"github.com/mimblenet/mwwallet/nodeclient"
	"github.com/mimblenet/mwwallet/pedersen"
	"github.com/mimblenet/mwwallet/wallet"
	"github.com/mimblenet/mwwallet/walletdb"
)

func randScalar(t *testing.T) *btcec.ModNScalar {
	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	return &priv.Key
}

type fixture struct {
	w       wallet.WalletBackend
	node    *nodeclient.SimulatedNode
	parent  keychain.Identifier
	slateID uuid.UUID
	tx      *core.Transaction
	input   pedersen.Commitment
	payment pedersen.Commitment
}

// newFixture stores a finalized single-kernel spend of 100 with fee 1
// together with its sent entry and payment record.
func newFixture(t *testing.T, relayPath *uint64) *fixture {
	kc, err := keychain.FromRandomSeed()
	require.NoError(t, err)
	node := nodeclient.NewSimulatedNode()
	w, err := walletdb.Open(t.TempDir()+"/wallet.db", kc, node)
	require.NoError(t, err)
	t.Cleanup(func() { w.Close() })

	rIn := randScalar(t)
	rOut := randScalar(t)
	offset := randScalar(t)
	input, err := pedersen.Commit(100, rIn)
	require.NoError(t, err)
	payment, err := pedersen.Commit(99, rOut)
	require.NoError(t, err)

	excess := pedersen.BlindSum(
		[]*btcec.ModNScalar{rOut},
		[]*btcec.ModNScalar{rIn, offset},
	)
	msg := core.KernelSigMessage(core.PlainKernel, 1, 0)
	sig, err := aggsig.SignSingle(excess, msg)
	require.NoError(t, err)
	excessCommit, err := pedersen.Commit(0, excess)
	require.NoError(t, err)

	tx := core.NewTransaction()
	tx.SetOffset(offset)
	tx.AddInput(core.Input{Features: core.PlainOutput, Commit: input})
	tx.AddOutput(core.Output{Features: core.PlainOutput, Commit: payment})
	tx.Body.Kernels = append(tx.Body.Kernels, core.TxKernel{
		Features:  core.PlainKernel,
		Fee:       1,
		Excess:    excessCommit,
		ExcessSig: sig.Serialize(),
	})

	parent := keychain.AccountID(0)
	slateID := uuid.New()
	require.NoError(t, w.StoreTx(slateID.String(), tx))

	fee := uint64(1)
	b, err := w.Batch()
	require.NoError(t, err)
	require.NoError(t, b.SaveTxLogEntry(&wallet.TxLogEntry{
		ParentKeyID:   parent,
		ID:            0,
		TxSlateID:     &slateID,
		TxType:        wallet.TxSent,
		CreationTs:    time.Now().UTC(),
		AmountDebited: 100,
		Fee:           &fee,
		RelayKeyPath:  relayPath,
	}))
	require.NoError(t, b.SavePayment(&wallet.PaymentData{
		Commit:  payment,
		Value:   99,
		Status:  wallet.Unconfirmed,
		SlateID: slateID,
	}))
	require.NoError(t, b.Commit())

	node.AddOutput(input, 1)
	return &fixture{
		w: w, node: node, parent: parent, slateID: slateID,
		tx: tx, input: input, payment: payment,
	}
}

func TestSignAndVerify(t *testing.T) {
	path := uint64(5)
	f := newFixture(t, &path)

	p, err := Sign(f.w, f.parent, f.slateID)
	require.NoError(t, err)
	assert.Equal(t, uint64(99), p.Amount)
	assert.Equal(t, []pedersen.Commitment{f.payment}, p.PaymentCommits)

	// structurally sound but the kernel is not on chain yet
	verified, err := Verify(f.node, p)
	require.NoError(t, err)
	assert.False(t, verified)

	require.NoError(t, f.node.PostTx(f.tx, true))
	f.node.Mine(1)

	verified, err = Verify(f.node, p)
	require.NoError(t, err)
	assert.True(t, verified)

	// the proof is persisted on the entry
	entries, err := f.w.TxLogEntries()
	require.NoError(t, err)
	require.NotNil(t, entries[0].StoredProof)
	data, err := f.w.GetStoredTxProof(*entries[0].StoredProof)
	require.NoError(t, err)
	chk, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, p.KernelExcess, chk.KernelExcess)
}

func TestSignRequiresRelayKeyPath(t *testing.T) {
	f := newFixture(t, nil)
	_, err := Sign(f.w, f.parent, f.slateID)
	assert.ErrorIs(t, err, ErrNoRelayKey)
}

func TestVerifyRejectsTampering(t *testing.T) {
	path := uint64(5)
	f := newFixture(t, &path)

	p, err := Sign(f.w, f.parent, f.slateID)
	require.NoError(t, err)

	p.Amount++
	_, err = Verify(f.node, p)
	assert.ErrorIs(t, err, ErrInvalidProof)
	p.Amount--

	p.Fee++
	_, err = Verify(f.node, p)
	assert.ErrorIs(t, err, ErrInvalidProof)
}

func TestExportLoadRoundTrip(t *testing.T) {
	path := uint64(5)
	f := newFixture(t, &path)

	p, err := Sign(f.w, f.parent, f.slateID)
	require.NoError(t, err)

	file := t.TempDir() + "/proof.json"
	require.NoError(t, Export(p, file))
	chk, err := Load(file)
	require.NoError(t, err)
	assert.Equal(t, p, chk)

	_, err = Parse([]byte(`{"slate_id":"` + f.slateID.String() + `"}`))
	assert.ErrorIs(t, err, ErrMalformedProof)
}
