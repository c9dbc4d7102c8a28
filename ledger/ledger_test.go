package ledger

import (
	"os"
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
	"github.com/mimblenet/mwwallet/slate"
	"github.com/mimblenet/mwwallet/wallet"
	"github.com/mimblenet/mwwallet/walletdb"
)

func newTestWallet(t *testing.T) (wallet.WalletBackend, *nodeclient.SimulatedNode) {
	kc, err := keychain.FromRandomSeed()
	require.NoError(t, err)

	node := nodeclient.NewSimulatedNode()
	store, err := walletdb.Open(t.TempDir()+"/wallet.db", kc, node)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store, node
}

func randScalar(t *testing.T) *btcec.ModNScalar {
	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	return &priv.Key
}

// validTx builds a balanced spend of a fresh 100-unit input, returning
// the tx and the input commitment.
func validTx(t *testing.T, fee uint64) (*core.Transaction, pedersen.Commitment) {
	rIn := randScalar(t)
	rOut := randScalar(t)
	offset := randScalar(t)

	input, err := pedersen.Commit(100, rIn)
	require.NoError(t, err)
	payment, err := pedersen.Commit(100-fee, rOut)
	require.NoError(t, err)

	excess := pedersen.BlindSum(
		[]*btcec.ModNScalar{rOut},
		[]*btcec.ModNScalar{rIn, offset},
	)
	msg := core.KernelSigMessage(core.PlainKernel, fee, 0)
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
		Fee:       fee,
		Excess:    excessCommit,
		ExcessSig: sig.Serialize(),
	})
	return tx, input
}

func saveOutput(t *testing.T, w wallet.WalletBackend, o *wallet.OutputData) {
	b, err := w.Batch()
	require.NoError(t, err)
	require.NoError(t, b.SaveOutput(o))
	require.NoError(t, b.Commit())
}

func saveEntry(t *testing.T, w wallet.WalletBackend, e *wallet.TxLogEntry) {
	b, err := w.Batch()
	require.NoError(t, err)
	require.NoError(t, b.SaveTxLogEntry(e))
	require.NoError(t, b.Commit())
}

func lockableContext(t *testing.T, w wallet.WalletBackend,
	parent keychain.Identifier) (*wallet.Context, *slate.Slate) {

	inCommit, err := pedersen.Commit(100, randScalar(t))
	require.NoError(t, err)
	saveOutput(t, w, &wallet.OutputData{
		RootKeyID: parent,
		KeyID:     parent.Child(0),
		Commit:    inCommit,
		Value:     100,
		Status:    wallet.Unspent,
		Height:    1,
	})

	changeCommit, err := pedersen.Commit(39, randScalar(t))
	require.NoError(t, err)

	s := slate.Blank(2, nil)
	s.Amount = 60
	s.Fee = 1
	s.Height = 5

	ctx := &wallet.Context{
		ParentKeyID: parent,
		Amount:      60,
		Fee:         1,
	}
	ctx.AddInputCommit(inCommit)
	ctx.AddOutputCommit(changeCommit)
	ctx.ChangeOutputs = []wallet.PlannedOutput{{
		KeyID:  parent.Child(1),
		NChild: 1,
		Value:  39,
		Commit: changeCommit,
	}}
	return ctx, s
}

func TestLockOutputsIdempotent(t *testing.T) {
	w, _ := newTestWallet(t)
	parent := keychain.AccountID(0)
	ctx, s := lockableContext(t, w, parent)

	require.NoError(t, LockOutputs(w, ctx, s))
	// second invocation for the same slate id changes nothing
	require.NoError(t, LockOutputs(w, ctx, s))

	entries, err := w.TxLogEntries()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, wallet.TxSent, entries[0].TxType)
	assert.Equal(t, uint64(100), entries[0].AmountDebited)
	assert.Equal(t, uint64(39), entries[0].AmountCredited)

	outputs, err := w.Outputs()
	require.NoError(t, err)
	require.Len(t, outputs, 2)

	locked := 0
	unconfirmed := 0
	for _, o := range outputs {
		require.NotNil(t, o.TxLogID)
		assert.Equal(t, entries[0].ID, *o.TxLogID)
		switch o.Status {
		case wallet.Locked:
			locked++
		case wallet.Unconfirmed:
			unconfirmed++
		}
	}
	assert.Equal(t, 1, locked)
	assert.Equal(t, 1, unconfirmed)
}

func TestCancelTxPending(t *testing.T) {
	w, _ := newTestWallet(t)
	parent := keychain.AccountID(0)
	ctx, s := lockableContext(t, w, parent)
	require.NoError(t, LockOutputs(w, ctx, s))

	b, err := w.Batch()
	require.NoError(t, err)
	require.NoError(t, b.SavePayment(&wallet.PaymentData{
		Commit:  ctx.OutputCommits[0],
		Value:   60,
		Status:  wallet.Unconfirmed,
		SlateID: s.ID,
	}))
	require.NoError(t, b.Commit())

	require.NoError(t, CancelTx(w, parent, nil, &s.ID))

	entries, err := w.TxLogEntries()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, wallet.TxSentCancelled, entries[0].TxType)

	// the locked input is unlocked, the pending change output deleted
	outputs, err := w.Outputs()
	require.NoError(t, err)
	require.Len(t, outputs, 1)
	assert.Equal(t, wallet.Unspent, outputs[0].Status)

	// no dangling payment records
	payments, err := w.Payments(s.ID)
	require.NoError(t, err)
	assert.Len(t, payments, 0)
}

func TestCancelTxRejectsConfirmedOrPosted(t *testing.T) {
	w, _ := newTestWallet(t)
	parent := keychain.AccountID(0)

	slateID := uuid.New()
	entry := &wallet.TxLogEntry{
		ParentKeyID: parent,
		ID:          0,
		TxSlateID:   &slateID,
		TxType:      wallet.TxSent,
		CreationTs:  time.Now().UTC(),
		Posted:      true,
	}
	saveEntry(t, w, entry)
	assert.ErrorIs(t, CancelTx(w, parent, nil, &slateID), ErrTransactionNotCancellable)

	entry.Posted = false
	entry.Confirmed = true
	saveEntry(t, w, entry)
	assert.ErrorIs(t, CancelTx(w, parent, nil, &slateID), ErrTransactionNotCancellable)

	missing := uuid.New()
	assert.ErrorIs(t, CancelTx(w, parent, nil, &missing), ErrTransactionDoesntExist)
}

func TestRefreshOutputsAndConfirm(t *testing.T) {
	w, node := newTestWallet(t)
	parent := keychain.AccountID(0)

	tx, input := validTx(t, 1)
	node.AddOutput(input, 1)
	saveOutput(t, w, &wallet.OutputData{
		RootKeyID: parent,
		KeyID:     parent.Child(0),
		Commit:    input,
		Value:     100,
		Status:    wallet.Locked,
		Height:    1,
	})

	slateID := uuid.New()
	excess := tx.Body.Kernels[0].Excess.String()
	saveEntry(t, w, &wallet.TxLogEntry{
		ParentKeyID:  parent,
		ID:           0,
		TxSlateID:    &slateID,
		TxType:       wallet.TxSent,
		CreationTs:   time.Now().UTC(),
		Posted:       true,
		KernelExcess: &excess,
	})

	// not yet mined: nothing changes
	_, err := RefreshOutputs(w, parent)
	require.NoError(t, err)
	entries, err := w.TxLogEntries()
	require.NoError(t, err)
	assert.False(t, entries[0].Confirmed)

	require.NoError(t, node.PostTx(tx, true))
	node.Mine(1)

	tip, err := RefreshOutputs(w, parent)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), tip)

	outputs, err := w.Outputs()
	require.NoError(t, err)
	require.Len(t, outputs, 1)
	assert.Equal(t, wallet.Spent, outputs[0].Status)

	entries, err = w.TxLogEntries()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, entries[0].Confirmed)
	require.NotNil(t, entries[0].ConfirmationTs)
}

// One failed post, one successful repost of a stuck predecessor and a
// successful resend must leave exactly one non-cancelled entry for the
// slate.
func TestPostTxRepostsThenSucceeds(t *testing.T) {
	w, node := newTestWallet(t)
	parent := keychain.AccountID(0)

	// stuck predecessor: posted earlier but never mined, mempool lost
	prevTx, prevInput := validTx(t, 1)
	node.AddOutput(prevInput, 1)
	prevSlateID := uuid.New()
	prevKey := prevSlateID.String()
	require.NoError(t, w.StoreTx(prevKey, prevTx))
	saveEntry(t, w, &wallet.TxLogEntry{
		ParentKeyID: parent,
		ID:          0,
		TxSlateID:   &prevSlateID,
		TxType:      wallet.TxSent,
		CreationTs:  time.Now().UTC().Add(-time.Hour),
		Posted:      true,
		StoredTx:    &prevKey,
	})

	// current transaction
	tx, input := validTx(t, 1)
	node.AddOutput(input, 1)
	slateID := uuid.New()
	require.NoError(t, w.StoreTx(slateID.String(), tx))
	saveEntry(t, w, &wallet.TxLogEntry{
		ParentKeyID: parent,
		ID:          1,
		TxSlateID:   &slateID,
		TxType:      wallet.TxSent,
		CreationTs:  time.Now().UTC(),
	})

	node.FailNextPosts(1)
	require.NoError(t, PostTx(w, parent, slateID, true))

	// both the predecessor and the current tx reached the mempool
	assert.Equal(t, 2, node.MempoolSize())

	entries, err := w.TxLogEntries()
	require.NoError(t, err)
	active := 0
	for _, e := range entries {
		if e.TxSlateID != nil && *e.TxSlateID == slateID && !e.Cancelled() {
			active++
			assert.True(t, e.Posted)
		}
	}
	assert.Equal(t, 1, active)
}

func TestPostTxCancelsOnRepeatedFailure(t *testing.T) {
	w, node := newTestWallet(t)
	parent := keychain.AccountID(0)

	tx, input := validTx(t, 1)
	node.AddOutput(input, 1)
	slateID := uuid.New()
	require.NoError(t, w.StoreTx(slateID.String(), tx))
	saveEntry(t, w, &wallet.TxLogEntry{
		ParentKeyID: parent,
		ID:          0,
		TxSlateID:   &slateID,
		TxType:      wallet.TxSent,
		CreationTs:  time.Now().UTC(),
	})

	// initial post, repost attempt and retry all fail
	node.FailNextPosts(3)
	err := PostTx(w, parent, slateID, true)
	require.Error(t, err)

	entries, err := w.TxLogEntries()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, wallet.TxSentCancelled, entries[0].TxType)
	assert.Equal(t, 0, node.MempoolSize())
}

func TestPostTxNoStoredBody(t *testing.T) {
	w, _ := newTestWallet(t)
	parent := keychain.AccountID(0)
	err := PostTx(w, parent, uuid.New(), false)
	assert.ErrorIs(t, err, ErrNoStoredTx)
}

func TestRepost(t *testing.T) {
	w, node := newTestWallet(t)
	parent := keychain.AccountID(0)

	tx, input := validTx(t, 1)
	node.AddOutput(input, 1)
	slateID := uuid.New()
	key := slateID.String()
	require.NoError(t, w.StoreTx(key, tx))
	entry := &wallet.TxLogEntry{
		ParentKeyID: parent,
		ID:          0,
		TxSlateID:   &slateID,
		TxType:      wallet.TxSent,
		CreationTs:  time.Now().UTC(),
		StoredTx:    &key,
	}
	saveEntry(t, w, entry)

	require.NoError(t, Repost(w, parent, nil, &slateID, "", true))
	assert.Equal(t, 1, node.MempoolSize())

	// confirmed transactions cannot be reposted
	node.Mine(1)
	entry.Confirmed = true
	saveEntry(t, w, entry)
	assert.ErrorIs(t, Repost(w, parent, nil, &slateID, "", true), ErrAlreadyConfirmed)
}

func TestRepostDumpFile(t *testing.T) {
	w, node := newTestWallet(t)
	parent := keychain.AccountID(0)

	tx, input := validTx(t, 1)
	node.AddOutput(input, 1)
	slateID := uuid.New()
	key := slateID.String()
	require.NoError(t, w.StoreTx(key, tx))
	saveEntry(t, w, &wallet.TxLogEntry{
		ParentKeyID: parent,
		ID:          0,
		TxSlateID:   &slateID,
		TxType:      wallet.TxSent,
		CreationTs:  time.Now().UTC(),
		StoredTx:    &key,
	})

	dump := t.TempDir() + "/tx.json"
	require.NoError(t, Repost(w, parent, nil, &slateID, dump, false))
	// dumped, not broadcast
	assert.Equal(t, 0, node.MempoolSize())
	_, err := os.Stat(dump)
	assert.NoError(t, err)
}

func TestCheckRepair(t *testing.T) {
	w, node := newTestWallet(t)
	parent := keychain.AccountID(0)

	// unspent locally, unknown to the chain
	ghost, err := pedersen.Commit(10, randScalar(t))
	require.NoError(t, err)
	saveOutput(t, w, &wallet.OutputData{
		RootKeyID: parent, KeyID: parent.Child(0), Commit: ghost,
		Value: 10, Status: wallet.Unspent, Height: 1,
	})

	// locked locally but still unspent on chain
	stuckID := uint32(3)
	stuck, err := pedersen.Commit(20, randScalar(t))
	require.NoError(t, err)
	node.AddOutput(stuck, 1)
	saveOutput(t, w, &wallet.OutputData{
		RootKeyID: parent, KeyID: parent.Child(1), Commit: stuck,
		Value: 20, Status: wallet.Locked, Height: 1, TxLogID: &stuckID,
	})

	// unconfirmed change of a pending entry
	pendID := uint32(4)
	pend, err := pedersen.Commit(30, randScalar(t))
	require.NoError(t, err)
	saveOutput(t, w, &wallet.OutputData{
		RootKeyID: parent, KeyID: parent.Child(2), Commit: pend,
		Value: 30, Status: wallet.Unconfirmed, Height: 0, TxLogID: &pendID,
	})
	slateID := uuid.New()
	saveEntry(t, w, &wallet.TxLogEntry{
		ParentKeyID: parent,
		ID:          pendID,
		TxSlateID:   &slateID,
		TxType:      wallet.TxSent,
		CreationTs:  time.Now().UTC(),
	})

	report, err := CheckRepair(w, parent, false)
	require.NoError(t, err)
	assert.Equal(t, []pedersen.Commitment{ghost}, report.UnknownOutputs)
	assert.Equal(t, 1, report.UnlockedOutputs)
	assert.Equal(t, 0, report.DeletedUnconfirmed)

	chk, err := w.GetOutput(stuck)
	require.NoError(t, err)
	assert.Equal(t, wallet.Unspent, chk.Status)
	assert.Nil(t, chk.TxLogID)

	report, err = CheckRepair(w, parent, true)
	require.NoError(t, err)
	assert.Equal(t, 1, report.DeletedUnconfirmed)

	_, err = w.GetOutput(pend)
	assert.ErrorIs(t, err, wallet.ErrNotFound)

	entries, err := w.TxLogEntries()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, entries[0].Cancelled())
}
