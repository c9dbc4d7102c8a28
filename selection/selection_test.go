package selection

import (
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mimblenet/mwwallet/keychain"
	"github.com/mimblenet/mwwallet/pedersen"
	"github.com/mimblenet/mwwallet/slate"
	"github.com/mimblenet/mwwallet/wallet"
	"github.com/mimblenet/mwwallet/walletdb"
)

const unit = 1_000_000

func newBackend(t *testing.T) wallet.WalletBackend {
	kc, err := keychain.FromRandomSeed()
	require.NoError(t, err)

	store, err := walletdb.Open(t.TempDir()+"/wallet.db", kc, nil)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

// seedOutputs derives and persists one unspent output per value.
func seedOutputs(t *testing.T, w wallet.WalletBackend,
	parent keychain.Identifier, values []uint64) {

	planned := make([]*wallet.OutputData, 0, len(values))
	for _, v := range values {
		nChild, err := w.NextChild(parent)
		require.NoError(t, err)
		keyID := parent.Child(nChild)
		commit, err := w.Keychain().Commit(v, keyID)
		require.NoError(t, err)
		planned = append(planned, &wallet.OutputData{
			RootKeyID: parent,
			KeyID:     keyID,
			NChild:    nChild,
			Commit:    commit,
			Value:     v,
			Status:    wallet.Unspent,
			Height:    1,
		})
	}

	b, err := w.Batch()
	require.NoError(t, err)
	for _, o := range planned {
		require.NoError(t, b.SaveOutput(o))
	}
	require.NoError(t, b.Commit())
}

func eligibleSet(t *testing.T, w wallet.WalletBackend) []wallet.OutputData {
	outputs, err := w.Outputs()
	require.NoError(t, err)
	return outputs
}

func TestSmallestPicksSmallestSatisfying(t *testing.T) {
	w := newBackend(t)
	parent := keychain.AccountID(0)
	seedOutputs(t, w, parent, []uint64{10 * unit, 20 * unit, 70 * unit})

	args := SendArgs{Amount: 15 * unit, Strategy: Smallest, BaseFee: 1}
	coins, fee, err := SelectCoinsAndFee(eligibleSet(t, w), parent, 10, args)
	assert.NoError(t, err)
	assert.Equal(t, args.feeFor(1), fee)

	// the smallest single output covering amount+fee wins
	require.Len(t, coins, 1)
	assert.Equal(t, uint64(20*unit), coins[0].Value)
}

func TestSmallestAccumulates(t *testing.T) {
	w := newBackend(t)
	parent := keychain.AccountID(0)
	seedOutputs(t, w, parent, []uint64{10 * unit, 20 * unit, 70 * unit})

	args := SendArgs{Amount: 75 * unit, Strategy: Smallest, BaseFee: 1}
	coins, _, err := SelectCoinsAndFee(eligibleSet(t, w), parent, 10, args)
	assert.NoError(t, err)

	// no single output suffices; smallest-first accumulation takes all
	require.Len(t, coins, 3)
	assert.Equal(t, uint64(10*unit), coins[0].Value)
	assert.Equal(t, uint64(20*unit), coins[1].Value)
	assert.Equal(t, uint64(70*unit), coins[2].Value)
}

func TestBiggestStrategy(t *testing.T) {
	w := newBackend(t)
	parent := keychain.AccountID(0)
	seedOutputs(t, w, parent, []uint64{10 * unit, 20 * unit, 70 * unit})

	args := SendArgs{Amount: 15 * unit, Strategy: Biggest, BaseFee: 1}
	coins, _, err := SelectCoinsAndFee(eligibleSet(t, w), parent, 10, args)
	assert.NoError(t, err)
	require.Len(t, coins, 1)
	assert.Equal(t, uint64(70*unit), coins[0].Value)
}

func TestAllStrategy(t *testing.T) {
	w := newBackend(t)
	parent := keychain.AccountID(0)
	seedOutputs(t, w, parent, []uint64{10 * unit, 20 * unit, 70 * unit})

	args := SendArgs{Amount: 15 * unit, Strategy: All, BaseFee: 1}
	coins, fee, err := SelectCoinsAndFee(eligibleSet(t, w), parent, 10, args)
	assert.NoError(t, err)
	assert.Len(t, coins, 3)
	assert.Equal(t, args.feeFor(3), fee)
}

func TestInsufficientFunds(t *testing.T) {
	w := newBackend(t)
	parent := keychain.AccountID(0)
	seedOutputs(t, w, parent, []uint64{10 * unit})

	args := SendArgs{Amount: 100 * unit, Strategy: Smallest, BaseFee: 1}
	_, _, err := SelectCoinsAndFee(eligibleSet(t, w), parent, 10, args)
	assert.ErrorIs(t, err, ErrInsufficientFunds)
}

func TestIneligibleOutputsSkipped(t *testing.T) {
	w := newBackend(t)
	parent := keychain.AccountID(0)
	seedOutputs(t, w, parent, []uint64{50 * unit})

	outputs := eligibleSet(t, w)
	require.Len(t, outputs, 1)
	locked := outputs[0]
	locked.Status = wallet.Locked

	args := SendArgs{Amount: 10 * unit, Strategy: Smallest, BaseFee: 1}
	_, _, err := SelectCoinsAndFee([]wallet.OutputData{locked}, parent, 10, args)
	assert.ErrorIs(t, err, ErrInsufficientFunds)

	// below the confirmation floor
	fresh := outputs[0]
	fresh.Height = 10
	_, _, err = SelectCoinsAndFee([]wallet.OutputData{fresh}, parent, 10,
		SendArgs{Amount: 10 * unit, MinConfirmations: 5, Strategy: Smallest, BaseFee: 1})
	assert.ErrorIs(t, err, ErrInsufficientFunds)

	// other accounts never contribute
	_, _, err = SelectCoinsAndFee(outputs, keychain.AccountID(9), 10, args)
	assert.ErrorIs(t, err, ErrInsufficientFunds)
}

func TestBuildSendTx(t *testing.T) {
	w := newBackend(t)
	parent := keychain.AccountID(0)
	seedOutputs(t, w, parent, []uint64{10 * unit, 20 * unit, 70 * unit})

	s := slate.Blank(2, nil)
	s.Amount = 15 * unit
	s.Height = 10

	ctx, err := BuildSendTx(w, s, parent, 0, 10,
		SendArgs{Strategy: Smallest, BaseFee: 1})
	require.NoError(t, err)
	defer ctx.Zero()

	require.Len(t, s.Tx.Body.Inputs, 1)
	require.Len(t, s.Tx.Body.Outputs, 1)
	require.Len(t, ctx.ChangeOutputs, 1)
	assert.Equal(t, uint64(20*unit)-s.Amount-s.Fee, ctx.ChangeOutputs[0].Value)
	assert.Equal(t, s.Fee, ctx.Fee)

	// the context blind sum balances the sender half: inputs minus
	// change commit to amount+fee under the negated secret
	neg := new(btcec.ModNScalar).Set(&ctx.SecKey.Key)
	neg.Negate()
	expect, err := pedersen.Commit(s.Amount+s.Fee, neg)
	require.NoError(t, err)
	sum, err := pedersen.Sum(ctx.InputCommits, ctx.OutputCommits)
	require.NoError(t, err)
	assert.Equal(t, expect, sum)

	// selection plans but does not persist: the wallet still shows the
	// seeded outputs only, all unspent
	outputs := eligibleSet(t, w)
	assert.Len(t, outputs, 3)
	for _, o := range outputs {
		assert.Equal(t, wallet.Unspent, o.Status)
	}
}

func TestBuildSendTxSplitsChange(t *testing.T) {
	w := newBackend(t)
	parent := keychain.AccountID(0)
	seedOutputs(t, w, parent, []uint64{100 * unit})

	s := slate.Blank(2, nil)
	s.Amount = 10 * unit

	ctx, err := BuildSendTx(w, s, parent, 0, 10,
		SendArgs{Strategy: Smallest, ChangeOutputs: 3, BaseFee: 1})
	require.NoError(t, err)
	defer ctx.Zero()

	require.Len(t, ctx.ChangeOutputs, 3)
	var sum uint64
	for _, c := range ctx.ChangeOutputs {
		sum += c.Value
	}
	assert.Equal(t, uint64(100*unit)-s.Amount-s.Fee, sum)
}

func TestBuildRecipientOutput(t *testing.T) {
	w := newBackend(t)
	parent := keychain.AccountID(0)

	s := slate.Blank(2, nil)
	s.Amount = 60 * unit
	s.Height = 5

	ctx, err := BuildRecipientOutput(w, s, parent, 1)
	require.NoError(t, err)
	defer ctx.Zero()

	require.Len(t, s.Tx.Body.Outputs, 1)
	commit := s.Tx.Body.Outputs[0].Commit

	// the context secret opens the slate output
	chk, err := pedersen.Commit(s.Amount, &ctx.SecKey.Key)
	require.NoError(t, err)
	assert.Equal(t, commit, chk)

	outputs := eligibleSet(t, w)
	require.Len(t, outputs, 1)
	assert.Equal(t, wallet.Unconfirmed, outputs[0].Status)
	assert.Equal(t, commit, outputs[0].Commit)
	require.NotNil(t, outputs[0].TxLogID)

	entries, err := w.TxLogEntries()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, wallet.TxReceived, entries[0].TxType)
	assert.Equal(t, s.Amount, entries[0].AmountCredited)
	require.NotNil(t, entries[0].TxSlateID)
	assert.Equal(t, s.ID, *entries[0].TxSlateID)
	assert.Equal(t, *outputs[0].TxLogID, entries[0].ID)
}
