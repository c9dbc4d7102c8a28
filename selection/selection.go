// Package selection picks spendable outputs for a transaction and
// builds the sender and recipient halves of a slate.
package selection

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	logger "github.com/sirupsen/logrus"

	"github.com/mimblenet/mwwallet/core"
	"github.com/mimblenet/mwwallet/keychain"
	"github.com/mimblenet/mwwallet/pedersen"
	"github.com/mimblenet/mwwallet/slate"
	"github.com/mimblenet/mwwallet/wallet"
)

type Strategy string

const (
	Smallest Strategy = "smallest"
	Biggest  Strategy = "biggest"
	All      Strategy = "all"
)

var (
	ErrInsufficientFunds = errors.New("insufficient spendable funds")
	ErrUnknownStrategy   = errors.New("unknown selection strategy")
)

// SendArgs parameterizes coin selection for one send.
type SendArgs struct {
	Amount           uint64
	MinConfirmations uint64
	MaxInputs        int
	ChangeOutputs    int
	Strategy         Strategy
	BaseFee          uint64
}

func (a *SendArgs) normalize() {
	if a.MaxInputs <= 0 {
		a.MaxInputs = 500
	}
	if a.ChangeOutputs <= 0 {
		a.ChangeOutputs = 1
	}
	if a.Strategy == "" {
		a.Strategy = Smallest
	}
	if a.BaseFee == 0 {
		a.BaseFee = core.DefaultBaseFee
	}
}

// feeFor recomputes the fee for a given input count. One recipient
// output plus the planned change outputs, one kernel.
func (a *SendArgs) feeFor(nInputs int) uint64 {
	return core.TxFee(nInputs, 1+a.ChangeOutputs, 1, a.BaseFee)
}

// SelectCoinsAndFee chooses outputs covering amount plus fee at the
// chain tip, recomputing the fee as the input count grows. It never
// mutates any state and never picks a locked or immature output.
//
// Under the smallest strategy a single output that covers the target on
// its own wins over an accumulation, and among such outputs the
// smallest is taken.
func SelectCoinsAndFee(outputs []wallet.OutputData, parent keychain.Identifier,
	tip uint64, args SendArgs) ([]wallet.OutputData, uint64, error) {

	args.normalize()

	eligible := make([]wallet.OutputData, 0, len(outputs))
	for _, o := range outputs {
		if o.RootKeyID == parent && o.EligibleToSpend(tip, args.MinConfirmations) {
			eligible = append(eligible, o)
		}
	}
	if len(eligible) == 0 {
		return nil, 0, fmt.Errorf("%w: no eligible outputs", ErrInsufficientFunds)
	}

	switch args.Strategy {
	case Smallest:
		sort.Slice(eligible, func(i, j int) bool {
			return eligible[i].Value < eligible[j].Value
		})
		// prefer the smallest single output that covers the target
		feeOne := args.feeFor(1)
		for _, o := range eligible {
			if o.Value >= args.Amount+feeOne {
				return []wallet.OutputData{o}, feeOne, nil
			}
		}
		if coins, fee, ok := accumulate(eligible, args); ok {
			return coins, fee, nil
		}
		// small coins alone may blow the input cap; retry biggest-first
		reverse(eligible)
		if coins, fee, ok := accumulate(eligible, args); ok {
			return coins, fee, nil
		}
	case Biggest:
		sort.Slice(eligible, func(i, j int) bool {
			return eligible[i].Value > eligible[j].Value
		})
		if coins, fee, ok := accumulate(eligible, args); ok {
			return coins, fee, nil
		}
	case All:
		if len(eligible) <= args.MaxInputs {
			fee := args.feeFor(len(eligible))
			if total(eligible) >= args.Amount+fee {
				return eligible, fee, nil
			}
		}
	default:
		return nil, 0, fmt.Errorf("%w: %q", ErrUnknownStrategy, args.Strategy)
	}

	return nil, 0, fmt.Errorf("%w: need %d plus fee, have %d spendable",
		ErrInsufficientFunds, args.Amount, total(eligible))
}

// accumulate takes outputs in their given order until amount plus the
// fee for the running input count is covered.
func accumulate(ordered []wallet.OutputData, args SendArgs) ([]wallet.OutputData, uint64, bool) {
	var sum uint64
	for n := 1; n <= len(ordered) && n <= args.MaxInputs; n++ {
		sum += ordered[n-1].Value
		fee := args.feeFor(n)
		if sum >= args.Amount+fee {
			coins := make([]wallet.OutputData, n)
			copy(coins, ordered[:n])
			return coins, fee, true
		}
	}
	return nil, 0, false
}

func total(outputs []wallet.OutputData) uint64 {
	var sum uint64
	for _, o := range outputs {
		sum += o.Value
	}
	return sum
}

func reverse(outputs []wallet.OutputData) {
	for i, j := 0, len(outputs)-1; i < j; i, j = i+1, j-1 {
		outputs[i], outputs[j] = outputs[j], outputs[i]
	}
}

// BuildSendTx selects inputs for the slate's amount, derives change
// keys, adds the sender's inputs and change outputs to the slate's
// transaction and returns the negotiation context holding the blind
// sum. Nothing is persisted; the ledger stores the planned outputs when
// the inputs are locked.
func BuildSendTx(w wallet.WalletBackend, s *slate.Slate,
	parent keychain.Identifier, participantID uint64, tip uint64,
	args SendArgs) (*wallet.Context, error) {

	args.normalize()
	args.Amount = s.Amount

	outputs, err := w.Outputs()
	if err != nil {
		return nil, err
	}
	coins, fee, err := SelectCoinsAndFee(outputs, parent, tip, args)
	if err != nil {
		return nil, err
	}
	s.Fee = fee

	ctx := &wallet.Context{
		ParentKeyID:   parent,
		ParticipantID: participantID,
		Amount:        s.Amount,
		Fee:           fee,
	}

	kc := w.Keychain()
	positive := []*keychain.SecretKey{}
	negative := []*keychain.SecretKey{}
	defer func() {
		for _, k := range append(positive, negative...) {
			k.Zero()
		}
	}()

	for _, coin := range coins {
		sk, err := kc.DeriveKey(coin.KeyID)
		if err != nil {
			return nil, err
		}
		negative = append(negative, sk)
		features := core.PlainOutput
		if coin.IsCoinbase {
			features = core.CoinbaseOutput
		}
		s.Tx.AddInput(core.Input{Features: features, Commit: coin.Commit})
		ctx.AddInputCommit(coin.Commit)
	}

	change := total(coins) - s.Amount - fee
	if change > 0 {
		for _, value := range splitChange(change, args.ChangeOutputs) {
			nChild, err := w.NextChild(parent)
			if err != nil {
				return nil, err
			}
			keyID := parent.Child(nChild)
			sk, err := kc.DeriveKey(keyID)
			if err != nil {
				return nil, err
			}
			positive = append(positive, sk)
			commit, err := pedersen.Commit(value, &sk.Key)
			if err != nil {
				return nil, err
			}
			s.Tx.AddOutput(core.Output{Features: core.PlainOutput, Commit: commit})
			ctx.AddOutputCommit(commit)
			ctx.ChangeOutputs = append(ctx.ChangeOutputs, wallet.PlannedOutput{
				KeyID:  keyID,
				NChild: nChild,
				Value:  value,
				Commit: commit,
			})
		}
	}

	blinds := func(keys []*keychain.SecretKey) []*btcec.ModNScalar {
		out := make([]*btcec.ModNScalar, 0, len(keys))
		for _, k := range keys {
			out = append(out, &k.Key)
		}
		return out
	}
	sum := pedersen.BlindSum(blinds(positive), blinds(negative))
	ctx.SecKey.Key.Set(sum)
	sum.Zero()

	logger.WithFields(logger.Fields{
		"slate":  s.ID,
		"inputs": len(coins),
		"change": len(ctx.ChangeOutputs),
		"fee":    fee,
	}).Debug("built send half")
	return ctx, nil
}

// splitChange spreads change across count outputs, remainder on the
// last. Dust targets collapse to a single output.
func splitChange(change uint64, count int) []uint64 {
	if count <= 1 || change < uint64(count) {
		return []uint64{change}
	}
	part := change / uint64(count)
	values := make([]uint64, count)
	for i := 0; i < count-1; i++ {
		values[i] = part
	}
	values[count-1] = change - part*uint64(count-1)
	return values
}

// BuildRecipientOutput derives a fresh key for the slate's amount, adds
// the output to the slate and atomically records the unconfirmed output
// together with its TxReceived log entry. The returned context carries
// the output's blinding factor for round 1.
func BuildRecipientOutput(w wallet.WalletBackend, s *slate.Slate,
	parent keychain.Identifier, participantID uint64) (*wallet.Context, error) {

	nChild, err := w.NextChild(parent)
	if err != nil {
		return nil, err
	}
	keyID := parent.Child(nChild)

	kc := w.Keychain()
	sk, err := kc.DeriveKey(keyID)
	if err != nil {
		return nil, err
	}
	commit, err := pedersen.Commit(s.Amount, &sk.Key)
	if err != nil {
		sk.Zero()
		return nil, err
	}
	s.Tx.AddOutput(core.Output{Features: core.PlainOutput, Commit: commit})

	b, err := w.Batch()
	if err != nil {
		sk.Zero()
		return nil, err
	}
	logID, err := b.NextTxLogID(parent)
	if err != nil {
		b.Rollback()
		sk.Zero()
		return nil, err
	}
	slateID := s.ID
	entry := &wallet.TxLogEntry{
		ParentKeyID:    parent,
		ID:             logID,
		TxSlateID:      &slateID,
		TxType:         wallet.TxReceived,
		CreationTs:     time.Now().UTC(),
		NumOutputs:     1,
		AmountCredited: s.Amount,
		Messages:       s.ParticipantMessages(),
	}
	if err := b.SaveTxLogEntry(entry); err != nil {
		b.Rollback()
		sk.Zero()
		return nil, err
	}
	if err := b.SaveOutput(&wallet.OutputData{
		RootKeyID: parent,
		KeyID:     keyID,
		NChild:    nChild,
		Commit:    commit,
		Value:     s.Amount,
		Status:    wallet.Unconfirmed,
		Height:    s.Height,
		TxLogID:   &logID,
	}); err != nil {
		b.Rollback()
		sk.Zero()
		return nil, err
	}
	if err := b.Commit(); err != nil {
		sk.Zero()
		return nil, err
	}

	ctx := &wallet.Context{
		ParentKeyID:   parent,
		ParticipantID: participantID,
		Amount:        s.Amount,
	}
	ctx.AddOutputCommit(commit)
	ctx.SecKey.Key.Set(&sk.Key)
	sk.Zero()
	return ctx, nil
}
