package ledger

import (
	"errors"
	"time"

	logger "github.com/sirupsen/logrus"

	"github.com/mimblenet/mwwallet/keychain"
	"github.com/mimblenet/mwwallet/pedersen"
	"github.com/mimblenet/mwwallet/wallet"
)

// RefreshOutputs reconciles the local output view with the chain and
// confirms log entries whose kernel has appeared on chain. Returns the
// chain tip the reconciliation ran against.
func RefreshOutputs(w wallet.WalletBackend, parent keychain.Identifier) (uint64, error) {
	node := w.ChainClient()
	tip, err := node.GetChainHeight()
	if err != nil {
		return 0, err
	}

	outputs, err := w.Outputs()
	if err != nil {
		return 0, err
	}
	mine := outputs[:0]
	commits := []pedersen.Commitment{}
	for _, o := range outputs {
		if o.RootKeyID == parent {
			mine = append(mine, o)
			commits = append(commits, o.Commit)
		}
	}
	onChain, err := node.GetOutputsByCommits(commits)
	if err != nil {
		return 0, err
	}

	b, err := w.Batch()
	if err != nil {
		return 0, err
	}
	for i := range mine {
		o := &mine[i]
		prev := o.Status
		if height, ok := onChain[o.Commit]; ok {
			o.Height = height
			switch o.Status {
			case wallet.Unconfirmed, wallet.Spent, wallet.Cancelled:
				o.Status = wallet.Unspent
			}
		} else {
			switch o.Status {
			case wallet.Unspent, wallet.Locked:
				o.Status = wallet.Spent
			}
		}
		if o.Status == prev {
			continue
		}
		if err := b.SaveOutput(o); err != nil {
			b.Rollback()
			return 0, err
		}
		logger.WithFields(logger.Fields{
			"commit": o.Commit,
			"from":   prev,
			"to":     o.Status,
		}).Debug("output status refreshed")
	}

	if err := confirmEntries(w, b, parent); err != nil {
		b.Rollback()
		return 0, err
	}
	if err := b.Commit(); err != nil {
		return 0, err
	}
	return tip, nil
}

// confirmEntries marks entries confirmed when their kernel excess is
// found on chain. Confirmation only ever comes from chain evidence.
func confirmEntries(w wallet.WalletBackend, b wallet.Batch, parent keychain.Identifier) error {
	entries, err := w.TxLogEntries()
	if err != nil {
		return err
	}
	node := w.ChainClient()

	for i := range entries {
		e := &entries[i]
		if e.ParentKeyID != parent || e.Confirmed || e.Cancelled() ||
			e.KernelExcess == nil {
			continue
		}
		excess, err := pedersen.FromHex(*e.KernelExcess)
		if err != nil {
			return err
		}
		kernel, err := node.GetKernel(excess, 0, 0)
		if err != nil {
			if errors.Is(err, wallet.ErrNotFound) {
				continue
			}
			return err
		}

		now := time.Now().UTC()
		e.Confirmed = true
		e.ConfirmationTs = &now
		if err := b.SaveTxLogEntry(e); err != nil {
			return err
		}

		if e.TxSlateID != nil {
			payments, err := w.Payments(*e.TxSlateID)
			if err != nil {
				return err
			}
			for j := range payments {
				p := &payments[j]
				p.Status = wallet.Confirmed
				p.Height = kernel.Height
				if err := b.SavePayment(p); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// Summary aggregates spendable, locked and awaiting amounts across the
// account's outputs at a confirmation floor.
func Summary(w wallet.WalletBackend, parent keychain.Identifier,
	minConfirmations uint64) (*wallet.SummaryInfo, error) {

	tip, err := RefreshOutputs(w, parent)
	if err != nil {
		return nil, err
	}
	outputs, err := w.Outputs()
	if err != nil {
		return nil, err
	}

	info := &wallet.SummaryInfo{
		LastConfirmedHeight:  tip,
		MinimumConfirmations: minConfirmations,
	}
	for i := range outputs {
		o := &outputs[i]
		if o.RootKeyID != parent {
			continue
		}
		switch o.Status {
		case wallet.Unconfirmed:
			info.Total += o.Value
			info.AmountAwaitingConfirmation += o.Value
		case wallet.Unspent:
			info.Total += o.Value
			if o.EligibleToSpend(tip, minConfirmations) {
				info.AmountCurrentlySpendable += o.Value
			} else {
				info.AmountImmature += o.Value
			}
		case wallet.Locked:
			info.Total += o.Value
			info.AmountLocked += o.Value
		}
	}
	return info, nil
}
