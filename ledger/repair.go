package ledger

import (
	logger "github.com/sirupsen/logrus"

	"github.com/mimblenet/mwwallet/keychain"
	"github.com/mimblenet/mwwallet/pedersen"
	"github.com/mimblenet/mwwallet/wallet"
)

// RepairReport summarizes the discrepancies CheckRepair found.
type RepairReport struct {
	// UnknownOutputs are local unspent or confirmed outputs the chain
	// does not recognize. They are reported, never silently dropped.
	UnknownOutputs []pedersen.Commitment
	// UnlockedOutputs counts locked outputs returned to unspent
	// because no chain transaction consumed them.
	UnlockedOutputs int
	// DeletedUnconfirmed counts unconfirmed outputs removed on request.
	DeletedUnconfirmed int
}

// CheckRepair reconciles the account's outputs against chain state.
// Unconfirmed outputs (and their pending log entries) are deleted only
// when deleteUnconfirmed is set.
func CheckRepair(w wallet.WalletBackend, parent keychain.Identifier,
	deleteUnconfirmed bool) (*RepairReport, error) {

	node := w.ChainClient()
	outputs, err := w.Outputs()
	if err != nil {
		return nil, err
	}
	mine := []wallet.OutputData{}
	commits := []pedersen.Commitment{}
	for _, o := range outputs {
		if o.RootKeyID == parent {
			mine = append(mine, o)
			commits = append(commits, o.Commit)
		}
	}
	onChain, err := node.GetOutputsByCommits(commits)
	if err != nil {
		return nil, err
	}

	report := &RepairReport{}
	b, err := w.Batch()
	if err != nil {
		return nil, err
	}
	cancelledEntries := map[uint32]bool{}
	for i := range mine {
		o := &mine[i]
		_, known := onChain[o.Commit]
		switch o.Status {
		case wallet.Unspent, wallet.Confirmed:
			if !known {
				report.UnknownOutputs = append(report.UnknownOutputs, o.Commit)
			}
		case wallet.Locked:
			if !known {
				report.UnknownOutputs = append(report.UnknownOutputs, o.Commit)
				break
			}
			// still on chain, so nothing spent it; release the lock
			o.Status = wallet.Unspent
			o.TxLogID = nil
			if err := b.SaveOutput(o); err != nil {
				b.Rollback()
				return nil, err
			}
			report.UnlockedOutputs++
		case wallet.Unconfirmed:
			if !deleteUnconfirmed {
				continue
			}
			if err := b.DeleteOutput(o.Commit); err != nil {
				b.Rollback()
				return nil, err
			}
			report.DeletedUnconfirmed++
			if o.TxLogID != nil {
				cancelledEntries[*o.TxLogID] = true
			}
		}
	}

	if len(cancelledEntries) > 0 {
		entries, err := w.TxLogEntries()
		if err != nil {
			b.Rollback()
			return nil, err
		}
		for i := range entries {
			e := &entries[i]
			if e.ParentKeyID != parent || !cancelledEntries[e.ID] ||
				e.Confirmed || e.Cancelled() {
				continue
			}
			if e.TxType == wallet.TxSent {
				e.TxType = wallet.TxSentCancelled
			} else {
				e.TxType = wallet.TxReceivedCancelled
			}
			if err := b.SaveTxLogEntry(e); err != nil {
				b.Rollback()
				return nil, err
			}
		}
	}
	if err := b.Commit(); err != nil {
		return nil, err
	}

	logger.WithFields(logger.Fields{
		"unknown":  len(report.UnknownOutputs),
		"unlocked": report.UnlockedOutputs,
		"deleted":  report.DeletedUnconfirmed,
	}).Info("check repair finished")
	return report, nil
}
