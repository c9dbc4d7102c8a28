// Package ledger is the output/transaction state machine: it locks
// outputs against log entries, reconciles local state with the chain,
// broadcasts finalized transactions and handles cancellation.
package ledger

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	logger "github.com/sirupsen/logrus"

	"github.com/mimblenet/mwwallet/keychain"
	"github.com/mimblenet/mwwallet/slate"
	"github.com/mimblenet/mwwallet/wallet"
)

var (
	ErrTransactionDoesntExist    = errors.New("transaction does not exist")
	ErrTransactionNotCancellable = errors.New("transaction not cancellable")
	ErrNoStoredTx                = errors.New("no stored transaction body")
	ErrAlreadyConfirmed          = errors.New("transaction already confirmed")
)

// LockOutputs marks every input the slate consumes as locked and binds
// them, together with the planned change outputs, to a new TxSent log
// entry. The whole write is one batch. Idempotent per slate id: a
// second call for the same slate is a no-op.
func LockOutputs(w wallet.WalletBackend, ctx *wallet.Context, s *slate.Slate) error {
	entries, err := w.TxLogEntries()
	if err != nil {
		return err
	}
	for i := range entries {
		e := &entries[i]
		if e.TxSlateID != nil && *e.TxSlateID == s.ID &&
			e.TxType == wallet.TxSent {
			return nil
		}
	}

	b, err := w.Batch()
	if err != nil {
		return err
	}
	logID, err := b.NextTxLogID(ctx.ParentKeyID)
	if err != nil {
		b.Rollback()
		return err
	}

	var debited uint64
	for _, commit := range ctx.InputCommits {
		o, err := w.GetOutput(commit)
		if err != nil {
			b.Rollback()
			return fmt.Errorf("locking input %s: %w", commit, err)
		}
		debited += o.Value
		o.Status = wallet.Locked
		o.TxLogID = &logID
		if err := b.SaveOutput(o); err != nil {
			b.Rollback()
			return err
		}
	}

	var credited uint64
	for _, change := range ctx.ChangeOutputs {
		credited += change.Value
		if err := b.SaveOutput(&wallet.OutputData{
			RootKeyID: ctx.ParentKeyID,
			KeyID:     change.KeyID,
			NChild:    change.NChild,
			Commit:    change.Commit,
			Value:     change.Value,
			Status:    wallet.Unconfirmed,
			Height:    s.Height,
			TxLogID:   &logID,
		}); err != nil {
			b.Rollback()
			return err
		}
	}

	slateID := s.ID
	fee := ctx.Fee
	entry := &wallet.TxLogEntry{
		ParentKeyID:    ctx.ParentKeyID,
		ID:             logID,
		TxSlateID:      &slateID,
		TxType:         wallet.TxSent,
		CreationTs:     time.Now().UTC(),
		NumInputs:      len(ctx.InputCommits),
		NumOutputs:     len(ctx.ChangeOutputs),
		AmountCredited: credited,
		AmountDebited:  debited,
		Fee:            &fee,
		Messages:       s.ParticipantMessages(),
	}
	if err := b.SaveTxLogEntry(entry); err != nil {
		b.Rollback()
		return err
	}
	if err := b.Commit(); err != nil {
		return err
	}

	logger.WithFields(logger.Fields{
		"slate":  s.ID,
		"entry":  logID,
		"inputs": len(ctx.InputCommits),
	}).Debug("locked slate inputs")
	return nil
}

// findEntry locates the unique log entry matching either a log id or a
// slate id. Zero or multiple matches violate the lookup contract.
func findEntry(entries []wallet.TxLogEntry, parent keychain.Identifier,
	txID *uint32, slateID *uuid.UUID) (*wallet.TxLogEntry, error) {

	var found *wallet.TxLogEntry
	for i := range entries {
		e := &entries[i]
		if e.ParentKeyID != parent {
			continue
		}
		match := (txID != nil && e.ID == *txID) ||
			(slateID != nil && e.TxSlateID != nil && *e.TxSlateID == *slateID)
		if !match {
			continue
		}
		if found != nil {
			return nil, fmt.Errorf("%w: ambiguous match", ErrTransactionDoesntExist)
		}
		found = e
	}
	if found == nil {
		return nil, ErrTransactionDoesntExist
	}
	return found, nil
}

// CancelTx cancels a pending transaction identified by log id or slate
// id. Confirmed or already-posted transactions cannot be cancelled.
// Locked inputs return to unspent, outputs created by the transaction
// are deleted and payment records for a send are removed.
func CancelTx(w wallet.WalletBackend, parent keychain.Identifier,
	txID *uint32, slateID *uuid.UUID) error {

	entries, err := w.TxLogEntries()
	if err != nil {
		return err
	}
	entry, err := findEntry(entries, parent, txID, slateID)
	if err != nil {
		return err
	}
	if entry.Confirmed || entry.Posted {
		return ErrTransactionNotCancellable
	}
	if entry.Cancelled() {
		return ErrTransactionNotCancellable
	}

	outputs, err := w.Outputs()
	if err != nil {
		return err
	}

	b, err := w.Batch()
	if err != nil {
		return err
	}
	for i := range outputs {
		o := &outputs[i]
		if o.TxLogID == nil || *o.TxLogID != entry.ID || o.RootKeyID != parent {
			continue
		}
		switch o.Status {
		case wallet.Locked:
			o.Status = wallet.Unspent
			if err := b.SaveOutput(o); err != nil {
				b.Rollback()
				return err
			}
		case wallet.Unconfirmed:
			if err := b.DeleteOutput(o.Commit); err != nil {
				b.Rollback()
				return err
			}
		}
	}

	if entry.TxType == wallet.TxSent {
		entry.TxType = wallet.TxSentCancelled
		if entry.TxSlateID != nil {
			if err := b.DeletePayments(*entry.TxSlateID); err != nil {
				b.Rollback()
				return err
			}
		}
	} else {
		entry.TxType = wallet.TxReceivedCancelled
	}
	if err := b.SaveTxLogEntry(entry); err != nil {
		b.Rollback()
		return err
	}
	return b.Commit()
}
