package txbuild

import (
	"github.com/google/uuid"

	"github.com/mimblenet/mwwallet/keychain"
	"github.com/mimblenet/mwwallet/ledger"
	"github.com/mimblenet/mwwallet/slate"
	"github.com/mimblenet/mwwallet/wallet"
)

// UpdateStoredTx persists the finalized transaction body keyed by the
// slate id and records the key on the matching log entry. Among the
// entries sharing the slate id, the sent entry wins unless the
// negotiation was an invoice, where the received entry holds the body.
func UpdateStoredTx(w wallet.WalletBackend, parent keychain.Identifier,
	s *slate.Slate, invoiced bool) error {

	entries, err := w.TxLogEntries()
	if err != nil {
		return err
	}

	want := wallet.TxSent
	if invoiced {
		want = wallet.TxReceived
	}
	var entry *wallet.TxLogEntry
	for i := range entries {
		e := &entries[i]
		if e.ParentKeyID != parent || e.TxSlateID == nil ||
			*e.TxSlateID != s.ID || e.Cancelled() {
			continue
		}
		if e.TxType == want {
			entry = e
			break
		}
		if entry == nil {
			entry = e
		}
	}
	if entry == nil {
		return ledger.ErrTransactionDoesntExist
	}

	key := s.ID.String()
	if err := w.StoreTx(key, s.Tx); err != nil {
		return err
	}

	entry.StoredTx = &key
	b, err := w.Batch()
	if err != nil {
		return err
	}
	if err := b.SaveTxLogEntry(entry); err != nil {
		b.Rollback()
		return err
	}
	return b.Commit()
}

// UpdateMessage writes the slate's participant messages, the kernel
// excess and the relay key path used for the send onto every log entry
// sharing the slate id.
func UpdateMessage(w wallet.WalletBackend, parent keychain.Identifier,
	s *slate.Slate, relayKeyPath *uint64) error {

	entries, err := w.TxLogEntries()
	if err != nil {
		return err
	}

	var excess *string
	if len(s.Tx.Body.Kernels) > 0 {
		e := s.Tx.Body.Kernels[0].Excess.String()
		excess = &e
	}
	messages := s.ParticipantMessages()

	b, err := w.Batch()
	if err != nil {
		return err
	}
	updated := 0
	for i := range entries {
		e := &entries[i]
		if e.ParentKeyID != parent || e.TxSlateID == nil || *e.TxSlateID != s.ID {
			continue
		}
		e.Messages = messages
		e.KernelExcess = excess
		if relayKeyPath != nil {
			path := *relayKeyPath
			e.RelayKeyPath = &path
		}
		if err := b.SaveTxLogEntry(e); err != nil {
			b.Rollback()
			return err
		}
		updated++
	}
	if updated == 0 {
		b.Rollback()
		return ledger.ErrTransactionDoesntExist
	}
	return b.Commit()
}

// RetrieveTxs lists the account's log entries, refreshing against the
// chain first when requested. Filters by log id or slate id when set.
func RetrieveTxs(w wallet.WalletBackend, parent keychain.Identifier,
	txID *uint32, slateID *uuid.UUID, refresh bool) ([]wallet.TxLogEntry, error) {

	if refresh {
		if _, err := ledger.RefreshOutputs(w, parent); err != nil {
			return nil, err
		}
	}
	entries, err := w.TxLogEntries()
	if err != nil {
		return nil, err
	}
	out := []wallet.TxLogEntry{}
	for _, e := range entries {
		if e.ParentKeyID != parent {
			continue
		}
		if txID != nil && e.ID != *txID {
			continue
		}
		if slateID != nil && (e.TxSlateID == nil || *e.TxSlateID != *slateID) {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// RetrieveOutputs lists the account's outputs, optionally including
// spent ones, refreshing against the chain first when requested.
func RetrieveOutputs(w wallet.WalletBackend, parent keychain.Identifier,
	includeSpent, refresh bool) ([]wallet.OutputData, error) {

	if refresh {
		if _, err := ledger.RefreshOutputs(w, parent); err != nil {
			return nil, err
		}
	}
	outputs, err := w.Outputs()
	if err != nil {
		return nil, err
	}
	out := []wallet.OutputData{}
	for _, o := range outputs {
		if o.RootKeyID != parent {
			continue
		}
		if !includeSpent && (o.Status == wallet.Spent || o.Status == wallet.Cancelled) {
			continue
		}
		out = append(out, o)
	}
	return out, nil
}
