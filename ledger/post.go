package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/google/uuid"
	logger "github.com/sirupsen/logrus"

	"github.com/mimblenet/mwwallet/keychain"
	"github.com/mimblenet/mwwallet/wallet"
)

// PostTx broadcasts the stored transaction for a slate. On failure it
// reposts the wallet's last unconfirmed transaction once (a stuck
// predecessor is the usual cause), retries the current post once, and
// if that also fails cancels the current attempt and surfaces the
// error. No further automatic retries.
func PostTx(w wallet.WalletBackend, parent keychain.Identifier,
	slateID uuid.UUID, fluff bool) error {

	tx, err := w.GetStoredTx(slateID.String())
	if err != nil {
		if errors.Is(err, wallet.ErrNotFound) {
			return fmt.Errorf("%w: slate %s", ErrNoStoredTx, slateID)
		}
		return err
	}

	node := w.ChainClient()
	if err := node.PostTx(tx, fluff); err != nil {
		logger.WithError(err).WithField("slate", slateID).
			Warn("post failed, reposting last unconfirmed tx")
		if rerr := repostLastUnconfirmed(w, parent, slateID, fluff); rerr != nil {
			logger.WithError(rerr).Debug("no prior unconfirmed tx reposted")
		}
		if err := node.PostTx(tx, fluff); err != nil {
			if cerr := CancelTx(w, parent, nil, &slateID); cerr != nil {
				logger.WithError(cerr).WithField("slate", slateID).
					Error("cancel after failed post")
			}
			return fmt.Errorf("posting slate %s: %w", slateID, err)
		}
	}

	return markPosted(w, parent, slateID)
}

// repostLastUnconfirmed rebroadcasts the most recent posted but still
// unconfirmed transaction other than the one currently being sent.
func repostLastUnconfirmed(w wallet.WalletBackend, parent keychain.Identifier,
	exclude uuid.UUID, fluff bool) error {

	entries, err := w.TxLogEntries()
	if err != nil {
		return err
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].CreationTs.After(entries[j].CreationTs)
	})
	for i := range entries {
		e := &entries[i]
		if e.ParentKeyID != parent || e.Confirmed || e.Cancelled() ||
			!e.Posted || e.StoredTx == nil {
			continue
		}
		if e.TxSlateID != nil && *e.TxSlateID == exclude {
			continue
		}
		tx, err := w.GetStoredTx(*e.StoredTx)
		if err != nil {
			return err
		}
		return w.ChainClient().PostTx(tx, fluff)
	}
	return ErrNoStoredTx
}

// Repost rebroadcasts a stored, unconfirmed, non-cancelled transaction
// identified by log id or slate id. With dumpFile set the body is
// written to disk instead of broadcast.
func Repost(w wallet.WalletBackend, parent keychain.Identifier,
	txID *uint32, slateID *uuid.UUID, dumpFile string, fluff bool) error {

	entries, err := w.TxLogEntries()
	if err != nil {
		return err
	}
	entry, err := findEntry(entries, parent, txID, slateID)
	if err != nil {
		return err
	}
	if entry.Confirmed {
		return ErrAlreadyConfirmed
	}
	if entry.Cancelled() {
		return fmt.Errorf("%w: entry %d cancelled", ErrTransactionDoesntExist, entry.ID)
	}
	if entry.StoredTx == nil {
		return ErrNoStoredTx
	}
	tx, err := w.GetStoredTx(*entry.StoredTx)
	if err != nil {
		if errors.Is(err, wallet.ErrNotFound) {
			return ErrNoStoredTx
		}
		return err
	}

	if dumpFile != "" {
		data, err := json.MarshalIndent(tx, "", "  ")
		if err != nil {
			return err
		}
		return os.WriteFile(dumpFile, data, 0o600)
	}

	if err := w.ChainClient().PostTx(tx, fluff); err != nil {
		return err
	}
	if entry.TxSlateID == nil {
		return nil
	}
	return markPosted(w, parent, *entry.TxSlateID)
}

// markPosted flips the posted flag on every entry sharing the slate id.
func markPosted(w wallet.WalletBackend, parent keychain.Identifier, slateID uuid.UUID) error {
	entries, err := w.TxLogEntries()
	if err != nil {
		return err
	}
	b, err := w.Batch()
	if err != nil {
		return err
	}
	for i := range entries {
		e := &entries[i]
		if e.ParentKeyID != parent || e.TxSlateID == nil ||
			*e.TxSlateID != slateID || e.Cancelled() {
			continue
		}
		e.Posted = true
		if err := b.SaveTxLogEntry(e); err != nil {
			b.Rollback()
			return err
		}
	}
	return b.Commit()
}
