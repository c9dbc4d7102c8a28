package owner

import (
	"errors"
	"fmt"

	logger "github.com/sirupsen/logrus"

	"github.com/mimblenet/mwwallet/adapter"
	"github.com/mimblenet/mwwallet/ledger"
	"github.com/mimblenet/mwwallet/slate"
)

// SendTx drives a full synchronous send through a communication
// adapter: initiate, exchange with the counterparty, lock inputs and
// finalize. On any failure after initiation the pending transaction
// is cancelled so no inputs stay locked.
func (a *OwnerAPI) SendTx(args InitTxArgs, ad adapter.CommAdapter, dest string) (*slate.Slate, error) {
	if !ad.SupportsSync() {
		return nil, adapter.ErrSyncNotSupported
	}

	s, err := a.InitSendTx(args)
	if err != nil {
		return nil, err
	}

	out, _, err := ad.SendTxSync(dest, s)
	if err != nil {
		a.abandon(s)
		return nil, fmt.Errorf("exchanging slate: %w", err)
	}
	if err := a.VerifySlateMessages(out); err != nil {
		a.abandon(s)
		return nil, fmt.Errorf("verifying counterparty messages: %w", err)
	}
	if err := a.TxLockOutputs(out); err != nil {
		a.abandon(s)
		return nil, err
	}

	// Transports addressed by a wallet-derived relay key leave the key
	// path on the transaction log, which is what makes the payment
	// proof signable afterwards.
	var relayKeyPath *uint64
	if rk, ok := ad.(adapter.RelayKeyed); ok {
		relayKeyPath = rk.RelayKeyPath()
	}

	a.mu.Lock()
	final, err := a.finalizeTx(out, relayKeyPath)
	a.mu.Unlock()
	if err != nil {
		a.abandon(s)
		return nil, err
	}
	return final, nil
}

// abandon discards the negotiation context and, when inputs were
// already locked, cancels the pending transaction.
func (a *OwnerAPI) abandon(s *slate.Slate) {
	err := a.CancelTx(nil, &s.ID)
	if err != nil && !errors.Is(err, ledger.ErrTransactionDoesntExist) {
		logger.WithField("slate", s.ID).WithError(err).Warn("could not cancel failed send")
	}
	a.mu.Lock()
	if ctx, ok := a.contexts[s.ID]; ok {
		ctx.Zero()
		delete(a.contexts, s.ID)
	}
	a.mu.Unlock()
}
