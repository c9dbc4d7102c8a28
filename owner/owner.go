// Package owner exposes the wallet owner surface: balance queries,
// send negotiation, lifecycle management and payment proofs. All
// mutating entry points serialize on a single mutex so concurrent
// callers cannot interleave partial negotiation state.
package owner

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	logger "github.com/sirupsen/logrus"

	"github.com/mimblenet/mwwallet/keychain"
	"github.com/mimblenet/mwwallet/ledger"
	"github.com/mimblenet/mwwallet/proof"
	"github.com/mimblenet/mwwallet/selection"
	"github.com/mimblenet/mwwallet/slate"
	"github.com/mimblenet/mwwallet/txbuild"
	"github.com/mimblenet/mwwallet/wallet"
)

var (
	ErrUnknownSlate = errors.New("no negotiation in progress for slate")
)

// InitTxArgs parameterizes a send negotiation.
type InitTxArgs struct {
	Amount          uint64
	Message         *string
	NumParticipants uint
	SendArgs        selection.SendArgs
}

func (a *InitTxArgs) normalize() {
	if a.NumParticipants < 2 {
		a.NumParticipants = 2
	}
}

// OwnerAPI is the owning wallet's control surface. Negotiation
// contexts live only in memory, keyed by slate id, and are zeroed and
// dropped when the negotiation finishes or is cancelled. They are
// never persisted.
type OwnerAPI struct {
	mu       sync.Mutex
	w        wallet.WalletBackend
	parent   keychain.Identifier
	gen      slate.IDGenerator
	contexts map[uuid.UUID]*wallet.Context
}

func NewOwnerAPI(w wallet.WalletBackend) *OwnerAPI {
	return &OwnerAPI{
		w:        w,
		parent:   keychain.AccountID(0),
		contexts: make(map[uuid.UUID]*wallet.Context),
	}
}

// SetActiveAccount switches subsequent operations to another account
// derivation branch.
func (a *OwnerAPI) SetActiveAccount(account uint32) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.parent = keychain.AccountID(account)
}

// SetIDGenerator overrides slate id generation, used by tests for
// reproducible ids.
func (a *OwnerAPI) SetIDGenerator(gen slate.IDGenerator) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.gen = gen
}

func (a *OwnerAPI) NodeHeight() (uint64, error) {
	height, err := a.w.ChainClient().GetChainHeight()
	if err != nil {
		return 0, fmt.Errorf("%w: %s", wallet.ErrNodeUnavailable, err.Error())
	}
	return height, nil
}

func (a *OwnerAPI) RetrieveSummaryInfo(refresh bool, minConfirmations uint64) (*wallet.SummaryInfo, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if refresh {
		if _, err := ledger.RefreshOutputs(a.w, a.parent); err != nil {
			return nil, err
		}
	}
	return ledger.Summary(a.w, a.parent, minConfirmations)
}

func (a *OwnerAPI) RetrieveOutputs(includeSpent, refresh bool) ([]wallet.OutputData, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return txbuild.RetrieveOutputs(a.w, a.parent, includeSpent, refresh)
}

// FilterOutputs lists outputs narrowed by status and a minimum value.
// A nil status matches every status, spent and cancelled included.
func (a *OwnerAPI) FilterOutputs(status *wallet.OutputStatus, minValue uint64, refresh bool) ([]wallet.OutputData, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	outputs, err := txbuild.RetrieveOutputs(a.w, a.parent, true, refresh)
	if err != nil {
		return nil, err
	}
	out := []wallet.OutputData{}
	for _, o := range outputs {
		if status != nil && o.Status != *status {
			continue
		}
		if o.Value < minValue {
			continue
		}
		out = append(out, o)
	}
	return out, nil
}

func (a *OwnerAPI) RetrieveTxs(txID *uint32, slateID *uuid.UUID, refresh bool) ([]wallet.TxLogEntry, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return txbuild.RetrieveTxs(a.w, a.parent, txID, slateID, refresh)
}

// RetrievePayments lists payment records, optionally narrowed to one
// slate.
func (a *OwnerAPI) RetrievePayments(slateID *uuid.UUID) ([]wallet.PaymentData, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if slateID != nil {
		return a.w.Payments(*slateID)
	}
	return a.w.PaymentEntries()
}

// EstimateSendTx reports the total amount that would be locked and the
// fee a send with the given arguments would pay, without mutating the
// wallet.
func (a *OwnerAPI) EstimateSendTx(args selection.SendArgs) (total uint64, fee uint64, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return txbuild.EstimateSendTx(a.w, a.parent, args)
}

// InitSendTx starts a send negotiation: selects inputs, builds the
// sender half of the slate and parks the negotiation context in
// memory until TxLockOutputs and FinalizeTx pick it up.
func (a *OwnerAPI) InitSendTx(args InitTxArgs) (*slate.Slate, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	args.normalize()

	s, err := txbuild.NewTxSlate(a.w, args.Amount, args.NumParticipants, a.gen)
	if err != nil {
		return nil, err
	}
	ctx, err := txbuild.AddInputsToSlate(a.w, s, a.parent, 0, true, args.Message, args.SendArgs)
	if err != nil {
		return nil, err
	}
	a.contexts[s.ID] = ctx
	logger.WithFields(logger.Fields{
		"slate":  s.ID,
		"amount": args.Amount,
		"fee":    s.Fee,
	}).Info("send negotiation started")
	return s, nil
}

// TxLockOutputs records the pending transaction and locks its inputs.
// Safe to call more than once for the same slate.
func (a *OwnerAPI) TxLockOutputs(s *slate.Slate) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	ctx, ok := a.contexts[s.ID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSlate, s.ID)
	}
	return ledger.LockOutputs(a.w, ctx, s)
}

// FinalizeTx completes the negotiation with the counterparty's round
// data, stores the finalized transaction body and disposes of the
// context.
func (a *OwnerAPI) FinalizeTx(s *slate.Slate) (*slate.Slate, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.finalizeTx(s, nil)
}

// finalizeTx carries the relay key path the slate travelled under, if
// any, onto the transaction log. Callers hold a.mu.
func (a *OwnerAPI) finalizeTx(s *slate.Slate, relayKeyPath *uint64) (*slate.Slate, error) {
	ctx, ok := a.contexts[s.ID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSlate, s.ID)
	}
	if err := txbuild.CompleteTx(a.w, s, ctx); err != nil {
		return nil, err
	}
	if err := txbuild.UpdateStoredTx(a.w, a.parent, s, false); err != nil {
		return nil, err
	}
	if err := txbuild.UpdateMessage(a.w, a.parent, s, relayKeyPath); err != nil {
		return nil, err
	}
	ctx.Zero()
	delete(a.contexts, s.ID)
	return s, nil
}

// CancelTx aborts a pending transaction and releases its inputs. Any
// in-memory negotiation context for the slate is discarded too.
func (a *OwnerAPI) CancelTx(txID *uint32, slateID *uuid.UUID) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := ledger.CancelTx(a.w, a.parent, txID, slateID); err != nil {
		return err
	}
	if slateID != nil {
		if ctx, ok := a.contexts[*slateID]; ok {
			ctx.Zero()
			delete(a.contexts, *slateID)
		}
	}
	return nil
}

func (a *OwnerAPI) PostTx(slateID uuid.UUID, fluff bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return ledger.PostTx(a.w, a.parent, slateID, fluff)
}

func (a *OwnerAPI) RepostTx(txID *uint32, slateID *uuid.UUID, dumpFile string, fluff bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return ledger.Repost(a.w, a.parent, txID, slateID, dumpFile, fluff)
}

func (a *OwnerAPI) VerifySlateMessages(s *slate.Slate) error {
	return txbuild.VerifySlateMessages(s)
}

func (a *OwnerAPI) CreateTxProof(slateID uuid.UUID) (*proof.TxProof, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return proof.Sign(a.w, a.parent, slateID)
}

func (a *OwnerAPI) VerifyTxProof(p *proof.TxProof) (bool, error) {
	return proof.Verify(a.w.ChainClient(), p)
}

func (a *OwnerAPI) ExportTxProof(slateID uuid.UUID, path string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	p, err := proof.Sign(a.w, a.parent, slateID)
	if err != nil {
		return err
	}
	return proof.Export(p, path)
}

func (a *OwnerAPI) CheckRepair(deleteUnconfirmed bool) (*ledger.RepairReport, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return ledger.CheckRepair(a.w, a.parent, deleteUnconfirmed)
}
