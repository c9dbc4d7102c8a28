package owner

import (
	"fmt"

	logger "github.com/sirupsen/logrus"

	"github.com/mimblenet/mwwallet/ledger"
	"github.com/mimblenet/mwwallet/selection"
	"github.com/mimblenet/mwwallet/slate"
	"github.com/mimblenet/mwwallet/txbuild"
)

// IssueInvoiceArgs parameterizes an invoice negotiation.
type IssueInvoiceArgs struct {
	Amount          uint64
	Message         *string
	NumParticipants uint
}

func (a *IssueInvoiceArgs) normalize() {
	if a.NumParticipants < 2 {
		a.NumParticipants = 2
	}
}

// IssueInvoiceTx starts an invoice negotiation from the payee side:
// the issuer contributes its output and round 1, then hands the slate
// to the payer. The negotiation context is parked in memory until
// FinalizeInvoiceTx picks it up.
func (a *OwnerAPI) IssueInvoiceTx(args IssueInvoiceArgs) (*slate.Slate, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	args.normalize()

	s, err := txbuild.NewTxSlate(a.w, args.Amount, args.NumParticipants, a.gen)
	if err != nil {
		return nil, err
	}
	ctx, err := txbuild.AddOutputToSlate(a.w, s, a.parent, 0, true, args.Message)
	if err != nil {
		return nil, err
	}
	a.contexts[s.ID] = ctx
	logger.WithFields(logger.Fields{
		"slate":  s.ID,
		"amount": args.Amount,
	}).Info("invoice negotiation started")
	return s, nil
}

// ProcessInvoice is the payer side of an invoice negotiation: selects
// inputs for the issued amount, contributes both rounds and locks the
// spent outputs. The slate goes back to the issuer for finalization,
// so no context is retained.
func (a *OwnerAPI) ProcessInvoice(s *slate.Slate, message *string,
	args selection.SendArgs) (*slate.Slate, error) {

	a.mu.Lock()
	defer a.mu.Unlock()
	if err := txbuild.VerifySlateMessages(s); err != nil {
		return nil, fmt.Errorf("verifying issuer messages: %w", err)
	}
	ctx, err := txbuild.AddInputsToSlate(a.w, s, a.parent, 1, false, message, args)
	if err != nil {
		return nil, err
	}
	defer ctx.Zero()
	if err := ledger.LockOutputs(a.w, ctx, s); err != nil {
		return nil, err
	}
	logger.WithFields(logger.Fields{
		"slate":  s.ID,
		"amount": s.Amount,
		"fee":    s.Fee,
	}).Info("invoice paid")
	return s, nil
}

// FinalizeInvoiceTx completes an issued invoice with the payer's round
// data and stores the finalized transaction body on the issuer's
// received entry.
func (a *OwnerAPI) FinalizeInvoiceTx(s *slate.Slate) (*slate.Slate, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	ctx, ok := a.contexts[s.ID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSlate, s.ID)
	}
	if err := txbuild.CompleteInvoiceTx(s, ctx); err != nil {
		return nil, err
	}
	if err := txbuild.UpdateStoredTx(a.w, a.parent, s, true); err != nil {
		return nil, err
	}
	if err := txbuild.UpdateMessage(a.w, a.parent, s, nil); err != nil {
		return nil, err
	}
	ctx.Zero()
	delete(a.contexts, s.ID)
	return s, nil
}
