// Package txbuild drives the slate lifecycle: creating a slate,
// contributing the sender or recipient half, and completing the
// transaction into the local ledger.
package txbuild

import (
	"errors"
	"fmt"

	logger "github.com/sirupsen/logrus"

	"github.com/mimblenet/mwwallet/aggsig"
	"github.com/mimblenet/mwwallet/core"
	"github.com/mimblenet/mwwallet/keychain"
	"github.com/mimblenet/mwwallet/ledger"
	"github.com/mimblenet/mwwallet/pedersen"
	"github.com/mimblenet/mwwallet/selection"
	"github.com/mimblenet/mwwallet/slate"
	"github.com/mimblenet/mwwallet/wallet"
)

// NewTxSlate creates a blank slate for the amount at the current chain
// height. The kernel is always plain: lock height stays zero. The block
// header version at the tip gates the slate's version info.
func NewTxSlate(w wallet.WalletBackend, amount uint64, numParticipants uint,
	gen slate.IDGenerator) (*slate.Slate, error) {

	height, err := w.ChainClient().GetChainHeight()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", wallet.ErrNodeUnavailable, err)
	}

	s := slate.Blank(numParticipants, gen)
	s.Amount = amount
	s.Height = height
	s.LockHeight = 0
	s.VersionInfo.BlockHeaderVersion = core.HeaderVersion(height)
	return s, nil
}

// EstimateSendTx runs coin selection without touching any state and
// reports the total locked were the send to proceed, plus the fee.
func EstimateSendTx(w wallet.WalletBackend, parent keychain.Identifier,
	args selection.SendArgs) (total uint64, fee uint64, err error) {

	tip, err := ledger.RefreshOutputs(w, parent)
	if err != nil {
		return 0, 0, err
	}
	outputs, err := w.Outputs()
	if err != nil {
		return 0, 0, err
	}
	coins, fee, err := selection.SelectCoinsAndFee(outputs, parent, tip, args)
	if err != nil {
		return 0, 0, err
	}
	for _, c := range coins {
		total += c.Value
	}
	return total, fee, nil
}

// AddInputsToSlate contributes the sender half: refreshes the output
// view (a stale view must not produce a double spend attempt), selects
// coins, adds inputs and change to the slate and performs round 1.
// A non-initiator also performs round 2 immediately, so one round trip
// suffices for the responder.
func AddInputsToSlate(w wallet.WalletBackend, s *slate.Slate,
	parent keychain.Identifier, participantID uint64, isInitiator bool,
	message *string, args selection.SendArgs) (*wallet.Context, error) {

	tip, err := ledger.RefreshOutputs(w, parent)
	if err != nil {
		return nil, err
	}

	ctx, err := selection.BuildSendTx(w, s, parent, participantID, tip, args)
	if err != nil {
		return nil, err
	}
	if err := fillRounds(s, ctx, isInitiator, message); err != nil {
		ctx.Zero()
		return nil, err
	}
	return ctx, nil
}

// AddOutputToSlate contributes the recipient half: one output sized to
// the slate amount, then round 1 (and round 2 when not initiator).
func AddOutputToSlate(w wallet.WalletBackend, s *slate.Slate,
	parent keychain.Identifier, participantID uint64, isInitiator bool,
	message *string) (*wallet.Context, error) {

	ctx, err := selection.BuildRecipientOutput(w, s, parent, participantID)
	if err != nil {
		return nil, err
	}
	if err := fillRounds(s, ctx, isInitiator, message); err != nil {
		ctx.Zero()
		return nil, err
	}
	return ctx, nil
}

func fillRounds(s *slate.Slate, ctx *wallet.Context, isInitiator bool,
	message *string) error {

	nonce, err := aggsig.NewSecretNonce()
	if err != nil {
		return err
	}
	ctx.SecNonce.Key.Set(nonce)
	nonce.Zero()

	if err := s.FillRound1(&ctx.SecKey, &ctx.SecNonce, ctx.ParticipantID, message); err != nil {
		return err
	}
	if isInitiator {
		return nil
	}
	return s.FillRound2(&ctx.SecKey, &ctx.SecNonce, ctx.ParticipantID)
}

// CompleteTx performs this party's round 2 if pending, finalizes the
// slate and records payment data for the outputs the counterparty
// added. Change commitments recorded in the context are excluded by
// set difference; what remains is the payment.
func CompleteTx(w wallet.WalletBackend, s *slate.Slate, ctx *wallet.Context) error {
	if err := s.FillRound2(&ctx.SecKey, &ctx.SecNonce, ctx.ParticipantID); err != nil &&
		!errors.Is(err, slate.ErrWrongState) {
		return err
	}
	if err := s.Finalize(); err != nil {
		return err
	}

	entries, err := w.TxLogEntries()
	if err != nil {
		return err
	}
	var txID *uint32
	for i := range entries {
		e := &entries[i]
		if e.TxSlateID != nil && *e.TxSlateID == s.ID &&
			e.TxType == wallet.TxSent && !e.Cancelled() {
			id := e.ID
			txID = &id
			break
		}
	}

	change := map[pedersen.Commitment]bool{}
	for _, c := range ctx.OutputCommits {
		change[c] = true
	}
	payments := []pedersen.Commitment{}
	for _, out := range s.Tx.Body.Outputs {
		if !change[out.Commit] {
			payments = append(payments, out.Commit)
		}
	}

	switch len(payments) {
	case 0:
		// possible for a self-send where every output is our change
		logger.WithField("slate", s.ID).Warn("no payment output identified")
		return nil
	case 1:
	default:
		// per-output amounts are unknowable for a multi-output
		// payment; 0 marks the unknown value
		logger.WithFields(logger.Fields{
			"slate":   s.ID,
			"outputs": len(payments),
		}).Warn("multiple payment outputs, recording unknown values")
	}

	b, err := w.Batch()
	if err != nil {
		return err
	}
	for _, commit := range payments {
		value := uint64(0)
		if len(payments) == 1 {
			value = s.Amount
		}
		if err := b.SavePayment(&wallet.PaymentData{
			Commit:  commit,
			Value:   value,
			Status:  wallet.Unconfirmed,
			Height:  s.Height,
			SlateID: s.ID,
			TxID:    txID,
		}); err != nil {
			b.Rollback()
			return err
		}
	}
	return b.Commit()
}

// CompleteInvoiceTx performs the issuer's pending round 2 and finalizes
// the slate. Unlike CompleteTx it records no payment data: the issuer
// is the payee, and its own output was already saved at issue time.
func CompleteInvoiceTx(s *slate.Slate, ctx *wallet.Context) error {
	if err := s.FillRound2(&ctx.SecKey, &ctx.SecNonce, ctx.ParticipantID); err != nil &&
		!errors.Is(err, slate.ErrWrongState) {
		return err
	}
	return s.Finalize()
}

// VerifySlateMessages checks every signed participant message on the
// slate against its claimed public key.
func VerifySlateMessages(s *slate.Slate) error {
	return s.VerifyMessages()
}
