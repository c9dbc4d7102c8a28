package owner

import (
	"sync"

	logger "github.com/sirupsen/logrus"

	"github.com/mimblenet/mwwallet/keychain"
	"github.com/mimblenet/mwwallet/slate"
	"github.com/mimblenet/mwwallet/txbuild"
	"github.com/mimblenet/mwwallet/wallet"
)

// ForeignAPI is the surface exposed to counterparties. It satisfies
// adapter.ForeignReceiver so any listener can serve it.
type ForeignAPI struct {
	mu      sync.Mutex
	w       wallet.WalletBackend
	parent  keychain.Identifier
	message *string
}

func NewForeignAPI(w wallet.WalletBackend, message *string) *ForeignAPI {
	return &ForeignAPI{
		w:       w,
		parent:  keychain.AccountID(0),
		message: message,
	}
}

// SetActiveAccount switches which account incoming funds credit.
func (f *ForeignAPI) SetActiveAccount(account uint32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.parent = keychain.AccountID(account)
}

// ReceiveTx extends an incoming slate with an output for the slate
// amount and the receiver's round data. The signing context is
// discarded as soon as the partial signature is produced.
func (f *ForeignAPI) ReceiveTx(s *slate.Slate) (*slate.Slate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := txbuild.VerifySlateMessages(s); err != nil {
		return nil, err
	}
	ctx, err := txbuild.AddOutputToSlate(f.w, s, f.parent, 1, false, f.message)
	if err != nil {
		return nil, err
	}
	ctx.Zero()

	logger.WithFields(logger.Fields{
		"slate":  s.ID,
		"amount": s.Amount,
	}).Info("incoming transaction received")
	return s, nil
}
