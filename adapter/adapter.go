// Package adapter carries slates between negotiating parties. Every
// transport satisfies one CommAdapter contract; callers pick a variant
// per destination address.
package adapter

import (
	"errors"

	"github.com/mimblenet/mwwallet/proof"
	"github.com/mimblenet/mwwallet/slate"
)

var (
	ErrSyncNotSupported  = errors.New("adapter cannot exchange synchronously")
	ErrAsyncNotSupported = errors.New("adapter cannot exchange asynchronously")
	ErrRelayTimeout      = errors.New("relay exchange timed out")
)

// ForeignReceiver is the wallet-side handler an incoming slate is
// dispatched to. It returns the slate extended with the local party's
// contribution.
type ForeignReceiver interface {
	ReceiveTx(s *slate.Slate) (*slate.Slate, error)
}

// RelayKeyed is implemented by adapters whose destination address is
// derived from a wallet key. The path is recorded on the sender's
// transaction log so a payment proof can be signed later.
type RelayKeyed interface {
	RelayKeyPath() *uint64
}

// CommAdapter exchanges a slate with a counterparty. Synchronous
// transports complete the round trip in one call and may carry back a
// payment proof; asynchronous ones hand the slate off and pick the
// reply up separately.
type CommAdapter interface {
	SupportsSync() bool

	// SendTxSync delivers the slate and returns the counterparty's
	// extended version, plus a payment proof when the transport
	// carries one.
	SendTxSync(dest string, s *slate.Slate) (*slate.Slate, *proof.TxProof, error)

	// SendTxAsync delivers the slate without waiting for the reply.
	SendTxAsync(dest string, s *slate.Slate) error

	// ReceiveTxAsync picks up a slate from the transport-specific
	// location (file path, mailbox, ...).
	ReceiveTxAsync(src string) (*slate.Slate, error)
}

// Loopback dispatches straight to a local receiver, used for self-send
// flows where sender and receiver share a wallet process.
type Loopback struct {
	Receiver ForeignReceiver
}

func (l *Loopback) SupportsSync() bool { return true }

func (l *Loopback) SendTxSync(dest string, s *slate.Slate) (*slate.Slate, *proof.TxProof, error) {
	out, err := l.Receiver.ReceiveTx(s)
	return out, nil, err
}

func (l *Loopback) SendTxAsync(dest string, s *slate.Slate) error {
	return ErrAsyncNotSupported
}

func (l *Loopback) ReceiveTxAsync(src string) (*slate.Slate, error) {
	return nil, ErrAsyncNotSupported
}
