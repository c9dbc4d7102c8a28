package wallet

import (
	"errors"

	"github.com/google/uuid"

	"github.com/mimblenet/mwwallet/core"
	"github.com/mimblenet/mwwallet/keychain"
	"github.com/mimblenet/mwwallet/pedersen"
)

var (
	// ErrNodeUnavailable wraps chain query/broadcast failures. The
	// caller may retry manually; nothing in the wallet retries beyond
	// the single automatic repost PostTx performs.
	ErrNodeUnavailable = errors.New("node unavailable")

	ErrNotFound = errors.New("record not found")
)

// KernelInfo is a chain-confirmed kernel.
type KernelInfo struct {
	Excess pedersen.Commitment
	Height uint64
}

// ChainClient is the wallet's view of the chain node.
type ChainClient interface {
	// GetChainHeight returns the current tip height.
	GetChainHeight() (uint64, error)

	// PostTx broadcasts a finalized transaction. fluff requests
	// immediate propagation instead of stem-phase relaying.
	PostTx(tx *core.Transaction, fluff bool) error

	// GetOutputsByCommits looks up which of the given commitments are
	// currently unspent on chain, returning their heights.
	GetOutputsByCommits(commits []pedersen.Commitment) (map[pedersen.Commitment]uint64, error)

	// GetKernel looks up a kernel by excess within a height range.
	// Returns ErrNotFound when absent.
	GetKernel(excess pedersen.Commitment, minHeight, maxHeight uint64) (*KernelInfo, error)
}

// WalletBackend is the storage and capability surface the transaction
// flows run against.
type WalletBackend interface {
	Keychain() keychain.Keychain
	ChainClient() ChainClient

	// Batch opens a scoped write transaction across outputs, the
	// transaction log and payment records. Writes inside a batch
	// commit or roll back atomically.
	Batch() (Batch, error)

	// Read-side views.
	Outputs() ([]OutputData, error)
	GetOutput(commit pedersen.Commitment) (*OutputData, error)
	TxLogEntries() ([]TxLogEntry, error)
	Payments(slateID uuid.UUID) ([]PaymentData, error)
	PaymentEntries() ([]PaymentData, error)

	// NextChild reserves the next derivation index under a parent key.
	NextChild(parent keychain.Identifier) (uint32, error)

	// Stored transaction bodies and proofs, keyed by slate id.
	StoreTx(key string, tx *core.Transaction) error
	GetStoredTx(key string) (*core.Transaction, error)
	StoreTxProof(key string, proof []byte) error
	GetStoredTxProof(key string) ([]byte, error)

	Close() error
}

// Batch is a scoped write transaction. Either Commit or Rollback must
// be called exactly once.
type Batch interface {
	SaveOutput(o *OutputData) error
	DeleteOutput(commit pedersen.Commitment) error

	SaveTxLogEntry(t *TxLogEntry) error
	NextTxLogID(parent keychain.Identifier) (uint32, error)

	SavePayment(p *PaymentData) error
	DeletePayments(slateID uuid.UUID) error

	Commit() error
	Rollback() error
}
