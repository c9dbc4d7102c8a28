// Wallet-side bookkeeping types: outputs, transaction log entries and
// payment records, plus the states they move through.
package wallet

import (
	"time"

	"github.com/google/uuid"

	"github.com/mimblenet/mwwallet/keychain"
	"github.com/mimblenet/mwwallet/pedersen"
	"github.com/mimblenet/mwwallet/slate"
)

type OutputStatus string

const (
	Unconfirmed OutputStatus = "unconfirmed"
	Unspent     OutputStatus = "unspent"
	Locked      OutputStatus = "locked"
	Confirmed   OutputStatus = "confirmed"
	Spent       OutputStatus = "spent"
	Cancelled   OutputStatus = "cancelled"
)

// OutputData is one locally-owned output.
type OutputData struct {
	RootKeyID  keychain.Identifier
	KeyID      keychain.Identifier
	NChild     uint32
	Commit     pedersen.Commitment
	Value      uint64
	Status     OutputStatus
	Height     uint64
	LockHeight uint64
	IsCoinbase bool
	// TxLogID links the output to the log entry that created or spends
	// it. Nil for restored outputs with no known origin.
	TxLogID *uint32
}

// NumConfirmations at the given chain tip.
func (o *OutputData) NumConfirmations(tip uint64) uint64 {
	if o.Height == 0 || o.Height > tip {
		return 0
	}
	return 1 + tip - o.Height
}

// EligibleToSpend reports whether the output can be selected as a
// transaction input. Locked outputs and outputs below the confirmation
// floor never qualify.
func (o *OutputData) EligibleToSpend(tip uint64, minConfirmations uint64) bool {
	switch o.Status {
	case Unspent:
		return o.NumConfirmations(tip) >= minConfirmations
	case Unconfirmed:
		return minConfirmations == 0
	default:
		return false
	}
}

type TxLogEntryType string

const (
	TxSent              TxLogEntryType = "TxSent"
	TxReceived          TxLogEntryType = "TxReceived"
	TxSentCancelled     TxLogEntryType = "TxSentCancelled"
	TxReceivedCancelled TxLogEntryType = "TxReceivedCancelled"
)

// TxLogEntry records one transaction the wallet took part in.
type TxLogEntry struct {
	ParentKeyID    keychain.Identifier
	ID             uint32
	TxSlateID      *uuid.UUID
	TxType         TxLogEntryType
	CreationTs     time.Time
	ConfirmationTs *time.Time
	Confirmed      bool
	Posted         bool
	NumInputs      int
	NumOutputs     int
	AmountCredited uint64
	AmountDebited  uint64
	Fee            *uint64
	// Messages accumulated from the slate's participants.
	Messages []slate.ParticipantMessage
	// KernelExcess is the hex excess commitment, recorded at finalize.
	KernelExcess *string
	// RelayKeyPath is the relay address key path used to send this
	// transaction; payment proofs can only be signed when present.
	RelayKeyPath *uint64
	// StoredTx / StoredProof are backend keys for the persisted
	// transaction body and payment proof.
	StoredTx    *string
	StoredProof *string
}

// Cancelled reports whether the entry was locally cancelled.
func (t *TxLogEntry) Cancelled() bool {
	return t.TxType == TxSentCancelled || t.TxType == TxReceivedCancelled
}

// PaymentData tracks an output paid to a counterparty.
type PaymentData struct {
	Commit pedersen.Commitment
	// Value is 0 when the payment splits into several outputs and the
	// per-output amounts are unknown. A real payment output can never
	// be worth 0, so the placeholder is unambiguous.
	Value      uint64
	Status     OutputStatus
	Height     uint64
	LockHeight uint64
	SlateID    uuid.UUID
	TxID       *uint32
}

// SummaryInfo aggregates wallet balances at a confirmation floor.
type SummaryInfo struct {
	LastConfirmedHeight         uint64
	MinimumConfirmations        uint64
	Total                       uint64
	AmountAwaitingConfirmation  uint64
	AmountImmature              uint64
	AmountCurrentlySpendable    uint64
	AmountLocked                uint64
}
