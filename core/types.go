// Core transaction types: inputs, outputs, kernels and the
// transaction body exchanged through a slate and recorded on chain.
package core

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"sort"

	"github.com/btcsuite/btcd/btcec/v2"

	"github.com/mimblenet/mwwallet/pedersen"
)

var (
	ErrKernelSigMissing = errors.New("kernel has no signature")
	ErrTxUnbalanced     = errors.New("transaction commitments do not balance")
)

type OutputFeatures string

const (
	PlainOutput    OutputFeatures = "Plain"
	CoinbaseOutput OutputFeatures = "Coinbase"
)

type KernelFeatures string

const (
	PlainKernel        KernelFeatures = "Plain"
	CoinbaseKernel     KernelFeatures = "Coinbase"
	HeightLockedKernel KernelFeatures = "HeightLocked"
)

// Input spends a previous output, referenced by its commitment.
type Input struct {
	Features OutputFeatures      `json:"features"`
	Commit   pedersen.Commitment `json:"commit"`
}

// Output is a new commitment created by the transaction. Amounts are
// hidden inside the commitment.
type Output struct {
	Features OutputFeatures      `json:"features"`
	Commit   pedersen.Commitment `json:"commit"`
}

// TxKernel is the public, chain-recorded summary of the transaction:
// the excess commitment plus a signature proving knowledge of the
// excess blinding factor.
type TxKernel struct {
	Features   KernelFeatures      `json:"features"`
	Fee        uint64              `json:"fee,string"`
	LockHeight uint64              `json:"lock_height,string"`
	Excess     pedersen.Commitment `json:"excess"`
	ExcessSig  HexBytes            `json:"excess_sig"`
}

// KernelFeaturesFor returns the kernel features implied by a lock
// height. Zero lock height produces a plain kernel.
func KernelFeaturesFor(lockHeight uint64) KernelFeatures {
	if lockHeight > 0 {
		return HeightLockedKernel
	}
	return PlainKernel
}

type TransactionBody struct {
	Inputs  []Input    `json:"inputs"`
	Outputs []Output   `json:"outputs"`
	Kernels []TxKernel `json:"kernels"`
}

// Transaction is a transaction body plus the kernel offset, the extra
// blinding value subtracted from the aggregate secret.
type Transaction struct {
	Offset HexBytes        `json:"offset"`
	Body   TransactionBody `json:"body"`
}

func NewTransaction() *Transaction {
	return &Transaction{Offset: make(HexBytes, 32)}
}

// AddInput appends an input and keeps inputs sorted by commitment.
func (t *Transaction) AddInput(in Input) {
	t.Body.Inputs = append(t.Body.Inputs, in)
	sort.Slice(t.Body.Inputs, func(i, j int) bool {
		return t.Body.Inputs[i].Commit.String() < t.Body.Inputs[j].Commit.String()
	})
}

// AddOutput appends an output and keeps outputs sorted by commitment.
func (t *Transaction) AddOutput(out Output) {
	t.Body.Outputs = append(t.Body.Outputs, out)
	sort.Slice(t.Body.Outputs, func(i, j int) bool {
		return t.Body.Outputs[i].Commit.String() < t.Body.Outputs[j].Commit.String()
	})
}

// OffsetScalar lifts the stored offset into the scalar field.
func (t *Transaction) OffsetScalar() *btcec.ModNScalar {
	s := new(btcec.ModNScalar)
	s.SetByteSlice(t.Offset)
	return s
}

// SetOffset records the kernel offset.
func (t *Transaction) SetOffset(s *btcec.ModNScalar) {
	b := s.Bytes()
	t.Offset = append(HexBytes(nil), b[:]...)
}

// TotalFee sums the kernel fees.
func (t *Transaction) TotalFee() uint64 {
	var fee uint64
	for _, k := range t.Body.Kernels {
		fee += k.Fee
	}
	return fee
}

// InputCommits lists the input commitments.
func (t *Transaction) InputCommits() []pedersen.Commitment {
	out := make([]pedersen.Commitment, 0, len(t.Body.Inputs))
	for _, in := range t.Body.Inputs {
		out = append(out, in.Commit)
	}
	return out
}

// OutputCommits lists the output commitments.
func (t *Transaction) OutputCommits() []pedersen.Commitment {
	out := make([]pedersen.Commitment, 0, len(t.Body.Outputs))
	for _, o := range t.Body.Outputs {
		out = append(out, o.Commit)
	}
	return out
}

// HexBytes is a byte slice carried as hex in JSON documents.
type HexBytes []byte

func (h HexBytes) String() string {
	return hex.EncodeToString(h)
}

func (h HexBytes) MarshalJSON() ([]byte, error) {
	return json.Marshal(hex.EncodeToString(h))
}

func (h *HexBytes) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return err
	}
	*h = b
	return nil
}
