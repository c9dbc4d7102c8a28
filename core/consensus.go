package core

import (
	"encoding/binary"

	"github.com/btcsuite/btcd/btcec/v2"
	"golang.org/x/crypto/blake2b"

	"github.com/mimblenet/mwwallet/aggsig"
	"github.com/mimblenet/mwwallet/pedersen"
)

const (
	// DefaultBaseFee is the fee per weight unit, in base (nano) units.
	DefaultBaseFee = uint64(1_000_000)

	// HeaderVersionTwoHeight is the height at which block headers (and
	// therefore new slates) switch to version 2.
	HeaderVersionTwoHeight = uint64(1_048_576)
)

// HeaderVersion returns the block header version active at a height.
// New slates gate their protocol version on this.
func HeaderVersion(height uint64) uint16 {
	if height >= HeaderVersionTwoHeight {
		return 2
	}
	return 1
}

// TxFee computes the fee for a transaction shape under a base fee per
// weight unit. Outputs weigh 4, kernels 1, and each input earns back 1.
func TxFee(nInputs, nOutputs, nKernels int, baseFee uint64) uint64 {
	if baseFee == 0 {
		baseFee = DefaultBaseFee
	}
	weight := 4*nOutputs + nKernels - nInputs
	if weight < 1 {
		weight = 1
	}
	return uint64(weight) * baseFee
}

// KernelSigMessage is the message every participant signs: the hash of
// the kernel's consensus-relevant fields.
func KernelSigMessage(features KernelFeatures, fee, lockHeight uint64) []byte {
	h, _ := blake2b.New256(nil)
	h.Write([]byte(features))
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], fee)
	h.Write(buf[:])
	binary.BigEndian.PutUint64(buf[:], lockHeight)
	h.Write(buf[:])
	return h.Sum(nil)
}

// Validate checks every kernel signature and the overall commitment
// balance:
//
//	sum(outputs) + fee*H - sum(inputs) == sum(kernel excess) + offset*G
//
// A transaction that fails either check can never be accepted by the
// chain.
func (t *Transaction) Validate() error {
	excesses := make([]pedersen.Commitment, 0, len(t.Body.Kernels))
	for _, k := range t.Body.Kernels {
		if len(k.ExcessSig) == 0 {
			return ErrKernelSigMissing
		}
		sig, err := aggsig.ParseSignature(k.ExcessSig)
		if err != nil {
			return err
		}
		pub, err := k.Excess.PubKey()
		if err != nil {
			return err
		}
		msg := KernelSigMessage(k.Features, k.Fee, k.LockHeight)
		if err := aggsig.Verify(sig, pub, msg); err != nil {
			return err
		}
		excesses = append(excesses, k.Excess)
	}

	// fee*H folds the declared fee into the balance equation
	lhsPos := t.OutputCommits()
	if fee := t.TotalFee(); fee > 0 {
		feeCommit, err := pedersen.Commit(fee, new(btcec.ModNScalar))
		if err != nil {
			return err
		}
		lhsPos = append(lhsPos, feeCommit)
	}
	lhs, err := pedersen.Sum(lhsPos, t.InputCommits())
	if err != nil {
		return err
	}

	rhsPos := excesses
	offset := t.OffsetScalar()
	if !offset.IsZero() {
		offsetCommit, err := pedersen.Commit(0, offset)
		if err != nil {
			return err
		}
		rhsPos = append(rhsPos, offsetCommit)
	}
	rhs, err := pedersen.Sum(rhsPos, nil)
	if err != nil {
		return err
	}

	if lhs != rhs {
		return ErrTxUnbalanced
	}
	return nil
}
