// Package proof binds a payment to a chain-recorded kernel and lets
// either side later demonstrate the payment took place.
package proof

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"

	"github.com/mimblenet/mwwallet/aggsig"
	"github.com/mimblenet/mwwallet/core"
	"github.com/mimblenet/mwwallet/keychain"
	"github.com/mimblenet/mwwallet/ledger"
	"github.com/mimblenet/mwwallet/pedersen"
	"github.com/mimblenet/mwwallet/wallet"
)

var (
	// ErrNoRelayKey: the log entry never recorded a relay key path at
	// send time, so there is no prover identity to sign under.
	ErrNoRelayKey = errors.New("no relay key path recorded for transaction")

	ErrMalformedProof = errors.New("malformed payment proof")
	ErrInvalidProof   = errors.New("payment proof verification failed")
)

// TxProof binds a slate's kernel to its payment outputs and the
// sender's relay identity.
type TxProof struct {
	SlateID         uuid.UUID             `json:"slate_id"`
	Amount          uint64                `json:"amount,string"`
	Fee             uint64                `json:"fee,string"`
	LockHeight      uint64                `json:"lock_height,string"`
	KernelExcess    pedersen.Commitment   `json:"kernel_excess"`
	KernelExcessSig core.HexBytes         `json:"kernel_excess_sig"`
	PaymentCommits  []pedersen.Commitment `json:"payment_commits"`
	ProverPubKey    core.HexBytes         `json:"prover_pub_key"`
	ProverSig       core.HexBytes         `json:"prover_sig"`
}

// message is the canonical digest the prover signs: slate id, kernel
// excess, amount and the payment commitments, in order.
func (p *TxProof) message() []byte {
	h, _ := blake2b.New256(nil)
	h.Write(p.SlateID[:])
	h.Write(p.KernelExcess[:])
	var amt [8]byte
	binary.BigEndian.PutUint64(amt[:], p.Amount)
	h.Write(amt[:])
	for _, c := range p.PaymentCommits {
		h.Write(c[:])
	}
	return h.Sum(nil)
}

// Sign builds and signs a proof for a finalized, stored send. The
// relay key path recorded on the log entry at send time provides the
// signing key; without one no proof can be produced. The proof is
// persisted on the entry.
func Sign(w wallet.WalletBackend, parent keychain.Identifier,
	slateID uuid.UUID) (*TxProof, error) {

	entries, err := w.TxLogEntries()
	if err != nil {
		return nil, err
	}
	var entry *wallet.TxLogEntry
	for i := range entries {
		e := &entries[i]
		if e.ParentKeyID == parent && e.TxSlateID != nil &&
			*e.TxSlateID == slateID && e.TxType == wallet.TxSent {
			entry = e
			break
		}
	}
	if entry == nil {
		return nil, ledger.ErrTransactionDoesntExist
	}
	if entry.RelayKeyPath == nil {
		return nil, ErrNoRelayKey
	}

	tx, err := w.GetStoredTx(slateID.String())
	if err != nil {
		return nil, fmt.Errorf("stored transaction for %s: %w", slateID, err)
	}
	if len(tx.Body.Kernels) != 1 {
		return nil, fmt.Errorf("%w: expected one kernel, have %d",
			ErrMalformedProof, len(tx.Body.Kernels))
	}
	kernel := tx.Body.Kernels[0]

	payments, err := w.Payments(slateID)
	if err != nil {
		return nil, err
	}
	commits := make([]pedersen.Commitment, 0, len(payments))
	for _, p := range payments {
		commits = append(commits, p.Commit)
	}

	var fee uint64
	if entry.Fee != nil {
		fee = *entry.Fee
	}
	p := &TxProof{
		SlateID:         slateID,
		Amount:          entry.AmountDebited - entry.AmountCredited - fee,
		Fee:             kernel.Fee,
		LockHeight:      kernel.LockHeight,
		KernelExcess:    kernel.Excess,
		KernelExcessSig: kernel.ExcessSig,
		PaymentCommits:  commits,
	}

	relayID := keychain.RelayID(*entry.RelayKeyPath)
	kc := w.Keychain()
	sk, err := kc.DeriveKey(relayID)
	if err != nil {
		return nil, err
	}
	p.ProverPubKey = sk.Pub().SerializeCompressed()
	sk.Zero()

	sig, err := kc.Sign(p.message(), relayID)
	if err != nil {
		return nil, err
	}
	p.ProverSig = sig.Serialize()

	data, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	key := slateID.String()
	if err := w.StoreTxProof(key, data); err != nil {
		return nil, err
	}

	entry.StoredProof = &key
	b, err := w.Batch()
	if err != nil {
		return nil, err
	}
	if err := b.SaveTxLogEntry(entry); err != nil {
		b.Rollback()
		return nil, err
	}
	if err := b.Commit(); err != nil {
		return nil, err
	}
	return p, nil
}

// Verify checks the proof's internal bindings and then asks the chain
// whether the kernel is recorded. Structural breakage is an error; a
// sound proof whose kernel has not (yet) been observed on chain merely
// reports verified=false.
func Verify(node wallet.ChainClient, p *TxProof) (bool, error) {
	kernelSig, err := aggsig.ParseSignature(p.KernelExcessSig)
	if err != nil {
		return false, fmt.Errorf("%w: kernel signature: %v", ErrMalformedProof, err)
	}
	excessPub, err := p.KernelExcess.PubKey()
	if err != nil {
		return false, fmt.Errorf("%w: kernel excess: %v", ErrMalformedProof, err)
	}
	features := core.KernelFeaturesFor(p.LockHeight)
	msg := core.KernelSigMessage(features, p.Fee, p.LockHeight)
	if err := aggsig.Verify(kernelSig, excessPub, msg); err != nil {
		return false, fmt.Errorf("%w: kernel signature", ErrInvalidProof)
	}

	proverPub, err := btcec.ParsePubKey(p.ProverPubKey)
	if err != nil {
		return false, fmt.Errorf("%w: prover key: %v", ErrMalformedProof, err)
	}
	proverSig, err := aggsig.ParseSignature(p.ProverSig)
	if err != nil {
		return false, fmt.Errorf("%w: prover signature: %v", ErrMalformedProof, err)
	}
	if err := aggsig.VerifySingle(proverSig, proverPub, p.message()); err != nil {
		return false, fmt.Errorf("%w: prover signature", ErrInvalidProof)
	}

	if _, err := node.GetKernel(p.KernelExcess, 0, 0); err != nil {
		if errors.Is(err, wallet.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Export writes the proof as an indented JSON document.
func Export(p *TxProof, path string) error {
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// Load reads a proof document from disk.
func Load(path string) (*TxProof, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes a proof document.
func Parse(data []byte) (*TxProof, error) {
	p := &TxProof{}
	if err := json.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedProof, err)
	}
	if len(p.KernelExcessSig) == 0 || len(p.ProverSig) == 0 {
		return nil, fmt.Errorf("%w: missing signatures", ErrMalformedProof)
	}
	return p, nil
}
