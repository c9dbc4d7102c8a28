// The slate is the shared document multiple parties fill in to jointly
// build one transaction without exposing private blinding factors.
//
// Signing runs in two rounds. Round 1 publishes each participant's
// public blinding excess and public nonce. Round 2, possible only once
// every participant's round-1 data is present, produces partial
// signatures. Any holder of the completed slate can then finalize.
package slate

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"

	"github.com/mimblenet/mwwallet/aggsig"
	"github.com/mimblenet/mwwallet/core"
	"github.com/mimblenet/mwwallet/keychain"
	"github.com/mimblenet/mwwallet/pedersen"
)

// CurrentVersion is the slate wire format version this wallet writes.
const CurrentVersion = uint16(2)

var (
	ErrWrongState           = errors.New("operation not valid for slate state")
	ErrRound1Incomplete     = errors.New("not all participants have published round 1 data")
	ErrSlateIncomplete      = errors.New("not all participants have signed")
	ErrParticipantNotFound  = errors.New("no participant with the given id")
	ErrInvalidSignature     = errors.New("slate signature verification failed")
	ErrInvalidMessageSig    = errors.New("participant message signature invalid")
	ErrParticipantConflict  = errors.New("participant count exceeded")
)

// State is the explicit protocol position of a slate. Round and
// finalize entry points check it so illegal transitions are rejected
// up front instead of surfacing as bad signatures.
type State string

const (
	StateCreated   State = "created"
	StateRound1    State = "round1"
	StateRound2    State = "round2"
	StateFinalized State = "finalized"
)

// ParticipantData is one party's public contribution.
type ParticipantData struct {
	ID                uint64
	PublicBlindExcess *btcec.PublicKey
	PublicNonce       *btcec.PublicKey
	PartSig           *btcec.ModNScalar
	Message           *string
	MessageSig        *aggsig.Signature
}

// IsComplete reports whether this participant finished round 2.
func (p *ParticipantData) IsComplete() bool {
	return p.PartSig != nil
}

// ParticipantMessage is the durable record of one participant's
// optional message, kept on the transaction log after the slate is
// discarded.
type ParticipantMessage struct {
	ID         uint64  `json:"id,string"`
	PublicKey  string  `json:"public_key"`
	Message    *string `json:"message"`
	MessageSig *string `json:"message_sig"`
}

type VersionCompatInfo struct {
	Version            uint16 `json:"version"`
	OrigVersion        uint16 `json:"orig_version"`
	BlockHeaderVersion uint16 `json:"block_header_version"`
}

type Slate struct {
	VersionInfo     VersionCompatInfo
	NumParticipants uint
	ID              uuid.UUID
	State           State
	Tx              *core.Transaction
	Amount          uint64
	Fee             uint64
	Height          uint64
	LockHeight      uint64
	ParticipantData []ParticipantData
}

// Blank creates an empty slate for numParticipants parties. The id and
// participant count are fixed for the slate's whole life.
func Blank(numParticipants uint, gen IDGenerator) *Slate {
	if gen == nil {
		gen = RandomIDs{}
	}
	return &Slate{
		VersionInfo: VersionCompatInfo{
			Version:            CurrentVersion,
			OrigVersion:        CurrentVersion,
			BlockHeaderVersion: 1,
		},
		NumParticipants: numParticipants,
		ID:              gen.NewSlateID(),
		State:           StateCreated,
		Tx:              core.NewTransaction(),
	}
}

// ParticipantWithID returns the entry for a participant id, nil if
// absent.
func (s *Slate) ParticipantWithID(id uint64) *ParticipantData {
	for i := range s.ParticipantData {
		if s.ParticipantData[i].ID == id {
			return &s.ParticipantData[i]
		}
	}
	return nil
}

// KernelSigMessage is the message all participants sign for this
// slate's kernel.
func (s *Slate) KernelSigMessage() []byte {
	return core.KernelSigMessage(core.KernelFeaturesFor(s.LockHeight), s.Fee, s.LockHeight)
}

// FillRound1 records this participant's public blinding excess and
// public nonce (and optional signed message). The initiator
// (participant 0) additionally generates the kernel offset and
// subtracts it from its secret key, so the published excess already
// accounts for it. Re-invoking overwrites only this participant's
// contribution.
func (s *Slate) FillRound1(secKey, secNonce *keychain.SecretKey,
	participantID uint64, message *string) error {

	if s.State != StateCreated && s.State != StateRound1 {
		return fmt.Errorf("%w: round 1 in state %q", ErrWrongState, s.State)
	}

	if participantID == 0 && s.Tx.OffsetScalar().IsZero() {
		offset, err := aggsig.NewSecretNonce()
		if err != nil {
			return err
		}
		s.Tx.SetOffset(offset)
		// the initiator's excess is published net of the offset
		offset.Negate()
		secKey.Key.Add(offset)
		offset.Zero()
	}

	entry := ParticipantData{
		ID:                participantID,
		PublicBlindExcess: secKey.Pub(),
		PublicNonce:       aggsig.PubFromSecret(&secNonce.Key),
	}
	if message != nil {
		msgSig, err := aggsig.SignSingle(&secKey.Key, messageHash(*message))
		if err != nil {
			return err
		}
		m := *message
		entry.Message = &m
		entry.MessageSig = msgSig
	}

	if existing := s.ParticipantWithID(participantID); existing != nil {
		*existing = entry
	} else {
		if uint(len(s.ParticipantData)) >= s.NumParticipants {
			return ErrParticipantConflict
		}
		s.ParticipantData = append(s.ParticipantData, entry)
	}
	s.State = StateRound1
	return nil
}

// FillRound2 computes this participant's partial signature over the
// aggregate public key and nonce. All participants' round-1 data must
// already be present; order across participants does not matter.
func (s *Slate) FillRound2(secKey, secNonce *keychain.SecretKey,
	participantID uint64) error {

	if s.State != StateRound1 && s.State != StateRound2 {
		return fmt.Errorf("%w: round 2 in state %q", ErrWrongState, s.State)
	}
	if uint(len(s.ParticipantData)) != s.NumParticipants {
		return ErrRound1Incomplete
	}
	entry := s.ParticipantWithID(participantID)
	if entry == nil {
		return ErrParticipantNotFound
	}

	// a bad partial from another party must surface here, not as a
	// broken final signature
	if err := s.verifyPartSigs(); err != nil {
		return err
	}

	nonceSum, keySum, err := s.pubSums()
	if err != nil {
		return err
	}
	entry.PartSig = aggsig.CalculatePartial(
		&secKey.Key, &secNonce.Key, nonceSum, keySum, s.KernelSigMessage())
	s.State = StateRound2
	return nil
}

// Finalize aggregates the partial signatures into the kernel signature
// and verifies the whole transaction. Finalizing an already finalized
// slate is a no-op returning the same result.
func (s *Slate) Finalize() error {
	if s.State == StateFinalized {
		return nil
	}
	if s.State != StateRound2 {
		return fmt.Errorf("%w: finalize in state %q", ErrWrongState, s.State)
	}
	if uint(len(s.ParticipantData)) != s.NumParticipants {
		return ErrSlateIncomplete
	}
	for i := range s.ParticipantData {
		if !s.ParticipantData[i].IsComplete() {
			return fmt.Errorf("%w: participant %d", ErrSlateIncomplete, s.ParticipantData[i].ID)
		}
	}
	if err := s.verifyPartSigs(); err != nil {
		return err
	}

	nonceSum, keySum, err := s.pubSums()
	if err != nil {
		return err
	}
	partials := make([]*btcec.ModNScalar, 0, len(s.ParticipantData))
	for i := range s.ParticipantData {
		partials = append(partials, s.ParticipantData[i].PartSig)
	}
	finalSig := aggsig.AddSignatures(partials, nonceSum)

	msg := s.KernelSigMessage()
	if err := aggsig.Verify(finalSig, keySum, msg); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	kernel := core.TxKernel{
		Features:   core.KernelFeaturesFor(s.LockHeight),
		Fee:        s.Fee,
		LockHeight: s.LockHeight,
		Excess:     pedersen.NewCommitment(keySum),
		ExcessSig:  finalSig.Serialize(),
	}
	s.Tx.Body.Kernels = []core.TxKernel{kernel}

	// full check against the commitment sums and claimed fee
	if err := s.Tx.Validate(); err != nil {
		s.Tx.Body.Kernels = nil
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	s.State = StateFinalized
	return nil
}

// ParticipantMessages extracts the participant messages for the
// transaction log.
func (s *Slate) ParticipantMessages() []ParticipantMessage {
	out := make([]ParticipantMessage, 0, len(s.ParticipantData))
	for i := range s.ParticipantData {
		p := &s.ParticipantData[i]
		m := ParticipantMessage{
			ID:        p.ID,
			PublicKey: pubKeyHex(p.PublicBlindExcess),
			Message:   p.Message,
		}
		if p.MessageSig != nil {
			sig := p.MessageSig.String()
			m.MessageSig = &sig
		}
		out = append(out, m)
	}
	return out
}

// VerifyMessages checks every participant's message signature against
// its public blinding excess.
func (s *Slate) VerifyMessages() error {
	for i := range s.ParticipantData {
		p := &s.ParticipantData[i]
		if p.Message == nil {
			continue
		}
		if p.MessageSig == nil {
			return fmt.Errorf("%w: participant %d has unsigned message", ErrInvalidMessageSig, p.ID)
		}
		if err := aggsig.VerifySingle(p.MessageSig, p.PublicBlindExcess, messageHash(*p.Message)); err != nil {
			return fmt.Errorf("%w: participant %d", ErrInvalidMessageSig, p.ID)
		}
	}
	return nil
}

func (s *Slate) verifyPartSigs() error {
	nonceSum, keySum, err := s.pubSums()
	if err != nil {
		return err
	}
	msg := s.KernelSigMessage()
	for i := range s.ParticipantData {
		p := &s.ParticipantData[i]
		if p.PartSig == nil {
			continue
		}
		err := aggsig.VerifyPartial(p.PartSig, p.PublicNonce, p.PublicBlindExcess,
			nonceSum, keySum, msg)
		if err != nil {
			return fmt.Errorf("%w: participant %d partial", ErrInvalidSignature, p.ID)
		}
	}
	return nil
}

func (s *Slate) pubSums() (nonceSum, keySum *btcec.PublicKey, err error) {
	nonces := make([]*btcec.PublicKey, 0, len(s.ParticipantData))
	keys := make([]*btcec.PublicKey, 0, len(s.ParticipantData))
	for i := range s.ParticipantData {
		nonces = append(nonces, s.ParticipantData[i].PublicNonce)
		keys = append(keys, s.ParticipantData[i].PublicBlindExcess)
	}
	nonceSum, err = aggsig.SumPubKeys(nonces...)
	if err != nil {
		return nil, nil, err
	}
	keySum, err = aggsig.SumPubKeys(keys...)
	if err != nil {
		return nil, nil, err
	}
	return nonceSum, keySum, nil
}

func messageHash(msg string) []byte {
	h := blake2b.Sum256([]byte(msg))
	return h[:]
}
