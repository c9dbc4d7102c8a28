package slate

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/google/uuid"

	"github.com/mimblenet/mwwallet/aggsig"
	"github.com/mimblenet/mwwallet/core"
)

// Wire mirror structs. The slate document must round-trip exactly for
// file-based exchange to stay interoperable, so every crypto field is
// pinned to a canonical hex encoding and amounts travel as strings.

type wireParticipant struct {
	ID                string  `json:"id"`
	PublicBlindExcess string  `json:"public_blind_excess"`
	PublicNonce       string  `json:"public_nonce"`
	PartSig           *string `json:"part_sig"`
	Message           *string `json:"message"`
	MessageSig        *string `json:"message_sig"`
}

type wireSlate struct {
	VersionInfo     VersionCompatInfo `json:"version_info"`
	NumParticipants uint              `json:"num_participants"`
	ID              string            `json:"id"`
	State           string            `json:"state"`
	Tx              *core.Transaction `json:"tx"`
	Amount          string            `json:"amount"`
	Fee             string            `json:"fee"`
	Height          string            `json:"height"`
	LockHeight      string            `json:"lock_height"`
	ParticipantData []wireParticipant `json:"participant_data"`
}

func (s *Slate) MarshalJSON() ([]byte, error) {
	w := wireSlate{
		VersionInfo:     s.VersionInfo,
		NumParticipants: s.NumParticipants,
		ID:              s.ID.String(),
		State:           string(s.State),
		Tx:              s.Tx,
		Amount:          strconv.FormatUint(s.Amount, 10),
		Fee:             strconv.FormatUint(s.Fee, 10),
		Height:          strconv.FormatUint(s.Height, 10),
		LockHeight:      strconv.FormatUint(s.LockHeight, 10),
		ParticipantData: make([]wireParticipant, 0, len(s.ParticipantData)),
	}
	for i := range s.ParticipantData {
		p := &s.ParticipantData[i]
		wp := wireParticipant{
			ID:                strconv.FormatUint(p.ID, 10),
			PublicBlindExcess: pubKeyHex(p.PublicBlindExcess),
			PublicNonce:       pubKeyHex(p.PublicNonce),
			Message:           p.Message,
		}
		if p.PartSig != nil {
			b := p.PartSig.Bytes()
			sig := hex.EncodeToString(b[:])
			wp.PartSig = &sig
		}
		if p.MessageSig != nil {
			sig := p.MessageSig.String()
			wp.MessageSig = &sig
		}
		w.ParticipantData = append(w.ParticipantData, wp)
	}
	return json.Marshal(&w)
}

func (s *Slate) UnmarshalJSON(data []byte) error {
	var w wireSlate
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	id, err := uuid.Parse(w.ID)
	if err != nil {
		return fmt.Errorf("invalid slate id: %w", err)
	}
	amount, err := strconv.ParseUint(w.Amount, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid slate amount: %w", err)
	}
	fee, err := strconv.ParseUint(w.Fee, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid slate fee: %w", err)
	}
	height, err := strconv.ParseUint(w.Height, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid slate height: %w", err)
	}
	lockHeight, err := strconv.ParseUint(w.LockHeight, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid slate lock height: %w", err)
	}

	s.VersionInfo = w.VersionInfo
	s.NumParticipants = w.NumParticipants
	s.ID = id
	s.State = State(w.State)
	s.Tx = w.Tx
	if s.Tx == nil {
		s.Tx = core.NewTransaction()
	}
	s.Amount = amount
	s.Fee = fee
	s.Height = height
	s.LockHeight = lockHeight

	s.ParticipantData = make([]ParticipantData, 0, len(w.ParticipantData))
	for _, wp := range w.ParticipantData {
		pid, err := strconv.ParseUint(wp.ID, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid participant id: %w", err)
		}
		p := ParticipantData{ID: pid, Message: wp.Message}
		if p.PublicBlindExcess, err = pubKeyFromHex(wp.PublicBlindExcess); err != nil {
			return fmt.Errorf("participant %d blind excess: %w", pid, err)
		}
		if p.PublicNonce, err = pubKeyFromHex(wp.PublicNonce); err != nil {
			return fmt.Errorf("participant %d nonce: %w", pid, err)
		}
		if wp.PartSig != nil {
			b, err := hex.DecodeString(*wp.PartSig)
			if err != nil || len(b) != 32 {
				return fmt.Errorf("participant %d partial signature malformed", pid)
			}
			scalar := new(btcec.ModNScalar)
			if overflow := scalar.SetByteSlice(b); overflow {
				return fmt.Errorf("participant %d partial signature out of range", pid)
			}
			p.PartSig = scalar
		}
		if wp.MessageSig != nil {
			sig, err := aggsig.ParseSignatureHex(*wp.MessageSig)
			if err != nil {
				return fmt.Errorf("participant %d message signature: %w", pid, err)
			}
			p.MessageSig = sig
		}
		s.ParticipantData = append(s.ParticipantData, p)
	}
	return nil
}

func pubKeyHex(pk *btcec.PublicKey) string {
	return hex.EncodeToString(pk.SerializeCompressed())
}

func pubKeyFromHex(s string) (*btcec.PublicKey, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, err
	}
	return btcec.ParsePubKey(b)
}
