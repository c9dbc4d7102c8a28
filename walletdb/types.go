package walletdb

import (
	"database/sql"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/mimblenet/mwwallet/keychain"
	"github.com/mimblenet/mwwallet/pedersen"
	"github.com/mimblenet/mwwallet/slate"
	"github.com/mimblenet/mwwallet/wallet"
)

type sqlOutput struct {
	Commit     string
	RootKeyID  string
	KeyID      string
	NChild     uint32
	Value      int64 // to be saved as BIGINT in db
	Status     string
	Height     int64
	LockHeight int64
	IsCoinbase bool
	TxLogID    sql.NullInt64
}

func (s *sqlOutput) encode(o *wallet.OutputData) (*sqlOutput, error) {
	s.Commit = o.Commit.String()
	s.RootKeyID = o.RootKeyID.String()
	s.KeyID = o.KeyID.String()
	s.NChild = o.NChild
	s.Value = int64(o.Value)
	s.Status = string(o.Status)
	s.Height = int64(o.Height)
	s.LockHeight = int64(o.LockHeight)
	s.IsCoinbase = o.IsCoinbase
	if o.TxLogID != nil {
		s.TxLogID = sql.NullInt64{Int64: int64(*o.TxLogID), Valid: true}
	} else {
		s.TxLogID = sql.NullInt64{}
	}
	return s, nil
}

func (s *sqlOutput) decode() (*wallet.OutputData, error) {
	commit, err := pedersen.FromHex(s.Commit)
	if err != nil {
		return nil, err
	}
	rootKeyID, err := keychain.IdentifierFromHex(s.RootKeyID)
	if err != nil {
		return nil, err
	}
	keyID, err := keychain.IdentifierFromHex(s.KeyID)
	if err != nil {
		return nil, err
	}

	o := &wallet.OutputData{
		RootKeyID:  rootKeyID,
		KeyID:      keyID,
		NChild:     s.NChild,
		Commit:     commit,
		Value:      uint64(s.Value),
		Status:     wallet.OutputStatus(s.Status),
		Height:     uint64(s.Height),
		LockHeight: uint64(s.LockHeight),
		IsCoinbase: s.IsCoinbase,
	}
	if s.TxLogID.Valid {
		id := uint32(s.TxLogID.Int64)
		o.TxLogID = &id
	}
	return o, nil
}

type sqlTxLog struct {
	ParentKeyID    string
	ID             uint32
	SlateID        sql.NullString
	TxType         string
	CreationTs     sql.NullTime
	ConfirmationTs sql.NullTime
	Confirmed      bool
	Posted         bool
	NumInputs      int
	NumOutputs     int
	AmountCredited int64
	AmountDebited  int64
	Fee            sql.NullInt64
	Messages       []byte
	KernelExcess   sql.NullString
	RelayKeyPath   sql.NullInt64
	StoredTx       sql.NullString
	StoredProof    sql.NullString
}

func (s *sqlTxLog) encode(t *wallet.TxLogEntry) (*sqlTxLog, error) {
	s.ParentKeyID = t.ParentKeyID.String()
	s.ID = t.ID
	if t.TxSlateID != nil {
		s.SlateID = sql.NullString{String: t.TxSlateID.String(), Valid: true}
	} else {
		s.SlateID = sql.NullString{}
	}
	s.TxType = string(t.TxType)
	s.CreationTs = sql.NullTime{Time: t.CreationTs, Valid: true}
	if t.ConfirmationTs != nil {
		s.ConfirmationTs = sql.NullTime{Time: *t.ConfirmationTs, Valid: true}
	} else {
		s.ConfirmationTs = sql.NullTime{}
	}
	s.Confirmed = t.Confirmed
	s.Posted = t.Posted
	s.NumInputs = t.NumInputs
	s.NumOutputs = t.NumOutputs
	s.AmountCredited = int64(t.AmountCredited)
	s.AmountDebited = int64(t.AmountDebited)
	if t.Fee != nil {
		s.Fee = sql.NullInt64{Int64: int64(*t.Fee), Valid: true}
	} else {
		s.Fee = sql.NullInt64{}
	}
	if len(t.Messages) > 0 {
		msgs, err := json.Marshal(t.Messages)
		if err != nil {
			return nil, err
		}
		s.Messages = msgs
	} else {
		s.Messages = nil
	}
	if t.KernelExcess != nil {
		s.KernelExcess = sql.NullString{String: *t.KernelExcess, Valid: true}
	} else {
		s.KernelExcess = sql.NullString{}
	}
	if t.RelayKeyPath != nil {
		s.RelayKeyPath = sql.NullInt64{Int64: int64(*t.RelayKeyPath), Valid: true}
	} else {
		s.RelayKeyPath = sql.NullInt64{}
	}
	if t.StoredTx != nil {
		s.StoredTx = sql.NullString{String: *t.StoredTx, Valid: true}
	} else {
		s.StoredTx = sql.NullString{}
	}
	if t.StoredProof != nil {
		s.StoredProof = sql.NullString{String: *t.StoredProof, Valid: true}
	} else {
		s.StoredProof = sql.NullString{}
	}
	return s, nil
}

func (s *sqlTxLog) decode() (*wallet.TxLogEntry, error) {
	parentKeyID, err := keychain.IdentifierFromHex(s.ParentKeyID)
	if err != nil {
		return nil, err
	}

	t := &wallet.TxLogEntry{
		ParentKeyID:    parentKeyID,
		ID:             s.ID,
		TxType:         wallet.TxLogEntryType(s.TxType),
		CreationTs:     s.CreationTs.Time,
		Confirmed:      s.Confirmed,
		Posted:         s.Posted,
		NumInputs:      s.NumInputs,
		NumOutputs:     s.NumOutputs,
		AmountCredited: uint64(s.AmountCredited),
		AmountDebited:  uint64(s.AmountDebited),
	}
	if s.SlateID.Valid {
		slateID, err := uuid.Parse(s.SlateID.String)
		if err != nil {
			return nil, err
		}
		t.TxSlateID = &slateID
	}
	if s.ConfirmationTs.Valid {
		ts := s.ConfirmationTs.Time
		t.ConfirmationTs = &ts
	}
	if s.Fee.Valid {
		fee := uint64(s.Fee.Int64)
		t.Fee = &fee
	}
	if len(s.Messages) > 0 {
		var msgs []slate.ParticipantMessage
		if err := json.Unmarshal(s.Messages, &msgs); err != nil {
			return nil, err
		}
		t.Messages = msgs
	}
	if s.KernelExcess.Valid {
		excess := s.KernelExcess.String
		t.KernelExcess = &excess
	}
	if s.RelayKeyPath.Valid {
		path := uint64(s.RelayKeyPath.Int64)
		t.RelayKeyPath = &path
	}
	if s.StoredTx.Valid {
		storedTx := s.StoredTx.String
		t.StoredTx = &storedTx
	}
	if s.StoredProof.Valid {
		storedProof := s.StoredProof.String
		t.StoredProof = &storedProof
	}
	return t, nil
}

type sqlPayment struct {
	Commit     string
	Value      int64
	Status     string
	Height     int64
	LockHeight int64
	SlateID    string
	TxID       sql.NullInt64
}

func (s *sqlPayment) encode(p *wallet.PaymentData) (*sqlPayment, error) {
	s.Commit = p.Commit.String()
	s.Value = int64(p.Value)
	s.Status = string(p.Status)
	s.Height = int64(p.Height)
	s.LockHeight = int64(p.LockHeight)
	s.SlateID = p.SlateID.String()
	if p.TxID != nil {
		s.TxID = sql.NullInt64{Int64: int64(*p.TxID), Valid: true}
	} else {
		s.TxID = sql.NullInt64{}
	}
	return s, nil
}

func (s *sqlPayment) decode() (*wallet.PaymentData, error) {
	commit, err := pedersen.FromHex(s.Commit)
	if err != nil {
		return nil, err
	}
	slateID, err := uuid.Parse(s.SlateID)
	if err != nil {
		return nil, err
	}

	p := &wallet.PaymentData{
		Commit:     commit,
		Value:      uint64(s.Value),
		Status:     wallet.OutputStatus(s.Status),
		Height:     uint64(s.Height),
		LockHeight: uint64(s.LockHeight),
		SlateID:    slateID,
	}
	if s.TxID.Valid {
		id := uint32(s.TxID.Int64)
		p.TxID = &id
	}
	return p, nil
}
