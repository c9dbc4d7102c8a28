// Package walletdb stores outputs, the transaction log and payment
// records in sqlite, and backs the wallet's higher-level flows.
package walletdb

import (
	"database/sql"
	"encoding/json"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/mimblenet/mwwallet/core"
	"github.com/mimblenet/mwwallet/database"
	"github.com/mimblenet/mwwallet/keychain"
	"github.com/mimblenet/mwwallet/pedersen"
	"github.com/mimblenet/mwwallet/wallet"
)

// Store is a sqlite-backed wallet.WalletBackend.
type Store struct {
	db        *sql.DB
	stmtcache *database.StmtCache
	kc        keychain.Keychain
	node      wallet.ChainClient
}

// Open opens (and if needed creates) the wallet database at path and
// binds it to the keychain and chain client.
func Open(path string, kc keychain.Keychain, node wallet.ChainClient) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	return NewStore(db, kc, node)
}

// NewStore builds a Store on an existing sql handle, creating the
// schema when absent.
func NewStore(db *sql.DB, kc keychain.Keychain, node wallet.ChainClient) (*Store, error) {
	schema := outputTable + txLogTable + paymentTable +
		derivIndexTable + txLogIndexTable + storedTxTable + storedProofTable
	if _, err := db.Exec(schema); err != nil {
		return nil, err
	}

	return &Store{
		db:        db,
		stmtcache: database.NewStmtCache(db),
		kc:        kc,
		node:      node,
	}, nil
}

func (s *Store) Keychain() keychain.Keychain     { return s.kc }
func (s *Store) ChainClient() wallet.ChainClient { return s.node }

func (s *Store) Close() error {
	s.stmtcache.Clear()
	return s.db.Close()
}

// Batch opens a write transaction. Writes across outputs, the tx log
// and payments inside one batch commit or roll back together.
func (s *Store) Batch() (wallet.Batch, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, err
	}
	return &batch{tx: tx}, nil
}

func (s *Store) Outputs() ([]wallet.OutputData, error) {
	stmt, err := s.stmtcache.Prepare(queryGetOutputs)
	if err != nil {
		return nil, err
	}

	rows, err := stmt.Query()
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	outputs := []wallet.OutputData{}
	for rows.Next() {
		var so sqlOutput
		if err := rows.Scan(
			&so.Commit,
			&so.RootKeyID,
			&so.KeyID,
			&so.NChild,
			&so.Value,
			&so.Status,
			&so.Height,
			&so.LockHeight,
			&so.IsCoinbase,
			&so.TxLogID,
		); err != nil {
			return nil, err
		}
		o, err := so.decode()
		if err != nil {
			return nil, err
		}
		outputs = append(outputs, *o)
	}
	return outputs, rows.Err()
}

func (s *Store) GetOutput(commit pedersen.Commitment) (*wallet.OutputData, error) {
	stmt, err := s.stmtcache.Prepare(queryGetOutput)
	if err != nil {
		return nil, err
	}

	var so sqlOutput
	if err := stmt.QueryRow(commit.String()).Scan(
		&so.Commit,
		&so.RootKeyID,
		&so.KeyID,
		&so.NChild,
		&so.Value,
		&so.Status,
		&so.Height,
		&so.LockHeight,
		&so.IsCoinbase,
		&so.TxLogID,
	); err != nil {
		if err == sql.ErrNoRows {
			return nil, wallet.ErrNotFound
		}
		return nil, err
	}
	return so.decode()
}

func (s *Store) TxLogEntries() ([]wallet.TxLogEntry, error) {
	stmt, err := s.stmtcache.Prepare(queryGetTxLogs)
	if err != nil {
		return nil, err
	}

	rows, err := stmt.Query()
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []wallet.TxLogEntry{}
	for rows.Next() {
		var st sqlTxLog
		if err := rows.Scan(
			&st.ParentKeyID,
			&st.ID,
			&st.SlateID,
			&st.TxType,
			&st.CreationTs,
			&st.ConfirmationTs,
			&st.Confirmed,
			&st.Posted,
			&st.NumInputs,
			&st.NumOutputs,
			&st.AmountCredited,
			&st.AmountDebited,
			&st.Fee,
			&st.Messages,
			&st.KernelExcess,
			&st.RelayKeyPath,
			&st.StoredTx,
			&st.StoredProof,
		); err != nil {
			return nil, err
		}
		t, err := st.decode()
		if err != nil {
			return nil, err
		}
		entries = append(entries, *t)
	}
	return entries, rows.Err()
}

func (s *Store) Payments(slateID uuid.UUID) ([]wallet.PaymentData, error) {
	stmt, err := s.stmtcache.Prepare(queryGetPaymentsBySlate)
	if err != nil {
		return nil, err
	}

	rows, err := stmt.Query(slateID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	payments := []wallet.PaymentData{}
	for rows.Next() {
		var sp sqlPayment
		if err := rows.Scan(
			&sp.Commit,
			&sp.Value,
			&sp.Status,
			&sp.Height,
			&sp.LockHeight,
			&sp.SlateID,
			&sp.TxID,
		); err != nil {
			return nil, err
		}
		p, err := sp.decode()
		if err != nil {
			return nil, err
		}
		payments = append(payments, *p)
	}
	return payments, rows.Err()
}

func (s *Store) PaymentEntries() ([]wallet.PaymentData, error) {
	stmt, err := s.stmtcache.Prepare(queryGetPayments)
	if err != nil {
		return nil, err
	}

	rows, err := stmt.Query()
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	payments := []wallet.PaymentData{}
	for rows.Next() {
		var sp sqlPayment
		if err := rows.Scan(
			&sp.Commit,
			&sp.Value,
			&sp.Status,
			&sp.Height,
			&sp.LockHeight,
			&sp.SlateID,
			&sp.TxID,
		); err != nil {
			return nil, err
		}
		p, err := sp.decode()
		if err != nil {
			return nil, err
		}
		payments = append(payments, *p)
	}
	return payments, rows.Err()
}

// NextChild reserves the next derivation index under parent. Indices
// are never reused, even when the derived output is later discarded.
func (s *Store) NextChild(parent keychain.Identifier) (uint32, error) {
	stmt, err := s.stmtcache.Prepare(queryNextDerivIndex)
	if err != nil {
		return 0, err
	}

	var next int64
	if err := stmt.QueryRow(parent.String()).Scan(&next); err != nil {
		return 0, err
	}
	// next_index holds the count of reserved indices; the index being
	// handed out is one less.
	return uint32(next - 1), nil
}

func (s *Store) StoreTx(key string, tx *core.Transaction) error {
	data, err := json.Marshal(tx)
	if err != nil {
		return err
	}

	stmt, err := s.stmtcache.Prepare(queryUpsertStoredTx)
	if err != nil {
		return err
	}
	_, err = stmt.Exec(key, data)
	return err
}

func (s *Store) GetStoredTx(key string) (*core.Transaction, error) {
	stmt, err := s.stmtcache.Prepare(queryGetStoredTx)
	if err != nil {
		return nil, err
	}

	var data []byte
	if err := stmt.QueryRow(key).Scan(&data); err != nil {
		if err == sql.ErrNoRows {
			return nil, wallet.ErrNotFound
		}
		return nil, err
	}

	tx := &core.Transaction{}
	if err := json.Unmarshal(data, tx); err != nil {
		return nil, err
	}
	return tx, nil
}

func (s *Store) StoreTxProof(key string, proof []byte) error {
	stmt, err := s.stmtcache.Prepare(queryUpsertStoredProof)
	if err != nil {
		return err
	}
	_, err = stmt.Exec(key, proof)
	return err
}

func (s *Store) GetStoredTxProof(key string) ([]byte, error) {
	stmt, err := s.stmtcache.Prepare(queryGetStoredProof)
	if err != nil {
		return nil, err
	}

	var data []byte
	if err := stmt.QueryRow(key).Scan(&data); err != nil {
		if err == sql.ErrNoRows {
			return nil, wallet.ErrNotFound
		}
		return nil, err
	}
	return data, nil
}
