package walletdb

import (
	"database/sql"

	"github.com/google/uuid"

	"github.com/mimblenet/mwwallet/keychain"
	"github.com/mimblenet/mwwallet/pedersen"
	"github.com/mimblenet/mwwallet/wallet"
)

// batch wraps one sqlite transaction.
type batch struct {
	tx *sql.Tx
}

func (b *batch) SaveOutput(o *wallet.OutputData) error {
	var so sqlOutput
	if _, err := so.encode(o); err != nil {
		return err
	}

	_, err := b.tx.Exec(queryUpsertOutput,
		so.Commit,
		so.RootKeyID,
		so.KeyID,
		so.NChild,
		so.Value,
		so.Status,
		so.Height,
		so.LockHeight,
		so.IsCoinbase,
		so.TxLogID,
	)
	return err
}

func (b *batch) DeleteOutput(commit pedersen.Commitment) error {
	_, err := b.tx.Exec(queryDeleteOutput, commit.String())
	return err
}

func (b *batch) SaveTxLogEntry(t *wallet.TxLogEntry) error {
	var st sqlTxLog
	if _, err := st.encode(t); err != nil {
		return err
	}

	_, err := b.tx.Exec(queryUpsertTxLog,
		st.ParentKeyID,
		st.ID,
		st.SlateID,
		st.TxType,
		st.CreationTs,
		st.ConfirmationTs,
		st.Confirmed,
		st.Posted,
		st.NumInputs,
		st.NumOutputs,
		st.AmountCredited,
		st.AmountDebited,
		st.Fee,
		st.Messages,
		st.KernelExcess,
		st.RelayKeyPath,
		st.StoredTx,
		st.StoredProof,
	)
	return err
}

// NextTxLogID reserves the next log id under parent within the batch,
// so the id assignment commits or rolls back with the entry using it.
func (b *batch) NextTxLogID(parent keychain.Identifier) (uint32, error) {
	var next int64
	if err := b.tx.QueryRow(queryNextTxLogID, parent.String()).Scan(&next); err != nil {
		return 0, err
	}
	return uint32(next - 1), nil
}

func (b *batch) SavePayment(p *wallet.PaymentData) error {
	var sp sqlPayment
	if _, err := sp.encode(p); err != nil {
		return err
	}

	_, err := b.tx.Exec(queryUpsertPayment,
		sp.Commit,
		sp.Value,
		sp.Status,
		sp.Height,
		sp.LockHeight,
		sp.SlateID,
		sp.TxID,
	)
	return err
}

func (b *batch) DeletePayments(slateID uuid.UUID) error {
	_, err := b.tx.Exec(queryDeletePayments, slateID.String())
	return err
}

func (b *batch) Commit() error   { return b.tx.Commit() }
func (b *batch) Rollback() error { return b.tx.Rollback() }
