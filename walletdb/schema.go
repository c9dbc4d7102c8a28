package walletdb

var (
	outputTable = `CREATE TABLE IF NOT EXISTS output (
		commit_str CHAR(66) PRIMARY KEY NOT NULL,
		root_key_id CHAR(32) NOT NULL,
		key_id CHAR(32) NOT NULL,
		n_child INT NOT NULL,
		value BIGINT NOT NULL,
		status VARCHAR(12) NOT NULL,
		height BIGINT NOT NULL,
		lock_height BIGINT NOT NULL,
		is_coinbase BOOLEAN NOT NULL DEFAULT FALSE,
		tx_log_id INT,
		CONSTRAINT chk_status CHECK (status IN
			('unconfirmed', 'unspent', 'locked', 'confirmed', 'spent', 'cancelled'))
	);`

	txLogTable = `CREATE TABLE IF NOT EXISTS tx_log (
		parent_key_id CHAR(32) NOT NULL,
		id INT NOT NULL,
		slate_id CHAR(36),
		tx_type VARCHAR(20) NOT NULL,
		creation_ts TIMESTAMP NOT NULL,
		confirmation_ts TIMESTAMP,
		confirmed BOOLEAN NOT NULL DEFAULT FALSE,
		posted BOOLEAN NOT NULL DEFAULT FALSE,
		num_inputs INT NOT NULL DEFAULT 0,
		num_outputs INT NOT NULL DEFAULT 0,
		amount_credited BIGINT NOT NULL DEFAULT 0,
		amount_debited BIGINT NOT NULL DEFAULT 0,
		fee BIGINT,
		messages BLOB,
		kernel_excess CHAR(66),
		relay_key_path BIGINT,
		stored_tx TEXT,
		stored_proof TEXT,
		PRIMARY KEY (parent_key_id, id),
		CONSTRAINT chk_tx_type CHECK (tx_type IN
			('TxSent', 'TxReceived', 'TxSentCancelled', 'TxReceivedCancelled'))
	);`

	paymentTable = `CREATE TABLE IF NOT EXISTS payment (
		commit_str CHAR(66) PRIMARY KEY NOT NULL,
		value BIGINT NOT NULL,
		status VARCHAR(12) NOT NULL,
		height BIGINT NOT NULL,
		lock_height BIGINT NOT NULL,
		slate_id CHAR(36) NOT NULL,
		tx_id INT
	);`

	derivIndexTable = `CREATE TABLE IF NOT EXISTS deriv_index (
		parent CHAR(32) PRIMARY KEY NOT NULL,
		next_index INT NOT NULL DEFAULT 0
	);`

	txLogIndexTable = `CREATE TABLE IF NOT EXISTS tx_log_index (
		parent CHAR(32) PRIMARY KEY NOT NULL,
		next_id INT NOT NULL DEFAULT 0
	);`

	storedTxTable = `CREATE TABLE IF NOT EXISTS stored_tx (
		key TEXT PRIMARY KEY NOT NULL,
		data BLOB NOT NULL
	);`

	storedProofTable = `CREATE TABLE IF NOT EXISTS stored_proof (
		key TEXT PRIMARY KEY NOT NULL,
		data BLOB NOT NULL
	);`

	queryUpsertOutput = `INSERT INTO output (
		commit_str, root_key_id, key_id, n_child, value, status, height,
		lock_height, is_coinbase, tx_log_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(commit_str) DO UPDATE SET
		root_key_id=excluded.root_key_id, key_id=excluded.key_id,
		n_child=excluded.n_child, value=excluded.value,
		status=excluded.status, height=excluded.height,
		lock_height=excluded.lock_height, is_coinbase=excluded.is_coinbase,
		tx_log_id=excluded.tx_log_id;`
	queryGetOutput    = `SELECT * FROM output WHERE commit_str = ?;`
	queryGetOutputs   = `SELECT * FROM output ORDER BY height ASC, commit_str ASC;`
	queryDeleteOutput = `DELETE FROM output WHERE commit_str = ?;`

	queryUpsertTxLog = `INSERT INTO tx_log (
		parent_key_id, id, slate_id, tx_type, creation_ts, confirmation_ts,
		confirmed, posted, num_inputs, num_outputs, amount_credited,
		amount_debited, fee, messages, kernel_excess, relay_key_path,
		stored_tx, stored_proof)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(parent_key_id, id) DO UPDATE SET
		slate_id=excluded.slate_id, tx_type=excluded.tx_type,
		creation_ts=excluded.creation_ts,
		confirmation_ts=excluded.confirmation_ts,
		confirmed=excluded.confirmed, posted=excluded.posted,
		num_inputs=excluded.num_inputs, num_outputs=excluded.num_outputs,
		amount_credited=excluded.amount_credited,
		amount_debited=excluded.amount_debited, fee=excluded.fee,
		messages=excluded.messages, kernel_excess=excluded.kernel_excess,
		relay_key_path=excluded.relay_key_path,
		stored_tx=excluded.stored_tx, stored_proof=excluded.stored_proof;`
	queryGetTxLogs = `SELECT * FROM tx_log ORDER BY parent_key_id ASC, id ASC;`

	queryUpsertPayment = `INSERT INTO payment (
		commit_str, value, status, height, lock_height, slate_id, tx_id)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(commit_str) DO UPDATE SET
		value=excluded.value, status=excluded.status,
		height=excluded.height, lock_height=excluded.lock_height,
		slate_id=excluded.slate_id, tx_id=excluded.tx_id;`
	queryGetPaymentsBySlate = `SELECT * FROM payment WHERE slate_id = ?;`
	queryGetPayments        = `SELECT * FROM payment ORDER BY height ASC, commit_str ASC;`
	queryDeletePayments     = `DELETE FROM payment WHERE slate_id = ?;`

	queryNextDerivIndex = `INSERT INTO deriv_index (parent, next_index)
		VALUES (?, 1)
		ON CONFLICT(parent) DO UPDATE SET next_index = next_index + 1
		RETURNING next_index;`
	queryNextTxLogID = `INSERT INTO tx_log_index (parent, next_id)
		VALUES (?, 1)
		ON CONFLICT(parent) DO UPDATE SET next_id = next_id + 1
		RETURNING next_id;`

	queryUpsertStoredTx = `INSERT INTO stored_tx (key, data) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET data=excluded.data;`
	queryGetStoredTx = `SELECT data FROM stored_tx WHERE key = ?;`

	queryUpsertStoredProof = `INSERT INTO stored_proof (key, data) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET data=excluded.data;`
	queryGetStoredProof = `SELECT data FROM stored_proof WHERE key = ?;`
)
