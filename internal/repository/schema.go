package repository

const schema = `
CREATE TABLE IF NOT EXISTS escrows (
	id TEXT PRIMARY KEY,
	order_id TEXT,
	buyer_id TEXT NOT NULL,
	vendor_id TEXT NOT NULL,
	arbiter_id TEXT NOT NULL,
	amount INTEGER NOT NULL,
	status TEXT NOT NULL,
	multisig_address TEXT,
	transaction_hash TEXT,
	multisig_phase TEXT NOT NULL,
	multisig_state_json TEXT,
	multisig_updated_at INTEGER NOT NULL,
	dispute_json TEXT,
	expires_at INTEGER,
	last_activity_at INTEGER NOT NULL,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_escrows_status ON escrows(status);
CREATE INDEX IF NOT EXISTS idx_escrows_multisig_phase ON escrows(multisig_phase);

CREATE TABLE IF NOT EXISTS audit_log (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	event_type TEXT NOT NULL,
	entity_id TEXT NOT NULL,
	data TEXT NOT NULL,
	timestamp TEXT NOT NULL,
	entry_hash BLOB NOT NULL,
	previous_hash BLOB,
	actor TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_audit_log_entity ON audit_log(entity_id);

CREATE TABLE IF NOT EXISTS wallet_rpc_configs (
	wallet_id TEXT PRIMARY KEY,
	escrow_id TEXT NOT NULL REFERENCES escrows(id) ON DELETE CASCADE,
	role TEXT NOT NULL,
	rpc_url_encrypted BLOB NOT NULL,
	rpc_user_encrypted BLOB,
	rpc_password_encrypted BLOB,
	created_at INTEGER NOT NULL,
	last_connected_at INTEGER,
	connection_attempts INTEGER NOT NULL DEFAULT 0,
	last_error TEXT
);

CREATE TABLE IF NOT EXISTS reviews (
	id TEXT PRIMARY KEY,
	txid TEXT NOT NULL,
	reviewer_id TEXT NOT NULL,
	vendor_id TEXT NOT NULL,
	rating INTEGER NOT NULL,
	comment TEXT,
	buyer_pubkey BLOB NOT NULL,
	signature BLOB NOT NULL,
	timestamp TEXT NOT NULL,
	verified INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_reviews_vendor ON reviews(vendor_id);
`
