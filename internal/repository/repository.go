// Package repository persists escrows, setup snapshots, and audit entries
// in SQLite through modernc.org/sqlite, a pure-Go driver that keeps the
// coordinator a single-binary deployment with no CGO dependency.
package repository

import (
	"context"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"time"

	_ "modernc.org/sqlite"

	"github.com/yourusername/xmrescrow/internal/coreerrors"
	"github.com/yourusername/xmrescrow/internal/models"
)

// Repository is the SQL-backed state repository.
type Repository struct {
	db        *sql.DB
	fieldKey  [32]byte
	encrypt   func(plaintext []byte, key [32]byte) ([]byte, error)
	decrypt   func(data []byte, key [32]byte) ([]byte, error)
}

// Open opens (creating if absent) a SQLite database at path and applies
// the schema. fieldKey is the process-wide AEAD key used to wrap
// snapshots that carry an encrypted key-exchange blob before storage.
func Open(path string, fieldKey [32]byte, encrypt func([]byte, [32]byte) ([]byte, error), decrypt func([]byte, [32]byte) ([]byte, error)) (*Repository, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, coreerrors.Wrap(coreerrors.KindTransient, err, "opening sqlite database")
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite serializes writers anyway; avoids SQLITE_BUSY under the repository's own locking
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, coreerrors.Wrap(coreerrors.KindTransient, err, "applying schema")
	}
	return &Repository{db: db, fieldKey: fieldKey, encrypt: encrypt, decrypt: decrypt}, nil
}

// Close releases the underlying database connection.
func (r *Repository) Close() error {
	return r.db.Close()
}

// SavePhase writes both the indexed status-query column and the JSON
// snapshot in a single transaction. Snapshots carrying encrypted
// key-exchange blobs are themselves wrapped
// in one outer AEAD envelope, base64-encoded, before storage.
func (r *Repository) SavePhase(ctx context.Context, escrowID string, phase models.SetupPhase, snapshot *models.SetupSnapshot) error {
	phaseTag, err := phaseTagOf(phase)
	if err != nil {
		return err
	}

	envelope, err := encodeSnapshot(snapshot, r.fieldKey, r.encrypt)
	if err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return coreerrors.Wrap(coreerrors.KindTransient, err, "starting transaction")
	}
	defer tx.Rollback()

	now := time.Now().Unix()
	res, err := tx.ExecContext(ctx, `UPDATE escrows SET multisig_phase = ?, multisig_state_json = ?, multisig_updated_at = ?, updated_at = ? WHERE id = ?`,
		phaseTag, envelope, now, now, escrowID)
	if err != nil {
		return coreerrors.Wrap(coreerrors.KindTransient, err, "updating escrow phase")
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return coreerrors.Wrap(coreerrors.KindTransient, err, "checking rows affected")
	}
	if rows == 0 {
		return coreerrors.InvalidState("no escrow row exists for id %q", escrowID)
	}

	return tx.Commit()
}

// LoadSnapshot returns the persisted snapshot for escrowID, or nil if
// none exists. It detects the outer AEAD envelope by attempting base64
// decode first, falling back to plaintext JSON for legacy/unsensitive
// snapshots, and validates the decoded snapshot's structural invariants.
func (r *Repository) LoadSnapshot(ctx context.Context, escrowID string) (*models.SetupSnapshot, error) {
	var phaseTag string
	var stateJSON sql.NullString
	err := r.db.QueryRowContext(ctx, `SELECT multisig_phase, multisig_state_json FROM escrows WHERE id = ?`, escrowID).Scan(&phaseTag, &stateJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, coreerrors.Wrap(coreerrors.KindTransient, err, "loading snapshot")
	}
	if !stateJSON.Valid || stateJSON.String == "" {
		return nil, nil
	}

	snapshot, err := decodeSnapshot([]byte(stateJSON.String), r.fieldKey, r.decrypt)
	if err != nil {
		return nil, err
	}
	if err := snapshot.Validate(); err != nil {
		return nil, err
	}
	return snapshot, nil
}

// GetPhase returns only the indexed phase tag column for escrowID.
func (r *Repository) GetPhase(ctx context.Context, escrowID string) (string, error) {
	var phaseTag string
	err := r.db.QueryRowContext(ctx, `SELECT multisig_phase FROM escrows WHERE id = ?`, escrowID).Scan(&phaseTag)
	if err == sql.ErrNoRows {
		return "", coreerrors.InvalidState("no escrow row exists for id %q", escrowID)
	}
	if err != nil {
		return "", coreerrors.Wrap(coreerrors.KindTransient, err, "loading phase")
	}
	return phaseTag, nil
}

// MarkFailed transitions an escrow's setup phase to failed with reason,
// used when the engine or an operator needs to halt setup out-of-band.
func (r *Repository) MarkFailed(ctx context.Context, escrowID string, reason string) error {
	phase := models.PhaseFailed{Reason: reason, FailedAt: time.Now()}
	snapshot, err := r.LoadSnapshot(ctx, escrowID)
	if err != nil {
		return err
	}
	if snapshot == nil {
		return coreerrors.InvalidState("no setup snapshot exists for escrow %q", escrowID)
	}
	return r.SavePhase(ctx, escrowID, phase, snapshot)
}

// FindActiveEscrows returns escrow ids whose status is in
// {created, funded, releasing, refunding} and whose setup phase has not
// yet reached a terminal phase.
func (r *Repository) FindActiveEscrows(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id FROM escrows
		WHERE status IN ('created', 'funded', 'releasing', 'refunding')
		AND multisig_phase NOT IN ('ready', 'failed')
	`)
	if err != nil {
		return nil, coreerrors.Wrap(coreerrors.KindTransient, err, "querying active escrows")
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, coreerrors.Wrap(coreerrors.KindTransient, err, "scanning active escrow row")
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// FindStuckEscrows returns ids whose setup phase is intermediate
// (not ready/failed/not_started) and whose snapshot has not been updated
// within olderThan.
func (r *Repository) FindStuckEscrows(ctx context.Context, olderThan time.Duration) ([]string, error) {
	cutoff := time.Now().Add(-olderThan).Unix()
	rows, err := r.db.QueryContext(ctx, `
		SELECT id FROM escrows
		WHERE multisig_phase IN ('preparing', 'exchanging')
		AND multisig_updated_at < ?
	`, cutoff)
	if err != nil {
		return nil, coreerrors.Wrap(coreerrors.KindTransient, err, "querying stuck escrows")
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, coreerrors.Wrap(coreerrors.KindTransient, err, "scanning stuck escrow row")
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func phaseTagOf(phase models.SetupPhase) (string, error) {
	data, err := models.MarshalSetupPhase(phase)
	if err != nil {
		return "", err
	}
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return "", coreerrors.Validation("failed to extract phase tag: %v", err)
	}
	return env.Type, nil
}

// snapshotWire is the JSON shape persisted for a SetupSnapshot, holding
// the phase envelope alongside the rest of the snapshot fields.
type snapshotWire struct {
	Phase          json.RawMessage         `json:"phase"`
	WalletIDs      map[models.Role]string  `json:"wallet_ids"`
	RPCURLs        map[models.Role]string  `json:"rpc_urls"`
	EncryptedInfos map[models.Role][]byte  `json:"encrypted_infos,omitempty"`
	SchemaVersion  int                     `json:"schema_version"`
}

// encodeSnapshot serializes a snapshot and, if it carries any encrypted
// key-exchange blob, wraps the whole JSON document in one outer AEAD
// envelope and base64-encodes it.
func encodeSnapshot(snapshot *models.SetupSnapshot, fieldKey [32]byte, encrypt func([]byte, [32]byte) ([]byte, error)) (string, error) {
	phaseJSON, err := models.MarshalSetupPhase(snapshot.Phase)
	if err != nil {
		return "", err
	}
	wire := snapshotWire{
		Phase:          phaseJSON,
		WalletIDs:      snapshot.WalletIDs,
		RPCURLs:        snapshot.RPCURLs,
		EncryptedInfos: snapshot.EncryptedInfos,
		SchemaVersion:  snapshot.SchemaVersion,
	}
	plain, err := json.Marshal(wire)
	if err != nil {
		return "", coreerrors.Validation("failed to encode snapshot: %v", err)
	}

	if len(snapshot.EncryptedInfos) == 0 {
		return string(plain), nil
	}

	sealed, err := encrypt(plain, fieldKey)
	if err != nil {
		return "", coreerrors.Wrap(coreerrors.KindTransient, err, "sealing snapshot envelope")
	}
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// decodeSnapshot reverses encodeSnapshot: it attempts base64 decode
// first (the sensitive-snapshot path), falling back to plaintext JSON for
// legacy or unsensitive snapshots.
func decodeSnapshot(data []byte, fieldKey [32]byte, decrypt func([]byte, [32]byte) ([]byte, error)) (*models.SetupSnapshot, error) {
	plain := data
	if sealed, err := base64.StdEncoding.DecodeString(string(data)); err == nil {
		if opened, err := decrypt(sealed, fieldKey); err == nil {
			plain = opened
		}
	}

	var wire snapshotWire
	if err := json.Unmarshal(plain, &wire); err != nil {
		return nil, coreerrors.Validation("malformed snapshot JSON: %v", err)
	}
	phase, err := models.UnmarshalSetupPhase(wire.Phase)
	if err != nil {
		return nil, err
	}
	return &models.SetupSnapshot{
		Phase:          phase,
		WalletIDs:      wire.WalletIDs,
		RPCURLs:        wire.RPCURLs,
		EncryptedInfos: wire.EncryptedInfos,
		SchemaVersion:  wire.SchemaVersion,
	}, nil
}
