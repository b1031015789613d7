package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/yourusername/xmrescrow/internal/coreerrors"
	"github.com/yourusername/xmrescrow/internal/cryptoutil"
	"github.com/yourusername/xmrescrow/internal/models"
)

// AppendAuditEntry inserts the next entry in the hash chain. It wraps
// "read current tail / insert new row / write new tail" in one
// transaction so the in-memory last_hash an audit logger might cache
// never diverges from the persisted tail, and derives the new hash only
// from the persisted previous row's content.
func (r *Repository) AppendAuditEntry(ctx context.Context, eventKind, entityID string, payload []byte, actor string) (*models.AuditEntry, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, coreerrors.Wrap(coreerrors.KindTransient, err, "starting audit transaction")
	}
	defer tx.Rollback()

	var previousHash []byte
	err = tx.QueryRowContext(ctx, `SELECT entry_hash FROM audit_log ORDER BY id DESC LIMIT 1`).Scan(&previousHash)
	if err != nil && err != sql.ErrNoRows {
		return nil, coreerrors.Wrap(coreerrors.KindTransient, err, "reading audit chain tail")
	}

	now := time.Now()
	entryHash := cryptoutil.ChainEntryHash(payload, now, previousHash)

	res, err := tx.ExecContext(ctx, `
		INSERT INTO audit_log (event_type, entity_id, data, timestamp, entry_hash, previous_hash, actor)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, eventKind, entityID, string(payload), now.Format(time.RFC3339Nano), entryHash, nullableBytes(previousHash), actor)
	if err != nil {
		return nil, coreerrors.Wrap(coreerrors.KindTransient, err, "inserting audit entry")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, coreerrors.Wrap(coreerrors.KindTransient, err, "reading inserted audit id")
	}

	if err := tx.Commit(); err != nil {
		return nil, coreerrors.Wrap(coreerrors.KindTransient, err, "committing audit transaction")
	}

	return &models.AuditEntry{
		ID:           id,
		EventKind:    eventKind,
		EntityID:     entityID,
		PayloadJSON:  payload,
		Timestamp:    now,
		EntryHash:    entryHash,
		PreviousHash: previousHash,
		Actor:        actor,
	}, nil
}

func nullableBytes(b []byte) interface{} {
	if b == nil {
		return nil
	}
	return b
}

// AuditEntriesForEntity returns every audit entry for entityID in
// insertion order.
func (r *Repository) AuditEntriesForEntity(ctx context.Context, entityID string) ([]*models.AuditEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, event_type, entity_id, data, timestamp, entry_hash, previous_hash, actor
		FROM audit_log WHERE entity_id = ? ORDER BY id ASC
	`, entityID)
	if err != nil {
		return nil, coreerrors.Wrap(coreerrors.KindTransient, err, "querying audit entries")
	}
	defer rows.Close()
	return scanAuditRows(rows)
}

// AllAuditEntries returns the full chain in insertion order, used by
// verify_integrity to walk from the root.
func (r *Repository) AllAuditEntries(ctx context.Context) ([]*models.AuditEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, event_type, entity_id, data, timestamp, entry_hash, previous_hash, actor
		FROM audit_log ORDER BY id ASC
	`)
	if err != nil {
		return nil, coreerrors.Wrap(coreerrors.KindTransient, err, "querying audit chain")
	}
	defer rows.Close()
	return scanAuditRows(rows)
}

func scanAuditRows(rows *sql.Rows) ([]*models.AuditEntry, error) {
	var out []*models.AuditEntry
	for rows.Next() {
		var entry models.AuditEntry
		var data, timestamp string
		var previousHash []byte
		if err := rows.Scan(&entry.ID, &entry.EventKind, &entry.EntityID, &data, &timestamp, &entry.EntryHash, &previousHash, &entry.Actor); err != nil {
			return nil, coreerrors.Wrap(coreerrors.KindTransient, err, "scanning audit row")
		}
		entry.PayloadJSON = []byte(data)
		ts, err := time.Parse(time.RFC3339Nano, timestamp)
		if err != nil {
			return nil, coreerrors.Validation("malformed audit timestamp %q: %v", timestamp, err)
		}
		entry.Timestamp = ts
		entry.PreviousHash = previousHash
		out = append(out, &entry)
	}
	return out, rows.Err()
}
