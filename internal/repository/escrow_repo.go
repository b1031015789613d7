package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/yourusername/xmrescrow/internal/coreerrors"
	"github.com/yourusername/xmrescrow/internal/models"
)

// CreateEscrow inserts e as a new escrow row with its given status and a
// not_started setup phase.
func (r *Repository) CreateEscrow(ctx context.Context, e *models.Escrow) error {
	if err := e.Validate(); err != nil {
		return err
	}
	phaseJSON, err := encodeSnapshot(&models.SetupSnapshot{
		Phase:         models.PhaseNotStarted{},
		WalletIDs:     map[models.Role]string{},
		RPCURLs:       map[models.Role]string{},
		SchemaVersion: models.CurrentSnapshotSchemaVersion,
	}, r.fieldKey, r.encrypt)
	if err != nil {
		return err
	}

	now := time.Now().Unix()
	var expiresAt sql.NullInt64
	if e.ExpiresAt != nil {
		expiresAt = sql.NullInt64{Int64: e.ExpiresAt.Unix(), Valid: true}
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO escrows (id, order_id, buyer_id, vendor_id, arbiter_id, amount, status,
			multisig_phase, multisig_state_json, multisig_updated_at, dispute_json, expires_at,
			last_activity_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, e.ID, e.OrderID, e.BuyerID, e.VendorID, e.ArbiterID, e.AmountAtomic, string(e.Status),
		"not_started", phaseJSON, now, nil, expiresAt, now, now, now)
	if err != nil {
		return coreerrors.Wrap(coreerrors.KindTransient, err, "inserting escrow")
	}
	return nil
}

// GetEscrow loads an escrow by id.
func (r *Repository) GetEscrow(ctx context.Context, id string) (*models.Escrow, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, order_id, buyer_id, vendor_id, arbiter_id, amount, status,
			multisig_address, transaction_hash, multisig_state_json, dispute_json,
			expires_at, last_activity_at, created_at, updated_at
		FROM escrows WHERE id = ?
	`, id)
	return scanEscrow(row, r)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanEscrow(row rowScanner, r *Repository) (*models.Escrow, error) {
	var e models.Escrow
	var orderID, multisigAddress, txHash, stateJSON, disputeJSON sql.NullString
	var expiresAt sql.NullInt64
	var status string
	var lastActivity, createdAt, updatedAt int64

	err := row.Scan(&e.ID, &orderID, &e.BuyerID, &e.VendorID, &e.ArbiterID, &e.AmountAtomic, &status,
		&multisigAddress, &txHash, &stateJSON, &disputeJSON, &expiresAt, &lastActivity, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, coreerrors.Wrap(coreerrors.KindTransient, err, "scanning escrow row")
	}

	e.OrderID = orderID.String
	e.Status = models.EscrowStatus(status)
	e.MultisigAddress = multisigAddress.String
	e.TransactionHash = txHash.String
	e.LastActivityAt = time.Unix(lastActivity, 0)
	e.CreatedAt = time.Unix(createdAt, 0)
	e.UpdatedAt = time.Unix(updatedAt, 0)
	if expiresAt.Valid {
		t := time.Unix(expiresAt.Int64, 0)
		e.ExpiresAt = &t
	}
	if stateJSON.Valid && stateJSON.String != "" {
		snapshot, err := decodeSnapshot([]byte(stateJSON.String), r.fieldKey, r.decrypt)
		if err == nil {
			e.Phase = snapshot.Phase
		}
	}
	if e.Phase == nil {
		e.Phase = models.PhaseNotStarted{}
	}
	if disputeJSON.Valid && disputeJSON.String != "" {
		var dispute models.DisputeRecord
		if err := json.Unmarshal([]byte(disputeJSON.String), &dispute); err == nil {
			e.Dispute = &dispute
		}
	}
	return &e, nil
}

// SaveDispute persists dispute as the escrow's current dispute record,
// the same multisig_state_json-adjacent column the original stores
// dispute_data in, so GetEscrow reloads opened_by/buyer_claim/
// vendor_response/evidence for the arbitration engine and the air-gap
// export packet.
func (r *Repository) SaveDispute(ctx context.Context, escrowID string, dispute *models.DisputeRecord) error {
	data, err := json.Marshal(dispute)
	if err != nil {
		return coreerrors.Wrap(coreerrors.KindValidation, err, "encoding dispute record")
	}
	res, err := r.db.ExecContext(ctx, `UPDATE escrows SET dispute_json = ? WHERE id = ?`, string(data), escrowID)
	if err != nil {
		return coreerrors.Wrap(coreerrors.KindTransient, err, "saving dispute record")
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return coreerrors.Wrap(coreerrors.KindTransient, err, "checking rows affected")
	}
	if rows == 0 {
		return coreerrors.InvalidState("no escrow row exists for id %q", escrowID)
	}
	return nil
}

// UpdateStatus transitions an escrow's status column and refreshes
// last_activity_at in one statement, used by the escrow state machine
// after validating a transition is legal.
func (r *Repository) UpdateStatus(ctx context.Context, id string, newStatus models.EscrowStatus) error {
	now := time.Now().Unix()
	res, err := r.db.ExecContext(ctx, `UPDATE escrows SET status = ?, last_activity_at = ?, updated_at = ? WHERE id = ?`,
		string(newStatus), now, now, id)
	if err != nil {
		return coreerrors.Wrap(coreerrors.KindTransient, err, "updating escrow status")
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return coreerrors.Wrap(coreerrors.KindTransient, err, "checking rows affected")
	}
	if rows == 0 {
		return coreerrors.InvalidState("no escrow row exists for id %q", id)
	}
	return nil
}

// SetMultisigAddress records the derived multisig address once setup
// reaches the ready phase.
func (r *Repository) SetMultisigAddress(ctx context.Context, id, address string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE escrows SET multisig_address = ? WHERE id = ?`, address, id)
	if err != nil {
		return coreerrors.Wrap(coreerrors.KindTransient, err, "setting multisig address")
	}
	return nil
}

// SetTransactionHash records the release/refund transaction hash
// currently being confirmed.
func (r *Repository) SetTransactionHash(ctx context.Context, id, txHash string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE escrows SET transaction_hash = ? WHERE id = ?`, txHash, id)
	if err != nil {
		return coreerrors.Wrap(coreerrors.KindTransient, err, "setting transaction hash")
	}
	return nil
}

// terminalStatuses lists every status with no outgoing transition, for
// queries that must exclude them.
var terminalStatuses = []models.EscrowStatus{
	models.StatusCompleted, models.StatusRefunded, models.StatusCancelled,
	models.StatusExpired, models.StatusResolvedBuyer, models.StatusResolvedVendor,
}

// FindExpired returns every non-terminal escrow whose expires_at has
// already passed as of now, for the timeout monitor's first pass.
func (r *Repository) FindExpired(ctx context.Context, now time.Time) ([]*models.Escrow, error) {
	return r.queryByExpiry(ctx, `expires_at IS NOT NULL AND expires_at < ? AND status NOT IN (?,?,?,?,?,?)`, now.Unix())
}

// FindExpiringSoon returns every non-terminal escrow whose expires_at
// falls within [now, now+within), for the timeout monitor's warning pass.
func (r *Repository) FindExpiringSoon(ctx context.Context, now time.Time, within time.Duration) ([]*models.Escrow, error) {
	return r.queryByExpiry(ctx, `expires_at IS NOT NULL AND expires_at >= ? AND expires_at < ? AND status NOT IN (?,?,?,?,?,?)`,
		now.Unix(), now.Add(within).Unix())
}

func (r *Repository) queryByExpiry(ctx context.Context, whereClause string, timeArgs ...interface{}) ([]*models.Escrow, error) {
	args := append([]interface{}{}, timeArgs...)
	for _, s := range terminalStatuses {
		args = append(args, string(s))
	}
	query := `SELECT id, order_id, buyer_id, vendor_id, arbiter_id, amount, status,
		multisig_address, transaction_hash, multisig_state_json, dispute_json,
		expires_at, last_activity_at, created_at, updated_at
		FROM escrows WHERE ` + whereClause

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, coreerrors.Wrap(coreerrors.KindTransient, err, "querying escrows by expiry")
	}
	defer rows.Close()

	var out []*models.Escrow
	for rows.Next() {
		e, err := scanEscrow(rows, r)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ListByStatus returns every escrow whose status matches any of statuses.
func (r *Repository) ListByStatus(ctx context.Context, statuses ...models.EscrowStatus) ([]*models.Escrow, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	placeholders := make([]interface{}, len(statuses))
	query := `SELECT id, order_id, buyer_id, vendor_id, arbiter_id, amount, status,
		multisig_address, transaction_hash, multisig_state_json, dispute_json,
		expires_at, last_activity_at, created_at, updated_at
		FROM escrows WHERE status IN (`
	for i, s := range statuses {
		if i > 0 {
			query += ","
		}
		query += "?"
		placeholders[i] = string(s)
	}
	query += ")"

	rows, err := r.db.QueryContext(ctx, query, placeholders...)
	if err != nil {
		return nil, coreerrors.Wrap(coreerrors.KindTransient, err, "listing escrows by status")
	}
	defer rows.Close()

	var out []*models.Escrow
	for rows.Next() {
		e, err := scanEscrow(rows, r)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
