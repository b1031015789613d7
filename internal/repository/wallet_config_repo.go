package repository

import (
	"context"
	"time"

	"github.com/yourusername/xmrescrow/internal/coreerrors"
	"github.com/yourusername/xmrescrow/internal/models"
)

// SaveWalletRPCConfig persists a participant's RPC endpoint under
// encryption in the wallet_rpc_configs table. The live client handle
// itself belongs to the session pool, not the repository.
func (r *Repository) SaveWalletRPCConfig(ctx context.Context, walletID, escrowID string, role models.Role, rpcURL, rpcUser, rpcPassword string) error {
	encURL, err := r.encrypt([]byte(rpcURL), r.fieldKey)
	if err != nil {
		return coreerrors.Wrap(coreerrors.KindTransient, err, "encrypting rpc url")
	}
	var encUser, encPassword interface{}
	if rpcUser != "" {
		v, err := r.encrypt([]byte(rpcUser), r.fieldKey)
		if err != nil {
			return coreerrors.Wrap(coreerrors.KindTransient, err, "encrypting rpc user")
		}
		encUser = v
	}
	if rpcPassword != "" {
		v, err := r.encrypt([]byte(rpcPassword), r.fieldKey)
		if err != nil {
			return coreerrors.Wrap(coreerrors.KindTransient, err, "encrypting rpc password")
		}
		encPassword = v
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO wallet_rpc_configs (wallet_id, escrow_id, role, rpc_url_encrypted, rpc_user_encrypted, rpc_password_encrypted, created_at, connection_attempts)
		VALUES (?, ?, ?, ?, ?, ?, ?, 0)
		ON CONFLICT(wallet_id) DO UPDATE SET rpc_url_encrypted = excluded.rpc_url_encrypted,
			rpc_user_encrypted = excluded.rpc_user_encrypted, rpc_password_encrypted = excluded.rpc_password_encrypted
	`, walletID, escrowID, string(role), encURL, encUser, encPassword, time.Now().Unix())
	if err != nil {
		return coreerrors.Wrap(coreerrors.KindTransient, err, "saving wallet rpc config")
	}
	return nil
}

// RecordConnectionAttempt updates the connection bookkeeping columns
// after an attempt to reach the wallet daemon, whether or not it
// succeeded.
func (r *Repository) RecordConnectionAttempt(ctx context.Context, walletID string, succeeded bool, lastError string) error {
	if succeeded {
		_, err := r.db.ExecContext(ctx, `
			UPDATE wallet_rpc_configs SET last_connected_at = ?, connection_attempts = connection_attempts + 1, last_error = NULL WHERE wallet_id = ?
		`, time.Now().Unix(), walletID)
		if err != nil {
			return coreerrors.Wrap(coreerrors.KindTransient, err, "recording successful connection")
		}
		return nil
	}
	_, err := r.db.ExecContext(ctx, `
		UPDATE wallet_rpc_configs SET connection_attempts = connection_attempts + 1, last_error = ? WHERE wallet_id = ?
	`, lastError, walletID)
	if err != nil {
		return coreerrors.Wrap(coreerrors.KindTransient, err, "recording failed connection")
	}
	return nil
}

// LoadWalletRPCURL decrypts and returns the stored RPC URL for walletID.
func (r *Repository) LoadWalletRPCURL(ctx context.Context, walletID string) (string, error) {
	var encURL []byte
	err := r.db.QueryRowContext(ctx, `SELECT rpc_url_encrypted FROM wallet_rpc_configs WHERE wallet_id = ?`, walletID).Scan(&encURL)
	if err != nil {
		return "", coreerrors.Wrap(coreerrors.KindTransient, err, "loading wallet rpc config")
	}
	plain, err := r.decrypt(encURL, r.fieldKey)
	if err != nil {
		return "", coreerrors.Wrap(coreerrors.KindProtocol, err, "decrypting wallet rpc url")
	}
	return string(plain), nil
}
