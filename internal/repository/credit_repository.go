package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vkultra/mitski/internal/apperr"
	"github.com/vkultra/mitski/internal/models"
)

// CreditRepository persists the per-admin BRL wallet and its append-only
// debit/credit ledger (spec §4.9).
type CreditRepository struct {
	db *sql.DB
}

func NewCreditRepository(db *sql.DB) *CreditRepository {
	return &CreditRepository{db: db}
}

func (r *CreditRepository) Balance(ctx context.Context, adminID int64) (int64, error) {
	const query = `SELECT balance_cents FROM credit_wallets WHERE admin_id = ?`
	row := r.db.QueryRowContext(ctx, query, adminID)
	var balance int64
	if err := row.Scan(&balance); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("scan wallet balance: %w", err)
	}
	return balance, nil
}

// Debit atomically checks balance >= amount and deducts it, appending a
// ledger row in the same transaction. Returns InsufficientCreditsError
// when the pre-check fails.
func (r *CreditRepository) Debit(ctx context.Context, adminID, amountCents int64, category models.CreditCategory, ref string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `INSERT INTO credit_wallets (admin_id, balance_cents) VALUES (?, 0) ON DUPLICATE KEY UPDATE admin_id = admin_id`, adminID); err != nil {
		return fmt.Errorf("ensure wallet: %w", err)
	}

	var balance int64
	if err := tx.QueryRowContext(ctx, `SELECT balance_cents FROM credit_wallets WHERE admin_id = ? FOR UPDATE`, adminID).Scan(&balance); err != nil {
		return fmt.Errorf("lock wallet: %w", err)
	}
	if balance < amountCents {
		return &apperr.InsufficientCreditsError{AdminID: adminID, EstimatedCents: amountCents, BalanceCents: balance}
	}

	if _, err := tx.ExecContext(ctx, `UPDATE credit_wallets SET balance_cents = balance_cents - ? WHERE admin_id = ?`, amountCents, adminID); err != nil {
		return fmt.Errorf("debit wallet: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO credit_ledger (admin_id, delta_cents, category, ref) VALUES (?, ?, ?, ?)`, adminID, -amountCents, category, ref); err != nil {
		return fmt.Errorf("insert ledger debit: %w", err)
	}

	return tx.Commit()
}

// Credit adds amountCents to the wallet (top-up or refund), appending a
// positive ledger row.
func (r *CreditRepository) Credit(ctx context.Context, adminID, amountCents int64, category models.CreditCategory, ref string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	const upsert = `
INSERT INTO credit_wallets (admin_id, balance_cents) VALUES (?, ?)
ON DUPLICATE KEY UPDATE balance_cents = balance_cents + VALUES(balance_cents)`
	if _, err := tx.ExecContext(ctx, upsert, adminID, amountCents); err != nil {
		return fmt.Errorf("credit wallet: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO credit_ledger (admin_id, delta_cents, category, ref) VALUES (?, ?, ?, ?)`, adminID, amountCents, category, ref); err != nil {
		return fmt.Errorf("insert ledger credit: %w", err)
	}

	return tx.Commit()
}

// ListLedger returns an admin's most recent ledger entries, newest first.
func (r *CreditRepository) ListLedger(ctx context.Context, adminID int64, limit int) ([]*models.CreditLedgerEntry, error) {
	const query = `
SELECT id, admin_id, delta_cents, category, ref, ts FROM credit_ledger
WHERE admin_id = ? ORDER BY ts DESC LIMIT ?`
	rows, err := r.db.QueryContext(ctx, query, adminID, limit)
	if err != nil {
		return nil, fmt.Errorf("list ledger: %w", err)
	}
	defer rows.Close()

	var entries []*models.CreditLedgerEntry
	for rows.Next() {
		var e models.CreditLedgerEntry
		if err := rows.Scan(&e.ID, &e.AdminID, &e.DeltaCents, &e.Category, &e.Ref, &e.Ts); err != nil {
			return nil, fmt.Errorf("scan ledger entry: %w", err)
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}
