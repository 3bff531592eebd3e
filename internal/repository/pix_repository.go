package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vkultra/mitski/internal/models"
)

// PixRepository persists PIX payment intents tracked against the gateway.
type PixRepository struct {
	db *sql.DB
}

func NewPixRepository(db *sql.DB) *PixRepository {
	return &PixRepository{db: db}
}

const pixColumns = `id, bot_id, user_id, offer_id, upsell_id, tracker_id, amount_cents, status, external_id, created_at, paid_at`

func scanPix(row interface{ Scan(...any) error }) (*models.PixTransaction, error) {
	var p models.PixTransaction
	if err := row.Scan(&p.ID, &p.BotID, &p.UserID, &p.OfferID, &p.UpsellID, &p.TrackerID, &p.AmountCents, &p.Status, &p.ExternalID, &p.CreatedAt, &p.PaidAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan pix transaction: %w", err)
	}
	return &p, nil
}

func (r *PixRepository) FindByID(ctx context.Context, id int64) (*models.PixTransaction, error) {
	query := `SELECT ` + pixColumns + ` FROM pix_transactions WHERE id = ?`
	return scanPix(r.db.QueryRowContext(ctx, query, id))
}

func (r *PixRepository) FindByExternalID(ctx context.Context, externalID string) (*models.PixTransaction, error) {
	query := `SELECT ` + pixColumns + ` FROM pix_transactions WHERE external_id = ?`
	return scanPix(r.db.QueryRowContext(ctx, query, externalID))
}

func (r *PixRepository) Create(ctx context.Context, p *models.PixTransaction) (*models.PixTransaction, error) {
	const query = `
INSERT INTO pix_transactions (bot_id, user_id, offer_id, upsell_id, tracker_id, amount_cents, status, external_id)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := r.db.ExecContext(ctx, query, p.BotID, p.UserID, p.OfferID, p.UpsellID, p.TrackerID, p.AmountCents, p.Status, p.ExternalID)
	if err != nil {
		return nil, fmt.Errorf("insert pix transaction: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return r.FindByID(ctx, id)
}

// MarkPaid transitions a transaction to paid, guarded so a duplicate
// webhook delivery is a no-op (affected==0) rather than a double-fire.
func (r *PixRepository) MarkPaid(ctx context.Context, id int64) (bool, error) {
	const query = `UPDATE pix_transactions SET status = ?, paid_at = NOW() WHERE id = ? AND status != ?`
	res, err := r.db.ExecContext(ctx, query, models.PixPaid, id, models.PixPaid)
	if err != nil {
		return false, fmt.Errorf("mark pix paid: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark pix paid rows affected: %w", err)
	}
	return affected > 0, nil
}

func (r *PixRepository) MarkDelivered(ctx context.Context, id int64) error {
	const query = `UPDATE pix_transactions SET status = ? WHERE id = ?`
	if _, err := r.db.ExecContext(ctx, query, models.PixDelivered, id); err != nil {
		return fmt.Errorf("mark pix delivered: %w", err)
	}
	return nil
}

// HasPriorTransaction reports whether (bot,user) has any earlier PIX
// transaction, optionally restricted to a "delivered" outcome. Backs the
// "first paid transaction" feature-flag decision in spec §9.
func (r *PixRepository) HasPriorTransaction(ctx context.Context, botID, userID int64, requireDelivered bool, excludeID int64) (bool, error) {
	query := `SELECT COUNT(*) FROM pix_transactions WHERE bot_id = ? AND user_id = ? AND id != ?`
	args := []any{botID, userID, excludeID}
	if requireDelivered {
		query += ` AND status = ?`
		args = append(args, models.PixDelivered)
	} else {
		query += ` AND status IN (?, ?)`
		args = append(args, models.PixPaid, models.PixDelivered)
	}
	row := r.db.QueryRowContext(ctx, query, args...)
	var count int
	if err := row.Scan(&count); err != nil {
		return false, fmt.Errorf("count prior transactions: %w", err)
	}
	return count > 0, nil
}

// FindPendingSince looks up the most recent non-terminal PIX transaction
// for (bot,user) created at or after since, backing the manual-
// verification trigger's "pending PIX in the last 15 minutes" lookup
// (spec §4.5 step 11).
func (r *PixRepository) FindPendingSince(ctx context.Context, botID, userID int64, since time.Time) (*models.PixTransaction, error) {
	query := `SELECT ` + pixColumns + ` FROM pix_transactions
WHERE bot_id = ? AND user_id = ? AND created_at >= ? AND status IN (?, ?, ?)
ORDER BY created_at DESC LIMIT 1`
	row := r.db.QueryRowContext(ctx, query, botID, userID, since, models.PixCreated, models.PixPending, models.PixPaid)
	return scanPix(row)
}
