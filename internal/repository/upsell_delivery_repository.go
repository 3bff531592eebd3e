package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/vkultra/mitski/internal/apperr"
	"github.com/vkultra/mitski/internal/models"
)

// UpsellDeliveryRepository persists the pre-saved upsell delivery rows
// created when a user's first sale activates the upsell flow, and the
// claim bookkeeping the periodic sweep (spec §4.7) uses to dispatch them
// exactly once.
type UpsellDeliveryRepository struct {
	db *sql.DB
}

func NewUpsellDeliveryRepository(db *sql.DB) *UpsellDeliveryRepository {
	return &UpsellDeliveryRepository{db: db}
}

// Create inserts a scheduled delivery row. A duplicate (bot,user,upsell)
// is reported as a Conflict — the flow was already activated for this
// user, so a second "first paid transaction" race is a no-op.
func (r *UpsellDeliveryRepository) Create(ctx context.Context, d *models.UpsellDelivery) error {
	const query = `
INSERT INTO upsell_deliveries (bot_id, user_id, upsell_id, status, scheduled_for)
VALUES (?, ?, ?, ?, ?)`
	res, err := r.db.ExecContext(ctx, query, d.BotID, d.UserID, d.UpsellID, d.Status, d.ScheduledFor)
	if err != nil {
		if isDuplicateKeyErr(err) {
			return &apperr.ConflictError{Resource: "upsell_delivery"}
		}
		return fmt.Errorf("insert upsell delivery: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	d.ID = id
	return nil
}

// ListDue returns scheduled deliveries whose time has arrived, for the
// scheduler's periodic sweep.
func (r *UpsellDeliveryRepository) ListDue(ctx context.Context, limit int) ([]*models.UpsellDelivery, error) {
	const query = `
SELECT id, bot_id, user_id, upsell_id, status, scheduled_for, sent_at
FROM upsell_deliveries WHERE status = 'scheduled' AND scheduled_for <= NOW() LIMIT ?`
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list due upsell deliveries: %w", err)
	}
	defer rows.Close()

	var out []*models.UpsellDelivery
	for rows.Next() {
		var d models.UpsellDelivery
		if err := rows.Scan(&d.ID, &d.BotID, &d.UserID, &d.UpsellID, &d.Status, &d.ScheduledFor, &d.SentAt); err != nil {
			return nil, fmt.Errorf("scan due upsell delivery: %w", err)
		}
		out = append(out, &d)
	}
	return out, rows.Err()
}

// Claim atomically transitions one delivery from scheduled to sent,
// acting as the row-level lock spec §4.7's periodic sweep relies on so
// concurrent sweep workers never double-dispatch the same row.
func (r *UpsellDeliveryRepository) Claim(ctx context.Context, id int64) (bool, error) {
	const query = `UPDATE upsell_deliveries SET status = 'sent', sent_at = NOW() WHERE id = ? AND status = 'scheduled'`
	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("claim upsell delivery: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claim upsell delivery rows affected: %w", err)
	}
	return affected > 0, nil
}

func (r *UpsellDeliveryRepository) MarkSkipped(ctx context.Context, id int64) error {
	const query = `UPDATE upsell_deliveries SET status = 'skipped' WHERE id = ? AND status = 'scheduled'`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("mark upsell delivery skipped: %w", err)
	}
	return nil
}
