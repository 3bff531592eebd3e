package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/vkultra/mitski/internal/apperr"
	"github.com/vkultra/mitski/internal/models"
)

// SaleNotificationRepository enforces "exactly once" admin fan-out on a
// sale-approved event: transaction_id is the primary key, so a second
// insert attempt for the same transaction fails with a duplicate-key
// error, which Create reports as a Conflict ("already handled").
type SaleNotificationRepository struct {
	db *sql.DB
}

func NewSaleNotificationRepository(db *sql.DB) *SaleNotificationRepository {
	return &SaleNotificationRepository{db: db}
}

func (r *SaleNotificationRepository) Create(ctx context.Context, n *models.SaleNotification) error {
	const query = `
INSERT INTO sale_notifications (transaction_id, owner_admin_id, channel_id, status)
VALUES (?, ?, ?, ?)`
	if _, err := r.db.ExecContext(ctx, query, n.TransactionID, n.OwnerAdminID, n.ChannelID, n.Status); err != nil {
		if isDuplicateKeyErr(err) {
			return &apperr.ConflictError{Resource: "sale_notification"}
		}
		return fmt.Errorf("insert sale notification: %w", err)
	}
	return nil
}

func (r *SaleNotificationRepository) MarkSent(ctx context.Context, transactionID int64) error {
	const query = `UPDATE sale_notifications SET status = ? WHERE transaction_id = ?`
	if _, err := r.db.ExecContext(ctx, query, models.NotificationSent, transactionID); err != nil {
		return fmt.Errorf("mark sale notification sent: %w", err)
	}
	return nil
}

func (r *SaleNotificationRepository) MarkFailed(ctx context.Context, transactionID int64) error {
	const query = `UPDATE sale_notifications SET status = ? WHERE transaction_id = ?`
	if _, err := r.db.ExecContext(ctx, query, models.NotificationFailed, transactionID); err != nil {
		return fmt.Errorf("mark sale notification failed: %w", err)
	}
	return nil
}
