package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vkultra/mitski/internal/models"
)

// BotRepository persists secondary (and manager) bot registrations, with
// tokens stored encrypted at rest (internal/crypto.Box).
type BotRepository struct {
	db *sql.DB
}

func NewBotRepository(db *sql.DB) *BotRepository {
	return &BotRepository{db: db}
}

const botColumns = `id, owner_admin_id, encrypted_token, username, webhook_secret, is_active, associated_offer_id, created_at`

func scanBot(row *sql.Row) (*models.Bot, error) {
	var b models.Bot
	var active int
	if err := row.Scan(&b.ID, &b.OwnerAdminID, &b.EncryptedToken, &b.Username, &b.WebhookSecret, &active, &b.AssociatedOfferID, &b.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan bot: %w", err)
	}
	b.IsActive = active != 0
	return &b, nil
}

func (r *BotRepository) FindByID(ctx context.Context, id int64) (*models.Bot, error) {
	query := `SELECT ` + botColumns + ` FROM bots WHERE id = ?`
	return scanBot(r.db.QueryRowContext(ctx, query, id))
}

func (r *BotRepository) FindByUsername(ctx context.Context, username string) (*models.Bot, error) {
	query := `SELECT ` + botColumns + ` FROM bots WHERE username = ?`
	return scanBot(r.db.QueryRowContext(ctx, query, username))
}

func (r *BotRepository) Create(ctx context.Context, b *models.Bot) (*models.Bot, error) {
	const query = `
INSERT INTO bots (owner_admin_id, encrypted_token, username, webhook_secret, is_active, associated_offer_id)
VALUES (?, ?, ?, ?, ?, ?)`
	active := 0
	if b.IsActive {
		active = 1
	}
	res, err := r.db.ExecContext(ctx, query, b.OwnerAdminID, b.EncryptedToken, b.Username, b.WebhookSecret, active, b.AssociatedOfferID)
	if err != nil {
		return nil, fmt.Errorf("insert bot: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return r.FindByID(ctx, id)
}

func (r *BotRepository) SetActive(ctx context.Context, id int64, active bool) error {
	value := 0
	if active {
		value = 1
	}
	const query = `UPDATE bots SET is_active = ? WHERE id = ?`
	if _, err := r.db.ExecContext(ctx, query, value, id); err != nil {
		return fmt.Errorf("set bot active: %w", err)
	}
	return nil
}

func (r *BotRepository) SetAssociatedOffer(ctx context.Context, id int64, offerID *int64) error {
	const query = `UPDATE bots SET associated_offer_id = ? WHERE id = ?`
	if _, err := r.db.ExecContext(ctx, query, offerID, id); err != nil {
		return fmt.Errorf("set associated offer: %w", err)
	}
	return nil
}

// ListActive returns every bot with is_active=1, used by the scheduler and
// inactivity watchdog to enumerate which secondary bots to sweep.
func (r *BotRepository) ListActive(ctx context.Context) ([]*models.Bot, error) {
	query := `SELECT ` + botColumns + ` FROM bots WHERE is_active = 1`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list active bots: %w", err)
	}
	defer rows.Close()

	var bots []*models.Bot
	for rows.Next() {
		var b models.Bot
		var active int
		if err := rows.Scan(&b.ID, &b.OwnerAdminID, &b.EncryptedToken, &b.Username, &b.WebhookSecret, &active, &b.AssociatedOfferID, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan bot: %w", err)
		}
		b.IsActive = active != 0
		bots = append(bots, &b)
	}
	return bots, rows.Err()
}
