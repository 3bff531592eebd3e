package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vkultra/mitski/internal/models"
)

// OfferRepository persists sellable offers detected via case-insensitive
// name containment in user messages.
type OfferRepository struct {
	db *sql.DB
}

func NewOfferRepository(db *sql.DB) *OfferRepository {
	return &OfferRepository{db: db}
}

const offerColumns = `id, bot_id, name, price_amount_cents, price_currency, manual_verification_trigger, discount_trigger, is_active`

func scanOffer(row interface{ Scan(...any) error }) (*models.Offer, error) {
	var o models.Offer
	var active int
	if err := row.Scan(&o.ID, &o.BotID, &o.Name, &o.Price.AmountCents, &o.Price.Currency, &o.ManualVerificationTrigger, &o.DiscountTrigger, &active); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan offer: %w", err)
	}
	o.IsActive = active != 0
	return &o, nil
}

func (r *OfferRepository) FindByID(ctx context.Context, id int64) (*models.Offer, error) {
	query := `SELECT ` + offerColumns + ` FROM offers WHERE id = ?`
	return scanOffer(r.db.QueryRowContext(ctx, query, id))
}

// ListActiveByBot returns active offers, used by the post-scan trigger
// detector to match user messages against offer names.
func (r *OfferRepository) ListActiveByBot(ctx context.Context, botID int64) ([]*models.Offer, error) {
	query := `SELECT ` + offerColumns + ` FROM offers WHERE bot_id = ? AND is_active = 1`
	rows, err := r.db.QueryContext(ctx, query, botID)
	if err != nil {
		return nil, fmt.Errorf("list active offers: %w", err)
	}
	defer rows.Close()

	var offers []*models.Offer
	for rows.Next() {
		o, err := scanOffer(rows)
		if err != nil {
			return nil, err
		}
		offers = append(offers, o)
	}
	return offers, rows.Err()
}

func (r *OfferRepository) Create(ctx context.Context, o *models.Offer) (*models.Offer, error) {
	const query = `
INSERT INTO offers (bot_id, name, price_amount_cents, price_currency, manual_verification_trigger, discount_trigger, is_active)
VALUES (?, ?, ?, ?, ?, ?, ?)`
	active := 0
	if o.IsActive {
		active = 1
	}
	res, err := r.db.ExecContext(ctx, query, o.BotID, o.Name, o.Price.AmountCents, o.Price.Currency, o.ManualVerificationTrigger, o.DiscountTrigger, active)
	if err != nil {
		return nil, fmt.Errorf("insert offer: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return r.FindByID(ctx, id)
}

func (r *OfferRepository) Update(ctx context.Context, o *models.Offer) error {
	const query = `
UPDATE offers SET name = ?, price_amount_cents = ?, price_currency = ?, manual_verification_trigger = ?, discount_trigger = ?, is_active = ?
WHERE id = ?`
	active := 0
	if o.IsActive {
		active = 1
	}
	if _, err := r.db.ExecContext(ctx, query, o.Name, o.Price.AmountCents, o.Price.Currency, o.ManualVerificationTrigger, o.DiscountTrigger, active, o.ID); err != nil {
		return fmt.Errorf("update offer: %w", err)
	}
	return nil
}

func (r *OfferRepository) Delete(ctx context.Context, id int64) error {
	const query = `DELETE FROM offers WHERE id = ?`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("delete offer: %w", err)
	}
	return nil
}
