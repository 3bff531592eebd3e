package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vkultra/mitski/internal/models"
)

// UpsellRepository persists post-sale upsells, either preset-immediate or
// scheduled relative to the sale moment.
type UpsellRepository struct {
	db *sql.DB
}

func NewUpsellRepository(db *sql.DB) *UpsellRepository {
	return &UpsellRepository{db: db}
}

const upsellColumns = `id, bot_id, ordinal, is_preset, trigger_term, COALESCE(phase_prompt, ''), price_amount_cents, price_currency, schedule_immediate, schedule_days, schedule_hours, schedule_minutes`

func scanUpsell(row interface{ Scan(...any) error }) (*models.Upsell, error) {
	var u models.Upsell
	var isPreset, immediate int
	if err := row.Scan(&u.ID, &u.BotID, &u.Ordinal, &isPreset, &u.TriggerTerm, &u.PhasePrompt, &u.Price.AmountCents, &u.Price.Currency, &immediate, &u.Schedule.Days, &u.Schedule.Hours, &u.Schedule.Minutes); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan upsell: %w", err)
	}
	u.IsPreset = isPreset != 0
	u.Schedule.Immediate = immediate != 0
	return &u, nil
}

func (r *UpsellRepository) FindByID(ctx context.Context, id int64) (*models.Upsell, error) {
	query := `SELECT ` + upsellColumns + ` FROM upsells WHERE id = ?`
	return scanUpsell(r.db.QueryRowContext(ctx, query, id))
}

// ListByBot returns a bot's upsells in ordinal sequence.
func (r *UpsellRepository) ListByBot(ctx context.Context, botID int64) ([]*models.Upsell, error) {
	query := `SELECT ` + upsellColumns + ` FROM upsells WHERE bot_id = ? ORDER BY ordinal ASC`
	rows, err := r.db.QueryContext(ctx, query, botID)
	if err != nil {
		return nil, fmt.Errorf("list upsells: %w", err)
	}
	defer rows.Close()

	var upsells []*models.Upsell
	for rows.Next() {
		u, err := scanUpsell(rows)
		if err != nil {
			return nil, err
		}
		upsells = append(upsells, u)
	}
	return upsells, rows.Err()
}

func (r *UpsellRepository) Create(ctx context.Context, u *models.Upsell) (*models.Upsell, error) {
	const query = `
INSERT INTO upsells (bot_id, ordinal, is_preset, trigger_term, phase_prompt, price_amount_cents, price_currency, schedule_immediate, schedule_days, schedule_hours, schedule_minutes)
VALUES (?, ?, ?, ?, NULLIF(?, ''), ?, ?, ?, ?, ?, ?)`
	isPreset, immediate := 0, 0
	if u.IsPreset {
		isPreset = 1
	}
	if u.Schedule.Immediate {
		immediate = 1
	}
	res, err := r.db.ExecContext(ctx, query, u.BotID, u.Ordinal, isPreset, u.TriggerTerm, u.PhasePrompt, u.Price.AmountCents, u.Price.Currency, immediate, u.Schedule.Days, u.Schedule.Hours, u.Schedule.Minutes)
	if err != nil {
		return nil, fmt.Errorf("insert upsell: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return r.FindByID(ctx, id)
}

func (r *UpsellRepository) Delete(ctx context.Context, id int64) error {
	const query = `DELETE FROM upsells WHERE id = ?`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("delete upsell: %w", err)
	}
	return nil
}
