package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vkultra/mitski/internal/models"
)

// ActionRepository persists the named trigger-library entries an LLM
// output may activate, plus their per-session INACTIVE/ACTIVATED status.
type ActionRepository struct {
	db *sql.DB
}

func NewActionRepository(db *sql.DB) *ActionRepository {
	return &ActionRepository{db: db}
}

func (r *ActionRepository) ListByBot(ctx context.Context, botID int64) ([]*models.Action, error) {
	const query = `SELECT id, bot_id, name, track_usage FROM actions WHERE bot_id = ?`
	rows, err := r.db.QueryContext(ctx, query, botID)
	if err != nil {
		return nil, fmt.Errorf("list actions: %w", err)
	}
	defer rows.Close()

	var actions []*models.Action
	for rows.Next() {
		var a models.Action
		var trackUsage int
		if err := rows.Scan(&a.ID, &a.BotID, &a.Name, &trackUsage); err != nil {
			return nil, fmt.Errorf("scan action: %w", err)
		}
		a.TrackUsage = trackUsage != 0
		actions = append(actions, &a)
	}
	return actions, rows.Err()
}

func (r *ActionRepository) Create(ctx context.Context, a *models.Action) (*models.Action, error) {
	const query = `INSERT INTO actions (bot_id, name, track_usage) VALUES (?, ?, ?)`
	trackUsage := 0
	if a.TrackUsage {
		trackUsage = 1
	}
	res, err := r.db.ExecContext(ctx, query, a.BotID, a.Name, trackUsage)
	if err != nil {
		return nil, fmt.Errorf("insert action: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	a.ID = id
	return a, nil
}

// Status returns the current activation status for (bot,user,action),
// defaulting to INACTIVE when no row exists yet.
func (r *ActionRepository) Status(ctx context.Context, botID, userTelegramID, actionID int64) (models.ActionStatus, error) {
	const query = `SELECT status FROM action_statuses WHERE bot_id = ? AND user_telegram_id = ? AND action_id = ?`
	row := r.db.QueryRowContext(ctx, query, botID, userTelegramID, actionID)
	var status string
	if err := row.Scan(&status); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.ActionStatusInactive, nil
		}
		return "", fmt.Errorf("scan action status: %w", err)
	}
	return models.ActionStatus(status), nil
}

// Activate flips a (bot,user,action) status to ACTIVATED, idempotently.
func (r *ActionRepository) Activate(ctx context.Context, botID, userTelegramID, actionID int64) error {
	const query = `
INSERT INTO action_statuses (bot_id, user_telegram_id, action_id, status)
VALUES (?, ?, ?, ?)
ON DUPLICATE KEY UPDATE status = VALUES(status), updated_at = CURRENT_TIMESTAMP`
	if _, err := r.db.ExecContext(ctx, query, botID, userTelegramID, actionID, models.ActionStatusActivated); err != nil {
		return fmt.Errorf("activate action: %w", err)
	}
	return nil
}
