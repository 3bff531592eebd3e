package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vkultra/mitski/internal/models"
)

// UserRepository persists end users, unique per (bot, telegram user id).
type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) DB() *sql.DB {
	return r.db
}

func (r *UserRepository) FindByTelegramID(ctx context.Context, botID, telegramUserID int64) (*models.User, error) {
	const query = `
SELECT id, bot_id, telegram_user_id, first_interaction, last_interaction
FROM users WHERE bot_id = ? AND telegram_user_id = ?`
	row := r.db.QueryRowContext(ctx, query, botID, telegramUserID)
	var u models.User
	if err := row.Scan(&u.ID, &u.BotID, &u.TelegramUserID, &u.FirstInteraction, &u.LastInteraction); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	return &u, nil
}

func (r *UserRepository) Create(ctx context.Context, botID, telegramUserID int64) (*models.User, error) {
	const query = `
INSERT INTO users (bot_id, telegram_user_id) VALUES (?, ?)`
	res, err := r.db.ExecContext(ctx, query, botID, telegramUserID)
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return r.FindByID(ctx, id)
}

func (r *UserRepository) FindByID(ctx context.Context, id int64) (*models.User, error) {
	const query = `
SELECT id, bot_id, telegram_user_id, first_interaction, last_interaction
FROM users WHERE id = ?`
	row := r.db.QueryRowContext(ctx, query, id)
	var u models.User
	if err := row.Scan(&u.ID, &u.BotID, &u.TelegramUserID, &u.FirstInteraction, &u.LastInteraction); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	return &u, nil
}

// Ensure finds or creates the (bot,telegram user) row, reporting whether it
// was newly created (used to detect "first contact" for /start templates).
func (r *UserRepository) Ensure(ctx context.Context, botID, telegramUserID int64) (*models.User, bool, error) {
	user, err := r.FindByTelegramID(ctx, botID, telegramUserID)
	if err != nil {
		return nil, false, err
	}
	if user != nil {
		if err := r.TouchLastInteraction(ctx, botID, telegramUserID); err != nil {
			return nil, false, err
		}
		return user, false, nil
	}
	created, err := r.Create(ctx, botID, telegramUserID)
	if err != nil {
		return nil, false, err
	}
	return created, true, nil
}

func (r *UserRepository) TouchLastInteraction(ctx context.Context, botID, telegramUserID int64) error {
	const query = `UPDATE users SET last_interaction = NOW() WHERE bot_id = ? AND telegram_user_id = ?`
	if _, err := r.db.ExecContext(ctx, query, botID, telegramUserID); err != nil {
		return fmt.Errorf("touch last interaction: %w", err)
	}
	return nil
}

// ListTelegramIDs returns every known (bot,user) pair's telegram id for
// bulk admin operations (e.g. broadcast).
func (r *UserRepository) ListTelegramIDs(ctx context.Context, botID int64) ([]int64, error) {
	const query = `SELECT telegram_user_id FROM users WHERE bot_id = ?`
	rows, err := r.db.QueryContext(ctx, query, botID)
	if err != nil {
		return nil, fmt.Errorf("list telegram ids: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan telegram id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
