package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// StartTemplateRepository persists the versioned block sequence a bot
// sends on first contact, plus which version each user has already
// received (so a re-edited template only resends to users who haven't
// seen the latest version).
type StartTemplateRepository struct {
	db *sql.DB
}

func NewStartTemplateRepository(db *sql.DB) *StartTemplateRepository {
	return &StartTemplateRepository{db: db}
}

func (r *StartTemplateRepository) Version(ctx context.Context, botID int64) (int64, error) {
	const query = `SELECT version FROM start_templates WHERE bot_id = ?`
	row := r.db.QueryRowContext(ctx, query, botID)
	var version int64
	if err := row.Scan(&version); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("scan start template version: %w", err)
	}
	return version, nil
}

// BumpVersion increments the template's version, invalidating every
// user's "already received" record for re-send eligibility.
func (r *StartTemplateRepository) BumpVersion(ctx context.Context, botID int64) (int64, error) {
	const query = `
INSERT INTO start_templates (bot_id, version) VALUES (?, 1)
ON DUPLICATE KEY UPDATE version = version + 1`
	if _, err := r.db.ExecContext(ctx, query, botID); err != nil {
		return 0, fmt.Errorf("bump start template version: %w", err)
	}
	return r.Version(ctx, botID)
}

// HasReceived reports whether (bot,user) already received the given
// template version.
func (r *StartTemplateRepository) HasReceived(ctx context.Context, botID, userTelegramID, version int64) (bool, error) {
	const query = `SELECT version FROM start_message_statuses WHERE bot_id = ? AND user_telegram_id = ?`
	row := r.db.QueryRowContext(ctx, query, botID, userTelegramID)
	var sentVersion int64
	if err := row.Scan(&sentVersion); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("scan start message status: %w", err)
	}
	return sentVersion >= version, nil
}

func (r *StartTemplateRepository) MarkReceived(ctx context.Context, botID, userTelegramID, version int64) error {
	const query = `
INSERT INTO start_message_statuses (bot_id, user_telegram_id, version) VALUES (?, ?, ?)
ON DUPLICATE KEY UPDATE version = VALUES(version), sent_at = CURRENT_TIMESTAMP`
	if _, err := r.db.ExecContext(ctx, query, botID, userTelegramID, version); err != nil {
		return fmt.Errorf("mark start message received: %w", err)
	}
	return nil
}
