package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/vkultra/mitski/internal/apperr"
	"github.com/vkultra/mitski/internal/models"
)

// SessionRepository persists per-(bot,user) conversational state, with
// HistoryVersion as an optimistic CAS counter: concurrent writers (an
// inbound message and a scheduled upsell delivery, say) must merge rather
// than clobber each other's history, per spec §5's ordering guarantee.
type SessionRepository struct {
	db *sql.DB
}

func NewSessionRepository(db *sql.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

func (r *SessionRepository) Find(ctx context.Context, botID, userTelegramID int64) (*models.Session, error) {
	const query = `
SELECT bot_id, user_telegram_id, current_phase_id, history_json, last_active_at, inactivity_version, history_version
FROM sessions WHERE bot_id = ? AND user_telegram_id = ?`
	row := r.db.QueryRowContext(ctx, query, botID, userTelegramID)
	return scanSession(row)
}

func scanSession(row *sql.Row) (*models.Session, error) {
	var s models.Session
	var historyJSON string
	if err := row.Scan(&s.BotID, &s.UserTelegramID, &s.CurrentPhaseID, &historyJSON, &s.LastActiveAt, &s.InactivityVersion, &s.HistoryVersion); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan session: %w", err)
	}
	if err := json.Unmarshal([]byte(historyJSON), &s.History); err != nil {
		return nil, fmt.Errorf("decode history: %w", err)
	}
	return &s, nil
}

// Create inserts a brand-new session at history_version=0.
func (r *SessionRepository) Create(ctx context.Context, s *models.Session) error {
	historyJSON, err := json.Marshal(s.History)
	if err != nil {
		return fmt.Errorf("encode history: %w", err)
	}
	const query = `
INSERT INTO sessions (bot_id, user_telegram_id, current_phase_id, history_json, last_active_at, inactivity_version, history_version)
VALUES (?, ?, ?, ?, ?, ?, ?)`
	if _, err := r.db.ExecContext(ctx, query, s.BotID, s.UserTelegramID, s.CurrentPhaseID, historyJSON, s.LastActiveAt, s.InactivityVersion, s.HistoryVersion); err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// CompareAndSwap writes s's fields only if the row's current history_version
// still equals expectedVersion, bumping it to expectedVersion+1. Returns a
// ConsistencyError when another writer won the race, so the caller can
// reload and merge rather than silently losing an update.
func (r *SessionRepository) CompareAndSwap(ctx context.Context, s *models.Session, expectedVersion int64) error {
	historyJSON, err := json.Marshal(s.History)
	if err != nil {
		return fmt.Errorf("encode history: %w", err)
	}
	const query = `
UPDATE sessions
SET current_phase_id = ?, history_json = ?, last_active_at = ?, inactivity_version = ?, history_version = ?
WHERE bot_id = ? AND user_telegram_id = ? AND history_version = ?`
	res, err := r.db.ExecContext(ctx, query,
		s.CurrentPhaseID, historyJSON, s.LastActiveAt, s.InactivityVersion, expectedVersion+1,
		s.BotID, s.UserTelegramID, expectedVersion)
	if err != nil {
		return fmt.Errorf("cas session: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("cas session rows affected: %w", err)
	}
	if affected == 0 {
		return &apperr.ConsistencyError{Reason: "session history_version changed concurrently"}
	}
	s.HistoryVersion = expectedVersion + 1
	return nil
}

// BumpInactivityVersion advances the watchdog's version counter, used to
// invalidate in-flight inactivity timers when the user becomes active
// again before the recovery sequence fires.
func (r *SessionRepository) BumpInactivityVersion(ctx context.Context, botID, userTelegramID int64) (int64, error) {
	const query = `UPDATE sessions SET inactivity_version = inactivity_version + 1, last_active_at = NOW() WHERE bot_id = ? AND user_telegram_id = ?`
	if _, err := r.db.ExecContext(ctx, query, botID, userTelegramID); err != nil {
		return 0, fmt.Errorf("bump inactivity version: %w", err)
	}
	s, err := r.Find(ctx, botID, userTelegramID)
	if err != nil {
		return 0, err
	}
	if s == nil {
		return 0, fmt.Errorf("session vanished after bump")
	}
	return s.InactivityVersion, nil
}

// ListStaleSince returns sessions whose last_active_at is older than the
// campaign's inactivity threshold, for the recovery sweep.
func (r *SessionRepository) ListStaleSince(ctx context.Context, botID int64, olderThanSeconds int) ([]*models.Session, error) {
	const query = `
SELECT bot_id, user_telegram_id, current_phase_id, history_json, last_active_at, inactivity_version, history_version
FROM sessions WHERE bot_id = ? AND last_active_at < (NOW() - INTERVAL ? SECOND)`
	rows, err := r.db.QueryContext(ctx, query, botID, olderThanSeconds)
	if err != nil {
		return nil, fmt.Errorf("list stale sessions: %w", err)
	}
	defer rows.Close()

	var out []*models.Session
	for rows.Next() {
		var s models.Session
		var historyJSON string
		if err := rows.Scan(&s.BotID, &s.UserTelegramID, &s.CurrentPhaseID, &historyJSON, &s.LastActiveAt, &s.InactivityVersion, &s.HistoryVersion); err != nil {
			return nil, fmt.Errorf("scan stale session: %w", err)
		}
		if err := json.Unmarshal([]byte(historyJSON), &s.History); err != nil {
			return nil, fmt.Errorf("decode history: %w", err)
		}
		out = append(out, &s)
	}
	return out, rows.Err()
}
