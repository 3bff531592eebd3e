package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vkultra/mitski/internal/models"
)

// TrackerRepository persists /start deep-link attribution codes, per-user
// attribution, daily rollups, and the per-bot "require tracked start" flag.
type TrackerRepository struct {
	db *sql.DB
}

func NewTrackerRepository(db *sql.DB) *TrackerRepository {
	return &TrackerRepository{db: db}
}

func (r *TrackerRepository) FindByCode(ctx context.Context, botID int64, code string) (*models.Tracker, error) {
	const query = `SELECT id, bot_id, code, name, is_active FROM trackers WHERE bot_id = ? AND code = ?`
	row := r.db.QueryRowContext(ctx, query, botID, code)
	var t models.Tracker
	var active int
	if err := row.Scan(&t.ID, &t.BotID, &t.Code, &t.Name, &active); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan tracker: %w", err)
	}
	t.IsActive = active != 0
	return &t, nil
}

func (r *TrackerRepository) Create(ctx context.Context, t *models.Tracker) (*models.Tracker, error) {
	const query = `INSERT INTO trackers (bot_id, code, name, is_active) VALUES (?, ?, ?, ?)`
	active := 0
	if t.IsActive {
		active = 1
	}
	res, err := r.db.ExecContext(ctx, query, t.BotID, t.Code, t.Name, active)
	if err != nil {
		return nil, fmt.Errorf("insert tracker: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	t.ID = id
	return t, nil
}

// AttributeFirstTouch records the tracker that brought a user in, but
// only on the first /start (INSERT IGNORE leaves later attempts a no-op —
// attribution is first-touch, never overwritten).
func (r *TrackerRepository) AttributeFirstTouch(ctx context.Context, botID, userTelegramID, trackerID int64) error {
	const query = `
INSERT IGNORE INTO tracker_attributions (bot_id, user_telegram_id, tracker_id) VALUES (?, ?, ?)`
	if _, err := r.db.ExecContext(ctx, query, botID, userTelegramID, trackerID); err != nil {
		return fmt.Errorf("attribute first touch: %w", err)
	}
	return nil
}

func (r *TrackerRepository) FindAttribution(ctx context.Context, botID, userTelegramID int64) (*models.TrackerAttribution, error) {
	const query = `SELECT bot_id, user_telegram_id, tracker_id, ts FROM tracker_attributions WHERE bot_id = ? AND user_telegram_id = ?`
	row := r.db.QueryRowContext(ctx, query, botID, userTelegramID)
	var a models.TrackerAttribution
	if err := row.Scan(&a.BotID, &a.UserTelegramID, &a.TrackerID, &a.Ts); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan attribution: %w", err)
	}
	return &a, nil
}

// IncrementDailyStat atomically bumps a tracker's per-day counters.
func (r *TrackerRepository) IncrementDailyStat(ctx context.Context, botID, trackerID int64, day time.Time, starts, sales, revenueCents int64) error {
	const query = `
INSERT INTO tracker_daily_stats (bot_id, tracker_id, day, starts, sales, revenue_cents)
VALUES (?, ?, ?, ?, ?, ?)
ON DUPLICATE KEY UPDATE
  starts = starts + VALUES(starts),
  sales = sales + VALUES(sales),
  revenue_cents = revenue_cents + VALUES(revenue_cents)`
	dayOnly := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	if _, err := r.db.ExecContext(ctx, query, botID, trackerID, dayOnly, starts, sales, revenueCents); err != nil {
		return fmt.Errorf("increment daily stat: %w", err)
	}
	return nil
}

func (r *TrackerRepository) ListDailyStats(ctx context.Context, botID int64, from, to time.Time) ([]*models.TrackerDailyStat, error) {
	const query = `
SELECT bot_id, tracker_id, day, starts, sales, revenue_cents FROM tracker_daily_stats
WHERE bot_id = ? AND day BETWEEN ? AND ? ORDER BY day ASC`
	rows, err := r.db.QueryContext(ctx, query, botID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list daily stats: %w", err)
	}
	defer rows.Close()

	var out []*models.TrackerDailyStat
	for rows.Next() {
		var s models.TrackerDailyStat
		if err := rows.Scan(&s.BotID, &s.TrackerID, &s.Day, &s.Starts, &s.Sales, &s.RevenueCents); err != nil {
			return nil, fmt.Errorf("scan daily stat: %w", err)
		}
		out = append(out, &s)
	}
	return out, rows.Err()
}

func (r *TrackerRepository) TrackingConfig(ctx context.Context, botID int64) (*models.BotTrackingConfig, error) {
	const query = `SELECT bot_id, require_tracked_start, last_forced_at FROM bot_tracking_configs WHERE bot_id = ?`
	row := r.db.QueryRowContext(ctx, query, botID)
	var c models.BotTrackingConfig
	var require int
	if err := row.Scan(&c.BotID, &require, &c.LastForcedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &models.BotTrackingConfig{BotID: botID}, nil
		}
		return nil, fmt.Errorf("scan tracking config: %w", err)
	}
	c.RequireTrackedStart = require != 0
	return &c, nil
}

func (r *TrackerRepository) SetRequireTrackedStart(ctx context.Context, botID int64, require bool) error {
	const query = `
INSERT INTO bot_tracking_configs (bot_id, require_tracked_start) VALUES (?, ?)
ON DUPLICATE KEY UPDATE require_tracked_start = VALUES(require_tracked_start)`
	value := 0
	if require {
		value = 1
	}
	if _, err := r.db.ExecContext(ctx, query, botID, value); err != nil {
		return fmt.Errorf("set require tracked start: %w", err)
	}
	return nil
}
