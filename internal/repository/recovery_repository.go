package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vkultra/mitski/internal/apperr"
	"github.com/vkultra/mitski/internal/models"
)

// RecoveryRepository persists the single per-bot inactivity recovery
// campaign, its ordinal steps, and the per-episode delivery ledger that
// enforces exactly-once sends via the uniq_delivery constraint.
type RecoveryRepository struct {
	db *sql.DB
}

func NewRecoveryRepository(db *sql.DB) *RecoveryRepository {
	return &RecoveryRepository{db: db}
}

func (r *RecoveryRepository) FindCampaign(ctx context.Context, botID int64) (*models.RecoveryCampaign, error) {
	const query = `
SELECT bot_id, inactivity_threshold_seconds, timezone, ignore_paying_users, is_active, version
FROM recovery_campaigns WHERE bot_id = ?`
	row := r.db.QueryRowContext(ctx, query, botID)
	var c models.RecoveryCampaign
	var ignore, active int
	if err := row.Scan(&c.BotID, &c.InactivityThresholdSec, &c.Timezone, &ignore, &active, &c.Version); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan recovery campaign: %w", err)
	}
	c.IgnorePayingUsers = ignore != 0
	c.IsActive = active != 0
	return &c, nil
}

func (r *RecoveryRepository) UpsertCampaign(ctx context.Context, c *models.RecoveryCampaign) error {
	const query = `
INSERT INTO recovery_campaigns (bot_id, inactivity_threshold_seconds, timezone, ignore_paying_users, is_active, version)
VALUES (?, ?, ?, ?, ?, 1)
ON DUPLICATE KEY UPDATE
  inactivity_threshold_seconds = VALUES(inactivity_threshold_seconds),
  timezone = VALUES(timezone),
  ignore_paying_users = VALUES(ignore_paying_users),
  is_active = VALUES(is_active),
  version = version + 1`
	ignore, active := 0, 0
	if c.IgnorePayingUsers {
		ignore = 1
	}
	if c.IsActive {
		active = 1
	}
	if _, err := r.db.ExecContext(ctx, query, c.BotID, c.InactivityThresholdSec, c.Timezone, ignore, active); err != nil {
		return fmt.Errorf("upsert recovery campaign: %w", err)
	}
	return nil
}

func (r *RecoveryRepository) ListSteps(ctx context.Context, botID int64) ([]*models.RecoveryStep, error) {
	const query = `
SELECT campaign_bot_id, ordinal, schedule_kind, schedule_seconds, schedule_time_of_day, schedule_days_offset
FROM recovery_steps WHERE campaign_bot_id = ? ORDER BY ordinal ASC`
	rows, err := r.db.QueryContext(ctx, query, botID)
	if err != nil {
		return nil, fmt.Errorf("list recovery steps: %w", err)
	}
	defer rows.Close()

	var steps []*models.RecoveryStep
	for rows.Next() {
		var s models.RecoveryStep
		if err := rows.Scan(&s.CampaignBotID, &s.Ordinal, &s.ScheduleKind, &s.ScheduleSeconds, &s.ScheduleTimeOfDay, &s.ScheduleDaysOffset); err != nil {
			return nil, fmt.Errorf("scan recovery step: %w", err)
		}
		steps = append(steps, &s)
	}
	return steps, rows.Err()
}

func (r *RecoveryRepository) ReplaceSteps(ctx context.Context, botID int64, steps []*models.RecoveryStep) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM recovery_steps WHERE campaign_bot_id = ?`, botID); err != nil {
		return fmt.Errorf("delete existing steps: %w", err)
	}
	const insert = `
INSERT INTO recovery_steps (campaign_bot_id, ordinal, schedule_kind, schedule_seconds, schedule_time_of_day, schedule_days_offset)
VALUES (?, ?, ?, ?, ?, ?)`
	for i, s := range steps {
		if _, err := tx.ExecContext(ctx, insert, botID, i, s.ScheduleKind, s.ScheduleSeconds, s.ScheduleTimeOfDay, s.ScheduleDaysOffset); err != nil {
			return fmt.Errorf("insert step %d: %w", i, err)
		}
	}
	return tx.Commit()
}

// CreateDelivery inserts a scheduled delivery row. A ConflictError (mapped
// from the uniq_delivery constraint) means this step for this episode was
// already scheduled — the caller should treat it as already handled.
func (r *RecoveryRepository) CreateDelivery(ctx context.Context, d *models.RecoveryDelivery) error {
	const query = `
INSERT INTO recovery_deliveries (bot_id, user_id, campaign_version, episode_id, step_ordinal, status, scheduled_for)
VALUES (?, ?, ?, ?, ?, ?, ?)`
	res, err := r.db.ExecContext(ctx, query, d.BotID, d.UserID, d.CampaignVersion, d.EpisodeID, d.StepOrdinal, d.Status, d.ScheduledFor)
	if err != nil {
		if isDuplicateKeyErr(err) {
			return &apperr.ConflictError{Resource: "recovery_delivery"}
		}
		return fmt.Errorf("insert recovery delivery: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	d.ID = id
	return nil
}

// MarkSent updates a delivery's status to sent, guarded by the campaign
// version at schedule time so a stale in-flight delivery from a
// superseded campaign edit is skipped rather than sent.
func (r *RecoveryRepository) MarkSent(ctx context.Context, deliveryID, expectedCampaignVersion int64) error {
	const query = `
UPDATE recovery_deliveries SET status = 'sent', sent_at = NOW()
WHERE id = ? AND campaign_version = ? AND status = 'scheduled'`
	res, err := r.db.ExecContext(ctx, query, deliveryID, expectedCampaignVersion)
	if err != nil {
		return fmt.Errorf("mark delivery sent: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark delivery sent rows affected: %w", err)
	}
	if affected == 0 {
		return &apperr.ConsistencyError{Reason: "recovery delivery superseded by newer campaign version"}
	}
	return nil
}

func (r *RecoveryRepository) MarkSkipped(ctx context.Context, deliveryID int64) error {
	const query = `UPDATE recovery_deliveries SET status = 'skipped' WHERE id = ? AND status = 'scheduled'`
	if _, err := r.db.ExecContext(ctx, query, deliveryID); err != nil {
		return fmt.Errorf("mark delivery skipped: %w", err)
	}
	return nil
}

// ListDueDeliveries returns scheduled deliveries whose time has arrived,
// for the scheduler's periodic sweep.
func (r *RecoveryRepository) ListDueDeliveries(ctx context.Context, limit int) ([]*models.RecoveryDelivery, error) {
	const query = `
SELECT id, bot_id, user_id, campaign_version, episode_id, step_ordinal, status, scheduled_for, sent_at
FROM recovery_deliveries WHERE status = 'scheduled' AND scheduled_for <= NOW() LIMIT ?`
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list due deliveries: %w", err)
	}
	defer rows.Close()

	var out []*models.RecoveryDelivery
	for rows.Next() {
		var d models.RecoveryDelivery
		if err := rows.Scan(&d.ID, &d.BotID, &d.UserID, &d.CampaignVersion, &d.EpisodeID, &d.StepOrdinal, &d.Status, &d.ScheduledFor, &d.SentAt); err != nil {
			return nil, fmt.Errorf("scan due delivery: %w", err)
		}
		out = append(out, &d)
	}
	return out, rows.Err()
}
