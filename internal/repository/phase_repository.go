package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/vkultra/mitski/internal/models"
)

// PhaseRepository persists the named prompt/trigger-term phases that drive
// a bot's conversation engine. TriggerTerms is stored as a newline-joined
// blob, mirroring how the teacher keeps small string sets denormalized
// rather than in a join table.
type PhaseRepository struct {
	db *sql.DB
}

func NewPhaseRepository(db *sql.DB) *PhaseRepository {
	return &PhaseRepository{db: db}
}

func scanPhase(row interface{ Scan(...any) error }) (*models.Phase, error) {
	var p models.Phase
	var triggerTerms string
	var isGeneral int
	if err := row.Scan(&p.ID, &p.BotID, &p.Name, &p.PromptText, &triggerTerms, &p.Ordering, &isGeneral); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan phase: %w", err)
	}
	p.TriggerTerms = splitTriggerTerms(triggerTerms)
	p.IsGeneral = isGeneral != 0
	return &p, nil
}

func splitTriggerTerms(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, "\n")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (r *PhaseRepository) FindByID(ctx context.Context, id int64) (*models.Phase, error) {
	const query = `SELECT id, bot_id, name, prompt_text, trigger_terms, ordering, is_general FROM phases WHERE id = ?`
	return scanPhase(r.db.QueryRowContext(ctx, query, id))
}

// ListByBot returns all phases for a bot, ordered by ordering (the order
// the conversation engine evaluates trigger-term containment).
func (r *PhaseRepository) ListByBot(ctx context.Context, botID int64) ([]*models.Phase, error) {
	const query = `SELECT id, bot_id, name, prompt_text, trigger_terms, ordering, is_general FROM phases WHERE bot_id = ? ORDER BY ordering ASC`
	rows, err := r.db.QueryContext(ctx, query, botID)
	if err != nil {
		return nil, fmt.Errorf("list phases: %w", err)
	}
	defer rows.Close()

	var phases []*models.Phase
	for rows.Next() {
		p, err := scanPhase(rows)
		if err != nil {
			return nil, err
		}
		phases = append(phases, p)
	}
	return phases, rows.Err()
}

// General returns the bot's general (fallback) phase, if any.
func (r *PhaseRepository) General(ctx context.Context, botID int64) (*models.Phase, error) {
	const query = `SELECT id, bot_id, name, prompt_text, trigger_terms, ordering, is_general FROM phases WHERE bot_id = ? AND is_general = 1 LIMIT 1`
	return scanPhase(r.db.QueryRowContext(ctx, query, botID))
}

func (r *PhaseRepository) Create(ctx context.Context, p *models.Phase) (*models.Phase, error) {
	const query = `
INSERT INTO phases (bot_id, name, prompt_text, trigger_terms, ordering, is_general)
VALUES (?, ?, ?, ?, ?, ?)`
	isGeneral := 0
	if p.IsGeneral {
		isGeneral = 1
	}
	res, err := r.db.ExecContext(ctx, query, p.BotID, p.Name, p.PromptText, strings.Join(p.TriggerTerms, "\n"), p.Ordering, isGeneral)
	if err != nil {
		return nil, fmt.Errorf("insert phase: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return r.FindByID(ctx, id)
}

func (r *PhaseRepository) Update(ctx context.Context, p *models.Phase) error {
	const query = `
UPDATE phases SET name = ?, prompt_text = ?, trigger_terms = ?, ordering = ?, is_general = ?
WHERE id = ?`
	isGeneral := 0
	if p.IsGeneral {
		isGeneral = 1
	}
	if _, err := r.db.ExecContext(ctx, query, p.Name, p.PromptText, strings.Join(p.TriggerTerms, "\n"), p.Ordering, isGeneral, p.ID); err != nil {
		return fmt.Errorf("update phase: %w", err)
	}
	return nil
}

func (r *PhaseRepository) Delete(ctx context.Context, id int64) error {
	const query = `DELETE FROM phases WHERE id = ?`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("delete phase: %w", err)
	}
	return nil
}
