package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/vkultra/mitski/internal/models"
)

// BlockRepository persists ordered content blocks belonging to any of the
// polymorphic containers (start templates, offer pitches, upsell
// announcements, recovery steps, negotiated discounts, actions).
type BlockRepository struct {
	db *sql.DB
}

func NewBlockRepository(db *sql.DB) *BlockRepository {
	return &BlockRepository{db: db}
}

// ListByContainer returns a container's blocks in delivery order.
func (r *BlockRepository) ListByContainer(ctx context.Context, kind models.ContainerKind, containerID int64) ([]*models.Block, error) {
	const query = `
SELECT id, container_kind, container_id, ordering, COALESCE(text, ''), COALESCE(media_ref, ''), media_kind, delay_seconds, auto_delete_seconds
FROM blocks WHERE container_kind = ? AND container_id = ? ORDER BY ordering ASC`
	rows, err := r.db.QueryContext(ctx, query, kind, containerID)
	if err != nil {
		return nil, fmt.Errorf("list blocks: %w", err)
	}
	defer rows.Close()

	var blocks []*models.Block
	for rows.Next() {
		var b models.Block
		if err := rows.Scan(&b.ID, &b.ContainerKind, &b.ContainerID, &b.Order, &b.Text, &b.MediaRef, &b.MediaKind, &b.DelaySeconds, &b.AutoDeleteSeconds); err != nil {
			return nil, fmt.Errorf("scan block: %w", err)
		}
		blocks = append(blocks, &b)
	}
	return blocks, rows.Err()
}

func (r *BlockRepository) Create(ctx context.Context, b *models.Block) error {
	const query = `
INSERT INTO blocks (container_kind, container_id, ordering, text, media_ref, media_kind, delay_seconds, auto_delete_seconds)
VALUES (?, ?, ?, NULLIF(?, ''), NULLIF(?, ''), ?, ?, ?)`
	res, err := r.db.ExecContext(ctx, query, b.ContainerKind, b.ContainerID, b.Order, b.Text, b.MediaRef, b.MediaKind, b.DelaySeconds, b.AutoDeleteSeconds)
	if err != nil {
		return fmt.Errorf("insert block: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	b.ID = id
	return nil
}

// ReplaceContainer atomically deletes and re-inserts a container's blocks,
// used when an admin re-edits a sequence wholesale.
func (r *BlockRepository) ReplaceContainer(ctx context.Context, kind models.ContainerKind, containerID int64, blocks []*models.Block) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM blocks WHERE container_kind = ? AND container_id = ?`, kind, containerID); err != nil {
		return fmt.Errorf("delete existing blocks: %w", err)
	}

	const insert = `
INSERT INTO blocks (container_kind, container_id, ordering, text, media_ref, media_kind, delay_seconds, auto_delete_seconds)
VALUES (?, ?, ?, NULLIF(?, ''), NULLIF(?, ''), ?, ?, ?)`
	for i, b := range blocks {
		b.ContainerKind = kind
		b.ContainerID = containerID
		b.Order = i
		if _, err := tx.ExecContext(ctx, insert, b.ContainerKind, b.ContainerID, b.Order, b.Text, b.MediaRef, b.MediaKind, b.DelaySeconds, b.AutoDeleteSeconds); err != nil {
			return fmt.Errorf("insert replacement block %d: %w", i, err)
		}
	}

	return tx.Commit()
}

func (r *BlockRepository) DeleteContainer(ctx context.Context, kind models.ContainerKind, containerID int64) error {
	const query = `DELETE FROM blocks WHERE container_kind = ? AND container_id = ?`
	if _, err := r.db.ExecContext(ctx, query, kind, containerID); err != nil {
		return fmt.Errorf("delete container blocks: %w", err)
	}
	return nil
}
