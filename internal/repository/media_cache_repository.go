package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vkultra/mitski/internal/models"
)

// MediaCacheRepository maps an origin bot's media identifier to a
// resend-ready cached identifier (spec §4.6), backed by both this table
// (durable, cross-restart) and an S3-compatible object store for the raw
// bytes behind it.
type MediaCacheRepository struct {
	db *sql.DB
}

func NewMediaCacheRepository(db *sql.DB) *MediaCacheRepository {
	return &MediaCacheRepository{db: db}
}

func (r *MediaCacheRepository) Find(ctx context.Context, botID int64, originalMediaID string) (*models.MediaCacheEntry, error) {
	const query = `SELECT bot_id, original_media_id, cached_media_id, updated_at FROM media_cache_entries WHERE bot_id = ? AND original_media_id = ?`
	row := r.db.QueryRowContext(ctx, query, botID, originalMediaID)
	var e models.MediaCacheEntry
	if err := row.Scan(&e.BotID, &e.OriginalMediaID, &e.CachedMediaID, &e.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan media cache entry: %w", err)
	}
	return &e, nil
}

// Upsert writes or refreshes a cache entry, used both on first cache and
// on re-resolution after Telegram reports the cached identifier expired.
func (r *MediaCacheRepository) Upsert(ctx context.Context, botID int64, originalMediaID, cachedMediaID string) error {
	const query = `
INSERT INTO media_cache_entries (bot_id, original_media_id, cached_media_id)
VALUES (?, ?, ?)
ON DUPLICATE KEY UPDATE cached_media_id = VALUES(cached_media_id), updated_at = CURRENT_TIMESTAMP`
	if _, err := r.db.ExecContext(ctx, query, botID, originalMediaID, cachedMediaID); err != nil {
		return fmt.Errorf("upsert media cache entry: %w", err)
	}
	return nil
}

func (r *MediaCacheRepository) Invalidate(ctx context.Context, botID int64, originalMediaID string) error {
	const query = `DELETE FROM media_cache_entries WHERE bot_id = ? AND original_media_id = ?`
	if _, err := r.db.ExecContext(ctx, query, botID, originalMediaID); err != nil {
		return fmt.Errorf("invalidate media cache entry: %w", err)
	}
	return nil
}
