package blocksender

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/vkultra/mitski/internal/adapters/telegram"
	"github.com/vkultra/mitski/internal/conversation"
	"github.com/vkultra/mitski/internal/models"
)

// sendMedia implements spec §4.6 step 3: resend by cached identifier when
// the cache has one, falling back to a fresh download+reupload (and S3
// archive) when Telegram reports the cached copy expired.
func (s *Sender) sendMedia(ctx context.Context, client *telegram.Client, dest conversation.Destination, block *models.Block, caption string) (tgbotapi.Message, error) {
	entry, err := s.mediaCache.Find(ctx, dest.BotID, block.MediaRef)
	if err != nil {
		return tgbotapi.Message{}, fmt.Errorf("blocksender: lookup media cache: %w", err)
	}

	mediaID := block.MediaRef
	if entry != nil {
		mediaID = entry.CachedMediaID
	}

	sent, err := s.sendByFileID(ctx, client, dest.ChatID, block.MediaKind, mediaID, caption)
	if err == nil {
		return sent, nil
	}
	if !isExpiredMediaError(err) {
		return tgbotapi.Message{}, err
	}

	if err := s.mediaCache.Invalidate(ctx, dest.BotID, block.MediaRef); err != nil {
		return tgbotapi.Message{}, fmt.Errorf("blocksender: invalidate media cache: %w", err)
	}

	data, err := client.Download(ctx, block.MediaRef)
	if err != nil {
		return tgbotapi.Message{}, fmt.Errorf("blocksender: re-download origin media: %w", err)
	}

	file := tgbotapi.FileBytes{Name: "media", Bytes: data}
	sent, newFileID, err := s.uploadAndSend(ctx, client, dest.ChatID, block.MediaKind, file, caption)
	if err != nil {
		return tgbotapi.Message{}, err
	}

	if s.uploader != nil {
		if _, uploadErr := s.uploader.Upload(ctx, data, contentTypeFor(block.MediaKind)); uploadErr != nil {
			// Archival failure never blocks delivery; the resend already
			// succeeded and the fresh file_id is cached below regardless.
			_ = uploadErr
		}
	}

	if newFileID != "" {
		if err := s.mediaCache.Upsert(ctx, dest.BotID, block.MediaRef, newFileID); err != nil {
			return tgbotapi.Message{}, fmt.Errorf("blocksender: upsert media cache: %w", err)
		}
	}
	return sent, nil
}

func (s *Sender) sendByFileID(ctx context.Context, client *telegram.Client, chatID int64, kind models.MediaKind, fileID, caption string) (tgbotapi.Message, error) {
	file := tgbotapi.FileID(fileID)
	return s.dispatchByKind(ctx, client, chatID, kind, file, caption)
}

func (s *Sender) uploadAndSend(ctx context.Context, client *telegram.Client, chatID int64, kind models.MediaKind, file tgbotapi.FileBytes, caption string) (tgbotapi.Message, string, error) {
	sent, err := s.dispatchByKind(ctx, client, chatID, kind, file, caption)
	if err != nil {
		return tgbotapi.Message{}, "", err
	}
	return sent, resolveFileID(sent, kind), nil
}

func (s *Sender) dispatchByKind(ctx context.Context, client *telegram.Client, chatID int64, kind models.MediaKind, file tgbotapi.RequestFileData, caption string) (tgbotapi.Message, error) {
	switch kind {
	case models.MediaKindPhoto:
		return client.SendPhoto(ctx, chatID, file, caption)
	case models.MediaKindVideo:
		return client.SendVideo(ctx, chatID, file, caption)
	case models.MediaKindVoice:
		return client.SendVoice(ctx, chatID, file)
	case models.MediaKindDocument:
		return client.SendDocument(ctx, chatID, file, caption)
	case models.MediaKindAnimation:
		return client.SendAnimation(ctx, chatID, file, caption)
	default:
		return tgbotapi.Message{}, fmt.Errorf("blocksender: unknown media kind %q", kind)
	}
}

// resolveFileID extracts the newly issued file_id from a send response, so
// the cache can be repopulated with an identifier Telegram will accept on
// the next resend.
func resolveFileID(msg tgbotapi.Message, kind models.MediaKind) string {
	switch kind {
	case models.MediaKindPhoto:
		if len(msg.Photo) == 0 {
			return ""
		}
		return msg.Photo[len(msg.Photo)-1].FileID
	case models.MediaKindVideo:
		if msg.Video == nil {
			return ""
		}
		return msg.Video.FileID
	case models.MediaKindVoice:
		if msg.Voice == nil {
			return ""
		}
		return msg.Voice.FileID
	case models.MediaKindDocument:
		if msg.Document == nil {
			return ""
		}
		return msg.Document.FileID
	case models.MediaKindAnimation:
		if msg.Animation == nil {
			return ""
		}
		return msg.Animation.FileID
	default:
		return ""
	}
}

func contentTypeFor(kind models.MediaKind) string {
	switch kind {
	case models.MediaKindPhoto:
		return "image/jpeg"
	case models.MediaKindVideo, models.MediaKindAnimation:
		return "video/mp4"
	case models.MediaKindVoice:
		return "audio/ogg"
	default:
		return "application/octet-stream"
	}
}
