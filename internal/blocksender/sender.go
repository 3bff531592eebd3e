package blocksender

import (
	"context"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/vkultra/mitski/internal/adapters/telegram"
	"github.com/vkultra/mitski/internal/apperr"
	"github.com/vkultra/mitski/internal/conversation"
	"github.com/vkultra/mitski/internal/models"
	"github.com/vkultra/mitski/internal/queue"
	"github.com/vkultra/mitski/internal/repository"
	"github.com/vkultra/mitski/internal/storage"
	"github.com/vkultra/mitski/internal/triggers"
)

// DeliveryRecorder records that a recovery/start/upsell container finished
// sending, step 7 of spec §4.6. Offer/action/discount/manual-verify
// containers have no delivery row and never reach this hook.
type DeliveryRecorder interface {
	RecordDelivery(ctx context.Context, kind models.ContainerKind, containerID int64, dest conversation.Destination) error
}

var recordedContainerKinds = map[models.ContainerKind]bool{
	models.ContainerRecoveryStep:       true,
	models.ContainerStartTemplate:      true,
	models.ContainerUpsellAnnouncement: true,
	models.ContainerUpsellDeliverable:  true,
}

// Sender implements conversation.BlockSender (C9 of spec §4.6).
type Sender struct {
	resolver   *ClientResolver
	mediaCache *repository.MediaCacheRepository
	uploader   *storage.Uploader
	queue      *queue.Client
	recorder   DeliveryRecorder
}

// NewSender builds a Sender. recorder may be nil, in which case no delivery
// is recorded; cmd/bot passes nil.
func NewSender(resolver *ClientResolver, mediaCache *repository.MediaCacheRepository, uploader *storage.Uploader, q *queue.Client, recorder DeliveryRecorder) *Sender {
	return &Sender{resolver: resolver, mediaCache: mediaCache, uploader: uploader, queue: q, recorder: recorder}
}

// SetDeliveryRecorder wires the recorder after construction, breaking the
// internal/recovery -> internal/blocksender -> internal/recovery cycle
// that a constructor-time dependency would otherwise create.
func (s *Sender) SetDeliveryRecorder(r DeliveryRecorder) { s.recorder = r }

// SendText sends a single plain/markdown text message with no container.
func (s *Sender) SendText(ctx context.Context, dest conversation.Destination, text string) error {
	if text == "" {
		return nil
	}
	client, err := s.resolver.Resolve(ctx, dest.BotID)
	if err != nil {
		return err
	}
	return s.sendTextWithFallback(ctx, client, dest.ChatID, text)
}

// Send delivers a container's blocks in order, per spec §4.6 steps 1-7.
func (s *Sender) Send(ctx context.Context, dest conversation.Destination, containerKind models.ContainerKind, containerID int64, blocks []*models.Block, opts conversation.SendOptions) error {
	client, err := s.resolver.Resolve(ctx, dest.BotID)
	if err != nil {
		return err
	}

	pixCode := opts.PixCode
	if opts.Preview {
		pixCode = triggers.PreviewPixCode
	}

	for _, block := range blocks {
		if err := s.wait(ctx, time.Duration(block.DelaySeconds)*time.Second); err != nil {
			return err
		}

		text := triggers.SubstitutePix(block.Text, pixCode)

		var sent tgbotapi.Message
		if block.MediaRef != "" {
			if err := client.SendChatAction(ctx, dest.ChatID, chatActionFor(block.MediaKind)); err != nil && !apperr.Retriable(err) {
				return err
			}
			sent, err = s.sendMedia(ctx, client, dest, block, text)
			if err != nil {
				return err
			}
		} else if text != "" {
			sent, err = s.sendTextMessage(ctx, client, dest.ChatID, text)
			if err != nil {
				return err
			}
		}

		if block.AutoDeleteSeconds > 0 && sent.MessageID != 0 {
			if err := s.scheduleAutoDelete(ctx, dest.BotID, dest.ChatID, sent.MessageID, time.Duration(block.AutoDeleteSeconds)*time.Second); err != nil {
				return err
			}
		}
	}

	if s.recorder != nil && recordedContainerKinds[containerKind] {
		if err := s.recorder.RecordDelivery(ctx, containerKind, containerID, dest); err != nil {
			return err
		}
	}
	return nil
}

func (s *Sender) wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func chatActionFor(kind models.MediaKind) string {
	switch kind {
	case models.MediaKindPhoto:
		return tgbotapi.ChatUploadPhoto
	case models.MediaKindVideo, models.MediaKindAnimation:
		return tgbotapi.ChatUploadVideo
	case models.MediaKindVoice:
		return tgbotapi.ChatRecordVoice
	case models.MediaKindDocument:
		return tgbotapi.ChatUploadDocument
	default:
		return tgbotapi.ChatTyping
	}
}

// sendTextMessage sends a markdown message, retrying once in plain text on
// a parse-entities error (spec §4.6 step 5).
func (s *Sender) sendTextMessage(ctx context.Context, client *telegram.Client, chatID int64, text string) (tgbotapi.Message, error) {
	sent, err := client.SendMessage(ctx, chatID, text, telegram.WithParseMode(tgbotapi.ModeMarkdown))
	if err != nil && isMarkdownParseError(err) {
		return client.SendMessage(ctx, chatID, text)
	}
	return sent, err
}

func (s *Sender) sendTextWithFallback(ctx context.Context, client *telegram.Client, chatID int64, text string) error {
	_, err := s.sendTextMessage(ctx, client, chatID, text)
	return err
}

// isMarkdownParseError recognizes Telegram's "can't parse entities" 400,
// distinct from every other PermanentExternalError.
func isMarkdownParseError(err error) bool {
	return telegramMessageContains(err, "can't parse entities")
}

// isExpiredMediaError recognizes the "wrong file identifier"/"file is too
// big"/expired-reference class of 400s that call for cache invalidation
// and re-upload (spec §4.6 step 3), since adapters/telegram.classify only
// buckets by HTTP-ish status code, not by message content.
func isExpiredMediaError(err error) bool {
	for _, needle := range []string{"wrong file identifier", "file reference", "file is too big", "wrong remote file"} {
		if telegramMessageContains(err, needle) {
			return true
		}
	}
	return false
}

func telegramMessageContains(err error, needle string) bool {
	var permErr *apperr.PermanentExternalError
	if !apperr.Fatal(err) {
		return false
	}
	if asPermanent(err, &permErr) {
		return strings.Contains(strings.ToLower(permErr.Cause.Error()), needle)
	}
	return false
}

func asPermanent(err error, target **apperr.PermanentExternalError) bool {
	for err != nil {
		if p, ok := err.(*apperr.PermanentExternalError); ok {
			*target = p
			return true
		}
		unwrapper, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = unwrapper.Unwrap()
	}
	return false
}

// DeleteBlockArgs is the payload for the auto-delete task the scheduler
// runs after auto-delete-seconds elapses (spec §4.6 step 6, §5: never an
// orphan in-process timer).
type DeleteBlockArgs struct {
	BotID     int64 `json:"bot_id"`
	ChatID    int64 `json:"chat_id"`
	MessageID int   `json:"message_id"`
}

func (s *Sender) scheduleAutoDelete(ctx context.Context, botID, chatID int64, messageID int, delay time.Duration) error {
	return s.queue.Schedule(ctx, queue.QueueDefault, "delete-block", DeleteBlockArgs{BotID: botID, ChatID: chatID, MessageID: messageID}, delay)
}

// DeleteScheduled is the handler body the scheduler's "delete-block" task
// invokes; exported so internal/scheduler can register it without
// blocksender depending on the queue runtime's Handler type.
func (s *Sender) DeleteScheduled(ctx context.Context, args DeleteBlockArgs) error {
	client, err := s.resolver.Resolve(ctx, args.BotID)
	if err != nil {
		return err
	}
	if err := client.DeleteMessage(ctx, args.ChatID, args.MessageID); err != nil {
		if apperr.Fatal(err) {
			return nil // message already gone; nothing left to delete
		}
		return err
	}
	return nil
}

