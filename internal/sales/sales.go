// Package sales implements C12's payment and sale-event fan-out (spec
// §4.8): polling the gateway for a transaction's status, and — exactly
// once per transaction, guarded by a distributed lock plus a unique-key
// insert — dispatching deliverable blocks, activating the upsell flow,
// updating tracker stats, and enqueuing the admin sale notification.
package sales

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/vkultra/mitski/internal/adapters/pix"
	"github.com/vkultra/mitski/internal/adapters/telegram"
	"github.com/vkultra/mitski/internal/apperr"
	"github.com/vkultra/mitski/internal/conversation"
	"github.com/vkultra/mitski/internal/kv"
	"github.com/vkultra/mitski/internal/models"
	"github.com/vkultra/mitski/internal/queue"
	"github.com/vkultra/mitski/internal/ratelimit"
	"github.com/vkultra/mitski/internal/repository"
	"github.com/vkultra/mitski/internal/upsells"
)

// pixExpiry is how long a created-but-unpaid PIX charge is polled before
// the poller gives up and marks it expired.
const pixExpiry = 30 * time.Minute

// saleLockTTL bounds how long the fan-out's distributed lock is held,
// per the original source's dedup module (spec §4.8 step 1).
const saleLockTTL = 30 * time.Second

// Fanout implements spec §4.8: the exactly-once sale-approved pipeline
// invoked once a transaction transitions to paid.
type Fanout struct {
	store         *kv.Store
	pixRepo       *repository.PixRepository
	bots          *repository.BotRepository
	blocks        *repository.BlockRepository
	notifications *repository.SaleNotificationRepository
	trackers      *repository.TrackerRepository
	activator     *upsells.Activator
	sender        conversation.BlockSender
	queue         *queue.Client
}

func NewFanout(
	store *kv.Store,
	pixRepo *repository.PixRepository,
	bots *repository.BotRepository,
	blocks *repository.BlockRepository,
	notifications *repository.SaleNotificationRepository,
	trackers *repository.TrackerRepository,
	activator *upsells.Activator,
	sender conversation.BlockSender,
	queueClient *queue.Client,
) *Fanout {
	return &Fanout{
		store:         store,
		pixRepo:       pixRepo,
		bots:          bots,
		blocks:        blocks,
		notifications: notifications,
		trackers:      trackers,
		activator:     activator,
		sender:        sender,
		queue:         queueClient,
	}
}

// HandleSaleApproved runs the full fan-out for a transaction that just
// transitioned to paid. It is safe to call more than once for the same
// transaction id: the distributed lock serializes concurrent callers,
// and the SaleNotification unique-key insert makes every caller but the
// first writer return immediately once the lock is released.
func (f *Fanout) HandleSaleApproved(ctx context.Context, transactionID int64) error {
	lock, ok, err := ratelimit.AcquireLock(ctx, f.store, fmt.Sprintf("sale:%d", transactionID), saleLockTTL)
	if err != nil {
		return fmt.Errorf("sales: acquire lock: %w", err)
	}
	if !ok {
		return nil
	}
	defer lock.Release(ctx)

	tx, err := f.pixRepo.FindByID(ctx, transactionID)
	if err != nil {
		return fmt.Errorf("sales: load transaction: %w", err)
	}
	if tx == nil || tx.Status == models.PixDelivered {
		return nil
	}

	bot, err := f.bots.FindByID(ctx, tx.BotID)
	if err != nil {
		return fmt.Errorf("sales: load bot: %w", err)
	}
	if bot == nil {
		return nil
	}

	err = f.notifications.Create(ctx, &models.SaleNotification{
		TransactionID: transactionID,
		OwnerAdminID:  bot.OwnerAdminID,
		ChannelID:     bot.OwnerAdminID,
		Status:        models.NotificationPending,
	})
	if err != nil {
		if apperr.Handled(err) {
			return nil
		}
		return fmt.Errorf("sales: record sale notification: %w", err)
	}

	if err := f.dispatchDeliverable(ctx, tx); err != nil {
		return err
	}
	if err := f.pixRepo.MarkDelivered(ctx, tx.ID); err != nil {
		return fmt.Errorf("sales: mark delivered: %w", err)
	}

	hasPriorDelivery, err := f.pixRepo.HasPriorTransaction(ctx, tx.BotID, tx.UserID, true, tx.ID)
	if err != nil {
		return fmt.Errorf("sales: check prior transactions: %w", err)
	}
	if !hasPriorDelivery {
		if err := f.activator.ActivateFirstSale(ctx, tx.BotID, tx.UserID, time.Now().UTC()); err != nil {
			return fmt.Errorf("sales: activate upsell flow: %w", err)
		}
	}

	if err := f.updateTrackerStats(ctx, tx); err != nil {
		return err
	}

	return f.queue.Enqueue(ctx, queue.QueueNotifications, "send-sale-notification", SaleNotificationArgs{TransactionID: tx.ID, ChannelID: bot.OwnerAdminID})
}

func (f *Fanout) dispatchDeliverable(ctx context.Context, tx *models.PixTransaction) error {
	var kind models.ContainerKind
	var containerID int64
	switch {
	case tx.OfferID != nil:
		kind, containerID = models.ContainerOfferDeliverable, *tx.OfferID
	case tx.UpsellID != nil:
		kind, containerID = models.ContainerUpsellDeliverable, *tx.UpsellID
	default:
		return nil
	}

	blocks, err := f.blocks.ListByContainer(ctx, kind, containerID)
	if err != nil {
		return fmt.Errorf("sales: list deliverable blocks: %w", err)
	}
	if len(blocks) == 0 {
		return nil
	}
	dest := conversation.Destination{BotID: tx.BotID, ChatID: tx.UserID, UserTelegramID: tx.UserID}
	if err := f.sender.Send(ctx, dest, kind, containerID, blocks, conversation.SendOptions{}); err != nil {
		return fmt.Errorf("sales: send deliverable blocks: %w", err)
	}
	return nil
}

func (f *Fanout) updateTrackerStats(ctx context.Context, tx *models.PixTransaction) error {
	attribution, err := f.trackers.FindAttribution(ctx, tx.BotID, tx.UserID)
	if err != nil {
		return fmt.Errorf("sales: load tracker attribution: %w", err)
	}
	if attribution == nil {
		return nil
	}
	if err := f.trackers.IncrementDailyStat(ctx, tx.BotID, attribution.TrackerID, time.Now().UTC(), 0, 1, tx.AmountCents); err != nil {
		return fmt.Errorf("sales: increment tracker stats: %w", err)
	}
	return nil
}

// SaleNotificationArgs is the payload for the distinct, independently
// retried admin sale-notification send task (spec §4.8 step 6).
type SaleNotificationArgs struct {
	TransactionID int64 `json:"transaction_id"`
	ChannelID     int64 `json:"channel_id"`
}

// Poller drives the periodic gateway status check for non-terminal PIX
// transactions (spec §4.8's "polled on a periodic task (30-60s)").
type Poller struct {
	pixRepo *repository.PixRepository
	gateway *pix.Client
	fanout  *Fanout
	queue   *queue.Client
}

func NewPoller(pixRepo *repository.PixRepository, gateway *pix.Client, fanout *Fanout, queueClient *queue.Client) *Poller {
	return &Poller{pixRepo: pixRepo, gateway: gateway, fanout: fanout, queue: queueClient}
}

// HandlePollPix is the "poll-pix" task handler body.
func (p *Poller) HandlePollPix(ctx context.Context, args conversation.PollPixArgs) error {
	tx, err := p.pixRepo.FindByID(ctx, args.TransactionID)
	if err != nil {
		return fmt.Errorf("sales: load transaction: %w", err)
	}
	if tx == nil || tx.Status == models.PixPaid || tx.Status == models.PixDelivered ||
		tx.Status == models.PixExpired || tx.Status == models.PixFailed {
		return nil
	}

	status, err := p.gateway.GetStatus(ctx, tx.ExternalID)
	if err != nil {
		return fmt.Errorf("sales: poll gateway status: %w", err)
	}

	switch status {
	case "paid":
		paid, err := p.pixRepo.MarkPaid(ctx, tx.ID)
		if err != nil {
			return fmt.Errorf("sales: mark paid: %w", err)
		}
		if !paid {
			return nil
		}
		return p.fanout.HandleSaleApproved(ctx, tx.ID)
	case "expired", "failed":
		return nil
	default:
		if time.Since(tx.CreatedAt) > pixExpiry {
			return nil
		}
		return p.queue.Schedule(ctx, queue.QueueDefault, "poll-pix", args, 30*time.Second)
	}
}

// Notifier sends the exactly-once admin sale notification via the
// manager bot (spec §4.8 step 6), retried independently of the fan-out.
type Notifier struct {
	pixRepo       *repository.PixRepository
	notifications *repository.SaleNotificationRepository
	manager       *telegram.Client
}

func NewNotifier(pixRepo *repository.PixRepository, notifications *repository.SaleNotificationRepository, manager *telegram.Client) *Notifier {
	return &Notifier{pixRepo: pixRepo, notifications: notifications, manager: manager}
}

// HandleSendSaleNotification is the "send-sale-notification" task
// handler body.
func (n *Notifier) HandleSendSaleNotification(ctx context.Context, args SaleNotificationArgs) error {
	tx, err := n.pixRepo.FindByID(ctx, args.TransactionID)
	if err != nil {
		return fmt.Errorf("sales: load transaction for notification: %w", err)
	}
	if tx == nil {
		return nil
	}

	text := fmt.Sprintf("Venda aprovada: bot %d, usuário %d, R$ %.2f", tx.BotID, tx.UserID, float64(tx.AmountCents)/100)
	if _, err := n.manager.SendMessage(ctx, args.ChannelID, text); err != nil {
		if markErr := n.notifications.MarkFailed(ctx, tx.ID); markErr != nil {
			return fmt.Errorf("sales: send notification: %w (and mark failed: %v)", err, markErr)
		}
		return fmt.Errorf("sales: send notification: %w", err)
	}
	return n.notifications.MarkSent(ctx, tx.ID)
}

// RegisterHandlers binds this package's task names to their handler
// bodies. cmd/bot calls this once during wiring.
func RegisterHandlers(runtime *queue.Runtime, poller *Poller, notifier *Notifier) {
	runtime.Register("poll-pix", func(ctx context.Context, raw json.RawMessage) error {
		var args conversation.PollPixArgs
		if err := json.Unmarshal(raw, &args); err != nil {
			return fmt.Errorf("sales: decode poll-pix args: %w", err)
		}
		return poller.HandlePollPix(ctx, args)
	})
	runtime.Register("send-sale-notification", func(ctx context.Context, raw json.RawMessage) error {
		var args SaleNotificationArgs
		if err := json.Unmarshal(raw, &args); err != nil {
			return fmt.Errorf("sales: decode send-sale-notification args: %w", err)
		}
		return notifier.HandleSendSaleNotification(ctx, args)
	})
}
