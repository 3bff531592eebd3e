// Package recovery implements C11's inactivity-recovery slice of spec
// §4.7: arming a campaign's ordinal steps the first time a user goes
// quiet past the configured threshold, and delivering each step once
// the periodic sweep finds it due.
package recovery

import (
	"context"
	"fmt"
	"time"

	"github.com/vkultra/mitski/internal/apperr"
	"github.com/vkultra/mitski/internal/conversation"
	"github.com/vkultra/mitski/internal/models"
	"github.com/vkultra/mitski/internal/repository"
	"github.com/vkultra/mitski/internal/scheduleexpr"
)

// Watchdog reacts to CheckInactiveArgs tasks scheduled by the
// conversation engine after every inbound message (spec §4.7 step 1).
type Watchdog struct {
	sessions *repository.SessionRepository
	recovery *repository.RecoveryRepository
	pix      *repository.PixRepository
	blocks   *repository.BlockRepository
	sender   conversation.BlockSender
}

func NewWatchdog(sessions *repository.SessionRepository, recovery *repository.RecoveryRepository, pix *repository.PixRepository, blocks *repository.BlockRepository, sender conversation.BlockSender) *Watchdog {
	return &Watchdog{sessions: sessions, recovery: recovery, pix: pix, blocks: blocks, sender: sender}
}

// recoveryBlockContainerID packs (botID, ordinal) into the single BIGINT
// container_id column blocks are keyed by, since recovery steps have no
// integer id of their own (their primary key is campaign_bot_id+ordinal).
// Ordinals are assumed to stay under 1000 per campaign.
func recoveryBlockContainerID(botID int64, ordinal int) int64 {
	return botID*1000 + int64(ordinal)
}

// HandleCheckInactive is the watchdog: it fires the campaign's inactivity
// threshold after pingActivity scheduled it, and arms the episode only if
// the session's InactivityVersion still equals the one carried in args
// (no newer activity has superseded this check).
func (w *Watchdog) HandleCheckInactive(ctx context.Context, args conversation.CheckInactiveArgs) error {
	session, err := w.sessions.Find(ctx, args.BotID, args.UserTelegramID)
	if err != nil {
		return fmt.Errorf("recovery: load session: %w", err)
	}
	if session == nil || session.InactivityVersion != args.InactivityVersion {
		return nil
	}

	campaign, err := w.recovery.FindCampaign(ctx, args.BotID)
	if err != nil {
		return fmt.Errorf("recovery: load campaign: %w", err)
	}
	if campaign == nil || !campaign.IsActive {
		return nil
	}

	if campaign.IgnorePayingUsers {
		paid, err := w.pix.HasPriorTransaction(ctx, args.BotID, args.UserTelegramID, true, 0)
		if err != nil {
			return fmt.Errorf("recovery: check prior transaction: %w", err)
		}
		if paid {
			return nil
		}
	}

	steps, err := w.recovery.ListSteps(ctx, args.BotID)
	if err != nil {
		return fmt.Errorf("recovery: list steps: %w", err)
	}
	if len(steps) == 0 {
		return nil
	}

	episodeID := fmt.Sprintf("%d-%d", args.UserTelegramID, args.InactivityVersion)
	now := time.Now().UTC()
	for _, step := range steps {
		fireAt, err := scheduleexpr.Resolve(step, campaign.Timezone, now)
		if err != nil {
			return fmt.Errorf("recovery: resolve step %d: %w", step.Ordinal, err)
		}
		err = w.recovery.CreateDelivery(ctx, &models.RecoveryDelivery{
			BotID:           args.BotID,
			UserID:          args.UserTelegramID,
			CampaignVersion: campaign.Version,
			EpisodeID:       episodeID,
			StepOrdinal:     step.Ordinal,
			Status:          models.DeliveryScheduled,
			ScheduledFor:    fireAt,
		})
		if err != nil && !apperr.Handled(err) {
			return fmt.Errorf("recovery: schedule step %d: %w", step.Ordinal, err)
		}
	}
	return nil
}

// DispatchDue claims and sends one due delivery; it is a no-op (nil
// error) when the delivery was already claimed by another sweep worker
// or superseded by a newer campaign edit.
func (w *Watchdog) DispatchDue(ctx context.Context, d *models.RecoveryDelivery) error {
	campaign, err := w.recovery.FindCampaign(ctx, d.BotID)
	if err != nil {
		return fmt.Errorf("recovery: load campaign: %w", err)
	}
	if campaign == nil || campaign.Version != d.CampaignVersion {
		return w.recovery.MarkSkipped(ctx, d.ID)
	}
	if err := w.recovery.MarkSent(ctx, d.ID, campaign.Version); err != nil {
		if _, stale := err.(*apperr.ConsistencyError); stale {
			return nil
		}
		return fmt.Errorf("recovery: claim delivery %d: %w", d.ID, err)
	}

	blocks, err := w.blocks.ListByContainer(ctx, models.ContainerRecoveryStep, recoveryBlockContainerID(d.BotID, d.StepOrdinal))
	if err != nil {
		return fmt.Errorf("recovery: list step %d blocks: %w", d.StepOrdinal, err)
	}
	if len(blocks) == 0 {
		return nil
	}
	dest := conversation.Destination{BotID: d.BotID, ChatID: d.UserID, UserTelegramID: d.UserID}
	return w.sender.Send(ctx, dest, models.ContainerRecoveryStep, recoveryBlockContainerID(d.BotID, d.StepOrdinal), blocks, conversation.SendOptions{})
}
