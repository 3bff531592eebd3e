// Package upsells implements C10's upsell-facing slice of spec §4.10 and
// §4.8 step 4: the trigger-term detection candidates C8 matches against
// (for non-preset upsells), and activating the upsell flow's preset
// siblings the first time a user's transaction is paid — arming each
// either for immediate announcement or for the periodic sweep (C11) to
// pick up at its resolved fire time.
package upsells

import (
	"context"
	"fmt"
	"time"

	"github.com/vkultra/mitski/internal/apperr"
	"github.com/vkultra/mitski/internal/conversation"
	"github.com/vkultra/mitski/internal/models"
	"github.com/vkultra/mitski/internal/repository"
	"github.com/vkultra/mitski/internal/scheduleexpr"
	"github.com/vkultra/mitski/internal/triggers"
)

// Candidates builds the detection list for non-preset upsells, the ones
// armed awaiting a conversational trigger term rather than a schedule.
func Candidates(upsells []*models.Upsell) []triggers.Candidate {
	out := make([]triggers.Candidate, 0, len(upsells))
	for _, u := range upsells {
		if u.IsPreset || u.TriggerTerm == "" {
			continue
		}
		out = append(out, triggers.Candidate{Term: u.TriggerTerm, Ref: u})
	}
	return out
}

// Activator activates the upsell flow on a user's first paid transaction.
type Activator struct {
	upsells    *repository.UpsellRepository
	deliveries *repository.UpsellDeliveryRepository
	blocks     *repository.BlockRepository
	sender     conversation.BlockSender
}

func NewActivator(upsells *repository.UpsellRepository, deliveries *repository.UpsellDeliveryRepository, blocks *repository.BlockRepository, sender conversation.BlockSender) *Activator {
	return &Activator{upsells: upsells, deliveries: deliveries, blocks: blocks, sender: sender}
}

// ActivateFirstSale arms every preset upsell for (bot,user): immediate
// ones announce right away, scheduled ones get a delivery row the
// periodic sweep claims once due.
func (a *Activator) ActivateFirstSale(ctx context.Context, botID, userTelegramID int64, saleTime time.Time) error {
	list, err := a.upsells.ListByBot(ctx, botID)
	if err != nil {
		return fmt.Errorf("upsells: list by bot: %w", err)
	}
	for _, u := range list {
		if !u.IsPreset {
			continue
		}
		fireAt, immediate := scheduleexpr.ResolveUpsellSchedule(u.Schedule, saleTime)
		if immediate {
			if err := a.Announce(ctx, botID, userTelegramID, u); err != nil {
				return err
			}
			continue
		}
		err := a.deliveries.Create(ctx, &models.UpsellDelivery{
			BotID:        botID,
			UserID:       userTelegramID,
			UpsellID:     u.ID,
			Status:       models.DeliveryScheduled,
			ScheduledFor: fireAt,
		})
		if err != nil && !apperr.Handled(err) {
			return fmt.Errorf("upsells: schedule %d: %w", u.ID, err)
		}
	}
	return nil
}

// Announce sends an upsell's announcement blocks to (bot,user).
func (a *Activator) Announce(ctx context.Context, botID, userTelegramID int64, u *models.Upsell) error {
	blocks, err := a.blocks.ListByContainer(ctx, models.ContainerUpsellAnnouncement, u.ID)
	if err != nil {
		return fmt.Errorf("upsells: list announcement blocks: %w", err)
	}
	dest := conversation.Destination{BotID: botID, ChatID: userTelegramID, UserTelegramID: userTelegramID}
	return a.sender.Send(ctx, dest, models.ContainerUpsellAnnouncement, u.ID, blocks, conversation.SendOptions{})
}

// DispatchDue claims and announces one due delivery; it is a no-op
// (nil error) when another sweep worker already claimed id.
func (a *Activator) DispatchDue(ctx context.Context, d *models.UpsellDelivery) error {
	claimed, err := a.deliveries.Claim(ctx, d.ID)
	if err != nil {
		return fmt.Errorf("upsells: claim delivery %d: %w", d.ID, err)
	}
	if !claimed {
		return nil
	}
	u, err := a.upsells.FindByID(ctx, d.UpsellID)
	if err != nil {
		return fmt.Errorf("upsells: find upsell %d: %w", d.UpsellID, err)
	}
	if u == nil {
		return nil
	}
	return a.Announce(ctx, d.BotID, d.UserID, u)
}
