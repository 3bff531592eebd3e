package conversation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/vkultra/mitski/internal/actions"
	"github.com/vkultra/mitski/internal/adapters/pix"
	"github.com/vkultra/mitski/internal/models"
	"github.com/vkultra/mitski/internal/offers"
	"github.com/vkultra/mitski/internal/queue"
	"github.com/vkultra/mitski/internal/triggers"
)

// outcome is what step 12 (Send resulting blocks) delivers: either the
// (possibly substituted) AI text alone, or the AI text plus a block
// container produced by a detected offer/action/upsell/discount/manual-
// verification trigger.
type outcome struct {
	text          string
	containerKind models.ContainerKind
	containerID   int64
	blocks        []*models.Block
	pixCode       string
}

// postScan runs spec §4.5 step 11 against the AI's reply text, in the
// documented order, mutating session.CurrentPhaseID in place when a
// phase transition fires.
func (e *Engine) postScan(ctx context.Context, dest Destination, bot *models.Bot, session *models.Session, currentPhase *models.Phase, aiText string) (outcome, error) {
	if err := e.scanPhaseTransition(ctx, session, aiText); err != nil {
		return outcome{}, err
	}

	if out, handled, err := e.scanDiscountNegotiation(ctx, dest, bot, aiText); handled || err != nil {
		return out, err
	}

	if out, handled, err := e.scanOfferDetection(ctx, dest, bot, aiText); handled || err != nil {
		return out, err
	}

	if out, handled, err := e.scanActionDetection(ctx, dest, aiText); handled || err != nil {
		return out, err
	}

	if out, handled, err := e.scanUpsellTrigger(ctx, dest, bot, aiText); handled || err != nil {
		return out, err
	}

	if out, handled, err := e.scanManualVerification(ctx, dest, aiText); handled || err != nil {
		return out, err
	}

	return outcome{text: aiText}, nil
}

func (e *Engine) scanPhaseTransition(ctx context.Context, session *models.Session, aiText string) error {
	phases, err := e.phases.ListByBot(ctx, session.BotID)
	if err != nil {
		return err
	}
	var candidates []triggers.Candidate
	for _, p := range phases {
		if p.IsGeneral {
			continue
		}
		for _, term := range p.TriggerTerms {
			candidates = append(candidates, triggers.Candidate{Term: term, Ref: p})
		}
	}
	match, ok := triggers.Detect(aiText, candidates)
	if !ok {
		return nil
	}
	phase := match.Ref.(*models.Phase)
	if phase.ID != session.CurrentPhaseID {
		session.CurrentPhaseID = phase.ID
	}
	return nil
}

func (e *Engine) scanDiscountNegotiation(ctx context.Context, dest Destination, bot *models.Bot, aiText string) (outcome, bool, error) {
	allOffers, err := e.offers.ListActiveByBot(ctx, bot.ID)
	if err != nil {
		return outcome{}, false, err
	}
	for _, o := range offers.DiscountCandidates(allOffers) {
		amountCents, ok := triggers.ParseDiscountNegotiation(aiText, o.DiscountTrigger)
		if !ok {
			continue
		}
		tx, charge, err := e.issuePix(ctx, bot, dest.UserTelegramID, &o.ID, nil, amountCents)
		if err != nil {
			return outcome{}, false, err
		}
		blocks, err := e.blocks.ListByContainer(ctx, models.ContainerNegotiatedDiscount, o.ID)
		if err != nil {
			return outcome{}, false, err
		}
		if err := e.schedulePixVerification(ctx, bot.ID, dest.UserTelegramID, tx.ID); err != nil {
			return outcome{}, false, err
		}
		return outcome{
			text:          aiText,
			containerKind: models.ContainerNegotiatedDiscount,
			containerID:   o.ID,
			blocks:        blocks,
			pixCode:       charge.QRCode,
		}, true, nil
	}
	return outcome{}, false, nil
}

func (e *Engine) scanOfferDetection(ctx context.Context, dest Destination, bot *models.Bot, aiText string) (outcome, bool, error) {
	allOffers, err := e.offers.ListActiveByBot(ctx, bot.ID)
	if err != nil {
		return outcome{}, false, err
	}
	match, ok := triggers.Detect(aiText, offers.Candidates(allOffers))
	if !ok {
		return outcome{}, false, nil
	}
	offer := match.Ref.(*models.Offer)

	tx, charge, err := e.issuePix(ctx, bot, dest.UserTelegramID, &offer.ID, nil, offer.Price.AmountCents)
	if err != nil {
		return outcome{}, false, err
	}
	if err := e.schedulePixVerification(ctx, bot.ID, dest.UserTelegramID, tx.ID); err != nil {
		return outcome{}, false, err
	}

	blocks, err := e.blocks.ListByContainer(ctx, models.ContainerOfferPitch, offer.ID)
	if err != nil {
		return outcome{}, false, err
	}
	text, _ := triggers.Substitute(aiText, offer.Name, "")

	return outcome{
		text:          text,
		containerKind: models.ContainerOfferPitch,
		containerID:   offer.ID,
		blocks:        blocks,
		pixCode:       charge.QRCode,
	}, true, nil
}

func (e *Engine) scanActionDetection(ctx context.Context, dest Destination, aiText string) (outcome, bool, error) {
	allActions, err := e.actions.ListByBot(ctx, dest.BotID)
	if err != nil {
		return outcome{}, false, err
	}
	match, ok := triggers.Detect(aiText, actions.Candidates(allActions))
	if !ok {
		return outcome{}, false, nil
	}
	action := match.Ref.(*models.Action)

	if action.TrackUsage {
		if err := e.actions.Activate(ctx, dest.BotID, dest.UserTelegramID, action.ID); err != nil {
			return outcome{}, false, err
		}
	}

	blocks, err := e.blocks.ListByContainer(ctx, models.ContainerAction, action.ID)
	if err != nil {
		return outcome{}, false, err
	}
	text, _ := triggers.Substitute(aiText, action.Name, "")

	return outcome{
		text:          text,
		containerKind: models.ContainerAction,
		containerID:   action.ID,
		blocks:        blocks,
	}, true, nil
}

func (e *Engine) scanUpsellTrigger(ctx context.Context, dest Destination, bot *models.Bot, aiText string) (outcome, bool, error) {
	upsells, err := e.upsells.ListByBot(ctx, bot.ID)
	if err != nil {
		return outcome{}, false, err
	}
	candidates := make([]triggers.Candidate, 0, len(upsells))
	for _, u := range upsells {
		if u.IsPreset || u.TriggerTerm == "" {
			continue
		}
		candidates = append(candidates, triggers.Candidate{Term: u.TriggerTerm, Ref: u})
	}
	match, ok := triggers.Detect(aiText, candidates)
	if !ok {
		return outcome{}, false, nil
	}
	upsell := match.Ref.(*models.Upsell)

	tx, charge, err := e.issuePix(ctx, bot, dest.UserTelegramID, nil, &upsell.ID, upsell.Price.AmountCents)
	if err != nil {
		return outcome{}, false, err
	}
	if err := e.schedulePixVerification(ctx, bot.ID, dest.UserTelegramID, tx.ID); err != nil {
		return outcome{}, false, err
	}

	blocks, err := e.blocks.ListByContainer(ctx, models.ContainerUpsellAnnouncement, upsell.ID)
	if err != nil {
		return outcome{}, false, err
	}
	text, _ := triggers.Substitute(aiText, upsell.TriggerTerm, "")

	return outcome{
		text:          text,
		containerKind: models.ContainerUpsellAnnouncement,
		containerID:   upsell.ID,
		blocks:        blocks,
		pixCode:       charge.QRCode,
	}, true, nil
}

func (e *Engine) scanManualVerification(ctx context.Context, dest Destination, aiText string) (outcome, bool, error) {
	allOffers, err := e.offers.ListActiveByBot(ctx, dest.BotID)
	if err != nil {
		return outcome{}, false, err
	}
	var matched *models.Offer
	for _, o := range offers.ManualVerificationCandidates(allOffers) {
		if strings.Contains(strings.ToLower(aiText), strings.ToLower(o.ManualVerificationTrigger)) {
			matched = o
			break
		}
	}
	if matched == nil {
		return outcome{}, false, nil
	}

	since := time.Now().UTC().Add(-manualVerificationLookbackWindow)
	tx, err := e.pixRepo.FindPendingSince(ctx, dest.BotID, dest.UserTelegramID, since)
	if err != nil {
		return outcome{}, false, err
	}
	if tx != nil && tx.Status == models.PixPaid {
		blocks, err := e.blocks.ListByContainer(ctx, models.ContainerOfferDeliverable, matched.ID)
		if err != nil {
			return outcome{}, false, err
		}
		if err := e.pixRepo.MarkDelivered(ctx, tx.ID); err != nil {
			return outcome{}, false, err
		}
		return outcome{text: aiText, containerKind: models.ContainerOfferDeliverable, containerID: matched.ID, blocks: blocks}, true, nil
	}

	blocks, err := e.blocks.ListByContainer(ctx, models.ContainerOfferManualVerify, matched.ID)
	if err != nil {
		return outcome{}, false, err
	}
	return outcome{text: aiText, containerKind: models.ContainerOfferManualVerify, containerID: matched.ID, blocks: blocks}, true, nil
}

func (e *Engine) issuePix(ctx context.Context, bot *models.Bot, userTelegramID int64, offerID, upsellID *int64, amountCents int64) (*models.PixTransaction, *pix.Charge, error) {
	idempotencyKey := fmt.Sprintf("bot:%d:user:%d:offer:%v:upsell:%v:%d", bot.ID, userTelegramID, offerID, upsellID, time.Now().UnixNano())
	charge, err := e.pixc.CreateCharge(ctx, amountCents, idempotencyKey, map[string]string{
		"bot_id":  fmt.Sprintf("%d", bot.ID),
		"user_id": fmt.Sprintf("%d", userTelegramID),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("issue pix: %w", err)
	}
	tx, err := e.pixRepo.Create(ctx, &models.PixTransaction{
		BotID:       bot.ID,
		UserID:      userTelegramID,
		OfferID:     offerID,
		UpsellID:    upsellID,
		AmountCents: amountCents,
		Status:      models.PixCreated,
		ExternalID:  charge.ExternalID,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("record pix transaction: %w", err)
	}
	return tx, charge, nil
}

func (e *Engine) schedulePixVerification(ctx context.Context, botID, userID, txID int64) error {
	return e.queue.Schedule(ctx, queue.QueueDefault, "poll-pix", PollPixArgs{BotID: botID, UserTelegramID: userID, TransactionID: txID}, 30*time.Second)
}

// PollPixArgs is the payload for the periodic PIX-status poll task
// (spec §4.8); consumed by internal/sales.
type PollPixArgs struct {
	BotID          int64 `json:"bot_id"`
	UserTelegramID int64 `json:"user_telegram_id"`
	TransactionID  int64 `json:"transaction_id"`
}

func (e *Engine) deliverOutcome(ctx context.Context, dest Destination, out outcome) error {
	if out.blocks == nil {
		if out.text == "" {
			return nil
		}
		return e.sender.SendText(ctx, dest, out.text)
	}
	if out.text != "" {
		if err := e.sender.SendText(ctx, dest, out.text); err != nil {
			return err
		}
	}
	return e.sender.Send(ctx, dest, out.containerKind, out.containerID, out.blocks, SendOptions{PixCode: out.pixCode})
}
