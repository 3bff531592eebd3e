// Package conversation implements the per-message pipeline of spec
// §4.5 (C8): attribution, anti-spam, activity tracking, credit
// pre-check, debug short-circuit, session load/assembly, the LLM call,
// post-debit, and the AI-output post-scan that drives offers, actions,
// upsells, discount negotiation, and manual verification.
package conversation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/vkultra/mitski/internal/adapters/llm"
	"github.com/vkultra/mitski/internal/adapters/pix"
	"github.com/vkultra/mitski/internal/apperr"
	"github.com/vkultra/mitski/internal/config"
	"github.com/vkultra/mitski/internal/credit"
	"github.com/vkultra/mitski/internal/models"
	"github.com/vkultra/mitski/internal/queue"
	"github.com/vkultra/mitski/internal/ratelimit"
	"github.com/vkultra/mitski/internal/repository"
)

// defaultAvgOutputTokens is the output-token count the credit pre-check
// assumes for every message. It is a fixed value; no average of observed
// completion sizes is kept.
const defaultAvgOutputTokens = 300

const defaultTemperature = 0.8

// manualVerificationLookbackWindow bounds how far back a "pending PIX"
// lookup searches when a manual-verification trigger fires (spec §4.5
// step 11).
const manualVerificationLookbackWindow = 15 * time.Minute

// SpamChecker is the anti-spam integration point (spec §4.5 step 2,
// "not detailed here"). A nil checker means every message passes.
type SpamChecker interface {
	Check(ctx context.Context, botID, userTelegramID int64, text string) (banned bool, err error)
}

// Engine wires the store, KV, adapters, and queue client the conversation
// pipeline needs. Every dependency is injected so tests can swap in
// doubles the way the teacher's service layer does.
type Engine struct {
	log *slog.Logger
	cfg config.Config

	users     *repository.UserRepository
	bots      *repository.BotRepository
	sessions  *repository.SessionRepository
	phases    *repository.PhaseRepository
	offers    *repository.OfferRepository
	actions   *repository.ActionRepository
	upsells   *repository.UpsellRepository
	pixRepo   *repository.PixRepository
	trackers  *repository.TrackerRepository
	recovery  *repository.RecoveryRepository
	blocks    *repository.BlockRepository

	limiter *ratelimit.Limiter
	ledger  *credit.Ledger
	llmc    *llm.Client
	pixc    *pix.Client
	queue   *queue.Client
	sender  BlockSender
	starter StartSender
	spam    SpamChecker
}

// Deps groups Engine's constructor arguments.
type Deps struct {
	Log      *slog.Logger
	Cfg      config.Config
	Users    *repository.UserRepository
	Bots     *repository.BotRepository
	Sessions *repository.SessionRepository
	Phases   *repository.PhaseRepository
	Offers   *repository.OfferRepository
	Actions  *repository.ActionRepository
	Upsells  *repository.UpsellRepository
	Pix      *repository.PixRepository
	Trackers *repository.TrackerRepository
	Recovery *repository.RecoveryRepository
	Blocks   *repository.BlockRepository
	Limiter  *ratelimit.Limiter
	Ledger   *credit.Ledger
	LLM      *llm.Client
	PixClient *pix.Client
	Queue    *queue.Client
	Sender   BlockSender
	Starter  StartSender
	Spam     SpamChecker
}

func NewEngine(d Deps) *Engine {
	return &Engine{
		log:      d.Log,
		cfg:      d.Cfg,
		users:    d.Users,
		bots:     d.Bots,
		sessions: d.Sessions,
		phases:   d.Phases,
		offers:   d.Offers,
		actions:  d.Actions,
		upsells:  d.Upsells,
		pixRepo:  d.Pix,
		trackers: d.Trackers,
		recovery: d.Recovery,
		blocks:   d.Blocks,
		limiter:  d.Limiter,
		ledger:   d.Ledger,
		llmc:     d.LLM,
		pixc:     d.PixClient,
		queue:    d.Queue,
		sender:   d.Sender,
		starter:  d.Starter,
		spam:     d.Spam,
	}
}

// HandleMessage runs the full pipeline for one inbound user message. It
// is the handler the task runtime registers on the "ai" queue.
func (e *Engine) HandleMessage(ctx context.Context, msg IncomingMessage) error {
	dest := Destination{BotID: msg.BotID, ChatID: msg.ChatID, UserTelegramID: msg.UserTelegramID}

	if code, ok := startCode(msg.Text); ok {
		if err := e.attribute(ctx, msg.BotID, msg.UserTelegramID, code); err != nil {
			return err
		}
		cfgDrop, err := e.shouldDropUntracked(ctx, msg.BotID, code)
		if err != nil {
			return err
		}
		if cfgDrop {
			return nil // silent drop, spec §4.5 step 1
		}
		if e.starter != nil {
			return e.starter.SendIfDue(ctx, msg.BotID, msg.UserTelegramID)
		}
		return nil
	}

	if e.spam != nil {
		banned, err := e.spam.Check(ctx, msg.BotID, msg.UserTelegramID, msg.Text)
		if err != nil {
			return fmt.Errorf("conversation: spam check: %w", err)
		}
		if banned {
			return nil
		}
	}

	if err := e.pingActivity(ctx, msg.BotID, msg.UserTelegramID); err != nil {
		e.log.Warn("activity ping failed", "bot_id", msg.BotID, "user_id", msg.UserTelegramID, "err", err)
	}

	bot, err := e.bots.FindByID(ctx, msg.BotID)
	if err != nil {
		return fmt.Errorf("conversation: load bot: %w", err)
	}
	if bot == nil {
		return &apperr.ConsistencyError{Reason: fmt.Sprintf("bot %d not found", msg.BotID)}
	}

	estimate := e.ledger.EstimateTextCostCents(len(msg.Text), defaultAvgOutputTokens)
	if err := e.ledger.PreCheck(ctx, bot.OwnerAdminID, estimate); err != nil {
		if apperr.Silent(err) {
			e.log.Info("credit pre-check failed, dropping silently", "bot_id", msg.BotID, "admin_id", bot.OwnerAdminID)
			return nil
		}
		return err
	}

	if handled, err := e.handleDebugCommand(ctx, dest, msg.Text); handled || err != nil {
		return err
	}

	session, err := e.loadOrCreateSession(ctx, msg.BotID, msg.UserTelegramID)
	if err != nil {
		return fmt.Errorf("conversation: load session: %w", err)
	}

	phase, general, err := e.loadPhases(ctx, msg.BotID, session.CurrentPhaseID)
	if err != nil {
		return fmt.Errorf("conversation: load phases: %w", err)
	}

	actionLines, err := e.actionStatusLines(ctx, msg.BotID, msg.UserTelegramID)
	if err != nil {
		return fmt.Errorf("conversation: load action status: %w", err)
	}

	systemPrompt := assembleSystemPrompt(general, phase, actionLines)
	messages := buildMessages(systemPrompt, session.History, msg.Text)

	reply, err := e.llmc.Complete(ctx, messages, defaultTemperature)
	if err != nil {
		return fmt.Errorf("conversation: llm complete: %w", err)
	}

	if err := e.ledger.DebitText(ctx, bot.OwnerAdminID, credit.TextUsage{
		PromptTokens:     int64(reply.Usage.PromptTokens),
		CompletionTokens: int64(reply.Usage.CompletionTokens),
		CachedTokens:     int64(reply.Usage.CachedTokens),
	}, fmt.Sprintf("bot:%d user:%d msg:%d", msg.BotID, msg.UserTelegramID, msg.MessageID)); err != nil {
		e.log.Warn("post-debit failed", "bot_id", msg.BotID, "user_id", msg.UserTelegramID, "err", err)
	}

	now := time.Now().UTC()
	session.History = append(session.History,
		models.HistoryTurn{Role: "user", Text: msg.Text, Ts: now},
		models.HistoryTurn{Role: "assistant", Text: reply.Text, Ts: now},
	)
	session.History = truncateHistory(session.History)

	outcome, err := e.postScan(ctx, dest, bot, session, phase, reply.Text)
	if err != nil {
		return fmt.Errorf("conversation: post-scan: %w", err)
	}

	if err := e.sessions.CompareAndSwap(ctx, session, session.HistoryVersion); err != nil {
		if apperr.Silent(err) {
			return nil // lost the CAS race; the other writer's append already landed
		}
		return err
	}

	return e.deliverOutcome(ctx, dest, outcome)
}

func startCode(text string) (string, bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/start") {
		return "", false
	}
	rest := strings.TrimSpace(strings.TrimPrefix(text, "/start"))
	return rest, true
}

func (e *Engine) attribute(ctx context.Context, botID, userID int64, code string) error {
	if code == "" {
		return nil
	}
	tracker, err := e.trackers.FindByCode(ctx, botID, code)
	if err != nil {
		return fmt.Errorf("conversation: find tracker: %w", err)
	}
	if tracker == nil || !tracker.IsActive {
		return nil
	}
	if err := e.trackers.AttributeFirstTouch(ctx, botID, userID, tracker.ID); err != nil {
		return fmt.Errorf("conversation: attribute first touch: %w", err)
	}
	today := time.Now().UTC()
	if err := e.trackers.IncrementDailyStat(ctx, botID, tracker.ID, today, 1, 0, 0); err != nil {
		e.log.Warn("increment tracker daily stat failed", "bot_id", botID, "tracker_id", tracker.ID, "err", err)
	}
	return nil
}

func (e *Engine) shouldDropUntracked(ctx context.Context, botID int64, code string) (bool, error) {
	cfg, err := e.trackers.TrackingConfig(ctx, botID)
	if err != nil {
		return false, fmt.Errorf("conversation: load tracking config: %w", err)
	}
	if !cfg.RequireTrackedStart {
		return false, nil
	}
	if code == "" {
		return true, nil
	}
	tracker, err := e.trackers.FindByCode(ctx, botID, code)
	if err != nil {
		return false, err
	}
	return tracker == nil || !tracker.IsActive, nil
}

func (e *Engine) pingActivity(ctx context.Context, botID, userID int64) error {
	if err := e.users.TouchLastInteraction(ctx, botID, userID); err != nil {
		return err
	}
	version, err := e.sessions.BumpInactivityVersion(ctx, botID, userID)
	if err != nil {
		return err
	}
	campaign, err := e.recovery.FindCampaign(ctx, botID)
	if err != nil {
		return fmt.Errorf("load recovery campaign: %w", err)
	}
	if campaign == nil || !campaign.IsActive {
		return nil
	}
	threshold := time.Duration(campaign.InactivityThresholdSec) * time.Second
	if threshold <= 0 {
		threshold = 10 * time.Minute
	}
	args := CheckInactiveArgs{BotID: botID, UserTelegramID: userID, InactivityVersion: version}
	return e.queue.Schedule(ctx, queue.QueueScheduler, "check-inactive", args, threshold)
}

// CheckInactiveArgs is the payload scheduled by pingActivity and consumed
// by the scheduler's inactivity watchdog (internal/scheduler).
type CheckInactiveArgs struct {
	BotID             int64 `json:"bot_id"`
	UserTelegramID    int64 `json:"user_telegram_id"`
	InactivityVersion int64 `json:"inactivity_version"`
}

func (e *Engine) handleDebugCommand(ctx context.Context, dest Destination, text string) (bool, error) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return false, nil
	}
	cmd := strings.TrimPrefix(text, "/")
	switch cmd {
	case "debug_help":
		return true, e.sender.SendText(ctx, dest, "Comandos de depuração: /venda_aprovada, /debug_help, ou o nome verbatim de uma oferta ou ação.")
	case "venda_aprovada":
		return true, e.sender.SendText(ctx, dest, "Simulação registrada: uma venda seria processada aqui pelo fan-out de pagamento.")
	}

	offers, err := e.offers.ListActiveByBot(ctx, dest.BotID)
	if err != nil {
		return false, err
	}
	for _, o := range offers {
		if strings.EqualFold(o.Name, cmd) {
			return true, e.sendPreview(ctx, dest, models.ContainerOfferPitch, o.ID)
		}
	}

	actions, err := e.actions.ListByBot(ctx, dest.BotID)
	if err != nil {
		return false, err
	}
	for _, a := range actions {
		if strings.EqualFold(a.Name, cmd) {
			return true, e.sendPreview(ctx, dest, models.ContainerAction, a.ID)
		}
	}
	return false, nil
}

func (e *Engine) sendPreview(ctx context.Context, dest Destination, kind models.ContainerKind, containerID int64) error {
	blocks, err := e.blocks.ListByContainer(ctx, kind, containerID)
	if err != nil {
		return err
	}
	return e.sender.Send(ctx, dest, kind, containerID, blocks, SendOptions{Preview: true, PixCode: "PREVIEW_PIX_CODE"})
}

func (e *Engine) loadOrCreateSession(ctx context.Context, botID, userID int64) (*models.Session, error) {
	session, err := e.sessions.Find(ctx, botID, userID)
	if err != nil {
		return nil, err
	}
	if session != nil {
		return session, nil
	}
	general, err := e.phases.General(ctx, botID)
	if err != nil {
		return nil, err
	}
	var phaseID int64
	if general != nil {
		phaseID = general.ID
	}
	session = &models.Session{
		BotID:          botID,
		UserTelegramID: userID,
		CurrentPhaseID: phaseID,
		LastActiveAt:   time.Now().UTC(),
	}
	if err := e.sessions.Create(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

func (e *Engine) loadPhases(ctx context.Context, botID, currentPhaseID int64) (current, general *models.Phase, err error) {
	general, err = e.phases.General(ctx, botID)
	if err != nil {
		return nil, nil, err
	}
	if currentPhaseID == 0 {
		return general, general, nil
	}
	current, err = e.phases.FindByID(ctx, currentPhaseID)
	if err != nil {
		return nil, nil, err
	}
	if current == nil {
		current = general
	}
	return current, general, nil
}

func (e *Engine) actionStatusLines(ctx context.Context, botID, userID int64) ([]string, error) {
	actions, err := e.actions.ListByBot(ctx, botID)
	if err != nil {
		return nil, err
	}
	var lines []string
	for _, a := range actions {
		if !a.TrackUsage {
			continue
		}
		status, err := e.actions.Status(ctx, botID, userID, a.ID)
		if err != nil {
			return nil, err
		}
		lines = append(lines, fmt.Sprintf("Action %q: %s", a.Name, status))
	}
	return lines, nil
}

func assembleSystemPrompt(general, phase *models.Phase, actionLines []string) string {
	var b strings.Builder
	if general != nil {
		b.WriteString(general.PromptText)
	}
	if phase != nil && general != nil && phase.ID != general.ID {
		b.WriteString("\n\n")
		b.WriteString(phase.PromptText)
	}
	for _, line := range actionLines {
		b.WriteString("\n")
		b.WriteString(line)
	}
	return b.String()
}

func buildMessages(systemPrompt string, history []models.HistoryTurn, userText string) []llm.Message {
	messages := make([]llm.Message, 0, len(history)+2)
	if systemPrompt != "" {
		messages = append(messages, llm.Message{Role: "system", Content: systemPrompt})
	}
	for _, turn := range history {
		messages = append(messages, llm.Message{Role: turn.Role, Content: turn.Text})
	}
	messages = append(messages, llm.Message{Role: "user", Content: userText})
	return messages
}

// maxHistoryTurns bounds a session's stored history (spec §3: "History
// truncated by size and/or token budget").
const maxHistoryTurns = 40

func truncateHistory(history []models.HistoryTurn) []models.HistoryTurn {
	if len(history) <= maxHistoryTurns {
		return history
	}
	return history[len(history)-maxHistoryTurns:]
}
