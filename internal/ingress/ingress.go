// Package ingress is the chi HTTP receiver for secondary-bot and
// manager-bot Telegram webhooks (spec §6), generalized from the
// teacher's internal/admin.Server chi wiring to unauthenticated,
// high-volume webhook traffic instead of basic-auth operational CRUD.
package ingress

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/vkultra/mitski/internal/conversation"
	"github.com/vkultra/mitski/internal/kv"
	"github.com/vkultra/mitski/internal/metrics"
	"github.com/vkultra/mitski/internal/queue"
	"github.com/vkultra/mitski/internal/repository"
)

// updateDedupTTL bounds how long a Telegram update_id is remembered to
// reject retried deliveries (spec §4.5's dedup-via-KV-TTL-keys primitive).
const updateDedupTTL = 10 * time.Minute

// secretHeader is the header Telegram signs webhook requests with when
// a secret_token was set via setWebhook.
const secretHeader = "X-Telegram-Bot-Api-Secret-Token"

// HealthChecker reports liveness of the store and KV, per spec §9
// ("never output-parsing").
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// Server is the webhook/health/metrics HTTP surface for every secondary
// bot plus the manager bot, routed by bot id in the URL path.
type Server struct {
	addr     string
	log      *slog.Logger
	bots     *repository.BotRepository
	store    *kv.Store
	queue    *queue.Client
	metrics  *metrics.Registry
	health   HealthChecker
	managerSecret string
	router   *chi.Mux
}

func NewServer(
	addr string,
	log *slog.Logger,
	bots *repository.BotRepository,
	store *kv.Store,
	queueClient *queue.Client,
	reg *metrics.Registry,
	health HealthChecker,
	managerSecret string,
) *Server {
	s := &Server{
		addr:          addr,
		log:           log,
		bots:          bots,
		store:         store,
		queue:         queueClient,
		metrics:       reg,
		health:        health,
		managerSecret: managerSecret,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Get("/health", s.handleHealth)
	r.Get("/metrics", s.handleMetrics)
	r.Post("/webhook/manager", s.handleManagerWebhook)
	r.Post("/webhook/{bot_id}", s.handleBotWebhook)
	s.router = r
	return s
}

func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Error("ingress shutdown error", "err", err)
		}
	}()

	s.log.Info("ingress listening", "addr", s.addr)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("ingress listen: %w", err)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.health.Ping(r.Context()); err != nil {
		s.log.Error("health check failed", "err", err)
		http.Error(w, "unhealthy", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	_, _ = w.Write([]byte(s.metrics.WriteText()))
}

// handleManagerWebhook receives updates addressed to the manager bot
// (admin callback queries, /start from admins). It shares the same
// dedup and enqueue path as secondary bots but is keyed by a single
// configured secret rather than a per-bot one.
func (s *Server) handleManagerWebhook(w http.ResponseWriter, r *http.Request) {
	if subtle.ConstantTimeCompare([]byte(r.Header.Get(secretHeader)), []byte(s.managerSecret)) != 1 {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	s.ingest(w, r, 0)
}

func (s *Server) handleBotWebhook(w http.ResponseWriter, r *http.Request) {
	botID, err := parseBotID(chi.URLParam(r, "bot_id"))
	if err != nil {
		http.Error(w, "invalid bot id", http.StatusBadRequest)
		return
	}
	bot, err := s.bots.FindByID(r.Context(), botID)
	if err != nil {
		s.log.Error("ingress: load bot failed", "bot_id", botID, "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if bot == nil || !bot.IsActive {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	if subtle.ConstantTimeCompare([]byte(r.Header.Get(secretHeader)), []byte(bot.WebhookSecret)) != 1 {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	s.ingest(w, r, botID)
}

func (s *Server) ingest(w http.ResponseWriter, r *http.Request, botID int64) {
	stop := s.metrics.Timer("webhook_request_duration_seconds")
	defer stop()

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	var update tgbotapi.Update
	if err := json.Unmarshal(body, &update); err != nil {
		http.Error(w, "invalid update", http.StatusBadRequest)
		return
	}
	// Always 200 the webhook once parsed: Telegram retries non-2xx
	// responses, and dedup below already makes retries harmless.
	w.WriteHeader(http.StatusOK)
	s.metrics.Inc("webhook_requests_total")

	dedupKey := fmt.Sprintf("dedup:update:%d", update.UpdateID)
	fresh, err := s.store.SetNX(r.Context(), dedupKey, "1", updateDedupTTL)
	if err != nil {
		s.log.Error("ingress: dedup check failed", "err", err)
		return
	}
	if !fresh {
		s.metrics.Inc("webhook_duplicate_updates_total")
		return
	}

	msg, ok := extractMessage(update, botID)
	if !ok {
		return
	}
	if err := s.queue.Enqueue(r.Context(), queue.QueueAI, "process-update", msg); err != nil {
		s.log.Error("ingress: enqueue process-update failed", "err", err)
	}
}

func extractMessage(update tgbotapi.Update, botID int64) (conversation.IncomingMessage, bool) {
	if update.Message == nil || update.Message.From == nil {
		return conversation.IncomingMessage{}, false
	}
	return conversation.IncomingMessage{
		BotID:          botID,
		ChatID:         update.Message.Chat.ID,
		UserTelegramID: update.Message.From.ID,
		MessageID:      update.Message.MessageID,
		Text:           update.Message.Text,
	}, true
}

func parseBotID(raw string) (int64, error) {
	var id int64
	_, err := fmt.Sscanf(raw, "%d", &id)
	if err != nil {
		return 0, err
	}
	if id <= 0 {
		return 0, fmt.Errorf("bot id must be positive")
	}
	return id, nil
}
