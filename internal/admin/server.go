package admin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/vkultra/mitski/internal/credit"
	"github.com/vkultra/mitski/internal/crypto"
	"github.com/vkultra/mitski/internal/models"
	"github.com/vkultra/mitski/internal/repository"
)

// Server is the manager bot's operational HTTP surface (spec §6):
// scripted admin tooling for bot, offer, and tracker management, and
// credit top-ups, protected by HTTP basic auth — generalized from the
// teacher's plans/promo-codes CRUD to this domain's entities.
type Server struct {
	addr     string
	username string
	password string
	log      *slog.Logger
	bots     *repository.BotRepository
	offers   *repository.OfferRepository
	trackers *repository.TrackerRepository
	credits  *credit.Ledger
	box      *crypto.Box
	router   *chi.Mux
}

func NewServer(
	addr, username, password string,
	log *slog.Logger,
	bots *repository.BotRepository,
	offers *repository.OfferRepository,
	trackers *repository.TrackerRepository,
	credits *credit.Ledger,
	box *crypto.Box,
) *Server {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	s := &Server{
		addr:     addr,
		username: username,
		password: password,
		log:      log,
		bots:     bots,
		offers:   offers,
		trackers: trackers,
		credits:  credits,
		box:      box,
		router:   r,
	}
	r.Group(func(protected chi.Router) {
		protected.Use(s.basicAuthMiddleware())
		protected.Route("/bots", func(r chi.Router) {
			r.Post("/", s.handleCreateBot)
			r.Put("/{id}/active", s.handleSetBotActive)
		})
		protected.Route("/offers", func(r chi.Router) {
			r.Get("/", s.handleListOffers)
			r.Post("/", s.handleCreateOffer)
			r.Put("/{id}", s.handleUpdateOffer)
			r.Delete("/{id}", s.handleDeleteOffer)
		})
		protected.Route("/trackers", func(r chi.Router) {
			r.Get("/", s.handleListTrackers)
			r.Post("/", s.handleCreateTracker)
		})
		protected.Post("/credits/{admin_id}/topup", s.handleCreditTopup)
	})
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
			s.log.Error("admin shutdown error", "err", err)
		}
	}()

	s.log.Info("admin panel listening", "addr", s.addr)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("admin listen: %w", err)
	}
	return nil
}

type createBotRequest struct {
	OwnerAdminID int64  `json:"owner_admin_id"`
	Token        string `json:"token"`
	Username     string `json:"username"`
	WebhookSecret string `json:"webhook_secret"`
}

func (s *Server) handleCreateBot(w http.ResponseWriter, r *http.Request) {
	var req createBotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if req.Token == "" || req.Username == "" {
		http.Error(w, "token and username required", http.StatusBadRequest)
		return
	}
	encrypted, err := s.box.Encrypt(req.Token)
	if err != nil {
		s.internalError(w, err)
		return
	}
	bot, err := s.bots.Create(r.Context(), &models.Bot{
		OwnerAdminID:  req.OwnerAdminID,
		EncryptedToken: encrypted,
		Username:      req.Username,
		WebhookSecret: req.WebhookSecret,
		IsActive:      true,
	})
	if err != nil {
		s.badRequest(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, bot)
}

type setActiveRequest struct {
	Active bool `json:"active"`
}

func (s *Server) handleSetBotActive(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	var req setActiveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if err := s.bots.SetActive(r.Context(), id, req.Active); err != nil {
		s.badRequest(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListOffers(w http.ResponseWriter, r *http.Request) {
	botID, err := parseID(r.URL.Query().Get("bot_id"))
	if err != nil {
		http.Error(w, "bot_id required", http.StatusBadRequest)
		return
	}
	offers, err := s.offers.ListActiveByBot(r.Context(), botID)
	if err != nil {
		s.internalError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, offers)
}

type offerRequest struct {
	BotID                     int64  `json:"bot_id"`
	Name                      string `json:"name"`
	PriceAmountCents          int64  `json:"price_amount_cents"`
	PriceCurrency             string `json:"price_currency"`
	ManualVerificationTrigger string `json:"manual_verification_trigger"`
	DiscountTrigger           string `json:"discount_trigger"`
	IsActive                  bool   `json:"is_active"`
}

func (s *Server) handleCreateOffer(w http.ResponseWriter, r *http.Request) {
	var req offerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if req.Name == "" {
		http.Error(w, "name required", http.StatusBadRequest)
		return
	}
	offer, err := s.offers.Create(r.Context(), &models.Offer{
		BotID:                     req.BotID,
		Name:                      req.Name,
		Price:                     models.Price{AmountCents: req.PriceAmountCents, Currency: req.PriceCurrency},
		ManualVerificationTrigger: req.ManualVerificationTrigger,
		DiscountTrigger:           req.DiscountTrigger,
		IsActive:                  req.IsActive,
	})
	if err != nil {
		s.badRequest(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, offer)
}

func (s *Server) handleUpdateOffer(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	var req offerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	offer := &models.Offer{
		ID:                        id,
		Name:                      req.Name,
		Price:                     models.Price{AmountCents: req.PriceAmountCents, Currency: req.PriceCurrency},
		ManualVerificationTrigger: req.ManualVerificationTrigger,
		DiscountTrigger:           req.DiscountTrigger,
		IsActive:                  req.IsActive,
	}
	if err := s.offers.Update(r.Context(), offer); err != nil {
		s.badRequest(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteOffer(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	if err := s.offers.Delete(r.Context(), id); err != nil {
		s.badRequest(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListTrackers(w http.ResponseWriter, r *http.Request) {
	botID, err := parseID(r.URL.Query().Get("bot_id"))
	if err != nil {
		http.Error(w, "bot_id required", http.StatusBadRequest)
		return
	}
	from := time.Now().UTC().AddDate(0, 0, -30)
	to := time.Now().UTC()
	stats, err := s.trackers.ListDailyStats(r.Context(), botID, from, to)
	if err != nil {
		s.internalError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, stats)
}

type trackerRequest struct {
	BotID int64  `json:"bot_id"`
	Code  string `json:"code"`
	Name  string `json:"name"`
}

func (s *Server) handleCreateTracker(w http.ResponseWriter, r *http.Request) {
	var req trackerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if req.Code == "" {
		http.Error(w, "code required", http.StatusBadRequest)
		return
	}
	tracker, err := s.trackers.Create(r.Context(), &models.Tracker{
		BotID:    req.BotID,
		Code:     req.Code,
		Name:     req.Name,
		IsActive: true,
	})
	if err != nil {
		s.badRequest(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, tracker)
}

type topupRequest struct {
	AmountCents int64  `json:"amount_cents"`
	Ref         string `json:"ref"`
}

func (s *Server) handleCreditTopup(w http.ResponseWriter, r *http.Request) {
	adminID, err := parseID(chi.URLParam(r, "admin_id"))
	if err != nil {
		http.Error(w, "invalid admin_id", http.StatusBadRequest)
		return
	}
	var req topupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if req.AmountCents <= 0 {
		http.Error(w, "amount_cents must be positive", http.StatusBadRequest)
		return
	}
	if err := s.credits.CreditTopup(r.Context(), adminID, req.AmountCents, req.Ref); err != nil {
		s.internalError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) basicAuthMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, pass, ok := r.BasicAuth()
			if !ok || user != s.username || pass != s.password {
				w.Header().Set("WWW-Authenticate", `Basic realm="mitski"`)
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) badRequest(w http.ResponseWriter, err error) {
	http.Error(w, err.Error(), http.StatusBadRequest)
}

func (s *Server) internalError(w http.ResponseWriter, err error) {
	s.log.Error("admin handler error", "err", err)
	http.Error(w, "internal error", http.StatusInternalServerError)
}

func parseID(value string) (int64, error) {
	return strconv.ParseInt(strings.TrimSpace(value), 10, 64)
}
