package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/vkultra/mitski/internal/adapters/llm"
	"github.com/vkultra/mitski/internal/adapters/pix"
	"github.com/vkultra/mitski/internal/adapters/telegram"
	"github.com/vkultra/mitski/internal/adapters/whisper"
	"github.com/vkultra/mitski/internal/admin"
	"github.com/vkultra/mitski/internal/blocksender"
	"github.com/vkultra/mitski/internal/breaker"
	"github.com/vkultra/mitski/internal/config"
	"github.com/vkultra/mitski/internal/conversation"
	"github.com/vkultra/mitski/internal/credit"
	"github.com/vkultra/mitski/internal/crypto"
	"github.com/vkultra/mitski/internal/database"
	"github.com/vkultra/mitski/internal/ingress"
	"github.com/vkultra/mitski/internal/kv"
	"github.com/vkultra/mitski/internal/logger"
	"github.com/vkultra/mitski/internal/metrics"
	"github.com/vkultra/mitski/internal/queue"
	"github.com/vkultra/mitski/internal/ratelimit"
	"github.com/vkultra/mitski/internal/recovery"
	"github.com/vkultra/mitski/internal/repository"
	"github.com/vkultra/mitski/internal/sales"
	"github.com/vkultra/mitski/internal/scheduler"
	"github.com/vkultra/mitski/internal/start"
	"github.com/vkultra/mitski/internal/storage"
	"github.com/vkultra/mitski/internal/upsells"
)

// runtimeQueues lists every queue the task pool services; order doesn't
// matter, each gets its own worker goroutines per internal/queue's
// DefaultConcurrency table.
var runtimeQueues = []string{
	queue.QueueDefault,
	queue.QueueAI,
	queue.QueueAudio,
	queue.QueueMedia,
	queue.QueueRecovery,
	queue.QueueNotifications,
	queue.QueueScheduler,
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logr := logger.New(cfg.LogLevel)

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("database connect: %v", err)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := database.Migrate(ctx, db); err != nil {
		log.Fatalf("database migrate: %v", err)
	}

	store, err := kv.New(kv.Config{URL: cfg.RedisURL, MaxConnections: cfg.RedisMaxConnections})
	if err != nil {
		log.Fatalf("kv connect: %v", err)
	}
	defer store.Close()

	box, err := crypto.New(cfg.EncryptionKey)
	if err != nil {
		log.Fatalf("crypto: %v", err)
	}

	limiter := ratelimit.New(store)
	queueClient := queue.NewClient(store)
	runtime := queue.NewRuntime(store, logr)
	reg := metrics.NewRegistry()

	// Repositories.
	users := repository.NewUserRepository(db)
	bots := repository.NewBotRepository(db)
	sessions := repository.NewSessionRepository(db)
	phases := repository.NewPhaseRepository(db)
	offersRepo := repository.NewOfferRepository(db)
	actionsRepo := repository.NewActionRepository(db)
	upsellsRepo := repository.NewUpsellRepository(db)
	upsellDeliveries := repository.NewUpsellDeliveryRepository(db)
	pixRepo := repository.NewPixRepository(db)
	trackers := repository.NewTrackerRepository(db)
	recoveryRepo := repository.NewRecoveryRepository(db)
	blocks := repository.NewBlockRepository(db)
	mediaCache := repository.NewMediaCacheRepository(db)
	creditRepo := repository.NewCreditRepository(db)
	saleNotifications := repository.NewSaleNotificationRepository(db)
	startTemplates := repository.NewStartTemplateRepository(db)

	// External adapters, each behind its own circuit breaker.
	httpClient := &http.Client{Timeout: 30 * time.Second}

	llmBreaker := breaker.New("llm", cfg.CircuitBreakerFailMax, cfg.CircuitBreakerTimeout)
	llmClient := llm.New(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMModel, cfg.LLMTimeout, llmBreaker, logr)

	whisperBreaker := breaker.New("whisper", cfg.CircuitBreakerFailMax, cfg.CircuitBreakerTimeout)
	whisperClient := whisper.New(cfg.WhisperAPIBase, cfg.WhisperAPIKey, cfg.WhisperModel, cfg.WhisperTimeout, whisperBreaker)
	_ = whisperClient // constructed but unused: no task handler calls Transcribe, and the health check does not consult its breaker.

	pixBreaker := breaker.New("pix", cfg.CircuitBreakerFailMax, cfg.CircuitBreakerTimeout)
	pixClient := pix.New(cfg.PixGatewayBaseURL, cfg.PushInRecarga, cfg.PixGatewayTimeout, pixBreaker)

	managerBreaker := breaker.New("telegram-manager", cfg.CircuitBreakerFailMax, cfg.CircuitBreakerTimeout)
	managerClient, err := telegram.New(cfg.ManagerBotToken, httpClient, 30*time.Second, managerBreaker)
	if err != nil {
		log.Fatalf("manager telegram client: %v", err)
	}

	uploader, err := storage.NewUploader(storage.Config{
		Endpoint:      cfg.S3Endpoint,
		Region:        cfg.S3Region,
		AccessKey:     cfg.S3AccessKey,
		SecretKey:     cfg.S3SecretKey,
		Bucket:        cfg.S3Bucket,
		PublicBaseURL: cfg.S3PublicBaseURL,
		UsePathStyle:  cfg.S3UsePathStyle,
		Prefix:        cfg.S3Prefix,
	})
	if err != nil {
		log.Fatalf("storage uploader: %v", err)
	}

	resolver := blocksender.NewClientResolver(bots, box, httpClient, 30*time.Second, cfg.CircuitBreakerFailMax, cfg.CircuitBreakerTimeout)
	sender := blocksender.NewSender(resolver, mediaCache, uploader, queueClient, nil)

	ledger := credit.NewLedger(creditRepo, credit.Pricing{
		TextInputPerMTokUSD:    cfg.PriceTextInputPerMTokUSD,
		TextOutputPerMTokUSD:   cfg.PriceTextOutputPerMTokUSD,
		TextCachedPerMTokUSD:   cfg.PriceTextCachedPerMTokUSD,
		WhisperPerMinuteUSD:    cfg.WhisperCostPerMinuteUSD,
		USDToBRLRate:           cfg.USDToBRLRate,
		EstimatedCharsPerToken: cfg.EstimatedCharsPerToken,
	}, cfg.IsUnlimitedAdmin)

	starter := start.NewSender(startTemplates, blocks, sender)
	activator := upsells.NewActivator(upsellsRepo, upsellDeliveries, blocks, sender)
	watchdog := recovery.NewWatchdog(sessions, recoveryRepo, pixRepo, blocks, sender)

	engine := conversation.NewEngine(conversation.Deps{
		Log:       logr,
		Cfg:       cfg,
		Users:     users,
		Bots:      bots,
		Sessions:  sessions,
		Phases:    phases,
		Offers:    offersRepo,
		Actions:   actionsRepo,
		Upsells:   upsellsRepo,
		Pix:       pixRepo,
		Trackers:  trackers,
		Recovery:  recoveryRepo,
		Blocks:    blocks,
		Limiter:   limiter,
		Ledger:    ledger,
		LLM:       llmClient,
		PixClient: pixClient,
		Queue:     queueClient,
		Sender:    sender,
		Starter:   starter,
		Spam:      nil,
	})

	fanout := sales.NewFanout(store, pixRepo, bots, blocks, saleNotifications, trackers, activator, sender, queueClient)
	poller := sales.NewPoller(pixRepo, pixClient, fanout, queueClient)
	notifier := sales.NewNotifier(pixRepo, saleNotifications, managerClient)

	conversation.RegisterHandlers(runtime, engine)
	scheduler.RegisterHandlers(runtime, watchdog, sender)
	sales.RegisterHandlers(runtime, poller, notifier)

	sweeper := scheduler.NewSweeper(recoveryRepo, upsellDeliveries, watchdog, activator, 5*time.Second, 100, logr)
	go sweeper.Run(ctx)
	go runtime.Run(ctx, runtimeQueues)

	ingressServer := ingress.NewServer(
		cfg.IngressListenAddr,
		logr,
		bots,
		store,
		queueClient,
		reg,
		pingHealthChecker{db: db, store: store},
		cfg.TelegramWebhookSecret,
	)
	go func() {
		if err := ingressServer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logr.Error("ingress server stopped", "err", err)
		}
	}()

	adminServer := admin.NewServer(cfg.AdminListenAddr, cfg.AdminUsername, cfg.AdminPassword, logr, bots, offersRepo, trackers, ledger, box)
	if err := adminServer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logr.Error("admin server stopped", "err", err)
	}
}

// pingHealthChecker is the concrete ingress.HealthChecker: both the SQL
// pool and the Redis connection must answer before the process reports
// healthy (spec §9: "never output-parsing").
type pingHealthChecker struct {
	db    interface{ PingContext(context.Context) error }
	store *kv.Store
}

func (h pingHealthChecker) Ping(ctx context.Context) error {
	if err := h.db.PingContext(ctx); err != nil {
		return err
	}
	return h.store.Ping(ctx)
}
