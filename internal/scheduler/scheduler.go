// Package scheduler implements C11's periodic-sweep slice of spec §4.7:
// the inactivity watchdog's task-queue handler, the auto-delete handler,
// and the ticker-driven sweep that claims and dispatches due recovery
// and upsell deliveries.
package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/vkultra/mitski/internal/blocksender"
	"github.com/vkultra/mitski/internal/conversation"
	"github.com/vkultra/mitski/internal/queue"
	"github.com/vkultra/mitski/internal/recovery"
	"github.com/vkultra/mitski/internal/repository"
	"github.com/vkultra/mitski/internal/upsells"
)

// RegisterHandlers binds the queue task names owned by this package to
// their typed handler bodies. cmd/bot calls this once during wiring.
func RegisterHandlers(runtime *queue.Runtime, watchdog *recovery.Watchdog, sender *blocksender.Sender) {
	runtime.Register("check-inactive", func(ctx context.Context, raw json.RawMessage) error {
		var args conversation.CheckInactiveArgs
		if err := json.Unmarshal(raw, &args); err != nil {
			return fmt.Errorf("scheduler: decode check-inactive args: %w", err)
		}
		return watchdog.HandleCheckInactive(ctx, args)
	})
	runtime.Register("delete-block", func(ctx context.Context, raw json.RawMessage) error {
		var args blocksender.DeleteBlockArgs
		if err := json.Unmarshal(raw, &args); err != nil {
			return fmt.Errorf("scheduler: decode delete-block args: %w", err)
		}
		return sender.DeleteScheduled(ctx, args)
	})
}

// Sweeper periodically claims and dispatches recovery and upsell
// deliveries whose scheduled_for has elapsed.
type Sweeper struct {
	recoveryRepo *repository.RecoveryRepository
	upsellRepo   *repository.UpsellDeliveryRepository
	watchdog     *recovery.Watchdog
	activator    *upsells.Activator
	interval     time.Duration
	batchSize    int
	log          *slog.Logger
}

func NewSweeper(
	recoveryRepo *repository.RecoveryRepository,
	upsellRepo *repository.UpsellDeliveryRepository,
	watchdog *recovery.Watchdog,
	activator *upsells.Activator,
	interval time.Duration,
	batchSize int,
	log *slog.Logger,
) *Sweeper {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Sweeper{
		recoveryRepo: recoveryRepo,
		upsellRepo:   upsellRepo,
		watchdog:     watchdog,
		activator:    activator,
		interval:     interval,
		batchSize:    batchSize,
		log:          log,
	}
}

// Run ticks until ctx is cancelled, sweeping both delivery ledgers each
// tick. Each due row is dispatched independently so one bad row never
// blocks the rest of the batch.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweepRecovery(ctx)
			s.sweepUpsells(ctx)
		}
	}
}

func (s *Sweeper) sweepRecovery(ctx context.Context) {
	due, err := s.recoveryRepo.ListDueDeliveries(ctx, s.batchSize)
	if err != nil {
		s.log.Error("scheduler: list due recovery deliveries failed", "err", err)
		return
	}
	for _, d := range due {
		if err := s.watchdog.DispatchDue(ctx, d); err != nil {
			s.log.Error("scheduler: dispatch recovery delivery failed", "delivery_id", d.ID, "err", err)
		}
	}
}

func (s *Sweeper) sweepUpsells(ctx context.Context) {
	due, err := s.upsellRepo.ListDue(ctx, s.batchSize)
	if err != nil {
		s.log.Error("scheduler: list due upsell deliveries failed", "err", err)
		return
	}
	for _, d := range due {
		if err := s.activator.DispatchDue(ctx, d); err != nil {
			s.log.Error("scheduler: dispatch upsell delivery failed", "delivery_id", d.ID, "err", err)
		}
	}
}
