// Package blocksender implements C9 of spec §4.6: ordered delivery of a
// container's blocks with per-block delay, typing indicator, media-id
// caching with re-upload on expiry, {pix} substitution, markdown-fallback
// retry, auto-delete scheduling, and delivery-row recording.
package blocksender

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/vkultra/mitski/internal/adapters/telegram"
	"github.com/vkultra/mitski/internal/breaker"
	"github.com/vkultra/mitski/internal/crypto"
	"github.com/vkultra/mitski/internal/repository"
)

// ClientResolver builds and caches one *telegram.Client per bot, decrypting
// its token on first use. A secondary bot's token never changes once
// issued, so the cache never needs invalidation, only population.
type ClientResolver struct {
	bots    *repository.BotRepository
	box     *crypto.Box
	timeout time.Duration
	failMax int
	brTO    time.Duration
	http    *http.Client

	mu      sync.Mutex
	clients map[int64]*telegram.Client
}

// NewClientResolver builds a resolver. timeout bounds each Telegram call;
// failMax/breakerTimeout configure the per-bot circuit breaker, mirroring
// the manager bot's own adapter construction.
func NewClientResolver(bots *repository.BotRepository, box *crypto.Box, httpClient *http.Client, timeout time.Duration, failMax int, breakerTimeout time.Duration) *ClientResolver {
	return &ClientResolver{
		bots:    bots,
		box:     box,
		timeout: timeout,
		failMax: failMax,
		brTO:    breakerTimeout,
		http:    httpClient,
		clients: make(map[int64]*telegram.Client),
	}
}

// Resolve returns the cached client for botID, constructing and caching it
// on first call.
func (r *ClientResolver) Resolve(ctx context.Context, botID int64) (*telegram.Client, error) {
	r.mu.Lock()
	if c, ok := r.clients[botID]; ok {
		r.mu.Unlock()
		return c, nil
	}
	r.mu.Unlock()

	bot, err := r.bots.FindByID(ctx, botID)
	if err != nil {
		return nil, fmt.Errorf("blocksender: find bot %d: %w", botID, err)
	}
	if bot == nil {
		return nil, fmt.Errorf("blocksender: bot %d not found", botID)
	}
	token, err := r.box.Decrypt(bot.EncryptedToken)
	if err != nil {
		return nil, fmt.Errorf("blocksender: decrypt token for bot %d: %w", botID, err)
	}
	br := breaker.New(fmt.Sprintf("telegram-bot-%d", botID), r.failMax, r.brTO)
	client, err := telegram.New(token, r.http, r.timeout, br)
	if err != nil {
		return nil, fmt.Errorf("blocksender: build client for bot %d: %w", botID, err)
	}

	r.mu.Lock()
	if existing, ok := r.clients[botID]; ok {
		r.mu.Unlock()
		return existing, nil
	}
	r.clients[botID] = client
	r.mu.Unlock()
	return client, nil
}
