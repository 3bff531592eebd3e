// Package credit implements the pre-check/debit rules of spec §4.9: a
// conservative admission estimate before an LLM call, and post-hoc
// debit from real usage, denominated in BRL cents against the
// configured USD unit prices.
package credit

import (
	"context"
	"fmt"
	"math"

	"github.com/vkultra/mitski/internal/apperr"
	"github.com/vkultra/mitski/internal/models"
	"github.com/vkultra/mitski/internal/repository"
)

// Pricing carries the unit prices a Ledger needs, sourced from config so
// tests can supply fixed values without constructing a full config.Config.
type Pricing struct {
	TextInputPerMTokUSD  float64
	TextOutputPerMTokUSD float64
	TextCachedPerMTokUSD float64
	WhisperPerMinuteUSD  float64
	USDToBRLRate         float64
	EstimatedCharsPerToken float64
}

// Ledger wraps the credit repository with the pre-check/debit business
// rules; it never talks SQL directly.
type Ledger struct {
	repo     *repository.CreditRepository
	pricing  Pricing
	isUnlimited func(adminID int64) bool
}

func NewLedger(repo *repository.CreditRepository, pricing Pricing, isUnlimited func(adminID int64) bool) *Ledger {
	return &Ledger{repo: repo, pricing: pricing, isUnlimited: isUnlimited}
}

// EstimateTextCostCents estimates the cost of a text completion before it
// runs, given an input character count and an expected number of
// completion tokens. Estimation intentionally rounds up so the
// pre-check is conservative (spec: "estimate >= actual cost >= 99% of the
// time").
func (l *Ledger) EstimateTextCostCents(promptChars int, avgOutputTokens float64) int64 {
	charsPerToken := l.pricing.EstimatedCharsPerToken
	if charsPerToken <= 0 {
		charsPerToken = 4
	}
	estimatedInputTokens := math.Ceil(float64(promptChars) / charsPerToken)
	usd := (estimatedInputTokens/1_000_000)*l.pricing.TextInputPerMTokUSD +
		(avgOutputTokens/1_000_000)*l.pricing.TextOutputPerMTokUSD
	return usdToCents(usd, l.pricing.USDToBRLRate)
}

// PreCheck enforces the admission-control rule: unlimited admins always
// pass; everyone else must have a balance covering the estimate.
// Insufficient balance yields an InsufficientCreditsError (silent in
// secondary bots, user-visible in the manager bot per spec §7).
func (l *Ledger) PreCheck(ctx context.Context, adminID int64, estimatedCents int64) error {
	if l.isUnlimited(adminID) {
		return nil
	}
	balance, err := l.repo.Balance(ctx, adminID)
	if err != nil {
		return fmt.Errorf("credit pre-check: %w", err)
	}
	if balance < estimatedCents {
		return &apperr.InsufficientCreditsError{AdminID: adminID, EstimatedCents: estimatedCents, BalanceCents: balance}
	}
	return nil
}

// DebitText records the real cost of a completed LLM exchange: tokens_in
// x price_in + tokens_out x price_out + cached_in x price_cached.
// The repository debit fails when the balance does not cover the cost.
// For unlimited admins that failure is dropped: nothing is written to the
// ledger and nil is returned.
func (l *Ledger) DebitText(ctx context.Context, adminID int64, usage TextUsage, ref string) error {
	cost := l.TextCostCents(usage)
	if err := l.repo.Debit(ctx, adminID, cost, models.CreditCategoryText, ref); err != nil {
		if l.isUnlimited(adminID) {
			return nil
		}
		return fmt.Errorf("debit text usage: %w", err)
	}
	return nil
}

// TextUsage mirrors the token counts an LLM adapter reports back.
type TextUsage struct {
	PromptTokens     int64
	CompletionTokens int64
	CachedTokens     int64
}

func (l *Ledger) TextCostCents(u TextUsage) int64 {
	usd := (float64(u.PromptTokens)/1_000_000)*l.pricing.TextInputPerMTokUSD +
		(float64(u.CompletionTokens)/1_000_000)*l.pricing.TextOutputPerMTokUSD +
		(float64(u.CachedTokens)/1_000_000)*l.pricing.TextCachedPerMTokUSD
	return usdToCents(usd, l.pricing.USDToBRLRate)
}

// DebitAudio records the cost of a Whisper transcription, billed per
// minute rounded up (ceil(seconds/60) x price_per_minute).
func (l *Ledger) DebitAudio(ctx context.Context, adminID int64, seconds float64, ref string) error {
	minutes := math.Ceil(seconds / 60)
	usd := minutes * l.pricing.WhisperPerMinuteUSD
	cost := usdToCents(usd, l.pricing.USDToBRLRate)
	if err := l.repo.Debit(ctx, adminID, cost, models.CreditCategoryWhisper, ref); err != nil {
		if l.isUnlimited(adminID) {
			return nil
		}
		return fmt.Errorf("debit audio usage: %w", err)
	}
	return nil
}

// CreditTopup credits a wallet after a top-up PIX transaction settles.
func (l *Ledger) CreditTopup(ctx context.Context, adminID int64, amountCents int64, ref string) error {
	if err := l.repo.Credit(ctx, adminID, amountCents, models.CreditCategoryTopup, ref); err != nil {
		return fmt.Errorf("credit topup: %w", err)
	}
	return nil
}

// CreditRefund restores a debit, e.g. when a retried task double-charges
// a ledger in a way the caller chooses to reverse.
func (l *Ledger) CreditRefund(ctx context.Context, adminID int64, amountCents int64, ref string) error {
	if err := l.repo.Credit(ctx, adminID, amountCents, models.CreditCategoryRefund, ref); err != nil {
		return fmt.Errorf("credit refund: %w", err)
	}
	return nil
}

func usdToCents(usd float64, rate float64) int64 {
	if rate <= 0 {
		rate = 1
	}
	return int64(math.Ceil(usd * rate * 100))
}
