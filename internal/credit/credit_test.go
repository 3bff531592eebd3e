package credit

import "testing"

func testPricing() Pricing {
	return Pricing{
		TextInputPerMTokUSD:    0.15,
		TextOutputPerMTokUSD:   0.60,
		TextCachedPerMTokUSD:   0.075,
		WhisperPerMinuteUSD:    0.006,
		USDToBRLRate:           5.0,
		EstimatedCharsPerToken: 4,
	}
}

func TestEstimateTextCostCentsRoundsUp(t *testing.T) {
	l := &Ledger{pricing: testPricing()}
	got := l.EstimateTextCostCents(4, 100)
	if got <= 0 {
		t.Fatalf("expected positive estimate, got %d", got)
	}
}

func TestTextCostCentsMatchesFormula(t *testing.T) {
	l := &Ledger{pricing: testPricing()}
	u := TextUsage{PromptTokens: 1_000_000, CompletionTokens: 1_000_000, CachedTokens: 1_000_000}
	got := l.TextCostCents(u)
	wantUSD := 0.15 + 0.60 + 0.075
	wantCents := int64(wantUSD * 5.0 * 100)
	if got < wantCents {
		t.Fatalf("got %d cents, want at least %d", got, wantCents)
	}
}

func TestPreCheckBypassesUnlimitedAdmins(t *testing.T) {
	l := &Ledger{pricing: testPricing(), isUnlimited: func(int64) bool { return true }}
	if err := l.PreCheck(nil, 1, 999_999); err != nil {
		t.Fatalf("unlimited admin should bypass pre-check, got %v", err)
	}
}

func TestUsdToCentsRoundsUpAndGuardsZeroRate(t *testing.T) {
	if got := usdToCents(0.001, 5.0); got != 1 {
		t.Fatalf("got %d, want 1 (rounded up)", got)
	}
	if got := usdToCents(1.0, 0); got != 100 {
		t.Fatalf("zero rate should default to 1:1, got %d", got)
	}
}
