package conversation

import (
	"testing"

	"github.com/vkultra/mitski/internal/models"
)

func TestStartCodeExtractsDeepLinkPayload(t *testing.T) {
	code, ok := startCode("/start abc123")
	if !ok || code != "abc123" {
		t.Fatalf("got code=%q ok=%v", code, ok)
	}
}

func TestStartCodeHandlesBareStart(t *testing.T) {
	code, ok := startCode("/start")
	if !ok || code != "" {
		t.Fatalf("got code=%q ok=%v", code, ok)
	}
}

func TestStartCodeRejectsOtherCommands(t *testing.T) {
	if _, ok := startCode("/help"); ok {
		t.Fatalf("expected no match for unrelated command")
	}
}

func TestAssembleSystemPromptCombinesGeneralAndPhase(t *testing.T) {
	general := &models.Phase{ID: 1, PromptText: "general rules", IsGeneral: true}
	phase := &models.Phase{ID: 2, PromptText: "phase specific"}
	got := assembleSystemPrompt(general, phase, []string{`Action "x": ACTIVATED`})
	want := "general rules\n\nphase specific\n" + `Action "x": ACTIVATED`
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestAssembleSystemPromptSkipsDuplicateWhenPhaseIsGeneral(t *testing.T) {
	general := &models.Phase{ID: 1, PromptText: "general rules", IsGeneral: true}
	got := assembleSystemPrompt(general, general, nil)
	if got != "general rules" {
		t.Fatalf("got %q", got)
	}
}

func TestBuildMessagesOrdersSystemHistoryThenUser(t *testing.T) {
	history := []models.HistoryTurn{
		{Role: "user", Text: "oi"},
		{Role: "assistant", Text: "olá"},
	}
	messages := buildMessages("sys", history, "novamente")
	if len(messages) != 4 {
		t.Fatalf("got %d messages, want 4", len(messages))
	}
	if messages[0].Role != "system" || messages[0].Content != "sys" {
		t.Fatalf("unexpected system message: %+v", messages[0])
	}
	if messages[len(messages)-1].Role != "user" || messages[len(messages)-1].Content != "novamente" {
		t.Fatalf("unexpected trailing message: %+v", messages[len(messages)-1])
	}
}

func TestTruncateHistoryBoundsLength(t *testing.T) {
	history := make([]models.HistoryTurn, maxHistoryTurns+10)
	got := truncateHistory(history)
	if len(got) != maxHistoryTurns {
		t.Fatalf("got %d, want %d", len(got), maxHistoryTurns)
	}
}

func TestTruncateHistoryLeavesShortHistoryUntouched(t *testing.T) {
	history := []models.HistoryTurn{{Role: "user", Text: "hi"}}
	got := truncateHistory(history)
	if len(got) != 1 {
		t.Fatalf("got %d, want 1", len(got))
	}
}
