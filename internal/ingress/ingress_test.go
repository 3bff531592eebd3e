package ingress

import (
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

func TestParseBotIDRejectsNonPositive(t *testing.T) {
	if _, err := parseBotID("0"); err == nil {
		t.Fatal("expected error for bot id 0")
	}
	if _, err := parseBotID("-5"); err == nil {
		t.Fatal("expected error for negative bot id")
	}
}

func TestParseBotIDParsesValid(t *testing.T) {
	id, err := parseBotID("42")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != 42 {
		t.Fatalf("id = %d, want 42", id)
	}
}

func TestExtractMessageSkipsUpdatesWithoutMessage(t *testing.T) {
	_, ok := extractMessage(tgbotapi.Update{}, 1)
	if ok {
		t.Fatal("expected false for an update with no message")
	}
}

func TestExtractMessageBuildsIncomingMessage(t *testing.T) {
	update := tgbotapi.Update{
		Message: &tgbotapi.Message{
			MessageID: 9,
			Text:      "oi",
			Chat:      &tgbotapi.Chat{ID: 100},
			From:      &tgbotapi.User{ID: 200},
		},
	}
	msg, ok := extractMessage(update, 7)
	if !ok {
		t.Fatal("expected true for a well-formed message update")
	}
	if msg.BotID != 7 || msg.ChatID != 100 || msg.UserTelegramID != 200 || msg.MessageID != 9 || msg.Text != "oi" {
		t.Fatalf("unexpected message: %+v", msg)
	}
}
