package blocksender

import (
	"errors"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/vkultra/mitski/internal/apperr"
	"github.com/vkultra/mitski/internal/models"
)

func permanentErr(message string) error {
	return &apperr.PermanentExternalError{Adapter: "telegram", Cause: errors.New(message)}
}

func TestIsMarkdownParseErrorMatchesEntityFailure(t *testing.T) {
	err := permanentErr("Bad Request: can't parse entities: Character '_' is reserved")
	if !isMarkdownParseError(err) {
		t.Fatalf("expected markdown parse error to match")
	}
}

func TestIsMarkdownParseErrorIgnoresOtherPermanentErrors(t *testing.T) {
	err := permanentErr("Bad Request: chat not found")
	if isMarkdownParseError(err) {
		t.Fatalf("did not expect match")
	}
}

func TestIsExpiredMediaErrorMatchesWrongFileIdentifier(t *testing.T) {
	err := permanentErr("Bad Request: wrong file identifier/HTTP URL specified")
	if !isExpiredMediaError(err) {
		t.Fatalf("expected wrong-file-identifier to match")
	}
}

func TestIsExpiredMediaErrorMatchesFileTooBig(t *testing.T) {
	err := permanentErr("Bad Request: file is too big")
	if !isExpiredMediaError(err) {
		t.Fatalf("expected file-too-big to match")
	}
}

func TestIsExpiredMediaErrorIgnoresTransientErrors(t *testing.T) {
	err := &apperr.TransientExternalError{Adapter: "telegram", Cause: errors.New("wrong file identifier")}
	if isExpiredMediaError(err) {
		t.Fatalf("transient errors must never be classified as expired-media")
	}
}

func TestIsExpiredMediaErrorIgnoresUnrelatedPermanentErrors(t *testing.T) {
	err := permanentErr("Bad Request: chat not found")
	if isExpiredMediaError(err) {
		t.Fatalf("did not expect match")
	}
}

func TestChatActionForMapsEachMediaKind(t *testing.T) {
	cases := map[models.MediaKind]string{
		models.MediaKindPhoto:     tgbotapi.ChatUploadPhoto,
		models.MediaKindVideo:     tgbotapi.ChatUploadVideo,
		models.MediaKindAnimation: tgbotapi.ChatUploadVideo,
		models.MediaKindVoice:     tgbotapi.ChatRecordVoice,
		models.MediaKindDocument:  tgbotapi.ChatUploadDocument,
	}
	for kind, want := range cases {
		if got := chatActionFor(kind); got != want {
			t.Fatalf("kind=%s: got %q, want %q", kind, got, want)
		}
	}
}

func TestResolveFileIDExtractsPhotoLargestSize(t *testing.T) {
	msg := tgbotapi.Message{Photo: []tgbotapi.PhotoSize{{FileID: "small"}, {FileID: "large"}}}
	if got := resolveFileID(msg, models.MediaKindPhoto); got != "large" {
		t.Fatalf("got %q, want %q", got, "large")
	}
}

func TestResolveFileIDReturnsEmptyWhenFieldMissing(t *testing.T) {
	if got := resolveFileID(tgbotapi.Message{}, models.MediaKindVideo); got != "" {
		t.Fatalf("got %q, want empty", got)
	}
}
