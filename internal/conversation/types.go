package conversation

import (
	"context"

	"github.com/vkultra/mitski/internal/models"
)

// IncomingMessage is the minimal shape the ingress extracts from a
// Telegram update before handing the rest to the conversation engine.
type IncomingMessage struct {
	BotID          int64
	ChatID         int64
	UserTelegramID int64
	MessageID      int
	Text           string
	IsAdminPreview bool // true when an admin is previewing content, spec §4.10
}

// Destination identifies where the Block Sender (C9) should deliver a
// container of blocks.
type Destination struct {
	BotID          int64
	ChatID         int64
	UserTelegramID int64
}

// SendOptions configures a single Block Sender invocation.
type SendOptions struct {
	Preview bool   // spec §4.10: cache_media=false, pix->PREVIEW_PIX_CODE, no ledger effect
	PixCode string // substituted for the {pix} placeholder when present
}

// BlockSender is the narrow interface the conversation engine needs from
// C9; internal/blocksender.Sender implements it.
type BlockSender interface {
	Send(ctx context.Context, dest Destination, containerKind models.ContainerKind, containerID int64, blocks []*models.Block, opts SendOptions) error
	SendText(ctx context.Context, dest Destination, text string) error
}

// StartSender is the narrow interface the engine needs from internal/start.
type StartSender interface {
	SendIfDue(ctx context.Context, botID, userTelegramID int64) error
}
