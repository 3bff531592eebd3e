// Package start implements C7's first-contact slice of spec §4.5 step 1:
// sending a bot's versioned start template once per user, and re-sending
// it whenever an admin edit bumps the template version past what the
// user last received.
package start

import (
	"context"
	"fmt"

	"github.com/vkultra/mitski/internal/conversation"
	"github.com/vkultra/mitski/internal/models"
	"github.com/vkultra/mitski/internal/repository"
)

// Sender implements conversation.StartSender.
type Sender struct {
	templates *repository.StartTemplateRepository
	blocks    *repository.BlockRepository
	sender    conversation.BlockSender
}

func NewSender(templates *repository.StartTemplateRepository, blocks *repository.BlockRepository, sender conversation.BlockSender) *Sender {
	return &Sender{templates: templates, blocks: blocks, sender: sender}
}

// SendIfDue sends the bot's current start template to a user unless they
// already received this version (or a later one).
func (s *Sender) SendIfDue(ctx context.Context, botID, userTelegramID int64) error {
	version, err := s.templates.Version(ctx, botID)
	if err != nil {
		return fmt.Errorf("start: load template version: %w", err)
	}
	if version == 0 {
		return nil
	}

	received, err := s.templates.HasReceived(ctx, botID, userTelegramID, version)
	if err != nil {
		return fmt.Errorf("start: check received: %w", err)
	}
	if received {
		return nil
	}

	blocks, err := s.blocks.ListByContainer(ctx, models.ContainerStartTemplate, botID)
	if err != nil {
		return fmt.Errorf("start: list blocks: %w", err)
	}
	if len(blocks) == 0 {
		return nil
	}

	dest := conversation.Destination{BotID: botID, ChatID: userTelegramID, UserTelegramID: userTelegramID}
	if err := s.sender.Send(ctx, dest, models.ContainerStartTemplate, botID, blocks, conversation.SendOptions{}); err != nil {
		return fmt.Errorf("start: send template: %w", err)
	}
	return s.templates.MarkReceived(ctx, botID, userTelegramID, version)
}
