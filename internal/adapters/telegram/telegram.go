// Package telegram adapts github.com/go-telegram-bot-api/telegram-bot-api/v5
// into the outbound client shape spec §6 requires: per-bot token, a
// request timeout, and a circuit breaker wrapping every call, grounded on
// the teacher's *tgbotapi.BotAPI usage in internal/telegram/bot.go.
package telegram

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/vkultra/mitski/internal/apperr"
	"github.com/vkultra/mitski/internal/breaker"
)

// Client wraps one bot's *tgbotapi.BotAPI with breaker-guarded sends.
type Client struct {
	api        *tgbotapi.BotAPI
	breaker    *breaker.Breaker
	timeout    time.Duration
	httpClient *http.Client
}

// New builds a Client for token, dialing through httpClient if non-nil.
func New(token string, httpClient *http.Client, timeout time.Duration, br *breaker.Breaker) (*Client, error) {
	var api *tgbotapi.BotAPI
	var err error
	if httpClient != nil {
		api, err = tgbotapi.NewBotAPIWithClient(token, tgbotapi.APIEndpoint, httpClient)
	} else {
		api, err = tgbotapi.NewBotAPI(token)
		httpClient = http.DefaultClient
	}
	if err != nil {
		return nil, fmt.Errorf("telegram: new bot api: %w", err)
	}
	return &Client{api: api, breaker: br, timeout: timeout, httpClient: httpClient}, nil
}

// SetWebhook registers the bot's webhook URL with Telegram, including the
// per-bot secret token header Telegram echoes back on every update.
func (c *Client) SetWebhook(ctx context.Context, url, secretToken string) error {
	return c.run(ctx, func() error {
		cfg, err := tgbotapi.NewWebhook(url)
		if err != nil {
			return &apperr.PermanentExternalError{Adapter: "telegram", Cause: err}
		}
		params := tgbotapi.Params{"url": cfg.URL.String()}
		params.AddNonEmpty("secret_token", secretToken)
		_, err = c.api.MakeRequest("setWebhook", params)
		return classify(err)
	})
}

// GetMe validates the token and returns the bot's Telegram identity.
func (c *Client) GetMe(ctx context.Context) (tgbotapi.User, error) {
	var me tgbotapi.User
	err := c.run(ctx, func() error {
		u, err := c.api.GetMe()
		if err != nil {
			return classify(err)
		}
		me = u
		return nil
	})
	return me, err
}

// SendMessage sends text, returning the sent message for id capture
// (needed by auto-delete scheduling and edit-in-place flows).
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string, opts ...MessageOption) (tgbotapi.Message, error) {
	cfg := tgbotapi.NewMessage(chatID, text)
	for _, opt := range opts {
		opt(&cfg)
	}
	var sent tgbotapi.Message
	err := c.run(ctx, func() error {
		m, err := c.api.Send(cfg)
		if err != nil {
			return classify(err)
		}
		sent = m
		return nil
	})
	return sent, err
}

// MessageOption customizes an outgoing text message.
type MessageOption func(*tgbotapi.MessageConfig)

// WithParseMode sets the message's markdown/HTML parse mode.
func WithParseMode(mode string) MessageOption {
	return func(c *tgbotapi.MessageConfig) { c.ParseMode = mode }
}

// WithReplyMarkup attaches an inline keyboard.
func WithReplyMarkup(markup tgbotapi.InlineKeyboardMarkup) MessageOption {
	return func(c *tgbotapi.MessageConfig) { c.ReplyMarkup = markup }
}

// SendPhoto/SendVideo/SendVoice/SendDocument/SendAnimation each accept a
// media identifier (file_id, URL, or raw bytes via tgbotapi.FileBytes) and
// an optional caption, covering the block sender's per-kind delivery.

// SendPhoto sends a photo block.
func (c *Client) SendPhoto(ctx context.Context, chatID int64, file tgbotapi.RequestFileData, caption string) (tgbotapi.Message, error) {
	cfg := tgbotapi.NewPhoto(chatID, file)
	cfg.Caption = caption
	return c.sendFile(ctx, cfg)
}

// SendVideo sends a video block.
func (c *Client) SendVideo(ctx context.Context, chatID int64, file tgbotapi.RequestFileData, caption string) (tgbotapi.Message, error) {
	cfg := tgbotapi.NewVideo(chatID, file)
	cfg.Caption = caption
	return c.sendFile(ctx, cfg)
}

// SendVoice sends a voice-note block.
func (c *Client) SendVoice(ctx context.Context, chatID int64, file tgbotapi.RequestFileData) (tgbotapi.Message, error) {
	cfg := tgbotapi.NewVoice(chatID, file)
	return c.sendFile(ctx, cfg)
}

// SendDocument sends a document block.
func (c *Client) SendDocument(ctx context.Context, chatID int64, file tgbotapi.RequestFileData, caption string) (tgbotapi.Message, error) {
	cfg := tgbotapi.NewDocument(chatID, file)
	cfg.Caption = caption
	return c.sendFile(ctx, cfg)
}

// SendAnimation sends a GIF/animation block.
func (c *Client) SendAnimation(ctx context.Context, chatID int64, file tgbotapi.RequestFileData, caption string) (tgbotapi.Message, error) {
	cfg := tgbotapi.NewAnimation(chatID, file)
	cfg.Caption = caption
	return c.sendFile(ctx, cfg)
}

func (c *Client) sendFile(ctx context.Context, cfg tgbotapi.Chattable) (tgbotapi.Message, error) {
	var sent tgbotapi.Message
	err := c.run(ctx, func() error {
		m, err := c.api.Send(cfg)
		if err != nil {
			return classify(err)
		}
		sent = m
		return nil
	})
	return sent, err
}

// SendChatAction sends a typing/upload-voice/upload-photo indicator.
func (c *Client) SendChatAction(ctx context.Context, chatID int64, action string) error {
	return c.run(ctx, func() error {
		_, err := c.api.Request(tgbotapi.NewChatAction(chatID, action))
		return classify(err)
	})
}

// DeleteMessage deletes a previously sent message (auto-delete scheduling).
func (c *Client) DeleteMessage(ctx context.Context, chatID int64, messageID int) error {
	return c.run(ctx, func() error {
		_, err := c.api.Request(tgbotapi.NewDeleteMessage(chatID, messageID))
		return classify(err)
	})
}

// GetChat fetches chat metadata (used by tracking/attribution lookups).
func (c *Client) GetChat(ctx context.Context, chatID int64) (tgbotapi.Chat, error) {
	var chat tgbotapi.Chat
	err := c.run(ctx, func() error {
		ch, err := c.api.GetChat(tgbotapi.ChatInfoConfig{ChatConfig: tgbotapi.ChatConfig{ChatID: chatID}})
		if err != nil {
			return classify(err)
		}
		chat = ch
		return nil
	})
	return chat, err
}

// GetFile resolves a Telegram file_id to its download path, used when a
// cached media identifier has expired and must be re-resolved.
func (c *Client) GetFile(ctx context.Context, fileID string) (tgbotapi.File, error) {
	var file tgbotapi.File
	err := c.run(ctx, func() error {
		f, err := c.api.GetFile(tgbotapi.FileConfig{FileID: fileID})
		if err != nil {
			return classify(err)
		}
		file = f
		return nil
	})
	return file, err
}

// Download resolves fileID and fetches its bytes directly from Telegram's
// file CDN, for the block sender's cached-media re-upload path (spec §4.6
// step 3).
func (c *Client) Download(ctx context.Context, fileID string) ([]byte, error) {
	file, err := c.GetFile(ctx, fileID)
	if err != nil {
		return nil, err
	}
	url := file.Link(c.api.Token)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("telegram: build download request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &apperr.TransientExternalError{Adapter: "telegram", Cause: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, &apperr.TransientExternalError{Adapter: "telegram", Cause: fmt.Errorf("download file: status %d", resp.StatusCode)}
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &apperr.TransientExternalError{Adapter: "telegram", Cause: err}
	}
	return data, nil
}

// AnswerCallback acknowledges a callback query, optionally showing a toast.
func (c *Client) AnswerCallback(ctx context.Context, callbackID, text string) error {
	return c.run(ctx, func() error {
		_, err := c.api.Request(tgbotapi.NewCallback(callbackID, text))
		return classify(err)
	})
}

func (c *Client) run(ctx context.Context, fn func() error) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	if c.breaker == nil {
		return fn()
	}
	return c.breaker.Run(ctx, func(context.Context) error { return fn() })
}

// classify maps a tgbotapi error into the taxonomy of spec §7: Telegram's
// client returns *tgbotapi.Error for API-level failures (with an HTTP-ish
// ResponseParameters.RetryAfter/ErrorCode) and a plain error for transport
// failures (timeouts, connection resets), which we treat as transient.
func classify(err error) error {
	if err == nil {
		return nil
	}
	apiErr, ok := err.(*tgbotapi.Error)
	if !ok {
		return &apperr.TransientExternalError{Adapter: "telegram", Cause: err}
	}
	switch {
	case apiErr.Code == http.StatusTooManyRequests:
		retryAfter := time.Duration(apiErr.RetryAfter) * time.Second
		return &apperr.RateLimitedError{RetryAfter: retryAfter}
	case apiErr.Code >= 500:
		return &apperr.TransientExternalError{Adapter: "telegram", Cause: apiErr}
	case apiErr.Code >= 400:
		return &apperr.PermanentExternalError{Adapter: "telegram", Cause: apiErr}
	default:
		return &apperr.TransientExternalError{Adapter: "telegram", Cause: apiErr}
	}
}
