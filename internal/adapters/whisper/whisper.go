// Package whisper implements the multipart audio-transcription client of
// spec §6, following the same request/classify/breaker shape as
// internal/adapters/llm, since Whisper's transcription endpoint is the
// only multipart upload the system makes.
package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/vkultra/mitski/internal/apperr"
	"github.com/vkultra/mitski/internal/breaker"
)

// Transcription is the decoded transcript plus the audio's duration, used
// by the credit ledger to price the request per minute.
type Transcription struct {
	Text            string
	DurationSeconds float64
}

// Client calls an OpenAI-compatible audio transcription endpoint.
type Client struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
	breaker    *breaker.Breaker
}

// New builds a Client against baseURL using apiKey and model.
func New(baseURL, apiKey, model string, timeout time.Duration, br *breaker.Breaker) *Client {
	return &Client{
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		httpClient: &http.Client{Timeout: timeout},
		breaker:    br,
	}
}

// Transcribe uploads audio (already transcoded to a Whisper-supported
// format, e.g. by ffmpeg) and returns the transcript.
func (c *Client) Transcribe(ctx context.Context, filename string, audio []byte) (*Transcription, error) {
	var out *Transcription
	err := c.breaker.Run(ctx, func(ctx context.Context) error {
		t, err := c.transcribe(ctx, filename, audio)
		if err != nil {
			return err
		}
		out = t
		return nil
	})
	return out, err
}

func (c *Client) transcribe(ctx context.Context, filename string, audio []byte) (*Transcription, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	if err := writer.WriteField("model", c.model); err != nil {
		return nil, fmt.Errorf("whisper: write model field: %w", err)
	}
	if err := writer.WriteField("response_format", "verbose_json"); err != nil {
		return nil, fmt.Errorf("whisper: write response_format field: %w", err)
	}
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("whisper: create form file: %w", err)
	}
	if _, err := part.Write(audio); err != nil {
		return nil, fmt.Errorf("whisper: write audio bytes: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("whisper: close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/audio/transcriptions", &buf)
	if err != nil {
		return nil, fmt.Errorf("whisper: new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &apperr.TransientExternalError{Adapter: "whisper", Cause: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &apperr.TransientExternalError{Adapter: "whisper", Cause: err}
	}

	if resp.StatusCode >= 300 {
		if resp.StatusCode == http.StatusTooManyRequests {
			return nil, &apperr.RateLimitedError{RetryAfter: 5 * time.Second}
		}
		if resp.StatusCode >= 500 {
			return nil, &apperr.TransientExternalError{Adapter: "whisper", Cause: fmt.Errorf("status %d: %s", resp.StatusCode, string(raw))}
		}
		return nil, &apperr.PermanentExternalError{Adapter: "whisper", Cause: fmt.Errorf("status %d: %s", resp.StatusCode, string(raw))}
	}

	var parsed struct {
		Text     string  `json:"text"`
		Duration float64 `json:"duration"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, &apperr.PermanentExternalError{Adapter: "whisper", Cause: fmt.Errorf("decode response: %w", err)}
	}

	return &Transcription{Text: parsed.Text, DurationSeconds: parsed.Duration}, nil
}
