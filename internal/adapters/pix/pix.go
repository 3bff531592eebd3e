// Package pix implements the PIX payment-gateway client of spec §6:
// create a charge, poll its status, and verify an inbound webhook
// signature. Grounded on the teacher's YooKassa HTTP flow in
// internal/service/payment_service.go, generalized from a hard-coded
// provider call into a reusable breaker-wrapped client.
package pix

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/vkultra/mitski/internal/apperr"
	"github.com/vkultra/mitski/internal/breaker"
)

// Charge is a created PIX transaction.
type Charge struct {
	ExternalID   string
	QRCode       string
	QRCodeBase64 string
	AmountCents  int64
	Status       string
}

// Client calls a PushinPay-shaped PIX gateway.
type Client struct {
	token      string
	baseURL    string
	httpClient *http.Client
	breaker    *breaker.Breaker
}

// New builds a Client against baseURL, authenticating with token.
func New(baseURL, token string, timeout time.Duration, br *breaker.Breaker) *Client {
	return &Client{
		token:      token,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		breaker:    br,
	}
}

// CreateCharge creates a PIX charge for amountCents, tagging it with an
// idempotency key derived from the caller's (bot,user,offer) context.
func (c *Client) CreateCharge(ctx context.Context, amountCents int64, idempotencyKey string, metadata map[string]string) (*Charge, error) {
	var out *Charge
	err := c.breaker.Run(ctx, func(ctx context.Context) error {
		ch, err := c.createCharge(ctx, amountCents, idempotencyKey, metadata)
		if err != nil {
			return err
		}
		out = ch
		return nil
	})
	return out, err
}

func (c *Client) createCharge(ctx context.Context, amountCents int64, idempotencyKey string, metadata map[string]string) (*Charge, error) {
	body, err := json.Marshal(map[string]any{
		"value":            amountCents,
		"idempotency_key":  idempotencyKey,
		"metadata":         metadata,
	})
	if err != nil {
		return nil, fmt.Errorf("pix: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/pix/cashIn", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("pix: new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &apperr.TransientExternalError{Adapter: "pix", Cause: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &apperr.TransientExternalError{Adapter: "pix", Cause: err}
	}
	if err := statusError(resp.StatusCode, raw); err != nil {
		return nil, err
	}

	var parsed struct {
		ID           string `json:"id"`
		QRCode       string `json:"qr_code"`
		QRCodeBase64 string `json:"qr_code_base64"`
		Value        int64  `json:"value"`
		Status       string `json:"status"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, &apperr.PermanentExternalError{Adapter: "pix", Cause: fmt.Errorf("decode response: %w", err)}
	}

	return &Charge{
		ExternalID:   parsed.ID,
		QRCode:       parsed.QRCode,
		QRCodeBase64: parsed.QRCodeBase64,
		AmountCents:  parsed.Value,
		Status:       parsed.Status,
	}, nil
}

// GetStatus polls a charge's current status.
func (c *Client) GetStatus(ctx context.Context, externalID string) (string, error) {
	var status string
	err := c.breaker.Run(ctx, func(ctx context.Context) error {
		s, err := c.getStatus(ctx, externalID)
		if err != nil {
			return err
		}
		status = s
		return nil
	})
	return status, err
}

func (c *Client) getStatus(ctx context.Context, externalID string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/transactions/"+externalID, nil)
	if err != nil {
		return "", fmt.Errorf("pix: new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &apperr.TransientExternalError{Adapter: "pix", Cause: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &apperr.TransientExternalError{Adapter: "pix", Cause: err}
	}
	if err := statusError(resp.StatusCode, raw); err != nil {
		return "", err
	}

	var parsed struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", &apperr.PermanentExternalError{Adapter: "pix", Cause: fmt.Errorf("decode response: %w", err)}
	}
	return parsed.Status, nil
}

// VerifyWebhookSignature checks an inbound webhook's HMAC-SHA256
// signature (hex-encoded) against body using token as the key, in
// constant time.
func VerifyWebhookSignature(token string, body []byte, signatureHex string) bool {
	mac := hmac.New(sha256.New, []byte(token))
	mac.Write(body)
	expected := mac.Sum(nil)

	got, err := hex.DecodeString(signatureHex)
	if err != nil {
		return false
	}
	return hmac.Equal(expected, got)
}

func statusError(status int, body []byte) error {
	if status < 300 {
		return nil
	}
	if status == http.StatusTooManyRequests {
		return &apperr.RateLimitedError{RetryAfter: 5 * time.Second}
	}
	if status >= 500 {
		return &apperr.TransientExternalError{Adapter: "pix", Cause: fmt.Errorf("status %d: %s", status, string(body))}
	}
	return &apperr.PermanentExternalError{Adapter: "pix", Cause: fmt.Errorf("status %d: %s", status, string(body))}
}
