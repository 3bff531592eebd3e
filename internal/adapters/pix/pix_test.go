package pix

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/vkultra/mitski/internal/apperr"
	"github.com/vkultra/mitski/internal/breaker"
)

func TestCreateChargeReturnsParsedFields(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":"tx_1","qr_code":"000201...","qr_code_base64":"aGVsbG8=","value":500,"status":"created"}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "token", 5*time.Second, breaker.New("pix-test", 5, time.Minute))
	charge, err := c.CreateCharge(context.Background(), 500, "idem-1", map[string]string{"bot_id": "1"})
	if err != nil {
		t.Fatalf("CreateCharge: %v", err)
	}
	if charge.ExternalID != "tx_1" || charge.AmountCents != 500 || charge.Status != "created" {
		t.Fatalf("unexpected charge: %+v", charge)
	}
}

func TestGetStatusClassifies404AsPermanent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := New(srv.URL, "token", 5*time.Second, breaker.New("pix-test", 5, time.Minute))
	_, err := c.GetStatus(context.Background(), "missing-tx")
	if !apperr.Fatal(err) {
		t.Fatalf("expected fatal error, got %v", err)
	}
}

func TestVerifyWebhookSignatureAcceptsValidMAC(t *testing.T) {
	body := []byte(`{"id":"tx_1","status":"paid"}`)
	mac := hmac.New(sha256.New, []byte("secret-token"))
	mac.Write(body)
	sig := hex.EncodeToString(mac.Sum(nil))

	if !VerifyWebhookSignature("secret-token", body, sig) {
		t.Fatalf("expected valid signature to verify")
	}
}

func TestVerifyWebhookSignatureRejectsTamperedBody(t *testing.T) {
	body := []byte(`{"id":"tx_1","status":"paid"}`)
	mac := hmac.New(sha256.New, []byte("secret-token"))
	mac.Write(body)
	sig := hex.EncodeToString(mac.Sum(nil))

	tampered := []byte(`{"id":"tx_1","status":"refunded"}`)
	if VerifyWebhookSignature("secret-token", tampered, sig) {
		t.Fatalf("expected tampered body to fail verification")
	}
}
