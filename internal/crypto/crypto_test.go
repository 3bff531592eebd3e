package crypto

import (
	"strings"
	"testing"
	"time"
)

func testKey() []byte {
	return []byte("01234567890123456789012345678901")
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	box, err := New(testKey())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	blob, err := box.Encrypt("super-secret-token")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	got, err := box.Decrypt(blob)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if got != "super-secret-token" {
		t.Fatalf("got %q, want %q", got, "super-secret-token")
	}
}

func TestNewRejectsWrongKeyLength(t *testing.T) {
	if _, err := New([]byte("too-short")); err == nil {
		t.Fatal("expected an error for a non-32-byte key")
	}
}

func TestDecryptRejectsTamperedCiphertext(t *testing.T) {
	box, err := New(testKey())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	blob, err := box.Encrypt("hello")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	blob[len(blob)-1] ^= 0xFF
	if _, err := box.Decrypt(blob); err == nil {
		t.Fatal("expected an error for tampered ciphertext")
	}
}

func TestSignVerifyRoundTrip(t *testing.T) {
	box, err := New(testKey())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	token, err := box.Sign(CallbackPayload{Action: "approve", AdminID: 7, Nonce: "n1"}, now)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	payload, err := box.Verify(token, time.Minute, now.Add(30*time.Second))
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if payload.Action != "approve" || payload.AdminID != 7 {
		t.Fatalf("got %+v", payload)
	}
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	box, err := New(testKey())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	token, err := box.Sign(CallbackPayload{Action: "approve", AdminID: 7, Nonce: "n1"}, now)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if _, err := box.Verify(token, time.Minute, now.Add(2*time.Minute)); err == nil {
		t.Fatal("expected an error for an expired token")
	}
}

func TestVerifyRejectsTamperedMAC(t *testing.T) {
	box, err := New(testKey())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	token, err := box.Sign(CallbackPayload{Action: "approve", AdminID: 7, Nonce: "n1"}, now)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if _, err := box.Verify(strings.TrimSuffix(token, token[len(token)-2:])+"zz", time.Minute, now); err == nil {
		t.Fatal("expected an error for a tampered mac")
	}
}

func TestGenerateSecretProducesURLSafeOutput(t *testing.T) {
	secret, err := GenerateSecret(16)
	if err != nil {
		t.Fatalf("GenerateSecret: %v", err)
	}
	if strings.ContainsAny(secret, "+/=") {
		t.Fatalf("secret contains non-URL-safe characters: %q", secret)
	}
	if len(secret) == 0 {
		t.Fatal("expected a non-empty secret")
	}
}
