package config

import (
	"reflect"
	"testing"
)

func TestParseAdminIDs(t *testing.T) {
	got := parseAdminIDs(" 1, 2,3 ,bogus,")
	want := []int64{1, 2, 3}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %#v, want %#v", got, want)
	}
}

func TestParseAdminIDsEmpty(t *testing.T) {
	if got := parseAdminIDs("   "); got != nil {
		t.Fatalf("expected nil for blank input, got %#v", got)
	}
}

func TestParseRateLimitsDefaultsWhenBlank(t *testing.T) {
	limits, err := parseRateLimits("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if limits["default"].Limit != 30 || limits["default"].Window != 60 {
		t.Fatalf("got %+v", limits["default"])
	}
}

func TestParseRateLimitsFillsMissingDefault(t *testing.T) {
	limits, err := parseRateLimits(`{"send_message":{"limit":5,"window_s":10}}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if limits["send_message"].Limit != 5 {
		t.Fatalf("got %+v", limits["send_message"])
	}
	if limits["default"].Limit != 30 {
		t.Fatalf("expected an injected default entry, got %+v", limits["default"])
	}
}

func TestParseRateLimitsRejectsInvalidJSON(t *testing.T) {
	if _, err := parseRateLimits("not-json"); err == nil {
		t.Fatal("expected an error for invalid json")
	}
}

func TestDecodeEncryptionKeyAcceptsStandardAndURLSafe(t *testing.T) {
	// 32 raw bytes, base64-std encoded.
	const stdKey = "MDEyMzQ1Njc4OTAxMjM0NTY3ODkwMTIzNDU2Nzg5MDE="
	key, err := decodeEncryptionKey(stdKey)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(key) != 32 {
		t.Fatalf("got %d bytes, want 32", len(key))
	}

	// 32 raw bytes, base64-URL encoded ('-' and '_' are not in the std alphabet).
	const urlKey = "-_-_-_-_-_-_-_-_-_-_-_-_-_-_-_-_-_-_-_-_-_8="
	key, err = decodeEncryptionKey(urlKey)
	if err != nil {
		t.Fatalf("unexpected error for URL-safe key: %v", err)
	}
	if len(key) != 32 {
		t.Fatalf("got %d bytes for URL-safe key, want 32", len(key))
	}
}

func TestDecodeEncryptionKeyRejectsWrongLength(t *testing.T) {
	if _, err := decodeEncryptionKey("c2hvcnQ="); err == nil {
		t.Fatal("expected an error for a key that doesn't decode to 32 bytes")
	}
}

func TestIsUnlimitedAdmin(t *testing.T) {
	cfg := Config{AllowedAdminIDs: []int64{7, 9}}
	if !cfg.IsUnlimitedAdmin(7) {
		t.Fatal("expected admin 7 to be unlimited")
	}
	if cfg.IsUnlimitedAdmin(8) {
		t.Fatal("expected admin 8 to not be unlimited")
	}
}

func TestRateLimitForFallsBackToDefault(t *testing.T) {
	cfg := Config{RateLimits: map[string]RateLimitRule{"default": {Limit: 30, Window: 60}}}
	got := cfg.RateLimitFor("unknown_action")
	if got.Limit != 30 || got.Window != 60 {
		t.Fatalf("got %+v", got)
	}
}

func TestRateLimitForUsesSpecificRule(t *testing.T) {
	cfg := Config{RateLimits: map[string]RateLimitRule{
		"default":      {Limit: 30, Window: 60},
		"send_message": {Limit: 5, Window: 10},
	}}
	got := cfg.RateLimitFor("send_message")
	if got.Limit != 5 || got.Window != 10 {
		t.Fatalf("got %+v", got)
	}
}
