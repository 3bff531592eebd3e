package config

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the ingress, task runtime,
// conversation engine, and every external adapter.
type Config struct {
	AppEnv string

	ManagerBotToken      string
	TelegramWebhookSecret string
	WebhookBaseURL       string

	DBURL         string
	DBPoolSize    int
	DBMaxOverflow int

	RedisURL            string
	RedisMaxConnections int

	EncryptionKey []byte // 32 bytes, decoded from base64

	AllowedAdminIDs []int64

	RateLimits map[string]RateLimitRule

	CircuitBreakerFailMax int
	CircuitBreakerTimeout time.Duration

	WhisperAPIKey    string
	WhisperAPIBase   string
	WhisperModel     string
	WhisperTimeout   time.Duration
	AudioMaxDuration time.Duration
	AudioMaxSizeMB   int
	FFmpegBinary     string

	LLMBaseURL   string
	LLMAPIKey    string
	LLMModel     string
	LLMTimeout   time.Duration

	PriceTextInputPerMTokUSD  float64
	PriceTextOutputPerMTokUSD float64
	PriceTextCachedPerMTokUSD float64
	WhisperCostPerMinuteUSD   float64
	USDToBRLRate              float64
	EstimatedCharsPerToken    float64

	PixGatewayBaseURL string
	PixGatewayTimeout time.Duration
	PushInRecarga     string

	EnableSaleNotifications bool
	SaleLockTTL             time.Duration

	AdminListenAddr   string
	AdminUsername     string
	AdminPassword     string
	IngressListenAddr string

	S3Endpoint      string
	S3Region        string
	S3AccessKey     string
	S3SecretKey     string
	S3Bucket        string
	S3PublicBaseURL string
	S3UsePathStyle  bool
	S3Prefix        string

	LogLevel  string
	SentryDSN string

	// FeatureFlagFirstPaidStrict is loaded from FEATURE_FIRST_PAID_STRICT
	// but no code reads it: upsell activation always treats a sale as
	// "first paid" when (bot,user) has no prior transaction with
	// status=delivered, whatever the flag's value.
	FeatureFlagFirstPaidStrict bool
}

// RateLimitRule is one entry of RATE_LIMITS_JSON.
type RateLimitRule struct {
	Limit  int `json:"limit"`
	Window int `json:"window_s"`
}

// Load reads configuration from environment variables, applying sane
// defaults, mirroring the teacher's env-first Load() shape.
func Load() (Config, error) {
	loadEnvFile()

	cfg := Config{
		AppEnv:                getEnv("APP_ENV", "dev"),
		ManagerBotToken:       os.Getenv("MANAGER_BOT_TOKEN"),
		TelegramWebhookSecret: os.Getenv("TELEGRAM_WEBHOOK_SECRET"),
		WebhookBaseURL:        os.Getenv("WEBHOOK_BASE_URL"),

		DBURL:         os.Getenv("DB_URL"),
		DBPoolSize:    getInt("DB_POOL_SIZE", 10),
		DBMaxOverflow: getInt("DB_MAX_OVERFLOW", 5),

		RedisURL:            getEnv("REDIS_URL", "redis://localhost:6379/0"),
		RedisMaxConnections: getInt("REDIS_MAX_CONNECTIONS", 100),

		CircuitBreakerFailMax: getInt("CIRCUIT_BREAKER_FAIL_MAX", 5),
		CircuitBreakerTimeout: time.Duration(getInt("CIRCUIT_BREAKER_TIMEOUT", 30)) * time.Second,

		WhisperAPIKey:    os.Getenv("WHISPER_API_KEY"),
		WhisperAPIBase:   getEnv("WHISPER_API_BASE", "https://api.openai.com/v1"),
		WhisperModel:     getEnv("WHISPER_MODEL", "whisper-1"),
		WhisperTimeout:   time.Duration(getInt("WHISPER_TIMEOUT", 60)) * time.Second,
		AudioMaxDuration: time.Duration(getInt("AUDIO_MAX_DURATION", 600)) * time.Second,
		AudioMaxSizeMB:   getInt("AUDIO_MAX_SIZE_MB", 20),
		FFmpegBinary:     getEnv("FFMPEG_BINARY", "ffmpeg"),

		LLMBaseURL: getEnv("LLM_BASE_URL", "https://api.openai.com/v1"),
		LLMAPIKey:  os.Getenv("LLM_API_KEY"),
		LLMModel:   getEnv("LLM_MODEL", "gpt-4o-mini"),
		LLMTimeout: 60 * time.Second,

		PriceTextInputPerMTokUSD:  getFloat("PRICE_TEXT_INPUT_PER_MTOK_USD", 0.15),
		PriceTextOutputPerMTokUSD: getFloat("PRICE_TEXT_OUTPUT_PER_MTOK_USD", 0.60),
		PriceTextCachedPerMTokUSD: getFloat("PRICE_TEXT_CACHED_PER_MTOK_USD", 0.075),
		WhisperCostPerMinuteUSD:   getFloat("WHISPER_COST_PER_MINUTE_USD", 0.006),
		USDToBRLRate:              getFloat("USD_TO_BRL_RATE", 5.5),
		EstimatedCharsPerToken:    getFloat("ESTIMATED_CHARS_PER_TOKEN", 4),

		PixGatewayBaseURL: getEnv("PIX_GATEWAY_BASE_URL", "https://api.pushinpay.com.br"),
		PixGatewayTimeout: 10 * time.Second,
		PushInRecarga:     os.Getenv("PUSHINRECARGA"),

		EnableSaleNotifications: getBool("ENABLE_SALE_NOTIFICATIONS", true),
		SaleLockTTL:             30 * time.Second,

		AdminListenAddr:   getEnv("ADMIN_LISTEN_ADDR", ":8080"),
		AdminUsername:     os.Getenv("ADMIN_USERNAME"),
		AdminPassword:     os.Getenv("ADMIN_PASSWORD"),
		IngressListenAddr: getEnv("INGRESS_LISTEN_ADDR", ":8081"),

		S3Endpoint:      getEnv("S3_ENDPOINT", ""),
		S3Region:        os.Getenv("S3_REGION"),
		S3AccessKey:     os.Getenv("S3_ACCESS_KEY"),
		S3SecretKey:     os.Getenv("S3_SECRET_KEY"),
		S3Bucket:        os.Getenv("S3_BUCKET"),
		S3PublicBaseURL: os.Getenv("S3_PUBLIC_BASE_URL"),
		S3UsePathStyle:  getBool("S3_USE_PATH_STYLE", false),
		S3Prefix:        getEnv("S3_PREFIX", "media-cache"),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		SentryDSN: os.Getenv("SENTRY_DSN"),

		FeatureFlagFirstPaidStrict: getBool("FEATURE_FIRST_PAID_STRICT", false),
	}

	key, err := decodeEncryptionKey(os.Getenv("ENCRYPTION_KEY"))
	if err != nil {
		return Config{}, fmt.Errorf("ENCRYPTION_KEY: %w", err)
	}
	cfg.EncryptionKey = key

	cfg.AllowedAdminIDs = parseAdminIDs(os.Getenv("ALLOWED_ADMIN_IDS"))

	limits, err := parseRateLimits(os.Getenv("RATE_LIMITS_JSON"))
	if err != nil {
		return Config{}, fmt.Errorf("RATE_LIMITS_JSON: %w", err)
	}
	cfg.RateLimits = limits

	var missing []string
	if cfg.ManagerBotToken == "" {
		missing = append(missing, "MANAGER_BOT_TOKEN")
	}
	if cfg.TelegramWebhookSecret == "" {
		missing = append(missing, "TELEGRAM_WEBHOOK_SECRET")
	}
	if cfg.DBURL == "" {
		missing = append(missing, "DB_URL")
	}
	if len(cfg.EncryptionKey) == 0 {
		missing = append(missing, "ENCRYPTION_KEY")
	}
	if len(missing) > 0 {
		return Config{}, fmt.Errorf("missing required environment variables: %v", missing)
	}

	return cfg, nil
}

// IsUnlimitedAdmin reports whether adminID is exempt from credit checks.
func (c Config) IsUnlimitedAdmin(adminID int64) bool {
	for _, id := range c.AllowedAdminIDs {
		if id == adminID {
			return true
		}
	}
	return false
}

// RateLimitFor returns the configured limit/window for action, falling
// back to the "default" entry.
func (c Config) RateLimitFor(action string) RateLimitRule {
	if r, ok := c.RateLimits[action]; ok {
		return r
	}
	if r, ok := c.RateLimits["default"]; ok {
		return r
	}
	return RateLimitRule{Limit: 30, Window: 60}
}

func decodeEncryptionKey(raw string) ([]byte, error) {
	if raw == "" {
		return nil, nil
	}
	key, err := decodeBase64Loose(raw)
	if err != nil {
		return nil, fmt.Errorf("decode base64: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("must decode to 32 bytes, got %d", len(key))
	}
	return key, nil
}

// decodeBase64Loose accepts standard or URL-safe base64, padded or not.
func decodeBase64Loose(raw string) ([]byte, error) {
	encodings := []*base64.Encoding{base64.StdEncoding, base64.URLEncoding, base64.RawStdEncoding, base64.RawURLEncoding}
	var lastErr error
	for _, enc := range encodings {
		if b, err := enc.DecodeString(raw); err == nil {
			return b, nil
		} else {
			lastErr = err
		}
	}
	return nil, lastErr
}

func parseAdminIDs(raw string) []int64 {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	var ids []int64
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

func parseRateLimits(raw string) (map[string]RateLimitRule, error) {
	if strings.TrimSpace(raw) == "" {
		return map[string]RateLimitRule{"default": {Limit: 30, Window: 60}}, nil
	}
	var limits map[string]RateLimitRule
	if err := json.Unmarshal([]byte(raw), &limits); err != nil {
		return nil, err
	}
	if _, ok := limits["default"]; !ok {
		limits["default"] = RateLimitRule{Limit: 30, Window: 60}
	}
	return limits, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return i
}

func getFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func getBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

// loadEnvFile optionally overlays a .env file onto the process environment.
// Unlike a strict deployment, a missing file is not an error: production
// environments set real env vars directly.
func loadEnvFile() {
	candidates := []string{".env"}
	if custom, ok := os.LookupEnv("CONFIG_ENV_PATH"); ok && custom != "" {
		candidates = append([]string{custom}, candidates...)
	}
	for _, path := range candidates {
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			_ = godotenv.Overload(path)
			return
		}
	}
}
