package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// 通知バックエンドの種類。
const (
	NotifyBackendLog   = "log"
	NotifyBackendSES   = "ses"
	NotifyBackendQueue = "queue"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// OAuth
	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string

	// Session
	SessionTTL             time.Duration
	SessionExtendThreshold time.Duration
	SessionCleanupInterval time.Duration

	// Invitation
	InvitationTTL time.Duration

	// Notification
	NotifyBackend      string
	NotifyTimeout      time.Duration
	NotifyQueueMaxSize int
	AWSRegion          string
	SESFromEmail       string
	RedisURL           string

	// Rate Limit
	RateLimitGeneral int
	RateLimitInvite  int

	// Logging
	LogLevel string

	// Server
	ServerPort string
	BaseURL    string

	// Cookie
	CookieSecure bool
	CookieDomain string

	// CORS
	CORSAllowedOrigin string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合は、未設定のものをまとめてエラーとして返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.GoogleClientID = os.Getenv("GOOGLE_CLIENT_ID")
	if cfg.GoogleClientID == "" {
		missing = append(missing, "GOOGLE_CLIENT_ID")
	}

	cfg.GoogleClientSecret = os.Getenv("GOOGLE_CLIENT_SECRET")
	if cfg.GoogleClientSecret == "" {
		missing = append(missing, "GOOGLE_CLIENT_SECRET")
	}

	cfg.GoogleRedirectURL = os.Getenv("GOOGLE_REDIRECT_URL")
	if cfg.GoogleRedirectURL == "" {
		missing = append(missing, "GOOGLE_REDIRECT_URL")
	}

	cfg.BaseURL = os.Getenv("BASE_URL")
	if cfg.BaseURL == "" {
		missing = append(missing, "BASE_URL")
	}

	// 通知バックエンドごとの必須項目
	cfg.NotifyBackend = strings.ToLower(getEnvString("NOTIFY_BACKEND", NotifyBackendLog))
	cfg.AWSRegion = os.Getenv("AWS_REGION")
	cfg.SESFromEmail = os.Getenv("SES_FROM_EMAIL")
	cfg.RedisURL = os.Getenv("REDIS_URL")
	switch cfg.NotifyBackend {
	case NotifyBackendLog:
	case NotifyBackendSES, NotifyBackendQueue:
		if cfg.AWSRegion == "" {
			missing = append(missing, "AWS_REGION")
		}
		if cfg.SESFromEmail == "" {
			missing = append(missing, "SES_FROM_EMAIL")
		}
		if cfg.NotifyBackend == NotifyBackendQueue && cfg.RedisURL == "" {
			missing = append(missing, "REDIS_URL")
		}
	default:
		return nil, fmt.Errorf("unknown NOTIFY_BACKEND: %q", cfg.NotifyBackend)
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.SessionTTL = getEnvDuration("SESSION_TTL", 30*24*time.Hour)
	cfg.SessionExtendThreshold = getEnvDuration("SESSION_EXTEND_THRESHOLD", 24*time.Hour)
	cfg.SessionCleanupInterval = getEnvDuration("SESSION_CLEANUP_INTERVAL", time.Hour)
	cfg.InvitationTTL = getEnvDuration("INVITATION_TTL", 7*24*time.Hour)
	cfg.NotifyTimeout = getEnvDuration("NOTIFY_TIMEOUT", 10*time.Second)
	cfg.NotifyQueueMaxSize = getEnvInt("NOTIFY_QUEUE_MAX_SIZE", 1000)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitInvite = getEnvInt("RATE_LIMIT_INVITE", 20)
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")
	cfg.CookieDomain = getEnvString("COOKIE_DOMAIN", "")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", cfg.BaseURL)

	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
