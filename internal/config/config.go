package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Cookie（リモートAPI用クレデンシャル）
	// DouyinCookieが空でも起動は失敗させない。欠落は最初の収集時に表面化する。
	DouyinCookie string
	CookieFile   string

	// Session
	SessionMaxAge int

	// Collect
	FetchTimeout     time.Duration
	FetchPageSize    int
	CollectRetryMax  int
	CollectBackoff   time.Duration // 指数バックオフの基準単位（2^n倍される）
	ThrottleInterval time.Duration // ページ間の固定スロットル
	ReferenceVideoID string        // Cookie検証に使う既知の動画ID

	// Rate Limit（req/min単位）
	RateLimitGeneral int
	RateLimitCollect int

	// Server
	ServerPort  string
	Environment string // "production" 以外ではエラーレスポンスに診断詳細を含める

	// CORS
	CORSAllowedOrigin string
}

// IsProduction は本番環境かどうかを返す。
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
// DOUYIN_COOKIEは意図的に必須にしない。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.DouyinCookie = os.Getenv("DOUYIN_COOKIE")
	cfg.CookieFile = getEnvString("COOKIE_FILE", "douyin_cookie.txt")
	cfg.SessionMaxAge = getEnvInt("SESSION_MAX_AGE", 86400)
	cfg.FetchTimeout = getEnvDuration("FETCH_TIMEOUT", 30*time.Second)
	cfg.FetchPageSize = getEnvInt("FETCH_PAGE_SIZE", 20)
	cfg.CollectRetryMax = getEnvInt("COLLECT_RETRY_MAX", 3)
	cfg.CollectBackoff = getEnvDuration("COLLECT_BACKOFF", 1*time.Second)
	cfg.ThrottleInterval = getEnvDuration("THROTTLE_INTERVAL", 1*time.Second)
	cfg.ReferenceVideoID = getEnvString("REFERENCE_VIDEO_ID", "7346152359719996709")
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitCollect = getEnvInt("RATE_LIMIT_COLLECT", 10)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.Environment = getEnvString("APP_ENV", "production")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

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
