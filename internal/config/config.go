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

	// Source API
	CiNiiAppID           string
	FetchTimeout         time.Duration
	CiNiiOverfetchFactor int
	ArxivOverfetchFactor int
	CiNiiAPIInterval     time.Duration

	// Translation
	GeminiAPIKey         string
	GeminiModel          string
	OpenAIAPIKey         string
	OpenAIModel          string
	OpenAIBaseURL        string
	DefaultLanguage      string
	TranslationBatchSize int
	TranslationTimeout   time.Duration

	// Dispatch
	DispatchInterval time.Duration
	FetchSpacing     time.Duration

	// Mail
	SMTPHost string
	SMTPPort string
	SMTPFrom string

	// Rate Limit
	RateLimitGeneral int

	// Server
	ServerPort string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
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
	cfg.CiNiiAppID = getEnvString("CINII_APP_ID", "")
	cfg.FetchTimeout = getEnvDuration("FETCH_TIMEOUT", 10*time.Second)
	cfg.CiNiiOverfetchFactor = getEnvInt("CINII_OVERFETCH_FACTOR", 3)
	cfg.ArxivOverfetchFactor = getEnvInt("ARXIV_OVERFETCH_FACTOR", 2)
	cfg.CiNiiAPIInterval = getEnvDuration("CINII_API_INTERVAL", 1*time.Second)

	cfg.GeminiAPIKey = getEnvString("GEMINI_API_KEY", "")
	cfg.GeminiModel = getEnvString("GEMINI_MODEL", "gemini-2.0-flash")
	cfg.OpenAIAPIKey = getEnvString("OPENAI_API_KEY", "")
	cfg.OpenAIModel = getEnvString("OPENAI_MODEL", "gpt-4o-mini")
	cfg.OpenAIBaseURL = getEnvString("OPENAI_API_BASE_URL", "https://api.openai.com/v1")
	cfg.DefaultLanguage = getEnvString("DEFAULT_LANGUAGE", "Japanese")
	cfg.TranslationBatchSize = getEnvInt("TRANSLATION_BATCH_SIZE", 10)
	cfg.TranslationTimeout = getEnvDuration("TRANSLATION_TIMEOUT", 60*time.Second)

	cfg.DispatchInterval = getEnvDuration("DISPATCH_INTERVAL", 24*time.Hour)
	cfg.FetchSpacing = getEnvDuration("FETCH_SPACING", 5*time.Second)

	cfg.SMTPHost = getEnvString("SMTP_HOST", "localhost")
	cfg.SMTPPort = getEnvString("SMTP_PORT", "25")
	cfg.SMTPFrom = getEnvString("SMTP_FROM", "news-dispatcher@localhost")

	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")

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
