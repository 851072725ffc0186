package config

import (
	"errors"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Environment variables that override file values.
const (
	EnvBotToken      = "TELEGRAM_BOT_TOKEN"
	EnvChatID        = "TELEGRAM_CHAT_ID"
	EnvAPIBase       = "TELEGRAM_API_BASE"
	EnvWebhookSecret = "VERCEL_WEBHOOK_SECRET"
	EnvHTTPAddr      = "HTTP_ADDR"
	EnvLogLevel      = "LOG_LEVEL"
)

// envSource resolves variables from the process first, then from a dotenv file.
type envSource struct {
	dotenv map[string]string
}

// loadEnv reads path with godotenv. A missing file is not an error.
func loadEnv(path string) (envSource, error) {
	if strings.TrimSpace(path) == "" {
		return envSource{}, nil
	}
	m, err := godotenv.Read(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return envSource{}, nil
		}
		return envSource{}, err
	}
	return envSource{dotenv: m}, nil
}

func (e envSource) lookup(key string) (string, bool) {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return v, true
	}
	if v, ok := e.dotenv[key]; ok && strings.TrimSpace(v) != "" {
		return v, true
	}
	return "", false
}

func (e envSource) apply(cfg *Config) {
	set := func(key string, dst *string) {
		if v, ok := e.lookup(key); ok {
			*dst = strings.TrimSpace(v)
		}
	}
	set(EnvBotToken, &cfg.Telegram.Token)
	set(EnvChatID, &cfg.Telegram.ChatID)
	set(EnvAPIBase, &cfg.Telegram.APIBase)
	set(EnvWebhookSecret, &cfg.Webhook.Secret)
	set(EnvHTTPAddr, &cfg.Server.Addr)
	set(EnvLogLevel, &cfg.Logging.Level)
}
