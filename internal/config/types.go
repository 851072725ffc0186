package config

// Config is the full runtime configuration.
//
// It is read from an optional JSON or YAML file and then overlaid with
// environment variables (see env.go). Secrets normally come from the
// environment; the file may carry them for local setups.
type Config struct {
	Server   ServerConfig   `json:"server"`
	Webhook  WebhookConfig  `json:"webhook"`
	Telegram TelegramConfig `json:"telegram"`
	Logging  LoggingConfig  `json:"logging"`
}

// ServerConfig controls the inbound HTTP listener.
//
// Durations are Go duration strings (e.g. "5s").
type ServerConfig struct {
	Addr              string `json:"addr" validate:"omitempty,listenaddr"`
	Path              string `json:"path" validate:"omitempty,startswith=/"`
	ReadHeaderTimeout string `json:"read_header_timeout,omitempty" validate:"duration"`
	MaxBodyBytes      int64  `json:"max_body_bytes,omitempty" validate:"gte=0"`
}

// WebhookConfig controls inbound authentication.
//
// When Secret is set, every request must carry a valid x-vercel-signature.
type WebhookConfig struct {
	Secret string `json:"secret,omitempty"`
}

// TelegramConfig holds delivery credentials and the Bot API endpoint.
//
// Token and ChatID are not required at load time: a relay without them
// answers recognized events with a configuration error.
type TelegramConfig struct {
	Token   string `json:"token,omitempty"`
	ChatID  string `json:"chat_id,omitempty"`
	APIBase string `json:"api_base,omitempty" validate:"omitempty,url"`
	// Timeout bounds one sendMessage exchange. Empty or "0s" means no timeout.
	Timeout string `json:"timeout,omitempty" validate:"duration"`
}

type LoggingConfig struct {
	Level    string          `json:"level" validate:"loglevel"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// LoggingTelegram forwards warnings and errors to an ops chat through the
// same bot. It is separate from the relay's target chat.
type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	ChatID     string `json:"chat_id"`
	MinLevel   string `json:"min_level" validate:"loglevel"`
	RatePerSec int    `json:"rate_per_sec" validate:"gte=0"`
}

// Default returns the configuration used for anything a file leaves out.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr: ":8080",
			Path: "/webhook",
		},
		Telegram: TelegramConfig{
			APIBase: "https://api.telegram.org",
		},
		Logging: LoggingConfig{
			Level:   "info",
			Console: true,
			Telegram: LoggingTelegram{
				MinLevel:   "warn",
				RatePerSec: 1,
			},
		},
	}
}
