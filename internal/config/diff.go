package config

import (
	"strings"

	logx "vercelgram/pkg/logx"
)

// SummarizeConfigChange returns the list of changed sections and safe
// structured fields for logging. Secrets are reported only as "set" flags.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 4)
	attrs := make([]logx.Field, 0, 12)

	if oldCfg.Server != newCfg.Server {
		changed = append(changed, "server")
		attrs = append(attrs,
			logx.String("server.addr", newCfg.Server.Addr),
			logx.String("server.path", newCfg.Server.Path),
			logx.Bool("server.restart_required", oldCfg.Server.Addr != newCfg.Server.Addr ||
				oldCfg.Server.Path != newCfg.Server.Path ||
				oldCfg.Server.ReadHeaderTimeout != newCfg.Server.ReadHeaderTimeout ||
				oldCfg.Server.MaxBodyBytes != newCfg.Server.MaxBodyBytes),
		)
	}

	if oldCfg.Webhook.Secret != newCfg.Webhook.Secret {
		changed = append(changed, "webhook")
		attrs = append(attrs, logx.Bool("webhook.secret_set", strings.TrimSpace(newCfg.Webhook.Secret) != ""))
	}

	// never log token
	if oldCfg.Telegram != newCfg.Telegram {
		changed = append(changed, "telegram")
		attrs = append(attrs,
			logx.Bool("telegram.token_set", strings.TrimSpace(newCfg.Telegram.Token) != ""),
			logx.Bool("telegram.chat_id_set", strings.TrimSpace(newCfg.Telegram.ChatID) != ""),
			logx.String("telegram.api_base", newCfg.Telegram.APIBase),
			logx.String("telegram.timeout", newCfg.Telegram.Timeout),
		)
	}

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
			logx.Bool("logging.telegram_enabled", newCfg.Logging.Telegram.Enabled),
		)
	}

	return changed, attrs
}

// RestartRequired reports whether moving from oldCfg to newCfg needs a new listener.
func RestartRequired(oldCfg, newCfg *Config) bool {
	if oldCfg == nil || newCfg == nil {
		return false
	}
	return oldCfg.Server != newCfg.Server
}
