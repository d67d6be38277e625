package app

import (
	"strings"

	"scraperbot/internal/config"
	"scraperbot/internal/delivery"
	logx "scraperbot/pkg/logx"
)

// mapLogConfig maps the logging section onto logx. level, when set, wins
// over logging.level (it comes from the command line).
func mapLogConfig(cfg *config.Config, level string) logx.Config {
	if strings.TrimSpace(level) == "" {
		level = cfg.Logging.Level
	}
	return logx.Config{
		Level:   level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Telegram: logx.TelegramConfig{
			Enabled:    cfg.Logging.Telegram.Enabled && cfg.GroupLogID() != 0,
			ChatID:     cfg.GroupLogID(),
			MinLevel:   cfg.Logging.Telegram.MinLevel,
			RatePerSec: cfg.Logging.Telegram.RatePerSec,
		},
	}
}

func deliveryOptions(cfg *config.Config) delivery.Options {
	return delivery.Options{
		RatePerSec: cfg.Delivery.RatePerSec,
		Retention:  cfg.Delivery.Retention(),
	}
}
