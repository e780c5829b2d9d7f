package app

import (
	"strconv"
	"strings"

	"kwbot/internal/config"
	"kwbot/internal/maintenance"
	"kwbot/internal/notifier"
	"kwbot/internal/observability"
	"kwbot/internal/storage"
	logx "kwbot/pkg/logx"
)

func mapLogConfig(cfg *config.Config) logx.Config {
	var chatID int64
	if s := strings.TrimSpace(cfg.Telegram.GroupLog); s != "" {
		chatID, _ = strconv.ParseInt(s, 10, 64)
	}
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Telegram: logx.TelegramConfig{
			Enabled:    cfg.Logging.Telegram.Enabled,
			ChatID:     chatID,
			ThreadID:   cfg.Logging.Telegram.ThreadID,
			MinLevel:   cfg.Logging.Telegram.MinLevel,
			RatePerSec: cfg.Logging.Telegram.RatePerSec,
		},
	}
}

// MapStorageConfig converts the storage section for storage.Open.
func MapStorageConfig(cfg *config.Config) storage.Config {
	return storage.Config{
		Driver:      cfg.Storage.Driver,
		Path:        cfg.Storage.Path,
		DSN:         cfg.Storage.DSN,
		BusyTimeout: cfg.BusyTimeout(),
	}
}

func mapNotifierConfig(cfg *config.Config) notifier.Config {
	return notifier.Config{
		Workers:     cfg.Notifier.Workers,
		QueueSize:   cfg.Notifier.QueueSize,
		SendTimeout: cfg.SendTimeout(),
		HistorySize: cfg.Notifier.HistorySize,
	}
}

func mapMaintenanceConfig(cfg *config.Config) maintenance.Config {
	return maintenance.Config{
		Enabled:  cfg.Maintenance.Enabled,
		Resync:   cfg.Maintenance.Resync,
		Compact:  cfg.Maintenance.Compact,
		Timezone: cfg.Maintenance.Timezone,
	}
}

func MapDebugConfig(cfg *config.Config) observability.ServerConfig {
	return observability.ServerConfig{
		Enabled: cfg.DebugServer.Enabled,
		Addr:    cfg.DebugServer.Addr,
		Token:   cfg.DebugServer.Token,
	}
}
