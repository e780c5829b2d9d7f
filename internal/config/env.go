package config

import (
	"strings"

	"github.com/caarlos0/env/v9"
)

// envOverrides are applied on top of the file on every parse, so hot reload
// keeps them.
type envOverrides struct {
	TelegramToken string `env:"KWBOT_TELEGRAM_TOKEN"`
	StorageDriver string `env:"KWBOT_STORAGE_DRIVER"`
	StorageDSN    string `env:"KWBOT_STORAGE_DSN"`
	LogLevel      string `env:"KWBOT_LOG_LEVEL"`
}

func applyEnv(c *Config) error {
	var o envOverrides
	if err := env.Parse(&o); err != nil {
		return err
	}
	set := func(dst *string, v string) {
		if v = strings.TrimSpace(v); v != "" {
			*dst = v
		}
	}
	set(&c.Telegram.Token, o.TelegramToken)
	set(&c.Storage.Driver, o.StorageDriver)
	set(&c.Storage.DSN, o.StorageDSN)
	set(&c.Logging.Level, o.LogLevel)
	return nil
}
