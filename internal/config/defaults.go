package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

const (
	DefaultPollTimeout = 10 * time.Second
	DefaultSendTimeout = 10 * time.Second
	DefaultBusyTimeout = 5 * time.Second
)

// scheduleParser accepts 5-field and 6-field (with seconds) cron specs plus
// descriptors such as "@daily" and "@every 10m".
var scheduleParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ApplyDefaults fills omitted fields in place.
func ApplyDefaults(c *Config) {
	if c.Logging.Level == "" {
		c.Logging.Level = "INFO"
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "sqlite"
	}
	if c.Storage.Path == "" {
		switch strings.ToLower(c.Storage.Driver) {
		case "sqlite", "sqlite3":
			c.Storage.Path = "./data/kwbot.db"
		case "file":
			c.Storage.Path = "./data/kwbot"
		}
	}
	if c.Alerts.Cache == nil {
		on := true
		c.Alerts.Cache = &on
	}
	if c.Ingest.Workers <= 0 {
		c.Ingest.Workers = 4
	}
	if c.Ingest.QueueSize <= 0 {
		c.Ingest.QueueSize = 256
	}
	if c.Notifier.Workers <= 0 {
		c.Notifier.Workers = 4
	}
	if c.Notifier.QueueSize <= 0 {
		c.Notifier.QueueSize = 1024
	}
	if c.Notifier.HistorySize <= 0 {
		c.Notifier.HistorySize = 200
	}
	if c.Maintenance.Resync == "" {
		c.Maintenance.Resync = "@every 10m"
	}
	if c.Maintenance.Compact == "" {
		c.Maintenance.Compact = "@daily"
	}
	if c.DebugServer.Addr == "" {
		c.DebugServer.Addr = "127.0.0.1:6060"
	}
}

// Validate checks a config after defaults were applied. requireToken is false
// for admin commands that only touch storage.
func Validate(c *Config, requireToken bool) error {
	var errs []error
	if requireToken && strings.TrimSpace(c.Telegram.Token) == "" {
		errs = append(errs, errors.New("telegram.token is required (or set KWBOT_TELEGRAM_TOKEN)"))
	}
	if _, err := ParseDurationField("telegram.poll_timeout", c.Telegram.PollTimeout); err != nil {
		errs = append(errs, err)
	}
	if _, err := ParseDurationField("storage.busy_timeout", c.Storage.BusyTimeout); err != nil {
		errs = append(errs, err)
	}
	if _, err := ParseDurationField("notifier.send_timeout", c.Notifier.SendTimeout); err != nil {
		errs = append(errs, err)
	}

	switch strings.ToLower(strings.TrimSpace(c.Storage.Driver)) {
	case "memory":
	case "sqlite", "sqlite3", "file":
		if strings.TrimSpace(c.Storage.Path) == "" {
			errs = append(errs, fmt.Errorf("storage.path is required for driver %q", c.Storage.Driver))
		}
	case "postgres", "postgresql", "pgx":
		if strings.TrimSpace(c.Storage.DSN) == "" {
			errs = append(errs, errors.New("storage.dsn is required for postgres (or set KWBOT_STORAGE_DSN)"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.driver: unknown driver %q", c.Storage.Driver))
	}

	if c.Maintenance.Enabled {
		for path, spec := range map[string]string{"maintenance.resync": c.Maintenance.Resync, "maintenance.compact": c.Maintenance.Compact} {
			if strings.TrimSpace(spec) == "" {
				continue
			}
			if _, err := scheduleParser.Parse(spec); err != nil {
				errs = append(errs, fmt.Errorf("%s: invalid schedule %q: %w", path, spec, err))
			}
		}
		if tz := strings.TrimSpace(c.Maintenance.Timezone); tz != "" {
			if _, err := time.LoadLocation(tz); err != nil {
				errs = append(errs, fmt.Errorf("maintenance.timezone: %w", err))
			}
		}
	}

	if c.DebugServer.Enabled {
		host, _, err := net.SplitHostPort(c.DebugServer.Addr)
		switch {
		case err != nil:
			errs = append(errs, fmt.Errorf("debug_server.addr: %w", err))
		case !isLoopback(host) && strings.TrimSpace(c.DebugServer.Token) == "":
			errs = append(errs, errors.New("debug_server.token is required when binding a non-loopback address"))
		}
	}
	return errors.Join(errs...)
}

func isLoopback(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// PollTimeout returns telegram.poll_timeout or its default.
func (c *Config) PollTimeout() time.Duration {
	d, _ := ParseDurationOrDefault("telegram.poll_timeout", c.Telegram.PollTimeout, DefaultPollTimeout)
	return d
}

// SendTimeout returns notifier.send_timeout or its default.
func (c *Config) SendTimeout() time.Duration {
	d, _ := ParseDurationOrDefault("notifier.send_timeout", c.Notifier.SendTimeout, DefaultSendTimeout)
	return d
}

// BusyTimeout returns storage.busy_timeout or its default.
func (c *Config) BusyTimeout() time.Duration {
	d, _ := ParseDurationOrDefault("storage.busy_timeout", c.Storage.BusyTimeout, DefaultBusyTimeout)
	return d
}

// CacheEnabled reports alerts.cache (default true).
func (c *Config) CacheEnabled() bool {
	return c.Alerts.Cache == nil || *c.Alerts.Cache
}

// Tracked reports whether messages from chatID should be evaluated.
func (c *Config) Tracked(chatID int64) bool {
	if len(c.Telegram.AllowedChats) == 0 {
		return true
	}
	for _, id := range c.Telegram.AllowedChats {
		if id == chatID {
			return true
		}
	}
	return false
}
