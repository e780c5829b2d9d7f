package config

import (
	"reflect"
	"sort"
	"strings"

	logx "kwbot/pkg/logx"
)

// SummarizeConfigChange returns the changed sections and log-safe attrs
// describing the new values. Secrets (tokens, DSNs) are never included.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}
	changed := make([]string, 0, 8)
	attrs := make([]logx.Field, 0, 24)

	o, n := oldCfg.Telegram, newCfg.Telegram
	if o.Token != n.Token ||
		strings.TrimSpace(o.PollTimeout) != strings.TrimSpace(n.PollTimeout) ||
		!reflect.DeepEqual(o.OwnerUserIDs, n.OwnerUserIDs) ||
		!reflect.DeepEqual(o.AllowedChats, n.AllowedChats) ||
		strings.TrimSpace(o.GroupLog) != strings.TrimSpace(n.GroupLog) {
		changed = append(changed, "telegram")
		attrs = append(attrs,
			logx.Bool("telegram.token_changed", o.Token != n.Token),
			logx.String("telegram.poll_timeout", strings.TrimSpace(n.PollTimeout)),
			logx.Int("telegram.owner_count", len(n.OwnerUserIDs)),
			logx.Int("telegram.allowed_chats", len(n.AllowedChats)),
			logx.Bool("telegram.group_log_set", strings.TrimSpace(n.GroupLog) != ""),
		)
	}

	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
			logx.Bool("logging.telegram_enabled", newCfg.Logging.Telegram.Enabled),
		)
	}

	st0, st1 := oldCfg.Storage, newCfg.Storage
	if st0 != st1 {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", st1.Driver),
			logx.Bool("storage.path_set", strings.TrimSpace(st1.Path) != ""),
			logx.Bool("storage.dsn_changed", st0.DSN != st1.DSN),
		)
	}

	if oldCfg.CacheEnabled() != newCfg.CacheEnabled() || oldCfg.Alerts.EvaluateCommands != newCfg.Alerts.EvaluateCommands {
		changed = append(changed, "alerts")
		attrs = append(attrs,
			logx.Bool("alerts.cache", newCfg.CacheEnabled()),
			logx.Bool("alerts.evaluate_commands", newCfg.Alerts.EvaluateCommands),
		)
	}

	if oldCfg.Ingest != newCfg.Ingest {
		changed = append(changed, "ingest")
		attrs = append(attrs,
			logx.Int("ingest.workers", newCfg.Ingest.Workers),
			logx.Int("ingest.queue_size", newCfg.Ingest.QueueSize),
		)
	}

	if oldCfg.Notifier != newCfg.Notifier {
		changed = append(changed, "notifier")
		attrs = append(attrs,
			logx.Int("notifier.workers", newCfg.Notifier.Workers),
			logx.Int("notifier.queue_size", newCfg.Notifier.QueueSize),
			logx.String("notifier.send_timeout", newCfg.Notifier.SendTimeout),
		)
	}

	if oldCfg.Maintenance != newCfg.Maintenance {
		changed = append(changed, "maintenance")
		attrs = append(attrs,
			logx.Bool("maintenance.enabled", newCfg.Maintenance.Enabled),
			logx.String("maintenance.resync", newCfg.Maintenance.Resync),
			logx.String("maintenance.compact", newCfg.Maintenance.Compact),
			logx.String("maintenance.timezone", newCfg.Maintenance.Timezone),
		)
	}

	od, nd := oldCfg.DebugServer, newCfg.DebugServer
	if od.Enabled != nd.Enabled || od.Addr != nd.Addr || od.Token != nd.Token {
		changed = append(changed, "debug_server")
		attrs = append(attrs,
			logx.Bool("debug_server.enabled", nd.Enabled),
			logx.String("debug_server.addr", nd.Addr),
			logx.Bool("debug_server.token_set", strings.TrimSpace(nd.Token) != ""),
		)
	}

	sort.Strings(changed)
	return changed, attrs
}

// RestartRequired reports sections that only take effect after a restart.
func RestartRequired(changed []string) []string {
	var out []string
	for _, s := range changed {
		switch s {
		case "telegram", "storage", "ingest":
			out = append(out, s)
		}
	}
	return out
}
