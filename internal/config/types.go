package config

// Config is the on-disk configuration (JSON or YAML).
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
type Config struct {
	Telegram    TelegramConfig    `json:"telegram"`
	Logging     LoggingConfig     `json:"logging"`
	Storage     StorageConfig     `json:"storage"`
	Alerts      AlertsConfig      `json:"alerts"`
	Ingest      IngestConfig      `json:"ingest"`
	Notifier    NotifierConfig    `json:"notifier"`
	Maintenance MaintenanceConfig `json:"maintenance"`
	DebugServer DebugServerConfig `json:"debug_server"`
}

type TelegramConfig struct {
	Token        string  `json:"token"`
	OwnerUserIDs []int64 `json:"owner_user_ids"`
	// GroupLog is the chat id receiving the telegram log sink.
	GroupLog    string `json:"group_log"`
	PollTimeout string `json:"poll_timeout"`
	// AllowedChats restricts tracking to these group ids. Empty tracks every
	// group the bot is in.
	AllowedChats []int64 `json:"allowed_chats,omitempty"`
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	ThreadID   int    `json:"thread_id"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// StorageConfig selects the registry backend.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./data/kwbot.db" }
type StorageConfig struct {
	Driver      string `json:"driver"` // sqlite | postgres | file | memory
	Path        string `json:"path,omitempty"`
	DSN         string `json:"dsn,omitempty"` // never logged
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

type AlertsConfig struct {
	// Cache keeps in-memory registry indexes. Pointer so an omitted key
	// defaults to true.
	Cache *bool `json:"cache,omitempty"`
	// EvaluateCommands also runs keyword matching on bot commands.
	EvaluateCommands bool `json:"evaluate_commands,omitempty"`
}

type IngestConfig struct {
	Workers   int `json:"workers,omitempty"`
	QueueSize int `json:"queue_size,omitempty"`
}

type NotifierConfig struct {
	Workers     int    `json:"workers,omitempty"`
	QueueSize   int    `json:"queue_size,omitempty"`
	SendTimeout string `json:"send_timeout,omitempty"`
	HistorySize int    `json:"history_size,omitempty"`
}

type MaintenanceConfig struct {
	Enabled  bool   `json:"enabled"`
	Resync   string `json:"resync,omitempty"`  // cron spec, e.g. "@every 10m"
	Compact  string `json:"compact,omitempty"` // cron spec, e.g. "@daily"
	Timezone string `json:"timezone,omitempty"`
}

// DebugServerConfig controls the HTTP server exposing /metrics, /healthz and
// pprof.
//
// Prefer binding to localhost. Non-loopback addresses require a token.
type DebugServerConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"`
	Token   string `json:"token,omitempty"` // bearer token, never logged
}
