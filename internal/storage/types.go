package storage

import (
	"context"
	"errors"
	"time"

	"kwbot/internal/alert"
)

var (
	ErrClosed = errors.New("storage closed")
	// ErrLocked is returned by the file driver when another process holds
	// the store open.
	ErrLocked = errors.New("storage is in use by another process")
)

// Config configures storage.
type Config struct {
	Driver      string
	Path        string        // sqlite, file
	DSN         string        // postgres
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// AuditEntry records a registry change made by a user or an operator.
type AuditEntry struct {
	At       time.Time `json:"at"`
	ActorID  int64     `json:"actor_id"`
	ChatID   int64     `json:"chat_id,omitempty"`
	ThreadID int       `json:"thread_id,omitempty"`
	Action   string    `json:"action"`
	Target   string    `json:"target"`
	OK       bool      `json:"ok"`
	Error    string    `json:"err,omitempty"`
}

// Store is the persistence API used by the alert engine and the app.
type Store interface {
	alert.KeywordRepository
	alert.ExclusionRepository

	AppendAudit(ctx context.Context, e AuditEntry) error

	// Compact performs driver specific housekeeping (journal compaction,
	// VACUUM, ANALYZE). Safe to call at any time.
	Compact(ctx context.Context) error
	Close() error
}
