package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"kwbot/internal/alert"
	logx "kwbot/pkg/logx"

	_ "modernc.org/sqlite"
)

//go:embed migrations/sqlite.sql
var sqliteSchema string

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(ctx context.Context, cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for sqlite driver")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}
	_, _ = db.ExecContext(ctx, fmt.Sprintf("PRAGMA busy_timeout = %d", busy.Milliseconds()))
	_, _ = db.ExecContext(ctx, "PRAGMA journal_mode = WAL")
	_, _ = db.ExecContext(ctx, "PRAGMA synchronous = NORMAL")

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite migrate: %w", err)
	}
	log.Debug("sqlite store opened", logx.String("path", path))
	return &sqliteStore{db: db, log: log}, nil
}

func (s *sqliteStore) InsertKeyword(ctx context.Context, userID int64, keyword string) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO keywords(user_id, keyword) VALUES(?, ?)`, userID, keyword)
	return err
}

func (s *sqliteStore) DeleteKeyword(ctx context.Context, userID int64, keyword string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM keywords WHERE user_id = ? AND keyword = ?`, userID, keyword)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *sqliteStore) KeywordsByUser(ctx context.Context, userID int64) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT keyword FROM keywords WHERE user_id = ? ORDER BY rowid`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var kw string
		if err := rows.Scan(&kw); err != nil {
			return nil, err
		}
		out = append(out, kw)
	}
	return out, rows.Err()
}

func (s *sqliteStore) AllKeywords(ctx context.Context) ([]alert.KeywordEntry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT user_id, keyword FROM keywords ORDER BY rowid`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []alert.KeywordEntry
	for rows.Next() {
		var e alert.KeywordEntry
		if err := rows.Scan(&e.UserID, &e.Keyword); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *sqliteStore) InsertExclusion(ctx context.Context, userID int64, ch alert.ChannelID) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO excluded_channels(user_id, chat_id, thread_id) VALUES(?, ?, ?)`,
		userID, ch.SpaceID, ch.ThreadID)
	return err
}

func (s *sqliteStore) DeleteExclusion(ctx context.Context, userID int64, ch alert.ChannelID) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM excluded_channels WHERE user_id = ? AND chat_id = ? AND thread_id = ?`,
		userID, ch.SpaceID, ch.ThreadID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *sqliteStore) ExclusionsByUser(ctx context.Context, userID int64) ([]alert.ChannelID, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT chat_id, thread_id FROM excluded_channels WHERE user_id = ? ORDER BY rowid`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []alert.ChannelID
	for rows.Next() {
		var ch alert.ChannelID
		if err := rows.Scan(&ch.SpaceID, &ch.ThreadID); err != nil {
			return nil, err
		}
		out = append(out, ch)
	}
	return out, rows.Err()
}

func (s *sqliteStore) AllExclusions(ctx context.Context) ([]alert.ExclusionEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id, chat_id, thread_id FROM excluded_channels ORDER BY rowid`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []alert.ExclusionEntry
	for rows.Next() {
		var e alert.ExclusionEntry
		if err := rows.Scan(&e.UserID, &e.Channel.SpaceID, &e.Channel.ThreadID); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *sqliteStore) HasExclusion(ctx context.Context, userID int64, ch alert.ChannelID) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM excluded_channels WHERE user_id = ? AND chat_id = ? AND thread_id = ? LIMIT 1`,
		userID, ch.SpaceID, ch.ThreadID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

func (s *sqliteStore) AppendAudit(ctx context.Context, e AuditEntry) error {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit(at, actor_id, chat_id, thread_id, action, target, ok, err)
		 VALUES(?,?,?,?,?,?,?,?)`,
		e.At.UTC().Format(time.RFC3339Nano), e.ActorID, e.ChatID, e.ThreadID,
		e.Action, e.Target, e.OK, nullStr(e.Error),
	)
	return err
}

// Compact trims the audit table to its newest 10000 rows and reclaims space.
func (s *sqliteStore) Compact(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM audit WHERE id NOT IN (SELECT id FROM audit ORDER BY id DESC LIMIT 10000)`); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, "PRAGMA optimize"); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, "VACUUM")
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}
