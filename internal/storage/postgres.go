package storage

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"kwbot/internal/alert"
	logx "kwbot/pkg/logx"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed migrations/postgres/*.sql
var postgresMigrations embed.FS

type postgresStore struct {
	pool *pgxpool.Pool
	log  logx.Logger
}

func openPostgres(ctx context.Context, cfg Config, log logx.Logger) (Store, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("storage.dsn is required for postgres driver")
	}
	if err := runPostgresMigrations(dsn); err != nil {
		return nil, fmt.Errorf("postgres migrate: %w", err)
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	log.Debug("postgres store opened")
	return &postgresStore{pool: pool, log: log}, nil
}

func runPostgresMigrations(dsn string) error {
	src, err := iofs.New(postgresMigrations, "migrations/postgres")
	if err != nil {
		return err
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, dsn)
	if err != nil {
		return err
	}
	defer m.Close()
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

func (s *postgresStore) InsertKeyword(ctx context.Context, userID int64, keyword string) error {
	_, err := s.pool.Exec(ctx, `INSERT INTO keywords(user_id, keyword) VALUES($1, $2)`, userID, keyword)
	return err
}

func (s *postgresStore) DeleteKeyword(ctx context.Context, userID int64, keyword string) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM keywords WHERE user_id = $1 AND keyword = $2`, userID, keyword)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (s *postgresStore) KeywordsByUser(ctx context.Context, userID int64) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT keyword FROM keywords WHERE user_id = $1 ORDER BY id`, userID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func (s *postgresStore) AllKeywords(ctx context.Context) ([]alert.KeywordEntry, error) {
	rows, err := s.pool.Query(ctx, `SELECT user_id, keyword FROM keywords ORDER BY id`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(r pgx.CollectableRow) (alert.KeywordEntry, error) {
		var e alert.KeywordEntry
		err := r.Scan(&e.UserID, &e.Keyword)
		return e, err
	})
}

func (s *postgresStore) InsertExclusion(ctx context.Context, userID int64, ch alert.ChannelID) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO excluded_channels(user_id, chat_id, thread_id) VALUES($1, $2, $3)`,
		userID, ch.SpaceID, ch.ThreadID)
	return err
}

func (s *postgresStore) DeleteExclusion(ctx context.Context, userID int64, ch alert.ChannelID) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM excluded_channels WHERE user_id = $1 AND chat_id = $2 AND thread_id = $3`,
		userID, ch.SpaceID, ch.ThreadID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (s *postgresStore) ExclusionsByUser(ctx context.Context, userID int64) ([]alert.ChannelID, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT chat_id, thread_id FROM excluded_channels WHERE user_id = $1 ORDER BY id`, userID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(r pgx.CollectableRow) (alert.ChannelID, error) {
		var ch alert.ChannelID
		err := r.Scan(&ch.SpaceID, &ch.ThreadID)
		return ch, err
	})
}

func (s *postgresStore) AllExclusions(ctx context.Context) ([]alert.ExclusionEntry, error) {
	rows, err := s.pool.Query(ctx, `SELECT user_id, chat_id, thread_id FROM excluded_channels ORDER BY id`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(r pgx.CollectableRow) (alert.ExclusionEntry, error) {
		var e alert.ExclusionEntry
		err := r.Scan(&e.UserID, &e.Channel.SpaceID, &e.Channel.ThreadID)
		return e, err
	})
}

func (s *postgresStore) HasExclusion(ctx context.Context, userID int64, ch alert.ChannelID) (bool, error) {
	var ok bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM excluded_channels WHERE user_id = $1 AND chat_id = $2 AND thread_id = $3)`,
		userID, ch.SpaceID, ch.ThreadID).Scan(&ok)
	return ok, err
}

func (s *postgresStore) AppendAudit(ctx context.Context, e AuditEntry) error {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO audit(at, actor_id, chat_id, thread_id, action, target, ok, err)
		 VALUES($1,$2,$3,$4,$5,$6,$7,$8)`,
		e.At, e.ActorID, e.ChatID, e.ThreadID, e.Action, e.Target, e.OK, nullStr(e.Error))
	return err
}

func (s *postgresStore) Compact(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx,
		`DELETE FROM audit WHERE id NOT IN (SELECT id FROM audit ORDER BY id DESC LIMIT 10000)`); err != nil {
		return err
	}
	_, err := s.pool.Exec(ctx, `ANALYZE keywords, excluded_channels`)
	return err
}

func (s *postgresStore) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}
