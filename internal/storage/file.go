package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"kwbot/internal/alert"
	logx "kwbot/pkg/logx"
)

const compactEvery = 1000

// fileStore is a dependency-free persistence backend.
//
// Files:
//   - <prefix>.snapshot.json (periodic snapshot of both registries)
//   - <prefix>.journal.jsonl (append-only mutations since the snapshot)
//   - <prefix>.audit.jsonl   (append-only audit trail)
//
// Reads are served from memory; every mutation is journaled before it is
// applied. The journal is locked exclusively while the store is open, so a
// second process (a running bot and the admin CLI) cannot open the same
// prefix and have its writes overwritten by the other's compaction.
//
// Snapshots carry a generation. Journal records written after a compaction
// carry the new generation and replay skips older ones, so a crash between
// the snapshot rename and the journal truncate does not apply records twice.
type fileStore struct {
	mem *memStore
	log logx.Logger

	mu           sync.Mutex
	snapshotPath string
	journal      *os.File
	audit        *os.File
	writes       int
	gen          int64
}

type journalOp string

const (
	opAddKeyword      journalOp = "kw.add"
	opRemoveKeyword   journalOp = "kw.remove"
	opAddExclusion    journalOp = "ex.add"
	opRemoveExclusion journalOp = "ex.remove"
)

type journalRecord struct {
	Op       journalOp `json:"op"`
	UserID   int64     `json:"user_id"`
	Keyword  string    `json:"keyword,omitempty"`
	ChatID   int64     `json:"chat_id,omitempty"`
	ThreadID int       `json:"thread_id,omitempty"`
	Gen      int64     `json:"gen,omitempty"`
}

type snapshotFile struct {
	Gen        int64                  `json:"gen,omitempty"`
	Keywords   []alert.KeywordEntry   `json:"keywords"`
	Exclusions []alert.ExclusionEntry `json:"exclusions"`
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	dir := filepath.Dir(path)
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	prefix := filepath.Join(dir, base)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	snapPath := prefix + ".snapshot.json"
	journalPath := prefix + ".journal.jsonl"

	jf, err := os.OpenFile(journalPath, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o600)
	if err != nil {
		return nil, err
	}
	if err := lockFile(jf); err != nil {
		_ = jf.Close()
		return nil, fmt.Errorf("%s: %w", journalPath, err)
	}

	mem := &memStore{}
	gen, err := loadSnapshot(snapPath, mem)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		_ = jf.Close()
		return nil, err
	}
	if err := replayJournal(journalPath, mem, gen); err != nil {
		_ = jf.Close()
		return nil, err
	}

	af, err := os.OpenFile(prefix+".audit.jsonl", os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		_ = jf.Close()
		return nil, err
	}
	return &fileStore{mem: mem, log: log, snapshotPath: snapPath, journal: jf, audit: af, gen: gen}, nil
}

func (s *fileStore) write(ctx context.Context, r journalRecord, apply func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal == nil {
		return ErrClosed
	}
	r.Gen = s.gen
	if err := json.NewEncoder(s.journal).Encode(r); err != nil {
		return err
	}
	apply()
	s.writes++
	if s.writes%compactEvery == 0 {
		if err := s.compactLocked(); err != nil {
			s.log.Warn("journal compaction failed", logx.Err(err))
		}
	}
	return nil
}

func (s *fileStore) InsertKeyword(ctx context.Context, userID int64, keyword string) error {
	return s.write(ctx, journalRecord{Op: opAddKeyword, UserID: userID, Keyword: keyword}, func() {
		_ = s.mem.InsertKeyword(ctx, userID, keyword)
	})
}

func (s *fileStore) DeleteKeyword(ctx context.Context, userID int64, keyword string) (int64, error) {
	var n int64
	err := s.write(ctx, journalRecord{Op: opRemoveKeyword, UserID: userID, Keyword: keyword}, func() {
		n, _ = s.mem.DeleteKeyword(ctx, userID, keyword)
	})
	return n, err
}

func (s *fileStore) KeywordsByUser(ctx context.Context, userID int64) ([]string, error) {
	return s.mem.KeywordsByUser(ctx, userID)
}

func (s *fileStore) AllKeywords(ctx context.Context) ([]alert.KeywordEntry, error) {
	return s.mem.AllKeywords(ctx)
}

func (s *fileStore) InsertExclusion(ctx context.Context, userID int64, ch alert.ChannelID) error {
	return s.write(ctx, journalRecord{Op: opAddExclusion, UserID: userID, ChatID: ch.SpaceID, ThreadID: ch.ThreadID}, func() {
		_ = s.mem.InsertExclusion(ctx, userID, ch)
	})
}

func (s *fileStore) DeleteExclusion(ctx context.Context, userID int64, ch alert.ChannelID) (int64, error) {
	var n int64
	err := s.write(ctx, journalRecord{Op: opRemoveExclusion, UserID: userID, ChatID: ch.SpaceID, ThreadID: ch.ThreadID}, func() {
		n, _ = s.mem.DeleteExclusion(ctx, userID, ch)
	})
	return n, err
}

func (s *fileStore) ExclusionsByUser(ctx context.Context, userID int64) ([]alert.ChannelID, error) {
	return s.mem.ExclusionsByUser(ctx, userID)
}

func (s *fileStore) AllExclusions(ctx context.Context) ([]alert.ExclusionEntry, error) {
	return s.mem.AllExclusions(ctx)
}

func (s *fileStore) HasExclusion(ctx context.Context, userID int64, ch alert.ChannelID) (bool, error) {
	return s.mem.HasExclusion(ctx, userID, ch)
}

func (s *fileStore) AppendAudit(ctx context.Context, e AuditEntry) error {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.audit == nil {
		return ErrClosed
	}
	return json.NewEncoder(s.audit).Encode(e)
}

func (s *fileStore) Compact(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal == nil {
		return ErrClosed
	}
	return s.compactLocked()
}

// compactLocked writes a fresh snapshot and truncates the journal.
func (s *fileStore) compactLocked() error {
	tmp := s.snapshotPath + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	snap := s.mem.snapshot()
	snap.Gen = s.gen + 1
	if err := json.NewEncoder(f).Encode(snap); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.snapshotPath); err != nil {
		return err
	}
	// Records already in the journal are now covered by the snapshot.
	s.gen = snap.Gen
	if err := s.journal.Truncate(0); err != nil {
		return err
	}
	_, err = s.journal.Seek(0, 2)
	return err
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var errs []error
	if s.journal != nil {
		errs = append(errs, s.journal.Close())
		s.journal = nil
	}
	if s.audit != nil {
		errs = append(errs, s.audit.Close())
		s.audit = nil
	}
	return errors.Join(errs...)
}

// loadSnapshot returns the snapshot generation (0 when there is none).
func loadSnapshot(path string, mem *memStore) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	var snap snapshotFile
	if err := json.NewDecoder(f).Decode(&snap); err != nil {
		return 0, err
	}
	mem.keywords = snap.Keywords
	mem.exclusions = snap.Exclusions
	return snap.Gen, nil
}

// replayJournal applies journal records of generation gen or newer on top of
// the snapshot. A torn last line (crash mid-write) is skipped.
func replayJournal(path string, mem *memStore, gen int64) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	ctx := context.Background()
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var r journalRecord
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil || r.Gen < gen {
			continue
		}
		ch := alert.ChannelID{SpaceID: r.ChatID, ThreadID: r.ThreadID}
		switch r.Op {
		case opAddKeyword:
			_ = mem.InsertKeyword(ctx, r.UserID, r.Keyword)
		case opRemoveKeyword:
			_, _ = mem.DeleteKeyword(ctx, r.UserID, r.Keyword)
		case opAddExclusion:
			_ = mem.InsertExclusion(ctx, r.UserID, ch)
		case opRemoveExclusion:
			_, _ = mem.DeleteExclusion(ctx, r.UserID, ch)
		}
	}
	return sc.Err()
}
