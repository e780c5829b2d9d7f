package storage

import (
	"context"
	"sync"

	"kwbot/internal/alert"
)

// memStore keeps rows in insertion order. It backs the "memory" driver and
// holds the replayed state of the file driver.
type memStore struct {
	mu         sync.RWMutex
	keywords   []alert.KeywordEntry
	exclusions []alert.ExclusionEntry
	audit      []AuditEntry
}

// NewMemory returns an empty process-local store.
func NewMemory() Store { return &memStore{} }

func (s *memStore) InsertKeyword(ctx context.Context, userID int64, keyword string) error {
	s.mu.Lock()
	s.keywords = append(s.keywords, alert.KeywordEntry{UserID: userID, Keyword: keyword})
	s.mu.Unlock()
	return nil
}

func (s *memStore) DeleteKeyword(ctx context.Context, userID int64, keyword string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.keywords[:0]
	var n int64
	for _, e := range s.keywords {
		if e.UserID == userID && e.Keyword == keyword {
			n++
			continue
		}
		kept = append(kept, e)
	}
	s.keywords = kept
	return n, nil
}

func (s *memStore) KeywordsByUser(ctx context.Context, userID int64) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []string
	for _, e := range s.keywords {
		if e.UserID == userID {
			out = append(out, e.Keyword)
		}
	}
	return out, nil
}

func (s *memStore) AllKeywords(ctx context.Context) ([]alert.KeywordEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]alert.KeywordEntry(nil), s.keywords...), nil
}

func (s *memStore) InsertExclusion(ctx context.Context, userID int64, ch alert.ChannelID) error {
	s.mu.Lock()
	s.exclusions = append(s.exclusions, alert.ExclusionEntry{UserID: userID, Channel: ch})
	s.mu.Unlock()
	return nil
}

func (s *memStore) DeleteExclusion(ctx context.Context, userID int64, ch alert.ChannelID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.exclusions[:0]
	var n int64
	for _, e := range s.exclusions {
		if e.UserID == userID && e.Channel == ch {
			n++
			continue
		}
		kept = append(kept, e)
	}
	s.exclusions = kept
	return n, nil
}

func (s *memStore) ExclusionsByUser(ctx context.Context, userID int64) ([]alert.ChannelID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []alert.ChannelID
	for _, e := range s.exclusions {
		if e.UserID == userID {
			out = append(out, e.Channel)
		}
	}
	return out, nil
}

func (s *memStore) AllExclusions(ctx context.Context) ([]alert.ExclusionEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]alert.ExclusionEntry(nil), s.exclusions...), nil
}

func (s *memStore) HasExclusion(ctx context.Context, userID int64, ch alert.ChannelID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.exclusions {
		if e.UserID == userID && e.Channel == ch {
			return true, nil
		}
	}
	return false, nil
}

func (s *memStore) AppendAudit(ctx context.Context, e AuditEntry) error {
	s.mu.Lock()
	s.audit = append(s.audit, e)
	if len(s.audit) > 1000 {
		s.audit = s.audit[len(s.audit)-1000:]
	}
	s.mu.Unlock()
	return nil
}

func (s *memStore) Compact(ctx context.Context) error { return nil }
func (s *memStore) Close() error                      { return nil }

// snapshot returns copies of both tables.
func (s *memStore) snapshot() snapshotFile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshotFile{
		Keywords:   append([]alert.KeywordEntry(nil), s.keywords...),
		Exclusions: append([]alert.ExclusionEntry(nil), s.exclusions...),
	}
}
