package alert

import (
	"context"
	"strings"
	"sync"
)

// KeywordRegistry stores per-user keywords.
//
// With caching enabled it keeps an inverted index keyword -> user -> count
// next to the repository. The count preserves duplicate registrations. Every
// mutation updates repository and index under the same lock, so a reader
// never observes an index ahead of storage.
type KeywordRegistry struct {
	repo   KeywordRepository
	cached bool

	mu    sync.RWMutex
	index map[string]map[int64]int
}

func NewKeywordRegistry(repo KeywordRepository, cached bool) *KeywordRegistry {
	return &KeywordRegistry{repo: repo, cached: cached, index: map[string]map[int64]int{}}
}

// Load rebuilds the index from the repository. No-op without caching.
// The lock is held across the read so a concurrent Add or Remove lands
// either in the snapshot or on top of the new index.
func (r *KeywordRegistry) Load(ctx context.Context) error {
	if !r.cached {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	entries, err := r.repo.AllKeywords(ctx)
	if err != nil {
		return err
	}
	idx := make(map[string]map[int64]int, len(entries))
	for _, e := range entries {
		indexAdd(idx, e.Keyword, e.UserID)
	}
	r.index = idx
	return nil
}

// Add stores the normalized keyword. A keyword that normalizes to "" is
// ignored. Duplicates are stored as given.
func (r *KeywordRegistry) Add(ctx context.Context, userID int64, keyword string) error {
	kw := Normalize(keyword)
	if kw == "" {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.repo.InsertKeyword(ctx, userID, kw); err != nil {
		return err
	}
	if r.cached {
		indexAdd(r.index, kw, userID)
	}
	return nil
}

// Remove deletes every entry equal to (userID, normalized keyword).
// Removing an unknown keyword is a no-op.
func (r *KeywordRegistry) Remove(ctx context.Context, userID int64, keyword string) error {
	kw := Normalize(keyword)
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := r.repo.DeleteKeyword(ctx, userID, kw); err != nil {
		return err
	}
	if r.cached {
		if users, ok := r.index[kw]; ok {
			delete(users, userID)
			if len(users) == 0 {
				delete(r.index, kw)
			}
		}
	}
	return nil
}

// List returns the user's keywords in repository order.
func (r *KeywordRegistry) List(ctx context.Context, userID int64) ([]string, error) {
	return r.repo.KeywordsByUser(ctx, userID)
}

// All returns every (user, keyword) entry, one per registration.
func (r *KeywordRegistry) All(ctx context.Context) ([]KeywordEntry, error) {
	if !r.cached {
		return r.repo.AllKeywords(ctx)
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]KeywordEntry, 0, len(r.index))
	for kw, users := range r.index {
		for uid, n := range users {
			for i := 0; i < n; i++ {
				out = append(out, KeywordEntry{UserID: uid, Keyword: kw})
			}
		}
	}
	return out, nil
}

// Match returns the hits of an already normalized text.
func (r *KeywordRegistry) Match(ctx context.Context, text string) ([]Hit, error) {
	if text == "" {
		return nil, nil
	}
	if !r.cached {
		entries, err := r.repo.AllKeywords(ctx)
		if err != nil {
			return nil, err
		}
		return MatchEntries(text, entries), nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	var hits []Hit
	for kw, users := range r.index {
		if kw == "" || !strings.Contains(text, kw) {
			continue
		}
		for uid, n := range users {
			for i := 0; i < n; i++ {
				hits = append(hits, Hit{UserID: uid, Keyword: kw})
			}
		}
	}
	return hits, nil
}

// Size returns the number of indexed registrations (0 without caching).
func (r *KeywordRegistry) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, users := range r.index {
		for _, c := range users {
			n += c
		}
	}
	return n
}

func indexAdd(idx map[string]map[int64]int, kw string, userID int64) {
	users := idx[kw]
	if users == nil {
		users = map[int64]int{}
		idx[kw] = users
	}
	users[userID]++
}
