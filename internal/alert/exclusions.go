package alert

import (
	"context"
	"sync"
)

// ExclusionRegistry stores the channels in which a user muted alerts.
// An exclusion applies to all of the user's keywords.
type ExclusionRegistry struct {
	repo   ExclusionRepository
	cached bool

	mu    sync.RWMutex
	index map[int64]map[ChannelID]int
}

func NewExclusionRegistry(repo ExclusionRepository, cached bool) *ExclusionRegistry {
	return &ExclusionRegistry{repo: repo, cached: cached, index: map[int64]map[ChannelID]int{}}
}

// Load rebuilds the index from the repository under the write lock, so
// mutations made during the read are never dropped from the index.
func (r *ExclusionRegistry) Load(ctx context.Context) error {
	if !r.cached {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	entries, err := r.repo.AllExclusions(ctx)
	if err != nil {
		return err
	}
	idx := make(map[int64]map[ChannelID]int, len(entries))
	for _, e := range entries {
		exclusionAdd(idx, e.UserID, e.Channel)
	}
	r.index = idx
	return nil
}

func (r *ExclusionRegistry) Add(ctx context.Context, userID int64, ch ChannelID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.repo.InsertExclusion(ctx, userID, ch); err != nil {
		return err
	}
	if r.cached {
		exclusionAdd(r.index, userID, ch)
	}
	return nil
}

// Remove deletes every (userID, ch) entry. Unknown pairs are a no-op.
func (r *ExclusionRegistry) Remove(ctx context.Context, userID int64, ch ChannelID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := r.repo.DeleteExclusion(ctx, userID, ch); err != nil {
		return err
	}
	if r.cached {
		if chans, ok := r.index[userID]; ok {
			delete(chans, ch)
			if len(chans) == 0 {
				delete(r.index, userID)
			}
		}
	}
	return nil
}

func (r *ExclusionRegistry) List(ctx context.Context, userID int64) ([]ChannelID, error) {
	return r.repo.ExclusionsByUser(ctx, userID)
}

func (r *ExclusionRegistry) All(ctx context.Context) ([]ExclusionEntry, error) {
	if !r.cached {
		return r.repo.AllExclusions(ctx)
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []ExclusionEntry
	for uid, chans := range r.index {
		for ch, n := range chans {
			for i := 0; i < n; i++ {
				out = append(out, ExclusionEntry{UserID: uid, Channel: ch})
			}
		}
	}
	return out, nil
}

func (r *ExclusionRegistry) IsExcluded(ctx context.Context, userID int64, ch ChannelID) (bool, error) {
	if !r.cached {
		return r.repo.HasExclusion(ctx, userID, ch)
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.index[userID][ch] > 0, nil
}

func exclusionAdd(idx map[int64]map[ChannelID]int, userID int64, ch ChannelID) {
	chans := idx[userID]
	if chans == nil {
		chans = map[ChannelID]int{}
		idx[userID] = chans
	}
	chans[ch]++
}
