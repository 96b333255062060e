package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/orhanxakarsu/music-agent/internal/domain/conversation"
)

// CheckpointRepository keeps checkpoints in process memory.
type CheckpointRepository struct {
	mu          sync.Mutex
	checkpoints map[string]*conversation.Checkpoint
	effects     map[string]effect
}

type effect struct {
	identity  string
	createdAt time.Time
}

func NewCheckpointRepository() *CheckpointRepository {
	return &CheckpointRepository{
		checkpoints: make(map[string]*conversation.Checkpoint),
		effects:     make(map[string]effect),
	}
}

func (r *CheckpointRepository) Get(_ context.Context, identity string) (*conversation.Checkpoint, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp, ok := r.checkpoints[identity]
	if !ok {
		return nil, nil
	}
	return cp.Clone(), nil
}

func (r *CheckpointRepository) Save(_ context.Context, cp *conversation.Checkpoint, expectedVersion int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var current int64
	if existing, ok := r.checkpoints[cp.Identity]; ok {
		current = existing.Version
	}
	if current != expectedVersion {
		return conversation.ErrVersionConflict
	}
	cp.Version = expectedVersion + 1
	r.checkpoints[cp.Identity] = cp.Clone()
	return nil
}

func (r *CheckpointRepository) Delete(_ context.Context, identity string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.checkpoints[identity]
	delete(r.checkpoints, identity)
	for key, e := range r.effects {
		if e.identity == identity {
			delete(r.effects, key)
		}
	}
	return ok, nil
}

func (r *CheckpointRepository) ListStale(_ context.Context, before time.Time, limit int) ([]*conversation.Checkpoint, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*conversation.Checkpoint, 0)
	for _, cp := range r.checkpoints {
		if cp.Status == conversation.StatusRunning && cp.UpdatedAt.Before(before) {
			out = append(out, cp.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *CheckpointRepository) HasEffect(_ context.Context, key string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.effects[key]
	return ok, nil
}

func (r *CheckpointRepository) RecordEffect(_ context.Context, identity, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.effects[key]; !ok {
		r.effects[key] = effect{identity: identity, createdAt: time.Now()}
	}
	return nil
}

func (r *CheckpointRepository) PruneEffects(_ context.Context, before time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for key, e := range r.effects {
		if e.createdAt.Before(before) {
			delete(r.effects, key)
			n++
		}
	}
	return n, nil
}
