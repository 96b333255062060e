// Package bolt stores conversations in a local bolt file through the
// raft-boltdb stable store, for single-node deployments without Postgres.
//
// Every Set is its own bolt transaction, so a write touching an index and a
// value is not atomic. A crash in between can leave an index entry without a
// value, which readers treat as absent. Effects are kept in one ledger
// record per identity; recording an effect rewrites only that record, whose
// size is bounded by the effect retention.
package bolt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	raftboltdb "github.com/hashicorp/raft-boltdb/v2"

	"github.com/orhanxakarsu/music-agent/internal/domain/conversation"
)

const (
	checkpointPrefix = "cp/"
	effectPrefix     = "fx/"
	ledgerPrefix     = "ledger/"
	checkpointIndex  = "idx/checkpoints"
	ledgerIndex      = "idx/ledgers"
)

type effectRecord struct {
	Identity  string    `json:"identity"`
	CreatedAt time.Time `json:"created_at"`
}

// ledger maps the effect keys of one identity to their record time.
type ledger map[string]time.Time

// CheckpointRepository implements conversation.Repository on a BoltStore.
// The store has no key iteration or delete, so identities and effect keys are
// tracked in index entries and removed values are written as empty tombstones.
type CheckpointRepository struct {
	mu    sync.Mutex
	store *raftboltdb.BoltStore
	now   func() time.Time
}

// Open opens or creates the bolt file at path.
func Open(path string) (*CheckpointRepository, error) {
	store, err := raftboltdb.NewBoltStore(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt store: %w", err)
	}
	return &CheckpointRepository{store: store, now: time.Now}, nil
}

func (r *CheckpointRepository) Close() error {
	return r.store.Close()
}

func (r *CheckpointRepository) get(key string) ([]byte, error) {
	val, err := r.store.Get([]byte(key))
	if errors.Is(err, raftboltdb.ErrKeyNotFound) || (err == nil && len(val) == 0) {
		return nil, nil
	}
	return val, err
}

func (r *CheckpointRepository) index(key string) (map[string]struct{}, error) {
	val, err := r.get(key)
	if err != nil {
		return nil, err
	}
	var keys []string
	if val != nil {
		if err := json.Unmarshal(val, &keys); err != nil {
			return nil, fmt.Errorf("corrupt index %s: %w", key, err)
		}
	}
	out := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		out[k] = struct{}{}
	}
	return out, nil
}

func (r *CheckpointRepository) putIndex(key string, set map[string]struct{}) error {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	data, err := json.Marshal(keys)
	if err != nil {
		return err
	}
	return r.store.Set([]byte(key), data)
}

func (r *CheckpointRepository) load(identity string) (*conversation.Checkpoint, error) {
	val, err := r.get(checkpointPrefix + identity)
	if err != nil || val == nil {
		return nil, err
	}
	var cp conversation.Checkpoint
	if err := json.Unmarshal(val, &cp); err != nil {
		return nil, fmt.Errorf("failed to decode checkpoint of %s: %w", identity, err)
	}
	return &cp, nil
}

func (r *CheckpointRepository) Get(_ context.Context, identity string) (*conversation.Checkpoint, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.load(identity)
}

func (r *CheckpointRepository) Save(_ context.Context, cp *conversation.Checkpoint, expectedVersion int64) error {
	if err := cp.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	current, err := r.load(cp.Identity)
	if err != nil {
		return err
	}
	var version int64
	if current != nil {
		version = current.Version
	}
	if version != expectedVersion {
		return conversation.ErrVersionConflict
	}

	next := cp.Clone()
	next.Version = expectedVersion + 1
	data, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("failed to encode checkpoint: %w", err)
	}
	if current == nil {
		idx, err := r.index(checkpointIndex)
		if err != nil {
			return err
		}
		idx[cp.Identity] = struct{}{}
		if err := r.putIndex(checkpointIndex, idx); err != nil {
			return err
		}
	}
	if err := r.store.Set([]byte(checkpointPrefix+cp.Identity), data); err != nil {
		return err
	}
	cp.Version = next.Version
	return nil
}

func (r *CheckpointRepository) Delete(_ context.Context, identity string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, err := r.load(identity)
	if err != nil {
		return false, err
	}
	if err := r.dropLedger(identity); err != nil {
		return false, err
	}

	if current == nil {
		return false, nil
	}
	idx, err := r.index(checkpointIndex)
	if err != nil {
		return false, err
	}
	delete(idx, identity)
	if err := r.putIndex(checkpointIndex, idx); err != nil {
		return false, err
	}
	if err := r.store.Set([]byte(checkpointPrefix+identity), nil); err != nil {
		return false, err
	}
	return true, nil
}

func (r *CheckpointRepository) ListStale(_ context.Context, before time.Time, limit int) ([]*conversation.Checkpoint, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx, err := r.index(checkpointIndex)
	if err != nil {
		return nil, err
	}
	var out []*conversation.Checkpoint
	for identity := range idx {
		cp, err := r.load(identity)
		if err != nil {
			return nil, err
		}
		if cp != nil && cp.Status == conversation.StatusRunning && cp.UpdatedAt.Before(before) {
			out = append(out, cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *CheckpointRepository) effect(key string) (*effectRecord, error) {
	val, err := r.get(effectPrefix + key)
	if err != nil || val == nil {
		return nil, err
	}
	var rec effectRecord
	if err := json.Unmarshal(val, &rec); err != nil {
		return nil, fmt.Errorf("failed to decode effect %s: %w", key, err)
	}
	return &rec, nil
}

func (r *CheckpointRepository) ledger(identity string) (ledger, error) {
	val, err := r.get(ledgerPrefix + identity)
	if err != nil {
		return nil, err
	}
	l := ledger{}
	if val != nil {
		if err := json.Unmarshal(val, &l); err != nil {
			return nil, fmt.Errorf("failed to decode effect ledger of %s: %w", identity, err)
		}
	}
	return l, nil
}

func (r *CheckpointRepository) putLedger(identity string, l ledger) error {
	data, err := json.Marshal(l)
	if err != nil {
		return err
	}
	return r.store.Set([]byte(ledgerPrefix+identity), data)
}

// dropLedger removes every effect of identity and its ledger.
func (r *CheckpointRepository) dropLedger(identity string) error {
	l, err := r.ledger(identity)
	if err != nil {
		return err
	}
	for key := range l {
		if err := r.store.Set([]byte(effectPrefix+key), nil); err != nil {
			return err
		}
	}
	idx, err := r.index(ledgerIndex)
	if err != nil {
		return err
	}
	if _, ok := idx[identity]; !ok && len(l) == 0 {
		return nil
	}
	delete(idx, identity)
	if err := r.putIndex(ledgerIndex, idx); err != nil {
		return err
	}
	return r.store.Set([]byte(ledgerPrefix+identity), nil)
}

func (r *CheckpointRepository) HasEffect(_ context.Context, key string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, err := r.effect(key)
	return rec != nil, err
}

func (r *CheckpointRepository) RecordEffect(_ context.Context, identity, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, err := r.effect(key)
	if err != nil || existing != nil {
		return err
	}
	now := r.now().UTC()
	data, err := json.Marshal(effectRecord{Identity: identity, CreatedAt: now})
	if err != nil {
		return err
	}

	l, err := r.ledger(identity)
	if err != nil {
		return err
	}
	if len(l) == 0 {
		idx, err := r.index(ledgerIndex)
		if err != nil {
			return err
		}
		if _, ok := idx[identity]; !ok {
			idx[identity] = struct{}{}
			if err := r.putIndex(ledgerIndex, idx); err != nil {
				return err
			}
		}
	}
	l[key] = now
	if err := r.putLedger(identity, l); err != nil {
		return err
	}
	return r.store.Set([]byte(effectPrefix+key), data)
}

func (r *CheckpointRepository) PruneEffects(_ context.Context, before time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	idx, err := r.index(ledgerIndex)
	if err != nil {
		return 0, err
	}
	pruned := 0
	emptied := false
	for identity := range idx {
		l, err := r.ledger(identity)
		if err != nil {
			return pruned, err
		}
		removed := 0
		for key, created := range l {
			if !created.Before(before) {
				continue
			}
			if err := r.store.Set([]byte(effectPrefix+key), nil); err != nil {
				return pruned, err
			}
			delete(l, key)
			removed++
		}
		pruned += removed
		switch {
		case len(l) == 0:
			if err := r.store.Set([]byte(ledgerPrefix+identity), nil); err != nil {
				return pruned, err
			}
			delete(idx, identity)
			emptied = true
		case removed > 0:
			if err := r.putLedger(identity, l); err != nil {
				return pruned, err
			}
		}
	}
	if !emptied {
		return pruned, nil
	}
	return pruned, r.putIndex(ledgerIndex, idx)
}
