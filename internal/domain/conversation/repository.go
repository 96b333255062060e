package conversation

//go:generate go run go.uber.org/mock/mockgen -destination=mocks/mock_repository.go -package=mocks . Repository

import (
	"context"
	"time"
)

// Repository persists conversation checkpoints and the ledger of side
// effects already performed.
type Repository interface {
	// Get returns nil when the identity has no checkpoint.
	Get(ctx context.Context, identity string) (*Checkpoint, error)
	// Save stores cp if the stored version equals expectedVersion
	// (0 for a new conversation) and sets cp.Version to the new version.
	Save(ctx context.Context, cp *Checkpoint, expectedVersion int64) error
	Delete(ctx context.Context, identity string) (bool, error)
	ListStale(ctx context.Context, before time.Time, limit int) ([]*Checkpoint, error)

	HasEffect(ctx context.Context, key string) (bool, error)
	RecordEffect(ctx context.Context, identity, key string) error
	PruneEffects(ctx context.Context, before time.Time) (int, error)
}
