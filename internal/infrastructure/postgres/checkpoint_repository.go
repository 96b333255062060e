package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/orhanxakarsu/music-agent/internal/domain/conversation"
)

// CheckpointRepository implements conversation.Repository.
type CheckpointRepository struct {
	pool *pgxpool.Pool
}

func NewCheckpointRepository(pool *pgxpool.Pool) *CheckpointRepository {
	return &CheckpointRepository{pool: pool}
}

const checkpointColumns = `identity, epoch, version, status, next_step, input, state, consumed, updated_at`

// checkpointRow is the column form of a checkpoint.
type checkpointRow struct {
	Identity  string
	Epoch     uuid.UUID
	Version   int64
	Status    string
	NextStep  string
	Input     []byte
	State     []byte
	Consumed  []byte
	UpdatedAt time.Time
}

func encodeCheckpoint(cp *conversation.Checkpoint) (*checkpointRow, error) {
	state, err := json.Marshal(cp.State)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal state: %w", err)
	}
	consumed, err := json.Marshal(cp.Consumed)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal consumed ids: %w", err)
	}
	row := &checkpointRow{
		Identity:  cp.Identity,
		Epoch:     cp.Epoch,
		Version:   cp.Version,
		Status:    string(cp.Status),
		NextStep:  cp.NextStep,
		State:     state,
		Consumed:  consumed,
		UpdatedAt: cp.UpdatedAt.UTC(),
	}
	if cp.Input != nil {
		if row.Input, err = json.Marshal(cp.Input); err != nil {
			return nil, fmt.Errorf("failed to marshal input: %w", err)
		}
	}
	return row, nil
}

func decodeCheckpoint(row *checkpointRow) (*conversation.Checkpoint, error) {
	cp := &conversation.Checkpoint{
		Identity:  row.Identity,
		Epoch:     row.Epoch,
		Version:   row.Version,
		Status:    conversation.Status(row.Status),
		NextStep:  row.NextStep,
		UpdatedAt: row.UpdatedAt,
	}
	if err := json.Unmarshal(row.State, &cp.State); err != nil {
		return nil, fmt.Errorf("failed to unmarshal state: %w", err)
	}
	if len(row.Consumed) > 0 {
		if err := json.Unmarshal(row.Consumed, &cp.Consumed); err != nil {
			return nil, fmt.Errorf("failed to unmarshal consumed ids: %w", err)
		}
	}
	if len(row.Input) > 0 {
		var in conversation.Input
		if err := json.Unmarshal(row.Input, &in); err != nil {
			return nil, fmt.Errorf("failed to unmarshal input: %w", err)
		}
		cp.Input = &in
	}
	return cp, nil
}

func scanCheckpoint(row pgx.Row) (*conversation.Checkpoint, error) {
	var r checkpointRow
	var input *[]byte
	if err := row.Scan(&r.Identity, &r.Epoch, &r.Version, &r.Status, &r.NextStep, &input, &r.State, &r.Consumed, &r.UpdatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	if input != nil {
		r.Input = *input
	}
	return decodeCheckpoint(&r)
}

func (r *CheckpointRepository) Get(ctx context.Context, identity string) (*conversation.Checkpoint, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+checkpointColumns+` FROM conversation_checkpoints WHERE identity=$1`, identity)
	return scanCheckpoint(row)
}

// Save inserts the first version of a checkpoint or updates the row still at
// expectedVersion.
func (r *CheckpointRepository) Save(ctx context.Context, cp *conversation.Checkpoint, expectedVersion int64) error {
	if err := cp.Validate(); err != nil {
		return err
	}
	next := *cp
	next.Version = expectedVersion + 1
	row, err := encodeCheckpoint(&next)
	if err != nil {
		return err
	}

	var affected int64
	if expectedVersion == 0 {
		tag, err := r.pool.Exec(ctx, `
			INSERT INTO conversation_checkpoints (`+checkpointColumns+`)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
			ON CONFLICT (identity) DO NOTHING
		`, row.Identity, row.Epoch, row.Version, row.Status, row.NextStep, row.Input, row.State, row.Consumed, row.UpdatedAt)
		if err != nil {
			return err
		}
		affected = tag.RowsAffected()
	} else {
		tag, err := r.pool.Exec(ctx, `
			UPDATE conversation_checkpoints
			SET epoch=$2, version=$3, status=$4, next_step=$5, input=$6, state=$7, consumed=$8, updated_at=$9
			WHERE identity=$1 AND version=$10
		`, row.Identity, row.Epoch, row.Version, row.Status, row.NextStep, row.Input, row.State, row.Consumed, row.UpdatedAt, expectedVersion)
		if err != nil {
			return err
		}
		affected = tag.RowsAffected()
	}
	if affected == 0 {
		return conversation.ErrVersionConflict
	}
	cp.Version = next.Version
	return nil
}

// Delete removes the checkpoint of identity together with its effect keys.
func (r *CheckpointRepository) Delete(ctx context.Context, identity string) (bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM conversation_effects WHERE identity=$1`, identity); err != nil {
		return false, err
	}
	tag, err := tx.Exec(ctx, `DELETE FROM conversation_checkpoints WHERE identity=$1`, identity)
	if err != nil {
		return false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *CheckpointRepository) ListStale(ctx context.Context, before time.Time, limit int) ([]*conversation.Checkpoint, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+checkpointColumns+`
		FROM conversation_checkpoints
		WHERE status=$1 AND updated_at < $2
		ORDER BY updated_at ASC LIMIT $3
	`, string(conversation.StatusRunning), before.UTC(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*conversation.Checkpoint
	for rows.Next() {
		cp, err := scanCheckpoint(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, cp)
	}
	return out, rows.Err()
}

func (r *CheckpointRepository) HasEffect(ctx context.Context, key string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM conversation_effects WHERE effect_key=$1)`, key).Scan(&exists)
	return exists, err
}

func (r *CheckpointRepository) RecordEffect(ctx context.Context, identity, key string) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO conversation_effects (effect_key, identity, created_at)
		VALUES ($1,$2,$3)
		ON CONFLICT (effect_key) DO NOTHING
	`, key, identity, time.Now().UTC())
	return err
}

func (r *CheckpointRepository) PruneEffects(ctx context.Context, before time.Time) (int, error) {
	res, err := r.pool.Exec(ctx, `DELETE FROM conversation_effects WHERE created_at < $1`, before.UTC())
	if err != nil {
		return 0, err
	}
	return int(res.RowsAffected()), nil
}
