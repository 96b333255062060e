// Package sqlite keeps the persona catalog in a local SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/orhanxakarsu/music-agent/internal/domain/persona"
)

const schema = `
CREATE TABLE IF NOT EXISTS personas (
	persona_id      TEXT PRIMARY KEY,
	name            TEXT NOT NULL,
	description     TEXT NOT NULL DEFAULT '',
	source_audio_id TEXT NOT NULL DEFAULT '',
	created_at      TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS personas_created_idx ON personas (created_at DESC);
`

// PersonaRepository implements persona.Repository.
type PersonaRepository struct {
	db *sql.DB
}

// OpenPersonaRepository opens or creates the catalog at path.
func OpenPersonaRepository(ctx context.Context, path string) (*PersonaRepository, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create db directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", fmt.Sprintf("%s?_busy_timeout=5000", path))
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite3: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to init persona schema: %w", err)
	}
	return &PersonaRepository{db: db}, nil
}

func (r *PersonaRepository) Close() error {
	return r.db.Close()
}

func (r *PersonaRepository) Save(ctx context.Context, p *persona.Persona) error {
	if err := p.Validate(); err != nil {
		return err
	}
	created := p.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO personas (persona_id, name, description, source_audio_id, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (persona_id) DO UPDATE SET
			name=excluded.name, description=excluded.description, source_audio_id=excluded.source_audio_id
	`, p.PersonaID, p.Name, p.Description, p.SourceAudioID, created.UTC())
	return err
}

func (r *PersonaRepository) List(ctx context.Context) ([]*persona.Persona, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT persona_id, name, description, source_audio_id, created_at
		FROM personas ORDER BY created_at DESC, rowid DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*persona.Persona
	for rows.Next() {
		p, err := scanPersona(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *PersonaRepository) Get(ctx context.Context, personaID string) (*persona.Persona, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT persona_id, name, description, source_audio_id, created_at
		FROM personas WHERE persona_id=?
	`, personaID)
	return scanPersona(row)
}

func (r *PersonaRepository) GetByIndex(ctx context.Context, index int) (*persona.Persona, error) {
	if index < 1 {
		return nil, nil
	}
	row := r.db.QueryRowContext(ctx, `
		SELECT persona_id, name, description, source_audio_id, created_at
		FROM personas ORDER BY created_at DESC, rowid DESC LIMIT 1 OFFSET ?
	`, index-1)
	return scanPersona(row)
}

func (r *PersonaRepository) Delete(ctx context.Context, personaID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM personas WHERE persona_id=?`, personaID)
	return err
}

func (r *PersonaRepository) Count(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM personas`).Scan(&n)
	return n, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPersona(row scanner) (*persona.Persona, error) {
	var p persona.Persona
	if err := row.Scan(&p.PersonaID, &p.Name, &p.Description, &p.SourceAudioID, &p.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}
