package persona

import "context"

// Repository persists the persona catalog.
type Repository interface {
	Save(ctx context.Context, p *Persona) error
	// List returns personas newest first.
	List(ctx context.Context) ([]*Persona, error)
	Get(ctx context.Context, personaID string) (*Persona, error)
	// GetByIndex resolves a 1-based position in List order.
	GetByIndex(ctx context.Context, index int) (*Persona, error)
	Delete(ctx context.Context, personaID string) error
	Count(ctx context.Context) (int, error)
}
