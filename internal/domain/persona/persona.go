package persona

import (
	"errors"
	"strings"
	"time"
)

var ErrInvalidPersona = errors.New("persona id and name are required")

// Persona is a reusable voice profile registered with the music provider.
type Persona struct {
	PersonaID     string    `json:"personaId"`
	Name          string    `json:"name"`
	Description   string    `json:"description"`
	SourceAudioID string    `json:"sourceAudioId"`
	CreatedAt     time.Time `json:"createdAt"`
}

// Validate checks required fields.
func (p *Persona) Validate() error {
	if strings.TrimSpace(p.PersonaID) == "" || strings.TrimSpace(p.Name) == "" {
		return ErrInvalidPersona
	}
	return nil
}
