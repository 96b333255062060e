package persona

import (
	"errors"
	"testing"
)

func TestPersonaValidate(t *testing.T) {
	p := &Persona{PersonaID: "p-1", Name: "Warm Alto"}
	if err := p.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	p.Name = "  "
	if err := p.Validate(); !errors.Is(err, ErrInvalidPersona) {
		t.Fatalf("expected ErrInvalidPersona, got %v", err)
	}
}
