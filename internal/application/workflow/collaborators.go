package workflow

import (
	"context"

	"github.com/orhanxakarsu/music-agent/internal/domain/conversation"
	"github.com/orhanxakarsu/music-agent/internal/domain/decision"
)

// DecisionMaker produces the structured decisions that drive routing and
// generation parameters.
type DecisionMaker interface {
	Communicate(ctx context.Context, c decision.Context) (decision.Communication, error)
	Plan(ctx context.Context, c decision.Context) (decision.Plan, error)
	MusicParams(ctx context.Context, c decision.Context) (decision.MusicParams, error)
	CoverPrompt(ctx context.Context, c decision.Context) (decision.ImagePrompt, error)
	PersonaProfile(ctx context.Context, c decision.Context) (decision.PersonaProfile, error)
}

// MusicResult is the outcome of one music generation job.
type MusicResult struct {
	JobID  string
	Style  string
	Tracks []conversation.Candidate
}

// PersonaRequest registers a persona from a generated track.
type PersonaRequest struct {
	JobID       string
	AudioID     string
	Name        string
	Description string
}

// MusicProvider synthesizes songs. Calls block until the job finishes.
type MusicProvider interface {
	Generate(ctx context.Context, p decision.MusicParams) (*MusicResult, error)
	Remake(ctx context.Context, sourceURL string, p decision.MusicParams) (*MusicResult, error)
	CreatePersona(ctx context.Context, req PersonaRequest) (string, error)
}

// ImageProvider renders a cover image to disk.
type ImageProvider interface {
	GenerateCover(ctx context.Context, prompt string) (conversation.Candidate, error)
}

// VideoMuxer combines a still image and an audio track into a video file.
type VideoMuxer interface {
	Mux(ctx context.Context, imagePath, audioPath string) (conversation.Candidate, error)
}

// Messenger delivers messages to the user identified by identity.
type Messenger interface {
	SendText(ctx context.Context, identity, text string) error
	SendMedia(ctx context.Context, identity string, kind conversation.ArtifactKind, path, caption string) error
}

// LinkBuilder turns a stored artifact path into a public URL.
type LinkBuilder interface {
	URL(kind conversation.ArtifactKind, path string) string
}
