// Package gemini renders cover images with the Gemini API.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"google.golang.org/genai"

	"github.com/orhanxakarsu/music-agent/internal/domain/conversation"
)

const DefaultModel = "gemini-2.0-flash-exp-image-generation"

var ErrNoImage = errors.New("no image found in response")

// contentGenerator is the part of genai.Models used here.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// ImageGenerator implements workflow.ImageProvider.
type ImageGenerator struct {
	models contentGenerator
	model  string
	dir    string
	logger zerolog.Logger
}

// NewImageGenerator creates a Gemini client that writes images into dir.
func NewImageGenerator(ctx context.Context, apiKey, model, dir string, logger zerolog.Logger) (*ImageGenerator, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey, Backend: genai.BackendGeminiAPI})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return newImageGenerator(client.Models, model, dir, logger), nil
}

func newImageGenerator(models contentGenerator, model, dir string, logger zerolog.Logger) *ImageGenerator {
	if model == "" {
		model = DefaultModel
	}
	return &ImageGenerator{
		models: models,
		model:  model,
		dir:    dir,
		logger: logger.With().Str("service", "gemini").Logger(),
	}
}

// coverPrompt frames the visual description as album art.
func coverPrompt(description string) string {
	return "Create a minimalist album cover art. " + strings.TrimSpace(description) +
		"\nNo text on the image. Clean, professional, visually striking."
}

func (g *ImageGenerator) GenerateCover(ctx context.Context, prompt string) (conversation.Candidate, error) {
	resp, err := g.models.GenerateContent(ctx, g.model, genai.Text(coverPrompt(prompt)), &genai.GenerateContentConfig{
		ResponseModalities: []string{"TEXT", "IMAGE"},
	})
	if err != nil {
		return conversation.Candidate{}, fmt.Errorf("image generation failed: %w", err)
	}

	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part.Text != "" {
				g.logger.Debug().Str("text", part.Text).Msg("model comment")
			}
			if part.InlineData == nil || len(part.InlineData.Data) == 0 {
				continue
			}
			id := uuid.NewString()
			path := filepath.Join(g.dir, id+extension(part.InlineData.MIMEType))
			if err := os.MkdirAll(g.dir, 0o755); err != nil {
				return conversation.Candidate{}, err
			}
			if err := os.WriteFile(path, part.InlineData.Data, 0o644); err != nil {
				return conversation.Candidate{}, fmt.Errorf("failed to save image: %w", err)
			}
			g.logger.Info().Str("path", path).Msg("cover saved")
			return conversation.Candidate{ID: id, Path: path}, nil
		}
	}
	return conversation.Candidate{}, ErrNoImage
}

func extension(mime string) string {
	switch mime {
	case "image/jpeg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	}
	return ".png"
}
