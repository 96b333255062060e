// Package openai makes the conversation decisions with an OpenAI chat model.
package openai

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"text/template"

	"github.com/rs/zerolog"
	goopenai "github.com/sashabaranov/go-openai"

	"github.com/orhanxakarsu/music-agent/internal/domain/decision"
)

//go:embed prompts/*.tmpl
var promptFS embed.FS

var prompts = template.Must(template.ParseFS(promptFS, "prompts/*.tmpl"))

var ErrEmptyReply = errors.New("model returned no content")

// chatCompleter is the part of the go-openai client used here.
type chatCompleter interface {
	CreateChatCompletion(ctx context.Context, req goopenai.ChatCompletionRequest) (goopenai.ChatCompletionResponse, error)
}

// Config configures the decision maker.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	// Repairs is how many times an invalid reply is sent back for correction.
	Repairs int
}

// DecisionMaker implements workflow.DecisionMaker.
type DecisionMaker struct {
	chat    chatCompleter
	model   string
	repairs int
	schemas map[string]*schema
	logger  zerolog.Logger
}

func NewDecisionMaker(cfg Config, logger zerolog.Logger) (*DecisionMaker, error) {
	clientCfg := goopenai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return newDecisionMaker(goopenai.NewClientWithConfig(clientCfg), cfg, logger)
}

func newDecisionMaker(chat chatCompleter, cfg Config, logger zerolog.Logger) (*DecisionMaker, error) {
	if cfg.Model == "" {
		cfg.Model = goopenai.GPT4o
	}
	if cfg.Repairs < 0 {
		cfg.Repairs = 0
	}
	types := map[string]interface{}{
		"communicate": &decision.Communication{},
		"plan":        &decision.Plan{},
		"music":       &decision.MusicParams{},
		"cover":       &decision.ImagePrompt{},
		"persona":     &decision.PersonaProfile{},
	}
	schemas := make(map[string]*schema, len(types))
	for name, v := range types {
		s, err := schemaFor(name, v)
		if err != nil {
			return nil, err
		}
		schemas[name] = s
	}
	return &DecisionMaker{
		chat:    chat,
		model:   cfg.Model,
		repairs: cfg.Repairs,
		schemas: schemas,
		logger:  logger.With().Str("service", "decisions").Logger(),
	}, nil
}

func (d *DecisionMaker) Communicate(ctx context.Context, c decision.Context) (decision.Communication, error) {
	var out decision.Communication
	err := d.ask(ctx, "communicate", "communicate", c, &out)
	return out, err
}

func (d *DecisionMaker) Plan(ctx context.Context, c decision.Context) (decision.Plan, error) {
	var out decision.Plan
	err := d.ask(ctx, "plan", "plan", c, &out)
	return out, err
}

// MusicParams uses the remake prompt when the user asked for a new take.
func (d *DecisionMaker) MusicParams(ctx context.Context, c decision.Context) (decision.MusicParams, error) {
	prompt := "music"
	if c.RemakeRequested || c.Brief.RemakeInstructions != "" {
		prompt = "remake"
	}
	var out decision.MusicParams
	err := d.ask(ctx, prompt, "music", c, &out)
	return out, err
}

func (d *DecisionMaker) CoverPrompt(ctx context.Context, c decision.Context) (decision.ImagePrompt, error) {
	var out decision.ImagePrompt
	err := d.ask(ctx, "cover", "cover", c, &out)
	return out, err
}

func (d *DecisionMaker) PersonaProfile(ctx context.Context, c decision.Context) (decision.PersonaProfile, error) {
	var out decision.PersonaProfile
	err := d.ask(ctx, "persona", "persona", c, &out)
	return out, err
}

func render(name string, c decision.Context) (string, error) {
	var b bytes.Buffer
	if err := prompts.ExecuteTemplate(&b, name, c); err != nil {
		return "", fmt.Errorf("failed to render %s: %w", name, err)
	}
	return strings.TrimSpace(b.String()), nil
}

// ask renders the prompt pair, requests a JSON reply and decodes it into out
// once it validates against the schema.
func (d *DecisionMaker) ask(ctx context.Context, prompt, schemaName string, c decision.Context, out interface{}) error {
	sch := d.schemas[schemaName]
	system, err := render(prompt+".system", c)
	if err != nil {
		return err
	}
	user, err := render(prompt+".user", c)
	if err != nil {
		return err
	}
	system += "\n\nRespond only with a JSON object that matches this JSON schema:\n" + string(sch.raw)

	messages := []goopenai.ChatCompletionMessage{
		{Role: goopenai.ChatMessageRoleSystem, Content: system},
		{Role: goopenai.ChatMessageRoleUser, Content: user},
	}
	for attempt := 0; ; attempt++ {
		reply, err := d.complete(ctx, messages)
		if err != nil {
			return err
		}
		verr := sch.validate(reply)
		if verr == nil {
			if err := json.Unmarshal([]byte(reply), out); err != nil {
				return fmt.Errorf("failed to decode %s decision: %w", schemaName, err)
			}
			return nil
		}
		if attempt >= d.repairs {
			return fmt.Errorf("%w: %s: %v", decision.ErrInvalidDecision, schemaName, verr)
		}
		d.logger.Warn().Err(verr).Str("decision", schemaName).Int("attempt", attempt+1).Msg("invalid reply, asking for a fix")
		messages = append(messages,
			goopenai.ChatCompletionMessage{Role: goopenai.ChatMessageRoleAssistant, Content: reply},
			goopenai.ChatCompletionMessage{
				Role:    goopenai.ChatMessageRoleUser,
				Content: fmt.Sprintf("Your response did not match the required JSON schema. Error: %s\n\nReply again with valid JSON only.", verr),
			},
		)
	}
}

func (d *DecisionMaker) complete(ctx context.Context, messages []goopenai.ChatCompletionMessage) (string, error) {
	resp, err := d.chat.CreateChatCompletion(ctx, goopenai.ChatCompletionRequest{
		Model:          d.model,
		Messages:       messages,
		ResponseFormat: &goopenai.ChatCompletionResponseFormat{Type: goopenai.ChatCompletionResponseFormatTypeJSONObject},
	})
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", ErrEmptyReply
	}
	return resp.Choices[0].Message.Content, nil
}
