package decision

import (
	"errors"
	"fmt"
	"strings"

	"github.com/orhanxakarsu/music-agent/internal/domain/conversation"
)

// Action is the routing choice of the communication decision.
type Action string

const (
	ActionSendMessage   Action = "send_message"
	ActionSendMusic     Action = "send_music"
	ActionSendCover     Action = "send_cover"
	ActionSendVideo     Action = "send_video"
	ActionChoosePersona Action = "choice_persona"
	ActionPlan          Action = "task_planner"
	ActionWaitUser      Action = "wait_user"
	ActionFinish        Action = "finish"
)

var ErrInvalidDecision = errors.New("invalid decision")

// Valid reports whether the action is known.
func (a Action) Valid() bool {
	switch a {
	case ActionSendMessage, ActionSendMusic, ActionSendCover, ActionSendVideo,
		ActionChoosePersona, ActionPlan, ActionWaitUser, ActionFinish:
		return true
	}
	return false
}

// Communication decides what the bot does next in the conversation.
type Communication struct {
	Action      Action `json:"action" jsonschema:"enum=send_message,enum=send_music,enum=send_cover,enum=send_video,enum=choice_persona,enum=task_planner,enum=wait_user,enum=finish,description=Action to take"`
	Description string `json:"description" jsonschema:"description=Detailed explanation of the action or message to send to user"`
}

func (c Communication) Validate() error {
	if !c.Action.Valid() {
		return fmt.Errorf("%w: unknown action %q", ErrInvalidDecision, c.Action)
	}
	if c.Action == ActionSendMessage && strings.TrimSpace(c.Description) == "" {
		return fmt.Errorf("%w: send_message without text", ErrInvalidDecision)
	}
	return nil
}

// Plan is the ordered production plan for a request.
type Plan struct {
	Tasks              []conversation.TaskKind `json:"tasks" jsonschema:"description=List of tasks to perform in order"`
	MusicDescription   string                  `json:"music_description,omitempty" jsonschema:"description=Detailed description for music generation"`
	CoverDescription   string                  `json:"cover_description,omitempty" jsonschema:"description=Description for cover generation"`
	RemakeInstructions string                  `json:"remake_instructions,omitempty" jsonschema:"description=Instructions for a remake"`
	ResponseToUser     string                  `json:"response_to_user" jsonschema:"description=Message telling the user that processing started"`
}

func (p Plan) Validate() error {
	for _, t := range p.Tasks {
		if !t.Valid() {
			return fmt.Errorf("%w: unknown task %q", ErrInvalidDecision, t)
		}
	}
	return nil
}

// Brief converts the plan descriptions into the state brief.
func (p Plan) Brief() conversation.Brief {
	return conversation.Brief{
		MusicDescription:   p.MusicDescription,
		CoverDescription:   p.CoverDescription,
		RemakeInstructions: p.RemakeInstructions,
	}
}

// Default weights used when the decision maker leaves them unset.
const DefaultWeight = 0.65

// MusicParams are the generation parameters for one song.
type MusicParams struct {
	Prompt              string  `json:"prompt" jsonschema:"description=Song lyrics or description"`
	Style               string  `json:"style" jsonschema:"description=Music style"`
	Title               string  `json:"title" jsonschema:"description=Song title"`
	Instrumental        bool    `json:"instrumental" jsonschema:"description=Is it instrumental?"`
	NegativeTags        string  `json:"negative_tags" jsonschema:"description=Unwanted characteristics"`
	VocalGender         string  `json:"vocal_gender,omitempty" jsonschema:"enum=f,enum=m"`
	StyleWeight         float64 `json:"style_weight" jsonschema:"minimum=0,maximum=1"`
	WeirdnessConstraint float64 `json:"weirdness_constraint" jsonschema:"minimum=0,maximum=1"`
	AudioWeight         float64 `json:"audio_weight" jsonschema:"minimum=0,maximum=1"`
	PersonaID           string  `json:"-"`
}

// Normalize fills unset weights and clamps the rest into [0,1].
func (m *MusicParams) Normalize() {
	m.StyleWeight = weight(m.StyleWeight)
	m.WeirdnessConstraint = weight(m.WeirdnessConstraint)
	m.AudioWeight = weight(m.AudioWeight)
	if m.VocalGender != "m" && m.VocalGender != "f" {
		m.VocalGender = ""
	}
}

func (m MusicParams) Validate() error {
	if strings.TrimSpace(m.Prompt) == "" || strings.TrimSpace(m.Style) == "" || strings.TrimSpace(m.Title) == "" {
		return fmt.Errorf("%w: prompt, style and title are required", ErrInvalidDecision)
	}
	return nil
}

func weight(v float64) float64 {
	switch {
	case v <= 0:
		return DefaultWeight
	case v > 1:
		return 1
	}
	return v
}

// ImagePrompt is the visual prompt for a cover.
type ImagePrompt struct {
	Prompt     string `json:"prompt" jsonschema:"description=Visual generation prompt (English)"`
	StyleNotes string `json:"style_notes,omitempty" jsonschema:"description=Style notes"`
}

func (p ImagePrompt) Validate() error {
	if strings.TrimSpace(p.Prompt) == "" {
		return fmt.Errorf("%w: empty image prompt", ErrInvalidDecision)
	}
	return nil
}

// Text joins the prompt and style notes.
func (p ImagePrompt) Text() string {
	if p.StyleNotes == "" {
		return p.Prompt
	}
	return p.Prompt + "\nStyle: " + p.StyleNotes
}

// PersonaProfile names a persona derived from a selected song.
type PersonaProfile struct {
	Name        string `json:"name" jsonschema:"description=Name reflecting the persona's personality"`
	Description string `json:"description" jsonschema:"description=Personality description of the persona"`
}

func (p PersonaProfile) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("%w: persona name is required", ErrInvalidDecision)
	}
	return nil
}
