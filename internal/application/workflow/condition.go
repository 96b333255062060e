package workflow

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Knetic/govaluate"

	"github.com/orhanxakarsu/music-agent/internal/domain/conversation"
)

var ErrPrerequisite = errors.New("task prerequisite not met")

// prerequisite pairs an expression over the artifact flags with the message
// shown to the user when it does not hold.
type prerequisite struct {
	expr    string
	message string
}

var prerequisites = map[conversation.TaskKind]prerequisite{
	conversation.TaskCover: {
		expr:    "music_selected",
		message: "I need a selected song before I can make a cover. Pick one of the versions first.",
	},
	conversation.TaskVideo: {
		expr:    "music_selected && cover_generated",
		message: "A video needs both a selected song and a cover. Let's make those first.",
	},
	conversation.TaskRemake: {
		expr:    "music_generated",
		message: "There is no song to remake yet. Tell me what to create first.",
	},
	conversation.TaskPersonaSave: {
		expr:    "music_selected",
		message: "Choose a song first, then I can save its voice as a persona.",
	},
}

// CheckPrerequisite evaluates the prerequisite of task against s.
func CheckPrerequisite(task conversation.TaskKind, s *conversation.State) error {
	p, ok := prerequisites[task]
	if !ok {
		return nil
	}
	met, err := EvaluateCondition(p.expr, artifactParams(s))
	if err != nil {
		return fmt.Errorf("failed to evaluate prerequisite of %s: %w", task, err)
	}
	if !met {
		return &PrerequisiteError{Task: task, Message: p.message}
	}
	return nil
}

// EvaluateCondition evaluates a boolean expression against params.
// Empty condition returns true. Supports "true"/"false" literals.
func EvaluateCondition(condition string, params map[string]interface{}) (bool, error) {
	cond := strings.TrimSpace(condition)
	if cond == "" {
		return true, nil
	}
	switch strings.ToLower(cond) {
	case "true":
		return true, nil
	case "false":
		return false, nil
	}

	expr, err := govaluate.NewEvaluableExpression(cond)
	if err != nil {
		return false, err
	}
	result, err := expr.Evaluate(params)
	if err != nil {
		return false, err
	}
	v, ok := result.(bool)
	if !ok {
		return false, errors.New("condition did not evaluate to boolean")
	}
	return v, nil
}

func artifactParams(s *conversation.State) map[string]interface{} {
	nested := map[string]interface{}{}
	for _, kind := range []conversation.ArtifactKind{conversation.ArtifactMusic, conversation.ArtifactCover, conversation.ArtifactVideo} {
		a := s.Artifact(kind)
		nested[string(kind)] = map[string]interface{}{
			"generated":  a.Started(),
			"selected":   a.IsSelected(),
			"candidates": float64(len(a.Candidates)),
		}
	}
	params := map[string]interface{}{}
	flattenContext("", nested, params)
	return params
}

func flattenContext(prefix string, m map[string]interface{}, out map[string]interface{}) {
	for k, v := range m {
		key := k
		if prefix != "" {
			key = prefix + "_" + k
		}
		switch vv := v.(type) {
		case map[string]interface{}:
			flattenContext(key, vv, out)
		default:
			out[key] = vv
		}
	}
}
