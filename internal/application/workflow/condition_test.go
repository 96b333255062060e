package workflow

import (
	"errors"
	"testing"

	"github.com/orhanxakarsu/music-agent/internal/domain/conversation"
)

func TestEvaluateCondition(t *testing.T) {
	params := map[string]interface{}{"music_selected": true, "cover_generated": false}

	cases := map[string]bool{
		"":                                  true,
		"true":                              true,
		"FALSE":                             false,
		"music_selected":                    true,
		"music_selected && cover_generated": false,
		"music_selected || cover_generated": true,
	}
	for cond, want := range cases {
		got, err := EvaluateCondition(cond, params)
		if err != nil {
			t.Fatalf("EvaluateCondition(%q): %v", cond, err)
		}
		if got != want {
			t.Fatalf("EvaluateCondition(%q) = %v, want %v", cond, got, want)
		}
	}

	if _, err := EvaluateCondition("music_selected +", params); err == nil {
		t.Fatalf("expected parse error")
	}
	if _, err := EvaluateCondition("1 + 1", params); err == nil {
		t.Fatalf("expected non-boolean error")
	}
}

func TestCheckPrerequisite(t *testing.T) {
	st := conversation.NewState("u")
	if err := CheckPrerequisite(conversation.TaskMusic, &st); err != nil {
		t.Fatalf("music has no prerequisite: %v", err)
	}

	err := CheckPrerequisite(conversation.TaskVideo, &st)
	if !errors.Is(err, ErrPrerequisite) {
		t.Fatalf("expected prerequisite error, got %v", err)
	}
	var pe *PrerequisiteError
	if !errors.As(err, &pe) || pe.Task != conversation.TaskVideo || pe.Message == "" {
		t.Fatalf("unexpected error %#v", err)
	}

	if err := CheckPrerequisite(conversation.TaskRemake, &st); err == nil {
		t.Fatalf("remake without music should fail")
	}

	st.Music.SetCandidates([]conversation.Candidate{{ID: "a"}, {ID: "b"}})
	if err := CheckPrerequisite(conversation.TaskRemake, &st); err != nil {
		t.Fatalf("remake after generation: %v", err)
	}
	if err := CheckPrerequisite(conversation.TaskCover, &st); err == nil {
		t.Fatalf("cover before selection should fail")
	}

	if err := st.Music.Select(1); err != nil {
		t.Fatalf("select: %v", err)
	}
	if err := CheckPrerequisite(conversation.TaskCover, &st); err != nil {
		t.Fatalf("cover after selection: %v", err)
	}
	if err := CheckPrerequisite(conversation.TaskVideo, &st); err == nil {
		t.Fatalf("video without cover should fail")
	}

	st.Cover.SetCandidates([]conversation.Candidate{{ID: "c"}})
	if err := CheckPrerequisite(conversation.TaskVideo, &st); err != nil {
		t.Fatalf("video with song and cover: %v", err)
	}
}
