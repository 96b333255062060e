package workflow

import (
	"context"
	"fmt"

	"github.com/orhanxakarsu/music-agent/internal/domain/conversation"
)

// StepID names a node of the conversation graph.
type StepID string

const (
	StepAwaitReply      StepID = "await_reply"
	StepUnderstand      StepID = "understand"
	StepSendMessage     StepID = "send_message"
	StepChoosePersona   StepID = "choose_persona"
	StepPlan            StepID = "plan"
	StepGenerateMusic   StepID = "generate_music"
	StepPromptSelection StepID = "prompt_selection"
	StepAwaitSelection  StepID = "await_selection"
	StepRemakeMusic     StepID = "remake_music"
	StepGenerateCover   StepID = "generate_cover"
	StepGenerateVideo   StepID = "generate_video"
	StepSavePersona     StepID = "save_persona"
	StepDeliver         StepID = "deliver"
	StepSendMusic       StepID = "send_music"
	StepSendCover       StepID = "send_cover"
	StepSendVideo       StepID = "send_video"
	StepAbandon         StepID = "abandon"
	StepFinish          StepID = "finish"
)

// EntryStep receives the first message of every run.
const EntryStep = StepAwaitReply

// AllSteps lists every step of the graph.
func AllSteps() []StepID {
	return []StepID{
		StepAwaitReply, StepUnderstand, StepSendMessage, StepChoosePersona, StepPlan,
		StepGenerateMusic, StepPromptSelection, StepAwaitSelection, StepRemakeMusic,
		StepGenerateCover, StepGenerateVideo, StepSavePersona, StepDeliver,
		StepSendMusic, StepSendCover, StepSendVideo, StepAbandon, StepFinish,
	}
}

// IsSuspensionPoint reports whether a run may halt at id waiting for input.
func IsSuspensionPoint(id StepID) bool {
	return id == StepAwaitReply || id == StepAwaitSelection
}

// Kind is the shape of a step result.
type Kind int

const (
	kindInvalid Kind = iota
	KindAdvance
	KindSuspend
	KindTerminate
)

func (k Kind) String() string {
	switch k {
	case KindAdvance:
		return "advance"
	case KindSuspend:
		return "suspend"
	case KindTerminate:
		return "terminate"
	}
	return "invalid"
}

// Update is applied by the engine to a copy of the state after a step ran.
type Update func(s *conversation.State)

// Result is what a step returns to the engine.
type Result struct {
	Kind   Kind
	Update Update
	Next   StepID
}

// Advance continues the run at next.
func Advance(u Update, next StepID) Result {
	return Result{Kind: KindAdvance, Update: u, Next: next}
}

// Suspend halts the run until input arrives for at.
func Suspend(u Update, at StepID) Result {
	return Result{Kind: KindSuspend, Update: u, Next: at}
}

// Terminate ends the run.
func Terminate(u Update) Result {
	return Result{Kind: KindTerminate, Update: u}
}

// Updates chains several updates in order.
func Updates(us ...Update) Update {
	return func(s *conversation.State) {
		for _, u := range us {
			if u != nil {
				u(s)
			}
		}
	}
}

// StepFunc executes one step. It must not mutate run.State; changes are
// returned as the result's update.
type StepFunc func(ctx context.Context, run *Run) Result

// Registry maps every step to its implementation.
type Registry map[StepID]StepFunc

// Validate checks that every step of the graph is implemented and that no
// unknown step is registered.
func (r Registry) Validate() error {
	known := make(map[StepID]struct{})
	for _, id := range AllSteps() {
		known[id] = struct{}{}
		if r[id] == nil {
			return fmt.Errorf("%w: %s has no implementation", ErrUnknownStep, id)
		}
	}
	for id := range r {
		if _, ok := known[id]; !ok {
			return fmt.Errorf("%w: %s is not part of the graph", ErrUnknownStep, id)
		}
	}
	return nil
}
