package workflow

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/orhanxakarsu/music-agent/internal/domain/conversation"
	"github.com/orhanxakarsu/music-agent/internal/domain/decision"
	"github.com/orhanxakarsu/music-agent/internal/domain/persona"
)

// PrerequisiteError explains which artifact a task is missing.
type PrerequisiteError struct {
	Task    conversation.TaskKind
	Message string
}

func (e *PrerequisiteError) Error() string {
	return fmt.Sprintf("%s: %s", e.Task, e.Message)
}

func (e *PrerequisiteError) Is(target error) bool {
	return target == ErrPrerequisite
}

// Deps are the collaborators used by the steps.
type Deps struct {
	Decisions  DecisionMaker
	Music      MusicProvider
	Images     ImageProvider
	Video      VideoMuxer
	Messenger  Messenger
	Personas   persona.Repository
	Links      LinkBuilder
	MaxRetries int
}

// Steps implements every step of the conversation graph.
type Steps struct {
	decisions  DecisionMaker
	music      MusicProvider
	images     ImageProvider
	video      VideoMuxer
	messenger  Messenger
	personas   persona.Repository
	links      LinkBuilder
	maxRetries int
	logger     zerolog.Logger
}

func NewSteps(d Deps, logger zerolog.Logger) *Steps {
	maxRetries := d.MaxRetries
	if maxRetries <= 0 {
		maxRetries = conversation.DefaultMaxRetries
	}
	return &Steps{
		decisions:  d.Decisions,
		music:      d.Music,
		images:     d.Images,
		video:      d.Video,
		messenger:  d.Messenger,
		personas:   d.Personas,
		links:      d.Links,
		maxRetries: maxRetries,
		logger:     logger.With().Str("service", "steps").Logger(),
	}
}

// Registry returns the transition table of the graph.
func (s *Steps) Registry() Registry {
	return Registry{
		StepAwaitReply:      s.awaitReply,
		StepUnderstand:      s.understand,
		StepSendMessage:     s.sendMessage,
		StepChoosePersona:   s.choosePersona,
		StepPlan:            s.plan,
		StepGenerateMusic:   s.generateMusic,
		StepPromptSelection: s.promptSelection,
		StepAwaitSelection:  s.awaitSelection,
		StepRemakeMusic:     s.remakeMusic,
		StepGenerateCover:   s.generateCover,
		StepGenerateVideo:   s.generateVideo,
		StepSavePersona:     s.savePersona,
		StepDeliver:         s.deliver,
		StepSendMusic:       s.sendMedia(conversation.ArtifactMusic),
		StepSendCover:       s.sendMedia(conversation.ArtifactCover),
		StepSendVideo:       s.sendMedia(conversation.ArtifactVideo),
		StepAbandon:         s.abandon,
		StepFinish:          s.finish,
	}
}

func (s *Steps) context(run *Run) decision.Context {
	return decision.NewContext(run.State, s.maxRetries)
}

// say sends text once per step execution under the given effect name.
func (s *Steps) say(ctx context.Context, run *Run, effect, text string) error {
	return run.Once(ctx, effect, func(ctx context.Context) error {
		return s.messenger.SendText(ctx, run.Identity, text)
	})
}

// fail records a transient failure. Below the retry cap the run goes back to
// the decision point; at the cap the plan is abandoned.
func (s *Steps) fail(run *Run, stage conversation.Stage, cause error) Result {
	attempt := run.State.RetryCount + 1
	run.logger.Warn().Err(cause).Str("stage", string(stage)).Int("retry_count", attempt).Msg("step failed")

	update := func(st *conversation.State) {
		st.RecordFailure(stage, cause.Error())
		st.AppendHistory(conversation.RoleSystem, fmt.Sprintf("%s failed (attempt %d/%d): %v", stageLabel(stage), attempt, s.maxRetries, cause))
	}
	if attempt >= s.maxRetries {
		return Advance(update, StepAbandon)
	}
	if run.Step == StepUnderstand || run.Step == StepSendMessage {
		return Suspend(update, StepAwaitReply)
	}
	return Advance(update, StepUnderstand)
}

// reject ends the run because a task cannot run in the current state.
func (s *Steps) reject(ctx context.Context, run *Run, cause error) Result {
	text := MsgError
	var pe *PrerequisiteError
	if errors.As(cause, &pe) {
		text = pe.Message
	}
	if err := s.say(ctx, run, "rejected", text); err != nil {
		run.logger.Warn().Err(err).Msg("failed to explain rejected task")
	}
	run.logger.Info().Err(cause).Msg("task rejected")
	stage := run.State.Stage
	return Terminate(func(st *conversation.State) {
		st.LastError = &conversation.LastError{Stage: stage, Message: cause.Error()}
		st.ClearQueue()
		st.Stage = conversation.StageIdle
		st.AppendHistory(conversation.RoleAssistant, text)
	})
}

// expect checks that kind heads the queue and its prerequisites hold.
func (s *Steps) expect(run *Run, kind conversation.TaskKind) error {
	head, ok := run.State.Peek()
	if !ok || head != kind {
		return fmt.Errorf("%w: %s", conversation.ErrNotAtHead, kind)
	}
	return CheckPrerequisite(kind, &run.State)
}

// route picks the step for the head of the queue, or delivery when empty.
func route(st *conversation.State) StepID {
	head, ok := st.Peek()
	if !ok {
		return StepDeliver
	}
	switch head {
	case conversation.TaskMusic:
		return StepGenerateMusic
	case conversation.TaskCover:
		return StepGenerateCover
	case conversation.TaskVideo:
		return StepGenerateVideo
	case conversation.TaskRemake:
		return StepRemakeMusic
	case conversation.TaskPersonaSave:
		return StepSavePersona
	}
	return StepDeliver
}

// stageFor is the stage a conversation is in while step runs. The engine
// records it before the step starts.
func stageFor(step StepID, current conversation.Stage) conversation.Stage {
	switch step {
	case StepGenerateMusic, StepRemakeMusic:
		return conversation.StageGeneratingMusic
	case StepGenerateCover:
		return conversation.StageGeneratingCover
	case StepGenerateVideo:
		return conversation.StageGeneratingVideo
	case StepDeliver:
		return conversation.StageDelivering
	}
	return current
}

// then applies u to a copy of the run state and routes on the result.
func then(run *Run, u Update) (Update, StepID) {
	preview := run.State.Clone()
	u(&preview)
	next := route(&preview)
	return Updates(u, func(st *conversation.State) {
		st.PendingTask, _ = st.Peek()
	}), next
}
