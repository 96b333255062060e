package workflow

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/orhanxakarsu/music-agent/internal/domain/conversation"
	"github.com/orhanxakarsu/music-agent/internal/domain/decision"
)

// awaitReply consumes a user message. A number sent after a persona list
// picks that persona.
func (s *Steps) awaitReply(_ context.Context, run *Run) Result {
	text := run.Text()
	if text == "" {
		return Suspend(nil, StepAwaitReply)
	}
	options := run.State.PersonaOptions
	return Advance(func(st *conversation.State) {
		st.AppendHistory(conversation.RoleUser, text)
		st.UserRequest = text
		if len(options) == 0 {
			return
		}
		if n, err := strconv.Atoi(strings.TrimSuffix(text, ".")); err == nil && n >= 1 && n <= len(options) {
			picked := options[n-1]
			st.SelectedPersonaID = picked.PersonaID
			st.AppendHistory(conversation.RoleSystem, fmt.Sprintf("Persona %q selected for the next songs", picked.Name))
		}
		st.PersonaOptions = nil
	}, StepUnderstand)
}

// understand asks the decision maker what to do with the conversation.
func (s *Steps) understand(ctx context.Context, run *Run) Result {
	d, err := s.decisions.Communicate(ctx, s.context(run))
	if err == nil {
		err = d.Validate()
	}
	if err != nil {
		if sayErr := s.say(ctx, run, "error", MsgError); sayErr != nil {
			run.logger.Warn().Err(sayErr).Msg("failed to report decision error")
		}
		return s.fail(run, conversation.StageUnderstanding, fmt.Errorf("failed to decide next action: %w", err))
	}
	run.logger.Info().Str("action", string(d.Action)).Msg("decision made")

	update := func(st *conversation.State) {
		st.Stage = conversation.StageUnderstanding
	}
	switch d.Action {
	case decision.ActionSendMessage:
		return Advance(Updates(update, func(st *conversation.State) { st.Reply = d.Description }), StepSendMessage)
	case decision.ActionSendMusic:
		return Advance(update, StepSendMusic)
	case decision.ActionSendCover:
		return Advance(update, StepSendCover)
	case decision.ActionSendVideo:
		return Advance(update, StepSendVideo)
	case decision.ActionChoosePersona:
		return Advance(update, StepChoosePersona)
	case decision.ActionPlan:
		return Advance(update, StepPlan)
	case decision.ActionFinish:
		return Advance(update, StepFinish)
	}
	return Suspend(update, StepAwaitReply)
}

func (s *Steps) sendMessage(ctx context.Context, run *Run) Result {
	text := run.State.Reply
	if text == "" {
		return Suspend(nil, StepAwaitReply)
	}
	if err := s.say(ctx, run, "reply", text); err != nil {
		return s.fail(run, run.State.Stage, fmt.Errorf("failed to send message: %w", err))
	}
	return Suspend(func(st *conversation.State) {
		st.AppendHistory(conversation.RoleAssistant, text)
		st.Reply = ""
	}, StepAwaitReply)
}

func (s *Steps) choosePersona(ctx context.Context, run *Run) Result {
	list, err := s.personas.List(ctx)
	if err != nil {
		return s.fail(run, run.State.Stage, fmt.Errorf("failed to list personas: %w", err))
	}
	if len(list) == 0 {
		if err := s.say(ctx, run, "no-personas", msgNoPersonas); err != nil {
			return s.fail(run, run.State.Stage, err)
		}
		return Suspend(func(st *conversation.State) {
			st.AppendHistory(conversation.RoleAssistant, msgNoPersonas)
		}, StepAwaitReply)
	}

	var b strings.Builder
	b.WriteString("Saved Personas:\n\n")
	options := make([]conversation.PersonaOption, 0, len(list))
	for i, p := range list {
		desc := p.Description
		if desc == "" {
			desc = "No description"
		}
		fmt.Fprintf(&b, "%d. %s\n   %s\n\n", i+1, p.Name, desc)
		options = append(options, conversation.PersonaOption{PersonaID: p.PersonaID, Name: p.Name})
	}
	b.WriteString(msgPersonaPrompt)
	text := b.String()

	if err := s.say(ctx, run, "persona-list", text); err != nil {
		return s.fail(run, run.State.Stage, err)
	}
	return Suspend(func(st *conversation.State) {
		st.AppendHistory(conversation.RoleAssistant, text)
		st.PersonaOptions = options
	}, StepAwaitReply)
}

// plan turns the request into an ordered task queue.
func (s *Steps) plan(ctx context.Context, run *Run) Result {
	p, err := s.decisions.Plan(ctx, s.context(run))
	if err == nil {
		err = p.Validate()
	}
	if err != nil {
		return s.fail(run, conversation.StagePlanning, fmt.Errorf("failed to plan tasks: %w", err))
	}
	run.logger.Info().Interface("tasks", p.Tasks).Msg("tasks planned")

	if p.ResponseToUser != "" {
		if err := s.say(ctx, run, "plan", p.ResponseToUser); err != nil {
			run.logger.Warn().Err(err).Msg("failed to acknowledge plan")
		}
	}

	update := func(st *conversation.State) {
		st.Stage = conversation.StagePlanning
		st.Brief = p.Brief()
		st.RemakeRequested = false
		_ = st.ReplacePlan(p.Tasks...)
		if p.ResponseToUser != "" {
			st.AppendHistory(conversation.RoleAssistant, p.ResponseToUser)
		}
	}
	if len(p.Tasks) == 0 {
		return Suspend(update, StepAwaitReply)
	}
	u, next := then(run, update)
	return Advance(u, next)
}

// abandon gives up on the current plan after repeated failures.
func (s *Steps) abandon(ctx context.Context, run *Run) Result {
	stage := run.State.Stage
	if run.State.LastError != nil {
		stage = run.State.LastError.Stage
	}
	text := fmt.Sprintf(msgGiveUp, stageLabel(stage))
	if err := s.say(ctx, run, "apology", text); err != nil {
		run.logger.Warn().Err(err).Msg("failed to send apology")
	}
	run.logger.Warn().Str("stage", string(stage)).Msg("retries exhausted, plan abandoned")
	return Terminate(func(st *conversation.State) {
		st.AppendHistory(conversation.RoleAssistant, text)
		st.ClearQueue()
		st.RetryCount = 0
		st.RemakeRequested = false
		st.Stage = conversation.StageIdle
	})
}

func (s *Steps) finish(_ context.Context, run *Run) Result {
	return Terminate(func(st *conversation.State) {
		st.Stage = conversation.StageCompleted
		st.AppendHistory(conversation.RoleSystem, "Conversation finished")
	})
}
