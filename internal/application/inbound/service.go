// Package inbound admits transport events into the conversation engine.
package inbound

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/orhanxakarsu/music-agent/internal/application/dedup"
	"github.com/orhanxakarsu/music-agent/internal/application/workflow"
	"github.com/orhanxakarsu/music-agent/internal/domain/conversation"
)

// Status is the tag reported back to the transport for an event.
type Status string

const (
	StatusProcessed Status = Status(workflow.OutcomeProcessed)
	StatusBusy      Status = Status(workflow.OutcomeBusy)
	StatusDuplicate Status = Status(workflow.OutcomeDuplicate)
	StatusIgnored   Status = "ignored"
	StatusError     Status = "error"
)

// Message is a normalized inbound chat message.
type Message struct {
	Transport string
	Identity  string
	MessageID string
	Text      string
}

// Engine is the part of workflow.Engine the service drives.
type Engine interface {
	Submit(ctx context.Context, identity string, in conversation.Input) (*workflow.Outcome, error)
}

// Recorder counts event outcomes.
type Recorder interface {
	Event(transport, status string)
	DuplicateSuppressed()
}

type nopRecorder struct{}

func (nopRecorder) Event(string, string) {}
func (nopRecorder) DuplicateSuppressed() {}

// Service filters inbound messages and submits the rest to the engine.
type Service struct {
	engine    Engine
	filter    *dedup.Filter
	messenger workflow.Messenger
	allowed   map[string]struct{}
	recorder  Recorder
	logger    zerolog.Logger
}

// NewService creates an inbound service. An empty allow-list admits everyone.
func NewService(engine Engine, filter *dedup.Filter, messenger workflow.Messenger, allowed []string, recorder Recorder, logger zerolog.Logger) *Service {
	set := make(map[string]struct{}, len(allowed))
	for _, a := range allowed {
		if a = strings.TrimSpace(a); a != "" {
			set[a] = struct{}{}
		}
	}
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &Service{
		engine:    engine,
		filter:    filter,
		messenger: messenger,
		allowed:   set,
		recorder:  recorder,
		logger:    logger.With().Str("service", "inbound").Logger(),
	}
}

// Allowed reports whether identity may talk to the bot.
func (s *Service) Allowed(identity string) bool {
	if len(s.allowed) == 0 {
		return true
	}
	_, ok := s.allowed[identity]
	return ok
}

// Handle admits one message. It never returns an error; failures are
// reported as StatusError after notifying the user.
func (s *Service) Handle(ctx context.Context, msg Message) Status {
	status := s.handle(ctx, msg)
	s.recorder.Event(msg.Transport, string(status))
	return status
}

func (s *Service) handle(ctx context.Context, msg Message) Status {
	logger := s.logger.With().Str("identity", msg.Identity).Str("transport", msg.Transport).Logger()
	text := strings.TrimSpace(msg.Text)
	if msg.Identity == "" || text == "" {
		return StatusIgnored
	}
	if !s.Allowed(msg.Identity) {
		logger.Info().Msg("identity not in allow-list")
		return StatusIgnored
	}
	if s.filter.IsDuplicate(msg.Identity, text, msg.MessageID) {
		s.recorder.DuplicateSuppressed()
		logger.Info().Str("message_id", msg.MessageID).Msg("duplicate message ignored")
		return StatusDuplicate
	}

	out, err := s.engine.Submit(ctx, msg.Identity, conversation.Input{Text: text, MessageID: msg.MessageID})
	if err != nil {
		logger.Error().Err(err).Msg("failed to process message")
		s.notify(ctx, msg.Identity, workflow.MsgError)
		return StatusError
	}

	switch out.Status {
	case workflow.OutcomeBusy:
		s.notify(ctx, msg.Identity, workflow.MsgBusy)
		return StatusBusy
	case workflow.OutcomeDuplicate:
		return StatusDuplicate
	}
	if out.Checkpoint != nil {
		logger.Info().
			Str("status", string(out.Checkpoint.Status)).
			Str("stage", string(out.Checkpoint.State.Stage)).
			Str("next", out.Checkpoint.NextStep).
			Msg("message processed")
	}
	return StatusProcessed
}

func (s *Service) notify(ctx context.Context, identity, text string) {
	if err := s.messenger.SendText(ctx, identity, text); err != nil {
		s.logger.Warn().Err(err).Str("identity", identity).Msg("failed to send notice")
	}
}
