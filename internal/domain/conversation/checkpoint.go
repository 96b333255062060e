package conversation

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Status is the run status recorded in a checkpoint.
type Status string

const (
	StatusRunning    Status = "running"
	StatusSuspended  Status = "suspended"
	StatusTerminated Status = "terminated"
)

const consumedLimit = 32

var (
	ErrVersionConflict   = errors.New("checkpoint version conflict")
	ErrInvalidCheckpoint = errors.New("invalid checkpoint")
)

// Input is an inbound user message handed to a step.
type Input struct {
	Text      string `json:"text"`
	MessageID string `json:"messageId,omitempty"`
}

// Checkpoint is the persisted snapshot of a conversation after a step.
//
// NextStep is the step to run when the run continues. For a suspended
// checkpoint it is the step waiting for input; for a running checkpoint it is
// the step that was about to run, together with the input it was given.
type Checkpoint struct {
	Identity  string    `json:"identity"`
	Epoch     uuid.UUID `json:"epoch"`
	Version   int64     `json:"version"`
	Status    Status    `json:"status"`
	NextStep  string    `json:"nextStep,omitempty"`
	Input     *Input    `json:"input,omitempty"`
	State     State     `json:"state"`
	Consumed  []string  `json:"consumed,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// NewCheckpoint creates the first checkpoint of a conversation.
func NewCheckpoint(identity string, now time.Time) *Checkpoint {
	return &Checkpoint{
		Identity:  identity,
		Epoch:     uuid.New(),
		Status:    StatusTerminated,
		State:     NewState(identity),
		UpdatedAt: now,
	}
}

// Suspended reports whether the conversation waits for user input.
func (c *Checkpoint) Suspended() bool {
	return c.Status == StatusSuspended
}

// Stale reports whether a running checkpoint outlived its lease.
func (c *Checkpoint) Stale(now time.Time, lease time.Duration) bool {
	return c.Status == StatusRunning && now.Sub(c.UpdatedAt) > lease
}

// HasConsumed reports whether messageID was already processed.
func (c *Checkpoint) HasConsumed(messageID string) bool {
	if messageID == "" {
		return false
	}
	for _, id := range c.Consumed {
		if id == messageID {
			return true
		}
	}
	return false
}

// MarkConsumed remembers messageID, keeping only the most recent ids.
func (c *Checkpoint) MarkConsumed(messageID string) {
	if messageID == "" || c.HasConsumed(messageID) {
		return
	}
	c.Consumed = append(c.Consumed, messageID)
	if len(c.Consumed) > consumedLimit {
		c.Consumed = append([]string{}, c.Consumed[len(c.Consumed)-consumedLimit:]...)
	}
}

// Clone returns a deep copy.
func (c *Checkpoint) Clone() *Checkpoint {
	out := *c
	out.State = c.State.Clone()
	out.Consumed = append([]string(nil), c.Consumed...)
	if c.Input != nil {
		in := *c.Input
		out.Input = &in
	}
	return &out
}

// Validate checks the checkpoint before it is persisted.
func (c *Checkpoint) Validate() error {
	if c.Identity == "" {
		return fmt.Errorf("%w: identity is required", ErrInvalidCheckpoint)
	}
	if c.State.Identity != c.Identity {
		return fmt.Errorf("%w: state belongs to %q", ErrInvalidCheckpoint, c.State.Identity)
	}
	switch c.Status {
	case StatusRunning, StatusSuspended:
		if c.NextStep == "" {
			return fmt.Errorf("%w: %s checkpoint without next step", ErrInvalidCheckpoint, c.Status)
		}
	case StatusTerminated:
	default:
		return fmt.Errorf("%w: unknown status %q", ErrInvalidCheckpoint, c.Status)
	}
	if err := c.State.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidCheckpoint, err)
	}
	return nil
}
