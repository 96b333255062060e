package conversation

import (
	"errors"
	"fmt"
)

// TaskKind tags an entry of the task queue.
type TaskKind string

const (
	TaskMusic       TaskKind = "music"
	TaskCover       TaskKind = "cover"
	TaskVideo       TaskKind = "video"
	TaskPersonaSave TaskKind = "persona_save"
	TaskRemake      TaskKind = "remake"
)

var (
	ErrUnknownTask    = errors.New("unknown task kind")
	ErrNotAtHead      = errors.New("task is not at the head of the queue")
	ErrQueueInvariant = errors.New("task queue invariant violated")
)

// Valid reports whether the task kind is known.
func (k TaskKind) Valid() bool {
	switch k {
	case TaskMusic, TaskCover, TaskVideo, TaskPersonaSave, TaskRemake:
		return true
	}
	return false
}

// Enqueue appends tasks in order. Tasks already pending are skipped, and a
// task that was completed earlier is re-opened.
func (s *State) Enqueue(tasks ...TaskKind) error {
	for _, t := range tasks {
		if !t.Valid() {
			return fmt.Errorf("%w: %q", ErrUnknownTask, t)
		}
	}
	for _, t := range tasks {
		if indexOf(s.TaskQueue, t) >= 0 {
			continue
		}
		s.CompletedTasks = remove(s.CompletedTasks, t)
		s.TaskQueue = append(s.TaskQueue, t)
	}
	return nil
}

// ReplacePlan discards pending tasks and enqueues a new plan.
func (s *State) ReplacePlan(tasks ...TaskKind) error {
	next := s.Clone()
	next.TaskQueue = []TaskKind{}
	if err := next.Enqueue(tasks...); err != nil {
		return err
	}
	s.TaskQueue = next.TaskQueue
	s.CompletedTasks = next.CompletedTasks
	return nil
}

// Peek returns the head of the queue.
func (s *State) Peek() (TaskKind, bool) {
	if len(s.TaskQueue) == 0 {
		return "", false
	}
	return s.TaskQueue[0], true
}

// Advance moves the head into the completed set and returns the new head.
func (s *State) Advance() (TaskKind, bool) {
	if len(s.TaskQueue) == 0 {
		return "", false
	}
	head := s.TaskQueue[0]
	s.TaskQueue = append([]TaskKind{}, s.TaskQueue[1:]...)
	if indexOf(s.CompletedTasks, head) < 0 {
		s.CompletedTasks = append(s.CompletedTasks, head)
	}
	return s.Peek()
}

// Complete advances the queue, requiring kind to be the head.
func (s *State) Complete(kind TaskKind) error {
	head, ok := s.Peek()
	if !ok || head != kind {
		return fmt.Errorf("%w: %s", ErrNotAtHead, kind)
	}
	s.Advance()
	return nil
}

// Reopen puts kind back at the head of the queue so it runs again.
func (s *State) Reopen(kind TaskKind) error {
	if !kind.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownTask, kind)
	}
	s.CompletedTasks = remove(s.CompletedTasks, kind)
	s.TaskQueue = append([]TaskKind{kind}, remove(s.TaskQueue, kind)...)
	return nil
}

// ClearQueue drops all pending tasks.
func (s *State) ClearQueue() {
	s.TaskQueue = []TaskKind{}
	s.PendingTask = ""
}

// IsCompleted reports whether kind is in the completed set.
func (s *State) IsCompleted(kind TaskKind) bool {
	return indexOf(s.CompletedTasks, kind) >= 0
}

// CheckQueue verifies the pending queue has no duplicates and is disjoint
// from the completed set.
func (s *State) CheckQueue() error {
	seen := make(map[TaskKind]struct{}, len(s.TaskQueue))
	for _, t := range s.TaskQueue {
		if !t.Valid() {
			return fmt.Errorf("%w: %q", ErrUnknownTask, t)
		}
		if _, dup := seen[t]; dup {
			return fmt.Errorf("%w: %s queued twice", ErrQueueInvariant, t)
		}
		seen[t] = struct{}{}
	}
	for _, t := range s.CompletedTasks {
		if _, both := seen[t]; both {
			return fmt.Errorf("%w: %s both pending and completed", ErrQueueInvariant, t)
		}
	}
	return nil
}

func indexOf(list []TaskKind, t TaskKind) int {
	for i, v := range list {
		if v == t {
			return i
		}
	}
	return -1
}

func remove(list []TaskKind, t TaskKind) []TaskKind {
	out := make([]TaskKind, 0, len(list))
	for _, v := range list {
		if v != t {
			out = append(out, v)
		}
	}
	return out
}
