package conversation

import (
	"errors"
	"testing"
)

func TestEnqueueAdvanceKeepsQueueDisjoint(t *testing.T) {
	s := NewState("905551112233")
	if err := s.Enqueue(TaskMusic, TaskCover, TaskVideo); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	head, ok := s.Peek()
	if !ok || head != TaskMusic {
		t.Fatalf("expected music at head, got %q", head)
	}

	next, ok := s.Advance()
	if !ok || next != TaskCover {
		t.Fatalf("expected cover after music, got %q", next)
	}
	if !s.IsCompleted(TaskMusic) {
		t.Fatalf("music should be completed")
	}
	if err := s.CheckQueue(); err != nil {
		t.Fatalf("queue invariant: %v", err)
	}

	s.Advance()
	s.Advance()
	if _, ok := s.Peek(); ok {
		t.Fatalf("queue should be empty")
	}
	if len(s.CompletedTasks) != 3 {
		t.Fatalf("expected 3 completed tasks, got %v", s.CompletedTasks)
	}
}

func TestEnqueueSkipsPendingAndReopensCompleted(t *testing.T) {
	s := NewState("id")
	_ = s.Enqueue(TaskMusic)
	s.Advance()
	_ = s.Enqueue(TaskCover, TaskCover, TaskMusic)

	if got := s.TaskQueue; len(got) != 2 || got[0] != TaskCover || got[1] != TaskMusic {
		t.Fatalf("unexpected queue %v", got)
	}
	if s.IsCompleted(TaskMusic) {
		t.Fatalf("re-enqueued music must leave the completed set")
	}
	if err := s.CheckQueue(); err != nil {
		t.Fatalf("queue invariant: %v", err)
	}
}

func TestEnqueueRejectsUnknownTask(t *testing.T) {
	s := NewState("id")
	err := s.Enqueue(TaskMusic, TaskKind("lyrics"))
	if !errors.Is(err, ErrUnknownTask) {
		t.Fatalf("expected ErrUnknownTask, got %v", err)
	}
	if len(s.TaskQueue) != 0 {
		t.Fatalf("rejected plan must not be partially applied: %v", s.TaskQueue)
	}
}

func TestCompleteRequiresHead(t *testing.T) {
	s := NewState("id")
	_ = s.Enqueue(TaskMusic, TaskCover)
	if err := s.Complete(TaskCover); !errors.Is(err, ErrNotAtHead) {
		t.Fatalf("expected ErrNotAtHead, got %v", err)
	}
	if err := s.Complete(TaskMusic); err != nil {
		t.Fatalf("complete music: %v", err)
	}
}

func TestReopenMovesTaskToHead(t *testing.T) {
	s := NewState("id")
	_ = s.Enqueue(TaskMusic, TaskCover)
	s.Advance()
	if err := s.Reopen(TaskMusic); err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if head, _ := s.Peek(); head != TaskMusic {
		t.Fatalf("expected music at head, got %q", head)
	}
	if s.IsCompleted(TaskMusic) {
		t.Fatalf("reopened task must not stay completed")
	}
	if len(s.TaskQueue) != 2 {
		t.Fatalf("unexpected queue %v", s.TaskQueue)
	}
}

func TestReplacePlan(t *testing.T) {
	s := NewState("id")
	_ = s.Enqueue(TaskMusic, TaskCover)
	s.Advance()
	if err := s.ReplacePlan(TaskVideo); err != nil {
		t.Fatalf("replace: %v", err)
	}
	if len(s.TaskQueue) != 1 || s.TaskQueue[0] != TaskVideo {
		t.Fatalf("unexpected queue %v", s.TaskQueue)
	}
	if !s.IsCompleted(TaskMusic) {
		t.Fatalf("completed tasks survive a new plan")
	}
}

func TestCheckQueueDetectsOverlap(t *testing.T) {
	s := NewState("id")
	s.TaskQueue = []TaskKind{TaskCover}
	s.CompletedTasks = []TaskKind{TaskCover}
	if err := s.CheckQueue(); !errors.Is(err, ErrQueueInvariant) {
		t.Fatalf("expected ErrQueueInvariant, got %v", err)
	}
}

func TestRetryLedger(t *testing.T) {
	s := NewState("id")
	if n := s.RecordFailure(StageGeneratingMusic, "timeout"); n != 1 {
		t.Fatalf("expected 1, got %d", n)
	}
	if s.RetriesExhausted(DefaultMaxRetries) {
		t.Fatalf("one failure must not exhaust retries")
	}
	s.RecordFailure(StageGeneratingCover, "quota")
	if !s.RetriesExhausted(DefaultMaxRetries) {
		t.Fatalf("cap is shared by all stages")
	}
	if s.LastError == nil || s.LastError.Stage != StageGeneratingCover {
		t.Fatalf("unexpected last error %+v", s.LastError)
	}
	s.ResetRetries()
	if s.RetryCount != 0 || s.LastError != nil {
		t.Fatalf("reset should clear ledger")
	}
}
