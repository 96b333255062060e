package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/orhanxakarsu/music-agent/internal/domain/conversation"
)

var (
	ErrUnknownStep       = errors.New("unknown step")
	ErrIllegalSuspension = errors.New("step suspended outside a suspension point")
	ErrIllegalAdvance    = errors.New("step advanced into a suspension point")
	ErrInvalidResult     = errors.New("step returned no result")
	ErrStepBudget        = errors.New("run exceeded its step budget")
	ErrBusy              = errors.New("conversation is being processed")
)

const (
	defaultRunLease       = 15 * time.Minute
	defaultMaxStepsPerRun = 64
)

// OutcomeStatus is the result tag of a submitted event.
type OutcomeStatus string

const (
	OutcomeProcessed OutcomeStatus = "processed"
	OutcomeBusy      OutcomeStatus = "processing_in_progress"
	OutcomeDuplicate OutcomeStatus = "duplicate_ignored"
)

// Outcome describes what happened to a submitted event.
type Outcome struct {
	Status     OutcomeStatus
	Checkpoint *conversation.Checkpoint
}

// Options tunes the engine.
type Options struct {
	MaxRetries     int
	RunLease       time.Duration
	MaxStepsPerRun int
	Now            func() time.Time
	Metrics        Metrics
	// SoleWriter marks the store as owned by this process, so runs left
	// running by an earlier process are resumed without waiting for the lease.
	SoleWriter bool
}

// Engine runs conversation steps until the conversation suspends or
// terminates, checkpointing after every step.
type Engine struct {
	repo     conversation.Repository
	registry Registry
	locks    *SessionLocks
	opts     Options
	tracer   trace.Tracer
	logger   zerolog.Logger
	started  time.Time
}

// NewEngine validates the registry and creates an engine.
func NewEngine(repo conversation.Repository, registry Registry, opts Options, logger zerolog.Logger) (*Engine, error) {
	if err := registry.Validate(); err != nil {
		return nil, err
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = conversation.DefaultMaxRetries
	}
	if opts.RunLease <= 0 {
		opts.RunLease = defaultRunLease
	}
	if opts.MaxStepsPerRun <= 0 {
		opts.MaxStepsPerRun = defaultMaxStepsPerRun
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Metrics == nil {
		opts.Metrics = nopMetrics{}
	}
	return &Engine{
		repo:     repo,
		registry: registry,
		locks:    NewSessionLocks(),
		opts:     opts,
		tracer:   otel.Tracer("github.com/orhanxakarsu/music-agent/workflow"),
		logger:   logger.With().Str("service", "workflow").Logger(),
		started:  opts.Now(),
	}, nil
}

// MaxRetries returns the configured retry cap.
func (e *Engine) MaxRetries() int {
	return e.opts.MaxRetries
}

// Submit feeds an inbound message to the conversation of identity.
//
// A conversation without a checkpoint, or whose last run terminated, starts a
// new run at the entry step. A suspended conversation resumes the waiting
// step with the message. While another run for identity is in progress the
// message is not consumed and the outcome is busy.
func (e *Engine) Submit(ctx context.Context, identity string, in conversation.Input) (*Outcome, error) {
	var out *Outcome
	acquired, err := e.locks.TryWithLock(identity, func() error {
		var runErr error
		out, runErr = e.submitLocked(ctx, identity, in)
		return runErr
	})
	if !acquired {
		e.logger.Info().Str("identity", identity).Msg("run in progress, event not consumed")
		return &Outcome{Status: OutcomeBusy}, nil
	}
	return out, err
}

func (e *Engine) submitLocked(ctx context.Context, identity string, in conversation.Input) (*Outcome, error) {
	cp, err := e.repo.Get(ctx, identity)
	if err != nil {
		return nil, fmt.Errorf("failed to load checkpoint: %w", err)
	}
	now := e.opts.Now()
	if cp == nil {
		cp = conversation.NewCheckpoint(identity, now)
	}
	if cp.HasConsumed(in.MessageID) {
		return &Outcome{Status: OutcomeDuplicate, Checkpoint: cp}, nil
	}

	if cp.Status == conversation.StatusRunning {
		if !cp.Stale(now, e.opts.RunLease) && !e.interrupted(cp) {
			return &Outcome{Status: OutcomeBusy, Checkpoint: cp}, nil
		}
		e.logger.Warn().Str("identity", identity).Str("step", cp.NextStep).Msg("recovering interrupted run")
		if cp, err = e.run(ctx, cp); err != nil {
			return nil, err
		}
	}

	claim := cp.Clone()
	claim.Status = conversation.StatusRunning
	input := in
	claim.Input = &input
	if !cp.Suspended() {
		claim.NextStep = string(EntryStep)
	}
	claim.MarkConsumed(in.MessageID)
	claim.UpdatedAt = now
	if err := e.save(ctx, claim, cp.Version); err != nil {
		if errors.Is(err, conversation.ErrVersionConflict) {
			return &Outcome{Status: OutcomeBusy, Checkpoint: cp}, nil
		}
		return nil, err
	}

	final, err := e.run(ctx, claim)
	if err != nil {
		return nil, err
	}
	return &Outcome{Status: OutcomeProcessed, Checkpoint: final}, nil
}

// State returns the current checkpoint of identity, or nil.
func (e *Engine) State(ctx context.Context, identity string) (*conversation.Checkpoint, error) {
	cp, err := e.repo.Get(ctx, identity)
	if err != nil {
		return nil, fmt.Errorf("failed to load checkpoint: %w", err)
	}
	return cp, nil
}

// Reset deletes the conversation of identity. It fails with ErrBusy while a
// run is in progress.
func (e *Engine) Reset(ctx context.Context, identity string) (bool, error) {
	var existed bool
	acquired, err := e.locks.TryWithLock(identity, func() error {
		var delErr error
		existed, delErr = e.repo.Delete(ctx, identity)
		return delErr
	})
	if !acquired {
		return false, ErrBusy
	}
	if err != nil {
		return false, fmt.Errorf("failed to delete checkpoint: %w", err)
	}
	e.logger.Info().Str("identity", identity).Bool("existed", existed).Msg("conversation reset")
	return existed, nil
}

// RecoverStale continues runs whose checkpoint stayed running past the lease.
func (e *Engine) RecoverStale(ctx context.Context, limit int) (int, error) {
	lease := e.opts.RunLease
	return e.recoverRuns(ctx, e.opts.Now().Add(-lease), limit, func(cp *conversation.Checkpoint) bool {
		return cp.Stale(e.opts.Now(), lease)
	})
}

// RecoverInterrupted continues every run left running by an earlier process,
// whatever its age. Without SoleWriter it recovers only stale runs.
func (e *Engine) RecoverInterrupted(ctx context.Context, limit int) (int, error) {
	if !e.opts.SoleWriter {
		return e.RecoverStale(ctx, limit)
	}
	return e.recoverRuns(ctx, e.started, limit, e.interrupted)
}

// interrupted reports whether cp is a run an earlier process of a sole
// writer left behind.
func (e *Engine) interrupted(cp *conversation.Checkpoint) bool {
	return e.opts.SoleWriter && cp.Status == conversation.StatusRunning && cp.UpdatedAt.Before(e.started)
}

func (e *Engine) recoverRuns(ctx context.Context, before time.Time, limit int, due func(*conversation.Checkpoint) bool) (int, error) {
	stale, err := e.repo.ListStale(ctx, before, limit)
	if err != nil {
		return 0, fmt.Errorf("failed to list stale runs: %w", err)
	}
	recovered := 0
	for _, s := range stale {
		identity := s.Identity
		acquired, err := e.locks.TryWithLock(identity, func() error {
			cp, err := e.repo.Get(ctx, identity)
			if err != nil || cp == nil || !due(cp) {
				return err
			}
			_, err = e.run(ctx, cp)
			return err
		})
		if !acquired {
			continue
		}
		if err != nil {
			e.logger.Warn().Err(err).Str("identity", identity).Msg("failed to recover run")
			continue
		}
		recovered++
	}
	return recovered, nil
}

// run executes steps starting from cp.NextStep until the run halts.
func (e *Engine) run(ctx context.Context, cp *conversation.Checkpoint) (*conversation.Checkpoint, error) {
	ctx, span := e.tracer.Start(ctx, "workflow.run", trace.WithAttributes(attribute.String("identity", cp.Identity)))
	defer span.End()
	e.opts.Metrics.RunStarted()
	defer e.opts.Metrics.RunFinished()

	for steps := 0; ; steps++ {
		id := StepID(cp.NextStep)
		if steps >= e.opts.MaxStepsPerRun {
			return nil, e.abort(ctx, cp, id, ErrStepBudget)
		}
		fn, ok := e.registry[id]
		if !ok {
			return nil, e.abort(ctx, cp, id, fmt.Errorf("%w: %q", ErrUnknownStep, id))
		}
		if stage := stageFor(id, cp.State.Stage); stage != cp.State.Stage {
			marked, err := e.mark(ctx, cp, stage)
			if err != nil {
				return nil, err
			}
			cp = marked
		}

		res, err := e.execute(ctx, cp, id, fn)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, e.abort(ctx, cp, id, err)
		}

		next, err := e.apply(cp, res)
		if err != nil {
			span.RecordError(err)
			return nil, e.abort(ctx, cp, id, fmt.Errorf("step %s: %w", id, err))
		}
		if err := e.save(ctx, next, cp.Version); err != nil {
			return nil, err
		}

		e.logger.Debug().
			Str("identity", next.Identity).
			Str("step", string(id)).
			Str("result", res.Kind.String()).
			Str("next", next.NextStep).
			Str("stage", string(next.State.Stage)).
			Int64("version", next.Version).
			Msg("step completed")

		cp = next
		if res.Kind != KindAdvance {
			return cp, nil
		}
	}
}

func (e *Engine) execute(ctx context.Context, cp *conversation.Checkpoint, id StepID, fn StepFunc) (res Result, err error) {
	ctx, span := e.tracer.Start(ctx, "workflow.step", trace.WithAttributes(
		attribute.String("identity", cp.Identity),
		attribute.String("step", string(id)),
	))
	defer span.End()

	started := e.opts.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("step %s panicked: %v", id, r)
		}
		e.opts.Metrics.StepCompleted(string(id), res.Kind.String(), e.opts.Now().Sub(started))
	}()

	run := &Run{
		Identity: cp.Identity,
		Step:     id,
		State:    cp.State.Clone(),
		Input:    cp.Input,
		epoch:    cp.Epoch,
		version:  cp.Version,
		repo:     e.repo,
		logger:   e.logger.With().Str("identity", cp.Identity).Str("step", string(id)).Logger(),
	}
	return fn(ctx, run), nil
}

// apply builds the checkpoint that follows cp after res.
func (e *Engine) apply(cp *conversation.Checkpoint, res Result) (*conversation.Checkpoint, error) {
	next := cp.Clone()
	next.Input = nil
	if res.Update != nil {
		res.Update(&next.State)
	}

	switch res.Kind {
	case KindAdvance:
		if _, ok := e.registry[res.Next]; !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownStep, res.Next)
		}
		if IsSuspensionPoint(res.Next) {
			return nil, fmt.Errorf("%w: %s", ErrIllegalAdvance, res.Next)
		}
		next.Status = conversation.StatusRunning
		next.NextStep = string(res.Next)
	case KindSuspend:
		if !IsSuspensionPoint(res.Next) {
			return nil, fmt.Errorf("%w: %q", ErrIllegalSuspension, res.Next)
		}
		next.Status = conversation.StatusSuspended
		next.NextStep = string(res.Next)
	case KindTerminate:
		next.Status = conversation.StatusTerminated
		next.NextStep = ""
	default:
		return nil, ErrInvalidResult
	}

	next.UpdatedAt = e.opts.Now()
	if err := next.Validate(); err != nil {
		return nil, err
	}
	return next, nil
}

// mark checkpoints the stage a step works in before the step runs, so a
// long provider call is observable.
func (e *Engine) mark(ctx context.Context, cp *conversation.Checkpoint, stage conversation.Stage) (*conversation.Checkpoint, error) {
	next := cp.Clone()
	next.State.Stage = stage
	next.UpdatedAt = e.opts.Now()
	if err := e.save(ctx, next, cp.Version); err != nil {
		return nil, err
	}
	return next, nil
}

// abort terminates the conversation after a defect so it does not stay
// wedged, and returns cause.
func (e *Engine) abort(ctx context.Context, cp *conversation.Checkpoint, id StepID, cause error) error {
	e.logger.Error().Err(cause).Str("identity", cp.Identity).Str("step", string(id)).Msg("run aborted")

	dead := cp.Clone()
	dead.Input = nil
	dead.Status = conversation.StatusTerminated
	dead.NextStep = ""
	dead.State.ClearQueue()
	dead.State.Stage = conversation.StageIdle
	dead.State.LastError = &conversation.LastError{Stage: cp.State.Stage, Message: cause.Error()}
	dead.UpdatedAt = e.opts.Now()
	if err := e.save(ctx, dead, cp.Version); err != nil {
		e.logger.Error().Err(err).Str("identity", cp.Identity).Msg("failed to persist aborted run")
	}
	return cause
}

func (e *Engine) save(ctx context.Context, cp *conversation.Checkpoint, expected int64) error {
	if err := e.repo.Save(ctx, cp, expected); err != nil {
		if errors.Is(err, conversation.ErrVersionConflict) {
			return err
		}
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}
	return nil
}

// Run is the view a step gets of the conversation it runs for.
type Run struct {
	Identity string
	Step     StepID
	State    conversation.State
	// Input is the message the run was resumed with. It is set only for the
	// step that consumes it.
	Input *conversation.Input

	epoch   uuid.UUID
	version int64
	repo    conversation.Repository
	logger  zerolog.Logger
}

// EffectKey derives a stable key for a side effect of this step execution.
// Re-running the step from the same checkpoint yields the same key.
func (r *Run) EffectKey(name string) string {
	return uuid.NewSHA1(r.epoch, []byte(fmt.Sprintf("%d:%s:%s", r.version, r.Step, name))).String()
}

// Once performs fn unless an effect with the same name was already recorded
// for this step execution.
func (r *Run) Once(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	key := r.EffectKey(name)
	done, err := r.repo.HasEffect(ctx, key)
	if err != nil {
		return fmt.Errorf("failed to check effect: %w", err)
	}
	if done {
		r.logger.Info().Str("effect", name).Msg("effect already performed, skipping")
		return nil
	}
	if err := fn(ctx); err != nil {
		return err
	}
	if err := r.repo.RecordEffect(ctx, r.Identity, key); err != nil {
		r.logger.Warn().Err(err).Str("effect", name).Msg("failed to record effect")
	}
	return nil
}

// Text returns the trimmed input text, if any.
func (r *Run) Text() string {
	if r.Input == nil {
		return ""
	}
	return strings.TrimSpace(r.Input.Text)
}
