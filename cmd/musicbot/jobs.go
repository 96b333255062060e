package main

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/orhanxakarsu/music-agent/internal/application/dedup"
	"github.com/orhanxakarsu/music-agent/internal/application/workflow"
	"github.com/orhanxakarsu/music-agent/internal/config"
	"github.com/orhanxakarsu/music-agent/internal/domain/conversation"
)

// recoveryBatch bounds how many stale runs one sweep continues.
const recoveryBatch = 20

// jobs runs the periodic maintenance of the server.
//
// Jobs run on their own context, cancelled in Stop after the running ones
// have returned.
type jobs struct {
	cron    *cron.Cron
	ctx     context.Context
	cancel  context.CancelFunc
	recover func()
	wg      sync.WaitGroup
	logger  zerolog.Logger
}

func newJobs(cfg *config.Config, engine *workflow.Engine, filter *dedup.Filter, store conversation.Repository, logger zerolog.Logger) (*jobs, error) {
	j := &jobs{
		cron:   cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		logger: logger.With().Str("service", "jobs").Logger(),
	}
	j.ctx, j.cancel = context.WithCancel(context.Background())

	job := func(name string, fn func(ctx context.Context) (int, error)) func() {
		return func() {
			n, err := fn(j.ctx)
			if err != nil {
				j.logger.Warn().Err(err).Str("job", name).Msg("job failed")
				return
			}
			if n > 0 {
				j.logger.Info().Str("job", name).Int("count", n).Msg("job done")
			}
		}
	}
	add := func(name, spec string, fn func(ctx context.Context) (int, error)) error {
		if _, err := j.cron.AddFunc(spec, job(name, fn)); err != nil {
			return fmt.Errorf("invalid schedule for %s: %w", name, err)
		}
		return nil
	}

	recoverStale := func(ctx context.Context) (int, error) {
		return engine.RecoverStale(ctx, recoveryBatch)
	}
	j.recover = job("recover_interrupted_runs", func(ctx context.Context) (int, error) {
		return engine.RecoverInterrupted(ctx, recoveryBatch)
	})
	if err := add("recover_stale_runs", cfg.RecoverySchedule, recoverStale); err != nil {
		return nil, err
	}
	if err := add("sweep_duplicates", cfg.SweepSchedule, func(context.Context) (int, error) {
		return filter.Sweep(), nil
	}); err != nil {
		return nil, err
	}
	retention := cfg.EffectRetention
	if err := add("prune_effects", cfg.PruneSchedule, func(ctx context.Context) (int, error) {
		return store.PruneEffects(ctx, time.Now().Add(-retention))
	}); err != nil {
		return nil, err
	}
	return j, nil
}

// Start recovers interrupted runs once, then starts the schedule.
func (j *jobs) Start() {
	j.wg.Add(1)
	j.recover()
	j.wg.Done()
	j.cron.Start()
	j.logger.Info().Int("entries", len(j.cron.Entries())).Msg("scheduler started")
}

// Stop waits for running jobs to finish.
func (j *jobs) Stop() {
	<-j.cron.Stop().Done()
	j.wg.Wait()
	j.cancel()
	j.logger.Info().Msg("scheduler stopped")
}
