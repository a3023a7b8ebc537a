package jobs

import (
	"context"
	"fmt"
	"time"

	"dessert_generator_go_backend/internal/config"
	"dessert_generator_go_backend/internal/metrics"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

const (
	JobCacheSweep    = "cache_sweep"
	JobUsagePrune    = "usage_prune"
	JobCreditRenewal = "credit_renewal"
)

// Task is one maintenance pass. It returns how many rows it touched.
type Task func(ctx context.Context) (int64, error)

type CacheSweeper interface {
	SweepExpired(ctx context.Context) (int64, error)
}

type UsagePruner interface {
	PruneExpired(ctx context.Context) (int64, error)
}

type CreditRenewer interface {
	RenewDuePremiumUsers(ctx context.Context) (int64, error)
}

// Scheduler runs maintenance tasks on cron specs. A run never overlaps the previous run of the same job.
type Scheduler struct {
	cron    *cron.Cron
	timeout time.Duration
	logger  zerolog.Logger
	metrics *metrics.Metrics
	tasks   map[string]Task
}

func NewScheduler(timeout time.Duration, logger zerolog.Logger, m *metrics.Metrics) *Scheduler {
	return &Scheduler{
		cron:    cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		timeout: timeout,
		logger:  logger,
		metrics: m,
		tasks:   make(map[string]Task),
	}
}

func (s *Scheduler) Add(name, spec string, task Task) error {
	if _, err := s.cron.AddFunc(spec, func() { _, _ = s.Run(context.Background(), name) }); err != nil {
		return fmt.Errorf("invalid schedule %q for job %s: %w", spec, name, err)
	}
	s.tasks[name] = task
	return nil
}

// Run executes a registered task once, bounded by the job timeout.
func (s *Scheduler) Run(ctx context.Context, name string) (int64, error) {
	task, ok := s.tasks[name]
	if !ok {
		return 0, fmt.Errorf("unknown job %s", name)
	}
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()
	n, err := task(ctx)
	s.metrics.JobRun(name, err)
	if err != nil {
		s.logger.Error().Err(err).Str("job", name).Msg("scheduled job failed")
		return n, err
	}
	s.logger.Info().Str("job", name).Int64("affected", n).Dur("took", time.Since(start)).Msg("scheduled job finished")
	return n, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop waits for running jobs until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) {
	stopped := s.cron.Stop()
	select {
	case <-stopped.Done():
	case <-ctx.Done():
		s.logger.Warn().Msg("scheduled jobs still running at shutdown")
	}
}

// Register wires the standard maintenance jobs.
func Register(s *Scheduler, cfg config.Jobs, cache CacheSweeper, usage UsagePruner, credits CreditRenewer) error {
	if err := s.Add(JobCacheSweep, cfg.CacheSweepSpec, cache.SweepExpired); err != nil {
		return err
	}
	if err := s.Add(JobUsagePrune, cfg.UsagePruneSpec, usage.PruneExpired); err != nil {
		return err
	}
	return s.Add(JobCreditRenewal, cfg.CreditRenewalSpec, credits.RenewDuePremiumUsers)
}
