package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/ecolote/leadengine/pkg/logger"
	"github.com/ecolote/leadengine/pkg/metrics"
)

const defaultInterval = 24 * time.Hour

// ServiceParams configure the lead maintenance scheduler.
type ServiceParams struct {
	Logger   *logger.Logger
	Registry *Registry
	Locks    LockProvider
	Metrics  *metrics.CronJobMetrics
	Interval time.Duration
}

// Service runs the registered lead jobs on a fixed cadence. Each job takes
// its own lock, so instances can split the work between them.
type Service struct {
	logg     *logger.Logger
	registry *Registry
	locks    LockProvider
	metrics  *metrics.CronJobMetrics
	interval time.Duration
}

// CycleReport lists what happened to each job in one pass.
type CycleReport struct {
	Ran     []string
	Failed  []string
	Skipped map[string]string // job name -> instance holding its lock
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Locks == nil {
		return nil, fmt.Errorf("job locks required")
	}
	if params.Registry == nil || len(params.Registry.Jobs()) == 0 {
		return nil, fmt.Errorf("at least one job required")
	}
	interval := params.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Service{
		logg:     params.Logger,
		registry: params.Registry,
		locks:    params.Locks,
		metrics:  params.Metrics,
		interval: interval,
	}, nil
}

// Run executes a cycle immediately and then once per interval until ctx ends.
func (s *Service) Run(ctx context.Context) error {
	s.cycle(ctx)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "lead scheduler stopping")
			return ctx.Err()
		case <-ticker.C:
			s.cycle(ctx)
		}
	}
}

// RunOnce executes a single cycle and reports lock or job failures.
func (s *Service) RunOnce(ctx context.Context) (*CycleReport, error) {
	return s.runCycle(ctx)
}

func (s *Service) cycle(ctx context.Context) {
	if _, err := s.runCycle(ctx); err != nil {
		s.logg.Error(ctx, "lead maintenance cycle had failures", err)
	}
}

func (s *Service) runCycle(ctx context.Context) (*CycleReport, error) {
	report := &CycleReport{Skipped: map[string]string{}}
	var errs error

	s.logg.Info(s.logg.WithField(ctx, "jobs", s.registry.Names()), "lead maintenance cycle starting")
	for _, job := range s.registry.Jobs() {
		if ctx.Err() != nil {
			errs = multierr.Append(errs, ctx.Err())
			break
		}
		name := job.Name()
		jobCtx := s.logg.WithFields(ctx, map[string]any{"job": name, "event": "cron.job"})

		lock := s.locks.For(name)
		locked, err := lock.Acquire(jobCtx)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: lock acquire: %w", name, err))
			continue
		}
		if !locked {
			holder, _ := lock.Holder(jobCtx)
			report.Skipped[name] = holder
			s.metrics.IncSkipped(name)
			s.logg.Info(s.logg.WithField(jobCtx, "holder", holder), "job locked by another instance; skipping")
			continue
		}

		if err := s.runJob(jobCtx, job); err != nil {
			report.Failed = append(report.Failed, name)
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", name, err))
		} else {
			report.Ran = append(report.Ran, name)
		}
		if relErr := lock.Release(jobCtx); relErr != nil {
			s.logg.Error(jobCtx, "failed to release job lock", relErr)
		}
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"ran":     len(report.Ran),
		"failed":  len(report.Failed),
		"skipped": len(report.Skipped),
	}), "lead maintenance cycle complete")
	return report, errs
}

func (s *Service) runJob(ctx context.Context, job Job) error {
	s.logg.Info(ctx, "job start")
	start := time.Now()
	err := job.Run(ctx)
	duration := time.Since(start)
	s.metrics.ObserveDuration(job.Name(), duration)
	ctx = s.logg.WithField(ctx, "duration_ms", duration.Milliseconds())
	if err != nil {
		s.logg.Error(ctx, "job failed", err)
		s.metrics.IncFailure(job.Name())
		return err
	}
	s.logg.Info(ctx, "job completed")
	s.metrics.IncSuccess(job.Name())
	return nil
}
