package cron

import (
	"context"
	"fmt"

	"github.com/ecolote/leadengine/internal/reactivation"
	"github.com/ecolote/leadengine/pkg/logger"
	"github.com/ecolote/leadengine/pkg/metrics"
)

const reactivationJobName = "reactivation-sweep"

type inactiveSweeper interface {
	ProcessInactive(ctx context.Context) (*reactivation.SweepResult, error)
}

// ReactivationJobParams configure the inactivity sweep job.
type ReactivationJobParams struct {
	Logger  *logger.Logger
	Sweeper inactiveSweeper
	Metrics *metrics.CronJobMetrics
}

// NewReactivationJob builds the job that parks stalled leads in awaiting_reactivation.
func NewReactivationJob(params ReactivationJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Sweeper == nil {
		return nil, fmt.Errorf("reactivation sweeper required")
	}
	return &reactivationJob{logg: params.Logger, sweeper: params.Sweeper, metrics: params.Metrics}, nil
}

type reactivationJob struct {
	logg    *logger.Logger
	sweeper inactiveSweeper
	metrics *metrics.CronJobMetrics
}

func (j *reactivationJob) Name() string { return reactivationJobName }

func (j *reactivationJob) Run(ctx context.Context) error {
	result, err := j.sweeper.ProcessInactive(ctx)
	if result != nil {
		j.metrics.AddItems(reactivationJobName, "updated", result.Updated)
		j.metrics.AddItems(reactivationJobName, "failed", result.Failed)
		j.logg.Info(j.logg.WithFields(ctx, map[string]any{
			"processed": result.Processed,
			"updated":   result.Updated,
			"failed":    result.Failed,
		}), "inactive leads swept")
	}
	if err != nil {
		return fmt.Errorf("reactivation sweep: %w", err)
	}
	return nil
}
