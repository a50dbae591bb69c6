package cron

import (
	"context"
	"fmt"

	"github.com/ecolote/leadengine/internal/leads"
	"github.com/ecolote/leadengine/pkg/db/models"
	"github.com/ecolote/leadengine/pkg/enums"
	"github.com/ecolote/leadengine/pkg/logger"
	"github.com/ecolote/leadengine/pkg/metrics"
	"github.com/ecolote/leadengine/pkg/types"
)

const replenishJobName = "lead-replenish"

type replenisher interface {
	Replenish(ctx context.Context, input leads.ReplenishInput) (*leads.ReplenishResult, error)
}

// ReplenishJobParams configure the candidate top-up job. Empty fields fall
// back to the lead service defaults.
type ReplenishJobParams struct {
	Logger  *logger.Logger
	Leads   replenisher
	Metrics *metrics.CronJobMetrics
	City    string
	State   string
	Terms   []string
}

// NewReplenishJob builds the job that refills terms running low on available leads.
func NewReplenishJob(params ReplenishJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Leads == nil {
		return nil, fmt.Errorf("lead service required")
	}
	return &replenishJob{params: params}, nil
}

type replenishJob struct {
	params ReplenishJobParams
}

func (j *replenishJob) Name() string { return replenishJobName }

func (j *replenishJob) Run(ctx context.Context) error {
	logg := j.params.Logger
	result, err := j.params.Leads.Replenish(ctx, leads.ReplenishInput{
		City:  j.params.City,
		State: j.params.State,
		Terms: j.params.Terms,
		Actor: types.Actor{ID: models.SystemActorID, Role: enums.ActorRoleAdmin},
	})
	if err != nil {
		return fmt.Errorf("replenish leads: %w", err)
	}

	j.params.Metrics.AddItems(replenishJobName, "new", result.Ingest.NewCount)
	j.params.Metrics.AddItems(replenishJobName, "discarded", result.Ingest.DiscardedCount)
	j.params.Metrics.AddItems(replenishJobName, "failed", result.Ingest.FailedCount)
	for _, term := range result.Terms {
		if term.Error != "" {
			logg.Warn(logg.WithField(ctx, "term", term.Term), "candidate fetch failed: "+term.Error)
		}
	}
	logg.Info(logg.WithFields(ctx, map[string]any{
		"terms":     len(result.Terms),
		"new":       result.Ingest.NewCount,
		"discarded": result.Ingest.DiscardedCount,
	}), "lead replenish finished")
	return nil
}
