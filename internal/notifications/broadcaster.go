package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/google/uuid"

	"github.com/ecolote/leadengine/pkg/enums"
	"github.com/ecolote/leadengine/pkg/logger"
	"github.com/ecolote/leadengine/pkg/metrics"
)

const (
	defaultWorkers        = 4
	defaultQueueSize      = 256
	defaultPublishTimeout = 5 * time.Second
)

// LeadUpdate is the payload of a leadUpdate event.
type LeadUpdate struct {
	LeadID  uuid.UUID        `json:"lead_id"`
	Action  enums.LeadEvent  `json:"action"`
	Status  enums.LeadStatus `json:"status"`
	ActorID *uuid.UUID       `json:"actor_id,omitempty"`
}

// BroadcasterParams wires the broadcaster dependencies.
type BroadcasterParams struct {
	Channel   Channel
	Logger    *logger.Logger
	Metrics   *metrics.LifecycleMetrics
	Workers   int
	QueueSize int
	Timeout   time.Duration
}

// Broadcaster fans events out to a Channel on a bounded worker pool.
// Delivery is best-effort: failures are logged and counted, never returned.
type Broadcaster struct {
	channel Channel
	logg    *logger.Logger
	metrics *metrics.LifecycleMetrics
	pool    pond.Pool
	timeout time.Duration
}

func NewBroadcaster(params BroadcasterParams) (*Broadcaster, error) {
	if params.Channel == nil {
		return nil, errors.New("notification channel required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger required")
	}
	workers := params.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}
	queue := params.QueueSize
	if queue <= 0 {
		queue = defaultQueueSize
	}
	timeout := params.Timeout
	if timeout <= 0 {
		timeout = defaultPublishTimeout
	}
	return &Broadcaster{
		channel: params.Channel,
		logg:    params.Logger,
		metrics: params.Metrics,
		pool:    pond.NewPool(workers, pond.WithQueueSize(queue), pond.WithNonBlocking(true)),
		timeout: timeout,
	}, nil
}

// Publish encodes payload and schedules delivery. It never blocks on the channel.
func (b *Broadcaster) Publish(ctx context.Context, event string, payload any) {
	if b == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		b.fail(ctx, event, "encode lead event", err)
		return
	}

	deliveryCtx := context.WithoutCancel(ctx)
	task := b.pool.SubmitErr(func() error {
		publishCtx, cancel := context.WithTimeout(deliveryCtx, b.timeout)
		defer cancel()
		if err := b.channel.Publish(publishCtx, event, data); err != nil {
			b.fail(deliveryCtx, event, "publish lead event", err)
			return err
		}
		return nil
	})
	select {
	case <-task.Done():
		// rejected submissions complete immediately with a pool error
		if err := task.Wait(); errors.Is(err, pond.ErrQueueFull) || errors.Is(err, pond.ErrPoolStopped) {
			b.fail(ctx, event, "lead event dropped", err)
		}
	default:
	}
}

// Close drains queued deliveries.
func (b *Broadcaster) Close() {
	if b == nil {
		return
	}
	b.pool.StopAndWait()
}

func (b *Broadcaster) fail(ctx context.Context, event, msg string, err error) {
	b.metrics.IncNotificationFailure(event)
	b.logg.Error(b.logg.WithField(ctx, "event", event), msg, err)
}
