package webhooks

import (
	"context"
	"math/rand"
	"time"

	"go.uber.org/multierr"

	"github.com/mediavault/mediavault-backend/pkg/config"
	pkgerrors "github.com/mediavault/mediavault-backend/pkg/errors"
	"github.com/mediavault/mediavault-backend/pkg/logger"
)

const (
	defaultPollInterval = 30 * time.Second
	maxPollBackoff      = 5 * time.Minute
	jitterWindow        = 500 * time.Millisecond
)

var jitterSource = rand.New(rand.NewSource(time.Now().UnixNano()))

// Dispatcher polls for due events and drives delivery attempts.
type Dispatcher struct {
	logg         *logger.Logger
	repo         Repository
	service      Service
	pollInterval time.Duration
	batchSize    int
	now          func() time.Time
}

// DispatcherParams wires dispatcher dependencies.
type DispatcherParams struct {
	Config  *config.Config
	Logger  *logger.Logger
	Repo    Repository
	Service Service
}

// NewDispatcher validates dependencies and builds the polling dispatcher.
func NewDispatcher(params DispatcherParams) (*Dispatcher, error) {
	if params.Config == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "config is required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "logger is required")
	}
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "webhook event repository is required")
	}
	if params.Service == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "webhook service is required")
	}

	interval := params.Config.Webhooks.PollInterval
	if interval <= 0 {
		interval = defaultPollInterval
	}
	batch := params.Config.Webhooks.BatchSize
	if batch <= 0 {
		batch = defaultDueBatchSize
	}

	return &Dispatcher{
		logg:         params.Logger,
		repo:         params.Repo,
		service:      params.Service,
		pollInterval: interval,
		batchSize:    batch,
		now:          time.Now,
	}, nil
}

// Run polls until the context is canceled. A full batch triggers an immediate
// re-poll; repeated batch errors back the poll off up to maxPollBackoff.
func (d *Dispatcher) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	backoff := d.pollInterval

	for {
		select {
		case <-ctx.Done():
			d.logg.Info(ctx, "webhook dispatcher context canceled")
			return ctx.Err()
		default:
		}

		full, err := d.processBatch(ctx)
		if err != nil {
			d.logg.Error(ctx, "webhook dispatch batch error", err)
			backoff = nextBackoff(backoff, d.pollInterval, maxPollBackoff)
			if err := d.sleep(ctx, withJitter(backoff)); err != nil {
				return err
			}
			continue
		}

		backoff = d.pollInterval

		if full {
			continue
		}

		if err := d.sleep(ctx, withJitter(d.pollInterval)); err != nil {
			return err
		}
	}
}

// processBatch delivers one batch of due events sequentially, oldest first.
// Per-event failures are collected so one bad destination does not stall the
// rest of the batch.
func (d *Dispatcher) processBatch(ctx context.Context) (bool, error) {
	events, err := d.repo.FindDue(ctx, d.now().UTC(), d.batchSize)
	if err != nil {
		return false, err
	}
	if len(events) == 0 {
		return false, nil
	}

	fields := map[string]any{"batch_size": len(events)}
	d.logg.Info(d.logg.WithFields(ctx, fields), "dispatching due webhook events")

	var batchErr error
	for _, event := range events {
		eventCtx := d.logg.WithEventID(ctx, event.ID.String())
		if err := d.service.DeliverEvent(eventCtx, event); err != nil {
			batchErr = multierr.Append(batchErr, err)
		}
		select {
		case <-ctx.Done():
			return false, multierr.Append(batchErr, ctx.Err())
		default:
		}
	}

	return len(events) == d.batchSize, batchErr
}

func (d *Dispatcher) sleep(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func nextBackoff(current, base, max time.Duration) time.Duration {
	if current <= 0 {
		current = base
	}
	next := current * 2
	if next > max {
		return max
	}
	return next
}

func withJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	jitter := time.Duration(jitterSource.Int63n(int64(jitterWindow)))
	return d + jitter
}
