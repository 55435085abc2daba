package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/mediavault/mediavault-backend/pkg/logger"
)

const defaultRetentionWindow = 720 * time.Hour

// webhookRetentionRepo exposes the purge used by the retention job.
type webhookRetentionRepo interface {
	PurgeTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// WebhookRetentionJobParams configure the retention job.
type WebhookRetentionJobParams struct {
	Logger     *logger.Logger
	Repository webhookRetentionRepo
	Retention  time.Duration
}

type webhookRetentionJob struct {
	logg      *logger.Logger
	repo      webhookRetentionRepo
	retention time.Duration
	now       func() time.Time
}

// NewWebhookRetentionJob purges delivered and failed webhook events older
// than the retention window. Pending events are kept regardless of age.
func NewWebhookRetentionJob(params WebhookRetentionJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Repository == nil {
		return nil, fmt.Errorf("webhook event repository required")
	}
	retention := params.Retention
	if retention <= 0 {
		retention = defaultRetentionWindow
	}
	return &webhookRetentionJob{
		logg:      params.Logger,
		repo:      params.Repository,
		retention: retention,
		now:       time.Now,
	}, nil
}

func (j *webhookRetentionJob) Name() string { return "webhook-retention" }

func (j *webhookRetentionJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.retention)
	deleted, err := j.repo.PurgeTerminalBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("webhook retention: %w", err)
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":          cutoff,
		"retention_hours": j.retention.Hours(),
		"rows_deleted":    deleted,
	})
	j.logg.Info(logCtx, "webhook retention cleanup complete")
	return nil
}
