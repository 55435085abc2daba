package webhooks

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mediavault/mediavault-backend/pkg/db/models"
	"github.com/mediavault/mediavault-backend/pkg/enums"
)

// ErrNotPending signals that a terminal event was targeted by an attempt
// update. Terminal rows are immutable.
var ErrNotPending = errors.New("webhook event is not pending")

const defaultDueBatchSize = 10

// EventStats aggregates event counts for the admin surface. Total covers all
// retained events; Last24h counts events created in the day before now.
type EventStats struct {
	Total     int64 `json:"total"`
	Pending   int64 `json:"pending"`
	Delivered int64 `json:"delivered"`
	Failed    int64 `json:"failed"`
	Due       int64 `json:"due"`
	Last24h   int64 `json:"last_24h"`
}

// Repository exposes persistence helpers for webhook events.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, event *models.WebhookEvent) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.WebhookEvent, error)
	FindDue(ctx context.Context, now time.Time, limit int) ([]models.WebhookEvent, error)
	RecordSuccess(ctx context.Context, id uuid.UUID, now time.Time, response json.RawMessage) error
	RecordFailure(ctx context.Context, id uuid.UUID, now time.Time, nextRetryAt *time.Time, cause json.RawMessage) error
	ListRecent(ctx context.Context, limit int) ([]models.WebhookEvent, error)
	PurgeTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error)
	Stats(ctx context.Context, now time.Time) (EventStats, error)
}

type repositoryImpl struct {
	db *gorm.DB
}

// NewRepository returns an event repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repositoryImpl{db: db}
}

func (r *repositoryImpl) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repositoryImpl{db: tx}
}

func (r *repositoryImpl) Create(ctx context.Context, event *models.WebhookEvent) error {
	return r.db.WithContext(ctx).Create(event).Error
}

func (r *repositoryImpl) FindByID(ctx context.Context, id uuid.UUID) (*models.WebhookEvent, error) {
	var event models.WebhookEvent
	if err := r.db.WithContext(ctx).First(&event, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &event, nil
}

// FindDue returns pending events whose retry time has arrived, oldest first.
// Events with a NULL next_retry_at have never been attempted and are due
// immediately.
func (r *repositoryImpl) FindDue(ctx context.Context, now time.Time, limit int) ([]models.WebhookEvent, error) {
	if limit <= 0 {
		limit = defaultDueBatchSize
	}

	var events []models.WebhookEvent
	err := r.db.WithContext(ctx).
		Where("status = ?", enums.WebhookStatusPending).
		Where("next_retry_at IS NULL OR next_retry_at <= ?", now).
		Order("created_at ASC").
		Limit(limit).
		Find(&events).Error
	if err != nil {
		return nil, err
	}
	return events, nil
}

func (r *repositoryImpl) RecordSuccess(ctx context.Context, id uuid.UUID, now time.Time, response json.RawMessage) error {
	result := r.db.WithContext(ctx).
		Model(&models.WebhookEvent{}).
		Where("id = ? AND status = ?", id, enums.WebhookStatusPending).
		UpdateColumns(map[string]any{
			"status":          enums.WebhookStatusDelivered,
			"attempts":        gorm.Expr("attempts + 1"),
			"delivered_at":    now,
			"last_attempt_at": now,
			"last_response":   response,
			"next_retry_at":   nil,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotPending
	}
	return nil
}

// RecordFailure bumps the attempt counter and either schedules the next retry
// or marks the event permanently failed when nextRetryAt is nil.
func (r *repositoryImpl) RecordFailure(ctx context.Context, id uuid.UUID, now time.Time, nextRetryAt *time.Time, cause json.RawMessage) error {
	columns := map[string]any{
		"attempts":        gorm.Expr("attempts + 1"),
		"last_attempt_at": now,
		"last_error":      cause,
	}
	if nextRetryAt != nil {
		columns["next_retry_at"] = *nextRetryAt
	} else {
		columns["status"] = enums.WebhookStatusFailed
		columns["next_retry_at"] = nil
	}

	result := r.db.WithContext(ctx).
		Model(&models.WebhookEvent{}).
		Where("id = ? AND status = ?", id, enums.WebhookStatusPending).
		UpdateColumns(columns)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotPending
	}
	return nil
}

func (r *repositoryImpl) ListRecent(ctx context.Context, limit int) ([]models.WebhookEvent, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	var events []models.WebhookEvent
	err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&events).Error
	if err != nil {
		return nil, err
	}
	return events, nil
}

// PurgeTerminalBefore deletes delivered and failed events created before the
// cutoff. Pending events are never purged.
func (r *repositoryImpl) PurgeTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("status IN ?", []enums.WebhookStatus{enums.WebhookStatusDelivered, enums.WebhookStatusFailed}).
		Where("created_at < ?", cutoff).
		Delete(&models.WebhookEvent{})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

func (r *repositoryImpl) Stats(ctx context.Context, now time.Time) (EventStats, error) {
	var stats EventStats

	type statusCount struct {
		Status enums.WebhookStatus
		Count  int64
	}
	var counts []statusCount
	err := r.db.WithContext(ctx).
		Model(&models.WebhookEvent{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&counts).Error
	if err != nil {
		return EventStats{}, err
	}
	for _, row := range counts {
		switch row.Status {
		case enums.WebhookStatusPending:
			stats.Pending = row.Count
		case enums.WebhookStatusDelivered:
			stats.Delivered = row.Count
		case enums.WebhookStatusFailed:
			stats.Failed = row.Count
		}
	}
	stats.Total = stats.Pending + stats.Delivered + stats.Failed

	err = r.db.WithContext(ctx).
		Model(&models.WebhookEvent{}).
		Where("status = ?", enums.WebhookStatusPending).
		Where("next_retry_at IS NULL OR next_retry_at <= ?", now).
		Count(&stats.Due).Error
	if err != nil {
		return EventStats{}, err
	}

	err = r.db.WithContext(ctx).
		Model(&models.WebhookEvent{}).
		Where("created_at >= ?", now.Add(-24*time.Hour)).
		Count(&stats.Last24h).Error
	if err != nil {
		return EventStats{}, err
	}

	return stats, nil
}
