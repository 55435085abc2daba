package webhooks

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/mediavault/mediavault-backend/pkg/db/models"
	"github.com/mediavault/mediavault-backend/pkg/enums"
)

func setupWebhooksTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	conn, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	require.NoError(t, err)

	events := `
CREATE TABLE IF NOT EXISTS webhook_events (
  id TEXT PRIMARY KEY,
  event_type TEXT NOT NULL,
  payload TEXT NOT NULL,
  subscription_id TEXT,
  destination_url TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'pending',
  attempts INTEGER NOT NULL DEFAULT 0,
  next_retry_at DATETIME,
  last_attempt_at DATETIME,
  delivered_at DATETIME,
  last_response TEXT,
  last_error TEXT,
  created_at DATETIME
);`
	subscriptions := `
CREATE TABLE IF NOT EXISTS webhook_subscriptions (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  destination_url TEXT NOT NULL,
  event_types TEXT NOT NULL,
  secret TEXT,
  active INTEGER NOT NULL DEFAULT 1,
  created_at DATETIME,
  updated_at DATETIME
);`
	require.NoError(t, conn.Exec(events).Error)
	require.NoError(t, conn.Exec(subscriptions).Error)
	require.NoError(t, conn.Exec("DELETE FROM webhook_events").Error)
	require.NoError(t, conn.Exec("DELETE FROM webhook_subscriptions").Error)

	return conn
}

func newPendingEvent(t *testing.T, conn *gorm.DB, eventType enums.WebhookEventType, createdAt time.Time) models.WebhookEvent {
	t.Helper()

	event := models.WebhookEvent{
		ID:             uuid.New(),
		EventType:      eventType,
		Payload:        json.RawMessage(`{"asset_id":"a-1"}`),
		DestinationURL: "https://receiver.example.com/hooks",
		Status:         enums.WebhookStatusPending,
		CreatedAt:      createdAt,
	}
	require.NoError(t, conn.Create(&event).Error)
	return event
}

func TestRepositoryCreateAndFindByID(t *testing.T) {
	conn := setupWebhooksTestDB(t)
	repo := NewRepository(conn)
	ctx := context.Background()

	event := models.WebhookEvent{
		ID:             uuid.New(),
		EventType:      enums.WebhookEventTypeAssetUploaded,
		Payload:        json.RawMessage(`{"asset_id":"a-1"}`),
		DestinationURL: "https://receiver.example.com/hooks",
		Status:         enums.WebhookStatusPending,
	}
	require.NoError(t, repo.Create(ctx, &event))

	found, err := repo.FindByID(ctx, event.ID)
	require.NoError(t, err)
	assert.Equal(t, event.ID, found.ID)
	assert.Equal(t, enums.WebhookStatusPending, found.Status)
	assert.Equal(t, 0, found.Attempts)
	assert.Nil(t, found.NextRetryAt)
}

func TestRepositoryFindDue(t *testing.T) {
	conn := setupWebhooksTestDB(t)
	repo := NewRepository(conn)
	ctx := context.Background()
	now := time.Now().UTC()

	never := newPendingEvent(t, conn, enums.WebhookEventTypeAssetUploaded, now.Add(-3*time.Minute))

	past := newPendingEvent(t, conn, enums.WebhookEventTypeAssetDeleted, now.Add(-2*time.Minute))
	retryAt := now.Add(-time.Second)
	require.NoError(t, conn.Model(&models.WebhookEvent{}).Where("id = ?", past.ID).UpdateColumn("next_retry_at", retryAt).Error)

	future := newPendingEvent(t, conn, enums.WebhookEventTypeAssetShared, now.Add(-time.Minute))
	futureAt := now.Add(time.Hour)
	require.NoError(t, conn.Model(&models.WebhookEvent{}).Where("id = ?", future.ID).UpdateColumn("next_retry_at", futureAt).Error)

	delivered := newPendingEvent(t, conn, enums.WebhookEventTypeUserCreated, now.Add(-4*time.Minute))
	require.NoError(t, conn.Model(&models.WebhookEvent{}).Where("id = ?", delivered.ID).UpdateColumn("status", enums.WebhookStatusDelivered).Error)

	due, err := repo.FindDue(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, due, 2)
	// Oldest first.
	assert.Equal(t, never.ID, due[0].ID)
	assert.Equal(t, past.ID, due[1].ID)
}

func TestRepositoryFindDueRespectsLimit(t *testing.T) {
	conn := setupWebhooksTestDB(t)
	repo := NewRepository(conn)
	ctx := context.Background()
	now := time.Now().UTC()

	for i := 0; i < 5; i++ {
		newPendingEvent(t, conn, enums.WebhookEventTypeAssetUploaded, now.Add(-time.Duration(i+1)*time.Minute))
	}

	due, err := repo.FindDue(ctx, now, 3)
	require.NoError(t, err)
	assert.Len(t, due, 3)
}

func TestRepositoryRecordSuccess(t *testing.T) {
	conn := setupWebhooksTestDB(t)
	repo := NewRepository(conn)
	ctx := context.Background()
	now := time.Now().UTC()

	event := newPendingEvent(t, conn, enums.WebhookEventTypeAssetUploaded, now.Add(-time.Minute))
	response := MarshalResult(&DeliveryResult{StatusCode: 200, Body: "ok"})

	require.NoError(t, repo.RecordSuccess(ctx, event.ID, now, response))

	found, err := repo.FindByID(ctx, event.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.WebhookStatusDelivered, found.Status)
	assert.Equal(t, 1, found.Attempts)
	assert.NotNil(t, found.DeliveredAt)
	assert.NotNil(t, found.LastAttemptAt)
	assert.Nil(t, found.NextRetryAt)
	assert.NotEmpty(t, found.LastResponse)

	// Terminal rows are immutable.
	err = repo.RecordSuccess(ctx, event.ID, now, response)
	assert.True(t, errors.Is(err, ErrNotPending))
}

func TestRepositoryRecordFailureSchedulesRetry(t *testing.T) {
	conn := setupWebhooksTestDB(t)
	repo := NewRepository(conn)
	ctx := context.Background()
	now := time.Now().UTC()

	event := newPendingEvent(t, conn, enums.WebhookEventTypeAssetDeleted, now.Add(-time.Minute))
	retryAt := now.Add(2 * time.Second)
	cause := MarshalError(&DeliveryError{Code: ErrCodeHTTPError, StatusCode: 500, Message: "boom"})

	require.NoError(t, repo.RecordFailure(ctx, event.ID, now, &retryAt, cause))

	found, err := repo.FindByID(ctx, event.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.WebhookStatusPending, found.Status)
	assert.Equal(t, 1, found.Attempts)
	require.NotNil(t, found.NextRetryAt)
	assert.WithinDuration(t, retryAt, *found.NextRetryAt, time.Second)
	assert.NotEmpty(t, found.LastError)
}

func TestRepositoryRecordFailureTerminal(t *testing.T) {
	conn := setupWebhooksTestDB(t)
	repo := NewRepository(conn)
	ctx := context.Background()
	now := time.Now().UTC()

	event := newPendingEvent(t, conn, enums.WebhookEventTypeAssetDeleted, now.Add(-time.Minute))
	require.NoError(t, conn.Model(&models.WebhookEvent{}).Where("id = ?", event.ID).UpdateColumn("attempts", 2).Error)

	cause := MarshalError(&DeliveryError{Code: ErrCodeTimeout, Message: "context deadline exceeded"})
	require.NoError(t, repo.RecordFailure(ctx, event.ID, now, nil, cause))

	found, err := repo.FindByID(ctx, event.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.WebhookStatusFailed, found.Status)
	assert.Equal(t, 3, found.Attempts)
	assert.Nil(t, found.NextRetryAt)

	// A failed event never comes back as due.
	due, err := repo.FindDue(ctx, now.Add(time.Hour), 10)
	require.NoError(t, err)
	assert.Empty(t, due)

	err = repo.RecordFailure(ctx, event.ID, now, nil, cause)
	assert.True(t, errors.Is(err, ErrNotPending))
}

func TestRepositoryPurgeTerminalBefore(t *testing.T) {
	conn := setupWebhooksTestDB(t)
	repo := NewRepository(conn)
	ctx := context.Background()
	now := time.Now().UTC()

	oldDelivered := newPendingEvent(t, conn, enums.WebhookEventTypeAssetUploaded, now.Add(-48*time.Hour))
	require.NoError(t, conn.Model(&models.WebhookEvent{}).Where("id = ?", oldDelivered.ID).UpdateColumn("status", enums.WebhookStatusDelivered).Error)

	oldPending := newPendingEvent(t, conn, enums.WebhookEventTypeAssetDeleted, now.Add(-48*time.Hour))
	freshFailed := newPendingEvent(t, conn, enums.WebhookEventTypeAssetShared, now.Add(-time.Hour))
	require.NoError(t, conn.Model(&models.WebhookEvent{}).Where("id = ?", freshFailed.ID).UpdateColumn("status", enums.WebhookStatusFailed).Error)

	purged, err := repo.PurgeTerminalBefore(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), purged)

	_, err = repo.FindByID(ctx, oldDelivered.ID)
	assert.True(t, errors.Is(err, gorm.ErrRecordNotFound))

	_, err = repo.FindByID(ctx, oldPending.ID)
	assert.NoError(t, err)
	_, err = repo.FindByID(ctx, freshFailed.ID)
	assert.NoError(t, err)
}

func TestRepositoryStats(t *testing.T) {
	conn := setupWebhooksTestDB(t)
	repo := NewRepository(conn)
	ctx := context.Background()
	now := time.Now().UTC()

	newPendingEvent(t, conn, enums.WebhookEventTypeAssetUploaded, now.Add(-time.Minute))

	waiting := newPendingEvent(t, conn, enums.WebhookEventTypeAssetDeleted, now.Add(-time.Minute))
	futureAt := now.Add(time.Hour)
	require.NoError(t, conn.Model(&models.WebhookEvent{}).Where("id = ?", waiting.ID).UpdateColumn("next_retry_at", futureAt).Error)

	delivered := newPendingEvent(t, conn, enums.WebhookEventTypeAssetShared, now.Add(-time.Minute))
	require.NoError(t, conn.Model(&models.WebhookEvent{}).Where("id = ?", delivered.ID).UpdateColumn("status", enums.WebhookStatusDelivered).Error)

	failed := newPendingEvent(t, conn, enums.WebhookEventTypeUserCreated, now.Add(-time.Minute))
	require.NoError(t, conn.Model(&models.WebhookEvent{}).Where("id = ?", failed.ID).UpdateColumn("status", enums.WebhookStatusFailed).Error)

	old := newPendingEvent(t, conn, enums.WebhookEventTypeUserDeleted, now.Add(-48*time.Hour))
	require.NoError(t, conn.Model(&models.WebhookEvent{}).Where("id = ?", old.ID).UpdateColumn("status", enums.WebhookStatusDelivered).Error)

	stats, err := repo.Stats(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(5), stats.Total)
	assert.Equal(t, int64(2), stats.Pending)
	assert.Equal(t, int64(2), stats.Delivered)
	assert.Equal(t, int64(1), stats.Failed)
	assert.Equal(t, int64(1), stats.Due)
	assert.Equal(t, int64(4), stats.Last24h)
}

func TestRepositoryListRecent(t *testing.T) {
	conn := setupWebhooksTestDB(t)
	repo := NewRepository(conn)
	ctx := context.Background()
	now := time.Now().UTC()

	older := newPendingEvent(t, conn, enums.WebhookEventTypeAssetUploaded, now.Add(-2*time.Minute))
	newer := newPendingEvent(t, conn, enums.WebhookEventTypeAssetDeleted, now.Add(-time.Minute))

	events, err := repo.ListRecent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, newer.ID, events[0].ID)
	assert.Equal(t, older.ID, events[1].ID)
}
