package webhooks

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/mediavault/mediavault-backend/pkg/db/models"
	"github.com/mediavault/mediavault-backend/pkg/enums"
)

func newSubscription(t *testing.T, conn *gorm.DB, userID uuid.UUID, destination string, eventTypes []string, active bool) models.WebhookSubscription {
	t.Helper()

	encoded, err := json.Marshal(eventTypes)
	require.NoError(t, err)

	subscription := models.WebhookSubscription{
		ID:             uuid.New(),
		UserID:         userID,
		DestinationURL: destination,
		EventTypes:     encoded,
		Active:         active,
	}
	require.NoError(t, conn.Create(&subscription).Error)
	return subscription
}

func TestSubscriptionRepositoryListByUser(t *testing.T) {
	conn := setupWebhooksTestDB(t)
	repo := NewSubscriptionRepository(conn)
	ctx := context.Background()

	owner := uuid.New()
	other := uuid.New()
	mine := newSubscription(t, conn, owner, "https://a.example.com/hooks", []string{"asset.uploaded"}, true)
	newSubscription(t, conn, other, "https://b.example.com/hooks", []string{"asset.uploaded"}, true)

	subscriptions, err := repo.ListByUser(ctx, owner)
	require.NoError(t, err)
	require.Len(t, subscriptions, 1)
	assert.Equal(t, mine.ID, subscriptions[0].ID)
}

func TestSubscriptionRepositoryListActive(t *testing.T) {
	conn := setupWebhooksTestDB(t)
	repo := NewSubscriptionRepository(conn)
	ctx := context.Background()

	active := newSubscription(t, conn, uuid.New(), "https://a.example.com/hooks", []string{"asset.uploaded"}, true)
	newSubscription(t, conn, uuid.New(), "https://b.example.com/hooks", []string{"asset.uploaded"}, false)

	subscriptions, err := repo.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, subscriptions, 1)
	assert.Equal(t, active.ID, subscriptions[0].ID)
}

func TestSubscriptionRepositoryDeleteScopedToOwner(t *testing.T) {
	conn := setupWebhooksTestDB(t)
	repo := NewSubscriptionRepository(conn)
	ctx := context.Background()

	owner := uuid.New()
	subscription := newSubscription(t, conn, owner, "https://a.example.com/hooks", []string{"asset.uploaded"}, true)

	deleted, err := repo.Delete(ctx, uuid.New(), subscription.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), deleted)

	deleted, err = repo.Delete(ctx, owner, subscription.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)
}

func TestSubscriptionRepositoryFindActiveByDestination(t *testing.T) {
	conn := setupWebhooksTestDB(t)
	repo := NewSubscriptionRepository(conn)
	ctx := context.Background()

	destination := "https://a.example.com/hooks"
	newSubscription(t, conn, uuid.New(), destination, []string{"asset.uploaded"}, false)

	_, err := repo.FindActiveByDestination(ctx, destination)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	active := newSubscription(t, conn, uuid.New(), "https://c.example.com/hooks", []string{"asset.uploaded"}, true)
	found, err := repo.FindActiveByDestination(ctx, active.DestinationURL)
	require.NoError(t, err)
	assert.Equal(t, active.ID, found.ID)
}

func TestSubscriptionMatches(t *testing.T) {
	encoded, err := json.Marshal([]string{"asset.uploaded", "asset.deleted"})
	require.NoError(t, err)

	subscription := models.WebhookSubscription{
		Active:     true,
		EventTypes: encoded,
	}

	assert.True(t, SubscriptionMatches(subscription, enums.WebhookEventTypeAssetUploaded))
	assert.False(t, SubscriptionMatches(subscription, enums.WebhookEventTypeUserCreated))

	subscription.Active = false
	assert.False(t, SubscriptionMatches(subscription, enums.WebhookEventTypeAssetUploaded))

	subscription.Active = true
	subscription.EventTypes = json.RawMessage(`not-json`)
	assert.False(t, SubscriptionMatches(subscription, enums.WebhookEventTypeAssetUploaded))
}
