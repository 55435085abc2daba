package webhooks

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mediavault/mediavault-backend/pkg/db/models"
	"github.com/mediavault/mediavault-backend/pkg/enums"
)

// SubscriptionRepository exposes persistence helpers for webhook subscriptions.
type SubscriptionRepository interface {
	WithTx(tx *gorm.DB) SubscriptionRepository
	Create(ctx context.Context, subscription *models.WebhookSubscription) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.WebhookSubscription, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]models.WebhookSubscription, error)
	ListActive(ctx context.Context) ([]models.WebhookSubscription, error)
	Update(ctx context.Context, subscription *models.WebhookSubscription) error
	Delete(ctx context.Context, userID, id uuid.UUID) (int64, error)
	FindActiveByDestination(ctx context.Context, destinationURL string) (*models.WebhookSubscription, error)
}

type subscriptionRepositoryImpl struct {
	db *gorm.DB
}

// NewSubscriptionRepository returns a subscription repository bound to the
// provided database.
func NewSubscriptionRepository(db *gorm.DB) SubscriptionRepository {
	return &subscriptionRepositoryImpl{db: db}
}

func (r *subscriptionRepositoryImpl) WithTx(tx *gorm.DB) SubscriptionRepository {
	if tx == nil {
		return r
	}
	return &subscriptionRepositoryImpl{db: tx}
}

func (r *subscriptionRepositoryImpl) Create(ctx context.Context, subscription *models.WebhookSubscription) error {
	return r.db.WithContext(ctx).Create(subscription).Error
}

func (r *subscriptionRepositoryImpl) FindByID(ctx context.Context, id uuid.UUID) (*models.WebhookSubscription, error) {
	var subscription models.WebhookSubscription
	if err := r.db.WithContext(ctx).First(&subscription, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &subscription, nil
}

func (r *subscriptionRepositoryImpl) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.WebhookSubscription, error) {
	var subscriptions []models.WebhookSubscription
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&subscriptions).Error
	if err != nil {
		return nil, err
	}
	return subscriptions, nil
}

func (r *subscriptionRepositoryImpl) ListActive(ctx context.Context) ([]models.WebhookSubscription, error) {
	var subscriptions []models.WebhookSubscription
	err := r.db.WithContext(ctx).
		Where("active = ?", true).
		Order("created_at ASC").
		Find(&subscriptions).Error
	if err != nil {
		return nil, err
	}
	return subscriptions, nil
}

func (r *subscriptionRepositoryImpl) Update(ctx context.Context, subscription *models.WebhookSubscription) error {
	return r.db.WithContext(ctx).Save(subscription).Error
}

func (r *subscriptionRepositoryImpl) Delete(ctx context.Context, userID, id uuid.UUID) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		Delete(&models.WebhookSubscription{})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

func (r *subscriptionRepositoryImpl) FindActiveByDestination(ctx context.Context, destinationURL string) (*models.WebhookSubscription, error) {
	var subscription models.WebhookSubscription
	err := r.db.WithContext(ctx).
		Where("destination_url = ? AND active = ?", destinationURL, true).
		First(&subscription).Error
	if err != nil {
		return nil, err
	}
	return &subscription, nil
}

// SubscriptionMatches reports whether the subscription covers the event type.
// Event types are stored as a JSON string array so the filter runs in Go
// rather than as a database predicate.
func SubscriptionMatches(subscription models.WebhookSubscription, eventType enums.WebhookEventType) bool {
	if !subscription.Active {
		return false
	}
	var types []string
	if err := json.Unmarshal(subscription.EventTypes, &types); err != nil {
		return false
	}
	for _, t := range types {
		if t == string(eventType) {
			return true
		}
	}
	return false
}
