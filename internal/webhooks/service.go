package webhooks

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mediavault/mediavault-backend/pkg/config"
	"github.com/mediavault/mediavault-backend/pkg/db"
	"github.com/mediavault/mediavault-backend/pkg/db/models"
	"github.com/mediavault/mediavault-backend/pkg/enums"
	pkgerrors "github.com/mediavault/mediavault-backend/pkg/errors"
	"github.com/mediavault/mediavault-backend/pkg/logger"
	"github.com/mediavault/mediavault-backend/pkg/metrics"
)

// Service defines webhook event and subscription operations.
type Service interface {
	Emit(ctx context.Context, eventType enums.WebhookEventType, payload json.RawMessage) ([]models.WebhookEvent, error)
	DeliverEvent(ctx context.Context, event models.WebhookEvent) error
	GetEvent(ctx context.Context, id uuid.UUID) (*models.WebhookEvent, error)
	ListEvents(ctx context.Context, limit int) ([]models.WebhookEvent, error)
	Stats(ctx context.Context) (EventStats, error)

	CreateSubscription(ctx context.Context, params CreateSubscriptionParams) (*models.WebhookSubscription, error)
	ListSubscriptions(ctx context.Context, userID uuid.UUID) ([]models.WebhookSubscription, error)
	UpdateSubscription(ctx context.Context, params UpdateSubscriptionParams) (*models.WebhookSubscription, error)
	DeleteSubscription(ctx context.Context, userID, id uuid.UUID) error
	SendTestEvent(ctx context.Context, userID, subscriptionID uuid.UUID) (*models.WebhookEvent, error)
}

// CreateSubscriptionParams carries validated subscription input.
type CreateSubscriptionParams struct {
	UserID         uuid.UUID
	DestinationURL string
	EventTypes     []string
	Secret         *string
}

// UpdateSubscriptionParams carries a partial subscription update.
type UpdateSubscriptionParams struct {
	UserID         uuid.UUID
	SubscriptionID uuid.UUID
	DestinationURL *string
	EventTypes     []string
	Secret         *string
	Active         *bool
}

// ServiceParams wires service dependencies.
type ServiceParams struct {
	Config    *config.Config
	Logger    *logger.Logger
	DB        *db.Client
	Repo      Repository
	SubRepo   SubscriptionRepository
	Deliverer *Deliverer
	Metrics   *metrics.DeliveryMetrics
}

type service struct {
	cfg       *config.Config
	logg      *logger.Logger
	db        *db.Client
	repo      Repository
	subRepo   SubscriptionRepository
	deliverer *Deliverer
	backoff   *BackoffPolicy
	metrics   *metrics.DeliveryMetrics
	now       func() time.Time
}

// NewService validates dependencies and wires the webhook service.
func NewService(params ServiceParams) (Service, error) {
	if params.Config == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "config is required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "logger is required")
	}
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "webhook event repository is required")
	}
	if params.SubRepo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "webhook subscription repository is required")
	}

	deliverer := params.Deliverer
	if deliverer == nil {
		deliverer = NewDeliverer(WithAttemptTimeout(params.Config.Webhooks.AttemptTimeout))
	}

	return &service{
		cfg:       params.Config,
		logg:      params.Logger,
		db:        params.DB,
		repo:      params.Repo,
		subRepo:   params.SubRepo,
		deliverer: deliverer,
		backoff:   NewBackoffPolicy(params.Config.Webhooks.BaseRetryDelay, params.Config.Webhooks.MaxAttempts),
		metrics:   params.Metrics,
		now:       time.Now,
	}, nil
}

// Emit records one pending event per matching active subscription and kicks
// off an immediate delivery attempt for each. Failures of the immediate
// attempt are picked up later by the dispatcher poll.
func (s *service) Emit(ctx context.Context, eventType enums.WebhookEventType, payload json.RawMessage) ([]models.WebhookEvent, error) {
	if !eventType.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown webhook event type")
	}
	if len(payload) == 0 {
		payload = json.RawMessage(`{}`)
	}
	if !json.Valid(payload) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payload must be valid JSON")
	}

	subscriptions, err := s.subRepo.ListActive(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list active subscriptions")
	}

	events := make([]models.WebhookEvent, 0, len(subscriptions))
	for _, subscription := range subscriptions {
		if !SubscriptionMatches(subscription, eventType) {
			continue
		}
		subscriptionID := subscription.ID
		events = append(events, models.WebhookEvent{
			ID:             uuid.New(),
			EventType:      eventType,
			Payload:        payload,
			SubscriptionID: &subscriptionID,
			DestinationURL: subscription.DestinationURL,
			Status:         enums.WebhookStatusPending,
		})
	}
	if len(events) == 0 {
		return events, nil
	}

	if err := s.createEvents(ctx, events); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create webhook events")
	}

	for _, event := range events {
		s.deliverAsync(event)
	}

	return events, nil
}

// createEvents inserts the batch in one transaction so a fan-out is recorded
// all or nothing.
func (s *service) createEvents(ctx context.Context, events []models.WebhookEvent) error {
	if s.db == nil {
		for i := range events {
			if err := s.repo.Create(ctx, &events[i]); err != nil {
				return err
			}
		}
		return nil
	}
	return s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		for i := range events {
			if err := repo.Create(ctx, &events[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

// deliverAsync fires the fast-path attempt without blocking the caller. The
// attempt runs on a fresh context so request cancellation does not abort it.
func (s *service) deliverAsync(event models.WebhookEvent) {
	detached := s.logg.WithEventID(context.Background(), event.ID.String())
	go func() {
		if err := s.DeliverEvent(detached, event); err != nil {
			s.logg.Warn(s.logg.WithField(detached, "error", err.Error()), "immediate webhook delivery failed")
		}
	}()
}

// DeliverEvent runs a single delivery attempt and records the outcome. A miss
// on the conditional update means another worker already finished the event;
// that is not an error.
func (s *service) DeliverEvent(ctx context.Context, event models.WebhookEvent) error {
	secret := s.secretFor(ctx, event)

	started := s.now()
	result, delErr := s.deliverer.Deliver(ctx, event.DestinationURL, event.EventType, event.Payload, secret)
	s.metrics.ObserveDuration(string(event.EventType), s.now().Sub(started))

	now := s.now().UTC()
	if delErr == nil {
		s.metrics.IncAttempt(string(event.EventType), "success")
		if err := s.repo.RecordSuccess(ctx, event.ID, now, MarshalResult(result)); err != nil {
			if errors.Is(err, ErrNotPending) {
				return nil
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record delivery success")
		}
		fields := map[string]any{
			"event_id":    event.ID.String(),
			"event_type":  event.EventType,
			"status_code": result.StatusCode,
			"attempts":    event.Attempts + 1,
		}
		s.logg.Info(s.logg.WithFields(ctx, fields), "webhook delivered")
		return nil
	}

	s.metrics.IncAttempt(string(event.EventType), delErr.Code)
	nextRetryAt := s.backoff.NextRetryAt(event.Attempts)
	if err := s.repo.RecordFailure(ctx, event.ID, now, nextRetryAt, MarshalError(delErr)); err != nil {
		if errors.Is(err, ErrNotPending) {
			return nil
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record delivery failure")
	}

	fields := map[string]any{
		"event_id":   event.ID.String(),
		"event_type": event.EventType,
		"error_code": delErr.Code,
		"attempts":   event.Attempts + 1,
	}
	if nextRetryAt != nil {
		fields["next_retry_at"] = nextRetryAt.Format(time.RFC3339)
		s.logg.Warn(s.logg.WithFields(ctx, fields), "webhook delivery failed, retry scheduled")
	} else {
		s.logg.Warn(s.logg.WithFields(ctx, fields), "webhook delivery failed permanently")
	}
	return nil
}

// secretFor resolves the signing secret for an event. The subscription the
// event was fanned out to wins; the destination lookup covers rows created
// before subscription ids were recorded. Everything else signs with the
// service secret.
func (s *service) secretFor(ctx context.Context, event models.WebhookEvent) string {
	if event.SubscriptionID != nil {
		subscription, err := s.subRepo.FindByID(ctx, *event.SubscriptionID)
		if err == nil && subscription.Secret != nil && *subscription.Secret != "" {
			return *subscription.Secret
		}
		if err == nil {
			return s.cfg.Webhooks.SigningSecret
		}
	}
	subscription, err := s.subRepo.FindActiveByDestination(ctx, event.DestinationURL)
	if err == nil && subscription.Secret != nil && *subscription.Secret != "" {
		return *subscription.Secret
	}
	return s.cfg.Webhooks.SigningSecret
}

func (s *service) GetEvent(ctx context.Context, id uuid.UUID) (*models.WebhookEvent, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "event id required")
	}
	event, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "webhook event not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load webhook event")
	}
	return event, nil
}

func (s *service) ListEvents(ctx context.Context, limit int) ([]models.WebhookEvent, error) {
	events, err := s.repo.ListRecent(ctx, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list webhook events")
	}
	return events, nil
}

func (s *service) Stats(ctx context.Context) (EventStats, error) {
	stats, err := s.repo.Stats(ctx, s.now().UTC())
	if err != nil {
		return EventStats{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load webhook stats")
	}
	return stats, nil
}

func (s *service) CreateSubscription(ctx context.Context, params CreateSubscriptionParams) (*models.WebhookSubscription, error) {
	if params.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	if err := validateDestinationURL(params.DestinationURL); err != nil {
		return nil, err
	}
	eventTypes, err := normalizeEventTypes(params.EventTypes)
	if err != nil {
		return nil, err
	}

	subscription := models.WebhookSubscription{
		ID:             uuid.New(),
		UserID:         params.UserID,
		DestinationURL: strings.TrimSpace(params.DestinationURL),
		EventTypes:     eventTypes,
		Secret:         normalizeSecret(params.Secret),
		Active:         true,
	}
	if err := s.subRepo.Create(ctx, &subscription); err != nil {
		if db.IsUniqueViolation(err, "ux_webhook_subscriptions_user_url") {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "subscription already exists for this destination")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create subscription")
	}
	return &subscription, nil
}

func (s *service) ListSubscriptions(ctx context.Context, userID uuid.UUID) ([]models.WebhookSubscription, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	subscriptions, err := s.subRepo.ListByUser(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list subscriptions")
	}
	return subscriptions, nil
}

func (s *service) UpdateSubscription(ctx context.Context, params UpdateSubscriptionParams) (*models.WebhookSubscription, error) {
	if params.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	if params.SubscriptionID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "subscription id required")
	}

	subscription, err := s.subRepo.FindByID(ctx, params.SubscriptionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "subscription not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load subscription")
	}
	if subscription.UserID != params.UserID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "subscription not found")
	}

	if params.DestinationURL != nil {
		if err := validateDestinationURL(*params.DestinationURL); err != nil {
			return nil, err
		}
		subscription.DestinationURL = strings.TrimSpace(*params.DestinationURL)
	}
	if params.EventTypes != nil {
		eventTypes, err := normalizeEventTypes(params.EventTypes)
		if err != nil {
			return nil, err
		}
		subscription.EventTypes = eventTypes
	}
	if params.Secret != nil {
		subscription.Secret = normalizeSecret(params.Secret)
	}
	if params.Active != nil {
		subscription.Active = *params.Active
	}

	if err := s.subRepo.Update(ctx, subscription); err != nil {
		if db.IsUniqueViolation(err, "ux_webhook_subscriptions_user_url") {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "subscription already exists for this destination")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update subscription")
	}
	return subscription, nil
}

func (s *service) DeleteSubscription(ctx context.Context, userID, id uuid.UUID) error {
	if userID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	if id == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "subscription id required")
	}
	deleted, err := s.subRepo.Delete(ctx, userID, id)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete subscription")
	}
	if deleted == 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, "subscription not found")
	}
	return nil
}

// SendTestEvent creates and immediately attempts a webhook.test event against
// the subscription's destination, regardless of its event type filter.
func (s *service) SendTestEvent(ctx context.Context, userID, subscriptionID uuid.UUID) (*models.WebhookEvent, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	if subscriptionID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "subscription id required")
	}

	subscription, err := s.subRepo.FindByID(ctx, subscriptionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "subscription not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load subscription")
	}
	if subscription.UserID != userID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "subscription not found")
	}

	payload, _ := json.Marshal(map[string]any{
		"subscription_id": subscription.ID.String(),
		"sent_at":         s.now().UTC().Format(time.RFC3339),
	})
	event := models.WebhookEvent{
		ID:             uuid.New(),
		EventType:      enums.WebhookEventTypeTest,
		Payload:        payload,
		SubscriptionID: &subscription.ID,
		DestinationURL: subscription.DestinationURL,
		Status:         enums.WebhookStatusPending,
	}
	if err := s.repo.Create(ctx, &event); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create test event")
	}

	s.deliverAsync(event)
	return &event, nil
}

func validateDestinationURL(raw string) error {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "destination url required")
	}
	parsed, err := url.Parse(trimmed)
	if err != nil || parsed.Host == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "destination url is not a valid URL")
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return pkgerrors.New(pkgerrors.CodeValidation, "destination url must use http or https")
	}
	return nil
}

func normalizeEventTypes(raw []string) (json.RawMessage, error) {
	if len(raw) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one event type required")
	}
	seen := make(map[string]struct{}, len(raw))
	types := make([]string, 0, len(raw))
	for _, t := range raw {
		trimmed := strings.TrimSpace(t)
		if !enums.WebhookEventType(trimmed).IsValid() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown event type: "+trimmed)
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		types = append(types, trimmed)
	}
	encoded, err := json.Marshal(types)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode event types")
	}
	return encoded, nil
}

func normalizeSecret(secret *string) *string {
	if secret == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*secret)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
