package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/mediavault/mediavault-backend/pkg/enums"
)

// WebhookEvent is the durable record of a single outbound notification.
// Producers create it once; only the dispatcher mutates it afterwards.
type WebhookEvent struct {
	ID             uuid.UUID              `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	EventType      enums.WebhookEventType `gorm:"column:event_type;type:text;not null" json:"event_type"`
	Payload        json.RawMessage        `gorm:"column:payload;type:jsonb;not null" json:"payload"`
	SubscriptionID *uuid.UUID             `gorm:"column:subscription_id;type:uuid" json:"subscription_id,omitempty"`
	DestinationURL string                 `gorm:"column:destination_url;type:text;not null" json:"destination_url"`
	Status         enums.WebhookStatus    `gorm:"column:status;type:text;not null;default:pending" json:"status"`
	Attempts       int                    `gorm:"column:attempts;not null;default:0" json:"attempts"`
	NextRetryAt    *time.Time             `gorm:"column:next_retry_at" json:"next_retry_at,omitempty"`
	LastAttemptAt  *time.Time             `gorm:"column:last_attempt_at" json:"last_attempt_at,omitempty"`
	DeliveredAt    *time.Time             `gorm:"column:delivered_at" json:"delivered_at,omitempty"`
	LastResponse   json.RawMessage        `gorm:"column:last_response;type:jsonb" json:"last_response,omitempty"`
	LastError      json.RawMessage        `gorm:"column:last_error;type:jsonb" json:"last_error,omitempty"`
	CreatedAt      time.Time              `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}
