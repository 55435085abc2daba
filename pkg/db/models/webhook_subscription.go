package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// WebhookSubscription maps a user to a destination URL and the event types it
// wants. EventTypes is stored as a JSON string array. Secret, when present,
// overrides the process-wide signing secret for this destination.
type WebhookSubscription struct {
	ID             uuid.UUID       `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	UserID         uuid.UUID       `gorm:"column:user_id;type:uuid;not null;index" json:"user_id"`
	DestinationURL string          `gorm:"column:destination_url;type:text;not null" json:"destination_url"`
	EventTypes     json.RawMessage `gorm:"column:event_types;type:jsonb;not null" json:"event_types"`
	Secret         *string         `gorm:"column:secret;type:text" json:"-"`
	Active         bool            `gorm:"column:active;not null;default:true" json:"active"`
	CreatedAt      time.Time       `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}
