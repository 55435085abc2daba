package enums

import "fmt"

// WebhookEventType is the closed set of business occurrences delivered to
// registered webhook destinations.
type WebhookEventType string

const (
	WebhookEventTypeAssetUploaded WebhookEventType = "asset.uploaded"
	WebhookEventTypeAssetDeleted  WebhookEventType = "asset.deleted"
	WebhookEventTypeAssetShared   WebhookEventType = "asset.shared"
	WebhookEventTypeAssetUpdated  WebhookEventType = "asset.updated"
	WebhookEventTypeUserCreated   WebhookEventType = "user.created"
	WebhookEventTypeUserDeleted   WebhookEventType = "user.deleted"
	WebhookEventTypeTest          WebhookEventType = "test"
)

var validWebhookEventTypes = []WebhookEventType{
	WebhookEventTypeAssetUploaded,
	WebhookEventTypeAssetDeleted,
	WebhookEventTypeAssetShared,
	WebhookEventTypeAssetUpdated,
	WebhookEventTypeUserCreated,
	WebhookEventTypeUserDeleted,
	WebhookEventTypeTest,
}

// IsValid reports whether the value matches the canonical webhook event type enum.
func (w WebhookEventType) IsValid() bool {
	for _, candidate := range validWebhookEventTypes {
		if candidate == w {
			return true
		}
	}
	return false
}

// ParseWebhookEventType converts the raw string to WebhookEventType.
func ParseWebhookEventType(value string) (WebhookEventType, error) {
	for _, candidate := range validWebhookEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid webhook event type %q", value)
}

// WebhookEventTypes returns the full enum in declaration order.
func WebhookEventTypes() []WebhookEventType {
	out := make([]WebhookEventType, len(validWebhookEventTypes))
	copy(out, validWebhookEventTypes)
	return out
}
