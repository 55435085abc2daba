package enums

import "fmt"

// WebhookStatus tracks the delivery state machine for an outbound event.
// pending is the only non-terminal state; delivered and failed never change.
type WebhookStatus string

const (
	WebhookStatusPending   WebhookStatus = "pending"
	WebhookStatusDelivered WebhookStatus = "delivered"
	WebhookStatusFailed    WebhookStatus = "failed"
)

var validWebhookStatuses = []WebhookStatus{
	WebhookStatusPending,
	WebhookStatusDelivered,
	WebhookStatusFailed,
}

// IsValid reports whether the value matches the canonical webhook status enum.
func (w WebhookStatus) IsValid() bool {
	for _, candidate := range validWebhookStatuses {
		if candidate == w {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further delivery attempts may occur.
func (w WebhookStatus) IsTerminal() bool {
	return w == WebhookStatusDelivered || w == WebhookStatusFailed
}

// ParseWebhookStatus converts the raw string to WebhookStatus.
func ParseWebhookStatus(value string) (WebhookStatus, error) {
	for _, candidate := range validWebhookStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid webhook status %q", value)
}
