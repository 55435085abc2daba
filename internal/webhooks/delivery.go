package webhooks

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/mediavault/mediavault-backend/pkg/enums"
)

const (
	defaultAttemptTimeout       = 30 * time.Second
	deliveryUserAgent           = "MediaVault-Webhook/1.0"
	responseBodyReadLimit int64 = 4096

	// Error codes recorded on failed attempts.
	ErrCodeHTTPError    = "http_error"
	ErrCodeTimeout      = "timeout"
	ErrCodeNetworkError = "network_error"
)

// Signature headers attached to every outbound delivery.
const (
	HeaderSignature = "X-Webhook-Signature"
	HeaderEvent     = "X-Webhook-Event"
	HeaderTimestamp = "X-Webhook-Timestamp"
)

// DeliveryResult captures the receiver response for a successful attempt.
// Headers hold the response headers flattened to single values.
type DeliveryResult struct {
	StatusCode int               `json:"status_code"`
	Body       string            `json:"body,omitempty"`
	Headers    map[string]string `json:"headers,omitempty"`
}

// DeliveryError classifies a failed attempt for storage alongside the event.
type DeliveryError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"status_code,omitempty"`
}

func (e *DeliveryError) Error() string {
	if e == nil {
		return ""
	}
	if e.StatusCode > 0 {
		return e.Code + ": status " + strconv.Itoa(e.StatusCode)
	}
	return e.Code + ": " + e.Message
}

// Deliverer performs a single webhook delivery attempt over HTTP.
type Deliverer struct {
	httpClient *http.Client
	timeout    time.Duration
	now        func() time.Time
}

// DelivererOption configures optional deliverer behavior.
type DelivererOption func(*Deliverer)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) DelivererOption {
	return func(d *Deliverer) {
		if client != nil {
			d.httpClient = client
		}
	}
}

// WithAttemptTimeout overrides the per-attempt timeout.
func WithAttemptTimeout(timeout time.Duration) DelivererOption {
	return func(d *Deliverer) {
		if timeout > 0 {
			d.timeout = timeout
		}
	}
}

// NewDeliverer builds a delivery worker with the default per-attempt timeout.
func NewDeliverer(opts ...DelivererOption) *Deliverer {
	d := &Deliverer{
		timeout: defaultAttemptTimeout,
		now:     time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	if d.httpClient == nil {
		d.httpClient = &http.Client{}
	}
	return d
}

// Deliver posts the payload to the destination with signature headers and
// classifies the outcome. A 2xx response yields a DeliveryResult; anything
// else yields a DeliveryError with code http_error, timeout, or network_error.
func (d *Deliverer) Deliver(ctx context.Context, destinationURL string, eventType enums.WebhookEventType, payload []byte, secret string) (*DeliveryResult, *DeliveryError) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, destinationURL, bytes.NewReader(payload))
	if err != nil {
		return nil, &DeliveryError{Code: ErrCodeNetworkError, Message: err.Error()}
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", deliveryUserAgent)
	req.Header.Set(HeaderSignature, Sign(payload, secret))
	req.Header.Set(HeaderEvent, string(eventType))
	req.Header.Set(HeaderTimestamp, d.now().UTC().Format(time.RFC3339))

	resp, err := d.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			return nil, &DeliveryError{Code: ErrCodeTimeout, Message: err.Error()}
		}
		return nil, &DeliveryError{Code: ErrCodeNetworkError, Message: err.Error()}
	}
	defer func() { _ = resp.Body.Close() }()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &DeliveryError{
			Code:       ErrCodeHTTPError,
			Message:    strings.TrimSpace(string(body)),
			StatusCode: resp.StatusCode,
		}
	}

	return &DeliveryResult{
		StatusCode: resp.StatusCode,
		Body:       strings.TrimSpace(string(body)),
		Headers:    flattenHeaders(resp.Header),
	}, nil
}

func flattenHeaders(header http.Header) map[string]string {
	if len(header) == 0 {
		return nil
	}
	flat := make(map[string]string, len(header))
	for name, values := range header {
		if len(values) > 0 {
			flat[name] = values[0]
		}
	}
	return flat
}

func isTimeout(err error) bool {
	var netErr interface{ Timeout() bool }
	return errors.As(err, &netErr) && netErr.Timeout()
}

// MarshalResult encodes a delivery result for storage on the event row.
func MarshalResult(result *DeliveryResult) json.RawMessage {
	if result == nil {
		return nil
	}
	raw, err := json.Marshal(result)
	if err != nil {
		return nil
	}
	return raw
}

// MarshalError encodes a delivery error for storage on the event row.
func MarshalError(delErr *DeliveryError) json.RawMessage {
	if delErr == nil {
		return nil
	}
	raw, err := json.Marshal(delErr)
	if err != nil {
		return nil
	}
	return raw
}
