package webhooks

import "time"

const (
	defaultBaseRetryDelay = time.Second
	defaultMaxAttempts    = 3
)

// BackoffPolicy computes retry schedules for failed deliveries.
//
// The exponent convention: attemptsBefore is the attempt count recorded before
// the current failure, so the first retry after the initial attempt waits
// BaseDelay * 2^0, the second BaseDelay * 2^1, and so on.
type BackoffPolicy struct {
	BaseDelay   time.Duration
	MaxAttempts int

	now func() time.Time
}

// NewBackoffPolicy builds a policy, falling back to the defaults (1s base,
// 3 total attempts) for non-positive values.
func NewBackoffPolicy(baseDelay time.Duration, maxAttempts int) *BackoffPolicy {
	if baseDelay <= 0 {
		baseDelay = defaultBaseRetryDelay
	}
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	return &BackoffPolicy{
		BaseDelay:   baseDelay,
		MaxAttempts: maxAttempts,
		now:         time.Now,
	}
}

// Delay returns the backoff delay for a failure recorded after attemptsBefore
// prior attempts. No jitter is applied.
func (p *BackoffPolicy) Delay(attemptsBefore int) time.Duration {
	if attemptsBefore < 0 {
		attemptsBefore = 0
	}
	return p.BaseDelay << uint(attemptsBefore)
}

// NextRetryAt returns when the event becomes due again, or nil when the retry
// ceiling is reached and the event must be marked permanently failed.
func (p *BackoffPolicy) NextRetryAt(attemptsBefore int) *time.Time {
	if attemptsBefore+1 >= p.MaxAttempts {
		return nil
	}
	at := p.now().UTC().Add(p.Delay(attemptsBefore))
	return &at
}
