package webhooks

import (
	"io"
	"net/http"

	"github.com/mediavault/mediavault-backend/api/responses"
	webhooksvc "github.com/mediavault/mediavault-backend/internal/webhooks"
	pkgerrors "github.com/mediavault/mediavault-backend/pkg/errors"
	"github.com/mediavault/mediavault-backend/pkg/logger"
)

const receiveBodyLimit = 1 << 20

type secretSource interface {
	SigningSecret() string
}

// StaticSecret adapts a configured secret string to the secretSource interface.
type StaticSecret string

func (s StaticSecret) SigningSecret() string { return string(s) }

// Receive verifies an inbound webhook signed the way this service signs its
// own deliveries. It exists so operators can point a subscription back at the
// service and confirm the signature scheme end to end.
func Receive(source secretSource, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if source == nil || source.SigningSecret() == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "signing secret unavailable"))
			return
		}

		payload, err := io.ReadAll(io.LimitReader(r.Body, receiveBodyLimit))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request body"))
			return
		}

		signature := r.Header.Get(webhooksvc.HeaderSignature)
		if signature == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "webhook signature missing"))
			return
		}

		if !webhooksvc.VerifySignature(payload, source.SigningSecret(), signature) {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "webhook signature mismatch"))
			return
		}

		eventType := r.Header.Get(webhooksvc.HeaderEvent)
		timestamp := r.Header.Get(webhooksvc.HeaderTimestamp)
		if logg != nil {
			logg.Info(logg.WithField(ctx, "event_type", eventType), "inbound webhook verified")
		}
		responses.WriteSuccess(w, map[string]string{
			"event_type": eventType,
			"timestamp":  timestamp,
		})
	}
}
