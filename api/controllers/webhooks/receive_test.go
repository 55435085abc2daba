package webhooks

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	webhooksvc "github.com/mediavault/mediavault-backend/internal/webhooks"
	"github.com/mediavault/mediavault-backend/pkg/logger"
	"github.com/mediavault/mediavault-backend/pkg/types"
)

func testReceiveLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "receive-test", Output: io.Discard})
}

func TestReceiveAcceptsValidSignatureAndEchoesMetadata(t *testing.T) {
	secret := "inbound-secret"
	payload := []byte(`{"asset_id":"abc"}`)
	sentAt := "2026-05-12T09:45:00Z"

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/receive", bytes.NewReader(payload))
	req.Header.Set(webhooksvc.HeaderSignature, webhooksvc.Sign(payload, secret))
	req.Header.Set(webhooksvc.HeaderEvent, "asset.uploaded")
	req.Header.Set(webhooksvc.HeaderTimestamp, sentAt)
	w := httptest.NewRecorder()

	Receive(StaticSecret(secret), testReceiveLogger())(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200 but got %d: %s", w.Code, w.Body.String())
	}

	var envelope types.SuccessEnvelope
	if err := json.NewDecoder(w.Body).Decode(&envelope); err != nil {
		t.Fatalf("failed to decode success envelope: %v", err)
	}
	data, ok := envelope.Data.(map[string]any)
	if !ok {
		t.Fatalf("unexpected payload %v", envelope.Data)
	}
	if data["event_type"] != "asset.uploaded" {
		t.Fatalf("expected echoed event type, got %v", data["event_type"])
	}
	if data["timestamp"] != sentAt {
		t.Fatalf("expected echoed timestamp, got %v", data["timestamp"])
	}
}

func TestReceiveRejectsMissingSignature(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/receive", bytes.NewReader([]byte(`{}`)))
	w := httptest.NewRecorder()

	Receive(StaticSecret("inbound-secret"), testReceiveLogger())(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401 but got %d", w.Code)
	}
}

func TestReceiveRejectsBadSignature(t *testing.T) {
	payload := []byte(`{"asset_id":"abc"}`)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/receive", bytes.NewReader(payload))
	req.Header.Set(webhooksvc.HeaderSignature, webhooksvc.Sign(payload, "some-other-secret"))
	w := httptest.NewRecorder()

	Receive(StaticSecret("inbound-secret"), testReceiveLogger())(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401 but got %d", w.Code)
	}
}

func TestReceiveSignatureCoversExactBody(t *testing.T) {
	payload := []byte(`{"asset_id":"abc"}`)
	tampered := []byte(`{"asset_id":"xyz"}`)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/receive", bytes.NewReader(tampered))
	req.Header.Set(webhooksvc.HeaderSignature, webhooksvc.Sign(payload, "inbound-secret"))
	w := httptest.NewRecorder()

	Receive(StaticSecret("inbound-secret"), testReceiveLogger())(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401 but got %d", w.Code)
	}
}

func TestReceiveWithoutSecretConfigured(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/receive", bytes.NewReader([]byte(`{}`)))
	w := httptest.NewRecorder()

	Receive(StaticSecret(""), testReceiveLogger())(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected status 500 but got %d", w.Code)
	}
}
