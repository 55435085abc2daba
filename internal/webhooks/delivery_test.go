package webhooks

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mediavault/mediavault-backend/pkg/enums"
)

func TestDeliverSuccessSetsSignatureHeaders(t *testing.T) {
	payload := []byte(`{"asset_id":"a-1"}`)
	secret := "test-secret"

	var gotSignature, gotEvent, gotTimestamp, gotUserAgent, gotContentType string
	var gotBody []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSignature = r.Header.Get(HeaderSignature)
		gotEvent = r.Header.Get(HeaderEvent)
		gotTimestamp = r.Header.Get(HeaderTimestamp)
		gotUserAgent = r.Header.Get("User-Agent")
		gotContentType = r.Header.Get("Content-Type")
		gotBody, _ = io.ReadAll(r.Body)
		w.Header().Set("X-Receiver-Id", "recv-1")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}))
	defer server.Close()

	frozen := time.Date(2026, 5, 12, 9, 45, 0, 0, time.UTC)
	deliverer := NewDeliverer()
	deliverer.now = func() time.Time { return frozen }

	result, delErr := deliverer.Deliver(context.Background(), server.URL, enums.WebhookEventTypeAssetUploaded, payload, secret)
	require.Nil(t, delErr)
	require.NotNil(t, result)
	require.Equal(t, http.StatusOK, result.StatusCode)
	require.Equal(t, "ok", result.Body)
	require.Equal(t, "recv-1", result.Headers["X-Receiver-Id"])

	require.Equal(t, payload, gotBody)
	require.Equal(t, Sign(payload, secret), gotSignature)
	require.True(t, VerifySignature(gotBody, secret, gotSignature))
	require.Equal(t, string(enums.WebhookEventTypeAssetUploaded), gotEvent)
	require.Equal(t, frozen.Format(time.RFC3339), gotTimestamp)
	parsedTimestamp, err := time.Parse(time.RFC3339, gotTimestamp)
	require.NoError(t, err)
	require.True(t, parsedTimestamp.Equal(frozen))
	require.Equal(t, "MediaVault-Webhook/1.0", gotUserAgent)
	require.Equal(t, "application/json", gotContentType)
}

func TestDeliverNon2xxIsHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("boom"))
	}))
	defer server.Close()

	deliverer := NewDeliverer()
	result, delErr := deliverer.Deliver(context.Background(), server.URL, enums.WebhookEventTypeTest, []byte(`{}`), "s")
	require.Nil(t, result)
	require.NotNil(t, delErr)
	require.Equal(t, ErrCodeHTTPError, delErr.Code)
	require.Equal(t, http.StatusInternalServerError, delErr.StatusCode)
	require.Equal(t, "boom", delErr.Message)
}

func TestDeliverNoContentIsSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	deliverer := NewDeliverer()
	result, delErr := deliverer.Deliver(context.Background(), server.URL, enums.WebhookEventTypeTest, []byte(`{}`), "s")
	require.Nil(t, delErr)
	require.NotNil(t, result)
	require.Equal(t, http.StatusNoContent, result.StatusCode)
}

func TestDeliverTimeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer server.Close()
	defer close(release)

	deliverer := NewDeliverer(WithAttemptTimeout(50 * time.Millisecond))
	result, delErr := deliverer.Deliver(context.Background(), server.URL, enums.WebhookEventTypeTest, []byte(`{}`), "s")
	require.Nil(t, result)
	require.NotNil(t, delErr)
	require.Equal(t, ErrCodeTimeout, delErr.Code)
}

func TestDeliverConnectionRefusedIsNetworkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	target := server.URL
	server.Close()

	deliverer := NewDeliverer()
	result, delErr := deliverer.Deliver(context.Background(), target, enums.WebhookEventTypeTest, []byte(`{}`), "s")
	require.Nil(t, result)
	require.NotNil(t, delErr)
	require.Equal(t, ErrCodeNetworkError, delErr.Code)
}

func TestMarshalResultAndError(t *testing.T) {
	raw := MarshalResult(&DeliveryResult{StatusCode: 200, Body: "ok"})
	require.NotNil(t, raw)

	var decoded DeliveryResult
	require.NoError(t, json.Unmarshal(raw, &decoded))
	require.Equal(t, 200, decoded.StatusCode)

	require.Nil(t, MarshalResult(nil))
	require.Nil(t, MarshalError(nil))

	rawErr := MarshalError(&DeliveryError{Code: ErrCodeHTTPError, StatusCode: 503, Message: "unavailable"})
	var decodedErr DeliveryError
	require.NoError(t, json.Unmarshal(rawErr, &decodedErr))
	require.Equal(t, ErrCodeHTTPError, decodedErr.Code)
	require.Equal(t, 503, decodedErr.StatusCode)
}
