package opencloud

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const webhookSecret = "webhook-secret"

func sign(secret string, body []byte, at time.Time) string {
	ts := strconv.FormatInt(at.Unix(), 10)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(ts + "."))
	mac.Write(body)
	return fmt.Sprintf("t=%s,v1=%s", ts, base64.StdEncoding.EncodeToString(mac.Sum(nil)))
}

func notificationBody(eventType, payload string) []byte {
	return []byte(fmt.Sprintf(`{
		"NotificationId": "5f3e2c1a",
		"EventType": %q,
		"EventTime": "2024-05-01T12:00:00.000Z",
		"EventPayload": %s
	}`, eventType, payload))
}

func TestWebhook_VerifySignature(t *testing.T) {
	hook := NewWebhook(webhookSecret, nil)
	body := notificationBody("SampleNotification", `{"UserId": 1}`)
	now := time.Now()

	assert.True(t, hook.VerifySignature(body, sign(webhookSecret, body, now), now))
	assert.False(t, hook.VerifySignature(body, sign("wrong", body, now), now))
	assert.False(t, hook.VerifySignature([]byte("{}"), sign(webhookSecret, body, now), now))
	assert.False(t, hook.VerifySignature(body, "", now))
	assert.False(t, hook.VerifySignature(body, "v1=abc", now))
	assert.False(t, hook.VerifySignature(body, sign(webhookSecret, body, now.Add(-11*time.Minute)), now))

	open := NewWebhook("", nil)
	assert.True(t, open.VerifySignature(body, "", now))
	assert.True(t, open.VerifySignature(body, fmt.Sprintf("t=%d", now.Unix()), now))
	assert.False(t, open.VerifySignature(body, fmt.Sprintf("t=%d", now.Add(-time.Hour).Unix()), now))
}

func TestWebhook_TestNotification(t *testing.T) {
	hook := NewWebhook(webhookSecret, nil)
	var received *TestNotification
	hook.OnTest(func(n *TestNotification) error {
		received = n
		return nil
	})

	body := notificationBody("SampleNotification", `{"UserId": "156"}`)
	text, status := hook.ProcessNotification(body, sign(webhookSecret, body, time.Now()), true)
	assert.Equal(t, http.StatusNoContent, status)
	assert.Empty(t, text)

	require.NotNil(t, received)
	assert.Equal(t, "5f3e2c1a", received.ID)
	assert.Equal(t, "SampleNotification", received.EventType)
	assert.Equal(t, 2024, received.Timestamp.Year())
	assert.Same(t, hook, received.Webhook)
	assert.Equal(t, int64(156), received.User.ID)
}

func TestWebhook_RightToErasureRequest(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r capturedRequest) {})
	hook := NewWebhook(webhookSecret, client)
	var received *RightToErasureRequestNotification
	hook.OnRightToErasureRequest(func(n *RightToErasureRequestNotification) error {
		received = n
		return nil
	})

	body := notificationBody("RightToErasureRequest", `{"UserId": 156, "GameIds": [9, 10]}`)
	_, status := hook.ProcessNotification(body, sign(webhookSecret, body, time.Now()), true)
	assert.Equal(t, http.StatusNoContent, status)

	require.NotNil(t, received)
	assert.Equal(t, int64(156), received.UserID)
	require.Len(t, received.Experiences, 2)
	assert.Equal(t, int64(10), received.Experiences[1].ID)
}

func TestWebhook_Rejections(t *testing.T) {
	hook := NewWebhook(webhookSecret, nil)
	hook.OnTest(func(*TestNotification) error { return nil })
	body := notificationBody("SampleNotification", `{}`)

	text, status := hook.ProcessNotification(body, sign("wrong", body, time.Now()), true)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "Invalid signature", text)

	_, status = hook.ProcessNotification(body, "", false)
	assert.Equal(t, http.StatusNoContent, status)

	garbage := []byte("not json")
	_, status = hook.ProcessNotification(garbage, sign(webhookSecret, garbage, time.Now()), true)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestWebhook_Errors(t *testing.T) {
	handlerErr := errors.New("database unavailable")
	tests := []struct {
		name      string
		eventType string
		onTest    func(*TestNotification) error
		want      error
	}{
		{"unknown_event", "SomethingNew", nil, ErrUnknownEventType},
		{"unhandled_event", "RightToErasureRequest", nil, ErrUnhandledEventType},
		{"handler_error", "SampleNotification", func(*TestNotification) error { return handlerErr }, handlerErr},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := notificationBody(tt.eventType, `{"UserId": 1}`)

			hook := NewWebhook("", nil)
			if tt.onTest != nil {
				hook.OnTest(tt.onTest)
			}
			text, status := hook.ProcessNotification(body, "", false)
			assert.Equal(t, http.StatusInternalServerError, status)
			assert.Equal(t, "Internal Server Error", text)

			var got error
			var gotNotification *Notification
			hook.OnError(func(n *Notification, err error) {
				gotNotification, got = n, err
			})
			_, status = hook.ProcessNotification(body, "", false)
			assert.Equal(t, http.StatusNoContent, status)
			assert.True(t, errors.Is(got, tt.want), "got %v", got)
			require.NotNil(t, gotNotification)
			assert.Equal(t, tt.eventType, gotNotification.EventType)
		})
	}
}

func TestWebhook_ServeHTTP(t *testing.T) {
	hook := NewWebhook(webhookSecret, nil)
	calls := 0
	hook.OnTest(func(*TestNotification) error {
		calls++
		return nil
	})
	server := httptest.NewServer(hook)
	t.Cleanup(server.Close)

	body := notificationBody("SampleNotification", `{"UserId": 1}`)
	req, err := http.NewRequest(http.MethodPost, server.URL, strings.NewReader(string(body)))
	require.NoError(t, err)
	req.Header.Set(SignatureHeader, sign(webhookSecret, body, time.Now()))
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, 1, calls)

	resp, err = http.Post(server.URL, "application/json", strings.NewReader(string(body)))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, err = http.Get(server.URL)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	assert.Equal(t, 1, calls)
}
