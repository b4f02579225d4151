package opencloud

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/mitchellh/mapstructure"

	"rblxcloud/internal"
)

const (
	// SignatureHeader carries the notification signature
	SignatureHeader = "Roblox-Signature"

	maxNotificationAge  = 600 * time.Second
	maxNotificationSize = 1 << 20

	eventTypeTest                  = "SampleNotification"
	eventTypeRightToErasureRequest = "RightToErasureRequest"
)

// Notification is the envelope shared by every webhook event. Repeated IDs
// are redeliveries.
type Notification struct {
	ID        string
	Timestamp time.Time
	EventType string
	Webhook   *Webhook
}

func (n *Notification) String() string {
	return fmt.Sprintf("Notification(%s, %s)", n.EventType, n.ID)
}

// TestNotification is sent when "Test Response" is pressed on the webhook's
// configuration page.
type TestNotification struct {
	*Notification
	User *User
}

// RightToErasureRequestNotification is sent when a user asks Roblox to erase
// their data from the listed experiences.
type RightToErasureRequestNotification struct {
	*Notification
	UserID      int64
	Experiences []*Experience
}

type notificationEnvelope struct {
	NotificationID string         `mapstructure:"NotificationId"`
	EventType      string         `mapstructure:"EventType"`
	EventTime      string         `mapstructure:"EventTime"`
	EventPayload   map[string]any `mapstructure:"EventPayload"`
}

type testPayload struct {
	UserID int64 `mapstructure:"UserId"`
}

type erasurePayload struct {
	UserID  int64   `mapstructure:"UserId"`
	GameIDs []int64 `mapstructure:"GameIds"`
}

// Webhook validates and dispatches notifications sent by a Roblox webhook.
// Handlers are registered with OnTest and OnRightToErasureRequest.
type Webhook struct {
	// Secret is the webhook secret. An empty secret skips signature checks.
	Secret []byte
	// Client is given to objects built from notifications. It may be nil.
	Client *Client

	mu        sync.RWMutex
	onTest    func(*TestNotification) error
	onErasure func(*RightToErasureRequestNotification) error
	onError   func(*Notification, error)
	logger    *internal.SecureLogger
}

// NewWebhook creates a webhook for secret. client may be nil.
func NewWebhook(secret string, client *Client) *Webhook {
	logger := internal.NewNullLogger()
	if client != nil {
		logger = client.logger
	}
	return &Webhook{Secret: []byte(secret), Client: client, logger: logger}
}

// OnTest registers the handler for test notifications
func (w *Webhook) OnTest(fn func(*TestNotification) error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onTest = fn
}

// OnRightToErasureRequest registers the handler for erasure requests
func (w *Webhook) OnRightToErasureRequest(fn func(*RightToErasureRequestNotification) error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onErasure = fn
}

// OnError registers a handler for unknown events, unhandled events and
// handler errors. Without one those notifications get a 500 response.
func (w *Webhook) OnError(fn func(*Notification, error)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onError = fn
}

// VerifySignature checks a Roblox-Signature header of the form
// "t=<unix>,v1=<base64 signature>" against body. Notifications older than ten
// minutes are rejected.
func (w *Webhook) VerifySignature(body []byte, header string, now time.Time) bool {
	if len(w.Secret) > 0 && header == "" {
		return false
	}
	if header == "" {
		return true
	}

	fields := map[string]string{}
	for _, part := range strings.Split(header, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if ok {
			fields[key] = value
		}
	}

	timestamp, err := strconv.ParseInt(fields["t"], 10, 64)
	if err != nil {
		return false
	}

	if len(w.Secret) > 0 {
		signature, err := base64.StdEncoding.DecodeString(fields["v1"])
		if err != nil {
			return false
		}
		mac := hmac.New(sha256.New, w.Secret)
		mac.Write([]byte(fields["t"]))
		mac.Write([]byte("."))
		mac.Write(body)
		if !hmac.Equal(mac.Sum(nil), signature) {
			return false
		}
	}

	return now.Sub(time.Unix(timestamp, 0)) <= maxNotificationAge
}

// ProcessNotification validates and dispatches a notification body, returning
// the response text and status code to send back to Roblox.
func (w *Webhook) ProcessNotification(body []byte, signature string, validate bool) (string, int) {
	if validate && !w.VerifySignature(body, signature, time.Now()) {
		w.logger.Warn("rejected webhook notification with invalid signature")
		return "Invalid signature", http.StatusUnauthorized
	}

	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return "Invalid JSON body", http.StatusBadRequest
	}

	var envelope notificationEnvelope
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &envelope,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return "Internal Server Error", http.StatusInternalServerError
	}
	if err := decoder.Decode(raw); err != nil {
		return "Invalid notification", http.StatusBadRequest
	}

	notification := &Notification{
		ID:        envelope.NotificationID,
		Timestamp: parseTime(envelope.EventTime),
		EventType: envelope.EventType,
		Webhook:   w,
	}
	w.logger.Debug("received webhook notification %s (%s)", notification.ID, notification.EventType)

	if err := w.dispatch(notification, envelope.EventPayload); err != nil {
		w.mu.RLock()
		onError := w.onError
		w.mu.RUnlock()

		if onError == nil {
			w.logger.Error("webhook notification %s failed: %v", notification.ID, err)
			return "Internal Server Error", http.StatusInternalServerError
		}
		onError(notification, err)
	}
	return "", http.StatusNoContent
}

func (w *Webhook) dispatch(notification *Notification, payload map[string]any) error {
	w.mu.RLock()
	onTest, onErasure := w.onTest, w.onErasure
	w.mu.RUnlock()

	switch notification.EventType {
	case eventTypeTest:
		if onTest == nil {
			return unhandledEvent(notification.EventType)
		}
		var p testPayload
		if err := decodePayload(payload, &p); err != nil {
			return err
		}
		return onTest(&TestNotification{Notification: notification, User: w.user(p.UserID)})

	case eventTypeRightToErasureRequest:
		if onErasure == nil {
			return unhandledEvent(notification.EventType)
		}
		var p erasurePayload
		if err := decodePayload(payload, &p); err != nil {
			return err
		}
		event := &RightToErasureRequestNotification{Notification: notification, UserID: p.UserID}
		for _, id := range p.GameIDs {
			event.Experiences = append(event.Experiences, w.experience(id))
		}
		return onErasure(event)

	default:
		return &EventError{
			Type:      ErrorTypeUnknownEventType,
			EventType: notification.EventType,
			Message:   "unknown webhook event type",
		}
	}
}

func unhandledEvent(eventType string) error {
	return &EventError{
		Type:      ErrorTypeUnhandledEventType,
		EventType: eventType,
		Message:   "no handler registered for webhook event",
	}
}

func decodePayload(payload map[string]any, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return err
	}
	if err := decoder.Decode(payload); err != nil {
		return fmt.Errorf("failed to decode event payload: %w", err)
	}
	return nil
}

func (w *Webhook) user(id int64) *User {
	if w.Client != nil {
		return w.Client.User(id)
	}
	return newUser(id, nil)
}

func (w *Webhook) experience(id int64) *Experience {
	if w.Client != nil {
		return w.Client.Experience(id)
	}
	return &Experience{ID: id}
}

// ServeHTTP handles notifications POSTed by Roblox
func (w *Webhook) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(rw, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxNotificationSize))
	if err != nil {
		http.Error(rw, "failed to read body", http.StatusBadRequest)
		return
	}

	text, status := w.ProcessNotification(body, r.Header.Get(SignatureHeader), true)
	if status == http.StatusNoContent {
		rw.WriteHeader(status)
		return
	}
	http.Error(rw, text, status)
}
