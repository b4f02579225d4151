package cmd

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"rblxcloud/internal"
	"rblxcloud/opencloud"
)

const shutdownTimeout = 10 * time.Second

var (
	webhookAddr string
	webhookPath string
)

var webhookCmd = &cobra.Command{
	Use:   "webhook",
	Short: "Receive Roblox webhook notifications",
}

type notificationOutput struct {
	ID          string    `json:"id"`
	EventType   string    `json:"event_type"`
	Timestamp   time.Time `json:"timestamp"`
	UserID      int64     `json:"user_id,omitempty"`
	Experiences []int64   `json:"experience_ids,omitempty"`
	Error       string    `json:"error,omitempty"`
}

// newWebhookHandler registers handlers that print every notification to out
func newWebhookHandler(cmd *cobra.Command, client *opencloud.Client) *opencloud.Webhook {
	webhook := opencloud.NewWebhook(config.WebhookSecret, client)

	var mu sync.Mutex
	emit := func(out notificationOutput) {
		mu.Lock()
		defer mu.Unlock()
		if err := printResult(cmd, out); err != nil {
			internal.LogError("Failed to print notification %s: %v", out.ID, err)
		}
	}

	webhook.OnTest(func(n *opencloud.TestNotification) error {
		internal.LogInfo("Test notification %s from user %d", n.ID, n.User.ID)
		emit(notificationOutput{ID: n.ID, EventType: n.EventType, Timestamp: n.Timestamp, UserID: n.User.ID})
		return nil
	})
	webhook.OnRightToErasureRequest(func(n *opencloud.RightToErasureRequestNotification) error {
		internal.LogInfo("Erasure request %s for user %d covering %d experiences", n.ID, n.UserID, len(n.Experiences))
		out := notificationOutput{ID: n.ID, EventType: n.EventType, Timestamp: n.Timestamp, UserID: n.UserID}
		for _, e := range n.Experiences {
			out.Experiences = append(out.Experiences, e.ID)
		}
		emit(out)
		return nil
	})
	webhook.OnError(func(n *opencloud.Notification, err error) {
		internal.LogWarn("Notification %s (%s) not handled: %v", n.ID, n.EventType, err)
		emit(notificationOutput{ID: n.ID, EventType: n.EventType, Timestamp: n.Timestamp, Error: err.Error()})
	})
	return webhook
}

var webhookServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run an HTTP server that verifies and prints notifications",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if config.WebhookSecret == "" {
			internal.LogWarn("No webhook secret configured, signatures will not be checked")
		}

		var client *opencloud.Client
		if config.APIKey != "" {
			var err error
			if client, err = newClient(); err != nil {
				return err
			}
		}

		addr := config.WebhookAddr
		if cmd.Flags().Changed("addr") {
			addr = webhookAddr
		}

		mux := http.NewServeMux()
		mux.Handle(webhookPath, otelhttp.NewHandler(newWebhookHandler(cmd, client), "webhook"))
		server := &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		}

		errChan := make(chan error, 1)
		go func() {
			internal.LogInfo("Listening for notifications on %s%s", addr, webhookPath)
			errChan <- server.ListenAndServe()
		}()

		select {
		case err := <-errChan:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		case <-cmd.Context().Done():
			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			internal.LogInfo("Shutting down webhook server")
			return server.Shutdown(ctx)
		}
	},
}

func init() {
	webhookServeCmd.Flags().StringVar(&webhookAddr, "addr", ":8080", "Listen address (env: RBLXCLOUD_WEBHOOK_ADDR)")
	webhookServeCmd.Flags().StringVar(&webhookPath, "path", "/", "Path notifications are POSTed to")

	webhookCmd.AddCommand(webhookServeCmd)
}
