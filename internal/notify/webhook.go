package notify

import (
	"context"
	"fmt"

	"github.com/wonny/predico/pkg/httputil"
)

// WebhookSink posts events as JSON to a fixed URL
type WebhookSink struct {
	client *httputil.Client
	url    string
}

// NewWebhookSink creates a webhook sink
func NewWebhookSink(client *httputil.Client, url string) *WebhookSink {
	return &WebhookSink{client: client, url: url}
}

// Name implements Sink
func (s *WebhookSink) Name() string { return "webhook" }

// Deliver implements Sink
func (s *WebhookSink) Deliver(ctx context.Context, e Event) error {
	if err := s.client.PostJSON(ctx, s.url, e); err != nil {
		return fmt.Errorf("webhook %s: %w", e.Template, err)
	}
	return nil
}
