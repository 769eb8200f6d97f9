package runner

import (
	"context"
	"fmt"
	"net/http"
)

// Webhook POSTs the node input to a configured URL and returns the
// response envelope (status, headers, body).
type Webhook struct {
	client *http.Client
}

// NewWebhook creates the webhook runner.
func NewWebhook() *Webhook {
	return &Webhook{client: &http.Client{Timeout: httpTimeout}}
}

func (w *Webhook) Run(ctx context.Context, in Input) (Result, error) {
	rawURL := configString(in.Config, "webhook_url")
	if rawURL == "" {
		rawURL = configString(in.Config, "url")
	}
	if rawURL == "" {
		return Result{}, fmt.Errorf("webhook URL not configured")
	}

	env, err := doRequest(ctx, w.client, http.MethodPost, rawURL, nil, asMap(in.Value))
	if err != nil {
		return Result{}, fmt.Errorf("webhook request failed: %w", err)
	}
	return Result{Output: env.asMap()}, nil
}
