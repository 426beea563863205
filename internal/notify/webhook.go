package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"talon/internal/domain"
	"talon/internal/util"
)

// Compile-time interface check.
var _ Notifier = (*WebhookNotifier)(nil)

// WebhookNotifier posts notifications as JSON to a configured webhook URL
// (Slack/Discord-style incoming webhook). Delivery is retried a few times
// with backoff; a delivery that still fails is the caller's to log, not to
// act on.
type WebhookNotifier struct {
	url    string
	client *resty.Client
}

// NewWebhookNotifier creates a WebhookNotifier posting to url. Timeout
// bounds each delivery attempt; zero selects a 15-second default.
func NewWebhookNotifier(url string, timeout time.Duration) *WebhookNotifier {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	client := resty.New().
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json")
	return &WebhookNotifier{url: url, client: client}
}

type webhookPayload struct {
	Kind  string `json:"kind"`
	Label string `json:"label,omitempty"`
	Text  string `json:"text"`
}

// SendError posts an escalated failure.
func (n *WebhookNotifier) SendError(ctx context.Context, label string, err error) error {
	return n.post(ctx, webhookPayload{
		Kind:  "error",
		Label: label,
		Text:  fmt.Sprintf("%s: %v", label, err),
	})
}

// SendTrade posts an executed-trade report.
func (n *WebhookNotifier) SendTrade(ctx context.Context, notice domain.TradeNotice) error {
	return n.post(ctx, webhookPayload{
		Kind: "trade",
		Text: FormatTrade(notice),
	})
}

func (n *WebhookNotifier) post(ctx context.Context, payload webhookPayload) error {
	return util.Retry(ctx, 3, time.Second, func() error {
		resp, err := n.client.R().
			SetContext(ctx).
			SetBody(payload).
			Post(n.url)
		if err != nil {
			return err
		}
		if resp.IsError() {
			return fmt.Errorf("webhook status %d", resp.StatusCode())
		}
		return nil
	})
}
