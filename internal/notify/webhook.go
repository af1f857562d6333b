package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"greenpulse/internal/compliance"
)

// WebhookNotifier posts committed compliance updates to a webhook endpoint.
// Send failures are logged and dropped; the compliance record already
// committed and notification is best effort.
type WebhookNotifier struct {
	url      string
	client   *http.Client
	logger   *log.Logger
	cooldown time.Duration

	mu   sync.Mutex
	sent map[string]time.Time
}

type webhookPayload struct {
	MsgType string      `json:"msgtype"`
	Text    webhookText `json:"text"`
}

type webhookText struct {
	Content string `json:"content"`
}

// WebhookOption configures the notifier.
type WebhookOption func(*WebhookNotifier)

// WithWebhookClient overrides the default HTTP client.
func WithWebhookClient(client *http.Client) WebhookOption {
	return func(n *WebhookNotifier) {
		if client != nil {
			n.client = client
		}
	}
}

// WithWebhookCooldown sets a minimum interval between notifications for the
// same station and pollutant.
func WithWebhookCooldown(interval time.Duration) WebhookOption {
	return func(n *WebhookNotifier) {
		if interval > 0 {
			n.cooldown = interval
		}
	}
}

// NewWebhookNotifier constructs a notifier.
func NewWebhookNotifier(url string, logger *log.Logger, opts ...WebhookOption) *WebhookNotifier {
	n := &WebhookNotifier{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger,
		sent:   make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Notify implements compliance.Notifier.
func (n *WebhookNotifier) Notify(ctx context.Context, update compliance.Update) {
	if n == nil || n.url == "" {
		return
	}
	if !n.shouldSend(update) {
		return
	}
	content := formatUpdate(update)
	payload := webhookPayload{
		MsgType: "text",
		Text:    webhookText{Content: content},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := n.client.Do(req)
	if err != nil {
		n.logf("webhook notify failed: %v", err)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		n.logf("webhook notify failed: status %d", resp.StatusCode)
		return
	}
	n.markSent(update)
}

func (n *WebhookNotifier) shouldSend(update compliance.Update) bool {
	if n.cooldown <= 0 || update.Type != "event" {
		return true
	}
	key := update.Event.StationID + "|" + update.Event.Pollutant
	n.mu.Lock()
	defer n.mu.Unlock()
	last, ok := n.sent[key]
	return !ok || time.Since(last) >= n.cooldown
}

func (n *WebhookNotifier) markSent(update compliance.Update) {
	if n.cooldown <= 0 || update.Type != "event" {
		return
	}
	key := update.Event.StationID + "|" + update.Event.Pollutant
	n.mu.Lock()
	n.sent[key] = time.Now()
	n.mu.Unlock()
}

func (n *WebhookNotifier) logf(format string, args ...any) {
	if n.logger != nil {
		n.logger.Printf(format, args...)
	}
}

func formatUpdate(update compliance.Update) string {
	event := update.Event
	var b strings.Builder
	if update.Type == "action" && update.Action != nil {
		b.WriteString("[Officer Action]\n")
		fmt.Fprintf(&b, "Event: %s\n", update.Action.EventID)
		fmt.Fprintf(&b, "Action: %s by %s\n", update.Action.Type, update.Action.Actor)
		if update.Action.Reason != "" {
			fmt.Fprintf(&b, "Reason: %s\n", update.Action.Reason)
		}
		fmt.Fprintf(&b, "Status: %s\n", event.Status)
		return strings.TrimSpace(b.String())
	}
	b.WriteString("[Compliance Event]\n")
	fmt.Fprintf(&b, "Station: %s\n", event.StationID)
	fmt.Fprintf(&b, "Pollutant: %s (%s avg)\n", event.Pollutant, event.HorizonLabel)
	fmt.Fprintf(&b, "Tier: %s -> %s\n", event.PreviousTier, event.Tier)
	fmt.Fprintf(&b, "Observed: %.2f (limit %.2f, escalation %.2f)\n",
		event.Observed, event.Limit, event.Escalation)
	fmt.Fprintf(&b, "Rule: %s\n", event.RuleRef)
	if event.RepeatBreach {
		b.WriteString("Repeat breach within 48h\n")
	}
	return strings.TrimSpace(b.String())
}
