package notify

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"greenpulse/internal/compliance"
	"greenpulse/internal/rules"
)

func eventUpdate() compliance.Update {
	return compliance.Update{
		Type: "event",
		Event: compliance.Event{
			ID:           "evt-1",
			StationID:    "st-1",
			Pollutant:    "pm25",
			Tier:         rules.TierFlag,
			PreviousTier: rules.TierMonitor,
			Observed:     77,
			Limit:        60,
			Escalation:   90,
			HorizonLabel: "24h",
			RuleRef:      "CPCB-NAAQS-2009/pm25/24h",
		},
	}
}

func TestWebhookNotifyPostsPayload(t *testing.T) {
	var got webhookPayload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &got); err != nil {
			t.Errorf("unmarshal: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	notifier := NewWebhookNotifier(server.URL, log.New(io.Discard, "", 0))
	notifier.Notify(context.Background(), eventUpdate())

	if got.MsgType != "text" {
		t.Fatalf("msgtype = %q", got.MsgType)
	}
	content := got.Text.Content
	for _, want := range []string{"st-1", "pm25", "MONITOR", "FLAG", "CPCB-NAAQS-2009/pm25/24h"} {
		if !strings.Contains(content, want) {
			t.Fatalf("content missing %q:\n%s", want, content)
		}
	}
}

func TestWebhookCooldownSuppressesRepeats(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	notifier := NewWebhookNotifier(server.URL, log.New(io.Discard, "", 0), WithWebhookCooldown(time.Hour))
	notifier.Notify(context.Background(), eventUpdate())
	notifier.Notify(context.Background(), eventUpdate())
	if calls.Load() != 1 {
		t.Fatalf("calls = %d, want 1", calls.Load())
	}

	// another station is an independent cooldown key
	other := eventUpdate()
	other.Event.StationID = "st-2"
	notifier.Notify(context.Background(), other)
	if calls.Load() != 2 {
		t.Fatalf("calls = %d, want 2", calls.Load())
	}
}

func TestWebhookFailureIsSwallowed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	notifier := NewWebhookNotifier(server.URL, log.New(io.Discard, "", 0))
	// must not panic or block
	notifier.Notify(context.Background(), eventUpdate())
}

func TestMultiNotifierFansOut(t *testing.T) {
	var first, second atomic.Int32
	multi := NewMultiNotifier(
		notifierFunc(func(context.Context, compliance.Update) { first.Add(1) }),
		notifierFunc(func(context.Context, compliance.Update) { second.Add(1) }),
	)
	multi.Notify(context.Background(), eventUpdate())
	if first.Load() != 1 || second.Load() != 1 {
		t.Fatalf("calls = (%d,%d), want (1,1)", first.Load(), second.Load())
	}
}

type notifierFunc func(ctx context.Context, update compliance.Update)

func (f notifierFunc) Notify(ctx context.Context, update compliance.Update) { f(ctx, update) }
