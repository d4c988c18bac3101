package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"palcro/internal/events"
	"palcro/internal/observability/metrics"
)

// Webhook posts human-readable events to a Discord-compatible webhook URL.
// Every event is delivered on its own goroutine with its own deadline so a
// slow or dead webhook can never hold up a validation or issuance response.
type Webhook struct {
	url     string
	hc      *http.Client
	timeout time.Duration
}

func NewWebhook(url string, timeout time.Duration) *Webhook {
	return &Webhook{
		url: url,
		hc: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        10,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
		timeout: timeout,
	}
}

func (w *Webhook) KeyIssued(ev events.KeyIssued) {
	go w.post("key_issued", fmt.Sprintf("Key created: `%s` (expires %s)", ev.Key, ev.ExpiresAt.Format(time.RFC3339)))
}

func (w *Webhook) KeyBound(ev events.KeyBound) {
	go w.post("key_bound", fmt.Sprintf("Key `%s` bound to hardware `%s`", ev.Key, ev.HardwareID))
}

type webhookPayload struct {
	Content string `json:"content"`
}

func (w *Webhook) post(event, content string) {
	body, err := json.Marshal(webhookPayload{Content: content})
	if err != nil {
		metrics.NotificationsTotal.WithLabelValues(event, "failure").Inc()
		slog.Warn("webhook payload marshal failed", "event", event, "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		metrics.NotificationsTotal.WithLabelValues(event, "failure").Inc()
		slog.Warn("webhook request build failed", "event", event, "error", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.hc.Do(req)
	if err != nil {
		metrics.NotificationsTotal.WithLabelValues(event, "failure").Inc()
		slog.Warn("webhook delivery failed", "event", event, "error", err)
		return
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		metrics.NotificationsTotal.WithLabelValues(event, "failure").Inc()
		slog.Warn("webhook rejected event", "event", event, "status", resp.StatusCode)
		return
	}
	metrics.NotificationsTotal.WithLabelValues(event, "success").Inc()
}
