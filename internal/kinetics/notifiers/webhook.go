package notifiers

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/daniacca/stochkin/internal/kinetics"
)

const TypeWebhook = "webhook"

// Headers set on every delivery.
const (
	HeaderEvent     = "X-Stochkin-Event"
	HeaderRun       = "X-Stochkin-Run"
	HeaderDelivery  = "X-Stochkin-Delivery"
	HeaderSignature = "X-Stochkin-Signature"
)

const (
	defaultWebhookTimeout = 5 * time.Second
	maxErrorSnippet       = 512
)

// WebhookOptions tunes a webhook notifier.
type WebhookOptions struct {
	// Headers are added to every request, e.g. an auth token.
	Headers map[string]string
	// Secret, when set, signs each body with HMAC-SHA256. The hex digest is
	// sent as "sha256=<digest>" in the X-Stochkin-Signature header.
	Secret  string
	Filter  EventFilter
	Timeout time.Duration
}

// WebhookNotifier POSTs matching run events as JSON to a fixed URL.
//
// A 2xx answer is a delivery. 408, 429 and 5xx answers and transport errors
// are returned as plain errors and retried by the notification manager; any
// other status is a permanent rejection and is not retried.
type WebhookNotifier struct {
	id      string
	url     string
	client  *http.Client
	headers map[string]string
	secret  []byte
	filter  EventFilter
}

func NewWebhookNotifier(id, url string, opts WebhookOptions) *WebhookNotifier {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultWebhookTimeout
	}
	headers := make(map[string]string, len(opts.Headers))
	for k, v := range opts.Headers {
		headers[k] = v
	}
	wn := &WebhookNotifier{
		id:      id,
		url:     url,
		client:  &http.Client{Timeout: timeout},
		headers: headers,
		filter:  opts.Filter,
	}
	if opts.Secret != "" {
		wn.secret = []byte(opts.Secret)
	}
	return wn
}

func (wn *WebhookNotifier) ID() string   { return wn.id }
func (wn *WebhookNotifier) Type() string { return TypeWebhook }
func (wn *WebhookNotifier) URL() string  { return wn.url }

// Notify delivers the event, or does nothing when the filter rejects it.
func (wn *WebhookNotifier) Notify(ctx context.Context, event kinetics.RunEvent) error {
	if !wn.filter.Match(event) {
		return nil
	}
	body, err := event.JSON()
	if err != nil {
		return kinetics.Permanent(fmt.Errorf("failed to marshal event: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, wn.url, bytes.NewReader(body))
	if err != nil {
		return kinetics.Permanent(fmt.Errorf("failed to create request: %w", err))
	}
	for key, value := range wn.headers {
		req.Header.Set(key, value)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderEvent, event.Type)
	req.Header.Set(HeaderRun, string(event.RunID))
	req.Header.Set(HeaderDelivery, uuid.NewString())
	if wn.secret != nil {
		req.Header.Set(HeaderSignature, "sha256="+Sign(wn.secret, body))
	}

	resp, err := wn.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send webhook: %w", err)
	}
	defer resp.Body.Close()
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorSnippet))
	_, _ = io.Copy(io.Discard, resp.Body)

	return classifyStatus(resp.StatusCode, snippet)
}

func classifyStatus(code int, snippet []byte) error {
	if code >= 200 && code < 300 {
		return nil
	}
	err := fmt.Errorf("webhook returned status %d", code)
	if msg := bytes.TrimSpace(snippet); len(msg) > 0 {
		err = fmt.Errorf("webhook returned status %d: %s", code, msg)
	}
	switch {
	case code == http.StatusRequestTimeout, code == http.StatusTooManyRequests, code >= 500:
		return err
	default:
		return kinetics.Permanent(err)
	}
}

// Sign returns the hex HMAC-SHA256 of body under secret, as sent in the
// signature header. Receivers recompute it to authenticate deliveries.
func Sign(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Close is a no-op; webhooks hold no connections.
func (wn *WebhookNotifier) Close() error {
	return nil
}
