package notifiers

import (
	"fmt"
	"net/url"

	"github.com/daniacca/stochkin/internal/kinetics"
)

// Config describes a notifier to create, as accepted by the HTTP API.
type Config struct {
	ID      string            `json:"id" yaml:"id"`
	Type    string            `json:"type" yaml:"type"`
	URL     string            `json:"url,omitempty" yaml:"url,omitempty"`
	Headers map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
	Secret  string            `json:"secret,omitempty" yaml:"secret,omitempty"`
	// AllowedOrigins lists the Origin values a websocket upgrade may carry.
	// Empty keeps the same-origin check; "*" allows any origin.
	AllowedOrigins []string `json:"allowed_origins,omitempty" yaml:"allowed_origins,omitempty"`
	EventFilter    `yaml:",inline"`
}

// New builds a notifier from its configuration.
func New(cfg Config) (kinetics.Notifier, error) {
	if cfg.ID == "" {
		return nil, fmt.Errorf("notifier id is required")
	}
	if err := cfg.EventFilter.validate(); err != nil {
		return nil, fmt.Errorf("notifier %s: %w", cfg.ID, err)
	}
	switch cfg.Type {
	case TypeWebhook:
		u, err := url.Parse(cfg.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return nil, fmt.Errorf("webhook notifier %s: invalid url %q", cfg.ID, cfg.URL)
		}
		return NewWebhookNotifier(cfg.ID, cfg.URL, WebhookOptions{
			Headers: cfg.Headers,
			Secret:  cfg.Secret,
			Filter:  cfg.EventFilter,
		}), nil
	case TypeWebSocket:
		return NewWebSocketNotifier(cfg.ID, WebSocketOptions{
			Filter:         cfg.EventFilter,
			AllowedOrigins: cfg.AllowedOrigins,
		}), nil
	default:
		return nil, fmt.Errorf("unsupported notifier type: %s", cfg.Type)
	}
}
