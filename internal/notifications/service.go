package notifications

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"winivox/internal/config"
)

const (
	userAgent      = "Winivox-Go/0.1.0"
	defaultTimeout = 10 * time.Second
)

// Event names a notification-worthy pipeline outcome.
type Event string

const (
	EventPublished   Event = "published"
	EventRejected    Event = "rejected"
	EventQuarantined Event = "quarantined"
	EventError       Event = "error"
	EventTest        Event = "test"
)

// Payload carries event details. Well-known keys: submission_id, title,
// summary, high_potential, reason, error, context.
type Payload map[string]any

func (p Payload) text(key string) string {
	if p == nil {
		return ""
	}
	switch v := p[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case nil:
		return ""
	case error:
		return strings.TrimSpace(v.Error())
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

func (p Payload) flag(key string) bool {
	if p == nil {
		return false
	}
	v, _ := p[key].(bool)
	return v
}

// Service publishes events.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds the configured transports. When nothing is configured a
// no-op implementation is returned.
func NewService(cfg *config.Config) Service {
	if cfg == nil {
		return noopService{}
	}
	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	client := &http.Client{Timeout: timeout}

	var services multiService
	if topic := strings.TrimSpace(cfg.Notifications.NtfyTopic); topic != "" {
		services = append(services, &ntfyService{endpoint: topic, client: client})
	}
	if url := strings.TrimSpace(cfg.Notifications.WebhookURL); url != "" {
		webhook, err := newWebhookService(url, client)
		if err == nil {
			services = append(services, webhook)
		}
	}
	switch len(services) {
	case 0:
		return noopService{}
	case 1:
		return services[0]
	default:
		return services
	}
}

type multiService []Service

func (m multiService) Publish(ctx context.Context, event Event, payload Payload) error {
	var errs []error
	for _, svc := range m {
		if err := svc.Publish(ctx, event, payload); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }
