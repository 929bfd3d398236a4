package webhooks

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"

	"marketplace/internal/security"
)

var (
	ErrNoHandler   = errors.New("no handler registered for topic")
	ErrInvalidHMAC = errors.New("webhook hmac verification failed")
	ErrMissingMeta = errors.New("webhook missing topic or shop")
)

const maxBodyBytes = 5 << 20

// Webhook is one delivery from Shopify, whether it arrived over HTTP or EventBridge.
type Webhook struct {
	Topic      string
	Shop       string
	WebhookID  string
	APIVersion string
	Payload    []byte
}

// NormalizeTopic maps "customers/data_request" to "CUSTOMERS_DATA_REQUEST".
func NormalizeTopic(topic string) string {
	t := strings.TrimSpace(topic)
	t = strings.ReplaceAll(t, "/", "_")
	return strings.ToUpper(t)
}

type Handler interface {
	Handle(ctx context.Context, w Webhook) error
}

type HandlerFunc func(ctx context.Context, w Webhook) error

func (f HandlerFunc) Handle(ctx context.Context, w Webhook) error { return f(ctx, w) }

type Dispatcher interface {
	Dispatch(ctx context.Context, w Webhook) error
}

// Registry routes webhooks to handlers by normalised topic.
type Registry struct {
	handlers map[string]Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

func (r *Registry) Register(topic string, h Handler) {
	r.handlers[NormalizeTopic(topic)] = h
}

func (r *Registry) Topics() []string {
	out := make([]string, 0, len(r.handlers))
	for t := range r.handlers {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

func (r *Registry) Dispatch(ctx context.Context, w Webhook) error {
	w.Topic = NormalizeTopic(w.Topic)
	h, ok := r.handlers[w.Topic]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoHandler, w.Topic)
	}
	return h.Handle(ctx, w)
}

// ParseRequest reads and authenticates a webhook POST.
func ParseRequest(r *http.Request, secret string) (Webhook, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return Webhook{}, fmt.Errorf("read webhook body: %w", err)
	}

	if !security.VerifyWebhookHMAC(body, r.Header.Get("X-Shopify-Hmac-Sha256"), secret) {
		return Webhook{}, ErrInvalidHMAC
	}

	w := Webhook{
		Topic:      NormalizeTopic(r.Header.Get("X-Shopify-Topic")),
		Shop:       strings.TrimSpace(r.Header.Get("X-Shopify-Shop-Domain")),
		WebhookID:  strings.TrimSpace(r.Header.Get("X-Shopify-Webhook-Id")),
		APIVersion: strings.TrimSpace(r.Header.Get("X-Shopify-API-Version")),
		Payload:    body,
	}
	if w.Topic == "" || w.Shop == "" {
		return Webhook{}, ErrMissingMeta
	}
	return w, nil
}
