package webhooks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aws/aws-lambda-go/events"
)

// EBEvent is a Shopify webhook delivered through an EventBridge partner event source.
type EBEvent struct {
	DetailType string         `json:"detail-type"`
	Source     string         `json:"source"`
	Time       string         `json:"time"`
	Detail     map[string]any `json:"detail"`
}

// ParseEventBridge turns an SQS message body carrying an EBEvent into a Webhook.
func ParseEventBridge(body string) (Webhook, error) {
	var e EBEvent
	if err := json.Unmarshal([]byte(body), &e); err != nil {
		return Webhook{}, fmt.Errorf("unmarshal eb event: %w", err)
	}

	meta := asMap(pickAny(e.Detail, "metadata"))
	w := Webhook{
		Topic:      NormalizeTopic(pickString(meta, "X-Shopify-Topic")),
		Shop:       pickString(meta, "X-Shopify-Shop-Domain"),
		WebhookID:  pickString(meta, "X-Shopify-Webhook-Id"),
		APIVersion: pickString(meta, "X-Shopify-API-Version"),
	}
	if w.Topic == "" || w.Shop == "" {
		return Webhook{}, ErrMissingMeta
	}

	payload, err := json.Marshal(pickAny(e.Detail, "payload"))
	if err != nil {
		return Webhook{}, fmt.Errorf("marshal payload: %w", err)
	}
	w.Payload = payload
	return w, nil
}

// SQSHandler dispatches each record and reports failed ones back to SQS so only
// those are retried. Malformed records and topics without a handler are dropped.
func SQSHandler(d Dispatcher) func(ctx context.Context, sqsEvent events.SQSEvent) (events.SQSEventResponse, error) {
	return func(ctx context.Context, sqsEvent events.SQSEvent) (events.SQSEventResponse, error) {
		failures := make([]events.SQSBatchItemFailure, 0)

		for _, rec := range sqsEvent.Records {
			w, err := ParseEventBridge(rec.Body)
			if err != nil {
				slog.WarnContext(ctx, "Skipping malformed webhook message", "message_id", rec.MessageId, "error", err)
				continue
			}

			err = d.Dispatch(ctx, w)
			switch {
			case err == nil:
				slog.InfoContext(ctx, "Webhook processed", "topic", w.Topic, "shop", w.Shop, "message_id", rec.MessageId)
			case errors.Is(err, ErrNoHandler):
				slog.WarnContext(ctx, "No handler for webhook topic", "topic", w.Topic, "message_id", rec.MessageId)
			default:
				slog.ErrorContext(ctx, "Webhook processing failed", "topic", w.Topic, "shop", w.Shop, "message_id", rec.MessageId, "error", err)
				failures = append(failures, events.SQSBatchItemFailure{ItemIdentifier: rec.MessageId})
			}
		}

		return events.SQSEventResponse{BatchItemFailures: failures}, nil
	}
}

func pickString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			if s, ok := v.(string); ok && s != "" {
				return s
			}
		}
	}
	return ""
}

func pickAny(m map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			return v
		}
	}
	return nil
}

func asMap(v any) map[string]any {
	if m, ok := v.(map[string]any); ok {
		return m
	}
	return map[string]any{}
}
