package webhooks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/jonboulle/clockwork"
)

type SNSAPI interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SNSNotifier tells the operators' topic that a privacy request needs attention.
type SNSNotifier struct {
	sns      SNSAPI
	topicARN string
	clock    clockwork.Clock
}

func NewSNSNotifier(client SNSAPI, topicARN string, clock clockwork.Clock) *SNSNotifier {
	return &SNSNotifier{sns: client, topicARN: topicARN, clock: clock}
}

func (n *SNSNotifier) Notify(ctx context.Context, w Webhook, archiveKey string) error {
	subject, message := n.buildMessage(w, archiveKey)
	_, err := n.sns.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(n.topicARN),
		Subject:  aws.String(subject),
		Message:  aws.String(message),
	})
	if err != nil {
		return fmt.Errorf("sns publish: %w", err)
	}
	return nil
}

func (n *SNSNotifier) buildMessage(w Webhook, archiveKey string) (subject string, body string) {
	var payload map[string]any
	dec := json.NewDecoder(bytes.NewReader(w.Payload))
	dec.UseNumber()
	_ = dec.Decode(&payload)

	subject = fmt.Sprintf("Privacy request: %s (%s)", w.Topic, w.Shop)

	lines := []string{
		"Shopify privacy webhook",
		"",
		fmt.Sprintf("Shop: %s", w.Shop),
		fmt.Sprintf("Topic: %s", w.Topic),
	}
	if w.WebhookID != "" {
		lines = append(lines, fmt.Sprintf("WebhookId: %s", w.WebhookID))
	}
	if c := asMap(pickAny(payload, "customer")); len(c) > 0 {
		if id := pickAny(c, "id"); id != nil {
			lines = append(lines, fmt.Sprintf("CustomerId: %v", id))
		}
		if email := pickString(c, "email"); email != "" {
			lines = append(lines, fmt.Sprintf("CustomerEmail: %s", email))
		}
	}
	if orders, ok := pickAny(payload, "orders_requested", "orders_to_redact").([]any); ok && len(orders) > 0 {
		lines = append(lines, fmt.Sprintf("Orders: %d", len(orders)))
	}
	if archiveKey != "" {
		lines = append(lines, fmt.Sprintf("Archive: %s", archiveKey))
	}
	lines = append(lines, "", fmt.Sprintf("ReceivedAt: %s", n.clock.Now().UTC().Format(time.RFC3339)))

	return subject, strings.Join(lines, "\n")
}
