package webhooks

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/jonboulle/clockwork"

	"marketplace/internal/db"
)

const dedupeTTL = 7 * 24 * time.Hour

type Deduper interface {
	// Claim returns true when the webhook was already processed.
	Claim(ctx context.Context, w Webhook) (bool, error)
	Release(ctx context.Context, w Webhook) error
}

type DedupeAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

// DynamoDeduper records webhook ids with a conditional put. Records expire after 7 days.
type DynamoDeduper struct {
	ddb   DedupeAPI
	table string
	clock clockwork.Clock
}

func NewDynamoDeduper(ddb DedupeAPI, table string, clock clockwork.Clock) *DynamoDeduper {
	return &DynamoDeduper{ddb: ddb, table: table, clock: clock}
}

func dedupeKey(id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: "WH#" + id},
	}
}

func (d *DynamoDeduper) Claim(ctx context.Context, w Webhook) (bool, error) {
	id := strings.TrimSpace(w.WebhookID)
	if id == "" {
		return false, nil
	}

	now := d.clock.Now().UTC()
	item := dedupeKey(id)
	item["Shop"] = &types.AttributeValueMemberS{Value: w.Shop}
	item["Topic"] = &types.AttributeValueMemberS{Value: w.Topic}
	item["CreatedAt"] = &types.AttributeValueMemberS{Value: now.Format(time.RFC3339)}
	item["ExpiresAt"] = &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", now.Add(dedupeTTL).Unix())}

	_, err := d.ddb.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(d.table),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(PK)"),
	})
	if err != nil {
		if db.IsConditionalCheckFailed(err) {
			return true, nil
		}
		return false, fmt.Errorf("dynamodb claim webhook: %w", err)
	}
	return false, nil
}

func (d *DynamoDeduper) Release(ctx context.Context, w Webhook) error {
	id := strings.TrimSpace(w.WebhookID)
	if id == "" {
		return nil
	}
	_, err := d.ddb.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(d.table),
		Key:       dedupeKey(id),
	})
	if err != nil {
		return fmt.Errorf("dynamodb release webhook: %w", err)
	}
	return nil
}

// Processor claims a webhook before dispatching it and releases the claim on failure
// so Shopify's retry gets processed.
type Processor struct {
	next    Dispatcher
	deduper Deduper
}

func NewProcessor(next Dispatcher, deduper Deduper) *Processor {
	return &Processor{next: next, deduper: deduper}
}

func (p *Processor) Dispatch(ctx context.Context, w Webhook) error {
	if p.deduper == nil {
		return p.next.Dispatch(ctx, w)
	}

	dup, err := p.deduper.Claim(ctx, w)
	if err != nil {
		return err
	}
	if dup {
		slog.InfoContext(ctx, "Duplicate webhook skipped", "topic", w.Topic, "shop", w.Shop, "webhook_id", w.WebhookID)
		return nil
	}

	if err := p.next.Dispatch(ctx, w); err != nil {
		if rerr := p.deduper.Release(ctx, w); rerr != nil {
			slog.ErrorContext(ctx, "Failed to release webhook claim", "webhook_id", w.WebhookID, "error", rerr)
		}
		return err
	}
	return nil
}
