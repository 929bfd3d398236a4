package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

const shopIndex = "ShopIndex"

type DynamoAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// sessionItem mirrors the DynamoDB record. The access token is stored sealed.
type sessionItem struct {
	PK             string `dynamodbav:"PK"`
	Shop           string `dynamodbav:"Shop"`
	State          string `dynamodbav:"State,omitempty"`
	IsOnline       bool   `dynamodbav:"IsOnline"`
	Scope          string `dynamodbav:"Scope,omitempty"`
	AccessTokenEnc string `dynamodbav:"AccessTokenEnc"`
	Expires        string `dynamodbav:"Expires,omitempty"`
	ExpiresAt      int64  `dynamodbav:"ExpiresAt,omitempty"`
	UpdatedAt      string `dynamodbav:"UpdatedAt"`
}

type DynamoStore struct {
	ddb    DynamoAPI
	table  string
	sealer TokenSealer
}

func NewDynamoStore(ddb DynamoAPI, table string, sealer TokenSealer) *DynamoStore {
	return &DynamoStore{ddb: ddb, table: table, sealer: sealer}
}

func pk(id string) string {
	return "SESSION#" + id
}

func (d *DynamoStore) StoreSession(ctx context.Context, s *Session) error {
	enc, err := d.sealer.Seal(s.AccessToken)
	if err != nil {
		return fmt.Errorf("seal access token: %w", err)
	}

	item := sessionItem{
		PK:             pk(s.ID),
		Shop:           s.Shop,
		State:          s.State,
		IsOnline:       s.IsOnline,
		Scope:          s.Scope,
		AccessTokenEnc: enc,
		UpdatedAt:      time.Now().UTC().Format(time.RFC3339),
	}
	if s.Expires != nil {
		item.Expires = s.Expires.UTC().Format(time.RFC3339)
		item.ExpiresAt = s.Expires.Unix()
	}

	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return err
	}

	_, err = d.ddb.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(d.table),
		Item:      av,
	})
	if err != nil {
		return fmt.Errorf("dynamodb put session: %w", err)
	}
	return nil
}

func (d *DynamoStore) LoadSession(ctx context.Context, id string) (*Session, error) {
	out, err := d.ddb.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(d.table),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: pk(id)},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("dynamodb get session: %w", err)
	}
	if out.Item == nil {
		return nil, ErrNotFound
	}

	var item sessionItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, err
	}
	return d.fromItem(id, item)
}

func (d *DynamoStore) DeleteSession(ctx context.Context, id string) error {
	_, err := d.ddb.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(d.table),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: pk(id)},
		},
	})
	if err != nil {
		return fmt.Errorf("dynamodb delete session: %w", err)
	}
	return nil
}

func (d *DynamoStore) FindSessionsByShop(ctx context.Context, shop string) ([]*Session, error) {
	var (
		out  []*Session
		last map[string]types.AttributeValue
	)
	for {
		res, err := d.ddb.Query(ctx, &dynamodb.QueryInput{
			TableName:              aws.String(d.table),
			IndexName:              aws.String(shopIndex),
			KeyConditionExpression: aws.String("#s = :s"),
			ExpressionAttributeNames: map[string]string{
				"#s": "Shop",
			},
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":s": &types.AttributeValueMemberS{Value: shop},
			},
			ExclusiveStartKey: last,
		})
		if err != nil {
			return nil, fmt.Errorf("dynamodb query %s failed: %w", shopIndex, err)
		}

		var items []sessionItem
		if err := attributevalue.UnmarshalListOfMaps(res.Items, &items); err != nil {
			return nil, err
		}
		for _, it := range items {
			s, err := d.fromItem(strings.TrimPrefix(it.PK, "SESSION#"), it)
			if err != nil {
				return nil, err
			}
			out = append(out, s)
		}

		if len(res.LastEvaluatedKey) == 0 {
			return out, nil
		}
		last = res.LastEvaluatedKey
	}
}

func (d *DynamoStore) fromItem(id string, item sessionItem) (*Session, error) {
	if item.AccessTokenEnc == "" {
		return nil, errors.New("no AccessTokenEnc on record")
	}
	token, err := d.sealer.Open(item.AccessTokenEnc)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt token: %w", err)
	}

	s := &Session{
		ID:          id,
		Shop:        item.Shop,
		State:       item.State,
		IsOnline:    item.IsOnline,
		Scope:       item.Scope,
		AccessToken: token,
	}
	if item.Expires != "" {
		t, err := time.Parse(time.RFC3339, item.Expires)
		if err != nil {
			return nil, fmt.Errorf("parse Expires: %w", err)
		}
		s.Expires = &t
	}
	return s, nil
}
