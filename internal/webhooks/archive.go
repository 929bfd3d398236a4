package webhooks

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Archiver writes payloads to gdpr/<topic>/<shop>/<webhook id>.json.
type S3Archiver struct {
	s3     S3API
	bucket string
}

func NewS3Archiver(client S3API, bucket string) *S3Archiver {
	return &S3Archiver{s3: client, bucket: bucket}
}

func archiveKey(w Webhook) string {
	id := strings.TrimSpace(w.WebhookID)
	if id == "" {
		id = uuid.NewString()
	}
	return fmt.Sprintf("gdpr/%s/%s/%s.json", strings.ToLower(w.Topic), w.Shop, id)
}

func (a *S3Archiver) Archive(ctx context.Context, w Webhook) (string, error) {
	key := archiveKey(w)
	_, err := a.s3.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(w.Payload),
		ContentType: aws.String("application/json"),
		Metadata: map[string]string{
			"shop":  w.Shop,
			"topic": w.Topic,
		},
	})
	if err != nil {
		return "", fmt.Errorf("s3 put %s: %w", key, err)
	}
	return key, nil
}
