package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketplace/internal/config"
	"marketplace/internal/session"
	"marketplace/internal/webhooks"
)

func testConfig() *config.Config {
	return &config.Config{
		AppEnv:           "test",
		Port:             "3000",
		APIKey:           "api-key",
		APISecret:        "hush",
		Scopes:           "write_products",
		HostURL:          "https://app.example.com",
		APIVersion:       "2025-01",
		HTTPTimeout:      5 * time.Second,
		AuthPath:         "/api/auth",
		AuthCallbackPath: "/api/auth/callback",
		WebhookPath:      "/api/webhooks",
		SessionStorage:   "memory",
		ProxyRateLimit:   10,
		ProxyRateBurst:   20,
	}
}

func TestNew_Memory(t *testing.T) {
	a, err := New(context.Background(), testConfig(), WithClock(clockwork.NewFakeClock()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	rec := httptest.NewRecorder()
	a.Server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.IsType(t, &session.MemoryStore{}, a.Sessions)
}

func TestNew_UninstallDeletesSessions(t *testing.T) {
	ctx := context.Background()
	a, err := New(ctx, testConfig())
	require.NoError(t, err)

	require.NoError(t, a.Sessions.StoreSession(ctx, &session.Session{
		ID: session.OfflineID("a.myshopify.com"), Shop: "a.myshopify.com", AccessToken: "shpat",
	}))

	err = a.Dispatcher.Dispatch(ctx, webhooks.Webhook{Topic: webhooks.TopicAppUninstalled, Shop: "a.myshopify.com"})
	require.NoError(t, err)

	_, err = session.LoadOffline(ctx, a.Sessions, "a.myshopify.com")
	assert.ErrorIs(t, err, session.ErrNotFound)
}

func TestNew_PrivacyTopicsWithoutAWS(t *testing.T) {
	a, err := New(context.Background(), testConfig())
	require.NoError(t, err)

	for _, topic := range []string{webhooks.TopicCustomersDataRequest, webhooks.TopicCustomersRedact, webhooks.TopicShopRedact} {
		err := a.Dispatcher.Dispatch(context.Background(), webhooks.Webhook{Topic: topic, Shop: "a.myshopify.com", Payload: []byte(`{}`)})
		assert.NoError(t, err, topic)
	}
}

func TestNew_AWSBackedFeatures(t *testing.T) {
	cfg := testConfig()
	cfg.SessionStorage = "dynamodb"
	cfg.SessionsTable = "sessions"
	cfg.WebhookDedupeTable = "webhook-dedupe"
	cfg.GDPRArchiveBucket = "gdpr-archive"
	cfg.GDPRAlertsTopicARN = "arn:aws:sns:us-east-1:123456789012:gdpr"

	a, err := New(context.Background(), cfg, WithAWSConfig(aws.Config{Region: "us-east-1"}))
	require.NoError(t, err)

	assert.IsType(t, &session.DynamoStore{}, a.Sessions)
	assert.IsType(t, &webhooks.Processor{}, a.Dispatcher)
}

func TestNew_BadTokenKey(t *testing.T) {
	cfg := testConfig()
	cfg.TokenEncKeyB64 = "short"

	_, err := New(context.Background(), cfg)
	assert.Error(t, err)
}

func TestNew_BadRedisURL(t *testing.T) {
	cfg := testConfig()
	cfg.SessionStorage = "redis"
	cfg.RedisURL = "http://localhost:6379"

	_, err := New(context.Background(), cfg)
	assert.ErrorContains(t, err, "redis")
}
