package httpserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketplace/internal/session"
	"marketplace/internal/shopify"
)

func TestRequireSession_MissingToken(t *testing.T) {
	env := newTestEnv(t)
	env.install(t, testShop)

	for _, path := range []string{"/api/products/count", "/api/products/create", "/api/does-not-exist"} {
		rec := env.get(path)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
		assert.Contains(t, rec.Body.String(), `"type":"unauthorized"`, path)
	}
}

func TestRequireSession_BadToken(t *testing.T) {
	env := newTestEnv(t)
	env.install(t, testShop)

	req := httptest.NewRequest(http.MethodGet, "/api/products/count", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	assert.Equal(t, http.StatusUnauthorized, env.do(req).Code)

	env.clock.Advance(time.Hour)
	stale := env.sessionToken(t, testShop)
	env.clock.Advance(time.Hour)
	req = httptest.NewRequest(http.MethodGet, "/api/products/count", nil)
	req.Header.Set("Authorization", "Bearer "+stale)
	assert.Equal(t, http.StatusUnauthorized, env.do(req).Code)
}

func TestRequireSession_NotInstalled(t *testing.T) {
	env := newTestEnv(t)

	rec := env.authedGet(t, "/api/products/count", testShop)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "1", rec.Header().Get(headerReauthorize))
	assert.Equal(t, "https://app.example.com/api/auth?shop=a.myshopify.com", rec.Header().Get(headerReauthorizeURL))
}

func TestRequireSession_InsufficientScopes(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.sessions.StoreSession(context.Background(), &session.Session{
		ID: session.OfflineID(testShop), Shop: testShop, Scope: "read_orders", AccessToken: "t",
	}))

	rec := env.authedGet(t, "/api/products/count", testShop)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "1", rec.Header().Get(headerReauthorize))
}

func TestRequireSession_UnmatchedAPIRoute(t *testing.T) {
	env := newTestEnv(t)
	env.install(t, testShop)

	rec := env.authedGet(t, "/api/does-not-exist", testShop)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestProductCount(t *testing.T) {
	env := newTestEnv(t)
	env.install(t, testShop)
	env.commerce.count = 12

	rec := env.authedGet(t, "/api/products/count", testShop)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"count":12}`, rec.Body.String())
}

func TestProductCount_UpstreamFailure(t *testing.T) {
	env := newTestEnv(t)
	env.install(t, testShop)
	env.commerce.countErr = errors.New("timeout")

	rec := env.authedGet(t, "/api/products/count", testShop)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.JSONEq(t, `{"error":"failed to fetch product count","type":"external"}`, rec.Body.String())
}

func TestProductCount_RevokedToken(t *testing.T) {
	env := newTestEnv(t)
	env.install(t, testShop)
	env.commerce.countErr = &shopify.APIError{Op: "products count", StatusCode: http.StatusUnauthorized}

	rec := env.authedGet(t, "/api/products/count", testShop)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "1", rec.Header().Get(headerReauthorize))
}

func TestProductCreate_Success(t *testing.T) {
	env := newTestEnv(t)
	env.install(t, testShop)

	rec := env.authedGet(t, "/api/products/create", testShop)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true,"error":null}`, rec.Body.String())
	assert.Len(t, env.commerce.created, 5)
}

func TestProductCreate_Failure(t *testing.T) {
	env := newTestEnv(t)
	env.install(t, testShop)
	env.commerce.createFn = func(string) error { return fmt.Errorf("quota exceeded") }

	rec := env.authedGet(t, "/api/products/create", testShop)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"success":false,"error":"quota exceeded"}`, rec.Body.String())
}
