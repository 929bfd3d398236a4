package httpserver

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func proxyParams(shop string) url.Values {
	q := url.Values{
		"path_prefix":           {"/apps/qbtestappclient"},
		"timestamp":             {"1700000000"},
		"logged_in_customer_id": {""},
	}
	if shop != "" {
		q.Set("shop", shop)
	}
	return q
}

func TestProxyProductCount_MissingSignature(t *testing.T) {
	env := newTestEnv(t)
	env.install(t, testShop)

	rec := env.get("/api/products-count?" + proxyParams(testShop).Encode())
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, rec.Body.String())
}

func TestProxyProductCount_TamperedSignature(t *testing.T) {
	env := newTestEnv(t)
	env.install(t, testShop)

	target := signedProxyURL(proxyParams(testShop))
	u, err := url.Parse(target)
	require.NoError(t, err)
	q := u.Query()
	q.Set("shop", "b.myshopify.com")

	rec := env.get("/api/products-count?" + q.Encode())
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, rec.Body.String())
}

func TestProxyProductCount_IgnoresSessionToken(t *testing.T) {
	env := newTestEnv(t)
	env.install(t, testShop)

	rec := env.authedGet(t, "/api/products-count?"+proxyParams(testShop).Encode(), testShop)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, rec.Body.String())
}

func TestProxyProductCount_Success(t *testing.T) {
	env := newTestEnv(t)
	env.install(t, testShop)

	rec := env.get(signedProxyURL(proxyParams(testShop)))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true,"countData":{"count":7}}`, rec.Body.String())
}

func TestProxyProductCount_NoShop(t *testing.T) {
	env := newTestEnv(t)

	rec := env.get(signedProxyURL(proxyParams("")))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":false}`, rec.Body.String())
}

func TestProxyProductCount_InvalidShop(t *testing.T) {
	env := newTestEnv(t)

	rec := env.get(signedProxyURL(proxyParams("evil.example.com")))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":false}`, rec.Body.String())
}

func TestProxyProductCount_UnknownShop(t *testing.T) {
	env := newTestEnv(t)
	env.install(t, testShop)

	rec := env.get(signedProxyURL(proxyParams("b.myshopify.com")))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":false}`, rec.Body.String())
}

func TestProxyProductCount_UpstreamFailure(t *testing.T) {
	env := newTestEnv(t)
	env.install(t, testShop)
	env.commerce.countErr = errors.New("connection reset")

	rec := env.get(signedProxyURL(proxyParams(testShop)))
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.JSONEq(t, `{"error":"failed to fetch product count","type":"external","context":{"shop":"a.myshopify.com"}}`, rec.Body.String())
}

func TestProxyProductCount_RateLimited(t *testing.T) {
	env := newTestEnv(t)
	env.cfg.ProxyRateLimit = 1
	env.cfg.ProxyRateBurst = 1
	env.srv = NewServer(env.cfg, env.static, Deps{
		Sessions: env.sessions,
		Counter:  env.srv.counter,
		Tokens:   env.srv.tokens,
		Clock:    env.clock,
	})

	first := env.get(signedProxyURL(proxyParams("")))
	second := env.get(signedProxyURL(proxyParams("")))

	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
}

func newRateLimitedEnv(t *testing.T, trustedProxies string) *testEnv {
	t.Helper()
	env := newTestEnv(t)
	env.cfg.ProxyRateLimit = 0.0001
	env.cfg.ProxyRateBurst = 1
	env.cfg.TrustedProxies = trustedProxies
	env.srv = NewServer(env.cfg, env.static, Deps{
		Sessions: env.sessions,
		Counter:  env.srv.counter,
		Tokens:   env.srv.tokens,
		Clock:    env.clock,
	})
	return env
}

func proxyRequestFrom(remoteAddr, forwardedFor string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, signedProxyURL(proxyParams("")), nil)
	req.RemoteAddr = remoteAddr
	if forwardedFor != "" {
		req.Header.Set("X-Forwarded-For", forwardedFor)
	}
	return req
}

func TestProxyProductCount_RateLimitIgnoresForwardedFor(t *testing.T) {
	env := newRateLimitedEnv(t, "")

	first := env.do(proxyRequestFrom("198.51.100.7:4321", ""))
	assert.Equal(t, http.StatusOK, first.Code)

	for i, xff := range []string{"203.0.113.1", "203.0.113.2", "203.0.113.3, 10.0.0.1"} {
		rec := env.do(proxyRequestFrom("198.51.100.7:4321", xff))
		assert.Equal(t, http.StatusTooManyRequests, rec.Code, "request %d with X-Forwarded-For %q", i, xff)
	}
}

func TestProxyProductCount_RateLimitThroughTrustedProxy(t *testing.T) {
	env := newRateLimitedEnv(t, "10.1.0.0/16")

	a := env.do(proxyRequestFrom("10.1.2.3:4321", "203.0.113.1"))
	b := env.do(proxyRequestFrom("10.1.2.3:4321", "203.0.113.2"))
	assert.Equal(t, http.StatusOK, a.Code)
	assert.Equal(t, http.StatusOK, b.Code, "distinct clients behind a trusted proxy")

	again := env.do(proxyRequestFrom("10.1.2.3:4321", "203.0.113.1"))
	assert.Equal(t, http.StatusTooManyRequests, again.Code)

	// An untrusted peer cannot pick its identity through the header.
	env.do(proxyRequestFrom("198.51.100.7:4321", "203.0.113.50"))
	spoofed := env.do(proxyRequestFrom("198.51.100.7:4321", "203.0.113.51"))
	assert.Equal(t, http.StatusTooManyRequests, spoofed.Code)
}
