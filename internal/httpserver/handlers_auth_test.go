package httpserver

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketplace/internal/security"
	"marketplace/internal/session"
)

// beginAuth runs the begin step and returns the state and cookies for the callback.
func beginAuth(t *testing.T, env *testEnv, shop string) (string, []*http.Cookie) {
	t.Helper()
	rec := env.get("/api/auth?shop=" + shop)
	require.Equal(t, http.StatusFound, rec.Code)

	loc, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	return loc.Query().Get("state"), rec.Result().Cookies()
}

func signOAuthQuery(q url.Values) url.Values {
	keys := make([]string, 0, len(q))
	for k := range q {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+q.Get(k))
	}
	q.Set("hmac", security.SignHex(testAPISecret, strings.Join(parts, "&")))
	return q
}

func callbackRequest(q url.Values, cookies []*http.Cookie) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/api/auth/callback?"+q.Encode(), nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	return req
}

func TestAuthBegin_InvalidShop(t *testing.T) {
	env := newTestEnv(t)

	for _, shop := range []string{"", "evil.example.com", "a.myshopify.com.evil.com"} {
		rec := env.get("/api/auth?shop=" + url.QueryEscape(shop))
		assert.Equal(t, http.StatusBadRequest, rec.Code, shop)
	}
}

func TestAuthBegin_RedirectsToShopify(t *testing.T) {
	env := newTestEnv(t)

	rec := env.get("/api/auth?shop=" + testShop)
	require.Equal(t, http.StatusFound, rec.Code)

	loc, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, testShop, loc.Host)
	assert.Equal(t, "/admin/oauth/authorize", loc.Path)
	assert.NotEmpty(t, loc.Query().Get("state"))
	assert.NotEmpty(t, rec.Result().Cookies())
}

func TestAuthBegin_EmbeddedExitsIframe(t *testing.T) {
	env := newTestEnv(t)

	rec := env.get("/api/auth?embedded=1&host=YWRtaW4&shop=" + testShop)
	require.Equal(t, http.StatusFound, rec.Code)

	loc, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "/exitiframe", loc.Path)
	assert.Equal(t, testShop, loc.Query().Get("shop"))
	assert.Equal(t, "YWRtaW4", loc.Query().Get("host"))
	assert.Equal(t, "https://app.example.com/api/auth?shop=a.myshopify.com", loc.Query().Get("redirectUri"))
}

func TestAuthCallback_Success(t *testing.T) {
	env := newTestEnv(t)
	state, cookies := beginAuth(t, env, testShop)

	q := signOAuthQuery(url.Values{
		"code":      {"auth-code"},
		"shop":      {testShop},
		"state":     {state},
		"timestamp": {"1700000000"},
	})
	rec := env.do(callbackRequest(q, cookies))

	require.Equal(t, http.StatusFound, rec.Code, rec.Body.String())
	assert.Equal(t, "https://a.myshopify.com/admin/apps/api-key", rec.Header().Get("Location"))
	assert.Equal(t, "auth-code", env.oauth.gotCode)

	sess, err := session.LoadOffline(context.Background(), env.sessions, testShop)
	require.NoError(t, err)
	assert.Equal(t, "shpat_new", sess.AccessToken)

	assert.Equal(t, []registeredWebhook{{
		Shop: testShop, Token: "shpat_new", Topic: "APP_UNINSTALLED", Address: "https://app.example.com/api/webhooks",
	}}, env.registrar.calls)
}

func TestAuthCallback_EventBridgeAddress(t *testing.T) {
	env := newTestEnv(t)
	env.cfg.EventBridgeSourceARN = "arn:aws:events:us-east-1::event-source/aws.partner/shopify.com/1/app"
	state, cookies := beginAuth(t, env, testShop)

	q := signOAuthQuery(url.Values{"code": {"c"}, "shop": {testShop}, "state": {state}})
	rec := env.do(callbackRequest(q, cookies))

	require.Equal(t, http.StatusFound, rec.Code)
	require.Len(t, env.registrar.calls, 1)
	assert.Equal(t, env.cfg.EventBridgeSourceARN, env.registrar.calls[0].Address)
}

func TestAuthCallback_WebhookRegistrationFailureIsNotFatal(t *testing.T) {
	env := newTestEnv(t)
	env.registrar.err = errors.New("422")
	state, cookies := beginAuth(t, env, testShop)

	q := signOAuthQuery(url.Values{"code": {"c"}, "shop": {testShop}, "state": {state}})
	rec := env.do(callbackRequest(q, cookies))
	assert.Equal(t, http.StatusFound, rec.Code)
}

func TestAuthCallback_BadHMAC(t *testing.T) {
	env := newTestEnv(t)
	state, cookies := beginAuth(t, env, testShop)

	q := signOAuthQuery(url.Values{"code": {"c"}, "shop": {testShop}, "state": {state}})
	q.Set("code", "swapped")
	rec := env.do(callbackRequest(q, cookies))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid hmac")
	assert.Empty(t, env.oauth.gotCode)
}

func TestAuthCallback_BadState(t *testing.T) {
	env := newTestEnv(t)
	_, cookies := beginAuth(t, env, testShop)

	q := signOAuthQuery(url.Values{"code": {"c"}, "shop": {testShop}, "state": {"forged"}})
	rec := env.do(callbackRequest(q, cookies))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid OAuth state")
}

func TestAuthCallback_MissingParams(t *testing.T) {
	env := newTestEnv(t)
	rec := env.get("/api/auth/callback?shop=" + testShop)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAuthCallback_ExchangeFailure(t *testing.T) {
	env := newTestEnv(t)
	env.oauth.exchangeErr = errors.New("invalid_grant")
	state, cookies := beginAuth(t, env, testShop)

	q := signOAuthQuery(url.Values{"code": {"c"}, "shop": {testShop}, "state": {state}})
	rec := env.do(callbackRequest(q, cookies))

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	_, err := session.LoadOffline(context.Background(), env.sessions, testShop)
	assert.ErrorIs(t, err, session.ErrNotFound)
}
