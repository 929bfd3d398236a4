package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "hush"

func signedProxyQuery(t *testing.T, raw string) url.Values {
	t.Helper()
	q, err := url.ParseQuery(raw)
	require.NoError(t, err)
	q.Set("signature", SignHex(testSecret, ProxySignatureMessage(q)))
	return q
}

func TestProxySignatureMessage_SortedNoSeparator(t *testing.T) {
	q := url.Values{
		"timestamp":   {"1317327555"},
		"shop":        {"some-shop.myshopify.com"},
		"path_prefix": {"/apps/awesome_reviews"},
		"extra":       {"1", "2"},
		"signature":   {"ignored"},
	}

	got := ProxySignatureMessage(q)
	assert.Equal(t, "extra=1,2path_prefix=/apps/awesome_reviewsshop=some-shop.myshopify.comtimestamp=1317327555", got)
}

// Example from Shopify's app proxy documentation.
func TestVerifyProxySignature_DocumentedExample(t *testing.T) {
	q, err := url.ParseQuery("extra=1&extra=2&shop=shop-name.myshopify.com&logged_in_customer_id=1" +
		"&path_prefix=%2Fapps%2Fawesome_reviews&timestamp=1317327555" +
		"&signature=4c68c8624d737112c91818c11017d24d334b524cb5c2b8ba08daa056f7395ddb")
	require.NoError(t, err)

	assert.True(t, VerifyProxySignature(q, "hush"))
}

func TestVerifyProxySignature_Valid(t *testing.T) {
	q := signedProxyQuery(t, "shop=a.myshopify.com&path_prefix=%2Fapps%2Fx&timestamp=1700000000&logged_in_customer_id=")
	assert.True(t, VerifyProxySignature(q, testSecret))
}

func TestVerifyProxySignature_OrderIndependent(t *testing.T) {
	a := signedProxyQuery(t, "shop=a.myshopify.com&timestamp=1&path_prefix=%2Fp")
	sig := a.Get("signature")

	b, err := url.ParseQuery("path_prefix=%2Fp&timestamp=1&signature=" + sig + "&shop=a.myshopify.com")
	require.NoError(t, err)

	assert.True(t, VerifyProxySignature(a, testSecret))
	assert.Equal(t, VerifyProxySignature(a, testSecret), VerifyProxySignature(b, testSecret))
}

func TestVerifyProxySignature_Deterministic(t *testing.T) {
	q := signedProxyQuery(t, "shop=a.myshopify.com&timestamp=1")
	for i := 0; i < 5; i++ {
		assert.True(t, VerifyProxySignature(q, testSecret))
	}
}

func TestVerifyProxySignature_SingleCharMutationFails(t *testing.T) {
	q := signedProxyQuery(t, "shop=a.myshopify.com&timestamp=1")
	sig := q.Get("signature")

	for i := range sig {
		mutated := []byte(sig)
		if mutated[i] == '0' {
			mutated[i] = '1'
		} else {
			mutated[i] = '0'
		}
		m := url.Values{}
		for k, v := range q {
			m[k] = v
		}
		m.Set("signature", string(mutated))
		assert.False(t, VerifyProxySignature(m, testSecret), "mutation at %d verified", i)
	}
}

func TestVerifyProxySignature_TamperedParam(t *testing.T) {
	q := signedProxyQuery(t, "shop=a.myshopify.com&timestamp=1")
	q.Set("shop", "b.myshopify.com")
	assert.False(t, VerifyProxySignature(q, testSecret))
}

func TestVerifyProxySignature_MissingInputs(t *testing.T) {
	q := signedProxyQuery(t, "shop=a.myshopify.com")

	assert.False(t, VerifyProxySignature(q, ""))

	q.Del("signature")
	assert.False(t, VerifyProxySignature(q, testSecret))
	assert.False(t, VerifyProxySignature(url.Values{}, testSecret))
}

func TestVerifyProxySignature_WrongSecret(t *testing.T) {
	q := signedProxyQuery(t, "shop=a.myshopify.com")
	assert.False(t, VerifyProxySignature(q, "other"))
}

func TestVerifyOAuthHMAC(t *testing.T) {
	q := url.Values{
		"code":      {"0907a61c0c8d55e99db179b68161bc00"},
		"shop":      {"some-shop.myshopify.com"},
		"state":     {"0.6784241404160823"},
		"timestamp": {"1337178173"},
	}
	q.Set("hmac", SignHex(testSecret, "code=0907a61c0c8d55e99db179b68161bc00&shop=some-shop.myshopify.com&state=0.6784241404160823&timestamp=1337178173"))

	assert.True(t, VerifyOAuthHMAC(q, testSecret))

	q.Set("state", "tampered")
	assert.False(t, VerifyOAuthHMAC(q, testSecret))
}

func TestVerifyOAuthHMAC_Missing(t *testing.T) {
	assert.False(t, VerifyOAuthHMAC(url.Values{"shop": {"a.myshopify.com"}}, testSecret))
}

func TestVerifyWebhookHMAC(t *testing.T) {
	body := []byte(`{"shop_id":1}`)
	mac := hmac.New(sha256.New, []byte(testSecret))
	mac.Write(body)
	sig := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	assert.True(t, VerifyWebhookHMAC(body, sig, testSecret))
	assert.False(t, VerifyWebhookHMAC([]byte(`{"shop_id":2}`), sig, testSecret))
	assert.False(t, VerifyWebhookHMAC(body, "", testSecret))
	assert.False(t, VerifyWebhookHMAC(body, sig, ""))
}
