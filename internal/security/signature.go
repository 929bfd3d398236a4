package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"net/url"
	"sort"
	"strings"
)

// ProxySignatureMessage renders an app proxy query the way Shopify signs it:
// keys sorted, each pair written as key=value (multi-valued params joined by ","),
// pairs concatenated without a separator. The signature param itself is excluded.
func ProxySignatureMessage(query url.Values) string {
	keys := make([]string, 0, len(query))
	for k := range query {
		if k == "signature" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(strings.Join(query[k], ","))
	}
	return b.String()
}

// VerifyProxySignature reports whether query carries a valid app proxy signature
// for secret. Missing signature or secret never verifies.
func VerifyProxySignature(query url.Values, secret string) bool {
	provided := query.Get("signature")
	if provided == "" || secret == "" {
		return false
	}

	expected := SignHex(secret, ProxySignatureMessage(query))
	return hmac.Equal([]byte(expected), []byte(provided))
}

// VerifyOAuthHMAC checks the hmac param Shopify attaches to OAuth redirects and
// admin launches. Pairs are sorted and joined with "&".
func VerifyOAuthHMAC(query url.Values, secret string) bool {
	provided := strings.ToLower(strings.TrimSpace(query.Get("hmac")))
	if provided == "" || secret == "" {
		return false
	}

	keys := make([]string, 0, len(query))
	for k := range query {
		if k == "hmac" || k == "signature" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+strings.Join(query[k], ","))
	}

	expected := SignHex(secret, strings.Join(parts, "&"))
	return hmac.Equal([]byte(expected), []byte(provided))
}

// VerifyWebhookHMAC checks X-Shopify-Hmac-Sha256 (base64 HMAC-SHA256 of the raw body).
func VerifyWebhookHMAC(body []byte, providedB64, secret string) bool {
	if providedB64 == "" || secret == "" {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(body)
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(providedB64))
}

// SignHex returns hex(HMAC-SHA256(secret, msg)).
func SignHex(secret, msg string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(msg))
	return hex.EncodeToString(mac.Sum(nil))
}
