package shopify

import (
	"regexp"
	"strings"
)

var shopDomainRe = regexp.MustCompile(`^[a-z0-9][a-z0-9\-]*\.myshopify\.com$`)

// SanitizeShop normalises a shop param ("https://Foo.myshopify.com/" -> "foo.myshopify.com")
// and reports whether it is a valid myshopify domain.
func SanitizeShop(raw string) (string, bool) {
	shop := strings.ToLower(strings.TrimSpace(raw))
	shop = strings.TrimPrefix(shop, "https://")
	shop = strings.TrimPrefix(shop, "http://")
	shop = strings.TrimSuffix(shop, "/")

	if !shopDomainRe.MatchString(shop) {
		return "", false
	}
	return shop, true
}

// AdminAppURL is where a merchant lands inside Shopify admin for this app.
func AdminAppURL(shop, apiKey string) string {
	return "https://" + shop + "/admin/apps/" + apiKey
}
