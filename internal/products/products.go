package products

import (
	"context"
	"math/rand/v2"

	"marketplace/internal/session"
	"marketplace/internal/shopify"
)

// CommerceClient is the slice of the Admin API the product endpoints need.
type CommerceClient interface {
	ProductCount(ctx context.Context, shop, accessToken string) (*shopify.ProductCount, error)
	CreateProduct(ctx context.Context, shop, accessToken, title string) (string, error)
}

// CountResponse is the public products-count payload.
type CountResponse struct {
	Success   bool                  `json:"success"`
	CountData *shopify.ProductCount `json:"countData,omitempty"`
}

type Counter struct {
	client CommerceClient
}

func NewCounter(client CommerceClient) *Counter {
	return &Counter{client: client}
}

// Count returns the shop's product count exactly as the Admin API reports it.
func (c *Counter) Count(ctx context.Context, sess *session.Session) (*shopify.ProductCount, error) {
	return c.client.ProductCount(ctx, sess.Shop, sess.AccessToken)
}

const DefaultProductsCount = 5

var (
	adjectives = []string{
		"autumn", "hidden", "bitter", "misty", "silent", "empty", "dry", "dark",
		"summer", "icy", "delicate", "quiet", "white", "cool", "spring", "winter",
		"patient", "twilight", "dawn", "crimson", "wispy", "weathered", "blue",
		"billowing", "broken", "cold", "damp", "falling", "frosty", "green", "long",
	}
	nouns = []string{
		"waterfall", "river", "breeze", "moon", "rain", "wind", "sea", "morning",
		"snow", "lake", "sunset", "pine", "shadow", "leaf", "dawn", "glitter",
		"forest", "hill", "cloud", "meadow", "sun", "glade", "bird", "brook",
		"butterfly", "bush", "dew", "dust", "field", "fire", "flower",
	}
)

type Creator struct {
	client CommerceClient
	count  int
	title  func() string
}

func NewCreator(client CommerceClient) *Creator {
	return &Creator{client: client, count: DefaultProductsCount, title: randomTitle}
}

// CreateProducts creates the default set of sample products, stopping at the first failure.
func (c *Creator) CreateProducts(ctx context.Context, sess *session.Session) error {
	for i := 0; i < c.count; i++ {
		if _, err := c.client.CreateProduct(ctx, sess.Shop, sess.AccessToken, c.title()); err != nil {
			return err
		}
	}
	return nil
}

func randomTitle() string {
	return adjectives[rand.IntN(len(adjectives))] + " " + nouns[rand.IntN(len(nouns))]
}
