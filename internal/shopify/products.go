package shopify

import (
	"context"
	"errors"
	"net/http"
)

// ProductCount is the Admin API products/count payload, returned to callers verbatim.
type ProductCount struct {
	Count int `json:"count"`
}

func (c *Client) ProductCount(ctx context.Context, shop, accessToken string) (*ProductCount, error) {
	var out ProductCount
	if err := c.do(ctx, "products count", http.MethodGet, c.adminURL(shop, "products/count.json"), accessToken, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

const productCreateMutation = `mutation populateProduct($product: ProductCreateInput!) {
  productCreate(product: $product) {
    product { id title }
    userErrors { field message }
  }
}`

type productCreateData struct {
	ProductCreate struct {
		Product *struct {
			ID    string `json:"id"`
			Title string `json:"title"`
		} `json:"product"`
		UserErrors []UserError `json:"userErrors"`
	} `json:"productCreate"`
}

// CreateProduct creates a product with the given title and returns its GID.
func (c *Client) CreateProduct(ctx context.Context, shop, accessToken, title string) (string, error) {
	vars := map[string]any{
		"product": map[string]any{"title": title},
	}

	data, err := postGraphQL[productCreateData](ctx, c, "product create", shop, accessToken, productCreateMutation, vars)
	if err != nil {
		return "", err
	}
	if err := userErrorsToError(data.ProductCreate.UserErrors); err != nil {
		return "", err
	}
	if data.ProductCreate.Product == nil {
		return "", errors.New("productCreate returned no product")
	}
	return data.ProductCreate.Product.ID, nil
}
