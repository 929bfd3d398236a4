package shopify

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

type GraphQLError struct {
	Message    string `json:"message"`
	Path       []any  `json:"path,omitempty"`
	Extensions struct {
		Code string `json:"code,omitempty"`
	} `json:"extensions,omitempty"`
}

type GraphQLResponse[T any] struct {
	Data   T              `json:"data"`
	Errors []GraphQLError `json:"errors"`
}

type UserError struct {
	Field   []string `json:"field"`
	Message string   `json:"message"`
}

// postGraphQL runs query against the shop's Admin GraphQL endpoint. Top-level
// GraphQL errors are returned as a Go error.
func postGraphQL[T any](ctx context.Context, c *Client, op, shop, accessToken, query string, variables any) (*T, error) {
	body := map[string]any{
		"query":     query,
		"variables": variables,
	}

	var out GraphQLResponse[T]
	if err := c.do(ctx, op, http.MethodPost, c.adminURL(shop, "graphql.json"), accessToken, body, &out); err != nil {
		return nil, err
	}
	if len(out.Errors) > 0 {
		msgs := make([]string, 0, len(out.Errors))
		for _, e := range out.Errors {
			msgs = append(msgs, e.Message)
		}
		return nil, errors.New(strings.Join(msgs, "; "))
	}
	return &out.Data, nil
}

func userErrorsToError(errs []UserError) error {
	if len(errs) == 0 {
		return nil
	}
	msgs := make([]string, 0, len(errs))
	for _, e := range errs {
		if len(e.Field) > 0 {
			msgs = append(msgs, strings.Join(e.Field, ".")+": "+e.Message)
		} else {
			msgs = append(msgs, e.Message)
		}
	}
	return errors.New(strings.Join(msgs, "; "))
}
