package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/oauth2"

	"marketplace/internal/session"
)

// Service runs the Shopify authorization code grant for offline access tokens.
type Service struct {
	apiKey      string
	apiSecret   string
	scopes      []string
	redirectURL string
	endpoint    func(shop string) oauth2.Endpoint
	httpClient  *http.Client
}

type Option func(*Service)

// WithEndpoint overrides the per-shop authorize and token URLs.
func WithEndpoint(fn func(shop string) oauth2.Endpoint) Option {
	return func(s *Service) { s.endpoint = fn }
}

func WithHTTPClient(hc *http.Client) Option {
	return func(s *Service) { s.httpClient = hc }
}

func NewService(apiKey, apiSecret string, scopes []string, redirectURL string, opts ...Option) *Service {
	s := &Service{
		apiKey:      apiKey,
		apiSecret:   apiSecret,
		scopes:      scopes,
		redirectURL: redirectURL,
		endpoint:    ShopEndpoint,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// ShopEndpoint is the Shopify OAuth endpoint for a shop. Shopify expects client
// credentials in the token request body.
func ShopEndpoint(shop string) oauth2.Endpoint {
	return oauth2.Endpoint{
		AuthURL:   "https://" + shop + "/admin/oauth/authorize",
		TokenURL:  "https://" + shop + "/admin/oauth/access_token",
		AuthStyle: oauth2.AuthStyleInParams,
	}
}

func (s *Service) config(shop string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     s.apiKey,
		ClientSecret: s.apiSecret,
		Endpoint:     s.endpoint(shop),
		RedirectURL:  s.redirectURL,
		Scopes:       s.scopes,
	}
}

// AuthorizeURL is where the merchant grants the app's scopes.
func (s *Service) AuthorizeURL(shop, state string) string {
	// Shopify takes a comma separated scope list.
	cfg := s.config(shop)
	cfg.Scopes = nil
	return cfg.AuthCodeURL(state, oauth2.SetAuthURLParam("scope", strings.Join(s.scopes, ",")))
}

// Exchange trades the callback code for an offline session.
func (s *Service) Exchange(ctx context.Context, shop, code string) (*session.Session, error) {
	if s.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, s.httpClient)
	}

	tok, err := s.config(shop).Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("exchange code for %s: %w", shop, err)
	}
	if tok.AccessToken == "" {
		return nil, errors.New("empty access token from shopify")
	}

	scope, _ := tok.Extra("scope").(string)
	return &session.Session{
		ID:          session.OfflineID(shop),
		Shop:        shop,
		IsOnline:    false,
		Scope:       scope,
		AccessToken: tok.AccessToken,
	}, nil
}
