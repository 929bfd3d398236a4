package httpserver

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/labstack/echo/v4"

	"marketplace/internal/apperrors"
	"marketplace/internal/auth"
	"marketplace/internal/security"
	"marketplace/internal/shopify"
	"marketplace/internal/webhooks"
)

const oauthTimeout = 10 * time.Second

// appWebhookTopics are subscribed through the Admin API after install. The
// privacy topics are configured in the app listing instead.
var appWebhookTopics = []string{webhooks.TopicAppUninstalled}

func (s *Server) handleAuthBegin(c echo.Context) error {
	shop, ok := shopify.SanitizeShop(c.QueryParam("shop"))
	if !ok {
		return apperrors.ValidationError("invalid shop (expected like your-store.myshopify.com)")
	}

	// Shopify's authorize page refuses to render inside the admin iframe.
	if c.QueryParam("embedded") == "1" {
		return c.Redirect(http.StatusFound, s.exitIframeURL(shop, c.QueryParam("host")))
	}

	state, err := s.state.Begin(c.Response(), c.Request(), shop)
	if err != nil {
		return apperrors.InternalError("failed to start OAuth", err)
	}

	return c.Redirect(http.StatusFound, s.oauth.AuthorizeURL(shop, state))
}

func (s *Server) handleAuthCallback(c echo.Context) error {
	query := c.QueryParams()

	shop, ok := shopify.SanitizeShop(query.Get("shop"))
	code := query.Get("code")
	state := query.Get("state")
	if !ok || code == "" || state == "" {
		return apperrors.ValidationError("missing required oauth params")
	}

	if !security.VerifyOAuthHMAC(query, s.config.APISecret) {
		return apperrors.ValidationError("invalid hmac")
	}

	if err := s.state.Verify(c.Response(), c.Request(), shop, state); err != nil {
		if errors.Is(err, auth.ErrStateMismatch) {
			return apperrors.ValidationError("invalid OAuth state")
		}
		return apperrors.InternalError("failed to verify OAuth state", err)
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), oauthTimeout)
	defer cancel()

	sess, err := s.oauth.Exchange(ctx, shop, code)
	if err != nil {
		return apperrors.ExternalError("failed to authenticate with Shopify", err).WithField("shop", shop)
	}

	if err := s.sessions.StoreSession(ctx, sess); err != nil {
		return apperrors.InternalError("failed to save session", err).WithField("shop", shop)
	}

	address := s.webhookAddress()
	for _, topic := range appWebhookTopics {
		if err := s.registrar.RegisterWebhook(ctx, shop, sess.AccessToken, topic, address); err != nil {
			slog.ErrorContext(ctx, "Failed to register webhook during OAuth callback", "shop", shop, "topic", topic, "error", err)
		}
	}

	slog.InfoContext(ctx, "App installed", "shop", shop, "scope", sess.Scope)

	return c.Redirect(http.StatusFound, shopify.AdminAppURL(shop, s.config.APIKey))
}

// authURL is the top level URL that starts OAuth for shop.
func (s *Server) authURL(shop string) string {
	return s.config.AppURL(s.config.AuthPath) + "?" + url.Values{"shop": {shop}}.Encode()
}

// exitIframeURL sends an embedded request to the frontend page that breaks out of the
// admin iframe and then loads the auth URL at the top level.
func (s *Server) exitIframeURL(shop, host string) string {
	q := url.Values{
		"shop":        {shop},
		"redirectUri": {s.authURL(shop)},
	}
	if host != "" {
		q.Set("host", host)
	}
	return "/exitiframe?" + q.Encode()
}
