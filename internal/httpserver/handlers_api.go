package httpserver

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"marketplace/internal/apperrors"
	"marketplace/internal/auth"
	"marketplace/internal/session"
	"marketplace/internal/shopify"
)

const (
	sessionContextKey = "shopifySession"
	shopContextKey    = "shop"

	headerReauthorize    = "X-Shopify-API-Request-Failure-Reauthorize"
	headerReauthorizeURL = "X-Shopify-API-Request-Failure-Reauthorize-Url"
)

// requireSession authenticates /api requests with an App Bridge session token and
// loads the shop's offline session. A shop without a usable session is told to
// reauthorize.
func (s *Server) requireSession(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		shop, _, err := s.tokens.Verify(auth.BearerToken(c.Request()))
		if err != nil {
			return apperrors.UnauthorizedError("invalid session token", err)
		}
		c.Set(shopContextKey, shop)

		sess, err := session.LoadOffline(c.Request().Context(), s.sessions, shop)
		if err != nil && !errors.Is(err, session.ErrNotFound) {
			return apperrors.InternalError("failed to load session", err)
		}
		if err != nil || !sess.IsActive(s.config.ScopeList(), s.clock.Now()) {
			return s.reauthorize(c, shop)
		}

		c.Set(sessionContextKey, sess)
		return next(c)
	}
}

func (s *Server) reauthorize(c echo.Context, shop string) error {
	h := c.Response().Header()
	h.Set(headerReauthorize, "1")
	h.Set(headerReauthorizeURL, s.authURL(shop))
	return c.NoContent(http.StatusForbidden)
}

func currentSession(c echo.Context) *session.Session {
	sess, _ := c.Get(sessionContextKey).(*session.Session)
	return sess
}

func (s *Server) handleProductCount(c echo.Context) error {
	sess := currentSession(c)

	count, err := s.counter.Count(c.Request().Context(), sess)
	if errors.Is(err, shopify.ErrUnauthorized) {
		return s.reauthorize(c, sess.Shop)
	}
	if err != nil {
		return apperrors.ExternalError("failed to fetch product count", err)
	}

	return c.JSON(http.StatusOK, count)
}

type createResponse struct {
	Success bool    `json:"success"`
	Error   *string `json:"error"`
}

func (s *Server) handleProductCreate(c echo.Context) error {
	sess := currentSession(c)
	ctx := c.Request().Context()

	if err := s.creator.CreateProducts(ctx, sess); err != nil {
		slog.ErrorContext(ctx, "Failed to process products/create", "shop", sess.Shop, "error", err)
		msg := err.Error()
		return c.JSON(http.StatusInternalServerError, createResponse{Success: false, Error: &msg})
	}

	return c.JSON(http.StatusOK, createResponse{Success: true})
}

func (s *Server) handleAPINotFound(c echo.Context) error {
	return echo.ErrNotFound
}
