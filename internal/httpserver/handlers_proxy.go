package httpserver

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"marketplace/internal/apperrors"
	"marketplace/internal/products"
	"marketplace/internal/security"
	"marketplace/internal/session"
	"marketplace/internal/shopify"
)

// ProxyQuery is the query Shopify attaches to app proxy requests.
type ProxyQuery struct {
	Shop               string `query:"shop"`
	PathPrefix         string `query:"path_prefix"`
	Timestamp          string `query:"timestamp"`
	LoggedInCustomerID string `query:"logged_in_customer_id"`
	Signature          string `query:"signature"`
}

// verifyProxySignature rejects app proxy requests whose signature does not verify
// with 401 and no body.
func (s *Server) verifyProxySignature(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if !security.VerifyProxySignature(c.QueryParams(), s.config.APISecret) {
			s.appMetrics.Proxy("rejected")
			return c.NoContent(http.StatusUnauthorized)
		}
		s.appMetrics.Proxy("accepted")
		return next(c)
	}
}

func (s *Server) handleProxyProductCount(c echo.Context) error {
	var q ProxyQuery
	if err := (&echo.DefaultBinder{}).BindQueryParams(c, &q); err != nil {
		return c.JSON(http.StatusOK, products.CountResponse{Success: false})
	}

	shop, ok := shopify.SanitizeShop(q.Shop)
	if !ok {
		return c.JSON(http.StatusOK, products.CountResponse{Success: false})
	}

	ctx := c.Request().Context()
	sess, err := session.LoadOffline(ctx, s.sessions, shop)
	if errors.Is(err, session.ErrNotFound) {
		return c.JSON(http.StatusOK, products.CountResponse{Success: false})
	}
	if err != nil {
		return apperrors.InternalError("failed to load session", err).WithField("shop", shop)
	}

	count, err := s.counter.Count(ctx, sess)
	if err != nil {
		return apperrors.ExternalError("failed to fetch product count", err).WithField("shop", shop)
	}

	return c.JSON(http.StatusOK, products.CountResponse{Success: true, CountData: count})
}
