package httpserver

import (
	"errors"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"marketplace/internal/apperrors"
	"marketplace/internal/session"
	"marketplace/internal/shopify"
)

const exitIframePath = "/exitiframe"

// cspHeaders only lets the shop's admin frame the app.
func (s *Server) cspHeaders(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		policy := "frame-ancestors 'none';"
		if shop, ok := shopify.SanitizeShop(c.QueryParam("shop")); ok {
			policy = "frame-ancestors https://" + shop + " https://admin.shopify.com;"
		}
		c.Response().Header().Set(echo.HeaderContentSecurityPolicy, policy)
		return next(c)
	}
}

// serveStatic serves regular files from the static root. Directories are never
// indexed; those requests and missing files continue to the SPA handler.
func (s *Server) serveStatic() echo.MiddlewareFunc {
	return middleware.StaticWithConfig(middleware.StaticConfig{
		Root:   s.staticPath,
		Browse: false,
		HTML5:  false,
		Skipper: func(c echo.Context) bool {
			info, err := os.Stat(s.staticFile(c.Request().URL.Path))
			return err != nil || info.IsDir()
		},
	})
}

func (s *Server) staticFile(urlPath string) string {
	if p, err := url.PathUnescape(urlPath); err == nil {
		urlPath = p
	}
	return filepath.Join(s.staticPath, filepath.FromSlash(path.Clean("/"+urlPath)))
}

// ensureInstalled keeps the SPA behind a completed install. Shops without an
// active session go through OAuth; installed shops opened outside the admin are
// sent back into it.
func (s *Server) ensureInstalled(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if c.Request().URL.Path == exitIframePath {
			return next(c)
		}

		shop, ok := shopify.SanitizeShop(c.QueryParam("shop"))
		if !ok {
			return c.String(http.StatusUnprocessableEntity, "No shop provided")
		}
		c.Set(shopContextKey, shop)

		embedded := c.QueryParam("embedded") == "1"

		sess, err := session.LoadOffline(c.Request().Context(), s.sessions, shop)
		if err != nil && !errors.Is(err, session.ErrNotFound) {
			return apperrors.InternalError("failed to load session", err)
		}
		if err != nil || !sess.IsActive(s.config.ScopeList(), s.clock.Now()) {
			if embedded {
				return c.Redirect(http.StatusFound, s.exitIframeURL(shop, c.QueryParam("host")))
			}
			return c.Redirect(http.StatusFound, s.authURL(shop))
		}

		if !embedded {
			return c.Redirect(http.StatusFound, shopify.AdminAppURL(shop, s.config.APIKey))
		}
		return next(c)
	}
}

// handleSPA returns the frontend shell. index.html is read on every request so a
// rebuilt frontend is picked up without a restart.
func (s *Server) handleSPA(c echo.Context) error {
	html, err := os.ReadFile(filepath.Join(s.staticPath, "index.html"))
	if err != nil {
		return apperrors.InternalError("failed to read index.html", err)
	}
	return c.Blob(http.StatusOK, "text/html", html)
}
