package httpserver

import (
	"log/slog"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"marketplace/internal/metrics"
)

// registerRoutes wires the router. Registration order mirrors request precedence:
// auth, webhooks, the signed app proxy endpoint, the authenticated API, then the frontend.
func (s *Server) registerRoutes() {
	s.echo.Use(s.setupRequestLoggerMiddleware())
	s.echo.Use(middleware.Recover())
	s.echo.Use(correlationMiddleware)
	s.echo.Use(s.httpMetrics.Middleware())
	s.echo.Use(ErrorHandlingMiddleware())

	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(metrics.Handler(s.registry)))

	s.echo.GET(s.config.AuthPath, s.handleAuthBegin)
	s.echo.GET(s.config.AuthCallbackPath, s.handleAuthCallback)

	s.echo.POST(s.config.WebhookPath, s.handleWebhook)

	proxyLimiter := newRateLimiter(s.config.ProxyRateLimit, s.config.ProxyRateBurst)
	s.echo.GET("/api/products-count", s.handleProxyProductCount, proxyLimiter, s.verifyProxySignature)

	api := s.echo.Group("/api", s.requireSession)
	api.GET("/products/count", s.handleProductCount)
	api.GET("/products/create", s.handleProductCreate)
	api.Any("/*", s.handleAPINotFound)

	s.echo.GET("/*", s.handleSPA, s.cspHeaders, s.serveStatic(), s.ensureInstalled)
}

func (s *Server) setupRequestLoggerMiddleware() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:  true,
		LogURI:     true,
		LogMethod:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []any{
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency", v.Latency,
			}
			if v.Error != nil {
				attrs = append(attrs, "error", v.Error)
			}
			slog.InfoContext(c.Request().Context(), "Request", attrs...)
			return nil
		},
	})
}
