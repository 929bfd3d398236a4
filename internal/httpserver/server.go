package httpserver

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"

	"marketplace/internal/auth"
	"marketplace/internal/config"
	"marketplace/internal/metrics"
	"marketplace/internal/session"
	"marketplace/internal/shopify"
	"marketplace/internal/webhooks"
)

type productCounter interface {
	Count(ctx context.Context, sess *session.Session) (*shopify.ProductCount, error)
}

type productCreator interface {
	CreateProducts(ctx context.Context, sess *session.Session) error
}

type oauthService interface {
	AuthorizeURL(shop, state string) string
	Exchange(ctx context.Context, shop, code string) (*session.Session, error)
}

type stateStore interface {
	Begin(w http.ResponseWriter, r *http.Request, shop string) (string, error)
	Verify(w http.ResponseWriter, r *http.Request, shop, state string) error
}

type tokenVerifier interface {
	Verify(raw string) (string, *auth.SessionTokenClaims, error)
}

type webhookRegistrar interface {
	RegisterWebhook(ctx context.Context, shop, accessToken, topic, address string) error
}

// Deps are the collaborators the server is built from.
type Deps struct {
	Sessions  session.Store
	Counter   productCounter
	Creator   productCreator
	OAuth     oauthService
	State     stateStore
	Tokens    tokenVerifier
	Webhooks  webhooks.Dispatcher
	Registrar webhookRegistrar
	Clock     clockwork.Clock
}

type Server struct {
	echo       *echo.Echo
	config     *config.Config
	staticPath string

	sessions  session.Store
	counter   productCounter
	creator   productCreator
	oauth     oauthService
	state     stateStore
	tokens    tokenVerifier
	webhooks  webhooks.Dispatcher
	registrar webhookRegistrar
	clock     clockwork.Clock

	registry    *prometheus.Registry
	httpMetrics *metrics.HTTPMetrics
	appMetrics  *metrics.AppMetrics
	startTime   time.Time
}

func NewServer(cfg *config.Config, staticPath string, deps Deps) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.IPExtractor = ipExtractor(cfg.TrustedProxyRanges())

	clock := deps.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	reg := metrics.NewRegistry()

	srv := &Server{
		echo:        e,
		config:      cfg,
		staticPath:  staticPath,
		sessions:    deps.Sessions,
		counter:     deps.Counter,
		creator:     deps.Creator,
		oauth:       deps.OAuth,
		state:       deps.State,
		tokens:      deps.Tokens,
		webhooks:    deps.Webhooks,
		registrar:   deps.Registrar,
		clock:       clock,
		registry:    reg,
		httpMetrics: metrics.NewHTTPMetrics(reg),
		appMetrics:  metrics.NewAppMetrics(reg),
		startTime:   clock.Now(),
	}

	srv.registerRoutes()

	return srv
}

// Handler exposes the router, e.g. for the Lambda adapter.
func (s *Server) Handler() http.Handler {
	return s.echo
}

func (s *Server) Start() error {
	port := s.config.ListenPort()
	slog.Info("Starting server", "port", port, "static_path", s.staticPath)
	if err := s.echo.Start(":" + port); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	return nil
}

// webhookAddress is where Shopify should deliver app webhooks.
func (s *Server) webhookAddress() string {
	if s.config.EventBridgeSourceARN != "" {
		return s.config.EventBridgeSourceARN
	}
	return s.config.AppURL(s.config.WebhookPath)
}
