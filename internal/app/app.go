// Package app builds the server and webhook dispatcher from configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/jonboulle/clockwork"

	"marketplace/internal/auth"
	"marketplace/internal/config"
	"marketplace/internal/db"
	"marketplace/internal/httpserver"
	"marketplace/internal/products"
	"marketplace/internal/security"
	"marketplace/internal/session"
	"marketplace/internal/shopify"
	"marketplace/internal/webhooks"
)

// App holds the wired components for one process.
type App struct {
	Config     *config.Config
	Server     *httpserver.Server
	Sessions   session.Store
	Dispatcher webhooks.Dispatcher

	clock   clockwork.Clock
	awsCfg  *aws.Config
	closers []func() error
}

// Option customises wiring, mostly for tests.
type Option func(*App)

func WithClock(clock clockwork.Clock) Option {
	return func(a *App) { a.clock = clock }
}

// WithAWSConfig skips loading the default AWS credential chain.
func WithAWSConfig(cfg aws.Config) Option {
	return func(a *App) { a.awsCfg = &cfg }
}

// New wires every component. AWS clients are only created for the features the
// configuration enables.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{Config: cfg, clock: clockwork.NewRealClock()}
	for _, opt := range opts {
		opt(a)
	}

	if cfg.APISecretParam != "" {
		awsCfg, err := a.aws(ctx)
		if err != nil {
			return nil, err
		}
		if err := config.ResolveSecrets(ctx, cfg, ssm.NewFromConfig(awsCfg)); err != nil {
			return nil, fmt.Errorf("failed to resolve secrets: %w", err)
		}
	}

	sessions, err := a.sessionStore(ctx)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.Sessions = sessions

	dispatcher, err := a.webhookDispatcher(ctx)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.Dispatcher = dispatcher

	client := shopify.NewClient(cfg.APIVersion, cfg.HTTPTimeout)
	oauth := auth.NewService(cfg.APIKey, cfg.APISecret, cfg.ScopeList(), cfg.AppURL(cfg.AuthCallbackPath))

	cwd, err := os.Getwd()
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("failed to get working directory: %w", err)
	}

	a.Server = httpserver.NewServer(cfg, cfg.StaticPath(cwd), httpserver.Deps{
		Sessions:  sessions,
		Counter:   products.NewCounter(client),
		Creator:   products.NewCreator(client),
		OAuth:     oauth,
		State:     auth.NewStateStore(cfg.StateSecret(), cfg.IsProduction()),
		Tokens:    auth.NewTokenVerifier(cfg.APIKey, cfg.APISecret, a.clock),
		Webhooks:  dispatcher,
		Registrar: client,
		Clock:     a.clock,
	})

	slog.Info("Application wired",
		"env", cfg.AppEnv,
		"session_storage", cfg.SessionStorage,
		"webhook_dedupe", cfg.WebhookDedupeTable != "",
		"gdpr_archive", cfg.GDPRArchiveBucket != "",
		"gdpr_alerts", cfg.GDPRAlertsTopicARN != "",
	)
	return a, nil
}

// Close releases connections opened during wiring.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func (a *App) aws(ctx context.Context) (aws.Config, error) {
	if a.awsCfg != nil {
		return *a.awsCfg, nil
	}
	cfg, err := db.LoadAWSConfig(ctx)
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load AWS config: %w", err)
	}
	a.awsCfg = &cfg
	return cfg, nil
}

func (a *App) tokenSealer() (session.TokenSealer, error) {
	if a.Config.TokenEncKeyB64 == "" {
		if a.Config.IsProduction() && a.Config.SessionStorage != "memory" {
			slog.Warn("TOKEN_ENC_KEY_B64 not set; access tokens are stored unencrypted")
		}
		return security.PlaintextCipher{}, nil
	}
	c, err := security.NewTokenCipher(a.Config.TokenEncKeyB64)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (a *App) sessionStore(ctx context.Context) (session.Store, error) {
	cfg := a.Config

	sealer, err := a.tokenSealer()
	if err != nil {
		return nil, err
	}

	switch cfg.SessionStorage {
	case "dynamodb":
		awsCfg, err := a.aws(ctx)
		if err != nil {
			return nil, err
		}
		return session.NewDynamoStore(db.NewDynamoClient(awsCfg), cfg.SessionsTable, sealer), nil
	case "redis":
		rdb, err := session.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, rdb.Close)
		return session.NewRedisStore(rdb, sealer, a.clock), nil
	case "memory", "":
		return session.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown session storage %q", cfg.SessionStorage)
	}
}

// webhookDispatcher registers the app's webhook handlers and, when a dedupe
// table is configured, wraps them so redelivered webhooks are processed once.
func (a *App) webhookDispatcher(ctx context.Context) (webhooks.Dispatcher, error) {
	cfg := a.Config
	reg := webhooks.NewRegistry()

	compliance := &webhooks.Compliance{Sessions: a.Sessions}
	if cfg.GDPRArchiveBucket != "" {
		awsCfg, err := a.aws(ctx)
		if err != nil {
			return nil, err
		}
		compliance.Archiver = webhooks.NewS3Archiver(s3.NewFromConfig(awsCfg), cfg.GDPRArchiveBucket)
	}
	if cfg.GDPRAlertsTopicARN != "" {
		awsCfg, err := a.aws(ctx)
		if err != nil {
			return nil, err
		}
		compliance.Notifier = webhooks.NewSNSNotifier(sns.NewFromConfig(awsCfg), cfg.GDPRAlertsTopicARN, a.clock)
	}
	compliance.Register(reg)

	if cfg.WebhookDedupeTable == "" {
		return webhooks.NewProcessor(reg, nil), nil
	}

	awsCfg, err := a.aws(ctx)
	if err != nil {
		return nil, err
	}
	deduper := webhooks.NewDynamoDeduper(db.NewDynamoClient(awsCfg), cfg.WebhookDedupeTable, a.clock)
	return webhooks.NewProcessor(reg, deduper), nil
}
