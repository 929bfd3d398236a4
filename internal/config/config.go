package config

import (
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

type Config struct {
	AppEnv      string `env:"NODE_ENV"`
	AppEnvAlias string `env:"APP_ENV"`
	Port        string `env:"PORT" default:"3000"`
	BackendPort string `env:"BACKEND_PORT"`

	APIKey         string        `env:"SHOPIFY_API_KEY" validate:"required"`
	APISecret      string        `env:"SHOPIFY_API_SECRET" validate:"required_without=APISecretParam"`
	APISecretParam string        `env:"SHOPIFY_API_SECRET_PARAM"`
	Scopes         string        `env:"SCOPES"`
	HostURL        string        `env:"HOST" validate:"required,url"`
	APIVersion     string        `env:"SHOPIFY_API_VERSION" default:"2025-01"`
	HTTPTimeout    time.Duration `env:"SHOPIFY_HTTP_TIMEOUT" default:"30s"`

	AuthPath         string `env:"AUTH_PATH" default:"/api/auth" validate:"startswith=/"`
	AuthCallbackPath string `env:"AUTH_CALLBACK_PATH" default:"/api/auth/callback" validate:"startswith=/"`
	WebhookPath      string `env:"WEBHOOK_PATH" default:"/api/webhooks" validate:"startswith=/"`

	SessionStorage    string `env:"SESSION_STORAGE" default:"memory" validate:"oneof=memory dynamodb redis"`
	SessionsTable     string `env:"SESSIONS_TABLE" validate:"required_if=SessionStorage dynamodb"`
	RedisURL          string `env:"REDIS_URL" validate:"required_if=SessionStorage redis"`
	TokenEncKeyB64    string `env:"TOKEN_ENC_KEY_B64"`
	StateCookieSecret string `env:"STATE_COOKIE_SECRET"`

	WebhookDedupeTable   string `env:"WEBHOOK_DEDUPE_TABLE"`
	GDPRArchiveBucket    string `env:"GDPR_ARCHIVE_BUCKET"`
	GDPRAlertsTopicARN   string `env:"GDPR_ALERTS_TOPIC_ARN"`
	EventBridgeSourceARN string `env:"EVENTBRIDGE_SOURCE_ARN"`

	ProxyRateLimit float64 `env:"PROXY_RATE_LIMIT" default:"10" validate:"gt=0"`
	ProxyRateBurst int     `env:"PROXY_RATE_BURST" default:"20" validate:"gt=0"`
	TrustedProxies string  `env:"TRUSTED_PROXY_CIDRS" validate:"omitempty,cidrlist"`

	LogLevel  string `env:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`
	LogFormat string `env:"LOG_FORMAT" default:"text" validate:"oneof=text json"`
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}
	cfg.resolveAppEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// resolveAppEnv prefers NODE_ENV, then APP_ENV, then development.
func (c *Config) resolveAppEnv() {
	if c.AppEnv == "" {
		c.AppEnv = c.AppEnvAlias
	}
	if c.AppEnv == "" {
		c.AppEnv = "development"
	}
}

// TrustedProxyRanges parses TRUSTED_PROXY_CIDRS (comma separated). Invalid entries
// are rejected by Validate and skipped here.
func (c *Config) TrustedProxyRanges() []*net.IPNet {
	var out []*net.IPNet
	for _, raw := range splitList(c.TrustedProxies) {
		if _, n, err := net.ParseCIDR(raw); err == nil {
			out = append(out, n)
		}
	}
	return out
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// ListenPort prefers BACKEND_PORT over PORT.
func (c *Config) ListenPort() string {
	if c.BackendPort != "" {
		return c.BackendPort
	}
	return c.Port
}

func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// StaticPath is the built frontend in production and the frontend sources otherwise.
func (c *Config) StaticPath(cwd string) string {
	if c.IsProduction() {
		return filepath.Join(cwd, "frontend", "dist")
	}
	return filepath.Join(cwd, "frontend") + string(filepath.Separator)
}

func (c *Config) ScopeList() []string {
	return splitList(c.Scopes)
}

// AppURL joins HOST with an absolute path.
func (c *Config) AppURL(path string) string {
	return strings.TrimRight(c.HostURL, "/") + path
}

// AppHostname is HOST without scheme, e.g. "app.example.com".
func (c *Config) AppHostname() string {
	u, err := url.Parse(c.HostURL)
	if err != nil {
		return ""
	}
	return u.Host
}

// StateSecret signs the OAuth state cookie; falls back to the API secret.
func (c *Config) StateSecret() string {
	if c.StateCookieSecret != "" {
		return c.StateCookieSecret
	}
	return c.APISecret
}
