package webhooks

import (
	"context"
	"fmt"
	"log/slog"

	"marketplace/internal/session"
)

const (
	TopicCustomersDataRequest = "CUSTOMERS_DATA_REQUEST"
	TopicCustomersRedact      = "CUSTOMERS_REDACT"
	TopicShopRedact           = "SHOP_REDACT"
	TopicAppUninstalled       = "APP_UNINSTALLED"
)

// Archiver keeps a copy of a compliance payload and returns where it was stored.
type Archiver interface {
	Archive(ctx context.Context, w Webhook) (string, error)
}

type Notifier interface {
	Notify(ctx context.Context, w Webhook, archiveKey string) error
}

// Compliance handles the mandatory privacy topics and app uninstalls.
// Archiver and Notifier are optional.
type Compliance struct {
	Sessions session.Store
	Archiver Archiver
	Notifier Notifier
}

// Register installs the compliance handlers on reg.
func (c *Compliance) Register(reg *Registry) {
	reg.Register(TopicCustomersDataRequest, HandlerFunc(c.handlePrivacyRequest))
	reg.Register(TopicCustomersRedact, HandlerFunc(c.handlePrivacyRequest))
	reg.Register(TopicShopRedact, HandlerFunc(c.handleShopRedact))
	reg.Register(TopicAppUninstalled, HandlerFunc(c.handleUninstalled))
}

func (c *Compliance) handlePrivacyRequest(ctx context.Context, w Webhook) error {
	slog.InfoContext(ctx, "Privacy webhook received", "topic", w.Topic, "shop", w.Shop, "webhook_id", w.WebhookID)

	key, err := c.archive(ctx, w)
	if err != nil {
		return err
	}
	return c.notify(ctx, w, key)
}

func (c *Compliance) handleShopRedact(ctx context.Context, w Webhook) error {
	if err := c.handlePrivacyRequest(ctx, w); err != nil {
		return err
	}
	return c.deleteSessions(ctx, w)
}

func (c *Compliance) handleUninstalled(ctx context.Context, w Webhook) error {
	return c.deleteSessions(ctx, w)
}

func (c *Compliance) deleteSessions(ctx context.Context, w Webhook) error {
	n, err := session.DeleteShopSessions(ctx, c.Sessions, w.Shop)
	if err != nil {
		return fmt.Errorf("%s: %w", w.Topic, err)
	}
	slog.InfoContext(ctx, "Shop sessions deleted", "topic", w.Topic, "shop", w.Shop, "count", n)
	return nil
}

func (c *Compliance) archive(ctx context.Context, w Webhook) (string, error) {
	if c.Archiver == nil {
		return "", nil
	}
	key, err := c.Archiver.Archive(ctx, w)
	if err != nil {
		return "", fmt.Errorf("archive %s: %w", w.Topic, err)
	}
	return key, nil
}

func (c *Compliance) notify(ctx context.Context, w Webhook, key string) error {
	if c.Notifier == nil {
		return nil
	}
	if err := c.Notifier.Notify(ctx, w, key); err != nil {
		return fmt.Errorf("notify %s: %w", w.Topic, err)
	}
	return nil
}
