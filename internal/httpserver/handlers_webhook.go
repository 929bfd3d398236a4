package httpserver

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"marketplace/internal/apperrors"
	"marketplace/internal/webhooks"
)

func (s *Server) handleWebhook(c echo.Context) error {
	w, err := webhooks.ParseRequest(c.Request(), s.config.APISecret)
	switch {
	case errors.Is(err, webhooks.ErrInvalidHMAC):
		s.appMetrics.Webhook("unverified", "invalid_hmac")
		return c.NoContent(http.StatusUnauthorized)
	case errors.Is(err, webhooks.ErrMissingMeta):
		return apperrors.ValidationError("missing webhook topic or shop")
	case err != nil:
		return apperrors.InternalError("failed to read webhook", err)
	}

	ctx := c.Request().Context()
	err = s.webhooks.Dispatch(ctx, w)
	switch {
	case err == nil:
		s.appMetrics.Webhook(w.Topic, "ok")
		slog.InfoContext(ctx, "Webhook processed", "topic", w.Topic, "shop", w.Shop, "webhook_id", w.WebhookID)
		return c.NoContent(http.StatusOK)
	case errors.Is(err, webhooks.ErrNoHandler):
		s.appMetrics.Webhook(w.Topic, "unhandled")
		slog.WarnContext(ctx, "No handler for webhook topic", "topic", w.Topic, "shop", w.Shop)
		return c.NoContent(http.StatusNotFound)
	default:
		s.appMetrics.Webhook(w.Topic, "error")
		slog.ErrorContext(ctx, "Webhook processing failed", "topic", w.Topic, "shop", w.Shop, "webhook_id", w.WebhookID, "error", err)
		return c.NoContent(http.StatusInternalServerError)
	}
}
