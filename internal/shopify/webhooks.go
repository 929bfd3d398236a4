package shopify

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

type webhookCreateReq struct {
	Webhook struct {
		Address string `json:"address"`
		Topic   string `json:"topic"`
		Format  string `json:"format"`
	} `json:"webhook"`
}

// RESTTopic converts "APP_UNINSTALLED" to "app/uninstalled".
func RESTTopic(topic string) string {
	t := strings.ToLower(topic)
	if strings.Contains(t, "/") {
		return t
	}
	return strings.Replace(t, "_", "/", 1)
}

// RegisterWebhook subscribes the shop to topic. address is either an https URL or
// an EventBridge partner event source ARN. An existing subscription counts as success.
func (c *Client) RegisterWebhook(ctx context.Context, shop, accessToken, topic, address string) error {
	var payload webhookCreateReq
	payload.Webhook.Address = address
	payload.Webhook.Topic = RESTTopic(topic)
	payload.Webhook.Format = "json"

	err := c.do(ctx, "create webhook", http.MethodPost, c.adminURL(shop, "webhooks.json"), accessToken, payload, nil)

	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnprocessableEntity &&
		strings.Contains(apiErr.Body, "already been taken") {
		return nil
	}
	return err
}
