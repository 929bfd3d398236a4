package logging

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCorrelationID_RoundTrip(t *testing.T) {
	ctx := WithCorrelationID(context.Background(), "abcd1234")

	id, ok := CorrelationID(ctx)
	assert.True(t, ok)
	assert.Equal(t, "abcd1234", id)

	_, ok = CorrelationID(context.Background())
	assert.False(t, ok)
}

func TestNewCorrelationID(t *testing.T) {
	id := NewCorrelationID()
	assert.Len(t, id, 8)
	assert.NotEqual(t, id, NewCorrelationID())
}

func TestCorrelationHandler_AddsAttribute(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewCorrelationHandler(slog.NewTextHandler(&buf, nil)))

	logger.InfoContext(WithCorrelationID(context.Background(), "feedbeef"), "hello")
	assert.Contains(t, buf.String(), "correlation_id=feedbeef")

	buf.Reset()
	logger.InfoContext(context.Background(), "hello")
	assert.NotContains(t, buf.String(), "correlation_id")
}

func TestCorrelationHandler_WithAttrsKeepsWrapping(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewCorrelationHandler(slog.NewTextHandler(&buf, nil))).With("component", "webhooks")

	logger.InfoContext(WithCorrelationID(context.Background(), "0badf00d"), "dispatch")
	out := buf.String()
	assert.Contains(t, out, "component=webhooks")
	assert.Contains(t, out, "correlation_id=0badf00d")
}
