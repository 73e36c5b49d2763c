package logger_test

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/openhqm/openhqm/pkg/logger"
	"github.com/stretchr/testify/require"
)

func TestRedactHandlerMasksSensitiveFields(t *testing.T) {
	var buf bytes.Buffer
	h := logger.NewRedactHandler(slog.NewJSONHandler(&buf, nil))
	l := slog.New(h)

	l.InfoContext(context.Background(), "login",
		"email", "person@example.com",
		"cc", "1234 5678 1234 5678",
		"password", "hunter2",
		"action", "login",
	)

	out := buf.String()
	require.NotContains(t, out, "person@example.com")
	require.NotContains(t, out, "1234 5678 1234 5678")
	require.NotContains(t, out, "hunter2")
	require.Contains(t, out, "login")
}

func TestSamplingHandlerAlwaysKeepsWarnings(t *testing.T) {
	var buf bytes.Buffer
	h := logger.NewSamplingHandler(slog.NewJSONHandler(&buf, nil), 0.0)
	l := slog.New(h)

	l.WarnContext(context.Background(), "degraded")
	require.Contains(t, buf.String(), "degraded")
}

func TestAsyncHandlerDeliversAfterClose(t *testing.T) {
	var buf bytes.Buffer
	h := logger.NewAsyncHandler(slog.NewJSONHandler(&buf, nil), 16, false)
	l := slog.New(h)

	l.InfoContext(context.Background(), "buffered")
	require.NoError(t, h.Close())
	require.Contains(t, buf.String(), "buffered")
}
