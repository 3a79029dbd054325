package logging

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

type secretHolder struct{}

func (secretHolder) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("private_key", "-----BEGIN"),
		slog.Int("bits", 2048),
	)
}

func TestRedactingHandler(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "debug")

	logger.Debug("decrypted token",
		"token", "eyJhbGciOi",
		"receipt_id", "r-1",
		"attributes", 3,
		"key", secretHolder{},
	)

	out := buf.String()
	require.Contains(t, out, "receipt_id=r-1")
	require.Contains(t, out, "attributes=3")
	require.Contains(t, out, "token="+redactedValue)
	require.Contains(t, out, "key.private_key="+redactedValue)
	require.Contains(t, out, "key.bits=2048")
	require.NotContains(t, out, "eyJhbGciOi")
	require.NotContains(t, out, "BEGIN")
}

func TestRedactingHandler_WithAttrs(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "info").With("client_secret", "s3cr3t", "sdk_id", "sdk-1")

	logger.Info("request", "X-Exchange-Auth-Signature", "abc")
	out := buf.String()
	require.NotContains(t, out, "s3cr3t")
	require.NotContains(t, out, "abc")
	require.Contains(t, out, "sdk_id=sdk-1")
}

func TestParseLevel(t *testing.T) {
	require.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	require.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	require.Equal(t, slog.LevelError, ParseLevel("error"))
	require.Equal(t, slog.LevelInfo, ParseLevel("bogus"))

	h := WrapHandler(slog.NewTextHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelWarn}))
	require.False(t, h.Enabled(context.Background(), slog.LevelInfo))
	require.Nil(t, WrapHandler(nil))
}
