package client

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/attrexchange/go-client/pkg/config"
	"github.com/attrexchange/go-client/pkg/keys"
	"github.com/attrexchange/go-client/pkg/logging"
)

func TestNewLogger_RedactsConfiguredLogger(t *testing.T) {
	var buf bytes.Buffer
	cfg := config.DefaultConfig()
	cfg.Logger = slog.New(slog.NewTextHandler(&buf, nil))

	logger := newLogger(cfg)
	_, ok := logger.Handler().(*logging.RedactingHandler)
	require.True(t, ok)

	logger.Info("fetched", slog.String("connect_token", "abc"))
	require.Contains(t, buf.String(), "connect_token=[REDACTED]")
	require.NotContains(t, buf.String(), "abc")

	cfg.Logger = nil
	_, ok = newLogger(cfg).Handler().(*logging.RedactingHandler)
	require.True(t, ok)
}

func TestKeySource_FallbackWarnsThroughClientLogger(t *testing.T) {
	t.Setenv("AWS_ACCESS_KEY_ID", "test")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "test")
	t.Setenv("AWS_REGION", "eu-west-2")
	t.Setenv("AWS_EC2_METADATA_DISABLED", "true")
	t.Setenv("AWS_CONFIG_FILE", filepath.Join(t.TempDir(), "config"))
	t.Setenv("AWS_SHARED_CREDENTIALS_FILE", filepath.Join(t.TempDir(), "credentials"))

	bucket := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/xml")
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`<Error><Code>NoSuchKey</Code><Message>missing</Message></Error>`))
	}))
	defer bucket.Close()

	k, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "key.pem")
	require.NoError(t, os.WriteFile(path,
		pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(k)}), 0o600))

	var buf bytes.Buffer
	cfg := config.DefaultConfig()
	for _, opt := range []config.Option{
		config.WithKeyBucket("keys", "app.pem"),
		config.WithKeyEndpoint(bucket.URL, true),
		config.WithPrivateKeyPath(path),
		config.WithLogger(slog.New(slog.NewTextHandler(&buf, nil))),
	} {
		opt(cfg)
	}

	src, err := keySource(context.Background(), cfg, newLogger(cfg))
	require.NoError(t, err)

	kp, err := keys.LoadFrom(context.Background(), src)
	require.NoError(t, err)
	require.True(t, kp.Public().Equal(&k.PublicKey))
	require.Contains(t, buf.String(), "falling back")
}
