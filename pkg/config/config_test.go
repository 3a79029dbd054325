package config

import (
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	require.Equal(t, DefaultAPIURL, cfg.APIURL)
	require.Equal(t, "info", cfg.LogLevel)
	require.Equal(t, DefaultNonceWindow, cfg.NonceWindow)
	require.False(t, cfg.BearerAuth)
	require.Same(t, http.DefaultClient, cfg.HTTPClient)
}

func TestLoadConfig_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "client.yaml")
	content := `
sdk_id: sdk-123
api_url: https://sandbox.example.test/api
private_key_path: /etc/exchange/key.pem
nonce_window: 90s
key_bucket: keys
key_object: app/key.pem
key_path_style: true
bearer_auth: true
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, "sdk-123", cfg.SDKID)
	require.Equal(t, "https://sandbox.example.test/api", cfg.APIURL)
	require.Equal(t, "/etc/exchange/key.pem", cfg.PrivateKeyPath)
	require.Equal(t, 90*time.Second, cfg.NonceWindow)
	require.Equal(t, "keys", cfg.KeyBucket)
	require.Equal(t, "app/key.pem", cfg.KeyObject)
	require.True(t, cfg.KeyPathStyle)
	require.True(t, cfg.BearerAuth)
	require.Equal(t, "info", cfg.LogLevel)
}

func TestLoadConfig_EnvOverride(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("EXCHANGE_API_URL", "https://override.example.test")
	t.Setenv("EXCHANGE_SDK_ID", "env-sdk")

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	require.Equal(t, "https://override.example.test", cfg.APIURL)
	require.Equal(t, "env-sdk", cfg.SDKID)
}

func TestLoadConfig_DefaultFileName(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "exchange.yaml"), []byte("sdk_id: from-file\n"), 0o600))
	t.Chdir(dir)

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	require.Equal(t, "from-file", cfg.SDKID)
}

func TestLoadConfig_MissingExplicitFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestOptions(t *testing.T) {
	reg := prometheus.NewRegistry()
	hc := &http.Client{Timeout: time.Second}

	cfg := DefaultConfig()
	for _, opt := range []Option{
		WithSDKID("sdk-1"),
		WithAPIURL("https://api.example.test"),
		WithPrivateKeyPEM([]byte("pem")),
		WithPrivateKeyPath("key.pem"),
		WithKeyBucket("bucket", "key.pem"),
		WithKeyRegion("eu-west-2"),
		WithKeyEndpoint("http://localhost:9000", true),
		WithNonceWindow(time.Minute),
		WithLogLevel("debug"),
		WithHTTPClient(hc),
		WithAccessToken("token"),
		WithBearerAuth(true),
		WithMetricsRegisterer(reg),
	} {
		opt(cfg)
	}

	require.Equal(t, "sdk-1", cfg.SDKID)
	require.Equal(t, "https://api.example.test", cfg.APIURL)
	require.Equal(t, []byte("pem"), cfg.PrivateKeyPEM)
	require.Equal(t, "key.pem", cfg.PrivateKeyPath)
	require.Equal(t, "bucket", cfg.KeyBucket)
	require.Equal(t, "key.pem", cfg.KeyObject)
	require.Equal(t, "eu-west-2", cfg.KeyRegion)
	require.Equal(t, "http://localhost:9000", cfg.KeyEndpoint)
	require.True(t, cfg.KeyPathStyle)
	require.Equal(t, time.Minute, cfg.NonceWindow)
	require.Equal(t, "debug", cfg.LogLevel)
	require.Same(t, hc, cfg.HTTPClient)
	require.Equal(t, "token", cfg.AccessToken)
	require.True(t, cfg.BearerAuth)
	require.Equal(t, reg, cfg.Registerer)
}

func TestWithConfig(t *testing.T) {
	base := &Config{SDKID: "copied", APIURL: "https://copied.example.test"}
	cfg := DefaultConfig()
	WithConfig(base)(cfg)
	require.Equal(t, "copied", cfg.SDKID)
	require.Equal(t, "https://copied.example.test", cfg.APIURL)
	require.Zero(t, cfg.NonceWindow)
}
