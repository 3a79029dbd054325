package config

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/viper"
)

const (
	// DefaultAPIURL is the provider API used when nothing else is configured.
	DefaultAPIURL = "https://api.attrexchange.io/api/v1"
	// DefaultNonceWindow is how long signed request nonces are remembered.
	DefaultNonceWindow = 5 * time.Minute
)

// Config holds the client configuration.
type Config struct {
	SDKID       string        `mapstructure:"sdk_id"`
	APIURL      string        `mapstructure:"api_url"`
	LogLevel    string        `mapstructure:"log_level"`
	NonceWindow time.Duration `mapstructure:"nonce_window"`

	// Key material. PEM bytes take precedence over the file path; when a
	// key bucket is set the S3 object is read first and the local file is
	// the fallback.
	PrivateKeyPEM  []byte `mapstructure:"-"`
	PrivateKeyPath string `mapstructure:"private_key_path"`
	KeyBucket      string `mapstructure:"key_bucket"`
	KeyObject      string `mapstructure:"key_object"`
	KeyRegion      string `mapstructure:"key_region"`
	KeyEndpoint    string `mapstructure:"key_endpoint"`
	KeyPathStyle   bool   `mapstructure:"key_path_style"`

	// Bearer auth on top of request signing. AccessToken is sent as is;
	// otherwise BearerAuth mints RS256 tokens with the client key.
	AccessToken string `mapstructure:"access_token"`
	BearerAuth  bool   `mapstructure:"bearer_auth"`

	HTTPClient *http.Client          `mapstructure:"-"` // Cannot be configured via yaml/env
	Registerer prometheus.Registerer `mapstructure:"-"`
	Logger     *slog.Logger          `mapstructure:"-"`
}

// LoadConfig loads configuration from a YAML file and environment variables.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("exchange")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	// Environment variable overrides, e.g. EXCHANGE_API_URL
	v.SetEnvPrefix("EXCHANGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("api_url", DefaultAPIURL)
	v.SetDefault("log_level", "info")
	v.SetDefault("nonce_window", DefaultNonceWindow.String())
	v.SetDefault("bearer_auth", false)
	// Unset keys must still be known to viper for AutomaticEnv to apply on Unmarshal.
	for _, key := range []string{
		"sdk_id", "private_key_path", "key_bucket", "key_object",
		"key_region", "key_endpoint", "access_token",
	} {
		v.SetDefault(key, "")
	}
	v.SetDefault("key_path_style", false)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		// Config file not found is fine, we just rely on defaults/env vars
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	config.HTTPClient = http.DefaultClient

	return &config, nil
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		APIURL:      DefaultAPIURL,
		LogLevel:    "info",
		NonceWindow: DefaultNonceWindow,
		HTTPClient:  http.DefaultClient,
	}
}

// Option is a functional option for configuring the client.
type Option func(*Config)

// WithSDKID sets the application identifier issued by the provider.
func WithSDKID(id string) Option {
	return func(c *Config) {
		c.SDKID = id
	}
}

// WithAPIURL sets the base URL for the API.
func WithAPIURL(url string) Option {
	return func(c *Config) {
		c.APIURL = url
	}
}

// WithPrivateKeyPEM sets the PEM-encoded application key.
func WithPrivateKeyPEM(pem []byte) Option {
	return func(c *Config) {
		c.PrivateKeyPEM = pem
	}
}

// WithPrivateKeyPath sets the path of the PEM-encoded application key.
func WithPrivateKeyPath(path string) Option {
	return func(c *Config) {
		c.PrivateKeyPath = path
	}
}

// WithKeyBucket reads the application key from an S3 object.
func WithKeyBucket(bucket, object string) Option {
	return func(c *Config) {
		c.KeyBucket = bucket
		c.KeyObject = object
	}
}

// WithKeyRegion sets the AWS region of the key bucket.
func WithKeyRegion(region string) Option {
	return func(c *Config) {
		c.KeyRegion = region
	}
}

// WithKeyEndpoint sets a custom S3 endpoint (e.g. for MinIO).
func WithKeyEndpoint(endpoint string, pathStyle bool) Option {
	return func(c *Config) {
		c.KeyEndpoint = endpoint
		c.KeyPathStyle = pathStyle
	}
}

// WithNonceWindow sets how long signed request nonces are remembered.
func WithNonceWindow(d time.Duration) Option {
	return func(c *Config) {
		c.NonceWindow = d
	}
}

// WithLogLevel sets the level of the default logger.
func WithLogLevel(level string) Option {
	return func(c *Config) {
		c.LogLevel = level
	}
}

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Config) {
		c.HTTPClient = client
	}
}

// WithAccessToken sends a static bearer token with each request.
func WithAccessToken(token string) Option {
	return func(c *Config) {
		c.AccessToken = token
	}
}

// WithBearerAuth enables RS256 bearer tokens signed with the application key.
func WithBearerAuth(enabled bool) Option {
	return func(c *Config) {
		c.BearerAuth = enabled
	}
}

// WithMetricsRegisterer registers operation metrics on reg.
func WithMetricsRegisterer(reg prometheus.Registerer) Option {
	return func(c *Config) {
		c.Registerer = reg
	}
}

// WithLogger sets the logger. It replaces the one built from LogLevel.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) {
		c.Logger = l
	}
}

// WithConfig replaces the configuration with the provided one.
func WithConfig(cfg *Config) Option {
	return func(c *Config) {
		*c = *cfg
	}
}
