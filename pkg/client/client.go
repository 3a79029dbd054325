package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/attrexchange/go-client/pkg/attribute"
	"github.com/attrexchange/go-client/pkg/config"
	"github.com/attrexchange/go-client/pkg/encryption"
	"github.com/attrexchange/go-client/pkg/envelope"
	"github.com/attrexchange/go-client/pkg/errdefs"
	"github.com/attrexchange/go-client/pkg/exchange"
	"github.com/attrexchange/go-client/pkg/keys"
	"github.com/attrexchange/go-client/pkg/logging"
	"github.com/attrexchange/go-client/pkg/metrics"
	"github.com/attrexchange/go-client/pkg/model"
	"github.com/attrexchange/go-client/pkg/signing"
	"github.com/attrexchange/go-client/pkg/store"
	"github.com/attrexchange/go-client/pkg/transport"
)

// ErrSharingFailure is returned when the provider reports that the user did
// not complete the share.
var ErrSharingFailure = errors.New("sharing failure")

// ActivityDetails is the outcome of a completed share.
type ActivityDetails struct {
	ReceiptID          string
	RememberMeID       string
	ParentRememberMeID string
	Timestamp          time.Time
	Attributes         *attribute.Set
}

// LogValue keeps attribute values out of logs.
func (d *ActivityDetails) LogValue() slog.Value {
	n := 0
	if d.Attributes != nil {
		n = d.Attributes.Len()
	}
	return slog.GroupValue(
		slog.String("receipt_id", d.ReceiptID),
		slog.Time("timestamp", d.Timestamp),
		slog.Int("attributes", n),
	)
}

// Client is the main entry point for the exchange client.
type Client struct {
	cfg     *config.Config
	keys    *keys.KeyPair
	engine  *exchange.Engine
	metrics *metrics.Recorder
	logger  *slog.Logger

	mu        sync.RWMutex
	apiURL    string
	transport transport.Transport
}

// New creates a new Client, loading the application key from the configured source.
func New(ctx context.Context, opts ...config.Option) (*Client, error) {
	cfg := config.DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	logger := newLogger(cfg)
	src, err := keySource(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	kp, err := keys.LoadFrom(ctx, src)
	if err != nil {
		return nil, fmt.Errorf("failed to load application key: %w", err)
	}
	return newClient(cfg, kp, logger)
}

// NewWithKeyPair creates a new Client around an already loaded key pair.
func NewWithKeyPair(kp *keys.KeyPair, opts ...config.Option) (*Client, error) {
	if kp == nil {
		return nil, fmt.Errorf("key pair is required")
	}
	cfg := config.DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return newClient(cfg, kp, newLogger(cfg))
}

// newLogger returns the redacting logger every component of the client logs through.
func newLogger(cfg *config.Config) *slog.Logger {
	if cfg.Logger != nil {
		return slog.New(logging.WrapHandler(cfg.Logger.Handler()))
	}
	return logging.New(os.Stderr, cfg.LogLevel)
}

func newClient(cfg *config.Config, kp *keys.KeyPair, logger *slog.Logger) (*Client, error) {
	if cfg.SDKID == "" {
		return nil, fmt.Errorf("SDKID is required")
	}
	if cfg.APIURL == "" {
		return nil, fmt.Errorf("APIURL is required")
	}

	rec, err := metrics.NewRecorder(cfg.Registerer)
	if err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	signer := signing.NewSigner(signing.WithLedger(store.NewMemoryLedger(cfg.NonceWindow)))

	c := &Client{
		cfg:     cfg,
		keys:    kp,
		engine:  exchange.New(exchange.WithSigner(signer)),
		metrics: rec,
		logger:  logger,
	}

	tr, err := c.newTransport(cfg.APIURL)
	if err != nil {
		return nil, err
	}
	c.apiURL = cfg.APIURL
	c.transport = tr

	logger.Debug("client ready", slog.String("sdk_id", cfg.SDKID), slog.String("api_url", cfg.APIURL), slog.Any("key", kp))
	return c, nil
}

// keySource picks where the application key is read from. PEM bytes win,
// then an S3 object (with the local file as fallback), then the local file.
func keySource(ctx context.Context, cfg *config.Config, logger *slog.Logger) (keys.Source, error) {
	if len(cfg.PrivateKeyPEM) > 0 {
		return keys.Bytes(cfg.PrivateKeyPEM), nil
	}

	if cfg.KeyBucket != "" {
		s3src, err := keys.NewS3Source(ctx, keys.S3Options{
			Bucket:    cfg.KeyBucket,
			Key:       cfg.KeyObject,
			Region:    cfg.KeyRegion,
			Endpoint:  cfg.KeyEndpoint,
			PathStyle: cfg.KeyPathStyle,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to configure key bucket: %w", err)
		}
		if cfg.PrivateKeyPath == "" {
			return s3src, nil
		}
		return keys.NewFallbackSource(s3src, keys.File(cfg.PrivateKeyPath), logger), nil
	}

	if cfg.PrivateKeyPath != "" {
		return keys.File(cfg.PrivateKeyPath), nil
	}
	return nil, fmt.Errorf("no application key configured")
}

func (c *Client) newTransport(apiURL string) (*transport.HTTPTransport, error) {
	opts := []transport.Option{transport.WithLogger(c.logger)}
	switch {
	case c.cfg.AccessToken != "":
		opts = append(opts, transport.WithTokenProvider(transport.NewSharedSecretTokenProvider(c.cfg.AccessToken)))
	case c.cfg.BearerAuth:
		opts = append(opts, transport.WithTokenProvider(
			transport.NewPrivateKeyTokenProvider(c.keys.Signer(), c.cfg.SDKID, c.keys.Fingerprint(), apiURL)))
	}

	tr, err := transport.NewHTTPTransport(c.cfg.HTTPClient, apiURL, c.cfg.SDKID, c.sign, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create transport: %w", err)
	}
	return tr, nil
}

func (c *Client) sign(req signing.Request) (signed *signing.Signed, err error) {
	defer func(start time.Time) { c.metrics.Observe("sign_outbound", start, err) }(time.Now())
	return c.engine.SignOutbound(req, c.keys)
}

func (c *Client) currentTransport() transport.Transport {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.transport
}

// APIURL returns the API base URL in use.
func (c *Client) APIURL() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.apiURL
}

// OverrideAPIURL points the client at another API base URL. Calls already
// in flight finish against the previous one.
func (c *Client) OverrideAPIURL(apiURL string) error {
	tr, err := c.newTransport(apiURL)
	if err != nil {
		return err
	}

	c.mu.Lock()
	old := c.transport
	c.apiURL = apiURL
	c.transport = tr
	c.mu.Unlock()

	c.logger.Debug("api url overridden", slog.String("api_url", apiURL))
	return old.Close()
}

// KeyFingerprint returns the SHA-256 fingerprint of the application public key.
func (c *Client) KeyFingerprint() string {
	return c.keys.Fingerprint()
}

// DecryptToken decrypts a base64 token locally and returns its attributes.
func (c *Client) DecryptToken(token string) (set *attribute.Set, err error) {
	defer func(start time.Time) { c.metrics.Observe("decrypt_token", start, err) }(time.Now())

	raw, err := envelope.DecodeTokenBytes(token)
	if err != nil {
		return nil, err
	}
	return c.engine.DecryptToken(raw, c.keys)
}

// GetActivityDetails exchanges a connect token for the receipt of the share
// and the attributes it carries.
func (c *Client) GetActivityDetails(ctx context.Context, token string) (details *ActivityDetails, err error) {
	defer func(start time.Time) { c.metrics.Observe("get_activity_details", start, err) }(time.Now())

	connectToken, err := c.unwrapConnectToken(token)
	if err != nil {
		return nil, err
	}

	receipt, err := c.currentTransport().GetReceipt(ctx, connectToken)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch receipt: %w", err)
	}
	if receipt.SharingOutcome != model.SharingOutcomeSuccess {
		return nil, fmt.Errorf("%w: receipt %s outcome %q", ErrSharingFailure, receipt.ReceiptID, receipt.SharingOutcome)
	}

	details = &ActivityDetails{
		ReceiptID:          receipt.ReceiptID,
		RememberMeID:       receipt.RememberMeID,
		ParentRememberMeID: receipt.ParentRememberMeID,
		Timestamp:          receipt.Time(),
	}

	if receipt.OtherPartyProfileContent == "" {
		details.Attributes = attribute.NewSet(details.Timestamp, receipt.ReceiptID, nil)
	} else {
		details.Attributes, err = c.DecryptToken(receipt.OtherPartyProfileContent)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt profile of receipt %s: %w", receipt.ReceiptID, err)
		}
	}

	c.logger.Debug("activity details", slog.Any("details", details))
	return details, nil
}

// unwrapConnectToken recovers the plaintext connect token, which the provider
// hands out encrypted to the application key.
func (c *Client) unwrapConnectToken(token string) (string, error) {
	raw, err := envelope.DecodeTokenBytes(token)
	if err != nil {
		return "", errdefs.New(errdefs.KindKeyUnwrap, "unwrap_token", "connect token is not valid base64")
	}
	plain, err := encryption.UnwrapToken(raw, c.keys.Decrypter())
	if err != nil {
		return "", err
	}
	return string(plain), nil
}

// PerformAmlCheck validates profile and submits it for an AML check.
func (c *Client) PerformAmlCheck(ctx context.Context, profile *model.AmlProfile) (result *model.AmlResult, err error) {
	defer func(start time.Time) { c.metrics.Observe("aml_check", start, err) }(time.Now())

	if profile == nil {
		return nil, fmt.Errorf("%w: profile is required", model.ErrInvalidAmlProfile)
	}
	if err := profile.Validate(); err != nil {
		return nil, err
	}
	return c.currentTransport().PerformAmlCheck(ctx, profile)
}

// CreateShareURL registers a dynamic scenario and returns the URL the user
// opens to share.
func (c *Client) CreateShareURL(ctx context.Context, scenario *model.DynamicScenario) (result *model.ShareURLResult, err error) {
	defer func(start time.Time) { c.metrics.Observe("create_share_url", start, err) }(time.Now())

	if scenario == nil {
		return nil, fmt.Errorf("scenario is required")
	}
	return c.currentTransport().CreateShareURL(ctx, scenario)
}

// Close closes the client and releases resources.
func (c *Client) Close() error {
	return c.currentTransport().Close()
}
