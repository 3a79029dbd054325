package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"github.com/hamba/avro/v2"

	"github.com/attrexchange/go-client/pkg/model"
	"github.com/attrexchange/go-client/pkg/signing"
)

const (
	// HeaderSdkID identifies the calling application.
	HeaderSdkID = "X-Exchange-Sdk-Id"

	contentTypeJSON = "application/json"
	contentTypeAvro = "application/avro"

	// maxResponseSize bounds the bytes read from any response.
	maxResponseSize = 16 << 20
	// maxErrorBody bounds the response excerpt kept in an APIError.
	maxErrorBody = 512
)

// Transport defines the interface for calling the provider API.
type Transport interface {
	GetReceipt(ctx context.Context, token string) (*model.Receipt, error)
	PerformAmlCheck(ctx context.Context, profile *model.AmlProfile) (*model.AmlResult, error)
	CreateShareURL(ctx context.Context, scenario *model.DynamicScenario) (*model.ShareURLResult, error)
	Close() error
}

// SignFunc signs an outbound request.
type SignFunc func(req signing.Request) (*signing.Signed, error)

// APIError is returned when the provider answers with a non-2xx status.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	switch {
	case e.Code != "" || e.Message != "":
		return fmt.Sprintf("server returned error %d: %s %s", e.StatusCode, e.Code, e.Message)
	case e.Body != "":
		return fmt.Sprintf("server returned error %d: %s", e.StatusCode, e.Body)
	}
	return fmt.Sprintf("server returned error %d", e.StatusCode)
}

// IsNotFound reports whether err is an APIError with status 404.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// HTTPTransport is an HTTP implementation of the Transport interface.
// Every request is signed; a bearer token is added when a TokenProvider is set.
type HTTPTransport struct {
	client  *http.Client
	baseURL string
	sdkID   string
	sign    SignFunc
	tokens  TokenProvider
	logger  *slog.Logger
}

// Option configures an HTTPTransport.
type Option func(*HTTPTransport)

// WithTokenProvider adds an Authorization bearer token to each request.
func WithTokenProvider(p TokenProvider) Option {
	return func(t *HTTPTransport) {
		t.tokens = p
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(t *HTTPTransport) {
		t.logger = l
	}
}

// NewHTTPTransport creates a new HTTPTransport.
func NewHTTPTransport(client *http.Client, baseURL, sdkID string, sign SignFunc, opts ...Option) (*HTTPTransport, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid base url %q: scheme must be http or https", baseURL)
	}
	if sdkID == "" {
		return nil, errors.New("sdk id is required")
	}
	if sign == nil {
		return nil, errors.New("sign func is required")
	}
	if client == nil {
		client = http.DefaultClient
	}

	t := &HTTPTransport{
		client:  client,
		baseURL: u.String(),
		sdkID:   sdkID,
		sign:    sign,
		logger:  slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// GetReceipt exchanges a connect token for the receipt of its sharing event.
func (t *HTTPTransport) GetReceipt(ctx context.Context, token string) (*model.Receipt, error) {
	if token == "" {
		return nil, errors.New("token is required")
	}
	var resp model.ProfileResponse
	path := "/profile/" + url.PathEscape(token)
	if err := t.doRequest(ctx, "get_receipt", http.MethodGet, path, nil, &resp, model.ProfileResponseRecord); err != nil {
		return nil, err
	}
	return &resp.Receipt, nil
}

// PerformAmlCheck submits an AML check.
func (t *HTTPTransport) PerformAmlCheck(ctx context.Context, profile *model.AmlProfile) (*model.AmlResult, error) {
	var resp model.AmlResult
	if err := t.doRequest(ctx, "aml_check", http.MethodPost, "/aml-check", profile, &resp, ""); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CreateShareURL registers a dynamic sharing scenario.
func (t *HTTPTransport) CreateShareURL(ctx context.Context, scenario *model.DynamicScenario) (*model.ShareURLResult, error) {
	var resp model.ShareURLResult
	path := "/qrcodes/apps/" + url.PathEscape(t.sdkID)
	if err := t.doRequest(ctx, "create_share_url", http.MethodPost, path, scenario, &resp, model.ShareURLResultRecord); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (t *HTTPTransport) Close() error {
	t.client.CloseIdleConnections()
	return nil
}

// doRequest signs and sends one request and decodes the response into
// respBody. avroRecord names the record used when the server answers in Avro.
func (t *HTTPTransport) doRequest(ctx context.Context, op, method, path string, reqBody any, respBody any, avroRecord string) error {
	var body []byte
	if reqBody != nil {
		var err error
		body, err = json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
	}

	// The signed path carries the query string, relative to the API base.
	query := url.Values{"appId": []string{t.sdkID}}
	signedPath := path + "?" + query.Encode()

	signed, err := t.sign(signing.Request{Method: method, Path: signedPath, Body: body})
	if err != nil {
		return fmt.Errorf("failed to sign request: %w", err)
	}

	endpoint := t.baseURL + signedPath

	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", contentTypeJSON)
	}
	req.Header.Set("Accept", contentTypeJSON+", "+contentTypeAvro)
	req.Header.Set(HeaderSdkID, t.sdkID)
	for k, v := range signed.Headers() {
		req.Header.Set(k, v)
	}
	if t.tokens != nil {
		token, err := t.tokens.GetToken()
		if err != nil {
			return fmt.Errorf("failed to get auth token: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	t.logger.Debug("provider request", "operation", op, "status", resp.StatusCode, "nonce", signed.Nonce)

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return newAPIError(resp.StatusCode, data)
	}

	if respBody == nil {
		return nil
	}
	return decodeResponse(resp.Header.Get("Content-Type"), data, respBody, avroRecord)
}

func decodeResponse(contentType string, data []byte, out any, avroRecord string) error {
	mediaType, _, _ := mime.ParseMediaType(contentType)
	if mediaType == contentTypeAvro {
		if avroRecord == "" {
			return fmt.Errorf("unexpected %s response", contentTypeAvro)
		}
		schema, err := model.RecordSchema(avroRecord)
		if err != nil {
			return fmt.Errorf("failed to load response schema: %w", err)
		}
		if err := avro.Unmarshal(schema, data, out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func newAPIError(status int, data []byte) *APIError {
	apiErr := &APIError{StatusCode: status}
	var body model.ErrorResponse
	if json.Unmarshal(data, &body) == nil && (body.Code != "" || body.Message != "") {
		apiErr.Code = body.Code
		apiErr.Message = body.Message
		return apiErr
	}
	excerpt := data
	if len(excerpt) > maxErrorBody {
		excerpt = excerpt[:maxErrorBody]
	}
	apiErr.Body = strings.TrimSpace(string(excerpt))
	return apiErr
}
