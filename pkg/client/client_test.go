package client_test

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/attrexchange/go-client/pkg/attribute"
	"github.com/attrexchange/go-client/pkg/client"
	"github.com/attrexchange/go-client/pkg/config"
	"github.com/attrexchange/go-client/pkg/encryption"
	"github.com/attrexchange/go-client/pkg/errdefs"
	"github.com/attrexchange/go-client/pkg/exchange"
	"github.com/attrexchange/go-client/pkg/keys"
	"github.com/attrexchange/go-client/pkg/logging"
	"github.com/attrexchange/go-client/pkg/model"
	"github.com/attrexchange/go-client/pkg/policy"
	"github.com/attrexchange/go-client/pkg/signing"
)

var (
	keyOnce sync.Once
	testRSA *rsa.PrivateKey
)

func rsaKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	keyOnce.Do(func() {
		k, err := rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			panic(err)
		}
		testRSA = k
	})
	return testRSA
}

func keyPEM(t *testing.T) []byte {
	t.Helper()
	return pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(rsaKey(t))})
}

func keyPair(t *testing.T) *keys.KeyPair {
	t.Helper()
	kp, err := keys.Load(keyPEM(t))
	require.NoError(t, err)
	return kp
}

// profileContent seals a given_names attribute for kp and encodes it the
// way the provider embeds it in a receipt.
func profileContent(t *testing.T, kp *keys.KeyPair) string {
	t.Helper()
	given, err := attribute.NewString(attribute.GivenNames, "Alice")
	require.NoError(t, err)
	set := attribute.NewSet(time.Unix(1700000000, 0), "receipt-1", []*attribute.Attribute{given})

	token, err := exchange.Seal(set, kp.Public())
	require.NoError(t, err)
	return base64.StdEncoding.EncodeToString(token)
}

// connectToken encrypts plain to the test application key the way the
// provider issues connect tokens.
func connectToken(t *testing.T, plain string) string {
	t.Helper()
	wrapped, err := encryption.WrapToken([]byte(plain), keyPair(t).Public())
	require.NoError(t, err)
	return base64.URLEncoding.EncodeToString(wrapped)
}

func newClient(t *testing.T, server *httptest.Server, opts ...config.Option) *client.Client {
	t.Helper()
	opts = append([]config.Option{
		config.WithSDKID("sdk-1"),
		config.WithAPIURL(server.URL + "/api/v1"),
		config.WithHTTPClient(server.Client()),
		config.WithLogger(logging.Discard()),
	}, opts...)

	c, err := client.NewWithKeyPair(keyPair(t), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func receiptServer(t *testing.T, receipt model.Receipt) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/profile/connect-token" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if r.Header.Get(signing.HeaderDigest) == "" || r.Header.Get(signing.HeaderNonce) == "" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(model.ProfileResponse{Receipt: receipt})
	}))
	t.Cleanup(server.Close)
	return server
}

func TestClient_GetActivityDetails(t *testing.T) {
	kp := keyPair(t)
	server := receiptServer(t, model.Receipt{
		ReceiptID:                "receipt-1",
		RememberMeID:             "remember-1",
		Timestamp:                "2024-03-01T10:30:00Z",
		SharingOutcome:           model.SharingOutcomeSuccess,
		OtherPartyProfileContent: profileContent(t, kp),
	})

	reg := prometheus.NewRegistry()
	c := newClient(t, server, config.WithMetricsRegisterer(reg))

	details, err := c.GetActivityDetails(context.Background(), connectToken(t, "connect-token"))
	require.NoError(t, err)
	require.Equal(t, "receipt-1", details.ReceiptID)
	require.Equal(t, "remember-1", details.RememberMeID)
	require.Equal(t, time.Date(2024, 3, 1, 10, 30, 0, 0, time.UTC), details.Timestamp)

	given, ok := details.Attributes.Get(attribute.GivenNames)
	require.True(t, ok)
	require.Equal(t, "Alice", given.Text())
	require.Equal(t, attribute.TypeString, given.Type())

	// sign_outbound, decrypt_token and get_activity_details, all ok
	n, err := testutil.GatherAndCount(reg, "exchange_operations_total")
	require.NoError(t, err)
	require.Equal(t, 3, n)
}

func TestClient_GetActivityDetails_SharingFailure(t *testing.T) {
	server := receiptServer(t, model.Receipt{
		ReceiptID:      "receipt-2",
		SharingOutcome: model.SharingOutcomeFailure,
	})
	c := newClient(t, server)

	_, err := c.GetActivityDetails(context.Background(), connectToken(t, "connect-token"))
	require.ErrorIs(t, err, client.ErrSharingFailure)
}

func TestClient_GetActivityDetails_EmptyProfile(t *testing.T) {
	server := receiptServer(t, model.Receipt{
		ReceiptID:      "receipt-3",
		Timestamp:      "2024-03-01T10:30:00Z",
		SharingOutcome: model.SharingOutcomeSuccess,
	})
	c := newClient(t, server)

	details, err := c.GetActivityDetails(context.Background(), connectToken(t, "connect-token"))
	require.NoError(t, err)
	require.Equal(t, 0, details.Attributes.Len())
	require.Equal(t, "receipt-3", details.Attributes.ReceiptID())
}

func TestClient_GetActivityDetails_TamperedProfile(t *testing.T) {
	kp := keyPair(t)
	raw, err := base64.StdEncoding.DecodeString(profileContent(t, kp))
	require.NoError(t, err)
	raw[len(raw)-1] ^= 0x01

	server := receiptServer(t, model.Receipt{
		ReceiptID:                "receipt-4",
		SharingOutcome:           model.SharingOutcomeSuccess,
		OtherPartyProfileContent: base64.StdEncoding.EncodeToString(raw),
	})
	c := newClient(t, server)

	_, err = c.GetActivityDetails(context.Background(), connectToken(t, "connect-token"))
	require.ErrorIs(t, err, errdefs.ErrPayloadDecrypt)
}

func TestClient_GetActivityDetails_ForeignKey(t *testing.T) {
	other, err := keys.Generate(2048)
	require.NoError(t, err)

	server := receiptServer(t, model.Receipt{
		ReceiptID:                "receipt-5",
		SharingOutcome:           model.SharingOutcomeSuccess,
		OtherPartyProfileContent: profileContent(t, other),
	})
	c := newClient(t, server)

	_, err = c.GetActivityDetails(context.Background(), connectToken(t, "connect-token"))
	require.ErrorIs(t, err, errdefs.ErrKeyUnwrap)
}

func TestClient_GetActivityDetails_SendsDecryptedConnectToken(t *testing.T) {
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Write([]byte(`{"receipt":{"receipt_id":"r","sharing_outcome":"SUCCESS"}}`))
	}))
	defer server.Close()
	c := newClient(t, server)

	token := connectToken(t, "plain-connect-token")
	_, err := c.GetActivityDetails(context.Background(), token)
	require.NoError(t, err)
	require.Equal(t, "/api/v1/profile/plain-connect-token", gotPath)
	require.NotContains(t, gotPath, token)
}

func TestClient_GetActivityDetails_UndecryptableConnectToken(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	}))
	defer server.Close()
	c := newClient(t, server)

	other, err := keys.Generate(2048)
	require.NoError(t, err)
	foreign, err := encryption.WrapToken([]byte("connect-token"), other.Public())
	require.NoError(t, err)

	for _, token := range []string{
		"connect-token",
		"not base64 at all!",
		base64.StdEncoding.EncodeToString(foreign),
	} {
		_, err := c.GetActivityDetails(context.Background(), token)
		require.ErrorIs(t, err, errdefs.ErrKeyUnwrap, token)
	}
	require.Zero(t, calls)
}

func TestClient_DecryptToken(t *testing.T) {
	kp := keyPair(t)
	server := receiptServer(t, model.Receipt{})
	c := newClient(t, server)

	set, err := c.DecryptToken(profileContent(t, kp))
	require.NoError(t, err)
	require.Equal(t, "receipt-1", set.ReceiptID())

	_, err = c.DecryptToken("not base64 at all!")
	require.ErrorIs(t, err, errdefs.ErrMalformedEnvelope)
}

func TestClient_PerformAmlCheck(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		assert.Equal(t, "/api/v1/aml-check", r.URL.Path)
		w.Write([]byte(`{"on_fraud_list":true,"on_pep_list":false,"on_watch_list":false}`))
	}))
	defer server.Close()
	c := newClient(t, server)

	_, err := c.PerformAmlCheck(context.Background(), &model.AmlProfile{GivenNames: "Jo"})
	require.ErrorIs(t, err, model.ErrInvalidAmlProfile)
	_, err = c.PerformAmlCheck(context.Background(), nil)
	require.ErrorIs(t, err, model.ErrInvalidAmlProfile)
	require.Zero(t, calls)

	result, err := c.PerformAmlCheck(context.Background(), &model.AmlProfile{
		GivenNames: "Jo",
		FamilyName: "Bloggs",
		Address:    model.AmlAddress{Country: "GBR"},
	})
	require.NoError(t, err)
	require.True(t, result.OnFraudList)
	require.Equal(t, 1, calls)
}

func TestClient_CreateShareURL(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/qrcodes/apps/sdk-1", r.URL.Path)

		var scenario model.DynamicScenario
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&scenario))
		assert.Equal(t, "/callback", scenario.CallbackEndpoint)
		assert.Equal(t, "date_of_birth", scenario.Policy.Wanted[0].Name)

		w.Write([]byte(`{"qrcode":"https://code.example.test/xyz","ref_id":"ref-9"}`))
	}))
	defer server.Close()
	c := newClient(t, server)

	p, err := policy.NewPolicyBuilder().WithAgeOver(18).Build()
	require.NoError(t, err)
	scenario, err := policy.NewScenarioBuilder().WithPolicy(p).WithCallbackEndpoint("/callback").Build()
	require.NoError(t, err)

	result, err := c.CreateShareURL(context.Background(), scenario)
	require.NoError(t, err)
	require.Equal(t, "https://code.example.test/xyz", result.URL)
	require.Equal(t, "ref-9", result.RefID)

	_, err = c.CreateShareURL(context.Background(), nil)
	require.Error(t, err)
}

func TestClient_OverrideAPIURL(t *testing.T) {
	first := receiptServer(t, model.Receipt{SharingOutcome: model.SharingOutcomeFailure})

	var hits int
	second := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		assert.Equal(t, "/other/profile/tok", r.URL.Path)
		json.NewEncoder(w).Encode(model.ProfileResponse{Receipt: model.Receipt{
			ReceiptID:      "from-second",
			SharingOutcome: model.SharingOutcomeSuccess,
		}})
	}))
	defer second.Close()

	c := newClient(t, first)
	require.Equal(t, first.URL+"/api/v1", c.APIURL())

	require.Error(t, c.OverrideAPIURL("ftp://nowhere"))
	require.Equal(t, first.URL+"/api/v1", c.APIURL())

	require.NoError(t, c.OverrideAPIURL(second.URL+"/other"))
	require.Equal(t, second.URL+"/other", c.APIURL())

	details, err := c.GetActivityDetails(context.Background(), connectToken(t, "tok"))
	require.NoError(t, err)
	require.Equal(t, "from-second", details.ReceiptID)
	require.Equal(t, 1, hits)
}

func TestClient_BearerAuth(t *testing.T) {
	kp := keyPair(t)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		assert.True(t, ok)

		token, err := jwt.Parse(raw, func(*jwt.Token) (any, error) {
			return kp.Public(), nil
		}, jwt.WithValidMethods([]string{"RS256"}), jwt.WithIssuer("sdk-1"))
		assert.NoError(t, err)
		assert.Equal(t, kp.Fingerprint(), token.Header["kid"])

		w.Write([]byte(`{"qrcode":"u","ref_id":"r"}`))
	}))
	defer server.Close()

	c := newClient(t, server, config.WithBearerAuth(true))
	_, err := c.CreateShareURL(context.Background(), &model.DynamicScenario{CallbackEndpoint: "/cb"})
	require.NoError(t, err)
}

func TestClient_ConcurrentRequestsUseDistinctNonces(t *testing.T) {
	var (
		mu     sync.Mutex
		nonces = make(map[string]int)
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		nonces[r.Header.Get(signing.HeaderNonce)]++
		mu.Unlock()
		w.Write([]byte(`{"receipt":{"receipt_id":"r","sharing_outcome":"SUCCESS"}}`))
	}))
	defer server.Close()
	c := newClient(t, server)

	token := connectToken(t, "tok")
	const workers = 16
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := c.GetActivityDetails(context.Background(), token); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	require.Len(t, nonces, workers)
}

func TestNew_KeySources(t *testing.T) {
	t.Run("pem", func(t *testing.T) {
		c, err := client.New(context.Background(),
			config.WithSDKID("sdk-1"),
			config.WithPrivateKeyPEM(keyPEM(t)),
			config.WithLogger(logging.Discard()),
		)
		require.NoError(t, err)
		defer c.Close()
		require.Equal(t, keyPair(t).Fingerprint(), c.KeyFingerprint())
		require.Equal(t, config.DefaultAPIURL, c.APIURL())
	})

	t.Run("file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "key.pem")
		require.NoError(t, os.WriteFile(path, keyPEM(t), 0o600))

		c, err := client.New(context.Background(),
			config.WithSDKID("sdk-1"),
			config.WithPrivateKeyPath(path),
			config.WithLogger(logging.Discard()),
		)
		require.NoError(t, err)
		defer c.Close()
		require.Equal(t, keyPair(t).Fingerprint(), c.KeyFingerprint())
	})

	t.Run("none", func(t *testing.T) {
		_, err := client.New(context.Background(), config.WithSDKID("sdk-1"))
		require.Error(t, err)
	})

	t.Run("weak", func(t *testing.T) {
		weak, err := rsa.GenerateKey(rand.Reader, 1024)
		require.NoError(t, err)
		der := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(weak)})

		_, err = client.New(context.Background(), config.WithSDKID("sdk-1"), config.WithPrivateKeyPEM(der))
		require.True(t, errors.Is(err, errdefs.ErrWeakKey), "got %v", err)
	})

	t.Run("missing sdk id", func(t *testing.T) {
		_, err := client.New(context.Background(), config.WithPrivateKeyPEM(keyPEM(t)))
		require.Error(t, err)
	})
}
