package transport

import (
	"crypto"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/attrexchange/go-client/pkg/encryption"
)

// TokenProvider is an interface for providing authentication tokens.
type TokenProvider interface {
	GetToken() (string, error)
}

// SharedSecretTokenProvider uses a static access token.
type SharedSecretTokenProvider struct {
	token string
}

// NewSharedSecretTokenProvider creates a new SharedSecretTokenProvider.
func NewSharedSecretTokenProvider(token string) *SharedSecretTokenProvider {
	return &SharedSecretTokenProvider{
		token: token,
	}
}

func (p *SharedSecretTokenProvider) GetToken() (string, error) {
	return p.token, nil
}

// signingMethodRS256 is RS256 computed through a crypto.Signer, so the
// private key never has to leave its KeyPair.
type signingMethodRS256 struct{}

func (signingMethodRS256) Alg() string { return jwt.SigningMethodRS256.Alg() }

func (signingMethodRS256) Verify(signingString string, sig []byte, key any) error {
	return jwt.SigningMethodRS256.Verify(signingString, sig, key)
}

func (signingMethodRS256) Sign(signingString string, key any) ([]byte, error) {
	s, ok := key.(crypto.Signer)
	if !ok {
		return nil, jwt.ErrInvalidKeyType
	}
	return encryption.Sign([]byte(signingString), s)
}

// PrivateKeyTokenProvider generates a signed JWT using the application key.
type PrivateKeyTokenProvider struct {
	signer   crypto.Signer
	sdkID    string
	keyID    string
	audience string
	tokenTTL time.Duration
	now      func() time.Time
}

// NewPrivateKeyTokenProvider creates a new PrivateKeyTokenProvider. keyID
// is sent as the kid header; the key fingerprint is the usual choice.
func NewPrivateKeyTokenProvider(signer crypto.Signer, sdkID, keyID, audience string) *PrivateKeyTokenProvider {
	return &PrivateKeyTokenProvider{
		signer:   signer,
		sdkID:    sdkID,
		keyID:    keyID,
		audience: audience,
		tokenTTL: 10 * time.Minute,
		now:      time.Now,
	}
}

func (p *PrivateKeyTokenProvider) GetToken() (string, error) {
	now := p.now()
	claims := jwt.RegisteredClaims{
		Issuer:    p.sdkID,
		Subject:   p.sdkID,
		ExpiresAt: jwt.NewNumericDate(now.Add(p.tokenTTL)),
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ID:        uuid.NewString(),
	}
	if p.audience != "" {
		claims.Audience = jwt.ClaimStrings{p.audience}
	}

	token := jwt.NewWithClaims(signingMethodRS256{}, claims)
	if p.keyID != "" {
		token.Header["kid"] = p.keyID
	}

	signedToken, err := token.SignedString(p.signer)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signedToken, nil
}
