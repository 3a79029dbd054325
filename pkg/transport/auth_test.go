package transport

import (
	"crypto/rand"
	"crypto/rsa"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestSharedSecretTokenProvider_GetToken(t *testing.T) {
	secret := "my-access-token"
	provider := NewSharedSecretTokenProvider(secret)

	token, err := provider.GetToken()
	if err != nil {
		t.Fatalf("GetToken failed: %v", err)
	}

	if token != secret {
		t.Errorf("Expected token %s, got %s", secret, token)
	}
}

func TestPrivateKeyTokenProvider_GetToken(t *testing.T) {
	pk, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("Failed to generate RSA key: %v", err)
	}

	sdkID := "sdk-123"
	keyID := "fingerprint-456"
	provider := NewPrivateKeyTokenProvider(pk, sdkID, keyID, "https://api.example.test")

	tokenString, err := provider.GetToken()
	if err != nil {
		t.Fatalf("GetToken failed: %v", err)
	}

	// Verify token with the stock RS256 implementation
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return &pk.PublicKey, nil
	}, jwt.WithAudience("https://api.example.test"))

	if err != nil {
		t.Fatalf("Failed to parse token: %v", err)
	}

	if !token.Valid {
		t.Error("Token is invalid")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		t.Fatal("Invalid claims type")
	}

	if iss, ok := claims["iss"].(string); !ok || iss != sdkID {
		t.Errorf("Expected iss %s, got %v", sdkID, claims["iss"])
	}
	if sub, ok := claims["sub"].(string); !ok || sub != sdkID {
		t.Errorf("Expected sub %s, got %v", sdkID, claims["sub"])
	}
	if jti, ok := claims["jti"].(string); !ok || jti == "" {
		t.Errorf("Expected jti, got %v", claims["jti"])
	}

	headerKid := token.Header["kid"]
	if headerKid != keyID {
		t.Errorf("Expected header kid %s, got %v", keyID, headerKid)
	}
	if alg := token.Header["alg"]; alg != "RS256" {
		t.Errorf("Expected alg RS256, got %v", alg)
	}

	// Verify TTL
	expVal, ok := claims["exp"].(float64)
	if !ok {
		t.Fatal("exp claim missing or invalid")
	}
	expTime := time.Unix(int64(expVal), 0)
	if expTime.Before(time.Now()) {
		t.Error("Token is already expired")
	}
}

func TestPrivateKeyTokenProvider_UniqueIDs(t *testing.T) {
	pk, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("Failed to generate RSA key: %v", err)
	}
	provider := NewPrivateKeyTokenProvider(pk, "sdk-1", "", "")

	a, err := provider.GetToken()
	if err != nil {
		t.Fatalf("GetToken failed: %v", err)
	}
	b, err := provider.GetToken()
	if err != nil {
		t.Fatalf("GetToken failed: %v", err)
	}
	if a == b {
		t.Error("Expected distinct tokens")
	}
}

func TestPrivateKeyTokenProvider_NoKey(t *testing.T) {
	provider := NewPrivateKeyTokenProvider(nil, "sdk-1", "", "")
	if _, err := provider.GetToken(); err == nil {
		t.Error("Expected error, got nil")
	}
}
