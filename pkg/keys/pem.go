package keys

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"

	"github.com/attrexchange/go-client/pkg/errdefs"
)

const opLoad = "load_key"

// Load parses a PEM-encoded RSA private key and validates it.
// It supports both PKCS1 ("RSA PRIVATE KEY") and PKCS8 ("PRIVATE KEY") blocks.
// When the input also carries a public key block, it must match the private key.
func Load(pemBytes []byte) (*KeyPair, error) {
	var (
		priv *rsa.PrivateKey
		pub  *rsa.PublicKey
		rest = pemBytes
	)

	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}

		switch block.Type {
		case "RSA PRIVATE KEY", "PRIVATE KEY":
			if priv != nil {
				return nil, errdefs.New(errdefs.KindKeyFormat, opLoad, "more than one private key block")
			}
			key, err := parsePrivateKey(block)
			if err != nil {
				return nil, err
			}
			priv = key
		case "PUBLIC KEY", "RSA PUBLIC KEY":
			key, err := parsePublicKey(block)
			if err != nil {
				return nil, err
			}
			pub = key
		}
	}

	if priv == nil {
		return nil, errdefs.New(errdefs.KindKeyFormat, opLoad, "no private key PEM block found")
	}
	if err := priv.Validate(); err != nil {
		return nil, errdefs.New(errdefs.KindKeyFormat, opLoad, "private key is inconsistent")
	}
	if pub != nil && !priv.PublicKey.Equal(pub) {
		return nil, errdefs.New(errdefs.KindKeyFormat, opLoad, "embedded public key does not match private key")
	}

	return newKeyPair(priv)
}

func parsePrivateKey(block *pem.Block) (*rsa.PrivateKey, error) {
	// Try PKCS8
	if key, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
		if rsaKey, ok := key.(*rsa.PrivateKey); ok {
			return rsaKey, nil
		}
		return nil, errdefs.New(errdefs.KindKeyFormat, opLoad, "not an RSA key (parsed as PKCS8)")
	}

	// Try PKCS1
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}

	return nil, errdefs.New(errdefs.KindKeyFormat, opLoad, "failed to parse private key (tried PKCS1 and PKCS8)")
}

func parsePublicKey(block *pem.Block) (*rsa.PublicKey, error) {
	if key, err := x509.ParsePKIXPublicKey(block.Bytes); err == nil {
		if rsaKey, ok := key.(*rsa.PublicKey); ok {
			return rsaKey, nil
		}
		return nil, errdefs.New(errdefs.KindKeyFormat, opLoad, "embedded public key is not RSA")
	}
	if key, err := x509.ParsePKCS1PublicKey(block.Bytes); err == nil {
		return key, nil
	}
	return nil, errdefs.New(errdefs.KindKeyFormat, opLoad, "failed to parse embedded public key")
}
