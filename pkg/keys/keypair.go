package keys

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"math/big"

	"github.com/attrexchange/go-client/pkg/errdefs"
)

// MinKeyBits is the smallest RSA modulus accepted for a client key pair.
const MinKeyBits = 2048

// KeyPair is an RSA key pair held in memory for the lifetime of a client.
// It is immutable once loaded and exposes no way to serialize the private key.
type KeyPair struct {
	priv        *rsa.PrivateKey
	fingerprint string
}

func newKeyPair(priv *rsa.PrivateKey) (*KeyPair, error) {
	if priv.N.BitLen() < MinKeyBits {
		return nil, errdefs.New(errdefs.KindWeakKey, "load_key",
			"RSA modulus is %d bits, minimum is %d", priv.N.BitLen(), MinKeyBits)
	}
	fp, err := calculateFingerprint(&priv.PublicKey)
	if err != nil {
		return nil, errdefs.New(errdefs.KindKeyFormat, "load_key", "public key can not be encoded")
	}
	priv.Precompute()
	return &KeyPair{priv: priv, fingerprint: fp}, nil
}

// Generate creates a fresh key pair. It is meant for sandbox tooling and tests;
// production keys are issued by the provider and loaded with Load.
func Generate(bits int) (*KeyPair, error) {
	if bits < MinKeyBits {
		return nil, errdefs.New(errdefs.KindWeakKey, "generate_key",
			"requested %d bits, minimum is %d", bits, MinKeyBits)
	}
	priv, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, errdefs.New(errdefs.KindKeyFormat, "generate_key", "key generation failed")
	}
	return newKeyPair(priv)
}

// Decrypter returns a crypto.Decrypter backed by the private key. The key
// itself can not be recovered from it.
func (k *KeyPair) Decrypter() crypto.Decrypter {
	return privateKey{k}
}

// Signer returns a crypto.Signer backed by the private key. The key itself
// can not be recovered from it.
func (k *KeyPair) Signer() crypto.Signer {
	return privateKey{k}
}

// privateKey exposes only the operations of the key, never its fields.
type privateKey struct {
	kp *KeyPair
}

func (p privateKey) Public() crypto.PublicKey {
	return p.kp.Public()
}

func (p privateKey) Sign(r io.Reader, digest []byte, opts crypto.SignerOpts) ([]byte, error) {
	return p.kp.priv.Sign(r, digest, opts)
}

func (p privateKey) Decrypt(r io.Reader, msg []byte, opts crypto.DecrypterOpts) ([]byte, error) {
	return p.kp.priv.Decrypt(r, msg, opts)
}

func (p privateKey) String() string {
	return p.kp.String()
}

// Public returns a copy of the public key.
func (k *KeyPair) Public() *rsa.PublicKey {
	return &rsa.PublicKey{N: new(big.Int).Set(k.priv.N), E: k.priv.E}
}

// Bits returns the modulus size in bits.
func (k *KeyPair) Bits() int {
	return k.priv.N.BitLen()
}

// Size returns the modulus size in bytes, which is also the size of a wrapped key.
func (k *KeyPair) Size() int {
	return k.priv.Size()
}

// Fingerprint returns the hex SHA-256 of the PKIX-encoded public key.
func (k *KeyPair) Fingerprint() string {
	return k.fingerprint
}

// String keeps the private key out of fmt output.
func (k *KeyPair) String() string {
	return fmt.Sprintf("KeyPair(RSA-%d, sha256:%s)", k.Bits(), shortFingerprint(k.fingerprint))
}

// LogValue keeps the private key out of structured logs.
func (k *KeyPair) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("bits", k.Bits()),
		slog.String("fingerprint", shortFingerprint(k.fingerprint)),
	)
}

// calculateFingerprint calculates the SHA-256 fingerprint of the public key.
func calculateFingerprint(pub *rsa.PublicKey) (string, error) {
	pubKeyBytes, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return "", fmt.Errorf("failed to marshal public key: %w", err)
	}

	hash := sha256.Sum256(pubKeyBytes)
	return hex.EncodeToString(hash[:]), nil
}

func shortFingerprint(fp string) string {
	if len(fp) > 16 {
		return fp[:16]
	}
	return fp
}
