package encryption

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"

	"github.com/attrexchange/go-client/pkg/errdefs"
)

// Sign hashes payload with SHA-256 and signs the digest with RSASSA-PKCS1-v1_5.
// The payload is signed exactly as given.
func Sign(payload []byte, s crypto.Signer) ([]byte, error) {
	const op = "sign"

	if s == nil {
		return nil, errdefs.New(errdefs.KindSigning, op, "no private key")
	}
	if _, ok := s.Public().(*rsa.PublicKey); !ok {
		return nil, errdefs.New(errdefs.KindSigning, op, "private key is not RSA")
	}

	digest := sha256.Sum256(payload)
	sig, err := s.Sign(rand.Reader, digest[:], crypto.SHA256)
	if err != nil {
		return nil, errdefs.New(errdefs.KindSigning, op, "signature could not be produced")
	}
	return sig, nil
}

// Verify reports whether sig is a valid signature of payload under pub.
func Verify(payload, sig []byte, pub *rsa.PublicKey) bool {
	if pub == nil {
		return false
	}
	digest := sha256.Sum256(payload)
	return rsa.VerifyPKCS1v15(pub, crypto.SHA256, digest[:], sig) == nil
}
