// Package encryption implements the cryptographic primitives of the attribute
// exchange protocol: RSA-OAEP session key unwrapping, AES-256-CBC payload
// decryption with a constant-time PKCS#7 check, an HKDF-keyed HMAC tag over
// the envelope, and RSA PKCS#1 v1.5 request signatures.
//
// Failures are reported with the coarse errdefs kinds. Decryption never says
// whether a key, a tag or a padding byte was at fault.
package encryption

import (
	"crypto"
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/subtle"
	"io"

	"golang.org/x/crypto/hkdf"

	"github.com/attrexchange/go-client/pkg/envelope"
	"github.com/attrexchange/go-client/pkg/errdefs"
)

const (
	// SessionKeySize is the size of the AES-256 session key.
	SessionKeySize = 32
	// MACKeySize is the size of the derived HMAC-SHA-256 key.
	MACKeySize = 32

	// macInfo is the HKDF info string used for domain separation of the tag key.
	macInfo = "attrexchange:envelope:mac:v1"
)

var oaepOptions = &rsa.OAEPOptions{Hash: crypto.SHA256, MGFHash: crypto.SHA256}

// UnwrapKey recovers the session key from its RSA-OAEP wrapping.
// A wrong key, a corrupted wrapping or a session key of the wrong size all
// fail the same way.
func UnwrapKey(wrappedKey []byte, d crypto.Decrypter) ([]byte, error) {
	const op = "unwrap_key"

	if d == nil {
		return nil, errdefs.New(errdefs.KindKeyUnwrap, op, "no private key")
	}
	pub, ok := d.Public().(*rsa.PublicKey)
	if !ok {
		return nil, errdefs.New(errdefs.KindKeyUnwrap, op, "private key is not RSA")
	}
	if len(wrappedKey) != pub.Size() {
		return nil, errdefs.New(errdefs.KindKeyUnwrap, op,
			"wrapped key is %d bytes, modulus is %d", len(wrappedKey), pub.Size())
	}

	sessionKey, err := d.Decrypt(rand.Reader, wrappedKey, oaepOptions)
	if err != nil {
		return nil, errdefs.New(errdefs.KindKeyUnwrap, op, "session key could not be unwrapped")
	}
	if len(sessionKey) != SessionKeySize {
		Zero(sessionKey)
		return nil, errdefs.New(errdefs.KindKeyUnwrap, op, "session key could not be unwrapped")
	}
	return sessionKey, nil
}

// WrapKey wraps a session key for the holder of pub.
func WrapKey(sessionKey []byte, pub *rsa.PublicKey) ([]byte, error) {
	if pub == nil {
		return nil, errdefs.New(errdefs.KindKeyUnwrap, "wrap_key", "no public key")
	}
	if len(sessionKey) != SessionKeySize {
		return nil, errdefs.New(errdefs.KindKeyUnwrap, "wrap_key", "session key is %d bytes, want %d", len(sessionKey), SessionKeySize)
	}
	wrapped, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, pub, sessionKey, nil)
	if err != nil {
		return nil, errdefs.New(errdefs.KindKeyUnwrap, "wrap_key", "session key could not be wrapped")
	}
	return wrapped, nil
}

// UnwrapToken recovers a connect token encrypted with RSA-OAEP to the
// application key. Failures are reported like UnwrapKey failures.
func UnwrapToken(ciphertext []byte, d crypto.Decrypter) ([]byte, error) {
	const op = "unwrap_token"

	if d == nil {
		return nil, errdefs.New(errdefs.KindKeyUnwrap, op, "no private key")
	}
	pub, ok := d.Public().(*rsa.PublicKey)
	if !ok {
		return nil, errdefs.New(errdefs.KindKeyUnwrap, op, "private key is not RSA")
	}
	if len(ciphertext) != pub.Size() {
		return nil, errdefs.New(errdefs.KindKeyUnwrap, op,
			"token is %d bytes, modulus is %d", len(ciphertext), pub.Size())
	}

	token, err := d.Decrypt(rand.Reader, ciphertext, oaepOptions)
	if err != nil || len(token) == 0 {
		return nil, errdefs.New(errdefs.KindKeyUnwrap, op, "token could not be decrypted")
	}
	return token, nil
}

// WrapToken encrypts a connect token for the holder of pub.
func WrapToken(token []byte, pub *rsa.PublicKey) ([]byte, error) {
	if pub == nil {
		return nil, errdefs.New(errdefs.KindKeyUnwrap, "wrap_token", "no public key")
	}
	if len(token) == 0 {
		return nil, errdefs.New(errdefs.KindKeyUnwrap, "wrap_token", "empty token")
	}
	wrapped, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, pub, token, nil)
	if err != nil {
		return nil, errdefs.New(errdefs.KindKeyUnwrap, "wrap_token", "token could not be encrypted")
	}
	return wrapped, nil
}

// DecryptPayload decrypts AES-256-CBC ciphertext and strips PKCS#7 padding.
// The padding check runs in constant time with respect to the padding value.
func DecryptPayload(ciphertext, key, iv []byte) ([]byte, error) {
	const op = "decrypt_payload"

	if len(key) != SessionKeySize || len(iv) != aes.BlockSize {
		return nil, errdefs.New(errdefs.KindPayloadDecrypt, op, "payload could not be decrypted")
	}
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return nil, errdefs.New(errdefs.KindPayloadDecrypt, op, "payload could not be decrypted")
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, errdefs.New(errdefs.KindPayloadDecrypt, op, "payload could not be decrypted")
	}

	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plaintext, ciphertext)

	n, ok := unpadLength(plaintext, aes.BlockSize)
	if !ok {
		Zero(plaintext)
		return nil, errdefs.New(errdefs.KindPayloadDecrypt, op, "payload could not be decrypted")
	}
	return plaintext[:n], nil
}

// EncryptPayload pads and encrypts plaintext with AES-256-CBC.
func EncryptPayload(plaintext, key, iv []byte) ([]byte, error) {
	if len(key) != SessionKeySize || len(iv) != aes.BlockSize {
		return nil, errdefs.New(errdefs.KindPayloadDecrypt, "encrypt_payload", "invalid key or iv size")
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, errdefs.New(errdefs.KindPayloadDecrypt, "encrypt_payload", "invalid key")
	}

	padded := pad(plaintext, aes.BlockSize)
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, padded)
	Zero(padded)
	return out, nil
}

// ComputeTag returns the HMAC-SHA-256 tag over env's authenticated data.
func ComputeTag(env *envelope.Envelope, sessionKey []byte) ([]byte, error) {
	macKey, err := deriveMACKey(sessionKey)
	if err != nil {
		return nil, err
	}
	defer Zero(macKey)

	mac := hmac.New(sha256.New, macKey)
	mac.Write(env.AuthenticatedData())
	return mac.Sum(nil), nil
}

// VerifyTag checks env.Tag in constant time.
func VerifyTag(env *envelope.Envelope, sessionKey []byte) error {
	want, err := ComputeTag(env, sessionKey)
	if err != nil {
		return errdefs.New(errdefs.KindPayloadDecrypt, "verify_tag", "payload could not be decrypted")
	}
	if !hmac.Equal(want, env.Tag) {
		return errdefs.New(errdefs.KindPayloadDecrypt, "verify_tag", "payload could not be decrypted")
	}
	return nil
}

// NewSessionKey returns a random AES-256 key.
func NewSessionKey() ([]byte, error) {
	return randomBytes(SessionKeySize)
}

// NewIV returns a random CBC initialization vector.
func NewIV() ([]byte, error) {
	return randomBytes(aes.BlockSize)
}

// Zero overwrites b.
func Zero(b []byte) {
	clear(b)
}

// deriveMACKey derives the tag key from the session key using HKDF-SHA-256.
func deriveMACKey(sessionKey []byte) ([]byte, error) {
	if len(sessionKey) != SessionKeySize {
		return nil, errdefs.New(errdefs.KindPayloadDecrypt, "derive_mac_key", "session key is %d bytes", len(sessionKey))
	}

	reader := hkdf.New(sha256.New, sessionKey, nil, []byte(macInfo))
	key := make([]byte, MACKeySize)
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, errdefs.New(errdefs.KindPayloadDecrypt, "derive_mac_key", "key derivation failed")
	}
	return key, nil
}

func pad(b []byte, blockSize int) []byte {
	n := blockSize - len(b)%blockSize
	out := make([]byte, len(b)+n)
	copy(out, b)
	for i := len(b); i < len(out); i++ {
		out[i] = byte(n)
	}
	return out
}

// unpadLength returns the length of b without its PKCS#7 padding. The bytes
// inspected and the work done do not depend on the padding value.
func unpadLength(b []byte, blockSize int) (int, bool) {
	n := len(b)
	if n == 0 || n%blockSize != 0 {
		return 0, false
	}

	padLen := int(b[n-1])
	good := subtle.ConstantTimeLessOrEq(1, padLen) & subtle.ConstantTimeLessOrEq(padLen, blockSize)

	for i := 0; i < blockSize; i++ {
		inPadding := subtle.ConstantTimeLessOrEq(i+1, padLen)
		matches := subtle.ConstantTimeByteEq(b[n-1-i], byte(padLen))
		good &= subtle.ConstantTimeSelect(inPadding, matches, 1)
	}

	if good != 1 {
		return 0, false
	}
	return n - padLen, true
}

func randomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}
	return b, nil
}
