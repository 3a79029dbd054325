// Package exchange composes key material, the envelope codec, the crypto
// primitives, the attribute decoder and the request signer into the two
// operations a client needs: turning a token into attributes and signing an
// outbound request.
//
// Every operation is synchronous and does no I/O. An Engine may be shared by
// concurrent callers.
package exchange

import (
	"crypto/rsa"

	"github.com/attrexchange/go-client/pkg/attribute"
	"github.com/attrexchange/go-client/pkg/encryption"
	"github.com/attrexchange/go-client/pkg/envelope"
	"github.com/attrexchange/go-client/pkg/errdefs"
	"github.com/attrexchange/go-client/pkg/keys"
	"github.com/attrexchange/go-client/pkg/signing"
)

// Engine runs the token and signing pipelines.
type Engine struct {
	signer *signing.Signer
}

// Option configures an Engine.
type Option func(*Engine)

// WithSigner sets the request signer, and with it the nonce ledger and clock.
func WithSigner(s *signing.Signer) Option {
	return func(e *Engine) {
		e.signer = s
	}
}

// New creates an Engine.
func New(opts ...Option) *Engine {
	e := &Engine{}
	for _, opt := range opts {
		opt(e)
	}
	if e.signer == nil {
		e.signer = signing.NewSigner()
	}
	return e
}

// DecryptToken decodes a binary token and returns the attributes it carries.
// The first failing stage's error is returned as is. The session key and the
// plaintext do not outlive the call.
func (e *Engine) DecryptToken(token []byte, kp *keys.KeyPair) (*attribute.Set, error) {
	if kp == nil {
		return nil, errdefs.New(errdefs.KindKeyUnwrap, "decrypt_token", "no key pair")
	}

	env, err := envelope.Decode(token)
	if err != nil {
		return nil, err
	}

	sessionKey, err := encryption.UnwrapKey(env.WrappedKey, kp.Decrypter())
	if err != nil {
		return nil, err
	}
	defer encryption.Zero(sessionKey)

	if err := encryption.VerifyTag(env, sessionKey); err != nil {
		return nil, err
	}

	plaintext, err := encryption.DecryptPayload(env.Ciphertext, sessionKey, env.IV)
	if err != nil {
		return nil, err
	}
	defer encryption.Zero(plaintext)

	return attribute.Decode(plaintext)
}

// SignOutbound signs req with the key pair's private key.
func (e *Engine) SignOutbound(req signing.Request, kp *keys.KeyPair) (*signing.Signed, error) {
	if kp == nil {
		return nil, errdefs.New(errdefs.KindSigning, "sign_outbound", "no key pair")
	}
	return e.signer.Sign(kp.Signer(), req)
}

// Seal builds a token carrying set for the holder of pub. It is the inverse
// of DecryptToken and is used by sandbox tooling and tests.
func Seal(set *attribute.Set, pub *rsa.PublicKey) ([]byte, error) {
	plaintext, err := attribute.Encode(set)
	if err != nil {
		return nil, err
	}
	defer encryption.Zero(plaintext)

	sessionKey, err := encryption.NewSessionKey()
	if err != nil {
		return nil, errdefs.New(errdefs.KindPayloadDecrypt, "seal", "session key generation failed")
	}
	defer encryption.Zero(sessionKey)

	iv, err := encryption.NewIV()
	if err != nil {
		return nil, errdefs.New(errdefs.KindPayloadDecrypt, "seal", "iv generation failed")
	}

	ciphertext, err := encryption.EncryptPayload(plaintext, sessionKey, iv)
	if err != nil {
		return nil, err
	}
	wrapped, err := encryption.WrapKey(sessionKey, pub)
	if err != nil {
		return nil, err
	}

	env := &envelope.Envelope{
		Version:    envelope.Version,
		WrappedKey: wrapped,
		IV:         iv,
		Ciphertext: ciphertext,
	}
	if env.Tag, err = encryption.ComputeTag(env, sessionKey); err != nil {
		return nil, err
	}
	return envelope.Encode(env)
}
