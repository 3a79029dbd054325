package signing

import (
	"crypto"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/attrexchange/go-client/pkg/encryption"
	"github.com/attrexchange/go-client/pkg/errdefs"
	"github.com/attrexchange/go-client/pkg/store"
)

// Header names carrying a request signature.
const (
	HeaderDigest    = "X-Exchange-Auth-Digest"
	HeaderNonce     = "X-Exchange-Auth-Nonce"
	HeaderTimestamp = "X-Exchange-Auth-Timestamp"
)

// maxNonceAttempts bounds regeneration when a random nonce collides.
const maxNonceAttempts = 4

// Request describes an outbound request to sign. Nonce and Timestamp are
// generated when left empty.
type Request struct {
	Method    string
	Path      string
	Body      []byte
	Nonce     string
	Timestamp int64
}

// Signed is a signature together with the nonce and timestamp it covers.
type Signed struct {
	Signature []byte
	Nonce     string
	Timestamp int64
	Payload   *Payload
}

// Headers returns the headers the HTTP layer attaches to the request.
func (s *Signed) Headers() map[string]string {
	return map[string]string{
		HeaderDigest:    base64.StdEncoding.EncodeToString(s.Signature),
		HeaderNonce:     s.Nonce,
		HeaderTimestamp: strconv.FormatInt(s.Timestamp, 10),
	}
}

// Verify reports whether the signature is valid for its payload under pub.
func (s *Signed) Verify(pub *rsa.PublicKey) bool {
	if s.Payload == nil {
		return false
	}
	return encryption.Verify(s.Payload.canonical, s.Signature, pub)
}

// Signer signs requests and remembers the nonces it has used.
// It is safe for concurrent use.
type Signer struct {
	ledger   store.Ledger
	now      func() time.Time
	newNonce func() (string, error)
}

// Option configures a Signer.
type Option func(*Signer)

// WithLedger sets the nonce ledger.
func WithLedger(l store.Ledger) Option {
	return func(s *Signer) {
		s.ledger = l
	}
}

// WithClock sets the wall clock used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Signer) {
		s.now = now
	}
}

// WithNonceSource replaces UUIDv4 nonce generation.
func WithNonceSource(f func() (string, error)) Option {
	return func(s *Signer) {
		s.newNonce = f
	}
}

// NewSigner creates a Signer. Without WithLedger it uses an in-memory ledger
// with the default window, driven by the signer's clock.
func NewSigner(opts ...Option) *Signer {
	s := &Signer{
		now:      time.Now,
		newNonce: randomNonce,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.ledger == nil {
		s.ledger = store.NewMemoryLedger(store.DefaultWindow, store.WithClock(s.now))
	}
	return s
}

// Sign canonicalizes req and signs it with key. A caller-supplied nonce that
// was already used at the same timestamp for a different payload is rejected;
// a generated nonce that collides is replaced.
func (s *Signer) Sign(key crypto.Signer, req Request) (*Signed, error) {
	const op = "sign_request"

	ts := req.Timestamp
	if ts == 0 {
		ts = s.now().Unix()
	}

	var (
		payload *Payload
		err     error
	)
	if req.Nonce != "" {
		payload, err = s.claim(req, req.Nonce, ts)
		if err != nil {
			return nil, signingError(err)
		}
	} else {
		for attempt := 0; ; attempt++ {
			if attempt == maxNonceAttempts {
				return nil, errdefs.New(errdefs.KindSigning, op, "could not generate an unused nonce")
			}
			nonce, nerr := s.newNonce()
			if nerr != nil {
				return nil, errdefs.New(errdefs.KindSigning, op, "nonce generation failed")
			}
			payload, err = s.claim(req, nonce, ts)
			if err == nil {
				break
			}
			if !errors.Is(err, store.ErrNonceReused) {
				return nil, signingError(err)
			}
		}
	}

	sig, err := encryption.Sign(payload.canonical, key)
	if err != nil {
		return nil, err
	}
	return &Signed{
		Signature: sig,
		Nonce:     payload.Nonce,
		Timestamp: payload.Timestamp,
		Payload:   payload,
	}, nil
}

// claim builds the payload and records its nonce in the ledger.
func (s *Signer) claim(req Request, nonce string, ts int64) (*Payload, error) {
	payload, err := BuildSignable(req.Method, req.Path, nonce, ts, req.Body)
	if err != nil {
		return nil, err
	}
	if err := s.ledger.Claim(ts, nonce, sha256.Sum256(payload.canonical)); err != nil {
		return nil, err
	}
	return payload, nil
}

// signingError maps ledger failures onto the signing kind; errors that
// already carry a kind pass through.
func signingError(err error) error {
	if errdefs.KindOf(err) != errdefs.KindUnknown {
		return err
	}
	return errdefs.New(errdefs.KindSigning, "sign_request", "%v", err)
}

func randomNonce() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}
