// Package errdefs defines the error kinds returned by the exchange engine.
//
// Every failure of key loading, envelope decoding, decryption, attribute parsing
// or request signing is reported as an *Error carrying one Kind. Errors of a
// kind match the corresponding sentinel with errors.Is:
//
//	if errors.Is(err, errdefs.ErrKeyUnwrap) {
//	    // reject the token
//	}
//
// An *Error never wraps the error of the underlying primitive, so callers can
// not reach crypto library error values through it.
package errdefs

import (
	"errors"
	"fmt"
)

// Kind classifies an engine failure.
type Kind int

const (
	KindUnknown Kind = iota
	KindKeyFormat
	KindWeakKey
	KindMalformedEnvelope
	KindKeyUnwrap
	KindPayloadDecrypt
	KindAttributeParse
	KindSigning
)

var kindNames = map[Kind]string{
	KindUnknown:           "unknown",
	KindKeyFormat:         "key_format",
	KindWeakKey:           "weak_key",
	KindMalformedEnvelope: "malformed_envelope",
	KindKeyUnwrap:         "key_unwrap",
	KindPayloadDecrypt:    "payload_decrypt",
	KindAttributeParse:    "attribute_parse",
	KindSigning:           "signing",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Sentinel errors for errors.Is() checks
var (
	// ErrKeyFormat is matched by keys that do not parse as an RSA private key.
	ErrKeyFormat = &Error{Kind: KindKeyFormat}

	// ErrWeakKey is matched by keys below the minimum modulus size.
	ErrWeakKey = &Error{Kind: KindWeakKey}

	// ErrMalformedEnvelope is matched by tokens whose binary structure is invalid.
	ErrMalformedEnvelope = &Error{Kind: KindMalformedEnvelope}

	// ErrKeyUnwrap is matched when the wrapped session key can not be recovered.
	ErrKeyUnwrap = &Error{Kind: KindKeyUnwrap}

	// ErrPayloadDecrypt is matched when the payload fails authentication or padding checks.
	ErrPayloadDecrypt = &Error{Kind: KindPayloadDecrypt}

	// ErrAttributeParse is matched when decrypted plaintext is not a valid attribute list.
	ErrAttributeParse = &Error{Kind: KindAttributeParse}

	// ErrSigning is matched when a request can not be canonicalized or signed.
	ErrSigning = &Error{Kind: KindSigning}
)

// Error is a classified engine failure. Msg is diagnostic text and never
// contains key material or plaintext.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
}

// New builds an *Error for the given kind and operation.
func New(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...)}
}

func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Msg != "":
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, e.Msg)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	case e.Msg != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
	}
	return e.Kind.String()
}

// Is implements errors.Is for sentinel error matching. Two errors match when
// they share a kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf returns the kind of the first *Error in err's chain, or KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
