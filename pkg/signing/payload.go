// Package signing builds the canonical byte form of outbound requests and
// signs it.
//
// The canonical payload is five fields separated by a single newline, in
// this order:
//
//	METHOD
//	PATH
//	NONCE
//	TIMESTAMP (decimal unix seconds)
//	base64(SHA-256(body)) (standard alphabet, padded)
//
// Field order is part of the protocol. The provider recomputes these bytes
// from the received request, so any change here breaks every signature.
package signing

import (
	"crypto/sha256"
	"encoding/base64"
	"strconv"

	"github.com/attrexchange/go-client/pkg/errdefs"
)

const separator = '\n'

// Payload is the canonical, signable form of one request.
type Payload struct {
	Method     string
	Path       string
	Nonce      string
	Timestamp  int64
	BodyDigest [sha256.Size]byte

	canonical []byte
}

// BuildSignable validates the request fields and assembles the canonical
// payload. The body is only hashed; it is not retained.
func BuildSignable(method, path, nonce string, timestamp int64, body []byte) (*Payload, error) {
	const op = "build_signable"

	if !validMethod(method) {
		return nil, errdefs.New(errdefs.KindSigning, op, "method %q is not an upper-case token", method)
	}
	if len(path) == 0 || path[0] != '/' || !printable(path) {
		return nil, errdefs.New(errdefs.KindSigning, op, "path must start with / and contain only printable ASCII")
	}
	if nonce == "" || !printable(nonce) {
		return nil, errdefs.New(errdefs.KindSigning, op, "nonce must be non-empty printable ASCII without whitespace")
	}
	if timestamp <= 0 {
		return nil, errdefs.New(errdefs.KindSigning, op, "timestamp %d is not positive", timestamp)
	}

	p := &Payload{
		Method:     method,
		Path:       path,
		Nonce:      nonce,
		Timestamp:  timestamp,
		BodyDigest: sha256.Sum256(body),
	}

	digest := base64.StdEncoding.EncodeToString(p.BodyDigest[:])
	b := make([]byte, 0, len(method)+len(path)+len(nonce)+len(digest)+24)
	b = append(b, method...)
	b = append(b, separator)
	b = append(b, path...)
	b = append(b, separator)
	b = append(b, nonce...)
	b = append(b, separator)
	b = strconv.AppendInt(b, timestamp, 10)
	b = append(b, separator)
	b = append(b, digest...)
	p.canonical = b
	return p, nil
}

// Bytes returns a copy of the canonical payload.
func (p *Payload) Bytes() []byte {
	return append([]byte(nil), p.canonical...)
}

func (p *Payload) String() string {
	return string(p.canonical)
}

func validMethod(m string) bool {
	if m == "" {
		return false
	}
	for i := 0; i < len(m); i++ {
		if m[i] < 'A' || m[i] > 'Z' {
			return false
		}
	}
	return true
}

// printable reports whether s is visible ASCII: no space, control or
// non-ASCII bytes.
func printable(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] <= ' ' || s[i] > '~' {
			return false
		}
	}
	return true
}
