// Package envelope encodes and decodes the binary token issued by the
// identity provider.
//
// A token carries an RSA-wrapped session key, the AES-CBC initialization
// vector, the encrypted attribute payload and an HMAC tag. All integers are
// big-endian:
//
//	version    uint8    (1)
//	wrappedLen uint16
//	wrappedKey [wrappedLen]byte
//	iv         [16]byte
//	cipherLen  uint32
//	ciphertext [cipherLen]byte
//	tag        [32]byte
package envelope

import (
	"encoding/binary"

	"github.com/attrexchange/go-client/pkg/errdefs"
)

const (
	// Version is the only envelope version understood by this package.
	Version byte = 1

	// MinWrappedKeySize is the size of a key wrapped under a 2048-bit modulus.
	MinWrappedKeySize = 256
	// MaxWrappedKeySize is the size of a key wrapped under a 16384-bit modulus.
	MaxWrappedKeySize = 2048
	// IVSize is the AES block size.
	IVSize = 16
	// BlockSize is the AES block size; ciphertext is a multiple of it.
	BlockSize = 16
	// TagSize is the size of the HMAC-SHA-256 tag.
	TagSize = 32

	headerSize = 1 + 2
)

// Envelope is a decoded token. It is consumed once and never mutated.
type Envelope struct {
	Version    byte
	WrappedKey []byte
	IV         []byte
	Ciphertext []byte
	Tag        []byte
}

// Decode parses token bytes into an Envelope. Every segment length is
// checked before slicing; the returned Envelope does not alias data.
func Decode(data []byte) (*Envelope, error) {
	r := reader{buf: data}

	version, ok := r.u8()
	if !ok {
		return nil, malformed("token is empty")
	}
	if version != Version {
		return nil, malformed("unsupported envelope version %d", version)
	}

	wrappedLen, ok := r.uint16()
	if !ok {
		return nil, malformed("truncated wrapped key length")
	}
	if int(wrappedLen) < MinWrappedKeySize || int(wrappedLen) > MaxWrappedKeySize {
		return nil, malformed("wrapped key length %d out of range", wrappedLen)
	}
	wrappedKey, ok := r.bytes(int(wrappedLen))
	if !ok {
		return nil, malformed("wrapped key truncated: want %d bytes, have %d", wrappedLen, r.remaining())
	}

	iv, ok := r.bytes(IVSize)
	if !ok {
		return nil, malformed("iv truncated: want %d bytes, have %d", IVSize, r.remaining())
	}

	cipherLen, ok := r.uint32()
	if !ok {
		return nil, malformed("truncated ciphertext length")
	}
	if cipherLen < BlockSize || cipherLen%BlockSize != 0 {
		return nil, malformed("ciphertext length %d is not a positive multiple of %d", cipherLen, BlockSize)
	}
	if uint64(cipherLen) > uint64(r.remaining()) {
		return nil, malformed("ciphertext truncated: want %d bytes, have %d", cipherLen, r.remaining())
	}
	ciphertext, _ := r.bytes(int(cipherLen))

	tag, ok := r.bytes(TagSize)
	if !ok {
		return nil, malformed("tag truncated: want %d bytes, have %d", TagSize, r.remaining())
	}

	if r.remaining() != 0 {
		return nil, malformed("%d trailing bytes after tag", r.remaining())
	}

	return &Envelope{
		Version:    version,
		WrappedKey: clone(wrappedKey),
		IV:         clone(iv),
		Ciphertext: clone(ciphertext),
		Tag:        clone(tag),
	}, nil
}

// Encode serializes an Envelope. The production client only decodes; Encode
// exists for sandbox token construction and round-trip tests.
func Encode(env *Envelope) ([]byte, error) {
	if err := env.validate(); err != nil {
		return nil, err
	}

	out := make([]byte, 0, headerSize+len(env.WrappedKey)+IVSize+4+len(env.Ciphertext)+TagSize)
	out = append(out, env.Version)
	out = binary.BigEndian.AppendUint16(out, uint16(len(env.WrappedKey)))
	out = append(out, env.WrappedKey...)
	out = append(out, env.IV...)
	out = binary.BigEndian.AppendUint32(out, uint32(len(env.Ciphertext)))
	out = append(out, env.Ciphertext...)
	out = append(out, env.Tag...)
	return out, nil
}

// AuthenticatedData returns the bytes covered by the tag:
// version || wrappedKey || iv || ciphertext.
func (e *Envelope) AuthenticatedData() []byte {
	out := make([]byte, 0, 1+len(e.WrappedKey)+len(e.IV)+len(e.Ciphertext))
	out = append(out, e.Version)
	out = append(out, e.WrappedKey...)
	out = append(out, e.IV...)
	out = append(out, e.Ciphertext...)
	return out
}

func (e *Envelope) validate() error {
	switch {
	case e == nil:
		return malformed("envelope is nil")
	case e.Version != Version:
		return malformed("unsupported envelope version %d", e.Version)
	case len(e.WrappedKey) < MinWrappedKeySize || len(e.WrappedKey) > MaxWrappedKeySize:
		return malformed("wrapped key length %d out of range", len(e.WrappedKey))
	case len(e.IV) != IVSize:
		return malformed("iv is %d bytes, want %d", len(e.IV), IVSize)
	case len(e.Ciphertext) < BlockSize || len(e.Ciphertext)%BlockSize != 0:
		return malformed("ciphertext length %d is not a positive multiple of %d", len(e.Ciphertext), BlockSize)
	case len(e.Tag) != TagSize:
		return malformed("tag is %d bytes, want %d", len(e.Tag), TagSize)
	}
	return nil
}

func malformed(format string, args ...any) error {
	return errdefs.New(errdefs.KindMalformedEnvelope, "decode_envelope", format, args...)
}

func clone(b []byte) []byte {
	return append([]byte(nil), b...)
}

// reader is a bounds-checked forward cursor.
type reader struct {
	buf []byte
	off int
}

func (r *reader) remaining() int {
	return len(r.buf) - r.off
}

func (r *reader) bytes(n int) ([]byte, bool) {
	if n < 0 || n > r.remaining() {
		return nil, false
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b, true
}

func (r *reader) u8() (byte, bool) {
	b, ok := r.bytes(1)
	if !ok {
		return 0, false
	}
	return b[0], true
}

func (r *reader) uint16() (uint16, bool) {
	b, ok := r.bytes(2)
	if !ok {
		return 0, false
	}
	return binary.BigEndian.Uint16(b), true
}

func (r *reader) uint32() (uint32, bool) {
	b, ok := r.bytes(4)
	if !ok {
		return 0, false
	}
	return binary.BigEndian.Uint32(b), true
}
