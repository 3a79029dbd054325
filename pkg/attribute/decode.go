package attribute

import (
	"encoding/binary"
	"math"
	"time"
	"unicode/utf8"

	"github.com/attrexchange/go-client/pkg/errdefs"
)

const (
	// FormatVersion is the plaintext format version.
	FormatVersion byte = 1

	// MaxDepth bounds the nesting of STRUCTURED attributes. Top-level
	// records are at depth 1.
	MaxDepth = 8
)

// Decode parses decrypted plaintext into a Set in a single forward pass.
// A declared length running past the end of its enclosing buffer, an empty
// or non-UTF-8 name, a malformed DATE or nesting deeper than MaxDepth is an
// AttributeParse error. Unrecognized type tags decode as TypeUnknown.
func Decode(plaintext []byte) (*Set, error) {
	const op = "decode_attributes"

	d := decoder{buf: plaintext}

	version, ok := d.u8()
	if !ok {
		return nil, parseError(op, "plaintext is empty")
	}
	if version != FormatVersion {
		return nil, parseError(op, "unsupported format version %d", version)
	}
	issued, ok := d.uint64()
	if !ok {
		return nil, parseError(op, "truncated header at offset %d", d.pos)
	}
	receiptLen, ok := d.uint16()
	if !ok {
		return nil, parseError(op, "truncated header at offset %d", d.pos)
	}
	receipt, ok := d.bytes(int(receiptLen))
	if !ok {
		return nil, parseError(op, "receipt id length %d exceeds remaining %d bytes", receiptLen, d.remaining())
	}
	if !utf8.Valid(receipt) {
		return nil, parseError(op, "receipt id is not valid UTF-8")
	}

	attrs, err := decodeRecords(d.rest(), 1)
	if err != nil {
		return nil, err
	}

	s := &Set{receiptID: string(receipt), attrs: attrs}
	if issued != 0 {
		s.issuedAt = time.Unix(int64(issued), 0).UTC()
	}
	return s, nil
}

func decodeRecords(buf []byte, depth int) ([]*Attribute, error) {
	const op = "decode_attributes"

	if depth > MaxDepth {
		return nil, parseError(op, "attributes nested deeper than %d levels", MaxDepth)
	}

	d := decoder{buf: buf}
	var out []*Attribute
	for d.remaining() > 0 {
		start := d.pos

		tag, _ := d.u8()
		nameLen, ok := d.uint16()
		if !ok {
			return nil, parseError(op, "record at offset %d: truncated name length", start)
		}
		name, ok := d.bytes(int(nameLen))
		if !ok {
			return nil, parseError(op, "record at offset %d: name length %d exceeds remaining %d bytes", start, nameLen, d.remaining())
		}
		valueLen, ok := d.uint32()
		if !ok {
			return nil, parseError(op, "record at offset %d: truncated value length", start)
		}
		if uint64(valueLen) > uint64(d.remaining()) {
			return nil, parseError(op, "record at offset %d: value length %d exceeds remaining %d bytes", start, valueLen, d.remaining())
		}
		value, _ := d.bytes(int(valueLen))

		count, ok := d.u8()
		if !ok {
			return nil, parseError(op, "record at offset %d: truncated verifier count", start)
		}
		var verifiers []VerificationRecord
		for i := 0; i < int(count); i++ {
			kindLen, ok := d.u8()
			if !ok {
				return nil, parseError(op, "record at offset %d: truncated verifier %d", start, i)
			}
			kind, ok := d.bytes(int(kindLen))
			if !ok {
				return nil, parseError(op, "record at offset %d: verifier %d kind exceeds remaining bytes", start, i)
			}
			vLen, ok := d.uint16()
			if !ok {
				return nil, parseError(op, "record at offset %d: truncated verifier %d", start, i)
			}
			v, ok := d.bytes(int(vLen))
			if !ok {
				return nil, parseError(op, "record at offset %d: verifier %d value exceeds remaining bytes", start, i)
			}
			verifiers = append(verifiers, VerificationRecord{Kind: string(kind), Value: string(v)})
		}

		a, err := build(string(name), tag, value, verifiers, depth, op)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

// build validates one attribute at the given nesting depth and copies its
// inputs. Constructors and the decoder share it so both enforce the same rules.
func build(name string, tag uint8, value []byte, verifiers []VerificationRecord, depth int, op string) (*Attribute, error) {
	if name == "" {
		return nil, parseError(op, "attribute name is empty")
	}
	if len(name) > math.MaxUint16 {
		return nil, parseError(op, "attribute name is %d bytes", len(name))
	}
	if !utf8.ValidString(name) {
		return nil, parseError(op, "attribute name is not valid UTF-8")
	}
	if uint64(len(value)) > math.MaxUint32 {
		return nil, parseError(op, "attribute value is %d bytes", len(value))
	}
	if len(verifiers) > math.MaxUint8 {
		return nil, parseError(op, "attribute has %d verifiers, at most %d allowed", len(verifiers), math.MaxUint8)
	}
	for i, v := range verifiers {
		if v.Kind == "" || len(v.Kind) > math.MaxUint8 || len(v.Value) > math.MaxUint16 {
			return nil, parseError(op, "verifier %d has an invalid length", i)
		}
		if !utf8.ValidString(v.Kind) || !utf8.ValidString(v.Value) {
			return nil, parseError(op, "verifier %d is not valid UTF-8", i)
		}
	}

	a := &Attribute{name: name, typ: typeOf(tag), tag: tag}
	if len(value) > 0 {
		a.value = append([]byte(nil), value...)
	}
	if len(verifiers) > 0 {
		a.verifiers = append([]VerificationRecord(nil), verifiers...)
	}

	switch a.typ {
	case TypeDate:
		if len(value) != len(DateLayout) {
			return nil, parseError(op, "DATE value is not YYYY-MM-DD")
		}
		if _, err := time.Parse(DateLayout, string(value)); err != nil {
			return nil, parseError(op, "DATE value is not YYYY-MM-DD")
		}
	case TypeString:
		if !utf8.Valid(value) {
			return nil, parseError(op, "STRING value is not valid UTF-8")
		}
	case TypeStructured:
		children, err := decodeRecords(a.value, depth+1)
		if err != nil {
			return nil, err
		}
		a.children = children
	}
	return a, nil
}

func parseError(op, format string, args ...any) error {
	return errdefs.New(errdefs.KindAttributeParse, op, format, args...)
}

// decoder reads big-endian fields from buf, reporting instead of panicking
// when a field would run past the end.
type decoder struct {
	buf []byte
	pos int
}

func (d *decoder) remaining() int { return len(d.buf) - d.pos }

func (d *decoder) rest() []byte { return d.buf[d.pos:] }

func (d *decoder) u8() (uint8, bool) {
	if d.remaining() < 1 {
		return 0, false
	}
	v := d.buf[d.pos]
	d.pos++
	return v, true
}

func (d *decoder) uint16() (uint16, bool) {
	if d.remaining() < 2 {
		return 0, false
	}
	v := binary.BigEndian.Uint16(d.buf[d.pos:])
	d.pos += 2
	return v, true
}

func (d *decoder) uint32() (uint32, bool) {
	if d.remaining() < 4 {
		return 0, false
	}
	v := binary.BigEndian.Uint32(d.buf[d.pos:])
	d.pos += 4
	return v, true
}

func (d *decoder) uint64() (uint64, bool) {
	if d.remaining() < 8 {
		return 0, false
	}
	v := binary.BigEndian.Uint64(d.buf[d.pos:])
	d.pos += 8
	return v, true
}

func (d *decoder) bytes(n int) ([]byte, bool) {
	if n < 0 || d.remaining() < n {
		return nil, false
	}
	b := d.buf[d.pos : d.pos+n]
	d.pos += n
	return b, true
}
