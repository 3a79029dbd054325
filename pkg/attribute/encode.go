package attribute

import (
	"encoding/binary"
	"math"
)

// Encode serializes a Set into the plaintext format read by Decode.
func Encode(s *Set) ([]byte, error) {
	const op = "encode_attributes"

	if s == nil {
		return nil, parseError(op, "nil attribute set")
	}
	if len(s.receiptID) > math.MaxUint16 {
		return nil, parseError(op, "receipt id is %d bytes", len(s.receiptID))
	}

	var e encoder
	e.u8(FormatVersion)
	var issued int64
	if !s.issuedAt.IsZero() {
		issued = s.issuedAt.Unix()
	}
	e.uint64(uint64(issued))
	e.uint16(uint16(len(s.receiptID)))
	e.buf = append(e.buf, s.receiptID...)

	if err := e.records(s.attrs); err != nil {
		return nil, err
	}
	return e.buf, nil
}

type encoder struct {
	buf []byte
}

func (e *encoder) records(attrs []*Attribute) error {
	for _, a := range attrs {
		if a == nil {
			return parseError("encode_attributes", "nil attribute")
		}
		e.u8(a.tag)
		e.uint16(uint16(len(a.name)))
		e.buf = append(e.buf, a.name...)
		e.uint32(uint32(len(a.value)))
		e.buf = append(e.buf, a.value...)
		e.u8(uint8(len(a.verifiers)))
		for _, v := range a.verifiers {
			e.u8(uint8(len(v.Kind)))
			e.buf = append(e.buf, v.Kind...)
			e.uint16(uint16(len(v.Value)))
			e.buf = append(e.buf, v.Value...)
		}
	}
	return nil
}

func (e *encoder) u8(v uint8) {
	e.buf = append(e.buf, v)
}

func (e *encoder) uint16(v uint16) {
	e.buf = binary.BigEndian.AppendUint16(e.buf, v)
}

func (e *encoder) uint32(v uint32) {
	e.buf = binary.BigEndian.AppendUint32(e.buf, v)
}

func (e *encoder) uint64(v uint64) {
	e.buf = binary.BigEndian.AppendUint64(e.buf, v)
}
