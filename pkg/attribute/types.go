// Package attribute holds the verified user attributes recovered from a
// token, and the binary record format they are carried in.
package attribute

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"
)

// Type is the type tag of an attribute record.
type Type uint8

const (
	TypeUnknown    Type = 0
	TypeString     Type = 1
	TypeDate       Type = 2
	TypeImageJPEG  Type = 3
	TypeImagePNG   Type = 4
	TypeStructured Type = 5
	TypeSelfie     Type = 6
)

func (t Type) String() string {
	switch t {
	case TypeString:
		return "STRING"
	case TypeDate:
		return "DATE"
	case TypeImageJPEG:
		return "IMAGE_JPEG"
	case TypeImagePNG:
		return "IMAGE_PNG"
	case TypeStructured:
		return "STRUCTURED"
	case TypeSelfie:
		return "SELFIE"
	}
	return "UNKNOWN"
}

func typeOf(tag uint8) Type {
	t := Type(tag)
	if t >= TypeString && t <= TypeSelfie {
		return t
	}
	return TypeUnknown
}

// DateLayout is the format of DATE attribute values.
const DateLayout = "2006-01-02"

// Well known attribute names.
const (
	GivenNames     = "given_names"
	FamilyName     = "family_name"
	FullName       = "full_name"
	DateOfBirth    = "date_of_birth"
	Nationality    = "nationality"
	EmailAddress   = "email_address"
	PhoneNumber    = "phone_number"
	Selfie         = "selfie"
	PostalAddress  = "postal_address"
	StructuredAddr = "structured_postal_address"

	AgeOverPrefix  = "age_over:"
	AgeUnderPrefix = "age_under:"
)

// Verification record kinds.
const (
	VerifierSource   = "SOURCE"
	VerifierVerifier = "VERIFIER"
)

// VerificationRecord names a party that sourced or verified an attribute.
type VerificationRecord struct {
	Kind  string
	Value string
}

// Attribute is a single named, typed value. It is immutable; accessors
// return copies.
type Attribute struct {
	name      string
	typ       Type
	tag       uint8
	value     []byte
	verifiers []VerificationRecord
	children  []*Attribute
}

// New builds an attribute of a known type. A STRUCTURED value is parsed
// into child attributes; a DATE value must be YYYY-MM-DD.
func New(name string, typ Type, value []byte, verifiers ...VerificationRecord) (*Attribute, error) {
	if typ == TypeUnknown {
		return NewUnknown(name, 0, value, verifiers...)
	}
	return build(name, uint8(typ), value, verifiers, 1, "new_attribute")
}

// NewString builds a STRING attribute.
func NewString(name, value string, verifiers ...VerificationRecord) (*Attribute, error) {
	return New(name, TypeString, []byte(value), verifiers...)
}

// NewUnknown builds an attribute carrying a type tag this package does not
// interpret. The tag is kept so the attribute re-encodes unchanged.
func NewUnknown(name string, tag uint8, value []byte, verifiers ...VerificationRecord) (*Attribute, error) {
	if typeOf(tag) != TypeUnknown {
		return nil, parseError("new_attribute", "tag %d is a known type", tag)
	}
	return build(name, tag, value, verifiers, 1, "new_attribute")
}

// NewStructured builds a STRUCTURED attribute from its children.
func NewStructured(name string, children []*Attribute, verifiers ...VerificationRecord) (*Attribute, error) {
	var e encoder
	if err := e.records(children); err != nil {
		return nil, err
	}
	return build(name, uint8(TypeStructured), e.buf, verifiers, 1, "new_attribute")
}

// Name returns the attribute name.
func (a *Attribute) Name() string { return a.name }

// Type returns the attribute type; TypeUnknown for unrecognized tags.
func (a *Attribute) Type() Type { return a.typ }

// Tag returns the raw type tag as carried on the wire.
func (a *Attribute) Tag() uint8 { return a.tag }

// Value returns a copy of the raw value.
func (a *Attribute) Value() []byte {
	if a.value == nil {
		return nil
	}
	return append([]byte(nil), a.value...)
}

// Text returns the value as a string.
func (a *Attribute) Text() string { return string(a.value) }

// Date parses a DATE value.
func (a *Attribute) Date() (time.Time, error) {
	if a.typ != TypeDate {
		return time.Time{}, fmt.Errorf("attribute %q is %s, not DATE", a.name, a.typ)
	}
	return time.Parse(DateLayout, string(a.value))
}

// Verifiers returns the verification records in wire order.
func (a *Attribute) Verifiers() []VerificationRecord {
	if a.verifiers == nil {
		return nil
	}
	return append([]VerificationRecord(nil), a.verifiers...)
}

// Sources returns the values of the SOURCE verification records.
func (a *Attribute) Sources() []string {
	var out []string
	for _, v := range a.verifiers {
		if v.Kind == VerifierSource {
			out = append(out, v.Value)
		}
	}
	return out
}

// Children returns the nested attributes of a STRUCTURED attribute.
func (a *Attribute) Children() []*Attribute {
	if a.children == nil {
		return nil
	}
	return append([]*Attribute(nil), a.children...)
}

// Child returns the first nested attribute with the given name.
func (a *Attribute) Child(name string) (*Attribute, bool) {
	for _, c := range a.children {
		if c.name == name {
			return c, true
		}
	}
	return nil, false
}

// LogValue reports the shape of the attribute without its value.
func (a *Attribute) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("name", a.name),
		slog.String("type", a.typ.String()),
		slog.Int("size", len(a.value)),
	)
}

// Set is the decrypted collection of attributes for one sharing event.
type Set struct {
	issuedAt  time.Time
	receiptID string
	attrs     []*Attribute
}

// NewSet builds a Set. A zero issuedAt, or the Unix epoch, means the
// provider sent none. issuedAt is truncated to whole seconds.
func NewSet(issuedAt time.Time, receiptID string, attrs []*Attribute) *Set {
	s := &Set{receiptID: receiptID}
	if !issuedAt.IsZero() && issuedAt.Unix() != 0 {
		s.issuedAt = time.Unix(issuedAt.Unix(), 0).UTC()
	}
	if len(attrs) > 0 {
		s.attrs = append([]*Attribute(nil), attrs...)
	}
	return s
}

// IssuedAt returns the profile issue time, zero when absent.
func (s *Set) IssuedAt() time.Time { return s.issuedAt }

// ReceiptID returns the receipt identifier the set was issued under.
func (s *Set) ReceiptID() string { return s.receiptID }

// Len returns the number of top-level attributes.
func (s *Set) Len() int { return len(s.attrs) }

// All returns the attributes in wire order.
func (s *Set) All() []*Attribute {
	return append([]*Attribute(nil), s.attrs...)
}

// Get returns the first attribute with the given name.
func (s *Set) Get(name string) (*Attribute, bool) {
	for _, a := range s.attrs {
		if a.name == name {
			return a, true
		}
	}
	return nil, false
}

// GetTyped returns the first attribute with the given name and type.
func (s *Set) GetTyped(name string, typ Type) (*Attribute, bool) {
	for _, a := range s.attrs {
		if a.name == name && a.typ == typ {
			return a, true
		}
	}
	return nil, false
}

// GetAll returns every attribute with the given name.
func (s *Set) GetAll(name string) []*Attribute {
	var out []*Attribute
	for _, a := range s.attrs {
		if a.name == name {
			out = append(out, a)
		}
	}
	return out
}

// GetWithFallback returns primary if present, otherwise fallback.
// full_name is commonly requested with given_names as its fallback.
func (s *Set) GetWithFallback(primary, fallback string) (*Attribute, bool) {
	if a, ok := s.Get(primary); ok {
		return a, true
	}
	return s.Get(fallback)
}

// AgeVerified looks up a derived age attribute such as "age_over:18" and
// reports its result. found is false when the provider did not derive it.
func (s *Set) AgeVerified(derivation string) (result, found bool) {
	if !strings.HasPrefix(derivation, AgeOverPrefix) && !strings.HasPrefix(derivation, AgeUnderPrefix) {
		return false, false
	}
	a, ok := s.Get(derivation)
	if !ok {
		return false, false
	}
	v, err := strconv.ParseBool(a.Text())
	if err != nil {
		return false, false
	}
	return v, true
}

// AgeOver reports the result of the "age_over:n" derivation.
func (s *Set) AgeOver(n int) (result, found bool) {
	return s.AgeVerified(AgeOverPrefix + strconv.Itoa(n))
}

// AgeUnder reports the result of the "age_under:n" derivation.
func (s *Set) AgeUnder(n int) (result, found bool) {
	return s.AgeVerified(AgeUnderPrefix + strconv.Itoa(n))
}

// LogValue reports the set's metadata without attribute values.
func (s *Set) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("receipt_id", s.receiptID),
		slog.Int("attributes", len(s.attrs)),
	)
}
