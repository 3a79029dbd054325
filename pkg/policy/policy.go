// Package policy assembles the dynamic policies, sharing scenarios and SDK
// configuration sent to the provider. Builders record the first invalid
// argument and report it from Build.
package policy

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/attrexchange/go-client/pkg/attribute"
	"github.com/attrexchange/go-client/pkg/model"
)

var (
	// ErrOutOfRange is returned when a numeric argument is outside its range.
	ErrOutOfRange = errors.New("argument out of range")
	// ErrInvalid is returned for any other invalid builder input.
	ErrInvalid = errors.New("invalid argument")
)

const (
	// EstimatedAge is the attribute requested by RequireEstimatedAgeOrDob.
	EstimatedAge = "estimated_age"

	MaxAgeOfInterest = 99
	MaxBufferYears   = 20
)

// PolicyBuilder builds a model.DynamicPolicy.
type PolicyBuilder struct {
	wanted     []model.WantedAttribute
	index      map[string]int
	authTypes  map[int]bool
	authOrder  []int
	rememberMe bool
	optional   bool
	err        error
}

// NewPolicyBuilder creates an empty PolicyBuilder.
func NewPolicyBuilder() *PolicyBuilder {
	return &PolicyBuilder{
		index:     make(map[string]int),
		authTypes: make(map[int]bool),
	}
}

func (b *PolicyBuilder) fail(err error) *PolicyBuilder {
	if b.err == nil {
		b.err = err
	}
	return b
}

// WithWantedAttribute requests an attribute. Requesting the same name and
// derivation twice replaces the earlier request.
func (b *PolicyBuilder) WithWantedAttribute(w model.WantedAttribute) *PolicyBuilder {
	if w.Name == "" {
		return b.fail(fmt.Errorf("%w: wanted attribute name is empty", ErrInvalid))
	}
	key := w.Name + "/" + w.Derivation
	if i, ok := b.index[key]; ok {
		b.wanted[i] = w
		return b
	}
	b.index[key] = len(b.wanted)
	b.wanted = append(b.wanted, w)
	return b
}

// WithAttribute requests a named attribute.
func (b *PolicyBuilder) WithAttribute(name string, optional bool, constraints ...model.Constraint) *PolicyBuilder {
	return b.WithWantedAttribute(model.WantedAttribute{Name: name, Optional: optional, Constraints: constraints})
}

func (b *PolicyBuilder) WithGivenNames() *PolicyBuilder {
	return b.WithAttribute(attribute.GivenNames, false)
}

func (b *PolicyBuilder) WithFamilyName() *PolicyBuilder {
	return b.WithAttribute(attribute.FamilyName, false)
}

func (b *PolicyBuilder) WithFullName() *PolicyBuilder {
	return b.WithAttribute(attribute.FullName, false)
}

func (b *PolicyBuilder) WithDateOfBirth() *PolicyBuilder {
	return b.WithAttribute(attribute.DateOfBirth, false)
}

func (b *PolicyBuilder) WithNationality() *PolicyBuilder {
	return b.WithAttribute(attribute.Nationality, false)
}

func (b *PolicyBuilder) WithEmail() *PolicyBuilder {
	return b.WithAttribute(attribute.EmailAddress, false)
}

func (b *PolicyBuilder) WithPhoneNumber() *PolicyBuilder {
	return b.WithAttribute(attribute.PhoneNumber, false)
}

func (b *PolicyBuilder) WithSelfie() *PolicyBuilder {
	return b.WithAttribute(attribute.Selfie, false)
}

func (b *PolicyBuilder) WithPostalAddress() *PolicyBuilder {
	return b.WithAttribute(attribute.PostalAddress, false)
}

func (b *PolicyBuilder) WithStructuredPostalAddress() *PolicyBuilder {
	return b.WithAttribute(attribute.StructuredAddr, false)
}

// WithAgeOver requests the age_over:age derivation of the date of birth.
func (b *PolicyBuilder) WithAgeOver(age int) *PolicyBuilder {
	if age < 0 {
		return b.fail(fmt.Errorf("%w: age %d is negative", ErrOutOfRange, age))
	}
	return b.WithWantedAttribute(model.WantedAttribute{
		Name:       attribute.DateOfBirth,
		Derivation: attribute.AgeOverPrefix + strconv.Itoa(age),
	})
}

// WithAgeUnder requests the age_under:age derivation of the date of birth.
func (b *PolicyBuilder) WithAgeUnder(age int) *PolicyBuilder {
	if age < 0 {
		return b.fail(fmt.Errorf("%w: age %d is negative", ErrOutOfRange, age))
	}
	return b.WithWantedAttribute(model.WantedAttribute{
		Name:       attribute.DateOfBirth,
		Derivation: attribute.AgeUnderPrefix + strconv.Itoa(age),
	})
}

// RequireEstimatedAgeOrDob requests an estimated age check against
// ageOfInterest with bufferYears of tolerance, falling back to the date of
// birth. ageOfInterest must be in [0, 99] and bufferYears in [0, 20].
func (b *PolicyBuilder) RequireEstimatedAgeOrDob(ageOfInterest, bufferYears int, required bool) *PolicyBuilder {
	if ageOfInterest < 0 || ageOfInterest > MaxAgeOfInterest {
		return b.fail(fmt.Errorf("%w: age of interest %d not in [0, %d]", ErrOutOfRange, ageOfInterest, MaxAgeOfInterest))
	}
	if bufferYears < 0 || bufferYears > MaxBufferYears {
		return b.fail(fmt.Errorf("%w: buffer %d not in [0, %d]", ErrOutOfRange, bufferYears, MaxBufferYears))
	}
	return b.WithWantedAttribute(model.WantedAttribute{
		Name:       EstimatedAge,
		Derivation: attribute.AgeOverPrefix + strconv.Itoa(ageOfInterest) + ":" + strconv.Itoa(bufferYears),
		Optional:   !required,
	})
}

// WithAuthType enables or disables an authentication type.
func (b *PolicyBuilder) WithAuthType(authType int, enabled bool) *PolicyBuilder {
	if authType <= 0 {
		return b.fail(fmt.Errorf("%w: auth type %d", ErrInvalid, authType))
	}
	if _, seen := b.authTypes[authType]; !seen {
		b.authOrder = append(b.authOrder, authType)
	}
	b.authTypes[authType] = enabled
	return b
}

func (b *PolicyBuilder) WithSelfieAuthentication(enabled bool) *PolicyBuilder {
	return b.WithAuthType(model.AuthTypeSelfie, enabled)
}

func (b *PolicyBuilder) WithPinAuthentication(enabled bool) *PolicyBuilder {
	return b.WithAuthType(model.AuthTypePIN, enabled)
}

func (b *PolicyBuilder) WithRememberMe(wanted bool) *PolicyBuilder {
	b.rememberMe = wanted
	return b
}

func (b *PolicyBuilder) WithRememberMeOptional(optional bool) *PolicyBuilder {
	b.optional = optional
	return b
}

// Build returns the policy, or the first error recorded by the builder.
func (b *PolicyBuilder) Build() (*model.DynamicPolicy, error) {
	if b.err != nil {
		return nil, b.err
	}
	p := &model.DynamicPolicy{
		Wanted:                   append([]model.WantedAttribute{}, b.wanted...),
		WantedAuthTypes:          []int{},
		WantedRememberMe:         b.rememberMe,
		WantedRememberMeOptional: b.optional,
	}
	for _, t := range b.authOrder {
		if b.authTypes[t] {
			p.WantedAuthTypes = append(p.WantedAuthTypes, t)
		}
	}
	return p, nil
}
