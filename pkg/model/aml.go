package model

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidAmlProfile is returned by AmlProfile.Validate.
var ErrInvalidAmlProfile = errors.New("invalid AML profile")

// AmlAddress is the address part of an AML check.
type AmlAddress struct {
	Postcode string `json:"post_code,omitempty"`
	Country  string `json:"country"`
}

// AmlProfile is the subject of an AML check.
type AmlProfile struct {
	GivenNames string     `json:"given_names"`
	FamilyName string     `json:"family_name"`
	SSN        string     `json:"ssn,omitempty"`
	Address    AmlAddress `json:"address"`
}

// Validate checks the profile before it is sent. Country is an ISO 3166-1
// alpha-3 code; US checks also need a postcode.
func (p *AmlProfile) Validate() error {
	if strings.TrimSpace(p.GivenNames) == "" {
		return fmt.Errorf("%w: given names are required", ErrInvalidAmlProfile)
	}
	if strings.TrimSpace(p.FamilyName) == "" {
		return fmt.Errorf("%w: family name is required", ErrInvalidAmlProfile)
	}
	country := p.Address.Country
	if len(country) != 3 || strings.ToUpper(country) != country {
		return fmt.Errorf("%w: country must be an upper-case ISO 3166-1 alpha-3 code", ErrInvalidAmlProfile)
	}
	if country == "USA" && strings.TrimSpace(p.Address.Postcode) == "" {
		return fmt.Errorf("%w: postcode is required for USA", ErrInvalidAmlProfile)
	}
	return nil
}

// AmlResult is the outcome of an AML check.
type AmlResult struct {
	OnFraudList bool `json:"on_fraud_list"`
	OnPEPList   bool `json:"on_pep_list"`
	OnWatchList bool `json:"on_watch_list"`
}
