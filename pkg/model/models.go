package model

import (
	"time"
)

// SharingOutcome is the result the provider reports for a sharing event.
type SharingOutcome string

const (
	SharingOutcomeSuccess SharingOutcome = "SUCCESS"
	SharingOutcomeFailure SharingOutcome = "FAILURE"
)

// Receipt represents the provider's record of one sharing event.
type Receipt struct {
	ReceiptID                string         `avro:"receipt_id" json:"receipt_id"`
	RememberMeID             string         `avro:"remember_me_id" json:"remember_me_id,omitempty"`
	ParentRememberMeID       string         `avro:"parent_remember_me_id" json:"parent_remember_me_id,omitempty"`
	Timestamp                string         `avro:"timestamp" json:"timestamp"`
	SharingOutcome           SharingOutcome `avro:"sharing_outcome" json:"sharing_outcome"`
	OtherPartyProfileContent string         `avro:"other_party_profile_content" json:"other_party_profile_content,omitempty"`
}

// Time parses the receipt timestamp. It returns the zero time when the
// timestamp is absent or not RFC 3339.
func (r *Receipt) Time() time.Time {
	t, err := time.Parse(time.RFC3339, r.Timestamp)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}

// ProfileResponse represents the response of the profile endpoint.
type ProfileResponse struct {
	Receipt Receipt `avro:"receipt" json:"receipt"`
}

// ShareURLResult represents the response of the share URL endpoint.
type ShareURLResult struct {
	URL   string `avro:"qrcode" json:"qrcode"`
	RefID string `avro:"ref_id" json:"ref_id"`
}

// ErrorResponse represents an error body returned by the provider.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
