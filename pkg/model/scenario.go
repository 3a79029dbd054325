package model

// Auth types accepted in DynamicPolicy.WantedAuthTypes.
const (
	AuthTypeSelfie = 1
	AuthTypePIN    = 2
)

// Constraint restricts the sources an attribute may come from.
type Constraint struct {
	Type             string           `json:"type"`
	PreferredSources PreferredSources `json:"preferred_sources"`
}

// PreferredSources lists acceptable document sources for a Constraint.
type PreferredSources struct {
	Anchors   []SourceAnchor `json:"anchors"`
	SoftPrefs bool           `json:"soft_preference"`
}

// SourceAnchor names one acceptable source.
type SourceAnchor struct {
	Name    string `json:"name"`
	SubType string `json:"sub_type,omitempty"`
}

// WantedAttribute is one attribute requested by a DynamicPolicy.
type WantedAttribute struct {
	Name               string       `json:"name"`
	Derivation         string       `json:"derivation,omitempty"`
	Optional           bool         `json:"optional"`
	AcceptSelfAsserted *bool        `json:"accept_self_asserted,omitempty"`
	Constraints        []Constraint `json:"constraints,omitempty"`
}

// DynamicPolicy describes what a sharing scenario asks of the user.
type DynamicPolicy struct {
	Wanted                   []WantedAttribute `json:"wanted"`
	WantedAuthTypes          []int             `json:"wanted_auth_types"`
	WantedRememberMe         bool              `json:"wanted_remember_me"`
	WantedRememberMeOptional bool              `json:"wanted_remember_me_optional"`
}

// Extension is an opaque, typed addition to a scenario.
type Extension struct {
	Type    string `json:"type"`
	Content any    `json:"content"`
}

// DynamicScenario is the body of a share URL request.
type DynamicScenario struct {
	Policy           DynamicPolicy `json:"policy"`
	Extensions       []Extension   `json:"extensions"`
	CallbackEndpoint string        `json:"callback_endpoint"`
	SdkConfig        *SdkConfig    `json:"sdk_config,omitempty"`
}

// SdkConfig customises the provider-hosted capture flow.
type SdkConfig struct {
	AllowedCaptureMethods string `json:"allowed_capture_methods,omitempty"`
	PrimaryColour         string `json:"primary_colour,omitempty"`
	SecondaryColour       string `json:"secondary_colour,omitempty"`
	FontColour            string `json:"font_colour,omitempty"`
	Locale                string `json:"locale,omitempty"`
	PresetIssuingCountry  string `json:"preset_issuing_country,omitempty"`
	SuccessURL            string `json:"success_url,omitempty"`
	ErrorURL              string `json:"error_url,omitempty"`
	PrivacyPolicyURL      string `json:"privacy_policy_url,omitempty"`
	BrandID               string `json:"brand_id,omitempty"`
}
