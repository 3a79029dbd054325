package policy

import (
	"fmt"

	"github.com/attrexchange/go-client/pkg/model"
)

// ScenarioBuilder builds a model.DynamicScenario.
type ScenarioBuilder struct {
	scenario  model.DynamicScenario
	hasPolicy bool
	err       error
}

// NewScenarioBuilder creates an empty ScenarioBuilder.
func NewScenarioBuilder() *ScenarioBuilder {
	return &ScenarioBuilder{scenario: model.DynamicScenario{Extensions: []model.Extension{}}}
}

func (b *ScenarioBuilder) WithPolicy(p *model.DynamicPolicy) *ScenarioBuilder {
	if p == nil {
		if b.err == nil {
			b.err = fmt.Errorf("%w: nil policy", ErrInvalid)
		}
		return b
	}
	b.scenario.Policy = *p
	b.hasPolicy = true
	return b
}

func (b *ScenarioBuilder) WithExtension(e model.Extension) *ScenarioBuilder {
	if e.Type == "" && b.err == nil {
		b.err = fmt.Errorf("%w: extension type is empty", ErrInvalid)
		return b
	}
	b.scenario.Extensions = append(b.scenario.Extensions, e)
	return b
}

func (b *ScenarioBuilder) WithCallbackEndpoint(endpoint string) *ScenarioBuilder {
	b.scenario.CallbackEndpoint = endpoint
	return b
}

func (b *ScenarioBuilder) WithSdkConfig(c *model.SdkConfig) *ScenarioBuilder {
	b.scenario.SdkConfig = c
	return b
}

// Build returns the scenario. A policy and a callback endpoint are required.
func (b *ScenarioBuilder) Build() (*model.DynamicScenario, error) {
	if b.err != nil {
		return nil, b.err
	}
	if !b.hasPolicy {
		return nil, fmt.Errorf("%w: scenario has no policy", ErrInvalid)
	}
	if b.scenario.CallbackEndpoint == "" {
		return nil, fmt.Errorf("%w: scenario has no callback endpoint", ErrInvalid)
	}
	s := b.scenario
	s.Extensions = append([]model.Extension{}, b.scenario.Extensions...)
	return &s, nil
}

// Capture methods accepted by SdkConfigBuilder.WithAllowedCaptureMethods.
const (
	CaptureCamera          = "CAMERA"
	CaptureCameraAndUpload = "CAMERA_AND_UPLOAD"
)

// SdkConfigBuilder builds a model.SdkConfig. Unset fields are omitted from
// the JSON sent to the provider.
type SdkConfigBuilder struct {
	cfg model.SdkConfig
}

func NewSdkConfigBuilder() *SdkConfigBuilder {
	return &SdkConfigBuilder{}
}

func (b *SdkConfigBuilder) WithAllowedCaptureMethods(m string) *SdkConfigBuilder {
	b.cfg.AllowedCaptureMethods = m
	return b
}

func (b *SdkConfigBuilder) WithAllowsCamera() *SdkConfigBuilder {
	return b.WithAllowedCaptureMethods(CaptureCamera)
}

func (b *SdkConfigBuilder) WithAllowsCameraAndUpload() *SdkConfigBuilder {
	return b.WithAllowedCaptureMethods(CaptureCameraAndUpload)
}

func (b *SdkConfigBuilder) WithPrimaryColour(c string) *SdkConfigBuilder {
	b.cfg.PrimaryColour = c
	return b
}

func (b *SdkConfigBuilder) WithSecondaryColour(c string) *SdkConfigBuilder {
	b.cfg.SecondaryColour = c
	return b
}

func (b *SdkConfigBuilder) WithFontColour(c string) *SdkConfigBuilder {
	b.cfg.FontColour = c
	return b
}

func (b *SdkConfigBuilder) WithLocale(l string) *SdkConfigBuilder {
	b.cfg.Locale = l
	return b
}

func (b *SdkConfigBuilder) WithPresetIssuingCountry(c string) *SdkConfigBuilder {
	b.cfg.PresetIssuingCountry = c
	return b
}

func (b *SdkConfigBuilder) WithSuccessURL(u string) *SdkConfigBuilder {
	b.cfg.SuccessURL = u
	return b
}

func (b *SdkConfigBuilder) WithErrorURL(u string) *SdkConfigBuilder {
	b.cfg.ErrorURL = u
	return b
}

func (b *SdkConfigBuilder) WithPrivacyPolicyURL(u string) *SdkConfigBuilder {
	b.cfg.PrivacyPolicyURL = u
	return b
}

func (b *SdkConfigBuilder) WithBrandID(id string) *SdkConfigBuilder {
	b.cfg.BrandID = id
	return b
}

func (b *SdkConfigBuilder) Build() *model.SdkConfig {
	c := b.cfg
	return &c
}
