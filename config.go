// Copyright 2024 Contributors to the Approov project.
// SPDX-License-Identifier: Apache-2.0

package approov

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"golang.org/x/net/http/httpguts"
)

const (
	// DefaultTokenHeader is the header the Approov token is added on
	DefaultTokenHeader = "Approov-Token"
	// DefaultTokenPrefix is prepended to the token, e.g. "Bearer "
	DefaultTokenPrefix = ""
)

var validate = validator.New()

// config is the mutable configuration state of a Service. It is only accessed
// with the Service lock held.
type config struct {
	tokenHeader          string
	tokenPrefix          string
	bindingHeader        string
	substitutionHeaders  map[string]string
	exclusions           exclusions
	proceedOnNetworkFail bool
	unknownURL           UnknownURLSubstitution
}

func newConfig() config {
	return config{
		tokenHeader:         DefaultTokenHeader,
		tokenPrefix:         DefaultTokenPrefix,
		substitutionHeaders: map[string]string{},
		exclusions:          exclusions{},
		unknownURL:          UnknownURLReject,
	}
}

// sortedSubstitutionHeaders returns the configured headers in name order
func (o config) sortedSubstitutionHeaders() []string {
	headers := make([]string, 0, len(o.substitutionHeaders))
	for h := range o.substitutionHeaders {
		headers = append(headers, h)
	}
	sort.Strings(headers)

	return headers
}

// Settings is the declarative form of the Service configuration, as accepted
// by Service.Configure.
type Settings struct {
	TokenHeader            string            `mapstructure:"token_header" validate:"required"`
	TokenPrefix            string            `mapstructure:"token_prefix"`
	BindingHeader          string            `mapstructure:"binding_header"`
	SubstitutionHeaders    map[string]string `mapstructure:"substitution_headers"`
	ExclusionURLRegexs     []string          `mapstructure:"exclusion_url_regexs" validate:"dive,required"`
	ProceedOnNetworkFail   bool              `mapstructure:"proceed_on_network_fail"`
	UnknownURLSubstitution string            `mapstructure:"unknown_url_substitution" validate:"omitempty,oneof=reject allow"`
}

// decodeSettings decodes cfg on top of the default settings, rejecting any
// field it does not know about.
func decodeSettings(cfg map[string]interface{}) (*Settings, error) {
	decoded := struct {
		Settings `mapstructure:",squash"`
		Rest     map[string]interface{} `mapstructure:",remain"`
	}{
		Settings: Settings{
			TokenHeader: DefaultTokenHeader,
			TokenPrefix: DefaultTokenPrefix,
		},
	}

	if err := mapstructure.Decode(cfg, &decoded); err != nil {
		return nil, err
	}

	if len(decoded.Rest) > 0 {
		var unexpected []string
		for k := range decoded.Rest {
			unexpected = append(unexpected, k)
		}
		sort.Strings(unexpected)
		return nil, fmt.Errorf("unexpected fields in config: %s",
			strings.Join(unexpected, ", "))
	}

	if err := validate.Struct(&decoded.Settings); err != nil {
		return nil, err
	}

	return &decoded.Settings, nil
}

// build turns validated settings into the configuration state
func (o *Settings) build() (config, error) {
	c := newConfig()

	if err := checkHeaderName(o.TokenHeader); err != nil {
		return c, err
	}
	c.tokenHeader = o.TokenHeader
	c.tokenPrefix = o.TokenPrefix

	if o.BindingHeader != "" {
		if err := checkHeaderName(o.BindingHeader); err != nil {
			return c, err
		}
		c.bindingHeader = o.BindingHeader
	}

	for header, prefix := range o.SubstitutionHeaders {
		if err := checkHeaderName(header); err != nil {
			return c, err
		}
		c.substitutionHeaders[header] = prefix
	}

	for _, pattern := range o.ExclusionURLRegexs {
		if err := c.exclusions.add(pattern); err != nil {
			return c, err
		}
	}

	c.proceedOnNetworkFail = o.ProceedOnNetworkFail

	if err := c.unknownURL.Set(o.UnknownURLSubstitution); err != nil {
		return c, err
	}

	return c, nil
}

func checkHeaderName(name string) error {
	if name == "" {
		return errors.New("no header name supplied")
	}

	if !httpguts.ValidHeaderFieldName(name) {
		return fmt.Errorf("invalid header name %q", name)
	}

	return nil
}
