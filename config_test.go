// Copyright 2024 Contributors to the Approov project.
// SPDX-License-Identifier: Apache-2.0

package approov

import (
	"testing"

	"github.com/approov/approov-service-go/sdk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestService_Configure_ok(t *testing.T) {
	fake := sdk.NewFake("abc")
	fake.SetSecureString(testKey, testSecret)
	s := newTestService(t, fake)

	err := s.Configure(map[string]interface{}{
		"token_header":             "Authorization",
		"token_prefix":             "Bearer ",
		"binding_header":           "X-Session",
		"substitution_headers":     map[string]interface{}{"Api-Key": ""},
		"exclusion_url_regexs":     []interface{}{`/static/`},
		"proceed_on_network_fail":  true,
		"unknown_url_substitution": "allow",
	})
	require.NoError(t, err)

	conn := newTestConnection(t, testURL, map[string]string{"Api-Key": testKey, "X-Session": "s1"})
	require.NoError(t, s.AddApproov(conn))
	assert.Equal(t, "Bearer abc", conn.headers.Get("Authorization"))
	assert.Equal(t, testSecret, conn.headers.Get("Api-Key"))
	assert.Equal(t, []string{"s1"}, fake.DataHashes)

	conn = newTestConnection(t, "https://api.example.com/static/logo.png", nil)
	require.NoError(t, s.AddApproov(conn))
	assert.Empty(t, conn.headers.Get("Authorization"))

	s.mu.Lock()
	defer s.mu.Unlock()
	assert.True(t, s.cfg.proceedOnNetworkFail)
	assert.Equal(t, UnknownURLAllow, s.cfg.unknownURL)
}

func TestService_Configure_defaults(t *testing.T) {
	s := newTestService(t, sdk.NewFake(testToken))
	require.NoError(t, s.AddSubstitutionHeader("Api-Key", ""))
	require.NoError(t, s.AddExclusionURLRegex(`example`))

	require.NoError(t, s.Configure(map[string]interface{}{}))

	s.mu.Lock()
	defer s.mu.Unlock()
	assert.Equal(t, DefaultTokenHeader, s.cfg.tokenHeader)
	assert.Equal(t, DefaultTokenPrefix, s.cfg.tokenPrefix)
	assert.Empty(t, s.cfg.substitutionHeaders)
	assert.Empty(t, s.cfg.exclusions)
	assert.Equal(t, UnknownURLReject, s.cfg.unknownURL)
}

func TestService_Configure_unexpected_fields(t *testing.T) {
	s := newTestService(t, sdk.NewFake(testToken))

	err := s.Configure(map[string]interface{}{
		"token_header": "Authorization",
		"timeout":      30,
		"retries":      3,
	})

	assert.EqualError(t, err, "unexpected fields in config: retries, timeout")
}

func TestService_Configure_nok(t *testing.T) {
	for name, tc := range map[string]struct {
		cfg      map[string]interface{}
		expected string
	}{
		"empty token header": {
			cfg:      map[string]interface{}{"token_header": ""},
			expected: "TokenHeader",
		},
		"bad policy": {
			cfg:      map[string]interface{}{"unknown_url_substitution": "maybe"},
			expected: "UnknownURLSubstitution",
		},
		"empty exclusion": {
			cfg:      map[string]interface{}{"exclusion_url_regexs": []interface{}{""}},
			expected: "ExclusionURLRegexs[0]",
		},
		"bad exclusion": {
			cfg:      map[string]interface{}{"exclusion_url_regexs": []interface{}{"["}},
			expected: `invalid exclusion URL regex "["`,
		},
		"bad header name": {
			cfg:      map[string]interface{}{"substitution_headers": map[string]interface{}{"Api Key": ""}},
			expected: `invalid header name "Api Key"`,
		},
		"bad binding header": {
			cfg:      map[string]interface{}{"binding_header": "X:Session"},
			expected: `invalid header name "X:Session"`,
		},
		"wrong type": {
			cfg:      map[string]interface{}{"proceed_on_network_fail": "sometimes"},
			expected: "proceed_on_network_fail",
		},
	} {
		s := newTestService(t, sdk.NewFake(testToken))
		require.NoError(t, s.SetTokenHeader("Authorization", "Bearer "))

		err := s.Configure(tc.cfg)
		assert.ErrorContains(t, err, tc.expected, name)

		// configuration is left untouched
		s.mu.Lock()
		assert.Equal(t, "Authorization", s.cfg.tokenHeader, name)
		assert.Equal(t, "Bearer ", s.cfg.tokenPrefix, name)
		s.mu.Unlock()
	}
}

func TestConfig_sortedSubstitutionHeaders(t *testing.T) {
	c := newConfig()
	c.substitutionHeaders["X-B"] = ""
	c.substitutionHeaders["Api-Key"] = "Bearer "
	c.substitutionHeaders["X-A"] = ""

	assert.Equal(t, []string{"Api-Key", "X-A", "X-B"}, c.sortedSubstitutionHeaders())
}

func TestExclusions(t *testing.T) {
	e := exclusions{}

	require.NoError(t, e.add(`^https://cdn\.`))
	assert.True(t, e.matches("https://cdn.example.com/a.js"))
	assert.False(t, e.matches("https://api.example.com/cdn."))

	e.remove(`^https://cdn\.`)
	assert.False(t, e.matches("https://cdn.example.com/a.js"))

	assert.Error(t, e.add(`a(b`))
	assert.Empty(t, e)
}

func TestUnknownURLSubstitution_Set(t *testing.T) {
	var p UnknownURLSubstitution

	require.NoError(t, p.Set(""))
	assert.Equal(t, UnknownURLReject, p)

	require.NoError(t, p.Set("allow"))
	assert.Equal(t, "allow", p.String())

	require.NoError(t, p.Set("reject"))
	assert.Equal(t, UnknownURLReject, p)

	assert.EqualError(t, p.Set("ALLOW"), `unexpected UnknownURLSubstitution "ALLOW"`)
	assert.Equal(t, UnknownURLReject, p)
	assert.Equal(t, "UnknownURLSubstitution", p.Type())
}
