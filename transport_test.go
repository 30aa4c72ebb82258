// Copyright 2024 Contributors to the Approov project.
// SPDX-License-Identifier: Apache-2.0

package approov

import (
	"context"
	"crypto/tls"
	"encoding/pem"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/approov/approov-service-go/common"
	"github.com/approov/approov-service-go/pinning"
	"github.com/approov/approov-service-go/sdk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testServiceURL = "https://" + common.TestHost + "/v1/shapes"

func TestClient_Do_ok(t *testing.T) {
	h := func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, testToken, r.Header.Get(DefaultTokenHeader))
		assert.Equal(t, testSecret, r.Header.Get("Api-Key"))
		assert.Equal(t, "S", r.URL.Query().Get("api_key"))
		assert.Equal(t, "1", r.URL.Query().Get("page"))

		w.WriteHeader(http.StatusOK)
	}

	srv, base, closer := common.NewTestingTLSTransport(http.HandlerFunc(h))
	defer closer()

	fake := sdk.NewFake(testToken)
	fake.SetSecureString(testKey, testSecret)
	fake.SetSecureString("K", "S")
	fake.Pins = sdk.PinSet{common.TestHost: {"AAAA", pinning.PublicKeyHash(srv.Certificate())}}
	s := newTestService(t, fake)
	require.NoError(t, s.AddSubstitutionHeader("Api-Key", ""))

	client := NewClient(s)
	client.HTTPClient.Transport = NewTransport(s, base)
	client.QueryParams = []string{"api_key"}

	req, err := http.NewRequest(http.MethodGet, testServiceURL+"?api_key=K&page=1", http.NoBody)
	require.NoError(t, err)
	req.Header.Set("Api-Key", testKey)

	res, err := client.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()

	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, []string{common.TestHost}, fake.TokenFetches)
	assert.GreaterOrEqual(t, fake.PinFetches, 1)

	// the caller's request is not modified
	assert.Empty(t, req.Header.Get(DefaultTokenHeader))
	assert.Equal(t, testKey, req.Header.Get("Api-Key"))
	assert.Equal(t, "K", req.URL.Query().Get("api_key"))
}

func TestClient_Get_unpinned_host(t *testing.T) {
	h := func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}

	_, base, closer := common.NewTestingTLSTransport(http.HandlerFunc(h))
	defer closer()

	fake := sdk.NewFake(testToken)
	fake.Pins = sdk.PinSet{"other.example.com": {"AAAA"}}
	s := newTestService(t, fake)

	client := NewClient(s)
	client.HTTPClient.Transport = NewTransport(s, base)

	res, err := client.Get(testServiceURL)
	require.NoError(t, err)
	defer res.Body.Close()

	assert.Equal(t, http.StatusNoContent, res.StatusCode)
}

func TestClient_Get_pin_mismatch(t *testing.T) {
	for name, pins := range map[string]sdk.PinSet{
		"explicit": {common.TestHost: {"AAAA"}},
		"wildcard": {common.TestHost: {}, sdk.WildcardHost: {"BBBB"}},
	} {
		h := func(w http.ResponseWriter, r *http.Request) {
			t.Errorf("%s: request must not reach the server", name)
		}

		_, base, closer := common.NewTestingTLSTransport(http.HandlerFunc(h))

		fake := sdk.NewFake(testToken)
		fake.Pins = pins
		s := newTestService(t, fake)
		// excluded requests are pinned all the same
		require.NoError(t, s.AddExclusionURLRegex(`/v1/`))

		client := NewClient(s)
		client.HTTPClient.Transport = NewTransport(s, base)

		_, err := client.Get(testServiceURL)
		assert.ErrorContains(t, err, "no certificate in chain matches the host pins", name)
		assert.Empty(t, fake.TokenFetches, name)

		closer()
	}
}

func TestClient_Get_mediation_error(t *testing.T) {
	h := func(w http.ResponseWriter, r *http.Request) {
		t.Error("request must not reach the server")
	}

	_, base, closer := common.NewTestingTLSTransport(http.HandlerFunc(h))
	defer closer()

	fake := sdk.NewFake(testToken)
	fake.DefaultToken = sdk.Result{Status: sdk.StatusNoNetwork}
	s := newTestService(t, fake)

	client := NewClient(s)
	client.HTTPClient.Transport = NewTransport(s, base)

	_, err := client.Get(testServiceURL)

	var e *Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, KindNetwork, e.Kind)
	assert.True(t, IsNetworkError(err))
}

func TestClient_Do_query_param_rejected(t *testing.T) {
	h := func(w http.ResponseWriter, r *http.Request) {
		t.Error("request must not reach the server")
	}

	_, base, closer := common.NewTestingTLSTransport(http.HandlerFunc(h))
	defer closer()

	fake := sdk.NewFake(testToken)
	fake.SecureStrings["K"] = sdk.Result{Status: sdk.StatusRejected, ARC: "ARC7"}
	s := newTestService(t, fake)

	client := NewClient(s)
	client.HTTPClient.Transport = NewTransport(s, base)
	client.QueryParams = []string{"api_key"}

	req, err := http.NewRequest(http.MethodPost, testServiceURL+"?api_key=K", strings.NewReader("body"))
	require.NoError(t, err)

	_, err = client.Do(req)

	assert.True(t, IsRejection(err))
	assert.Empty(t, fake.TokenFetches)
}

func TestTransport_baseline_verify_connection(t *testing.T) {
	h := func(w http.ResponseWriter, r *http.Request) {
		t.Error("request must not reach the server")
	}

	_, base, closer := common.NewTestingTLSTransport(http.HandlerFunc(h))
	defer closer()

	base.TLSClientConfig.VerifyConnection = func(tls.ConnectionState) error {
		return errors.New("baseline refused")
	}

	s := newTestService(t, sdk.NewFake(testToken))

	client := &http.Client{Transport: NewTransport(s, base)}

	_, err := client.Get(testServiceURL)
	assert.ErrorContains(t, err, "baseline refused")
}

func TestNewTransport_default_base(t *testing.T) {
	s := newTestService(t, sdk.NewFake(testToken))

	tr := NewTransport(s, nil)

	require.NotNil(t, tr.base.TLSClientConfig)
	assert.NotNil(t, tr.base.TLSClientConfig.VerifyConnection)
	assert.NotNil(t, tr.base.DialTLSContext)
	assert.Nil(t, http.DefaultTransport.(*http.Transport).DialTLSContext)

	tr.CloseIdleConnections()
}

func TestTransport_ip_host(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, testToken, r.Header.Get(DefaultTokenHeader))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	host := srv.Listener.Addr().(*net.TCPAddr).IP.String()
	base := srv.Client().Transport.(*http.Transport)

	get := func(pins sdk.PinSet) (*sdk.Fake, error) {
		fake := sdk.NewFake(testToken)
		fake.Pins = pins
		s := newTestService(t, fake)

		res, err := (&http.Client{Transport: NewTransport(s, base)}).Get(srv.URL)
		if err != nil {
			return fake, err
		}
		res.Body.Close()

		assert.Equal(t, http.StatusNoContent, res.StatusCode)
		return fake, nil
	}

	fake, err := get(sdk.PinSet{host: {pinning.PublicKeyHash(srv.Certificate())}})
	require.NoError(t, err)
	assert.Equal(t, []string{host}, fake.TokenFetches)

	_, err = get(sdk.PinSet{host: {}, sdk.WildcardHost: {pinning.PublicKeyHash(srv.Certificate())}})
	require.NoError(t, err)

	_, err = get(sdk.PinSet{host: {"AAAA"}})
	assert.ErrorContains(t, err, fmt.Sprintf("no certificate in chain matches the host pins %q", host))
}

func TestNewPinnedTransport_ok(t *testing.T) {
	h := func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, testToken, r.Header.Get(DefaultTokenHeader))
		w.WriteHeader(http.StatusOK)
	}

	srv, _, closer := common.NewTestingTLSTransport(http.HandlerFunc(h))
	defer closer()

	certPath := filepath.Join(t.TempDir(), "server.pem")
	pemBytes := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: srv.Certificate().Raw})
	require.NoError(t, os.WriteFile(certPath, pemBytes, 0o600))

	fake := sdk.NewFake(testToken)
	fake.Pins = sdk.PinSet{common.TestHost: {pinning.PublicKeyHash(srv.Certificate())}}
	s := newTestService(t, fake)

	tr, err := NewPinnedTransport(s, []string{certPath})
	require.NoError(t, err)
	assert.Equal(t, uint16(tls.VersionTLS12), tr.base.TLSClientConfig.MinVersion)

	tr.base.DialContext = func(_ context.Context, network, _ string) (net.Conn, error) {
		return net.Dial(network, srv.Listener.Addr().String())
	}

	res, err := (&http.Client{Transport: tr}).Get(testServiceURL)
	require.NoError(t, err)
	defer res.Body.Close()

	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, []string{common.TestHost}, fake.TokenFetches)
}

func TestNewPinnedTransport_nok(t *testing.T) {
	dir := t.TempDir()
	s := newTestService(t, sdk.NewFake(testToken))

	_, err := NewPinnedTransport(s, []string{filepath.Join(dir, "missing.pem")})
	assert.ErrorContains(t, err, "could not read cert")

	garbage := filepath.Join(dir, "garbage.pem")
	require.NoError(t, os.WriteFile(garbage, []byte("not a cert"), 0o600))

	_, err = NewPinnedTransport(s, []string{garbage})
	assert.EqualError(t, err, "invalid cert in "+garbage)
}
