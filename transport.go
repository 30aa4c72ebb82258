// Copyright 2024 Contributors to the Approov project.
// SPDX-License-Identifier: Apache-2.0

package approov

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/approov/approov-service-go/pinning"
	"go.uber.org/atomic"
)

// Transport is an http.RoundTripper that runs Service.AddApproov on every
// request before handing it to a base transport, and pins every TLS
// connection the base transport makes with the verifier AddApproov installs.
type Transport struct {
	service  *Service
	base     *http.Transport
	verifier atomic.Pointer[pinning.Verifier]

	// VerifyConnection hook of the base TLS config, run before pinning
	baseline func(tls.ConnectionState) error
}

var _ http.RoundTripper = &Transport{}

// NewTransport wraps a clone of base (http.DefaultTransport if nil). Any
// VerifyConnection hook already set on base runs before pinning. The TLS
// handshake of direct connections is made by the Transport, so that pins are
// checked for the dialed host; a DialTLSContext set on base is replaced.
func NewTransport(service *Service, base *http.Transport) *Transport {
	if base == nil {
		base = http.DefaultTransport.(*http.Transport)
	}

	t := &Transport{
		service: service,
		base:    base.Clone(),
	}

	if t.base.TLSClientConfig == nil {
		t.base.TLSClientConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	t.baseline = t.base.TLSClientConfig.VerifyConnection

	// handshakes made by the base transport itself (e.g., through a proxy)
	// only know the SNI name
	t.base.TLSClientConfig.VerifyConnection = t.verifyConnection("")
	t.base.DialTLSContext = t.dialTLS

	return t
}

// NewPinnedTransport is NewTransport over a clone of http.DefaultTransport
// that trusts the system roots as well as the PEM certificates in certPaths.
func NewPinnedTransport(service *Service, certPaths []string) (*Transport, error) {
	roots, err := loadRoots(certPaths)
	if err != nil {
		return nil, err
	}

	base := http.DefaultTransport.(*http.Transport).Clone()
	base.TLSClientConfig = &tls.Config{
		RootCAs:    roots,
		MinVersion: tls.VersionTLS12,
	}

	return NewTransport(service, base), nil
}

func loadRoots(certPaths []string) (*x509.CertPool, error) {
	roots, err := x509.SystemCertPool()
	if err != nil {
		return nil, fmt.Errorf("loading system roots: %w", err)
	}

	for _, certPath := range certPaths {
		pemCerts, err := os.ReadFile(certPath)
		if err != nil {
			return nil, fmt.Errorf("could not read cert: %w", err)
		}

		if !roots.AppendCertsFromPEM(pemCerts) {
			return nil, fmt.Errorf("invalid cert in %s", certPath)
		}
	}

	return roots, nil
}

// verifyConnection returns the VerifyConnection hook for connections to host,
// or to the SNI name of the session if host is empty.
func (t *Transport) verifyConnection(host string) func(tls.ConnectionState) error {
	return func(cs tls.ConnectionState) error {
		if t.baseline != nil {
			if err := t.baseline(cs); err != nil {
				return err
			}
		}

		v := t.verifier.Load()
		if v == nil {
			return nil
		}

		if host == "" {
			return v.VerifyConnection(cs)
		}

		return v.VerifyConnectionHost(host, cs)
	}
}

func (t *Transport) dialTLS(ctx context.Context, network, addr string) (net.Conn, error) {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, err
	}

	dial := t.base.DialContext
	if dial == nil {
		dial = (&net.Dialer{Timeout: 30 * time.Second, KeepAlive: 30 * time.Second}).DialContext
	}

	raw, err := dial(ctx, network, addr)
	if err != nil {
		return nil, err
	}

	cfg := t.base.TLSClientConfig.Clone()
	if cfg.ServerName == "" {
		cfg.ServerName = host
	}
	cfg.VerifyConnection = t.verifyConnection(host)

	conn := tls.Client(raw, cfg)
	if err := conn.HandshakeContext(ctx); err != nil {
		raw.Close()
		return nil, err
	}

	return conn, nil
}

// RoundTrip implements http.RoundTripper. The request is cloned before being
// modified. Mediation errors are returned as is, so errors.As can recover the
// *Error from the error returned by http.Client.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())

	if err := t.service.AddApproov(NewRequestConnection(req, t.verifier.Store)); err != nil {
		if req.Body != nil {
			req.Body.Close()
		}
		return nil, err
	}

	return t.base.RoundTrip(req)
}

// CloseIdleConnections closes the idle connections of the base transport
func (t *Transport) CloseIdleConnections() {
	t.base.CloseIdleConnections()
}
