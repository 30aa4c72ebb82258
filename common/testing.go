// Copyright 2024 Contributors to the Approov project.
// SPDX-License-Identifier: Apache-2.0

package common

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
)

// TestHost is a name covered by the certificate of httptest TLS servers.
const TestHost = "example.com"

// NewTestingTLSTransport creates an HTTPS test server (with a configurable
// request handler) and a transport that trusts its certificate and connects
// every dial to it, whatever the requested address. The server (e.g., to read
// its certificate), the transport and the server's shutdown switch are
// returned.
func NewTestingTLSTransport(handler http.Handler) (srv *httptest.Server, tr *http.Transport, closerFn func()) {
	srv = httptest.NewTLSServer(handler)

	tr = srv.Client().Transport.(*http.Transport).Clone()
	tr.DialContext = func(_ context.Context, network, _ string) (net.Conn, error) {
		return net.Dial(network, srv.Listener.Addr().String())
	}

	closerFn = srv.Close

	return
}
