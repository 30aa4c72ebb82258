// Copyright 2024 Contributors to the Approov project.
// SPDX-License-Identifier: Apache-2.0

package approov

import (
	"net/http"
	"net/url"

	"github.com/approov/approov-service-go/pinning"
)

// Connection is an outgoing HTTPS request about to be sent, as seen by
// Service.AddApproov.
type Connection interface {
	URL() *url.URL
	// Header returns the first value of the named header, if present
	Header(name string) (string, bool)
	SetHeader(name, value string)
	// SetVerifier installs v as the TLS verification hook of the connection
	SetVerifier(v *pinning.Verifier)
}

type requestConnection struct {
	req     *http.Request
	install func(*pinning.Verifier)
}

// NewRequestConnection adapts req. install is called with the pinning
// verifier and must make the transport that will send req run it on every
// TLS handshake (see Transport); a nil install leaves the request unpinned.
func NewRequestConnection(req *http.Request, install func(*pinning.Verifier)) Connection {
	return &requestConnection{req: req, install: install}
}

func (o *requestConnection) URL() *url.URL {
	return o.req.URL
}

func (o *requestConnection) Header(name string) (string, bool) {
	values := o.req.Header.Values(name)
	if len(values) == 0 {
		return "", false
	}

	return values[0], true
}

func (o *requestConnection) SetHeader(name, value string) {
	if o.req.Header == nil {
		o.req.Header = http.Header{}
	}

	o.req.Header.Set(name, value)
}

func (o *requestConnection) SetVerifier(v *pinning.Verifier) {
	if o.install != nil {
		o.install(v)
	}
}
