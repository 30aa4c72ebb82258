// Copyright 2024 Contributors to the Approov project.
// SPDX-License-Identifier: Apache-2.0

package approov

import (
	"net/http"
)

// Client holds configuration data associated with the mediated HTTP(s)
// session
type Client struct {
	HTTPClient http.Client
	Service    *Service

	// QueryParams lists the query parameters whose values are secure string
	// keys to be substituted before each request is sent
	QueryParams []string
}

// NewClient instantiates a new Client whose requests are mediated by service.
// No overall timeout is set: token fetches may block for a network round trip.
func NewClient(service *Service) *Client {
	return &Client{
		HTTPClient: http.Client{
			Transport: NewTransport(service, nil),
		},
		Service: service,
	}
}

// Do substitutes the configured query parameters of req and sends it.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	for _, param := range c.QueryParams {
		u, err := c.Service.SubstituteQueryParam(req.URL, param)
		if err != nil {
			if req.Body != nil {
				req.Body.Close()
			}
			return nil, err
		}

		if u != req.URL {
			req = req.Clone(req.Context())
			req.URL = u
		}
	}

	return c.HTTPClient.Do(req)
}

// Get issues a GET to uri through Do
func (c *Client) Get(uri string) (*http.Response, error) {
	req, err := http.NewRequest(http.MethodGet, uri, http.NoBody)
	if err != nil {
		return nil, err
	}

	return c.Do(req)
}
