// Copyright 2024 Contributors to the Approov project.
// SPDX-License-Identifier: Apache-2.0

/*
Package approov mediates outgoing HTTPS requests so that each carries an
Approov token, gets its secret placeholders substituted and is pinned to the
live certificate pins of the account.

The attestation itself is performed by the Approov SDK, which the user wraps
in an implementation of sdk.Service. The Service type orchestrates it:

	svc := approov.NewService(mySDK, approov.Options{
		Config: "<initial account config>",
		Logger: logger,
	})
	if !svc.Initialized() {
		// every operation will fail with ErrNotInitialized
	}

The token is added on the "Approov-Token" header by default. This, and the
rest of the configuration, can be changed with setters:

	err := svc.SetTokenHeader("Authorization", "Bearer ")
	err = svc.AddSubstitutionHeader("Api-Key", "")
	err = svc.AddExclusionURLRegex(`^https://static\.example\.com/`)
	svc.SetProceedOnNetworkFail(true)

or in one go from a configuration map:

	err := svc.Configure(map[string]interface{}{
		"token_header":         "Authorization",
		"token_prefix":         "Bearer ",
		"substitution_headers": map[string]interface{}{"Api-Key": ""},
	})

# Mediation

The simplest integration is the Client, whose transport calls AddApproov on
every request and pins its TLS connections:

	client := approov.NewClient(svc)
	client.QueryParams = []string{"api_key"}

	res, err := client.Get("https://api.example.com/v1/shapes?api_key=shapes-key")

Extra trusted roots (e.g., for a private CA) are set up with
NewPinnedTransport:

	tr, err := approov.NewPinnedTransport(svc, []string{"/etc/ssl/private-ca.pem"})
	client.HTTPClient.Transport = tr

Requests can also be mediated explicitly with AddApproov and a Connection, and
URLs with SubstituteQueryParam before the request is built.

# Errors

Operations return an *Error whose Kind tells the caller what to do:

	var aerr *approov.Error
	if errors.As(err, &aerr) {
		switch aerr.Kind {
		case approov.KindNetwork:
			// offer the user a retry
		case approov.KindRejection:
			// attestation failed: aerr.ARC, aerr.RejectionReasons
		case approov.KindPermanent:
			// not retryable
		}
	}

The service never retries on its own.
*/
package approov
