// Copyright 2024 Contributors to the Approov project.
// SPDX-License-Identifier: Apache-2.0

/*
Package pinning implements public key pinning against the live pins supplied
by the Attestation Service.

A Verifier first runs a baseline HostnameVerifier and, only if that passes,
checks the peer chain against the pins of the host:

	v := pinning.NewVerifier(nil, pinning.FromService(svc), logger)

	tr := &http.Transport{
		TLSClientConfig: &tls.Config{
			VerifyConnection: v.VerifyConnection,
		},
	}

Pins are resolved per host as follows:

  - a host with a non-empty pin list must match one of those pins;
  - a host registered with an empty pin list uses the pins of the "*" entry;
  - a host absent from the pin set is not pinned.

A pin is the base64 SHA-256 digest of a certificate's DER encoded subject
public key info (see PublicKeyHash). Any certificate of the chain may match.
*/
package pinning
