// Copyright 2024 Contributors to the Approov project.
// SPDX-License-Identifier: Apache-2.0

package pinning

import "crypto/x509"

// HostnameVerifier is the baseline check the pinning Verifier runs before
// looking at pins. An error means the chain itself could not be obtained.
type HostnameVerifier interface {
	Verify(hostname string, session Session) (bool, error)
}

// HostnameVerifierFunc adapts a plain function to HostnameVerifier
type HostnameVerifierFunc func(hostname string, session Session) (bool, error)

func (f HostnameVerifierFunc) Verify(hostname string, session Session) (bool, error) {
	return f(hostname, session)
}

// DefaultHostnameVerifier accepts the session if its leaf certificate is valid
// for hostname.
var DefaultHostnameVerifier HostnameVerifier = HostnameVerifierFunc(verifyLeafHostname)

func verifyLeafHostname(hostname string, session Session) (bool, error) {
	chain, err := session.PeerCertificates()
	if err != nil {
		return false, err
	}

	if len(chain) == 0 {
		return false, ErrNoPeerCertificates
	}

	leaf, err := x509.ParseCertificate(chain[0])
	if err != nil {
		return false, nil
	}

	return leaf.VerifyHostname(hostname) == nil, nil
}
