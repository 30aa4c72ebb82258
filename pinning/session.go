// Copyright 2024 Contributors to the Approov project.
// SPDX-License-Identifier: Apache-2.0

package pinning

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
)

// ErrNoPeerCertificates is returned when a session carries no peer chain,
// which means the TLS layer did not complete server authentication.
var ErrNoPeerCertificates = errors.New("pinning: no peer certificates")

// Session gives access to the DER encoded peer certificate chain of an
// established TLS session, leaf first.
type Session interface {
	PeerCertificates() ([][]byte, error)
}

// RawChain is a Session over an already extracted chain, e.g. the rawCerts
// handed to tls.Config.VerifyPeerCertificate.
type RawChain [][]byte

func (o RawChain) PeerCertificates() ([][]byte, error) {
	if len(o) == 0 {
		return nil, ErrNoPeerCertificates
	}

	return o, nil
}

type stateSession struct {
	certs []*x509.Certificate
}

// StateSession adapts a crypto/tls connection state.
func StateSession(cs tls.ConnectionState) Session {
	return stateSession{certs: cs.PeerCertificates}
}

func (o stateSession) PeerCertificates() ([][]byte, error) {
	if len(o.certs) == 0 {
		return nil, ErrNoPeerCertificates
	}

	chain := make([][]byte, 0, len(o.certs))
	for _, cert := range o.certs {
		if cert == nil {
			chain = append(chain, nil)
			continue
		}
		chain = append(chain, cert.Raw)
	}

	return chain, nil
}
