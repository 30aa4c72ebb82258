// Copyright 2024 Contributors to the Approov project.
// SPDX-License-Identifier: Apache-2.0

package pinning

import (
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/approov/approov-service-go/sdk"
	"go.uber.org/zap"
)

// ErrPinMismatch is returned by VerifyConnection when no certificate in the
// peer chain matches the pins of the host.
var ErrPinMismatch = errors.New("pinning: no certificate in chain matches the host pins")

// PinSource supplies the current pins. Implementations must not cache: pins
// are updated live by the Attestation Service.
type PinSource interface {
	Pins() sdk.PinSet
}

type serviceSource struct {
	service sdk.Service
}

// FromService returns a PinSource reading the public-key-sha256 pins of the
// Attestation Service on every call.
func FromService(service sdk.Service) PinSource {
	return serviceSource{service: service}
}

func (o serviceSource) Pins() sdk.PinSet {
	return o.service.GetPins(sdk.PinTypePublicKeySHA256)
}

// Verifier performs public key pinning on top of a baseline HostnameVerifier.
// It can only reject sessions the baseline accepts, never the reverse.
type Verifier struct {
	delegate HostnameVerifier
	source   PinSource
	log      *zap.Logger
}

// NewVerifier builds a Verifier. A nil delegate selects
// DefaultHostnameVerifier and a nil logger discards log output.
func NewVerifier(delegate HostnameVerifier, source PinSource, logger *zap.Logger) *Verifier {
	if delegate == nil {
		delegate = DefaultHostnameVerifier
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	return &Verifier{
		delegate: delegate,
		source:   source,
		log:      logger.Named("pinning"),
	}
}

// Verify reports whether the session is acceptable for hostname. Hosts with
// no effective pins are accepted; otherwise at least one certificate of the
// chain must have its public key hash in the pin set. An error is returned if
// the chain cannot be obtained.
func (o *Verifier) Verify(hostname string, session Session) (bool, error) {
	ok, err := o.delegate.Verify(hostname, session)
	if err != nil {
		return false, err
	}

	if !ok {
		return false, nil
	}

	pins := HostPins(o.source.Pins(), hostname)
	if len(pins) == 0 {
		return true, nil
	}

	chain, err := session.PeerCertificates()
	if err != nil {
		return false, err
	}

	for _, raw := range chain {
		cert, err := x509.ParseCertificate(raw)
		if err != nil {
			o.log.Error("certificate not X.509", zap.String("host", hostname), zap.Error(err))
			continue
		}

		if _, found := pins[PublicKeyHash(cert)]; found {
			return true, nil
		}
	}

	o.log.Warn("pinning rejection", zap.String("host", hostname))

	return false, nil
}

// VerifyConnection has the signature of tls.Config.VerifyConnection. The
// session is verified for cs.ServerName, which the TLS client leaves empty
// for IP address hosts: use VerifyConnectionHost when the dialed host is
// known.
func (o *Verifier) VerifyConnection(cs tls.ConnectionState) error {
	return o.VerifyConnectionHost(cs.ServerName, cs)
}

// VerifyConnectionHost verifies the session of cs for hostname.
func (o *Verifier) VerifyConnectionHost(hostname string, cs tls.ConnectionState) error {
	ok, err := o.Verify(hostname, StateSession(cs))
	if err != nil {
		return fmt.Errorf("pin verification for %q: %w", hostname, err)
	}

	if !ok {
		return fmt.Errorf("%w %q", ErrPinMismatch, hostname)
	}

	return nil
}

// HostPins resolves the effective pin set for hostname. An explicit non-empty
// list wins; an empty list selects the wildcard pins; an absent host has no
// pins at all.
func HostPins(all sdk.PinSet, hostname string) map[string]struct{} {
	set := map[string]struct{}{}

	pins, ok := all[hostname]
	if !ok {
		return set
	}

	if len(pins) == 0 {
		pins = all[sdk.WildcardHost]
	}

	for _, pin := range pins {
		set[pin] = struct{}{}
	}

	return set
}

// PublicKeyHash returns the base64 encoded SHA-256 digest of the DER encoded
// subject public key info of cert.
func PublicKeyHash(cert *x509.Certificate) string {
	digest := sha256.Sum256(cert.RawSubjectPublicKeyInfo)

	return base64.StdEncoding.EncodeToString(digest[:])
}
