// Copyright 2024 Contributors to the Approov project.
// SPDX-License-Identifier: Apache-2.0

package sdk

import "errors"

// PinTypePublicKeySHA256 selects base64 SHA-256 hashes of the subject public
// key info of certificates in the chain.
const PinTypePublicKeySHA256 = "public-key-sha256"

// WildcardHost is the PinSet key holding the pins used for hosts that are
// added to the account without any explicit pins.
const WildcardHost = "*"

var (
	// ErrIllegalState is reported when the SDK is called in a state that does
	// not allow the operation (e.g., before initialization).
	ErrIllegalState = errors.New("illegal state")

	// ErrIllegalArgument is reported when the SDK rejects an argument.
	ErrIllegalArgument = errors.New("illegal argument")
)

// Result is the outcome of a token, secure string or custom JWT fetch.
type Result struct {
	Status Status

	// Token is the Approov token (or custom JWT) on StatusSuccess
	Token string

	// SecureString is nil when the secure string is not defined
	SecureString *string

	// ARC is the attestation response code accompanying StatusRejected
	ARC string

	// RejectionReasons is a human readable list of reasons accompanying
	// StatusRejected, if enabled for the account
	RejectionReasons string
}

// PinSet maps a hostname to the pins of that host. A host present with an
// empty list is different from an absent host: only the former falls back to
// the WildcardHost entry.
type PinSet map[string][]string

// TokenCallback receives the result of an asynchronous token fetch.
type TokenCallback func(Result)

// Service is the boundary to the Attestation Service (the Approov SDK). It is
// treated as a black box: attestation, token caching and dynamic configuration
// are all its responsibility.
//
// Methods that return an error only do so for ErrIllegalState or
// ErrIllegalArgument conditions; every other outcome is carried by the Result.
type Service interface {
	// Initialize starts the SDK with the initial account configuration and any
	// dynamic configuration previously saved by the host.
	Initialize(config string, dynamicConfig []byte) error

	// SetUserProperty tags the SDK analytics with the integration in use.
	SetUserProperty(property string)

	// FetchToken blocks until a token for the host (or URL) is available or
	// the fetch has failed.
	FetchToken(hostOrURL string) (Result, error)

	// FetchTokenAsync starts a token fetch in the background and delivers the
	// result to the callback.
	FetchTokenAsync(callback TokenCallback, hostOrURL string)

	// FetchSecureString looks up the secure string for key. If newDef is not
	// nil, an instance specific value is defined (an empty string removes it).
	FetchSecureString(key string, newDef *string) (Result, error)

	// FetchCustomJWT obtains a signed JWT for the marshaled JSON claims.
	FetchCustomJWT(payload string) (Result, error)

	// SetDataHashInToken includes a hash of data in subsequently fetched
	// tokens.
	SetDataHashInToken(data string) error

	// GetPins returns the live pins of the given type.
	GetPins(pinType string) PinSet

	GetDeviceID() (string, error)
	GetMessageSignature(message string) (string, error)

	// FetchConfig returns the opaque dynamic configuration to be persisted
	// by the host.
	FetchConfig() []byte
}
