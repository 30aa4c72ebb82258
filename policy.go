// Copyright 2024 Contributors to the Approov project.
// SPDX-License-Identifier: Apache-2.0

package approov

import "fmt"

// UnknownURLSubstitution decides what happens when a header substitution
// resolves a secure string for a request whose token fetch reported an
// unknown URL, i.e. a host that is not an added API domain. It implements the
// pflag.Value interface.
type UnknownURLSubstitution string

const (
	// UnknownURLReject fails the request with a permanent error, so that
	// secrets never travel to domains that are not protected (and pinned).
	UnknownURLReject UnknownURLSubstitution = "reject"
	// UnknownURLAllow performs the substitution anyway.
	UnknownURLAllow UnknownURLSubstitution = "allow"
)

// String representation of the UnknownURLSubstitution
func (o *UnknownURLSubstitution) String() string {
	return string(*o)
}

// Set the value of the UnknownURLSubstitution
func (o *UnknownURLSubstitution) Set(v string) error {
	switch v {
	case "", "reject":
		*o = UnknownURLReject
	case "allow":
		*o = UnknownURLAllow
	default:
		return fmt.Errorf("unexpected UnknownURLSubstitution %q", v)
	}

	return nil
}

// Type returns the string representing the type name (used by pflag).
func (o *UnknownURLSubstitution) Type() string {
	return "UnknownURLSubstitution"
}
