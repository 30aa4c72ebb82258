// Copyright 2024 Contributors to the Approov project.
// SPDX-License-Identifier: Apache-2.0

package sdk

import "fmt"

// Status is the outcome of a fetch performed by the Attestation Service.
type Status int

const (
	StatusSuccess Status = iota
	StatusRejected
	StatusNoNetwork
	StatusPoorNetwork
	StatusMITMDetected
	StatusUnknownKey
	StatusUnknownURL
	StatusUnprotectedURL
	StatusNoApproovService
	StatusOtherFailure
)

var statusNames = map[Status]string{
	StatusSuccess:          "SUCCESS",
	StatusRejected:         "REJECTED",
	StatusNoNetwork:        "NO_NETWORK",
	StatusPoorNetwork:      "POOR_NETWORK",
	StatusMITMDetected:     "MITM_DETECTED",
	StatusUnknownKey:       "UNKNOWN_KEY",
	StatusUnknownURL:       "UNKNOWN_URL",
	StatusUnprotectedURL:   "UNPROTECTED_URL",
	StatusNoApproovService: "NO_APPROOV_SERVICE",
	StatusOtherFailure:     "OTHER_FAILURE",
}

// String returns the name the Approov SDK uses for the status
func (o Status) String() string {
	if name, ok := statusNames[o]; ok {
		return name
	}

	return fmt.Sprintf("Status(%d)", int(o))
}

// IsNetworkFailure reports whether the status is a transient condition for
// which a user initiated retry makes sense.
func (o Status) IsNetworkFailure() bool {
	switch o {
	case StatusNoNetwork, StatusPoorNetwork, StatusMITMDetected:
		return true
	default:
		return false
	}
}
