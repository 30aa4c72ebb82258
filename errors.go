// Copyright 2024 Contributors to the Approov project.
// SPDX-License-Identifier: Apache-2.0

package approov

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/approov/approov-service-go/sdk"
	"github.com/moogar0880/problems"
)

// Kind classifies the errors returned by Service operations.
type Kind int

const (
	// KindPermanent means attestation is not possible for reasons unrelated
	// to network conditions or an explicit rejection.
	KindPermanent Kind = iota
	// KindNetwork means the fetch failed because of network conditions (or a
	// detected MitM) and a user initiated retry should be offered.
	KindNetwork
	// KindRejection means the app or device failed attestation.
	KindRejection
)

func (o Kind) String() string {
	switch o {
	case KindPermanent:
		return "permanent"
	case KindNetwork:
		return "network"
	case KindRejection:
		return "rejection"
	default:
		return fmt.Sprintf("Kind(%d)", int(o))
	}
}

// Error is returned by all mediation operations. ARC and RejectionReasons are
// only set for KindRejection.
type Error struct {
	Kind             Kind
	Message          string
	ARC              string
	RejectionReasons string
	Err              error
}

// ErrNotInitialized is returned (wrapped) by every operation of a Service
// whose SDK initialization failed.
var ErrNotInitialized = errors.New("Approov not initialized")

func (o *Error) Error() string {
	return o.Message
}

func (o *Error) Unwrap() error {
	return o.Err
}

// Retryable reports whether a user initiated retry of the operation makes sense
func (o *Error) Retryable() bool {
	return o.Kind == KindNetwork
}

// Problem renders the error as an RFC 7807 problem document for hosts that
// surface mediation failures over HTTP.
func (o *Error) Problem() *problems.DefaultProblem {
	var status int

	switch o.Kind {
	case KindNetwork:
		status = http.StatusServiceUnavailable
	case KindRejection:
		status = http.StatusForbidden
	default:
		status = http.StatusInternalServerError
	}

	return problems.NewDetailedProblem(status, o.Message)
}

// IsNetworkError reports whether err is (or wraps) a KindNetwork Error
func IsNetworkError(err error) bool {
	return hasKind(err, KindNetwork)
}

// IsRejection reports whether err is (or wraps) a KindRejection Error
func IsRejection(err error) bool {
	return hasKind(err, KindRejection)
}

func hasKind(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

func newPermanentError(format string, a ...interface{}) *Error {
	return &Error{Kind: KindPermanent, Message: fmt.Sprintf(format, a...)}
}

func newNetworkError(format string, a ...interface{}) *Error {
	return &Error{Kind: KindNetwork, Message: fmt.Sprintf(format, a...)}
}

func newRejectionError(op string, res sdk.Result) *Error {
	return &Error{
		Kind:             KindRejection,
		Message:          fmt.Sprintf("%s: %s: %s %s", op, res.Status, res.ARC, res.RejectionReasons),
		ARC:              res.ARC,
		RejectionReasons: res.RejectionReasons,
	}
}

func notInitializedError(cause error) *Error {
	return &Error{
		Kind:    KindPermanent,
		Message: fmt.Sprintf("%s: %v", ErrNotInitialized, cause),
		Err:     fmt.Errorf("%w: %w", ErrNotInitialized, cause),
	}
}

// wrapSDKError turns an illegal state/argument reported by the SDK into a
// permanent error, keeping the original message.
func wrapSDKError(err error) *Error {
	label := "SDK"

	switch {
	case errors.Is(err, sdk.ErrIllegalState):
		label = "IllegalState"
	case errors.Is(err, sdk.ErrIllegalArgument):
		label = "IllegalArgument"
	}

	return &Error{
		Kind:    KindPermanent,
		Message: fmt.Sprintf("%s: %v", label, err),
		Err:     err,
	}
}
