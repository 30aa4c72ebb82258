// Copyright 2024 Contributors to the Approov project.
// SPDX-License-Identifier: Apache-2.0

package approov

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/approov/approov-service-go/sdk"
	"go.uber.org/zap"
)

// AddApproov prepares conn before it is sent: it installs the pinning
// verifier, adds the Approov token for the host and performs any header
// substitutions. Requests matching an exclusion pattern are pinned but
// otherwise left untouched.
//
// The call blocks while the Attestation Service fetches the token. The
// returned error, if any, is an *Error: KindNetwork if the fetch failed
// because of network conditions (unless SetProceedOnNetworkFail is in
// effect), KindRejection if a substitution failed attestation and
// KindPermanent otherwise.
func (o *Service) AddApproov(conn Connection) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if err := o.checkInitialized(); err != nil {
		return err
	}

	// a pinned connection may be reused for an excluded URL, so this must
	// come first
	conn.SetVerifier(o.verifier)

	u := conn.URL()
	if o.cfg.exclusions.matches(u.String()) {
		o.log.Debug("request excluded", zap.String("host", u.Host))
		return nil
	}

	if o.cfg.bindingHeader != "" {
		if value, ok := conn.Header(o.cfg.bindingHeader); ok {
			if err := o.sdk.SetDataHashInToken(value); err != nil {
				o.log.Error("setting token binding failed", zap.String("header", o.cfg.bindingHeader), zap.Error(err))
			}
		}
	}

	host := u.Hostname()

	res, err := o.sdk.FetchToken(host)
	if err != nil {
		return wrapSDKError(err)
	}

	o.log.Debug("token fetch",
		zap.String("host", host),
		zap.Stringer("status", res.Status),
		zap.String("token", loggableToken(res.Token)),
	)

	op := "Approov token fetch for " + host

	switch status := res.Status; {
	case status == sdk.StatusSuccess:
		conn.SetHeader(o.cfg.tokenHeader, o.cfg.tokenPrefix+res.Token)
	case status.IsNetworkFailure():
		if !o.cfg.proceedOnNetworkFail {
			return newNetworkError("%s: %s", op, status)
		}
	case status == sdk.StatusNoApproovService,
		status == sdk.StatusUnknownURL,
		status == sdk.StatusUnprotectedURL:
		// the host is deliberately not protected
	default:
		return newPermanentError("%s: %s", op, status)
	}

	// Substitutions are only attempted after a valid token outcome, so that
	// secrets are not fetched for requests that may be subject to a MitM.
	// UnknownURL is let through so that substituting a secret for a host
	// that is not an added API domain is detected and refused.
	switch res.Status {
	case sdk.StatusSuccess, sdk.StatusUnprotectedURL, sdk.StatusUnknownURL:
		return o.substituteHeaders(conn, host, res.Status)
	default:
		return nil
	}
}

func (o *Service) substituteHeaders(conn Connection, host string, tokenStatus sdk.Status) error {
	for _, header := range o.cfg.sortedSubstitutionHeaders() {
		prefix := o.cfg.substitutionHeaders[header]

		value, ok := conn.Header(header)
		if !ok || !strings.HasPrefix(value, prefix) || len(value) <= len(prefix) {
			continue
		}

		res, err := o.sdk.FetchSecureString(value[len(prefix):], nil)
		if err != nil {
			return wrapSDKError(err)
		}

		o.log.Debug("substituting header", zap.String("header", header), zap.Stringer("status", res.Status))

		op := "Header substitution for " + header
		if err := checkResult(op, res, o.cfg.proceedOnNetworkFail, true); err != nil {
			return err
		}

		if res.Status != sdk.StatusSuccess {
			continue
		}

		if tokenStatus == sdk.StatusUnknownURL && o.cfg.unknownURL == UnknownURLReject {
			return newPermanentError("%s illegal for %s that is not an added API domain", op, host)
		}

		if res.SecureString == nil {
			continue
		}

		conn.SetHeader(header, prefix+*res.SecureString)
	}

	return nil
}

// SubstituteQueryParam replaces the value of queryParameter in u with the
// secure string it is the key of. It must be called before the request is
// built, since it produces a new URL; if no substitution is made u itself is
// returned. Errors follow the same classification as AddApproov.
func (o *Service) SubstituteQueryParam(u *url.URL, queryParameter string) (*url.URL, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if err := o.checkInitialized(); err != nil {
		return nil, err
	}

	raw := u.String()
	if o.cfg.exclusions.matches(raw) {
		return u, nil
	}

	re := regexp.MustCompile(`[?&]` + regexp.QuoteMeta(queryParameter) + `=([^&;]+)`)

	m := re.FindStringSubmatchIndex(raw)
	if m == nil {
		return u, nil
	}

	res, err := o.sdk.FetchSecureString(raw[m[2]:m[3]], nil)
	if err != nil {
		return nil, wrapSDKError(err)
	}

	o.log.Debug("substituting query parameter", zap.String("parameter", queryParameter), zap.Stringer("status", res.Status))

	op := "Query parameter substitution for " + queryParameter
	if err := checkResult(op, res, o.cfg.proceedOnNetworkFail, true); err != nil {
		return nil, err
	}

	if res.Status != sdk.StatusSuccess || res.SecureString == nil {
		return u, nil
	}

	substituted, err := url.Parse(raw[:m[2]] + *res.SecureString + raw[m[3]:])
	if err != nil {
		o.log.Debug("substituting query parameter failed", zap.String("parameter", queryParameter), zap.Error(err))
		return u, nil
	}

	return substituted, nil
}
