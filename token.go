// Copyright 2024 Contributors to the Approov project.
// SPDX-License-Identifier: Apache-2.0

package approov

import (
	"encoding/json"

	"github.com/golang-jwt/jwt/v5"
)

// loggableToken returns the claims of an Approov token as JSON, without the
// signature, so that they can be logged. The token is not verified: that is
// the backend's job.
func loggableToken(token string) string {
	if token == "" {
		return "NoToken"
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return "InvalidToken"
	}

	j, err := json.Marshal(claims)
	if err != nil {
		return "InvalidToken"
	}

	return string(j)
}
