// Copyright 2026 the kretalogin contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package oidcclient

import (
	"fmt"

	"go.kretalogin.dev/internal/constable"
)

const (
	// ErrNetwork means a request could not be completed, including when it ran out of time.
	ErrNetwork = constable.Error("network error")

	// ErrMissingFormField means the login page did not contain a hidden input that the login form needs.
	ErrMissingFormField = constable.Error("login page is missing a required form field")

	// ErrAuthenticationFailed means the identity provider did not issue an authorization code after
	// the credentials were submitted, which almost always means the credentials were wrong.
	ErrAuthenticationFailed = constable.Error("authentication failed")

	// ErrTokenExchange means the token endpoint rejected the request. See TokenExchangeError.
	ErrTokenExchange = constable.Error("token exchange failed")

	// ErrUnexpectedResponse means the identity provider answered in a way the login flow does not understand.
	ErrUnexpectedResponse = constable.Error("unexpected response from identity provider")
)

// TokenExchangeError is returned when the token endpoint answers with a non-success status.
// Body is the response body exactly as the identity provider sent it.
type TokenExchangeError struct {
	StatusCode int
	Body       string
}

func (e *TokenExchangeError) Error() string {
	return fmt.Sprintf("%s: token endpoint returned HTTP %d: %s", ErrTokenExchange, e.StatusCode, e.Body)
}

func (e *TokenExchangeError) Is(target error) bool {
	return target == ErrTokenExchange
}
