// Copyright 2026 the kretalogin contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package nonce implements the OIDC nonce parameter which binds an ID token to one login attempt.
package nonce

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"io"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

// Generate generates a new random OIDC nonce parameter of an appropriate size.
func Generate() (Nonce, error) { return generate(rand.Reader) }

func generate(rand io.Reader) (Nonce, error) {
	var buf [16]byte
	if _, err := io.ReadFull(rand, buf[:]); err != nil {
		return "", fmt.Errorf("could not generate random nonce: %w", err)
	}
	return Nonce(base64.RawURLEncoding.EncodeToString(buf[:])), nil
}

// Nonce implements some utilities for working with OIDC nonce parameters.
type Nonce string

// String returns the string encoding of this nonce value.
func (n *Nonce) String() string {
	return string(*n)
}

// Param returns the OAuth2 auth code parameter for sending the nonce during the authorization request.
func (n *Nonce) Param() oauth2.AuthCodeOption {
	return oidc.Nonce(string(*n))
}

// Validate the nonce claim of the returned ID token.
func (n *Nonce) Validate(returnedNonce string) error {
	if subtle.ConstantTimeCompare([]byte(returnedNonce), []byte(*n)) != 1 {
		return InvalidNonceError{Expected: *n, Got: Nonce(returnedNonce)}
	}
	return nil
}

// InvalidNonceError is returned by Validate when the observed nonce is invalid.
type InvalidNonceError struct {
	Expected Nonce
	Got      Nonce
}

func (e InvalidNonceError) Error() string {
	return fmt.Sprintf("invalid nonce (expected %q, got %q)", e.Expected.String(), e.Got.String())
}
