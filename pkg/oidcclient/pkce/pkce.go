// Copyright 2026 the kretalogin contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package pkce implements RFC 7636: Proof Key for Code Exchange with the S256 challenge method.
package pkce

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"

	"golang.org/x/oauth2"
)

const (
	// verifierEntropyBytes is how many random bytes are encoded into each verifier.
	// 64 bytes of base64url without padding is 86 characters, within the 43..128 range of RFC 7636.
	verifierEntropyBytes = 64

	methodS256 = "S256"
)

// Generate generates a new random PKCE code.
func Generate() (Code, error) { return generate(rand.Reader) }

func generate(rand io.Reader) (Code, error) {
	// From https://tools.ietf.org/html/rfc7636#section-4.1:
	//   code_verifier = high-entropy cryptographic random STRING using the
	//   unreserved characters [A-Z] / [a-z] / [0-9] / "-" / "." / "_" / "~"
	//   from Section 2.3 of [RFC3986], with a minimum length of 43 characters
	//   and a maximum length of 128 characters.
	var buf [verifierEntropyBytes]byte
	if _, err := io.ReadFull(rand, buf[:]); err != nil {
		return "", fmt.Errorf("could not generate PKCE code: %w", err)
	}
	return Code(base64.RawURLEncoding.EncodeToString(buf[:])), nil
}

// S256 derives the code challenge for a verifier: base64url(sha256(ascii(verifier))) without padding.
func S256(verifier string) string {
	b := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(b[:])
}

// Code is a PKCE code verifier. It must be kept for the lifetime of one login attempt only.
type Code string

// String returns the verifier, as sent in the code_verifier parameter of the token request.
func (p *Code) String() string {
	return string(*p)
}

// Challenge returns the OAuth2 auth code parameter for sending the PKCE code challenge.
func (p *Code) Challenge() oauth2.AuthCodeOption {
	return oauth2.SetAuthURLParam("code_challenge", S256(string(*p)))
}

// Method returns the OAuth2 auth code parameter for sending the PKCE code challenge method.
func (p *Code) Method() oauth2.AuthCodeOption {
	return oauth2.SetAuthURLParam("code_challenge_method", methodS256)
}

// Verifier returns the OAuth2 auth code parameter for sending the PKCE code verifier.
func (p *Code) Verifier() oauth2.AuthCodeOption {
	return oauth2.SetAuthURLParam("code_verifier", string(*p))
}
