// Copyright 2026 the kretalogin contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package oidctypes provides core data types for the e-KRÉTA login flow.
package oidctypes

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Credentials are the values a student types into the e-KRÉTA login page.
// They are only held in memory for the duration of a login.
type Credentials struct {
	// Username is the student's login name (usually the student ID).
	Username string

	// Password is the student's password.
	Password string

	// InstituteCode identifies the school, for example "klik035220001".
	InstituteCode string
}

// Validate returns an error naming every empty field.
func (c Credentials) Validate() error {
	var missing []string
	if strings.TrimSpace(c.Username) == "" {
		missing = append(missing, "username")
	}
	if c.Password == "" {
		missing = append(missing, "password")
	}
	if strings.TrimSpace(c.InstituteCode) == "" {
		missing = append(missing, "institute code")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing credentials: %s", strings.Join(missing, ", "))
	}
	return nil
}

// String never includes the password.
func (c Credentials) String() string {
	return fmt.Sprintf("{Username:%s InstituteCode:%s}", c.Username, c.InstituteCode)
}

// TokenResponse is the successful response of the token endpoint.
type TokenResponse struct {
	// Raw is the JSON body returned by the provider, unmodified.
	Raw json.RawMessage `json:"-"`

	// The fields below are decoded from Raw for convenience and are never sent anywhere.
	// A field whose JSON type is not the expected one is left empty.
	AccessToken  string
	TokenType    string
	ExpiresIn    json.Number // accepts both 1800 and "1800"
	RefreshToken string
	IDToken      string
	Scope        string
}

// ParseTokenResponse decodes a token endpoint body, keeping a copy of the original bytes in Raw.
// The body must be a JSON object. Its fields are otherwise not interpreted.
func ParseTokenResponse(body []byte) (*TokenResponse, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, fmt.Errorf("could not decode token response: %w", err)
	}

	tr := TokenResponse{Raw: append(json.RawMessage(nil), body...)}
	for name, dst := range map[string]any{
		"access_token":  &tr.AccessToken,
		"token_type":    &tr.TokenType,
		"expires_in":    &tr.ExpiresIn,
		"refresh_token": &tr.RefreshToken,
		"id_token":      &tr.IDToken,
		"scope":         &tr.Scope,
	} {
		if value, ok := fields[name]; ok {
			_ = json.Unmarshal(value, dst)
		}
	}
	return &tr, nil
}

// MarshalJSON returns Raw, so re-encoding a TokenResponse reproduces the provider's payload.
func (t TokenResponse) MarshalJSON() ([]byte, error) {
	if len(t.Raw) == 0 {
		return nil, errors.New("token response has no raw payload")
	}
	return t.Raw, nil
}
